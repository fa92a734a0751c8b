package commander

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"drugclassifier/internal/data"
	"drugclassifier/internal/evaluation"
	"drugclassifier/internal/predictor"
	"drugclassifier/internal/runlog"
)

func (c *Commander) loadModel(path string) {
	p, err := predictor.Load(path, c.cfg.Server.TopK)
	if err != nil {
		fmt.Fprintf(c.out, "%s Error loading model: %v\n", c.red("✗"), err)
		fmt.Fprintln(c.out, "Run the trainer first or pass the artifact path")
		return
	}

	c.predictor = p
	c.modelPath = path

	meta := p.Metadata()
	fmt.Fprintf(c.out, "%s Model loaded successfully!\n", c.green("✓"))
	fmt.Fprintf(c.out, "Model: %s\n", meta.ModelName)
	fmt.Fprintf(c.out, "Dataset: %s\n", meta.Dataset)
	fmt.Fprintf(c.out, "Accuracy: %.4f | F1: %.4f\n", meta.Accuracy, meta.F1Score)
	fmt.Fprintln(c.out, "Use 'predict' or 'examples' to interact with the model")
}

func (c *Commander) requireModel() bool {
	if c.predictor == nil {
		fmt.Fprintln(c.out, c.red("No model loaded. Use 'load [file]' first"))
		return false
	}
	return true
}

func (c *Commander) showCurrentModel() {
	if !c.requireModel() {
		return
	}
	meta := c.predictor.Metadata()
	fmt.Fprintln(c.out, c.blue("\nCurrent Model:"))
	fmt.Fprintln(c.out, strings.Repeat("─", 40))
	fmt.Fprintf(c.out, "File: %s\n", c.modelPath)
	fmt.Fprintf(c.out, "Model: %s\n", meta.ModelName)
	fmt.Fprintf(c.out, "Features: %v\n", meta.Features)
	fmt.Fprintf(c.out, "Classes: %v\n", c.predictor.Classes())
	fmt.Fprintf(c.out, "Train/Test: %d/%d\n", meta.TrainSize, meta.TestSize)
	fmt.Fprintf(c.out, "Accuracy: %.4f | F1: %.4f\n", meta.Accuracy, meta.F1Score)
	for _, key := range sortedKeys(meta.Parameters) {
		fmt.Fprintf(c.out, "  %s: %v\n", key, meta.Parameters[key])
	}
}

func (c *Commander) predict(ctx context.Context, args []string) {
	if !c.requireModel() {
		return
	}
	if len(args) != 5 {
		fmt.Fprintln(c.out, c.red("Usage: predict <age> <sex> <bp> <chol> <na_to_k>"))
		fmt.Fprintln(c.out, "Example: predict 30 M HIGH NORMAL 15.4")
		return
	}

	cells := []string{args[0], strings.ToUpper(args[1]), strings.ToUpper(args[2]), strings.ToUpper(args[3]), args[4]}
	patient, err := data.ParsePatient(cells)
	if err != nil {
		fmt.Fprintf(c.out, "%s %v\n", c.red("✗"), err)
		return
	}
	c.makePrediction(ctx, patient)
}

func (c *Commander) predictExamples(ctx context.Context) {
	if !c.requireModel() {
		return
	}
	for _, patient := range data.Examples() {
		c.makePrediction(ctx, patient)
	}
}

func (c *Commander) makePrediction(ctx context.Context, patient data.Patient) {
	prediction, err := c.predictor.Predict(ctx, patient)
	if err != nil {
		fmt.Fprintf(c.out, "%s %v\n", c.red("✗"), err)
		return
	}

	fmt.Fprintln(c.out, "\n"+strings.Repeat("═", 50))
	fmt.Fprintf(c.out, "Input: %s\n", patient)
	fmt.Fprintln(c.out, strings.Repeat("─", 50))
	fmt.Fprintln(c.out, c.green(prediction.Label()))

	fmt.Fprintln(c.out, "\nConfidence Scores:")
	for _, cp := range prediction.Top {
		barLength := int(cp.Probability * 30)
		bar := strings.Repeat("█", barLength) + strings.Repeat("░", 30-barLength)

		paint := c.yellow
		if cp.Label == prediction.Predicted {
			paint = c.green
		}
		fmt.Fprintf(c.out, "  %s: %s %.2f%%\n", paint(fmt.Sprintf("%-8s", cp.Label)), bar, cp.Probability*100)
	}
	fmt.Fprintln(c.out, strings.Repeat("═", 50))
}

const batchSize = 256

// batchPredict writes <file>_predictions.csv next to filename and reports
// accuracy when the file carries a Drug column.
var errBatchAborted = errors.New("batch aborted")

func (c *Commander) batchPredict(ctx context.Context, filename string) {
	if !c.requireModel() {
		return
	}

	outputFile := strings.TrimSuffix(filename, filepath.Ext(filename)) + "_predictions.csv"
	var output *os.File
	var writer *csv.Writer
	defer func() {
		if output != nil {
			output.Close()
		}
	}()

	var labels, predicted []string
	reader := data.NewCSVReader(filename, c.predictor.Schema())
	err := reader.EachPatientBatch(batchSize, func(patients []data.Patient, batchLabels []string) error {
		predictions, err := c.predictor.PredictBatch(ctx, patients)
		if err != nil {
			fmt.Fprintf(c.out, "%s Rows %d-%d: %v\n", c.red("✗"), len(predicted)+1, len(predicted)+len(patients), err)
			return errBatchAborted
		}

		if writer == nil {
			if output, err = os.Create(outputFile); err != nil {
				fmt.Fprintf(c.out, "%s Error creating output file: %v\n", c.red("✗"), err)
				return errBatchAborted
			}
			writer = csv.NewWriter(output)
			_ = writer.Write([]string{"Sample", "Prediction", "Confidence"})
		}

		for _, prediction := range predictions {
			confidence := 0.0
			if len(prediction.Top) > 0 {
				confidence = prediction.Top[0].Probability
			}
			predicted = append(predicted, prediction.Predicted)
			_ = writer.Write([]string{
				strconv.Itoa(len(predicted)),
				prediction.Predicted,
				strconv.FormatFloat(confidence, 'f', 4, 64),
			})
		}
		labels = append(labels, batchLabels...)
		return nil
	})
	switch {
	case errors.Is(err, errBatchAborted):
		return
	case err != nil:
		fmt.Fprintf(c.out, "%s Error reading CSV: %v\n", c.red("✗"), err)
		return
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		fmt.Fprintf(c.out, "%s Error writing predictions: %v\n", c.red("✗"), err)
		return
	}
	fmt.Fprintf(c.out, "Predicted %d samples\n", len(predicted))
	fmt.Fprintf(c.out, "%s Predictions saved to %s\n", c.green("✓"), outputFile)

	if len(labels) > 0 {
		metrics, err := evaluation.CalculateMetrics(labels, predicted, c.predictor.Classes())
		if err != nil {
			fmt.Fprintf(c.out, "%s %v\n", c.red("✗"), err)
			return
		}
		fmt.Fprintf(c.out, "Accuracy: %.4f | Macro F1: %.4f\n", metrics.Accuracy, metrics.MacroF1)
	}
}

func (c *Commander) showHistory(ctx context.Context, args []string) {
	if c.cfg.Output.History == "" {
		fmt.Fprintln(c.out, c.red("Run history is disabled (output.history is empty)"))
		return
	}
	limit := 10
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			limit = n
		}
	}

	store, err := runlog.Open(c.cfg.Output.History)
	if err != nil {
		fmt.Fprintf(c.out, "%s %v\n", c.red("✗"), err)
		return
	}
	defer store.Close()

	runs, err := store.Recent(ctx, limit)
	if err != nil {
		fmt.Fprintf(c.out, "%s %v\n", c.red("✗"), err)
		return
	}
	if len(runs) == 0 {
		fmt.Fprintln(c.out, "No training runs recorded yet")
		return
	}

	fmt.Fprintln(c.out, c.blue("\nTraining History:"))
	fmt.Fprintln(c.out, strings.Repeat("─", 78))
	fmt.Fprintf(c.out, "%-20s %-8s %-6s %-10s %-10s %-10s\n", "Time", "Algo", "Trees", "Accuracy", "F1", "Duration")
	fmt.Fprintln(c.out, strings.Repeat("─", 78))
	for _, r := range runs {
		fmt.Fprintf(c.out, "%-20s %-8s %-6d %-10.4f %-10.4f %-10s\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"), r.Algorithm, r.NTrees, r.Accuracy, r.F1, r.Duration)
	}
}
