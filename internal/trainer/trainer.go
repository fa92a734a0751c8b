// Package trainer runs one end-to-end training job: load, split, fit,
// evaluate, report and serialize.
package trainer

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"drugclassifier/internal/config"
	"drugclassifier/internal/data"
	"drugclassifier/internal/evaluation"
	"drugclassifier/internal/experiment"
	"drugclassifier/internal/models"
	"drugclassifier/internal/persistence"
	"drugclassifier/internal/pipeline"
	"drugclassifier/internal/report"
	"drugclassifier/internal/runlog"

	"go.uber.org/zap"
)

type Result struct {
	Metrics      *evaluation.ClassificationMetrics
	CV           *evaluation.CVResult
	Classes      []string
	TrainSize    int
	TestSize     int
	TrainingTime time.Duration
	ModelPath    string
	MetadataPath string
	MetricsPath  string
	ImagePath    string
	RunID        string
}

// ProgressFunc receives the completed fraction of a run, between 0 and 1,
// after each stage.
type ProgressFunc func(stage string, fraction float64)

type Trainer struct {
	cfg      *config.Config
	logger   *zap.Logger
	out      io.Writer
	verbose  bool
	progress ProgressFunc
}

type Option func(*Trainer)

// WithVerbose adds the full metrics breakdown to the console summary.
func WithVerbose(verbose bool) Option {
	return func(t *Trainer) { t.verbose = verbose }
}

func WithProgress(fn ProgressFunc) Option {
	return func(t *Trainer) { t.progress = fn }
}

// New returns a trainer. Console summaries go to out; structured progress
// goes to logger.
func New(cfg *config.Config, logger *zap.Logger, out io.Writer, opts ...Option) *Trainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	t := &Trainer{cfg: cfg, logger: logger, out: out}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Stage fractions reported through ProgressFunc.
const (
	progressSplit     = 0.2
	progressFitted    = 0.6
	progressEvaluated = 0.8
	progressValidated = 0.9
	progressSaved     = 1.0
)

func (t *Trainer) advance(stage string, fraction float64) {
	if t.progress != nil {
		t.progress(stage, fraction)
	}
}

// MetadataPath is the human-readable sidecar written next to an artifact:
// the artifact path with its extension replaced by .txt.
func MetadataPath(artifact string) string {
	return strings.TrimSuffix(artifact, filepath.Ext(artifact)) + ".txt"
}

func (t *Trainer) pipelineConfig() pipeline.Config {
	pc := pipeline.DefaultConfig()
	pc.ScaleType = t.cfg.Model.Scaling
	pc.Model = models.ModelConfig{
		Algorithm:  t.cfg.Model.Algorithm,
		NTrees:     t.cfg.Model.NTrees,
		MaxDepth:   t.cfg.Model.MaxDepth,
		MinSplit:   t.cfg.Model.MinSamplesSplit,
		Seed:       t.cfg.Model.Seed,
		MaxWorkers: t.cfg.Model.Workers,
	}
	return pc
}

func (t *Trainer) Run(ctx context.Context) (*Result, error) {
	cfg := t.cfg
	log := t.logger.With(zap.String("dataset", cfg.Data.Path))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, labels, split, err := t.loadSplit(log)
	if err != nil {
		return nil, err
	}
	t.advance("split", progressSplit)

	pipe, err := pipeline.New(t.pipelineConfig())
	if err != nil {
		return nil, err
	}

	log.Info("fitting pipeline", zap.String("model", pipe.Model.GetName()), zap.Any("params", pipe.Params()))
	start := time.Now()
	if err := pipe.FitContext(ctx, split.TrainRows, split.TrainLabels); err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}
	trainingTime := time.Since(start)
	t.advance("fit", progressFitted)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	predictions, err := pipe.Predict(split.TestRows)
	if err != nil {
		return nil, fmt.Errorf("prediction on held-out set failed: %w", err)
	}

	// Confusion matrix axes follow the fitted classes; fall back to the
	// labels actually observed when the pipeline cannot report them.
	classes, ok := pipe.Classes()
	if !ok {
		classes = evaluation.ObservedLabels(split.TestLabels, predictions)
	}

	metrics, err := evaluation.CalculateMetrics(split.TestLabels, predictions, classes)
	if err != nil {
		return nil, fmt.Errorf("evaluation failed: %w", err)
	}
	fmt.Fprintln(t.out, report.FormatSummary(metrics.Accuracy, metrics.MacroF1))
	if t.verbose {
		fmt.Fprint(t.out, metrics.FormatMetrics())
	}
	log.Info("evaluated", zap.Float64("accuracy", metrics.Accuracy), zap.Float64("macro_f1", metrics.MacroF1),
		zap.Duration("training_time", trainingTime))

	if err := report.WriteMetrics(cfg.Output.Metrics, metrics.Accuracy, metrics.MacroF1); err != nil {
		return nil, err
	}
	if err := report.PlotConfusionMatrix(cfg.Output.ConfusionMatrix, metrics.ConfusionMatrix, classes); err != nil {
		return nil, err
	}

	result := &Result{
		Metrics:      metrics,
		Classes:      classes,
		TrainSize:    len(split.TrainRows),
		TestSize:     len(split.TestRows),
		TrainingTime: trainingTime,
		ModelPath:    cfg.Output.Model,
		MetadataPath: MetadataPath(cfg.Output.Model),
		MetricsPath:  cfg.Output.Metrics,
		ImagePath:    cfg.Output.ConfusionMatrix,
	}
	t.advance("evaluate", progressEvaluated)

	if cfg.Split.CVFolds > 1 {
		cv := evaluation.NewCrossValidator(cfg.Split.CVFolds, cfg.Split.Seed)
		result.CV, err = cv.CrossValidate(ctx, rows, labels, func() (evaluation.Estimator, error) {
			return pipeline.New(t.pipelineConfig())
		})
		if err != nil {
			return nil, fmt.Errorf("cross-validation failed: %w", err)
		}
		fmt.Fprintf(t.out, "CV accuracy: %.4f +/- %.4f\n", result.CV.Mean, result.CV.Std)
		log.Info("cross-validated", zap.Int("folds", cfg.Split.CVFolds), zap.Float64s("scores", result.CV.Scores))
		t.advance("cross-validate", progressValidated)
	}

	bundle := persistence.NewBundle(pipe)
	bundle.Metadata.Dataset = cfg.Data.Path
	bundle.Metadata.Accuracy = metrics.Accuracy
	bundle.Metadata.F1Score = metrics.MacroF1
	bundle.Metadata.TrainingTime = trainingTime
	bundle.Metadata.TrainSize = result.TrainSize
	bundle.Metadata.TestSize = result.TestSize
	if err := bundle.Save(cfg.Output.Model); err != nil {
		return nil, fmt.Errorf("failed to save model: %w", err)
	}
	fmt.Fprintf(t.out, "Saved model to %s\n", cfg.Output.Model)
	if err := bundle.SaveMetadata(result.MetadataPath); err != nil {
		return nil, fmt.Errorf("failed to save model metadata: %w", err)
	}
	log.Info("saved model", zap.String("path", cfg.Output.Model), zap.String("metadata", result.MetadataPath))
	t.advance("save", progressSaved)

	if cfg.Output.History != "" {
		id, err := t.record(ctx, result)
		if err != nil {
			log.Warn("failed to record run history", zap.Error(err))
		} else {
			result.RunID = id
		}
	}

	return result, nil
}

// loadSplit reads, validates, shuffles and splits the configured dataset.
func (t *Trainer) loadSplit(log *zap.Logger) ([][]string, []string, *evaluation.Split, error) {
	cfg := t.cfg
	log.Info("loading dataset")
	ds, err := data.NewCSVReader(cfg.Data.Path, data.DrugSchema()).LoadDataset()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load data: %w", err)
	}

	validator := data.NewDataValidator()
	if err := validator.ValidateDataset(ds); err != nil {
		return nil, nil, nil, fmt.Errorf("data validation failed: %w", err)
	}
	if err := validator.ValidateLabels(ds.Labels); err != nil {
		return nil, nil, nil, fmt.Errorf("data validation failed: %w", err)
	}
	log.Info("dataset loaded", zap.Int("samples", ds.Len()), zap.Strings("features", ds.Header))

	rows, labels := evaluation.Shuffle(ds.Rows, ds.Labels, cfg.Data.ShuffleSeed)
	split, err := evaluation.NewTrainTestSplitter(cfg.Split.TestSize, cfg.Split.Seed, true).Split(rows, labels)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to split data: %w", err)
	}
	log.Info("split dataset",
		zap.Int("train", len(split.TrainRows)),
		zap.Int("test", len(split.TestRows)),
		zap.Int64("seed", cfg.Split.Seed))
	return rows, labels, split, nil
}

// Sweep evaluates every candidate of the experiment grid on the same split
// Run uses and writes the ranking to csvPath when it is set.
func (t *Trainer) Sweep(ctx context.Context, expCfg *experiment.ExperimentConfig, csvPath string) ([]experiment.ExperimentResult, error) {
	log := t.logger.With(zap.String("dataset", t.cfg.Data.Path))
	_, _, split, err := t.loadSplit(log)
	if err != nil {
		return nil, err
	}

	results, err := experiment.NewRunner(expCfg, t.cfg.Model.Seed, log).RunAllExperiments(ctx, split)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(t.out, "%-14s %-8s %-8s %-8s %s\n", "Algorithm", "Acc", "F1", "CV", "Parameters")
	for _, r := range results {
		fmt.Fprintf(t.out, "%-14s %-8.4f %-8.4f %-8.4f %s (%s)\n", r.Algorithm, r.Accuracy, r.F1Score, r.CVMean, r.Parameters, r.Scaling)
	}

	if csvPath != "" {
		if err := experiment.ExportResults(results, csvPath); err != nil {
			return nil, fmt.Errorf("failed to export sweep results: %w", err)
		}
		fmt.Fprintf(t.out, "Saved sweep results to %s\n", csvPath)
	}
	return results, nil
}

func (t *Trainer) record(ctx context.Context, result *Result) (string, error) {
	store, err := runlog.Open(t.cfg.Output.History)
	if err != nil {
		return "", err
	}
	defer store.Close()

	run := &runlog.Run{
		Dataset:   t.cfg.Data.Path,
		Algorithm: t.cfg.Model.Algorithm,
		NTrees:    t.cfg.Model.NTrees,
		Seed:      t.cfg.Model.Seed,
		TrainSize: result.TrainSize,
		TestSize:  result.TestSize,
		Accuracy:  result.Metrics.Accuracy,
		F1:        result.Metrics.MacroF1,
		Artifact:  result.ModelPath,
		Duration:  result.TrainingTime,
	}
	if err := store.Record(ctx, run); err != nil {
		return "", err
	}
	return run.ID, nil
}
