package trainer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"drugclassifier/internal/config"
	"drugclassifier/internal/data"
	"drugclassifier/internal/experiment"
	"drugclassifier/internal/predictor"
	"drugclassifier/internal/runlog"
	"drugclassifier/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Data.Path = testutil.WriteDrugCSV(t, dir, 200, 7)
	cfg.Model.NTrees = 10
	cfg.Output.Model = filepath.Join(dir, "Model", "drug_pipeline.gob")
	cfg.Output.Metrics = filepath.Join(dir, "Results", "metrics.txt")
	cfg.Output.ConfusionMatrix = filepath.Join(dir, "Results", "model_results.png")
	cfg.Output.History = filepath.Join(dir, "Results", "history.db")
	return cfg
}

func TestRun(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer

	result, err := New(cfg, nil, &out).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 140, result.TrainSize)
	assert.Equal(t, 60, result.TestSize)
	assert.Equal(t, []string{"DrugY", "drugA", "drugB", "drugC", "drugX"}, result.Classes)
	assert.Greater(t, result.Metrics.Accuracy, 0.8)
	assert.Equal(t, 60, result.Metrics.NumSamples)
	assert.Nil(t, result.CV)
	assert.NotEmpty(t, result.RunID)

	metrics, err := os.ReadFile(cfg.Output.Metrics)
	require.NoError(t, err)
	assert.Regexp(t, `^Accuracy = [01]\.\d{1,4}, F1 Score = [01]\.\d{1,4}$`, string(metrics))

	png, err := os.ReadFile(cfg.Output.ConfusionMatrix)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	assert.Contains(t, out.String(), "Accuracy: ")
	assert.Contains(t, out.String(), "Saved model to "+cfg.Output.Model)

	store, err := runlog.Open(cfg.Output.History)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, result.RunID, runs[0].ID)
	assert.Equal(t, 10, runs[0].NTrees)
	assert.Equal(t, result.Metrics.Accuracy, runs[0].Accuracy)
}

func TestRunWritesMetadataSidecar(t *testing.T) {
	cfg := testConfig(t)
	result, err := New(cfg, nil, nil).Run(context.Background())
	require.NoError(t, err)

	want := filepath.Join(filepath.Dir(cfg.Output.Model), "drug_pipeline.txt")
	assert.Equal(t, want, result.MetadataPath)
	meta, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Contains(t, string(meta), "Model: RandomForest\n")
	assert.Contains(t, string(meta), "Dataset: "+cfg.Data.Path+"\n")
	assert.Contains(t, string(meta), "Classes: [DrugY drugA drugB drugC drugX]\n")
	assert.Contains(t, string(meta), "Training Time: ")
}

func TestMetadataPath(t *testing.T) {
	assert.Equal(t, "Model/drug_pipeline.txt", MetadataPath("Model/drug_pipeline.gob"))
	assert.Equal(t, "model.txt", MetadataPath("model"))
}

func TestRunVerbosePrintsBreakdown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.History = ""

	var quiet, verbose bytes.Buffer
	_, err := New(cfg, nil, &quiet).Run(context.Background())
	require.NoError(t, err)
	_, err = New(cfg, nil, &verbose, WithVerbose(true)).Run(context.Background())
	require.NoError(t, err)

	assert.NotContains(t, quiet.String(), "Macro Avg")
	assert.Contains(t, verbose.String(), "Balanced Accuracy: ")
	assert.Contains(t, verbose.String(), "Macro Avg - Precision: ")
	assert.Contains(t, verbose.String(), "Weighted Avg - Precision: ")
}

func TestRunReportsProgress(t *testing.T) {
	cfg := testConfig(t)
	cfg.Split.CVFolds = 2

	var stages []string
	var fractions []float64
	_, err := New(cfg, nil, nil, WithProgress(func(stage string, fraction float64) {
		stages = append(stages, stage)
		fractions = append(fractions, fraction)
	})).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"split", "fit", "evaluate", "cross-validate", "save"}, stages)
	assert.IsIncreasing(t, fractions)
	assert.Equal(t, 1.0, fractions[len(fractions)-1])
}

func TestRunIsReproducible(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.History = ""

	first, err := New(cfg, nil, nil).Run(context.Background())
	require.NoError(t, err)
	firstMetrics, err := os.ReadFile(cfg.Output.Metrics)
	require.NoError(t, err)

	cfg.Model.Workers = 1
	second, err := New(cfg, nil, nil).Run(context.Background())
	require.NoError(t, err)
	secondMetrics, err := os.ReadFile(cfg.Output.Metrics)
	require.NoError(t, err)

	assert.Equal(t, first.Metrics.ConfusionMatrix, second.Metrics.ConfusionMatrix)
	assert.Equal(t, string(firstMetrics), string(secondMetrics))
	assert.Empty(t, second.RunID)
}

func TestRunArtifactServesPredictions(t *testing.T) {
	cfg := testConfig(t)
	_, err := New(cfg, nil, nil).Run(context.Background())
	require.NoError(t, err)

	pred, err := predictor.Load(cfg.Output.Model, 5)
	require.NoError(t, err)
	assert.Equal(t, cfg.Data.Path, pred.Metadata().Dataset)
	assert.Equal(t, 140, pred.Metadata().TrainSize)

	for _, ex := range data.Examples() {
		got, err := pred.Predict(context.Background(), ex)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(got.Label(), "Predicted Drug: "), got.Label())
		assert.Contains(t, pred.Classes(), got.Predicted)
	}
}

func TestRunWithCrossValidation(t *testing.T) {
	cfg := testConfig(t)
	cfg.Split.CVFolds = 3
	var out bytes.Buffer

	result, err := New(cfg, nil, &out).Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result.CV)
	assert.Len(t, result.CV.Scores, 3)
	assert.Greater(t, result.CV.Mean, 0.7)
	assert.Contains(t, out.String(), "CV accuracy: ")
}

func TestRunErrors(t *testing.T) {
	t.Run("missing data", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Data.Path = filepath.Join(t.TempDir(), "absent.csv")
		_, err := New(cfg, nil, nil).Run(context.Background())
		assert.ErrorContains(t, err, "failed to load data")
		assert.NoFileExists(t, cfg.Output.Model)
	})

	t.Run("bad header", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Data.Path = testutil.WriteFile(t, t.TempDir(), "drug.csv", "Age,Sex,Drug\n30,M,DrugY\n")
		_, err := New(cfg, nil, nil).Run(context.Background())
		assert.ErrorIs(t, err, data.ErrMalformedHeader)
	})

	t.Run("cancelled", func(t *testing.T) {
		cfg := testConfig(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		var stages []string
		_, err := New(cfg, nil, nil, WithProgress(func(stage string, _ float64) {
			stages = append(stages, stage)
		})).Run(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NoFileExists(t, cfg.Output.Model)
		assert.Empty(t, stages)
	})
}

func TestSweep(t *testing.T) {
	cfg := testConfig(t)
	expCfg := &experiment.ExperimentConfig{}
	e := &expCfg.Experiment
	e.Scaling = []string{"standard"}
	e.Algorithms.DecisionTree.MaxDepth = []int{0, 2}
	e.Algorithms.DecisionTree.MinSamplesSplit = []int{2}
	e.Algorithms.NaiveBayes.VarSmoothing = []float64{1e-9}

	csvPath := filepath.Join(t.TempDir(), "Results", "experiments.csv")
	var out bytes.Buffer
	results, err := New(cfg, nil, &out).Sweep(context.Background(), expCfg, csvPath)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.GreaterOrEqual(t, results[0].Accuracy, results[2].Accuracy)

	assert.FileExists(t, csvPath)
	assert.Contains(t, out.String(), "Algorithm")
	assert.Contains(t, out.String(), "Saved sweep results to "+csvPath)
}
