// Package experiment sweeps pipeline hyperparameters and ranks them on the
// held-out split and, optionally, k-fold cross-validation.
package experiment

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"drugclassifier/internal/evaluation"
	"drugclassifier/internal/models"
	"drugclassifier/internal/pipeline"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/experiment.yaml"

type ExperimentConfig struct {
	Experiment struct {
		Scaling         []string `yaml:"scaling"`
		CrossValidation struct {
			Folds int `yaml:"folds"`
		} `yaml:"cross_validation"`
		Algorithms struct {
			KNN struct {
				K        []int    `yaml:"k"`
				Distance []string `yaml:"distance"`
			} `yaml:"knn"`
			NaiveBayes struct {
				VarSmoothing []float64 `yaml:"var_smoothing"`
			} `yaml:"naive_bayes"`
			DecisionTree struct {
				MaxDepth        []int `yaml:"max_depth"`
				MinSamplesSplit []int `yaml:"min_samples_split"`
			} `yaml:"decision_tree"`
			RandomForest struct {
				NTrees   []int `yaml:"n_trees"`
				MaxDepth []int `yaml:"max_depth"`
			} `yaml:"random_forest"`
		} `yaml:"algorithms"`
	} `yaml:"experiment"`
}

// LoadConfig reads a sweep definition. A missing file yields a small default
// grid around the production settings.
func LoadConfig(path string) (*ExperimentConfig, error) {
	cfg := &ExperimentConfig{}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		e := &cfg.Experiment
		e.Scaling = []string{"standard"}
		e.CrossValidation.Folds = 5
		e.Algorithms.DecisionTree.MaxDepth = []int{0}
		e.Algorithms.DecisionTree.MinSamplesSplit = []int{2}
		e.Algorithms.RandomForest.NTrees = []int{10, 100}
		e.Algorithms.RandomForest.MaxDepth = []int{0}
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read experiment config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse experiment config %s: %w", path, err)
	}
	if len(cfg.Experiment.Scaling) == 0 {
		cfg.Experiment.Scaling = []string{"standard"}
	}
	return cfg, nil
}

type ExperimentResult struct {
	Algorithm      string
	Parameters     string
	Scaling        string
	Accuracy       float64
	Precision      float64
	Recall         float64
	F1Score        float64
	CVMean         float64
	CVStd          float64
	TrainingTimeMs int64
}

type ExperimentRunner struct {
	Config *ExperimentConfig
	Seed   int64
	logger *zap.Logger
}

func NewRunner(cfg *ExperimentConfig, seed int64, logger *zap.Logger) *ExperimentRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExperimentRunner{Config: cfg, Seed: seed, logger: logger}
}

// Candidates expands the grid into pipeline configurations in a stable order.
func (r *ExperimentRunner) Candidates() []pipeline.Config {
	var out []pipeline.Config
	algos := r.Config.Experiment.Algorithms
	for _, scaling := range r.Config.Experiment.Scaling {
		for _, depth := range algos.DecisionTree.MaxDepth {
			for _, minSplit := range algos.DecisionTree.MinSamplesSplit {
				pc := pipeline.DefaultConfig()
				pc.ScaleType = scaling
				pc.Model = models.ModelConfig{Algorithm: "tree", MaxDepth: depth, MinSplit: minSplit, Seed: r.Seed}
				out = append(out, pc)
			}
		}
		for _, k := range algos.KNN.K {
			for _, dist := range algos.KNN.Distance {
				pc := pipeline.DefaultConfig()
				pc.ScaleType = scaling
				pc.Model = models.ModelConfig{Algorithm: "knn", K: k, Distance: dist}
				out = append(out, pc)
			}
		}
		for _, smoothing := range algos.NaiveBayes.VarSmoothing {
			pc := pipeline.DefaultConfig()
			pc.ScaleType = scaling
			pc.Model = models.ModelConfig{Algorithm: "bayes", VarSmoothing: smoothing}
			out = append(out, pc)
		}
		for _, nTrees := range algos.RandomForest.NTrees {
			for _, depth := range algos.RandomForest.MaxDepth {
				pc := pipeline.DefaultConfig()
				pc.ScaleType = scaling
				pc.Model = models.ModelConfig{Algorithm: "forest", NTrees: nTrees, MaxDepth: depth, MinSplit: 2, Seed: r.Seed}
				out = append(out, pc)
			}
		}
	}
	return out
}

// RunAllExperiments evaluates every candidate on split and returns results
// best first (held-out accuracy, then macro F1).
func (r *ExperimentRunner) RunAllExperiments(ctx context.Context, split *evaluation.Split) ([]ExperimentResult, error) {
	candidates := r.Candidates()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("experiment grid is empty")
	}

	results := make([]ExperimentResult, 0, len(candidates))
	for _, pc := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := r.evaluate(ctx, pc, split)
		if err != nil {
			return nil, err
		}
		r.logger.Info("experiment finished",
			zap.String("algorithm", result.Algorithm),
			zap.String("params", result.Parameters),
			zap.Float64("accuracy", result.Accuracy),
			zap.Float64("cv_mean", result.CVMean))
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Accuracy != results[j].Accuracy {
			return results[i].Accuracy > results[j].Accuracy
		}
		return results[i].F1Score > results[j].F1Score
	})
	return results, nil
}

func (r *ExperimentRunner) evaluate(ctx context.Context, pc pipeline.Config, split *evaluation.Split) (ExperimentResult, error) {
	pipe, err := pipeline.New(pc)
	if err != nil {
		return ExperimentResult{}, err
	}

	result := ExperimentResult{
		Algorithm:  pipe.Model.GetName(),
		Parameters: fmt.Sprintf("%v", pipe.Params()),
		Scaling:    pc.ScaleType,
	}

	start := time.Now()
	if err := pipe.FitContext(ctx, split.TrainRows, split.TrainLabels); err != nil {
		return ExperimentResult{}, fmt.Errorf("%s: %w", result.Parameters, err)
	}
	result.TrainingTimeMs = time.Since(start).Milliseconds()

	predictions, err := pipe.Predict(split.TestRows)
	if err != nil {
		return ExperimentResult{}, err
	}
	classes, _ := pipe.Classes()
	metrics, err := evaluation.CalculateMetrics(split.TestLabels, predictions, classes)
	if err != nil {
		return ExperimentResult{}, err
	}
	result.Accuracy = metrics.Accuracy
	result.Precision = metrics.MacroPrecision
	result.Recall = metrics.MacroRecall
	result.F1Score = metrics.MacroF1

	if folds := r.Config.Experiment.CrossValidation.Folds; folds > 1 {
		cv := evaluation.NewCrossValidator(folds, r.Seed)
		cvResult, err := cv.CrossValidate(ctx, split.TrainRows, split.TrainLabels, func() (evaluation.Estimator, error) {
			return pipeline.New(pc)
		})
		if err != nil {
			return ExperimentResult{}, fmt.Errorf("cross-validation of %s: %w", result.Parameters, err)
		}
		result.CVMean = cvResult.Mean
		result.CVStd = cvResult.Std
	}

	return result, nil
}

func ExportResults(results []ExperimentResult, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	_ = writer.Write([]string{
		"Algorithm", "Parameters", "Scaling", "Accuracy", "Precision", "Recall", "F1Score",
		"CVMean", "CVStd", "TrainingTimeMs",
	})

	for _, result := range results {
		_ = writer.Write([]string{
			result.Algorithm,
			result.Parameters,
			result.Scaling,
			fmt.Sprintf("%.4f", result.Accuracy),
			fmt.Sprintf("%.4f", result.Precision),
			fmt.Sprintf("%.4f", result.Recall),
			fmt.Sprintf("%.4f", result.F1Score),
			fmt.Sprintf("%.4f", result.CVMean),
			fmt.Sprintf("%.4f", result.CVStd),
			strconv.FormatInt(result.TrainingTimeMs, 10),
		})
	}

	writer.Flush()
	return writer.Error()
}
