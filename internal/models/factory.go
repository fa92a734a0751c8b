package models

import (
	"fmt"
)

type ModelConfig struct {
	Algorithm    string
	MaxDepth     int
	MinSplit     int
	NTrees       int
	Seed         int64
	MaxWorkers   int
	K            int
	Distance     string
	VarSmoothing float64
}

func CreateModel(config ModelConfig) (Model, error) {
	if config.MinSplit <= 0 {
		config.MinSplit = 2
	}

	switch config.Algorithm {
	case "tree":
		tree := NewDecisionTree(config.MaxDepth, config.MinSplit)
		tree.Seed = config.Seed
		return tree, nil

	case "forest", "":
		if config.NTrees <= 0 {
			config.NTrees = 100
		}
		forest := NewRandomForest(config.NTrees, config.MaxDepth, config.MinSplit, config.Seed)
		if config.MaxWorkers > 0 {
			forest.MaxWorkers = config.MaxWorkers
		}
		return forest, nil

	case "knn":
		return NewKNN(config.K, config.Distance), nil

	case "bayes":
		return NewNaiveBayes(config.VarSmoothing), nil

	default:
		return nil, fmt.Errorf("unknown algorithm: %s", config.Algorithm)
	}
}

// DefaultConfig mirrors the reference training setup: 100 unbounded trees
// seeded with 125. knn and bayes are baselines for the experiment sweep.
func DefaultConfig(algorithm string) ModelConfig {
	config := ModelConfig{Algorithm: algorithm, Seed: 125, MinSplit: 2}

	switch algorithm {
	case "tree":
		config.MaxDepth = 0
	case "forest":
		config.NTrees = 100
		config.MaxDepth = 0
	case "knn":
		config.K = 5
		config.Distance = "euclidean"
	case "bayes":
		config.VarSmoothing = 1e-9
	}

	return config
}
