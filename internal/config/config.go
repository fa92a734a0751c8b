// Package config loads the YAML configuration shared by the trainer, the
// demo server and the deployer.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type Config struct {
	Data    DataConfig    `yaml:"data"`
	Split   SplitConfig   `yaml:"split"`
	Model   ModelConfig   `yaml:"model"`
	Output  OutputConfig  `yaml:"output"`
	Server  ServerConfig  `yaml:"server"`
	Deploy  DeployConfig  `yaml:"deploy"`
	Logging LoggingConfig `yaml:"logging"`
}

type DataConfig struct {
	Path        string `yaml:"path"`
	ShuffleSeed int64  `yaml:"shuffle_seed"`
}

type SplitConfig struct {
	TestSize float64 `yaml:"test_size"`
	Seed     int64   `yaml:"seed"`
	CVFolds  int     `yaml:"cv_folds"`
}

type ModelConfig struct {
	Algorithm       string `yaml:"algorithm"`
	NTrees          int    `yaml:"n_trees"`
	MaxDepth        int    `yaml:"max_depth"`
	MinSamplesSplit int    `yaml:"min_samples_split"`
	Seed            int64  `yaml:"seed"`
	Workers         int    `yaml:"workers"`
	Scaling         string `yaml:"scaling"`
}

type OutputConfig struct {
	Model           string `yaml:"model"`
	Metrics         string `yaml:"metrics"`
	ConfusionMatrix string `yaml:"confusion_matrix"`
	History         string `yaml:"history"`
}

type ServerConfig struct {
	Addr  string `yaml:"addr"`
	Model string `yaml:"model"`
	TopK  int    `yaml:"top_k"`
}

type StageSource struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type DeployConfig struct {
	TokenEnv      string        `yaml:"token_env"`
	RepoEnv       string        `yaml:"repo_env"`
	Endpoint      string        `yaml:"endpoint"`
	RepoType      string        `yaml:"repo_type"`
	Revision      string        `yaml:"revision"`
	StagingDir    string        `yaml:"staging_dir"`
	CommitMessage string        `yaml:"commit_message"`
	Strategy      string        `yaml:"strategy"`
	Sources       []StageSource `yaml:"sources"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Default() *Config {
	return &Config{
		Data:  DataConfig{Path: "Data/drug.csv", ShuffleSeed: 1},
		Split: SplitConfig{TestSize: 0.3, Seed: 125},
		Model: ModelConfig{
			Algorithm:       "forest",
			NTrees:          100,
			MinSamplesSplit: 2,
			Seed:            125,
			Scaling:         "standard",
		},
		Output: OutputConfig{
			Model:           "Model/drug_pipeline.gob",
			Metrics:         "Results/metrics.txt",
			ConfusionMatrix: "Results/model_results.png",
		},
		Server: ServerConfig{Addr: ":7860", Model: "Model/drug_pipeline.gob", TopK: 5},
		Deploy: DeployConfig{
			TokenEnv:      "HF",
			RepoEnv:       "HF_REPO",
			Endpoint:      "https://huggingface.co",
			RepoType:      "space",
			Revision:      "main",
			StagingDir:    "hf_space",
			CommitMessage: "Update app + model",
			Strategy:      "upload",
			Sources: []StageSource{
				{From: "App", To: "."},
				{From: "Model", To: "Model"},
			},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults; a
// malformed one is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DRUGCLF_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DRUGCLF_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("DRUGCLF_MODEL"); v != "" {
		c.Server.Model = v
	}
}

func (c *Config) Validate() error {
	if c.Split.TestSize <= 0 || c.Split.TestSize >= 1 {
		return fmt.Errorf("split.test_size must be in (0, 1), got %v", c.Split.TestSize)
	}
	if c.Split.CVFolds == 1 || c.Split.CVFolds < 0 {
		return fmt.Errorf("split.cv_folds must be 0 (disabled) or at least 2, got %d", c.Split.CVFolds)
	}
	switch c.Model.Algorithm {
	case "forest", "tree", "knn", "bayes":
	default:
		return fmt.Errorf("model.algorithm must be forest, tree, knn or bayes, got %q", c.Model.Algorithm)
	}
	if c.Model.Algorithm == "forest" && c.Model.NTrees <= 0 {
		return fmt.Errorf("model.n_trees must be positive, got %d", c.Model.NTrees)
	}
	switch c.Deploy.Strategy {
	case "upload", "git":
	default:
		return fmt.Errorf("deploy.strategy must be upload or git, got %q", c.Deploy.Strategy)
	}
	return nil
}
