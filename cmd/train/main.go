package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"drugclassifier/internal/config"
	"drugclassifier/internal/experiment"
	"drugclassifier/internal/logging"
	"drugclassifier/internal/trainer"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile     string
	dataFile       string
	outputFile     string
	nTrees         int
	cvFolds        int
	logLevel       string
	verbose        bool
	experimentFile string
	sweepResults   string
)

var rootCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the drug classification pipeline",
	Long: `train fits the preprocessing + random forest pipeline on the drug dataset,
writes Results/metrics.txt and the confusion matrix image, and serializes the
fitted pipeline for the demo app.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, err := trainer.New(cfg, logger, cmd.OutOrStdout(), trainer.WithVerbose(verbose)).Run(ctx)
		if err != nil {
			logger.Error("training failed", zap.Error(err))
			return err
		}

		logger.Info("training completed",
			zap.String("model", result.ModelPath),
			zap.String("metrics", result.MetricsPath),
			zap.String("confusion_matrix", result.ImagePath),
			zap.String("run_id", result.RunID))
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Rank hyperparameter candidates on the held-out split",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		expCfg, err := experiment.LoadConfig(experimentFile)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		results, err := trainer.New(cfg, logger, cmd.OutOrStdout()).Sweep(ctx, expCfg, sweepResults)
		if err != nil {
			logger.Error("sweep failed", zap.Error(err))
			return err
		}
		logger.Info("sweep completed", zap.Int("candidates", len(results)))
		return nil
	},
}

// setup loads the config, applies changed flags and builds the logger.
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("data") {
		cfg.Data.Path = dataFile
	}
	if flags.Changed("output") {
		cfg.Output.Model = outputFile
	}
	if flags.Changed("n-trees") {
		cfg.Model.NTrees = nTrees
	}
	if flags.Changed("cv-folds") {
		cfg.Split.CVFolds = cvFolds
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development || verbose)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", config.DefaultPath, "Path to configuration file")
	pf.StringVarP(&dataFile, "data", "d", "", "Path to training data CSV file")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Human-readable console logs and a full metrics breakdown")

	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Path of the serialized pipeline")
	rootCmd.Flags().IntVar(&nTrees, "n-trees", 100, "Number of trees for the random forest")
	rootCmd.Flags().IntVar(&cvFolds, "cv-folds", 0, "Cross-validation folds (0 disables)")

	sweepCmd.Flags().StringVarP(&experimentFile, "experiment", "e", experiment.DefaultPath, "Path to the experiment grid")
	sweepCmd.Flags().StringVar(&sweepResults, "results", "Results/experiments.csv", "CSV the ranking is written to")
	rootCmd.AddCommand(sweepCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
