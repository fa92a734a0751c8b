package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"drugclassifier/internal/config"
	"drugclassifier/internal/deploy"
	"drugclassifier/internal/logging"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	strategy   string
	stagingDir string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Publish the demo app and model to a Hugging Face Space",
	Long: `deploy reads the access token from $HF and the Space id from $HF_REPO,
stages App/ and Model/ into hf_space/ and uploads the folder as one commit.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("strategy") {
			cfg.Deploy.Strategy = strategy
		}
		if flags.Changed("staging-dir") {
			cfg.Deploy.StagingDir = stagingDir
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development || verbose)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		info, err := deploy.New(cfg.Deploy, logger).Run(ctx)
		if err != nil {
			logger.Error("deployment failed", zap.Error(err))
			return err
		}

		out := cmd.OutOrStdout()
		deploy.Report(out, info)
		color.New(color.FgGreen).Fprintln(out, "✅ Deployment complete!")
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configFile, "config", "c", config.DefaultPath, "Path to configuration file")
	rootCmd.Flags().StringVarP(&strategy, "strategy", "s", deploy.StrategyUpload, "Upload strategy (upload|git)")
	rootCmd.Flags().StringVar(&stagingDir, "staging-dir", "", "Directory the files are staged in")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Human-readable console logs")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if deploy.IsMissingEnv(err) {
			color.Red(deploy.MissingEnvMessage)
		} else {
			color.Red("❌ Deployment failed: %v", err)
		}
		os.Exit(1)
	}
}
