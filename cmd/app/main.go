package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"drugclassifier/internal/config"
	"drugclassifier/internal/logging"
	"drugclassifier/internal/predictor"
	"drugclassifier/internal/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	modelFile  string
	addr       string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "app",
	Short: "Serve the drug classification demo",
	Long: `app loads the serialized pipeline once and serves an interactive form
plus a JSON prediction endpoint.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("model") {
			cfg.Server.Model = modelFile
		}
		if flags.Changed("addr") {
			cfg.Server.Addr = addr
		}

		logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development || verbose)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		pred, err := predictor.Load(cfg.Server.Model, cfg.Server.TopK)
		if err != nil {
			logger.Fatal("cannot start without a model", zap.String("model", cfg.Server.Model), zap.Error(err))
		}
		logger.Info("model loaded",
			zap.String("model", cfg.Server.Model),
			zap.Strings("classes", pred.Classes()),
			zap.Float64("accuracy", pred.Metadata().Accuracy))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		e := server.New(pred, logger)
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := server.Run(ctx, e, cfg.Server.Addr); err != nil {
			return err
		}
		logger.Info("server stopped")
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configFile, "config", "c", config.DefaultPath, "Path to configuration file")
	rootCmd.Flags().StringVarP(&modelFile, "model", "m", "", "Path of the serialized pipeline")
	rootCmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Human-readable console logs")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
