package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"drugclassifier/internal/commander"
	"drugclassifier/internal/config"
	"drugclassifier/internal/logging"

	"github.com/spf13/cobra"
)

var (
	configFile string
	modelFile  string
)

var rootCmd = &cobra.Command{
	Use:           "cli",
	Short:         "Interactive console for the drug classifier",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}

		// Keep the console quiet unless a level is asked for explicitly.
		level := cfg.Logging.Level
		switch {
		case cmd.Flags().Changed("log-level"):
			level, _ = cmd.Flags().GetString("log-level")
		case os.Getenv("DRUGCLF_LOG_LEVEL") == "":
			level = "warn"
		}
		logger, err := logging.New(level, true)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c := commander.NewCommander(cfg, logger, cmd.InOrStdin(), cmd.OutOrStdout())
		if modelFile != "" {
			c.ExecuteCommand(ctx, "load", []string{modelFile})
		}
		return c.Start(ctx)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configFile, "config", "c", config.DefaultPath, "Path to configuration file")
	rootCmd.Flags().StringVarP(&modelFile, "model", "m", "", "Load this pipeline on startup")
	rootCmd.Flags().String("log-level", "warn", "Log level (debug|info|warn|error)")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
