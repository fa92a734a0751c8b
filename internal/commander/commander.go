// Package commander is the interactive console for a trained pipeline.
package commander

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"drugclassifier/internal/config"
	"drugclassifier/internal/jobs"
	"drugclassifier/internal/predictor"

	"github.com/fatih/color"
	"go.uber.org/zap"
)

type Commander struct {
	cfg        *config.Config
	logger     *zap.Logger
	in         io.Reader
	out        io.Writer
	predictor  *predictor.Predictor
	modelPath  string
	jobManager *jobs.Manager

	green  func(a ...any) string
	red    func(a ...any) string
	yellow func(a ...any) string
	cyan   func(a ...any) string
	blue   func(a ...any) string
}

func NewCommander(cfg *config.Config, logger *zap.Logger, in io.Reader, out io.Writer) *Commander {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Commander{
		cfg:        cfg,
		logger:     logger,
		in:         in,
		out:        out,
		jobManager: jobs.NewManager(),
		green:      color.New(color.FgGreen).SprintFunc(),
		red:        color.New(color.FgRed).SprintFunc(),
		yellow:     color.New(color.FgYellow).SprintFunc(),
		cyan:       color.New(color.FgCyan).SprintFunc(),
		blue:       color.New(color.FgBlue).SprintFunc(),
	}
}

// Start reads commands until quit, end of input or ctx cancellation.
// Background jobs are cancelled before it returns.
func (c *Commander) Start(ctx context.Context) error {
	defer c.jobManager.Shutdown()

	c.printWelcome()
	scanner := bufio.NewScanner(c.in)

	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(c.out, c.yellow("\ndrug> "))
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		command := strings.ToLower(parts[0])
		if !c.ExecuteCommand(ctx, command, parts[1:]) {
			return nil
		}
	}
}

// ExecuteCommand runs one command. It returns false when the session should
// end.
func (c *Commander) ExecuteCommand(ctx context.Context, command string, args []string) bool {
	switch command {
	case "help", "h":
		c.showHelp()
	case "load":
		path := c.cfg.Server.Model
		if len(args) > 0 {
			path = args[0]
		}
		c.loadModel(path)
	case "current", "info":
		c.showCurrentModel()
	case "predict":
		c.predict(ctx, args)
	case "examples":
		c.predictExamples(ctx)
	case "batch":
		if len(args) > 0 {
			c.batchPredict(ctx, args[0])
		} else {
			fmt.Fprintln(c.out, c.red("Usage: batch <filename>"))
		}
	case "history":
		c.showHistory(ctx, args)
	case "train-bg":
		c.trainBackground(ctx, args)
	case "jobs", "job-status":
		if len(args) > 0 {
			c.showJobStatus(args[0])
		} else {
			c.listAllJobs()
		}
	case "job-cancel":
		if len(args) > 0 {
			c.cancelJob(args[0])
		} else {
			fmt.Fprintln(c.out, c.red("Usage: job-cancel <job-id>"))
		}
	case "job-logs":
		if len(args) > 0 {
			c.showJobLogs(args[0])
		} else {
			fmt.Fprintln(c.out, c.red("Usage: job-logs <job-id>"))
		}
	case "clear":
		fmt.Fprint(c.out, "\033[H\033[2J")
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Bye")
		return false
	default:
		fmt.Fprintf(c.out, "%s Unknown command: %s\n", c.red("✗"), command)
		fmt.Fprintln(c.out, "Type 'help' for available commands")
	}
	return true
}

func (c *Commander) printWelcome() {
	fmt.Fprintln(c.out, c.cyan("╔══════════════════════════════════════════╗"))
	fmt.Fprintln(c.out, c.cyan("║        Drug Classification Console        ║"))
	fmt.Fprintln(c.out, c.cyan("╚══════════════════════════════════════════╝"))
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "Type 'help' for available commands")
}

func (c *Commander) showHelp() {
	fmt.Fprintln(c.out, c.blue("\nAvailable Commands:"))

	fmt.Fprintln(c.out, "\n"+c.cyan("Model:"))
	fmt.Fprintln(c.out, "  load [file]            - Load a trained pipeline (default from config)")
	fmt.Fprintln(c.out, "  current                - Show the loaded model")
	fmt.Fprintln(c.out, "  history [n]            - Show the last n training runs")

	fmt.Fprintln(c.out, "\n"+c.cyan("Predictions:"))
	fmt.Fprintln(c.out, "  predict <age> <sex> <bp> <chol> <na_to_k>")
	fmt.Fprintln(c.out, "                         - Predict the drug for one patient")
	fmt.Fprintln(c.out, "  examples               - Predict the canned example patients")
	fmt.Fprintln(c.out, "  batch <file>           - Batch predictions from CSV")

	fmt.Fprintln(c.out, "\n"+c.cyan("Training:"))
	fmt.Fprintln(c.out, "  train-bg [n_trees]     - Retrain in the background")
	fmt.Fprintln(c.out, "  jobs [job-id]          - Show job status or list all jobs")
	fmt.Fprintln(c.out, "  job-cancel <job-id>    - Cancel a running job")
	fmt.Fprintln(c.out, "  job-logs <job-id>      - View job logs")

	fmt.Fprintln(c.out, "\n"+c.cyan("System:"))
	fmt.Fprintln(c.out, "  help                   - Show this help message")
	fmt.Fprintln(c.out, "  clear                  - Clear screen")
	fmt.Fprintln(c.out, "  quit                   - Exit program")
}
