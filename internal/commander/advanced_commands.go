package commander

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"drugclassifier/internal/jobs"
	"drugclassifier/internal/trainer"
)

// trainBackground retrains with the session config on a job goroutine. An
// optional argument overrides the number of trees.
func (c *Commander) trainBackground(ctx context.Context, args []string) {
	cfg := *c.cfg
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			fmt.Fprintln(c.out, c.red("Usage: train-bg [n_trees]"))
			return
		}
		cfg.Model.NTrees = n
	}

	job := c.jobManager.Submit(ctx, "train", fmt.Sprintf("Training %s on %s", cfg.Model.Algorithm, cfg.Data.Path),
		func(ctx context.Context, job *jobs.Job) (any, error) {
			job.AddLog(fmt.Sprintf("n_trees=%d seed=%d", cfg.Model.NTrees, cfg.Model.Seed))
			progress := trainer.WithProgress(func(stage string, fraction float64) {
				job.SetProgress(fraction)
				job.AddLog(fmt.Sprintf("%s done (%.0f%%)", stage, fraction*100))
			})
			result, err := trainer.New(&cfg, c.logger, io.Discard, progress).Run(ctx)
			if err != nil {
				return nil, err
			}
			job.AddLog(fmt.Sprintf("accuracy=%.4f f1=%.4f", result.Metrics.Accuracy, result.Metrics.MacroF1))
			job.AddLog("saved " + result.ModelPath)
			return result, nil
		})

	fmt.Fprintf(c.out, "Job submitted: %s\n", c.cyan(job.ID))
	fmt.Fprintln(c.out, "Use 'jobs' to follow it and 'load' once it completes")
}

func (c *Commander) listAllJobs() {
	all := c.jobManager.ListJobs()
	if len(all) == 0 {
		fmt.Fprintln(c.out, "No jobs")
		return
	}

	fmt.Fprintln(c.out, c.blue("\nJobs:"))
	fmt.Fprintln(c.out, strings.Repeat("─", 70))
	fmt.Fprintf(c.out, "%-16s %-10s %-10s %s\n", "ID", "Status", "Elapsed", "Description")
	fmt.Fprintln(c.out, strings.Repeat("─", 70))
	for _, job := range all {
		fmt.Fprintf(c.out, "%-16s %-10s %-10s %s\n",
			job.ID, c.statusColor(job.Status()), job.Duration().Round(time.Millisecond), job.Description)
	}
}

func (c *Commander) showJobStatus(jobID string) {
	job, ok := c.jobManager.GetJob(jobID)
	if !ok {
		fmt.Fprintf(c.out, "%s Job %s not found\n", c.red("✗"), jobID)
		return
	}

	fmt.Fprintf(c.out, "Job: %s\n", job.ID)
	fmt.Fprintf(c.out, "Description: %s\n", job.Description)
	fmt.Fprintf(c.out, "Status: %s\n", c.statusColor(job.Status()))
	fmt.Fprintf(c.out, "Progress: %.0f%%\n", job.Progress()*100)
	fmt.Fprintf(c.out, "Elapsed: %s\n", job.Duration().Round(time.Millisecond))
	if err := job.Err(); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
	if result, ok := job.Result().(*trainer.Result); ok {
		fmt.Fprintf(c.out, "Accuracy: %.4f | F1: %.4f\n", result.Metrics.Accuracy, result.Metrics.MacroF1)
		fmt.Fprintf(c.out, "Model: %s\n", result.ModelPath)
	}
}

func (c *Commander) cancelJob(jobID string) {
	if err := c.jobManager.CancelJob(jobID); err != nil {
		fmt.Fprintf(c.out, "%s %v\n", c.red("✗"), err)
		return
	}
	fmt.Fprintf(c.out, "%s Cancellation requested for %s\n", c.green("✓"), jobID)
}

func (c *Commander) showJobLogs(jobID string) {
	job, ok := c.jobManager.GetJob(jobID)
	if !ok {
		fmt.Fprintf(c.out, "%s Job %s not found\n", c.red("✗"), jobID)
		return
	}
	for _, line := range job.Logs() {
		fmt.Fprintln(c.out, line)
	}
}

func (c *Commander) statusColor(status jobs.JobStatus) string {
	switch status {
	case jobs.JobCompleted:
		return c.green(string(status))
	case jobs.JobFailed, jobs.JobCancelled:
		return c.red(string(status))
	default:
		return c.yellow(string(status))
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
