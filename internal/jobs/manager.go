// Package jobs runs long operations (background training) off the REPL
// goroutine and tracks their status.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

var ErrJobNotFound = errors.New("job not found")

// Func is the body of a job. It should honour ctx and may log through job.
type Func func(ctx context.Context, job *Job) (any, error)

type Job struct {
	ID          string
	Type        string
	Description string
	StartTime   time.Time

	status   JobStatus
	progress float64
	endTime  *time.Time
	err      error
	result   any
	logs     []string
	cancel   context.CancelFunc
	mu       sync.RWMutex
}

type Manager struct {
	jobs map[string]*Job
	mu   sync.RWMutex
	wg   sync.WaitGroup
}

func NewManager() *Manager {
	return &Manager{
		jobs: make(map[string]*Job),
	}
}

// Submit registers a job and starts fn on its own goroutine.
func (m *Manager) Submit(ctx context.Context, jobType, description string, fn Func) *Job {
	ctx, cancel := context.WithCancel(ctx)
	job := &Job{
		ID:          fmt.Sprintf("%s-%s", jobType, uuid.NewString()[:8]),
		Type:        jobType,
		Description: description,
		StartTime:   time.Now(),
		status:      JobPending,
		cancel:      cancel,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()

		job.setStatus(JobRunning)
		job.AddLog("started: " + description)

		result, err := fn(ctx, job)
		switch {
		case errors.Is(err, context.Canceled):
			job.setStatus(JobCancelled)
			job.AddLog("cancelled")
		case err != nil:
			job.setError(err)
			job.AddLog("failed: " + err.Error())
		default:
			job.mu.Lock()
			job.result = result
			job.progress = 1
			job.mu.Unlock()
			job.setStatus(JobCompleted)
			job.AddLog("completed")
		}
	}()

	return job
}

func (m *Manager) GetJob(jobID string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, exists := m.jobs[jobID]
	return job, exists
}

// ListJobs returns jobs oldest first.
func (m *Manager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartTime.Before(jobs[j].StartTime)
	})
	return jobs
}

func (m *Manager) CancelJob(jobID string) error {
	job, exists := m.GetJob(jobID)
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	status := job.Status()
	if status != JobRunning && status != JobPending {
		return fmt.Errorf("job %s is not running", jobID)
	}
	job.cancel()
	return nil
}

// Wait blocks until every submitted job has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels all jobs and waits for them.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	for _, job := range m.jobs {
		job.cancel()
	}
	m.mu.RUnlock()
	m.Wait()
}

func (j *Job) setStatus(status JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = status
	if status == JobCompleted || status == JobFailed || status == JobCancelled {
		now := time.Now()
		j.endTime = &now
	}
}

func (j *Job) setError(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.err = err
	j.status = JobFailed
	now := time.Now()
	j.endTime = &now
}

func (j *Job) SetProgress(progress float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress = progress
}

func (j *Job) AddLog(message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	timestamp := time.Now().Format("15:04:05")
	j.logs = append(j.logs, fmt.Sprintf("[%s] %s", timestamp, message))
}

func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

func (j *Job) Progress() float64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.progress
}

func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

func (j *Job) Result() any {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.result
}

// Duration is the elapsed time, up to now for jobs still running.
func (j *Job) Duration() time.Duration {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.endTime != nil {
		return j.endTime.Sub(j.StartTime)
	}
	return time.Since(j.StartTime)
}

func (j *Job) Logs() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	logs := make([]string, len(j.logs))
	copy(logs, j.logs)
	return logs
}
