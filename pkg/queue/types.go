// Package queue runs the worker loop over the durable job queue: lease a
// job, dispatch it to the pipeline executor, acknowledge the outcome. The
// queue is at-least-once; per-case exclusion during the lease keeps at most
// one handler running per case.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
)

// Default tuning applied when Config fields are zero.
const (
	DefaultWorkerCount  = 2
	DefaultPollInterval = time.Second
	DefaultMaxAttempts  = 5
	DefaultBackoffBase  = 2 * time.Second
	DefaultBackoffCap   = 5 * time.Minute
)

// Config tunes the worker pool.
type Config struct {
	WorkerCount        int
	PollInterval       time.Duration
	PollIntervalJitter time.Duration
	MaxAttempts        int
	BackoffBase        time.Duration
	BackoffCap         time.Duration
}

func (c Config) withDefaults() Config {
	if c.WorkerCount <= 0 {
		c.WorkerCount = DefaultWorkerCount
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = DefaultBackoffCap
	}
	return c
}

// Backoff returns the retry delay for the given attempt count: exponential
// from the base, bounded by the cap.
func (c Config) Backoff(attempts int) time.Duration {
	d := c.BackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= c.BackoffCap {
			return c.BackoffCap
		}
	}
	if d > c.BackoffCap {
		return c.BackoffCap
	}
	return d
}

// JobQueue is the job store surface the workers drive.
type JobQueue interface {
	Lease(ctx context.Context) (*models.Job, error)
	AckDone(ctx context.Context, jobID int64) error
	AckRetry(ctx context.Context, jobID int64, lastError string, backoff time.Duration) error
	AckFailed(ctx context.Context, jobID int64, lastError string) error
	Enqueue(ctx context.Context, caseID *string, jobType models.JobType, payload json.RawMessage, runAfter time.Time) (*models.Job, error)
	RequeueRunning(ctx context.Context) (int64, error)
	Depth(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) (map[models.JobStatus]int, error)
}

// FailureCases is the case store subset the failure branch needs.
type FailureCases interface {
	MarkFailed(ctx context.Context, caseID string) error
}

// JobExecutor dispatches a leased job to its step handler. A nil return
// acknowledges the job; a *pipeline.HandlerError drives retry vs fail.
type JobExecutor interface {
	Execute(ctx context.Context, job *models.Job) error
}

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth is a point-in-time snapshot of one worker.
type WorkerHealth struct {
	ID            string       `json:"id"`
	Status        WorkerStatus `json:"status"`
	CurrentJobID  int64        `json:"current_job_id,omitempty"`
	JobsProcessed int          `json:"jobs_processed"`
	LastActivity  time.Time    `json:"last_activity"`
}

// PoolHealth is the aggregate health snapshot the API exposes.
type PoolHealth struct {
	IsHealthy     bool                     `json:"is_healthy"`
	DBReachable   bool                     `json:"db_reachable"`
	DBError       string                   `json:"db_error,omitempty"`
	ActiveWorkers int                      `json:"active_workers"`
	TotalWorkers  int                      `json:"total_workers"`
	QueueDepth    int                      `json:"queue_depth"`
	JobCounts     map[models.JobStatus]int `json:"job_counts"`
	WorkerStats   []WorkerHealth           `json:"worker_stats"`
}
