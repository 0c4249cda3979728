package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/lifecycle"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/pipeline"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/store"
)

// Worker is a single polling loop. It holds at most one lease at a time.
type Worker struct {
	id       string
	jobs     JobQueue
	cases    FailureCases
	executor JobExecutor
	config   Config
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Health tracking
	mu            sync.RWMutex
	status        WorkerStatus
	currentJobID  int64
	jobsProcessed int
	lastActivity  time.Time
}

// NewWorker creates a queue worker. The config is normalized with defaults.
func NewWorker(id string, jobs JobQueue, cases FailureCases, executor JobExecutor, cfg Config) *Worker {
	return &Worker{
		id:           id,
		jobs:         jobs,
		cases:        cases,
		executor:     executor,
		config:       cfg.withDefaults(),
		logger:       slog.Default().With("component", "worker", "worker_id", id),
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for the current job to finish.
// It is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health snapshot.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        w.status,
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		LastActivity:  w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	w.logger.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			w.logger.Info("Worker shutting down")
			return
		case <-ctx.Done():
			w.logger.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, store.ErrNoJobsAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				w.logger.Error("Error processing job", "error", err)
				w.sleep(time.Second) // Brief backoff on error
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess leases one job, runs its handler, and acknowledges the
// outcome. The lease is bound to this process: running rows left behind by
// a crash are requeued by the bootstrap reconciliation at startup.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	job, err := w.jobs.Lease(ctx)
	if err != nil {
		return err
	}

	log := w.logger.With("job_id", job.ID, "job_type", job.Type)
	log.Info("Job leased", "attempts", job.Attempts)

	w.setStatus(WorkerStatusWorking, job.ID)
	defer w.setStatus(WorkerStatusIdle, 0)

	execErr := w.executor.Execute(ctx, job)
	if execErr == nil {
		if err := w.jobs.AckDone(ctx, job.ID); err != nil {
			return fmt.Errorf("acking job %d: %w", job.ID, err)
		}
		w.mu.Lock()
		w.jobsProcessed++
		w.mu.Unlock()
		log.Info("Job done")
		return nil
	}

	return w.settle(ctx, job, execErr)
}

// settle maps a handler failure to the retry or terminal-failure branch.
func (w *Worker) settle(ctx context.Context, job *models.Job, execErr error) error {
	log := w.logger.With("job_id", job.ID, "job_type", job.Type)

	cause := pipeline.CauseFatal
	fatal := true
	var herr *pipeline.HandlerError
	if errors.As(execErr, &herr) {
		cause = herr.Cause
		fatal = herr.Fatal
	}
	lastError := fmt.Sprintf("%s: %v", cause, execErr)

	attempts := job.Attempts + 1
	if !fatal && attempts < w.config.MaxAttempts {
		backoff := w.config.Backoff(attempts)
		log.Warn("Job failed, retrying",
			"cause", cause, "attempts", attempts, "backoff", backoff, "error", execErr)
		if err := w.jobs.AckRetry(ctx, job.ID, lastError, backoff); err != nil {
			return fmt.Errorf("requeueing job %d: %w", job.ID, err)
		}
		return nil
	}

	log.Error("Job failed terminally",
		"cause", cause, "fatal", fatal, "attempts", attempts, "error", execErr)
	if err := w.jobs.AckFailed(ctx, job.ID, lastError); err != nil {
		return fmt.Errorf("failing job %d: %w", job.ID, err)
	}
	if job.CaseID != nil {
		w.failCase(ctx, *job.CaseID, job.Type, cause, execErr)
	}
	w.mu.Lock()
	w.jobsProcessed++
	w.mu.Unlock()
	return nil
}

// failCase moves the case to the user-facing failure branch: FAILED status
// plus a post_room1_final_failure job. The final-reply and cleanup jobs are
// excluded so a failing failure reply cannot enqueue itself forever.
func (w *Worker) failCase(ctx context.Context, caseID string, jobType models.JobType, cause string, execErr error) {
	if jobType == models.JobPostRoom1FinalFailure || jobType == models.JobCleanupCase {
		return
	}

	log := w.logger.With("case_id", caseID)
	if err := w.cases.MarkFailed(ctx, caseID); err != nil {
		var terr *lifecycle.TransitionError
		if errors.As(err, &terr) {
			log.Error("Cannot mark case failed from its current status", "error", err)
		} else {
			log.Error("Marking case failed", "error", err)
		}
	}

	payload, _ := json.Marshal(models.FailurePayload{
		Cause:   cause,
		Details: execErr.Error(),
	})
	if _, err := w.jobs.Enqueue(ctx, &caseID, models.JobPostRoom1FinalFailure, payload, time.Time{}); err != nil {
		log.Error("Enqueueing failure reply", "error", err)
	}
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	// Range: [base - jitter, base + jitter]
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) setStatus(status WorkerStatus, jobID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}
