package queue

import (
	"context"
	"fmt"
	"log/slog"
)

// Pool manages a set of queue workers over one job store.
type Pool struct {
	jobs     JobQueue
	cases    FailureCases
	executor JobExecutor
	config   Config
	workers  []*Worker
	started  bool
}

// NewPool creates a worker pool. The config is normalized with defaults.
func NewPool(jobs JobQueue, cases FailureCases, executor JobExecutor, cfg Config) *Pool {
	cfg = cfg.withDefaults()
	return &Pool{
		jobs:     jobs,
		cases:    cases,
		executor: executor,
		config:   cfg,
		workers:  make([]*Worker, 0, cfg.WorkerCount),
	}
}

// Start requeues orphaned running jobs and spawns the worker goroutines.
// Leases are bound to the process, so any running row at startup is a
// leftover from a previous crash. Safe to call multiple times; subsequent
// calls are no-ops.
func (p *Pool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call")
		return nil
	}
	p.started = true

	requeued, err := p.jobs.RequeueRunning(ctx)
	if err != nil {
		return fmt.Errorf("requeueing orphaned jobs: %w", err)
	}
	if requeued > 0 {
		slog.Info("Requeued orphaned running jobs", "count", requeued)
	}

	slog.Info("Starting worker pool", "worker_count", p.config.WorkerCount)
	for i := 0; i < p.config.WorkerCount; i++ {
		worker := NewWorker(fmt.Sprintf("worker-%d", i), p.jobs, p.cases, p.executor, p.config)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}
	return nil
}

// Stop signals all workers to stop and waits for them to finish their
// current jobs (graceful shutdown).
func (p *Pool) Stop() {
	slog.Info("Stopping worker pool gracefully")
	for _, worker := range p.workers {
		worker.Stop()
	}
	slog.Info("Worker pool stopped")
}

// Health returns the aggregate pool health snapshot.
func (p *Pool) Health(ctx context.Context) *PoolHealth {
	depth, errD := p.jobs.Depth(ctx)
	counts, errC := p.jobs.CountByStatus(ctx)

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == WorkerStatusWorking {
			activeWorkers++
		}
	}

	dbHealthy := errD == nil && errC == nil
	var dbError string
	if errD != nil {
		dbError = fmt.Sprintf("queue depth query failed: %v", errD)
	} else if errC != nil {
		dbError = fmt.Sprintf("job count query failed: %v", errC)
	}

	return &PoolHealth{
		IsHealthy:     len(p.workers) > 0 && dbHealthy,
		DBReachable:   dbHealthy,
		DBError:       dbError,
		ActiveWorkers: activeWorkers,
		TotalWorkers:  len(p.workers),
		QueueDepth:    depth,
		JobCounts:     counts,
		WorkerStats:   workerStats,
	}
}
