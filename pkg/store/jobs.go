package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
)

// JobStore is the durable at-least-once job queue. Jobs move
// queued -> running -> {done, failed, queued}; a process restart requeues
// every running row before workers start (bootstrap reconciliation).
type JobStore struct {
	pool *pgxpool.Pool
}

// NewJobStore creates a job store backed by the given pool.
func NewJobStore(pool *pgxpool.Pool) *JobStore {
	return &JobStore{pool: pool}
}

const jobColumns = `id, case_id, job_type, payload, status, attempts,
	run_after, last_error, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.CaseID, &j.Type, &j.Payload, &j.Status,
		&j.Attempts, &j.RunAfter, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning job: %w", err)
	}
	return &j, nil
}

// Enqueue writes a queued job. caseID may be nil for case-less maintenance
// jobs. runAfter zero means "ready now".
func (s *JobStore) Enqueue(ctx context.Context, caseID *string, jobType models.JobType, payload json.RawMessage, runAfter time.Time) (*models.Job, error) {
	if runAfter.IsZero() {
		runAfter = time.Now()
	}
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO jobs (case_id, job_type, payload, status, run_after)
		VALUES ($1, $2, $3, 'queued', $4)
		RETURNING `+jobColumns,
		caseID, jobType, payload, runAfter)
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("enqueueing %s: %w", jobType, err)
	}
	return job, nil
}

// Lease atomically claims the oldest ready job and marks it running.
// FIFO within the ready set; a job whose case already holds a running lease
// is skipped so at most one handler runs per case at a time.
// Returns ErrNoJobsAvailable when nothing is ready.
func (s *JobStore) Lease(ctx context.Context) (*models.Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning lease: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	err = tx.QueryRow(ctx, `
		SELECT id FROM jobs
		WHERE status = 'queued' AND run_after <= now()
		  AND (case_id IS NULL OR NOT EXISTS (
			SELECT 1 FROM jobs running
			WHERE running.case_id = jobs.case_id AND running.status = 'running'))
		ORDER BY id
		LIMIT 1
		FOR UPDATE OF jobs SKIP LOCKED`).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNoJobsAvailable
		}
		return nil, fmt.Errorf("selecting ready job: %w", err)
	}

	row := tx.QueryRow(ctx, `
		UPDATE jobs SET status = 'running', updated_at = now()
		WHERE id = $1
		RETURNING `+jobColumns, id)
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("claiming job %d: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing lease: %w", err)
	}
	return job, nil
}

// AckDone moves a running job to done.
func (s *JobStore) AckDone(ctx context.Context, jobID int64) error {
	return s.ackTransition(ctx, jobID, "done", nil)
}

// AckRetry returns a running job to the queue: attempts is incremented,
// run_after pushed out by backoff, and last_error recorded as cause:details.
func (s *JobStore) AckRetry(ctx context.Context, jobID int64, lastError string, backoff time.Duration) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = 'queued', attempts = attempts + 1,
			run_after = now() + $1, last_error = $2, updated_at = now()
		WHERE id = $3 AND status = 'running'`,
		backoff, lastError, jobID)
	if err != nil {
		return fmt.Errorf("requeueing job %d: %w", jobID, err)
	}
	if tag.RowsAffected() != 1 {
		return ErrInvalidJobState
	}
	return nil
}

// AckFailed moves a running job to the terminal failed state.
func (s *JobStore) AckFailed(ctx context.Context, jobID int64, lastError string) error {
	return s.ackTransition(ctx, jobID, "failed", &lastError)
}

func (s *JobStore) ackTransition(ctx context.Context, jobID int64, to string, lastError *string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $1, last_error = COALESCE($2, last_error),
			updated_at = now()
		WHERE id = $3 AND status = 'running'`,
		to, lastError, jobID)
	if err != nil {
		return fmt.Errorf("acking job %d as %s: %w", jobID, to, err)
	}
	if tag.RowsAffected() != 1 {
		return ErrInvalidJobState
	}
	return nil
}

// RequeueRunning returns every running job to the queue. Called once at
// process start, before workers begin: leases are bound to the process, so
// a running row at startup is an orphan from a previous crash.
func (s *JobStore) RequeueRunning(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'queued', updated_at = now() WHERE status = 'running'`)
	if err != nil {
		return 0, fmt.Errorf("requeueing running jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Depth returns the number of ready-to-run queued jobs.
func (s *JobStore) Depth(ctx context.Context) (int, error) {
	var depth int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM jobs WHERE status = 'queued' AND run_after <= now()`).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("counting queue depth: %w", err)
	}
	return depth, nil
}

// CountByStatus returns job counts grouped by queue state.
func (s *JobStore) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, count(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}
	defer rows.Close()

	counts := map[models.JobStatus]int{}
	for rows.Next() {
		var status models.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning job count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
