package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/lifecycle"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/pipeline"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/store"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/store/storetest"
)

type stubExecutor struct {
	err  error
	seen []models.JobType
}

func (s *stubExecutor) Execute(ctx context.Context, job *models.Job) error {
	s.seen = append(s.seen, job.Type)
	return s.err
}

func seedExtractingCase(t *testing.T, db *storetest.Store, caseID string) {
	t.Helper()
	ctx := context.Background()
	_, err := db.Create(ctx, models.NewCaseParams{
		CaseID:             caseID,
		Room1OriginRoomID:  "!room1:hs",
		Room1OriginEventID: "$origin-" + caseID,
		Room1SenderUserID:  "@agent:hs",
		PDFSourceURI:       "mxc://hs/pdf",
	})
	require.NoError(t, err)
	require.NoError(t, db.StorePDFExtraction(ctx, caseID, "texto", "12345"))
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	cfg := Config{BackoffBase: 2 * time.Second, BackoffCap: 30 * time.Second}.withDefaults()

	assert.Equal(t, 2*time.Second, cfg.Backoff(1))
	assert.Equal(t, 4*time.Second, cfg.Backoff(2))
	assert.Equal(t, 16*time.Second, cfg.Backoff(4))
	assert.Equal(t, 30*time.Second, cfg.Backoff(5))
	assert.Equal(t, 30*time.Second, cfg.Backoff(20))
}

func TestWorkerAcksSuccessfulJob(t *testing.T) {
	ctx := context.Background()
	db := storetest.New()
	seedExtractingCase(t, db, "case-1")
	caseID := "case-1"
	_, err := db.Enqueue(ctx, &caseID, models.JobRunLLM1, nil, time.Time{})
	require.NoError(t, err)

	exec := &stubExecutor{}
	w := NewWorker("w0", db, db, exec, Config{})

	require.NoError(t, w.pollAndProcess(ctx))
	assert.Equal(t, []models.JobType{models.JobRunLLM1}, exec.seen)

	jobs := db.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobDone, jobs[0].Status)

	err = w.pollAndProcess(ctx)
	assert.ErrorIs(t, err, store.ErrNoJobsAvailable)
}

func TestWorkerRetriesWithBackoff(t *testing.T) {
	ctx := context.Background()
	db := storetest.New()
	seedExtractingCase(t, db, "case-1")
	caseID := "case-1"
	_, err := db.Enqueue(ctx, &caseID, models.JobRunLLM1, nil, time.Time{})
	require.NoError(t, err)

	exec := &stubExecutor{err: pipeline.Retriable(pipeline.CauseLLM1, errors.New("schema mismatch"))}
	w := NewWorker("w0", db, db, exec, Config{MaxAttempts: 3})

	require.NoError(t, w.pollAndProcess(ctx))

	jobs := db.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobQueued, jobs[0].Status)
	assert.Equal(t, 1, jobs[0].Attempts)
	assert.True(t, jobs[0].RunAfter.After(time.Now()), "retry must be delayed")
	require.NotNil(t, jobs[0].LastError)
	assert.Contains(t, *jobs[0].LastError, "llm1")

	// The delayed job is not leaseable yet.
	err = w.pollAndProcess(ctx)
	assert.ErrorIs(t, err, store.ErrNoJobsAvailable)
}

func TestWorkerExhaustionRunsFailureBranch(t *testing.T) {
	ctx := context.Background()
	db := storetest.New()
	seedExtractingCase(t, db, "case-1")
	caseID := "case-1"
	job, err := db.Enqueue(ctx, &caseID, models.JobRunLLM1, nil, time.Time{})
	require.NoError(t, err)

	exec := &stubExecutor{err: pipeline.Retriable(pipeline.CauseLLM1, errors.New("schema mismatch"))}
	// MaxAttempts 1: the first failure is terminal.
	w := NewWorker("w0", db, db, exec, Config{MaxAttempts: 1})

	require.NoError(t, w.pollAndProcess(ctx))

	c, err := db.Get(ctx, caseID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusFailed, c.Status)

	var failed, failureReply *models.Job
	for _, j := range db.Jobs() {
		j := j
		switch {
		case j.ID == job.ID:
			failed = &j
		case j.Type == models.JobPostRoom1FinalFailure:
			failureReply = &j
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, models.JobFailed, failed.Status)
	require.NotNil(t, failureReply)
	assert.Equal(t, models.JobQueued, failureReply.Status)

	var payload models.FailurePayload
	require.NoError(t, json.Unmarshal(failureReply.Payload, &payload))
	assert.Equal(t, "llm1", payload.Cause)
	assert.Contains(t, payload.Details, "schema mismatch")
}

func TestWorkerExhaustionBeforeExtractionKeepsStatus(t *testing.T) {
	ctx := context.Background()
	db := storetest.New()
	caseID := "case-1"
	_, err := db.Create(ctx, models.NewCaseParams{
		CaseID:             caseID,
		Room1OriginRoomID:  "!room1:hs",
		Room1OriginEventID: "$origin-" + caseID,
		Room1SenderUserID:  "@agent:hs",
		PDFSourceURI:       "mxc://hs/pdf",
	})
	require.NoError(t, err)
	_, err = db.Enqueue(ctx, &caseID, models.JobProcessPDFCase, nil, time.Time{})
	require.NoError(t, err)

	exec := &stubExecutor{err: pipeline.Retriable(pipeline.CauseDownload, errors.New("media unavailable"))}
	w := NewWorker("w0", db, db, exec, Config{MaxAttempts: 1})

	require.NoError(t, w.pollAndProcess(ctx))

	// The lifecycle has no failure edge from the first status; the case
	// stays put but the user-facing failure reply is still enqueued.
	c, err := db.Get(ctx, caseID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusR1AckProcessing, c.Status)

	var failureReply *models.Job
	for _, j := range db.Jobs() {
		j := j
		if j.Type == models.JobPostRoom1FinalFailure {
			failureReply = &j
		}
	}
	require.NotNil(t, failureReply)
	assert.Equal(t, models.JobQueued, failureReply.Status)
}

func TestWorkerFatalFailsImmediately(t *testing.T) {
	ctx := context.Background()
	db := storetest.New()
	seedExtractingCase(t, db, "case-1")
	caseID := "case-1"
	_, err := db.Enqueue(ctx, &caseID, models.JobRunLLM1, nil, time.Time{})
	require.NoError(t, err)

	exec := &stubExecutor{err: pipeline.Fatalf(pipeline.CauseFatal, "unknown job type")}
	w := NewWorker("w0", db, db, exec, Config{MaxAttempts: 5})

	require.NoError(t, w.pollAndProcess(ctx))

	jobs := db.Jobs()
	var original *models.Job
	for _, j := range jobs {
		j := j
		if j.Type == models.JobRunLLM1 {
			original = &j
		}
	}
	require.NotNil(t, original)
	assert.Equal(t, models.JobFailed, original.Status)
	assert.Equal(t, 0, original.Attempts, "fatal failure must not burn retries")
}

func TestFailingFailureReplyDoesNotLoop(t *testing.T) {
	ctx := context.Background()
	db := storetest.New()
	seedExtractingCase(t, db, "case-1")
	caseID := "case-1"
	payload := []byte(`{"cause":"llm1","details":"boom"}`)
	_, err := db.Enqueue(ctx, &caseID, models.JobPostRoom1FinalFailure, payload, time.Time{})
	require.NoError(t, err)

	exec := &stubExecutor{err: pipeline.Retriable(pipeline.CauseChatPost, errors.New("gateway down"))}
	w := NewWorker("w0", db, db, exec, Config{MaxAttempts: 1})

	require.NoError(t, w.pollAndProcess(ctx))

	jobs := db.Jobs()
	require.Len(t, jobs, 1, "no new failure job may be enqueued")
	assert.Equal(t, models.JobFailed, jobs[0].Status)
}

func TestPoolStartRequeuesOrphans(t *testing.T) {
	ctx := context.Background()
	db := storetest.New()
	seedExtractingCase(t, db, "case-1")
	caseID := "case-1"
	_, err := db.Enqueue(ctx, &caseID, models.JobRunLLM1, nil, time.Time{})
	require.NoError(t, err)

	// Simulate a crash mid-lease.
	_, err = db.Lease(ctx)
	require.NoError(t, err)

	exec := &stubExecutor{}
	pool := NewPool(db, db, exec, Config{WorkerCount: 1, PollInterval: 10 * time.Millisecond})
	require.NoError(t, pool.Start(ctx))
	require.NoError(t, pool.Start(ctx)) // duplicate Start is a no-op
	defer pool.Stop()

	require.Eventually(t, func() bool {
		for _, j := range db.Jobs() {
			if j.Status == models.JobDone {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	health := pool.Health(ctx)
	assert.True(t, health.IsHealthy)
	assert.Equal(t, 1, health.TotalWorkers)
}
