package store

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/database"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/lifecycle"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
)

// newTestPool connects to a migrated throwaway database. In CI
// (CI_DATABASE_URL set) it uses the external service container; locally it
// spins up a testcontainer. Skipped under -short.
func newTestPool(t *testing.T) *pgxpool.Pool {
	if testing.Short() {
		t.Skip("skipping database integration test in short mode")
	}
	ctx := context.Background()

	connStr := os.Getenv("CI_DATABASE_URL")
	if connStr == "" {
		t.Log("Using testcontainers for PostgreSQL")
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		require.NoError(t, err)

		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(pgContainer); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})

		connStr, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	client, err := database.NewClient(ctx, database.Config{DatabaseURL: connStr})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client.Pool()
}

func newTestCase(t *testing.T, cases *CaseStore) *models.Case {
	t.Helper()
	c, err := cases.Create(context.Background(), models.NewCaseParams{
		CaseID:             uuid.NewString(),
		Room1OriginRoomID:  "!room1:chat.local",
		Room1OriginEventID: "$origin-" + uuid.NewString(),
		Room1SenderUserID:  "@agent:chat.local",
		PDFSourceURI:       "mxc://chat.local/" + uuid.NewString(),
	})
	require.NoError(t, err)
	return c
}

func TestCaseStoreCreateAndDuplicate(t *testing.T) {
	pool := newTestPool(t)
	cases := NewCaseStore(pool)
	ctx := context.Background()

	c := newTestCase(t, cases)
	assert.Equal(t, lifecycle.StatusR1AckProcessing, c.Status)

	// Same origin event again: sentinel, no second row.
	_, err := cases.Create(ctx, models.NewCaseParams{
		CaseID:             uuid.NewString(),
		Room1OriginRoomID:  c.Room1OriginRoomID,
		Room1OriginEventID: c.Room1OriginEventID,
		Room1SenderUserID:  c.Room1SenderUserID,
		PDFSourceURI:       c.PDFSourceURI,
	})
	assert.ErrorIs(t, err, ErrDuplicateOriginEvent)

	got, err := cases.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Room1OriginEventID, got.Room1OriginEventID)

	_, err = cases.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCaseStoreTransitionGuard(t *testing.T) {
	pool := newTestPool(t)
	cases := NewCaseStore(pool)
	ctx := context.Background()

	c := newTestCase(t, cases)

	// Pipeline must pass through EXTRACTING before LLM artifacts land.
	err := cases.StoreLLM1Artifacts(ctx, c.ID, json.RawMessage(`{}`))
	var terr *lifecycle.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, lifecycle.StatusR1AckProcessing, terr.From)

	require.NoError(t, cases.StorePDFExtraction(ctx, c.ID, "clean text", "12345"))
	require.NoError(t, cases.StoreLLM1Artifacts(ctx, c.ID, json.RawMessage(`{"v":"1.1"}`)))

	got, err := cases.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusLLMStruct, got.Status)
	require.NotNil(t, got.ExtractedText)
	assert.Equal(t, "clean text", *got.ExtractedText)
}

func TestJobStoreLeaseOrderAndCaseExclusion(t *testing.T) {
	pool := newTestPool(t)
	cases := NewCaseStore(pool)
	jobs := NewJobStore(pool)
	ctx := context.Background()

	c1 := newTestCase(t, cases)
	c2 := newTestCase(t, cases)

	j1, err := jobs.Enqueue(ctx, &c1.ID, models.JobProcessPDFCase, nil, time.Time{})
	require.NoError(t, err)
	j2, err := jobs.Enqueue(ctx, &c1.ID, models.JobRunLLM1, nil, time.Time{})
	require.NoError(t, err)
	j3, err := jobs.Enqueue(ctx, &c2.ID, models.JobProcessPDFCase, nil, time.Time{})
	require.NoError(t, err)

	// FIFO: oldest ready job first.
	leased, err := jobs.Lease(ctx)
	require.NoError(t, err)
	assert.Equal(t, j1.ID, leased.ID)
	assert.Equal(t, models.JobRunning, leased.Status)

	// c1 already has a running job, so the next lease skips j2 and takes j3.
	leased, err = jobs.Lease(ctx)
	require.NoError(t, err)
	assert.Equal(t, j3.ID, leased.ID)

	// Nothing else is leasable until one of them finishes.
	_, err = jobs.Lease(ctx)
	assert.ErrorIs(t, err, ErrNoJobsAvailable)

	require.NoError(t, jobs.AckDone(ctx, j1.ID))
	leased, err = jobs.Lease(ctx)
	require.NoError(t, err)
	assert.Equal(t, j2.ID, leased.ID)
}

func TestJobStoreRetryAndRequeue(t *testing.T) {
	pool := newTestPool(t)
	cases := NewCaseStore(pool)
	jobs := NewJobStore(pool)
	ctx := context.Background()

	c := newTestCase(t, cases)
	j, err := jobs.Enqueue(ctx, &c.ID, models.JobRunLLM1, nil, time.Time{})
	require.NoError(t, err)

	leased, err := jobs.Lease(ctx)
	require.NoError(t, err)
	require.Equal(t, j.ID, leased.ID)

	// Retry pushes run_after out, so the job is not immediately leasable.
	require.NoError(t, jobs.AckRetry(ctx, j.ID, "llm1:timeout", time.Hour))
	_, err = jobs.Lease(ctx)
	assert.ErrorIs(t, err, ErrNoJobsAvailable)

	// Double ack of a job that is no longer running is rejected.
	assert.ErrorIs(t, jobs.AckDone(ctx, j.ID), ErrInvalidJobState)

	// Startup reconciliation returns orphaned running jobs to the queue.
	_, err = pool.Exec(ctx, `UPDATE jobs SET status = 'running' WHERE id = $1`, j.ID)
	require.NoError(t, err)
	n, err := jobs.RequeueRunning(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestCheckpointStoreMatchesExactlyOnce(t *testing.T) {
	pool := newTestPool(t)
	cases := NewCaseStore(pool)
	cps := NewCheckpointStore(pool)
	ctx := context.Background()

	c := newTestCase(t, cases)
	room := "!room2:chat.local"
	target := "$widget-" + uuid.NewString()

	require.NoError(t, cps.EnsureExpected(ctx, c.ID, models.StageRoom2Ack, room, target))
	// Re-registering the same target is absorbed.
	require.NoError(t, cps.EnsureExpected(ctx, c.ID, models.StageRoom2Ack, room, target))

	meta := models.ReactionMeta{
		EventID: "$reaction-1", Key: "👍", UserID: "@doc:chat.local", At: time.Now().UTC(),
	}
	cp, matched, err := cps.MatchPositiveReaction(ctx, room, target, meta)
	require.NoError(t, err)
	require.True(t, matched)
	assert.Equal(t, models.CheckpointPositiveReceived, cp.Outcome)

	// Redelivery of the reaction matches nothing.
	_, matched, err = cps.MatchPositiveReaction(ctx, room, target, meta)
	require.NoError(t, err)
	assert.False(t, matched)

	list, err := cps.ListForCase(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestUserAndTokenStores(t *testing.T) {
	pool := newTestPool(t)
	users := NewUserStore(pool)
	tokens := NewTokenStore(pool)
	ctx := context.Background()

	u, err := users.Create(ctx, models.User{
		ID:            uuid.NewString(),
		Email:         "Admin@Example.ORG",
		PasswordHash:  "$2a$10$fake",
		Role:          models.RoleAdmin,
		AccountStatus: models.AccountActive,
	})
	require.NoError(t, err)
	assert.Equal(t, "admin@example.org", u.Email)

	_, err = users.Create(ctx, models.User{
		ID: uuid.NewString(), Email: "admin@example.org",
		PasswordHash: "x", Role: models.RoleReader, AccountStatus: models.AccountActive,
	})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	tok, err := tokens.Insert(ctx, u.ID, "hash-1", time.Now().Add(time.Hour))
	require.NoError(t, err)

	got, err := tokens.GetActiveByHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, tok.ID, got.ID)

	// Expired tokens are invisible.
	_, err = tokens.Insert(ctx, u.ID, "hash-2", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = tokens.GetActiveByHash(ctx, "hash-2")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := tokens.RevokeActiveForUser(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	_, err = tokens.GetActiveByHash(ctx, "hash-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMonitoringAndSummaryWindows(t *testing.T) {
	pool := newTestPool(t)
	cases := NewCaseStore(pool)
	journal := NewJournalStore(pool)
	monitoring := NewMonitoringStore(pool)
	summary := NewSummaryStore(pool)
	ctx := context.Background()

	c := newTestCase(t, cases)
	require.NoError(t, cases.StorePDFExtraction(ctx, c.ID, "text", "54321"))
	require.NoError(t, journal.AddTranscript(ctx, models.Transcript{
		CaseID: c.ID, Kind: models.TranscriptPDFText, Response: "text",
	}))
	require.NoError(t, journal.AppendCaseEvent(ctx, models.CaseEvent{
		CaseID: c.ID, ActorType: models.ActorSystem, EventType: models.EventPDFExtracted,
	}))

	list, err := monitoring.ListCases(ctx, models.CaseFilter{Page: 1, Size: 10})
	require.NoError(t, err)
	require.NotEmpty(t, list.Items)
	assert.GreaterOrEqual(t, list.Total, 1)

	status := lifecycle.StatusExtracting
	list, err = monitoring.ListCases(ctx, models.CaseFilter{Page: 1, Size: 10, Status: &status})
	require.NoError(t, err)
	found := false
	for _, it := range list.Items {
		if it.CaseID == c.ID {
			found = true
			assert.False(t, it.LatestActivityAt.Before(it.CreatedAt))
		}
	}
	assert.True(t, found)

	timeline, err := monitoring.Timeline(ctx, c.ID)
	require.NoError(t, err)
	require.NotEmpty(t, timeline)
	for i := 1; i < len(timeline); i++ {
		assert.False(t, timeline[i].HappenedAt.Before(timeline[i-1].HappenedAt))
	}

	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC().Add(time.Hour)
	sum, err := summary.Window(ctx, from, to)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sum.PatientsReceived, 1)
	assert.GreaterOrEqual(t, sum.ReportsProcessed, 1)

	// Empty window counts nothing.
	sum, err = summary.Window(ctx, from.Add(-48*time.Hour), from.Add(-47*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, sum.PatientsReceived)

	// A journal-less case backdated two days reports the backdated activity.
	stale := newTestCase(t, cases)
	backdated := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Second)
	require.NoError(t, cases.touchUpdatedAt(ctx, stale.ID, backdated))
	list, err = monitoring.ListCases(ctx, models.CaseFilter{Page: 1, Size: 50})
	require.NoError(t, err)
	for _, it := range list.Items {
		if it.CaseID == stale.ID {
			assert.WithinDuration(t, backdated, it.LatestActivityAt, time.Second)
		}
	}
}
