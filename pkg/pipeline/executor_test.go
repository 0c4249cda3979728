package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/chat"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/checkpoint"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/intake"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/lifecycle"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/llm"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/store"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/store/storetest"
)

type postRecord struct {
	RoomID  string
	Parent  string
	Body    string
	EventID string
}

type fakeGateway struct {
	nextID       int
	posts        []postRecord
	redacted     []string
	media        map[string][]byte
	failPosts    bool
	failDownload bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{media: map[string][]byte{}}
}

func (g *fakeGateway) eventID() string {
	g.nextID++
	return fmt.Sprintf("$ev-%d", g.nextID)
}

func (g *fakeGateway) PostText(ctx context.Context, roomID, body string) (string, error) {
	if g.failPosts {
		return "", errors.New("gateway down")
	}
	rec := postRecord{RoomID: roomID, Body: body, EventID: g.eventID()}
	g.posts = append(g.posts, rec)
	return rec.EventID, nil
}

func (g *fakeGateway) ReplyText(ctx context.Context, roomID, parentEventID, body string) (string, error) {
	if g.failPosts {
		return "", errors.New("gateway down")
	}
	rec := postRecord{RoomID: roomID, Parent: parentEventID, Body: body, EventID: g.eventID()}
	g.posts = append(g.posts, rec)
	return rec.EventID, nil
}

func (g *fakeGateway) RedactEvent(ctx context.Context, roomID, eventID, reason string) error {
	g.redacted = append(g.redacted, eventID)
	return nil
}

func (g *fakeGateway) DownloadMedia(ctx context.Context, mxcURI string) ([]byte, error) {
	if g.failDownload {
		return nil, errors.New("media unavailable")
	}
	data, ok := g.media[mxcURI]
	if !ok {
		return nil, errors.New("unknown media")
	}
	return data, nil
}

// lastPostTo returns the most recent post in a room.
func (g *fakeGateway) lastPostTo(roomID string) *postRecord {
	for i := len(g.posts) - 1; i >= 0; i-- {
		if g.posts[i].RoomID == roomID {
			return &g.posts[i]
		}
	}
	return nil
}

var testRooms = chat.RoomConfig{
	Room1ID: "!room1:hs",
	Room2ID: "!room2:hs",
	Room3ID: "!room3:hs",
}

type fixture struct {
	db        *storetest.Store
	gw        *fakeGateway
	exec      *Executor
	intake    *intake.Service
	decisions *DecisionService
	scheduler *SchedulerService
	cps       *checkpoint.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storetest.New()
	db.SeedPrompt(PromptLLM1System, "extraia os dados do laudo em JSON")
	db.SeedPrompt(PromptLLM1User, "registro: {{agency_record_number}}\nlaudo:\n{{report_text}}")
	db.SeedPrompt(PromptLLM2System, "sugira aceitar ou negar")
	db.SeedPrompt(PromptLLM2User, "dados:\n{{structured_data}}")

	gw := newFakeGateway()
	cps := checkpoint.NewService(db, db, db)
	exec := NewExecutor(db, db, db, cps, gw, llm.NewDeterministicClient(), db,
		PlainTextExtractor{}, testRooms)

	return &fixture{
		db:        db,
		gw:        gw,
		exec:      exec,
		intake:    intake.NewService(db, db, db, gw),
		decisions: NewDecisionService(db, db, db, gw),
		scheduler: NewSchedulerService(db, db, db, gw),
		cps:       cps,
	}
}

// drain leases and executes jobs until the queue is empty, failing the test
// on any handler error.
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for {
		job, err := f.db.Lease(ctx)
		if errors.Is(err, store.ErrNoJobsAvailable) {
			return
		}
		require.NoError(t, err)
		require.NoError(t, f.exec.Execute(ctx, job), "job %s failed", job.Type)
		require.NoError(t, f.db.AckDone(ctx, job.ID))
	}
}

// drainUntil executes jobs until one of the given type is leased, returning
// it still leased and unexecuted.
func (f *fixture) drainUntil(t *testing.T, jobType models.JobType) *models.Job {
	t.Helper()
	ctx := context.Background()
	for {
		job, err := f.db.Lease(ctx)
		require.NoError(t, err)
		if job.Type == jobType {
			return job
		}
		require.NoError(t, f.exec.Execute(ctx, job), "job %s failed", job.Type)
		require.NoError(t, f.db.AckDone(ctx, job.ID))
	}
}

func (f *fixture) startCase(t *testing.T, reportText string) string {
	t.Helper()
	f.gw.media["mxc://hs/pdf1"] = []byte(reportText)
	result, err := f.intake.IngestPDFEvent(context.Background(), chat.PDFIntakeEvent{
		RoomID:       testRooms.Room1ID,
		EventID:      "$origin-1",
		SenderUserID: "@agent:hs",
		PDFSourceURI: "mxc://hs/pdf1",
		Filename:     "laudo.pdf",
	})
	require.NoError(t, err)
	require.True(t, result.Processed)
	return result.CaseID
}

func (f *fixture) status(t *testing.T, caseID string) lifecycle.Status {
	t.Helper()
	c, err := f.db.Get(context.Background(), caseID)
	require.NoError(t, err)
	return c.Status
}

func TestPipelineReachesWaitDoctor(t *testing.T) {
	f := newFixture(t)
	caseID := f.startCase(t, "encaminho paciente para EDA\nregistro 12345\nindicacao: disfagia")

	f.drain(t)

	assert.Equal(t, lifecycle.StatusWaitDoctor, f.status(t, caseID))

	c, err := f.db.Get(context.Background(), caseID)
	require.NoError(t, err)
	require.NotNil(t, c.AgencyRecordNumber)
	assert.Equal(t, "12345", *c.AgencyRecordNumber)
	require.NotNil(t, c.ExtractedText)
	assert.NotContains(t, *c.ExtractedText, "12345")
	assert.NotNil(t, c.StructuredData)
	assert.NotNil(t, c.SuggestedAction)

	widget := f.gw.lastPostTo(testRooms.Room2ID)
	require.NotNil(t, widget)
	assert.Contains(t, widget.Body, "decision: accept|deny")
	assert.Contains(t, widget.Body, "support_flag: none|anesthesist|anesthesist_icu")
	assert.Contains(t, widget.Body, "case_id: "+caseID)

	cp, err := f.db.GetByTarget(context.Background(), testRooms.Room2ID, widget.EventID)
	require.NoError(t, err)
	assert.Equal(t, models.CheckpointPending, cp.Outcome)
}

func TestPipelineHappyPathAcceptConfirmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	caseID := f.startCase(t, "encaminho paciente para EDA\nregistro 12345")
	f.drain(t)

	// Doctor accepts.
	body := "decision: accept\nsupport_flag: none\nreason: ok\ncase_id: " + caseID
	require.NoError(t, f.decisions.HandleDoctorReply(ctx, caseID, chat.ReplyEvent{
		RoomID: testRooms.Room2ID, EventID: "$doc-reply", SenderUserID: "@doc:hs", Body: body,
	}))
	f.drain(t)
	assert.Equal(t, lifecycle.StatusWaitAppt, f.status(t, caseID))

	// The room-3 pair was posted and the request is tracked for replies.
	request := f.gw.lastPostTo(testRooms.Room3ID)
	require.NotNil(t, request)
	assert.Contains(t, request.Body, "caso: "+caseID)

	// Scheduler confirms with the positional shape.
	sched := "22-02-2026 15:30 BRT\nlocal: CHD HGRS\ninstrucoes: jejum de 06 horas\ncaso: " + caseID
	require.NoError(t, f.scheduler.HandleSchedulerReply(ctx, caseID, chat.ReplyEvent{
		RoomID: testRooms.Room3ID, EventID: "$sched-reply", SenderUserID: "@sched:hs", Body: sched,
	}))
	f.drain(t)
	assert.Equal(t, lifecycle.StatusWaitR1CleanupThumbs, f.status(t, caseID))

	final := f.gw.lastPostTo(testRooms.Room1ID)
	require.NotNil(t, final)
	assert.Equal(t, "$origin-1", final.Parent)
	expected := "✅ accepted\n" +
		"appointment: 22-02-2026 15:30 BRT\n" +
		"location: CHD HGRS\n" +
		"instructions: jejum de 06 horas\n" +
		"case: " + caseID
	assert.Equal(t, expected, final.Body)

	// Thumbs-up on the final reply runs cleanup to the terminal status.
	require.NoError(t, f.cps.HandleReaction(ctx, chat.ReactionEvent{
		RoomID: testRooms.Room1ID, EventID: "$thumbs", SenderUserID: "@agent:hs",
		Key: "👍", TargetEventID: final.EventID, ReceivedAt: time.Now().UTC(),
	}))
	f.drain(t)
	assert.Equal(t, lifecycle.StatusCleaned, f.status(t, caseID))
	assert.NotEmpty(t, f.gw.redacted)
}

func TestPipelineDoctorDenialGoesStraightToFinal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	caseID := f.startCase(t, "laudo 12345")
	f.drain(t)

	body := "decision: negar\nsupport_flag: nenhum\nreason: fora de criterio\ncase_id: " + caseID
	require.NoError(t, f.decisions.HandleDoctorReply(ctx, caseID, chat.ReplyEvent{
		RoomID: testRooms.Room2ID, EventID: "$doc-deny", SenderUserID: "@doc:hs", Body: body,
	}))
	f.drain(t)

	assert.Equal(t, lifecycle.StatusWaitR1CleanupThumbs, f.status(t, caseID))
	final := f.gw.lastPostTo(testRooms.Room1ID)
	require.NotNil(t, final)
	assert.Equal(t, "❌ denied (triage)\nreason: fora de criterio\ncase: "+caseID, final.Body)
}

func TestPipelineParseRejectionLeavesCaseUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	caseID := f.startCase(t, "laudo 12345")
	f.drain(t)

	require.NoError(t, f.decisions.HandleDoctorReply(ctx, caseID, chat.ReplyEvent{
		RoomID: testRooms.Room2ID, EventID: "$bad", SenderUserID: "@doc:hs",
		Body: "decision: talvez\nsupport_flag: none\ncase_id: " + caseID,
	}))

	assert.Equal(t, lifecycle.StatusWaitDoctor, f.status(t, caseID))
	rejection := f.gw.lastPostTo(testRooms.Room2ID)
	require.NotNil(t, rejection)
	assert.Contains(t, rejection.Body, "não entendi")
	assert.Contains(t, f.db.Events(caseID), models.EventDoctorReplyRejected)
}

func TestPipelineSchedulerDenial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	caseID := f.startCase(t, "laudo 12345")
	f.drain(t)

	body := "decision: accept\nsupport_flag: anesthesist\ncase_id: " + caseID
	require.NoError(t, f.decisions.HandleDoctorReply(ctx, caseID, chat.ReplyEvent{
		RoomID: testRooms.Room2ID, EventID: "$doc-ok", SenderUserID: "@doc:hs", Body: body,
	}))
	f.drain(t)

	sched := "status: negado\nmotivo: sem vaga na agenda\ncaso: " + caseID
	require.NoError(t, f.scheduler.HandleSchedulerReply(ctx, caseID, chat.ReplyEvent{
		RoomID: testRooms.Room3ID, EventID: "$sched-deny", SenderUserID: "@sched:hs", Body: sched,
	}))
	f.drain(t)

	assert.Equal(t, lifecycle.StatusWaitR1CleanupThumbs, f.status(t, caseID))
	final := f.gw.lastPostTo(testRooms.Room1ID)
	require.NotNil(t, final)
	assert.Equal(t, "❌ denied (appointment)\nreason: sem vaga na agenda\ncase: "+caseID, final.Body)
}

func TestProcessPDFDownloadFailureIsRetriable(t *testing.T) {
	f := newFixture(t)
	caseID := f.startCase(t, "laudo 12345")
	f.gw.failDownload = true

	job, err := f.db.Lease(context.Background())
	require.NoError(t, err)

	execErr := f.exec.Execute(context.Background(), job)
	var herr *HandlerError
	require.ErrorAs(t, execErr, &herr)
	assert.Equal(t, CauseDownload, herr.Cause)
	assert.False(t, herr.Fatal)
	assert.Equal(t, lifecycle.StatusR1AckProcessing, f.status(t, caseID))
}

func TestWidgetPostFailureIsRetriable(t *testing.T) {
	f := newFixture(t)
	caseID := f.startCase(t, "laudo 12345")
	job := f.drainUntil(t, models.JobPostRoom2Widget)

	f.gw.failPosts = true
	execErr := f.exec.Execute(context.Background(), job)
	var herr *HandlerError
	require.ErrorAs(t, execErr, &herr)
	assert.Equal(t, CauseChatPost, herr.Cause)
	assert.False(t, herr.Fatal)
	assert.Equal(t, lifecycle.StatusLLMSuggest, f.status(t, caseID))
}

func TestExecuteSuccessReturnsUntypedNil(t *testing.T) {
	f := newFixture(t)
	f.startCase(t, "laudo 12345")

	job, err := f.db.Lease(context.Background())
	require.NoError(t, err)

	execErr := f.exec.Execute(context.Background(), job)
	// A typed nil boxed into the interface would compare non-nil here and
	// send every successful job down the failure branch.
	require.True(t, execErr == nil, "expected untyped nil, got %#v", execErr)
}

func TestRedeliveredJobAfterCommitIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	caseID := f.startCase(t, "encaminho paciente para EDA\nregistro 12345")

	// Run the extraction step to completion but lose the ack, as a crash
	// between the commit and AckDone would.
	job, err := f.db.Lease(ctx)
	require.NoError(t, err)
	require.Equal(t, models.JobProcessPDFCase, job.Type)
	require.NoError(t, f.exec.Execute(ctx, job))
	assert.Equal(t, lifecycle.StatusExtracting, f.status(t, caseID))

	// Bootstrap reconciliation hands the committed job out again.
	n, err := f.db.RequeueRunning(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	f.drain(t)
	assert.Equal(t, lifecycle.StatusWaitDoctor, f.status(t, caseID))

	// The widget went out exactly once despite the duplicate delivery.
	var widgets int
	for _, p := range f.gw.posts {
		if p.RoomID == testRooms.Room2ID {
			widgets++
		}
	}
	assert.Equal(t, 1, widgets)
}

func TestFailureReplyBeforeExtractionStillCleansUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	caseID := f.startCase(t, "laudo 12345")

	// The download never succeeds; retries exhaust with the case still in
	// its first status.
	f.gw.failDownload = true
	job, err := f.db.Lease(ctx)
	require.NoError(t, err)
	execErr := f.exec.Execute(ctx, job)
	var herr *HandlerError
	require.ErrorAs(t, execErr, &herr)
	require.NoError(t, f.db.AckFailed(ctx, job.ID, execErr.Error()))

	payload, _ := json.Marshal(models.FailurePayload{Cause: CauseDownload, Details: "media unavailable"})
	_, err = f.db.Enqueue(ctx, &caseID, models.JobPostRoom1FinalFailure, payload, time.Time{})
	require.NoError(t, err)
	f.drain(t)

	// The reply is posted and recorded even though the lifecycle has no
	// failure edge from the current status.
	assert.Equal(t, lifecycle.StatusR1AckProcessing, f.status(t, caseID))
	final := f.gw.lastPostTo(testRooms.Room1ID)
	require.NotNil(t, final)
	assert.Contains(t, final.Body, "⚠️ processing failed")
	assert.Contains(t, f.db.Events(caseID), models.EventRoom1FinalPosted)

	// The thumbs-up ack still drives cleanup to the end.
	require.NoError(t, f.cps.HandleReaction(ctx, chat.ReactionEvent{
		RoomID: testRooms.Room1ID, EventID: "$thumbs", SenderUserID: "@agent:hs",
		Key: "👍", TargetEventID: final.EventID, ReceivedAt: time.Now().UTC(),
	}))
	f.drain(t)
	assert.NotEmpty(t, f.gw.redacted)
	assert.Contains(t, f.db.Events(caseID), models.EventCleanupCompleted)
}

func TestExecuteUnknownJobTypeIsFatal(t *testing.T) {
	f := newFixture(t)
	caseID := "case-x"
	err := f.exec.Execute(context.Background(), &models.Job{ID: 1, CaseID: &caseID, Type: "bogus"})
	var herr *HandlerError
	require.ErrorAs(t, err, &herr)
	assert.True(t, herr.Fatal)
}
