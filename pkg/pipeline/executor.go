// Package pipeline implements the case workflow: the step handlers the
// worker dispatches jobs to, and the reply services behind the chat router
// and the widget API. Handlers follow a fixed shape: external call first,
// then the database writes recording the result and enqueueing the
// successor.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/chat"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/lifecycle"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/llm"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/store"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/template"
)

// Prompt template names the pipeline loads.
const (
	PromptLLM1System = "llm1_system"
	PromptLLM1User   = "llm1_user"
	PromptLLM2System = "llm2_system"
	PromptLLM2User   = "llm2_user"
)

// CaseStore is the case store subset the handlers mutate through.
type CaseStore interface {
	Get(ctx context.Context, caseID string) (*models.Case, error)
	SetStatusWithTransition(ctx context.Context, caseID string, to lifecycle.Status) error
	StorePDFExtraction(ctx context.Context, caseID, extractedText, recordNumber string) error
	StoreLLM1Artifacts(ctx context.Context, caseID string, structured json.RawMessage) error
	StoreSuggestedAction(ctx context.Context, caseID string, action json.RawMessage) error
	SetRoom1FinalReply(ctx context.Context, caseID, eventID string) error
	MarkCleanupCompleted(ctx context.Context, caseID string) error
}

// Journal is the journal subset the handlers write to.
type Journal interface {
	AppendCaseEvent(ctx context.Context, event models.CaseEvent) error
	AddCaseMessage(ctx context.Context, msg models.CaseMessage) error
	ListMessageRefsForCase(ctx context.Context, caseID string) ([]models.CaseMessage, error)
	AddTranscript(ctx context.Context, t models.Transcript) error
}

// JobQueue is the queue subset the handlers enqueue successors through.
type JobQueue interface {
	Enqueue(ctx context.Context, caseID *string, jobType models.JobType, payload json.RawMessage, runAfter time.Time) (*models.Job, error)
}

// Checkpoints registers expected positive reactions on outbound posts.
type Checkpoints interface {
	Expect(ctx context.Context, caseID string, stage models.CheckpointStage, roomID, targetEventID string) error
}

// PromptSource loads active prompt templates.
type PromptSource interface {
	GetActive(ctx context.Context, name string) (*models.PromptTemplate, error)
}

// Executor dispatches leased jobs to step handlers.
type Executor struct {
	cases       CaseStore
	journal     Journal
	jobs        JobQueue
	checkpoints Checkpoints
	gateway     chat.Gateway
	llm         llm.Client
	prompts     PromptSource
	extractor   TextExtractor
	rooms       chat.RoomConfig
	logger      *slog.Logger
}

// NewExecutor creates the step executor.
func NewExecutor(cases CaseStore, journal Journal, jobs JobQueue, checkpoints Checkpoints, gateway chat.Gateway, llmClient llm.Client, prompts PromptSource, extractor TextExtractor, rooms chat.RoomConfig) *Executor {
	return &Executor{
		cases:       cases,
		journal:     journal,
		jobs:        jobs,
		checkpoints: checkpoints,
		gateway:     gateway,
		llm:         llmClient,
		prompts:     prompts,
		extractor:   extractor,
		rooms:       rooms,
		logger:      slog.Default().With("component", "pipeline"),
	}
}

// Execute runs the handler for a leased job. A nil return acknowledges the
// job; a *HandlerError drives the retry/fail decision.
func (e *Executor) Execute(ctx context.Context, job *models.Job) error {
	if job.CaseID == nil {
		return Fatalf(CauseFatal, "job %d has no case", job.ID)
	}
	caseID := *job.CaseID

	switch job.Type {
	case models.JobProcessPDFCase:
		return e.processPDFCase(ctx, caseID)
	case models.JobRunLLM1:
		return e.runLLM1(ctx, caseID)
	case models.JobRunLLM2:
		return e.runLLM2(ctx, caseID)
	case models.JobPostRoom2Widget:
		return e.postRoom2Widget(ctx, caseID)
	case models.JobPostRoom3Request:
		return e.postRoom3Request(ctx, caseID)
	case models.JobPostRoom1FinalAppt,
		models.JobPostRoom1FinalApptDenied,
		models.JobPostRoom1FinalDenialTriage:
		return e.postRoom1Final(ctx, caseID, job.Type, nil)
	case models.JobPostRoom1FinalFailure:
		var failure models.FailurePayload
		if err := json.Unmarshal(job.Payload, &failure); err != nil {
			return Fatalf(CauseFatal, "decoding failure payload: %v", err)
		}
		return e.postRoom1Final(ctx, caseID, job.Type, &failure)
	case models.JobCleanupCase:
		return e.cleanupCase(ctx, caseID)
	default:
		return Fatalf(CauseFatal, "unknown job type %q", job.Type)
	}
}

// storeErr classifies a store failure: transition violations are bug-class
// fatal, everything else is a retriable db error.
func storeErr(err error) *HandlerError {
	var terr *lifecycle.TransitionError
	if errors.As(err, &terr) {
		return &HandlerError{Cause: CauseFatal, Fatal: true, Err: err}
	}
	return Retriable(CauseDB, err)
}

func (e *Executor) loadCase(ctx context.Context, caseID string) (*models.Case, *HandlerError) {
	c, err := e.cases.Get(ctx, caseID)
	if err != nil {
		return nil, Retriable(CauseDB, err)
	}
	return c, nil
}

// appendEvent and enqueue return error, not *HandlerError: handlers hand
// their result straight back as error, and a typed nil would box into a
// non-nil interface there.
func (e *Executor) appendEvent(ctx context.Context, caseID, eventType string, payload json.RawMessage, roomID, eventID *string) error {
	err := e.journal.AppendCaseEvent(ctx, models.CaseEvent{
		CaseID:          caseID,
		ActorType:       models.ActorSystem,
		RoomID:          roomID,
		ExternalEventID: eventID,
		EventType:       eventType,
		Payload:         payload,
	})
	if err != nil {
		return Retriable(CauseDB, err)
	}
	return nil
}

func (e *Executor) enqueue(ctx context.Context, caseID string, jobType models.JobType, payload json.RawMessage) error {
	if _, err := e.jobs.Enqueue(ctx, &caseID, jobType, payload, time.Time{}); err != nil {
		return Retriable(CauseDB, err)
	}
	return nil
}

// dropRedelivered acknowledges a job whose case has already advanced past
// the step's result status: the work, including the successor enqueue, is
// committed and a later step owns the case now.
func (e *Executor) dropRedelivered(caseID string, status lifecycle.Status) error {
	e.logger.Info("Dropping redelivered job, case already advanced",
		"case_id", caseID, "status", status)
	return nil
}

func (e *Executor) processPDFCase(ctx context.Context, caseID string) error {
	c, herr := e.loadCase(ctx, caseID)
	if herr != nil {
		return herr
	}
	// The queue is at-least-once: a crash between the extraction commit and
	// the ack redelivers this job. Re-enqueue the successor instead of
	// re-running the committed step.
	if c.Status != lifecycle.StatusR1AckProcessing {
		if c.Status == lifecycle.StatusExtracting {
			return e.enqueue(ctx, caseID, models.JobRunLLM1, nil)
		}
		return e.dropRedelivered(caseID, c.Status)
	}

	data, err := e.gateway.DownloadMedia(ctx, c.PDFSourceURI)
	if err != nil {
		return Retriable(CauseDownload, err)
	}
	text, err := e.extractor.Extract(ctx, data)
	if err != nil {
		return Retriable(CauseExtract, err)
	}

	recordNumber, cleanText := ExtractRecordNumber(text, time.Now().UTC())

	if err := e.journal.AddTranscript(ctx, models.Transcript{
		CaseID:   caseID,
		Kind:     models.TranscriptPDFText,
		Response: cleanText,
	}); err != nil {
		return Retriable(CauseDB, err)
	}
	if err := e.cases.StorePDFExtraction(ctx, caseID, cleanText, recordNumber); err != nil {
		return storeErr(err)
	}
	payload, _ := json.Marshal(map[string]string{"agency_record_number": recordNumber})
	if err := e.appendEvent(ctx, caseID, models.EventPDFExtracted, payload, nil, nil); err != nil {
		return err
	}
	return e.enqueue(ctx, caseID, models.JobRunLLM1, nil)
}

// renderPrompt substitutes the {{placeholder}} tokens a prompt declares.
func renderPrompt(content string, vars map[string]string) string {
	for key, value := range vars {
		content = strings.ReplaceAll(content, "{{"+key+"}}", value)
	}
	return content
}

func (e *Executor) loadPromptPair(ctx context.Context, systemName, userName string) (system, user *models.PromptTemplate, herr *HandlerError) {
	system, err := e.prompts.GetActive(ctx, systemName)
	if err != nil {
		return nil, nil, Retriable(CauseDB, fmt.Errorf("loading %s: %w", systemName, err))
	}
	user, err = e.prompts.GetActive(ctx, userName)
	if err != nil {
		return nil, nil, Retriable(CauseDB, fmt.Errorf("loading %s: %w", userName, err))
	}
	return system, user, nil
}

func promptAudit(prompts ...*models.PromptTemplate) json.RawMessage {
	type ref struct {
		Name    string `json:"name"`
		Version int    `json:"version"`
	}
	refs := make([]ref, 0, len(prompts))
	for _, p := range prompts {
		refs = append(refs, ref{Name: p.Name, Version: p.Version})
	}
	payload, _ := json.Marshal(map[string]any{"prompts": refs})
	return payload
}

func (e *Executor) runLLM1(ctx context.Context, caseID string) error {
	c, herr := e.loadCase(ctx, caseID)
	if herr != nil {
		return herr
	}
	if c.Status != lifecycle.StatusExtracting {
		if c.Status == lifecycle.StatusLLMStruct {
			return e.enqueue(ctx, caseID, models.JobRunLLM2, nil)
		}
		return e.dropRedelivered(caseID, c.Status)
	}
	if c.ExtractedText == nil || c.AgencyRecordNumber == nil {
		return Fatalf(CauseFatal, "case %s has no extracted text", caseID)
	}

	system, user, herr := e.loadPromptPair(ctx, PromptLLM1System, PromptLLM1User)
	if herr != nil {
		return herr
	}
	userPrompt := renderPrompt(user.Content, map[string]string{
		"agency_record_number": *c.AgencyRecordNumber,
		"report_text":          *c.ExtractedText,
	})

	out, err := e.llm.Complete(ctx, llm.Request{
		System:       system.Content,
		User:         userPrompt,
		Kind:         llm.KindStructured,
		RecordNumber: *c.AgencyRecordNumber,
	})
	if err != nil {
		return Retriable(CauseLLM1, err)
	}
	if _, err := models.ParseStructuredReport([]byte(out), *c.AgencyRecordNumber); err != nil {
		return Retriable(CauseLLM1, err)
	}

	if err := e.journal.AddTranscript(ctx, models.Transcript{
		CaseID:        caseID,
		Kind:          models.TranscriptLLM1,
		PromptName:    &user.Name,
		PromptVersion: &user.Version,
		Request:       &userPrompt,
		Response:      out,
	}); err != nil {
		return Retriable(CauseDB, err)
	}
	if err := e.cases.StoreLLM1Artifacts(ctx, caseID, json.RawMessage(out)); err != nil {
		return storeErr(err)
	}
	if err := e.appendEvent(ctx, caseID, models.EventLLM1Completed, promptAudit(system, user), nil, nil); err != nil {
		return err
	}
	return e.enqueue(ctx, caseID, models.JobRunLLM2, nil)
}

func (e *Executor) runLLM2(ctx context.Context, caseID string) error {
	c, herr := e.loadCase(ctx, caseID)
	if herr != nil {
		return herr
	}
	if c.Status != lifecycle.StatusLLMStruct {
		if c.Status == lifecycle.StatusLLMSuggest {
			return e.enqueue(ctx, caseID, models.JobPostRoom2Widget, nil)
		}
		return e.dropRedelivered(caseID, c.Status)
	}
	if c.StructuredData == nil {
		return Fatalf(CauseFatal, "case %s has no structured data", caseID)
	}

	system, user, herr := e.loadPromptPair(ctx, PromptLLM2System, PromptLLM2User)
	if herr != nil {
		return herr
	}
	userPrompt := renderPrompt(user.Content, map[string]string{
		"structured_data": string(c.StructuredData),
	})

	out, err := e.llm.Complete(ctx, llm.Request{
		System: system.Content,
		User:   userPrompt,
		Kind:   llm.KindSuggestion,
	})
	if err != nil {
		return Retriable(CauseLLM2, err)
	}
	if _, err := models.ParseSuggestedAction([]byte(out)); err != nil {
		return Retriable(CauseLLM2, err)
	}

	if err := e.journal.AddTranscript(ctx, models.Transcript{
		CaseID:        caseID,
		Kind:          models.TranscriptLLM2,
		PromptName:    &user.Name,
		PromptVersion: &user.Version,
		Request:       &userPrompt,
		Response:      out,
	}); err != nil {
		return Retriable(CauseDB, err)
	}
	if err := e.cases.StoreSuggestedAction(ctx, caseID, json.RawMessage(out)); err != nil {
		return storeErr(err)
	}
	if err := e.appendEvent(ctx, caseID, models.EventLLM2Completed, promptAudit(system, user), nil, nil); err != nil {
		return err
	}
	return e.enqueue(ctx, caseID, models.JobPostRoom2Widget, nil)
}

func (e *Executor) postRoom2Widget(ctx context.Context, caseID string) error {
	c, herr := e.loadCase(ctx, caseID)
	if herr != nil {
		return herr
	}
	switch c.Status {
	case lifecycle.StatusLLMSuggest:
		// First delivery, post below.
	case lifecycle.StatusR2PostWidget:
		// Redelivered after the widget went out but before the wait
		// transition committed. The message ref is already recorded.
		if err := e.cases.SetStatusWithTransition(ctx, caseID, lifecycle.StatusWaitDoctor); err != nil {
			return storeErr(err)
		}
		return e.appendEvent(ctx, caseID, models.EventRoom2WidgetPosted, nil, &e.rooms.Room2ID, nil)
	default:
		return e.dropRedelivered(caseID, c.Status)
	}
	if c.StructuredData == nil || c.AgencyRecordNumber == nil {
		return Fatalf(CauseFatal, "case %s missing artifacts for widget", caseID)
	}
	report, err := models.ParseStructuredReport(c.StructuredData, *c.AgencyRecordNumber)
	if err != nil {
		return Fatalf(CauseFatal, "stored structured data invalid: %v", err)
	}
	var suggestion *models.SuggestedAction
	if c.SuggestedAction != nil {
		suggestion, err = models.ParseSuggestedAction(c.SuggestedAction)
		if err != nil {
			return Fatalf(CauseFatal, "stored suggestion invalid: %v", err)
		}
	}

	body := template.RenderRoom2Widget(c.PDFSourceURI, report.SummaryText(), suggestion, caseID)
	eventID, err := e.gateway.PostText(ctx, e.rooms.Room2ID, body)
	if err != nil {
		return Retriable(CauseChatPost, err)
	}

	if err := e.journal.AddCaseMessage(ctx, models.CaseMessage{
		CaseID:          caseID,
		RoomID:          e.rooms.Room2ID,
		ExternalEventID: eventID,
		Kind:            models.MsgRoom2Root,
	}); err != nil {
		return Retriable(CauseDB, err)
	}
	if err := e.checkpoints.Expect(ctx, caseID, models.StageRoom2Ack, e.rooms.Room2ID, eventID); err != nil {
		return Retriable(CauseDB, err)
	}
	if err := e.cases.SetStatusWithTransition(ctx, caseID, lifecycle.StatusR2PostWidget); err != nil {
		return storeErr(err)
	}
	if err := e.cases.SetStatusWithTransition(ctx, caseID, lifecycle.StatusWaitDoctor); err != nil {
		return storeErr(err)
	}
	return e.appendEvent(ctx, caseID, models.EventRoom2WidgetPosted, nil, &e.rooms.Room2ID, &eventID)
}

func (e *Executor) postRoom3Request(ctx context.Context, caseID string) error {
	c, herr := e.loadCase(ctx, caseID)
	if herr != nil {
		return herr
	}
	switch c.Status {
	case lifecycle.StatusDoctorAccepted:
		// First delivery, post below.
	case lifecycle.StatusR3PostRequest:
		if err := e.cases.SetStatusWithTransition(ctx, caseID, lifecycle.StatusWaitAppt); err != nil {
			return storeErr(err)
		}
		return e.appendEvent(ctx, caseID, models.EventRoom3RequestPosted, nil, &e.rooms.Room3ID, nil)
	default:
		return e.dropRedelivered(caseID, c.Status)
	}
	if c.StructuredData == nil || c.AgencyRecordNumber == nil {
		return Fatalf(CauseFatal, "case %s missing artifacts for scheduling", caseID)
	}
	report, err := models.ParseStructuredReport(c.StructuredData, *c.AgencyRecordNumber)
	if err != nil {
		return Fatalf(CauseFatal, "stored structured data invalid: %v", err)
	}
	support := models.SupportNone
	if c.DoctorSupport != nil {
		support = *c.DoctorSupport
	}

	requestBody := template.RenderRoom3Request(report.Patient.Name, *c.AgencyRecordNumber, support, caseID)
	requestEventID, err := e.gateway.PostText(ctx, e.rooms.Room3ID, requestBody)
	if err != nil {
		return Retriable(CauseChatPost, err)
	}
	templateEventID, err := e.gateway.PostText(ctx, e.rooms.Room3ID, template.RenderRoom3Template(caseID))
	if err != nil {
		return Retriable(CauseChatPost, err)
	}

	for _, msg := range []models.CaseMessage{
		{CaseID: caseID, RoomID: e.rooms.Room3ID, ExternalEventID: requestEventID, Kind: models.MsgRoom3Request},
		{CaseID: caseID, RoomID: e.rooms.Room3ID, ExternalEventID: templateEventID, Kind: models.MsgRoom3Template},
	} {
		if err := e.journal.AddCaseMessage(ctx, msg); err != nil {
			return Retriable(CauseDB, err)
		}
	}
	if err := e.checkpoints.Expect(ctx, caseID, models.StageRoom3Ack, e.rooms.Room3ID, requestEventID); err != nil {
		return Retriable(CauseDB, err)
	}
	if err := e.cases.SetStatusWithTransition(ctx, caseID, lifecycle.StatusR3PostRequest); err != nil {
		return storeErr(err)
	}
	if err := e.cases.SetStatusWithTransition(ctx, caseID, lifecycle.StatusWaitAppt); err != nil {
		return storeErr(err)
	}
	return e.appendEvent(ctx, caseID, models.EventRoom3RequestPosted, nil, &e.rooms.Room3ID, &requestEventID)
}

// finalBody renders the room-1 final reply for a terminal branch.
func finalBody(c *models.Case, jobType models.JobType, failure *models.FailurePayload) (string, *HandlerError) {
	switch jobType {
	case models.JobPostRoom1FinalAppt:
		if c.AppointmentAt == nil {
			return "", Fatalf(CauseFatal, "case %s has no appointment time", c.ID)
		}
		location := ""
		if c.AppointmentLocation != nil {
			location = *c.AppointmentLocation
		}
		instructions := ""
		if c.AppointmentInstructions != nil {
			instructions = *c.AppointmentInstructions
		}
		return template.RenderRoom1FinalAccepted(*c.AppointmentAt, location, instructions, c.ID), nil
	case models.JobPostRoom1FinalApptDenied:
		return template.RenderRoom1FinalDenialAppt(c.AppointmentReason, c.ID), nil
	case models.JobPostRoom1FinalDenialTriage:
		return template.RenderRoom1FinalDenialTriage(c.DoctorReason, c.ID), nil
	case models.JobPostRoom1FinalFailure:
		return template.RenderRoom1FinalFailure(failure.Cause, failure.Details, c.ID), nil
	default:
		return "", Fatalf(CauseFatal, "not a final-reply job: %q", jobType)
	}
}

func (e *Executor) postRoom1Final(ctx context.Context, caseID string, jobType models.JobType, failure *models.FailurePayload) error {
	c, herr := e.loadCase(ctx, caseID)
	if herr != nil {
		return herr
	}

	var eventID string
	if c.Room1FinalReplyEventID != nil {
		// An earlier attempt already delivered the reply; only the
		// bookkeeping after the send may still be missing.
		switch c.Status {
		case lifecycle.StatusWaitR1CleanupThumbs, lifecycle.StatusCleanupRunning,
			lifecycle.StatusCleaned, lifecycle.StatusR1FinalReplyPosted:
			return nil
		}
		eventID = *c.Room1FinalReplyEventID
	} else {
		body, herr := finalBody(c, jobType, failure)
		if herr != nil {
			return herr
		}
		var err error
		eventID, err = e.gateway.ReplyText(ctx, c.Room1OriginRoomID, c.Room1OriginEventID, body)
		if err != nil {
			return Retriable(CauseChatPost, err)
		}
		if err := e.cases.SetRoom1FinalReply(ctx, caseID, eventID); err != nil {
			return Retriable(CauseDB, err)
		}
	}

	if err := e.journal.AddCaseMessage(ctx, models.CaseMessage{
		CaseID:          caseID,
		RoomID:          c.Room1OriginRoomID,
		ExternalEventID: eventID,
		Kind:            models.MsgRoom1Final,
	}); err != nil && !errors.Is(err, store.ErrDuplicateCaseMessage) {
		return Retriable(CauseDB, err)
	}
	if err := e.checkpoints.Expect(ctx, caseID, models.StageRoom1Final, c.Room1OriginRoomID, eventID); err != nil {
		return Retriable(CauseDB, err)
	}
	if err := e.cases.SetStatusWithTransition(ctx, caseID, lifecycle.StatusWaitR1CleanupThumbs); err != nil {
		var terr *lifecycle.TransitionError
		if jobType != models.JobPostRoom1FinalFailure || !errors.As(err, &terr) {
			return storeErr(err)
		}
		// Retry exhaustion can hit a case the lifecycle gives no failure
		// edge to, e.g. a download that never got past the first status.
		// The reply is out and the checkpoint registered; cleanup
		// reconciles the rest when the thumbs-up lands.
		e.logger.Warn("Case has no path to the cleanup wait status after failure reply",
			"case_id", caseID, "status", c.Status)
	}
	return e.appendEvent(ctx, caseID, models.EventRoom1FinalPosted, nil, &c.Room1OriginRoomID, &eventID)
}

func (e *Executor) cleanupCase(ctx context.Context, caseID string) error {
	c, herr := e.loadCase(ctx, caseID)
	if herr != nil {
		return herr
	}
	// A redelivered cleanup job may find the transition already made, or
	// the whole cleanup already finished.
	switch c.Status {
	case lifecycle.StatusCleaned:
		return nil
	case lifecycle.StatusWaitR1CleanupThumbs:
		if err := e.cases.SetStatusWithTransition(ctx, caseID, lifecycle.StatusCleanupRunning); err != nil {
			return storeErr(err)
		}
	case lifecycle.StatusCleanupRunning:
		// Resumed run.
	default:
		if c.Room1FinalReplyEventID == nil {
			return Fatalf(CauseFatal, "case %s not awaiting cleanup (status %s)", caseID, c.Status)
		}
		// The final reply went out while the case sat outside the failure
		// branch of the lifecycle. Redact anyway; the completion transition
		// will not apply, so completion lands in the journal only.
	}

	refs, err := e.journal.ListMessageRefsForCase(ctx, caseID)
	if err != nil {
		return Retriable(CauseDB, err)
	}
	for _, ref := range refs {
		eventType := models.EventMatrixEventRedacted
		if err := e.gateway.RedactEvent(ctx, ref.RoomID, ref.ExternalEventID, "triage case cleanup"); err != nil {
			e.logger.Warn("Redaction failed",
				"case_id", caseID, "event_id", ref.ExternalEventID, "error", err)
			eventType = models.EventMatrixRedactionFailed
		}
		payload, _ := json.Marshal(map[string]string{"kind": string(ref.Kind)})
		if err := e.appendEvent(ctx, caseID, eventType, payload, &ref.RoomID, &ref.ExternalEventID); err != nil {
			return err
		}
	}

	if err := e.cases.MarkCleanupCompleted(ctx, caseID); err != nil {
		var terr *lifecycle.TransitionError
		if !errors.As(err, &terr) {
			return Retriable(CauseDB, err)
		}
		e.logger.Warn("Cleanup finished outside the cleanup statuses",
			"case_id", caseID, "status", c.Status)
	}
	return e.appendEvent(ctx, caseID, models.EventCleanupCompleted, nil, nil, nil)
}
