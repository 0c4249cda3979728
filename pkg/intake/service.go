// Package intake turns qualifying room-1 PDF events into cases. The path is
// observably idempotent per origin event id: the unique index on the origin
// event decides the race, and the loser produces no side effects.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/chat"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/store"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/template"
)

// ReasonDuplicateOriginEvent is reported when the origin event already
// produced a case.
const ReasonDuplicateOriginEvent = "duplicate_origin_event"

// CaseCreator is the case store subset intake needs.
type CaseCreator interface {
	Create(ctx context.Context, params models.NewCaseParams) (*models.Case, error)
}

// Journal is the journal store subset intake needs.
type Journal interface {
	AppendCaseEvent(ctx context.Context, event models.CaseEvent) error
	AddCaseMessage(ctx context.Context, msg models.CaseMessage) error
}

// JobQueue is the queue subset intake needs.
type JobQueue interface {
	Enqueue(ctx context.Context, caseID *string, jobType models.JobType, payload json.RawMessage, runAfter time.Time) (*models.Job, error)
}

// Service is the intake service.
type Service struct {
	cases   CaseCreator
	journal Journal
	jobs    JobQueue
	gateway chat.Gateway
	logger  *slog.Logger
}

// NewService creates the intake service.
func NewService(cases CaseCreator, journal Journal, jobs JobQueue, gateway chat.Gateway) *Service {
	return &Service{
		cases:   cases,
		journal: journal,
		jobs:    jobs,
		gateway: gateway,
		logger:  slog.Default().With("component", "intake"),
	}
}

// IngestPDFEvent creates a case for a PDF event, posts the processing ack,
// and enqueues the first pipeline job. A duplicate origin event returns
// processed=false without posting anything.
func (s *Service) IngestPDFEvent(ctx context.Context, ev chat.PDFIntakeEvent) (*chat.IntakeResult, error) {
	created, err := s.cases.Create(ctx, models.NewCaseParams{
		CaseID:             uuid.NewString(),
		Room1OriginRoomID:  ev.RoomID,
		Room1OriginEventID: ev.EventID,
		Room1SenderUserID:  ev.SenderUserID,
		PDFSourceURI:       ev.PDFSourceURI,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateOriginEvent) {
			return &chat.IntakeResult{Processed: false, Reason: ReasonDuplicateOriginEvent}, nil
		}
		return nil, fmt.Errorf("creating case for %s: %w", ev.EventID, err)
	}

	acceptedPayload, _ := json.Marshal(map[string]string{
		"pdf_uri":  ev.PDFSourceURI,
		"filename": ev.Filename,
		"mimetype": ev.Mimetype,
	})
	if err := s.journal.AppendCaseEvent(ctx, models.CaseEvent{
		CaseID:          created.ID,
		ActorType:       models.ActorHuman,
		ActorUserID:     &ev.SenderUserID,
		RoomID:          &ev.RoomID,
		ExternalEventID: &ev.EventID,
		EventType:       models.EventRoom1PDFAccepted,
		Payload:         acceptedPayload,
	}); err != nil {
		return nil, err
	}
	if err := s.journal.AddCaseMessage(ctx, models.CaseMessage{
		CaseID:          created.ID,
		RoomID:          ev.RoomID,
		ExternalEventID: ev.EventID,
		SenderUserID:    &ev.SenderUserID,
		Kind:            models.MsgRoom1Origin,
	}); err != nil && !errors.Is(err, store.ErrDuplicateCaseMessage) {
		return nil, err
	}

	ackEventID, err := s.gateway.ReplyText(ctx, ev.RoomID, ev.EventID, template.ProcessingAck)
	if err != nil {
		// The case exists and the pipeline job is still worth running; the
		// missing ack only costs user feedback.
		s.logger.Error("Posting processing ack failed",
			"case_id", created.ID, "error", err)
	} else {
		if err := s.journal.AddCaseMessage(ctx, models.CaseMessage{
			CaseID:          created.ID,
			RoomID:          ev.RoomID,
			ExternalEventID: ackEventID,
			Kind:            models.MsgBotProcessing,
		}); err != nil && !errors.Is(err, store.ErrDuplicateCaseMessage) {
			return nil, err
		}
		if err := s.journal.AppendCaseEvent(ctx, models.CaseEvent{
			CaseID:          created.ID,
			ActorType:       models.ActorBot,
			RoomID:          &ev.RoomID,
			ExternalEventID: &ackEventID,
			EventType:       models.EventRoom1ProcessingAck,
		}); err != nil {
			return nil, err
		}
	}

	if _, err := s.jobs.Enqueue(ctx, &created.ID, models.JobProcessPDFCase, nil, time.Time{}); err != nil {
		return nil, fmt.Errorf("enqueueing pipeline start for %s: %w", created.ID, err)
	}

	return &chat.IntakeResult{Processed: true, CaseID: created.ID}, nil
}
