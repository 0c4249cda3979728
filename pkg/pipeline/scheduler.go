package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/chat"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/template"
)

// SchedulerCases is the case store subset the scheduler service needs.
type SchedulerCases interface {
	RecordSchedulerOutcome(ctx context.Context, caseID string, outcome models.SchedulerOutcome) error
}

// SchedulerService records room-3 scheduling outcomes.
type SchedulerService struct {
	cases   SchedulerCases
	journal Journal
	jobs    JobQueue
	gateway chat.Gateway
	logger  *slog.Logger
}

// NewSchedulerService creates the scheduler service.
func NewSchedulerService(cases SchedulerCases, journal Journal, jobs JobQueue, gateway chat.Gateway) *SchedulerService {
	return &SchedulerService{
		cases:   cases,
		journal: journal,
		jobs:    jobs,
		gateway: gateway,
		logger:  slog.Default().With("component", "scheduler"),
	}
}

// HandleSchedulerReply parses a room-3 reply, records the outcome, and
// enqueues the matching final-reply job. Template violations get an in-chat
// rejection and leave the case untouched.
func (s *SchedulerService) HandleSchedulerReply(ctx context.Context, caseID string, ev chat.ReplyEvent) error {
	reply, perr := template.ParseSchedulerReply(ev.Body, caseID)
	if perr != nil {
		payload, _ := json.Marshal(map[string]string{"reason": perr.Reason, "detail": perr.Detail})
		if err := s.journal.AppendCaseEvent(ctx, models.CaseEvent{
			CaseID:          caseID,
			ActorType:       models.ActorHuman,
			ActorUserID:     &ev.SenderUserID,
			RoomID:          &ev.RoomID,
			ExternalEventID: &ev.EventID,
			EventType:       models.EventSchedulerReplyRejected,
			Payload:         payload,
		}); err != nil {
			return err
		}
		if _, err := s.gateway.ReplyText(ctx, ev.RoomID, ev.EventID, template.RenderParseRejection(perr)); err != nil {
			s.logger.Error("Posting parse rejection failed", "case_id", caseID, "error", err)
		}
		return nil
	}

	if err := s.cases.RecordSchedulerOutcome(ctx, caseID, reply.Outcome); err != nil {
		return fmt.Errorf("recording scheduler outcome for %s: %w", caseID, err)
	}

	payload, _ := json.Marshal(map[string]any{"status": reply.Outcome.Status})
	if err := s.journal.AppendCaseEvent(ctx, models.CaseEvent{
		CaseID:          caseID,
		ActorType:       models.ActorHuman,
		ActorUserID:     &ev.SenderUserID,
		RoomID:          &ev.RoomID,
		ExternalEventID: &ev.EventID,
		EventType:       models.EventSchedulerOutcome,
		Payload:         payload,
	}); err != nil {
		return err
	}

	next := models.JobPostRoom1FinalAppt
	if reply.Outcome.Status == models.AppointmentDenied {
		next = models.JobPostRoom1FinalApptDenied
	}
	if _, err := s.jobs.Enqueue(ctx, &caseID, next, nil, time.Time{}); err != nil {
		return fmt.Errorf("enqueueing %s for %s: %w", next, caseID, err)
	}

	if _, err := s.gateway.ReplyText(ctx, ev.RoomID, ev.EventID, template.RenderSchedulerAck(reply.Outcome.Status)); err != nil {
		s.logger.Error("Posting scheduler ack failed", "case_id", caseID, "error", err)
	}
	return nil
}
