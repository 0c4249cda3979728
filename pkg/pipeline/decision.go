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

// DecisionCases is the case store subset the decision service needs.
type DecisionCases interface {
	Get(ctx context.Context, caseID string) (*models.Case, error)
	RecordDoctorDecision(ctx context.Context, caseID string, decision models.DoctorDecision, support models.SupportFlag, reason *string) error
}

// DecisionService records doctor decisions. The chat reply path and the
// widget API delegate to the same Apply, so both honor the same state
// guards and enqueue the same successor.
type DecisionService struct {
	cases   DecisionCases
	journal Journal
	jobs    JobQueue
	gateway chat.Gateway
	logger  *slog.Logger
}

// NewDecisionService creates the decision service.
func NewDecisionService(cases DecisionCases, journal Journal, jobs JobQueue, gateway chat.Gateway) *DecisionService {
	return &DecisionService{
		cases:   cases,
		journal: journal,
		jobs:    jobs,
		gateway: gateway,
		logger:  slog.Default().With("component", "decisions"),
	}
}

// HandleDoctorReply parses a room-2 reply against the strict template. A
// template violation gets an in-chat rejection citing the reason and leaves
// the case untouched.
func (s *DecisionService) HandleDoctorReply(ctx context.Context, caseID string, ev chat.ReplyEvent) error {
	reply, perr := template.ParseDoctorReply(ev.Body, caseID)
	if perr != nil {
		payload, _ := json.Marshal(map[string]string{"reason": perr.Reason, "detail": perr.Detail})
		if err := s.journal.AppendCaseEvent(ctx, models.CaseEvent{
			CaseID:          caseID,
			ActorType:       models.ActorHuman,
			ActorUserID:     &ev.SenderUserID,
			RoomID:          &ev.RoomID,
			ExternalEventID: &ev.EventID,
			EventType:       models.EventDoctorReplyRejected,
			Payload:         payload,
		}); err != nil {
			return err
		}
		if _, err := s.gateway.ReplyText(ctx, ev.RoomID, ev.EventID, template.RenderParseRejection(perr)); err != nil {
			s.logger.Error("Posting parse rejection failed", "case_id", caseID, "error", err)
		}
		return nil
	}

	if err := s.Apply(ctx, caseID, reply, &ev.SenderUserID, &ev.RoomID, &ev.EventID); err != nil {
		return err
	}
	if _, err := s.gateway.ReplyText(ctx, ev.RoomID, ev.EventID, template.RenderDecisionAck(reply.Decision)); err != nil {
		s.logger.Error("Posting decision ack failed", "case_id", caseID, "error", err)
	}
	return nil
}

// Apply records a parsed decision and enqueues the branch successor:
// acceptance goes to scheduling, denial straight to the final reply.
// A case outside WAIT_DOCTOR surfaces as a *lifecycle.TransitionError.
func (s *DecisionService) Apply(ctx context.Context, caseID string, reply *template.DoctorReply, actorUserID, roomID, eventID *string) error {
	if err := s.cases.RecordDoctorDecision(ctx, caseID, reply.Decision, reply.SupportFlag, reply.Reason); err != nil {
		return fmt.Errorf("recording decision for %s: %w", caseID, err)
	}

	payload, _ := json.Marshal(map[string]any{
		"decision":     reply.Decision,
		"support_flag": reply.SupportFlag,
	})
	if err := s.journal.AppendCaseEvent(ctx, models.CaseEvent{
		CaseID:          caseID,
		ActorType:       models.ActorHuman,
		ActorUserID:     actorUserID,
		RoomID:          roomID,
		ExternalEventID: eventID,
		EventType:       models.EventDoctorDecisionRecorded,
		Payload:         payload,
	}); err != nil {
		return err
	}

	next := models.JobPostRoom3Request
	if reply.Decision == models.DoctorDeny {
		next = models.JobPostRoom1FinalDenialTriage
	}
	if _, err := s.jobs.Enqueue(ctx, &caseID, next, nil, time.Time{}); err != nil {
		return fmt.Errorf("enqueueing %s for %s: %w", next, caseID, err)
	}
	return nil
}
