package chat

import (
	"context"
	"errors"
	"log/slog"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/store"
)

// IntakeService absorbs qualifying room-1 PDF events.
type IntakeService interface {
	IngestPDFEvent(ctx context.Context, ev PDFIntakeEvent) (*IntakeResult, error)
}

// DecisionService handles doctor replies in room 2.
type DecisionService interface {
	HandleDoctorReply(ctx context.Context, caseID string, ev ReplyEvent) error
}

// SchedulerService handles scheduler replies in room 3.
type SchedulerService interface {
	HandleSchedulerReply(ctx context.Context, caseID string, ev ReplyEvent) error
}

// ReactionService matches inbound reactions against checkpoints.
type ReactionService interface {
	HandleReaction(ctx context.Context, ev ReactionEvent) error
}

// CaseResolver finds the case a tracked message belongs to.
type CaseResolver interface {
	FindCaseIDByMessage(ctx context.Context, roomID, externalEventID string, kind models.MessageKind) (string, error)
}

// RoomConfig names the three workflow rooms.
type RoomConfig struct {
	Room1ID string
	Room2ID string
	Room3ID string
}

// Router dispatches typed inbound events to the owning service. Events that
// match no route are dropped: unrelated chatter in the rooms is normal.
type Router struct {
	rooms     RoomConfig
	intake    IntakeService
	decisions DecisionService
	scheduler SchedulerService
	reactions ReactionService
	resolver  CaseResolver
	logger    *slog.Logger
}

// NewRouter creates a router over the given services.
func NewRouter(rooms RoomConfig, intake IntakeService, decisions DecisionService, scheduler SchedulerService, reactions ReactionService, resolver CaseResolver) *Router {
	return &Router{
		rooms:     rooms,
		intake:    intake,
		decisions: decisions,
		scheduler: scheduler,
		reactions: reactions,
		resolver:  resolver,
		logger:    slog.Default().With("component", "chat-router"),
	}
}

// Route dispatches one typed event. Errors are logged, never returned: the
// sync loop must not stall on a single bad event.
func (r *Router) Route(ctx context.Context, event any) {
	switch ev := event.(type) {
	case PDFIntakeEvent:
		r.routeIntake(ctx, ev)
	case ReplyEvent:
		r.routeReply(ctx, ev)
	case ReactionEvent:
		if err := r.reactions.HandleReaction(ctx, ev); err != nil {
			r.logger.Error("Reaction handling failed",
				"room_id", ev.RoomID, "target", ev.TargetEventID, "error", err)
		}
	}
}

func (r *Router) routeIntake(ctx context.Context, ev PDFIntakeEvent) {
	if ev.RoomID != r.rooms.Room1ID {
		return
	}
	result, err := r.intake.IngestPDFEvent(ctx, ev)
	if err != nil {
		r.logger.Error("Intake failed", "event_id", ev.EventID, "error", err)
		return
	}
	if !result.Processed {
		r.logger.Info("Intake skipped", "event_id", ev.EventID, "reason", result.Reason)
		return
	}
	r.logger.Info("Case created from PDF event",
		"event_id", ev.EventID, "case_id", result.CaseID)
}

func (r *Router) routeReply(ctx context.Context, ev ReplyEvent) {
	if ev.ParentEventID == "" {
		return
	}

	switch ev.RoomID {
	case r.rooms.Room2ID:
		caseID, err := r.resolver.FindCaseIDByMessage(ctx, ev.RoomID, ev.ParentEventID, models.MsgRoom2Root)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				r.logger.Error("Resolving doctor reply target failed",
					"event_id", ev.EventID, "error", err)
			}
			return
		}
		if err := r.decisions.HandleDoctorReply(ctx, caseID, ev); err != nil {
			r.logger.Error("Doctor reply handling failed",
				"case_id", caseID, "event_id", ev.EventID, "error", err)
		}

	case r.rooms.Room3ID:
		caseID, err := r.resolveSchedulerTarget(ctx, ev)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				r.logger.Error("Resolving scheduler reply target failed",
					"event_id", ev.EventID, "error", err)
			}
			return
		}
		if err := r.scheduler.HandleSchedulerReply(ctx, caseID, ev); err != nil {
			r.logger.Error("Scheduler reply handling failed",
				"case_id", caseID, "event_id", ev.EventID, "error", err)
		}
	}
}

// resolveSchedulerTarget accepts replies to either half of the room-3 pair:
// the request post or the template post.
func (r *Router) resolveSchedulerTarget(ctx context.Context, ev ReplyEvent) (string, error) {
	caseID, err := r.resolver.FindCaseIDByMessage(ctx, ev.RoomID, ev.ParentEventID, models.MsgRoom3Request)
	if err == nil {
		return caseID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	return r.resolver.FindCaseIDByMessage(ctx, ev.RoomID, ev.ParentEventID, models.MsgRoom3Template)
}
