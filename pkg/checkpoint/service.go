// Package checkpoint coordinates multi-room handoffs: each outbound post
// that needs a human ack registers an expected positive reaction, and
// inbound reactions are matched against the pending set.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/chat"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
)

// Registry is the checkpoint store subset the service needs.
type Registry interface {
	EnsureExpected(ctx context.Context, caseID string, stage models.CheckpointStage, roomID, targetEventID string) error
	MatchPositiveReaction(ctx context.Context, roomID, targetEventID string, meta models.ReactionMeta) (*models.ReactionCheckpoint, bool, error)
}

// Journal is the journal subset the service needs.
type Journal interface {
	AppendCaseEvent(ctx context.Context, event models.CaseEvent) error
}

// JobQueue is the queue subset the service needs.
type JobQueue interface {
	Enqueue(ctx context.Context, caseID *string, jobType models.JobType, payload json.RawMessage, runAfter time.Time) (*models.Job, error)
}

// Service registers and matches reaction checkpoints.
type Service struct {
	registry Registry
	journal  Journal
	jobs     JobQueue
	logger   *slog.Logger
}

// NewService creates the checkpoint service.
func NewService(registry Registry, journal Journal, jobs JobQueue) *Service {
	return &Service{
		registry: registry,
		journal:  journal,
		jobs:     jobs,
		logger:   slog.Default().With("component", "checkpoints"),
	}
}

// Expect registers a PENDING checkpoint for a posted event. Duplicate
// registrations are absorbed by the store.
func (s *Service) Expect(ctx context.Context, caseID string, stage models.CheckpointStage, roomID, targetEventID string) error {
	return s.registry.EnsureExpected(ctx, caseID, stage, roomID, targetEventID)
}

// HandleReaction matches an inbound reaction against the pending set.
// Non-positive keys and reactions targeting untracked events are dropped.
// A ROOM1_FINAL match starts the cleanup pipeline.
func (s *Service) HandleReaction(ctx context.Context, ev chat.ReactionEvent) error {
	if !isPositiveKey(ev.Key) {
		return nil
	}

	cp, matched, err := s.registry.MatchPositiveReaction(ctx, ev.RoomID, ev.TargetEventID, models.ReactionMeta{
		EventID: ev.EventID,
		Key:     ev.Key,
		UserID:  ev.SenderUserID,
		At:      ev.ReceivedAt,
	})
	if err != nil {
		return fmt.Errorf("matching reaction in %s: %w", ev.RoomID, err)
	}
	if !matched {
		return nil
	}

	payload, _ := json.Marshal(map[string]string{
		"stage":        string(cp.Stage),
		"reaction_key": ev.Key,
	})
	if err := s.journal.AppendCaseEvent(ctx, models.CaseEvent{
		CaseID:          cp.CaseID,
		ActorType:       models.ActorHuman,
		ActorUserID:     &ev.SenderUserID,
		RoomID:          &ev.RoomID,
		ExternalEventID: &ev.EventID,
		EventType:       models.EventReactionMatched,
		Payload:         payload,
	}); err != nil {
		return err
	}

	if cp.Stage == models.StageRoom1Final {
		if _, err := s.jobs.Enqueue(ctx, &cp.CaseID, models.JobCleanupCase, nil, time.Time{}); err != nil {
			return fmt.Errorf("enqueueing cleanup for %s: %w", cp.CaseID, err)
		}
		s.logger.Info("Cleanup started by final-reply ack", "case_id", cp.CaseID)
	}
	return nil
}

// isPositiveKey reports whether a reaction key counts as a positive ack.
// Thumbs-up with any skin tone qualifies; so does the check mark some
// clients substitute.
func isPositiveKey(key string) bool {
	return strings.HasPrefix(key, "👍") || strings.HasPrefix(key, "✅")
}
