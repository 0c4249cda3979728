package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
)

// CheckpointStore persists reaction checkpoints. The unique index on
// (room_id, target_external_event_id) absorbs duplicate registrations and
// the conditional outcome update absorbs double-delivered reactions.
type CheckpointStore struct {
	pool *pgxpool.Pool
}

// NewCheckpointStore creates a checkpoint store backed by the given pool.
func NewCheckpointStore(pool *pgxpool.Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

const checkpointColumns = `id, case_id, stage, room_id, target_external_event_id,
	expected_at, outcome, reaction_event_id, reaction_key, reaction_user_id, reaction_at`

func scanCheckpoint(row pgx.Row) (*models.ReactionCheckpoint, error) {
	var cp models.ReactionCheckpoint
	err := row.Scan(&cp.ID, &cp.CaseID, &cp.Stage, &cp.RoomID,
		&cp.TargetExternalEventID, &cp.ExpectedAt, &cp.Outcome,
		&cp.ReactionEventID, &cp.ReactionKey, &cp.ReactionUserID, &cp.ReactionAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning checkpoint: %w", err)
	}
	return &cp, nil
}

// EnsureExpected registers a PENDING checkpoint for a posted event. A
// duplicate (room, target) insert is silently absorbed.
func (s *CheckpointStore) EnsureExpected(ctx context.Context, caseID string, stage models.CheckpointStage, roomID, targetEventID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reaction_checkpoints (case_id, stage, room_id,
			target_external_event_id, outcome)
		VALUES ($1, $2, $3, $4, 'PENDING')
		ON CONFLICT (room_id, target_external_event_id) DO NOTHING`,
		caseID, stage, roomID, targetEventID)
	if err != nil {
		return fmt.Errorf("registering %s checkpoint: %w", stage, err)
	}
	return nil
}

// MatchPositiveReaction moves the checkpoint targeting (room, event) from
// PENDING to POSITIVE_RECEIVED and stamps the reaction metadata. The update
// is conditional on outcome = PENDING, so re-delivery of the same reaction
// matches nothing. Returns matched=false when no pending checkpoint exists.
func (s *CheckpointStore) MatchPositiveReaction(ctx context.Context, roomID, targetEventID string, meta models.ReactionMeta) (*models.ReactionCheckpoint, bool, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE reaction_checkpoints
		SET outcome = 'POSITIVE_RECEIVED', reaction_event_id = $1,
			reaction_key = $2, reaction_user_id = $3, reaction_at = $4
		WHERE room_id = $5 AND target_external_event_id = $6 AND outcome = 'PENDING'
		RETURNING `+checkpointColumns,
		meta.EventID, meta.Key, meta.UserID, meta.At, roomID, targetEventID)

	cp, err := scanCheckpoint(row)
	if err != nil {
		if err == ErrNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("matching reaction: %w", err)
	}
	return cp, true, nil
}

// ListForCase returns every checkpoint of a case in registration order.
func (s *CheckpointStore) ListForCase(ctx context.Context, caseID string) ([]models.ReactionCheckpoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+checkpointColumns+` FROM reaction_checkpoints WHERE case_id = $1 ORDER BY id`,
		caseID)
	if err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}
	defer rows.Close()

	var cps []models.ReactionCheckpoint
	for rows.Next() {
		var cp models.ReactionCheckpoint
		if err := rows.Scan(&cp.ID, &cp.CaseID, &cp.Stage, &cp.RoomID,
			&cp.TargetExternalEventID, &cp.ExpectedAt, &cp.Outcome,
			&cp.ReactionEventID, &cp.ReactionKey, &cp.ReactionUserID, &cp.ReactionAt); err != nil {
			return nil, fmt.Errorf("scanning checkpoint: %w", err)
		}
		cps = append(cps, cp)
	}
	return cps, rows.Err()
}

// GetByTarget loads the checkpoint registered for a posted event.
func (s *CheckpointStore) GetByTarget(ctx context.Context, roomID, targetEventID string) (*models.ReactionCheckpoint, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+checkpointColumns+` FROM reaction_checkpoints
		 WHERE room_id = $1 AND target_external_event_id = $2`,
		roomID, targetEventID)
	return scanCheckpoint(row)
}
