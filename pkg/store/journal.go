package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
)

// JournalStore persists the append-only journals: case events, tracked chat
// messages, transcripts, and auth events. Writes are commit-per-call and
// touch independent rows, so concurrent appenders never contend beyond the
// unique indices that enforce idempotency.
type JournalStore struct {
	pool *pgxpool.Pool
}

// NewJournalStore creates a journal store backed by the given pool.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// AppendCaseEvent appends one journal entry for a case.
func (s *JournalStore) AppendCaseEvent(ctx context.Context, event models.CaseEvent) error {
	payload := event.Payload
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO case_events (case_id, actor_type, actor_user_id, room_id,
			external_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.CaseID, event.ActorType, event.ActorUserID, event.RoomID,
		event.ExternalEventID, event.EventType, payload)
	if err != nil {
		return fmt.Errorf("appending case event %s: %w", event.EventType, err)
	}
	return nil
}

// AppendAuthEvent appends one auth journal entry.
func (s *JournalStore) AppendAuthEvent(ctx context.Context, event models.AuthEvent) error {
	payload := event.Payload
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auth_events (user_id, actor_user_id, event_type, payload)
		VALUES ($1, $2, $3, $4)`,
		event.UserID, event.ActorUserID, event.EventType, payload)
	if err != nil {
		return fmt.Errorf("appending auth event %s: %w", event.EventType, err)
	}
	return nil
}

// AddCaseMessage tracks a chat message for a case. A second insert for the
// same (room, event) pair returns ErrDuplicateCaseMessage.
func (s *JournalStore) AddCaseMessage(ctx context.Context, msg models.CaseMessage) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO case_messages (case_id, room_id, external_event_id,
			sender_user_id, kind)
		VALUES ($1, $2, $3, $4, $5)`,
		msg.CaseID, msg.RoomID, msg.ExternalEventID, msg.SenderUserID, msg.Kind)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCaseMessage
		}
		return fmt.Errorf("adding case message: %w", err)
	}
	return nil
}

// ListMessageRefsForCase returns every tracked message for a case in
// capture order. Cleanup iterates these to redact them.
func (s *JournalStore) ListMessageRefsForCase(ctx context.Context, caseID string) ([]models.CaseMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, case_id, room_id, external_event_id, sender_user_id, kind, captured_at
		FROM case_messages WHERE case_id = $1 ORDER BY id`, caseID)
	if err != nil {
		return nil, fmt.Errorf("listing case messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.CaseMessage
	for rows.Next() {
		var m models.CaseMessage
		if err := rows.Scan(&m.ID, &m.CaseID, &m.RoomID, &m.ExternalEventID,
			&m.SenderUserID, &m.Kind, &m.CapturedAt); err != nil {
			return nil, fmt.Errorf("scanning case message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// FindCaseIDByMessage resolves the case a tracked message of the given kind
// belongs to. The listener uses it to route replies targeting a root event.
func (s *JournalStore) FindCaseIDByMessage(ctx context.Context, roomID, externalEventID string, kind models.MessageKind) (string, error) {
	var caseID string
	err := s.pool.QueryRow(ctx, `
		SELECT case_id FROM case_messages
		WHERE room_id = $1 AND external_event_id = $2 AND kind = $3`,
		roomID, externalEventID, kind).Scan(&caseID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("resolving case by message: %w", err)
	}
	return caseID, nil
}

// AddTranscript captures a report or LLM transcript for a case.
func (s *JournalStore) AddTranscript(ctx context.Context, t models.Transcript) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transcripts (case_id, kind, prompt_name, prompt_version,
			request, response)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.CaseID, t.Kind, t.PromptName, t.PromptVersion, t.Request, t.Response)
	if err != nil {
		return fmt.Errorf("adding %s transcript: %w", t.Kind, err)
	}
	return nil
}
