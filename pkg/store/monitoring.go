package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
)

// MonitoringStore is the read model behind the dashboard: a paginated,
// filterable case list and a per-case unified timeline. It only reads.
type MonitoringStore struct {
	pool *pgxpool.Pool
}

// NewMonitoringStore creates a monitoring store backed by the given pool.
func NewMonitoringStore(pool *pgxpool.Pool) *MonitoringStore {
	return &MonitoringStore{pool: pool}
}

// ListCases returns one page of cases matching the filter, ordered by most
// recent activity first. Activity is the later of the case row's updated_at
// and its newest journal entry. The filter's Page and Size must already be
// validated by the caller.
func (s *MonitoringStore) ListCases(ctx context.Context, filter models.CaseFilter) (*models.CaseList, error) {
	where := `WHERE ($1::text IS NULL OR c.status = $1)
	  AND ($2::timestamptz IS NULL OR c.created_at >= $2)
	  AND ($3::timestamptz IS NULL OR c.created_at < $3)`
	args := []any{filter.Status, filter.From, filter.To}

	var total int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM cases c `+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("counting monitored cases: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT c.case_id, c.status, c.agency_record_number,
			c.doctor_decision, c.appointment_status, c.created_at,
			GREATEST(c.updated_at, COALESCE(a.last_event_at, c.updated_at)) AS latest_activity_at
		FROM cases c
		LEFT JOIN (
			SELECT case_id, max(captured_at) AS last_event_at
			FROM case_events GROUP BY case_id
		) a ON a.case_id = c.case_id
		`+where+`
		ORDER BY latest_activity_at DESC, c.case_id
		LIMIT $4 OFFSET $5`,
		append(args, filter.Size, (filter.Page-1)*filter.Size)...)
	if err != nil {
		return nil, fmt.Errorf("listing monitored cases: %w", err)
	}
	defer rows.Close()

	list := &models.CaseList{Page: filter.Page, Size: filter.Size, Total: total}
	for rows.Next() {
		var it models.CaseListItem
		if err := rows.Scan(&it.CaseID, &it.Status, &it.AgencyRecordNumber,
			&it.DoctorDecision, &it.AppointmentStatus, &it.CreatedAt, &it.LatestActivityAt); err != nil {
			return nil, fmt.Errorf("scanning monitored case: %w", err)
		}
		list.Items = append(list.Items, it)
	}
	return list, rows.Err()
}

// Timeline returns the unified activity history of a case: journal entries,
// tracked messages, transcripts, and checkpoint registrations merged into a
// single time-ascending sequence.
func (s *MonitoringStore) Timeline(ctx context.Context, caseID string) ([]models.TimelineEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT 'event' AS source, event_type AS label, room_id, external_event_id,
			payload, captured_at
		FROM case_events WHERE case_id = $1
		UNION ALL
		SELECT 'message', kind, room_id, external_event_id, NULL, captured_at
		FROM case_messages WHERE case_id = $1
		UNION ALL
		SELECT 'transcript', kind, NULL, NULL, NULL, captured_at
		FROM transcripts WHERE case_id = $1
		UNION ALL
		SELECT 'checkpoint', stage || ':' || outcome, room_id,
			target_external_event_id, NULL, COALESCE(reaction_at, expected_at)
		FROM reaction_checkpoints WHERE case_id = $1
		ORDER BY captured_at, source`, caseID)
	if err != nil {
		return nil, fmt.Errorf("loading case timeline: %w", err)
	}
	defer rows.Close()

	var entries []models.TimelineEntry
	for rows.Next() {
		var e models.TimelineEntry
		if err := rows.Scan(&e.Source, &e.Label, &e.RoomID, &e.EventID,
			&e.Payload, &e.HappenedAt); err != nil {
			return nil, fmt.Errorf("scanning timeline entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
