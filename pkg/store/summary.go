package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
)

// SummaryStore computes the windowed activity roll-up for the supervisor
// dashboard. Windows are UTC half-open: [from, to).
type SummaryStore struct {
	pool *pgxpool.Pool
}

// NewSummaryStore creates a summary store backed by the given pool.
func NewSummaryStore(pool *pgxpool.Pool) *SummaryStore {
	return &SummaryStore{pool: pool}
}

// Window computes the five dashboard counters over [from, to). The refused
// counter sums doctor denials and scheduler denials without deduplication,
// matching the dashboard's historical formula.
func (s *SummaryStore) Window(ctx context.Context, from, to time.Time) (*models.DailySummary, error) {
	sum := &models.DailySummary{From: from, To: to}

	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM cases
				WHERE created_at >= $1 AND created_at < $2),
			(SELECT count(*) FROM transcripts
				WHERE kind = 'pdf_text' AND captured_at >= $1 AND captured_at < $2),
			(SELECT count(*) FROM cases
				WHERE doctor_decided_at >= $1 AND doctor_decided_at < $2),
			(SELECT count(*) FROM cases
				WHERE appointment_status = 'confirmed'
				  AND appointment_decided_at >= $1 AND appointment_decided_at < $2),
			(SELECT count(*) FROM cases
				WHERE doctor_decision = 'deny'
				  AND doctor_decided_at >= $1 AND doctor_decided_at < $2)
			+ (SELECT count(*) FROM cases
				WHERE appointment_status = 'denied'
				  AND appointment_decided_at >= $1 AND appointment_decided_at < $2)`,
		from, to).Scan(&sum.PatientsReceived, &sum.ReportsProcessed,
		&sum.CasesEvaluated, &sum.Accepted, &sum.Refused)
	if err != nil {
		return nil, fmt.Errorf("computing summary window: %w", err)
	}
	return sum, nil
}
