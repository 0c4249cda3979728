package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/lifecycle"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
)

// CaseStore persists the mutable case row. Every mutation verb verifies the
// current status is an allowed predecessor of the target status and writes
// the new status plus updated_at in the same transaction.
type CaseStore struct {
	pool *pgxpool.Pool
}

// NewCaseStore creates a case store backed by the given pool.
func NewCaseStore(pool *pgxpool.Pool) *CaseStore {
	return &CaseStore{pool: pool}
}

const caseColumns = `case_id, status, room1_origin_room_id, room1_origin_event_id,
	room1_sender_user_id, pdf_source_uri, extracted_text, agency_record_number,
	structured_data, suggested_action, doctor_decision, doctor_support_flag,
	doctor_reason, doctor_decided_at, appointment_status, appointment_at,
	appointment_location, appointment_instructions, appointment_reason,
	appointment_decided_at, room1_final_reply_event_id, created_at, updated_at`

func scanCase(row pgx.Row) (*models.Case, error) {
	var c models.Case
	err := row.Scan(
		&c.ID, &c.Status, &c.Room1OriginRoomID, &c.Room1OriginEventID,
		&c.Room1SenderUserID, &c.PDFSourceURI, &c.ExtractedText, &c.AgencyRecordNumber,
		&c.StructuredData, &c.SuggestedAction, &c.DoctorDecision, &c.DoctorSupport,
		&c.DoctorReason, &c.DoctorDecidedAt, &c.AppointmentStatus, &c.AppointmentAt,
		&c.AppointmentLocation, &c.AppointmentInstructions, &c.AppointmentReason,
		&c.AppointmentDecidedAt, &c.Room1FinalReplyEventID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning case: %w", err)
	}
	return &c, nil
}

// Create inserts a fresh case in R1_ACK_PROCESSING. A second insert for the
// same origin event id returns ErrDuplicateOriginEvent and writes nothing.
func (s *CaseStore) Create(ctx context.Context, params models.NewCaseParams) (*models.Case, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO cases (case_id, status, room1_origin_room_id,
			room1_origin_event_id, room1_sender_user_id, pdf_source_uri)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+caseColumns,
		params.CaseID, lifecycle.StatusR1AckProcessing, params.Room1OriginRoomID,
		params.Room1OriginEventID, params.Room1SenderUserID, params.PDFSourceURI)

	c, err := scanCase(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateOriginEvent
		}
		return nil, fmt.Errorf("creating case: %w", err)
	}
	return c, nil
}

// Get loads a case by id.
func (s *CaseStore) Get(ctx context.Context, caseID string) (*models.Case, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+caseColumns+` FROM cases WHERE case_id = $1`, caseID)
	return scanCase(row)
}

// mutate runs apply under a row lock after asserting the transition from the
// current status to `to`. The status update is conditional on the status
// read under the lock.
func (s *CaseStore) mutate(ctx context.Context, caseID string, to lifecycle.Status, apply func(tx pgx.Tx, current lifecycle.Status) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning case mutation: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current lifecycle.Status
	err = tx.QueryRow(ctx,
		`SELECT status FROM cases WHERE case_id = $1 FOR UPDATE`, caseID).Scan(&current)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("locking case row: %w", err)
	}

	if err := lifecycle.AssertTransition(current, to); err != nil {
		return err
	}

	if apply != nil {
		if err := apply(tx, current); err != nil {
			return err
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE cases SET status = $1, updated_at = now() WHERE case_id = $2 AND status = $3`,
		to, caseID, current)
	if err != nil {
		return fmt.Errorf("updating case status: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("case %s status changed concurrently", caseID)
	}

	return tx.Commit(ctx)
}

// SetStatusWithTransition moves the case to `to` with no other changes.
func (s *CaseStore) SetStatusWithTransition(ctx context.Context, caseID string, to lifecycle.Status) error {
	return s.mutate(ctx, caseID, to, nil)
}

// StorePDFExtraction persists the clean text and record number and moves the
// case to EXTRACTING.
func (s *CaseStore) StorePDFExtraction(ctx context.Context, caseID, extractedText, recordNumber string) error {
	return s.mutate(ctx, caseID, lifecycle.StatusExtracting, func(tx pgx.Tx, _ lifecycle.Status) error {
		_, err := tx.Exec(ctx,
			`UPDATE cases SET extracted_text = $1, agency_record_number = $2 WHERE case_id = $3`,
			extractedText, recordNumber, caseID)
		return err
	})
}

// StoreLLM1Artifacts persists the structured extraction and moves the case
// to LLM_STRUCT.
func (s *CaseStore) StoreLLM1Artifacts(ctx context.Context, caseID string, structured json.RawMessage) error {
	return s.mutate(ctx, caseID, lifecycle.StatusLLMStruct, func(tx pgx.Tx, _ lifecycle.Status) error {
		_, err := tx.Exec(ctx,
			`UPDATE cases SET structured_data = $1 WHERE case_id = $2`, structured, caseID)
		return err
	})
}

// StoreSuggestedAction persists the LLM2 suggestion and moves the case to
// LLM_SUGGEST.
func (s *CaseStore) StoreSuggestedAction(ctx context.Context, caseID string, action json.RawMessage) error {
	return s.mutate(ctx, caseID, lifecycle.StatusLLMSuggest, func(tx pgx.Tx, _ lifecycle.Status) error {
		_, err := tx.Exec(ctx,
			`UPDATE cases SET suggested_action = $1 WHERE case_id = $2`, action, caseID)
		return err
	})
}

// RecordDoctorDecision applies a parsed room-2 decision and moves the case
// to DOCTOR_ACCEPTED or DOCTOR_DENIED.
func (s *CaseStore) RecordDoctorDecision(ctx context.Context, caseID string, decision models.DoctorDecision, support models.SupportFlag, reason *string) error {
	to := lifecycle.StatusDoctorAccepted
	if decision == models.DoctorDeny {
		to = lifecycle.StatusDoctorDenied
	}
	return s.mutate(ctx, caseID, to, func(tx pgx.Tx, _ lifecycle.Status) error {
		_, err := tx.Exec(ctx, `
			UPDATE cases SET doctor_decision = $1, doctor_support_flag = $2,
				doctor_reason = $3, doctor_decided_at = now()
			WHERE case_id = $4`,
			decision, support, reason, caseID)
		return err
	})
}

// RecordSchedulerOutcome applies a parsed room-3 outcome and moves the case
// to APPT_CONFIRMED or APPT_DENIED.
func (s *CaseStore) RecordSchedulerOutcome(ctx context.Context, caseID string, outcome models.SchedulerOutcome) error {
	to := lifecycle.StatusApptConfirmed
	if outcome.Status == models.AppointmentDenied {
		to = lifecycle.StatusApptDenied
	}
	return s.mutate(ctx, caseID, to, func(tx pgx.Tx, _ lifecycle.Status) error {
		_, err := tx.Exec(ctx, `
			UPDATE cases SET appointment_status = $1, appointment_at = $2,
				appointment_location = $3, appointment_instructions = $4,
				appointment_reason = $5, appointment_decided_at = now()
			WHERE case_id = $6`,
			outcome.Status, outcome.At, outcome.Location, outcome.Instructions,
			outcome.Reason, caseID)
		return err
	})
}

// SetRoom1FinalReply records the event id of the posted final reply.
// No status transition: the final-post handler moves the status separately.
func (s *CaseStore) SetRoom1FinalReply(ctx context.Context, caseID, eventID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE cases SET room1_final_reply_event_id = $1, updated_at = now() WHERE case_id = $2`,
		eventID, caseID)
	if err != nil {
		return fmt.Errorf("recording final reply: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

// MarkCleanupCompleted moves the case to the terminal CLEANED status.
func (s *CaseStore) MarkCleanupCompleted(ctx context.Context, caseID string) error {
	return s.mutate(ctx, caseID, lifecycle.StatusCleaned, nil)
}

// MarkFailed moves the case to FAILED. Only valid from the LLM pipeline
// stages; callers treat a TransitionError as bug-class and log it.
func (s *CaseStore) MarkFailed(ctx context.Context, caseID string) error {
	return s.mutate(ctx, caseID, lifecycle.StatusFailed, nil)
}

// touchUpdatedAt is used by tests to backdate activity windows.
func (s *CaseStore) touchUpdatedAt(ctx context.Context, caseID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE cases SET updated_at = $1 WHERE case_id = $2`, at, caseID)
	return err
}
