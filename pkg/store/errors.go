// Package store implements the persistent stores over PostgreSQL: the case
// row, the append-only journals, the durable job queue, reaction
// checkpoints, and the auth tables. All writes are commit-per-call.
package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors shared by all stores.
var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicateOriginEvent is returned when a case already exists for the
	// origin event id.
	ErrDuplicateOriginEvent = errors.New("duplicate origin event")

	// ErrDuplicateCaseMessage is returned when a (room, event) message pair
	// is already tracked.
	ErrDuplicateCaseMessage = errors.New("duplicate case message")

	// ErrDuplicateCheckpointTarget is returned when a checkpoint already
	// targets the (room, event) pair.
	ErrDuplicateCheckpointTarget = errors.New("duplicate checkpoint target")

	// ErrDuplicateEmail is returned when a user with the email already exists.
	ErrDuplicateEmail = errors.New("duplicate email")

	// ErrNoJobsAvailable is returned by Lease when no job is ready to run.
	ErrNoJobsAvailable = errors.New("no jobs available")

	// ErrInvalidJobState is returned when an ack targets a job that is not
	// in the expected queue state.
	ErrInvalidJobState = errors.New("job not in expected state")
)

// uniqueViolation is the postgres error code for unique index violations.
const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a postgres unique violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
