package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
)

// UserStore persists dashboard users.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a user store backed by the given pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

const userColumns = `user_id, email, password_hash, role, account_status, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role,
		&u.AccountStatus, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &u, nil
}

// Create inserts a user. Email is lowercased before storage; a duplicate
// returns ErrDuplicateEmail.
func (s *UserStore) Create(ctx context.Context, user models.User) (*models.User, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (user_id, email, password_hash, role, account_status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		user.ID, strings.ToLower(user.Email), user.PasswordHash, user.Role, user.AccountStatus)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return created, nil
}

// Get loads a user by id.
func (s *UserStore) Get(ctx context.Context, userID string) (*models.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID)
	return scanUser(row)
}

// GetByEmail loads a user by lowercased email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email))
	return scanUser(row)
}

// Count returns the total number of user rows.
func (s *UserStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// CountActiveAdmins returns the number of active admin accounts.
func (s *UserStore) CountActiveAdmins(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM users WHERE role = $1 AND account_status = $2`,
		models.RoleAdmin, models.AccountActive).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting active admins: %w", err)
	}
	return n, nil
}

// SetAccountStatus updates a user's account status.
func (s *UserStore) SetAccountStatus(ctx context.Context, userID string, status models.AccountStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET account_status = $1, updated_at = now() WHERE user_id = $2`,
		status, userID)
	if err != nil {
		return fmt.Errorf("setting account status: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}
