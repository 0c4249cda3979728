package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
)

// TokenStore persists opaque bearer tokens. Only sha256 hashes are stored;
// a token is active iff revoked_at is null and expires_at is in the future.
type TokenStore struct {
	pool *pgxpool.Pool
}

// NewTokenStore creates a token store backed by the given pool.
func NewTokenStore(pool *pgxpool.Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

const tokenColumns = `id, user_id, token_hash, issued_at, expires_at, revoked_at, last_used_at`

// Insert persists a freshly issued token hash.
func (s *TokenStore) Insert(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.AuthToken, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO auth_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING `+tokenColumns,
		userID, tokenHash, expiresAt)

	var t models.AuthToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.IssuedAt,
		&t.ExpiresAt, &t.RevokedAt, &t.LastUsedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting token: %w", err)
	}
	return &t, nil
}

// GetActiveByHash loads the token for a hash only while the token is active.
// Expired, revoked, and unknown hashes all return ErrNotFound.
func (s *TokenStore) GetActiveByHash(ctx context.Context, tokenHash string) (*models.AuthToken, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+tokenColumns+` FROM auth_tokens
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > now()`,
		tokenHash)

	var t models.AuthToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.IssuedAt,
		&t.ExpiresAt, &t.RevokedAt, &t.LastUsedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("looking up token: %w", err)
	}
	return &t, nil
}

// TouchLastUsed stamps last_used_at on a token. Best-effort bookkeeping.
func (s *TokenStore) TouchLastUsed(ctx context.Context, tokenID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE auth_tokens SET last_used_at = now() WHERE id = $1`, tokenID)
	if err != nil {
		return fmt.Errorf("touching token: %w", err)
	}
	return nil
}

// RevokeActiveForUser revokes every active token of a user. Returns the
// number of tokens revoked.
func (s *TokenStore) RevokeActiveForUser(ctx context.Context, userID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE auth_tokens SET revoked_at = now()
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > now()`,
		userID)
	if err != nil {
		return 0, fmt.Errorf("revoking tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
