package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
)

// PromptStore reads versioned prompt templates. The partial unique index on
// (name) WHERE is_active guarantees at most one active row per name.
type PromptStore struct {
	pool *pgxpool.Pool
}

// NewPromptStore creates a prompt store backed by the given pool.
func NewPromptStore(pool *pgxpool.Pool) *PromptStore {
	return &PromptStore{pool: pool}
}

// GetActive loads the single active template for a name.
func (s *PromptStore) GetActive(ctx context.Context, name string) (*models.PromptTemplate, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, version, content, is_active
		FROM prompt_templates WHERE name = $1 AND is_active`, name)

	var p models.PromptTemplate
	err := row.Scan(&p.ID, &p.Name, &p.Version, &p.Content, &p.IsActive)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading active prompt %s: %w", name, err)
	}
	return &p, nil
}

// Activate makes the named version the active one, deactivating any other
// active row of the same name in the same transaction.
func (s *PromptStore) Activate(ctx context.Context, name string, version int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning prompt activation: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`UPDATE prompt_templates SET is_active = false WHERE name = $1 AND is_active`, name); err != nil {
		return fmt.Errorf("deactivating prompt %s: %w", name, err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE prompt_templates SET is_active = true WHERE name = $1 AND version = $2`,
		name, version)
	if err != nil {
		return fmt.Errorf("activating prompt %s v%d: %w", name, version, err)
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}
