package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/transfer-board-api/internal/models"
)

// AccessCodeRepository stores the hashed per-role access codes used at login.
type AccessCodeRepository struct {
	db *sqlx.DB
}

// NewAccessCodeRepository constructs the repository.
func NewAccessCodeRepository(db *sqlx.DB) *AccessCodeRepository {
	return &AccessCodeRepository{db: db}
}

// ListByRole returns every code registered for role, active or not.
func (r *AccessCodeRepository) ListByRole(ctx context.Context, role models.UserRole) ([]models.AccessCode, error) {
	const query = `SELECT id, role, sector_id, code_hash, label, active, created_at FROM access_codes WHERE role = $1 ORDER BY created_at`
	codes := make([]models.AccessCode, 0)
	if err := r.db.SelectContext(ctx, &codes, query, role); err != nil {
		return nil, fmt.Errorf("list access codes: %w", err)
	}
	return codes, nil
}

// Upsert creates or rotates the code identified by its label.
func (r *AccessCodeRepository) Upsert(ctx context.Context, code *models.AccessCode) error {
	if code.ID == "" {
		code.ID = uuid.NewString()
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO access_codes (id, role, sector_id, code_hash, label, active, created_at)
	VALUES (:id, :role, :sector_id, :code_hash, :label, :active, :created_at)
	ON CONFLICT (label) DO UPDATE SET code_hash = EXCLUDED.code_hash, sector_id = EXCLUDED.sector_id, active = EXCLUDED.active`
	if _, err := r.db.NamedExecContext(ctx, query, code); err != nil {
		return fmt.Errorf("upsert access code: %w", err)
	}
	return nil
}
