package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/transfer-board-api/internal/models"
)

// ReferenceRepository reads the pre-seeded sectors and transfer types.
type ReferenceRepository struct {
	db *sqlx.DB
}

// NewReferenceRepository constructs the repository.
func NewReferenceRepository(db *sqlx.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// ListSectors returns all sectors ordered by name.
func (r *ReferenceRepository) ListSectors(ctx context.Context) ([]models.Sector, error) {
	sectors := make([]models.Sector, 0)
	if err := r.db.SelectContext(ctx, &sectors, `SELECT id, name FROM sectors ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list sectors: %w", err)
	}
	return sectors, nil
}

// ListTransferTypes returns all transfer types ordered by name.
func (r *ReferenceRepository) ListTransferTypes(ctx context.Context) ([]models.TransferType, error) {
	types := make([]models.TransferType, 0)
	if err := r.db.SelectContext(ctx, &types, `SELECT id, name FROM transfer_types ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list transfer types: %w", err)
	}
	return types, nil
}

// GetSector fetches one sector.
func (r *ReferenceRepository) GetSector(ctx context.Context, id string) (*models.Sector, error) {
	var sector models.Sector
	if err := r.db.GetContext(ctx, &sector, `SELECT id, name FROM sectors WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get sector: %w", err)
	}
	return &sector, nil
}

// GetTransferType fetches one transfer type.
func (r *ReferenceRepository) GetTransferType(ctx context.Context, id string) (*models.TransferType, error) {
	var transferType models.TransferType
	if err := r.db.GetContext(ctx, &transferType, `SELECT id, name FROM transfer_types WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get transfer type: %w", err)
	}
	return &transferType, nil
}
