package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/transfer-board-api/internal/models"
)

const referenceCacheTTL = time.Hour

var (
	sectorsCacheKey       = makeReferenceCacheKey("sectors")
	transferTypesCacheKey = makeReferenceCacheKey("transfer-types")
)

type referenceStore interface {
	ListSectors(ctx context.Context) ([]models.Sector, error)
	ListTransferTypes(ctx context.Context) ([]models.TransferType, error)
}

// ReferenceService serves the sector and transfer type catalogues.
type ReferenceService struct {
	repo   referenceStore
	cache  *CacheService
	logger *zap.Logger
}

// NewReferenceService constructs the service.
func NewReferenceService(repo referenceStore, cache *CacheService, logger *zap.Logger) *ReferenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReferenceService{repo: repo, cache: cache, logger: logger}
}

// Sectors lists every sector ordered by name.
func (s *ReferenceService) Sectors(ctx context.Context) ([]models.Sector, error) {
	var sectors []models.Sector
	_, err := s.cache.Remember(ctx, sectorsCacheKey, referenceCacheTTL, &sectors, func(ctx context.Context) error {
		var err error
		sectors, err = s.repo.ListSectors(ctx)
		return err
	})
	if err != nil {
		return nil, mapStoreError(err, "failed to list sectors")
	}
	return sectors, nil
}

// TransferTypes lists every transfer type ordered by name.
func (s *ReferenceService) TransferTypes(ctx context.Context) ([]models.TransferType, error) {
	var types []models.TransferType
	_, err := s.cache.Remember(ctx, transferTypesCacheKey, referenceCacheTTL, &types, func(ctx context.Context) error {
		var err error
		types, err = s.repo.ListTransferTypes(ctx)
		return err
	})
	if err != nil {
		return nil, mapStoreError(err, "failed to list transfer types")
	}
	return types, nil
}
