package service

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/transfer-board-api/internal/models"
	appErrors "github.com/noah-isme/transfer-board-api/pkg/errors"
)

// TransferLister loads the full transfer collection matching a filter.
type TransferLister interface {
	ListAll(ctx context.Context, filter models.TransferFilter) ([]models.Transfer, error)
}

// AnalyticsService serves the admin statistics views with cache integration.
type AnalyticsService struct {
	repo    TransferLister
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
}

// NewAnalyticsService constructs an analytics service.
func NewAnalyticsService(repo TransferLister, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{repo: repo, cache: cache, metrics: metrics, logger: logger}
}

// TransferMetrics aggregates the transfers matching filter. The boolean indicates whether data originated from cache.
func (s *AnalyticsService) TransferMetrics(ctx context.Context, session models.Session, filter models.TransferFilter) (*models.TransferMetrics, bool, error) {
	if !IsAllowed(session.Role, OperationViewStats, "") {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "only admins can view transfer statistics")
	}

	var result models.TransferMetrics
	hit, err := s.cache.Remember(ctx, makeTransferCacheKey("metrics", filter), 0, &result, func(ctx context.Context) error {
		start := time.Now()
		transfers, err := s.repo.ListAll(ctx, filter)
		if err != nil {
			return mapStoreError(err, "failed to load transfers for statistics")
		}
		s.metrics.ObserveDBQuery("transfer_metrics", time.Since(start))
		result = ComputeMetrics(transfers)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &result, hit, nil
}

// SystemMetrics returns the instrumentation snapshot.
func (s *AnalyticsService) SystemMetrics(session models.Session) (models.SystemMetrics, error) {
	if !IsAllowed(session.Role, OperationViewStats, "") {
		return models.SystemMetrics{}, appErrors.Clone(appErrors.ErrForbidden, "only admins can view system metrics")
	}
	return s.metrics.Snapshot(), nil
}

// ComputeMetrics derives mean wait, mean transit and per-origin demand from a
// transfer collection. Means are rounded to whole minutes; empty inputs yield zero.
func ComputeMetrics(transfers []models.Transfer) models.TransferMetrics {
	var waitTotal, transitTotal time.Duration
	var waitCount, transitCount int64

	demand := make([]models.SectorDemand, 0)
	index := make(map[string]int)

	for _, t := range transfers {
		if t.AcceptedAt != nil && !t.RequestedAt.IsZero() {
			waitTotal += t.AcceptedAt.Sub(t.RequestedAt)
			waitCount++
		}
		if t.AcceptedAt != nil && t.CompletedAt != nil {
			transitTotal += t.CompletedAt.Sub(*t.AcceptedAt)
			transitCount++
		}
		if t.OriginSectorName == nil {
			continue
		}
		name := *t.OriginSectorName
		pos, ok := index[name]
		if !ok {
			pos = len(demand)
			index[name] = pos
			demand = append(demand, models.SectorDemand{Sector: name})
		}
		demand[pos].Count++
	}

	for i := range demand {
		demand[i].Share = float64(demand[i].Count) / float64(len(transfers))
	}

	return models.TransferMetrics{
		Total:              len(transfers),
		MeanWaitMinutes:    meanMinutes(waitTotal, waitCount),
		MeanTransitMinutes: meanMinutes(transitTotal, transitCount),
		DemandBySector:     demand,
	}
}

func meanMinutes(total time.Duration, count int64) int64 {
	if count == 0 {
		return 0
	}
	mean := float64(total.Milliseconds()) / float64(count) / float64(time.Minute.Milliseconds())
	return int64(math.Floor(mean + 0.5))
}
