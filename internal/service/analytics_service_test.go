package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/transfer-board-api/internal/models"
	appErrors "github.com/noah-isme/transfer-board-api/pkg/errors"
)

type transferListerStub struct {
	transfers []models.Transfer
	calls     int
	err       error
	onList    func()
}

func (m *transferListerStub) ListAll(ctx context.Context, filter models.TransferFilter) ([]models.Transfer, error) {
	m.calls++
	if m.onList != nil {
		m.onList()
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.transfers, nil
}

type stubCacheRepo struct {
	store   map[string][]byte
	deleted []string
}

func (s *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	if s.store == nil {
		return appErrors.ErrCacheMiss
	}
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	s.deleted = append(s.deleted, pattern)
	s.store = nil
	return nil
}

func stringRef(v string) *string { return &v }

func timePtr(v time.Time) *time.Time { return &v }

func TestComputeMetricsEmpty(t *testing.T) {
	metrics := ComputeMetrics(nil)
	assert.Equal(t, int64(0), metrics.MeanWaitMinutes)
	assert.Equal(t, int64(0), metrics.MeanTransitMinutes)
	assert.Empty(t, metrics.DemandBySector)
	assert.Equal(t, 0, metrics.Total)
}

func TestComputeMetricsMeansAndDemand(t *testing.T) {
	base := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	transfers := []models.Transfer{
		{
			RequestedAt:      base,
			AcceptedAt:       timePtr(base.Add(4 * time.Minute)),
			CompletedAt:      timePtr(base.Add(14 * time.Minute)),
			OriginSectorName: stringRef("Emergency"),
		},
		{
			RequestedAt:      base,
			AcceptedAt:       timePtr(base.Add(6 * time.Minute)),
			OriginSectorName: stringRef("Ward 3"),
		},
		{
			RequestedAt:      base,
			OriginSectorName: stringRef("Emergency"),
		},
		{
			RequestedAt: base,
		},
	}

	metrics := ComputeMetrics(transfers)
	assert.Equal(t, 4, metrics.Total)
	assert.Equal(t, int64(5), metrics.MeanWaitMinutes)
	assert.Equal(t, int64(10), metrics.MeanTransitMinutes)
	require.Len(t, metrics.DemandBySector, 2)
	assert.Equal(t, models.SectorDemand{Sector: "Emergency", Count: 2, Share: 0.5}, metrics.DemandBySector[0])
	assert.Equal(t, models.SectorDemand{Sector: "Ward 3", Count: 1, Share: 0.25}, metrics.DemandBySector[1])
}

func TestComputeMetricsRoundsHalfUp(t *testing.T) {
	base := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	transfers := []models.Transfer{
		{RequestedAt: base, AcceptedAt: timePtr(base.Add(2*time.Minute + 30*time.Second))},
	}
	assert.Equal(t, int64(3), ComputeMetrics(transfers).MeanWaitMinutes)
}

func TestAnalyticsServiceTransferMetricsCaching(t *testing.T) {
	base := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	repo := &transferListerStub{transfers: []models.Transfer{
		{RequestedAt: base, AcceptedAt: timePtr(base.Add(4 * time.Minute)), OriginSectorName: stringRef("Emergency")},
	}}
	cacheRepo := &stubCacheRepo{}
	cacheSvc := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	svc := NewAnalyticsService(repo, cacheSvc, nil, zap.NewNop())

	ctx := context.Background()
	result, cacheHit, err := svc.TransferMetrics(ctx, adminSession, models.TransferFilter{})
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, 1, repo.calls)
	assert.Equal(t, int64(4), result.MeanWaitMinutes)

	cached, cacheHit, err := svc.TransferMetrics(ctx, adminSession, models.TransferFilter{})
	require.NoError(t, err)
	assert.True(t, cacheHit)
	assert.Equal(t, 1, repo.calls)
	assert.Equal(t, result, cached)

	require.NoError(t, cacheSvc.Invalidate(ctx, TransferCachePattern))
	_, cacheHit, err = svc.TransferMetrics(ctx, adminSession, models.TransferFilter{})
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, 2, repo.calls)
}

func TestAnalyticsServiceAdminOnly(t *testing.T) {
	repo := &transferListerStub{}
	svc := NewAnalyticsService(repo, NewCacheService(nil, nil, time.Minute, zap.NewNop(), false), nil, zap.NewNop())

	_, _, err := svc.TransferMetrics(context.Background(), requesterSession, models.TransferFilter{})
	assertCode(t, err, appErrors.ErrForbidden)
	assert.Equal(t, 0, repo.calls)

	_, err = svc.SystemMetrics(transporterSession)
	assertCode(t, err, appErrors.ErrForbidden)
}

func TestAnalyticsServiceStoreErrorMapped(t *testing.T) {
	repo := &transferListerStub{err: assert.AnError}
	svc := NewAnalyticsService(repo, NewCacheService(nil, nil, time.Minute, zap.NewNop(), false), nil, zap.NewNop())

	_, _, err := svc.TransferMetrics(context.Background(), adminSession, models.TransferFilter{})
	assertCode(t, err, appErrors.ErrStoreUnavailable)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestAnalyticsServiceSkipsCachingStaleMetrics(t *testing.T) {
	base := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	repo := &transferListerStub{transfers: []models.Transfer{
		{RequestedAt: base, AcceptedAt: timePtr(base.Add(4 * time.Minute))},
	}}
	cacheRepo := &stubCacheRepo{}
	cacheSvc := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	svc := NewAnalyticsService(repo, cacheSvc, nil, zap.NewNop())
	ctx := context.Background()

	// A transfer changes while the metrics are being computed.
	repo.onList = func() {
		repo.onList = nil
		require.NoError(t, cacheSvc.Invalidate(ctx, TransferCachePattern))
	}
	result, cacheHit, err := svc.TransferMetrics(ctx, adminSession, models.TransferFilter{})
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, int64(4), result.MeanWaitMinutes)
	assert.Empty(t, cacheRepo.store)

	_, cacheHit, err = svc.TransferMetrics(ctx, adminSession, models.TransferFilter{})
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, 2, repo.calls)

	_, cacheHit, err = svc.TransferMetrics(ctx, adminSession, models.TransferFilter{})
	require.NoError(t, err)
	assert.True(t, cacheHit)
	assert.Equal(t, 2, repo.calls)
}
