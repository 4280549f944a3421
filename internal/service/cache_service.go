package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/transfer-board-api/internal/models"
	appErrors "github.com/noah-isme/transfer-board-api/pkg/errors"
)

// Key namespaces. Every transfer-derived entry lives under TransferCachePattern
// so one pattern delete after a mutation clears all of them.
const (
	transferCachePrefix  = "transfers:"
	referenceCachePrefix = "reference:"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService wraps a CacheRepository with hit/miss accounting. A nil or
// disabled service behaves as a permanent miss.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
	// generation is bumped by every Invalidate; loads that straddle a bump are not stored.
	generation atomic.Uint64
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get loads key into dest and reports whether it was a hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, appErrors.ErrCacheMiss) {
		return false, nil
	}
	s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	return false, err
}

// Set stores value under key. ttl <= 0 uses the default TTL.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Remember fills dest from the cache or, on a miss, by calling load and
// storing what it wrote into dest. Cache failures degrade to a plain load.
// A result loaded while an Invalidate ran is returned but not stored.
func (s *CacheService) Remember(ctx context.Context, key string, ttl time.Duration, dest interface{}, load func(context.Context) error) (bool, error) {
	if hit, _ := s.Get(ctx, key, dest); hit {
		return true, nil
	}
	generation := s.currentGeneration()
	if err := load(ctx); err != nil {
		return false, err
	}
	if s.currentGeneration() != generation {
		s.logger.Debug("cache entry invalidated during load", zap.String("key", key))
		return false, nil
	}
	_ = s.Set(ctx, key, dest, ttl)
	return false, nil
}

func (s *CacheService) currentGeneration() uint64 {
	if s == nil {
		return 0
	}
	return s.generation.Load()
}

// Invalidate removes cached values matching pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	s.generation.Add(1)
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}

func makeTransferCacheKey(kind string, filter models.TransferFilter) string {
	statuses := make([]string, len(filter.Statuses))
	for i, status := range filter.Statuses {
		statuses[i] = string(status)
	}
	date := ""
	if filter.Date != nil {
		date = filter.Date.UTC().Format(historyDateLayout)
	}
	search := strings.NewReplacer(":", "|", "/", "|").Replace(strings.ToLower(filter.Search))
	return fmt.Sprintf("%s%s:%s:%s:%s", transferCachePrefix, kind, strings.Join(statuses, ","), date, search)
}

func makeReferenceCacheKey(kind string) string {
	return referenceCachePrefix + kind
}
