package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	gocache "github.com/patrickmn/go-cache"

	appErrors "github.com/noah-isme/transfer-board-api/pkg/errors"
)

// MemoryCacheRepository is the in-process cache used when Redis is not configured.
// Values are stored JSON-encoded so callers observe the same copy semantics as Redis.
type MemoryCacheRepository struct {
	store *gocache.Cache
}

// NewMemoryCacheRepository constructs an in-memory cache with the given default TTL.
func NewMemoryCacheRepository(defaultTTL, cleanupInterval time.Duration) *MemoryCacheRepository {
	return &MemoryCacheRepository{store: gocache.New(defaultTTL, cleanupInterval)}
}

// Get retrieves and unmarshals the cached value into dest.
func (r *MemoryCacheRepository) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := r.store.Get(key)
	if !ok {
		return appErrors.ErrCacheMiss
	}
	payload, ok := raw.([]byte)
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return nil
}

// Set marshals value and stores it with ttl.
func (r *MemoryCacheRepository) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	r.store.Set(key, payload, ttl)
	return nil
}

// DeleteByPattern removes entries whose key matches the glob pattern.
func (r *MemoryCacheRepository) DeleteByPattern(_ context.Context, pattern string) error {
	for key := range r.store.Items() {
		matched, err := path.Match(pattern, key)
		if err != nil {
			return fmt.Errorf("match cache pattern %s: %w", pattern, err)
		}
		if matched {
			r.store.Delete(key)
		}
	}
	return nil
}
