package service

import (
	"context"
	"errors"
	"time"

	appErrors "github.com/noah-isme/transfer-board-api/pkg/errors"
)

const revokedTokenPrefix = "auth:revoked:"

// TokenRevocations remembers the ids of logged-out tokens until they would
// have expired anyway. It writes to the cache repository directly so it keeps
// working when response caching is disabled.
type TokenRevocations struct {
	repo CacheRepository
	now  func() time.Time
}

// NewTokenRevocations builds a revocation list on repo.
func NewTokenRevocations(repo CacheRepository) *TokenRevocations {
	return &TokenRevocations{repo: repo, now: time.Now}
}

// Revoke marks id as revoked until expiresAt. Tokens already past expiry are ignored.
func (r *TokenRevocations) Revoke(ctx context.Context, id string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now())
	if id == "" || ttl <= 0 {
		return nil
	}
	return r.repo.Set(ctx, revokedTokenPrefix+id, true, ttl)
}

// Revoked reports whether id was revoked.
func (r *TokenRevocations) Revoked(ctx context.Context, id string) (bool, error) {
	var revoked bool
	err := r.repo.Get(ctx, revokedTokenPrefix+id, &revoked)
	switch {
	case err == nil:
		return revoked, nil
	case errors.Is(err, appErrors.ErrCacheMiss):
		return false, nil
	default:
		return false, err
	}
}
