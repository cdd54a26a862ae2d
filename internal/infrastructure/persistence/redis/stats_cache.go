package redis

import (
	"context"
	"errors"
	"time"

	"github.com/youlearn/youlearn-progress/internal/application/query"
)

// StatsCache stores computed stats per user. Every progress write deletes
// the user's entry, so a hit is never older than the last write.
type StatsCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewStatsCache creates a StatsCache over cache. A non-positive ttl uses TTLStats.
func NewStatsCache(cache *Cache, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = TTLStats
	}
	return &StatsCache{cache: cache, ttl: ttl}
}

// GetStats implements query.StatsCache.
func (s *StatsCache) GetStats(ctx context.Context, userID string, dst *query.Stats) (bool, error) {
	err := s.cache.Get(ctx, StatsKey(userID), dst)
	if errors.Is(err, ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetStats implements query.StatsCache.
func (s *StatsCache) SetStats(ctx context.Context, userID string, stats *query.Stats) error {
	return s.cache.Set(ctx, StatsKey(userID), stats, s.ttl)
}

// Invalidate drops the cached stats for userID.
func (s *StatsCache) Invalidate(ctx context.Context, userID string) error {
	return s.cache.Delete(ctx, StatsKey(userID))
}
