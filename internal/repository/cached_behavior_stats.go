package repository

import (
	"context"
	"encoding/json"
	"time"

	"TradeLoop/internal/domain/models"
	drepo "TradeLoop/internal/domain/repository"
	"TradeLoop/pkg/cache"
)

// behaviorStatsTTL bounds staleness of the tier inputs. Behavior scores are
// recomputed offline at most daily, so minutes of staleness is harmless.
const behaviorStatsTTL = 5 * time.Minute

// CachedBehaviorStats fronts a behavior-stats store with a cache so the
// per-validation resolver reads stop hitting ClickHouse.
type CachedBehaviorStats struct {
	inner drepo.BehaviorStatsStore
	cache cache.Service
}

// NewCachedBehaviorStats wraps a store with the given cache backend.
func NewCachedBehaviorStats(inner drepo.BehaviorStatsStore, c cache.Service) *CachedBehaviorStats {
	return &CachedBehaviorStats{inner: inner, cache: c}
}

func (s *CachedBehaviorStats) GetBehaviorStats(ctx context.Context, accountID string, symbols []string) (map[string]models.BehaviorStats, error) {
	out := make(map[string]models.BehaviorStats, len(symbols))
	var missing []string
	for _, sym := range symbols {
		// Entries are stored as JSON strings so both cache backends
		// round-trip them identically.
		var raw string
		if err := s.cache.Get(ctx, s.key(accountID, sym), &raw); err == nil {
			var st models.BehaviorStats
			if err := json.Unmarshal([]byte(raw), &st); err == nil {
				out[sym] = st
				continue
			}
		}
		missing = append(missing, sym)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := s.inner.GetBehaviorStats(ctx, accountID, missing)
	if err != nil {
		return nil, err
	}
	for sym, st := range fetched {
		out[sym] = st
		// A failed cache write only costs the next read a store round trip.
		if b, err := json.Marshal(st); err == nil {
			_ = s.cache.Set(ctx, s.key(accountID, sym), string(b), behaviorStatsTTL)
		}
	}
	return out, nil
}

func (s *CachedBehaviorStats) key(accountID, symbol string) string {
	return cache.GenerateKeyWithParams("behavior", accountID, symbol)
}
