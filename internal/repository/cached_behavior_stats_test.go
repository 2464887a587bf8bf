package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeLoop/internal/domain/models"
	"TradeLoop/pkg/cache"
)

type countingStats struct {
	calls int
	stats map[string]models.BehaviorStats
}

func (c *countingStats) GetBehaviorStats(ctx context.Context, accountID string, symbols []string) (map[string]models.BehaviorStats, error) {
	c.calls++
	out := make(map[string]models.BehaviorStats)
	for _, sym := range symbols {
		if st, ok := c.stats[sym]; ok {
			out[sym] = st
		}
	}
	return out, nil
}

func TestCachedBehaviorStatsServesWarmEntries(t *testing.T) {
	inner := &countingStats{stats: map[string]models.BehaviorStats{
		"AAPL": {Symbol: "AAPL", BehaviorScore: 85, SellFlyScore: 20},
		"MSFT": {Symbol: "MSFT", BehaviorScore: 40, SellFlyScore: 60},
	}}
	s := NewCachedBehaviorStats(inner, cache.NewMemoryCache())
	ctx := context.Background()

	got, err := s.GetBehaviorStats(ctx, "acc-1", []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, inner.calls)

	// Second read is served entirely from cache.
	got, err = s.GetBehaviorStats(ctx, "acc-1", []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 85.0, got["AAPL"].BehaviorScore)
	assert.Equal(t, 1, inner.calls)

	// A new symbol fetches only the miss.
	got, err = s.GetBehaviorStats(ctx, "acc-1", []string{"AAPL", "TSLA"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 2, inner.calls)
}
