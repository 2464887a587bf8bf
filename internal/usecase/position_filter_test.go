package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeLoop/internal/domain/models"
	drepo "TradeLoop/internal/domain/repository"
	localrepo "TradeLoop/internal/repository"
)

type filterFixture struct {
	store  *localrepo.MemorySignalStore
	broker *fakeBroker
	filter *PositionFilter
}

func newFilterFixture(t *testing.T, lotSizes map[string]float64) *filterFixture {
	t.Helper()
	f := &filterFixture{
		store:  localrepo.NewMemorySignalStore(nil),
		broker: newFakeBroker(),
	}
	f.broker.equity = 100_000
	f.broker.positions = []drepo.UnderlyingPosition{
		{Symbol: "AAPL", Quantity: 100, AvgPrice: 45, LastPrice: 50},
		{Symbol: "MSFT", Quantity: -50, AvgPrice: 110, LastPrice: 100},
	}
	f.filter = NewPositionFilter(f.broker, f.store, testLogger(t), lotSizes)
	return f
}

func (f *filterFixture) seed(t *testing.T, id string, typ models.SignalType, dir models.Direction, symbol string, qty float64) *models.Signal {
	t.Helper()
	return seedSignal(t, f.store, &models.Signal{
		ID:                id,
		AccountID:         "acc-1",
		Symbol:            symbol,
		Type:              typ,
		Direction:         dir,
		Strength:          70,
		RiskScore:         30,
		SuggestedQuantity: qty,
		SuggestedPrice:    50,
		ExpiresAt:         time.Now().Add(time.Hour),
	}, models.SignalStatusGenerated)
}

func TestFilterPositionConsistency(t *testing.T) {
	f := newFilterFixture(t, nil)
	ctx := context.Background()

	pass := []*models.Signal{
		// New symbol ENTRY.
		f.seed(t, "entry-new", models.SignalTypeEntry, models.DirectionLong, "NVDA", 10),
		// ENTRY topping up a smaller same-direction position.
		f.seed(t, "entry-topup", models.SignalTypeEntry, models.DirectionLong, "AAPL", 200),
		// ADD to an existing long.
		f.seed(t, "add-long", models.SignalTypeAdd, models.DirectionLong, "AAPL", 50),
		// REDUCE within held quantity.
		f.seed(t, "reduce-ok", models.SignalTypeReduce, models.DirectionLong, "AAPL", 50),
		// EXIT of a held short.
		f.seed(t, "exit-short", models.SignalTypeExit, models.DirectionShort, "MSFT", 50),
	}
	drop := []*models.Signal{
		// ENTRY duplicating an equal-or-larger same-direction position.
		f.seed(t, "entry-dup", models.SignalTypeEntry, models.DirectionLong, "AAPL", 100),
		// ADD without a position.
		f.seed(t, "add-none", models.SignalTypeAdd, models.DirectionLong, "NVDA", 10),
		// ADD against an opposite-direction position.
		f.seed(t, "add-opposite", models.SignalTypeAdd, models.DirectionLong, "MSFT", 10),
		// REDUCE past the held quantity.
		f.seed(t, "reduce-over", models.SignalTypeReduce, models.DirectionLong, "AAPL", 150),
		// EXIT with nothing held.
		f.seed(t, "exit-none", models.SignalTypeExit, models.DirectionLong, "NVDA", 10),
	}

	all := append(append([]*models.Signal{}, pass...), drop...)
	passed, stats, err := f.filter.Filter(ctx, "acc-1", all)
	require.NoError(t, err)

	assert.Equal(t, len(all), stats.Total)
	assert.Equal(t, len(pass), stats.Passed)
	assert.Equal(t, len(drop), stats.Filtered)
	require.Len(t, passed, len(pass))

	for _, sig := range drop {
		stored, err := f.store.Get(ctx, sig.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SignalStatusExpired, stored.Status, "signal %s", sig.ID)
		assert.Equal(t, models.ReasonPositionConflict, stored.Reason, "signal %s", sig.ID)
		assert.NotEmpty(t, stored.Metadata["filter_reason"], "signal %s", sig.ID)
	}
	for _, sig := range pass {
		stored, err := f.store.Get(ctx, sig.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SignalStatusGenerated, stored.Status, "signal %s", sig.ID)
	}
}

func TestFilterMinimumLot(t *testing.T) {
	f := newFilterFixture(t, map[string]float64{"0700.HK": 500})
	f.broker.equity = 10_000
	ctx := context.Background()

	sig := f.seed(t, "hk-small", models.SignalTypeEntry, models.DirectionLong, "0700.HK", 0)
	sig2, err := f.store.Get(ctx, sig.ID)
	require.NoError(t, err)
	sig2.SuggestedPrice = 600
	require.NoError(t, f.store.Update(ctx, sig2))

	// 10k equity * PositionSize(70,30) / 600 is a handful of shares, far
	// under the 500-share board lot.
	passed, stats, err := f.filter.Filter(ctx, "acc-1", []*models.Signal{sig2})
	require.NoError(t, err)
	assert.Empty(t, passed)
	assert.Equal(t, 1, stats.Filtered)

	stored, err := f.store.Get(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusExpired, stored.Status)
}

func TestFilterEmptyBatch(t *testing.T) {
	f := newFilterFixture(t, nil)
	passed, stats, err := f.filter.Filter(context.Background(), "acc-1", nil)
	require.NoError(t, err)
	assert.Nil(t, passed)
	assert.Zero(t, stats.Total)
}
