package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeLoop/internal/domain/models"
)

func TestResolveAssignsTiersFromBehavior(t *testing.T) {
	r := testResolver(map[string]models.BehaviorStats{
		"AAPL": {Symbol: "AAPL", BehaviorScore: 90, SellFlyScore: 20},
		"TSLA": {Symbol: "TSLA", BehaviorScore: 20, SellFlyScore: 50},
		"BABA": {Symbol: "BABA", BehaviorScore: 40, SellFlyScore: 40},
	})

	state, err := r.Resolve(context.Background(), "acc-1", []string{"AAPL", "TSLA", "BABA", "MSFT"})
	require.NoError(t, err)

	assert.Equal(t, models.TierT1, state.Symbols["AAPL"].Tier)
	assert.Equal(t, models.TierT4, state.Symbols["TSLA"].Tier)
	assert.Equal(t, models.TierT3, state.Symbols["BABA"].Tier)
	// No behavior history falls back to the T2 baseline.
	assert.Equal(t, models.TierT2, state.Symbols["MSFT"].Tier)
	assert.Equal(t, testLimits, state.Limits)
}

func TestResolveScalesShockPolicyByTier(t *testing.T) {
	r := testResolver(map[string]models.BehaviorStats{
		"AAPL": {Symbol: "AAPL", BehaviorScore: 90, SellFlyScore: 20}, // T1
		"TSLA": {Symbol: "TSLA", BehaviorScore: 20, SellFlyScore: 50}, // T4
	})

	state, err := r.Resolve(context.Background(), "acc-1", []string{"AAPL", "TSLA", "MSFT"})
	require.NoError(t, err)

	// T1 loosens triggers and admits more new risk.
	t1 := state.Symbols["AAPL"].Shock
	assert.InDelta(t, 5.5, t1.AlertDropPct, 1e-9)
	assert.InDelta(t, 11, t1.EmergencyDropPct, 1e-9)
	assert.InDelta(t, 45, t1.EmergencyReducePct, 1e-9)
	assert.InDelta(t, 1.2, t1.MaxNewRiskFactor, 1e-9)
	assert.InDelta(t, 11_000, t1.EarningsGammaCapUSD, 1e-9)

	// T4 tightens triggers, cuts harder and admits less.
	t4 := state.Symbols["TSLA"].Shock
	assert.InDelta(t, 4, t4.AlertDropPct, 1e-9)
	assert.InDelta(t, 8, t4.EmergencyDropPct, 1e-9)
	assert.InDelta(t, 70, t4.EmergencyReducePct, 1e-9)
	assert.InDelta(t, 0.6, t4.MaxNewRiskFactor, 1e-9)
	assert.InDelta(t, 8_000, t4.EarningsGammaCapUSD, 1e-9)

	// T2 is the identity scaling.
	assert.Equal(t, testShock, state.Symbols["MSFT"].Shock)
}

func TestResolveIsDeterministic(t *testing.T) {
	stats := map[string]models.BehaviorStats{
		"AAPL": {Symbol: "AAPL", BehaviorScore: 55, SellFlyScore: 45},
	}
	r := testResolver(stats)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "acc-1", []string{"AAPL"})
	require.NoError(t, err)
	second, err := r.Resolve(ctx, "acc-1", []string{"AAPL"})
	require.NoError(t, err)

	assert.Equal(t, first.Symbols, second.Symbols)
	assert.Equal(t, first.Limits, second.Limits)
}

func TestResolveClampsReducePct(t *testing.T) {
	r := NewRiskLimitResolver(&fakeStats{stats: map[string]models.BehaviorStats{
		"TSLA": {Symbol: "TSLA", BehaviorScore: 10, SellFlyScore: 90}, // T4
	}}, RiskProfile{
		Limits: testLimits,
		Shock:  models.ShockPolicy{EmergencyReducePct: 80},
	})

	state, err := r.Resolve(context.Background(), "acc-1", []string{"TSLA"})
	require.NoError(t, err)
	// 80 * 1.4 = 112, clamped to 100.
	assert.InDelta(t, 100, state.Symbols["TSLA"].Shock.EmergencyReducePct, 1e-9)
}

func TestResolveCustomTierFactors(t *testing.T) {
	r := NewRiskLimitResolver(&fakeStats{stats: map[string]models.BehaviorStats{
		"AAPL": {Symbol: "AAPL", BehaviorScore: 90, SellFlyScore: 10}, // T1
	}}, RiskProfile{
		Limits:      testLimits,
		Shock:       testShock,
		TierFactors: map[models.Tier]models.TierFactors{models.TierT1: {Threshold: 2, Reduce: 1, MaxNewRisk: 1}},
	})

	state, err := r.Resolve(context.Background(), "acc-1", []string{"AAPL"})
	require.NoError(t, err)
	assert.InDelta(t, 10, state.Symbols["AAPL"].Shock.AlertDropPct, 1e-9)
}
