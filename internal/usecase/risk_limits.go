package usecase

import (
	"context"
	"fmt"
	"time"

	"TradeLoop/internal/domain/models"
	drepo "TradeLoop/internal/domain/repository"
)

// RiskProfile is the static baseline the resolver scales per symbol.
type RiskProfile struct {
	Limits models.RiskLimits
	Shock  models.ShockPolicy
	// TierFactors overrides models.DefaultTierFactors when non-nil.
	TierFactors map[models.Tier]models.TierFactors
}

// RiskLimitResolver derives effective per-account/per-symbol risk limits and
// shock/earnings policies from the static profile and dynamic behavior-tier
// scores. Resolution is deterministic: the same stats always yield the same
// state, and the result is never mutated afterwards.
type RiskLimitResolver struct {
	stats   drepo.BehaviorStatsStore
	profile RiskProfile
	now     func() time.Time
}

// NewRiskLimitResolver creates a resolver over a behavior-statistics store.
func NewRiskLimitResolver(stats drepo.BehaviorStatsStore, profile RiskProfile) *RiskLimitResolver {
	return &RiskLimitResolver{stats: stats, profile: profile, now: time.Now}
}

// Resolve computes the effective risk state for the account and symbols.
// Symbols without behavior history resolve to the T2 baseline.
func (r *RiskLimitResolver) Resolve(ctx context.Context, accountID string, symbols []string) (*models.EffectiveRiskState, error) {
	state := &models.EffectiveRiskState{
		AccountID:  accountID,
		Limits:     r.profile.Limits,
		Symbols:    make(map[string]*models.SymbolRiskState, len(symbols)),
		ResolvedAt: r.now(),
	}

	var behavior map[string]models.BehaviorStats
	if len(symbols) > 0 && r.stats != nil {
		var err error
		behavior, err = r.stats.GetBehaviorStats(ctx, accountID, symbols)
		if err != nil {
			return nil, fmt.Errorf("behavior stats: %w", err)
		}
	}

	for _, sym := range symbols {
		tier := models.TierT2
		if st, ok := behavior[sym]; ok {
			tier = models.TierFromScores(st.BehaviorScore, st.SellFlyScore)
		}
		state.Symbols[sym] = &models.SymbolRiskState{
			Symbol: sym,
			Tier:   tier,
			Shock:  r.scaledShock(tier),
		}
	}
	return state, nil
}

// scaledShock applies the tier factor table to the baseline shock policy.
// Trigger thresholds scale by the threshold factor; the emergency-reduce and
// max-new-risk factors move inversely so worse tiers react harder and admit
// less new risk.
func (r *RiskLimitResolver) scaledShock(tier models.Tier) models.ShockPolicy {
	factors := r.tierFactors(tier)
	base := r.profile.Shock
	return models.ShockPolicy{
		AlertDropPct:        base.AlertDropPct * factors.Threshold,
		EmergencyDropPct:    base.EmergencyDropPct * factors.Threshold,
		EmergencyReducePct:  clampPct(base.EmergencyReducePct * factors.Reduce),
		MaxNewRiskFactor:    base.MaxNewRiskFactor * factors.MaxNewRisk,
		EarningsGammaCapUSD: base.EarningsGammaCapUSD * factors.Threshold,
	}
}

func (r *RiskLimitResolver) tierFactors(tier models.Tier) models.TierFactors {
	table := r.profile.TierFactors
	if table == nil {
		table = models.DefaultTierFactors
	}
	if f, ok := table[tier]; ok {
		return f
	}
	return models.TierFactors{Threshold: 1, Reduce: 1, MaxNewRisk: 1}
}

func clampPct(v float64) float64 {
	if v > 100 {
		return 100
	}
	if v < 0 {
		return 0
	}
	return v
}
