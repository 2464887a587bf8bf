package models

import "time"

// Tier is a per-symbol risk-tolerance classification derived from historical
// trading-behavior scores. T1 is the most disciplined, T4 the least.
type Tier string

const (
	TierT1 Tier = "T1"
	TierT2 Tier = "T2"
	TierT3 Tier = "T3"
	TierT4 Tier = "T4"
)

// TierFromScores assigns a tier from the behavior score (higher is better)
// and the sell-fly score (higher is worse). The rule is deterministic and
// symbol-scoped: undisciplined history automatically tightens future risk
// tolerance for that symbol.
func TierFromScores(behaviorScore, sellFlyScore float64) Tier {
	switch {
	case behaviorScore >= 80 && sellFlyScore <= 30:
		return TierT1
	case behaviorScore < 30 || sellFlyScore >= 80:
		return TierT4
	case behaviorScore < 50 || sellFlyScore >= 50:
		return TierT3
	default:
		return TierT2
	}
}

// TierFactors scales a symbol's shock/earnings policy. Threshold factors
// loosen alert/emergency trigger levels; the reduce and new-risk factors
// move inversely so worse tiers cut harder and admit less new risk.
type TierFactors struct {
	Threshold  float64 `yaml:"threshold"`
	Reduce     float64 `yaml:"reduce"`
	MaxNewRisk float64 `yaml:"max_new_risk"`
}

// DefaultTierFactors is the baseline factor table.
var DefaultTierFactors = map[Tier]TierFactors{
	TierT1: {Threshold: 1.1, Reduce: 0.9, MaxNewRisk: 1.2},
	TierT2: {Threshold: 1.0, Reduce: 1.0, MaxNewRisk: 1.0},
	TierT3: {Threshold: 0.9, Reduce: 1.2, MaxNewRisk: 0.8},
	TierT4: {Threshold: 0.8, Reduce: 1.4, MaxNewRisk: 0.6},
}

// BehaviorStats is one symbol's historical trading-behavior scores as read
// from the behavior-statistics store.
type BehaviorStats struct {
	AccountID     string    `json:"account_id"`
	Symbol        string    `json:"symbol"`
	BehaviorScore float64   `json:"behavior_score"` // 0..100, higher = more disciplined
	SellFlyScore  float64   `json:"sell_fly_score"` // 0..100, higher = worse exits
	SampleTrades  int       `json:"sample_trades"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ShockPolicy holds shock-response trigger levels and reaction factors for
// one symbol after tier scaling.
type ShockPolicy struct {
	AlertDropPct        float64 `json:"alert_drop_pct"`
	EmergencyDropPct    float64 `json:"emergency_drop_pct"`
	EmergencyReducePct  float64 `json:"emergency_reduce_pct"`
	MaxNewRiskFactor    float64 `json:"max_new_risk_factor"`
	EarningsGammaCapUSD float64 `json:"earnings_gamma_cap_usd"`
}

// SymbolRiskState is the resolved risk posture for one symbol.
type SymbolRiskState struct {
	Symbol string      `json:"symbol"`
	Tier   Tier        `json:"tier"`
	Shock  ShockPolicy `json:"shock"`
}

// RiskLimits are the account-level hard caps consulted by the safety guard.
type RiskLimits struct {
	MaxOrderNotionalUSD float64 `yaml:"max_order_notional_usd" json:"max_order_notional_usd"`
	MaxGammaPctEquity   float64 `yaml:"max_gamma_pct_equity" json:"max_gamma_pct_equity"`
	MaxVegaPctEquity    float64 `yaml:"max_vega_pct_equity" json:"max_vega_pct_equity"`
	MaxThetaPctEquity   float64 `yaml:"max_theta_pct_equity" json:"max_theta_pct_equity"`
}

// EffectiveRiskState is the per-account resolution of static profiles and
// dynamic behavior tiers. Recomputed per validation call, never mutated.
type EffectiveRiskState struct {
	AccountID  string                      `json:"account_id"`
	Limits     RiskLimits                  `json:"limits"`
	Symbols    map[string]*SymbolRiskState `json:"symbols"`
	ResolvedAt time.Time                   `json:"resolved_at"`
}

// Symbol returns the resolved state for a symbol, falling back to a T2
// baseline for symbols with no behavior history.
func (s *EffectiveRiskState) Symbol(sym string) *SymbolRiskState {
	if st, ok := s.Symbols[sym]; ok {
		return st
	}
	return &SymbolRiskState{Symbol: sym, Tier: TierT2}
}
