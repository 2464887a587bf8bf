package usecase

import (
	"fmt"

	"TradeLoop/internal/domain/models"
	drepo "TradeLoop/internal/domain/repository"
)

// CheckResult is the outcome of one safety check.
type CheckResult struct {
	Allowed bool              `json:"allowed"`
	Reason  models.ReasonCode `json:"reason,omitempty"`
	Detail  string            `json:"detail,omitempty"`
}

func allowed() CheckResult { return CheckResult{Allowed: true} }

func denied(code models.ReasonCode, format string, args ...interface{}) CheckResult {
	return CheckResult{Allowed: false, Reason: code, Detail: fmt.Sprintf(format, args...)}
}

// SafetyGuard evaluates proposed orders and exposure snapshots against
// resolved limits. Every check is pure and side-effect free so the engine
// (pre-validation) and the executor (pre-submission) can both call them
// without coordinating.
type SafetyGuard struct{}

// NewSafetyGuard creates a safety guard.
func NewSafetyGuard() *SafetyGuard { return &SafetyGuard{} }

// CheckOrder rejects an order whose notional exceeds the account cap.
func (g *SafetyGuard) CheckOrder(side drepo.OrderSide, notionalUSD float64, limits models.RiskLimits) CheckResult {
	if notionalUSD < 0 {
		notionalUSD = -notionalUSD
	}
	if limits.MaxOrderNotionalUSD > 0 && notionalUSD > limits.MaxOrderNotionalUSD {
		return denied(models.ReasonNotionalExceeded,
			"%s notional $%.0f exceeds max order notional $%.0f", side, notionalUSD, limits.MaxOrderNotionalUSD)
	}
	return allowed()
}

// CheckGreeksExposure rejects when |gamma| or |vega| as a percentage of
// equity exceeds the configured caps.
func (g *SafetyGuard) CheckGreeksExposure(exp *models.AccountExposure, limits models.RiskLimits) CheckResult {
	if limits.MaxGammaPctEquity > 0 && exp.GammaPctEquity() > limits.MaxGammaPctEquity {
		return denied(models.ReasonGreeksExceeded,
			"gamma %.2f%% of equity exceeds cap %.2f%%", exp.GammaPctEquity(), limits.MaxGammaPctEquity)
	}
	if limits.MaxVegaPctEquity > 0 && exp.VegaPctEquity() > limits.MaxVegaPctEquity {
		return denied(models.ReasonGreeksExceeded,
			"vega %.2f%% of equity exceeds cap %.2f%%", exp.VegaPctEquity(), limits.MaxVegaPctEquity)
	}
	return allowed()
}

// CheckThetaExposure rejects when |theta| as a percentage of equity exceeds
// the configured cap.
func (g *SafetyGuard) CheckThetaExposure(exp *models.AccountExposure, limits models.RiskLimits) CheckResult {
	if limits.MaxThetaPctEquity > 0 && exp.ThetaPctEquity() > limits.MaxThetaPctEquity {
		return denied(models.ReasonGreeksExceeded,
			"theta %.2f%% of equity exceeds cap %.2f%%", exp.ThetaPctEquity(), limits.MaxThetaPctEquity)
	}
	return allowed()
}
