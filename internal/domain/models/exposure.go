package models

import "time"

// SymbolExposure is the per-symbol slice of an account exposure snapshot.
type SymbolExposure struct {
	Symbol           string  `json:"symbol"`
	DeltaNotionalUSD float64 `json:"delta_notional_usd"`
	GammaUSD         float64 `json:"gamma_usd"`
	VegaUSD          float64 `json:"vega_usd"`
	ThetaUSD         float64 `json:"theta_usd"`
	EquityQuantity   float64 `json:"equity_quantity,omitempty"`
	OptionContracts  float64 `json:"option_contracts,omitempty"`
}

// AccountExposure is a derived snapshot of aggregated Greeks/Delta exposure.
// It is recomputed on demand and never persisted as a source of truth.
type AccountExposure struct {
	AccountID        string  `json:"account_id"`
	Equity           float64 `json:"equity"`
	DeltaNotionalUSD float64 `json:"delta_notional_usd"`
	GammaUSD         float64 `json:"gamma_usd"`
	VegaUSD          float64 `json:"vega_usd"`
	ThetaUSD         float64 `json:"theta_usd"`

	// Contributions from options expiring within the short-DTE window,
	// used by earnings-window risk policies.
	ShortDTEGammaUSD float64 `json:"short_dte_gamma_usd"`
	ShortDTEThetaUSD float64 `json:"short_dte_theta_usd"`

	Symbols map[string]*SymbolExposure `json:"symbols"`
	AsOf    time.Time                  `json:"as_of"`
}

// GammaPctEquity returns |gamma| as a percentage of account equity.
func (e *AccountExposure) GammaPctEquity() float64 { return pctOfEquity(e.GammaUSD, e.Equity) }

// VegaPctEquity returns |vega| as a percentage of account equity.
func (e *AccountExposure) VegaPctEquity() float64 { return pctOfEquity(e.VegaUSD, e.Equity) }

// ThetaPctEquity returns |theta| as a percentage of account equity.
func (e *AccountExposure) ThetaPctEquity() float64 { return pctOfEquity(e.ThetaUSD, e.Equity) }

func pctOfEquity(v, equity float64) float64 {
	if equity <= 0 {
		return 0
	}
	if v < 0 {
		v = -v
	}
	return v / equity * 100
}

func (e *AccountExposure) symbol(sym string) *SymbolExposure {
	if e.Symbols == nil {
		e.Symbols = make(map[string]*SymbolExposure)
	}
	se, ok := e.Symbols[sym]
	if !ok {
		se = &SymbolExposure{Symbol: sym}
		e.Symbols[sym] = se
	}
	return se
}

// AddEquityDelta accumulates an equity position's delta-notional.
func (e *AccountExposure) AddEquityDelta(sym string, qty, notional float64) {
	se := e.symbol(sym)
	se.EquityQuantity += qty
	se.DeltaNotionalUSD += notional
	e.DeltaNotionalUSD += notional
}

// AddOptionGreeks accumulates an option position's dollar Greeks. shortDTE
// marks contracts inside the short-dated expiry window.
func (e *AccountExposure) AddOptionGreeks(sym string, contracts, delta, gamma, vega, theta float64, shortDTE bool) {
	se := e.symbol(sym)
	se.OptionContracts += contracts
	se.DeltaNotionalUSD += delta
	se.GammaUSD += gamma
	se.VegaUSD += vega
	se.ThetaUSD += theta

	e.DeltaNotionalUSD += delta
	e.GammaUSD += gamma
	e.VegaUSD += vega
	e.ThetaUSD += theta
	if shortDTE {
		e.ShortDTEGammaUSD += gamma
		e.ShortDTEThetaUSD += theta
	}
}
