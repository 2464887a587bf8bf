package models

// ListSignalsRequest filters an account's signal book.
type ListSignalsRequest struct {
	AccountID string `param:"account" validate:"required"`
	Status    string `query:"status" default:"" validate:"omitempty,oneof=GENERATED VALIDATED QUEUED EXECUTING EXECUTED REJECTED CANCELLED EXPIRED"`
}

// CancelSignalRequest cancels one live signal.
type CancelSignalRequest struct {
	SignalID string `param:"id" validate:"required"`
	Reason   string `json:"reason" default:"operator request" validate:"max=500"`
}

// ExecuteBatchRequest triggers an execution batch for an account.
type ExecuteBatchRequest struct {
	AccountID string `param:"account" validate:"required"`
	MaxOrders int    `json:"max_orders" default:"10" validate:"gte=1,lte=100"`
}

// RunCycleRequest triggers one full loop cycle for an account.
type RunCycleRequest struct {
	AccountID string `param:"account" validate:"required"`
}

// RiskStateRequest resolves the effective risk state for symbols.
type RiskStateRequest struct {
	AccountID string   `param:"account" validate:"required"`
	Symbols   []string `query:"symbols" validate:"required,min=1,max=100,dive,required"`
}

// EvaluateSignalRequest records a realized outcome against an executed signal.
type EvaluateSignalRequest struct {
	SignalID     string  `param:"id" validate:"required"`
	ActualReturn float64 `json:"actual_return"`
	RealizedPnL  float64 `json:"realized_pnl"`
	HoldingDays  int     `json:"holding_days" validate:"gte=0,lte=3650"`
}

// ApplyOptimizationRequest installs the pending recommendation.
type ApplyOptimizationRequest struct {
	AccountID string `param:"account" validate:"required"`
	AutoApply bool   `json:"auto_apply"`
}
