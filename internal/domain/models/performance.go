package models

import "time"

// StrategyPerformance aggregates realized outcomes for one strategy/source
// over a trailing window.
type StrategyPerformance struct {
	Key          string    `json:"key"` // strategy run name or signal source
	Trades       int       `json:"trades"`
	Wins         int       `json:"wins"`
	WinRate      float64   `json:"win_rate"`
	AvgReturn    float64   `json:"avg_return"`
	TotalPnL     float64   `json:"total_pnl"`
	AvgEvalScore float64   `json:"avg_eval_score"`
	Grade        string    `json:"grade"`
	WindowFrom   time.Time `json:"window_from"`
	WindowTo     time.Time `json:"window_to"`
}

// ParamSet is one point in the optimizer's discrete search grid.
type ParamSet struct {
	MinStrength   float64 `json:"min_strength"`
	MinConfidence float64 `json:"min_confidence"`
}

// GridResult is the historical outcome of filtering by one ParamSet.
type GridResult struct {
	Params    ParamSet `json:"params"`
	Trades    int      `json:"trades"`
	WinRate   float64  `json:"win_rate"`
	AvgReturn float64  `json:"avg_return"`
	Composite float64  `json:"composite"`
}

// OptimizationStatus reports what happened to a recommendation.
type OptimizationStatus string

const (
	OptimizationPendingApproval OptimizationStatus = "PENDING_APPROVAL"
	OptimizationApplied         OptimizationStatus = "APPLIED"
	OptimizationNoData          OptimizationStatus = "NO_DATA"
)

// OptimizationReport is the optimizer's recommendation. It is surfaced to
// the operator and never silently applied.
type OptimizationReport struct {
	AccountID   string             `json:"account_id"`
	Current     ParamSet           `json:"current"`
	Recommended ParamSet           `json:"recommended"`
	Results     []GridResult       `json:"results"`
	Status      OptimizationStatus `json:"status"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// CyclePhase names one of the five coordinator phases.
type CyclePhase string

const (
	PhaseGenerate CyclePhase = "generate"
	PhaseValidate CyclePhase = "validate"
	PhaseExecute  CyclePhase = "execute"
	PhaseEvaluate CyclePhase = "evaluate"
	PhaseOptimize CyclePhase = "optimize"
)

// PhaseResult records the independent outcome of one cycle phase.
type PhaseResult struct {
	Phase    CyclePhase    `json:"phase"`
	Ok       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Count    int           `json:"count"`
	Duration time.Duration `json:"duration"`
}

// CycleReport summarizes one full loop cycle for an account. Partial failure
// in one phase does not abort later phases.
type CycleReport struct {
	AccountID  string        `json:"account_id"`
	Phases     []PhaseResult `json:"phases"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// AuditEvent is an immutable record of an execution-path decision.
type AuditEvent struct {
	AccountID string            `json:"account_id"`
	SignalID  string            `json:"signal_id"`
	Symbol    string            `json:"symbol"`
	Action    string            `json:"action"` // submitted, reverted, executed, reconciled, rejected
	OrderID   string            `json:"order_id,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	At        time.Time         `json:"at"`
}
