package models

import (
	"errors"
	"time"
)

var ErrInvalidTransition = errors.New("invalid signal status transition")

// SignalStatus tracks the lifecycle of a trading signal.
type SignalStatus string

const (
	SignalStatusGenerated SignalStatus = "GENERATED"
	SignalStatusValidated SignalStatus = "VALIDATED"
	SignalStatusQueued    SignalStatus = "QUEUED"
	SignalStatusExecuting SignalStatus = "EXECUTING"
	SignalStatusExecuted  SignalStatus = "EXECUTED"
	SignalStatusRejected  SignalStatus = "REJECTED"
	SignalStatusCancelled SignalStatus = "CANCELLED"
	SignalStatusExpired   SignalStatus = "EXPIRED"
)

// IsTerminal reports whether no further transition may leave the status.
func (s SignalStatus) IsTerminal() bool {
	switch s {
	case SignalStatusExecuted, SignalStatusRejected, SignalStatusCancelled, SignalStatusExpired:
		return true
	default:
		return false
	}
}

// transitions is the allowed edge set of the signal state machine.
// EXECUTING -> VALIDATED is the broker-failure retry path.
var transitions = map[SignalStatus][]SignalStatus{
	SignalStatusGenerated: {SignalStatusValidated, SignalStatusRejected, SignalStatusExpired, SignalStatusCancelled},
	SignalStatusValidated: {SignalStatusQueued, SignalStatusRejected, SignalStatusExpired, SignalStatusCancelled},
	SignalStatusQueued:    {SignalStatusExecuting, SignalStatusValidated, SignalStatusCancelled, SignalStatusExpired},
	SignalStatusExecuting: {SignalStatusExecuted, SignalStatusValidated},
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func (s SignalStatus) CanTransition(to SignalStatus) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// SignalType classifies the intent of a signal relative to current holdings.
type SignalType string

const (
	SignalTypeEntry  SignalType = "ENTRY"
	SignalTypeAdd    SignalType = "ADD"
	SignalTypeReduce SignalType = "REDUCE"
	SignalTypeExit   SignalType = "EXIT"
	SignalTypeHedge  SignalType = "HEDGE"
)

// SignalSource identifies who produced the signal.
type SignalSource string

const (
	SourceStrategy SignalSource = "strategy"
	SourceManual   SignalSource = "manual"
	SourceAdvisor  SignalSource = "advisor"
)

// Direction is the side of the trade idea.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Opposite returns the reversed direction.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// ReasonCode is a typed code attached when a signal leaves the happy path.
type ReasonCode string

const (
	ReasonNone              ReasonCode = ""
	ReasonTradeModeOff      ReasonCode = "TRADE_MODE_OFF"
	ReasonTTLElapsed        ReasonCode = "TTL_ELAPSED"
	ReasonNotionalExceeded  ReasonCode = "NOTIONAL_EXCEEDED"
	ReasonGreeksExceeded    ReasonCode = "GREEKS_EXCEEDED"
	ReasonPositionConflict  ReasonCode = "POSITION_CONFLICT"
	ReasonBelowMinLot       ReasonCode = "BELOW_MIN_LOT"
	ReasonBrokerFailure     ReasonCode = "BROKER_FAILURE"
	ReasonBrokerCancelled   ReasonCode = "BROKER_CANCELLED"
	ReasonDataUnavailable   ReasonCode = "DATA_UNAVAILABLE"
	ReasonOperatorCancelled ReasonCode = "OPERATOR_CANCELLED"
	ReasonAbsorbedByDedup   ReasonCode = "ABSORBED_BY_DEDUP"
	ReasonRetriesExhausted  ReasonCode = "RETRIES_EXHAUSTED"
)

// Signal is the unit of trading intent owned by the signal engine.
type Signal struct {
	ID        string       `json:"id"`
	AccountID string       `json:"account_id"`
	Symbol    string       `json:"symbol"`
	Type      SignalType   `json:"type"`
	Source    SignalSource `json:"source"`
	Direction Direction    `json:"direction"`

	Strength   float64 `json:"strength"`   // 0..100
	Confidence float64 `json:"confidence"` // 0..1
	RiskScore  float64 `json:"risk_score"` // 0..100

	SuggestedQuantity float64 `json:"suggested_quantity"`
	SuggestedPrice    float64 `json:"suggested_price"`
	StopLoss          float64 `json:"stop_loss,omitempty"`
	TakeProfit        float64 `json:"take_profit,omitempty"`

	FactorScores map[string]float64 `json:"factor_scores,omitempty"`

	Status        SignalStatus `json:"status"`
	StrategyRunID string       `json:"strategy_run_id,omitempty"`
	BrokerOrderID string       `json:"broker_order_id,omitempty"`

	Reason       ReasonCode        `json:"reason,omitempty"`
	ReasonDetail string            `json:"reason_detail,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`

	// Filled in after settlement.
	ExecutedPrice    float64 `json:"executed_price,omitempty"`
	ExecutedQuantity float64 `json:"executed_quantity,omitempty"`
	Slippage         float64 `json:"slippage,omitempty"`
	ActualReturn     float64 `json:"actual_return,omitempty"`
	RealizedPnL      float64 `json:"realized_pnl,omitempty"`
	EvaluationScore  float64 `json:"evaluation_score,omitempty"`

	ExecutionAttempts int `json:"execution_attempts,omitempty"`

	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExpired reports whether the signal's TTL has elapsed at now.
func (s *Signal) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// IsLive reports whether the signal still occupies its (account, symbol)
// slot: non-terminal and not past its TTL.
func (s *Signal) IsLive(now time.Time) bool {
	return !s.Status.IsTerminal() && !s.IsExpired(now)
}

// Transition moves the signal to the next status, enforcing the lifecycle
// edge set. Terminal states are final.
func (s *Signal) Transition(to SignalStatus, now time.Time) error {
	if !s.Status.CanTransition(to) {
		return ErrInvalidTransition
	}
	s.Status = to
	s.UpdatedAt = now
	return nil
}

// Fail records a failure reason and moves the signal to a failure status.
func (s *Signal) Fail(to SignalStatus, code ReasonCode, detail string, now time.Time) error {
	if err := s.Transition(to, now); err != nil {
		return err
	}
	s.Reason = code
	s.ReasonDetail = detail
	return nil
}

// SetMeta attaches a free-form annotation. Known reasons use ReasonCode;
// this map is for rare extensibility only.
func (s *Signal) SetMeta(key, value string) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]string)
	}
	s.Metadata[key] = value
}

// StrategyRun identifies one completed run of an external strategy producer.
type StrategyRun struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	Strategy    string    `json:"strategy"`
	CompletedAt time.Time `json:"completed_at"`
}

// Candidate is one raw trading idea emitted by a strategy run, before it
// becomes a Signal.
type Candidate struct {
	Symbol            string             `json:"symbol"`
	Direction         Direction          `json:"direction"`
	Type              SignalType         `json:"type,omitempty"` // inferred from positions when empty
	Strength          float64            `json:"strength"`
	Confidence        float64            `json:"confidence"`
	RiskScore         float64            `json:"risk_score"`
	SuggestedQuantity float64            `json:"suggested_quantity"`
	SuggestedPrice    float64            `json:"suggested_price"`
	StopLoss          float64            `json:"stop_loss,omitempty"`
	TakeProfit        float64            `json:"take_profit,omitempty"`
	FactorScores      map[string]float64 `json:"factor_scores,omitempty"`
}
