package repository

import (
	"context"
	"errors"
	"time"

	"TradeLoop/internal/domain/models"
)

var ErrSignalNotFound = errors.New("signal not found")

// SignalStore persists signal records. The persistence technology is opaque
// to the core; records are keyed by id and scoped by account+symbol.
type SignalStore interface {
	Create(ctx context.Context, s *models.Signal) error
	Get(ctx context.Context, id string) (*models.Signal, error)
	Update(ctx context.Context, s *models.Signal) error
	// UpdateBatch commits a set of mutated signals in one call so a batch
	// operation either lands whole or not at all.
	UpdateBatch(ctx context.Context, sigs []*models.Signal) error
	// FindLive returns the single non-terminal, non-expired signal for
	// (account, symbol), or ErrSignalNotFound.
	FindLive(ctx context.Context, accountID, symbol string) (*models.Signal, error)
	// ListByStatus returns an account's signals in any of the given
	// statuses, strongest first.
	ListByStatus(ctx context.Context, accountID string, statuses ...models.SignalStatus) ([]*models.Signal, error)
	// ListExecutedSince returns terminally executed signals for the
	// trailing analysis window.
	ListExecutedSince(ctx context.Context, accountID string, since time.Time) ([]*models.Signal, error)
}

// BehaviorStatsStore reads per-symbol historical behavior scores used by the
// risk limit resolver.
type BehaviorStatsStore interface {
	GetBehaviorStats(ctx context.Context, accountID string, symbols []string) (map[string]models.BehaviorStats, error)
}

// AuditTrail records execution-path decisions. Recording must never block or
// fail an execution batch.
type AuditTrail interface {
	Record(ctx context.Context, ev models.AuditEvent)
}

// EventPublisher broadcasts signal lifecycle transitions to downstream
// consumers.
type EventPublisher interface {
	PublishSignalEvent(ctx context.Context, s *models.Signal, action string) error
}

// Metrics records operational metrics for the trading loop.
type Metrics interface {
	RecordSignalTransition(accountID, status string)
	RecordOrderSubmitted(accountID, symbol string)
	RecordOrderReverted(accountID, symbol, reason string)
	RecordBrokerLatency(op string, seconds float64)
	RecordCyclePhase(phase string, seconds float64, ok bool)
	RecordExposure(accountID string, deltaNotional, gammaUSD, vegaUSD, thetaUSD float64)
	RecordError(kind string)
}
