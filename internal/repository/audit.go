package repository

import (
	"context"

	"TradeLoop/internal/domain/models"
	"TradeLoop/pkg/logger"
	"TradeLoop/pkg/queue"
)

const (
	msgTypeAuditEvent     = "audit.event"
	msgTypeSignalExecuted = "signal.executed"
)

// QueueAuditTrail records audit events by enqueueing them on the Redis work
// queue. The ClickHouse write happens on a queue worker so the execution path
// never waits on storage; a failed enqueue is logged and dropped.
type QueueAuditTrail struct {
	queue  queue.QueueService
	logger *logger.Logger
}

// NewQueueAuditTrail creates an audit trail backed by the work queue.
func NewQueueAuditTrail(q queue.QueueService, lg *logger.Logger) *QueueAuditTrail {
	return &QueueAuditTrail{queue: q, logger: lg}
}

func (a *QueueAuditTrail) Record(ctx context.Context, ev models.AuditEvent) {
	if err := a.queue.PublishMessage(ctx, msgTypeAuditEvent, ev); err != nil {
		a.logger.Error("enqueue audit event",
			logger.String("signal_id", ev.SignalID),
			logger.String("action", ev.Action),
			logger.Error(err))
	}
}

// LogAuditTrail writes audit events to the structured log only. Used when
// Redis is disabled, typically in dry-run.
type LogAuditTrail struct {
	logger *logger.Logger
}

func NewLogAuditTrail(lg *logger.Logger) *LogAuditTrail {
	return &LogAuditTrail{logger: lg}
}

func (a *LogAuditTrail) Record(ctx context.Context, ev models.AuditEvent) {
	a.logger.Info("audit",
		logger.String("account", ev.AccountID),
		logger.String("signal_id", ev.SignalID),
		logger.String("symbol", ev.Symbol),
		logger.String("action", ev.Action),
		logger.String("order_id", ev.OrderID),
		logger.String("detail", ev.Detail))
}

// ExecutedArchive pushes settled signals onto the work queue for durable
// archival. Best effort for the same reason as the audit trail.
type ExecutedArchive struct {
	queue  queue.QueueService
	logger *logger.Logger
}

// NewExecutedArchive creates an archive backed by the work queue.
func NewExecutedArchive(q queue.QueueService, lg *logger.Logger) *ExecutedArchive {
	return &ExecutedArchive{queue: q, logger: lg}
}

func (a *ExecutedArchive) Put(ctx context.Context, s *models.Signal) {
	if err := a.queue.PublishMessage(ctx, msgTypeSignalExecuted, s); err != nil {
		a.logger.Error("enqueue executed signal",
			logger.String("signal_id", s.ID),
			logger.Error(err))
	}
}
