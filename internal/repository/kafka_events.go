package repository

import (
	"context"
	"fmt"
	"time"

	"TradeLoop/internal/domain/models"
	"TradeLoop/pkg/kafka"
	"TradeLoop/pkg/logger"
)

// SignalEvent is the lifecycle event envelope published to Kafka. Downstream
// consumers (notification, reporting) key off account+symbol so events for
// one slot stay ordered within a partition.
type SignalEvent struct {
	Action    string              `json:"action"`
	SignalID  string              `json:"signal_id"`
	AccountID string              `json:"account_id"`
	Symbol    string              `json:"symbol"`
	Status    models.SignalStatus `json:"status"`
	Reason    models.ReasonCode   `json:"reason,omitempty"`
	Detail    string              `json:"detail,omitempty"`
	Signal    *models.Signal      `json:"signal"`
	At        time.Time           `json:"at"`
}

// KafkaEventPublisher broadcasts signal lifecycle transitions.
type KafkaEventPublisher struct {
	producer *kafka.Producer
	topic    string
	logger   *logger.Logger
	now      func() time.Time
}

func NewKafkaEventPublisher(producer *kafka.Producer, topic string, lg *logger.Logger) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic, logger: lg, now: time.Now}
}

func (p *KafkaEventPublisher) PublishSignalEvent(ctx context.Context, s *models.Signal, action string) error {
	ev := SignalEvent{
		Action:    action,
		SignalID:  s.ID,
		AccountID: s.AccountID,
		Symbol:    s.Symbol,
		Status:    s.Status,
		Reason:    s.Reason,
		Detail:    s.ReasonDetail,
		Signal:    s,
		At:        p.now(),
	}
	key := []byte(s.AccountID + ":" + s.Symbol)
	if err := p.producer.Publish(ctx, p.topic, key, ev); err != nil {
		return fmt.Errorf("publish signal event: %w", err)
	}
	return nil
}

// NopEventPublisher drops events, for dry-run without a broker cluster.
type NopEventPublisher struct{}

func (NopEventPublisher) PublishSignalEvent(ctx context.Context, s *models.Signal, action string) error {
	return nil
}
