package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"TradeLoop/internal/domain/models"
	"TradeLoop/pkg/clickhouse"
	"TradeLoop/pkg/logger"
	"TradeLoop/pkg/queue"
)

// SchemaStatements are the idempotent DDL statements for the trading tables.
var SchemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS trade_audit_events (
		account_id String,
		signal_id  String,
		symbol     String,
		action     String,
		order_id   String,
		detail     String,
		fields     String,
		at         DateTime64(3)
	) ENGINE = MergeTree()
	ORDER BY (account_id, at)
	TTL toDateTime(at) + INTERVAL 180 DAY`,

	`CREATE TABLE IF NOT EXISTS executed_signals (
		id                String,
		account_id        String,
		symbol            String,
		type              String,
		source            String,
		direction         String,
		strength          Float64,
		confidence        Float64,
		risk_score        Float64,
		strategy_run_id   String,
		broker_order_id   String,
		executed_price    Float64,
		executed_quantity Float64,
		slippage          Float64,
		actual_return     Float64,
		realized_pnl      Float64,
		evaluation_score  Float64,
		created_at        DateTime64(3),
		executed_at       DateTime64(3)
	) ENGINE = ReplacingMergeTree(executed_at)
	ORDER BY (account_id, id)`,

	`CREATE TABLE IF NOT EXISTS behavior_stats (
		account_id     String,
		symbol         String,
		behavior_score Float64,
		sell_fly_score Float64,
		sample_trades  UInt32,
		updated_at     DateTime64(3)
	) ENGINE = ReplacingMergeTree(updated_at)
	ORDER BY (account_id, symbol)`,
}

// AuditWriteJob drains audit events off the work queue into ClickHouse.
type AuditWriteJob struct {
	ch     *clickhouse.Client
	logger *logger.Logger
}

func NewAuditWriteJob(ch *clickhouse.Client, lg *logger.Logger) *AuditWriteJob {
	return &AuditWriteJob{ch: ch, logger: lg}
}

func (j *AuditWriteJob) Name() string { return "audit-write" }
func (j *AuditWriteJob) Type() string { return msgTypeAuditEvent }

func (j *AuditWriteJob) Handle(ctx context.Context, payload interface{}) error {
	ev, err := queue.ParsePayload[models.AuditEvent](payload)
	if err != nil {
		return fmt.Errorf("parse audit event: %w", err)
	}

	fields := ""
	if len(ev.Fields) > 0 {
		b, err := json.Marshal(ev.Fields)
		if err != nil {
			return fmt.Errorf("marshal audit fields: %w", err)
		}
		fields = string(b)
	}

	const q = `INSERT INTO trade_audit_events
		(account_id, signal_id, symbol, action, order_id, detail, fields, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := j.ch.DB().ExecContext(ctx, q,
		ev.AccountID, ev.SignalID, ev.Symbol, ev.Action,
		ev.OrderID, ev.Detail, fields, ev.At); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// SignalArchiveJob persists settled signals for long-horizon analysis.
type SignalArchiveJob struct {
	ch     *clickhouse.Client
	logger *logger.Logger
}

func NewSignalArchiveJob(ch *clickhouse.Client, lg *logger.Logger) *SignalArchiveJob {
	return &SignalArchiveJob{ch: ch, logger: lg}
}

func (j *SignalArchiveJob) Name() string { return "signal-archive" }
func (j *SignalArchiveJob) Type() string { return msgTypeSignalExecuted }

func (j *SignalArchiveJob) Handle(ctx context.Context, payload interface{}) error {
	s, err := queue.ParsePayload[models.Signal](payload)
	if err != nil {
		return fmt.Errorf("parse executed signal: %w", err)
	}

	const q = `INSERT INTO executed_signals
		(id, account_id, symbol, type, source, direction,
		 strength, confidence, risk_score, strategy_run_id, broker_order_id,
		 executed_price, executed_quantity, slippage,
		 actual_return, realized_pnl, evaluation_score,
		 created_at, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := j.ch.DB().ExecContext(ctx, q,
		s.ID, s.AccountID, s.Symbol, string(s.Type), string(s.Source), string(s.Direction),
		s.Strength, s.Confidence, s.RiskScore, s.StrategyRunID, s.BrokerOrderID,
		s.ExecutedPrice, s.ExecutedQuantity, s.Slippage,
		s.ActualReturn, s.RealizedPnL, s.EvaluationScore,
		s.CreatedAt, s.UpdatedAt); err != nil {
		return fmt.Errorf("insert executed signal: %w", err)
	}
	return nil
}

// ClickHouseBehaviorStats reads per-symbol behavior scores for the risk limit
// resolver. The table is written by an external behavior-scoring pipeline.
type ClickHouseBehaviorStats struct {
	ch *clickhouse.Client
}

func NewClickHouseBehaviorStats(ch *clickhouse.Client) *ClickHouseBehaviorStats {
	return &ClickHouseBehaviorStats{ch: ch}
}

func (r *ClickHouseBehaviorStats) GetBehaviorStats(ctx context.Context, accountID string, symbols []string) (map[string]models.BehaviorStats, error) {
	out := make(map[string]models.BehaviorStats, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(symbols)), ",")
	q := fmt.Sprintf(`SELECT account_id, symbol, behavior_score, sell_fly_score, sample_trades, updated_at
		FROM behavior_stats FINAL
		WHERE account_id = ? AND symbol IN (%s)`, placeholders)

	args := make([]interface{}, 0, len(symbols)+1)
	args = append(args, accountID)
	for _, s := range symbols {
		args = append(args, s)
	}

	rows, err := r.ch.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query behavior stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var st models.BehaviorStats
		var sample uint32
		var updated time.Time
		if err := rows.Scan(&st.AccountID, &st.Symbol, &st.BehaviorScore, &st.SellFlyScore, &sample, &updated); err != nil {
			return nil, fmt.Errorf("scan behavior stats: %w", err)
		}
		st.SampleTrades = int(sample)
		st.UpdatedAt = updated
		out[st.Symbol] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate behavior stats: %w", err)
	}
	return out, nil
}

// StaticBehaviorStats serves fixed scores, for dry-run and tests.
type StaticBehaviorStats struct {
	Stats map[string]models.BehaviorStats
}

func (s *StaticBehaviorStats) GetBehaviorStats(ctx context.Context, accountID string, symbols []string) (map[string]models.BehaviorStats, error) {
	out := make(map[string]models.BehaviorStats, len(symbols))
	for _, sym := range symbols {
		if st, ok := s.Stats[sym]; ok {
			out[sym] = st
		}
	}
	return out, nil
}
