package di

import (
	"context"
	"fmt"
	"time"

	"TradeLoop/internal/broker"
	"TradeLoop/internal/domain/models"
	"TradeLoop/internal/domain/repository"
	"TradeLoop/internal/handler/api"
	internalrepo "TradeLoop/internal/repository"
	icache "TradeLoop/internal/service/cache"
	"TradeLoop/internal/service/quotes"
	"TradeLoop/internal/service/ratelimit"
	"TradeLoop/internal/usecase"
	pkgcache "TradeLoop/pkg/cache"
	pkgch "TradeLoop/pkg/clickhouse"
	"TradeLoop/pkg/config"
	xhttp "TradeLoop/pkg/http"
	pkgkafka "TradeLoop/pkg/kafka"
	applogger "TradeLoop/pkg/logger"
	"TradeLoop/pkg/metrics"
	"TradeLoop/pkg/queue"
	"TradeLoop/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	format := "json"
	if cfg.Environment == "development" {
		format = "console"
	}
	return applogger.New(&applogger.Config{Level: "info", Format: format, Output: "stdout"})
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the trading
// schema. Returns nil when ClickHouse is not configured.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.ClickHouse.Host == "" {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.SchemaStatements); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideRedisCache creates the Redis cache client. Returns nil when Redis is
// disabled.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideLocker selects the dedup lock backend: Redis when available, the
// in-process cache otherwise.
func ProvideLocker(rc *pkgcache.RedisCache) usecase.Locker {
	if rc != nil {
		return rc
	}
	return pkgcache.NewMemoryCache()
}

// ProvideAuditQueue creates the Redis work queue for audit and archive
// writes, with the ClickHouse writer jobs registered. Nil when either backing
// store is unavailable; the audit trail then degrades to logging.
func ProvideAuditQueue(cfg *config.Config, lg *applogger.Logger, rc *pkgcache.RedisCache, ch *pkgch.Client) *queue.RedisQueue {
	if rc == nil || ch == nil {
		return nil
	}
	q := queue.NewRedisQueue(lg, &queue.QueueConfig{
		Workers:    cfg.Audit.Workers,
		RetryLimit: cfg.Audit.MaxRetries,
		RetryDelay: 10 * time.Second,
	}, rc.Client(), queue.ModeProducerConsumer, queue.WithKeyPrefix("tradeloop:audit"))
	q.RegisterJobs([]queue.Job{
		internalrepo.NewAuditWriteJob(ch, lg),
		internalrepo.NewSignalArchiveJob(ch, lg),
	})
	return q
}

// ProvideAuditTrail records execution decisions via the work queue, or to the
// log when the queue is unavailable.
func ProvideAuditTrail(q *queue.RedisQueue, lg *applogger.Logger) repository.AuditTrail {
	if q == nil {
		return internalrepo.NewLogAuditTrail(lg)
	}
	return internalrepo.NewQueueAuditTrail(q, lg)
}

// ProvideSignalStore creates the in-memory signal book, archiving settled
// signals through the work queue when available.
func ProvideSignalStore(q *queue.RedisQueue, lg *applogger.Logger) repository.SignalStore {
	var archive *internalrepo.ExecutedArchive
	if q != nil {
		archive = internalrepo.NewExecutedArchive(q, lg)
	}
	return internalrepo.NewMemorySignalStore(archive)
}

// ProvideBehaviorStats reads behavior scores from ClickHouse behind a cache,
// layered over Redis when available so replicas share warm entries. Without
// ClickHouse everything resolves to the T2 baseline.
func ProvideBehaviorStats(ch *pkgch.Client, rc *pkgcache.RedisCache) repository.BehaviorStatsStore {
	if ch == nil {
		return &internalrepo.StaticBehaviorStats{}
	}
	var c pkgcache.Service = pkgcache.NewMemoryCache()
	if rc != nil {
		c = pkgcache.NewLayeredCache(rc)
	}
	return internalrepo.NewCachedBehaviorStats(internalrepo.NewClickHouseBehaviorStats(ch), c)
}

// ProvideKafkaProducer creates the Kafka producer. Nil without brokers.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher publishes lifecycle events to Kafka, or drops them
// without brokers.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config, lg *applogger.Logger) repository.EventPublisher {
	if producer == nil {
		return internalrepo.NopEventPublisher{}
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.EventsTopic, lg)
}

// ProvideKafkaConsumer creates the candidate-intake consumer. Nil without
// brokers.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NoopHook{})
	return consumer, nil
}

// ProvideCandidateBuffer creates the inter-cycle candidate buffer.
func ProvideCandidateBuffer() *usecase.CandidateBuffer {
	return usecase.NewCandidateBuffer()
}

// ProvideCandidatesHandler creates the Kafka handler for strategy output.
func ProvideCandidatesHandler(cfg *config.Config, buffer *usecase.CandidateBuffer, lg *applogger.Logger) *usecase.CandidatesHandler {
	return usecase.NewCandidatesHandler(cfg.Kafka.CandidatesTopic, buffer, lg)
}

// ProvideBroker selects the broker backend. Dry-run always gets the
// simulated broker regardless of the configured type.
func ProvideBroker(cfg *config.Config, m repository.Metrics, lg *applogger.Logger) repository.BrokerClient {
	if cfg.Trading.Mode == "dry-run" || cfg.Broker.Type == "simulated" {
		return broker.NewSimulated(cfg.Trading.Accounts, 1_000_000, nil, lg)
	}
	return broker.NewGateway(broker.GatewayConfig{
		BaseURL: cfg.Broker.BaseURL,
		APIKey:  cfg.Broker.APIKey,
		Timeout: cfg.Broker.Timeout,
	}, m, lg)
}

// ProvideQuoteStream creates the WebSocket quote stream for the live broker.
// Nil when the simulated broker serves prices itself.
func ProvideQuoteStream(cfg *config.Config, bc repository.BrokerClient, lg *applogger.Logger) *quotes.Stream {
	if _, ok := bc.(*broker.Simulated); ok {
		return nil
	}
	if cfg.Quotes.WebSocketURL == "" {
		return nil
	}
	return quotes.NewStream(quotes.Config{
		APIKey:         cfg.Quotes.APIKey,
		WebsocketURL:   cfg.Quotes.WebSocketURL,
		Symbols:        cfg.Quotes.Symbols,
		ReconnectDelay: cfg.Quotes.ReconnectDelay,
		PingInterval:   cfg.Quotes.PingInterval,
	}, lg)
}

// ProvidePriceSource picks the price source: the quote stream when running,
// otherwise the simulated broker's own quote map. A nil source makes order
// pricing fall back to each signal's suggested price.
func ProvidePriceSource(stream *quotes.Stream, bc repository.BrokerClient) repository.PriceSource {
	if stream != nil {
		return stream
	}
	if sim, ok := bc.(*broker.Simulated); ok {
		return sim
	}
	return nil
}

// ProvideSafetyGuard creates the pure pre-trade check set.
func ProvideSafetyGuard() *usecase.SafetyGuard {
	return usecase.NewSafetyGuard()
}

// ProvideRiskResolver builds the resolver from the static config profile.
func ProvideRiskResolver(stats repository.BehaviorStatsStore, cfg *config.Config) *usecase.RiskLimitResolver {
	t := cfg.Trading
	return usecase.NewRiskLimitResolver(stats, usecase.RiskProfile{
		Limits: models.RiskLimits{
			MaxOrderNotionalUSD: t.Limits.MaxOrderNotionalUSD,
			MaxGammaPctEquity:   t.Limits.MaxGammaPctEquity,
			MaxVegaPctEquity:    t.Limits.MaxVegaPctEquity,
			MaxThetaPctEquity:   t.Limits.MaxThetaPctEquity,
		},
		Shock: models.ShockPolicy{
			AlertDropPct:        t.Shock.AlertDropPct,
			EmergencyDropPct:    t.Shock.EmergencyDropPct,
			EmergencyReducePct:  t.Shock.EmergencyReducePct,
			MaxNewRiskFactor:    t.Shock.MaxNewRiskFactor,
			EarningsGammaCapUSD: t.Shock.EarningsGammaCapUSD,
		},
	})
}

// ProvideExposureAggregator creates the Greeks aggregator.
func ProvideExposureAggregator(bc repository.BrokerClient, m repository.Metrics) *usecase.ExposureAggregator {
	return usecase.NewExposureAggregator(bc, m)
}

// ProvideSignalEngine creates the signal lifecycle engine.
func ProvideSignalEngine(
	store repository.SignalStore,
	bc repository.BrokerClient,
	guard *usecase.SafetyGuard,
	resolver *usecase.RiskLimitResolver,
	aggregator *usecase.ExposureAggregator,
	locks usecase.Locker,
	events repository.EventPublisher,
	m repository.Metrics,
	lg *applogger.Logger,
	cfg *config.Config,
) *usecase.SignalEngine {
	t := cfg.Trading
	return usecase.NewSignalEngine(store, bc, guard, resolver, aggregator, locks, events, m, lg, usecase.EngineConfig{
		Mode:           t.Mode,
		SignalTTL:      t.SignalTTL,
		MinStrength:    t.MinStrength,
		MinConfidence:  t.MinConfidence,
		MaxHoldingDays: t.MaxHoldingDays,
	})
}

// ProvidePositionFilter creates the position consistency filter.
func ProvidePositionFilter(bc repository.BrokerClient, store repository.SignalStore, lg *applogger.Logger, cfg *config.Config) *usecase.PositionFilter {
	return usecase.NewPositionFilter(bc, store, lg, cfg.Trading.LotSizes)
}

// ProvideOrderExecutor creates the order executor.
func ProvideOrderExecutor(
	store repository.SignalStore,
	bc repository.BrokerClient,
	guard *usecase.SafetyGuard,
	resolver *usecase.RiskLimitResolver,
	aggregator *usecase.ExposureAggregator,
	prices repository.PriceSource,
	audit repository.AuditTrail,
	events repository.EventPublisher,
	m repository.Metrics,
	lg *applogger.Logger,
	cfg *config.Config,
) *usecase.OrderExecutor {
	t := cfg.Trading
	return usecase.NewOrderExecutor(store, bc, guard, resolver, aggregator, prices, audit, events, m, lg, usecase.ExecutorConfig{
		MaxOrders:    t.MaxOrdersPerCycle,
		Grace:        t.ExecutionGrace,
		PriceSkewPct: t.PriceSkewPct,
		MaxAttempts:  t.MaxExecutionAttempts,
		LotSizes:     t.LotSizes,
	})
}

// ProvidePerformanceAnalyzer creates the performance analyzer.
func ProvidePerformanceAnalyzer(store repository.SignalStore) *usecase.PerformanceAnalyzer {
	return usecase.NewPerformanceAnalyzer(store)
}

// ProvideAdaptiveOptimizer creates the threshold optimizer.
func ProvideAdaptiveOptimizer(store repository.SignalStore, engine *usecase.SignalEngine) *usecase.AdaptiveOptimizer {
	return usecase.NewAdaptiveOptimizer(store, engine)
}

// ProvideCoordinator creates the five-phase loop coordinator.
func ProvideCoordinator(
	buffer *usecase.CandidateBuffer,
	engine *usecase.SignalEngine,
	filter *usecase.PositionFilter,
	executor *usecase.OrderExecutor,
	analyzer *usecase.PerformanceAnalyzer,
	optimizer *usecase.AdaptiveOptimizer,
	m repository.Metrics,
	lg *applogger.Logger,
	cfg *config.Config,
) *usecase.LoopCoordinator {
	return usecase.NewLoopCoordinator(buffer, engine, filter, executor, analyzer, optimizer, m, lg, usecase.CoordinatorConfig{
		MaxOrdersPerCycle: cfg.Trading.MaxOrdersPerCycle,
		OptimizeEnabled:   true,
	})
}

// ProvideRateLimiter creates the per-account mutation limiter.
func ProvideRateLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideSnapshotCache picks the response cache for read-heavy endpoints:
// Redis-backed when available so replicas share snapshots, in-process TTL
// cache otherwise.
func ProvideSnapshotCache(rc *pkgcache.RedisCache) icache.BytesCache {
	if rc != nil {
		return icache.NewRedisBytesCache(rc.Client(), "tradeloop:snapshot:")
	}
	return icache.NewTTLCache()
}

// ProvideHTTPHandler creates the trading API handler.
func ProvideHTTPHandler(
	lg *applogger.Logger,
	store repository.SignalStore,
	engine *usecase.SignalEngine,
	executor *usecase.OrderExecutor,
	coordinator *usecase.LoopCoordinator,
	aggregator *usecase.ExposureAggregator,
	resolver *usecase.RiskLimitResolver,
	optimizer *usecase.AdaptiveOptimizer,
	limiter *ratelimit.Limiter,
	snapshots icache.BytesCache,
) xhttp.Handler {
	return api.NewTradingEchoHandler(lg, store, engine, executor, coordinator, aggregator, resolver, optimizer, limiter, snapshots)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	lg *applogger.Logger,
	coordinator *usecase.LoopCoordinator,
	executor *usecase.OrderExecutor,
	handler xhttp.Handler,
	consumer *pkgkafka.Consumer,
	candidates *usecase.CandidatesHandler,
	auditQueue *queue.RedisQueue,
	stream *quotes.Stream,
	chClient *pkgch.Client,
) *server.App {
	return server.New(cfg, lg, coordinator, executor, handler, consumer, candidates, auditQueue, stream, chClient)
}
