package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TradeLoop/internal/service/quotes"
	"TradeLoop/internal/usecase"
	pkgch "TradeLoop/pkg/clickhouse"
	"TradeLoop/pkg/config"
	xhttp "TradeLoop/pkg/http"
	pkgkafka "TradeLoop/pkg/kafka"
	applogger "TradeLoop/pkg/logger"
	"TradeLoop/pkg/queue"
)

// App owns the process lifecycle: the HTTP API, the Kafka candidate consumer,
// the audit queue workers, the per-account cycle loop and the order sync loop.
type App struct {
	cfg         *config.Config
	logger      *applogger.Logger
	coordinator *usecase.LoopCoordinator
	executor    *usecase.OrderExecutor
	handler     xhttp.Handler
	consumer    *pkgkafka.Consumer
	candidates  *usecase.CandidatesHandler
	auditQueue  *queue.RedisQueue
	stream      *quotes.Stream
	chClient    *pkgch.Client
	httpServer  *xhttp.Server
}

// New creates the application. consumer, auditQueue, stream and chClient may
// be nil when their backing infrastructure is disabled.
func New(
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
) *App {
	return &App{
		cfg:         cfg,
		logger:      lg,
		coordinator: coordinator,
		executor:    executor,
		handler:     handler,
		consumer:    consumer,
		candidates:  candidates,
		auditQueue:  auditQueue,
		stream:      stream,
		chClient:    chClient,
	}
}

// Run starts all services and blocks until an interrupt arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	if a.auditQueue != nil {
		if err := a.auditQueue.Start(); err != nil {
			a.logger.Error("audit queue start", applogger.Error(err))
			return err
		}
	}

	if a.stream != nil {
		go a.stream.Run(ctx)
		a.logger.Info("quote stream started", applogger.Strings("symbols", a.cfg.Quotes.Symbols))
	}

	if a.consumer != nil && a.candidates != nil {
		a.consumer.RegisterHandler(a.candidates)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.logger.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.logger.Info("candidate consumer started", applogger.String("topic", a.candidates.Topic()))
	}

	for _, account := range a.cfg.Trading.Accounts {
		go a.cycleLoop(ctx, account)
		go a.syncLoop(ctx, account)
	}
	a.logger.Info("trading loop started",
		applogger.String("mode", a.cfg.Trading.Mode),
		applogger.Strings("accounts", a.cfg.Trading.Accounts),
		applogger.Duration("cycle_interval", a.cfg.Trading.CycleInterval))

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// cycleLoop runs the five-phase cycle for one account on a fixed interval.
func (a *App) cycleLoop(ctx context.Context, accountID string) {
	ticker := time.NewTicker(a.cfg.Trading.CycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := a.coordinator.RunCycle(ctx, accountID)
			for _, ph := range report.Phases {
				if !ph.Ok {
					a.logger.Warn("cycle phase degraded",
						applogger.String("account", accountID),
						applogger.String("phase", string(ph.Phase)),
						applogger.String("error", ph.Error))
				}
			}
		}
	}
}

// syncLoop reconciles EXECUTING orders against the broker on a short
// interval, independent of the main cycle.
func (a *App) syncLoop(ctx context.Context, accountID string) {
	ticker := time.NewTicker(a.cfg.Trading.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.executor.SyncExecutingOrders(ctx, accountID); err != nil {
				a.logger.Warn("order sync error",
					applogger.String("account", accountID),
					applogger.Error(err))
			}
		}
	}
}

func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.logger.Warn("kafka consumer stop", applogger.Error(err))
		}
	}

	if a.auditQueue != nil {
		if err := a.auditQueue.Stop(shutdownCtx); err != nil {
			a.logger.Warn("audit queue stop", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.logger.Warn("clickhouse close", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
