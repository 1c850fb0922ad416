package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TradePilot/internal/domain/repository"
	"TradePilot/internal/usecase"
	"TradePilot/pkg/cache"
	pkgch "TradePilot/pkg/clickhouse"
	"TradePilot/pkg/config"
	xhttp "TradePilot/pkg/http"
	applogger "TradePilot/pkg/logger"
)

// Deps carries the closable infrastructure the app owns. Nil members are
// features that are disabled by configuration.
type Deps struct {
	Stream     repository.PriceStream
	Results    repository.ResultStore
	Publisher  repository.DecisionPublisher
	Metrics    repository.Metrics
	CHClient   *pkgch.Client
	CacheStore cache.Store
}

// App encapsulates the trading bot lifecycle: the periodic trading cycle,
// the performance sampler, the live price stream, and the HTTP API.
type App struct {
	cfg     *config.Config
	log     *applogger.Logger
	cycle   *usecase.TradingCycle
	perf    *usecase.PerformanceTracker
	handler xhttp.Handler
	deps    Deps

	httpServer *xhttp.Server
}

// New creates the application.
func New(cfg *config.Config, log *applogger.Logger, cycle *usecase.TradingCycle,
	perf *usecase.PerformanceTracker, handler xhttp.Handler, deps Deps) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{
		cfg:     cfg,
		log:     log,
		cycle:   cycle,
		perf:    perf,
		handler: handler,
		deps:    deps,
	}
}

// Run starts all loops and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.applyBestConfiguration(ctx)

	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(a.log),
	)
	if err := a.httpServer.Start(); err != nil {
		return err
	}

	go a.tradingLoop(ctx)
	go a.performanceLoop(ctx)
	if a.deps.Stream != nil {
		go a.streamLoop(ctx)
	}

	a.log.Info("application started",
		applogger.Strings("instruments", a.cfg.Broker.Instruments),
		applogger.Duration("cycle_interval", a.cfg.Trading.CycleInterval))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// applyBestConfiguration loads the optimizer's persisted best parameters,
// when any exist, into the live classifier.
func (a *App) applyBestConfiguration(ctx context.Context) {
	if a.deps.Results == nil {
		return
	}
	loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	best, ok, err := a.deps.Results.Best(loadCtx)
	if err != nil {
		a.log.Warn("best configuration load failed", applogger.Error(err))
		return
	}
	if !ok {
		return
	}
	if err := a.cycle.UpdateParameters(best.Params); err != nil {
		a.log.Warn("best configuration rejected", applogger.Error(err))
		return
	}
	a.log.Info("applying optimized configuration",
		applogger.String("params", best.Params.Key()),
		applogger.Float64("score", best.Score))
}

func (a *App) tradingLoop(ctx context.Context) {
	a.cycle.Run(ctx)

	ticker := time.NewTicker(a.cfg.Trading.CycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.cycle.Run(ctx)
		}
	}
}

func (a *App) performanceLoop(ctx context.Context) {
	if err := a.perf.Sample(ctx); err != nil {
		a.log.Warn("performance sample failed", applogger.Error(err))
	}

	ticker := time.NewTicker(a.cfg.Trading.PerformanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.perf.Sample(ctx); err != nil {
				a.log.Warn("performance sample failed", applogger.Error(err))
			}
		}
	}
}

// streamLoop keeps the live price feed connected, feeding last-price
// metrics; it reconnects after the configured delay on any failure.
func (a *App) streamLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := a.deps.Stream.Connect(ctx); err != nil {
			a.log.Warn("price stream connect failed", applogger.Error(err))
			if a.deps.Metrics != nil {
				a.deps.Metrics.RecordError("stream_connect")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(a.cfg.Broker.ReconnectDelay):
			}
			continue
		}

		ticks, errs := a.deps.Stream.Read(ctx)
	consume:
		for {
			select {
			case <-ctx.Done():
				_ = a.deps.Stream.Close()
				return
			case tick, ok := <-ticks:
				if !ok {
					break consume
				}
				if a.deps.Metrics != nil {
					a.deps.Metrics.RecordLastPrice(tick.Instrument, tick.Price)
				}
			case err, ok := <-errs:
				if ok && err != nil {
					a.log.Warn("price stream error", applogger.Error(err))
				}
				break consume
			}
		}
		_ = a.deps.Stream.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(a.cfg.Broker.ReconnectDelay):
		}
	}
}

// shutdown stops the HTTP server and closes owned infrastructure.
func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.deps.Stream != nil {
		if err := a.deps.Stream.Close(); err != nil {
			a.log.Warn("stream close error", applogger.Error(err))
		}
	}
	if a.deps.Publisher != nil {
		if err := a.deps.Publisher.Close(); err != nil {
			a.log.Warn("publisher close error", applogger.Error(err))
		}
	}
	if a.deps.CHClient != nil {
		if err := a.deps.CHClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.deps.CacheStore != nil {
		if err := a.deps.CacheStore.Close(); err != nil {
			a.log.Warn("cache close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
