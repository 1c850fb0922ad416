package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"TradePilot/internal/di"
	"TradePilot/internal/services/optimizer"
	"TradePilot/pkg/config"
	applogger "TradePilot/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	instrument := flag.String("instrument", "", "instrument to optimize (overrides config)")
	reset := flag.Bool("reset", false, "discard saved sweep progress and start over")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *instrument != "" {
		cfg.Optimizer.Instrument = *instrument
	}
	if cfg.Optimizer.Instrument == "" && len(cfg.Broker.Instruments) > 0 {
		cfg.Optimizer.Instrument = cfg.Broker.Instruments[0]
	}
	if cfg.Optimizer.Instrument == "" {
		log.Fatal("no instrument configured for optimization")
	}

	l, err := di.ProvideLogger(cfg)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}

	opt, cleanup, err := buildOptimizer(cfg, l, *reset)
	if err != nil {
		log.Fatalf("optimizer init failed: %v", err)
	}
	defer cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	best, err := opt.Run(ctx)
	if err != nil {
		l.Error("sweep failed", applogger.Error(err))
		os.Exit(1)
	}

	l.Info("sweep complete",
		applogger.String("params", best.Params.Key()),
		applogger.Float64("score", best.Score),
		applogger.Float64("sharpe", best.Metrics.SharpeRatio),
		applogger.Float64("win_rate", best.Metrics.WinRate),
		applogger.Float64("max_drawdown", best.Metrics.MaxDrawdown),
		applogger.Int("trades", best.Metrics.TotalTrades))
}

func buildOptimizer(cfg *config.Config, l *applogger.Logger, reset bool) (*optimizer.Optimizer, func(), error) {
	m := di.ProvideMetrics()
	policy := di.ProvideRetryPolicy(cfg)
	source := di.ProvideBroker(cfg, policy, l)

	store, err := di.ProvideCacheStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	chClient, err := di.ProvideClickHouseClient(cfg)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	results := di.ProvideResultStore(chClient, cfg)

	state, err := optimizer.NewStateStore(cfg.Optimizer.StateDir)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	if reset {
		state.ClearSweep()
		state.ClearFetch(cfg.Optimizer.Instrument)
	}

	seriesCache := di.ProvideSeriesCache(store, cfg, l)
	fetcher := optimizer.NewFetcher(source, seriesCache, state, policy, optimizer.FetchConfig{
		Instrument:       cfg.Optimizer.Instrument,
		Count:            cfg.Optimizer.HistoryCount,
		ChunkSize:        cfg.Optimizer.FetchChunkSize,
		CacheTTL:         cfg.Optimizer.CacheTTL,
		QualityThreshold: cfg.Optimizer.QualityThreshold,
	}, l, m)

	opt := optimizer.New(fetcher, state, results, m, optimizer.Config{
		Grid: optimizer.Grid{
			Neighbors:    cfg.Optimizer.Grid.Neighbors,
			Features:     cfg.Optimizer.Grid.Features,
			VolLookbacks: cfg.Optimizer.Grid.VolLookbacks,
			TrendWeights: cfg.Optimizer.Grid.TrendWeights,
			Correlations: cfg.Optimizer.Grid.Correlations,
		},
		EvalChunkSize:   cfg.Optimizer.EvalChunkSize,
		MinSignals:      cfg.Optimizer.MinSignals,
		MinTrades:       cfg.Optimizer.MinTrades,
		DrawdownCeiling: cfg.Optimizer.DrawdownCeiling,
		Workers:         cfg.Optimizer.Workers,
	}, l)

	cleanup := func() {
		_ = store.Close()
		if chClient != nil {
			_ = chClient.Close()
		}
	}
	return opt, cleanup, nil
}
