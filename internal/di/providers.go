package di

import (
	"context"
	"fmt"
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/domain/repository"
	"TradePilot/internal/handler/api"
	internalrepo "TradePilot/internal/repository"
	"TradePilot/internal/service/broker"
	"TradePilot/internal/services/classifier"
	"TradePilot/internal/services/risk"
	"TradePilot/internal/usecase"
	"TradePilot/pkg/cache"
	pkgch "TradePilot/pkg/clickhouse"
	"TradePilot/pkg/config"
	xhttp "TradePilot/pkg/http"
	pkgkafka "TradePilot/pkg/kafka"
	applogger "TradePilot/pkg/logger"
	"TradePilot/pkg/metrics"
	"TradePilot/pkg/retry"
	"TradePilot/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRetryPolicy builds the shared retry/backoff policy.
func ProvideRetryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.Optimizer.Retry.MaxAttempts,
		BaseDelay:   cfg.Optimizer.Retry.BaseDelay,
		MaxDelay:    cfg.Optimizer.Retry.MaxDelay,
		Factor:      cfg.Optimizer.Retry.Factor,
		Jitter:      cfg.Optimizer.Retry.Jitter,
	}
}

// ProvideBroker creates the broker REST client.
func ProvideBroker(cfg *config.Config, policy retry.Policy, log *applogger.Logger) repository.Broker {
	return broker.New(cfg.Broker.APIKey, cfg.Broker.AccountID, cfg.Broker.BaseURL,
		broker.WithGranularity(cfg.Broker.Granularity),
		broker.WithTimeout(cfg.Broker.Timeout),
		broker.WithRateLimit(cfg.Broker.RateCapacity, cfg.Broker.RateRefill),
		broker.WithRetry(policy),
		broker.WithLogger(log),
	)
}

// ProvidePriceStream creates the live price stream; nil when no stream URL
// is configured.
func ProvidePriceStream(cfg *config.Config, log *applogger.Logger) repository.PriceStream {
	if cfg.Broker.StreamURL == "" {
		return nil
	}
	return broker.NewStream(cfg.Broker.APIKey, cfg.Broker.StreamURL, cfg.Broker.Instruments,
		cfg.Broker.ReconnectDelay, cfg.Broker.PingInterval, log)
}

// ProvideCacheStore builds the cache: layered over Redis when enabled,
// in-process memory otherwise.
func ProvideCacheStore(cfg *config.Config) (cache.Store, error) {
	if !cfg.Cache.Redis.Enabled {
		return cache.NewMemoryStore(
			cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize),
			cache.WithMemoryCleanup(cfg.Cache.CleanupInterval),
		), nil
	}
	redis, err := cache.NewRedisStore(
		cache.WithRedisHost(cfg.Cache.Redis.Host),
		cache.WithRedisPort(cfg.Cache.Redis.Port),
		cache.WithRedisPassword(cfg.Cache.Redis.Password),
		cache.WithRedisDB(cfg.Cache.Redis.DB),
		cache.WithRedisPool(cfg.Cache.Redis.PoolSize, cfg.Cache.Redis.MinIdleConns, cfg.Cache.Redis.PoolTimeout),
		cache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayered(redis, cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize)), nil
}

// ProvideSeriesCache wraps the cache store as a bar-series cache.
func ProvideSeriesCache(store cache.Store, cfg *config.Config, log *applogger.Logger) repository.SeriesCache {
	return internalrepo.NewSeriesCache(store, cfg.Optimizer.CacheTTL, log)
}

// ProvideClickHouseClient creates the ClickHouse client and ensures the
// schema; nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.Schema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideResultStore creates the optimization result store; nil without
// ClickHouse.
func ProvideResultStore(chClient *pkgch.Client, cfg *config.Config) repository.ResultStore {
	if chClient == nil {
		return nil
	}
	return internalrepo.NewResultStore(chClient.DB(), cfg.ClickHouse.Database)
}

// ProvideTradeStore creates the trade log; nil without ClickHouse.
func ProvideTradeStore(chClient *pkgch.Client, cfg *config.Config) repository.TradeStore {
	if chClient == nil {
		return nil
	}
	return internalrepo.NewTradeStore(chClient.DB(), cfg.ClickHouse.Database)
}

// ProvideKafkaProducer creates a Kafka producer; nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithBatch(100, cfg.Kafka.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, cfg.Kafka.WriteTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideDecisionPublisher creates the decision event publisher; nil
// without a producer.
func ProvideDecisionPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.DecisionPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

// ProvideRiskManager builds the risk gate from the trading limits.
func ProvideRiskManager(cfg *config.Config, log *applogger.Logger) (*risk.Manager, error) {
	windows := make([]risk.ClockWindow, 0, len(cfg.Trading.QuietWindows))
	for _, s := range cfg.Trading.QuietWindows {
		w, err := risk.ParseClockWindow(s)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return risk.NewManager(risk.Limits{
		MaxRiskPerTrade:   cfg.Trading.MaxRiskPerTrade,
		MaxDailyRisk:      cfg.Trading.MaxDailyRisk,
		MaxTradesPerDay:   cfg.Trading.MaxTradesPerDay,
		MaxDrawdown:       cfg.Trading.MaxDrawdown,
		MaxCorrelation:    cfg.Trading.MaxCorrelation,
		MinPositionSize:   cfg.Trading.MinPositionSize,
		LotMultiplier:     cfg.Trading.LotMultiplier,
		VolatilityScaling: cfg.Trading.VolatilityScaling,
		QuietWindows:      windows,
	}, log), nil
}

// ProvideClassifier builds the classifier from the configured defaults.
// The app swaps in optimized parameters at startup when any are persisted.
func ProvideClassifier(cfg *config.Config, log *applogger.Logger) (*classifier.Classifier, error) {
	return classifier.New(classifierParams(cfg), log)
}

func classifierParams(cfg *config.Config) models.ParameterSet {
	return models.ParameterSet{
		NeighborsCount:      cfg.Classifier.NeighborsCount,
		FeatureCount:        cfg.Classifier.FeatureCount,
		VolatilityLookback:  cfg.Classifier.VolatilityLookback,
		TrendStrengthWeight: cfg.Classifier.TrendStrengthWeight,
		MaxCorrelation:      cfg.Classifier.MaxCorrelation,
	}
}

// ProvideSnapshotStore creates the per-instrument snapshot store.
func ProvideSnapshotStore() *usecase.SnapshotStore {
	return usecase.NewSnapshotStore()
}

// ProvideTradingCycle assembles the trading pipeline.
func ProvideTradingCycle(b repository.Broker, cls *classifier.Classifier, rm *risk.Manager,
	snapshots *usecase.SnapshotStore, trades repository.TradeStore,
	publisher repository.DecisionPublisher, m repository.Metrics,
	cfg *config.Config, log *applogger.Logger) *usecase.TradingCycle {
	return usecase.NewTradingCycle(b, cls, rm, snapshots, trades, publisher, m,
		usecase.TradingCycleConfig{
			Instruments: cfg.Broker.Instruments,
			HistoryBars: cfg.Trading.HistoryBars,
		}, log)
}

// ProvidePerformanceTracker creates the account sampler.
func ProvidePerformanceTracker(b repository.Broker, rm *risk.Manager, log *applogger.Logger) *usecase.PerformanceTracker {
	return usecase.NewPerformanceTracker(b, rm, log)
}

// ProvidePositionCloser creates the manual close use case.
func ProvidePositionCloser(b repository.Broker, rm *risk.Manager, log *applogger.Logger) *usecase.PositionCloser {
	return usecase.NewPositionCloser(b, rm, log)
}

// ProvideDashboardHandler creates the HTTP API handler.
func ProvideDashboardHandler(log *applogger.Logger, snapshots *usecase.SnapshotStore,
	perf *usecase.PerformanceTracker, closer *usecase.PositionCloser,
	results repository.ResultStore, trades repository.TradeStore) xhttp.Handler {
	return api.NewDashboardHandler(log, snapshots, perf, closer, results, trades)
}

// ProvideApp creates the application server.
func ProvideApp(cfg *config.Config, log *applogger.Logger, cycle *usecase.TradingCycle,
	perf *usecase.PerformanceTracker, handler xhttp.Handler, stream repository.PriceStream,
	results repository.ResultStore, publisher repository.DecisionPublisher,
	m repository.Metrics, chClient *pkgch.Client, store cache.Store) *server.App {
	return server.New(cfg, log, cycle, perf, handler, server.Deps{
		Stream:     stream,
		Results:    results,
		Publisher:  publisher,
		Metrics:    m,
		CHClient:   chClient,
		CacheStore: store,
	})
}
