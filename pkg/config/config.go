package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Broker struct {
		APIKey         string        `yaml:"api_key"`
		AccountID      string        `yaml:"account_id"`
		BaseURL        string        `yaml:"base_url"`
		StreamURL      string        `yaml:"stream_url"`
		Instruments    []string      `yaml:"instruments"`
		Granularity    string        `yaml:"granularity" default:"M5"`
		Timeout        time.Duration `yaml:"timeout" default:"10s"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"15s"`
		RateCapacity   float64       `yaml:"rate_capacity" default:"30"`
		RateRefill     float64       `yaml:"rate_refill" default:"2"`
	} `yaml:"broker"`
	Trading struct {
		CycleInterval       time.Duration `yaml:"cycle_interval" default:"5m"`
		PerformanceInterval time.Duration `yaml:"performance_interval" default:"15m"`
		MaxRiskPerTrade     float64       `yaml:"max_risk_per_trade" default:"0.02"`
		MaxDailyRisk        float64       `yaml:"max_daily_risk" default:"0.06"`
		MaxTradesPerDay     int           `yaml:"max_trades_per_day" default:"3"`
		MaxDrawdown         float64       `yaml:"max_drawdown" default:"0.15"`
		MaxCorrelation      float64       `yaml:"max_correlation" default:"0.7"`
		VolatilityScaling   bool          `yaml:"volatility_scaling" default:"true"`
		MinPositionSize     float64       `yaml:"min_position_size" default:"1000"`
		LotMultiplier       float64       `yaml:"lot_multiplier" default:"100"`
		HistoryBars         int           `yaml:"history_bars" default:"250"`
		QuietWindows        []string      `yaml:"quiet_windows"` // "HH:MM-HH:MM" wall clock, UTC
	} `yaml:"trading"`
	Classifier struct {
		NeighborsCount      int     `yaml:"neighbors_count" default:"8"`
		FeatureCount        int     `yaml:"feature_count" default:"5"`
		VolatilityLookback  int     `yaml:"volatility_lookback" default:"20"`
		TrendStrengthWeight float64 `yaml:"trend_strength_weight" default:"0.3"`
		MaxCorrelation      float64 `yaml:"max_correlation" default:"0.85"`
	} `yaml:"classifier"`
	Optimizer struct {
		Instrument       string        `yaml:"instrument"`
		HistoryCount     int           `yaml:"history_count" default:"5000"`
		FetchChunkSize   int           `yaml:"fetch_chunk_size" default:"500"`
		EvalChunkSize    int           `yaml:"eval_chunk_size" default:"500"`
		CacheTTL         time.Duration `yaml:"cache_ttl" default:"24h"`
		QualityThreshold float64       `yaml:"quality_threshold" default:"0.75"`
		MinSignals       int           `yaml:"min_signals" default:"10"`
		MinTrades        int           `yaml:"min_trades" default:"10"`
		DrawdownCeiling  float64       `yaml:"drawdown_ceiling" default:"0.5"`
		Workers          int           `yaml:"workers" default:"4"`
		StateDir         string        `yaml:"state_dir" default:"data"`
		Grid             struct {
			Neighbors    []int     `yaml:"neighbors"`
			Features     []int     `yaml:"features"`
			VolLookbacks []int     `yaml:"vol_lookbacks"`
			TrendWeights []float64 `yaml:"trend_weights"`
			Correlations []float64 `yaml:"correlations"`
		} `yaml:"grid"`
		Retry struct {
			MaxAttempts int           `yaml:"max_attempts" default:"5"`
			BaseDelay   time.Duration `yaml:"base_delay" default:"200ms"`
			MaxDelay    time.Duration `yaml:"max_delay" default:"30s"`
			Factor      float64       `yaml:"factor" default:"2"`
			Jitter      float64       `yaml:"jitter" default:"0.2"`
		} `yaml:"retry"`
	} `yaml:"optimizer"`
	Cache struct {
		MemoryMaxSize   int           `yaml:"memory_max_size" default:"256"`
		CleanupInterval time.Duration `yaml:"cleanup_interval" default:"5m"`
		Redis           struct {
			Enabled      bool          `yaml:"enabled"`
			Host         string        `yaml:"host" default:"localhost"`
			Port         int           `yaml:"port" default:"6379"`
			Password     string        `yaml:"password"`
			DB           int           `yaml:"db"`
			PoolSize     int           `yaml:"pool_size" default:"10"`
			MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
			PoolTimeout  time.Duration `yaml:"pool_timeout" default:"4s"`
			Prefix       string        `yaml:"prefix" default:"tradepilot"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	ClickHouse struct {
		Enabled     bool          `yaml:"enabled"`
		Host        string        `yaml:"host"`
		Port        int           `yaml:"port" default:"9000"`
		Database    string        `yaml:"database" default:"tradepilot"`
		User        string        `yaml:"user" default:"default"`
		Password    string        `yaml:"password"`
		AsyncInsert bool          `yaml:"async_insert"`
		DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout time.Duration `yaml:"read_timeout" default:"10s"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic" default:"trade-decisions"`
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		Compression  string        `yaml:"compression" default:"gzip"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		Linger       time.Duration `yaml:"linger" default:"1s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"kafka"`
}

// Load reads and parses a YAML configuration file, applying defaults to
// unset fields.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("BROKER_API_KEY"); v != "" {
		c.Broker.APIKey = v
	}
	if v := os.Getenv("BROKER_ACCOUNT_ID"); v != "" {
		c.Broker.AccountID = v
	}
	if v := os.Getenv("INSTRUMENTS"); v != "" {
		c.Broker.Instruments = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Cache.Redis.Host = v
		c.Cache.Redis.Enabled = true
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Broker.APIKey == "" {
		return fmt.Errorf("broker.api_key is required")
	}
	if c.Broker.AccountID == "" {
		return fmt.Errorf("broker.account_id is required")
	}
	if len(c.Broker.Instruments) == 0 {
		return fmt.Errorf("broker.instruments cannot be empty")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	for _, w := range c.Trading.QuietWindows {
		if !strings.Contains(w, "-") {
			return fmt.Errorf("trading.quiet_windows entry %q must be HH:MM-HH:MM", w)
		}
	}
	return nil
}
