package domain

import "time"

// Policy constants. These are operator decisions and are overridable through EngineConfig.
const (
	// CashbackBalanceThreshold is the balance at or above which a cashback
	// withdrawal is considered not to have withdrawn the full balance.
	CashbackBalanceThreshold = 5.0

	// CashbackMaxMultiple caps a cashback withdrawal at this multiple of the cashback amount.
	CashbackMaxMultiple = 20.0

	// BonusBalanceGuard is the maximum balance before a bonus or free-spin credit
	// for it to be attributed to the bonus chain.
	BonusBalanceGuard = 10.0

	// RiskHighWinThreshold is the win amount above which an unwagered win is HIGH severity.
	RiskHighWinThreshold = 100.0

	DefaultTurnoverMultiplier = 1.0
	DefaultLookbackDays       = 2
	DefaultCatalogTTL         = 60 * time.Second

	DefaultMaxAttempts = 3
	DefaultBaseBackoff = time.Second
	DefaultMaxBackoff  = 15 * time.Second
)

// Config holds the complete Harrier configuration.
type Config struct {
	// Server settings
	Server ServerConfig `toml:"server"`

	// Component configurations
	Repository RepositoryConfig `toml:"repository"`
	Cache      CacheConfig      `toml:"cache"`
	EventBus   EventBusConfig   `toml:"event_bus"`
	Vendor     VendorConfig     `toml:"vendor"`

	// Decisioning
	Engine EngineConfig `toml:"engine"`
	Batch  BatchConfig  `toml:"batch"`

	// Observability
	Logging LoggingConfig `toml:"logging"`
	Tracing TracingConfig `toml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	ReadTimeout  int    `toml:"read_timeout"`  // seconds
	WriteTimeout int    `toml:"write_timeout"` // seconds
}

// VendorConfig holds settings for the vendor backoffice client.
type VendorConfig struct {
	BaseURL   string        `toml:"base_url"`
	Token     string        `toml:"token"`
	RateLimit float64       `toml:"rate_limit"` // requests per second
	Burst     int           `toml:"burst"`
	Timeout   time.Duration `toml:"timeout"`
}

// EngineConfig holds the decisioning thresholds.
type EngineConfig struct {
	CashbackBalanceThreshold  float64       `toml:"cashback_balance_threshold"`
	CashbackMaxMultiple       float64       `toml:"cashback_max_multiple"`
	BonusBalanceGuard         float64       `toml:"bonus_balance_guard"`
	RiskHighWinThreshold      float64       `toml:"risk_high_win_threshold"`
	DefaultTurnoverMultiplier float64       `toml:"default_turnover_multiplier"`
	CatalogTTL                time.Duration `toml:"catalog_ttl"`

	// VelocityWindow is the lookback used to count a client's recent withdrawals.
	VelocityWindow time.Duration `toml:"velocity_window"`
}

// BatchConfig controls the withdrawal batch processor.
type BatchConfig struct {
	// Live enables payout execution for approved withdrawals.
	// When false every decision is simulation-only.
	Live bool `toml:"live"`

	PollInterval time.Duration `toml:"poll_interval"`
	LookbackDays int           `toml:"lookback_days"`
	MaxAttempts  int           `toml:"max_attempts"`
	BaseBackoff  time.Duration `toml:"base_backoff"`
	MaxBackoff   time.Duration `toml:"max_backoff"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `toml:"enabled"`
	ServiceName  string `toml:"service_name"`
	ExporterType string `toml:"exporter_type"` // stdout, otlp, jaeger
	Endpoint     string `toml:"endpoint"`
}

// DefaultEngineConfig returns the engine thresholds with their named defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		CashbackBalanceThreshold:  CashbackBalanceThreshold,
		CashbackMaxMultiple:       CashbackMaxMultiple,
		BonusBalanceGuard:         BonusBalanceGuard,
		RiskHighWinThreshold:      RiskHighWinThreshold,
		DefaultTurnoverMultiplier: DefaultTurnoverMultiplier,
		CatalogTTL:                DefaultCatalogTTL,
		VelocityWindow:            24 * time.Hour,
	}
}

// DefaultBatchConfig returns simulation-mode batch settings.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		Live:         false,
		PollInterval: 30 * time.Second,
		LookbackDays: DefaultLookbackDays,
		MaxAttempts:  DefaultMaxAttempts,
		BaseBackoff:  DefaultBaseBackoff,
		MaxBackoff:   DefaultMaxBackoff,
	}
}

// DefaultConfig returns a default single-node configuration:
// SQLite, in-process cache and channel bus, simulation mode.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./harrier.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Vendor: VendorConfig{
			RateLimit: 5,
			Burst:     5,
			Timeout:   30 * time.Second,
		},
		Engine: DefaultEngineConfig(),
		Batch:  DefaultBatchConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "harrier",
		},
	}
}

// DistributedConfig returns a configuration for a multi-node deployment
// with PostgreSQL, Redis and NATS.
func DistributedConfig() *Config {
	cfg := DefaultConfig()
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "harrier",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       30 * time.Second,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
