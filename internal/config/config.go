// Package config assembles the Harrier configuration from defaults, an
// optional TOML file, a .env file and HARRIER_* environment variables, in
// that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/opensource-finance/harrier/internal/domain"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HARRIER_"

// Options control where configuration is read from.
type Options struct {
	// Path is a TOML file. Empty skips the file layer.
	Path string

	// EnvFile is loaded into the process environment without overriding
	// variables that are already set. Defaults to ".env"; a missing file is ignored.
	EnvFile string
}

// Load builds the configuration and validates it.
func Load(opts Options) (*domain.Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
		slog.Debug("no env file found, relying on process environment", "path", envFile)
	}

	cfg := domain.DefaultConfig()
	if os.Getenv(EnvPrefix+"PROFILE") == "distributed" {
		cfg = domain.DistributedConfig()
	}

	if opts.Path != "" {
		meta, err := toml.DecodeFile(opts.Path, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", opts.Path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			slog.Warn("unknown config keys ignored", "path", opts.Path, "keys", keys)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func Validate(cfg *domain.Config) error {
	var errs []error

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", cfg.Server.Port))
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("repository.driver must be sqlite or postgres, got %q", cfg.Repository.Driver))
	}
	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("cache.type must be memory or redis, got %q", cfg.Cache.Type))
	}
	switch cfg.EventBus.Type {
	case "channel", "nats":
	default:
		errs = append(errs, fmt.Errorf("event_bus.type must be channel or nats, got %q", cfg.EventBus.Type))
	}
	if cfg.Batch.Live && cfg.Vendor.BaseURL == "" {
		errs = append(errs, errors.New("batch.live requires vendor.base_url"))
	}
	if cfg.Batch.MaxAttempts < 0 {
		errs = append(errs, errors.New("batch.max_attempts must not be negative"))
	}
	if cfg.Vendor.RateLimit < 0 {
		errs = append(errs, errors.New("vendor.rate_limit must not be negative"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

// applyEnv overlays HARRIER_* variables onto cfg.
func applyEnv(cfg *domain.Config, lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.setString("HOST", &cfg.Server.Host)
	e.setInt("PORT", &cfg.Server.Port)

	e.setString("DB_DRIVER", &cfg.Repository.Driver)
	e.setString("SQLITE_PATH", &cfg.Repository.SQLitePath)
	e.setString("POSTGRES_HOST", &cfg.Repository.PostgresHost)
	e.setInt("POSTGRES_PORT", &cfg.Repository.PostgresPort)
	e.setString("POSTGRES_USER", &cfg.Repository.PostgresUser)
	e.setString("POSTGRES_PASSWORD", &cfg.Repository.PostgresPassword)
	e.setString("POSTGRES_DB", &cfg.Repository.PostgresDB)
	e.setString("POSTGRES_SSLMODE", &cfg.Repository.PostgresSSLMode)

	e.setString("CACHE_TYPE", &cfg.Cache.Type)
	e.setString("REDIS_ADDR", &cfg.Cache.RedisAddr)
	e.setString("REDIS_PASSWORD", &cfg.Cache.RedisPassword)
	e.setInt("REDIS_DB", &cfg.Cache.RedisDB)
	e.setBool("CACHE_TWO_PHASE", &cfg.Cache.EnableTwoPhase)

	e.setString("BUS_TYPE", &cfg.EventBus.Type)
	e.setString("NATS_URL", &cfg.EventBus.NATSUrl)
	e.setString("NATS_TOKEN", &cfg.EventBus.NATSToken)
	e.setString("NATS_QUEUE_GROUP", &cfg.EventBus.NATSQueueGroup)

	e.setString("VENDOR_URL", &cfg.Vendor.BaseURL)
	e.setString("VENDOR_TOKEN", &cfg.Vendor.Token)
	e.setFloat("VENDOR_RATE_LIMIT", &cfg.Vendor.RateLimit)
	e.setInt("VENDOR_BURST", &cfg.Vendor.Burst)
	e.setDuration("VENDOR_TIMEOUT", &cfg.Vendor.Timeout)

	e.setBool("LIVE", &cfg.Batch.Live)
	e.setDuration("POLL_INTERVAL", &cfg.Batch.PollInterval)
	e.setInt("LOOKBACK_DAYS", &cfg.Batch.LookbackDays)
	e.setInt("MAX_ATTEMPTS", &cfg.Batch.MaxAttempts)

	e.setDuration("CATALOG_TTL", &cfg.Engine.CatalogTTL)
	e.setDuration("VELOCITY_WINDOW", &cfg.Engine.VelocityWindow)

	e.setString("LOG_LEVEL", &cfg.Logging.Level)
	e.setString("LOG_FORMAT", &cfg.Logging.Format)
	e.setBool("TRACING", &cfg.Tracing.Enabled)

	return errors.Join(e.errs...)
}

type envReader struct {
	lookup lookupFunc
	errs   []error
}

func (e *envReader) get(name string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) fail(name, value string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%w: %s%s=%q: %v", domain.ErrInvalidInput, EnvPrefix, name, value, err))
}

func (e *envReader) setString(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) setInt(name string, dst *int) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = n
}

func (e *envReader) setFloat(name string, dst *float64) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = f
}

func (e *envReader) setBool(name string, dst *bool) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = b
}

func (e *envReader) setDuration(name string, dst *time.Duration) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = d
}

// LogLevel maps a configured level name to slog. Unknown names mean info.
func LogLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
