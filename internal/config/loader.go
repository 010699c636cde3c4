package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "tyresync.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// CLIFlags holds command-line overrides. Nil fields were not set.
type CLIFlags struct {
	ConfigPath *string
	Port       *string
	LogLevel   *string
	DSN        *string
	NatsURL    *string
	CORSOrigin *string
}

// ParseFlags parses serve flags. Both long and short forms are accepted.
func ParseFlags(args []string) (CLIFlags, error) {
	fs := flag.NewFlagSet("tyresync", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configPath, port, logLevel, dsn, natsURL, cors string
	)
	fs.StringVar(&configPath, "config", "", "path to YAML config")
	fs.StringVar(&configPath, "c", "", "path to YAML config (shorthand)")
	fs.StringVar(&port, "port", "", "HTTP port")
	fs.StringVar(&port, "p", "", "HTTP port (shorthand)")
	fs.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&dsn, "dsn", "", "PostgreSQL DSN")
	fs.StringVar(&natsURL, "nats-url", "", "NATS URL")
	fs.StringVar(&cors, "cors-origin", "", "allowed browser origin")

	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, fmt.Errorf("parse flags: %w", err)
	}

	var flags CLIFlags
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config", "c":
			flags.ConfigPath = &configPath
		case "port", "p":
			flags.Port = &port
		case "log-level":
			flags.LogLevel = &logLevel
		case "dsn":
			flags.DSN = &dsn
		case "nats-url":
			flags.NatsURL = &natsURL
		case "cors-origin":
			flags.CORSOrigin = &cors
		}
	})
	return flags, nil
}

// LoadWithCLI loads configuration with CLI flags as the highest layer.
// It returns the config and the YAML path that was consulted.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	path := DefaultConfigFile
	if flags.ConfigPath != nil {
		path = *flags.ConfigPath
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, path); err != nil {
		return nil, path, fmt.Errorf("config yaml: %w", err)
	}
	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, path, fmt.Errorf("config validate: %w", err)
	}
	return &cfg, path, nil
}

// applyCLI overlays set flags onto cfg.
func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Port != nil {
		cfg.Server.Port = *flags.Port
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.DSN != nil {
		cfg.Postgres.DSN = *flags.DSN
	}
	if flags.NatsURL != nil {
		cfg.NATS.URL = *flags.NatsURL
	}
	if flags.CORSOrigin != nil {
		cfg.Server.CORSOrigin = *flags.CORSOrigin
	}
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is operator supplied
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "TYRESYNC_PORT")
	setString(&cfg.Server.CORSOrigin, "TYRESYNC_CORS_ORIGIN")
	setInt64(&cfg.Server.BodyLimit, "TYRESYNC_BODY_LIMIT")
	setDuration(&cfg.Server.RequestTimeout, "TYRESYNC_REQUEST_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "TYRESYNC_SHUTDOWN_TIMEOUT")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "TYRESYNC_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "TYRESYNC_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "TYRESYNC_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "TYRESYNC_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "TYRESYNC_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setBool(&cfg.NATS.Enabled, "TYRESYNC_NATS_ENABLED")
	setString(&cfg.Logging.Level, "TYRESYNC_LOG_LEVEL")
	setString(&cfg.Logging.Service, "TYRESYNC_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "TYRESYNC_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "TYRESYNC_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "TYRESYNC_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "TYRESYNC_RATE_RPS")
	setInt(&cfg.Rate.Burst, "TYRESYNC_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "TYRESYNC_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "TYRESYNC_RATE_MAX_IDLE_TIME")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "TYRESYNC_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "TYRESYNC_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "TYRESYNC_CACHE_L2_TTL")
	setDuration(&cfg.Idempotency.TTL, "TYRESYNC_IDEMPOTENCY_TTL")

	// Realtime
	setString(&cfg.Realtime.Topic, "TYRESYNC_REALTIME_TOPIC")
	setInt(&cfg.Realtime.SendBuffer, "TYRESYNC_REALTIME_SEND_BUFFER")
	setDuration(&cfg.Realtime.WriteTimeout, "TYRESYNC_REALTIME_WRITE_TIMEOUT")
	setDuration(&cfg.Realtime.PingInterval, "TYRESYNC_REALTIME_PING_INTERVAL")
	setInt64(&cfg.Realtime.ReadLimit, "TYRESYNC_REALTIME_READ_LIMIT")

	// OpenTelemetry
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.OTEL.Insecure, "TYRESYNC_OTEL_INSECURE")
	setDuration(&cfg.OTEL.MetricInterval, "TYRESYNC_OTEL_METRIC_INTERVAL")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Server.CORSOrigin == "" {
		return errors.New("server.cors_origin is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.Enabled && cfg.NATS.URL == "" {
		return errors.New("nats.url is required when nats is enabled")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Realtime.Topic == "" {
		return errors.New("realtime.topic is required")
	}
	if cfg.Realtime.SendBuffer < 1 {
		return errors.New("realtime.send_buffer must be >= 1")
	}
	if cfg.Realtime.WriteTimeout <= 0 {
		return errors.New("realtime.write_timeout must be > 0")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
