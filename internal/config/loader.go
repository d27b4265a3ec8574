package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "syncbridge.yaml"

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

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
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
	setString(&cfg.Server.Port, "SYNCBRIDGE_PORT")
	setString(&cfg.Server.CORSOrigin, "SYNCBRIDGE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "SYNCBRIDGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "SYNCBRIDGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "SYNCBRIDGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "SYNCBRIDGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "SYNCBRIDGE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setBool(&cfg.NATS.Enabled, "SYNCBRIDGE_NATS_ENABLED")
	setString(&cfg.Logging.Level, "SYNCBRIDGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "SYNCBRIDGE_LOG_SERVICE")
	setInt(&cfg.Engine.Workers, "SYNCBRIDGE_ENGINE_WORKERS")
	setDuration(&cfg.Engine.PollInterval, "SYNCBRIDGE_ENGINE_POLL_INTERVAL")
	setDuration(&cfg.Engine.ShutdownTimeout, "SYNCBRIDGE_ENGINE_SHUTDOWN_TIMEOUT")
	setInt(&cfg.Engine.DefaultPriority, "SYNCBRIDGE_ENGINE_DEFAULT_PRIORITY")
	setInt(&cfg.Engine.RecoveryPriority, "SYNCBRIDGE_ENGINE_RECOVERY_PRIORITY")
	setString(&cfg.Engine.Resolver, "SYNCBRIDGE_ENGINE_RESOLVER")
	setBool(&cfg.Cache.Enabled, "SYNCBRIDGE_CACHE_ENABLED")
	setInt64(&cfg.Cache.MaxCostBytes, "SYNCBRIDGE_CACHE_MAX_COST_BYTES")
	setDuration(&cfg.Cache.TTL, "SYNCBRIDGE_CACHE_TTL")
	setString(&cfg.Webhook.TrackerSecret, "SYNCBRIDGE_WEBHOOK_TRACKER_SECRET")
	setBool(&cfg.Telemetry.Enabled, "SYNCBRIDGE_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Tracker.BaseURL, "SYNCBRIDGE_TRACKER_URL")
	setString(&cfg.Tracker.Token, "SYNCBRIDGE_TRACKER_TOKEN")
	setInt(&cfg.Tracker.MaxConcurrent, "SYNCBRIDGE_TRACKER_MAX_CONCURRENT")
}

// validate rejects configurations the engine cannot run with.
func validate(cfg *Config) error {
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres dsn is required")
	}
	if cfg.Engine.Workers < 1 {
		return fmt.Errorf("engine workers must be >= 1, got %d", cfg.Engine.Workers)
	}
	if cfg.Engine.PollInterval <= 0 {
		return errors.New("engine poll_interval must be positive")
	}
	if cfg.Engine.ShutdownTimeout <= 0 {
		return errors.New("engine shutdown_timeout must be positive")
	}
	switch cfg.Engine.Resolver {
	case "external_wins", "last_writer_wins":
	default:
		return fmt.Errorf("unknown engine resolver %q", cfg.Engine.Resolver)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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
