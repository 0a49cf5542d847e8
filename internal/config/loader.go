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
const DefaultConfigFile = "bytebot.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV.
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
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
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
	setString(&cfg.Server.Port, "BYTEBOT_PORT")
	setString(&cfg.Server.CORSOrigin, "BYTEBOT_CORS_ORIGIN")
	setString(&cfg.DaemonServer.Port, "BYTEBOTD_PORT")
	setString(&cfg.DaemonServer.Display, "DISPLAY")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "BYTEBOT_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "BYTEBOT_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "BYTEBOT_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "BYTEBOT_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "BYTEBOT_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Daemon.URL, "BYTEBOT_DAEMON_URL")
	setDuration(&cfg.Daemon.Timeout, "BYTEBOT_DAEMON_TIMEOUT")
	setInt(&cfg.Daemon.DisplayWidth, "BYTEBOT_DISPLAY_WIDTH")
	setInt(&cfg.Daemon.DisplayHeight, "BYTEBOT_DISPLAY_HEIGHT")
	setString(&cfg.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.Anthropic.BaseURL, "ANTHROPIC_BASE_URL")
	setString(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setInt(&cfg.Agent.MaxIterations, "BYTEBOT_MAX_ITERATIONS")
	setInt(&cfg.Agent.MaxScreenshots, "BYTEBOT_MAX_SCREENSHOTS")
	setInt(&cfg.Agent.BrowserScreenshots, "BYTEBOT_BROWSER_SCREENSHOTS")
	setInt(&cfg.Agent.ActionWindow, "BYTEBOT_ACTION_WINDOW")
	setInt(&cfg.Agent.ActionThreshold, "BYTEBOT_ACTION_THRESHOLD")
	setInt(&cfg.Agent.BrowserThreshold, "BYTEBOT_BROWSER_THRESHOLD")
	setDuration(&cfg.Agent.SettleDelay, "BYTEBOT_SETTLE_DELAY")
	setFloat64(&cfg.Agent.RequestsPerSecond, "BYTEBOT_AGENT_RPS")
	setInt(&cfg.Agent.MaxTokens, "BYTEBOT_MAX_TOKENS")
	setDuration(&cfg.Scheduler.Interval, "BYTEBOT_SCHEDULER_INTERVAL")
	setInt(&cfg.Summarizer.Threshold, "BYTEBOT_SUMMARY_THRESHOLD")
	setInt(&cfg.Summarizer.KeepRecent, "BYTEBOT_SUMMARY_KEEP_RECENT")
	setInt64(&cfg.Cache.L1MaxSizeMB, "BYTEBOT_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "BYTEBOT_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.TTL, "BYTEBOT_CACHE_TTL")
	setString(&cfg.Logging.Level, "BYTEBOT_LOG_LEVEL")
	setString(&cfg.Logging.Service, "BYTEBOT_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "BYTEBOT_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "BYTEBOT_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "BYTEBOT_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "BYTEBOT_RATE_RPS")
	setInt(&cfg.Rate.Burst, "BYTEBOT_RATE_BURST")
	setBool(&cfg.Telemetry.Enabled, "BYTEBOT_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Daemon.URL == "" {
		return errors.New("daemon.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Agent.MaxIterations < 1 {
		return errors.New("agent.max_iterations must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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
