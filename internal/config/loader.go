package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "eventweb.yaml"

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
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is chosen by the operator
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
	setString(&cfg.Server.Port, "EVENTWEB_PORT")
	setStrings(&cfg.Server.CORSOrigins, "EVENTWEB_CORS_ORIGINS")
	setDuration(&cfg.Server.ReadTimeout, "EVENTWEB_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "EVENTWEB_WRITE_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "EVENTWEB_SHUTDOWN_TIMEOUT")

	setBool(&cfg.HTTP.CORS, "EVENTWEB_HTTP_CORS")
	setBool(&cfg.HTTP.SecurityHeaders, "EVENTWEB_HTTP_SECURITY_HEADERS")
	setBool(&cfg.HTTP.ETag, "EVENTWEB_HTTP_ETAG")
	setBool(&cfg.HTTP.WeakETags, "EVENTWEB_HTTP_WEAK_ETAGS")
	setBool(&cfg.HTTP.RequestLog, "EVENTWEB_HTTP_REQUEST_LOG")
	setBool(&cfg.HTTP.ProblemDetails, "EVENTWEB_HTTP_PROBLEM_DETAILS")
	setInt64(&cfg.HTTP.BodyLimit, "EVENTWEB_HTTP_BODY_LIMIT")

	setBool(&cfg.Legacy.Enabled, "EVENTWEB_LEGACY_ENABLED")
	setString(&cfg.Legacy.Sunset, "EVENTWEB_LEGACY_SUNSET")
	setString(&cfg.Legacy.Link, "EVENTWEB_LEGACY_LINK")

	setString(&cfg.Store.Driver, "EVENTWEB_STORE")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setString(&cfg.Postgres.Mode, "EVENTWEB_PG_MODE")
	setInt32(&cfg.Postgres.MaxConns, "EVENTWEB_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "EVENTWEB_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "EVENTWEB_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "EVENTWEB_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "EVENTWEB_PG_HEALTH_CHECK")
	setBool(&cfg.Postgres.Migrate, "EVENTWEB_PG_MIGRATE")

	setString(&cfg.NATS.URL, "NATS_URL")
	setBool(&cfg.NATS.PublishEvents, "EVENTWEB_NATS_PUBLISH_EVENTS")
	setString(&cfg.NATS.Stream, "EVENTWEB_NATS_STREAM")
	setString(&cfg.NATS.SubjectPrefix, "EVENTWEB_NATS_SUBJECT_PREFIX")
	setDuration(&cfg.NATS.DuplicateWindow, "EVENTWEB_NATS_DUPLICATE_WINDOW")
	setInt(&cfg.NATS.BreakerFailures, "EVENTWEB_NATS_BREAKER_FAILURES")
	setDuration(&cfg.NATS.BreakerCooldown, "EVENTWEB_NATS_BREAKER_COOLDOWN")

	setBool(&cfg.Idempotency.Enabled, "EVENTWEB_IDEMPOTENCY_ENABLED")
	setString(&cfg.Idempotency.Bucket, "EVENTWEB_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.Idempotency.TTL, "EVENTWEB_IDEMPOTENCY_TTL")
	setInt64(&cfg.Idempotency.L1MaxSizeMB, "EVENTWEB_IDEMPOTENCY_L1_SIZE_MB")
	setDuration(&cfg.Idempotency.L1TTL, "EVENTWEB_IDEMPOTENCY_L1_TTL")

	setString(&cfg.Logging.Level, "EVENTWEB_LOG_LEVEL")
	setString(&cfg.Logging.Service, "EVENTWEB_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "EVENTWEB_LOG_ASYNC")

	setBool(&cfg.Telemetry.Enabled, "EVENTWEB_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "EVENTWEB_OTEL_INSECURE")
	setString(&cfg.Telemetry.ServiceName, "OTEL_SERVICE_NAME")
	setFloat64(&cfg.Telemetry.SampleRate, "EVENTWEB_OTEL_SAMPLE_RATE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("store.driver %q must be %q or %q", cfg.Store.Driver, StoreMemory, StorePostgres)
	}
	switch cfg.Postgres.Mode {
	case PostgresModeAuto, PostgresModePool, PostgresModeServerless:
	default:
		return fmt.Errorf("postgres.mode %q must be auto, pool or serverless", cfg.Postgres.Mode)
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Postgres.MinConns < 0 || cfg.Postgres.MinConns > cfg.Postgres.MaxConns {
		return errors.New("postgres.min_conns must be between 0 and max_conns")
	}
	if cfg.HTTP.BodyLimit < 1 {
		return errors.New("http.body_limit must be >= 1")
	}
	if cfg.Idempotency.Enabled && cfg.Idempotency.TTL <= 0 {
		return errors.New("idempotency.ttl must be > 0")
	}
	if cfg.NATS.URL != "" && cfg.NATS.PublishEvents {
		if cfg.NATS.Stream == "" || cfg.NATS.SubjectPrefix == "" {
			return errors.New("nats.stream and nats.subject_prefix are required to publish events")
		}
		if strings.ContainsAny(cfg.NATS.SubjectPrefix, " *>") {
			return fmt.Errorf("nats.subject_prefix %q must not contain spaces or wildcards", cfg.NATS.SubjectPrefix)
		}
	}
	if cfg.Telemetry.SampleRate < 0 || cfg.Telemetry.SampleRate > 1 {
		return errors.New("telemetry.sample_rate must be between 0 and 1")
	}
	if _, err := cfg.Legacy.SunsetTime(); err != nil {
		return err
	}
	return nil
}

// SunsetTime parses Legacy.Sunset. An empty value yields the zero time.
func (l Legacy) SunsetTime() (time.Time, error) {
	if l.Sunset == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, l.Sunset); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, l.Sunset)
	if err != nil {
		return time.Time{}, fmt.Errorf("legacy.sunset %q: want RFC 3339 date or timestamp", l.Sunset)
	}
	return t, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setStrings splits a comma-separated value, dropping empty items.
func setStrings(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
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
