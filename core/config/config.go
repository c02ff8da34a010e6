// Package config loads environment-driven configuration for the orchestrator
// server and worker binaries.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"scoutline.dev/orchestrator/core/db"
)

// Config holds all application configuration.
type Config struct {
	// Env is the environment name (development, staging, production)
	Env string

	// Port is the HTTP server port
	Port string

	// AdminAPIKey is the shared secret checked against the X-API-Key header
	// on every endpoint except GET /health.
	AdminAPIKey string

	// DB holds database configuration
	DB db.Config

	// Redis holds the cache/invalidation configuration
	Redis RedisConfig

	// LLM configures the primary OpenAI-compatible provider used by the
	// scope classifier, fill, finalize and QC grounding components.
	LLM LLMConfig

	// Providers configures the external research adapters.
	Providers ProvidersConfig

	// Batch configures the subscription batch executor.
	Batch BatchConfig

	// Timeouts configures per-stage context deadlines.
	Timeouts TimeoutConfig

	// OTel configures the OpenTelemetry exporters.
	OTel OTelConfig

	// StrategyBootstrapDir is a directory of YAML strategy definitions
	// loaded at startup when the strategy table is empty.
	StrategyBootstrapDir string
}

// RedisConfig configures the Redis client used for the scope-classification
// cache and cross-process strategy cache invalidation.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// ScopeCacheTTL bounds how long a scope classification is reused for an
	// identical request fingerprint.
	ScopeCacheTTL time.Duration

	// InvalidationChannel is the pub/sub channel used to fan out strategy
	// cache invalidations across processes.
	InvalidationChannel string
}

// LLMConfig configures an OpenAI-compatible chat/tool-calling backend.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Enabled reports whether this LLM backend has credentials configured.
func (c LLMConfig) Enabled() bool {
	return c.APIKey != ""
}

// ProvidersConfig configures the external research tool adapters.
type ProvidersConfig struct {
	SonarAPIKey     string
	SonarBaseURL    string
	ExaAPIKey       string
	ExaBaseURL      string
	TypesenseHost   string
	TypesensePort   int
	TypesenseProto  string
	TypesenseAPIKey string
	TypesenseCollection string
}

// BatchConfig configures the subscription batch executor and webhook sender.
type BatchConfig struct {
	MaxConcurrency int
	WebhookRetries int
	WebhookBackoff time.Duration
}

// TimeoutConfig bounds per-stage context deadlines, overridable per strategy.
type TimeoutConfig struct {
	Adapter  time.Duration
	LLM      time.Duration
	Workflow time.Duration
}

// OTelConfig configures the OTLP trace/log exporters.
type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

// Enabled reports whether an OTLP endpoint is configured.
func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

// Load loads configuration from environment variables.
// It provides sensible defaults for development, loading a .env file first
// when one is present (non-production only).
func Load() (Config, error) {
	env := getEnv("ORCHESTRATOR_ENV", "development")
	if env != "production" {
		_ = godotenv.Load()
	}

	cfg := Config{
		Env:         env,
		Port:        getEnv("PORT", "8080"),
		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
		DB: db.Config{
			DSN:      buildDSN(),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 2)),
		},
		Redis: RedisConfig{
			Addr:                getEnv("REDIS_ADDR", "localhost:6379"),
			Password:            getEnv("REDIS_PASSWORD", ""),
			DB:                  getEnvInt("REDIS_DB", 0),
			ScopeCacheTTL:       getEnvDuration("SCOPE_CACHE_TTL", 24*time.Hour),
			InvalidationChannel: getEnv("STRATEGY_CACHE_INVALIDATION_CHANNEL", "strategy.cache.invalidate"),
		},
		LLM: LLMConfig{
			APIKey:  getEnv("LLM_API_KEY", ""),
			BaseURL: getEnv("LLM_BASE_URL", ""),
			Model:   getEnv("LLM_MODEL", "gpt-4o-mini"),
		},
		Providers: ProvidersConfig{
			SonarAPIKey:         getEnv("SONAR_API_KEY", ""),
			SonarBaseURL:        getEnv("SONAR_BASE_URL", "https://api.perplexity.ai"),
			ExaAPIKey:           getEnv("EXA_API_KEY", ""),
			ExaBaseURL:          getEnv("EXA_BASE_URL", "https://api.exa.ai"),
			TypesenseHost:       getEnv("TYPESENSE_HOST", "localhost"),
			TypesensePort:       getEnvInt("TYPESENSE_PORT", 8108),
			TypesenseProto:      getEnv("TYPESENSE_PROTOCOL", "http"),
			TypesenseAPIKey:     getEnv("TYPESENSE_API_KEY", ""),
			TypesenseCollection: getEnv("TYPESENSE_COLLECTION", "evidence"),
		},
		Batch: BatchConfig{
			MaxConcurrency: getEnvInt("BATCH_MAX_CONCURRENCY", 4),
			WebhookRetries: getEnvInt("WEBHOOK_MAX_RETRIES", 3),
			WebhookBackoff: getEnvDuration("WEBHOOK_RETRY_BACKOFF", 2*time.Second),
		},
		Timeouts: TimeoutConfig{
			Adapter:  getEnvDuration("TIMEOUT_ADAPTER", 30*time.Second),
			LLM:      getEnvDuration("TIMEOUT_LLM", 60*time.Second),
			Workflow: getEnvDuration("TIMEOUT_WORKFLOW", 600*time.Second),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "scoutline-orchestrator"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		StrategyBootstrapDir: getEnv("STRATEGY_BOOTSTRAP_DIR", "strategies"),
	}

	if cfg.IsProduction() && cfg.AdminAPIKey == "" {
		return Config{}, fmt.Errorf("ADMIN_API_KEY is required in production")
	}

	return cfg, nil
}

// buildDSN constructs the database connection string from individual env vars.
func buildDSN() string {
	host := getEnv("DATABASE_HOST", "localhost")
	port := getEnv("DATABASE_PORT", "5432")
	user := getEnv("DATABASE_USER", "postgres")
	password := getEnv("DATABASE_PASSWORD", "postgres")
	name := getEnv("DATABASE_NAME", "scoutline")
	sslMode := getEnv("DATABASE_SSLMODE", "disable")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, name, sslMode,
	)
}

// IsProduction returns true if running in production environment.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// IsDevelopment returns true if running in development environment.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
