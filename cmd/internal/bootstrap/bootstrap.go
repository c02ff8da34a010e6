// Package bootstrap wires the orchestrator's dependency graph — database,
// cache, strategy cache, LLM clients, tool adapter registry, the phase
// engine, and the subscription/batch services — so cmd/server and
// cmd/worker build an identical graph from the same Config.
package bootstrap

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"scoutline.dev/orchestrator/common/id"
	"scoutline.dev/orchestrator/common/llm"
	"scoutline.dev/orchestrator/core/config"
	"scoutline.dev/orchestrator/core/db"
	"scoutline.dev/orchestrator/internal/batch"
	"scoutline.dev/orchestrator/internal/finalize"
	"scoutline.dev/orchestrator/internal/phase"
	"scoutline.dev/orchestrator/internal/qc"
	"scoutline.dev/orchestrator/internal/research"
	"scoutline.dev/orchestrator/internal/scope"
	"scoutline.dev/orchestrator/internal/settings"
	"scoutline.dev/orchestrator/internal/store"
	"scoutline.dev/orchestrator/internal/strategy"
	"scoutline.dev/orchestrator/internal/subscription"
	"scoutline.dev/orchestrator/internal/toolkit"
)

// Deps holds every wired component a binary needs to serve requests or run
// scheduled dispatch.
type Deps struct {
	DB         *db.DB
	Redis      *redis.Client
	Strategies *strategy.Service
	Tasks      *subscription.Service
	Settings   *settings.Service
	Engine     *phase.Engine
	Batch      *batch.Executor
	Webhook    *batch.WebhookSender
}

// Build connects to Postgres and Redis, warms the strategy cache, and
// constructs every service. nodeID distinguishes snowflake ID generation
// between the server and worker processes.
func Build(ctx context.Context, cfg config.Config, nodeID int64) (*Deps, error) {
	if err := id.Init(nodeID); err != nil {
		return nil, fmt.Errorf("bootstrap: init snowflake id generator: %w", err)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect to database: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		database.Close()
		return nil, fmt.Errorf("bootstrap: connect to redis: %w", err)
	}

	stores := store.NewStores(database.Pool())

	strategies := strategy.NewService(stores.Strategies(), redisClient, cfg.Redis.InvalidationChannel, cfg.StrategyBootstrapDir)
	if err := strategies.Warm(ctx); err != nil {
		database.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("bootstrap: warm strategy cache: %w", err)
	}

	fillClient, err := llm.New(llm.Config(cfg.LLM))
	if err != nil {
		database.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("bootstrap: build LLM client: %w", err)
	}

	agentClient, err := llm.NewAgentClient(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
	})
	if err != nil {
		database.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("bootstrap: build LLM agent client: %w", err)
	}

	scopeCache := scope.NewCache(redisClient, stores.ScopeCache(), cfg.Redis.ScopeCacheTTL)
	scopeClassifier := scope.NewClassifier(agentClient, strategies)
	scopeService := scope.NewService(scopeClassifier, scopeCache)

	registry := toolkitRegistry(cfg, fillClient)

	engine := &phase.Engine{
		Scope:      scopeService,
		Strategies: strategies,
		FillLLM:    fillClient,
		Research: &research.Executor{
			Registry:       registry,
			RefineLLM:      fillClient,
			AdapterTimeout: cfg.Timeouts.Adapter,
		},
		Finalize: &finalize.Synthesizer{
			Agent:          agentClient,
			Registry:       registry,
			AdapterTimeout: cfg.Timeouts.Adapter,
		},
		QC: &qc.Checker{
			GroundingClient: fillClient,
		},
		Checkpoints: phase.NewMemoryCheckpointer(),
	}

	tasks := subscription.NewService(stores.Tasks())
	settingsSvc := settings.NewService(stores.Settings())

	webhook := batch.NewWebhookSender(nil, cfg.Batch.WebhookRetries, cfg.Batch.WebhookBackoff, 5*time.Minute)
	executor := &batch.Executor{
		Tasks:          tasks,
		Workflow:       engine,
		Webhook:        webhook,
		MaxConcurrency: cfg.Batch.MaxConcurrency,
	}

	return &Deps{
		DB:         database,
		Redis:      redisClient,
		Strategies: strategies,
		Tasks:      tasks,
		Settings:   settingsSvc,
		Engine:     engine,
		Batch:      executor,
		Webhook:    webhook,
	}, nil
}

// Close releases the database pool and Redis client.
func (d *Deps) Close() {
	d.DB.Close()
	_ = d.Redis.Close()
}

// toolkitRegistry builds the adapter registry from whichever providers have
// credentials configured. The LLM analyzer adapter is always registered
// since it reuses the fill LLM client rather than a separate API key.
func toolkitRegistry(cfg config.Config, fillClient llm.Client) *toolkit.Registry {
	registry := toolkit.NewRegistry()

	if cfg.Providers.SonarAPIKey != "" {
		registry.Register(toolkit.NewSonarAdapter(toolkit.SonarConfig{
			APIKey:  cfg.Providers.SonarAPIKey,
			BaseURL: cfg.Providers.SonarBaseURL,
			Model:   cfg.LLM.Model,
		}))
	}

	if cfg.Providers.ExaAPIKey != "" {
		registry.Register(toolkit.NewExaAdapter(toolkit.ExaConfig{
			APIKey:  cfg.Providers.ExaAPIKey,
			BaseURL: cfg.Providers.ExaBaseURL,
		}))
	}

	if cfg.Providers.TypesenseAPIKey != "" {
		registry.Register(toolkit.NewTypesenseAdapter(toolkit.TypesenseConfig{
			Host:       cfg.Providers.TypesenseHost,
			Port:       strconv.Itoa(cfg.Providers.TypesensePort),
			Protocol:   cfg.Providers.TypesenseProto,
			APIKey:     cfg.Providers.TypesenseAPIKey,
			Collection: cfg.Providers.TypesenseCollection,
		}))
	}

	registry.Register(toolkit.NewLLMAnalyzerAdapter(fillClient))

	return registry
}
