package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"scoutline.dev/orchestrator/internal/model"
	"scoutline.dev/orchestrator/internal/store"
)

// ErrNoMatch is returned by Select when no active strategy matches the
// requested (category, time_window, depth) triple.
var ErrNoMatch = errors.New("strategy: no matching strategy")

// Service resolves, selects, and administers strategies. One Service per
// process shares its cache across every request; Redis pub/sub keeps the
// cache consistent across processes when an admin mutates a strategy.
type Service struct {
	store               store.StrategyStore
	redis                *redis.Client
	cache                *cache
	invalidationChannel  string
	bootstrapDir         string
}

// NewService builds a strategy Service. bootstrapDir may be empty, in which
// case no filesystem seeding is attempted.
func NewService(strategyStore store.StrategyStore, redisClient *redis.Client, invalidationChannel, bootstrapDir string) *Service {
	return &Service{
		store:               strategyStore,
		redis:               redisClient,
		cache:               newCache(),
		invalidationChannel: invalidationChannel,
		bootstrapDir:        bootstrapDir,
	}
}

// Warm loads the active strategy set into the in-process cache, seeding the
// store from bootstrapDir first if the store is currently empty.
func (s *Service) Warm(ctx context.Context) error {
	count, err := s.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count strategies: %w", err)
	}

	if count == 0 && s.bootstrapDir != "" {
		if err := s.seedFromBootstrap(ctx); err != nil {
			return err
		}
	}

	return s.refresh(ctx)
}

func (s *Service) seedFromBootstrap(ctx context.Context) error {
	strategies, err := LoadBootstrapDir(s.bootstrapDir)
	if err != nil {
		return fmt.Errorf("load bootstrap strategies: %w", err)
	}

	for i := range strategies {
		if err := s.store.Upsert(ctx, &strategies[i]); err != nil {
			return fmt.Errorf("seed strategy %q: %w", strategies[i].Meta.Slug, err)
		}
	}

	slog.InfoContext(ctx, "seeded strategies from bootstrap directory",
		"dir", s.bootstrapDir, "count", len(strategies))
	return nil
}

func (s *Service) refresh(ctx context.Context) error {
	strategies, err := s.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active strategies: %w", err)
	}
	s.cache.replace(strategies)
	slog.InfoContext(ctx, "refreshed strategy cache", "count", len(strategies))
	return nil
}

// Get returns the strategy registered under slug, reading the in-process
// cache first.
func (s *Service) Get(ctx context.Context, slug string) (*model.Strategy, error) {
	if st, ok := s.cache.getBySlug(slug); ok {
		return &st, nil
	}

	st, err := s.store.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Select resolves a classified (category, time_window, depth) triple to the
// highest-priority matching strategy's slug.
func (s *Service) Select(ctx context.Context, category string, window model.TimeWindow, depth model.Depth) (string, error) {
	slug, ok := s.cache.selectSlug(model.StrategyIndexKey{Category: category, TimeWindow: window, Depth: depth})
	if !ok {
		return "", ErrNoMatch
	}
	return slug, nil
}

// List returns every active strategy, for admin listing endpoints. It reads
// the store directly rather than the cache so deactivated records are never
// surfaced, mirroring ListActive's semantics.
func (s *Service) List(ctx context.Context) ([]model.Strategy, error) {
	return s.store.ListActive(ctx)
}

// Upsert persists the strategy and publishes a cache invalidation to every
// other process sharing this invalidation channel.
func (s *Service) Upsert(ctx context.Context, strategy *model.Strategy) error {
	if err := s.store.Upsert(ctx, strategy); err != nil {
		return err
	}
	return s.invalidate(ctx)
}

// Deactivate soft-deletes a strategy and invalidates every process's cache.
func (s *Service) Deactivate(ctx context.Context, slug string) error {
	if err := s.store.Deactivate(ctx, slug); err != nil {
		return err
	}
	return s.invalidate(ctx)
}

func (s *Service) invalidate(ctx context.Context) error {
	if err := s.refresh(ctx); err != nil {
		return err
	}

	if s.redis == nil {
		return nil
	}
	if err := s.redis.Publish(ctx, s.invalidationChannel, "invalidate").Err(); err != nil {
		slog.WarnContext(ctx, "failed to publish strategy cache invalidation", "error", err)
	}
	return nil
}

// Subscribe listens for invalidation events from other processes and
// refreshes the local cache on receipt. It blocks until ctx is cancelled, so
// callers should run it in its own goroutine.
func (s *Service) Subscribe(ctx context.Context) {
	if s.redis == nil {
		return
	}

	pubsub := s.redis.Subscribe(ctx, s.invalidationChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			if err := s.refresh(ctx); err != nil {
				slog.ErrorContext(ctx, "failed to refresh strategy cache after invalidation", "error", err)
			}
		}
	}
}
