// Package store implements direct pgx-based persistence for strategies,
// subscription tasks, settings, and the scope classification fallback cache.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"scoutline.dev/orchestrator/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// StrategyStore persists declarative research strategies.
type StrategyStore interface {
	GetBySlug(ctx context.Context, slug string) (*model.Strategy, error)
	ListActive(ctx context.Context) ([]model.Strategy, error)
	Upsert(ctx context.Context, strategy *model.Strategy) error
	Deactivate(ctx context.Context, slug string) error
	Count(ctx context.Context) (int, error)
}

// TaskStore persists user-defined subscription research tasks.
type TaskStore interface {
	Create(ctx context.Context, task *model.SubscriptionTask) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.SubscriptionTask, error)
	GetByEmail(ctx context.Context, email string) ([]model.SubscriptionTask, error)
	Update(ctx context.Context, task *model.SubscriptionTask) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListActiveByFrequency(ctx context.Context, freq model.Frequency) ([]model.SubscriptionTask, error)
	MarkRun(ctx context.Context, id uuid.UUID, ranAt time.Time) error
}

// SettingStore persists admin-configurable global settings.
type SettingStore interface {
	Get(ctx context.Context, key string) (*model.Setting, error)
	Set(ctx context.Context, key string, value []byte) error
	List(ctx context.Context) ([]model.Setting, error)
	Delete(ctx context.Context, key string) error
}

// ScopeCacheStore persists the Postgres fallback tier of the scope
// classification cache (the fast path lives in Redis).
type ScopeCacheStore interface {
	Get(ctx context.Context, requestHash string) (*model.ScopeClassification, error)
	Put(ctx context.Context, classification model.ScopeClassification) error
}
