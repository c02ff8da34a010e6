package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is the subset of pgxpool.Pool and pgx.Tx that the individual
// stores need, so the same store implementation works inside or outside a
// transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Stores provides access to all store implementations. It can be
// instantiated with either a connection pool or a transaction.
type Stores struct {
	q querier
}

// NewStores creates a new Stores instance from a pool or a transaction.
//
// Usage with pool (non-transactional):
//
//	stores := store.NewStores(db.Pool())
//	strategy, err := stores.Strategies().GetBySlug(ctx, "competitive-overview")
//
// Usage with transaction:
//
//	err := db.WithTx(ctx, func(tx pgx.Tx) error {
//	    stores := store.NewStores(tx)
//	    return stores.Strategies().Upsert(ctx, strategy)
//	})
func NewStores(q querier) *Stores {
	return &Stores{q: q}
}

// Strategies returns the StrategyStore.
func (s *Stores) Strategies() StrategyStore {
	return &strategyStore{q: s.q}
}

// Tasks returns the TaskStore.
func (s *Stores) Tasks() TaskStore {
	return &taskStore{q: s.q}
}

// Settings returns the SettingStore.
func (s *Stores) Settings() SettingStore {
	return &settingStore{q: s.q}
}

// ScopeCache returns the ScopeCacheStore.
func (s *Stores) ScopeCache() ScopeCacheStore {
	return &scopeCacheStore{q: s.q}
}
