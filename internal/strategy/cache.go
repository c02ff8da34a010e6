// Package strategy resolves a request's classified (category, time_window,
// depth) triple to a declarative Strategy, backed by Postgres with an
// in-process atomic snapshot cache and cross-process Redis invalidation.
package strategy

import (
	"sort"
	"sync/atomic"

	"scoutline.dev/orchestrator/internal/model"
)

// snapshot is the immutable, point-in-time view of every active strategy,
// plus the index used by Select.
type snapshot struct {
	bySlug map[string]model.Strategy
	index  map[model.StrategyIndexKey][]model.Strategy
}

func newSnapshot(strategies []model.Strategy) *snapshot {
	s := &snapshot{
		bySlug: make(map[string]model.Strategy, len(strategies)),
		index:  make(map[model.StrategyIndexKey][]model.Strategy),
	}

	for _, st := range strategies {
		s.bySlug[st.Meta.Slug] = st
		key := model.StrategyIndexKey{
			Category:   st.Meta.Category,
			TimeWindow: st.Meta.TimeWindow,
			Depth:      st.Meta.Depth,
		}
		s.index[key] = append(s.index[key], st)
	}

	for key := range s.index {
		candidates := s.index[key]
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].Meta.Priority != candidates[j].Meta.Priority {
				return candidates[i].Meta.Priority > candidates[j].Meta.Priority
			}
			return candidates[i].Meta.Slug < candidates[j].Meta.Slug
		})
		s.index[key] = candidates
	}

	return s
}

// cache holds the current snapshot behind an atomic pointer so readers never
// block on a refresh in progress.
type cache struct {
	current atomic.Pointer[snapshot]
}

func newCache() *cache {
	c := &cache{}
	c.current.Store(newSnapshot(nil))
	return c
}

func (c *cache) replace(strategies []model.Strategy) {
	c.current.Store(newSnapshot(strategies))
}

func (c *cache) getBySlug(slug string) (model.Strategy, bool) {
	snap := c.current.Load()
	st, ok := snap.bySlug[slug]
	return st, ok
}

// selectSlug returns the highest-priority strategy (ties broken
// lexicographically by slug) registered for the given index key.
func (c *cache) selectSlug(key model.StrategyIndexKey) (string, bool) {
	snap := c.current.Load()
	candidates := snap.index[key]
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[0].Meta.Slug, true
}

func (c *cache) empty() bool {
	snap := c.current.Load()
	return len(snap.bySlug) == 0
}
