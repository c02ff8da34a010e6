package scope

import (
	"context"
	"log/slog"

	"scoutline.dev/orchestrator/internal/model"
)

// ConfigVersion is mixed into the fingerprint so a prompt or strategy set
// change invalidates previously cached classifications instead of silently
// serving stale ones. Bump when the classifier's system prompt changes.
const ConfigVersion = "v1"

// Service resolves a user request to a ScopeResult, classifying with the LLM
// only on a cache miss.
type Service struct {
	classifier *Classifier
	cache      *Cache
}

// NewService builds a scope Service.
func NewService(classifier *Classifier, cache *Cache) *Service {
	return &Service{classifier: classifier, cache: cache}
}

// Resolve returns the ScopeResult for userRequest, from cache if present.
func (s *Service) Resolve(ctx context.Context, userRequest string) (model.ScopeResult, error) {
	fingerprint := Fingerprint(userRequest, ConfigVersion)

	if result, ok := s.cache.Get(ctx, fingerprint); ok {
		slog.DebugContext(ctx, "scope cache hit", "request_hash", fingerprint)
		return result, nil
	}

	result, err := s.classifier.Classify(ctx, userRequest)
	if err != nil {
		return model.ScopeResult{}, err
	}

	if err := s.cache.Put(ctx, fingerprint, result); err != nil {
		slog.WarnContext(ctx, "scope cache put failed, continuing without cache", "error", err)
	}

	return result, nil
}
