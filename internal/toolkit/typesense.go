package toolkit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/typesense/typesense-go/v4/typesense"
	"github.com/typesense/typesense-go/v4/typesense/api"
	"github.com/typesense/typesense-go/v4/typesense/api/pointer"

	"scoutline.dev/orchestrator/internal/model"
)

// TypesenseConfig configures the internal-corpus adapter.
type TypesenseConfig struct {
	Host       string
	Port       string
	Protocol   string
	APIKey     string
	Collection string
}

type typesenseAdapter struct {
	client     *typesense.Client
	collection string
}

// NewTypesenseAdapter builds the "typesense" adapter: a supplementary
// internal-corpus search over previously collected evidence. An unreachable
// collection does not abort the workflow: the search error is retryable, ends
// as PROVIDER_UNAVAILABLE once retries run out, and the research phase
// records that as a step error and moves on.
func NewTypesenseAdapter(cfg TypesenseConfig) Adapter {
	serverURL := fmt.Sprintf("%s://%s:%s", cfg.Protocol, cfg.Host, cfg.Port)
	client := typesense.NewClient(
		typesense.WithServer(serverURL),
		typesense.WithAPIKey(cfg.APIKey),
	)
	return &typesenseAdapter{client: client, collection: cfg.Collection}
}

func (a *typesenseAdapter) Name() string { return "typesense" }

func (a *typesenseAdapter) Methods() map[string]bool {
	return map[string]bool{"search": true, "find_similar": true}
}

func (a *typesenseAdapter) Invoke(ctx context.Context, method string, inputs map[string]any) (Result, error) {
	query, _ := inputs["query"].(string)
	if query == "" {
		return Result{}, model.NewFatalError(model.ErrStrategyError, fmt.Errorf("typesense.%s: missing required input %q", method, "query"))
	}

	limit := 10
	if l, ok := inputs["limit"].(int); ok && l > 0 {
		limit = l
	}

	params := &api.SearchCollectionParams{
		Q:       query,
		QueryBy: pointer.String("title,snippet"),
		PerPage: pointer.Int(limit),
	}

	result, err := a.client.Collection(a.collection).Documents().Search(ctx, params)
	if err != nil {
		// The internal corpus is supplementary: surface a retryable error so
		// the registry's backoff gets a chance, but the research phase treats
		// an ultimately unavailable typesense collection as non-fatal.
		return Result{}, model.NewRetryableError(model.ErrAdapterRetryable, fmt.Errorf("typesense: search failed: %w", err))
	}

	return Result{Evidence: toEvidence(result)}, nil
}

func toEvidence(result *api.SearchResult) []model.Evidence {
	if result == nil || result.Hits == nil {
		return nil
	}

	out := make([]model.Evidence, 0, len(*result.Hits))
	for _, hit := range *result.Hits {
		if hit.Document == nil {
			continue
		}
		doc := *hit.Document

		e := model.Evidence{Tool: "typesense.search"}
		if v, ok := doc["url"].(string); ok {
			e.URL = v
		}
		if v, ok := doc["title"].(string); ok {
			e.Title = v
		}
		if v, ok := doc["snippet"].(string); ok {
			e.Snippet = v
		}
		if v, ok := doc["publisher"].(string); ok {
			e.Publisher = v
		}
		if v, ok := doc["published_at"].(float64); ok {
			ts := time.Unix(int64(v), 0)
			e.PublishedAt = &ts
		} else if v, ok := doc["published_at"].(string); ok {
			if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
				ts := time.Unix(unix, 0)
				e.PublishedAt = &ts
			}
		}
		out = append(out, e)
	}
	return out
}
