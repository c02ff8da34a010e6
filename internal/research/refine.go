package research

import (
	"context"
	"fmt"
	"log/slog"

	"scoutline.dev/orchestrator/common/llm"
)

const refineSystemPrompt = `You rewrite a search query that returned too few results. Given the
original query and the reason it under-performed, respond with a single
improved query string in the "query" field — broaden or rephrase it, do not
narrow it further.`

// refineQuery rewrites the query of the search step that follows a legacy
// search step which yielded fewer than the executor's MinRefineThreshold
// evidence records. Failures here are non-fatal: the original query is kept
// and a warning is logged.
func refineQuery(ctx context.Context, client llm.Client, originalQuery string, yielded int) string {
	if client == nil {
		return originalQuery
	}

	var result struct {
		Query string `json:"query"`
	}

	schema := map[string]any{
		"type":                 "object",
		"properties":           map[string]any{"query": map[string]any{"type": "string"}},
		"required":             []string{"query"},
		"additionalProperties": false,
	}

	userPrompt := fmt.Sprintf("Original query: %q\nResults returned: %d (below threshold)", originalQuery, yielded)

	if _, err := client.Chat(ctx, llm.Request{
		SystemPrompt: refineSystemPrompt,
		UserPrompt:   userPrompt,
		SchemaName:   "query_refinement",
		Schema:       schema,
		Temperature:  llm.Temp(0.3),
	}, &result); err != nil {
		slog.WarnContext(ctx, "query refinement failed, keeping original query", "error", err)
		return originalQuery
	}

	if result.Query == "" {
		return originalQuery
	}
	return result.Query
}
