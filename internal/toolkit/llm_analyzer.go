package toolkit

import (
	"context"
	"fmt"

	"scoutline.dev/orchestrator/common/llm"
	"scoutline.dev/orchestrator/internal/model"
)

type llmAnalyzerAdapter struct {
	client llm.Client
}

// NewLLMAnalyzerAdapter builds the "llm_analyzer" adapter, exposing a single
// "call" method that runs a strategy-supplied prompt through a structured
// JSON-schema completion and hands the parsed object back as a save_as
// value, or as sentinel evidence when the step asks for evidence output.
func NewLLMAnalyzerAdapter(client llm.Client) Adapter {
	return &llmAnalyzerAdapter{client: client}
}

func (a *llmAnalyzerAdapter) Name() string { return "llm_analyzer" }

func (a *llmAnalyzerAdapter) Methods() map[string]bool {
	return map[string]bool{"call": true}
}

func (a *llmAnalyzerAdapter) Invoke(ctx context.Context, method string, inputs map[string]any) (Result, error) {
	systemPrompt, _ := inputs["system_prompt"].(string)
	userPrompt, _ := inputs["prompt"].(string)
	if userPrompt == "" {
		return Result{}, model.NewFatalError(model.ErrStrategyError, fmt.Errorf("llm_analyzer.%s: missing required input %q", method, "prompt"))
	}

	schemaName, _ := inputs["schema_name"].(string)
	if schemaName == "" {
		schemaName = "llm_analyzer_result"
	}
	schema, ok := inputs["schema"]
	if !ok {
		return Result{}, model.NewFatalError(model.ErrStrategyError, fmt.Errorf("llm_analyzer.%s: missing required input %q", method, "schema"))
	}

	var result map[string]any
	resp, err := a.client.Chat(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		SchemaName:   schemaName,
		Schema:       schema,
	}, &result)
	if err != nil {
		if llm.IsRetryable(ctx, err) {
			return Result{}, model.NewRetryableError(model.ErrAdapterRetryable, fmt.Errorf("llm_analyzer: %w", err))
		}
		return Result{}, model.NewFatalError(model.ErrProviderUnavailable, fmt.Errorf("llm_analyzer: %w", err))
	}
	_ = resp

	asEvidence, _ := inputs["as_evidence"].(bool)
	if asEvidence {
		snippet := fmt.Sprintf("%v", result["summary"])
		return Result{Evidence: []model.Evidence{{
			Tool:    model.ToolLLMAnalysisResult,
			Snippet: snippet,
		}}}, nil
	}

	return Result{Value: result}, nil
}
