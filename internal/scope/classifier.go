package scope

import (
	"context"
	"fmt"
	"log/slog"

	"scoutline.dev/orchestrator/common/llm"
	"scoutline.dev/orchestrator/internal/model"
	"scoutline.dev/orchestrator/internal/strategy"
)

const setScopeToolName = "set_scope"

const systemPrompt = `You classify a research request into a category, a recency time_window
(day, week, month, year), and a depth (brief, overview, deep, comprehensive),
and break it into a small set of concrete research tasks. You must respond by
calling the set_scope tool exactly once; never respond with plain text.`

// Classifier turns a raw user request into a ScopeResult using a forced
// tool-calling LLM turn, then resolves the result's category/window/depth to
// a strategy slug.
type Classifier struct {
	llm       llm.AgentClient
	strategies *strategy.Service
}

// NewClassifier builds a Classifier.
func NewClassifier(agentClient llm.AgentClient, strategies *strategy.Service) *Classifier {
	return &Classifier{llm: agentClient, strategies: strategies}
}

// Classify runs the forced set_scope tool call and validates the resolved
// strategy's required_variables are all present in the result's Variables.
func (c *Classifier) Classify(ctx context.Context, userRequest string) (model.ScopeResult, error) {
	resp, err := c.llm.ChatWithTools(ctx, llm.AgentRequest{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userRequest},
		},
		Tools: []llm.Tool{
			{
				Name:        setScopeToolName,
				Description: "Record the classified scope of this research request.",
				Parameters:  llm.GenerateSchemaFrom(model.ScopeResult{}),
			},
		},
	})
	if err != nil {
		return model.ScopeResult{}, model.NewRetryableError(model.ErrScopeFailed, fmt.Errorf("scope classify: %w", err))
	}

	var call *llm.ToolCall
	for i := range resp.ToolCalls {
		if resp.ToolCalls[i].Name == setScopeToolName {
			call = &resp.ToolCalls[i]
			break
		}
	}
	if call == nil {
		return model.ScopeResult{}, model.NewFatalError(model.ErrScopeFailed, fmt.Errorf("scope classify: model did not call %s", setScopeToolName))
	}

	result, err := llm.ParseToolArguments[model.ScopeResult](call.Arguments)
	if err != nil {
		return model.ScopeResult{}, model.NewFatalError(model.ErrScopeFailed, fmt.Errorf("scope classify: %w", err))
	}

	if result.StrategySlug == "" {
		slug, err := c.strategies.Select(ctx, result.Category, result.TimeWindow, result.Depth)
		if err != nil {
			return model.ScopeResult{}, model.NewFatalError(model.ErrScopeFailed,
				fmt.Errorf("scope classify: no strategy for category=%q time_window=%q depth=%q: %w",
					result.Category, result.TimeWindow, result.Depth, err))
		}
		result.StrategySlug = slug
	}

	if err := c.validateRequiredVariables(ctx, result); err != nil {
		return model.ScopeResult{}, err
	}

	return result, nil
}

func (c *Classifier) validateRequiredVariables(ctx context.Context, result model.ScopeResult) error {
	st, err := c.strategies.Get(ctx, result.StrategySlug)
	if err != nil {
		return model.NewFatalError(model.ErrScopeFailed, fmt.Errorf("scope classify: resolve strategy %q: %w", result.StrategySlug, err))
	}

	var missing []string
	for _, rv := range st.RequiredVariables {
		if _, ok := result.Variables[rv.Name]; !ok {
			missing = append(missing, rv.Name)
		}
	}
	if len(missing) > 0 {
		return model.NewFatalError(model.ErrScopeFailed,
			fmt.Errorf("scope classify: strategy %q missing required variables: %v", result.StrategySlug, missing))
	}

	slog.DebugContext(ctx, "scope classified", "strategy_slug", result.StrategySlug, "category", result.Category)
	return nil
}
