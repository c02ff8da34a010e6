package fill

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"scoutline.dev/orchestrator/common/llm"
	"scoutline.dev/orchestrator/internal/model"
)

const systemPrompt = `You fill in missing step inputs for one step of a research plan. Given the
overall research task, the current variables, and the step's description,
respond with a JSON object containing exactly the requested keys — no more,
no fewer.`

// MaterializePlan deep-copies the strategy's tool_chain into a runtime_plan,
// invoking client once per step that declares llm_fill to populate
// exactly those input keys.
func MaterializePlan(ctx context.Context, client llm.Client, strategy model.Strategy, vars map[string]string, tasks []string) ([]model.ToolStep, error) {
	plan := deepCopyToolChain(strategy.ToolChain)

	for i := range plan {
		step := &plan[i]
		if len(step.LLMFill) == 0 {
			continue
		}

		filled, err := fillStepInputs(ctx, client, *step, vars, tasks)
		if err != nil {
			return nil, model.NewFatalError(model.ErrFillFailed, fmt.Errorf("fill step %d (%s): %w", i, step.Description, err))
		}

		if step.Inputs == nil {
			step.Inputs = map[string]any{}
		}
		for key, value := range filled {
			step.Inputs[key] = value
		}
	}

	return plan, nil
}

func fillStepInputs(ctx context.Context, client llm.Client, step model.ToolStep, vars map[string]string, tasks []string) (map[string]string, error) {
	properties := make(map[string]any, len(step.LLMFill))
	for _, key := range step.LLMFill {
		properties[key] = map[string]any{"type": "string"}
	}
	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             step.LLMFill,
		"additionalProperties": false,
	}

	userPrompt := fmt.Sprintf(
		"Tasks: %s\nVariables: %s\nStep: %s\nFill exactly these keys: %v",
		strings.Join(tasks, "; "), mustJSON(vars), step.Description, step.LLMFill,
	)

	var result map[string]string
	if _, err := client.Chat(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		SchemaName:   "step_fill",
		Schema:       schema,
		Temperature:  llm.Temp(0),
	}, &result); err != nil {
		return nil, fmt.Errorf("llm fill call: %w", err)
	}

	if len(result) != len(step.LLMFill) {
		return nil, fmt.Errorf("expected exactly %d keys, got %d", len(step.LLMFill), len(result))
	}
	for _, key := range step.LLMFill {
		if _, ok := result[key]; !ok {
			return nil, fmt.Errorf("missing required llm_fill key %q", key)
		}
	}

	return result, nil
}

func deepCopyToolChain(steps []model.ToolStep) []model.ToolStep {
	out := make([]model.ToolStep, len(steps))
	for i, step := range steps {
		out[i] = step
		out[i].Params = deepCopyAnyMap(step.Params)
		out[i].Inputs = deepCopyAnyMap(step.Inputs)
		out[i].LLMFill = append([]string(nil), step.LLMFill...)
	}
	return out
}

func deepCopyAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
