// Package research implements the research phase: fan-out iteration over a
// strategy's runtime_plan, sequential step dispatch through the tool adapter
// registry, and evidence accumulation.
package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"scoutline.dev/orchestrator/common/llm"
	"scoutline.dev/orchestrator/common/logger"
	"scoutline.dev/orchestrator/internal/evidence"
	"scoutline.dev/orchestrator/internal/model"
	"scoutline.dev/orchestrator/internal/template"
	"scoutline.dev/orchestrator/internal/toolkit"
)

const defaultMinRefineThreshold = 3

// Executor runs a strategy's materialized runtime_plan against the tool
// adapter registry.
type Executor struct {
	Registry           *toolkit.Registry
	RefineLLM          llm.Client // optional; refinement is skipped if nil
	AdapterTimeout     time.Duration
	MinRefineThreshold int
}

// Run executes every fan-out iteration of plan sequentially and returns the
// accumulated, filtered ResearchState. Per-step failures are recorded in
// errorsOut and do not abort the workflow; only an empty final evidence set
// (NO_EVIDENCE) or a fan_out=task strategy with no tasks is fatal.
func (e *Executor) Run(ctx context.Context, strategy model.Strategy, plan []model.ToolStep, vars map[string]any, tasks []string) (model.ResearchState, []string, error) {
	threshold := e.MinRefineThreshold
	if threshold <= 0 {
		threshold = defaultMinRefineThreshold
	}

	if strategy.FanOut.Mode == model.FanOutTask && len(tasks) == 0 {
		return model.ResearchState{}, nil, model.NewFatalError(model.ErrNoEvidence, fmt.Errorf("research: fan_out=task strategy has no tasks"))
	}

	iterations := buildIterations(strategy.FanOut, vars, tasks)

	store := evidence.NewStore()
	var errorsOut []string

	for _, iter := range iterations {
		e.runIteration(ctx, plan, vars, iter, store, threshold, &errorsOut)
	}

	filtered := evidence.Filter(store.All(), strategy.Limits.MaxResults)
	if len(filtered) == 0 {
		return model.ResearchState{}, errorsOut, model.NewFatalError(model.ErrNoEvidence, fmt.Errorf("research: no evidence collected across %d iterations", len(iterations)))
	}

	return model.ResearchState{
		Tasks:    tasks,
		Queries:  strategy.Queries,
		Evidence: filtered,
	}, errorsOut, nil
}

func (e *Executor) runIteration(ctx context.Context, plan []model.ToolStep, vars map[string]any, iter iteration, store *evidence.Store, threshold int, errorsOut *[]string) {
	refineOverride := map[int]string{}

	for idx, step := range plan {
		e.runStep(ctx, idx, plan, step, vars, iter, store, threshold, errorsOut, refineOverride)
	}
}

// runStep executes one tool_chain entry under its own research.step span,
// tagged with the step's position and resolved dispatch target so a trace
// backend can line up a slow or failing step with the strategy YAML that
// produced it.
func (e *Executor) runStep(ctx context.Context, idx int, plan []model.ToolStep, step model.ToolStep, vars map[string]any, iter iteration, store *evidence.Store, threshold int, errorsOut *[]string, refineOverride map[int]string) {
	sc := logger.StartSpan(ctx, "research.step", trace.WithAttributes(
		attribute.Int("step_index", idx),
		attribute.String("use", resolvedStepUse(step)),
		attribute.String("name", step.Name),
	))
	defer sc.End()
	ctx = sc.Context()

	stepCtx := mergeContexts(vars, iter.bindings)

	if step.When != "" {
		ok, err := evalWhen(step.When, stepCtx)
		if err != nil {
			slog.WarnContext(ctx, "when expression failed to evaluate, running step", "step", step.Description, "error", err)
		} else if !ok {
			return
		}
	}

	if step.Foreach != "" {
		e.runForeachStep(ctx, step, stepCtx, vars, store, errorsOut)
		return
	}

	inputs := renderedInputs(step, stepCtx)
	if override, ok := refineOverride[idx]; ok {
		inputs["query"] = override
	}

	result, err := e.dispatch(ctx, step, inputs)
	yielded := len(result.Evidence)

	if err != nil {
		sc.RecordError(err)
		*errorsOut = append(*errorsOut, fmt.Sprintf("step %q: %v", step.Description, err))
		yielded = 0
	} else {
		e.bindResult(step, result, vars)
		e.accumulateEvidence(ctx, result, store)
	}

	if isLegacySearchStep(step) && yielded < threshold && idx+1 < len(plan) && isSearchStep(plan[idx+1]) {
		nextInputs := renderedInputs(plan[idx+1], stepCtx)
		if query, ok := nextInputs["query"].(string); ok {
			refineOverride[idx+1] = refineQuery(ctx, e.RefineLLM, query, yielded)
		}
	}
}

// resolvedStepUse returns the provider.method dispatch target a step will
// actually hit: the extended use string as written, or the legacy name's
// mapping through legacyDispatch (falling back to the raw name if
// unmapped, which dispatch itself will reject).
func resolvedStepUse(step model.ToolStep) string {
	if step.Kind != model.StepLegacy {
		return step.Use
	}
	if mapped, ok := legacyDispatch[step.Name]; ok {
		return mapped
	}
	return step.Name
}

func (e *Executor) runForeachStep(ctx context.Context, step model.ToolStep, stepCtx map[string]any, vars map[string]any, store *evidence.Store, errorsOut *[]string) {
	seq, ok := lookupPath(stepCtx, step.Foreach)
	if !ok {
		*errorsOut = append(*errorsOut, fmt.Sprintf("step %q: foreach path %q not found", step.Description, step.Foreach))
		return
	}
	elements, ok := toSequence(seq)
	if !ok {
		*errorsOut = append(*errorsOut, fmt.Sprintf("step %q: foreach path %q is not a sequence", step.Description, step.Foreach))
		return
	}

	for _, item := range elements {
		itemCtx := mergeContexts(stepCtx, map[string]any{"_item": item})
		inputs := renderedInputs(step, itemCtx)

		result, err := e.dispatch(ctx, step, inputs)
		if err != nil {
			*errorsOut = append(*errorsOut, fmt.Sprintf("step %q (foreach item): %v", step.Description, err))
			continue
		}

		if step.SaveAs != "" {
			seq, _ := vars[step.SaveAs].([]any)
			vars[step.SaveAs] = append(seq, result.Value)
		}
		e.accumulateEvidence(ctx, result, store)
	}
}

func (e *Executor) dispatch(ctx context.Context, step model.ToolStep, inputs map[string]any) (toolkit.Result, error) {
	use := step.Use
	if step.Kind == model.StepLegacy {
		mapped, ok := legacyDispatch[step.Name]
		if !ok {
			return toolkit.Result{}, model.NewFatalError(model.ErrStrategyError, fmt.Errorf("no legacy dispatch mapping for step name %q", step.Name))
		}
		use = mapped
	}

	timeout := e.AdapterTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return e.Registry.Dispatch(ctx, use, inputs, timeout)
}

func (e *Executor) bindResult(step model.ToolStep, result toolkit.Result, vars map[string]any) {
	if step.SaveAs == "" {
		return
	}
	if result.Value != nil {
		vars[step.SaveAs] = result.Value
		return
	}
	if result.Evidence != nil {
		vars[step.SaveAs] = result.Evidence
	}
}

func (e *Executor) accumulateEvidence(ctx context.Context, result toolkit.Result, store *evidence.Store) {
	if !result.IsEvidence() {
		return
	}

	normalized := make([]model.Evidence, 0, len(result.Evidence))
	for _, raw := range result.Evidence {
		norm, err := evidence.Normalize(raw)
		if err != nil {
			slog.WarnContext(ctx, "dropping invalid evidence record", "error", err)
			continue
		}
		normalized = append(normalized, norm)
	}
	store.Merge(normalized)
}

func isLegacySearchStep(step model.ToolStep) bool {
	return step.Kind == model.StepLegacy && strings.Contains(step.Name, "search")
}

// isSearchStep reports whether step is "a search", legacy or extended: a
// legacy step whose name mentions search, or an extended step whose
// provider.method use string mentions search in the method half (so
// exa.search qualifies as a fallback target even though it isn't legacy).
func isSearchStep(step model.ToolStep) bool {
	if step.Kind == model.StepLegacy {
		return strings.Contains(step.Name, "search")
	}
	method := step.Use
	if _, m, ok := strings.Cut(step.Use, "."); ok {
		method = m
	}
	return strings.Contains(method, "search")
}

func renderedInputs(step model.ToolStep, ctx map[string]any) map[string]any {
	source := step.Inputs
	if step.Kind == model.StepLegacy {
		source = step.Params
	}

	out := make(map[string]any, len(source))
	for k, v := range source {
		if s, ok := v.(string); ok {
			rendered, warnings := template.Render(s, ctx)
			for _, w := range warnings {
				slog.Debug("template render warning", "step", step.Description, "warning", w)
			}
			out[k] = rendered
			continue
		}
		out[k] = v
	}
	return out
}

func mergeContexts(base map[string]any, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}
