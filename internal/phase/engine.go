// Package phase composes the scope, fill, research, finalize, and qc
// packages into the deterministic phase state machine: sequential
// transitions, append-only State, and checkpointed resume keyed by
// thread_id.
package phase

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"scoutline.dev/orchestrator/common/llm"
	"scoutline.dev/orchestrator/common/logger"
	"scoutline.dev/orchestrator/internal/fill"
	"scoutline.dev/orchestrator/internal/finalize"
	"scoutline.dev/orchestrator/internal/model"
	"scoutline.dev/orchestrator/internal/qc"
	"scoutline.dev/orchestrator/internal/research"
	"scoutline.dev/orchestrator/internal/scope"
	"scoutline.dev/orchestrator/internal/strategy"
)

// Engine sequences one workflow invocation through scope -> fill -> research
// -> finalize -> qc -> done, checkpointing after every completed phase.
type Engine struct {
	Scope       *scope.Service
	Strategies  *strategy.Service
	FillLLM     llm.Client
	Research    *research.Executor
	Finalize    *finalize.Synthesizer
	QC          *qc.Checker
	Checkpoints Checkpointer
}

// Run resolves the checkpoint for threadID (if any) and drives the state
// machine forward to Done, returning the final State. Re-invocation with the
// same threadID after a prior full or partial run resumes from the phase
// after the last one recorded as completed; phases are idempotent under
// replay so resuming at any boundary is safe.
func (e *Engine) Run(ctx context.Context, threadID, userRequest string) (model.State, error) {
	attrs := []attribute.KeyValue{
		attribute.String("thread_id", threadID),
		attribute.String("session", threadID),
	}
	preexisting := logger.GetLogFields(ctx)
	if preexisting.User != nil {
		attrs = append(attrs, attribute.String("user", *preexisting.User))
	}
	if preexisting.Frequency != nil {
		attrs = append(attrs, attribute.String("frequency", *preexisting.Frequency))
	}

	sc := logger.StartSpan(ctx, "workflow.run", trace.WithAttributes(attrs...))
	defer sc.End()
	ctx = sc.Context()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ThreadID:  logger.Ptr(threadID),
		Component: "orchestrator.phase",
	})

	state, current, err := e.resume(ctx, threadID, userRequest)
	if err != nil {
		sc.RecordError(err)
		return state, err
	}

	for current != Done {
		ctx := logger.WithLogFields(ctx, logger.LogFields{Phase: logger.Ptr(string(current))})
		phaseSpan := logger.StartSpan(ctx, fmt.Sprintf("phase.%s", current))

		state, err = e.runOne(phaseSpan.Context(), current, state)
		if err != nil {
			phaseSpan.RecordError(err)
			phaseSpan.End()
			sc.RecordError(err)
			return state, err
		}
		phaseSpan.End()

		current = next(current)
		if err := e.Checkpoints.Save(ctx, threadID, Checkpoint{State: state, Next: current}); err != nil {
			return state, fmt.Errorf("phase: save checkpoint before %s: %w", current, err)
		}
	}

	return state, nil
}

func (e *Engine) resume(ctx context.Context, threadID, userRequest string) (model.State, Name, error) {
	if cp, ok, err := e.Checkpoints.Load(ctx, threadID); err != nil {
		return model.State{}, Scope, fmt.Errorf("phase: load checkpoint: %w", err)
	} else if ok {
		return cp.State, cp.Next, nil
	}
	return model.NewState(threadID, userRequest), Scope, nil
}

func (e *Engine) runOne(ctx context.Context, current Name, state model.State) (model.State, error) {
	switch current {
	case Scope:
		return e.runScope(ctx, state)
	case Fill:
		return e.runFill(ctx, state)
	case Research:
		return e.runResearch(ctx, state)
	case Finalize:
		return e.runFinalize(ctx, state)
	case QC:
		return e.runQC(ctx, state)
	default:
		return state, fmt.Errorf("phase: unknown phase %q", current)
	}
}

func (e *Engine) runScope(ctx context.Context, state model.State) (model.State, error) {
	result, err := e.Scope.Resolve(ctx, state.Scope.UserRequest)
	if err != nil {
		return state, err
	}

	state.Scope.Category = result.Category
	state.Scope.TimeWindow = result.TimeWindow
	state.Scope.Depth = result.Depth
	state.Scope.StrategySlug = result.StrategySlug
	state.Research.Tasks = result.Tasks
	state.Write.Vars = scopeVars(result, time.Now())

	return state, nil
}

func (e *Engine) runFill(ctx context.Context, state model.State) (model.State, error) {
	st, err := e.Strategies.Get(ctx, state.Scope.StrategySlug)
	if err != nil {
		return state, fmt.Errorf("phase: resolve strategy %q: %w", state.Scope.StrategySlug, err)
	}

	timeVars := fill.TimeWindowVars(state.Scope.TimeWindow, time.Now())
	plan, err := fill.MaterializePlan(ctx, e.FillLLM, *st, timeVars, state.Research.Tasks)
	if err != nil {
		return state, err
	}

	if state.Write.Vars == nil {
		state.Write.Vars = map[string]any{}
	}
	state.Write.Vars[runtimePlanKey] = plan

	return state, nil
}

func (e *Engine) runResearch(ctx context.Context, state model.State) (model.State, error) {
	st, err := e.Strategies.Get(ctx, state.Scope.StrategySlug)
	if err != nil {
		return state, fmt.Errorf("phase: resolve strategy %q: %w", state.Scope.StrategySlug, err)
	}

	plan, _ := state.Write.Vars[runtimePlanKey].([]model.ToolStep)

	researched, errorsOut, err := e.Research.Run(ctx, *st, plan, state.Write.Vars, state.Research.Tasks)
	if err != nil {
		return state, err
	}

	state.Research.Queries = researched.Queries
	state.Research.Evidence = append(state.Research.Evidence, researched.Evidence...)
	state.Write.Errors = append(state.Write.Errors, errorsOut...)

	return state, nil
}

func (e *Engine) runFinalize(ctx context.Context, state model.State) (model.State, error) {
	st, err := e.Strategies.Get(ctx, state.Scope.StrategySlug)
	if err != nil {
		return state, fmt.Errorf("phase: resolve strategy %q: %w", state.Scope.StrategySlug, err)
	}

	write, err := e.Finalize.Run(ctx, *st, state.Research.Evidence)
	if err != nil {
		return state, err
	}

	state.Write.Sections = append(state.Write.Sections, write.Sections...)
	state.Write.Citations = append(state.Write.Citations, write.Citations...)

	return state, nil
}

func (e *Engine) runQC(ctx context.Context, state model.State) (model.State, error) {
	st, err := e.Strategies.Get(ctx, state.Scope.StrategySlug)
	if err != nil {
		return state, fmt.Errorf("phase: resolve strategy %q: %w", state.Scope.StrategySlug, err)
	}

	state.Write = e.QC.Run(ctx, *st, state.Write, state.Research.Evidence)
	return state, nil
}

// scopeVars seeds the workflow's variable pool from the scope classifier's
// output: time-window derived strings plus the classifier's free-form
// variables, widened to []any so fan_out=var and foreach can index them.
func scopeVars(result model.ScopeResult, now time.Time) map[string]any {
	vars := make(map[string]any)
	for k, v := range fill.TimeWindowVars(result.TimeWindow, now) {
		vars[k] = v
	}
	for k, values := range result.Variables {
		seq := make([]any, len(values))
		for i, v := range values {
			seq[i] = v
		}
		vars[k] = seq
	}
	return vars
}

// runtimePlanKey stashes the materialized tool_chain in the shared vars
// bag between Fill and Research — the only two phases that need it, and
// Vars is already the designated cross-phase scratch space.
const runtimePlanKey = "__runtime_plan"
