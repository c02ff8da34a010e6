package qc

import (
	"context"
	"time"

	"scoutline.dev/orchestrator/common/llm"
	"scoutline.dev/orchestrator/internal/model"
)

// Checker runs QC against a synthesized report. GroundingClient may be nil,
// in which case the grounding check is skipped (treated as grounded).
type Checker struct {
	GroundingClient llm.Client
}

// Run applies the mechanical checks unconditionally and the LLM grounding
// check when a client is configured, merging all findings into write's
// Warnings. QC never rejects a result: it only annotates it.
func (c *Checker) Run(ctx context.Context, strategy model.Strategy, write model.WriteState, records []model.Evidence) model.WriteState {
	out := write
	out.Warnings = append(append([]string(nil), out.Warnings...), MechanicalChecks(strategy, write, time.Now())...)

	grounding := GroundingCheck(ctx, c.GroundingClient, write, records)
	out.Warnings = append(out.Warnings, grounding.Warnings...)
	if !grounding.Grounded {
		out.Warnings = append(out.Warnings, "grounding check flagged unsupported claims")
	}
	out.Warnings = append(out.Warnings, grounding.Inconsistencies...)

	return out
}
