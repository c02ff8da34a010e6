package qc

import (
	"context"
	"fmt"
	"log/slog"

	"scoutline.dev/orchestrator/common/llm"
	"scoutline.dev/orchestrator/internal/model"
)

const groundingSchemaName = "grounding_check"

const groundingSystemPrompt = `You audit a research report against the evidence it was built from. Flag any
claim that is not supported by the evidence, and any internal contradiction
between sections. Respond only via the given schema.`

// GroundingResult is the LLM's structured verdict on whether the report's
// claims are supported by the evidence it cites.
type GroundingResult struct {
	Grounded        bool     `json:"grounded"`
	Warnings        []string `json:"warnings"`
	Inconsistencies []string `json:"inconsistencies"`
}

// GroundingCheck asks an LLM whether the report is consistent with its
// evidence. It never fails the caller: any error (missing key, malformed
// response, timeout) degrades to a permissive result carrying the failure as
// a warning, so QC stays advisory-only.
func GroundingCheck(ctx context.Context, client llm.Client, write model.WriteState, records []model.Evidence) GroundingResult {
	if client == nil {
		return GroundingResult{Grounded: true}
	}

	userPrompt := fmt.Sprintf("Report sections:\n%s\n\nEvidence:\n%s", joinSections(write.Sections), summarizeEvidence(records))

	var result GroundingResult
	_, err := client.Chat(ctx, llm.Request{
		SystemPrompt: groundingSystemPrompt,
		UserPrompt:   userPrompt,
		SchemaName:   groundingSchemaName,
		Schema:       llm.GenerateSchema[GroundingResult](),
		Temperature:  llm.Temp(0),
	}, &result)
	if err != nil {
		slog.WarnContext(ctx, "qc: grounding check failed, defaulting to grounded", "error", err)
		return GroundingResult{
			Grounded: true,
			Warnings: []string{fmt.Sprintf("grounding check unavailable: %v", err)},
		}
	}

	return result
}

func joinSections(sections []string) string {
	out := ""
	for _, s := range sections {
		out += s + "\n\n"
	}
	return out
}

func summarizeEvidence(records []model.Evidence) string {
	out := ""
	for _, e := range records {
		out += fmt.Sprintf("- %s | %s | %s\n", e.Title, e.URL, e.Snippet)
	}
	return out
}
