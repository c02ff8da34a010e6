package finalize

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"scoutline.dev/orchestrator/common/llm"
	"scoutline.dev/orchestrator/internal/evidence"
	"scoutline.dev/orchestrator/internal/model"
	"scoutline.dev/orchestrator/internal/toolkit"
)

const (
	defaultMaxIterations = 6
	evidenceSnippetLen   = 300
	topEvidenceForPrompt = 40
)

const emitReportTool = "emit_report"

const nonReactiveSystemPrompt = `You write a cited research report in markdown. Use "## " headings to divide
the report into sections. Cite sources inline by URL; do not invent sources
beyond the evidence provided.`

const reactiveSystemPrompt = `You are compiling a cited research report. You may call the provided tools
to gather more evidence, or call emit_report once you have enough to write
the final cited markdown report (use "## " headings for sections).`

// Synthesizer produces state.Write from accumulated evidence, in the mode
// selected by the strategy's finalize.reactive flag.
type Synthesizer struct {
	Agent          llm.AgentClient
	Registry       *toolkit.Registry
	AdapterTimeout time.Duration
}

// Run synthesizes the report and returns the populated WriteState.
func (s *Synthesizer) Run(ctx context.Context, strategy model.Strategy, records []model.Evidence) (model.WriteState, error) {
	var report string
	var err error

	if strategy.Finalize != nil && strategy.Finalize.Reactive {
		report, records, err = s.runReactive(ctx, strategy, records)
	} else {
		report, err = s.runNonReactive(ctx, strategy, records)
	}
	if err != nil {
		return model.WriteState{}, err
	}

	sections := DedupeSections(SplitSections(report))
	citations := BuildCitations(sections, records)

	return model.WriteState{
		Sections:  sections,
		Citations: citations,
		Vars:      map[string]any{},
	}, nil
}

func (s *Synthesizer) runNonReactive(ctx context.Context, strategy model.Strategy, records []model.Evidence) (string, error) {
	instructions := ""
	if strategy.Finalize != nil {
		instructions = strategy.Finalize.Instructions
	}

	userPrompt := fmt.Sprintf("%s\n\nEvidence:\n%s", instructions, evidenceSummary(records))

	resp, err := s.Agent.ChatWithTools(ctx, llm.AgentRequest{
		Messages: []llm.Message{
			{Role: "system", Content: nonReactiveSystemPrompt},
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return "", model.NewRetryableError(model.ErrProviderUnavailable, fmt.Errorf("finalize: non-reactive synthesis: %w", err))
	}

	return resp.Content, nil
}

func (s *Synthesizer) runReactive(ctx context.Context, strategy model.Strategy, records []model.Evidence) (string, []model.Evidence, error) {
	maxIterations := defaultMaxIterations
	if strategy.Finalize != nil && strategy.Finalize.MaxIterations > 0 {
		maxIterations = strategy.Finalize.MaxIterations
	}

	instructions := ""
	if strategy.Finalize != nil {
		instructions = strategy.Finalize.Instructions
	}

	tools := s.buildTools()
	store := evidence.NewStore()
	store.Merge(records)

	messages := []llm.Message{
		{Role: "system", Content: reactiveSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("%s\n\nEvidence so far:\n%s", instructions, evidenceSummary(store.All()))},
	}

	var lastToolCallSignature string
	repeatedCalls := 0

	for iteration := 0; iteration < maxIterations; iteration++ {
		resp, err := s.Agent.ChatWithTools(ctx, llm.AgentRequest{Messages: messages, Tools: tools})
		if err != nil {
			return "", store.All(), model.NewRetryableError(model.ErrProviderUnavailable, fmt.Errorf("finalize: reactive iteration %d: %w", iteration, err))
		}

		for _, call := range resp.ToolCalls {
			if call.Name == emitReportTool {
				result, err := llm.ParseToolArguments[struct {
					Report string `json:"report"`
				}](call.Arguments)
				if err != nil {
					return "", store.All(), fmt.Errorf("finalize: parse emit_report: %w", err)
				}
				return result.Report, store.All(), nil
			}
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Content, store.All(), nil
		}

		signature := toolCallSignature(resp.ToolCalls)
		if signature == lastToolCallSignature {
			repeatedCalls++
		} else {
			repeatedCalls = 0
		}
		lastToolCallSignature = signature
		if repeatedCalls >= 2 {
			slog.WarnContext(ctx, "finalize: collapsing repeated identical tool calls", "signature", signature)
			return "", store.All(), fmt.Errorf("finalize: model repeated the same tool call without progress")
		}

		assistantMsg := llm.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls}
		messages = append(messages, assistantMsg)

		for _, call := range resp.ToolCalls {
			messages = append(messages, s.executeTool(ctx, call, store))
		}
	}

	return "", store.All(), fmt.Errorf("finalize: exceeded max_iterations (%d) without emit_report", maxIterations)
}

func (s *Synthesizer) buildTools() []llm.Tool {
	tools := []llm.Tool{
		{
			Name:        emitReportTool,
			Description: "Emit the final cited markdown report and terminate the loop.",
			Parameters: map[string]any{
				"type":                 "object",
				"properties":           map[string]any{"report": map[string]any{"type": "string"}},
				"required":             []string{"report"},
				"additionalProperties": false,
			},
		},
	}

	for _, adapter := range s.Registry.All() {
		for method := range adapter.Methods() {
			tools = append(tools, llm.Tool{
				Name:        toolName(adapter.Name(), method),
				Description: fmt.Sprintf("Call %s's %s method.", adapter.Name(), method),
				Parameters: map[string]any{
					"type":                 "object",
					"properties":           map[string]any{"query": map[string]any{"type": "string"}},
					"additionalProperties": true,
				},
			})
		}
	}

	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

func (s *Synthesizer) executeTool(ctx context.Context, call llm.ToolCall, store *evidence.Store) llm.Message {
	provider, method, ok := fromToolName(call.Name)
	if !ok {
		return llm.Message{Role: "tool", ToolCallID: call.ID, Content: fmt.Sprintf("error: unknown tool %q", call.Name)}
	}

	inputs, err := llm.ParseToolArguments[map[string]any](call.Arguments)
	if err != nil {
		return llm.Message{Role: "tool", ToolCallID: call.ID, Content: fmt.Sprintf("error: invalid arguments: %v", err)}
	}

	timeout := s.AdapterTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	result, err := s.Registry.Dispatch(ctx, provider+"."+method, inputs, timeout)
	if err != nil {
		return llm.Message{Role: "tool", ToolCallID: call.ID, Content: fmt.Sprintf("error: %v", err)}
	}

	if result.IsEvidence() {
		normalized := make([]model.Evidence, 0, len(result.Evidence))
		for _, raw := range result.Evidence {
			norm, err := evidence.Normalize(raw)
			if err != nil {
				continue
			}
			normalized = append(normalized, norm)
		}
		store.Merge(normalized)
		return llm.Message{Role: "tool", ToolCallID: call.ID, Content: fmt.Sprintf("retrieved %d evidence records", len(normalized))}
	}

	return llm.Message{Role: "tool", ToolCallID: call.ID, Content: fmt.Sprintf("%v", result.Value)}
}

func toolName(provider, method string) string {
	return provider + "__" + method
}

func fromToolName(name string) (provider, method string, ok bool) {
	parts := strings.SplitN(name, "__", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func toolCallSignature(calls []llm.ToolCall) string {
	parts := make([]string, len(calls))
	for i, c := range calls {
		parts[i] = c.Name + ":" + c.Arguments
	}
	return strings.Join(parts, "|")
}

func evidenceSummary(records []model.Evidence) string {
	sorted := append([]model.Evidence(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	if len(sorted) > topEvidenceForPrompt {
		sorted = sorted[:topEvidenceForPrompt]
	}

	var b strings.Builder
	for _, e := range sorted {
		snippet := e.Snippet
		if len(snippet) > evidenceSnippetLen {
			snippet = snippet[:evidenceSnippetLen]
		}
		fmt.Fprintf(&b, "- %s | %s | %s\n", e.Title, e.URL, snippet)
	}
	return b.String()
}
