package finalize_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"scoutline.dev/orchestrator/common/llm"
	"scoutline.dev/orchestrator/internal/finalize"
	"scoutline.dev/orchestrator/internal/model"
	"scoutline.dev/orchestrator/internal/toolkit"
)

func TestFinalize(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "finalize suite")
}

var _ = Describe("SplitSections and DedupeSections", func() {
	It("splits on ## headings and drops an exact repeat", func() {
		report := "## Summary\nwidgets are up\n\n## Summary\nwidgets are up\n\n## Sources\nhttps://example.com/a"
		sections := finalize.DedupeSections(finalize.SplitSections(report))
		Expect(sections).To(HaveLen(2))
	})

	It("treats a report with no heading as a single section", func() {
		sections := finalize.SplitSections("just a paragraph, no headings here")
		Expect(sections).To(Equal([]string{"just a paragraph, no headings here"}))
	})
})

var _ = Describe("BuildCitations", func() {
	It("includes only evidence whose URL is actually referenced in the text", func() {
		sections := []string{"## Summary\nSee https://example.com/a for detail."}
		records := []model.Evidence{
			{URL: "https://example.com/a", Title: "A", Tool: "exa"},
			{URL: "https://example.com/b", Title: "B", Tool: "exa"},
		}

		citations := finalize.BuildCitations(sections, records)
		Expect(citations).To(HaveLen(1))
		Expect(citations[0]).To(ContainSubstring("https://example.com/a"))
	})

	It("dedupes citations that differ only by a stripped tracking parameter", func() {
		sections := []string{"## Summary\nSee https://example.com/a?utm_source=x for detail."}
		records := []model.Evidence{
			{URL: "https://example.com/a?utm_source=x", Title: "A", Tool: "exa"},
			{URL: "https://example.com/a", Title: "A dup", Tool: "exa"},
		}

		citations := finalize.BuildCitations(sections, records)
		Expect(citations).To(HaveLen(1))
	})
})

// fakeSynthesizerAgent drives a Synthesizer's reactive or non-reactive turn
// from a scripted response queue.
type fakeSynthesizerAgent struct {
	responses []llm.AgentResponse
	calls     int
}

func (f *fakeSynthesizerAgent) ChatWithTools(_ context.Context, _ llm.AgentRequest) (*llm.AgentResponse, error) {
	resp := f.responses[f.calls]
	f.calls++
	return &resp, nil
}

func (f *fakeSynthesizerAgent) Model() string { return "fake-finalize-agent" }

// fakeFinalizeAdapter always yields one evidence record for any reactive
// tool call the synthesizer makes.
type fakeFinalizeAdapter struct{}

func (fakeFinalizeAdapter) Name() string             { return "fake" }
func (fakeFinalizeAdapter) Methods() map[string]bool { return map[string]bool{"search": true} }
func (fakeFinalizeAdapter) Invoke(_ context.Context, _ string, _ map[string]any) (toolkit.Result, error) {
	return toolkit.Result{Evidence: []model.Evidence{
		{URL: "https://example.com/fresh", Title: "Fresh", Tool: "fake", Score: 1},
	}}, nil
}

var _ = Describe("Synthesizer.Run", func() {
	It("synthesizes a non-reactive report from a single agent turn", func() {
		agent := &fakeSynthesizerAgent{responses: []llm.AgentResponse{
			{Content: "## Summary\nWidgets are up, see https://example.com/a."},
		}}
		synth := &finalize.Synthesizer{Agent: agent, Registry: toolkit.NewRegistry()}

		write, err := synth.Run(context.Background(), model.Strategy{
			Finalize: &model.FinalizeSpec{Reactive: false, Instructions: "Write a brief."},
		}, []model.Evidence{{URL: "https://example.com/a", Title: "A", Tool: "exa"}})

		Expect(err).NotTo(HaveOccurred())
		Expect(write.Sections).To(HaveLen(1))
		Expect(write.Citations).To(HaveLen(1))
	})

	It("drives the reactive loop through one tool call before emit_report", func() {
		registry := toolkit.NewRegistry()
		registry.Register(fakeFinalizeAdapter{})

		agent := &fakeSynthesizerAgent{responses: []llm.AgentResponse{
			{ToolCalls: []llm.ToolCall{{ID: "1", Name: "fake__search", Arguments: `{"query":"widgets"}`}}},
			{ToolCalls: []llm.ToolCall{{ID: "2", Name: "emit_report", Arguments: `{"report":"## Summary\nSee https://example.com/fresh."}`}}},
		}}

		synth := &finalize.Synthesizer{Agent: agent, Registry: registry, AdapterTimeout: time.Second}

		write, err := synth.Run(context.Background(), model.Strategy{
			Finalize: &model.FinalizeSpec{Reactive: true, MaxIterations: 4},
		}, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(agent.calls).To(Equal(2))
		Expect(write.Sections).To(HaveLen(1))
		Expect(write.Citations).To(HaveLen(1))
	})

	It("fails when the reactive loop exhausts max_iterations without emit_report", func() {
		registry := toolkit.NewRegistry()
		registry.Register(fakeFinalizeAdapter{})

		agent := &fakeSynthesizerAgent{responses: []llm.AgentResponse{
			{ToolCalls: []llm.ToolCall{{ID: "1", Name: "fake__search", Arguments: `{"query":"a"}`}}},
			{ToolCalls: []llm.ToolCall{{ID: "2", Name: "fake__search", Arguments: `{"query":"b"}`}}},
		}}

		synth := &finalize.Synthesizer{Agent: agent, Registry: registry, AdapterTimeout: time.Second}

		_, err := synth.Run(context.Background(), model.Strategy{
			Finalize: &model.FinalizeSpec{Reactive: true, MaxIterations: 2},
		}, nil)

		Expect(err).To(HaveOccurred())
	})
})
