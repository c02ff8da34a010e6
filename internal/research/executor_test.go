package research_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"scoutline.dev/orchestrator/common/llm"
	"scoutline.dev/orchestrator/internal/model"
	"scoutline.dev/orchestrator/internal/research"
	"scoutline.dev/orchestrator/internal/toolkit"
)

func TestResearch(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "research executor suite")
}

// scriptedAdapter yields a fixed, queued sequence of results per method
// invocation and records every inputs map it was called with.
type scriptedAdapter struct {
	name    string
	methods map[string]bool
	queue   map[string][]toolkit.Result
	calls   map[string][]map[string]any
}

func newScriptedAdapter(name string, methods ...string) *scriptedAdapter {
	methodSet := map[string]bool{}
	for _, m := range methods {
		methodSet[m] = true
	}
	return &scriptedAdapter{
		name:    name,
		methods: methodSet,
		queue:   map[string][]toolkit.Result{},
		calls:   map[string][]map[string]any{},
	}
}

func (a *scriptedAdapter) Name() string             { return a.name }
func (a *scriptedAdapter) Methods() map[string]bool { return a.methods }

func (a *scriptedAdapter) Invoke(_ context.Context, method string, inputs map[string]any) (toolkit.Result, error) {
	a.calls[method] = append(a.calls[method], inputs)
	queue := a.queue[method]
	if len(queue) == 0 {
		return toolkit.Result{Evidence: []model.Evidence{}}, nil
	}
	result := queue[0]
	a.queue[method] = queue[1:]
	return result, nil
}

var evidenceSeq int

// evidenceOf builds n evidence records with distinct URLs so the
// deduplicating evidence.Store (keyed on canonical URL) keeps every one of
// them rather than collapsing repeated calls into a single entry.
func evidenceOf(n int, tool string) []model.Evidence {
	out := make([]model.Evidence, n)
	for i := range out {
		evidenceSeq++
		out[i] = model.Evidence{
			URL:   fmt.Sprintf("https://example.com/%s-%d", tool, evidenceSeq),
			Title: "x",
			Tool:  tool,
			Score: 1,
		}
	}
	return out
}

// fakeRefiner is an llm.Client that always rewrites the query to a fixed,
// recognizable string so tests can assert refinement actually ran.
type fakeRefiner struct {
	called bool
}

func (f *fakeRefiner) Model() string { return "fake-refiner" }

func (f *fakeRefiner) Chat(_ context.Context, _ llm.Request, result any) (*llm.Response, error) {
	f.called = true
	data, err := json.Marshal(map[string]string{"query": "refined query"})
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, result); err != nil {
		return nil, err
	}
	return &llm.Response{}, nil
}

var _ = Describe("Executor.Run", func() {
	var (
		sonar *scriptedAdapter
		exa   *scriptedAdapter
	)

	BeforeEach(func() {
		sonar = newScriptedAdapter("sonar", "search", "overview")
		exa = newScriptedAdapter("exa", "search")
	})

	buildRegistry := func() *toolkit.Registry {
		registry := toolkit.NewRegistry()
		registry.Register(sonar)
		registry.Register(exa)
		return registry
	}

	It("refines the next search step's query when a legacy search step under-yields", func() {
		sonar.queue["search"] = []toolkit.Result{{Evidence: evidenceOf(1, "sonar")}}
		exa.queue["search"] = []toolkit.Result{{Evidence: evidenceOf(5, "exa")}}

		refiner := &fakeRefiner{}
		exec := &research.Executor{
			Registry:           buildRegistry(),
			RefineLLM:          refiner,
			AdapterTimeout:     time.Second,
			MinRefineThreshold: 3,
		}

		strategyDef := model.Strategy{
			FanOut: model.FanOut{Mode: model.FanOutNone},
			ToolChain: []model.ToolStep{
				{Kind: model.StepLegacy, Name: "sonar_search", Params: map[string]any{"query": "widgets news"}},
				{Kind: model.StepExtended, Use: "exa.search", Inputs: map[string]any{"query": "widgets news fallback"}},
			},
			Limits: model.Limits{MaxResults: 50},
		}

		researched, errorsOut, err := exec.Run(context.Background(), strategyDef, strategyDef.ToolChain, map[string]any{}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(errorsOut).To(BeEmpty())
		Expect(researched.Evidence).To(HaveLen(6))

		Expect(refiner.called).To(BeTrue())
		Expect(exa.calls["search"]).To(HaveLen(1))
		Expect(exa.calls["search"][0]["query"]).To(Equal("refined query"))
	})

	It("does not refine when the current step already yields enough evidence", func() {
		sonar.queue["search"] = []toolkit.Result{{Evidence: evidenceOf(5, "sonar")}}
		exa.queue["search"] = []toolkit.Result{{Evidence: evidenceOf(2, "exa")}}

		refiner := &fakeRefiner{}
		exec := &research.Executor{
			Registry:           buildRegistry(),
			RefineLLM:          refiner,
			AdapterTimeout:     time.Second,
			MinRefineThreshold: 3,
		}

		strategyDef := model.Strategy{
			FanOut: model.FanOut{Mode: model.FanOutNone},
			ToolChain: []model.ToolStep{
				{Kind: model.StepLegacy, Name: "sonar_search", Params: map[string]any{"query": "widgets news"}},
				{Kind: model.StepExtended, Use: "exa.search", Inputs: map[string]any{"query": "widgets news fallback"}},
			},
			Limits: model.Limits{MaxResults: 50},
		}

		_, _, err := exec.Run(context.Background(), strategyDef, strategyDef.ToolChain, map[string]any{}, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(refiner.called).To(BeFalse())
		Expect(exa.calls["search"][0]["query"]).To(Equal("widgets news fallback"))
	})

	It("does not refine a legacy step whose name does not mention search, even if it under-yields", func() {
		sonar.queue["overview"] = []toolkit.Result{{Evidence: evidenceOf(1, "sonar")}}
		exa.queue["search"] = []toolkit.Result{{Evidence: evidenceOf(2, "exa")}}

		refiner := &fakeRefiner{}
		exec := &research.Executor{
			Registry:           buildRegistry(),
			RefineLLM:          refiner,
			AdapterTimeout:     time.Second,
			MinRefineThreshold: 3,
		}

		strategyDef := model.Strategy{
			FanOut: model.FanOut{Mode: model.FanOutNone},
			ToolChain: []model.ToolStep{
				{Kind: model.StepLegacy, Name: "sonar_overview", Params: map[string]any{"query": "widgets news"}},
				{Kind: model.StepExtended, Use: "exa.search", Inputs: map[string]any{"query": "widgets news fallback"}},
			},
			Limits: model.Limits{MaxResults: 50},
		}

		_, _, err := exec.Run(context.Background(), strategyDef, strategyDef.ToolChain, map[string]any{}, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(refiner.called).To(BeFalse())
		Expect(exa.calls["search"][0]["query"]).To(Equal("widgets news fallback"))
	})

	It("fans out over tasks and accumulates evidence across iterations", func() {
		sonar.queue["search"] = []toolkit.Result{
			{Evidence: evidenceOf(2, "sonar")},
			{Evidence: evidenceOf(2, "sonar")},
		}

		exec := &research.Executor{
			Registry:       buildRegistry(),
			AdapterTimeout: time.Second,
		}

		strategyDef := model.Strategy{
			FanOut: model.FanOut{Mode: model.FanOutTask},
			ToolChain: []model.ToolStep{
				{Kind: model.StepLegacy, Name: "sonar_search", Params: map[string]any{"query": "{{topic}}"}},
			},
			Limits: model.Limits{MaxResults: 50},
		}

		researched, _, err := exec.Run(context.Background(), strategyDef, strategyDef.ToolChain, map[string]any{}, []string{"widgets", "gadgets"})
		Expect(err).NotTo(HaveOccurred())
		Expect(researched.Tasks).To(Equal([]string{"widgets", "gadgets"}))
		Expect(researched.Evidence).To(HaveLen(4))
	})

	It("fails with NO_EVIDENCE when a task fan-out strategy has no tasks", func() {
		exec := &research.Executor{Registry: buildRegistry(), AdapterTimeout: time.Second}
		strategyDef := model.Strategy{FanOut: model.FanOut{Mode: model.FanOutTask}}

		_, _, err := exec.Run(context.Background(), strategyDef, nil, map[string]any{}, nil)
		Expect(err).To(HaveOccurred())

		var wfErr *model.WorkflowError
		Expect(errors.As(err, &wfErr)).To(BeTrue())
		Expect(wfErr.Kind).To(Equal(model.ErrNoEvidence))
	})
})
