package phase_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"scoutline.dev/orchestrator/common/llm"
	"scoutline.dev/orchestrator/internal/finalize"
	"scoutline.dev/orchestrator/internal/model"
	"scoutline.dev/orchestrator/internal/phase"
	"scoutline.dev/orchestrator/internal/qc"
	"scoutline.dev/orchestrator/internal/research"
	"scoutline.dev/orchestrator/internal/scope"
	"scoutline.dev/orchestrator/internal/store"
	"scoutline.dev/orchestrator/internal/strategy"
	"scoutline.dev/orchestrator/internal/toolkit"
)

func TestPhase(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "phase engine suite")
}

const testSlug = "news/daily"

func testStrategy() model.Strategy {
	return model.Strategy{
		Meta: model.StrategyMeta{
			Slug:       testSlug,
			Category:   "news",
			TimeWindow: model.TimeWindowDay,
			Depth:      model.DepthOverview,
		},
		FanOut: model.FanOut{Mode: model.FanOutNone},
		ToolChain: []model.ToolStep{
			{Kind: model.StepExtended, Use: "fake.search", Inputs: map[string]any{"query": "{{topic}}"}, SaveAs: "results"},
		},
		Limits:            model.Limits{MaxResults: 10},
		RequiredVariables: []model.RequiredVariable{{Name: "topic"}},
		Finalize:          &model.FinalizeSpec{Reactive: false, Instructions: "Write a brief."},
	}
}

// fakeStrategyStore is the in-memory store.StrategyStore backing the engine
// test's strategy.Service, avoiding any real Postgres/Redis dependency.
type fakeStrategyStore struct {
	strategies map[string]model.Strategy
}

func (f *fakeStrategyStore) GetBySlug(_ context.Context, slug string) (*model.Strategy, error) {
	st, ok := f.strategies[slug]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &st, nil
}

func (f *fakeStrategyStore) ListActive(_ context.Context) ([]model.Strategy, error) {
	out := make([]model.Strategy, 0, len(f.strategies))
	for _, st := range f.strategies {
		out = append(out, st)
	}
	return out, nil
}

func (f *fakeStrategyStore) Upsert(_ context.Context, st *model.Strategy) error {
	f.strategies[st.Meta.Slug] = *st
	return nil
}

func (f *fakeStrategyStore) Deactivate(_ context.Context, slug string) error {
	delete(f.strategies, slug)
	return nil
}

func (f *fakeStrategyStore) Count(_ context.Context) (int, error) {
	return len(f.strategies), nil
}

// fakeScopeCacheStore is the no-op Postgres fallback tier for scope.Cache.
type fakeScopeCacheStore struct{}

func (fakeScopeCacheStore) Get(_ context.Context, _ string) (*model.ScopeClassification, error) {
	return nil, store.ErrNotFound
}

func (fakeScopeCacheStore) Put(_ context.Context, _ model.ScopeClassification) error {
	return nil
}

// fakeAgentClient drives both the scope classifier's forced set_scope call
// and finalize's non-reactive synthesis call from a scripted response queue.
type fakeAgentClient struct {
	responses []llm.AgentResponse
	calls     int
}

func (f *fakeAgentClient) ChatWithTools(_ context.Context, _ llm.AgentRequest) (*llm.AgentResponse, error) {
	resp := f.responses[f.calls]
	f.calls++
	return &resp, nil
}

func (f *fakeAgentClient) Model() string { return "fake-agent" }

func scopeToolCall(result model.ScopeResult) llm.AgentResponse {
	args, err := json.Marshal(result)
	Expect(err).NotTo(HaveOccurred())
	return llm.AgentResponse{
		ToolCalls: []llm.ToolCall{{ID: "1", Name: "set_scope", Arguments: string(args)}},
	}
}

// fakeSearchAdapter is a toolkit.Adapter that always yields one evidence
// record, enough to satisfy research's non-empty-evidence invariant.
type fakeSearchAdapter struct{}

func (fakeSearchAdapter) Name() string                      { return "fake" }
func (fakeSearchAdapter) Methods() map[string]bool           { return map[string]bool{"search": true} }
func (fakeSearchAdapter) Invoke(_ context.Context, _ string, _ map[string]any) (toolkit.Result, error) {
	return toolkit.Result{Evidence: []model.Evidence{
		{URL: "https://example.com/a", Title: "A development", Snippet: "something happened", Tool: "fake", Score: 1},
	}}, nil
}

var _ = Describe("Engine.Run", func() {
	var (
		engine    *phase.Engine
		agent     *fakeAgentClient
		threadID  string
		scopeResp model.ScopeResult
	)

	BeforeEach(func() {
		threadID = "thread-1"
		scopeResp = model.ScopeResult{
			StrategySlug: testSlug,
			Category:     "news",
			TimeWindow:   model.TimeWindowDay,
			Depth:        model.DepthOverview,
			Tasks:        []string{"brief me on widgets"},
			Variables:    map[string][]string{"topic": {"widgets"}},
		}

		strategies := strategy.NewService(&fakeStrategyStore{strategies: map[string]model.Strategy{testSlug: testStrategy()}}, nil, "", "")
		Expect(strategies.Warm(context.Background())).To(Succeed())

		agent = &fakeAgentClient{responses: []llm.AgentResponse{
			scopeToolCall(scopeResp),
			{Content: "## Summary\nWidgets had a notable development.\n\n## Sources\nhttps://example.com/a"},
		}}

		classifier := scope.NewClassifier(agent, strategies)
		scopeCache := scope.NewCache(nil, fakeScopeCacheStore{}, time.Hour)
		scopeSvc := scope.NewService(classifier, scopeCache)

		registry := toolkit.NewRegistry()
		registry.Register(fakeSearchAdapter{})

		engine = &phase.Engine{
			Scope:      scopeSvc,
			Strategies: strategies,
			FillLLM:    nil,
			Research: &research.Executor{
				Registry:       registry,
				AdapterTimeout: time.Second,
			},
			Finalize: &finalize.Synthesizer{
				Agent:    agent,
				Registry: registry,
			},
			QC:          &qc.Checker{GroundingClient: nil},
			Checkpoints: phase.NewMemoryCheckpointer(),
		}
	})

	It("drives a request through scope, fill, research, finalize, and qc", func() {
		state, err := engine.Run(context.Background(), threadID, "brief me on widgets")
		Expect(err).NotTo(HaveOccurred())

		Expect(state.Scope.StrategySlug).To(Equal(testSlug))
		Expect(state.Scope.Category).To(Equal("news"))
		Expect(state.Research.Evidence).To(HaveLen(1))
		Expect(state.Research.Evidence[0].URL).To(Equal("https://example.com/a"))
		Expect(state.Write.Sections).NotTo(BeEmpty())
	})

	It("resumes from a saved checkpoint instead of re-running completed phases", func() {
		checkpoints := phase.NewMemoryCheckpointer()
		engine.Checkpoints = checkpoints

		seeded := model.NewState(threadID, "brief me on widgets")
		seeded.Scope.Category = "news"
		seeded.Scope.TimeWindow = model.TimeWindowDay
		seeded.Scope.Depth = model.DepthOverview
		seeded.Scope.StrategySlug = testSlug
		seeded.Research.Tasks = []string{"brief me on widgets"}

		Expect(checkpoints.Save(context.Background(), threadID, phase.Checkpoint{
			State: seeded,
			Next:  phase.Fill,
		})).To(Succeed())

		// Only the finalize agent call remains in the queue: scope is skipped
		// entirely on resume, so its tool-call response is never consumed.
		agent.responses = []llm.AgentResponse{
			{Content: "## Summary\nResumed run.\n\n## Sources\nhttps://example.com/a"},
		}

		state, err := engine.Run(context.Background(), threadID, "brief me on widgets")
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Scope.StrategySlug).To(Equal(testSlug))
		Expect(state.Write.Sections).NotTo(BeEmpty())
		Expect(agent.calls).To(Equal(1))
	})
})
