package strategy_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"scoutline.dev/orchestrator/internal/model"
	"scoutline.dev/orchestrator/internal/store"
	"scoutline.dev/orchestrator/internal/strategy"
)

func TestStrategy(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "strategy service suite")
}

// fakeStore is an in-memory store.StrategyStore mirroring the real store's
// is_active filtering on both GetBySlug and ListActive.
type fakeStore struct {
	rows map[string]model.Strategy
}

func newFakeStore(strategies ...model.Strategy) *fakeStore {
	rows := map[string]model.Strategy{}
	for _, st := range strategies {
		st.IsActive = true
		rows[st.Meta.Slug] = st
	}
	return &fakeStore{rows: rows}
}

func (f *fakeStore) GetBySlug(_ context.Context, slug string) (*model.Strategy, error) {
	st, ok := f.rows[slug]
	if !ok || !st.IsActive {
		return nil, store.ErrNotFound
	}
	return &st, nil
}

func (f *fakeStore) ListActive(_ context.Context) ([]model.Strategy, error) {
	out := make([]model.Strategy, 0, len(f.rows))
	for _, st := range f.rows {
		if st.IsActive {
			out = append(out, st)
		}
	}
	return out, nil
}

func (f *fakeStore) Upsert(_ context.Context, st *model.Strategy) error {
	st.IsActive = true
	f.rows[st.Meta.Slug] = *st
	return nil
}

func (f *fakeStore) Deactivate(_ context.Context, slug string) error {
	st, ok := f.rows[slug]
	if !ok {
		return store.ErrNotFound
	}
	st.IsActive = false
	f.rows[slug] = st
	return nil
}

func (f *fakeStore) Count(_ context.Context) (int, error) {
	return len(f.rows), nil
}

func newsDaily(priority int) model.Strategy {
	return model.Strategy{
		Meta: model.StrategyMeta{
			Slug:       "news-daily",
			Category:   "news",
			TimeWindow: model.TimeWindowDay,
			Depth:      model.DepthOverview,
			Priority:   priority,
		},
		FanOut: model.FanOut{Mode: model.FanOutNone},
	}
}

var _ = Describe("Service.Get", func() {
	It("resolves a warmed strategy from the in-process cache", func() {
		fake := newFakeStore(newsDaily(1))
		svc := strategy.NewService(fake, nil, "", "")
		Expect(svc.Warm(context.Background())).To(Succeed())

		got, err := svc.Get(context.Background(), "news-daily")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Meta.Slug).To(Equal("news-daily"))
	})

	It("falls back to the store when the cache was never warmed", func() {
		fake := newFakeStore(newsDaily(1))
		svc := strategy.NewService(fake, nil, "", "")

		got, err := svc.Get(context.Background(), "news-daily")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Meta.Slug).To(Equal("news-daily"))
	})

	It("rejects a deactivated strategy even via the store fallback", func() {
		fake := newFakeStore(newsDaily(1))
		svc := strategy.NewService(fake, nil, "", "")
		Expect(svc.Warm(context.Background())).To(Succeed())
		Expect(svc.Deactivate(context.Background(), "news-daily")).To(Succeed())

		_, err := svc.Get(context.Background(), "news-daily")
		Expect(err).To(MatchError(store.ErrNotFound))
	})
})

var _ = Describe("Service.Select", func() {
	It("resolves the highest-priority strategy matching category/window/depth", func() {
		low := newsDaily(1)
		high := newsDaily(5)
		high.Meta.Slug = "news-daily-priority"

		fake := newFakeStore(low, high)
		svc := strategy.NewService(fake, nil, "", "")
		Expect(svc.Warm(context.Background())).To(Succeed())

		slug, err := svc.Select(context.Background(), "news", model.TimeWindowDay, model.DepthOverview)
		Expect(err).NotTo(HaveOccurred())
		Expect(slug).To(Equal("news-daily-priority"))
	})

	It("returns ErrNoMatch when nothing matches the triple", func() {
		fake := newFakeStore(newsDaily(1))
		svc := strategy.NewService(fake, nil, "", "")
		Expect(svc.Warm(context.Background())).To(Succeed())

		_, err := svc.Select(context.Background(), "sports", model.TimeWindowDay, model.DepthOverview)
		Expect(err).To(MatchError(strategy.ErrNoMatch))
	})
})

var _ = Describe("Service.Deactivate", func() {
	It("evicts the strategy from the cache and from List", func() {
		fake := newFakeStore(newsDaily(1))
		svc := strategy.NewService(fake, nil, "", "")
		Expect(svc.Warm(context.Background())).To(Succeed())

		Expect(svc.Deactivate(context.Background(), "news-daily")).To(Succeed())

		out, err := svc.List(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(BeEmpty())

		_, err = svc.Select(context.Background(), "news", model.TimeWindowDay, model.DepthOverview)
		Expect(err).To(MatchError(strategy.ErrNoMatch))
	})
})
