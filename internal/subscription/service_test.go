package subscription_test

import (
	"context"
	"errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/google/uuid"

	"scoutline.dev/orchestrator/internal/model"
	"scoutline.dev/orchestrator/internal/store"
	"scoutline.dev/orchestrator/internal/subscription"
)

func TestSubscription(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "subscription suite")
}

var _ = Describe("Service", func() {
	var (
		svc  *subscription.Service
		mock *mockTaskStore
		ctx  context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		mock = &mockTaskStore{}
		svc = subscription.NewService(mock)
	})

	Describe("Create", func() {
		It("persists a valid task", func() {
			mock.createFn = func(_ context.Context, task *model.SubscriptionTask) error {
				Expect(task.Email).To(Equal("alice@example.com"))
				Expect(task.IsActive).To(BeTrue())
				return nil
			}

			task, err := svc.Create(ctx, "alice@example.com", "competitor pricing", model.FrequencyWeekly, "09:00")
			Expect(err).NotTo(HaveOccurred())
			Expect(task.Frequency).To(Equal(model.FrequencyWeekly))
			Expect(task.ID).NotTo(Equal(uuid.Nil))
		})

		It("rejects an invalid frequency", func() {
			_, err := svc.Create(ctx, "alice@example.com", "topic", model.Frequency("hourly"), "09:00")
			Expect(err).To(HaveOccurred())
		})

		It("rejects a malformed schedule time", func() {
			_, err := svc.Create(ctx, "alice@example.com", "topic", model.FrequencyDaily, "9am")
			Expect(err).To(HaveOccurred())
		})

		It("rejects an empty research topic", func() {
			_, err := svc.Create(ctx, "alice@example.com", "", model.FrequencyDaily, "09:00")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Update", func() {
		It("loads, mutates, and persists the task", func() {
			id := uuid.New()
			mock.getByIDFn = func(_ context.Context, gotID uuid.UUID) (*model.SubscriptionTask, error) {
				Expect(gotID).To(Equal(id))
				return &model.SubscriptionTask{ID: id, Email: "alice@example.com"}, nil
			}
			mock.updateFn = func(_ context.Context, task *model.SubscriptionTask) error {
				Expect(task.ResearchTopic).To(Equal("new topic"))
				Expect(task.IsActive).To(BeFalse())
				return nil
			}

			task, err := svc.Update(ctx, id, "new topic", model.FrequencyMonthly, "18:30", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(task.ResearchTopic).To(Equal("new topic"))
		})

		It("propagates a not-found from the store", func() {
			mock.getByIDFn = func(_ context.Context, _ uuid.UUID) (*model.SubscriptionTask, error) {
				return nil, store.ErrNotFound
			}

			_, err := svc.Update(ctx, uuid.New(), "topic", model.FrequencyDaily, "09:00", true)
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
		})
	})

	Describe("ListActiveByFrequency", func() {
		It("rejects an invalid frequency before touching the store", func() {
			mock.listActiveByFrequencyFn = func(_ context.Context, _ model.Frequency) ([]model.SubscriptionTask, error) {
				Fail("store should not be called for an invalid frequency")
				return nil, nil
			}

			_, err := svc.ListActiveByFrequency(ctx, model.Frequency("never"))
			Expect(err).To(HaveOccurred())
		})

		It("delegates to the store for a valid frequency", func() {
			want := []model.SubscriptionTask{{Email: "alice@example.com"}}
			mock.listActiveByFrequencyFn = func(_ context.Context, freq model.Frequency) ([]model.SubscriptionTask, error) {
				Expect(freq).To(Equal(model.FrequencyDaily))
				return want, nil
			}

			got, err := svc.ListActiveByFrequency(ctx, model.FrequencyDaily)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		})
	})
})
