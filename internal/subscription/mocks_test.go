package subscription_test

import (
	"context"
	"time"

	"github.com/google/uuid"

	"scoutline.dev/orchestrator/internal/model"
)

type mockTaskStore struct {
	createFn               func(ctx context.Context, task *model.SubscriptionTask) error
	getByIDFn              func(ctx context.Context, id uuid.UUID) (*model.SubscriptionTask, error)
	getByEmailFn           func(ctx context.Context, email string) ([]model.SubscriptionTask, error)
	updateFn               func(ctx context.Context, task *model.SubscriptionTask) error
	deleteFn               func(ctx context.Context, id uuid.UUID) error
	listActiveByFrequencyFn func(ctx context.Context, freq model.Frequency) ([]model.SubscriptionTask, error)
	markRunFn              func(ctx context.Context, id uuid.UUID, ranAt time.Time) error
}

func (m *mockTaskStore) Create(ctx context.Context, task *model.SubscriptionTask) error {
	if m.createFn != nil {
		return m.createFn(ctx, task)
	}
	return nil
}

func (m *mockTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*model.SubscriptionTask, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockTaskStore) GetByEmail(ctx context.Context, email string) ([]model.SubscriptionTask, error) {
	if m.getByEmailFn != nil {
		return m.getByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockTaskStore) Update(ctx context.Context, task *model.SubscriptionTask) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, task)
	}
	return nil
}

func (m *mockTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockTaskStore) ListActiveByFrequency(ctx context.Context, freq model.Frequency) ([]model.SubscriptionTask, error) {
	if m.listActiveByFrequencyFn != nil {
		return m.listActiveByFrequencyFn(ctx, freq)
	}
	return nil, nil
}

func (m *mockTaskStore) MarkRun(ctx context.Context, id uuid.UUID, ranAt time.Time) error {
	if m.markRunFn != nil {
		return m.markRunFn(ctx, id, ranAt)
	}
	return nil
}
