// Package subscription implements CRUD for scheduled research tasks: the
// user-defined recurring requests the batch executor later dispatches.
package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"scoutline.dev/orchestrator/internal/model"
	"scoutline.dev/orchestrator/internal/store"
)

// Service administers subscription tasks.
type Service struct {
	tasks store.TaskStore
}

// NewService builds a subscription Service.
func NewService(tasks store.TaskStore) *Service {
	return &Service{tasks: tasks}
}

// Create validates and persists a new subscription task.
func (s *Service) Create(ctx context.Context, email, researchTopic string, frequency model.Frequency, scheduleTime string) (*model.SubscriptionTask, error) {
	if err := validateFrequency(frequency); err != nil {
		return nil, err
	}
	if err := validateScheduleTime(scheduleTime); err != nil {
		return nil, err
	}
	if email == "" {
		return nil, fmt.Errorf("subscription: email is required")
	}
	if researchTopic == "" {
		return nil, fmt.Errorf("subscription: research_topic is required")
	}

	task := &model.SubscriptionTask{
		ID:            uuid.New(),
		Email:         email,
		ResearchTopic: researchTopic,
		Frequency:     frequency,
		ScheduleTime:  scheduleTime,
		IsActive:      true,
		CreatedAt:     time.Now(),
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("creating subscription task: %w", err)
	}
	return task, nil
}

// Get returns a single task by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.SubscriptionTask, error) {
	return s.tasks.GetByID(ctx, id)
}

// ListByEmail returns every task registered to email, newest first.
func (s *Service) ListByEmail(ctx context.Context, email string) ([]model.SubscriptionTask, error) {
	return s.tasks.GetByEmail(ctx, email)
}

// Update applies a full field update to an existing task: research topic,
// frequency, schedule time, and active flag. Email is immutable once set.
func (s *Service) Update(ctx context.Context, id uuid.UUID, researchTopic string, frequency model.Frequency, scheduleTime string, isActive bool) (*model.SubscriptionTask, error) {
	if err := validateFrequency(frequency); err != nil {
		return nil, err
	}
	if err := validateScheduleTime(scheduleTime); err != nil {
		return nil, err
	}

	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	task.ResearchTopic = researchTopic
	task.Frequency = frequency
	task.ScheduleTime = scheduleTime
	task.IsActive = isActive

	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("updating subscription task %s: %w", id, err)
	}
	return task, nil
}

// Delete removes a task permanently.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.tasks.Delete(ctx, id)
}

// ListActiveByFrequency returns every active task matching frequency, the
// set the batch executor dispatches for a given {frequency, callback_url}
// request.
func (s *Service) ListActiveByFrequency(ctx context.Context, frequency model.Frequency) ([]model.SubscriptionTask, error) {
	if err := validateFrequency(frequency); err != nil {
		return nil, err
	}
	return s.tasks.ListActiveByFrequency(ctx, frequency)
}

// MarkRun records a successful execution. Per the batch executor contract,
// this is only called after a successful webhook delivery; failure to
// record it is logged by the caller and does not fail the task.
func (s *Service) MarkRun(ctx context.Context, id uuid.UUID, ranAt time.Time) error {
	return s.tasks.MarkRun(ctx, id, ranAt)
}

func validateFrequency(f model.Frequency) error {
	switch f {
	case model.FrequencyDaily, model.FrequencyWeekly, model.FrequencyMonthly:
		return nil
	default:
		return fmt.Errorf("subscription: invalid frequency %q", f)
	}
}

func validateScheduleTime(t string) error {
	if _, err := time.Parse("15:04", t); err != nil {
		return fmt.Errorf("subscription: schedule_time must be HH:MM: %w", err)
	}
	return nil
}
