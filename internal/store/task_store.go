package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"scoutline.dev/orchestrator/internal/model"
)

type taskStore struct {
	q querier
}

func (s *taskStore) Create(ctx context.Context, task *model.SubscriptionTask) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}

	_, err := s.q.Exec(ctx, `
		insert into research_tasks (
			id, email, research_topic, frequency, schedule_time, is_active, created_at
		) values ($1, $2, $3, $4, $5, $6, $7)`,
		task.ID, task.Email, task.ResearchTopic, task.Frequency,
		task.ScheduleTime, task.IsActive, task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (s *taskStore) GetByID(ctx context.Context, id uuid.UUID) (*model.SubscriptionTask, error) {
	row := s.q.QueryRow(ctx, `
		select id, email, research_topic, frequency, schedule_time, is_active, created_at, last_run_at
		from research_tasks
		where id = $1`, id)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return task, nil
}

func (s *taskStore) GetByEmail(ctx context.Context, email string) ([]model.SubscriptionTask, error) {
	rows, err := s.q.Query(ctx, `
		select id, email, research_topic, frequency, schedule_time, is_active, created_at, last_run_at
		from research_tasks
		where email = $1
		order by created_at desc`, email)
	if err != nil {
		return nil, fmt.Errorf("list tasks by email: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s *taskStore) Update(ctx context.Context, task *model.SubscriptionTask) error {
	tag, err := s.q.Exec(ctx, `
		update research_tasks
		set research_topic = $2, frequency = $3, schedule_time = $4, is_active = $5
		where id = $1`,
		task.ID, task.ResearchTopic, task.Frequency, task.ScheduleTime, task.IsActive,
	)
	if err != nil {
		return fmt.Errorf("update task %s: %w", task.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *taskStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q.Exec(ctx, `delete from research_tasks where id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *taskStore) ListActiveByFrequency(ctx context.Context, freq model.Frequency) ([]model.SubscriptionTask, error) {
	rows, err := s.q.Query(ctx, `
		select id, email, research_topic, frequency, schedule_time, is_active, created_at, last_run_at
		from research_tasks
		where is_active and frequency = $1
		order by created_at`, freq)
	if err != nil {
		return nil, fmt.Errorf("list active tasks by frequency: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s *taskStore) MarkRun(ctx context.Context, id uuid.UUID, ranAt time.Time) error {
	tag, err := s.q.Exec(ctx, `update research_tasks set last_run_at = $2 where id = $1`, id, ranAt)
	if err != nil {
		return fmt.Errorf("mark task %s run: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTask(row rowScanner) (*model.SubscriptionTask, error) {
	var task model.SubscriptionTask
	err := row.Scan(
		&task.ID, &task.Email, &task.ResearchTopic, &task.Frequency,
		&task.ScheduleTime, &task.IsActive, &task.CreatedAt, &task.LastRunAt,
	)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func collectTasks(rows pgx.Rows) ([]model.SubscriptionTask, error) {
	var out []model.SubscriptionTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *task)
	}
	return out, rows.Err()
}
