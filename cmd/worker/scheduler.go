package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"scoutline.dev/orchestrator/internal/batch"
	"scoutline.dev/orchestrator/internal/model"
)

// scheduler ticks once a minute and dispatches each frequency at most once
// per its period, at the configured hour (UTC). It stands in for the
// external cron the core otherwise expects to call POST /execute/batch.
type scheduler struct {
	batch       *batch.Executor
	callbackURL string
	hour        int

	mu      sync.Mutex
	lastRun map[model.Frequency]time.Time
}

func (s *scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now.UTC())
		}
	}
}

func (s *scheduler) tick(ctx context.Context, now time.Time) {
	if now.Hour() != s.hour || now.Minute() != 0 {
		return
	}

	due := []model.Frequency{model.FrequencyDaily}
	if now.Weekday() == time.Monday {
		due = append(due, model.FrequencyWeekly)
	}
	if now.Day() == 1 {
		due = append(due, model.FrequencyMonthly)
	}

	for _, freq := range due {
		if !s.claim(freq, now) {
			continue
		}

		result, err := s.batch.Dispatch(ctx, freq, s.callbackURL)
		if err != nil {
			slog.ErrorContext(ctx, "scheduler: dispatch failed", "frequency", freq, "error", err)
			continue
		}
		slog.InfoContext(ctx, "scheduler: dispatched batch", "frequency", freq, "tasks_found", result.TasksFound)
	}
}

// claim reports whether freq hasn't already been dispatched in this exact
// minute, guarding against a second dispatch from the same process within
// one tick. The record is in memory only and does not survive a restart.
func (s *scheduler) claim(freq model.Frequency, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.lastRun[freq]; ok && last.Equal(now) {
		return false
	}
	s.lastRun[freq] = now
	return true
}
