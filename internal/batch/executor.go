// Package batch implements the subscription batch executor: on a dispatch
// request for {frequency, callback_url}, it loads every active task for that
// frequency, runs each through the research workflow with bounded
// concurrency, and delivers the result to the callback URL. The HTTP caller
// gets an immediate acknowledgement; the work itself runs in the background.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scoutline.dev/orchestrator/common/logger"
	"scoutline.dev/orchestrator/internal/model"
	"scoutline.dev/orchestrator/internal/subscription"
)

// WorkflowRunner executes one research workflow to completion. *phase.Engine
// satisfies this implicitly.
type WorkflowRunner interface {
	Run(ctx context.Context, threadID, userRequest string) (model.State, error)
}

// Executor dispatches and runs batches of subscription tasks.
type Executor struct {
	Tasks          *subscription.Service
	Workflow       WorkflowRunner
	Webhook        *WebhookSender
	MaxConcurrency int
}

// DispatchResult is returned synchronously to the caller once matching tasks
// have been counted; execution itself continues in the background.
type DispatchResult struct {
	Status     string    `json:"status"`
	TasksFound int       `json:"tasks_found"`
	StartedAt  time.Time `json:"started_at"`
}

// TaskResult is the payload delivered to callback_url for one task, success
// or failure.
type TaskResult struct {
	TaskID        string    `json:"task_id"`
	Email         string    `json:"email"`
	ResearchTopic string    `json:"research_topic"`
	Frequency     string    `json:"frequency"`
	Status        string    `json:"status"`
	ExecutedAt    time.Time `json:"executed_at"`
	Result        *Report   `json:"result,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// Report is the subset of a finished workflow's state worth delivering.
type Report struct {
	Sections      []string `json:"sections"`
	Citations     []string `json:"citations"`
	Warnings      []string `json:"warnings"`
	StrategySlug  string   `json:"strategy_slug"`
	EvidenceCount int      `json:"evidence_count"`
}

// ReportFromState extracts the delivery-worthy subset of a finished
// workflow's state. Shared by the batch and manual-execution callers so both
// deliver an identically-shaped result.
func ReportFromState(state model.State) *Report {
	return &Report{
		Sections:      state.Write.Sections,
		Citations:     state.Write.Citations,
		Warnings:      state.Write.Warnings,
		StrategySlug:  state.Scope.StrategySlug,
		EvidenceCount: len(state.Research.Evidence),
	}
}

// Dispatch loads the active tasks for frequency and acknowledges immediately;
// the tasks themselves run in a detached background goroutine so the batch
// survives the originating HTTP request's context being cancelled.
func (e *Executor) Dispatch(ctx context.Context, frequency model.Frequency, callbackURL string) (DispatchResult, error) {
	tasks, err := e.Tasks.ListActiveByFrequency(ctx, frequency)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("batch: list active tasks: %w", err)
	}

	startedAt := time.Now()
	go e.runBatch(context.WithoutCancel(ctx), tasks, callbackURL)

	return DispatchResult{
		Status:     "running",
		TasksFound: len(tasks),
		StartedAt:  startedAt,
	}, nil
}

// runBatch executes every task with at most MaxConcurrency running at once.
// A failure in one task never aborts the batch.
func (e *Executor) runBatch(ctx context.Context, tasks []model.SubscriptionTask, callbackURL string) {
	concurrency := e.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for _, task := range tasks {
		task := task
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			e.runTaskSafe(ctx, task, callbackURL)
		}()
	}
	wg.Wait()
}

// runTaskSafe recovers from a panic in runTask so one misbehaving task cannot
// take down the rest of the batch.
func (e *Executor) runTaskSafe(ctx context.Context, task model.SubscriptionTask, callbackURL string) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "batch: task panicked", "task_id", task.ID, "panic", r)
		}
	}()
	e.runTask(ctx, task, callbackURL)
}

func (e *Executor) runTask(ctx context.Context, task model.SubscriptionTask, callbackURL string) {
	taskID := task.ID.String()

	sc := logger.StartSpan(ctx, "batch.run_task")
	defer sc.End()
	ctx = logger.WithLogFields(sc.Context(), logger.LogFields{
		ThreadID:  logger.Ptr(taskID),
		TaskID:    logger.Ptr(taskID),
		User:      logger.Ptr(task.Email),
		Frequency: logger.Ptr(string(task.Frequency)),
		Component: "orchestrator.batch",
	})

	executedAt := time.Now()
	state, err := e.Workflow.Run(ctx, taskID, task.ResearchTopic)

	result := TaskResult{
		TaskID:        taskID,
		Email:         task.Email,
		ResearchTopic: task.ResearchTopic,
		Frequency:     string(task.Frequency),
		ExecutedAt:    executedAt,
	}

	if err != nil {
		sc.RecordError(err)
		result.Status = "failed"
		result.Error = err.Error()
	} else {
		result.Status = "completed"
		result.Result = ReportFromState(state)
	}

	if deliverErr := e.Webhook.Send(ctx, callbackURL, result); deliverErr != nil {
		slog.ErrorContext(ctx, "batch: webhook delivery exhausted retries", "task_id", taskID, "error", deliverErr)
		return
	}

	if err == nil {
		if markErr := e.Tasks.MarkRun(ctx, task.ID, executedAt); markErr != nil {
			slog.ErrorContext(ctx, "batch: failed to record last_run_at", "task_id", taskID, "error", markErr)
		}
	}
}
