package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"scoutline.dev/orchestrator/common/logger"
	"scoutline.dev/orchestrator/internal/batch"
	"scoutline.dev/orchestrator/internal/model"
)

// ExecuteHandler drives batch dispatch and one-off manual workflow runs.
type ExecuteHandler struct {
	workflow batch.WorkflowRunner
	batch    *batch.Executor
	webhook  *batch.WebhookSender
}

// NewExecuteHandler builds an ExecuteHandler.
func NewExecuteHandler(workflow batch.WorkflowRunner, executor *batch.Executor, webhook *batch.WebhookSender) *ExecuteHandler {
	return &ExecuteHandler{workflow: workflow, batch: executor, webhook: webhook}
}

type executeBatchRequest struct {
	Frequency   model.Frequency `json:"frequency" binding:"required"`
	CallbackURL string          `json:"callback_url" binding:"required,url"`
}

// Batch dispatches every active task for a frequency, acknowledging
// immediately; execution happens in the background. It always responds 200:
// batch endpoints are fire-and-forget, so internal failures degrade to a
// JSON body rather than an HTTP error.
func (h *ExecuteHandler) Batch(c *gin.Context) {
	ctx := c.Request.Context()

	var req executeBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "failed", "error": err.Error()})
		return
	}

	result, err := h.batch.Dispatch(ctx, req.Frequency, req.CallbackURL)
	if err != nil {
		slog.ErrorContext(ctx, "batch dispatch failed", "error", err, "frequency", req.Frequency)
		c.JSON(http.StatusOK, gin.H{"status": "failed", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

type executeManualRequest struct {
	ResearchTopic string `json:"research_topic" binding:"required"`
	Email         string `json:"email"`
	CallbackURL   string `json:"callback_url"`
}

// Manual runs a single one-off research request. With no callback_url it
// runs synchronously and returns the finished report; with one, it
// acknowledges immediately and delivers the result asynchronously, matching
// the batch delivery contract.
func (h *ExecuteHandler) Manual(c *gin.Context) {
	ctx := c.Request.Context()

	var req executeManualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	threadID := uuid.New().String()

	if req.CallbackURL == "" {
		h.runSync(ctx, c, threadID, req)
		return
	}

	startedAt := time.Now()
	go h.runAsync(context.WithoutCancel(ctx), threadID, req)

	c.JSON(http.StatusOK, gin.H{"status": "running", "started_at": startedAt})
}

func (h *ExecuteHandler) runSync(ctx context.Context, c *gin.Context, threadID string, req executeManualRequest) {
	if req.Email != "" {
		ctx = logger.WithLogFields(ctx, logger.LogFields{User: logger.Ptr(req.Email)})
	}

	state, err := h.workflow.Run(ctx, threadID, req.ResearchTopic)
	if err != nil {
		slog.WarnContext(ctx, "manual execution failed", "error", err, "thread_id", threadID)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"status": "failed", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "completed",
		"result": batch.ReportFromState(state),
	})
}

func (h *ExecuteHandler) runAsync(ctx context.Context, threadID string, req executeManualRequest) {
	sc := logger.StartSpan(ctx, "execute.manual")
	defer sc.End()
	ctx = logger.WithLogFields(sc.Context(), logger.LogFields{
		ThreadID:  logger.Ptr(threadID),
		Component: "orchestrator.httpapi",
	})
	if req.Email != "" {
		ctx = logger.WithLogFields(ctx, logger.LogFields{User: logger.Ptr(req.Email)})
	}

	executedAt := time.Now()
	state, err := h.workflow.Run(ctx, threadID, req.ResearchTopic)

	result := batch.TaskResult{
		TaskID:        threadID,
		Email:         req.Email,
		ResearchTopic: req.ResearchTopic,
		ExecutedAt:    executedAt,
	}
	if err != nil {
		sc.RecordError(err)
		result.Status = "failed"
		result.Error = err.Error()
	} else {
		result.Status = "completed"
		result.Result = batch.ReportFromState(state)
	}

	if err := h.webhook.Send(ctx, req.CallbackURL, result); err != nil {
		slog.ErrorContext(ctx, "manual execution webhook delivery exhausted retries", "thread_id", threadID, "error", err)
	}
}
