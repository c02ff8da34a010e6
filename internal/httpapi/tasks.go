package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"scoutline.dev/orchestrator/internal/model"
	"scoutline.dev/orchestrator/internal/store"
	"scoutline.dev/orchestrator/internal/subscription"
)

// TaskHandler exposes CRUD over subscription tasks.
type TaskHandler struct {
	tasks *subscription.Service
}

// NewTaskHandler builds a TaskHandler.
func NewTaskHandler(tasks *subscription.Service) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

type createTaskRequest struct {
	Email         string          `json:"email" binding:"required,email"`
	ResearchTopic string          `json:"research_topic" binding:"required"`
	Frequency     model.Frequency `json:"frequency" binding:"required"`
	ScheduleTime  string          `json:"schedule_time"`
}

// Create registers a new subscription task.
func (h *TaskHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ScheduleTime == "" {
		req.ScheduleTime = "09:00"
	}

	task, err := h.tasks.Create(ctx, req.Email, req.ResearchTopic, req.Frequency, req.ScheduleTime)
	if err != nil {
		slog.WarnContext(ctx, "failed to create subscription task", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, task)
}

// List returns every task registered to the email query parameter.
func (h *TaskHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email query parameter is required"})
		return
	}

	tasks, err := h.tasks.ListByEmail(ctx, email)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list subscription tasks", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tasks"})
		return
	}

	c.JSON(http.StatusOK, tasks)
}

// Get returns a single task by ID.
func (h *TaskHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	task, err := h.tasks.Get(ctx, id)
	if err != nil {
		writeStoreError(c, err, "task not found")
		return
	}

	c.JSON(http.StatusOK, task)
}

type updateTaskRequest struct {
	ResearchTopic string          `json:"research_topic" binding:"required"`
	Frequency     model.Frequency `json:"frequency" binding:"required"`
	ScheduleTime  string          `json:"schedule_time" binding:"required"`
	IsActive      bool            `json:"is_active"`
}

// Update applies a full field update to an existing task.
func (h *TaskHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.tasks.Update(ctx, id, req.ResearchTopic, req.Frequency, req.ScheduleTime, req.IsActive)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, task)
}

// Delete removes a task permanently.
func (h *TaskHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	if err := h.tasks.Delete(ctx, id); err != nil {
		writeStoreError(c, err, "failed to delete task")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// writeStoreError maps a store.ErrNotFound to 404 and anything else to 500.
func writeStoreError(c *gin.Context, err error, notFoundMessage string) {
	ctx := c.Request.Context()
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundMessage})
		return
	}
	slog.ErrorContext(ctx, "store operation failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
