package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"scoutline.dev/orchestrator/internal/settings"
)

// SettingHandler exposes CRUD over admin-configurable global settings.
type SettingHandler struct {
	settings *settings.Service
}

// NewSettingHandler builds a SettingHandler.
func NewSettingHandler(s *settings.Service) *SettingHandler {
	return &SettingHandler{settings: s}
}

// List returns every stored setting.
func (h *SettingHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	all, err := h.settings.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list settings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list settings"})
		return
	}

	c.JSON(http.StatusOK, all)
}

// Get returns a single setting by key.
func (h *SettingHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	setting, err := h.settings.Get(ctx, c.Param("key"))
	if err != nil {
		writeStoreError(c, err, "setting not found")
		return
	}

	c.JSON(http.StatusOK, setting)
}

type setSettingRequest struct {
	Value json.RawMessage `json:"value" binding:"required"`
}

// Set upserts a setting's value.
func (h *SettingHandler) Set(c *gin.Context) {
	ctx := c.Request.Context()
	key := c.Param("key")

	var req setSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.settings.Set(ctx, key, req.Value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	setting, err := h.settings.Get(ctx, key)
	if err != nil {
		slog.ErrorContext(ctx, "failed to reload setting after write", "error", err, "key", key)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reload setting"})
		return
	}

	c.JSON(http.StatusOK, setting)
}
