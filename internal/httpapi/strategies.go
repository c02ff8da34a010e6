package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"scoutline.dev/orchestrator/common"
	"scoutline.dev/orchestrator/internal/model"
	"scoutline.dev/orchestrator/internal/strategy"
)

// StrategyHandler exposes CRUD over declarative research strategies.
type StrategyHandler struct {
	strategies *strategy.Service
}

// NewStrategyHandler builds a StrategyHandler.
func NewStrategyHandler(strategies *strategy.Service) *StrategyHandler {
	return &StrategyHandler{strategies: strategies}
}

// List returns every active strategy.
func (h *StrategyHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	strategies, err := h.strategies.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list strategies", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list strategies"})
		return
	}

	c.JSON(http.StatusOK, strategies)
}

// Get returns a single strategy by slug.
func (h *StrategyHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	slug, err := common.Slugify(c.Param("slug"), "")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slug: " + err.Error()})
		return
	}

	st, err := h.strategies.Get(ctx, slug)
	if err != nil {
		writeStoreError(c, err, "strategy not found")
		return
	}

	c.JSON(http.StatusOK, st)
}

// Create registers a new strategy under slug, rejecting a slug already in
// use.
func (h *StrategyHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	slug, err := common.Slugify(c.Param("slug"), "")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slug: " + err.Error()})
		return
	}

	if _, err := h.strategies.Get(ctx, slug); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "strategy already exists"})
		return
	}

	st, ok := h.bindStrategy(c, slug)
	if !ok {
		return
	}

	if err := h.strategies.Upsert(ctx, st); err != nil {
		slog.ErrorContext(ctx, "failed to create strategy", "error", err, "slug", slug)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create strategy"})
		return
	}

	c.JSON(http.StatusCreated, st)
}

// Replace overwrites an existing (or creates a new) strategy under slug.
func (h *StrategyHandler) Replace(c *gin.Context) {
	ctx := c.Request.Context()
	slug := c.Param("slug")

	st, ok := h.bindStrategy(c, slug)
	if !ok {
		return
	}

	if err := h.strategies.Upsert(ctx, st); err != nil {
		slog.ErrorContext(ctx, "failed to replace strategy", "error", err, "slug", slug)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to replace strategy"})
		return
	}

	c.JSON(http.StatusOK, st)
}

// Delete deactivates a strategy. Strategies are never hard-deleted so that
// historical workflow runs referencing the slug remain explicable.
func (h *StrategyHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	slug, err := common.Slugify(c.Param("slug"), "")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slug: " + err.Error()})
		return
	}

	if err := h.strategies.Deactivate(ctx, slug); err != nil {
		writeStoreError(c, err, "strategy not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *StrategyHandler) bindStrategy(c *gin.Context, rawSlug string) (*model.Strategy, bool) {
	var st model.Strategy
	if err := c.ShouldBindJSON(&st); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}

	slug, err := common.Slugify(rawSlug, st.Meta.Category)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slug: " + err.Error()})
		return nil, false
	}

	st.Meta.Slug = slug
	st.IsActive = true
	return &st, true
}
