// Package httpapi exposes the orchestrator's HTTP surface: health, task
// subscription CRUD, batch/manual execution, and strategy/settings admin
// endpoints, all gin-based and authenticated by a shared X-API-Key except
// for the health check.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"scoutline.dev/orchestrator/internal/batch"
	"scoutline.dev/orchestrator/internal/settings"
	"scoutline.dev/orchestrator/internal/strategy"
	"scoutline.dev/orchestrator/internal/subscription"
)

// Dependencies bundles every service the HTTP surface dispatches into.
type Dependencies struct {
	Tasks      *subscription.Service
	Strategies *strategy.Service
	Settings   *settings.Service
	Workflow   batch.WorkflowRunner
	Batch      *batch.Executor
	Webhook    *batch.WebhookSender
}

// SetupRoutes registers every endpoint on router, guarding everything but
// GET /health behind the admin API key.
func SetupRoutes(router *gin.Engine, deps Dependencies, adminAPIKey string) {
	router.Use(RequestID(), Recovery(), Logger())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := router.Group("")
	api.Use(RequireAPIKey(adminAPIKey))

	taskHandler := NewTaskHandler(deps.Tasks)
	api.POST("/tasks", taskHandler.Create)
	api.GET("/tasks", taskHandler.List)
	api.GET("/tasks/:id", taskHandler.Get)
	api.PATCH("/tasks/:id", taskHandler.Update)
	api.DELETE("/tasks/:id", taskHandler.Delete)

	executeHandler := NewExecuteHandler(deps.Workflow, deps.Batch, deps.Webhook)
	api.POST("/execute/batch", executeHandler.Batch)
	api.POST("/execute/manual", executeHandler.Manual)

	strategyHandler := NewStrategyHandler(deps.Strategies)
	api.GET("/api/strategies", strategyHandler.List)
	api.GET("/api/strategies/:slug", strategyHandler.Get)
	api.POST("/api/strategies/:slug", strategyHandler.Create)
	api.PUT("/api/strategies/:slug", strategyHandler.Replace)
	api.DELETE("/api/strategies/:slug", strategyHandler.Delete)

	settingHandler := NewSettingHandler(deps.Settings)
	api.GET("/api/settings", settingHandler.List)
	api.GET("/api/settings/:key", settingHandler.Get)
	api.PUT("/api/settings/:key", settingHandler.Set)
}
