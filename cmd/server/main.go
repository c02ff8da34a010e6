package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"scoutline.dev/orchestrator/cmd/internal/bootstrap"
	"scoutline.dev/orchestrator/common/logger"
	"scoutline.dev/orchestrator/common/otel"
	"scoutline.dev/orchestrator/core/config"
	"scoutline.dev/orchestrator/internal/httpapi"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		// Can't use slog yet — OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "orchestrator server starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)

	if !cfg.LLM.Enabled() {
		slog.WarnContext(ctx, "no LLM_API_KEY configured; scope classification, fill, finalize, and QC grounding will fail on first use")
	}

	deps, err := bootstrap.Build(ctx, cfg, 1)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build dependency graph", "error", err)
		os.Exit(1)
	}
	defer deps.Close()
	slog.InfoContext(ctx, "dependencies ready", "database", "connected", "redis", "connected")

	go deps.Strategies.Subscribe(ctx)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	httpapi.SetupRoutes(router, httpapi.Dependencies{
		Tasks:      deps.Tasks,
		Strategies: deps.Strategies,
		Settings:   deps.Settings,
		Workflow:   deps.Engine,
		Batch:      deps.Batch,
		Webhook:    deps.Webhook,
	}, cfg.AdminAPIKey)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

const banner = `
 ____                 _   _ _
/ ___|  ___ ___  _   _| |_| (_)_ __   ___
\___ \ / __/ _ \| | | | __| | | '_ \ / _ \
 ___) | (_| (_) | |_| | |_| | | | | |  __/
|____/ \___\___/ \__,_|\__|_|_|_| |_|\___|
        orchestrator
`
