package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"scoutline.dev/orchestrator/cmd/internal/bootstrap"
	"scoutline.dev/orchestrator/common/logger"
	"scoutline.dev/orchestrator/core/config"
	"scoutline.dev/orchestrator/internal/model"
)

// The scheduler is a convenience daemon: the batch endpoint (POST
// /execute/batch) is the system of record for triggering a frequency's
// dispatch, and any external cron can call it directly. This process exists
// so a deployment with no external scheduler still gets daily/weekly/monthly
// dispatch, ticking once a minute and firing each frequency at most once per
// its period.
func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Setup(cfg)
	slog.InfoContext(ctx, "orchestrator scheduler starting", "env", cfg.Env)

	callbackURL := os.Getenv("SCHEDULER_CALLBACK_URL")
	if callbackURL == "" {
		slog.ErrorContext(ctx, "SCHEDULER_CALLBACK_URL environment variable is required")
		os.Exit(1)
	}

	dispatchHour := 6
	if v := os.Getenv("SCHEDULER_DISPATCH_HOUR"); v != "" {
		if h, err := strconv.Atoi(v); err == nil && h >= 0 && h < 24 {
			dispatchHour = h
		}
	}

	deps, err := bootstrap.Build(ctx, cfg, 2)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build dependency graph", "error", err)
		os.Exit(1)
	}
	defer deps.Close()
	slog.InfoContext(ctx, "dependencies ready", "dispatch_hour", dispatchHour)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go deps.Strategies.Subscribe(ctx)

	sched := &scheduler{
		batch:       deps.Batch,
		callbackURL: callbackURL,
		hour:        dispatchHour,
		lastRun:     make(map[model.Frequency]time.Time),
	}
	go sched.run(ctx)

	slog.InfoContext(ctx, "scheduler running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutdown signal received")
	cancel()
	slog.InfoContext(ctx, "shutdown complete")
}

const banner = `
 ____   ___ _   _ _____ ____  _   _ _      _____ ____
/ ___| / __) | | | ___ |  _ \| | | | |    | ____|  _ \
\___ \| |   | |_| |  _| | | | | | | | |    |  _| | |_) |
 ___) | |__ |  _  | |___| |_| | |_| | |___ | |___|  _ <
|____/ \____|_| |_|_____|____/ \___/|_____|_____|_| \_\
         scheduler
`
