package main // Entry point package

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dataarchlabs/lab-portal/internal/app"
	"github.com/dataarchlabs/lab-portal/internal/config"
	"github.com/dataarchlabs/lab-portal/internal/logger"
)

func main() {
	cfg := config.Load() // Load environment config
	logger.Init(cfg.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialize app", map[string]any{"error": err})
	}

	go func() {
		if err := application.Run(); err != nil {
			logger.Fatal("http server failed", map[string]any{"error": err})
		}
	}()

	logger.Info("lab-portal started", map[string]any{"port": cfg.Port, "env": cfg.Env, "db": cfg.DBDriver})

	<-ctx.Done() // wait for Ctrl+C / SIGTERM

	logger.Info("shutdown signal received", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("graceful shutdown failed", map[string]any{"error": err})
	}
	logger.Info("lab-portal stopped cleanly", nil)
}
