package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/bank-assistant/backend/internal/api"
	"github.com/bank-assistant/backend/internal/api/handlers"
	"github.com/bank-assistant/backend/internal/app"
	"github.com/bank-assistant/backend/internal/metrics"
	"github.com/bank-assistant/backend/pkg/config"
	appLogger "github.com/bank-assistant/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting bank assistant API server")

	metrics.Init()

	a, err := app.Bootstrap(context.Background(), cfg)
	if err != nil {
		appLogger.Fatal("Failed to bootstrap assistant", zap.Error(err))
	}
	defer a.Close()

	deps := api.Deps{
		Assistant: a.Assistant,
		Checks:    map[string]handlers.Pinger{"sqlite": a.DB},
	}
	if a.Sessions != nil {
		deps.Sessions = a.Sessions
		deps.Checks["redis"] = a.Sessions
	}

	server := api.NewServer(cfg, deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := server.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := server.Shutdown(); err != nil {
		appLogger.Warn("Shutdown did not complete cleanly", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
