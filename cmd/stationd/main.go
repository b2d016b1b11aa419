package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/KevinKickass/StationCore/internal/config"
	"github.com/KevinKickass/StationCore/internal/system"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to station config")
	flag.Parse()

	// Logger initialisieren
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Config laden
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Config loaded successfully",
		zap.String("station_id", cfg.Station.ID),
		zap.Int("actuators", len(cfg.Station.Actuators)))

	// Lifecycle Manager
	lifecycle, err := system.NewLifecycleManager(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build station", zap.Error(err))
	}

	// System starten
	if err := lifecycle.Start(); err != nil {
		logger.Fatal("Failed to start station", zap.Error(err))
	}

	logger.Info("StationCore started successfully")

	// Graceful Shutdown auf Signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutdown signal received")

	ctx := context.Background()
	if err := lifecycle.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("StationCore stopped successfully")
}
