package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/IshaanNene/ForumHarvest/internal/config"
)

func TestApplyCLIOverrides(t *testing.T) {
	t.Cleanup(func() {
		baseURL, outputStore, storeType, maxWorkers, sequential = "", "", "", 0, false
	})

	baseURL = "https://forum.example/"
	outputStore = "/tmp/x.db"
	storeType = "MongoDB"
	maxWorkers = 8

	cfg := config.DefaultConfig()
	applyCLIOverrides(cfg)
	if cfg.Source.BaseURL != "https://forum.example" {
		t.Errorf("base url = %q", cfg.Source.BaseURL)
	}
	if cfg.Storage.Path != "/tmp/x.db" || cfg.Storage.Type != "mongodb" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Engine.MaxWorkers != 8 {
		t.Errorf("max workers = %d, want 8", cfg.Engine.MaxWorkers)
	}

	sequential = true
	applyCLIOverrides(cfg)
	if cfg.Engine.MaxWorkers != 1 {
		t.Errorf("--sequential left %d workers", cfg.Engine.MaxWorkers)
	}
}

func TestSetupLoggerLevel(t *testing.T) {
	t.Cleanup(func() { verbose = false })
	ctx := context.Background()

	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "json"})
	if logger.Enabled(ctx, slog.LevelInfo) {
		t.Error("info enabled at warn level")
	}

	verbose = true
	logger = setupLogger(config.LoggingConfig{Level: "warn", Format: "text"})
	if !logger.Enabled(ctx, slog.LevelDebug) {
		t.Error("-v did not enable debug")
	}
}
