package app

import (
	"log/slog"
	"os"

	"sarraf_go/internal/infra"
	"sarraf_go/internal/infra/storage"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Gateway *storage.Gateway
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, logger, DB)
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping Sarraf...")

	// 1. Load Config
	configPath := os.Getenv("SARRAF_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize snapshot storage (DB)
	gateway, err := storage.NewGateway(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Gateway = gateway
	slog.Info("✅ Snapshot database initialized")

	return nil
}
