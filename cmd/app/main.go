package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sarraf_go/internal/api"
	"sarraf_go/internal/app"
	"sarraf_go/internal/infra"
	"sarraf_go/internal/infra/feed"
	"sarraf_go/internal/infra/ws"
	"sarraf_go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

func main() {
	// .env is optional; real deployments set env vars directly
	_ = godotenv.Load()

	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	cfg := bootstrap.Config
	gateway := bootstrap.Gateway

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Core services
	rawStore := service.NewPriceStore()
	store := service.NewPriceStore()
	calculator := service.NewPriceCalculator(cfg.Pricing.Classify)
	tiered := service.NewTieredCache(store, gateway)
	hub := ws.NewHub(tiered, infra.GlobalMetrics)
	defer hub.Close()

	feedClient := feed.NewClient(cfg.Feed.URL, time.Duration(cfg.Feed.TimeoutSec)*time.Second)
	runner := service.NewCycleRunner(
		feedClient,
		calculator,
		cfg.Pricing.Margins,
		rawStore,
		store,
		gateway,
		hub,
		infra.GlobalMetrics,
	)

	// 4. Disaster-recovery seed, then one immediate cycle
	runner.SeedFromSnapshots(gateway)
	go runner.RunCycle(ctx)

	// 5. Cycle schedule + nightly history pruning
	scheduler := cron.New(cron.WithSeconds())
	cycleSpec := fmt.Sprintf("@every %ds", cfg.Feed.PollIntervalSec)
	if _, err := scheduler.AddFunc(cycleSpec, func() { runner.RunCycle(ctx) }); err != nil {
		slog.Error("❌ Failed to register cycle schedule", slog.Any("error", err))
		os.Exit(1)
	}
	if _, err := scheduler.AddFunc("0 0 4 * * *", func() {
		pruned, err := gateway.PruneHistory(time.Now().AddDate(0, 0, -7))
		if err != nil {
			slog.Error("History pruning failed", slog.Any("error", err))
			return
		}
		slog.Info("History pruned", slog.Int64("rows", pruned))
	}); err != nil {
		slog.Error("❌ Failed to register pruning schedule", slog.Any("error", err))
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()
	slog.InfoContext(ctx, "✅ Cycle scheduler started", slog.String("interval", cycleSpec))

	// 6. HTTP + push channel
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	handler := api.NewHandler(rawStore, store, gateway, infra.GlobalMetrics)
	api.SetupRoutes(engine, handler, hub)

	server := &http.Server{Addr: cfg.Server.Addr, Handler: engine}
	go func() {
		slog.Info("✅ HTTP server listening", slog.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", slog.Any("error", err))
			stop()
		}
	}()

	slog.InfoContext(ctx, "✨ Sarraf price distribution fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.InfoContext(ctx, "👋 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", slog.Any("error", err))
	}
	runner.WaitPersistence()
}
