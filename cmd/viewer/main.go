package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"sarraf_go/internal/client"
	"sarraf_go/internal/domain"
)

// A minimal terminal viewer: one Syncer rendering to stdout. The shop
// display builds on exactly the same loop.
func main() {
	serverURL := flag.String("server", "http://localhost:5001", "price server base URL")
	wsURL := flag.String("ws", "ws://localhost:5001/ws", "push channel URL")
	cachePath := flag.String("cache", "", "viewer cache path (defaults to user config dir)")
	flag.Parse()

	path := *cachePath
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			slog.Error("Cannot resolve cache path", slog.Any("error", err))
			os.Exit(1)
		}
		path = filepath.Join(configDir, "Sarraf", "viewer", "cache.db")
	}

	cache, err := client.NewLocalCache(path, client.DefaultCacheTTL)
	if err != nil {
		slog.Error("Viewer cache unavailable", slog.Any("error", err))
		os.Exit(1)
	}

	syncer := client.NewSyncer(client.Options{
		WSURL:    *wsURL,
		OnChange: render,
	}, cache, client.NewHTTPPuller(*serverURL, 10*time.Second))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := syncer.Start(ctx); err != nil {
		slog.Error("Viewer start failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer syncer.Stop()

	<-ctx.Done()
}

func render(records []domain.PriceRecord) {
	fmt.Printf("\n%-10s %-22s %12s %12s\n", "KOD", "ÜRÜN", "ALIŞ", "SATIŞ")
	for _, r := range records {
		fmt.Printf("%-10s %-22s %12s %12s\n",
			r.Code, r.Name, r.CalculatedAlis.StringFixed(2), r.CalculatedSatis.StringFixed(2))
	}
}
