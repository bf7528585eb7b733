package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"bourbonwatch/internal/catalog"
	"bourbonwatch/internal/config"
	"bourbonwatch/internal/extract"
	"bourbonwatch/internal/fwgs"
	"bourbonwatch/internal/notify"
	"bourbonwatch/internal/scanner"
	"bourbonwatch/internal/scheduler"
	"bourbonwatch/internal/stock"
	"bourbonwatch/internal/storage"
	"bourbonwatch/internal/stores"
	"bourbonwatch/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	cat, err := catalog.Load()
	if err != nil {
		log.Error("load catalog", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	synced, err := cat.SyncTo(ctx, store)
	if err != nil {
		log.Error("sync catalog", "error", err)
		os.Exit(1)
	}
	log.Info("catalog synced", "entries", synced, "version", cat.Version)

	site := fwgs.New(http.DefaultClient, cfg.BaseURL, cfg.LegacyURL, cfg.UserAgent)
	geocoder := stores.NewZipGeocoder(http.DefaultClient, log)
	directory := stores.New(site, geocoder, log)
	resolver := stock.New(site, directory, log)

	senders := notify.Senders(cfg, http.DefaultClient, log)
	router := notify.NewRouter(store, senders, cfg.TierChannels, cfg.AlertCooldown, log)

	orch := scanner.New(store, site, extract.New(cfg.BaseURL), cat, resolver, router, log)
	orch.SetDelays(cfg.RequestDelay, cfg.RequestDelay/2)

	sched := scheduler.New(orch, cfg.ScanInterval, log)
	go sched.Run(ctx)

	api := web.New(store, cat, orch, router, cfg, log)
	server := &http.Server{Addr: cfg.ListenAddr, Handler: api.Routes()}

	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	log.Info("starting server", "addr", cfg.ListenAddr,
		"scan_interval", cfg.ScanInterval.String())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server", "error", err)
		os.Exit(1)
	}

	log.Info("stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
