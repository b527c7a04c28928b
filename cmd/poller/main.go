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
	"time"

	"feedrelay/internal/config"
	"feedrelay/internal/destination"
	"feedrelay/internal/fetcher"
	"feedrelay/internal/health"
	"feedrelay/internal/mirror"
	"feedrelay/internal/orchestrator"
	"feedrelay/internal/pipeline"
	"feedrelay/internal/storage"
)

const mirrorJitter = 3 * time.Second

func main() {
	settings, err := config.LoadSettings(os.Args[1:])
	if err != nil {
		slog.Error("load settings", "error", err)
		os.Exit(1)
	}
	if settings == nil { // help requested
		return
	}

	log := newLogger(settings.LogLevel)

	dests, err := config.LoadDestinations(settings.ConfigPath)
	if err != nil {
		log.Error("load destinations", "path", settings.ConfigPath, "error", err)
		os.Exit(1)
	}

	subs, err := config.LoadSubscriptions(settings.SubscriptionsPath)
	if err != nil {
		log.Error("load subscriptions", "path", settings.SubscriptionsPath, "error", err)
		os.Exit(1)
	}

	if dir := filepath.Dir(settings.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(settings.DatabasePath)
	if err != nil {
		log.Error("open database", "path", settings.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	adapters, err := buildAdapters(dests, log)
	if err != nil {
		log.Error("create destinations", "error", err)
		os.Exit(1)
	}

	notifier, err := destination.NewNotifier(dests.Operator, log)
	if err != nil {
		log.Error("create operator notifier", "error", err)
		os.Exit(1)
	}

	var mirrorPub pipeline.MirrorPublisher
	if dests.Mirror.AccessToken != "" {
		mirrorPub = mirror.New(http.DefaultClient, dests.Mirror.AccessToken, mirrorJitter, log)
	}

	tracker := health.New(store, notifier, settings.FailureThreshold, log)
	fetch := fetcher.New(http.DefaultClient, settings.UserAgent)
	pipe := pipeline.New(store, adapters, mirrorPub, log)
	orch := orchestrator.New(fetch, pipe, tracker, settings.WorkerCount, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting poll cycle", "subscriptions", len(subs), "workers", settings.WorkerCount)
	summary := orch.Run(ctx, subs)
	log.Info("poll cycle finished",
		"sent", summary.Total.Sent,
		"edited", summary.Total.Edited,
		"skipped", summary.Total.Skipped,
		"failed", summary.Total.Failed,
	)
}

// buildAdapters creates one adapter per configured destination, keyed by
// destination name.
func buildAdapters(dests *config.Destinations, log *slog.Logger) (map[string]destination.Adapter, error) {
	adapters := make(map[string]destination.Adapter, len(dests.Telegram)+len(dests.Mastodon))
	for _, cfg := range dests.Telegram {
		tg, err := destination.NewTelegram(cfg, log)
		if err != nil {
			return nil, err
		}
		adapters[cfg.Name] = tg
	}
	for _, cfg := range dests.Mastodon {
		adapters[cfg.Name] = destination.NewMastodon(cfg, log)
	}
	return adapters, nil
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
