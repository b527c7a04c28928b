package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"feedrelay/internal/config"
	"feedrelay/internal/destination"
	"feedrelay/internal/storage"
)

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

	retention, err := config.ParseExpiry(settings.ExpireTime)
	if err != nil {
		log.Error("parse expire time", "value", settings.ExpireTime, "error", err)
		os.Exit(1)
	}

	store, err := storage.NewSQLite(settings.DatabasePath)
	if err != nil {
		log.Error("open database", "path", settings.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	cutoff := time.Now().UTC().Add(-retention)
	deleted, err := store.PurgeOlderThan(context.Background(), cutoff)
	if err != nil {
		log.Error("purge item records", "cutoff", cutoff, "error", err)
		os.Exit(1)
	}

	log.Info("purged item records", "deleted", deleted, "cutoff", cutoff)

	dests, err := config.LoadDestinations(settings.ConfigPath)
	if err != nil {
		log.Warn("load destinations for purge summary", "error", err)
		return
	}
	notifier, err := destination.NewNotifier(dests.Operator, log)
	if err != nil {
		log.Warn("create operator notifier", "error", err)
		return
	}
	notifier.Notify(fmt.Sprintf("Purged %d item records older than %s", deleted, settings.ExpireTime))
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
