// Package health tracks consecutive empty or failed fetches per feed URL
// and raises a dead-feed alert when a feed stays silent too long.
package health

import (
	"context"
	"fmt"
	"log/slog"

	"feedrelay/internal/storage"
)

// Notifier receives operator alerts.
type Notifier interface {
	Notify(text string)
}

// Tracker drives the per-feed failure counter. A feed moves
// healthy -> degrading -> dead as consecutive failures accumulate; any
// successful non-empty fetch resets it to healthy.
type Tracker struct {
	store     storage.Storage
	notifier  Notifier
	threshold int
	log       *slog.Logger
}

// New creates a Tracker. notifier may be nil.
func New(store storage.Storage, notifier Notifier, threshold int, log *slog.Logger) *Tracker {
	return &Tracker{store: store, notifier: notifier, threshold: threshold, log: log}
}

// RecordFailure counts one empty or failed fetch. The dead-feed alert
// fires exactly once per excursion: on the poll where the counter first
// exceeds the threshold. Further failures stay silent until a success
// resets the counter.
func (t *Tracker) RecordFailure(ctx context.Context, url string) {
	count, err := t.store.IncrementFeedFailures(ctx, url)
	if err != nil {
		t.log.Error("increment feed failures", "url", url, "error", err)
		return
	}

	t.log.Warn("feed fetch failed or empty", "url", url, "consecutive_failures", count)

	if count == t.threshold+1 && t.notifier != nil {
		t.notifier.Notify(fmt.Sprintf("Feed appears dead after %d consecutive failed fetches:\n%s", count, url))
	}
}

// RecordSuccess resets the failure counter after a non-empty fetch.
func (t *Tracker) RecordSuccess(ctx context.Context, url string) {
	if err := t.store.ResetFeedFailures(ctx, url); err != nil {
		t.log.Error("reset feed failures", "url", url, "error", err)
	}
}
