// Package orchestrator expands subscriptions into per-URL units of work
// and runs them on a bounded worker pool. One poll cycle fetches every
// feed once, records feed health, and pushes entries through the
// processing pipeline in feed order.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"feedrelay/internal/health"
	"feedrelay/internal/model"
	"feedrelay/internal/pipeline"
)

// Fetcher retrieves and flattens a feed into entries.
type Fetcher interface {
	Fetch(ctx context.Context, url string, fulltext bool) ([]model.Entry, error)
}

// unit is one subscription-URL pair; the scheduling granularity.
type unit struct {
	sub model.Subscription
	url string
}

// Summary aggregates a poll cycle's outcomes per subscription.
type Summary struct {
	PerSubscription map[string]pipeline.Result
	Total           pipeline.Result
}

// Orchestrator runs one poll cycle over a set of subscriptions.
type Orchestrator struct {
	fetcher  Fetcher
	pipeline *pipeline.Pipeline
	health   *health.Tracker
	workers  int
	log      *slog.Logger
}

// New creates an Orchestrator. workers bounds concurrent feed fetches.
func New(fetcher Fetcher, pipe *pipeline.Pipeline, tracker *health.Tracker, workers int, log *slog.Logger) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		fetcher:  fetcher,
		pipeline: pipe,
		health:   tracker,
		workers:  workers,
		log:      log,
	}
}

// Run executes one poll cycle: every subscription URL is fetched once
// and its entries processed. A failing unit never affects other units.
func (o *Orchestrator) Run(ctx context.Context, subs []model.Subscription) Summary {
	units := make(chan unit)

	summary := Summary{PerSubscription: make(map[string]pipeline.Result, len(subs))}
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range units {
				res := o.runUnit(ctx, u)
				mu.Lock()
				agg := summary.PerSubscription[u.sub.Name]
				agg.Add(res)
				summary.PerSubscription[u.sub.Name] = agg
				summary.Total.Add(res)
				mu.Unlock()
			}
		}()
	}

	for _, sub := range subs {
		for _, url := range sub.URLs {
			select {
			case units <- unit{sub: sub, url: url}:
			case <-ctx.Done():
				close(units)
				wg.Wait()
				return summary
			}
		}
	}
	close(units)
	wg.Wait()

	for name, res := range summary.PerSubscription {
		o.log.Info("subscription processed",
			"subscription", name,
			"sent", res.Sent,
			"edited", res.Edited,
			"skipped", res.Skipped,
			"failed", res.Failed,
		)
	}
	return summary
}

// runUnit fetches one feed and processes its entries in feed order.
// Entries within the unit share a dedup set so a feed repeating an item
// produces at most one delivery.
func (o *Orchestrator) runUnit(ctx context.Context, u unit) pipeline.Result {
	var res pipeline.Result

	entries, err := o.fetcher.Fetch(ctx, u.url, u.sub.FullText)
	if err != nil {
		o.log.Warn("fetch feed", "subscription", u.sub.Name, "url", u.url, "error", err)
		o.health.RecordFailure(ctx, u.url)
		res.Failed++
		return res
	}
	o.health.RecordSuccess(ctx, u.url)

	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if ctx.Err() != nil {
			return res
		}
		res.Add(o.pipeline.ProcessEntry(ctx, u.sub, u.url, entry, seen))
	}
	return res
}
