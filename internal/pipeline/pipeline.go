// Package pipeline processes single feed entries: extraction, identity,
// deduplication, optional mirroring, and the per-destination delivery
// state machine. Failures are scoped to one item and one destination;
// nothing here aborts the rest of a subscription's run.
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"feedrelay/internal/destination"
	"feedrelay/internal/identity"
	"feedrelay/internal/mirror"
	"feedrelay/internal/model"
	"feedrelay/internal/rules"
	"feedrelay/internal/storage"
)

// snippetLimit caps the description passed to templates.
const snippetLimit = 9000

// MirrorPublisher publishes long-form content to the secondary surface.
type MirrorPublisher interface {
	Publish(ctx context.Context, title, author, content string) (string, error)
}

// Result counts per-destination outcomes for reporting.
type Result struct {
	Sent    int
	Edited  int
	Skipped int
	Failed  int
}

// Add accumulates another result into r.
func (r *Result) Add(other Result) {
	r.Sent += other.Sent
	r.Edited += other.Edited
	r.Skipped += other.Skipped
	r.Failed += other.Failed
}

// Pipeline drives one entry through extraction, dedup, and delivery.
type Pipeline struct {
	store    storage.Storage
	adapters map[string]destination.Adapter
	mirror   MirrorPublisher
	log      *slog.Logger
}

// New creates a Pipeline. mirror may be nil when mirroring is not
// configured; subscriptions asking for it then degrade to no mirror.
func New(store storage.Storage, adapters map[string]destination.Adapter, mirrorPub MirrorPublisher, log *slog.Logger) *Pipeline {
	return &Pipeline{store: store, adapters: adapters, mirror: mirrorPub, log: log}
}

// ProcessEntry runs one entry through the pipeline. seen is the unit's
// in-poll dedup set: entries resolving to an already-processed identity
// are dropped silently, first occurrence wins.
func (p *Pipeline) ProcessEntry(ctx context.Context, sub model.Subscription, sourceURL string, entry model.Entry, seen map[string]bool) Result {
	var res Result

	if rules.Filtered(entry, sub.Filters) {
		return res
	}

	extracted, err := rules.Extract(entry, sub.Rules)
	if err != nil {
		p.log.Error("extract fields", "subscription", sub.Name, "url", sourceURL, "error", err)
		res.Failed++
		return res
	}

	id, err := identity.ComputeID(sourceURL, entry)
	if err != nil {
		p.log.Error("compute item identity", "subscription", sub.Name, "url", sourceURL, "error", err)
		res.Failed++
		return res
	}

	if seen[id] {
		return res
	}
	seen[id] = true

	args := buildArgs(sub, sourceURL, entry, extracted)

	rec, err := p.store.GetItem(ctx, sub.Name, id)
	if err != nil {
		p.log.Error("lookup item record", "subscription", sub.Name, "item", id, "error", err)
		res.Failed++
		return res
	}

	plain, err := destination.RenderPlain(sub.Text, args)
	if err != nil {
		p.log.Error("render item", "subscription", sub.Name, "item", id, "error", err)
		res.Failed++
		return res
	}
	contentHash := identity.ComputeFingerprint(plain)

	if rec == nil {
		rec = &model.ItemRecord{
			ID:          id,
			ContentHash: contentHash,
			Deliveries:  make(map[string]model.DeliveryStatus),
		}
		if err := p.store.InsertItem(ctx, sub.Name, rec); err != nil {
			p.log.Error("insert item record", "subscription", sub.Name, "item", id, "error", err)
			res.Failed++
			return res
		}
	} else if rec.ContentHash != contentHash {
		if err := p.store.UpdateItemContent(ctx, sub.Name, id, contentHash); err != nil {
			p.log.Error("update item content", "subscription", sub.Name, "item", id, "error", err)
		}
	}

	args["mirror_url"] = p.mirrorURL(ctx, sub, id, rec, entry)

	for _, destName := range sub.SendTo {
		adapter, ok := p.adapters[destName]
		if !ok {
			p.log.Warn("destination not configured, skipping", "subscription", sub.Name, "destination", destName)
			continue
		}
		if override, ok := sub.Overrides[destName]; ok {
			adapter = adapter.Override(override)
		}

		res.Add(p.deliver(ctx, sub, adapter, rec, id, contentHash, args))
	}

	return res
}

// deliver runs the delivery state machine for one destination.
func (p *Pipeline) deliver(ctx context.Context, sub model.Subscription, adapter destination.Adapter, rec *model.ItemRecord, id, contentHash string, args map[string]any) Result {
	var res Result
	destName := adapter.Name()

	st, posted := rec.Deliveries[destName]

	switch {
	case !posted && sub.IsNew:
		// First-time backfill: record the item but never notify for it.
		err := p.store.UpsertDelivery(ctx, sub.Name, id, destName, model.DeliveryStatus{
			MessageRef:  model.SuppressedRef,
			ContentHash: contentHash,
		})
		if err != nil {
			p.log.Error("record suppressed item", "subscription", sub.Name, "item", id, "destination", destName, "error", err)
			res.Failed++
			return res
		}
		res.Skipped++

	case !posted:
		text, err := adapter.Render(sub.Text, args)
		if err != nil {
			p.log.Error("render for destination", "subscription", sub.Name, "item", id, "destination", destName, "error", err)
			res.Failed++
			return res
		}

		ref, err := adapter.Send(ctx, text)
		if err != nil {
			p.log.Error("send message", "subscription", sub.Name, "item", id, "destination", destName, "error", err)
			res.Failed++
			return res
		}
		err = p.store.UpsertDelivery(ctx, sub.Name, id, destName, model.DeliveryStatus{
			MessageRef:  ref,
			ContentHash: contentHash,
			Exists:      true,
			Delivered:   true,
		})
		if err != nil {
			p.log.Error("persist delivery", "subscription", sub.Name, "item", id, "destination", destName, "error", err)
			res.Failed++
			return res
		}
		p.log.Info("sent message", "subscription", sub.Name, "item", id, "destination", destName, "ref", ref)
		res.Sent++

	case st.Exists && st.ContentHash != contentHash:
		text, err := adapter.Render(sub.Text, args)
		if err != nil {
			p.log.Error("render for destination", "subscription", sub.Name, "item", id, "destination", destName, "error", err)
			res.Failed++
			return res
		}

		outcome, err := adapter.Edit(ctx, st.MessageRef, text)
		if err != nil && outcome == destination.EditFailed {
			// Leave the record untouched; the next poll retries the edit.
			p.log.Error("edit message", "subscription", sub.Name, "item", id, "destination", destName, "error", err)
			res.Failed++
			return res
		}

		switch outcome {
		case destination.EditOK:
			st.ContentHash = contentHash
			st.Delivered = true
			if err := p.store.UpsertDelivery(ctx, sub.Name, id, destName, st); err != nil {
				p.log.Error("persist delivery", "subscription", sub.Name, "item", id, "destination", destName, "error", err)
				res.Failed++
				return res
			}
			p.log.Info("edited message", "subscription", sub.Name, "item", id, "destination", destName, "ref", st.MessageRef)
			res.Edited++
		case destination.EditNotFound:
			// Message vanished remotely: soft-delete, never resend.
			st.Exists = false
			st.ContentHash = contentHash
			if err := p.store.UpsertDelivery(ctx, sub.Name, id, destName, st); err != nil {
				p.log.Error("persist delivery", "subscription", sub.Name, "item", id, "destination", destName, "error", err)
				res.Failed++
				return res
			}
			p.log.Warn("message gone at destination, marked vanished", "subscription", sub.Name, "item", id, "destination", destName)
			res.Skipped++
		}

	default:
		// Unchanged content, or a message known to be gone.
		res.Skipped++
	}

	return res
}

// mirrorURL returns the item's mirror URL, publishing one if the
// subscription asks for it and none exists yet. Mirror failures degrade
// to no mirror rather than failing the item.
func (p *Pipeline) mirrorURL(ctx context.Context, sub model.Subscription, id string, rec *model.ItemRecord, entry model.Entry) string {
	if !sub.Mirror {
		return ""
	}
	if rec.MirrorURL != "" {
		return rec.MirrorURL
	}
	if p.mirror == nil {
		p.log.Warn("mirroring requested but not configured", "subscription", sub.Name)
		return ""
	}

	title, _ := entry["title"].(string)
	author, _ := entry["author"].(string)
	content, _ := entry["content"].(string)

	url, err := p.mirror.Publish(ctx, title, author, content)
	if err != nil {
		if errors.Is(err, mirror.ErrFloodLimited) {
			p.log.Warn("mirror flood limited, continuing without mirror", "subscription", sub.Name, "item", id)
		} else {
			p.log.Error("publish mirror", "subscription", sub.Name, "item", id, "error", err)
		}
		return ""
	}

	if err := p.store.SetMirrorURL(ctx, sub.Name, id, url); err != nil {
		p.log.Error("persist mirror url", "subscription", sub.Name, "item", id, "error", err)
	}
	rec.MirrorURL = url
	return url
}

// buildArgs merges extracted fields over the entry and adds the
// subscription context keys templates rely on.
func buildArgs(sub model.Subscription, sourceURL string, entry model.Entry, extracted map[string]any) map[string]any {
	args := make(map[string]any, len(entry)+len(extracted)+3)
	for k, v := range entry {
		args[k] = v
	}
	for k, v := range extracted {
		args[k] = v
	}

	if desc, ok := args["description"].(string); ok && len([]rune(desc)) > snippetLimit {
		truncated := string([]rune(desc)[:snippetLimit]) + "..."
		args["description"] = truncated
		args["summary"] = truncated
	}

	args["rss_name"] = sub.Name
	args["rss_url"] = sourceURL
	// Seeded empty so the fingerprint render sees a stable value; the
	// resolved mirror URL replaces it before delivery.
	args["mirror_url"] = ""
	return args
}
