package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"feedrelay/internal/model"
)

var ignoreTimestamps = cmpopts.IgnoreFields(model.ItemRecord{}, "CreatedAt", "UpdatedAt")

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestItemRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	got, err := s.GetItem(ctx, "news", "absent")
	if err != nil {
		t.Fatalf("get absent: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for absent record, got %+v", got)
	}

	rec := &model.ItemRecord{
		ID:          "aaaa1111bbbb2222",
		ContentHash: "hash-1",
		Deliveries: map[string]model.DeliveryStatus{
			"main": {MessageRef: "101", ContentHash: "hash-1", Exists: true, Delivered: true},
			"fedi": {MessageRef: model.SuppressedRef, ContentHash: "hash-1"},
		},
	}
	if err := s.InsertItem(ctx, "news", rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set after insert")
	}

	got, err = s.GetItem(ctx, "news", rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(rec, got, ignoreTimestamps); diff != "" {
		t.Errorf("GetItem mismatch (-want +got):\n%s", diff)
	}

	// Records are scoped per subscription.
	other, err := s.GetItem(ctx, "other-sub", rec.ID)
	if err != nil {
		t.Fatalf("get other sub: %v", err)
	}
	if other != nil {
		t.Error("record leaked across subscriptions")
	}
}

func TestUpdateItemContent(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	rec := &model.ItemRecord{ID: "item-1", ContentHash: "old"}
	if err := s.InsertItem(ctx, "news", rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := s.UpdateItemContent(ctx, "news", "item-1", "new"); err != nil {
		t.Fatalf("update content: %v", err)
	}

	got, err := s.GetItem(ctx, "news", "item-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ContentHash != "new" {
		t.Errorf("content hash = %q, want new", got.ContentHash)
	}
}

func TestSetMirrorURLIsImmutable(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	rec := &model.ItemRecord{ID: "item-1", ContentHash: "h"}
	if err := s.InsertItem(ctx, "news", rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := s.SetMirrorURL(ctx, "news", "item-1", "https://telegra.ph/first"); err != nil {
		t.Fatalf("set mirror url: %v", err)
	}
	if err := s.SetMirrorURL(ctx, "news", "item-1", "https://telegra.ph/second"); err != nil {
		t.Fatalf("set mirror url again: %v", err)
	}

	got, err := s.GetItem(ctx, "news", "item-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MirrorURL != "https://telegra.ph/first" {
		t.Errorf("mirror url = %q, want the first value to stick", got.MirrorURL)
	}
}

func TestUpsertDelivery(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	rec := &model.ItemRecord{ID: "item-1", ContentHash: "h1"}
	if err := s.InsertItem(ctx, "news", rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	first := model.DeliveryStatus{MessageRef: "55", ContentHash: "h1", Exists: true, Delivered: true}
	if err := s.UpsertDelivery(ctx, "news", "item-1", "main", first); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Same key again replaces the row instead of erroring.
	second := model.DeliveryStatus{MessageRef: "55", ContentHash: "h2", Exists: false, Delivered: true}
	if err := s.UpsertDelivery(ctx, "news", "item-1", "main", second); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	got, err := s.GetItem(ctx, "news", "item-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(map[string]model.DeliveryStatus{"main": second}, got.Deliveries); diff != "" {
		t.Errorf("deliveries mismatch (-want +got):\n%s", diff)
	}
}

func TestPurgeOlderThan(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	old := &model.ItemRecord{
		ID:          "old-item",
		ContentHash: "h",
		Deliveries: map[string]model.DeliveryStatus{
			"main": {MessageRef: "1", ContentHash: "h", Exists: true, Delivered: true},
		},
	}
	fresh := &model.ItemRecord{ID: "fresh-item", ContentHash: "h"}

	if err := s.InsertItem(ctx, "news", old); err != nil {
		t.Fatalf("insert old: %v", err)
	}
	if err := s.InsertItem(ctx, "news", fresh); err != nil {
		t.Fatalf("insert fresh: %v", err)
	}

	// Backdate the old record past the cutoff.
	backdated := time.Now().UTC().Add(-48 * time.Hour).Format(timeLayout)
	if _, err := s.db.Exec(`UPDATE item_records SET created_at = ? WHERE id = ?`, backdated, "old-item"); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	deleted, err := s.PurgeOlderThan(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	gone, err := s.GetItem(ctx, "news", "old-item")
	if err != nil {
		t.Fatalf("get purged: %v", err)
	}
	if gone != nil {
		t.Error("purged record still present")
	}

	kept, err := s.GetItem(ctx, "news", "fresh-item")
	if err != nil {
		t.Fatalf("get kept: %v", err)
	}
	if kept == nil {
		t.Error("fresh record was purged")
	}

	// Delivery rows of the purged item are gone too.
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM delivery_status WHERE item_id = 'old-item'`).Scan(&count); err != nil {
		t.Fatalf("count deliveries: %v", err)
	}
	if count != 0 {
		t.Errorf("orphaned delivery rows = %d, want 0", count)
	}
}

func TestFeedFailureCounters(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	const url = "https://example.com/rss"

	for want := 1; want <= 3; want++ {
		got, err := s.IncrementFeedFailures(ctx, url)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if got != want {
			t.Errorf("count = %d, want %d", got, want)
		}
	}

	if err := s.ResetFeedFailures(ctx, url); err != nil {
		t.Fatalf("reset: %v", err)
	}

	got, err := s.IncrementFeedFailures(ctx, url)
	if err != nil {
		t.Fatalf("increment after reset: %v", err)
	}
	if got != 1 {
		t.Errorf("count after reset = %d, want 1", got)
	}

	// Reset of a never-seen URL is not an error.
	if err := s.ResetFeedFailures(ctx, "https://example.com/other"); err != nil {
		t.Fatalf("reset unseen: %v", err)
	}
}
