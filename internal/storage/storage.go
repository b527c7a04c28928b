// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"feedrelay/internal/model"
)

// Storage is the interface for all persistence operations. Records are
// scoped by subscription name; two subscriptions never share records.
type Storage interface {
	// GetItem returns the record for (subscription, id) with its delivery
	// statuses, or nil when no record exists.
	GetItem(ctx context.Context, subscription, id string) (*model.ItemRecord, error)
	InsertItem(ctx context.Context, subscription string, rec *model.ItemRecord) error
	UpdateItemContent(ctx context.Context, subscription, id, contentHash string) error
	SetMirrorURL(ctx context.Context, subscription, id, mirrorURL string) error
	UpsertDelivery(ctx context.Context, subscription, itemID, destination string, st model.DeliveryStatus) error

	// PurgeOlderThan deletes item records (and their delivery statuses)
	// created before cutoff, across all subscriptions, and reports the
	// number of deleted records.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	IncrementFeedFailures(ctx context.Context, url string) (int, error)
	ResetFeedFailures(ctx context.Context, url string) error

	Close() error
}
