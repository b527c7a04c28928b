package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"feedrelay/internal/model"
	"feedrelay/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// GetItem returns the record for (subscription, id) with its delivery
// statuses, or nil when no record exists.
func (s *SQLite) GetItem(ctx context.Context, subscription, id string) (*model.ItemRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content_hash, mirror_url, created_at, updated_at
		 FROM item_records WHERE subscription = ? AND id = ?`, subscription, id,
	)

	var rec model.ItemRecord
	var created, updated string
	err := row.Scan(&rec.ID, &rec.ContentHash, &rec.MirrorURL, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan item record: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(timeLayout, created)
	rec.UpdatedAt, _ = time.Parse(timeLayout, updated)

	rec.Deliveries = make(map[string]model.DeliveryStatus)
	rows, err := s.db.QueryContext(ctx,
		`SELECT destination, message_ref, content_hash, message_present, delivered
		 FROM delivery_status WHERE subscription = ? AND item_id = ?`, subscription, id,
	)
	if err != nil {
		return nil, fmt.Errorf("query delivery statuses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var dest string
		var st model.DeliveryStatus
		var present, delivered int
		if err := rows.Scan(&dest, &st.MessageRef, &st.ContentHash, &present, &delivered); err != nil {
			return nil, fmt.Errorf("scan delivery status: %w", err)
		}
		st.Exists = present == 1
		st.Delivered = delivered == 1
		rec.Deliveries[dest] = st
	}
	return &rec, rows.Err()
}

// InsertItem creates a new item record together with any delivery statuses
// already present on it.
func (s *SQLite) InsertItem(ctx context.Context, subscription string, rec *model.ItemRecord) error {
	now := time.Now().UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO item_records (subscription, id, content_hash, mirror_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		subscription, rec.ID, rec.ContentHash, rec.MirrorURL, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert item record: %w", err)
	}

	for dest, st := range rec.Deliveries {
		if err := upsertDeliveryTx(ctx, tx, subscription, rec.ID, dest, st); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(timeLayout, now)
	rec.UpdatedAt = rec.CreatedAt
	return nil
}

// UpdateItemContent stores a new shared content fingerprint for an item.
func (s *SQLite) UpdateItemContent(ctx context.Context, subscription, id, contentHash string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`UPDATE item_records SET content_hash = ?, updated_at = ?
		 WHERE subscription = ? AND id = ?`,
		contentHash, now, subscription, id,
	)
	if err != nil {
		return fmt.Errorf("update item content: %w", err)
	}
	return nil
}

// SetMirrorURL records the mirror URL for an item. Once set it is never
// overwritten; the guard keeps a published mirror immutable.
func (s *SQLite) SetMirrorURL(ctx context.Context, subscription, id, mirrorURL string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE item_records SET mirror_url = ?
		 WHERE subscription = ? AND id = ? AND mirror_url = ''`,
		mirrorURL, subscription, id,
	)
	if err != nil {
		return fmt.Errorf("set mirror url: %w", err)
	}
	return nil
}

// UpsertDelivery writes one destination's delivery status for an item.
func (s *SQLite) UpsertDelivery(ctx context.Context, subscription, itemID, destination string, st model.DeliveryStatus) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_status (subscription, item_id, destination, message_ref, content_hash, message_present, delivered)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (subscription, item_id, destination) DO UPDATE SET
		   message_ref = excluded.message_ref,
		   content_hash = excluded.content_hash,
		   message_present = excluded.message_present,
		   delivered = excluded.delivered`,
		subscription, itemID, destination, st.MessageRef, st.ContentHash,
		boolToInt(st.Exists), boolToInt(st.Delivered),
	)
	if err != nil {
		return fmt.Errorf("upsert delivery status: %w", err)
	}
	return nil
}

func upsertDeliveryTx(ctx context.Context, tx *sql.Tx, subscription, itemID, dest string, st model.DeliveryStatus) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO delivery_status (subscription, item_id, destination, message_ref, content_hash, message_present, delivered)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (subscription, item_id, destination) DO UPDATE SET
		   message_ref = excluded.message_ref,
		   content_hash = excluded.content_hash,
		   message_present = excluded.message_present,
		   delivered = excluded.delivered`,
		subscription, itemID, dest, st.MessageRef, st.ContentHash,
		boolToInt(st.Exists), boolToInt(st.Delivered),
	)
	if err != nil {
		return fmt.Errorf("upsert delivery status: %w", err)
	}
	return nil
}

// PurgeOlderThan deletes item records created before cutoff across all
// subscriptions and returns the number of deleted records.
func (s *SQLite) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cut := cutoff.UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM delivery_status WHERE (subscription, item_id) IN
		   (SELECT subscription, id FROM item_records WHERE created_at < ?)`, cut,
	)
	if err != nil {
		return 0, fmt.Errorf("delete delivery statuses: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM item_records WHERE created_at < ?`, cut)
	if err != nil {
		return 0, fmt.Errorf("delete item records: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return deleted, tx.Commit()
}

// IncrementFeedFailures bumps the consecutive-failure counter for a feed
// URL and returns the new count.
func (s *SQLite) IncrementFeedFailures(ctx context.Context, url string) (int, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feed_health (url, consecutive_failures) VALUES (?, 1)
		 ON CONFLICT (url) DO UPDATE SET consecutive_failures = consecutive_failures + 1`,
		url,
	)
	if err != nil {
		return 0, fmt.Errorf("increment feed failures: %w", err)
	}

	var count int
	err = s.db.QueryRowContext(ctx,
		`SELECT consecutive_failures FROM feed_health WHERE url = ?`, url,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("read feed failures: %w", err)
	}
	return count, nil
}

// ResetFeedFailures zeroes the consecutive-failure counter for a feed URL.
func (s *SQLite) ResetFeedFailures(ctx context.Context, url string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feed_health (url, consecutive_failures) VALUES (?, 0)
		 ON CONFLICT (url) DO UPDATE SET consecutive_failures = 0`,
		url,
	)
	if err != nil {
		return fmt.Errorf("reset feed failures: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
