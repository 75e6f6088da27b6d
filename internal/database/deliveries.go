package database

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// RecordDelivery upserts the outcome of delivering a bulletin on a
// channel. The last write for a (bulletin, channel) pair wins.
func (db *DB) RecordDelivery(ctx context.Context, fingerprint, channel, status string) error {
	switch status {
	case DeliverySent, DeliverySkipped, DeliveryError:
	default:
		return fmt.Errorf("unknown delivery status %q", status)
	}

	query, args, err := builder.Insert("deliveries").
		Columns("delivery_key", "item_fingerprint", "channel", "status", "recorded_at").
		Values(DeliveryKey(fingerprint, channel), fingerprint, channel, status, db.timestamp()).
		Suffix("ON CONFLICT(delivery_key) DO UPDATE SET status = excluded.status, recorded_at = excluded.recorded_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building delivery upsert: %w", err)
	}

	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("recording delivery for %s: %w", fingerprint, err)
	}
	return nil
}

// ListDeliveries returns the delivery records of a bulletin.
func (db *DB) ListDeliveries(ctx context.Context, fingerprint string) ([]DeliveryRecord, error) {
	query, args, err := builder.Select("delivery_key", "item_fingerprint", "channel", "status", "recorded_at").
		From("deliveries").
		Where(sq.Eq{"item_fingerprint": fingerprint}).
		OrderBy("channel").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building delivery list: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []DeliveryRecord
	for rows.Next() {
		var d DeliveryRecord
		var recorded string
		if err := rows.Scan(&d.DeliveryKey, &d.ItemFingerprint, &d.Channel, &d.Status, &recorded); err != nil {
			return nil, err
		}
		if t, err := parseTime(recorded); err == nil {
			d.RecordedAt = t
		}
		records = append(records, d)
	}
	return records, rows.Err()
}

// CountDeliveries returns the number of delivery records per status.
func (db *DB) CountDeliveries(ctx context.Context) (map[string]int, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT status, COUNT(*) FROM deliveries GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
