package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var seenColumns = []string{"fingerprint", "title", "url", "published_at", "first_seen_at"}

// IsNew reports whether no bulletin with the fingerprint has been seen.
func (db *DB) IsNew(ctx context.Context, fingerprint string) (bool, error) {
	query, args, err := builder.Select("1").
		From("seen_bulletins").
		Where(sq.Eq{"fingerprint": fingerprint}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("building seen lookup: %w", err)
	}

	var one int
	err = db.conn.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking seen %s: %w", fingerprint, err)
	}
	return false, nil
}

// RecordSeen marks a bulletin as seen. Recording the same bulletin twice
// keeps the first record and is not an error.
func (db *DB) RecordSeen(ctx context.Context, in SeenInput) (*SeenRecord, error) {
	fp := Fingerprint(in.Title, in.URL)

	var published *string
	if in.PublishedAt != nil {
		s := formatTime(*in.PublishedAt)
		published = &s
	}

	query, args, err := builder.Insert("seen_bulletins").
		Options("OR IGNORE").
		Columns(seenColumns...).
		Values(fp, in.Title, in.URL, published, db.timestamp()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building seen insert: %w", err)
	}
	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("recording seen %s: %w", fp, err)
	}

	rec, err := db.GetSeen(ctx, fp)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("seen record %s missing after insert", fp)
	}
	return rec, nil
}

// GetSeen returns a seen record by fingerprint, or nil if absent.
func (db *DB) GetSeen(ctx context.Context, fingerprint string) (*SeenRecord, error) {
	query, args, err := builder.Select(seenColumns...).
		From("seen_bulletins").
		Where(sq.Eq{"fingerprint": fingerprint}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building seen select: %w", err)
	}

	rec, err := scanSeen(db.conn.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading seen %s: %w", fingerprint, err)
	}
	return rec, nil
}

// ListSeen returns the most recently detected bulletins first.
func (db *DB) ListSeen(ctx context.Context, limit int) ([]SeenRecord, error) {
	q := builder.Select(seenColumns...).
		From("seen_bulletins").
		OrderBy("first_seen_at DESC", "rowid DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building seen list: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SeenRecord
	for rows.Next() {
		rec, err := scanSeen(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// CountSeen returns the number of seen bulletins.
func (db *DB) CountSeen(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM seen_bulletins").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSeen(row scanner) (*SeenRecord, error) {
	var rec SeenRecord
	var published *string
	var firstSeen string
	if err := row.Scan(&rec.Fingerprint, &rec.Title, &rec.URL, &published, &firstSeen); err != nil {
		return nil, err
	}
	rec.PublishedAt = parseOptionalTime(published)
	if t, err := parseTime(firstSeen); err == nil {
		rec.FirstSeenAt = t
	}
	return &rec, nil
}
