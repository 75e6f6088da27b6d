package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var runColumns = []string{
	"run_id", "started_at", "finished_at", "candidates", "new_items",
	"delivery_status", "subject", "body_html",
}

// InsertRunReport stores the report of a finished run.
func (db *DB) InsertRunReport(ctx context.Context, r RunReport) error {
	query, args, err := builder.Insert("run_reports").
		Options("OR REPLACE").
		Columns(runColumns...).
		Values(r.RunID, formatTime(r.StartedAt), formatTime(r.FinishedAt), r.Candidates, r.NewItems,
			r.DeliveryStatus, r.Subject, r.BodyHTML).
		ToSql()
	if err != nil {
		return fmt.Errorf("building run report insert: %w", err)
	}
	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting run report %s: %w", r.RunID, err)
	}
	return nil
}

// GetRunReport returns a run report by ID, or nil if absent.
func (db *DB) GetRunReport(ctx context.Context, runID string) (*RunReport, error) {
	query, args, err := builder.Select(runColumns...).
		From("run_reports").
		Where(sq.Eq{"run_id": runID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building run report select: %w", err)
	}

	r, err := scanRunReport(db.conn.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRunReports returns the most recent run reports first.
func (db *DB) ListRunReports(ctx context.Context, limit int) ([]RunReport, error) {
	q := builder.Select(runColumns...).
		From("run_reports").
		OrderBy("started_at DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building run report list: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []RunReport
	for rows.Next() {
		r, err := scanRunReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{}

	var err error
	if s.SeenBulletins, err = db.CountSeen(ctx); err != nil {
		return nil, err
	}

	counts, err := db.CountDeliveries(ctx)
	if err != nil {
		return nil, err
	}
	s.DeliveriesSent = counts[DeliverySent]
	s.DeliveriesSkipped = counts[DeliverySkipped]
	s.DeliveriesFailed = counts[DeliveryError]

	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM run_reports").Scan(&s.Runs); err != nil {
		return nil, err
	}

	var last *string
	if err := db.conn.QueryRowContext(ctx, "SELECT MAX(started_at) FROM run_reports").Scan(&last); err != nil {
		return nil, err
	}
	s.LastRunAt = parseOptionalTime(last)

	return s, nil
}

func scanRunReport(row scanner) (*RunReport, error) {
	var r RunReport
	var started, finished string
	if err := row.Scan(&r.RunID, &started, &finished, &r.Candidates, &r.NewItems,
		&r.DeliveryStatus, &r.Subject, &r.BodyHTML); err != nil {
		return nil, err
	}
	if t, err := parseTime(started); err == nil {
		r.StartedAt = t
	}
	if t, err := parseTime(finished); err == nil {
		r.FinishedAt = t
	}
	return &r, nil
}
