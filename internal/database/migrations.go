package database

import (
	"database/sql"
	"fmt"
)

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS seen_bulletins (
    fingerprint TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    url TEXT NOT NULL,
    published_at TEXT,
    first_seen_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS deliveries (
    delivery_key TEXT PRIMARY KEY,
    item_fingerprint TEXT NOT NULL REFERENCES seen_bulletins(fingerprint),
    channel TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('sent', 'skipped', 'error')),
    recorded_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_reports (
    run_id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    candidates INTEGER DEFAULT 0,
    new_items INTEGER DEFAULT 0,
    delivery_status TEXT,
    subject TEXT,
    body_html TEXT
);

CREATE INDEX IF NOT EXISTS idx_seen_first_seen ON seen_bulletins(first_seen_at);
CREATE INDEX IF NOT EXISTS idx_deliveries_item ON deliveries(item_fingerprint);
CREATE INDEX IF NOT EXISTS idx_run_reports_started ON run_reports(started_at);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "import legacy boletins/envios tables",
		Up: func(tx *sql.Tx) error {
			legacy, err := hasTable(tx, "boletins")
			if err != nil {
				return err
			}
			if !legacy {
				return nil
			}
			if _, err := tx.Exec(`
INSERT OR IGNORE INTO seen_bulletins (fingerprint, title, url, published_at, first_seen_at)
SELECT id, COALESCE(titulo, ''), COALESCE(url, ''), publicado_em, COALESCE(inserido_em, datetime('now'))
FROM boletins`); err != nil {
				return fmt.Errorf("importing boletins: %w", err)
			}

			hasEnvios, err := hasTable(tx, "envios")
			if err != nil || !hasEnvios {
				return err
			}
			if _, err := tx.Exec(`
INSERT OR IGNORE INTO deliveries (delivery_key, item_fingerprint, channel, status, recorded_at)
SELECT e.id, e.boletim_id, e.canal, e.status, COALESCE(e.criado_em, datetime('now'))
FROM envios e JOIN seen_bulletins s ON s.fingerprint = e.boletim_id
WHERE e.status IN ('sent', 'skipped', 'error')`); err != nil {
				return fmt.Errorf("importing envios: %w", err)
			}
			return nil
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
