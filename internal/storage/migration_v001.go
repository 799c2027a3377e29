package storage

import "database/sql"

// migrateV001 creates the initial tabsentry schema. Every statement uses
// IF NOT EXISTS for idempotency.
func migrateV001(tx *sql.Tx) error {
	stmts := []string{
		// ── Tables ──────────────────────────────────────────────

		// Insertion order (id) is history order: the highest id is the
		// most recently closed tab.
		`CREATE TABLE IF NOT EXISTS closed_tabs (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			url        TEXT NOT NULL,
			title      TEXT NOT NULL DEFAULT '',
			domain     TEXT NOT NULL DEFAULT '',
			closed_at  TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS locked_tabs (
			tab_id    INTEGER PRIMARY KEY,
			locked_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS records (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// ── Indexes ────────────────────────────────────────────

		`CREATE INDEX IF NOT EXISTS idx_closed_tabs_url       ON closed_tabs(url)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_tabs_url_time  ON closed_tabs(url, closed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_tabs_domain    ON closed_tabs(domain)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
