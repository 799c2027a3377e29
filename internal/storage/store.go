package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/runnerr0/tabsentry/internal/tabs"
)

// Store defines the persisted state owned by the daemon: the closed-tab
// history, the locked tab set and named JSON records such as settings.
// Every failure is classified as tabs.ErrTransientIO.
type Store interface {
	ListClosedTabs(ctx context.Context, filter string) ([]ClosedTab, error)
	LatestClosedTab(ctx context.Context) (*ClosedTab, error)
	PushClosedTab(ctx context.Context, entry ClosedTab, max int) error
	DeleteClosedTab(ctx context.Context, url string, at time.Time) (bool, error)
	ClearClosedTabs(ctx context.Context) (int64, error)
	LoadLockedTabs(ctx context.Context) ([]tabs.TabID, error)
	SaveLockedTabs(ctx context.Context, ids []tabs.TabID) error
	GetRecord(ctx context.Context, key string) ([]byte, bool, error)
	PutRecord(ctx context.Context, key string, value []byte) error
	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB

	// Prepared statements
	latestClosed *sql.Stmt
	deleteClosed *sql.Stmt
	getRecord    *sql.Stmt
	putRecord    *sql.Stmt
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLiteStore from an already-opened and migrated database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}

	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.latestClosed, err = s.db.Prepare(`
		SELECT url, title, domain, closed_at FROM closed_tabs
		ORDER BY id DESC LIMIT 1
	`)
	if err != nil {
		return err
	}

	s.deleteClosed, err = s.db.Prepare(`
		DELETE FROM closed_tabs WHERE id = (
			SELECT id FROM closed_tabs WHERE url = ? AND closed_at = ?
			ORDER BY id DESC LIMIT 1
		)
	`)
	if err != nil {
		return err
	}

	s.getRecord, err = s.db.Prepare(`SELECT value FROM records WHERE key = ?`)
	if err != nil {
		return err
	}

	s.putRecord, err = s.db.Prepare(`
		INSERT INTO records (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return err
	}

	return nil
}

// ioErr classifies a database failure as transient.
func ioErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, tabs.ErrTransientIO, err)
}

// formatTime is the persisted timestamp layout; it round-trips exactly,
// which DeleteClosedTab relies on.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTimestamp tries several common SQLite timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp: %s", s)
}

// extractDomain pulls the hostname from a URL string.
func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// ListClosedTabs returns history entries most-recent-first. A non-empty
// filter keeps entries whose title or URL contains it, ignoring case.
// Matching runs in Go since SQLite's lower() folds ASCII only; the table
// is capped, so a full scan stays small.
func (s *SQLiteStore) ListClosedTabs(ctx context.Context, filter string) ([]ClosedTab, error) {
	needle := strings.ToLower(strings.TrimSpace(filter))

	rows, err := s.db.QueryContext(ctx, `SELECT url, title, domain, closed_at FROM closed_tabs ORDER BY id DESC`)
	if err != nil {
		return nil, ioErr("query closed tabs", err)
	}
	defer rows.Close()

	entries := []ClosedTab{}
	for rows.Next() {
		e, err := scanClosedTab(rows)
		if err != nil {
			return nil, ioErr("scan closed tab", err)
		}
		if needle != "" && !strings.Contains(strings.ToLower(e.Title), needle) &&
			!strings.Contains(strings.ToLower(e.URL), needle) {
			continue
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr("iterate closed tabs", err)
	}

	return entries, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClosedTab(r rowScanner) (ClosedTab, error) {
	var e ClosedTab
	var ts string
	if err := r.Scan(&e.URL, &e.Title, &e.Domain, &ts); err != nil {
		return ClosedTab{}, err
	}
	e.Time, _ = parseTimestamp(ts)
	return e, nil
}

// LatestClosedTab returns the most recent history entry, or nil when the
// history is empty.
func (s *SQLiteStore) LatestClosedTab(ctx context.Context) (*ClosedTab, error) {
	e, err := scanClosedTab(s.latestClosed.QueryRowContext(ctx))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, ioErr("latest closed tab", err)
	}
	return &e, nil
}

// PushClosedTab removes every entry with the same URL, prepends entry and
// truncates the history to max entries, all in one transaction.
func (s *SQLiteStore) PushClosedTab(ctx context.Context, entry ClosedTab, max int) error {
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	if entry.Domain == "" {
		entry.Domain = extractDomain(entry.URL)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ioErr("begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM closed_tabs WHERE url = ?`, entry.URL); err != nil {
		return ioErr("dedupe closed tab", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO closed_tabs (url, title, domain, closed_at) VALUES (?, ?, ?, ?)`,
		entry.URL, entry.Title, entry.Domain, formatTime(entry.Time),
	); err != nil {
		return ioErr("insert closed tab", err)
	}

	if max > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM closed_tabs WHERE id NOT IN (
				SELECT id FROM closed_tabs ORDER BY id DESC LIMIT ?
			)`, max,
		); err != nil {
			return ioErr("truncate closed tabs", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ioErr("commit closed tab", err)
	}
	return nil
}

// DeleteClosedTab removes the single entry matching both url and time.
// It reports whether an entry was removed.
func (s *SQLiteStore) DeleteClosedTab(ctx context.Context, url string, at time.Time) (bool, error) {
	res, err := s.deleteClosed.ExecContext(ctx, url, formatTime(at))
	if err != nil {
		return false, ioErr("delete closed tab", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, ioErr("delete closed tab", err)
	}
	return n > 0, nil
}

// ClearClosedTabs empties the history and returns how many entries were dropped.
func (s *SQLiteStore) ClearClosedTabs(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM closed_tabs`)
	if err != nil {
		return 0, ioErr("clear closed tabs", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, ioErr("clear closed tabs", err)
	}
	return n, nil
}

// LoadLockedTabs returns the persisted lock set in ascending id order.
func (s *SQLiteStore) LoadLockedTabs(ctx context.Context) ([]tabs.TabID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tab_id FROM locked_tabs ORDER BY tab_id`)
	if err != nil {
		return nil, ioErr("query locked tabs", err)
	}
	defer rows.Close()

	ids := []tabs.TabID{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, ioErr("scan locked tab", err)
		}
		ids = append(ids, tabs.TabID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr("iterate locked tabs", err)
	}
	return ids, nil
}

// SaveLockedTabs replaces the persisted lock set with ids.
func (s *SQLiteStore) SaveLockedTabs(ctx context.Context, ids []tabs.TabID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ioErr("begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM locked_tabs`); err != nil {
		return ioErr("reset locked tabs", err)
	}

	sorted := append([]tabs.TabID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for _, id := range sorted {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO locked_tabs (tab_id) VALUES (?)`, int64(id),
		); err != nil {
			return ioErr("insert locked tab", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ioErr("commit locked tabs", err)
	}
	return nil
}

// GetRecord reads a named record. The bool is false when the record has
// never been written.
func (s *SQLiteStore) GetRecord(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.getRecord.QueryRowContext(ctx, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, ioErr("get record "+key, err)
	}
	return []byte(value), true, nil
}

// PutRecord writes a named record, replacing any previous value.
func (s *SQLiteStore) PutRecord(ctx context.Context, key string, value []byte) error {
	if _, err := s.putRecord.ExecContext(ctx, key, string(value)); err != nil {
		return ioErr("put record "+key, err)
	}
	return nil
}

// GetStats returns aggregate statistics about the database.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM closed_tabs").Scan(&stats.ClosedTabs)
	if err != nil {
		return nil, ioErr("count closed tabs", err)
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM locked_tabs").Scan(&stats.LockedTabs)
	if err != nil {
		return nil, ioErr("count locked tabs", err)
	}

	// Oldest and newest (handle empty DB)
	if stats.ClosedTabs > 0 {
		var oldestStr, newestStr string
		err = s.db.QueryRowContext(ctx, "SELECT MIN(closed_at), MAX(closed_at) FROM closed_tabs").Scan(&oldestStr, &newestStr)
		if err != nil {
			return nil, ioErr("closed tab time range", err)
		}
		stats.OldestClosed, _ = parseTimestamp(oldestStr)
		stats.NewestClosed, _ = parseTimestamp(newestStr)
	}

	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err == nil {
			stats.DatabaseSizeBytes = pageCount * pageSize
		}
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT domain, COUNT(*) as cnt FROM closed_tabs WHERE domain != '' GROUP BY domain ORDER BY cnt DESC, domain LIMIT 10",
	)
	if err != nil {
		return nil, ioErr("top domains", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dc DomainCount
		if err := rows.Scan(&dc.Domain, &dc.Count); err != nil {
			return nil, ioErr("scan top domain", err)
		}
		stats.TopDomains = append(stats.TopDomains, dc)
	}

	if err := rows.Err(); err != nil {
		return nil, ioErr("iterate top domains", err)
	}
	return stats, nil
}

// Close releases all prepared statements. The caller closes the *sql.DB.
func (s *SQLiteStore) Close() error {
	stmts := []*sql.Stmt{
		s.latestClosed, s.deleteClosed, s.getRecord, s.putRecord,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}
