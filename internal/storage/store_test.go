package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tabsentry/internal/tabs"
)

// openTestStore creates a migrated file-backed Store for testing.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, db, err := Open(filepath.Join(t.TempDir(), "test.db"), "wal")
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
		db.Close()
	})
	return store
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func push(t *testing.T, s *SQLiteStore, url string, at time.Time, max int) {
	t.Helper()
	require.NoError(t, s.PushClosedTab(context.Background(), ClosedTab{URL: url, Title: url, Time: at}, max))
}

func urls(entries []ClosedTab) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.URL
	}
	return out
}

// --- PushClosedTab ---

func TestPushClosedTab_MostRecentFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	push(t, s, "https://a.example", t0, 50)
	push(t, s, "https://b.example", t0.Add(time.Second), 50)
	push(t, s, "https://c.example", t0.Add(2*time.Second), 50)

	got, err := s.ListClosedTabs(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://c.example", "https://b.example", "https://a.example"}, urls(got))
	assert.Equal(t, "b.example", got[1].Domain)
	assert.True(t, got[0].Time.Equal(t0.Add(2*time.Second)))
}

func TestPushClosedTab_SameURLTwiceKeepsOneNewest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	push(t, s, "https://a.example", t0, 50)
	push(t, s, "https://b.example", t0.Add(time.Second), 50)
	push(t, s, "https://a.example", t0.Add(2*time.Second), 50)

	got, err := s.ListClosedTabs(ctx, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "https://a.example", got[0].URL)
	assert.True(t, got[0].Time.Equal(t0.Add(2*time.Second)))
}

func TestPushClosedTab_CapDropsOldest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		push(t, s, fmt.Sprintf("https://site%d.example", i), t0.Add(time.Duration(i)*time.Second), 5)

		got, err := s.ListClosedTabs(ctx, "")
		require.NoError(t, err)
		assert.LessOrEqual(t, len(got), 5)
	}

	got, err := s.ListClosedTabs(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://site7.example",
		"https://site6.example",
		"https://site5.example",
		"https://site4.example",
		"https://site3.example",
	}, urls(got))
}

// --- LatestClosedTab ---

func TestLatestClosedTab(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	latest, err := s.LatestClosedTab(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	push(t, s, "https://a.example", t0, 50)
	push(t, s, "https://b.example", t0.Add(time.Second), 50)

	latest, err = s.LatestClosedTab(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "https://b.example", latest.URL)
}

// --- DeleteClosedTab ---

func TestDeleteClosedTab_MatchesURLAndTime(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Two legacy rows share a URL; only the one matching both fields goes.
	for _, at := range []time.Time{t0, t0.Add(time.Minute)} {
		_, err := s.db.Exec(
			"INSERT INTO closed_tabs (url, title, closed_at) VALUES (?, ?, ?)",
			"https://a.example", "A", formatTime(at),
		)
		require.NoError(t, err)
	}

	removed, err := s.DeleteClosedTab(ctx, "https://a.example", t0)
	require.NoError(t, err)
	assert.True(t, removed)

	got, err := s.ListClosedTabs(ctx, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Time.Equal(t0.Add(time.Minute)))
}

func TestDeleteClosedTab_AbsentIsNoop(t *testing.T) {
	s := openTestStore(t)
	push(t, s, "https://a.example", t0, 50)

	removed, err := s.DeleteClosedTab(context.Background(), "https://a.example", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestDeleteClosedTab_TimeFromOtherZone(t *testing.T) {
	s := openTestStore(t)
	push(t, s, "https://a.example", t0, 50)

	local := t0.In(time.FixedZone("CET", 3600))
	removed, err := s.DeleteClosedTab(context.Background(), "https://a.example", local)
	require.NoError(t, err)
	assert.True(t, removed)
}

// --- ClearClosedTabs ---

func TestClearClosedTabs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	push(t, s, "https://a.example", t0, 50)
	push(t, s, "https://b.example", t0, 50)

	n, err := s.ClearClosedTabs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := s.ListClosedTabs(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

// --- ListClosedTabs filter ---

func TestListClosedTabs_FilterIgnoresCase(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PushClosedTab(ctx, ClosedTab{URL: "https://go.dev/doc", Title: "Documentation", Time: t0}, 50))
	require.NoError(t, s.PushClosedTab(ctx, ClosedTab{URL: "https://news.example/today", Title: "Morning News", Time: t0}, 50))
	require.NoError(t, s.PushClosedTab(ctx, ClosedTab{URL: "https://example.com/GOPHER", Title: "Mascot", Time: t0}, 50))

	got, err := s.ListClosedTabs(ctx, "NEWS")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://news.example/today"}, urls(got))

	got, err = s.ListClosedTabs(ctx, "go")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/GOPHER", "https://go.dev/doc"}, urls(got))

	require.NoError(t, s.PushClosedTab(ctx, ClosedTab{URL: "https://de.example/", Title: "Über uns", Time: t0}, 50))
	got, err = s.ListClosedTabs(ctx, "über")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://de.example/"}, urls(got))

	got, err = s.ListClosedTabs(ctx, "nothing-matches")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

// --- Locked tabs ---

func TestLockedTabs_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ids, err := s.LoadLockedTabs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, s.SaveLockedTabs(ctx, []tabs.TabID{42, 7, 7, 19}))
	ids, err = s.LoadLockedTabs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []tabs.TabID{7, 19, 42}, ids)

	require.NoError(t, s.SaveLockedTabs(ctx, []tabs.TabID{19}))
	ids, err = s.LoadLockedTabs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []tabs.TabID{19}, ids)
}

// --- Records ---

func TestRecords_GetPut(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, found, err := s.GetRecord(ctx, RecordSettings)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.PutRecord(ctx, RecordSettings, []byte(`{"enabled":false}`)))
	require.NoError(t, s.PutRecord(ctx, RecordSettings, []byte(`{"enabled":true}`)))

	v, found, err := s.GetRecord(ctx, RecordSettings)
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"enabled":true}`, string(v))
}

// --- Errors ---

func TestClosedDB_ReportsTransientIO(t *testing.T) {
	store, db, err := Open(filepath.Join(t.TempDir(), "test.db"), "wal")
	require.NoError(t, err)
	store.Close()
	db.Close()

	_, err = store.ListClosedTabs(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, tabs.ErrTransientIO))

	_, err = store.ClearClosedTabs(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, tabs.ErrTransientIO))
}

// --- Stats ---

func TestGetStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.ClosedTabs)
	assert.True(t, stats.OldestClosed.IsZero())

	push(t, s, "https://a.example/1", t0, 50)
	push(t, s, "https://a.example/2", t0.Add(time.Hour), 50)
	push(t, s, "https://b.example/1", t0.Add(2*time.Hour), 50)
	require.NoError(t, s.SaveLockedTabs(ctx, []tabs.TabID{1, 2}))

	stats, err = s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.ClosedTabs)
	assert.Equal(t, int64(2), stats.LockedTabs)
	assert.True(t, stats.OldestClosed.Equal(t0))
	assert.True(t, stats.NewestClosed.Equal(t0.Add(2*time.Hour)))
	assert.Greater(t, stats.DatabaseSizeBytes, int64(0))
	require.NotEmpty(t, stats.TopDomains)
	assert.Equal(t, DomainCount{Domain: "a.example", Count: 2}, stats.TopDomains[0])
}
