package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func TestRecordActivity_UpdatesLastActive(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	tr := NewTracker(clock.Now)

	_, ok := tr.LastActive(1)
	assert.False(t, ok, "unseen tab has no activity")

	tr.RecordActivity(1)
	clock.t = clock.t.Add(time.Minute)
	tr.RecordActivity(2)

	at, ok := tr.LastActive(1)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), at)

	at, ok = tr.LastActive(2)
	require.True(t, ok)
	assert.Equal(t, clock.t, at)
}

func TestRecordNavigation_DoesNotTouchActivity(t *testing.T) {
	tr := NewTracker(nil)

	tr.RecordNavigation(3, "https://example.com/a", "Example")

	_, ok := tr.LastActive(3)
	assert.False(t, ok)

	url, title, ok := tr.Lookup(3)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/a", url)
	assert.Equal(t, "Example", title)
}

func TestRecordNavigation_TitleFallbacks(t *testing.T) {
	tr := NewTracker(nil)

	tr.RecordNavigation(1, "https://news.example.org/x", "")
	_, title, _ := tr.Lookup(1)
	assert.Equal(t, "news.example.org", title)

	tr.RecordNavigation(2, "::not-a-url", "")
	_, title, _ = tr.Lookup(2)
	assert.Equal(t, "::not-a-url", title)

	tr.RecordNavigation(4, "", "ignored")
	_, _, ok := tr.Lookup(4)
	assert.False(t, ok)
}

func TestForget(t *testing.T) {
	tr := NewTracker(nil)
	tr.RecordActivity(5)
	tr.RecordNavigation(5, "https://example.com", "")

	tr.Forget(5)
	tr.Forget(99)

	_, ok := tr.LastActive(5)
	assert.False(t, ok)
	_, _, ok = tr.Lookup(5)
	assert.False(t, ok)
}

func TestSnapshot_OrderedByID(t *testing.T) {
	tr := NewTracker(nil)
	tr.RecordNavigation(9, "https://b.example", "B")
	tr.RecordNavigation(2, "https://a.example", "A")

	snap := tr.Snapshot()
	require.Len(t, snap, 2)
	assert.EqualValues(t, 2, snap[0].ID)
	assert.Equal(t, "A", snap[0].Title)
	assert.EqualValues(t, 9, snap[1].ID)
}
