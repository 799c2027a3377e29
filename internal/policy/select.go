package policy

import (
	"time"

	"github.com/runnerr0/tabsentry/internal/tabs"
)

// Candidate is an evictable tab with its last observed activity. Seen is
// false when no activity was ever recorded.
type Candidate struct {
	Tab        tabs.Tab
	LastActive time.Time
	Seen       bool
}

// effective treats a tab with no recorded activity as active right now.
func (c Candidate) effective(now time.Time) time.Time {
	if !c.Seen {
		return now
	}
	return c.LastActive
}

// SelectVictim picks the tab to close. Tabs idle for at least idle are
// preferred; when none qualify every candidate is considered. Within the
// pool the oldest activity wins and ties go to the lowest tab id.
func SelectVictim(candidates []Candidate, now time.Time, idle time.Duration) (tabs.Tab, bool) {
	if len(candidates) == 0 {
		return tabs.Tab{}, false
	}

	pool := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if now.Sub(c.effective(now)) >= idle {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		pool = candidates
	}

	best := pool[0]
	for _, c := range pool[1:] {
		bt, ct := best.effective(now), c.effective(now)
		if ct.Before(bt) || (ct.Equal(bt) && c.Tab.ID < best.Tab.ID) {
			best = c
		}
	}
	return best.Tab, true
}
