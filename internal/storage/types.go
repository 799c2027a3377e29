package storage

import "time"

// ClosedTab is one entry of the closed-tab history.
type ClosedTab struct {
	URL    string    `json:"url"`
	Title  string    `json:"title"`
	Domain string    `json:"domain,omitempty"`
	Time   time.Time `json:"time"`
}

// Record keys in the records table.
const (
	RecordSettings = "settings"
)

// Stats holds aggregate statistics about the tabsentry database.
type Stats struct {
	ClosedTabs        int64         `json:"closedTabs"`
	LockedTabs        int64         `json:"lockedTabs"`
	OldestClosed      time.Time     `json:"oldestClosed"`
	NewestClosed      time.Time     `json:"newestClosed"`
	DatabaseSizeBytes int64         `json:"databaseSizeBytes"`
	TopDomains        []DomainCount `json:"topDomains,omitempty"`
}

// DomainCount pairs a domain with its closed-tab count.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int64  `json:"count"`
}
