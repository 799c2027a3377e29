package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/runnerr0/tabsentry/internal/storage"
)

// Execute implements the go-flags Commander interface for HistoryCommand.
func (c *HistoryCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	store, db, _, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return c.executeWithStore(store)
}

// executeWithStore lists the history from a provided store (for testing).
// Reads go straight to the store; the daemon need not be running.
func (c *HistoryCommand) executeWithStore(store *storage.SQLiteStore) error {
	entries, err := store.ListClosedTabs(context.Background(), c.Filter)
	if err != nil {
		return fmt.Errorf("list closed tabs: %w", err)
	}
	if c.Limit > 0 && len(entries) > c.Limit {
		entries = entries[:c.Limit]
	}

	if c.globals != nil && c.globals.JSON {
		return c.printJSON(entries)
	}
	c.printHuman(entries, time.Now())
	return nil
}

func (c *HistoryCommand) printHuman(entries []storage.ClosedTab, now time.Time) {
	if len(entries) == 0 {
		if c.Filter != "" {
			fmt.Printf("No closed tabs match %q\n", c.Filter)
		} else {
			fmt.Println("No closed tabs")
		}
		return
	}

	for i, e := range entries {
		fmt.Printf("%d. %s\n", i+1, e.Title)
		fmt.Printf("   %s\n", e.URL)
		fmt.Printf("   closed %s (%s)\n", formatAge(e.Time, now), e.Time.Local().Format("2006-01-02 15:04:05"))
		if i < len(entries)-1 {
			fmt.Println()
		}
	}
}

type historyEntryJSON struct {
	URL    string `json:"url"`
	Title  string `json:"title"`
	Domain string `json:"domain,omitempty"`
	Time   string `json:"time"`
}

type historyJSON struct {
	Count   int                `json:"count"`
	Filter  string             `json:"filter,omitempty"`
	Entries []historyEntryJSON `json:"entries"`
}

func (c *HistoryCommand) printJSON(entries []storage.ClosedTab) error {
	out := historyJSON{
		Count:   len(entries),
		Filter:  c.Filter,
		Entries: make([]historyEntryJSON, len(entries)),
	}
	for i, e := range entries {
		out.Entries[i] = historyEntryJSON{
			URL:    e.URL,
			Title:  e.Title,
			Domain: e.Domain,
			// Full precision: restore and delete match on it.
			Time: e.Time.UTC().Format(time.RFC3339Nano),
		}
	}
	return printJSON(out)
}
