package cli

import (
	"context"
	"fmt"

	"github.com/runnerr0/tabsentry/internal/daemon"
	"github.com/runnerr0/tabsentry/internal/storage"
	"github.com/runnerr0/tabsentry/internal/tabs"
)

// Tab ids only mean something to the running browser, so lock and unlock
// require the daemon.

// Execute implements the go-flags Commander interface for LockCommand.
func (c *LockCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	return setLock(newClient(cfg), c.globals, daemon.CmdLockTab, c.Args.TabID)
}

// Execute implements the go-flags Commander interface for UnlockCommand.
func (c *UnlockCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	return setLock(newClient(cfg), c.globals, daemon.CmdUnlockTab, c.Args.TabID)
}

func setLock(client *daemon.Client, globals *GlobalFlags, name string, id tabs.TabID) error {
	if id <= 0 {
		return fmt.Errorf("invalid tab id %d", id)
	}
	if err := client.Do(context.Background(), daemon.Command{Name: name, TabID: id}, nil); err != nil {
		return requireDaemon(err)
	}

	locked := name == daemon.CmdLockTab
	if globals != nil && globals.JSON {
		return printJSON(map[string]interface{}{"tabId": id, "locked": locked})
	}
	if locked {
		fmt.Printf("Tab %d locked\n", id)
	} else {
		fmt.Printf("Tab %d unlocked\n", id)
	}
	return nil
}

// Execute implements the go-flags Commander interface for LocksCommand.
func (c *LocksCommand) Execute(args []string) error {
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

func (c *LocksCommand) executeWithStore(store *storage.SQLiteStore) error {
	ids, err := store.LoadLockedTabs(context.Background())
	if err != nil {
		return err
	}
	if ids == nil {
		ids = []tabs.TabID{}
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]interface{}{"locked": ids})
	}
	if len(ids) == 0 {
		fmt.Println("No locked tabs")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}
