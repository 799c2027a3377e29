package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/runnerr0/tabsentry/internal/config"
	"github.com/runnerr0/tabsentry/internal/daemon"
)

// Execute implements the go-flags Commander interface for RestoreCommand.
// Restoring needs the browser, so it always goes through the daemon.
func (c *RestoreCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	return c.executeWith(newClient(cfg))
}

func (c *RestoreCommand) executeWith(client *daemon.Client) error {
	at, err := parseEntryTime(c.Args.Time)
	if err != nil {
		return err
	}
	cmd := daemon.Command{Name: daemon.CmdRestoreTab, URL: c.Args.URL, Time: &at}
	if err := client.Do(context.Background(), cmd, nil); err != nil {
		return requireDaemon(err)
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]interface{}{"restored": true, "url": c.Args.URL})
	}
	fmt.Printf("Restored %s\n", c.Args.URL)
	return nil
}

// Execute implements the go-flags Commander interface for DeleteCommand.
func (c *DeleteCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	return c.executeWith(cfg, newClient(cfg))
}

// executeWith deletes through the daemon so UI clients refresh. With no
// daemon running it edits the store directly.
func (c *DeleteCommand) executeWith(cfg *config.Config, client *daemon.Client) error {
	at, err := parseEntryTime(c.Args.Time)
	if err != nil {
		return err
	}
	ctx := context.Background()

	var res daemon.DeleteResult
	err = client.Do(ctx, daemon.Command{Name: daemon.CmdDeleteClosedTab, URL: c.Args.URL, Time: &at}, &res)
	if errors.Is(err, daemon.ErrUnreachable) {
		store, db, _, openErr := openStore(cfg)
		if openErr != nil {
			return openErr
		}
		defer db.Close()
		defer store.Close()
		res.Removed, err = store.DeleteClosedTab(ctx, c.Args.URL, at)
	}
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(res)
	}
	if res.Removed {
		fmt.Printf("Deleted %s\n", c.Args.URL)
	} else {
		fmt.Println("No matching entry")
	}
	return nil
}

// Execute implements the go-flags Commander interface for ClearCommand.
func (c *ClearCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	return c.executeWith(cfg, newClient(cfg), os.Stdin)
}

func (c *ClearCommand) executeWith(cfg *config.Config, client *daemon.Client, in io.Reader) error {
	if !c.Force {
		fmt.Print(`This removes every closed tab from the history. Type "clear" to confirm: `)
		scanner := bufio.NewScanner(in)
		if !scanner.Scan() {
			return fmt.Errorf("aborted: no input received")
		}
		if strings.TrimSpace(scanner.Text()) != "clear" {
			return fmt.Errorf("aborted: confirmation text did not match")
		}
	}

	ctx := context.Background()
	var res daemon.ClearResult
	err := client.Do(ctx, daemon.Command{Name: daemon.CmdClearClosedTabs}, &res)
	if errors.Is(err, daemon.ErrUnreachable) {
		store, db, _, openErr := openStore(cfg)
		if openErr != nil {
			return openErr
		}
		defer db.Close()
		defer store.Close()
		res.Removed, err = store.ClearClosedTabs(ctx)
	}
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(res)
	}
	fmt.Printf("Cleared %d closed tabs\n", res.Removed)
	return nil
}
