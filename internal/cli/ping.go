package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/runnerr0/tabsentry/internal/daemon"
)

// Execute implements the go-flags Commander interface for PingCommand.
func (c *PingCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	return c.executeWith(newClient(cfg))
}

func (c *PingCommand) executeWith(client *daemon.Client) error {
	start := time.Now()
	var reply string
	if err := client.Do(context.Background(), daemon.Command{Name: daemon.CmdNotify}, &reply); err != nil {
		return requireDaemon(err)
	}
	elapsed := time.Since(start)

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]interface{}{"reply": reply, "ms": elapsed.Milliseconds()})
	}
	fmt.Printf("%s (%s)\n", reply, elapsed.Round(time.Millisecond))
	return nil
}
