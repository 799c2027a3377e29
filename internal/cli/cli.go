package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Serve    *ServeCommand
	Status   *StatusCommand
	History  *HistoryCommand
	Restore  *RestoreCommand
	Delete   *DeleteCommand
	Clear    *ClearCommand
	Lock     *LockCommand
	Unlock   *UnlockCommand
	Locks    *LocksCommand
	Settings *SettingsCommand
	Ping     *PingCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "tabsentry"
	parser.LongDescription = "Keeps the number of open browser tabs under control by closing the least recently used one."

	cmds := &commands{
		Serve:    &ServeCommand{globals: &globals, version: version},
		Status:   &StatusCommand{globals: &globals, version: version},
		History:  &HistoryCommand{globals: &globals, version: version},
		Restore:  &RestoreCommand{globals: &globals, version: version},
		Delete:   &DeleteCommand{globals: &globals, version: version},
		Clear:    &ClearCommand{globals: &globals, version: version},
		Lock:     &LockCommand{globals: &globals, version: version},
		Unlock:   &UnlockCommand{globals: &globals, version: version},
		Locks:    &LocksCommand{globals: &globals, version: version},
		Settings: &SettingsCommand{globals: &globals, version: version},
		Ping:     &PingCommand{globals: &globals, version: version},
	}

	parser.AddCommand("serve", "Run the daemon", "Run the tab manager daemon in the foreground: browser bridge, policy engine and HTTP API.", cmds.Serve)
	parser.AddCommand("status", "Show daemon state and statistics", "Show the daemon state, the running countdown if any, and database statistics.", cmds.Status)
	parser.AddCommand("history", "List closed tabs", "List recently closed tabs, most recent first.", cmds.History)
	parser.AddCommand("restore", "Reopen a closed tab", "Reopen a closed tab in the browser and remove it from the history.", cmds.Restore)
	parser.AddCommand("delete", "Remove a closed-tab entry", "Remove one closed-tab entry without reopening it.", cmds.Delete)
	parser.AddCommand("clear", "Empty the closed-tab history", "Empty the closed-tab history. Asks for confirmation unless --force.", cmds.Clear)
	parser.AddCommand("lock", "Lock a tab", "Exempt a tab from automatic closing.", cmds.Lock)
	parser.AddCommand("unlock", "Unlock a tab", "Make a locked tab eligible for automatic closing again.", cmds.Unlock)
	parser.AddCommand("locks", "List locked tabs", "List the ids of locked tabs.", cmds.Locks)
	parser.AddCommand("settings", "Show or change policy settings", "Show the policy settings, or change them with --threshold, --idle, --heartbeat, --enable or --disable.", cmds.Settings)
	parser.AddCommand("ping", "Check the daemon", "Check that the daemon is up and can reach its store.", cmds.Ping)

	return parser, &globals, cmds
}

// Run is the main entry point for the tabsentry CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// go-flags requires a subcommand, but --version is valid without one.
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("tabsentry %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
