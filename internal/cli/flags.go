package cli

import "github.com/runnerr0/tabsentry/internal/tabs"

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// ServeCommand runs the daemon in the foreground.
type ServeCommand struct {
	Port     int    `long:"port" description:"Override daemon port"`
	LogLevel string `long:"log-level" description:"Override log level (debug, info, warn, error)"`

	globals *GlobalFlags
	version string
}

// StatusCommand shows daemon state and database statistics.
type StatusCommand struct {
	globals *GlobalFlags
	version string
}

// HistoryCommand lists recently closed tabs, most recent first.
type HistoryCommand struct {
	Filter string `long:"filter" short:"f" description:"Case-insensitive substring of title or URL"`
	Limit  int    `long:"limit" description:"Maximum entries to show (0 for all)" default:"0"`

	globals *GlobalFlags
	version string
}

// entryArgs identifies one closed-tab entry by URL and close time.
type entryArgs struct {
	URL  string `positional-arg-name:"url" required:"yes"`
	Time string `positional-arg-name:"time" required:"yes"`
}

// RestoreCommand reopens a closed tab and removes it from the history.
type RestoreCommand struct {
	Args entryArgs `positional-args:"yes"`

	globals *GlobalFlags
	version string
}

// DeleteCommand removes one closed-tab entry without reopening it.
type DeleteCommand struct {
	Args entryArgs `positional-args:"yes"`

	globals *GlobalFlags
	version string
}

// ClearCommand empties the closed-tab history.
type ClearCommand struct {
	Force bool `long:"force" description:"Skip confirmation prompt"`

	globals *GlobalFlags
	version string
}

type tabArgs struct {
	TabID tabs.TabID `positional-arg-name:"tab-id" required:"yes"`
}

// LockCommand exempts a tab from automatic closing.
type LockCommand struct {
	Args tabArgs `positional-args:"yes"`

	globals *GlobalFlags
	version string
}

// UnlockCommand makes a locked tab eligible for closing again.
type UnlockCommand struct {
	Args tabArgs `positional-args:"yes"`

	globals *GlobalFlags
	version string
}

// LocksCommand lists locked tab ids.
type LocksCommand struct {
	globals *GlobalFlags
	version string
}

// SettingsCommand shows the policy settings, or changes them when any
// setting flag is given.
type SettingsCommand struct {
	Threshold *int     `long:"threshold" description:"Maximum open tabs before one is closed"`
	Idle      *int     `long:"idle" description:"Minutes without use before a tab is preferred for closing"`
	Heartbeat *float64 `long:"heartbeat" description:"Minutes between policy evaluations"`
	Enable    bool     `long:"enable" description:"Turn automatic closing on"`
	Disable   bool     `long:"disable" description:"Turn automatic closing off"`

	globals *GlobalFlags
	version string
}

// PingCommand checks that the daemon is up and its store reachable.
type PingCommand struct {
	globals *GlobalFlags
	version string
}
