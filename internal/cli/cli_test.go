package cli

import (
	"strings"
	"testing"

	goflags "github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tabsentry/internal/tabs"
)

// parseOnly parses args without running the matched command.
func parseOnly(t *testing.T, args ...string) (*GlobalFlags, *commands, goflags.Commander, error) {
	t.Helper()
	parser, globals, cmds := buildParser("test")
	parser.Options &^= goflags.PrintErrors
	var matched goflags.Commander
	parser.CommandHandler = func(cmd goflags.Commander, _ []string) error {
		matched = cmd
		return nil
	}
	_, err := parser.ParseArgs(args)
	return globals, cmds, matched, err
}

func TestVersionFlag(t *testing.T) {
	var err error
	output := captureOutput(t, func() {
		err = RunWithArgs("0.1.0-test", []string{"--version"})
	})
	assert.NoError(t, err)
	assert.Equal(t, "tabsentry 0.1.0-test", strings.TrimSpace(output))
}

func TestSubcommandsRecognized(t *testing.T) {
	tests := [][]string{
		{"serve"},
		{"serve", "--port", "9000", "--log-level", "debug"},
		{"status"},
		{"history", "--filter", "docs", "--limit", "5"},
		{"restore", "https://example.com", "2024-03-01T12:00:00Z"},
		{"delete", "https://example.com", "2024-03-01T12:00:00Z"},
		{"clear", "--force"},
		{"lock", "42"},
		{"unlock", "42"},
		{"locks"},
		{"settings"},
		{"settings", "--threshold", "8", "--heartbeat", "0.5", "--disable"},
		{"ping"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			_, _, matched, err := parseOnly(t, args...)
			require.NoError(t, err)
			assert.NotNil(t, matched)
		})
	}
}

func TestUnknownSubcommand(t *testing.T) {
	_, _, _, err := parseOnly(t, "reticulate")
	assert.Error(t, err)
}

func TestPositionalArgsRequired(t *testing.T) {
	_, _, _, err := parseOnly(t, "lock")
	assert.Error(t, err)

	_, _, _, err = parseOnly(t, "restore", "https://example.com")
	assert.Error(t, err)
}

func TestParsedValues(t *testing.T) {
	globals, cmds, _, err := parseOnly(t, "--json", "--config", "/tmp/x.yaml", "lock", "42")
	require.NoError(t, err)
	assert.True(t, globals.JSON)
	assert.Equal(t, "/tmp/x.yaml", globals.Config)
	assert.Equal(t, tabs.TabID(42), cmds.Lock.Args.TabID)
	assert.Same(t, globals, cmds.Lock.globals)

	_, cmds, _, err = parseOnly(t, "settings", "--threshold", "8", "--heartbeat", "0.5")
	require.NoError(t, err)
	require.NotNil(t, cmds.Settings.Threshold)
	assert.Equal(t, 8, *cmds.Settings.Threshold)
	require.NotNil(t, cmds.Settings.Heartbeat)
	assert.Equal(t, 0.5, *cmds.Settings.Heartbeat)
	assert.Nil(t, cmds.Settings.Idle)

	_, cmds, _, err = parseOnly(t, "history", "-f", "go.dev")
	require.NoError(t, err)
	assert.Equal(t, "go.dev", cmds.History.Filter)
}

func TestHelpIsNotAnError(t *testing.T) {
	var err error
	captureOutput(t, func() {
		err = RunWithArgs("test", []string{"--help"})
	})
	assert.NoError(t, err)
}
