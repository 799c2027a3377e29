// Command tabsentry is the tab manager daemon and its command-line client.
package main

import (
	"os"

	"github.com/runnerr0/tabsentry/internal/cli"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	// The parser prints errors itself.
	if err := cli.Run(version); err != nil {
		os.Exit(1)
	}
}
