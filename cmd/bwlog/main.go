// bwlog is the Brain Web offline event log: a durable, device-local
// queue of capture events that are trimmed by retention policy and
// synchronized to the backend when connectivity allows.
//
// Usage:
//
//	bwlog add --graph g1 --payload '{"kind":"note"}'
//	bwlog list --status pending
//	bwlog sync
//	bwlog status
package main

import (
	"fmt"
	"os"

	"github.com/brainweb/bwlog/internal/cli"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cli.Run(version); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
