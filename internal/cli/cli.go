package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Status *StatusCommand
	Add    *AddCommand
	List   *ListCommand
	Show   *ShowCommand
	Sync   *SyncCommand
	Trim   *TrimCommand
	Purge  *PurgeCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "bwlog"
	parser.LongDescription = "Offline-first local event log for Brain Web captures: enqueue, inspect, sync, and trim."

	cmds := &commands{
		Status: &StatusCommand{globals: &globals, version: version},
		Add:    &AddCommand{globals: &globals, version: version},
		List:   &ListCommand{globals: &globals, version: version},
		Show:   &ShowCommand{globals: &globals, version: version},
		Sync:   &SyncCommand{globals: &globals, version: version},
		Trim:   &TrimCommand{globals: &globals, version: version},
		Purge:  &PurgeCommand{globals: &globals, version: version},
	}

	parser.AddCommand("status", "Show event-log health and statistics", "Show per-status counts, device identity, sync history, and storage size.", cmds.Status)
	parser.AddCommand("add", "Enqueue a capture event", "Enqueue a capture event as pending, assigning the next per-device sequence number.", cmds.Add)
	parser.AddCommand("list", "List events by status", "List stored events filtered by status, oldest first.", cmds.List)
	parser.AddCommand("show", "Print a single event", "Print the full stored record of a specific event.", cmds.Show)
	parser.AddCommand("sync", "Upload pending events", "Upload a batch of pending events to the backend and mark acknowledged ones delivered.", cmds.Sync)
	parser.AddCommand("trim", "Apply the retention cap", "Delete the oldest events until the store is under the configured cap.", cmds.Trim)
	parser.AddCommand("purge", "Delete ALL local data", "Delete ALL local event-log data. Destructive operation with safety prompt.", cmds.Purge)

	return parser, &globals, cmds
}

// Run is the main entry point for the bwlog CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// Handle --version before parser (go-flags requires a subcommand, but
	// --version is valid without one).
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("bwlog %s\n", version)
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
