package cli

import (
	"errors"
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Import *ImportCommand
	Status *StatusCommand
	Init   *InitCommand
	Hash   *HashCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "placesimport"
	parser.LongDescription = "Import Google Takeout browser history into a Firefox places.sqlite database."

	cmds := &commands{
		Import: &ImportCommand{globals: &globals, version: version},
		Status: &StatusCommand{globals: &globals, version: version},
		Init:   &InitCommand{globals: &globals, version: version},
		Hash:   &HashCommand{globals: &globals, version: version},
	}

	parser.AddCommand("import", "Import a takeout history export", "Import the visits of a Google Takeout BrowserHistory.json into an existing places.sqlite. Per-entry failures are logged and skipped.", cmds.Import)
	parser.AddCommand("status", "Show places database statistics", "Show the detected layout, row counts, visit range and most visited origins of a places.sqlite.", cmds.Status)
	parser.AddCommand("init", "Create an empty places database", "Create the history tables and indexes of a places.sqlite layout. Existing databases are left untouched.", cmds.Init)
	parser.AddCommand("hash", "Print the url_hash of URLs", "Normalize each URL the way places.sqlite stores it and print its url_hash.", cmds.Hash)

	return parser, &globals, cmds
}

// Run is the main entry point for the CLI using os.Args.
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
			fmt.Printf("placesimport %s\n", version)
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
		var flagsErr *goflags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == goflags.ErrHelp {
			return nil
		}
		return err
	}

	return nil
}
