package main

import (
	"fmt"
	"os"

	"github.com/runnerr0/placesimport/internal/cli"
	"github.com/runnerr0/placesimport/internal/version"
)

func main() {
	if err := cli.Run(version.Full()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
