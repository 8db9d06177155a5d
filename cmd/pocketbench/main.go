// Package main is the entry point for the pocketbench CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/tOgg1/pocketbench/internal/cli"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Default entrypoint: launch the console when invoked with no args.
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "console")
	}

	err := cli.Execute(cli.BuildInfo{Version: version, Commit: commit, Date: date})
	if err == nil {
		return
	}
	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		if !exitErr.Printed {
			fmt.Fprintf(os.Stderr, "Error: %v\n", exitErr.Err)
		}
		os.Exit(exitErr.Code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
