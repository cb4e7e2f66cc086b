// Package main is the niteru CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/hyperjump/niteru/internal/cli"
)

// Set by the release build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersion(version, commit, date)
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
