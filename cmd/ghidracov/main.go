// Package main is the entry point for the ghidracov CLI.
//
// This binary wraps a headless Ghidra instance to run coverage analysis
// over fuzzing-derived execution traces. It delegates all functionality
// to the internal/cli package, which defines cobra commands.
package main

import (
	"github.com/mmr-tortoise/ghidracov/internal/cli"
)

// version, commit, and date are set at build time via ldflags.
// During development they default to "dev", "none", and "unknown".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Inject build-time version info into the CLI package. This keeps
	// main.go minimal and decouples the build system from cobra.
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	rootCmd := cli.NewRootCommand()
	cli.Execute(rootCmd)
}
