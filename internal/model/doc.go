// Package model defines the domain types and value objects for the
// ghidracov CLI.
//
// This package contains pure data structures with no external dependencies:
// base addresses, target binaries, error kinds, and the custom error type
// (CLIError) that the CLI layer translates into process exit status.
//
// All cross-invocation state lives on the filesystem (the fuzzing work
// directory and the Ghidra project directory); nothing in this package
// persists anything itself.
package model
