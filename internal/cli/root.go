// Package cli implements the cobra-based CLI for ghidracov.
//
// The root command is the launcher itself (validate, set up, import if
// needed, analyze); the import and modules subcommands live in their own
// files within this package. This file defines the root command, global
// flags, and the error/exit handling shared by every command.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/ghidracov/internal/config"
	"github.com/mmr-tortoise/ghidracov/internal/ghidra"
	"github.com/mmr-tortoise/ghidracov/internal/model"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command.
var (
	// jsonOutput switches command output and error formatting to JSON.
	jsonOutput bool

	// verbose enables progress messages on stderr. Engine output is
	// always passed through regardless of this flag.
	verbose bool

	// configPath optionally points at a YAML overrides file layered on
	// top of the environment-derived configuration.
	configPath string
)

// version, commit, and date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
//
// Unlike a pure command-group root, this root is itself the primary
// operation: `ghidracov WORKDIR SCRIPT [TARGET [ADDRESS]]` runs the
// coverage analysis. The canonical argument order is fixed; the legacy
// WORKDIR TARGET SCRIPT ordering of older wrappers is deliberately not
// supported, since silently accepting both invites misparsed invocations.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ghidracov WORKDIR SCRIPT [TARGET [ADDRESS]]",
		Short: "Run Ghidra coverage analysis over fuzzing traces",
		Long: `ghidracov feeds fuzzing-derived coverage traces to a headless Ghidra
instance. Given a campaign work directory (containing traces/) and a
coverage-analysis script, it ensures the unique-edges list exists,
imports the target binary into the Ghidra project on first use, and runs
the script over the imported program.

Targets named *.debug are imported with the ELF loader at an explicit
image base (ADDRESS, default 0x00); anything else uses Ghidra's loader
auto-detection.

Requires GHIDRA_ROOT (Ghidra installation) and BKC_ROOT (toolkit
checkout with the unique-edges helper) in the environment.

Examples:
  ghidracov ~/campaigns/run1 scripts/ghidra_cov_analysis.py
  ghidracov ~/campaigns/run1 scripts/ghidra_cov_analysis.py build/fuzz.bin
  ghidracov ~/campaigns/run1 scripts/ghidra_cov_analysis.py build/SecMain.debug 0xfffcc000`,

		// The coverage run takes 2-4 positional arguments. Setting Args
		// explicitly also keeps cobra from treating the work directory
		// as an unknown subcommand.
		Args: rangeArgs(2, 4, "WORKDIR SCRIPT [TARGET [ADDRESS]]"),

		// SilenceUsage prevents cobra from printing usage on every error.
		// SilenceErrors prevents double-printing; Execute formats errors.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		RunE: func(cmd *cobra.Command, args []string) error {
			// Configuration is resolved before any filesystem access or
			// subprocess: a missing GHIDRA_ROOT/BKC_ROOT fails here.
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			engine := ghidra.NewHeadless(cfg.HeadlessBin())
			return runCoverage(cmd.Context(), cfg, engine, args)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML file overriding launcher settings")

	rootCmd.AddCommand(NewImportCommand())
	rootCmd.AddCommand(NewModulesCommand())

	return rootCmd
}

// Execute runs the root command and handles exit codes.
// This is the main entry point called from main.go.
//
// Exit status is deliberately binary: 0 on success, 1 on any validation
// or downstream failure. The CLIError kind shows up in the message (and
// the JSON error object), not in the exit code.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		if cliErr, ok := err.(*model.CLIError); ok {
			printError(cliErr.Kind, cliErr.Message, cliErr.Err)
		} else {
			printError(model.KindGeneral, err.Error(), nil)
		}
		os.Exit(int(model.ExitFailure))
	}
}

// rangeArgs works like cobra.RangeArgs but classifies violations as
// usage errors, so a bad argument count reaches Execute as a CLIError
// with KindUsage and the message doubles as the usage reminder.
func rangeArgs(minArgs, maxArgs int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < minArgs || len(args) > maxArgs {
			return model.NewCLIError(model.KindUsage,
				fmt.Sprintf("expected %s, got %d argument(s)", usage, len(args)))
		}
		return nil
	}
}

// loadConfig resolves the launcher configuration: environment first,
// then the optional --config YAML overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := cfg.ApplyFile(configPath); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(kind model.ErrorKind, message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"kind":    kind.String(),
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		// Errors go to stderr even in JSON mode: stdout is reserved for
		// successful command output and engine output.
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		if underlying != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", message, underlying)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", message)
		}
	}
}

// VerboseLog prints a message to stderr only when verbose mode is
// enabled.
func VerboseLog(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}

// IsJSONOutput returns whether the --json flag is set.
// Subcommands use this to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}
