// Package ghidra drives the headless analysis engine.
//
// This package wraps the analyzeHeadless CLI (via os/exec) behind a small
// Engine interface with two operations: importing a target binary into a
// project and running a script pass over an imported program.
//
// Design decisions:
//   - We shell out to analyzeHeadless rather than talking to the engine
//     any other way; headless invocation is the only supported automation
//     surface, and the wrapper deliberately treats the engine as opaque.
//   - Engine is an interface so the launcher's decision logic (idempotence
//     check, loader selection, flag construction) is unit-testable with a
//     fake, independent of an actual Ghidra installation.
//   - Engine failures are wrapped in model.CLIError with KindExternal and
//     carry the trailing stderr output for diagnostics.
package ghidra

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mmr-tortoise/ghidracov/internal/model"
)

// ImportRequest describes a one-time import of a target binary into a
// project.
type ImportRequest struct {
	// ProjectDir is the directory holding the engine project.
	ProjectDir string

	// ProjectName is the project name inside ProjectDir.
	ProjectName string

	// Target is the path of the binary to import.
	Target string

	// ElfLoader selects the explicit ELF loader instead of the engine's
	// format auto-detection. Used for debug firmware images that must be
	// placed at a known base address.
	ElfLoader bool

	// ImageBase is the load address for the ELF loader. Empty means
	// model.DefaultBase. Ignored unless ElfLoader is set.
	ImageBase model.BaseAddress
}

// AnalyzeRequest describes a script pass over an already-imported
// program. The engine runs with analysis disabled: the project retains
// the analysis state from import time and the scripts do the real work.
type AnalyzeRequest struct {
	// ProjectDir is the directory holding the engine project.
	ProjectDir string

	// ProjectName is the project name inside ProjectDir.
	ProjectName string

	// ProcessName is the base filename of the program to process.
	// Empty processes every program in the project.
	ProcessName string

	// ScriptDir is added to the engine's script search path. It is the
	// parent directory of the caller-supplied postscript.
	ScriptDir string

	// Prescript runs before the program is handed to the postscript,
	// to query and set analysis options.
	Prescript string

	// Postscript is the base filename of the coverage-analysis script.
	Postscript string
}

// Engine is the capability the launcher needs from the analysis engine.
type Engine interface {
	// Import loads a target binary into a project. Slow; callers skip it
	// when the project already contains an import.
	Import(ctx context.Context, req ImportRequest) error

	// Analyze runs the prescript/postscript pair over an imported program.
	Analyze(ctx context.Context, req AnalyzeRequest) error
}

// Headless is the real Engine implementation: it spawns the engine's
// headless binary once per operation.
//
// Stdout and Stderr default to the process's own streams, so whatever the
// engine and the postscript print reaches the user unmodified. The
// launcher does not parse or transform engine output.
type Headless struct {
	// Bin is the path of the analyzeHeadless binary.
	Bin string

	// Stdout receives the engine's standard output.
	Stdout io.Writer

	// Stderr receives the engine's standard error.
	Stderr io.Writer
}

// NewHeadless creates a Headless engine for the given analyzeHeadless
// binary, writing engine output to the process streams.
func NewHeadless(bin string) *Headless {
	return &Headless{Bin: bin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Import implements Engine. The engine command line is:
//
//	analyzeHeadless PROJECT_DIR PROJECT_NAME -import TARGET -overwrite
//	    [-loader ElfLoader -loader-imagebase BASE]
//
// -overwrite replaces any stale program with the same name inside the
// project; the launcher-level idempotence check normally prevents repeat
// imports entirely.
func (h *Headless) Import(ctx context.Context, req ImportRequest) error {
	args := []string{req.ProjectDir, req.ProjectName, "-import", req.Target, "-overwrite"}
	if req.ElfLoader {
		base := req.ImageBase
		if base == "" {
			base = model.DefaultBase
		}
		args = append(args, "-loader", "ElfLoader", "-loader-imagebase", base.String())
	}
	return h.run(ctx, args)
}

// Analyze implements Engine. The engine command line is:
//
//	analyzeHeadless PROJECT_DIR PROJECT_NAME -process [NAME] -noanalysis
//	    -scriptPath DIR -prescript PRESCRIPT -postscript POSTSCRIPT
//
// -noanalysis skips (re)analysis: the import pass already analyzed the
// program, and repeating that on every coverage run would dominate the
// runtime.
func (h *Headless) Analyze(ctx context.Context, req AnalyzeRequest) error {
	args := []string{req.ProjectDir, req.ProjectName, "-process"}
	if req.ProcessName != "" {
		args = append(args, req.ProcessName)
	}
	args = append(args,
		"-noanalysis",
		"-scriptPath", req.ScriptDir,
		"-prescript", req.Prescript,
		"-postscript", req.Postscript,
	)
	return h.run(ctx, args)
}

// run executes the headless binary with the given arguments.
//
// Stdout is streamed through untouched. Stderr is streamed AND captured,
// so a failure can include the engine's final stderr lines in the error
// message without the caller having to scroll back through engine output.
func (h *Headless) run(ctx context.Context, args []string) error {
	// #nosec G204 — args are constructed internally, not from user input
	cmd := exec.CommandContext(ctx, h.Bin, args...)

	var stderr strings.Builder
	cmd.Stdout = h.Stdout
	cmd.Stderr = io.MultiWriter(h.Stderr, &stderr)

	if err := cmd.Run(); err != nil {
		message := fmt.Sprintf("analysis engine failed (%s %s)", filepath.Base(h.Bin), args[2])
		if tail := lastLines(stderr.String(), 5); tail != "" {
			message = fmt.Sprintf("%s: %s", message, tail)
		}
		return model.WrapCLIError(model.KindExternal, message, err)
	}
	return nil
}

// lastLines returns up to n trailing non-empty lines of s, joined with
// "; " for inline display.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	var kept []string
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, strings.TrimSpace(line))
		}
	}
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return strings.Join(kept, "; ")
}

// HasExistingProject reports whether the project directory already holds
// a project file, the marker that import has happened. A prior import is
// treated as valid and reusable; there is no integrity re-check.
//
// This predicate is the single place that inspects the marker. Concurrent
// invocations against the same work directory can race between this check
// and the import that follows; the tool does not guard against that
// (known limitation, inherited from the original wrappers).
func HasExistingProject(projectDir, projectName string) bool {
	info, err := os.Stat(filepath.Join(projectDir, projectName+".gpr"))
	return err == nil && !info.IsDir()
}
