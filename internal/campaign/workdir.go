// Package campaign implements the filesystem contract around a fuzzing
// work directory.
//
// A work directory is the root folder of a fuzzing campaign. The
// launcher expects a traces/ subfolder with recorded execution traces,
// derives the engine project directory underneath it, and makes sure the
// deduplicated edge list exists (generating it on demand through the
// toolkit helper). The only write outside the work directory is a
// symlink at a fixed temporary path, which is how the downstream
// analysis script finds the edge list.
package campaign

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mmr-tortoise/ghidracov/internal/model"
)

const (
	tracesName  = "traces"
	projectName = "ghidra"
	edgeList    = "edges_uniq.lst"
)

// TracesDir returns the traces subfolder of a work directory.
func TracesDir(workdir string) string {
	return filepath.Join(workdir, tracesName)
}

// ProjectDir returns the engine project directory inside a work
// directory.
func ProjectDir(workdir string) string {
	return filepath.Join(workdir, tracesName, projectName)
}

// EdgeListPath returns the path of the unique-edges file inside a work
// directory.
func EdgeListPath(workdir string) string {
	return filepath.Join(workdir, tracesName, edgeList)
}

// ValidateWorkdir checks that the work directory exists and contains a
// traces/ subfolder. A missing traces/ folder means the upstream
// trace-generation step was never run, so nothing downstream can work.
func ValidateWorkdir(workdir string) error {
	info, err := os.Stat(workdir)
	if err != nil || !info.IsDir() {
		return model.NewCLIError(model.KindPath,
			fmt.Sprintf("work directory not found: %s", workdir))
	}

	traces := TracesDir(workdir)
	info, err = os.Stat(traces)
	if err != nil || !info.IsDir() {
		return model.NewCLIError(model.KindPrereq,
			fmt.Sprintf("%s does not exist: run the trace-generation step first", traces))
	}
	return nil
}

// EnsureProjectDir creates the engine project directory if absent and
// returns its path.
func EnsureProjectDir(workdir string) (string, error) {
	dir := ProjectDir(workdir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", model.WrapCLIError(model.KindDirCreate,
			fmt.Sprintf("failed to create project directory %s", dir), err)
	}
	return dir, nil
}

// EnsureEdgeList makes sure the unique-edges file exists, invoking the
// edge-extraction helper if it is missing, and returns its path.
//
// The helper is called as `<edgeTool> <workdir>`. Its failure is fatal:
// without the edge list the analysis script has nothing to work on.
func EnsureEdgeList(ctx context.Context, edgeTool, workdir string) (string, error) {
	path := EdgeListPath(workdir)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	// #nosec G204 — helper path comes from config, not user input
	cmd := exec.CommandContext(ctx, edgeTool, workdir)
	output, err := cmd.CombinedOutput()
	if err != nil {
		message := fmt.Sprintf("edge extraction helper %s failed", edgeTool)
		if out := strings.TrimSpace(string(output)); out != "" {
			message = fmt.Sprintf("%s: %s", message, out)
		}
		return "", model.WrapCLIError(model.KindExternal, message, err)
	}

	if _, err := os.Stat(path); err != nil {
		return "", model.WrapCLIError(model.KindExternal,
			fmt.Sprintf("edge extraction helper did not produce %s", path), err)
	}
	return path, nil
}

// RefreshEdgeSymlink places a symlink to the edge list at the fixed
// well-known path, replacing a stale link from a previous run.
func RefreshEdgeSymlink(edgeListPath, linkPath string) error {
	if err := os.Remove(linkPath); err != nil && !os.IsNotExist(err) {
		return model.WrapCLIError(model.KindGeneral,
			fmt.Sprintf("failed to remove stale symlink %s", linkPath), err)
	}
	if err := os.Symlink(edgeListPath, linkPath); err != nil {
		return model.WrapCLIError(model.KindGeneral,
			fmt.Sprintf("failed to create symlink %s", linkPath), err)
	}
	return nil
}
