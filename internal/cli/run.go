// run.go implements the root coverage-analysis operation.
//
// Orchestration steps (each fatal on failure, no retries, no rollback):
//  1. Validate paths: work directory, script, optional target
//  2. Validate the optional base address
//  3. Check the traces/ prerequisite and ensure the project directory
//  4. Ensure the unique-edges list (generating it via the toolkit helper)
//     and refresh the well-known symlink to it
//  5. Import the target into the project, unless already imported
//  6. Run the analysis pass (always)
//
// If import succeeds but analysis fails, the project marker remains and a
// re-run skips straight to analysis. That is an idempotence optimization,
// not a transactional guarantee.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mmr-tortoise/ghidracov/internal/campaign"
	"github.com/mmr-tortoise/ghidracov/internal/config"
	"github.com/mmr-tortoise/ghidracov/internal/ghidra"
	"github.com/mmr-tortoise/ghidracov/internal/model"
)

// runResult summarizes a completed coverage run for output formatting.
type runResult struct {
	Workdir    string `json:"workdir"`
	ProjectDir string `json:"projectDir"`
	Target     string `json:"target,omitempty"`
	Imported   bool   `json:"imported"`
	EdgeList   string `json:"edgeList"`
	Postscript string `json:"postscript"`
}

// runCoverage is the main orchestration function for the root command.
// It takes the engine as a parameter so tests can substitute a fake and
// exercise the decision logic without a Ghidra installation.
func runCoverage(ctx context.Context, cfg *config.Config, engine ghidra.Engine, args []string) error {
	workdir, script := args[0], args[1]

	var target model.Target
	if len(args) >= 3 {
		target = model.Target(args[2])
	}

	// Step 1: resolve paths, in argument order.
	if err := statDir(workdir, "work directory"); err != nil {
		return err
	}
	if err := statFile(script, "script"); err != nil {
		return err
	}
	if target != "" {
		if err := statFile(target.String(), "target"); err != nil {
			return err
		}
	}

	// Step 2: base address, if supplied.
	var addr model.BaseAddress
	if len(args) == 4 {
		var err error
		addr, err = model.ParseBaseAddress(args[3])
		if err != nil {
			return err
		}
	}

	// Step 3: traces/ prerequisite, then the project directory.
	if err := campaign.ValidateWorkdir(workdir); err != nil {
		return err
	}
	projectDir, err := campaign.EnsureProjectDir(workdir)
	if err != nil {
		return err
	}
	VerboseLog("Project directory: %s", projectDir)

	// Step 4: unique-edges list and its well-known symlink. The
	// downstream analysis script discovers the list via the symlink
	// because the headless engine offers no per-script arguments.
	edgeList, err := campaign.EnsureEdgeList(ctx, cfg.EdgeTool(), workdir)
	if err != nil {
		return err
	}
	if err := campaign.RefreshEdgeSymlink(edgeList, cfg.EdgeSymlink); err != nil {
		return err
	}
	VerboseLog("Edge list: %s (linked at %s)", edgeList, cfg.EdgeSymlink)

	// Step 5: one-time import. The project marker doubles as the
	// idempotence signal; a prior import is trusted without re-checking.
	imported := false
	if target != "" {
		if ghidra.HasExistingProject(projectDir, cfg.ProjectName) {
			VerboseLog("Project %s already holds an import, skipping", cfg.ProjectName)
		} else {
			if target.IsDebug() && addr == "" {
				addr = model.DefaultBase
			}
			VerboseLog("Importing %s (one-time, may take a while)...", target)
			req := ghidra.ImportRequest{
				ProjectDir:  projectDir,
				ProjectName: cfg.ProjectName,
				Target:      target.String(),
				ElfLoader:   target.IsDebug(),
				ImageBase:   addr,
			}
			if err := engine.Import(ctx, req); err != nil {
				return err
			}
			imported = true
		}
	}

	// Step 6: the analysis pass always runs, import or not.
	processName := ""
	if target != "" {
		processName = target.Base()
	}
	areq := ghidra.AnalyzeRequest{
		ProjectDir:  projectDir,
		ProjectName: cfg.ProjectName,
		ProcessName: processName,
		ScriptDir:   filepath.Dir(script),
		Prescript:   cfg.Prescript,
		Postscript:  filepath.Base(script),
	}
	VerboseLog("Running %s over project %s", areq.Postscript, cfg.ProjectName)
	if err := engine.Analyze(ctx, areq); err != nil {
		return err
	}

	printRunResult(&runResult{
		Workdir:    workdir,
		ProjectDir: projectDir,
		Target:     target.String(),
		Imported:   imported,
		EdgeList:   edgeList,
		Postscript: areq.Postscript,
	})
	return nil
}

// statDir checks that path exists and is a directory.
func statDir(path, what string) error {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return model.NewCLIError(model.KindPath,
			fmt.Sprintf("%s not found: %s", what, path))
	}
	return nil
}

// statFile checks that path exists and is a regular file.
func statFile(path, what string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return model.NewCLIError(model.KindPath,
			fmt.Sprintf("%s not found: %s", what, path))
	}
	return nil
}

// printRunResult outputs the run summary in text or JSON format. The
// engine's own output has already been streamed through by this point.
func printRunResult(res *runResult) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Coverage analysis finished for %q\n", res.Workdir)
	fmt.Printf("  Project:    %s\n", res.ProjectDir)
	if res.Target != "" {
		state := "already imported"
		if res.Imported {
			state = "imported"
		}
		fmt.Printf("  Target:     %s (%s)\n", res.Target, state)
	}
	fmt.Printf("  Edge list:  %s\n", res.EdgeList)
	fmt.Printf("  Postscript: %s\n", res.Postscript)
}
