// import.go implements the "ghidracov import" command: loading one or
// many firmware modules into the work directory's Ghidra project at
// explicit base addresses, ahead of (or instead of) a coverage run.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/ghidracov/internal/campaign"
	"github.com/mmr-tortoise/ghidracov/internal/config"
	"github.com/mmr-tortoise/ghidracov/internal/ghidra"
	"github.com/mmr-tortoise/ghidracov/internal/model"
	"github.com/mmr-tortoise/ghidracov/internal/module"
)

// importTarget pairs a binary path with the base address it is loaded at.
type importTarget struct {
	Path string            `json:"path"`
	Base model.BaseAddress `json:"base"`
}

// NewImportCommand creates the "import" cobra command.
func NewImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import WORKDIR TARGETS [ADDRESS]",
		Short: "Import target binaries into the work directory's Ghidra project",
		Long: `Import one or more ELF binaries into the Ghidra project of a fuzzing
work directory, each at an explicit image base.

TARGETS is one of:
  - an ELF file, with ADDRESS giving its image base
  - a module table (*.json) listing debug_path and img_base per module
  - a lines file with one "<binary-path> <hex-base>" pair per line

Imports use the ELF loader with -overwrite, so re-importing a module
replaces the previous program of the same name.

Examples:
  ghidracov import ~/campaigns/run1 build/SecMain.debug 0xfffcc000
  ghidracov import ~/campaigns/run1 tdvf-modules.json
  ghidracov import ~/campaigns/run1 targets.lst`,

		Args: rangeArgs(2, 3, "WORKDIR TARGETS [ADDRESS]"),

		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			engine := ghidra.NewHeadless(cfg.HeadlessBin())
			return runImport(cmd.Context(), cfg, engine, args)
		},
	}

	return cmd
}

// runImport resolves the target set and issues one engine import per
// target. Like the coverage run, it is fail-fast: the first failing
// import aborts the batch.
func runImport(ctx context.Context, cfg *config.Config, engine ghidra.Engine, args []string) error {
	workdir, targetsArg := args[0], args[1]

	var addr model.BaseAddress
	if len(args) == 3 {
		var err error
		addr, err = model.ParseBaseAddress(args[2])
		if err != nil {
			return err
		}
	}

	if err := statDir(workdir, "work directory"); err != nil {
		return err
	}
	if err := campaign.ValidateWorkdir(workdir); err != nil {
		return err
	}
	projectDir, err := campaign.EnsureProjectDir(workdir)
	if err != nil {
		return err
	}

	targets, err := resolveImportTargets(targetsArg, addr)
	if err != nil {
		return err
	}

	for _, tgt := range targets {
		VerboseLog("Importing %s @ %s", tgt.Path, tgt.Base)
		req := ghidra.ImportRequest{
			ProjectDir:  projectDir,
			ProjectName: cfg.ProjectName,
			Target:      tgt.Path,
			ElfLoader:   true,
			ImageBase:   tgt.Base,
		}
		if err := engine.Import(ctx, req); err != nil {
			return err
		}
	}

	printImportResult(projectDir, targets)
	return nil
}

// resolveImportTargets turns the TARGETS argument into a concrete list
// of path/base pairs.
//
// With an explicit ADDRESS, TARGETS is a single binary. Otherwise it is
// a specification file: a module table for *.json, or a lines file with
// "<binary-path> <hex-base>" per line (blank lines and #-comments
// allowed).
func resolveImportTargets(targetsArg string, addr model.BaseAddress) ([]importTarget, error) {
	if addr != "" {
		if err := statFile(targetsArg, "target"); err != nil {
			return nil, err
		}
		return []importTarget{{Path: targetsArg, Base: addr}}, nil
	}

	if strings.HasSuffix(targetsArg, ".json") {
		table, err := module.Load(targetsArg)
		if err != nil {
			return nil, err
		}
		var targets []importTarget
		for i := range table.Modules {
			m := &table.Modules[i]
			if err := statFile(m.DebugPath, fmt.Sprintf("module %s debug file", m.Name)); err != nil {
				return nil, err
			}
			targets = append(targets, importTarget{
				Path: m.DebugPath,
				Base: model.AddressFromValue(m.ImageBase),
			})
		}
		if len(targets) == 0 {
			return nil, model.NewCLIError(model.KindPrereq,
				fmt.Sprintf("module table %s contains no modules", targetsArg))
		}
		return targets, nil
	}

	return parseTargetLines(targetsArg)
}

// parseTargetLines reads a "<binary-path> <hex-base>" lines file.
// Bases are normalized to the canonical 0x-prefixed 16-digit form, the
// same shape module-table imports produce, so the engine sees one
// address format regardless of how the lines file spells its values.
func parseTargetLines(path string) ([]importTarget, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, model.WrapCLIError(model.KindPath,
			fmt.Sprintf("targets file not found: %s", path), err)
	}
	defer f.Close()

	var targets []importTarget
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, model.NewCLIError(model.KindFormat,
				fmt.Sprintf("%s:%d: expected \"<binary-path> <hex-base>\", got %q", path, lineNo, line))
		}

		base, err := model.ParseBaseAddress(fields[1])
		if err != nil {
			return nil, model.WrapCLIError(model.KindFormat,
				fmt.Sprintf("%s:%d: bad base address", path, lineNo), err)
		}
		if err := statFile(fields[0], "target"); err != nil {
			return nil, err
		}
		targets = append(targets, importTarget{Path: fields[0], Base: model.AddressFromValue(base.Value())})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read targets file %s: %w", path, err)
	}

	if len(targets) == 0 {
		return nil, model.NewCLIError(model.KindPrereq,
			fmt.Sprintf("targets file %s contains no targets", path))
	}
	return targets, nil
}

// printImportResult outputs the import summary in text or JSON format.
func printImportResult(projectDir string, targets []importTarget) {
	if IsJSONOutput() {
		out := struct {
			ProjectDir string         `json:"projectDir"`
			Targets    []importTarget `json:"targets"`
		}{ProjectDir: projectDir, Targets: targets}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Imported %d target(s) into %s\n", len(targets), projectDir)
	for _, tgt := range targets {
		fmt.Printf("  %s @ %s\n", tgt.Path, tgt.Base)
	}
}
