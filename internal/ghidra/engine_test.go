package ghidra

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/ghidracov/internal/model"
)

// stubHeadless writes a shell script that records its arguments to a file
// and exits with the given status. It stands in for the analyzeHeadless
// binary so tests can verify the exact command line without a Ghidra
// installation.
func stubHeadless(t *testing.T, exitCode int) (bin string, argsFile string) {
	t.Helper()

	dir := t.TempDir()
	bin = filepath.Join(dir, "analyzeHeadless")
	argsFile = filepath.Join(dir, "args.txt")

	script := "#!/bin/sh\n" +
		"printf '%s\\n' \"$@\" > " + argsFile + "\n"
	if exitCode != 0 {
		script += "echo 'ERROR Import failed: unsupported format' >&2\n"
	}
	script += "exit " + strconv.Itoa(exitCode) + "\n"

	require.NoError(t, os.WriteFile(bin, []byte(script), 0755))
	return bin, argsFile
}

// recordedArgs reads the argument list the stub captured, one per line.
func recordedArgs(t *testing.T, argsFile string) []string {
	t.Helper()
	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestImportDefaultLoader(t *testing.T) {
	bin, argsFile := stubHeadless(t, 0)
	h := NewHeadless(bin)

	err := h.Import(context.Background(), ImportRequest{
		ProjectDir:  "/work/traces/ghidra",
		ProjectName: "cov_analysis",
		Target:      "/build/fuzz.bin",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/work/traces/ghidra", "cov_analysis",
		"-import", "/build/fuzz.bin", "-overwrite",
	}, recordedArgs(t, argsFile))
}

func TestImportElfLoader(t *testing.T) {
	bin, argsFile := stubHeadless(t, 0)
	h := NewHeadless(bin)

	err := h.Import(context.Background(), ImportRequest{
		ProjectDir:  "/work/traces/ghidra",
		ProjectName: "cov_analysis",
		Target:      "/build/SecMain.debug",
		ElfLoader:   true,
		ImageBase:   "0xfffcc000",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/work/traces/ghidra", "cov_analysis",
		"-import", "/build/SecMain.debug", "-overwrite",
		"-loader", "ElfLoader", "-loader-imagebase", "0xfffcc000",
	}, recordedArgs(t, argsFile))
}

// TestImportElfLoaderDefaultBase verifies the 0x00 fallback when no base
// address was supplied for a debug target.
func TestImportElfLoaderDefaultBase(t *testing.T) {
	bin, argsFile := stubHeadless(t, 0)
	h := NewHeadless(bin)

	err := h.Import(context.Background(), ImportRequest{
		ProjectDir:  "/work/traces/ghidra",
		ProjectName: "cov_analysis",
		Target:      "/build/SecMain.debug",
		ElfLoader:   true,
	})
	require.NoError(t, err)

	args := recordedArgs(t, argsFile)
	assert.Equal(t, "0x00", args[len(args)-1])
}

func TestAnalyze(t *testing.T) {
	bin, argsFile := stubHeadless(t, 0)
	h := NewHeadless(bin)

	err := h.Analyze(context.Background(), AnalyzeRequest{
		ProjectDir:  "/work/traces/ghidra",
		ProjectName: "cov_analysis",
		ProcessName: "SecMain.debug",
		ScriptDir:   "/toolkit/scripts",
		Prescript:   "GetAndSetAnalysisOptionsScript.java",
		Postscript:  "ghidra_cov_analysis.py",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/work/traces/ghidra", "cov_analysis",
		"-process", "SecMain.debug",
		"-noanalysis",
		"-scriptPath", "/toolkit/scripts",
		"-prescript", "GetAndSetAnalysisOptionsScript.java",
		"-postscript", "ghidra_cov_analysis.py",
	}, recordedArgs(t, argsFile))
}

// TestAnalyzeWithoutProcessName covers the no-target invocation, where
// -process is passed bare so the engine handles every program in the
// project.
func TestAnalyzeWithoutProcessName(t *testing.T) {
	bin, argsFile := stubHeadless(t, 0)
	h := NewHeadless(bin)

	err := h.Analyze(context.Background(), AnalyzeRequest{
		ProjectDir:  "/work/traces/ghidra",
		ProjectName: "cov_analysis",
		ScriptDir:   "/toolkit/scripts",
		Prescript:   "GetAndSetAnalysisOptionsScript.java",
		Postscript:  "ghidra_cov_analysis.py",
	})
	require.NoError(t, err)

	args := recordedArgs(t, argsFile)
	assert.Equal(t, "-process", args[2])
	assert.Equal(t, "-noanalysis", args[3])
}

func TestRunFailureWrapsStderr(t *testing.T) {
	bin, _ := stubHeadless(t, 1)
	h := NewHeadless(bin)
	h.Stderr = &strings.Builder{} // keep test output clean

	err := h.Import(context.Background(), ImportRequest{
		ProjectDir:  "/work/traces/ghidra",
		ProjectName: "cov_analysis",
		Target:      "/build/fuzz.bin",
	})
	require.Error(t, err)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.KindExternal, cliErr.Kind)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestHasExistingProject(t *testing.T) {
	dir := t.TempDir()

	assert.False(t, HasExistingProject(dir, "cov_analysis"))

	// A directory named like the marker does not count.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "other.gpr"), 0755))
	assert.False(t, HasExistingProject(dir, "other"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "cov_analysis.gpr"), []byte("marker"), 0644))
	assert.True(t, HasExistingProject(dir, "cov_analysis"))
}

func TestLastLines(t *testing.T) {
	assert.Equal(t, "", lastLines("", 5))
	assert.Equal(t, "a; b", lastLines("a\n\nb\n", 5))
	assert.Equal(t, "d; e", lastLines("a\nb\nc\nd\ne", 2))
}
