package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/ghidracov/internal/module"
)

func writeModuleTable(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "modules.json")
	content := `[
  {"name": "SecMain", "img_base": 4294754304, "debug_path": "/build/SecMain.debug"},
  {"name": "DxeCore", "img_base": 4294017024, "debug_path": "/build/DxeCore.debug"}
]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRunModules(t *testing.T) {
	path := writeModuleTable(t)
	assert.NoError(t, runModules([]string{path}, &modulesFlags{}))
}

func TestRunModulesMissingTable(t *testing.T) {
	err := runModules([]string{filepath.Join(t.TempDir(), "nope.json")}, &modulesFlags{})
	require.Error(t, err)
}

// TestRunModulesWrite verifies that --write rewrites the table sorted by
// module name.
func TestRunModulesWrite(t *testing.T) {
	path := writeModuleTable(t)

	require.NoError(t, runModules([]string{path}, &modulesFlags{write: true, noHeader: true}))

	table, err := module.Load(path)
	require.NoError(t, err)
	require.Len(t, table.Modules, 2)
	assert.Equal(t, "DxeCore", table.Modules[0].Name)
	assert.Equal(t, "SecMain", table.Modules[1].Name)
}

// TestRunModulesUnknownNameJSON: in JSON mode a name restriction must
// name existing modules; unknown names are an error rather than silently
// producing an empty list.
func TestRunModulesUnknownNameJSON(t *testing.T) {
	path := writeModuleTable(t)

	jsonOutput = true
	t.Cleanup(func() { jsonOutput = false })

	err := runModules([]string{path, "PeiCore"}, &modulesFlags{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PeiCore")
}

// TestRunModulesFillTextFailure: --fill-text against a debug path that
// is not an ELF must fail rather than print stale zeros.
func TestRunModulesFillTextFailure(t *testing.T) {
	notElf := filepath.Join(t.TempDir(), "SecMain.debug")
	require.NoError(t, os.WriteFile(notElf, []byte("plain text"), 0644))

	path := filepath.Join(t.TempDir(), "modules.json")
	content := `[{"name": "SecMain", "img_base": 4096, "debug_path": "` + notElf + `"}]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	err := runModules([]string{path}, &modulesFlags{fillText: true})
	require.Error(t, err)
}
