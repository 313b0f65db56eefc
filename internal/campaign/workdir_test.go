package campaign

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/ghidracov/internal/model"
)

// setupWorkdir creates a temporary work directory with a traces/
// subfolder, the baseline layout a fuzzing campaign leaves behind.
func setupWorkdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "traces"), 0755))
	return dir
}

func TestValidateWorkdir(t *testing.T) {
	workdir := setupWorkdir(t)
	assert.NoError(t, ValidateWorkdir(workdir))
}

func TestValidateWorkdirMissing(t *testing.T) {
	err := ValidateWorkdir(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.KindPath, cliErr.Kind)
}

// TestValidateWorkdirNoTraces verifies the missing-prerequisite error
// for a work directory that exists but was never traced.
func TestValidateWorkdirNoTraces(t *testing.T) {
	err := ValidateWorkdir(t.TempDir())
	require.Error(t, err)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.KindPrereq, cliErr.Kind)
	assert.Contains(t, err.Error(), "trace-generation")
}

func TestEnsureProjectDir(t *testing.T) {
	workdir := setupWorkdir(t)

	dir, err := EnsureProjectDir(workdir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(workdir, "traces", "ghidra"), dir)

	info, statErr := os.Stat(dir)
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())

	// Idempotent: a second call on the existing directory succeeds.
	_, err = EnsureProjectDir(workdir)
	assert.NoError(t, err)
}

// TestEnsureEdgeListExisting verifies that a present edge list short-
// circuits the helper entirely: the helper path here does not even exist,
// so invoking it would fail loudly.
func TestEnsureEdgeListExisting(t *testing.T) {
	workdir := setupWorkdir(t)
	want := filepath.Join(workdir, "traces", "edges_uniq.lst")
	require.NoError(t, os.WriteFile(want, []byte("1,2\n"), 0644))

	got, err := EnsureEdgeList(context.Background(), "/nonexistent/helper", workdir)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// TestEnsureEdgeListGenerates points the helper at a stub script that
// writes the edge list, mirroring what the real toolkit helper does.
func TestEnsureEdgeListGenerates(t *testing.T) {
	workdir := setupWorkdir(t)

	helper := filepath.Join(t.TempDir(), "unique_edges.sh")
	script := "#!/bin/sh\nprintf '1,2\\n2,3\\n' > \"$1\"/traces/edges_uniq.lst\n"
	require.NoError(t, os.WriteFile(helper, []byte(script), 0755))

	got, err := EnsureEdgeList(context.Background(), helper, workdir)
	require.NoError(t, err)

	data, readErr := os.ReadFile(got)
	require.NoError(t, readErr)
	assert.Equal(t, "1,2\n2,3\n", string(data))
}

func TestEnsureEdgeListHelperFails(t *testing.T) {
	workdir := setupWorkdir(t)

	helper := filepath.Join(t.TempDir(), "unique_edges.sh")
	script := "#!/bin/sh\necho 'no trace files found' >&2\nexit 1\n"
	require.NoError(t, os.WriteFile(helper, []byte(script), 0755))

	_, err := EnsureEdgeList(context.Background(), helper, workdir)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.KindExternal, cliErr.Kind)
	assert.Contains(t, err.Error(), "no trace files found")
}

// TestEnsureEdgeListHelperProducesNothing covers a helper that exits 0
// without writing the edge list; the launcher must not continue with a
// missing file.
func TestEnsureEdgeListHelperProducesNothing(t *testing.T) {
	workdir := setupWorkdir(t)

	helper := filepath.Join(t.TempDir(), "unique_edges.sh")
	require.NoError(t, os.WriteFile(helper, []byte("#!/bin/sh\nexit 0\n"), 0755))

	_, err := EnsureEdgeList(context.Background(), helper, workdir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not produce")
}

func TestRefreshEdgeSymlink(t *testing.T) {
	dir := t.TempDir()

	first := filepath.Join(dir, "edges_a.lst")
	second := filepath.Join(dir, "edges_b.lst")
	require.NoError(t, os.WriteFile(first, []byte("a"), 0644))
	require.NoError(t, os.WriteFile(second, []byte("b"), 0644))

	link := filepath.Join(dir, "edges_uniq.lst")

	require.NoError(t, RefreshEdgeSymlink(first, link))
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, first, target)

	// A second call replaces the stale link instead of failing on EEXIST.
	require.NoError(t, RefreshEdgeSymlink(second, link))
	target, err = os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, second, target)
}
