//go:build !integration

package registry_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/seanchatmangpt/gitvan/internal/registry"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiscoverJobsFindsNestedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "build.mjs"), "export default {}")
	writeFile(t, filepath.Join(dir, "docs", "changelog.mjs"), "export default {}")
	writeFile(t, filepath.Join(dir, ".hidden.mjs"), "export default {}")

	jobs, err := registry.DiscoverJobs(dir)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, "build", jobs[0].ID)
	require.Equal(t, "docs/changelog", jobs[1].ID)
}

func TestDiscoverJobsMissingDirIsEmpty(t *testing.T) {
	jobs, err := registry.DiscoverJobs(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	require.Empty(t, jobs)
}

func TestFindJobLocatesById(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "docs", "changelog.mjs"), "export default {}")

	job, found, err := registry.FindJob(dir, "docs/changelog")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "mjs", job.Ext)
}
