//go:build !integration

package registry_test

import (
	"path/filepath"
	"testing"

	"github.com/seanchatmangpt/gitvan/internal/registry"
	"github.com/stretchr/testify/require"
)

func TestDiscoverEventsParsesKindAndJob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "message", "^release:.mjs"), "job: docs/changelog\n")
	writeFile(t, filepath.Join(dir, "pathChanged", "src/**.mjs"), "job: ci/rebuild\n")

	bindings, err := registry.DiscoverEvents(dir)
	require.NoError(t, err)
	require.Len(t, bindings, 2)

	require.Equal(t, "message", bindings[0].Kind)
	require.Equal(t, "docs/changelog", bindings[0].JobID)
	require.True(t, registry.IsRegexPattern(bindings[0].Pattern))

	require.Equal(t, "pathChanged", bindings[1].Kind)
	require.Equal(t, "ci/rebuild", bindings[1].JobID)
	require.False(t, registry.IsRegexPattern(bindings[1].Pattern))
}

func TestDiscoverEventsMissingDirIsEmpty(t *testing.T) {
	bindings, err := registry.DiscoverEvents(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	require.Empty(t, bindings)
}
