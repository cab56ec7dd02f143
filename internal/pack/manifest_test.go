//go:build !integration

package pack_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/seanchatmangpt/gitvan/internal/pack"
	"github.com/stretchr/testify/require"
)

const validManifest = `{
  "id": "core/base",
  "version": "1.0.0",
  "compose": {"order": 1, "dependsOn": ["core/utils"]},
  "provides": {"templates": [{"src": "README.md.tmpl", "target": "README.md"}]}
}`

func TestLoadNormalizesDefaults(t *testing.T) {
	m, err := pack.Load([]byte(validManifest))
	require.NoError(t, err)
	require.Equal(t, "core/base", m.ID)
	require.Equal(t, []string{}, m.Tags)
	require.Equal(t, []string{}, m.Capabilities)
}

func TestLoadRejectsBadID(t *testing.T) {
	_, err := pack.Load([]byte(`{"id": "Bad Id!", "version": "1.0.0"}`))
	require.Error(t, err)
}

func TestLoadRejectsBadVersion(t *testing.T) {
	_, err := pack.Load([]byte(`{"id": "ok", "version": "v1"}`))
	require.Error(t, err)
}

func TestLoadDefaultsOrderTo999(t *testing.T) {
	m, err := pack.Load([]byte(`{"id": "ok", "version": "1.0.0"}`))
	require.NoError(t, err)
	require.Equal(t, 999, m.Compose.Order)
}

func TestFingerprintDeterministic(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "templates"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "templates", "README.md.tmpl"), []byte("hello"), 0o644))

	m, err := pack.Load([]byte(validManifest))
	require.NoError(t, err)

	fp1, err := pack.Fingerprint(m, dir)
	require.NoError(t, err)
	fp2, err := pack.Fingerprint(m, dir)
	require.NoError(t, err)
	require.Equal(t, fp1, fp2)
	require.Len(t, fp1, 64)
}

func TestFingerprintChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "templates"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "templates", "README.md.tmpl"), []byte("hello"), 0o644))

	m, err := pack.Load([]byte(validManifest))
	require.NoError(t, err)
	fp1, err := pack.Fingerprint(m, dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "templates", "README.md.tmpl"), []byte("goodbye"), 0o644))
	fp2, err := pack.Fingerprint(m, dir)
	require.NoError(t, err)
	require.NotEqual(t, fp1, fp2)
}
