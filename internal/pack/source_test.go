//go:build !integration

package pack_test

import (
	"testing"

	"github.com/seanchatmangpt/gitvan/internal/pack"
	"github.com/stretchr/testify/require"
)

func TestParseIDBuiltin(t *testing.T) {
	s, err := pack.ParseID("builtin/nodejs-basic")
	require.NoError(t, err)
	require.Equal(t, pack.SourceBuiltin, s.Kind)
	require.Equal(t, "nodejs-basic", s.BuiltinName)
	require.Equal(t, "builtin/nodejs-basic", s.String())
}

func TestParseIDForgeOwnerRepo(t *testing.T) {
	s, err := pack.ParseID("acme/widgets#v2/packs/starter")
	require.NoError(t, err)
	require.Equal(t, pack.SourceForge, s.Kind)
	require.Equal(t, "github", s.Provider)
	require.Equal(t, "acme", s.Owner)
	require.Equal(t, "widgets", s.Repo)
	require.Equal(t, "v2", s.Ref)
	require.Equal(t, "packs/starter", s.Subpath)
}

func TestParseIDForgeWithRefOnly(t *testing.T) {
	s, err := pack.ParseID("acme/widgets#main")
	require.NoError(t, err)
	require.Equal(t, pack.SourceForge, s.Kind)
	require.Equal(t, "main", s.Ref)
	require.Empty(t, s.Subpath)
}

func TestParseIDGitlabPrefix(t *testing.T) {
	s, err := pack.ParseID("gitlab:acme/widgets#main")
	require.NoError(t, err)
	require.Equal(t, pack.SourceForge, s.Kind)
	require.Equal(t, "gitlab", s.Provider)
	require.Equal(t, "acme", s.Owner)
	require.Equal(t, "widgets", s.Repo)
}

func TestParseIDBareScopeNameIsRegistry(t *testing.T) {
	s, err := pack.ParseID("core/base")
	require.NoError(t, err)
	require.Equal(t, pack.SourceRegistry, s.Kind)
	require.Equal(t, "core/base", s.RegistryID)
}

func TestParseIDBareNameIsRegistry(t *testing.T) {
	s, err := pack.ParseID("nodejs")
	require.NoError(t, err)
	require.Equal(t, pack.SourceRegistry, s.Kind)
}

func TestParseIDEmptyRejected(t *testing.T) {
	_, err := pack.ParseID("")
	require.Error(t, err)
}

func TestCacheKeyForgeWithSubpath(t *testing.T) {
	s, err := pack.ParseID("acme/widgets#v2/packs/starter")
	require.NoError(t, err)
	require.Equal(t, "forge-acme-widgets-v2-packs-starter", s.CacheKey())
}
