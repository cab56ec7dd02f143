//go:build !integration

package packcache_test

import (
	"strings"
	"testing"
	"time"

	"github.com/seanchatmangpt/gitvan/internal/packcache"
	"github.com/stretchr/testify/require"
)

func TestSetGetRoundTrip(t *testing.T) {
	c := packcache.New(t.TempDir(), 1<<20, nil)
	require.NoError(t, c.Set(packcache.NSPackInfo, "core/base", []byte("hello"), 0))

	val, ok := c.Get(packcache.NSPackInfo, "core/base")
	require.True(t, ok)
	require.Equal(t, "hello", string(val))
}

func TestGetMissReturnsFalse(t *testing.T) {
	c := packcache.New(t.TempDir(), 1<<20, nil)
	_, ok := c.Get(packcache.NSPackInfo, "missing")
	require.False(t, ok)
}

func TestTTLExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &now
	c := packcache.New(t.TempDir(), 1<<20, func() time.Time { return *clock })
	require.NoError(t, c.Set(packcache.NSForgePack, "acme/widgets", []byte("v1"), time.Minute))

	_, ok := c.Get(packcache.NSForgePack, "acme/widgets")
	require.True(t, ok)

	*clock = clock.Add(2 * time.Minute)
	_, ok = c.Get(packcache.NSForgePack, "acme/widgets")
	require.False(t, ok)
}

func TestLargeValueSurvivesDiskCompression(t *testing.T) {
	dir := t.TempDir()
	c := packcache.New(dir, 1<<20, nil)
	big := []byte(strings.Repeat("x", 10000))
	require.NoError(t, c.Set(packcache.NSRegistryFetch, "big", big, 0))

	// A fresh Cache over the same disk root has an empty memory tier, so
	// this Get exercises the on-disk gzip-decompress-and-verify path.
	fresh := packcache.New(dir, 1<<20, nil)
	val, ok := fresh.Get(packcache.NSRegistryFetch, "big")
	require.True(t, ok)
	require.Equal(t, big, val)
}

func TestNamespaceInvalidateIsolated(t *testing.T) {
	c := packcache.New(t.TempDir(), 1<<20, nil)
	require.NoError(t, c.Set(packcache.NSPackInfo, "a", []byte("1"), 0))
	require.NoError(t, c.Set(packcache.NSPackResolve, "b", []byte("2"), 0))

	c.Invalidate(packcache.NSPackInfo, "")

	_, ok := c.Get(packcache.NSPackInfo, "a")
	require.False(t, ok)
	_, ok = c.Get(packcache.NSPackResolve, "b")
	require.True(t, ok)
}

func TestGetOrFetchCoalescesConcurrentMisses(t *testing.T) {
	c := packcache.New(t.TempDir(), 1<<20, nil)
	var calls int32
	fetch := func() ([]byte, error) {
		calls++
		return []byte("fetched"), nil
	}

	val, err := c.GetOrFetch(packcache.NSPackResolve, "k", time.Minute, fetch)
	require.NoError(t, err)
	require.Equal(t, "fetched", string(val))

	val2, err := c.GetOrFetch(packcache.NSPackResolve, "k", time.Minute, fetch)
	require.NoError(t, err)
	require.Equal(t, "fetched", string(val2))
	require.EqualValues(t, 1, calls)
}
