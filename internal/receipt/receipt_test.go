//go:build !integration

package receipt_test

import (
	"os/exec"
	"testing"

	"github.com/seanchatmangpt/gitvan/internal/gitadapter"
	"github.com/seanchatmangpt/gitvan/internal/receipt"
	"github.com/seanchatmangpt/gitvan/internal/runtime"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		require.NoError(t, cmd.Run())
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")
	require.NoError(t, exec.Command("sh", "-c", "cd "+dir+" && echo hi > f.txt && git add f.txt").Run())
	run("commit", "-q", "-m", "initial")
	return dir
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := initRepo(t)
	rt := runtime.New("git", dir, dir)
	git := gitadapter.New(rt)
	store := receipt.New(git)
	cc := gitadapter.CallCtx{Dir: dir}

	commit, err := git.RevParse(cc, "HEAD")
	require.NoError(t, err)

	require.NoError(t, store.Write(cc, commit, receipt.Record{
		Role: "receipt", ID: "core/base", Status: "OK", Action: "apply",
		Fingerprint: "abc123", Commit: commit, Timestamp: "2026-01-01T00:00:00Z",
	}))

	records, err := store.ReadAll(cc, commit)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "core/base", records[0].ID)
}

func TestWriteAppendsNotReplaces(t *testing.T) {
	dir := initRepo(t)
	rt := runtime.New("git", dir, dir)
	git := gitadapter.New(rt)
	store := receipt.New(git)
	cc := gitadapter.CallCtx{Dir: dir}

	commit, err := git.RevParse(cc, "HEAD")
	require.NoError(t, err)

	require.NoError(t, store.Write(cc, commit, receipt.Record{ID: "a", Status: "OK", Commit: commit}))
	require.NoError(t, store.Write(cc, commit, receipt.Record{ID: "b", Status: "OK", Commit: commit}))

	records, err := store.ReadAll(cc, commit)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestHasReportsIdempotencyByFingerprint(t *testing.T) {
	dir := initRepo(t)
	rt := runtime.New("git", dir, dir)
	git := gitadapter.New(rt)
	store := receipt.New(git)
	cc := gitadapter.CallCtx{Dir: dir}

	commit, err := git.RevParse(cc, "HEAD")
	require.NoError(t, err)

	has, err := store.Has(cc, commit, "fp1")
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, store.Write(cc, commit, receipt.Record{ID: "a", Fingerprint: "fp1", Status: "OK", Commit: commit}))

	has, err = store.Has(cc, commit, "fp1")
	require.NoError(t, err)
	require.True(t, has)
}

func TestTombstoneSuppressesHas(t *testing.T) {
	dir := initRepo(t)
	rt := runtime.New("git", dir, dir)
	git := gitadapter.New(rt)
	store := receipt.New(git)
	cc := gitadapter.CallCtx{Dir: dir}

	commit, err := git.RevParse(cc, "HEAD")
	require.NoError(t, err)

	require.NoError(t, store.Write(cc, commit, receipt.Record{ID: "a", Fingerprint: "fp1", Status: "OK", Commit: commit}))
	require.NoError(t, store.Tombstone(cc, commit, "fp1"))

	has, err := store.Has(cc, commit, "fp1")
	require.NoError(t, err)
	require.False(t, has)
}
