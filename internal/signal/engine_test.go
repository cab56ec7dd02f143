//go:build !integration

package signal_test

import (
	"os/exec"
	"testing"

	"github.com/seanchatmangpt/gitvan/internal/gitadapter"
	"github.com/seanchatmangpt/gitvan/internal/receipt"
	"github.com/seanchatmangpt/gitvan/internal/registry"
	"github.com/seanchatmangpt/gitvan/internal/runtime"
	"github.com/seanchatmangpt/gitvan/internal/signal"
	"github.com/stretchr/testify/require"
)

func initEngineRepo(t *testing.T) string {
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
	run("commit", "-q", "-m", "release: v1.0.0")
	return dir
}

func TestEngineMatchAndDedup(t *testing.T) {
	dir := initEngineRepo(t)
	rt := runtime.New("git", dir, dir)
	git := gitadapter.New(rt)
	store := receipt.New(git)
	cc := gitadapter.CallCtx{Dir: dir}

	commit, err := git.RevParse(cc, "HEAD")
	require.NoError(t, err)

	bindings := []registry.EventBinding{
		{Kind: "message", Pattern: "^release:", JobID: "docs/changelog"},
	}
	engine := signal.NewEngine(store, bindings)

	ev := signal.Event{Kind: signal.KindCommit, Commit: commit, Message: "release: v1.0.0"}
	matches := engine.Match(ev)
	require.Len(t, matches, 1)
	require.Equal(t, "docs/changelog", matches[0].JobID)

	deduped, err := engine.Dedup(cc, commit, matches)
	require.NoError(t, err)
	require.Len(t, deduped, 1)

	require.NoError(t, store.Write(cc, commit, receipt.Record{
		ID: "docs/changelog", Status: "OK", Commit: commit,
		Fingerprint: "docs/changelog@" + commit,
	}))

	deduped2, err := engine.Dedup(cc, commit, matches)
	require.NoError(t, err)
	require.Empty(t, deduped2)
}
