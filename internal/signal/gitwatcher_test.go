//go:build !integration

package signal_test

import (
	"context"
	"os/exec"
	"testing"

	"github.com/seanchatmangpt/gitvan/internal/gitadapter"
	"github.com/seanchatmangpt/gitvan/internal/runtime"
	"github.com/seanchatmangpt/gitvan/internal/signal"
	"github.com/stretchr/testify/require"
)

func TestGitWatcherPollDetectsMovement(t *testing.T) {
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		require.NoError(t, cmd.Run())
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")
	require.NoError(t, exec.Command("sh", "-c", "cd "+dir+" && echo a > a.txt && git add a.txt").Run())
	run("commit", "-q", "-m", "first")

	rt := runtime.New("git", dir, dir)
	git := gitadapter.New(rt)
	w, err := signal.NewGitWatcher(git, dir)
	require.NoError(t, err)

	_, changed, err := w.Poll(context.Background())
	require.NoError(t, err)
	require.False(t, changed)

	require.NoError(t, exec.Command("sh", "-c", "cd "+dir+" && echo b > b.txt && git add b.txt").Run())
	run("commit", "-q", "-m", "second change")

	ev, changed, err := w.Poll(context.Background())
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, signal.KindCommit, ev.Kind)
	require.Contains(t, ev.ChangedPaths, "b.txt")
	require.Contains(t, ev.Message, "second change")
}
