//go:build !integration

package daemon_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/seanchatmangpt/gitvan/internal/daemon"
	"github.com/seanchatmangpt/gitvan/internal/gitadapter"
	"github.com/seanchatmangpt/gitvan/internal/jobrunner"
	"github.com/seanchatmangpt/gitvan/internal/registry"
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

// commitNew creates a new commit in dir (so the GitWatcher observes HEAD
// movement past whatever baseline it captured at construction time).
func commitNew(t *testing.T, dir, message string) string {
	t.Helper()
	require.NoError(t, exec.Command("sh", "-c", "cd "+dir+" && date +%s%N > g.txt && git add g.txt").Run())
	cmd := exec.Command("git", "commit", "-q", "-m", message)
	cmd.Dir = dir
	require.NoError(t, cmd.Run())
	out, err := exec.Command("git", "-C", dir, "rev-parse", "HEAD").Output()
	require.NoError(t, err)
	return string(out[:40])
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// fakeRunner is an in-process Runner stub that counts invocations per
// (jobID, commit) so tests can assert at-most-once dispatch without
// shelling out to a real interpreter.
type fakeRunner struct {
	mu    sync.Mutex
	calls map[string]int
}

func newFakeRunner() *fakeRunner { return &fakeRunner{calls: map[string]int{}} }

func (f *fakeRunner) Run(ctx context.Context, job registry.Job, inv jobrunner.Invocation) (jobrunner.Result, error) {
	f.mu.Lock()
	f.calls[inv.JobID+"@"+inv.Commit]++
	f.mu.Unlock()
	return jobrunner.Result{ExitCode: 0, Artifact: "dist/CHANGELOG.md"}, nil
}

func (f *fakeRunner) countFor(jobID, commit string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[jobID+"@"+commit]
}

func newDaemon(t *testing.T, dir string, runner jobrunner.Runner) *daemon.Daemon {
	t.Helper()
	rt := runtime.New("git", dir, dir)
	git := gitadapter.New(rt)
	d, err := daemon.New(rt, git, daemon.Config{
		RepoDir:      dir,
		JobsDir:      filepath.Join(dir, "jobs"),
		EventsDir:    filepath.Join(dir, "events"),
		Workers:      2,
		PollInterval: 20 * time.Millisecond,
		DrainGrace:   2 * time.Second,
	}, runner)
	require.NoError(t, err)
	return d
}

func TestDaemonDispatchesOnMessageMatchAndDedupes(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, filepath.Join(dir, "jobs", "docs", "changelog.sh"), "#!/bin/sh\nexit 0\n")
	writeFile(t, filepath.Join(dir, "events", "message", "release.yaml"), "job: docs/changelog\n")

	runner := newFakeRunner()
	d := newDaemon(t, dir, runner)

	var mu sync.Mutex
	var outcomes []daemon.Outcome
	d.OnDispatch(func(o daemon.Outcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	})

	require.NoError(t, d.Start(context.Background()))
	head := commitNew(t, dir, "release: v1.0.0")

	require.Eventually(t, func() bool {
		return runner.countFor("docs/changelog", head) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// A second poll cycle observes no further HEAD movement, so the job
	// must not fire again even though the watcher keeps polling.
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 1, runner.countFor("docs/changelog", head))

	require.NoError(t, d.Shutdown())
	require.Equal(t, daemon.StateStopped, d.State())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, outcomes, 1)
	require.Equal(t, "OK", outcomes[0].Status)
}

func TestDaemonStateMachine(t *testing.T) {
	dir := initRepo(t)
	runner := newFakeRunner()
	d := newDaemon(t, dir, runner)

	require.Equal(t, daemon.StateStopped, d.State())
	require.NoError(t, d.Start(context.Background()))
	require.Equal(t, daemon.StateRunning, d.State())
	require.NoError(t, d.Shutdown())
	require.Equal(t, daemon.StateStopped, d.State())

	// Shutdown is idempotent once stopped.
	require.NoError(t, d.Shutdown())
}

func TestDaemonDoesNotDispatchUnknownJob(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, filepath.Join(dir, "events", "message", "release.yaml"), "job: does/not/exist\n")
	runner := newFakeRunner()
	d := newDaemon(t, dir, runner)

	require.NoError(t, d.Start(context.Background()))
	commitNew(t, dir, "release: triggers a binding with no matching job")
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, d.Shutdown())

	require.Equal(t, 0, runner.countFor("does/not/exist", ""))
}
