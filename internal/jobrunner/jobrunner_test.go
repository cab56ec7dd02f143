//go:build !integration

package jobrunner_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/seanchatmangpt/gitvan/internal/jobrunner"
	"github.com/seanchatmangpt/gitvan/internal/registry"
	"github.com/stretchr/testify/require"
)

func writeExecutable(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
}

func TestExecRunSucceeds(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script job fixture assumes a POSIX shell")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "jobs", "docs", "changelog.sh")
	writeExecutable(t, script, "#!/bin/sh\ncat >/dev/null\necho '{\"artifact\":\"dist/CHANGELOG.md\"}'\nexit 0\n")

	job := registry.Job{ID: "docs/changelog", Path: script, Ext: "sh"}
	r := jobrunner.New()
	result, err := r.Run(context.Background(), job, jobrunner.Invocation{
		JobID: job.ID, Signal: "message", Commit: "abc123", RepoDir: dir,
	})
	require.NoError(t, err)
	require.Equal(t, 0, result.ExitCode)
	require.Equal(t, "dist/CHANGELOG.md", result.Artifact)
}

func TestExecRunNonZeroExitIsError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script job fixture assumes a POSIX shell")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "jobs", "broken.sh")
	writeExecutable(t, script, "#!/bin/sh\nexit 3\n")

	job := registry.Job{ID: "broken", Path: script, Ext: "sh"}
	r := jobrunner.New()
	result, err := r.Run(context.Background(), job, jobrunner.Invocation{JobID: job.ID, RepoDir: dir})
	require.Error(t, err)
	require.Equal(t, 3, result.ExitCode)
}

func TestExecRunTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script job fixture assumes a POSIX shell")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "jobs", "slow.sh")
	writeExecutable(t, script, "#!/bin/sh\nsleep 5\n")

	job := registry.Job{ID: "slow", Path: script, Ext: "sh"}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	r := jobrunner.New()
	_, err := r.Run(ctx, job, jobrunner.Invocation{JobID: job.ID, RepoDir: dir})
	require.Error(t, err)
}
