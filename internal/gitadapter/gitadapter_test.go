//go:build !integration

package gitadapter_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/seanchatmangpt/gitvan/internal/gitadapter"
	"github.com/seanchatmangpt/gitvan/internal/runtime"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=gitvan", "GIT_AUTHOR_EMAIL=gitvan@example.com",
			"GIT_COMMITTER_NAME=gitvan", "GIT_COMMITTER_EMAIL=gitvan@example.com")
		require.NoError(t, cmd.Run(), "git %v", args)
	}
	run("init", "-q")
	run("config", "user.email", "gitvan@example.com")
	run("config", "user.name", "gitvan")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi\n"), 0o644))
	run("add", "README.md")
	run("commit", "-q", "-m", "init")
	return dir
}

func TestAdapterRevParseAndLog(t *testing.T) {
	dir := initRepo(t)
	rt := runtime.New("git", dir, dir)
	a := gitadapter.New(rt)

	sha, err := a.RevParse(gitadapter.CallCtx{Dir: dir}, "HEAD")
	require.NoError(t, err)
	require.Len(t, sha, 40)

	out, err := a.Log(gitadapter.CallCtx{Dir: dir}, "%s", 1)
	require.NoError(t, err)
	require.Contains(t, out, "init")
}

func TestAdapterNotesRoundTrip(t *testing.T) {
	dir := initRepo(t)
	rt := runtime.New("git", dir, dir)
	a := gitadapter.New(rt)
	cc := gitadapter.CallCtx{Dir: dir}

	sha, err := a.RevParse(cc, "HEAD")
	require.NoError(t, err)

	require.NoError(t, a.NotesAdd(cc, "refs/notes/gitvan/results", sha, `{"role":"receipt"}`))

	note, err := a.NotesShow(cc, "refs/notes/gitvan/results", sha)
	require.NoError(t, err)
	require.Contains(t, note, "receipt")

	list, err := a.NotesList(cc, "refs/notes/gitvan/results")
	require.NoError(t, err)
	require.Contains(t, list, sha)
}

func TestAdapterGitErrorOnBadRev(t *testing.T) {
	dir := initRepo(t)
	rt := runtime.New("git", dir, dir)
	a := gitadapter.New(rt)

	_, err := a.RevParse(gitadapter.CallCtx{Dir: dir}, "not-a-real-rev")
	require.Error(t, err)
}
