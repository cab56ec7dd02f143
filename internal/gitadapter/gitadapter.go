// Package gitadapter is the narrow subprocess adapter over git (spec §4.1,
// component C1). It is the only package in GitVan that shells out to git;
// every other component reaches git exclusively through here. Grounded on
// the teacher's pkg/cli/git.go (exec.Command + logger + error wrapping),
// generalized from "workflow git plumbing" to "ambient-context git calls
// that may run concurrently against different working trees".
package gitadapter

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/seanchatmangpt/gitvan/internal/gitvanlog"
	"github.com/seanchatmangpt/gitvan/internal/gverr"
	"github.com/seanchatmangpt/gitvan/internal/runtime"
)

var log = gitvanlog.New("gitadapter")

// maxStdout caps captured subprocess stdout per spec §4.1 ("12 MiB cap;
// overflow fails the call").
const maxStdout = 12 << 20

// CallCtx is the ambient context injected into each Adapter call. Two
// concurrent calls with different Dir values operate on different working
// trees safely; neither call's Dir leaks into the other.
type CallCtx struct {
	Context context.Context
	Dir     string
	Env     map[string]string // merged over the Runtime's base env
}

// Adapter executes git subprocesses on behalf of a Runtime.
type Adapter struct {
	rt *runtime.Runtime
}

// New returns an Adapter bound to rt (for GitBin and base Env).
func New(rt *runtime.Runtime) *Adapter {
	return &Adapter{rt: rt}
}

func (a *Adapter) run(cc CallCtx, args ...string) (string, error) {
	ctx := cc.Context
	if ctx == nil {
		ctx = context.Background()
	}
	cmd := exec.CommandContext(ctx, a.rt.GitBin, args...)
	cmd.Dir = cc.Dir

	env := make([]string, 0, len(a.rt.Env)+len(cc.Env))
	merged := map[string]string{}
	for k, v := range a.rt.Env {
		merged[k] = v
	}
	for k, v := range cc.Env {
		merged[k] = v
	}
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, limit: maxStdout}
	cmd.Stderr = &stderr

	log.Printf("exec git %s (dir=%s)", strings.Join(args, " "), cc.Dir)
	err := cmd.Run()
	if lw, ok := cmd.Stdout.(*limitedWriter); ok && lw.overflowed {
		return "", gverr.Wrap(gverr.KindGitError, err, "git %v: stdout exceeded %d bytes", args, maxStdout)
	}
	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errorsAs(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return "", &gverr.GitError{Args: args, ExitCode: exitCode, Stderr: strings.TrimSpace(stderr.String()), Cause: err}
	}
	return stdout.String(), nil
}

// errorsAs is a tiny indirection so we don't need to import "errors" just
// for this one call in a file that otherwise deals in git-specific types.
func errorsAs(err error, target **exec.ExitError) bool {
	type exitCoder interface{ ExitCode() int }
	for err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			*target = ee
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

type limitedWriter struct {
	w          io.Writer
	limit      int
	written    int
	overflowed bool
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.overflowed {
		return len(p), nil
	}
	if l.written+len(p) > l.limit {
		l.overflowed = true
		return len(p), nil
	}
	n, err := l.w.Write(p)
	l.written += n
	return n, err
}

// Log returns up to limit log entries formatted with format (a git
// --pretty=format string), most recent first.
func (a *Adapter) Log(cc CallCtx, format string, limit int) (string, error) {
	args := []string{"log", "--pretty=format:" + format}
	if limit > 0 {
		args = append(args, "-n", strconv.Itoa(limit))
	}
	return a.run(cc, args...)
}

// Status returns porcelain status output.
func (a *Adapter) Status(cc CallCtx) (string, error) {
	return a.run(cc, "status", "--porcelain")
}

// CurrentBranch returns the checked-out branch name.
func (a *Adapter) CurrentBranch(cc CallCtx) (string, error) {
	out, err := a.run(cc, "rev-parse", "--abbrev-ref", "HEAD")
	return strings.TrimSpace(out), err
}

// Add stages paths.
func (a *Adapter) Add(cc CallCtx, paths []string) error {
	args := append([]string{"add"}, paths...)
	_, err := a.run(cc, args...)
	return err
}

// Commit creates a commit with message.
func (a *Adapter) Commit(cc CallCtx, message string) error {
	_, err := a.run(cc, "commit", "-m", message)
	return err
}

// Checkout switches to ref.
func (a *Adapter) Checkout(cc CallCtx, ref string) error {
	_, err := a.run(cc, "checkout", ref)
	return err
}

// Merge merges ref into the current branch.
func (a *Adapter) Merge(cc CallCtx, ref string) error {
	_, err := a.run(cc, "merge", ref)
	return err
}

// NotesAdd writes payload as a note on object under ref, replacing any
// prior note (spec's Receipt Store appends logically via the caller
// reading-then-rewriting the whole blob; NotesAdd itself is a single
// atomic git-notes write).
func (a *Adapter) NotesAdd(cc CallCtx, ref, object, payload string) error {
	_, err := a.run(cc, "notes", "--ref="+ref, "add", "-f", "-m", payload, object)
	return err
}

// NotesShow reads the note content attached to object under ref.
func (a *Adapter) NotesShow(cc CallCtx, ref, object string) (string, error) {
	return a.run(cc, "notes", "--ref="+ref, "show", object)
}

// NotesList lists "<note-object> <target-object>" pairs under ref.
func (a *Adapter) NotesList(cc CallCtx, ref string) (string, error) {
	return a.run(cc, "notes", "--ref="+ref, "list")
}

// ShowRef resolves a ref name to its object id, or returns an error if it
// does not exist.
func (a *Adapter) ShowRef(cc CallCtx, name string) (string, error) {
	out, err := a.run(cc, "show-ref", "--hash", name)
	return strings.TrimSpace(out), err
}

// RevParse resolves rev to a full object id.
func (a *Adapter) RevParse(cc CallCtx, rev string) (string, error) {
	out, err := a.run(cc, "rev-parse", rev)
	return strings.TrimSpace(out), err
}

// NowISO returns the current time in UTC ISO-8601, driven by the bound
// Runtime's clock so tests can freeze time.
func (a *Adapter) NowISO() string {
	return a.rt.Now().UTC().Format(time.RFC3339)
}

// Clone performs a shallow clone of url into dest, optionally at ref.
func (a *Adapter) Clone(cc CallCtx, url, ref string, depth int, dest string) error {
	if depth <= 0 {
		depth = 1
	}
	args := []string{"clone", "--depth", strconv.Itoa(depth)}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, url, dest)
	// Clone runs in cc.Dir as given; the fetcher leaves it unset (the
	// destination doesn't exist yet) and passes dest as a full path.
	_, err := a.run(cc, args...)
	return err
}

// DiffNameOnly returns changed paths between two revisions (used by the
// GitWatcher, spec §4.11).
func (a *Adapter) DiffNameOnly(cc CallCtx, from, to string) ([]string, error) {
	out, err := a.run(cc, "diff", "--name-only", from, to)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

// CommitMessage returns the subject+body of rev ("%s%n%b").
func (a *Adapter) CommitMessage(cc CallCtx, rev string) (string, error) {
	out, err := a.run(cc, "log", "-1", "--pretty=format:%s%n%b", rev)
	return out, err
}
