// GitWatcher producer (spec §4.11): on each detected HEAD movement,
// computes commit/previousCommit/changedPaths/message and emits one Event.
// Grounded on gh-aw's compile_watch.go fsnotify-based directory watch
// (pkg/cli/compile_watch.go), adapted from "watch workflow markdown files"
// to "watch .git/HEAD and refs for movement"; falls back to polling when
// fsnotify is unavailable or the caller prefers deterministic ticks (used
// by tests and by the daemon's own poll loop between ticks, per spec
// §4.11 "or polling of HEAD and refs between daemon ticks").
package signal

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/seanchatmangpt/gitvan/internal/gitadapter"
	"github.com/seanchatmangpt/gitvan/internal/gitvanlog"
)

var gitWatcherLog = gitvanlog.New("signal:gitwatcher")

// GitWatcher observes HEAD movement in one repository and emits Events.
type GitWatcher struct {
	git  *gitadapter.Adapter
	dir  string
	last string
}

// NewGitWatcher returns a watcher bound to repoDir, seeded with the
// repository's current HEAD so the first observed movement produces a
// correct PreviousCommit.
func NewGitWatcher(git *gitadapter.Adapter, repoDir string) (*GitWatcher, error) {
	cc := gitadapter.CallCtx{Dir: repoDir}
	head, err := git.RevParse(cc, "HEAD")
	if err != nil {
		head = ""
	}
	return &GitWatcher{git: git, dir: repoDir, last: head}, nil
}

// Poll checks HEAD once and returns an Event if it moved since the last
// Poll or construction, or (Event{}, false, nil) if unchanged.
func (w *GitWatcher) Poll(ctx context.Context) (Event, bool, error) {
	cc := gitadapter.CallCtx{Context: ctx, Dir: w.dir}
	head, err := w.git.RevParse(cc, "HEAD")
	if err != nil {
		return Event{}, false, err
	}
	if head == w.last {
		return Event{}, false, nil
	}
	previous := w.last
	w.last = head

	var changed []string
	if previous != "" {
		changed, err = w.git.DiffNameOnly(cc, previous, head)
		if err != nil {
			gitWatcherLog.Printf("diff-name-only failed for %s..%s: %v", previous, head, err)
		}
	}
	message, err := w.git.CommitMessage(cc, head)
	if err != nil {
		gitWatcherLog.Printf("reading commit message for %s failed: %v", head, err)
	}
	branch, err := w.git.CurrentBranch(cc)
	if err != nil {
		branch = ""
	}

	return Event{
		Kind:           KindCommit,
		Commit:         head,
		PreviousCommit: previous,
		ChangedPaths:   changed,
		Message:        message,
		Branch:         branch,
		Timestamp:      time.Now(),
	}, true, nil
}

// Watch runs fsnotify over .git/HEAD and .git/refs, calling emit for each
// detected movement, until ctx is cancelled. fsnotify watches for file
// writes; actual event construction still goes through Poll so the
// observable data (changedPaths, message) is always computed freshly from
// git rather than inferred from filesystem notifications alone.
func (w *GitWatcher) Watch(ctx context.Context, emit func(Event)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	gitDir := filepath.Join(w.dir, ".git")
	if err := watcher.Add(gitDir); err != nil {
		return err
	}
	refsDir := filepath.Join(gitDir, "refs", "heads")
	_ = watcher.Add(refsDir) // best-effort; absent on a fresh bare-ish repo

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, "HEAD") && !strings.Contains(ev.Name, "refs") {
				continue
			}
			signalEv, changed, err := w.Poll(ctx)
			if err != nil {
				gitWatcherLog.Printf("poll after fsnotify event failed: %v", err)
				continue
			}
			if changed {
				emit(signalEv)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			gitWatcherLog.Printf("fsnotify error: %v", err)
		}
	}
}
