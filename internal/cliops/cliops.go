// Package cliops implements the operations named in spec §6's CLI surface
// ("treated as an external collaborator; the core merely exposes the
// operations it invokes"). Each exported function here is the thing
// cmd/gitvan's cobra commands call: argument parsing and flag decoding
// stay in cmd/gitvan, everything that touches a core component
// (compose, resolve, apply, registry, receipt, daemon) lives here.
// Grounded on the teacher's pkg/cli package split (cmd/gh-aw/main.go
// holds only cobra.Command wiring; pkg/cli.RunWorkflowsOnGitHub and
// friends hold the actual operation bodies).
package cliops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/seanchatmangpt/gitvan/internal/apply"
	"github.com/seanchatmangpt/gitvan/internal/compose"
	"github.com/seanchatmangpt/gitvan/internal/daemon"
	"github.com/seanchatmangpt/gitvan/internal/fetch"
	"github.com/seanchatmangpt/gitvan/internal/gitadapter"
	"github.com/seanchatmangpt/gitvan/internal/gverr"
	"github.com/seanchatmangpt/gitvan/internal/jobrunner"
	"github.com/seanchatmangpt/gitvan/internal/packcache"
	"github.com/seanchatmangpt/gitvan/internal/receipt"
	"github.com/seanchatmangpt/gitvan/internal/registry"
	"github.com/seanchatmangpt/gitvan/internal/resolve"
	"github.com/seanchatmangpt/gitvan/internal/runtime"
	"github.com/seanchatmangpt/gitvan/internal/signal"
)

// ExitCode mirrors spec §6's "Exit codes: 0 OK, 1 ERROR, 2 PARTIAL,
// 3 CONFLICT, 4 INVALID_INPUT".
type ExitCode int

const (
	ExitOK ExitCode = iota
	ExitError
	ExitPartial
	ExitConflict
	ExitInvalidInput
)

// Env bundles the wiring every operation needs: one per CLI invocation,
// built from the target repository's working directory.
type Env struct {
	RepoDir  string
	Runtime  *runtime.Runtime
	Git      *gitadapter.Adapter
	Cache    *packcache.Cache
	Fetcher  *fetch.Fetcher
	Composer *compose.Composer
	Receipts *receipt.Store
}

// NewEnv wires a fresh Env rooted at repoDir, using the conventional
// directory layout from spec §6 ("Filesystem layout on a target
// repository"): packs/ local source, .gitvan/cache disk cache.
func NewEnv(repoDir string) (*Env, error) {
	rt := runtime.FromEnv()
	rt.CacheRoot = filepath.Join(repoDir, "packs")
	git := gitadapter.New(rt)
	cache := packcache.New(filepath.Join(repoDir, ".gitvan", "cache"), 64<<20, time.Now)
	fetcher := fetch.New(rt, git, cache)
	receipts := receipt.New(git)
	applier := apply.New(git, receipts)
	composer := compose.New(fetcher, applier)
	return &Env{
		RepoDir: repoDir, Runtime: rt, Git: git, Cache: cache,
		Fetcher: fetcher, Composer: composer, Receipts: receipts,
	}, nil
}

// ApplyOptions decodes "pack apply <ids…> [--target <dir>] [--input k=v]…".
type ApplyOptions struct {
	IDs             []string
	TargetDir       string
	Inputs          map[string]map[string]any
	ContinueOnError bool
	IgnoreConflicts bool
}

// Apply runs "pack apply".
func Apply(ctx context.Context, env *Env, opts ApplyOptions) (compose.Report, ExitCode, error) {
	target := opts.TargetDir
	if target == "" {
		target = env.RepoDir
	}
	report, err := env.Composer.Compose(ctx, opts.IDs, target, compose.Options{
		ContinueOnError: opts.ContinueOnError,
		IgnoreConflicts: opts.IgnoreConflicts,
		Inputs:          opts.Inputs,
	}, apply.Available{})
	return report, exitFor(report.Status, err), err
}

// Preview runs "pack preview <ids…>": a read-only resolve, no apply. The
// rendered form of plan is cmd/gitvan's concern (internal/cliops stays
// presentation-free).
func Preview(ctx context.Context, env *Env, ids []string) (resolve.Plan, ExitCode, error) {
	plan, err := env.Composer.Preview(ctx, ids, compose.Options{})
	if err != nil {
		return resolve.Plan{}, ExitError, err
	}
	if len(plan.Conflicts) > 0 {
		return plan, ExitConflict, nil
	}
	return plan, ExitOK, nil
}

// Validate runs "pack validate <ids…>": Preview plus manifest schema
// checks, without writing anything.
func Validate(ctx context.Context, env *Env, ids []string) (bool, ExitCode, error) {
	valid, _, err := env.Composer.Validate(ctx, ids, compose.Options{})
	if err != nil {
		return false, exitForErr(err), err
	}
	if !valid {
		return false, ExitInvalidInput, nil
	}
	return true, ExitOK, nil
}

func exitFor(status compose.Status, err error) ExitCode {
	switch {
	case gverr.As(err, gverr.KindConflict):
		return ExitConflict
	case status == compose.StatusPartial:
		return ExitPartial
	case status == compose.StatusError || err != nil:
		return ExitError
	default:
		return ExitOK
	}
}

func exitForErr(err error) ExitCode {
	if gverr.As(err, gverr.KindConflict) {
		return ExitConflict
	}
	if gverr.As(err, gverr.KindManifestInvalid) || gverr.As(err, gverr.KindInputValidationFailed) {
		return ExitInvalidInput
	}
	if err != nil {
		return ExitError
	}
	return ExitOK
}

// DaemonConfig decodes "daemon start" flags into a daemon.Config.
type DaemonConfig = daemon.Config

// DaemonStart runs the Automation Daemon in the foreground until ctx is
// canceled (e.g. by a signal handler in cmd/gitvan); it blocks.
func DaemonStart(ctx context.Context, env *Env, cfg DaemonConfig) (ExitCode, error) {
	d, err := daemon.New(env.Runtime, env.Git, cfg, jobrunner.New())
	if err != nil {
		return ExitError, err
	}
	d.OnDispatch(func(o daemon.Outcome) {
		if o.Err != nil {
			fmt.Fprintf(os.Stderr, "job %s@%s: %s: %v\n", o.JobID, o.Commit, o.Status, o.Err)
			return
		}
		fmt.Fprintf(os.Stdout, "job %s@%s: %s\n", o.JobID, o.Commit, o.Status)
	})
	if err := d.Start(ctx); err != nil {
		return ExitError, err
	}
	<-ctx.Done()
	if err := d.Shutdown(); err != nil {
		return ExitError, err
	}
	return ExitOK, nil
}

// JobList runs "job list".
func JobList(jobsDir string) ([]registry.Job, ExitCode, error) {
	jobs, err := registry.DiscoverJobs(jobsDir)
	if err != nil {
		return nil, ExitError, err
	}
	return jobs, ExitOK, nil
}

// JobRun runs "job run <id>": a synchronous, out-of-band invocation with
// no commit context. No dedup check is made and no receipt is written —
// this is an operator-triggered run, not a signal-driven one.
func JobRun(ctx context.Context, env *Env, jobsDir, id string) (jobrunner.Result, ExitCode, error) {
	job, ok, err := registry.FindJob(jobsDir, id)
	if err != nil {
		return jobrunner.Result{}, ExitError, err
	}
	if !ok {
		return jobrunner.Result{}, ExitInvalidInput, gverr.New(gverr.KindPackNotFound, "no job %q discovered under %s", id, jobsDir)
	}
	runCtx, cancel := context.WithTimeout(ctx, jobrunner.DefaultTimeout)
	defer cancel()
	result, err := jobrunner.New().Run(runCtx, job, jobrunner.Invocation{
		JobID: job.ID, Signal: "manual", RepoDir: env.RepoDir,
	})
	if err != nil {
		return result, ExitError, err
	}
	return result, ExitOK, nil
}

// EventList runs "event list".
func EventList(eventsDir string) ([]registry.EventBinding, ExitCode, error) {
	bindings, err := registry.DiscoverEvents(eventsDir)
	if err != nil {
		return nil, ExitError, err
	}
	return bindings, ExitOK, nil
}

// EventSimulate runs "event simulate": replays one synthetic Event
// through the Signal Engine's Match (no Dedup, since there is no commit
// to dedup against) and reports which jobs would fire.
func EventSimulate(eventsDir string, ev signal.Event) ([]signal.Invocation, ExitCode, error) {
	bindings, err := registry.DiscoverEvents(eventsDir)
	if err != nil {
		return nil, ExitError, err
	}
	engine := signal.NewEngine(nil, bindings)
	return engine.Match(ev), ExitOK, nil
}

// CronList runs "cron list": discovers jobs and reports each one's
// declared cron spec alongside its next execution time from now.
type CronEntry struct {
	JobID string
	Spec  string
	Next  time.Time
}

func CronList(jobsDir string, now time.Time) ([]CronEntry, ExitCode, error) {
	jobs, err := registry.DiscoverJobs(jobsDir)
	if err != nil {
		return nil, ExitError, err
	}
	var entries []CronEntry
	for _, j := range jobs {
		if j.Cron == "" {
			continue
		}
		cs, err := registry.ParseCron(j.Cron)
		if err != nil {
			continue
		}
		next, _ := registry.GetNextExecution(cs, now)
		entries = append(entries, CronEntry{JobID: j.ID, Spec: j.Cron, Next: next})
	}
	sort.Slice(entries, func(i, k int) bool { return entries[i].JobID < entries[k].JobID })
	return entries, ExitOK, nil
}

// CronDryRun runs "cron dry-run": reports which declared cron jobs would
// fire at the given instant, without running any of them.
func CronDryRun(jobsDir string, at time.Time) ([]string, ExitCode, error) {
	jobs, err := registry.DiscoverJobs(jobsDir)
	if err != nil {
		return nil, ExitError, err
	}
	var fired []string
	for _, j := range jobs {
		if j.Cron == "" {
			continue
		}
		cs, err := registry.ParseCron(j.Cron)
		if err != nil {
			continue
		}
		if registry.MatchesCron(cs, at) {
			fired = append(fired, j.ID)
		}
	}
	sort.Strings(fired)
	return fired, ExitOK, nil
}

// AuditList runs "audit list": every receipt recorded under commit.
func AuditList(env *Env, commit string) ([]receipt.Record, ExitCode, error) {
	cc := gitadapter.CallCtx{Context: context.Background(), Dir: env.RepoDir}
	records, err := env.Receipts.ReadAll(cc, commit)
	if err != nil {
		return nil, ExitError, err
	}
	return records, ExitOK, nil
}

// AuditShow runs "audit show <commit>": an alias for AuditList kept
// distinct at the cliops boundary because spec §6 lists them as separate
// subcommands. Both read the receipts of exactly one commit.
func AuditShow(env *Env, commit string) ([]receipt.Record, ExitCode, error) {
	return AuditList(env, commit)
}
