// Package daemon implements the Automation Daemon (spec §2 "Automation
// Daemon", §4.11 C11's orchestration half, §4.12 "Daemon" state machine):
// the long-lived process that fires jobs from cron specs and Git signals,
// coordinating execution via the Worker Pool with at-most-once semantics
// per (signal, commit) and writing durable receipts into Git notes.
//
// Grounded on the teacher's compile-then-watch shape (pkg/cli/compile_watch.go
// drives a single fsnotify loop that recompiles on change; here generalized
// into two independent producers — CronTicker and GitWatcher — feeding one
// dispatch loop) and on the spec's own state machine in §4.12, which this
// package is the first to actually assemble: every other package in this
// module (registry, signal, workerpool, receipt, jobrunner) is a leaf this
// one wires together.
package daemon

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/seanchatmangpt/gitvan/internal/gitadapter"
	"github.com/seanchatmangpt/gitvan/internal/gitvanlog"
	"github.com/seanchatmangpt/gitvan/internal/gverr"
	"github.com/seanchatmangpt/gitvan/internal/jobrunner"
	"github.com/seanchatmangpt/gitvan/internal/receipt"
	"github.com/seanchatmangpt/gitvan/internal/registry"
	"github.com/seanchatmangpt/gitvan/internal/runtime"
	"github.com/seanchatmangpt/gitvan/internal/signal"
	"github.com/seanchatmangpt/gitvan/internal/workerpool"
)

var log = gitvanlog.New("daemon")

// notesKey is the key-lock name serializing all receipt writes across the
// worker pool (spec §5: "The Git notes ref is a contended resource;
// writes are serialized by a key-lock in the worker pool
// (key="notes:refs/notes/gitvan/results")").
const notesKey = "notes:refs/notes/gitvan/results"

// State is one position in the Daemon state machine (spec §4.12
// "STOPPED → STARTING → RUNNING ⇄ DRAINING → STOPPED").
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateDraining:
		return "DRAINING"
	default:
		return "UNKNOWN"
	}
}

// Config is the Daemon's explicit option set (spec §9 "Dynamic config
// objects → explicit options").
type Config struct {
	RepoDir      string
	JobsDir      string
	EventsDir    string
	Workers      int
	MaxPending   int
	PollInterval time.Duration // GitWatcher poll cadence between ticks
	JobTimeout   time.Duration // default per-job deadline when a job declares none
	DrainGrace   time.Duration // how long DRAINING waits for in-flight jobs
}

// withDefaults fills zero-valued fields with the spec's stated defaults.
func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxPending <= 0 {
		c.MaxPending = c.Workers * 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = jobrunner.DefaultTimeout
	}
	if c.DrainGrace <= 0 {
		c.DrainGrace = 30 * time.Second
	}
	return c
}

// Daemon ties the CronTicker, GitWatcher, Signal Engine, Job Registry,
// Worker Pool, and Receipt Store into the runnable loop described by spec
// §2's "Data flow for daemon".
type Daemon struct {
	cfg     Config
	git     *gitadapter.Adapter
	rt       *runtime.Runtime
	pool     *workerpool.Pool
	runner   jobrunner.Runner
	receipts *receipt.Store

	jobs     map[string]registry.Job
	bindings []registry.EventBinding
	ticker   *signal.CronTicker
	watcher  *signal.GitWatcher
	engine   *signal.Engine

	state  atomic.Int32
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// onDispatch lets tests observe invocation outcomes deterministically
	// instead of racing the dispatch goroutines.
	mu         sync.Mutex
	onDispatch func(Outcome)
}

// Outcome is what one dispatched JobInvocation produced, surfaced to
// callers (and tests) via OnDispatch.
type Outcome struct {
	JobID  string
	Commit string
	Status string // OK, ERROR, TIMEOUT
	Err    error
}

// New builds a Daemon over rt/git, discovering jobs and event bindings
// from cfg.JobsDir/EventsDir immediately. Discovery errors in individual
// files are logged and skipped, per the registry's own best-effort walk.
func New(rt *runtime.Runtime, git *gitadapter.Adapter, cfg Config, runner jobrunner.Runner) (*Daemon, error) {
	cfg = cfg.withDefaults()

	jobList, err := registry.DiscoverJobs(cfg.JobsDir)
	if err != nil {
		return nil, gverr.Wrap(gverr.KindFileSystemError, err, "discovering jobs under %s", cfg.JobsDir)
	}
	bindings, err := registry.DiscoverEvents(cfg.EventsDir)
	if err != nil {
		return nil, gverr.Wrap(gverr.KindFileSystemError, err, "discovering events under %s", cfg.EventsDir)
	}

	jobsByID := map[string]registry.Job{}
	cronSpecs := map[string]string{}
	for _, j := range jobList {
		jobsByID[j.ID] = j
		if j.Cron != "" {
			cronSpecs[j.ID] = j.Cron
		}
	}

	ticker, cronErrs := signal.NewCronTicker(cronSpecs, rt.Now)
	for jobID, err := range cronErrs {
		log.Printf("dropping cron spec for job %s: %v", jobID, err)
	}

	watcher, err := signal.NewGitWatcher(git, cfg.RepoDir)
	if err != nil {
		return nil, gverr.Wrap(gverr.KindGitError, err, "initializing git watcher for %s", cfg.RepoDir)
	}

	receipts := receipt.New(git)

	return &Daemon{
		cfg:      cfg,
		git:      git,
		rt:       rt,
		pool:     workerpool.New(cfg.Workers, cfg.MaxPending),
		runner:   runner,
		receipts: receipts,
		jobs:     jobsByID,
		bindings: bindings,
		ticker:   ticker,
		watcher:  watcher,
		engine:   signal.NewEngine(receipts, bindings),
	}, nil
}

// OnDispatch registers a callback invoked after every dispatched
// invocation completes (job run + receipt write). Intended for tests and
// for a CLI status surface; nil is a valid no-op default.
func (d *Daemon) OnDispatch(fn func(Outcome)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onDispatch = fn
}

func (d *Daemon) emit(o Outcome) {
	d.mu.Lock()
	fn := d.onDispatch
	d.mu.Unlock()
	if fn != nil {
		fn(o)
	}
}

// State reports the Daemon's current lifecycle state.
func (d *Daemon) State() State { return State(d.state.Load()) }

// Start transitions STOPPED → STARTING → RUNNING, launching the
// CronTicker and GitWatcher poll loops. It returns once both producers
// are running; Start is not safe to call twice without an intervening
// Shutdown.
func (d *Daemon) Start(ctx context.Context) error {
	if !d.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return gverr.New(gverr.KindFileSystemError, "daemon Start called while not STOPPED (state=%s)", d.State())
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.ticker.Run(runCtx, d.onCronTick)
	}()
	go func() {
		defer d.wg.Done()
		d.runGitWatchLoop(runCtx)
	}()

	d.state.Store(int32(StateRunning))
	log.Printf("daemon started: %d job(s), %d event binding(s)", len(d.jobs), len(d.bindings))
	return nil
}

// runGitWatchLoop polls HEAD every cfg.PollInterval and dispatches one
// SignalEvent per detected movement (spec §4.11 "or polling of HEAD and
// refs between daemon ticks").
func (d *Daemon) runGitWatchLoop(ctx context.Context) {
	t := time.NewTicker(d.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			ev, changed, err := d.watcher.Poll(ctx)
			if err != nil {
				log.Printf("git watch poll failed: %v", err)
				continue
			}
			if changed {
				d.dispatchEvent(ctx, ev)
			}
		}
	}
}

func (d *Daemon) onCronTick(matches map[string]signal.Event) {
	if len(matches) == 0 {
		return
	}
	// CronTicker.Run calls back synchronously from its own goroutine with
	// no context of its own; cron-dispatched work runs against Background
	// and is still bounded by the worker pool's per-execution timeout and
	// by Shutdown's eventual pool.Shutdown.
	ctx := context.Background()
	cc := gitadapter.CallCtx{Context: ctx, Dir: d.cfg.RepoDir}
	head, err := d.git.RevParse(cc, "HEAD")
	if err != nil {
		log.Printf("cron tick: resolving HEAD failed: %v", err)
		return
	}
	for jobID, ev := range matches {
		ev.Commit = head
		d.dispatchInvocation(ctx, signal.Invocation{JobID: jobID, Event: ev})
	}
}

// dispatchEvent matches ev against every discovered binding, dedups
// against receipts, and dispatches each surviving invocation.
func (d *Daemon) dispatchEvent(ctx context.Context, ev signal.Event) {
	if d.State() != StateRunning {
		return // DRAINING: no new signals accepted, per spec §4.12
	}
	invocations := d.engine.Match(ev)
	if len(invocations) == 0 {
		return
	}
	cc := gitadapter.CallCtx{Context: ctx, Dir: d.cfg.RepoDir}
	surviving, err := d.engine.Dedup(cc, ev.Commit, invocations)
	if err != nil {
		log.Printf("dedup lookup failed for commit %s: %v", ev.Commit, err)
		return
	}
	for _, inv := range surviving {
		d.dispatchInvocation(ctx, inv)
	}
}

// dispatchInvocation runs one PENDING → RUNNING → {OK|ERROR|TIMEOUT} →
// RECEIPTED job-invocation state machine (spec §4.12), in its own
// goroutine so concurrent invocations race only through the worker
// pool's own bounding.
func (d *Daemon) dispatchInvocation(ctx context.Context, inv signal.Invocation) {
	if d.State() != StateRunning {
		return
	}
	job, ok := d.jobs[inv.JobID]
	if !ok {
		log.Printf("invocation for unknown job %s dropped", inv.JobID)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.runAndReceipt(ctx, job, inv)
	}()
}

func (d *Daemon) runAndReceipt(ctx context.Context, job registry.Job, inv signal.Invocation) {
	// attemptID distinguishes concurrent log lines for the same
	// (jobId, commit) key-lock queue; it is not persisted in the receipt
	// itself, which tracks attempt count instead (spec §3 JobInvocation
	// "attempt").
	attemptID := uuid.NewString()
	log.Printf("dispatch %s attempt=%s commit=%s", job.ID, attemptID, inv.Event.Commit)

	jobCtx := jobrunner.Invocation{
		JobID:   job.ID,
		Signal:  string(inv.Event.Kind),
		Commit:  inv.Event.Commit,
		RepoDir: d.cfg.RepoDir,
		Attempt: 1,
	}

	raw, runErr := d.pool.Execute(ctx, func(runCtx context.Context) (any, error) {
		return d.runner.Run(runCtx, job, jobCtx)
	}, workerpool.Options{Timeout: d.cfg.JobTimeout, Key: "job:" + job.ID + "@" + inv.Event.Commit})

	rec := receipt.Record{
		Role:        "receipt",
		ID:          job.ID,
		Action:      "event",
		Commit:      inv.Event.Commit,
		Timestamp:   d.git.NowISO(),
		Fingerprint: job.ID + "@" + inv.Event.Commit,
	}
	outcome := Outcome{JobID: job.ID, Commit: inv.Event.Commit, Status: "OK"}

	switch {
	case runErr != nil && gverr.As(runErr, gverr.KindJobTimeout):
		rec.Status = "ERROR"
		rec.Error = &receipt.RecordError{Kind: string(gverr.KindJobTimeout), Message: runErr.Error(), Attempt: 1}
		outcome.Status, outcome.Err = "TIMEOUT", runErr
	case runErr != nil:
		rec.Status = "ERROR"
		kind := "FileSystemError"
		if k, ok := gverr.KindOf(runErr); ok {
			kind = string(k)
		}
		rec.Error = &receipt.RecordError{Kind: kind, Message: runErr.Error(), Attempt: 1}
		outcome.Status, outcome.Err = "ERROR", runErr
	default:
		rec.Status = "OK"
		if result, ok := raw.(jobrunner.Result); ok {
			rec.Artifact = result.Artifact
		}
	}
	cc := gitadapter.CallCtx{Context: ctx, Dir: d.cfg.RepoDir}
	if _, werr := d.pool.Execute(ctx, func(context.Context) (any, error) {
		return nil, d.receipts.Write(cc, inv.Event.Commit, rec)
	}, workerpool.Options{Key: notesKey}); werr != nil {
		log.Printf("writing receipt for job %s at %s failed: %v", job.ID, inv.Event.Commit, werr)
	}

	d.emit(outcome)
}

// Shutdown transitions RUNNING → DRAINING → STOPPED: stops accepting new
// signals immediately, cancels the CronTicker and GitWatcher loops, waits
// up to cfg.DrainGrace for in-flight invocations, then shuts down the
// worker pool (spec §4.12 "Daemon shutdown cancels the CronTicker first,
// stops accepting GitWatcher events, then waits up to a grace period
// before forcing pool shutdown").
func (d *Daemon) Shutdown() error {
	prev := d.state.Swap(int32(StateDraining))
	if State(prev) == StateStopped || State(prev) == StateDraining {
		d.state.Store(prev)
		return nil
	}

	if d.cancel != nil {
		d.cancel()
	}

	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(d.cfg.DrainGrace):
		log.Printf("shutdown: drain grace period elapsed with invocations still in flight")
	}

	err := d.pool.Shutdown(d.cfg.DrainGrace)
	d.state.Store(int32(StateStopped))
	return err
}
