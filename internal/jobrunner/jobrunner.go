// Package jobrunner executes one discovered job's run(ctx) entry point
// (spec §4.9 "a job is a module exporting {meta, cron?, hooks?[],
// run(ctx)}"). The templating/job-module engine itself is a black box
// per spec §1 Non-goals ("The templating engine itself (treated as a
// black-box renderer...)"); jobrunner treats job files the same way gh-aw
// treats a compiled workflow step: something invoked as a subprocess,
// never interpreted in-process. Grounded directly on
// internal/gitadapter's exec.CommandContext + captured-buffer + exit-code
// idiom (gitadapter.go's run method), generalized from "run git" to "run
// whatever executable or interpretable file a job id resolves to".
package jobrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/seanchatmangpt/gitvan/internal/gitvanlog"
	"github.com/seanchatmangpt/gitvan/internal/gverr"
	"github.com/seanchatmangpt/gitvan/internal/registry"
	"github.com/seanchatmangpt/gitvan/pkg/stringutil"
)

var log = gitvanlog.New("jobrunner")

// maxOutput caps captured stdout, mirroring gitadapter's 12 MiB subprocess
// stdout cap (spec §4.1, reused here since jobs are run the same way).
const maxOutput = 12 << 20

// interpreters maps a job file extension to the interpreter invoked with
// the job's path as its sole positional argument. Extensions absent from
// this table are assumed directly executable (the discovered file's
// executable bit is honored as-is, matching the Applier's own handling
// of the executable bit on installed job files, spec §4.7).
var interpreters = map[string]string{
	"sh":   "sh",
	"bash": "bash",
	"js":   "node",
	"mjs":  "node",
	"cjs":  "node",
	"py":   "python3",
	"rb":   "ruby",
}

// Invocation carries the context passed to a job's run(ctx), serialized
// as JSON on the subprocess's stdin (spec §3 "JobInvocation").
type Invocation struct {
	JobID   string         `json:"jobId"`
	Signal  string         `json:"signal"`
	Commit  string         `json:"commit"`
	Payload map[string]any `json:"payload,omitempty"`
	Attempt int            `json:"attempt"`
	RepoDir string         `json:"repoDir"`
}

// Result is what a job run produced: exit status plus whatever it wrote
// to stdout, treated as opaque unless it parses as JSON (in which case
// Artifact comes from the top-level "artifact" field).
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Artifact string
}

// Runner executes one Job given its Invocation context. Implementations
// other than Exec (e.g. an in-process fake for tests) satisfy the same
// interface so the daemon never depends on subprocess mechanics directly.
type Runner interface {
	Run(ctx context.Context, job registry.Job, inv Invocation) (Result, error)
}

// Exec is the subprocess-backed Runner.
type Exec struct{}

// New returns the default subprocess-backed Runner.
func New() *Exec { return &Exec{} }

// Run invokes job.Path (via an interpreter keyed by job.Ext, or directly
// if none is registered and the file is executable), feeding inv as JSON
// on stdin. A non-zero exit is reported as an error but Result is still
// returned with the captured output, so the caller can build an ERROR
// receipt carrying {error.message, error.kind, attempt} per spec §4.12.
func (e *Exec) Run(ctx context.Context, job registry.Job, inv Invocation) (Result, error) {
	payload, err := json.Marshal(inv)
	if err != nil {
		return Result{}, gverr.Wrap(gverr.KindFileSystemError, err, "marshaling invocation for job %s", job.ID)
	}

	name, args := commandFor(job)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = inv.RepoDir
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, limit: maxOutput}
	cmd.Stderr = &stderr

	log.Printf("exec job %s: %s %s (dir=%s)", job.ID, name, strings.Join(args, " "), inv.RepoDir)
	runErr := cmd.Run()

	cleanStdout := stringutil.StripANSI(stdout.String())
	result := Result{Stdout: cleanStdout, Stderr: strings.TrimSpace(stderr.String())}
	if result.ExitCode, result.Artifact = exitCodeOf(runErr), artifactOf(cleanStdout); runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return result, gverr.New(gverr.KindJobTimeout, "job %s exceeded its deadline", job.ID)
		}
		return result, gverr.Wrap(gverr.KindFileSystemError, runErr, "job %s exited with an error", job.ID)
	}
	return result, nil
}

func commandFor(job registry.Job) (string, []string) {
	if interp, ok := interpreters[job.Ext]; ok {
		return interp, []string{job.Path}
	}
	return job.Path, nil
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if eerr, ok := err.(*exec.ExitError); ok {
		exitErr = eerr
		return exitErr.ExitCode()
	}
	return -1
}

// artifactOf extracts a top-level "artifact" string field from stdout if
// it parses as a JSON object; most jobs that produce a file just write a
// relative path there so the receipt can record it (spec §3 Receipt
// "artifact?").
func artifactOf(stdout string) string {
	stdout = strings.TrimSpace(stdout)
	if stdout == "" || stdout[0] != '{' {
		return ""
	}
	var v struct {
		Artifact string `json:"artifact"`
	}
	if err := json.Unmarshal([]byte(stdout), &v); err != nil {
		return ""
	}
	return filepath.ToSlash(v.Artifact)
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

// DefaultTimeout is used by the daemon when a job declares none of its
// own (spec §5 "every job runs under a deadline").
const DefaultTimeout = 5 * time.Minute
