// Package workerpool implements the bounded Worker Pool (spec §4.10, C10):
// a fixed pool of N concurrent workers with a bounded pending queue,
// per-key single-flight coalescing, per-execution timeouts, and graceful
// shutdown. Concurrency bounding and panic-safe goroutine spawning are
// grounded on the teacher's use of github.com/sourcegraph/conc/pool
// (pkg/cli/logs_orchestrator.go's bounded download pool); the per-key
// coalescing reuses the same wait-group idiom as internal/packcache's
// singleflight.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/seanchatmangpt/gitvan/internal/gverr"
)

// Options configures one Execute call.
type Options struct {
	// Timeout bounds the execution; zero means no timeout beyond ctx's own
	// deadline, if any.
	Timeout time.Duration
	// Key, when non-empty, serializes concurrent submissions: at most one
	// execution per key runs at a time, and additional submissions with
	// the same key wait for the first to finish and observe its result
	// rather than re-running fn.
	Key string
}

// Pool is a fixed-size, panic-safe worker pool.
type Pool struct {
	inner      *pool.Pool
	pendingSem chan struct{}

	keyMu       sync.Mutex
	keyInflight map[string]*keyCall

	closed atomic.Bool
}

type keyCall struct {
	wg     sync.WaitGroup
	result any
	err    error
}

// New returns a Pool bounded to maxWorkers concurrent executions and
// maxPending queued-or-running submissions.
func New(maxWorkers, maxPending int) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if maxPending < maxWorkers {
		maxPending = maxWorkers
	}
	return &Pool{
		inner:       pool.New().WithMaxGoroutines(maxWorkers),
		pendingSem:  make(chan struct{}, maxPending),
		keyInflight: map[string]*keyCall{},
	}
}

// Execute runs fn under the pool's concurrency bound, honoring opts. It
// blocks until fn completes, times out, or the pool rejects the
// submission.
func (p *Pool) Execute(ctx context.Context, fn func(ctx context.Context) (any, error), opts Options) (any, error) {
	if p.closed.Load() {
		return nil, gverr.New(gverr.KindPoolClosed, "worker pool is shut down")
	}
	if opts.Key != "" {
		return p.executeKeyed(ctx, opts.Key, fn, opts.Timeout)
	}
	return p.executeOnce(ctx, fn, opts.Timeout)
}

func (p *Pool) executeKeyed(ctx context.Context, key string, fn func(context.Context) (any, error), timeout time.Duration) (any, error) {
	p.keyMu.Lock()
	if call, inflight := p.keyInflight[key]; inflight {
		p.keyMu.Unlock()
		call.wg.Wait()
		return call.result, call.err
	}
	call := &keyCall{}
	call.wg.Add(1)
	p.keyInflight[key] = call
	p.keyMu.Unlock()

	result, err := p.executeOnce(ctx, fn, timeout)
	call.result, call.err = result, err
	call.wg.Done()

	p.keyMu.Lock()
	delete(p.keyInflight, key)
	p.keyMu.Unlock()

	return result, err
}

func (p *Pool) executeOnce(ctx context.Context, fn func(context.Context) (any, error), timeout time.Duration) (any, error) {
	if p.closed.Load() {
		return nil, gverr.New(gverr.KindPoolClosed, "worker pool is shut down")
	}

	select {
	case p.pendingSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.pendingSem }()

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		val any
		err error
	}
	done := make(chan outcome, 1)

	p.inner.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{nil, fmt.Errorf("panic in worker pool task: %v", r)}
			}
		}()
		val, err := fn(runCtx)
		done <- outcome{val, err}
	})

	select {
	case o := <-done:
		return o.val, o.err
	case <-runCtx.Done():
		return nil, gverr.New(gverr.KindJobTimeout, "execution exceeded its deadline")
	}
}

// Shutdown marks the pool stopping (new submissions are rejected with
// PoolClosed) and waits for in-flight tasks to finish, up to grace. If
// grace elapses first, Shutdown returns without waiting further; already
// running goroutines are not forcibly killed (cooperative cancellation
// only, per spec §5).
func (p *Pool) Shutdown(grace time.Duration) error {
	p.closed.Store(true)

	doneCh := make(chan struct{})
	go func() {
		p.inner.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		return nil
	case <-time.After(grace):
		return gverr.New(gverr.KindPoolClosed, "worker pool shutdown grace period exceeded with tasks still in flight")
	}
}
