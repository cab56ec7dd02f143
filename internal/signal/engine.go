// Engine ties discovered event bindings to a stream of Events, producing
// deduplicated job invocations (spec §4.11's matching + dedup paragraph).
// Deduplication reuses receipt.Store.Has keyed by (jobId, commit), exactly
// as the Receipt Store already exposes for fingerprint-based apply
// idempotency.
package signal

import (
	"fmt"

	"github.com/seanchatmangpt/gitvan/internal/gitadapter"
	"github.com/seanchatmangpt/gitvan/internal/receipt"
	"github.com/seanchatmangpt/gitvan/internal/registry"
)

// Invocation is one deduplicated job trigger ready for the worker pool.
type Invocation struct {
	JobID   string
	Event   Event
	Binding registry.EventBinding
}

// Engine matches Events against discovered bindings and suppresses
// duplicates for the same (jobId, commit) pair.
type Engine struct {
	receipts *receipt.Store
	bindings []registry.EventBinding
}

// NewEngine returns an Engine over the given bindings, using receipts for
// (jobId, commit) dedup.
func NewEngine(receipts *receipt.Store, bindings []registry.EventBinding) *Engine {
	return &Engine{receipts: receipts, bindings: bindings}
}

// Match evaluates ev against every binding and returns one Invocation per
// matching binding, not yet deduplicated.
func (e *Engine) Match(ev Event) []Invocation {
	var out []Invocation
	for _, b := range e.bindings {
		pred := FromPredicateSpec(b.Kind, b.Pattern)
		if pred.Match(ev) {
			out = append(out, Invocation{JobID: b.JobID, Event: ev, Binding: b})
		}
	}
	return out
}

// Dedup filters invocations down to those not already receipted for
// (jobId, commit) under cc/commit, per spec §4.12's "sole authority for
// already fired".
func (e *Engine) Dedup(cc gitadapter.CallCtx, commit string, invocations []Invocation) ([]Invocation, error) {
	var out []Invocation
	for _, inv := range invocations {
		key := idempotencyKey(inv.JobID, commit)
		already, err := e.receipts.Has(cc, commit, key)
		if err != nil {
			return nil, err
		}
		if !already {
			out = append(out, inv)
		}
	}
	return out, nil
}

func idempotencyKey(jobID, commit string) string {
	return fmt.Sprintf("%s@%s", jobID, commit)
}
