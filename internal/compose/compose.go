// Package compose implements the Pack Composer (spec §4.6, C6): the
// orchestration layer over resolve, fetch, and apply that turns a
// requested id list into materialized artifacts on a target tree, or (in
// preview/validate modes) a read-only report. Grounded on the teacher's
// own compiler-orchestration shape (pkg/workflow's compile-then-write
// pipeline), generalized from "compile one workflow" to "resolve, fetch,
// and apply N packs in dependency order".
package compose

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/seanchatmangpt/gitvan/internal/apply"
	"github.com/seanchatmangpt/gitvan/internal/fetch"
	"github.com/seanchatmangpt/gitvan/internal/gverr"
	"github.com/seanchatmangpt/gitvan/internal/pack"
	"github.com/seanchatmangpt/gitvan/internal/resolve"
)

// Options enumerates the Composer's explicit config (spec §9 "Dynamic
// config objects → explicit options").
type Options struct {
	IgnoreConflicts bool
	ContinueOnError bool
	AllowOverlap    bool
	DryRun          bool
	// Inputs maps a pack id (or "*" for the global default) to that
	// pack's input values; a pack-specific entry overrides "*" per key.
	Inputs map[string]map[string]any
}

// Status is the aggregate outcome of a compose() call.
type Status string

const (
	StatusOK      Status = "OK"
	StatusPartial Status = "PARTIAL"
	StatusError   Status = "ERROR"
)

// PerPackResult records one pack's outcome within a compose/layer run.
type PerPackResult struct {
	PackID string
	Status apply.Status
	Result apply.Result
	Error  string
}

// Report is the Composer's full-run output.
type Report struct {
	Status    Status
	Plan      resolve.Plan
	PerPack   []PerPackResult
	Conflicts []resolve.ConflictReport
}

// manifestLoader adapts fetch.Fetcher + pack.Load into the resolve.Loader
// interface, caching resolved pack paths for reuse by Apply.
type manifestLoader struct {
	fetcher   *fetch.Fetcher
	ctx       context.Context
	packPaths map[string]string
}

func newManifestLoader(ctx context.Context, fetcher *fetch.Fetcher) *manifestLoader {
	return &manifestLoader{fetcher: fetcher, ctx: ctx, packPaths: map[string]string{}}
}

func (l *manifestLoader) LoadManifest(id string) (*pack.Manifest, error) {
	src, err := pack.ParseID(id)
	if err != nil {
		return nil, err
	}
	packPath, err := l.fetcher.Resolve(l.ctx, src)
	if err != nil {
		return nil, err
	}
	l.packPaths[id] = packPath

	raw, err := os.ReadFile(filepath.Join(packPath, "pack.json"))
	if err != nil {
		return nil, gverr.Wrap(gverr.KindManifestInvalid, err, "reading pack.json for %s", id)
	}
	return pack.Load(raw)
}

// Composer ties the resolver, fetcher, and applier together.
type Composer struct {
	fetcher *fetch.Fetcher
	applier *apply.Applier
}

// New returns a Composer over fetcher (source resolution) and applier
// (materialization).
func New(fetcher *fetch.Fetcher, applier *apply.Applier) *Composer {
	return &Composer{fetcher: fetcher, applier: applier}
}

// Compose resolves ids, checks for conflicts, and applies each pack in
// plan order into targetDir, merging inputs[packId] over inputs["*"].
func (c *Composer) Compose(ctx context.Context, ids []string, targetDir string, opts Options, available apply.Available) (Report, error) {
	loader := newManifestLoader(ctx, c.fetcher)
	resolver := resolve.New(loader)
	plan := resolver.ResolveWithOptions(ids, resolve.Options{AllowOverlap: opts.AllowOverlap})

	if len(plan.Conflicts) > 0 && !opts.IgnoreConflicts {
		return Report{Status: StatusError, Plan: plan, Conflicts: plan.Conflicts}, gverr.New(gverr.KindConflict, "compose aborted: %d unresolved conflict(s)", len(plan.Conflicts))
	}

	missing := missingRequestedIDs(ids, plan)

	if opts.DryRun {
		status := StatusOK
		if len(missing) > 0 {
			status = StatusError
		}
		return Report{Status: status, Plan: plan, Conflicts: plan.Conflicts}, notFoundErr(missing)
	}

	report := Report{Plan: plan, Conflicts: plan.Conflicts}
	anyError := false
	anyFailure := false

	for _, id := range missing {
		anyError = true
		report.PerPack = append(report.PerPack, PerPackResult{
			PackID: id,
			Status: apply.StatusError,
			Error:  gverr.New(gverr.KindPackNotFound, "pack %q could not be resolved", id).Error(),
		})
	}

	for _, ref := range plan.Plan {
		m, err := loader.cachedManifest(ref.ID)
		if err != nil {
			anyError = true
			report.PerPack = append(report.PerPack, PerPackResult{PackID: ref.ID, Status: apply.StatusError, Error: err.Error()})
			if !opts.ContinueOnError {
				break
			}
			continue
		}

		inputs := mergeInputs(opts.Inputs, ref.ID)
		packPath := loader.packPaths[ref.ID]

		result, err := c.applier.Apply(ctx, packPath, targetDir, m, inputs, available)
		pr := PerPackResult{PackID: ref.ID, Status: result.Status, Result: result}
		if err != nil {
			pr.Error = err.Error()
			anyError = true
		}
		if result.Status == apply.StatusPartial || result.Status == apply.StatusError {
			anyFailure = true
		}
		report.PerPack = append(report.PerPack, pr)

		if err != nil && !opts.ContinueOnError {
			break
		}
	}

	switch {
	case anyError && !opts.ContinueOnError:
		report.Status = StatusError
	case anyError || anyFailure:
		report.Status = StatusPartial
	default:
		report.Status = StatusOK
	}
	if len(missing) > 0 {
		return report, notFoundErr(missing)
	}
	return report, nil
}

// missingRequestedIDs returns the subset of the originally requested ids
// that did not make it into plan.Plan. The resolver's walk treats an
// unresolvable id as a silent skip (see resolve.go) so it never appears as
// a conflict or error on the Plan itself; Compose/Preview/Validate surface
// it here as spec §8's "unknown id ⇒ PackNotFound" boundary behavior.
func missingRequestedIDs(ids []string, plan resolve.Plan) []string {
	present := map[string]bool{}
	for _, ref := range plan.Plan {
		present[ref.ID] = true
	}
	var missing []string
	for _, id := range ids {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

func notFoundErr(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return gverr.New(gverr.KindPackNotFound, "pack(s) not found: %v", missing)
}

func (l *manifestLoader) cachedManifest(id string) (*pack.Manifest, error) {
	packPath, ok := l.packPaths[id]
	if !ok {
		return nil, gverr.New(gverr.KindPackNotFound, "pack %q was not resolved", id)
	}
	raw, err := os.ReadFile(filepath.Join(packPath, "pack.json"))
	if err != nil {
		return nil, err
	}
	return pack.Load(raw)
}

func mergeInputs(byPack map[string]map[string]any, packID string) map[string]any {
	merged := map[string]any{}
	for k, v := range byPack["*"] {
		merged[k] = v
	}
	for k, v := range byPack[packID] {
		merged[k] = v
	}
	return merged
}

// LayerItem is one pack in an explicit layering order (spec §4.6 "layer").
type LayerItem struct {
	PackID string
	Order  int // default 999 when unset
}

// Layer applies packs in ascending Order (ties broken by original slice
// position), later packs overwriting earlier ones' outputs — used for
// overlay scenarios rather than dependency-driven composition.
func (c *Composer) Layer(ctx context.Context, items []LayerItem, targetDir string, opts Options, available apply.Available) (Report, error) {
	ordered := make([]LayerItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		oi, oj := ordered[i].Order, ordered[j].Order
		if oi == 0 {
			oi = 999
		}
		if oj == 0 {
			oj = 999
		}
		return oi < oj
	})

	loader := newManifestLoader(ctx, c.fetcher)
	var report Report
	anyError := false
	anyFailure := false

	for _, item := range ordered {
		m, err := loader.LoadManifest(item.PackID)
		if err != nil {
			anyError = true
			report.PerPack = append(report.PerPack, PerPackResult{PackID: item.PackID, Status: apply.StatusError, Error: err.Error()})
			if !opts.ContinueOnError {
				break
			}
			continue
		}
		inputs := mergeInputs(opts.Inputs, item.PackID)
		packPath := loader.packPaths[item.PackID]
		result, err := c.applier.Apply(ctx, packPath, targetDir, m, inputs, available)
		pr := PerPackResult{PackID: item.PackID, Status: result.Status, Result: result}
		if err != nil {
			pr.Error = err.Error()
			anyError = true
		}
		if result.Status == apply.StatusPartial || result.Status == apply.StatusError {
			anyFailure = true
		}
		report.PerPack = append(report.PerPack, pr)
		if err != nil && !opts.ContinueOnError {
			break
		}
	}

	switch {
	case anyError && !opts.ContinueOnError:
		report.Status = StatusError
	case anyError || anyFailure:
		report.Status = StatusPartial
	default:
		report.Status = StatusOK
	}
	return report, nil
}

// Preview resolves ids and returns the plan/conflicts without touching
// targetDir.
func (c *Composer) Preview(ctx context.Context, ids []string, opts Options) (resolve.Plan, error) {
	loader := newManifestLoader(ctx, c.fetcher)
	resolver := resolve.New(loader)
	plan := resolver.ResolveWithOptions(ids, resolve.Options{AllowOverlap: opts.AllowOverlap})
	return plan, notFoundErr(missingRequestedIDs(ids, plan))
}

// Validate resolves ids and reports pairwise compatibility without
// touching targetDir.
func (c *Composer) Validate(ctx context.Context, ids []string, opts Options) (valid bool, plan resolve.Plan, err error) {
	plan, err = c.Preview(ctx, ids, opts)
	if err != nil {
		return false, plan, err
	}
	return len(plan.Conflicts) == 0, plan, nil
}
