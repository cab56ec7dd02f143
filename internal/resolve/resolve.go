// Package resolve implements the Dependency Resolver (spec §4.5, C5):
// a depth-first walk over requested pack ids that accumulates a
// deduplicated application plan, sorted stably by order then id, with the
// conflicts and cycles found reported alongside it. Grounded on the
// teacher's pkg/parser/import_processor.go, which performs a very similar
// walk-and-cache shape for markdown includes (visited-set cycle avoidance,
// deterministic ordering via sorting before Kahn-queue processing) —
// generalized here from "include graph over markdown files" to "pack
// dependency graph with conflicts and semver-range version constraints".
package resolve

import (
	"sort"

	"github.com/Masterminds/semver"
	"github.com/seanchatmangpt/gitvan/internal/gverr"
	"github.com/seanchatmangpt/gitvan/internal/pack"
)

// PackRef is one resolved entry in a Plan.
type PackRef struct {
	ID      string
	Version string
	Order   int
}

// ConflictReport describes an incompatible pair found during resolution.
type ConflictReport struct {
	A, B   string
	Reason string
}

// CycleReport records a dependency cycle detected (and cut) during the
// DFS walk; the walk continues past it rather than failing outright.
type CycleReport struct {
	Path []string
}

// Plan is the resolver's output (spec §4.5): a deduplicated, ordered set
// of packs plus whatever conflicts/cycles were observed along the way.
type Plan struct {
	Plan      []PackRef
	Conflicts []ConflictReport
	Cycles    []CycleReport
	Order     []string
}

// Loader fetches a manifest for a given pack id; the resolver is agnostic
// to where manifests come from (local disk, fetch.Fetcher + pack.Load, a
// test fixture map).
type Loader interface {
	LoadManifest(id string) (*pack.Manifest, error)
}

// color marks a node's DFS visitation state for cycle detection via stack
// coloring (spec §4.5 "On revisit while in the current DFS stack, record a
// cycle and cut the edge").
type color int

const (
	white color = iota // unvisited
	gray               // on the current DFS stack
	black              // fully processed
)

// Resolver performs dependency resolution against a Loader, memoizing
// loaded manifests in a per-resolver cache (spec: "memoized in a per-
// resolver cache").
type Resolver struct {
	loader Loader

	manifests map[string]*pack.Manifest
	colors    map[string]color
	onStack   map[string]bool // current DFS path, for cycle path reconstruction
	stack     []string
}

// New returns a Resolver bound to loader.
func New(loader Loader) *Resolver {
	return &Resolver{
		loader:    loader,
		manifests: map[string]*pack.Manifest{},
		colors:    map[string]color{},
		onStack:   map[string]bool{},
	}
}

// Resolve walks from each requested id and returns the accumulated Plan.
func (r *Resolver) Resolve(ids []string) Plan {
	return r.ResolveWithOptions(ids, Options{})
}

// ResolveWithOptions is Resolve with explicit conflict-detection Options
// (the composer passes its allowOverlap setting through here and applies
// ignoreConflicts itself).
func (r *Resolver) ResolveWithOptions(ids []string, opts Options) Plan {
	var cycles []CycleReport
	seen := map[string]*pack.Manifest{} // first-encounter manifest per id

	for _, id := range ids {
		r.walk(id, &cycles, seen)
	}

	refs := make([]PackRef, 0, len(seen))
	for id, m := range seen {
		refs = append(refs, PackRef{ID: id, Version: m.Version, Order: m.Compose.Order})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Order != refs[j].Order {
			return refs[i].Order < refs[j].Order
		}
		return refs[i].ID < refs[j].ID
	})

	order := make([]string, len(refs))
	for i, ref := range refs {
		order[i] = ref.ID
	}

	conflicts := DetectConflicts(refs, seen, opts)

	return Plan{Plan: refs, Conflicts: conflicts, Cycles: cycles, Order: order}
}

// walk performs the DFS accumulation for one id, recording a CycleReport
// (and cutting the edge, not erroring) when id is already on the current
// stack.
func (r *Resolver) walk(id string, cycles *[]CycleReport, seen map[string]*pack.Manifest) {
	if r.colors[id] == gray {
		path := append(append([]string(nil), r.stack...), id)
		*cycles = append(*cycles, CycleReport{Path: path})
		return
	}
	if r.colors[id] == black {
		return
	}

	r.colors[id] = gray
	r.onStack[id] = true
	r.stack = append(r.stack, id)

	m, err := r.loadManifest(id)
	if err != nil {
		r.colors[id] = black
		r.onStack[id] = false
		r.stack = r.stack[:len(r.stack)-1]
		return
	}
	if _, already := seen[id]; !already {
		seen[id] = m
	}

	for _, dep := range m.Compose.DependsOn {
		r.walk(dep, cycles, seen)
	}

	r.colors[id] = black
	r.onStack[id] = false
	r.stack = r.stack[:len(r.stack)-1]
}

func (r *Resolver) loadManifest(id string) (*pack.Manifest, error) {
	if m, ok := r.manifests[id]; ok {
		return m, nil
	}
	m, err := r.loader.LoadManifest(id)
	if err != nil {
		return nil, gverr.Wrap(gverr.KindDependencyFailed, err, "loading manifest for %q", id)
	}
	r.manifests[id] = m
	return m, nil
}

// Options configures conflict detection (spec §4.6's compose options feed
// through here).
type Options struct {
	AllowOverlap bool
}

// DetectConflicts computes compatible(a,b) for every pair in refs,
// independent of the DFS walk (spec §4.5). Exported so the composer can
// re-run conflict detection against a caller-supplied plan (e.g. after
// layering) without repeating the DFS walk.
func DetectConflicts(refs []PackRef, manifests map[string]*pack.Manifest, opts Options) []ConflictReport {
	var out []ConflictReport
	for i := 0; i < len(refs); i++ {
		for j := i + 1; j < len(refs); j++ {
			a, b := refs[i], refs[j]
			ma, mb := manifests[a.ID], manifests[b.ID]
			if reason, ok := incompatible(a.ID, ma, b.ID, mb, opts); ok {
				out = append(out, ConflictReport{A: a.ID, B: b.ID, Reason: reason})
			}
		}
	}
	return out
}

func incompatible(aID string, a *pack.Manifest, bID string, b *pack.Manifest, opts Options) (string, bool) {
	if contains(a.Compose.ConflictsWith, bID) || contains(b.Compose.ConflictsWith, aID) {
		return "declared conflictsWith", true
	}

	if !opts.AllowOverlap {
		if overlap := overlapping(a.Capabilities, b.Capabilities); overlap != "" {
			return "capability overlap: " + overlap, true
		}
	}

	for _, inc := range a.Compose.IncompatibleWith {
		if inc.Pack == bID {
			if satisfies(b.Version, inc.VersionRange) {
				return "incompatibleWith range " + inc.VersionRange + " matched " + bID + "@" + b.Version, true
			}
		}
	}
	for _, inc := range b.Compose.IncompatibleWith {
		if inc.Pack == aID {
			if satisfies(a.Version, inc.VersionRange) {
				return "incompatibleWith range " + inc.VersionRange + " matched " + aID + "@" + a.Version, true
			}
		}
	}

	for depID, rng := range a.Compose.Dependencies {
		if depID == bID && !satisfies(b.Version, rng) {
			return "dependency range " + rng + " unsatisfied by " + bID + "@" + b.Version, true
		}
	}
	for depID, rng := range b.Compose.Dependencies {
		if depID == aID && !satisfies(a.Version, rng) {
			return "dependency range " + rng + " unsatisfied by " + aID + "@" + a.Version, true
		}
	}

	return "", false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func overlapping(a, b []string) string {
	set := map[string]bool{}
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if set[v] {
			return v
		}
	}
	return ""
}

// satisfies reports whether version satisfies a proper semver range
// expression (^, ~, comparison operators, comma-separated AND unions), per
// spec §4.5 "Version checks use proper semver range semantics". An
// unparseable version or range is treated as non-satisfying rather than
// panicking, since this is a plan-time check that must degrade to a
// reported conflict, not a crash.
func satisfies(version, rangeExpr string) bool {
	if rangeExpr == "" {
		return true
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	c, err := semver.NewConstraint(rangeExpr)
	if err != nil {
		return false
	}
	return c.Check(v)
}
