//go:build !integration

package resolve_test

import (
	"fmt"
	"testing"

	"github.com/seanchatmangpt/gitvan/internal/pack"
	"github.com/seanchatmangpt/gitvan/internal/resolve"
	"github.com/stretchr/testify/require"
)

type fakeLoader map[string]*pack.Manifest

func (f fakeLoader) LoadManifest(id string) (*pack.Manifest, error) {
	m, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("no such pack %q", id)
	}
	return m, nil
}

func manifest(id, version string, order int, dependsOn ...string) *pack.Manifest {
	return &pack.Manifest{
		ID:      id,
		Version: version,
		Compose: pack.Compose{Order: order, DependsOn: dependsOn},
	}
}

func TestResolveDeduplicatesAndOrders(t *testing.T) {
	loader := fakeLoader{
		"app":  manifest("app", "1.0.0", 20, "base"),
		"base": manifest("base", "1.0.0", 10),
	}
	r := resolve.New(loader)
	plan := r.Resolve([]string{"app"})

	require.Len(t, plan.Plan, 2)
	require.Equal(t, []string{"base", "app"}, plan.Order)
	require.Empty(t, plan.Conflicts)
	require.Empty(t, plan.Cycles)
}

func TestResolveDetectsCycleWithoutThrowing(t *testing.T) {
	loader := fakeLoader{
		"a": manifest("a", "1.0.0", 1, "b"),
		"b": manifest("b", "1.0.0", 1, "a"),
	}
	r := resolve.New(loader)
	plan := r.Resolve([]string{"a"})

	require.NotEmpty(t, plan.Cycles)
	require.Len(t, plan.Plan, 2)
}

func TestResolveReportsDeclaredConflict(t *testing.T) {
	a := manifest("a", "1.0.0", 1)
	a.Compose.ConflictsWith = []string{"b"}
	loader := fakeLoader{"a": a, "b": manifest("b", "1.0.0", 1)}
	r := resolve.New(loader)
	plan := r.Resolve([]string{"a", "b"})

	require.Len(t, plan.Conflicts, 1)
	require.Equal(t, "a", plan.Conflicts[0].A)
	require.Equal(t, "b", plan.Conflicts[0].B)
}

func TestResolveReportsCapabilityOverlap(t *testing.T) {
	a := manifest("a", "1.0.0", 1)
	a.Capabilities = []string{"scaffold:node"}
	b := manifest("b", "1.0.0", 1)
	b.Capabilities = []string{"scaffold:node"}
	loader := fakeLoader{"a": a, "b": b}
	r := resolve.New(loader)
	plan := r.Resolve([]string{"a", "b"})

	require.Len(t, plan.Conflicts, 1)
}

func TestResolveAllowOverlapSuppressesCapabilityConflict(t *testing.T) {
	a := manifest("a", "1.0.0", 1)
	a.Capabilities = []string{"scaffold:node"}
	b := manifest("b", "1.0.0", 1)
	b.Capabilities = []string{"scaffold:node"}
	loader := fakeLoader{"a": a, "b": b}
	r := resolve.New(loader)
	plan := r.ResolveWithOptions([]string{"a", "b"}, resolve.Options{AllowOverlap: true})

	require.Empty(t, plan.Conflicts)
}

func TestResolveVersionRangeConflict(t *testing.T) {
	a := manifest("a", "1.0.0", 1)
	a.Compose.Dependencies = map[string]string{"b": "^2.0.0"}
	b := manifest("b", "1.5.0", 1)
	loader := fakeLoader{"a": a, "b": b}
	r := resolve.New(loader)
	plan := r.Resolve([]string{"a", "b"})

	require.Len(t, plan.Conflicts, 1)
}

func TestResolvePackNotFoundIsSkippedNotFatal(t *testing.T) {
	loader := fakeLoader{}
	r := resolve.New(loader)
	plan := r.Resolve([]string{"missing"})
	require.Empty(t, plan.Plan)
}
