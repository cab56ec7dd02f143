//go:build !integration

package render_test

import (
	"context"
	"testing"
	"time"

	"github.com/seanchatmangpt/gitvan/internal/render"
	"github.com/stretchr/testify/require"
)

func TestRenderBasicSubstitution(t *testing.T) {
	out, err := render.Render(context.Background(), "Hello {{ .name }}", map[string]any{"name": "World"}, render.Limits{})
	require.NoError(t, err)
	require.Equal(t, "Hello World", out)
}

func TestRenderFilters(t *testing.T) {
	out, err := render.Render(context.Background(), "{{ kebabCase .name }}", map[string]any{"name": "MyPackageName"}, render.Limits{})
	require.NoError(t, err)
	require.Equal(t, "my-package-name", out)
}

func TestRenderSumFilter(t *testing.T) {
	data := map[string]any{
		"items": []any{
			map[string]any{"price": 10.0},
			map[string]any{"price": 5.0},
		},
	}
	out, err := render.Render(context.Background(), "{{ sum \"price\" .items }}", data, render.Limits{})
	require.NoError(t, err)
	require.Equal(t, "15", out)
}

func TestRenderStripsReservedKeys(t *testing.T) {
	out, err := render.Render(context.Background(), "{{ .__system }}", map[string]any{"__system": "leaked"}, render.Limits{})
	require.NoError(t, err)
	require.Equal(t, "<no value>", out)
}

func TestRenderEnforcesOutputLimit(t *testing.T) {
	_, err := render.Render(context.Background(), "{{ .big }}", map[string]any{"big": "aaaaaaaaaa"}, render.Limits{MaxOutputBytes: 5})
	require.Error(t, err)
}

func TestRenderTimeout(t *testing.T) {
	_, err := render.Render(context.Background(), "{{ .x }}", map[string]any{"x": "y"}, render.Limits{Timeout: time.Nanosecond})
	require.Error(t, err)
}

func TestSplitFrontMatter(t *testing.T) {
	doc := "---\ntitle: hi\n---\nbody text"
	s, err := render.SplitFrontMatter(doc)
	require.NoError(t, err)
	require.Equal(t, "hi", s.FrontMatter["title"])
	require.Equal(t, "body text", s.Body)
}

func TestSplitFrontMatterAbsent(t *testing.T) {
	s, err := render.SplitFrontMatter("just a body")
	require.NoError(t, err)
	require.Empty(t, s.FrontMatter)
	require.Equal(t, "just a body", s.Body)
}
