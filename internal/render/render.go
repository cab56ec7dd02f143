// Package render implements the Template Renderer Facade (spec §4.8, C8):
// rendering template text against a data object with a fixed filter set,
// front-matter extraction, and enforced size/time limits. The teacher has
// no templating engine of its own (gh-aw compiles markdown to YAML, not
// the reverse), so this is grounded on the wider pack's choice of
// text/template + github.com/Masterminds/sprig (present in the
// google-skia-buildbot go.mod) for the filter funcmap, combined with the
// teacher's front-matter split idiom from pkg/parser (YAML delimited by
// "---" lines).
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"text/template"
	"time"
	"unicode"

	"github.com/Masterminds/sprig"
	"github.com/goccy/go-yaml"
	"github.com/seanchatmangpt/gitvan/internal/gverr"
)

// Limits bounds a single render call (spec §4.8 "max template size, max
// output size, hard wall-clock timeout — all configurable, all
// enforced").
type Limits struct {
	MaxTemplateBytes int
	MaxOutputBytes   int
	Timeout          time.Duration
}

// DefaultLimits are conservative defaults used when a caller passes a
// zero-value Limits.
var DefaultLimits = Limits{
	MaxTemplateBytes: 1 << 20,
	MaxOutputBytes:   8 << 20,
	Timeout:          5 * time.Second,
}

func (l Limits) withDefaults() Limits {
	if l.MaxTemplateBytes == 0 {
		l.MaxTemplateBytes = DefaultLimits.MaxTemplateBytes
	}
	if l.MaxOutputBytes == 0 {
		l.MaxOutputBytes = DefaultLimits.MaxOutputBytes
	}
	if l.Timeout == 0 {
		l.Timeout = DefaultLimits.Timeout
	}
	return l
}

// reservedKeys are stripped from the render context before execution
// (spec §4.8 "Context sanitization strips reserved keys").
var reservedKeys = []string{"__system", "__proto__", "constructor"}

// Split holds the front-matter and body of a template document, split on
// a leading "---\n...\n---\n" block (grounded on the teacher's markdown
// front-matter convention).
type Split struct {
	FrontMatter map[string]any
	Body        string
}

// SplitFrontMatter extracts a leading YAML front-matter block, if present.
func SplitFrontMatter(doc string) (Split, error) {
	const delim = "---"
	trimmed := strings.TrimLeft(doc, "\n")
	if !strings.HasPrefix(trimmed, delim) {
		return Split{FrontMatter: map[string]any{}, Body: doc}, nil
	}

	rest := trimmed[len(delim):]
	idx := strings.Index(rest, "\n"+delim)
	if idx == -1 {
		return Split{FrontMatter: map[string]any{}, Body: doc}, nil
	}

	fmBlock := strings.TrimPrefix(rest[:idx], "\n")
	body := rest[idx+len(delim)+1:]
	body = strings.TrimPrefix(body, "\n")

	var fm map[string]any
	if strings.TrimSpace(fmBlock) != "" {
		if err := yaml.Unmarshal([]byte(fmBlock), &fm); err != nil {
			return Split{}, gverr.Wrap(gverr.KindTemplateRenderError, err, "parsing front matter")
		}
	}
	if fm == nil {
		fm = map[string]any{}
	}
	return Split{FrontMatter: fm, Body: body}, nil
}

// Render executes tmpl against data under limits, returning the rendered
// output. Rendering is pure with respect to the filesystem (spec §4.8).
func Render(ctx context.Context, tmpl string, data map[string]any, limits Limits) (string, error) {
	limits = limits.withDefaults()

	if len(tmpl) > limits.MaxTemplateBytes {
		return "", gverr.New(gverr.KindTemplateRenderError, "template exceeds max size of %d bytes", limits.MaxTemplateBytes)
	}

	clean := sanitizeContext(data)

	t, err := template.New("gitvan").Funcs(filterFuncMap()).Parse(tmpl)
	if err != nil {
		return "", gverr.Wrap(gverr.KindTemplateRenderError, err, "parsing template")
	}

	renderCtx, cancel := context.WithTimeout(ctx, limits.Timeout)
	defer cancel()

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		var buf bytes.Buffer
		limited := &capWriter{limit: limits.MaxOutputBytes}
		if execErr := t.Execute(limited, clean); execErr != nil {
			done <- result{err: gverr.Wrap(gverr.KindTemplateRenderError, execErr, "executing template")}
			return
		}
		if limited.overflowed {
			done <- result{err: gverr.New(gverr.KindTemplateRenderError, "rendered output exceeds max size of %d bytes", limits.MaxOutputBytes)}
			return
		}
		buf.Write(limited.buf.Bytes())
		done <- result{out: buf.String()}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-renderCtx.Done():
		return "", gverr.Wrap(gverr.KindTemplateRenderError, renderCtx.Err(), "template render exceeded %s timeout", limits.Timeout)
	}
}

// sanitizeContext returns a copy of data with reservedKeys removed at the
// top level.
func sanitizeContext(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		skip := false
		for _, r := range reservedKeys {
			if k == r {
				skip = true
				break
			}
		}
		if !skip {
			out[k] = v
		}
	}
	return out
}

type capWriter struct {
	buf        bytes.Buffer
	limit      int
	overflowed bool
}

func (w *capWriter) Write(p []byte) (int, error) {
	if w.overflowed {
		return len(p), nil
	}
	if w.buf.Len()+len(p) > w.limit {
		w.overflowed = true
		return len(p), nil
	}
	return w.buf.Write(p)
}

// filterFuncMap builds the required filter set (spec §4.8), layering
// explicit spec-named filters over sprig.FuncMap() so the engine still
// exposes sprig's much larger general-purpose set for anything a pack
// author reaches for beyond the required names.
func filterFuncMap() template.FuncMap {
	fm := sprig.FuncMap()
	required := template.FuncMap{
		"camelCase":  camelCase,
		"pascalCase": pascalCase,
		"kebabCase":  kebabCase,
		"snakeCase":  snakeCase,
		"upperCase":  strings.ToUpper,
		"lowerCase":  strings.ToLower,
		"jsEscape":   jsEscape,
		"split":      func(sep, s string) []string { return strings.Split(s, sep) },
		"last":       last,
		"date":       dateFilter,
		"sum":        sumFilter,
		"tojson":     toJSON,
		"capitalize": capitalize,
	}
	for name, fn := range required {
		fm[name] = fn
	}
	return fm
}

func words(s string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '-' || r == '_' || r == ' ':
			flush()
		case unicode.IsUpper(r):
			flush()
			cur.WriteRune(unicode.ToLower(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

func camelCase(s string) string {
	ws := words(s)
	var b strings.Builder
	for i, w := range ws {
		if i == 0 {
			b.WriteString(w)
			continue
		}
		b.WriteString(capitalize(w))
	}
	return b.String()
}

func pascalCase(s string) string {
	var b strings.Builder
	for _, w := range words(s) {
		b.WriteString(capitalize(w))
	}
	return b.String()
}

func kebabCase(s string) string { return strings.Join(words(s), "-") }
func snakeCase(s string) string { return strings.Join(words(s), "_") }

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// jsEscape escapes s for safe embedding inside a JavaScript string
// literal.
func jsEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '<':
			b.WriteString(`<`)
		case '>':
			b.WriteString(`>`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func last(items []any) any {
	if len(items) == 0 {
		return nil
	}
	return items[len(items)-1]
}

// dateFilter formats t (a time.Time, RFC3339 string, or unix seconds)
// using a Go reference-time layout.
func dateFilter(layout string, value any) (string, error) {
	switch v := value.(type) {
	case time.Time:
		return v.Format(layout), nil
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return "", gverr.Wrap(gverr.KindTemplateRenderError, err, "date filter: parsing %q", v)
		}
		return t.Format(layout), nil
	case int64:
		return time.Unix(v, 0).UTC().Format(layout), nil
	case float64:
		return time.Unix(int64(v), 0).UTC().Format(layout), nil
	default:
		return "", gverr.New(gverr.KindTemplateRenderError, "date filter: unsupported value type %T", value)
	}
}

// sumFilter sums the named numeric attribute across a slice of maps.
func sumFilter(attribute string, items []any) (float64, error) {
	var total float64
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return 0, gverr.New(gverr.KindTemplateRenderError, "sum filter: item is not an object")
		}
		v, ok := m[attribute]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			total += n
		case int:
			total += float64(n)
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return 0, gverr.Wrap(gverr.KindTemplateRenderError, err, "sum filter: attribute %q is not numeric", attribute)
			}
			total += f
		default:
			return 0, gverr.New(gverr.KindTemplateRenderError, "sum filter: attribute %q has unsupported type %T", attribute, v)
		}
	}
	return total, nil
}

func toJSON(v any) (string, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return "", gverr.Wrap(gverr.KindTemplateRenderError, err, "tojson filter")
	}
	return string(out), nil
}
