// Package pack implements the Pack Manifest & Fingerprint component
// (spec §4.2, C2): loading and validating pack.json, and computing the
// deterministic content fingerprint used for idempotent application.
//
// Schema validation is grounded on the teacher's pkg/parser/schema_compiler.go
// pattern: an embedded JSON schema compiled once via sync.Once with
// santhosh-tekuri/jsonschema/v6, then reused across calls.
package pack

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/seanchatmangpt/gitvan/internal/gverr"
)

//go:embed schemas/pack_schema.json
var packSchemaJSON string

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compiledPackSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		var doc any
		if err := json.Unmarshal([]byte(packSchemaJSON), &doc); err != nil {
			schemaErr = fmt.Errorf("parse embedded pack schema: %w", err)
			return
		}
		const url = "https://gitvan.dev/schemas/pack.json"
		if err := compiler.AddResource(url, doc); err != nil {
			schemaErr = fmt.Errorf("add pack schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(url)
	})
	return compiledSchema, schemaErr
}

var idPattern = regexp.MustCompile(`^[a-z0-9._/-]+$`)
var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// IncompatibleWith is one entry of compose.incompatibleWith (spec §3).
type IncompatibleWith struct {
	Pack         string `json:"pack"`
	VersionRange string `json:"versionRange"`
}

// Compose holds the pack's composition metadata (spec §3).
type Compose struct {
	Order             int                `json:"order"`
	DependsOn         []string           `json:"dependsOn,omitempty"`
	ConflictsWith     []string           `json:"conflictsWith,omitempty"`
	IncompatibleWith  []IncompatibleWith `json:"incompatibleWith,omitempty"`
	Dependencies      map[string]string  `json:"dependencies,omitempty"`
}

// Provides enumerates artifacts the pack materializes (spec §3, §4.7).
type Provides struct {
	Templates []TemplateSpec      `json:"templates,omitempty"`
	Files     []FileSpec          `json:"files,omitempty"`
	Jobs      []JobSpec           `json:"jobs,omitempty"`
	Manifests []ManifestMergeSpec `json:"manifests,omitempty"`
	Events    []string            `json:"events,omitempty"`
	Scaffolds []string            `json:"scaffolds,omitempty"`
	Commands  []string            `json:"commands,omitempty"`
}

// TemplateSpec is one provides.templates entry.
type TemplateSpec struct {
	Src        string `json:"src"`
	Target     string `json:"target"`
	Mode       string `json:"mode,omitempty"` // "" (overwrite) or "skip"
	Executable bool   `json:"executable,omitempty"`
}

// FileSpec is one provides.files entry.
type FileSpec struct {
	Src    string `json:"src"`
	Target string `json:"target"`
	Mode   string `json:"mode,omitempty"`
}

// JobSpec is one provides.jobs entry.
type JobSpec struct {
	Src string `json:"src"`
	ID  string `json:"id"`
	Ext string `json:"ext"`
}

// ManifestMergeSpec is one provides.manifests entry (spec §4.7 "Manifest
// merge (e.g., package.json): ... add-only for dependencies,
// devDependencies, scripts entries that are absent"). Target is the
// pack-relative path to the JSON document to merge into (created empty
// if absent); Additions maps a merge section name to the key/value pairs
// to add when missing.
type ManifestMergeSpec struct {
	Target    string                       `json:"target"`
	Additions map[string]map[string]string `json:"additions"`
}

// InputSpec is a schema-typed prompt (spec §3, §4.7 precondition b).
type InputSpec struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // "string", "boolean", "select", "multiselect"
	Description string   `json:"description,omitempty"`
	Default     any      `json:"default,omitempty"`
	Pattern     string   `json:"pattern,omitempty"`
	Options     []string `json:"options,omitempty"`
	Required    bool     `json:"required,omitempty"`
}

// Manifest is a loaded, normalized pack.json (spec §3 "Pack").
type Manifest struct {
	ID           string            `json:"id"`
	Version      string            `json:"version"`
	Name         string            `json:"name,omitempty"`
	Description  string            `json:"description,omitempty"`
	Tags         []string          `json:"tags"`
	Capabilities []string          `json:"capabilities"`
	Author       string            `json:"author,omitempty"`
	License      string            `json:"license,omitempty"`
	Requires     map[string]string `json:"requires,omitempty"`
	Compose      Compose           `json:"compose"`
	Provides     Provides          `json:"provides,omitempty"`
	Inputs       []InputSpec       `json:"inputs,omitempty"`

	// Forge is populated post-fetch by the fetcher (spec §4.3); never
	// present in the authored manifest.
	Forge map[string]any `json:"forge,omitempty"`
}

// Load parses and validates raw pack.json bytes, returning a normalized
// Manifest with defaults applied (tags=[], capabilities=[], order=999).
func Load(raw []byte) (*Manifest, error) {
	schema, err := compiledPackSchema()
	if err != nil {
		return nil, gverr.Wrap(gverr.KindManifestInvalid, err, "pack schema unavailable")
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, gverr.Wrap(gverr.KindManifestInvalid, err, "pack.json is not valid JSON")
	}
	if err := schema.Validate(doc); err != nil {
		return nil, gverr.Wrap(gverr.KindManifestInvalid, err, "pack.json failed schema validation")
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, gverr.Wrap(gverr.KindManifestInvalid, err, "pack.json could not be decoded")
	}

	if !idPattern.MatchString(m.ID) {
		return nil, gverr.New(gverr.KindManifestInvalid, "id %q does not match %s", m.ID, idPattern.String())
	}
	if !versionPattern.MatchString(m.Version) {
		return nil, gverr.New(gverr.KindManifestInvalid, "version %q is not strict semver X.Y.Z", m.Version)
	}

	normalize(&m)
	return &m, nil
}

// normalize fills in defaults for unset fields (spec §4.2).
func normalize(m *Manifest) {
	if m.Tags == nil {
		m.Tags = []string{}
	}
	if m.Capabilities == nil {
		m.Capabilities = []string{}
	}
	if m.Compose.Order == 0 {
		m.Compose.Order = 999
	}
	sort.Strings(m.Tags)
	sort.Strings(m.Capabilities)
}

// Marshal re-serializes the Manifest to stable-ordered JSON (round-trip
// law: Load ∘ Marshal is the identity, spec §8).
func (m *Manifest) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
