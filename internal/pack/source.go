package pack

import (
	"regexp"
	"strings"

	"github.com/seanchatmangpt/gitvan/internal/gverr"
)

// SourceKind tags a PackSource variant (spec §3 "PackSource").
type SourceKind int

const (
	SourceBuiltin SourceKind = iota
	SourceLocal
	SourceRegistry
	SourceForge
)

// Source is the tagged PackSource variant: exactly one of the Kind-specific
// fields is meaningful, selected by Kind. Grounded on the teacher's
// workflowspec parsing (pkg/parser/remote_fetch.go's isWorkflowSpec /
// downloadIncludeFromWorkflowSpec), generalized to the four id forms in
// spec §6.
type Source struct {
	Kind SourceKind

	// SourceBuiltin
	BuiltinName string
	// SourceLocal
	LocalPath string
	// SourceRegistry
	RegistryID string
	// SourceForge
	Provider string // "github" (default), "gitlab", "bitbucket", "sourcehut"
	Owner    string
	Repo     string
	Ref      string
	Subpath  string
}

var forgeIDPattern = regexp.MustCompile(`^([a-zA-Z0-9_-]+)/([a-zA-Z0-9_.-]+)(#[^/]+)?(/.+)?$`)

// ParseID classifies a pack id string into a Source (spec §6 "Pack ID forms
// accepted by the resolver"). It never performs I/O; resolution to an
// on-disk path happens in internal/fetch.
func ParseID(id string) (Source, error) {
	if id == "" {
		return Source{}, gverr.New(gverr.KindPackIDInvalid, "pack id cannot be empty")
	}

	if strings.HasPrefix(id, "builtin/") {
		return Source{Kind: SourceBuiltin, BuiltinName: strings.TrimPrefix(id, "builtin/")}, nil
	}

	provider := "github"
	rest := id
	for prefix, p := range map[string]string{"gitlab:": "gitlab", "bitbucket:": "bitbucket", "sourcehut:": "sourcehut"} {
		if strings.HasPrefix(id, prefix) {
			provider = p
			rest = strings.TrimPrefix(id, prefix)
			break
		}
	}

	if m := forgeIDPattern.FindStringSubmatch(rest); m != nil && strings.Contains(m[1]+"/"+m[2], "/") {
		owner, repo := m[1], m[2]
		ref := strings.TrimPrefix(m[3], "#")
		subpath := strings.TrimPrefix(m[4], "/")

		// Distinguish a true forge id (owner/repo[#ref][/subpath]) from a
		// scoped registry id (scope/name) by requiring either a ref or a
		// subpath. A bare two-segment id with neither ref nor subpath is treated as
		// a registry scope/name per spec §6.
		if ref != "" || subpath != "" {
			return Source{Kind: SourceForge, Provider: provider, Owner: owner, Repo: repo, Ref: ref, Subpath: subpath}, nil
		}
		return Source{Kind: SourceRegistry, RegistryID: rest}, nil
	}

	return Source{Kind: SourceRegistry, RegistryID: id}, nil
}

// String renders the Source back to its canonical id form (used for log
// lines and cache keys).
func (s Source) String() string {
	switch s.Kind {
	case SourceBuiltin:
		return "builtin/" + s.BuiltinName
	case SourceLocal:
		return s.LocalPath
	case SourceRegistry:
		return s.RegistryID
	case SourceForge:
		id := s.Owner + "/" + s.Repo
		if s.Ref != "" {
			id += "#" + s.Ref
		}
		if s.Subpath != "" {
			id += "/" + s.Subpath
		}
		return id
	}
	return ""
}

// CacheKey returns the on-disk cache key for a forge source (spec §8
// scenario 6): "forge-<owner>-<repo>-<ref>-<subpath-with-dashes>".
func (s Source) CacheKey() string {
	if s.Kind != SourceForge {
		return s.String()
	}
	parts := []string{"forge", s.Owner, s.Repo}
	if s.Ref != "" {
		parts = append(parts, s.Ref)
	}
	if s.Subpath != "" {
		parts = append(parts, strings.Split(s.Subpath, "/")...)
	}
	return strings.Join(parts, "-")
}
