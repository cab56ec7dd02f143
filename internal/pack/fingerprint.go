package pack

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/seanchatmangpt/gitvan/internal/gverr"
)

// fileHash is one (relpath, sha256(content)) pair (spec §3 "Fingerprint").
type fileHash struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

// canonical is the part of a Manifest that feeds the fingerprint: id,
// version, and sorted compose/provides, independent of file declaration
// order (declaration order still governs apply order elsewhere, see
// internal/apply).
type canonical struct {
	ID       string            `json:"id"`
	Version  string            `json:"version"`
	Compose  composeCanonical  `json:"compose"`
	Provides providesCanonical `json:"provides"`
	Files    []fileHash        `json:"files"`
}

type composeCanonical struct {
	Order            int                `json:"order"`
	DependsOn        []string           `json:"dependsOn"`
	ConflictsWith    []string           `json:"conflictsWith"`
	IncompatibleWith []IncompatibleWith `json:"incompatibleWith"`
	Dependencies     map[string]string  `json:"dependencies"`
}

type providesCanonical struct {
	Templates []TemplateSpec      `json:"templates"`
	Files     []FileSpec          `json:"files"`
	Jobs      []JobSpec           `json:"jobs"`
	Manifests []ManifestMergeSpec `json:"manifests"`
	Events    []string            `json:"events"`
	Scaffolds []string            `json:"scaffolds"`
	Commands  []string            `json:"commands"`
}

func sortedStrings(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

// Fingerprint computes the deterministic 64-hex SHA-256 fingerprint for a
// manifest whose provided artifacts live under packDir (spec §3, §4.2).
func Fingerprint(m *Manifest, packDir string) (string, error) {
	c := canonical{
		ID:      m.ID,
		Version: m.Version,
		Compose: composeCanonical{
			Order:            m.Compose.Order,
			DependsOn:        sortedStrings(m.Compose.DependsOn),
			ConflictsWith:    sortedStrings(m.Compose.ConflictsWith),
			Dependencies:     m.Compose.Dependencies,
			IncompatibleWith: append([]IncompatibleWith(nil), m.Compose.IncompatibleWith...),
		},
		Provides: providesCanonical{
			Templates: append([]TemplateSpec(nil), m.Provides.Templates...),
			Files:     append([]FileSpec(nil), m.Provides.Files...),
			Jobs:      append([]JobSpec(nil), m.Provides.Jobs...),
			Manifests: append([]ManifestMergeSpec(nil), m.Provides.Manifests...),
			Events:    sortedStrings(m.Provides.Events),
			Scaffolds: sortedStrings(m.Provides.Scaffolds),
			Commands:  sortedStrings(m.Provides.Commands),
		},
	}

	sort.Slice(c.Compose.IncompatibleWith, func(i, j int) bool {
		a, b := c.Compose.IncompatibleWith[i], c.Compose.IncompatibleWith[j]
		if a.Pack != b.Pack {
			return a.Pack < b.Pack
		}
		return a.VersionRange < b.VersionRange
	})
	sort.Slice(c.Provides.Templates, func(i, j int) bool {
		return c.Provides.Templates[i].Target < c.Provides.Templates[j].Target
	})
	sort.Slice(c.Provides.Files, func(i, j int) bool {
		return c.Provides.Files[i].Target < c.Provides.Files[j].Target
	})
	sort.Slice(c.Provides.Jobs, func(i, j int) bool {
		return c.Provides.Jobs[i].ID < c.Provides.Jobs[j].ID
	})
	sort.Slice(c.Provides.Manifests, func(i, j int) bool {
		return c.Provides.Manifests[i].Target < c.Provides.Manifests[j].Target
	})

	hashes, err := hashProvidedFiles(m, packDir)
	if err != nil {
		return "", err
	}
	c.Files = hashes

	buf, err := json.Marshal(c)
	if err != nil {
		return "", gverr.Wrap(gverr.KindManifestInvalid, err, "canonicalize manifest for fingerprint")
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}

func hashProvidedFiles(m *Manifest, packDir string) ([]fileHash, error) {
	var hashes []fileHash
	add := func(subdir, src string) error {
		if src == "" {
			return nil
		}
		full := filepath.Join(packDir, subdir, src)
		content, err := os.ReadFile(full)
		if err != nil {
			return gverr.Wrap(gverr.KindFileSystemError, err, "reading provided artifact %s", full)
		}
		sum := sha256.Sum256(content)
		relPath := filepath.ToSlash(filepath.Join(subdir, src))
		hashes = append(hashes, fileHash{Path: relPath, Hash: hex.EncodeToString(sum[:])})
		return nil
	}

	for _, t := range m.Provides.Templates {
		if err := add("templates", t.Src); err != nil {
			return nil, err
		}
	}
	for _, f := range m.Provides.Files {
		if err := add("assets", f.Src); err != nil {
			return nil, err
		}
	}
	for _, j := range m.Provides.Jobs {
		if err := add("jobs", j.Src); err != nil {
			return nil, err
		}
	}

	sort.Slice(hashes, func(i, j int) bool { return hashes[i].Path < hashes[j].Path })
	return hashes, nil
}
