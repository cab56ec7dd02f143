// Event binding discovery for the Job/Event/Cron Registry (spec §4.9, C9).
// Grounded on the same file-walk idiom as jobs.go; bindings are found
// under events/<kind>/<pattern> and declare their target job via a small
// YAML body (`job: <id>`), parsed with the same goccy/go-yaml already
// wired for pack manifests and front matter.
package registry

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/seanchatmangpt/gitvan/internal/gverr"
)

// EventBinding is one discovered events/<kind>/<pattern> file.
type EventBinding struct {
	Kind    string // "tagCreate", "message", "pathChanged", "branch"
	Pattern string // glob-like over paths, regex-like (leading "^") over messages
	JobID   string
	Path    string
}

type eventBody struct {
	Job string `json:"job" yaml:"job"`
}

// DiscoverEvents walks eventsDir and returns every binding found. The
// first path segment under eventsDir is the event kind; the remainder
// (extension stripped) is the pattern.
func DiscoverEvents(eventsDir string) ([]EventBinding, error) {
	var bindings []EventBinding
	err := filepath.WalkDir(eventsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == eventsDir {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(eventsDir, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		segments := strings.SplitN(rel, "/", 2)
		if len(segments) != 2 {
			return nil
		}
		kind := segments[0]
		pattern := strings.TrimSuffix(segments[1], filepath.Ext(segments[1]))

		jobID, err := parseEventBody(path)
		if err != nil {
			return gverr.Wrap(gverr.KindManifestInvalid, err, "parsing event binding %s", path)
		}

		bindings = append(bindings, EventBinding{Kind: kind, Pattern: pattern, JobID: jobID, Path: path})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	sort.Slice(bindings, func(i, j int) bool {
		if bindings[i].Kind != bindings[j].Kind {
			return bindings[i].Kind < bindings[j].Kind
		}
		return bindings[i].Pattern < bindings[j].Pattern
	})
	return bindings, nil
}

func parseEventBody(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var body eventBody
	if err := yaml.Unmarshal(raw, &body); err == nil && body.Job != "" {
		return body.Job, nil
	}
	return strings.TrimSpace(string(raw)), nil
}

// IsRegexPattern reports whether pattern is a regex (leading "^", per
// spec §4.9 "regex-like over commit messages (detected by leading ^)")
// rather than a glob.
func IsRegexPattern(pattern string) bool {
	return strings.HasPrefix(pattern, "^")
}
