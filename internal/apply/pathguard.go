// Path-traversal guard for the Pack Applier (spec §4.7: "All paths are
// resolved and checked to remain strictly under targetDir"). Adapted from
// the teacher's pkg/fileutil.ValidateAbsolutePath (clean + verify-absolute
// idiom), generalized here into "resolve a pack-relative target path and
// confirm it cannot escape targetDir via .. or an absolute override". The
// check is lexical: symlinks are not resolved.
package apply

import (
	"path/filepath"
	"strings"

	"github.com/seanchatmangpt/gitvan/internal/gverr"
)

// ResolveUnder joins targetDir and rel, cleans the result, and verifies it
// remains strictly within targetDir. rel must never be absolute and must
// never escape targetDir via "..".
func ResolveUnder(targetDir, rel string) (string, error) {
	if rel == "" {
		return "", gverr.New(gverr.KindPathTraversal, "empty target path")
	}
	if filepath.IsAbs(rel) {
		return "", gverr.New(gverr.KindPathTraversal, "target path %q must not be absolute", rel)
	}

	cleanTarget := filepath.Clean(targetDir)
	full := filepath.Join(cleanTarget, rel)
	full = filepath.Clean(full)

	relToTarget, err := filepath.Rel(cleanTarget, full)
	if err != nil {
		return "", gverr.Wrap(gverr.KindPathTraversal, err, "resolving %q under %q", rel, targetDir)
	}
	if relToTarget == ".." || strings.HasPrefix(relToTarget, ".."+string(filepath.Separator)) {
		return "", gverr.New(gverr.KindPathTraversal, "target path %q escapes %q", rel, targetDir)
	}
	return full, nil
}
