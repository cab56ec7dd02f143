// Package runtime de-globalizes the mutable state gh-aw (and the spec's
// "Design Notes" §9) call out as a smell: the forge rate-limit buckets, the
// forge tokens and cache roots read from the environment, and the clock all
// become fields on one Runtime value, constructed once and threaded through
// constructors. Test harnesses build a fresh Runtime per test for
// isolation instead of relying on package-level state.
package runtime

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/seanchatmangpt/gitvan/internal/gitvanlog"
)

// Runtime is the dependency-injection root threaded through every
// component constructor in GitVan (spec §9).
type Runtime struct {
	// GitBin is the git executable to exec.Command against.
	GitBin string
	// Env is the base environment merged into every git subprocess call,
	// always forced to TZ=UTC, LANG=C per spec §4.1.
	Env map[string]string
	// ForgeTokens maps a forge provider name ("github", "gitlab",
	// "bitbucket", "sourcehut") to its auth token, read once from the
	// environment and never persisted into any cache entry.
	ForgeTokens map[string]string
	// CacheRoot is the repository-local cache directory, default
	// "<cwd>/packs".
	CacheRoot string
	// UserCacheRoot is the user-global cache directory, default
	// "~/.gitvan/packs".
	UserCacheRoot string
	// Now returns the current time; overridable so tests get a
	// deterministic clock (used by the cron ticker and cache TTL checks).
	Now func() time.Time

	Logger *gitvanlog.Logger

	rateMu   sync.Mutex
	rateInfo map[string]*RateBucket
}

// RateBucket is per-provider forge rate-limit state (spec §4.3), owned by
// the Runtime instead of a package global.
type RateBucket struct {
	Remaining int
	ResetAt   time.Time
}

// FromEnv builds a Runtime by reading the environment once. Subsequent
// calls to Runtime methods never re-read the environment.
func FromEnv() *Runtime {
	home, _ := os.UserHomeDir()
	cwd, _ := os.Getwd()

	tokens := map[string]string{}
	for provider, envVar := range map[string]string{
		"github":    "GITHUB_TOKEN",
		"gitlab":    "GITLAB_TOKEN",
		"bitbucket": "BITBUCKET_TOKEN",
		"sourcehut": "SOURCEHUT_TOKEN",
	} {
		if v := os.Getenv(envVar); v != "" {
			tokens[provider] = v
		}
		if v := os.Getenv("FORGE_TOKEN"); v != "" {
			// FORGE_TOKEN is a catch-all fallback, lowest precedence.
			if tokens[provider] == "" {
				tokens[provider] = v
			}
		}
	}

	return &Runtime{
		GitBin:        "git",
		Env:           map[string]string{"TZ": "UTC", "LANG": "C"},
		ForgeTokens:   tokens,
		CacheRoot:     filepath.Join(cwd, "packs"),
		UserCacheRoot: filepath.Join(home, ".gitvan", "packs"),
		Now:           time.Now,
		Logger:        gitvanlog.New("runtime"),
		rateInfo:      map[string]*RateBucket{},
	}
}

// New builds a Runtime from explicit fields, for test isolation. Zero
// values are filled with safe defaults.
func New(gitBin, cacheRoot, userCacheRoot string) *Runtime {
	if gitBin == "" {
		gitBin = "git"
	}
	return &Runtime{
		GitBin:        gitBin,
		Env:           map[string]string{"TZ": "UTC", "LANG": "C"},
		ForgeTokens:   map[string]string{},
		CacheRoot:     cacheRoot,
		UserCacheRoot: userCacheRoot,
		Now:           time.Now,
		Logger:        gitvanlog.New("runtime"),
		rateInfo:      map[string]*RateBucket{},
	}
}

// RateBucketFor returns (creating if absent) the rate-limit bucket for a
// forge provider, protected by a mutex per spec §5 ("process-global and
// protected by a mutex" — here scoped to the Runtime rather than a true
// process global, so tests don't bleed state across Runtimes).
func (r *Runtime) RateBucketFor(provider string) *RateBucket {
	r.rateMu.Lock()
	defer r.rateMu.Unlock()
	b, ok := r.rateInfo[provider]
	if !ok {
		b = &RateBucket{Remaining: -1}
		r.rateInfo[provider] = b
	}
	return b
}

// UpdateRateBucket records the latest remaining/reset values observed from
// a forge API response.
func (r *Runtime) UpdateRateBucket(provider string, remaining int, resetAt time.Time) {
	r.rateMu.Lock()
	defer r.rateMu.Unlock()
	r.rateInfo[provider] = &RateBucket{Remaining: remaining, ResetAt: resetAt}
}
