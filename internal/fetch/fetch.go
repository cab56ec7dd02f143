// Package fetch implements the Pack Source Fetchers component (spec §4.3,
// C3): resolving a pack.Source to an on-disk directory containing
// pack.json. Resolve dispatches on the source's kind to exactly one of
// builtin, local directory, forge clone, or registry fetch; only the
// registry path consults the pack cache, and a failed lookup does not
// fall back to another source. Grounded on the teacher's pkg/parser/remote_fetch.go
// (workflowspec parsing, GitHub contents/rate-limit handling via
// github.com/cli/go-gh/v2) generalized from "download one file" to
// "resolve a whole pack tree", and on gh-aw's ImportCache for the
// negative-result/TTL caching idiom.
package fetch

import (
	"context"
	"embed"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cli/go-gh/v2/pkg/api"
	"github.com/seanchatmangpt/gitvan/internal/gitadapter"
	"github.com/seanchatmangpt/gitvan/internal/gitvanlog"
	"github.com/seanchatmangpt/gitvan/internal/gverr"
	"github.com/seanchatmangpt/gitvan/internal/pack"
	"github.com/seanchatmangpt/gitvan/internal/packcache"
	"github.com/seanchatmangpt/gitvan/internal/runtime"
)

//go:embed builtins
var builtinsFS embed.FS

var log = gitvanlog.New("fetch")

const negativeTTL = 30 * time.Second

// maxRateLimitWait caps the bounded await when a forge rate-limit bucket is
// nearly exhausted (spec §4.3 "capped at 60s").
const maxRateLimitWait = 60 * time.Second

// forgeHosts maps a provider name to its HTTPS clone host.
var forgeHosts = map[string]string{
	"github":    "github.com",
	"gitlab":    "gitlab.com",
	"bitbucket": "bitbucket.org",
	"sourcehut": "git.sr.ht",
}

// Fetcher resolves pack.Source values to on-disk directories.
type Fetcher struct {
	rt    *runtime.Runtime
	git   *gitadapter.Adapter
	cache *packcache.Cache
}

// New returns a Fetcher bound to rt, using git for forge clones and cache
// for all namespaced lookups (pack-info, pack-resolve, registry-fetch,
// forge-pack).
func New(rt *runtime.Runtime, git *gitadapter.Adapter, cache *packcache.Cache) *Fetcher {
	return &Fetcher{rt: rt, git: git, cache: cache}
}

// Resolve returns the absolute directory containing src's pack.json.
func (f *Fetcher) Resolve(ctx context.Context, src pack.Source) (string, error) {
	switch src.Kind {
	case pack.SourceBuiltin:
		return f.resolveBuiltin(src)
	case pack.SourceLocal:
		return f.resolveLocal(src)
	case pack.SourceForge:
		return f.resolveForge(ctx, src)
	case pack.SourceRegistry:
		return f.resolveRegistry(ctx, src)
	default:
		return "", gverr.New(gverr.KindPackIDInvalid, "unknown pack source kind %v", src.Kind)
	}
}

// resolveBuiltin materializes an embedded builtin pack into the Runtime's
// cache root (once; subsequent calls are idempotent overwrites of the same
// content) and returns its path.
func (f *Fetcher) resolveBuiltin(src pack.Source) (string, error) {
	embedRoot := "builtins/" + src.BuiltinName
	if _, err := fs.Stat(builtinsFS, embedRoot); err != nil {
		return "", gverr.Wrap(gverr.KindPackNotFound, err, "builtin pack %q not found", src.BuiltinName)
	}

	dest := filepath.Join(f.rt.CacheRoot, "builtin", src.BuiltinName)
	if err := extractEmbedDir(builtinsFS, embedRoot, dest); err != nil {
		return "", gverr.Wrap(gverr.KindFileSystemError, err, "materializing builtin pack %q", src.BuiltinName)
	}
	return dest, nil
}

func extractEmbedDir(embedded embed.FS, root, dest string) error {
	return fs.WalkDir(embedded, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(path, root), "/")
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		content, err := embedded.ReadFile(path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.WriteFile(target, content, 0o644)
	})
}

// resolveLocal validates that src.LocalPath exists and contains a
// pack.json, walking up to 3 parent levels if it doesn't (spec §4.3).
func (f *Fetcher) resolveLocal(src pack.Source) (string, error) {
	dir, err := findManifestRoot(src.LocalPath, 3)
	if err != nil {
		return "", gverr.Wrap(gverr.KindPackNotFound, err, "local pack not found at %s", src.LocalPath)
	}
	return dir, nil
}

// findManifestRoot returns start, or the nearest ancestor up to maxUp
// levels, that contains a pack.json file.
func findManifestRoot(start string, maxUp int) (string, error) {
	dir := start
	for i := 0; i <= maxUp; i++ {
		if _, err := os.Stat(filepath.Join(dir, "pack.json")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", gverr.New(gverr.KindPackNotFound, "no pack.json found at or above %s (searched %d levels)", start, maxUp)
}

// resolveForge clones src into a deterministic cache path, relocating a
// subpath to the cache root when present, then merges forge metadata
// (stars, topics, license, default branch) into the manifest under the
// reserved "forge" key.
func (f *Fetcher) resolveForge(ctx context.Context, src pack.Source) (string, error) {
	dest := filepath.Join(f.rt.CacheRoot, "forge", src.CacheKey())

	if _, err := os.Stat(filepath.Join(dest, "pack.json")); err == nil {
		return dest, nil
	}

	host, ok := forgeHosts[src.Provider]
	if !ok {
		return "", gverr.New(gverr.KindPackIDInvalid, "unknown forge provider %q", src.Provider)
	}

	if err := f.awaitRateLimit(ctx, src.Provider); err != nil {
		return "", err
	}

	url := "https://" + host + "/" + src.Owner + "/" + src.Repo + ".git"
	if token := f.rt.ForgeTokens[src.Provider]; token != "" {
		url = "https://" + token + "@" + host + "/" + src.Owner + "/" + src.Repo + ".git"
	}

	cloneDest := dest
	if src.Subpath != "" {
		cloneDest = dest + ".clone-tmp"
	}
	if err := os.MkdirAll(filepath.Dir(cloneDest), 0o755); err != nil {
		return "", gverr.Wrap(gverr.KindFileSystemError, err, "preparing cache dir for %s", src)
	}
	_ = os.RemoveAll(cloneDest)

	if err := f.git.Clone(gitadapter.CallCtx{Context: ctx}, url, src.Ref, 1, cloneDest); err != nil {
		return "", gverr.Wrap(gverr.KindNetworkError, err, "cloning %s", src)
	}

	if src.Subpath != "" {
		subtree := filepath.Join(cloneDest, src.Subpath)
		if err := os.Rename(subtree, dest); err != nil {
			return "", gverr.Wrap(gverr.KindFileSystemError, err, "relocating subpath %s of %s", src.Subpath, src)
		}
		_ = os.RemoveAll(cloneDest)
	}

	root, err := findManifestRoot(dest, 3)
	if err != nil {
		return "", err
	}

	if src.Provider == "github" {
		f.mergeGitHubMetadata(src, root)
	}
	return root, nil
}

// mergeGitHubMetadata fetches repo metadata (stars, topics, license,
// default branch) via the GitHub REST client and merges it into the
// fetched manifest under the reserved "forge" key (spec §4.3). Failures
// here are logged and swallowed: forge metadata is an enrichment, not a
// precondition for a usable pack.
func (f *Fetcher) mergeGitHubMetadata(src pack.Source, root string) {
	client, err := api.DefaultRESTClient()
	if err != nil {
		log.Printf("forge metadata unavailable for %s: %v", src, err)
		return
	}

	var repoInfo struct {
		StargazersCount int      `json:"stargazers_count"`
		Topics          []string `json:"topics"`
		DefaultBranch   string   `json:"default_branch"`
		License         struct {
			SPDXID string `json:"spdx_id"`
		} `json:"license"`
	}
	if err := client.Get("repos/"+src.Owner+"/"+src.Repo, &repoInfo); err != nil {
		log.Printf("forge metadata request failed for %s: %v", src, err)
		return
	}

	manifestPath := filepath.Join(root, "pack.json")
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return
	}
	m, err := pack.Load(raw)
	if err != nil {
		return
	}
	m.Forge = map[string]any{
		"stars":         repoInfo.StargazersCount,
		"topics":        repoInfo.Topics,
		"license":       repoInfo.License.SPDXID,
		"defaultBranch": repoInfo.DefaultBranch,
	}
	out, err := m.Marshal()
	if err != nil {
		return
	}
	_ = os.WriteFile(manifestPath, out, 0o644)
}

// awaitRateLimit blocks until the forge's rate-limit bucket has headroom,
// capped at maxRateLimitWait (spec §4.3: "if remaining < 10, await the
// reset time (capped at 60s)").
func (f *Fetcher) awaitRateLimit(ctx context.Context, provider string) error {
	bucket := f.rt.RateBucketFor(provider)
	if bucket.Remaining < 0 || bucket.Remaining >= 10 {
		return nil
	}
	wait := time.Until(bucket.ResetAt)
	if wait <= 0 {
		return nil
	}
	if wait > maxRateLimitWait {
		wait = maxRateLimitWait
	}
	log.Printf("forge %s rate-limited (remaining=%d), waiting %s", provider, bucket.Remaining, wait)
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return gverr.Wrap(gverr.KindRateLimited, ctx.Err(), "rate-limit wait for %s cancelled", provider)
	}
}

// registryBaseURL is the default HTTPS registry endpoint; overridable via
// Runtime.Env for tests and self-hosted registries.
const registryBaseURL = "https://registry.gitvan.dev"

// resolveRegistry performs a bounded, retried HTTPS GET against the
// registry, caching both positive and negative results (spec §4.3,
// §4.4 namespace "registry-fetch").
func (f *Fetcher) resolveRegistry(ctx context.Context, src pack.Source) (string, error) {
	cacheKey := src.RegistryID
	if cached, ok := f.cache.Get(packcache.NSRegistryFetch, cacheKey); ok {
		if string(cached) == "__negative__" {
			return "", gverr.New(gverr.KindPackNotFound, "registry pack %q not found (cached)", src.RegistryID)
		}
		dest := string(cached)
		if _, err := os.Stat(filepath.Join(dest, "pack.json")); err == nil {
			return dest, nil
		}
	}

	base := registryBaseURL
	if override := f.rt.Env["GITVAN_REGISTRY_URL"]; override != "" {
		base = override
	}
	if !strings.HasPrefix(base, "https://") {
		base = registryBaseURL
	}

	url := base + "/packs/" + src.RegistryID + "/archive"
	body, err := httpGetWithRetry(ctx, url, 3)
	if err != nil {
		_ = f.cache.Set(packcache.NSRegistryFetch, cacheKey, []byte("__negative__"), negativeTTL)
		return "", gverr.Wrap(gverr.KindNetworkError, err, "fetching registry pack %q", src.RegistryID)
	}

	dest := filepath.Join(f.rt.CacheRoot, "registry", src.RegistryID)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", gverr.Wrap(gverr.KindFileSystemError, err, "preparing registry cache dir")
	}
	if err := os.WriteFile(filepath.Join(dest, "pack.json"), body, 0o644); err != nil {
		return "", gverr.Wrap(gverr.KindFileSystemError, err, "writing registry pack manifest")
	}

	_ = f.cache.Set(packcache.NSRegistryFetch, cacheKey, []byte(dest), 0)
	return dest, nil
}

// httpGetWithRetry issues a bounded HTTPS GET, retrying transient failures
// up to attempts times with a short linear backoff (spec §4.3 "bounded
// timeout and retries").
func httpGetWithRetry(ctx context.Context, url string, attempts int) ([]byte, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	var lastErr error
	for i := 0; i < attempts; i++ {
		body, err := httpGetOnce(ctx, client, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if i < attempts-1 {
			time.Sleep(time.Duration(i+1) * 200 * time.Millisecond)
		}
	}
	return nil, lastErr
}

func httpGetOnce(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, gverr.New(gverr.KindNetworkError, "GET %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
