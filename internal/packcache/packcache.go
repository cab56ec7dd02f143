// Package packcache implements the Pack Cache component (spec §4.4, C4): a
// two-tier cache (in-memory LRU plus an on-disk store whose files are named
// by the SHA-256 of the key and carry a SHA-256 checksum of their content)
// shared by the fetcher, resolver, and registry client. Grounded on the
// teacher's pkg/parser/import_cache.go (in-memory ImportCache with
// singleflight-style dedup) generalized to disk persistence and namespaces.
package packcache

import (
	"bytes"
	"compress/gzip"
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/seanchatmangpt/gitvan/internal/gverr"
)

// Namespaces enumerated in spec §4.4.
const (
	NSPackInfo      = "pack-info"
	NSPackResolve   = "pack-resolve"
	NSRegistryFetch = "registry-fetch"
	NSForgePack     = "forge-pack"
)

// gzipThreshold is the on-disk entry size above which values are stored
// gzip-compressed.
const gzipThreshold = 4096

// Stats summarizes cache state for operators (spec §4.4 "stats()").
type Stats struct {
	MemoryEntries int
	MemoryBytes   int64
	DiskEntries   int
}

type memEntry struct {
	ns, key string
	value   []byte
	expires time.Time // zero means no TTL
}

// Cache is the two-tier pack cache bound to a Runtime-provided disk root.
type Cache struct {
	diskRoot string
	maxBytes int64
	now      func() time.Time

	mu        sync.Mutex
	order     *list.List // front = most recently used
	index     map[string]*list.Element
	usedBytes int64

	sfMu sync.Mutex
	sf   map[string]*sfCall
}

type sfCall struct {
	wg  sync.WaitGroup
	val []byte
	err error
}

// New returns a Cache rooted at diskRoot with an in-memory LRU budget of
// maxMemoryBytes.
func New(diskRoot string, maxMemoryBytes int64, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		diskRoot: diskRoot,
		maxBytes: maxMemoryBytes,
		now:      now,
		order:    list.New(),
		index:    map[string]*list.Element{},
		sf:       map[string]*sfCall{},
	}
}

func cacheKey(ns, key string) string { return ns + "\x00" + key }

func (c *Cache) diskPath(ns, key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.diskRoot, ns, hex.EncodeToString(sum[:]))
}

// Get looks up (ns, key), checking the in-memory tier first, then disk.
// A disk hit is promoted into memory. Returns (nil, false) on a clean miss.
func (c *Cache) Get(ns, key string) ([]byte, bool) {
	ck := cacheKey(ns, key)

	c.mu.Lock()
	if el, ok := c.index[ck]; ok {
		e := el.Value.(*memEntry)
		if e.expires.IsZero() || c.now().Before(e.expires) {
			c.order.MoveToFront(el)
			val := append([]byte(nil), e.value...)
			c.mu.Unlock()
			return val, true
		}
		c.removeElementLocked(el)
		c.mu.Unlock()
		os.Remove(c.diskPath(ns, key))
		return nil, false
	}
	c.mu.Unlock()

	val, ok, err := c.readDisk(ns, key)
	if err != nil || !ok {
		return nil, false
	}
	c.promote(ns, key, val, time.Time{})
	return val, true
}

// Set writes (ns, key, value) into both tiers. ttl of zero means no expiry.
func (c *Cache) Set(ns, key string, value []byte, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = c.now().Add(ttl)
	}
	c.promote(ns, key, value, expires)
	return c.writeDisk(ns, key, value)
}

func (c *Cache) promote(ns, key string, value []byte, expires time.Time) {
	ck := cacheKey(ns, key)
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[ck]; ok {
		old := el.Value.(*memEntry)
		c.usedBytes -= int64(len(old.value))
		old.value = value
		old.expires = expires
		c.usedBytes += int64(len(value))
		c.order.MoveToFront(el)
		c.evictLocked()
		return
	}

	e := &memEntry{ns: ns, key: key, value: value, expires: expires}
	el := c.order.PushFront(e)
	c.index[ck] = el
	c.usedBytes += int64(len(value))
	c.evictLocked()
}

func (c *Cache) evictLocked() {
	for c.maxBytes > 0 && c.usedBytes > c.maxBytes && c.order.Len() > 0 {
		back := c.order.Back()
		c.removeElementLocked(back)
	}
}

func (c *Cache) removeElementLocked(el *list.Element) {
	e := el.Value.(*memEntry)
	delete(c.index, cacheKey(e.ns, e.key))
	c.order.Remove(el)
	c.usedBytes -= int64(len(e.value))
}

// Invalidate removes entries. Both empty means wipe everything; ns-only
// wipes a namespace; ns+key removes a single entry.
func (c *Cache) Invalidate(ns, key string) {
	c.mu.Lock()
	if ns == "" && key == "" {
		c.order.Init()
		c.index = map[string]*list.Element{}
		c.usedBytes = 0
		c.mu.Unlock()
		os.RemoveAll(c.diskRoot)
		return
	}
	if key != "" {
		if el, ok := c.index[cacheKey(ns, key)]; ok {
			c.removeElementLocked(el)
		}
		c.mu.Unlock()
		os.Remove(c.diskPath(ns, key))
		return
	}
	// ns only: drop every memory entry in that namespace.
	var toRemove []*list.Element
	for k, el := range c.index {
		e := el.Value.(*memEntry)
		if e.ns == ns {
			toRemove = append(toRemove, c.index[k])
		}
	}
	for _, el := range toRemove {
		c.removeElementLocked(el)
	}
	c.mu.Unlock()
	os.RemoveAll(filepath.Join(c.diskRoot, ns))
}

// Stats reports current cache occupancy (spec §4.4 "stats()").
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{MemoryEntries: c.order.Len(), MemoryBytes: c.usedBytes}
	if nsDirs, err := os.ReadDir(c.diskRoot); err == nil {
		for _, nsDir := range nsDirs {
			if files, err := os.ReadDir(filepath.Join(c.diskRoot, nsDir.Name())); err == nil {
				s.DiskEntries += len(files)
			}
		}
	}
	return s
}

// WarmupEntry is one (ns, key) pair to prefetch from disk into memory.
type WarmupEntry struct{ NS, Key string }

// Warmup loads the given (ns, key) pairs from disk into the memory tier,
// ignoring misses (spec §4.4 "warmup([{ns,key}])").
func (c *Cache) Warmup(entries []WarmupEntry) {
	for _, e := range entries {
		if val, ok, err := c.readDisk(e.NS, e.Key); err == nil && ok {
			c.promote(e.NS, e.Key, val, time.Time{})
		}
	}
}

func (c *Cache) readDisk(ns, key string) ([]byte, bool, error) {
	path := c.diskPath(ns, key)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, gverr.Wrap(gverr.KindFileSystemError, err, "reading cache entry %s/%s", ns, key)
	}
	if len(raw) < sha256.Size {
		return nil, false, gverr.New(gverr.KindIntegrityMismatch, "cache entry %s/%s is truncated", ns, key)
	}
	wantSum, body := raw[:sha256.Size], raw[sha256.Size:]

	gotSum := sha256.Sum256(body)
	if !bytes.Equal(wantSum, gotSum[:]) {
		return nil, false, gverr.New(gverr.KindIntegrityMismatch, "cache entry %s/%s failed integrity check", ns, key)
	}

	if len(body) > 0 && body[0] == gzipMagic0 && len(body) > 1 && body[1] == gzipMagic1 {
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, false, gverr.Wrap(gverr.KindIntegrityMismatch, err, "cache entry %s/%s gzip header invalid", ns, key)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, false, gverr.Wrap(gverr.KindIntegrityMismatch, err, "cache entry %s/%s gzip body invalid", ns, key)
		}
		return out, true, nil
	}
	return body, true, nil
}

const gzipMagic0, gzipMagic1 = 0x1f, 0x8b

func (c *Cache) writeDisk(ns, key string, value []byte) error {
	path := c.diskPath(ns, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return gverr.Wrap(gverr.KindFileSystemError, err, "creating cache dir for %s/%s", ns, key)
	}

	body := value
	if len(value) > gzipThreshold {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(value); err != nil {
			return gverr.Wrap(gverr.KindFileSystemError, err, "compressing cache entry %s/%s", ns, key)
		}
		if err := zw.Close(); err != nil {
			return gverr.Wrap(gverr.KindFileSystemError, err, "closing gzip writer for %s/%s", ns, key)
		}
		body = buf.Bytes()
	}

	sum := sha256.Sum256(body)
	out := append(append([]byte(nil), sum[:]...), body...)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return gverr.Wrap(gverr.KindFileSystemError, err, "writing cache entry %s/%s", ns, key)
	}
	if err := os.Rename(tmp, path); err != nil {
		return gverr.Wrap(gverr.KindFileSystemError, err, "finalizing cache entry %s/%s", ns, key)
	}
	return nil
}

// GetOrFetch returns the cached value for (ns, key) if present, otherwise
// calls fetch exactly once even under concurrent callers for the same key
// (singleflight), storing the result with ttl before returning it.
func (c *Cache) GetOrFetch(ns, key string, ttl time.Duration, fetch func() ([]byte, error)) ([]byte, error) {
	if val, ok := c.Get(ns, key); ok {
		return val, nil
	}

	ck := cacheKey(ns, key)
	c.sfMu.Lock()
	if call, inflight := c.sf[ck]; inflight {
		c.sfMu.Unlock()
		call.wg.Wait()
		return call.val, call.err
	}
	call := &sfCall{}
	call.wg.Add(1)
	c.sf[ck] = call
	c.sfMu.Unlock()

	val, err := fetch()
	call.val, call.err = val, err
	call.wg.Done()

	c.sfMu.Lock()
	delete(c.sf, ck)
	c.sfMu.Unlock()

	if err == nil {
		if serr := c.Set(ns, key, val, ttl); serr != nil {
			return val, serr
		}
	}
	return val, err
}

// Compact walks the disk tier and removes zero-length tombstone files and
// leftover "*.tmp" files of any size (spec §4.4 "background compaction
// reclaims tombstoned entries"). A "*.tmp" file of a write still in
// progress is removed as well, which makes that write's rename fail.
func (c *Cache) Compact() error {
	return filepath.WalkDir(c.diskRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(path) == ".tmp" {
			return os.Remove(path)
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() == 0 {
			return os.Remove(path)
		}
		return nil
	})
}
