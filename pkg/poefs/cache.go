package poefs

import (
	"fmt"
	"sync"

	"github.com/pierrec/lz4/v4"
)

// BundleCache is an optional, process-lifetime cache of decompressed
// bundle payloads, keyed by bundle path. Entries are kept LZ4-compressed in
// memory, trading CPU on each hit for a smaller resident footprint — the
// optimization spec.md §9 explicitly invites but the original never
// implements. Never populated except after a successful decompress, so a
// failed parse can never poison it.
type BundleCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	compressed   []byte
	originalSize int
	raw          bool // true when storing payload uncompressed (lz4 found it incompressible)
}

// NewBundleCache constructs an empty cache.
func NewBundleCache() *BundleCache {
	return &BundleCache{entries: make(map[string]cacheEntry)}
}

// Get returns the cached decompressed payload for bundlePath, if present.
func (c *BundleCache) Get(bundlePath string) ([]byte, bool) {
	c.mu.Lock()
	entry, ok := c.entries[bundlePath]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	if entry.raw {
		out := make([]byte, len(entry.compressed))
		copy(out, entry.compressed)
		return out, true
	}

	out := make([]byte, entry.originalSize)
	n, err := lz4.UncompressBlock(entry.compressed, out)
	if err != nil || n != entry.originalSize {
		return nil, false
	}
	return out, true
}

// Put stores payload (already decompressed) under bundlePath, compressing
// it with LZ4 before insertion.
func (c *BundleCache) Put(bundlePath string, payload []byte) error {
	compressed := make([]byte, lz4.CompressBlockBound(len(payload)))
	var state lz4.Compressor
	n, err := state.CompressBlock(payload, compressed)
	if err != nil {
		return fmt.Errorf("poefs: compress bundle cache entry for %s: %w", bundlePath, err)
	}

	entry := cacheEntry{originalSize: len(payload)}
	if n == 0 && len(payload) > 0 {
		// Incompressible input: lz4 signals this by writing 0. Store the
		// raw bytes instead of a (nonexistent) compressed block.
		entry.raw = true
		entry.compressed = append([]byte(nil), payload...)
	} else {
		entry.compressed = compressed[:n]
	}

	c.mu.Lock()
	c.entries[bundlePath] = entry
	c.mu.Unlock()
	return nil
}
