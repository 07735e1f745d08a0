// Package poefs implements PoeFS, the top-level façade that unifies a
// source adapter, the parsed bundle index, and per-format in-memory caches
// behind a single path-addressed lookup.
package poefs

import (
	"bytes"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/poe-tool-dev/ggpkfs/pkg/bundle"
	"github.com/poe-tool-dev/ggpkfs/pkg/bundleindex"
	"github.com/poe-tool-dev/ggpkfs/pkg/dat"
	"github.com/poe-tool-dev/ggpkfs/pkg/it"
	"github.com/poe-tool-dev/ggpkfs/pkg/poeerr"
	"github.com/poe-tool-dev/ggpkfs/pkg/poesource"
	"golang.org/x/text/encoding/unicode"
)

const indexBundlePath = "/Bundles2/_.index.bin"

// PoeFS is single-threaded cooperative: instance methods mutate caches and
// the underlying source adapter's cursor, and therefore require exclusive
// access per call. Concurrency, if needed, belongs above this type (one
// PoeFS per task, or a caller-side mutex around it), per spec.md §5.
type PoeFS struct {
	source poesource.FileSource
	index  *bundleindex.Index

	paths   map[string]uint64 // logical path -> FileRecord hash
	fileMap map[uint64]int    // FileRecord hash -> index into index.Files

	datCache map[string]*dat.DatFile
	txtCache map[string]string
	itCache  map[string]*it.ITFile

	bundleCache *BundleCache

	// decompress turns a fetched (header, compressed payload) pair into the
	// uncompressed bytes it describes. Production code always points this at
	// realDecompress; tests in this package may substitute a stub so that
	// PoeFS's own logic (path resolution, caching, offset slicing, extends
	// handling) can be exercised without a genuine Oodle-compressed fixture.
	decompress func(h *bundle.Header, compressed []byte) ([]byte, error)

	log *slog.Logger
}

func realDecompress(h *bundle.Header, compressed []byte) ([]byte, error) {
	return h.Decompress(bytes.NewReader(compressed))
}

// New opens the root index bundle through source, decompresses and parses
// it, expands every path-rep into a logical path, and builds the
// path->hash and hash->file-record-index maps. logger may be nil, in which
// case slog.Default() is used.
func New(source poesource.FileSource, logger *slog.Logger) (*PoeFS, error) {
	return newWithDecompressor(source, logger, realDecompress)
}

func newWithDecompressor(source poesource.FileSource, logger *slog.Logger, decompress func(*bundle.Header, []byte) ([]byte, error)) (*PoeFS, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fs := &PoeFS{
		source:      source,
		paths:       make(map[string]uint64),
		fileMap:     make(map[uint64]int),
		datCache:    make(map[string]*dat.DatFile),
		txtCache:    make(map[string]string),
		itCache:     make(map[string]*it.ITFile),
		bundleCache: NewBundleCache(),
		decompress:  decompress,
		log:         logger,
	}

	header, compressed, err := source.GetFile(indexBundlePath)
	if err != nil {
		return nil, fmt.Errorf("poefs: fetch %s: %w", indexBundlePath, err)
	}
	if header == nil {
		return nil, fmt.Errorf("poefs: %s: %w", indexBundlePath, poeerr.NotFound)
	}
	payload, err := fs.decompress(header, compressed)
	if err != nil {
		return nil, fmt.Errorf("poefs: decompress %s: %w", indexBundlePath, err)
	}

	index, err := bundleindex.Parse(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("poefs: parse bundle index: %w", err)
	}
	fs.index = index

	for ix, fr := range index.Files {
		fs.fileMap[fr.Hash] = ix
	}

	for _, rep := range index.PathReps {
		expanded, err := bundleindex.ExpandPaths(index.PathRepData, rep)
		if err != nil {
			return nil, fmt.Errorf("poefs: expand path rep at offset %d: %w", rep.PayloadOffset, err)
		}
		for _, p := range expanded {
			fs.paths[p] = bundleindex.HashPath(p)
		}
	}

	fs.log.Debug("poefs initialized", "paths", len(fs.paths), "files", len(index.Files), "bundles", len(index.Bundles))
	return fs, nil
}

// Paths yields every known logical path in unspecified order.
func (fs *PoeFS) Paths() iter.Seq[string] {
	return func(yield func(string) bool) {
		for p := range fs.paths {
			if !yield(p) {
				return
			}
		}
	}
}

// GetFile resolves path to its owned, decompressed byte slice.
func (fs *PoeFS) GetFile(path string) ([]byte, error) {
	hash, ok := fs.paths[path]
	if !ok {
		return nil, fmt.Errorf("poefs: %s: %w", path, poeerr.NotFound)
	}
	ix, ok := fs.fileMap[hash]
	if !ok {
		return nil, fmt.Errorf("poefs: %s (hash %x): %w", path, hash, poeerr.NotFound)
	}
	fileRecord := fs.index.Files[ix]
	if int(fileRecord.BundleIx) >= len(fs.index.Bundles) {
		return nil, fmt.Errorf("poefs: %s: bundle index %d out of range: %w", path, fileRecord.BundleIx, poeerr.FormatError)
	}
	bundleRecord := fs.index.Bundles[fileRecord.BundleIx]
	bundlePath := "/Bundles2/" + bundleRecord.Name + ".bundle.bin"

	payload, err := fs.readBundlePayload(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("poefs: load bundle for %s: %w", path, err)
	}

	start := fileRecord.Offset
	end := fileRecord.Offset + fileRecord.Size
	if int(end) > len(payload) {
		return nil, fmt.Errorf("poefs: %s: file range [%d,%d) exceeds bundle payload length %d: %w",
			path, start, end, len(payload), poeerr.FormatError)
	}
	out := make([]byte, fileRecord.Size)
	copy(out, payload[start:end])
	return out, nil
}

// readBundlePayload decompresses bundlePath's contents, consulting and then
// populating the optional bundle-payload cache.
func (fs *PoeFS) readBundlePayload(bundlePath string) ([]byte, error) {
	if cached, ok := fs.bundleCache.Get(bundlePath); ok {
		fs.log.Debug("bundle cache hit", "bundle", bundlePath)
		return cached, nil
	}

	header, compressed, err := fs.source.GetFile(bundlePath)
	if err != nil {
		return nil, err
	}
	if header == nil {
		return nil, fmt.Errorf("%s: %w", bundlePath, poeerr.NotFound)
	}
	payload, err := fs.decompress(header, compressed)
	if err != nil {
		return nil, err
	}

	if err := fs.bundleCache.Put(bundlePath, payload); err != nil {
		fs.log.Debug("bundle cache insert failed", "bundle", bundlePath, "error", err)
	}
	return payload, nil
}

// ReadDat fetches and decodes path as a dat table, consulting fs.datCache.
func (fs *PoeFS) ReadDat(path string) (*dat.DatFile, error) {
	if cached, ok := fs.datCache[path]; ok {
		return cached, nil
	}
	raw, err := fs.GetFile(path)
	if err != nil {
		return nil, err
	}
	df, err := dat.New(raw)
	if err != nil {
		return nil, fmt.Errorf("poefs: decode dat %s: %w", path, err)
	}
	fs.datCache[path] = df
	return df, nil
}

// ReadTxt fetches path, strips a leading UTF-16LE BOM, and decodes the
// remainder as UTF-16LE (lossy on unpaired surrogates), consulting
// fs.txtCache.
func (fs *PoeFS) ReadTxt(path string) (string, error) {
	if cached, ok := fs.txtCache[path]; ok {
		return cached, nil
	}
	raw, err := fs.GetFile(path)
	if err != nil {
		return "", err
	}
	body := raw
	if len(body) >= 2 && body[0] == 0xFF && body[1] == 0xFE {
		body = body[2:]
	}
	out, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(body)
	if err != nil {
		return "", fmt.Errorf("poefs: decode utf16le text %s: %w", path, err)
	}
	s := string(out)
	fs.txtCache[path] = s
	return s, nil
}

// ReadIT fetches and parses path as an it file, consulting fs.itCache.
func (fs *PoeFS) ReadIT(path string) (*it.ITFile, error) {
	if cached, ok := fs.itCache[path]; ok {
		return cached, nil
	}
	text, err := fs.ReadTxt(path)
	if err != nil {
		return nil, err
	}
	f, err := it.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("poefs: parse it %s: %w", path, err)
	}
	fs.itCache[path] = f
	return f, nil
}

// ReadITRecursive loads path and walks its extends chain, merging each
// parent per §4.8, until reaching "nothing". Cycles are detected by
// tracking the in-flight path set and fail with poeerr.CycleError.
func (fs *PoeFS) ReadITRecursive(path string) (*it.ITFile, error) {
	return fs.readITRecursive(path, make(map[string]struct{}))
}

func (fs *PoeFS) readITRecursive(path string, inFlight map[string]struct{}) (*it.ITFile, error) {
	if _, seen := inFlight[path]; seen {
		return nil, fmt.Errorf("poefs: %s: %w", path, poeerr.CycleError)
	}
	inFlight[path] = struct{}{}
	defer delete(inFlight, path)

	child, err := fs.ReadIT(path)
	if err != nil {
		return nil, err
	}
	if child.Extends == "nothing" {
		return child, nil
	}

	parentPath := strings.ToLower(child.Extends) + ".it"
	parent, err := fs.readITRecursive(parentPath, inFlight)
	if err != nil {
		return nil, err
	}
	return child.Merge(parent), nil
}
