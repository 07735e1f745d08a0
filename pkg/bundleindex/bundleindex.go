// Package bundleindex parses the decompressed root index bundle
// ("/Bundles2/_.index.bin") into its three record arrays and the embedded
// path-rep heap, and expands that heap into fully-qualified logical paths
// hashed the same way FileRecord keys are.
package bundleindex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/poe-tool-dev/ggpkfs/pkg/bundle"
	"github.com/poe-tool-dev/ggpkfs/pkg/poeerr"
	murmurhash "github.com/rryqszq4/go-murmurhash"
)

// murmur64ASeed is the keyed seed every logical path is hashed with.
const murmur64ASeed uint32 = 0x1337B33F

// BundleRecord names one data bundle file referenced by FileRecord.BundleIx.
type BundleRecord struct {
	Name             string
	UncompressedSize uint32
}

// FileRecord locates one file's content inside a bundle.
type FileRecord struct {
	Hash     uint64
	BundleIx uint32
	Offset   uint32
	Size     uint32
}

// PathRep is one slice of the path-rep heap, decoded by ExpandPaths into
// zero or more fully-qualified paths.
type PathRep struct {
	Hash          uint64
	PayloadOffset uint32
	PayloadSize   uint32
	// RecursiveSize is retained and parsed but never consulted by path
	// expansion, per spec.md §9's explicit ambiguity note.
	RecursiveSize uint32
}

// Index is the fully parsed bundle index: the three record arrays plus the
// raw path-rep heap bytes (ExpandPaths is called per-PathRep against this
// shared buffer).
type Index struct {
	Bundles     []BundleRecord
	Files       []FileRecord
	PathReps    []PathRep
	PathRepData []byte
}

const maxRecordCount = 1 << 24

// Parse reads bundle_count BundleRecords, then files_count FileRecords,
// then path_rep_count PathReps, then a nested PathRepBundle: a regular
// bundle header whose decompressed payload is the path-rep heap, per
// bundle_index.rs's `path_rep_bundle = Bundle::parse(reader)` coupling.
func Parse(r io.Reader) (*Index, error) {
	return parse(r, decompressPathRepBundle)
}

// decompressPathRepBundle is Parse's production decompressor; tests swap
// it for a passthrough stub to avoid depending on the native Oodle codec,
// the same dependency-injection pattern pkg/poefs uses around
// bundle.Header.Decompress.
func decompressPathRepBundle(h *bundle.Header, r io.Reader) ([]byte, error) {
	return h.Decompress(r)
}

func parse(r io.Reader, decompress func(*bundle.Header, io.Reader) ([]byte, error)) (*Index, error) {
	idx := &Index{}

	var bundleCount uint32
	if err := binary.Read(r, binary.LittleEndian, &bundleCount); err != nil {
		return nil, fmt.Errorf("bundleindex: read bundle_count: %w: %w", poeerr.FormatError, err)
	}
	if bundleCount > maxRecordCount {
		return nil, fmt.Errorf("bundleindex: bundle_count %d exceeds sanity limit: %w", bundleCount, poeerr.FormatError)
	}
	idx.Bundles = make([]BundleRecord, bundleCount)
	for i := range idx.Bundles {
		var nameLen uint32
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return nil, fmt.Errorf("bundleindex: read bundle %d name_len: %w: %w", i, poeerr.FormatError, err)
		}
		nameBytes := make([]byte, nameLen)
		if _, err := io.ReadFull(r, nameBytes); err != nil {
			return nil, fmt.Errorf("bundleindex: read bundle %d name: %w: %w", i, poeerr.FormatError, err)
		}
		var uncompressedSize uint32
		if err := binary.Read(r, binary.LittleEndian, &uncompressedSize); err != nil {
			return nil, fmt.Errorf("bundleindex: read bundle %d uncompressed_size: %w: %w", i, poeerr.FormatError, err)
		}
		idx.Bundles[i] = BundleRecord{Name: string(nameBytes), UncompressedSize: uncompressedSize}
	}

	var filesCount uint32
	if err := binary.Read(r, binary.LittleEndian, &filesCount); err != nil {
		return nil, fmt.Errorf("bundleindex: read files_count: %w: %w", poeerr.FormatError, err)
	}
	if filesCount > maxRecordCount {
		return nil, fmt.Errorf("bundleindex: files_count %d exceeds sanity limit: %w", filesCount, poeerr.FormatError)
	}
	idx.Files = make([]FileRecord, filesCount)
	if filesCount > 0 {
		if err := binary.Read(r, binary.LittleEndian, idx.Files); err != nil {
			return nil, fmt.Errorf("bundleindex: read %d file records: %w: %w", filesCount, poeerr.FormatError, err)
		}
	}
	for i, fr := range idx.Files {
		if fr.BundleIx >= bundleCount {
			return nil, fmt.Errorf("bundleindex: file %d bundle_ix %d out of range (bundle_count=%d): %w",
				i, fr.BundleIx, bundleCount, poeerr.FormatError)
		}
	}

	var pathRepCount uint32
	if err := binary.Read(r, binary.LittleEndian, &pathRepCount); err != nil {
		return nil, fmt.Errorf("bundleindex: read path_rep_count: %w: %w", poeerr.FormatError, err)
	}
	if pathRepCount > maxRecordCount {
		return nil, fmt.Errorf("bundleindex: path_rep_count %d exceeds sanity limit: %w", pathRepCount, poeerr.FormatError)
	}
	idx.PathReps = make([]PathRep, pathRepCount)
	if pathRepCount > 0 {
		if err := binary.Read(r, binary.LittleEndian, idx.PathReps); err != nil {
			return nil, fmt.Errorf("bundleindex: read %d path reps: %w: %w", pathRepCount, poeerr.FormatError, err)
		}
	}

	pathRepHeader, err := bundle.ParseHeader(r)
	if err != nil {
		return nil, fmt.Errorf("bundleindex: parse path-rep bundle header: %w", err)
	}
	heap, err := decompress(pathRepHeader, r)
	if err != nil {
		return nil, fmt.Errorf("bundleindex: decompress path-rep bundle: %w", err)
	}
	idx.PathRepData = heap

	return idx, nil
}

// ExpandPaths decodes one PathRep's slice of pathRepData into the full list
// of fully-qualified logical paths it encodes, per spec.md §4.5's prefix-
// dictionary state machine.
func ExpandPaths(pathRepData []byte, rep PathRep) ([]string, error) {
	end := rep.PayloadOffset + rep.PayloadSize
	if int(end) > len(pathRepData) {
		return nil, fmt.Errorf("bundleindex: path rep [%d, %d) out of bounds of %d-byte heap: %w",
			rep.PayloadOffset, end, len(pathRepData), poeerr.FormatError)
	}
	payload := pathRepData[rep.PayloadOffset:end]
	r := bytes.NewReader(payload)

	var base bool
	var temp []string
	var paths []string

	for r.Len() > 4 {
		var index uint32
		if err := binary.Read(r, binary.LittleEndian, &index); err != nil {
			return nil, fmt.Errorf("bundleindex: read path index token: %w: %w", poeerr.FormatError, err)
		}
		if index == 0 {
			wasBase := base
			base = !base
			if !wasBase && base {
				temp = nil
			}
			continue
		}
		index--

		frag, err := readNUL(r)
		if err != nil {
			return nil, fmt.Errorf("bundleindex: read path fragment: %w: %w", poeerr.FormatError, err)
		}

		var s string
		if int(index) < len(temp) {
			s = temp[index] + frag
		} else {
			s = frag
		}

		if base {
			temp = append(temp, s)
		} else {
			paths = append(paths, s)
		}
	}

	return paths, nil
}

func readNUL(r *bytes.Reader) (string, error) {
	var buf bytes.Buffer
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == 0 {
			return buf.String(), nil
		}
		buf.WriteByte(b)
	}
}

// HashPath returns the keyed Murmur64A hash of path used as the FileRecord
// lookup key.
func HashPath(path string) uint64 {
	return murmurhash.MurmurHash64A([]byte(path), murmur64ASeed)
}
