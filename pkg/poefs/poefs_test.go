package poefs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/poe-tool-dev/ggpkfs/pkg/bundle"
	"github.com/poe-tool-dev/ggpkfs/pkg/bundleindex"
	"github.com/poe-tool-dev/ggpkfs/pkg/it"
	"github.com/poe-tool-dev/ggpkfs/pkg/poeerr"
)

func mustParseIT(t *testing.T, text string) *it.ITFile {
	t.Helper()
	f, err := it.Parse(text)
	if err != nil {
		t.Fatalf("parse test it file: %v", err)
	}
	return f
}

// fakeSource serves raw bytes for a fixed set of paths, tagged with a
// header whose declared sizes match the stored content. It never actually
// runs those bytes through Oodle: real Oodle streams can't be fabricated
// without a working native codec and a captured compressed fixture (the
// teacher's own TestOodleDLL_Acquisition and
// TestBundle_ReadFull_OodleCompressed_Leviathan_Example hit the same wall
// and skip rather than fake it). Tests in this file exercise every other
// seam of PoeFS — path resolution, caching, offset slicing, extends
// handling — through newWithDecompressor's pass-through stub instead,
// which substitutes for real Header.Decompress the way a test double
// substitutes for any other expensive external dependency.
type fakeSource struct {
	files map[string][]byte
}

func noopHeaderAndPayload(data []byte) (*bundle.Header, []byte) {
	h := &bundle.Header{
		UncompressedSize: uint32(len(data)),
		TotalPayloadSize: uint32(len(data)),
		HeadSize:         48,
		Head: bundle.HeadPayload{
			BlockCount:         1,
			BlockGranularity:   uint32(len(data)),
			UncompressedSize64: uint64(len(data)),
			TotalPayloadSize64: uint64(len(data)),
			BlockSizes:         []uint32{uint32(len(data))},
		},
	}
	return h, data
}

func (s *fakeSource) GetFile(path string) (*bundle.Header, []byte, error) {
	data, ok := s.files[path]
	if !ok {
		return nil, nil, nil
	}
	h, payload := noopHeaderAndPayload(data)
	return h, payload, nil
}

// passthroughDecompress stands in for real Header.Decompress: fakeSource
// never actually compresses anything, so "decompressing" its payload is
// just returning it unchanged.
func passthroughDecompress(_ *bundle.Header, compressed []byte) ([]byte, error) {
	return compressed, nil
}

func newTestPoeFS(t *testing.T, src *fakeSource) *PoeFS {
	t.Helper()
	fs, err := newWithDecompressor(src, nil, passthroughDecompress)
	if err != nil {
		t.Fatalf("newWithDecompressor: %v", err)
	}
	return fs
}

func buildIndexBytes(t *testing.T, bundleName string, fileHash uint64, fileContent []byte, pathBytes []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := func(v any) {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatalf("encode index field: %v", err)
		}
	}

	// bundle_count=1, one BundleRecord
	w(uint32(1))
	w(uint32(len(bundleName)))
	buf.WriteString(bundleName)
	w(uint32(len(fileContent)))

	// files_count=1, one FileRecord{hash, bundle_ix, offset, size}
	w(uint32(1))
	w(fileHash)
	w(uint32(0))
	w(uint32(0))
	w(uint32(len(fileContent)))

	// path_rep_count=1, one PathRep covering the whole pathBytes slice
	w(uint32(1))
	w(fileHash) // PathRep.Hash isn't consulted by ExpandPaths; reuse for brevity
	w(uint32(0))
	w(uint32(len(pathBytes)))
	w(uint32(0)) // recursive_size, unused

	buf.Write(pathBytes)
	return buf.Bytes()
}

// encodePathFragment emits a single "index=1, fragment" pair with no
// index==0 dictionary toggle, which ExpandPaths reads as one whole
// (non-dictionary) path.
func encodePathFragment(t *testing.T, path string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := func(v any) {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatalf("encode path fragment: %v", err)
		}
	}
	w(uint32(1)) // index=1 -> decremented to 0, not in temp (empty) -> s = frag
	buf.WriteString(path)
	buf.WriteByte(0)
	return buf.Bytes()
}

func TestPoeFS_GetFile(t *testing.T) {
	const path = "/Bundles2/a.txt"
	content := []byte("hello world")
	hash := bundleindex.HashPath(path)

	pathBytes := encodePathFragment(t, path)
	indexBytes := buildIndexBytes(t, "a", hash, content, pathBytes)

	src := &fakeSource{files: map[string][]byte{
		"/Bundles2/_.index.bin": indexBytes,
		"/Bundles2/a.bundle.bin": content,
	}}

	fs := newTestPoeFS(t, src)

	got, err := fs.GetFile(path)
	if err != nil {
		t.Fatalf("GetFile(%q): %v", path, err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("GetFile(%q) = %q, want %q", path, got, content)
	}
}

func TestPoeFS_GetFile_NotFound(t *testing.T) {
	indexBytes := buildIndexBytes(t, "a", 0, nil, nil)
	src := &fakeSource{files: map[string][]byte{
		"/Bundles2/_.index.bin": indexBytes,
	}}
	fs := newTestPoeFS(t, src)

	_, err := fs.GetFile("/does/not/exist")
	if !errors.Is(err, poeerr.NotFound) {
		t.Fatalf("GetFile on unknown path: got %v, want poeerr.NotFound", err)
	}
}

func TestPoeFS_ReadITRecursive_DetectsCycle(t *testing.T) {
	childIT := "version 2\nextends \"child\"\nBase\n{\n\ttag = \"x\"\n}\n"
	src := &fakeSource{files: map[string][]byte{
		"/Bundles2/_.index.bin": buildIndexBytes(t, "a", 0, nil, nil),
	}}
	fs := newTestPoeFS(t, src)
	fs.itCache["child.it"] = mustParseIT(t, childIT)

	if _, err := fs.ReadITRecursive("child.it"); err == nil {
		t.Fatal("expected a cycle error")
	} else if !errors.Is(err, poeerr.CycleError) {
		t.Fatalf("expected poeerr.CycleError, got %v", err)
	}
}
