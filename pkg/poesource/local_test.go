package poesource

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/poe-tool-dev/ggpkfs/pkg/bundle"
	"github.com/poe-tool-dev/ggpkfs/pkg/ggpk"
)

// buildTestGGPK writes a minimal GGPK containing a root directory with a
// single file entry "/Bundles2/_.index.bin" whose payload is a one-block
// bundle wrapping a 4-byte buffer, mirroring the nesting a real source
// adapter walks: GGPK -> PDIR "" -> PDIR "Bundles2" -> FILE "_.index.bin".
func buildTestGGPK(t *testing.T) string {
	t.Helper()

	fileContent := []byte{0xCA, 0xFE, 0xBA, 0xBE}
	header := bundle.Header{
		UncompressedSize: uint32(len(fileContent)),
		TotalPayloadSize: uint32(len(fileContent)),
		HeadSize:         48,
		Head: bundle.HeadPayload{
			BlockCount:         1,
			BlockGranularity:   uint32(len(fileContent)),
			UncompressedSize64: uint64(len(fileContent)),
			TotalPayloadSize64: uint64(len(fileContent)),
			BlockSizes:         []uint32{uint32(len(fileContent))},
		},
	}
	var bundleBuf bytes.Buffer
	write := func(v any) {
		if err := binary.Write(&bundleBuf, binary.LittleEndian, v); err != nil {
			t.Fatalf("encode bundle field: %v", err)
		}
	}
	write(header.UncompressedSize)
	write(header.TotalPayloadSize)
	write(header.HeadSize)
	write(header.Head.FirstFileEncode)
	write(header.Head.Unk10)
	write(header.Head.UncompressedSize64)
	write(header.Head.TotalPayloadSize64)
	write(header.Head.BlockCount)
	write(header.Head.BlockGranularity)
	write(header.Head.Unk28)
	write(header.Head.BlockSizes)
	bundleBuf.Write(fileContent)
	filePayload := bundleBuf.Bytes()

	fileName := "_.index.bin"
	fileNameChars := uint32(len(fileName) + 1)
	fileRecordLen := uint32(4+4+4+ggpk.HashSize) + fileNameChars*2 + uint32(len(filePayload))

	bundles2Name := "Bundles2"
	bundles2NameChars := uint32(len(bundles2Name) + 1)

	rootName := ""
	rootNameChars := uint32(len(rootName) + 1)

	// Offsets, computed forward: GGPK(28) -> root PDIR -> Bundles2 PDIR -> FILE
	const ggpkRecordLen = 28
	rootDirLen := uint32(4+4+4+4+ggpk.HashSize) + rootNameChars*2 + 12 // one child entry
	bundles2DirLen := uint32(4+4+4+4+ggpk.HashSize) + bundles2NameChars*2 + 12

	offsetRootDir := int64(ggpkRecordLen)
	offsetBundles2Dir := offsetRootDir + int64(rootDirLen)
	offsetFile := offsetBundles2Dir + int64(bundles2DirLen)

	var buf bytes.Buffer
	w := func(v any) {
		if err := binary.Write(&buf, ggpk.GGPKEndian, v); err != nil {
			t.Fatalf("encode ggpk field: %v", err)
		}
	}
	writeUTF16 := func(s string) {
		for _, r := range s {
			w(uint16(r))
		}
		w(uint16(0))
	}

	// GGPK record: children[0] = root dir, children[1] = root dir again
	// (no separate free list needed for this fixture).
	w(uint32(ggpkRecordLen))
	w(uint32(ggpk.GGPKRecordTag))
	w(uint32(3))
	w([2]uint64{uint64(offsetRootDir), uint64(offsetRootDir)})

	// Root PDIR "", one child: Bundles2
	w(rootDirLen)
	w(uint32(ggpk.PDirRecordTag))
	w(rootNameChars)
	w(uint32(1))
	var rootHash [ggpk.HashSize]byte
	buf.Write(rootHash[:])
	writeUTF16(rootName)
	w(int32(0))
	w(uint64(offsetBundles2Dir))

	// Bundles2 PDIR, one child: _.index.bin
	w(bundles2DirLen)
	w(uint32(ggpk.PDirRecordTag))
	w(bundles2NameChars)
	w(uint32(1))
	var bundles2Hash [ggpk.HashSize]byte
	buf.Write(bundles2Hash[:])
	writeUTF16(bundles2Name)
	w(int32(0))
	w(uint64(offsetFile))

	// FILE _.index.bin
	w(fileRecordLen)
	w(uint32(ggpk.FileRecordTag))
	w(fileNameChars)
	var fileHash [ggpk.HashSize]byte
	buf.Write(fileHash[:])
	writeUTF16(fileName)
	buf.Write(filePayload)

	dir := t.TempDir()
	path := filepath.Join(dir, "test.ggpk")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write test ggpk: %v", err)
	}
	return path
}

func TestLocalSource_GetFile_Found(t *testing.T) {
	path := buildTestGGPK(t)
	src, err := OpenLocal(path)
	if err != nil {
		t.Fatalf("OpenLocal: %v", err)
	}
	defer src.Close()

	header, payload, err := src.GetFile("/Bundles2/_.index.bin")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if header == nil {
		t.Fatal("GetFile returned nil header for a present path")
	}
	if header.Head.UncompressedSize64 != 4 {
		t.Errorf("UncompressedSize64 = %d, want 4", header.Head.UncompressedSize64)
	}
	if !bytes.Equal(payload, []byte{0xCA, 0xFE, 0xBA, 0xBE}) {
		t.Errorf("payload = %v, want [CA FE BA BE]", payload)
	}
}

func TestLocalSource_GetFile_NotFound(t *testing.T) {
	path := buildTestGGPK(t)
	src, err := OpenLocal(path)
	if err != nil {
		t.Fatalf("OpenLocal: %v", err)
	}
	defer src.Close()

	header, payload, err := src.GetFile("/Bundles2/missing.bundle.bin")
	if err != nil {
		t.Fatalf("GetFile: unexpected error %v", err)
	}
	if header != nil || payload != nil {
		t.Fatalf("GetFile on missing path = (%v, %v), want (nil, nil)", header, payload)
	}
}
