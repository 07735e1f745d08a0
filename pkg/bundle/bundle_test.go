package bundle

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/poe-tool-dev/ggpkfs/pkg/poeerr"
)

func writeHeader(t *testing.T, buf *bytes.Buffer, h Header) {
	t.Helper()
	must := func(err error) {
		if err != nil {
			t.Fatalf("writeHeader: %v", err)
		}
	}
	must(binary.Write(buf, binary.LittleEndian, h.UncompressedSize))
	must(binary.Write(buf, binary.LittleEndian, h.TotalPayloadSize))
	must(binary.Write(buf, binary.LittleEndian, h.HeadSize))
	must(binary.Write(buf, binary.LittleEndian, h.Head.FirstFileEncode))
	must(binary.Write(buf, binary.LittleEndian, h.Head.Unk10))
	must(binary.Write(buf, binary.LittleEndian, h.Head.UncompressedSize64))
	must(binary.Write(buf, binary.LittleEndian, h.Head.TotalPayloadSize64))
	must(binary.Write(buf, binary.LittleEndian, h.Head.BlockCount))
	must(binary.Write(buf, binary.LittleEndian, h.Head.BlockGranularity))
	must(binary.Write(buf, binary.LittleEndian, h.Head.Unk28))
	must(binary.Write(buf, binary.LittleEndian, h.Head.BlockSizes))
}

func TestParseHeader_RoundTrip(t *testing.T) {
	want := Header{
		UncompressedSize: 100,
		TotalPayloadSize: 40,
		HeadSize:         48,
		Head: HeadPayload{
			FirstFileEncode:    1,
			Unk10:              0,
			UncompressedSize64: 100,
			TotalPayloadSize64: 40,
			BlockCount:         2,
			BlockGranularity:   60,
			Unk28:              [4]uint32{0, 0, 0, 0},
			BlockSizes:         []uint32{20, 20},
		},
	}

	var buf bytes.Buffer
	writeHeader(t, &buf, want)

	got, err := ParseHeader(&buf)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if got.Head.BlockCount != want.Head.BlockCount {
		t.Errorf("BlockCount = %d, want %d", got.Head.BlockCount, want.Head.BlockCount)
	}
	if len(got.Head.BlockSizes) != 2 || got.Head.BlockSizes[0] != 20 || got.Head.BlockSizes[1] != 20 {
		t.Errorf("BlockSizes = %v, want [20 20]", got.Head.BlockSizes)
	}
	if got.Head.UncompressedSize64 != 100 {
		t.Errorf("UncompressedSize64 = %d, want 100", got.Head.UncompressedSize64)
	}
}

func TestParseHeader_BlockSizeSumMismatch(t *testing.T) {
	h := Header{
		Head: HeadPayload{
			BlockCount:         2,
			BlockGranularity:   60,
			TotalPayloadSize64: 40,
			BlockSizes:         []uint32{10, 10}, // sums to 20, not 40
		},
	}
	var buf bytes.Buffer
	writeHeader(t, &buf, h)

	_, err := ParseHeader(&buf)
	if !errors.Is(err, poeerr.FormatError) {
		t.Fatalf("expected poeerr.FormatError, got %v", err)
	}
}

func TestParseHeader_TruncatedStream(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{1, 2, 3}) // far too short for even the leading uint32s
	if _, err := ParseHeader(&buf); err == nil {
		t.Fatal("expected error parsing a truncated header, got nil")
	}
}
