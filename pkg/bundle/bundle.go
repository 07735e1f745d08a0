// Package bundle implements the chunked, Oodle-compressed ".bundle.bin"
// container format: a header declaring per-block compressed sizes followed
// by the compressed payload itself.
package bundle

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/poe-tool-dev/ggpkfs/internal/oodlecodec"
	"github.com/poe-tool-dev/ggpkfs/pkg/poeerr"
)

// ParseHeader reads a bundle header from r: the three leading uint32s, then
// HeadPayload's fixed prefix, then BlockCount block sizes.
func ParseHeader(r io.Reader) (*Header, error) {
	h := &Header{}
	if err := binary.Read(r, binary.LittleEndian, &h.UncompressedSize); err != nil {
		return nil, fmt.Errorf("bundle: read uncompressed_size: %w: %w", poeerr.FormatError, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &h.TotalPayloadSize); err != nil {
		return nil, fmt.Errorf("bundle: read total_payload_size: %w: %w", poeerr.FormatError, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &h.HeadSize); err != nil {
		return nil, fmt.Errorf("bundle: read head_size: %w: %w", poeerr.FormatError, err)
	}

	var fixed headPayloadFixed
	if err := binary.Read(r, binary.LittleEndian, &fixed); err != nil {
		return nil, fmt.Errorf("bundle: read head payload: %w: %w", poeerr.FormatError, err)
	}
	if fixed.BlockCount > maxBlockCount {
		return nil, fmt.Errorf("bundle: block_count %d exceeds sanity limit: %w", fixed.BlockCount, poeerr.FormatError)
	}

	blockSizes := make([]uint32, fixed.BlockCount)
	if fixed.BlockCount > 0 {
		if err := binary.Read(r, binary.LittleEndian, blockSizes); err != nil {
			return nil, fmt.Errorf("bundle: read %d block sizes: %w: %w", fixed.BlockCount, poeerr.FormatError, err)
		}
	}

	h.Head = HeadPayload{
		FirstFileEncode:    fixed.FirstFileEncode,
		Unk10:              fixed.Unk10,
		UncompressedSize64: fixed.UncompressedSize64,
		TotalPayloadSize64: fixed.TotalPayloadSize64,
		BlockCount:         fixed.BlockCount,
		BlockGranularity:   fixed.BlockGranularity,
		Unk28:              fixed.Unk28,
		BlockSizes:         blockSizes,
	}

	if uint32(len(h.Head.BlockSizes)) != h.Head.BlockCount {
		return nil, fmt.Errorf("bundle: block_sizes length %d does not match block_count %d: %w",
			len(h.Head.BlockSizes), h.Head.BlockCount, poeerr.FormatError)
	}

	var sum uint64
	for _, sz := range h.Head.BlockSizes {
		sum += uint64(sz)
	}
	if sum != h.Head.TotalPayloadSize64 {
		return nil, fmt.Errorf("bundle: sum(block_sizes)=%d does not match total_payload_size_64=%d: %w",
			sum, h.Head.TotalPayloadSize64, poeerr.FormatError)
	}

	return h, nil
}

// Decompress reads exactly h.Head.TotalPayloadSize64 payload bytes from r's
// current position and decompresses them block by block, returning a
// buffer of exactly h.Head.UncompressedSize64 bytes. Failure of any single
// block aborts the whole call.
func (h *Header) Decompress(r io.Reader) ([]byte, error) {
	payload := make([]byte, h.Head.TotalPayloadSize64)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("bundle: read %d payload bytes: %w: %w", len(payload), poeerr.FormatError, err)
	}

	out := make([]byte, h.Head.UncompressedSize64)
	granularity := uint64(h.Head.BlockGranularity)

	lastBlockSize := h.Head.UncompressedSize64 % granularity
	if lastBlockSize == 0 {
		lastBlockSize = granularity
	}

	var srcOff, dstOff uint64
	for i, blockSize := range h.Head.BlockSizes {
		uncompressedSize := granularity
		if i == len(h.Head.BlockSizes)-1 {
			uncompressedSize = lastBlockSize
		}

		src := payload[srcOff : srcOff+uint64(blockSize)]
		dst := out[dstOff : dstOff+uncompressedSize]

		decoded, err := oodlecodec.Decompress(src, int(uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("bundle: decompress block %d: %w", i, err)
		}
		copy(dst, decoded)

		srcOff += uint64(blockSize)
		dstOff += uncompressedSize
	}

	return out, nil
}
