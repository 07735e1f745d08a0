// Package oodlecodec wraps the opaque Oodle block-decode primitive used by
// the bundle codec. It does no compressor selection of its own; the bundle
// codec calls Decompress per block regardless of the header's advertised
// compressor id.
package oodlecodec

import (
	"fmt"

	"github.com/new-world-tools/go-oodle"
	"github.com/poe-tool-dev/ggpkfs/pkg/poeerr"
)

// Decompress expands src into exactly uncompressedLen bytes. Any failure
// from the underlying library is reported as poeerr.CodecError.
func Decompress(src []byte, uncompressedLen int) ([]byte, error) {
	out, err := oodle.Decompress(src, int64(uncompressedLen))
	if err != nil {
		return nil, fmt.Errorf("oodlecodec: decompress %d bytes into %d: %w: %w", len(src), uncompressedLen, poeerr.CodecError, err)
	}
	if len(out) != uncompressedLen {
		return nil, fmt.Errorf("oodlecodec: decompressor produced %d bytes, wanted %d: %w", len(out), uncompressedLen, poeerr.CodecError)
	}
	return out, nil
}
