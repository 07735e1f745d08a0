package poesource

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/poe-tool-dev/ggpkfs/pkg/bundle"
	"github.com/poe-tool-dev/ggpkfs/pkg/ggpk"
	"github.com/poe-tool-dev/ggpkfs/pkg/poeerr"
)

// LocalSource reads bundle-wrapped payloads out of a GGPK file opened once
// and kept open for the lifetime of the source.
type LocalSource struct {
	file *os.File
	root *ggpk.Entry

	mu sync.Mutex // serializes the single shared file cursor across calls
}

// OpenLocal opens the GGPK file at ggpkPath and parses its root record.
func OpenLocal(ggpkPath string) (*LocalSource, error) {
	f, err := os.Open(ggpkPath)
	if err != nil {
		return nil, fmt.Errorf("poesource: open ggpk %s: %w", ggpkPath, err)
	}
	root, err := ggpk.ParseEntry(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("poesource: parse ggpk root in %s: %w", ggpkPath, err)
	}
	if root.Tag != ggpk.GGPKRecordTag {
		f.Close()
		return nil, fmt.Errorf("poesource: %s does not start with a GGPK record: %w", ggpkPath, poeerr.FormatError)
	}
	return &LocalSource{file: f, root: root}, nil
}

// Close releases the underlying GGPK file handle.
func (s *LocalSource) Close() error {
	return s.file.Close()
}

// GetFile splits path on "/" (keeping the leading empty component from a
// "/"-prefixed path), descends the GGPK tree, and on a match reads the
// bundle header plus exactly TotalPayloadSize payload bytes immediately
// following it.
func (s *LocalSource) GetFile(path string) (*bundle.Header, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	components := strings.Split(path, "/")

	entry, err := s.root.Find(s.file, components)
	if err != nil {
		return nil, nil, fmt.Errorf("poesource: find %q in ggpk: %w", path, err)
	}
	if entry == nil {
		return nil, nil, nil
	}

	header, err := bundle.ParseHeader(s.file)
	if err != nil {
		return nil, nil, fmt.Errorf("poesource: parse bundle header for %q: %w", path, err)
	}
	payload := make([]byte, header.TotalPayloadSize)
	if _, err := io.ReadFull(s.file, payload); err != nil {
		return nil, nil, fmt.Errorf("poesource: read payload for %q: %w", path, err)
	}
	return header, payload, nil
}
