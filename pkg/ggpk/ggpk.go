// Package ggpk parses the legacy GGPK container: a tagged-record tree
// (GGPK/PDIR/FILE/FREE) addressed by byte offsets inside a single seekable
// file, and resolves path components to file payload offsets.
package ggpk

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/poe-tool-dev/ggpkfs/pkg/poeerr"
	"golang.org/x/text/encoding/unicode"
)

// EntryTag identifies which of the four record shapes an Entry carries.
type EntryTag uint32

const (
	GGPKRecordTag EntryTag = 0x4B504747 // "GGPK"
	PDirRecordTag EntryTag = 0x52494450 // "PDIR"
	FileRecordTag EntryTag = 0x454C4946 // "FILE"
	FreeRecordTag EntryTag = 0x45455246 // "FREE"
)

// GGPKEndian is the byte order of every multi-byte field in the container.
var GGPKEndian = binary.LittleEndian

// HashSize is the width of the SHA-256 digest stored on PDIR/FILE entries.
const HashSize = 32

// DirEntry is one child reference inside a PDIR's entry table.
type DirEntry struct {
	NameHash int32
	Offset   uint64
}

// GGPKData is the root record's body: a version tag and two child offsets
// (root PDIR, free list head).
type GGPKData struct {
	Version  uint32
	Children [2]uint64
}

// DirData is a directory record's body.
type DirData struct {
	NameLen  uint32
	Total    uint32
	SHA256   [HashSize]byte
	Name     string
	Children []DirEntry
}

// FileData is a file record's header fields; the payload bytes that follow
// the name are not read by ParseEntry and stay in the stream for the caller.
type FileData struct {
	NameLen uint32
	SHA256  [HashSize]byte
	Name    string
}

// FreeData carries no payload of interest.
type FreeData struct{}

// Entry is one tagged record in the container.
type Entry struct {
	Length uint32
	Tag    EntryTag

	GGPK *GGPKData
	Dir  *DirData
	File *FileData
	Free *FreeData

	// offset is this entry's own byte position, reported by Offset.
	offset int64
}

// Offset returns the byte offset this entry was parsed from.
func (e *Entry) Offset() int64 { return e.offset }

// ParseEntry reads one tagged record starting at the reader's current
// position. r must also support Seek, which ParseEntry uses to record the
// entry's own offset.
func ParseEntry(r io.ReadSeeker) (*Entry, error) {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("ggpk: locate entry offset: %w", err)
	}

	e := &Entry{offset: pos}
	if err := binary.Read(r, GGPKEndian, &e.Length); err != nil {
		return nil, fmt.Errorf("ggpk: read entry length at %d: %w: %w", pos, poeerr.FormatError, err)
	}
	var tag uint32
	if err := binary.Read(r, GGPKEndian, &tag); err != nil {
		return nil, fmt.Errorf("ggpk: read entry tag at %d: %w: %w", pos, poeerr.FormatError, err)
	}
	e.Tag = EntryTag(tag)

	switch e.Tag {
	case GGPKRecordTag:
		var body GGPKData
		if err := binary.Read(r, GGPKEndian, &body.Version); err != nil {
			return nil, fmt.Errorf("ggpk: read GGPK version at %d: %w: %w", pos, poeerr.FormatError, err)
		}
		if err := binary.Read(r, GGPKEndian, &body.Children); err != nil {
			return nil, fmt.Errorf("ggpk: read GGPK children at %d: %w: %w", pos, poeerr.FormatError, err)
		}
		e.GGPK = &body

	case PDirRecordTag:
		body, err := readDirData(r, pos)
		if err != nil {
			return nil, err
		}
		e.Dir = body

	case FileRecordTag:
		body, err := readFileData(r, pos)
		if err != nil {
			return nil, err
		}
		e.File = body

	case FreeRecordTag:
		e.Free = &FreeData{}

	default:
		return nil, fmt.Errorf("ggpk: unknown tag %#x at offset %d: %w", tag, pos, poeerr.FormatError)
	}

	return e, nil
}

func readDirData(r io.Reader, pos int64) (*DirData, error) {
	d := &DirData{}
	if err := binary.Read(r, GGPKEndian, &d.NameLen); err != nil {
		return nil, fmt.Errorf("ggpk: read PDIR name_len at %d: %w: %w", pos, poeerr.FormatError, err)
	}
	if err := binary.Read(r, GGPKEndian, &d.Total); err != nil {
		return nil, fmt.Errorf("ggpk: read PDIR total at %d: %w: %w", pos, poeerr.FormatError, err)
	}
	if _, err := io.ReadFull(r, d.SHA256[:]); err != nil {
		return nil, fmt.Errorf("ggpk: read PDIR sha256 at %d: %w: %w", pos, poeerr.FormatError, err)
	}
	name, err := readUTF16Name(r, d.NameLen)
	if err != nil {
		return nil, fmt.Errorf("ggpk: read PDIR name at %d: %w", pos, err)
	}
	d.Name = name

	d.Children = make([]DirEntry, d.Total)
	for i := range d.Children {
		if err := binary.Read(r, GGPKEndian, &d.Children[i].NameHash); err != nil {
			return nil, fmt.Errorf("ggpk: read PDIR child %d name_hash at %d: %w: %w", i, pos, poeerr.FormatError, err)
		}
		if err := binary.Read(r, GGPKEndian, &d.Children[i].Offset); err != nil {
			return nil, fmt.Errorf("ggpk: read PDIR child %d offset at %d: %w: %w", i, pos, poeerr.FormatError, err)
		}
	}
	return d, nil
}

func readFileData(r io.Reader, pos int64) (*FileData, error) {
	f := &FileData{}
	if err := binary.Read(r, GGPKEndian, &f.NameLen); err != nil {
		return nil, fmt.Errorf("ggpk: read FILE name_len at %d: %w: %w", pos, poeerr.FormatError, err)
	}
	if _, err := io.ReadFull(r, f.SHA256[:]); err != nil {
		return nil, fmt.Errorf("ggpk: read FILE sha256 at %d: %w: %w", pos, poeerr.FormatError, err)
	}
	name, err := readUTF16Name(r, f.NameLen)
	if err != nil {
		return nil, fmt.Errorf("ggpk: read FILE name at %d: %w", pos, err)
	}
	f.Name = name
	// The remaining data_len = length - 4 - 4 - 4 - 32 - name_len*2 bytes
	// are the file payload itself, read by the caller (a source adapter)
	// once it has located this entry, not buffered here.
	return f, nil
}

// readUTF16Name decodes nameLenChars UTF-16LE code units (including the
// trailing NUL) and returns the string with the NUL trimmed.
func readUTF16Name(r io.Reader, nameLenChars uint32) (string, error) {
	if nameLenChars == 0 {
		return "", nil
	}
	raw := make([]byte, nameLenChars*2)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", fmt.Errorf("%w: %w", poeerr.FormatError, err)
	}
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := dec.Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode utf16le name: %w: %w", poeerr.FormatError, err)
	}
	s := string(out)
	for len(s) > 0 && s[len(s)-1] == 0 {
		s = s[:len(s)-1]
	}
	return s, nil
}

// Find performs depth-first descent from a GGPK record for the given path
// components, including the leading empty component a caller gets from
// splitting a "/"-prefixed path. For a GGPK record both children are
// visited without consuming a component. For a PDIR the first component
// must equal its Name (the root PDIR's Name is the empty string, matching
// that leading empty component); remaining components descend into its
// children, tried in stored order (no sorting). The first matching FILE
// entry is returned with r positioned immediately after its header, ready
// for a source adapter to read the file payload or a following bundle
// header.
func (e *Entry) Find(r io.ReadSeeker, components []string) (*Entry, error) {
	switch e.Tag {
	case GGPKRecordTag:
		for _, childOffset := range e.GGPK.Children {
			if _, err := r.Seek(int64(childOffset), io.SeekStart); err != nil {
				return nil, fmt.Errorf("ggpk: seek to child at %d: %w", childOffset, err)
			}
			child, err := ParseEntry(r)
			if err != nil {
				return nil, err
			}
			found, err := child.Find(r, components)
			if err != nil {
				return nil, err
			}
			if found != nil {
				return found, nil
			}
		}
		return nil, nil

	case PDirRecordTag:
		if len(components) == 0 {
			return nil, nil
		}
		if e.Dir.Name != components[0] {
			return nil, nil
		}
		rest := components[1:]
		if len(rest) == 0 {
			return nil, nil
		}
		for _, child := range e.Dir.Children {
			if _, err := r.Seek(int64(child.Offset), io.SeekStart); err != nil {
				return nil, fmt.Errorf("ggpk: seek to child at %d: %w", child.Offset, err)
			}
			childEntry, err := ParseEntry(r)
			if err != nil {
				return nil, err
			}
			found, err := childEntry.Find(r, rest)
			if err != nil {
				return nil, err
			}
			if found != nil {
				return found, nil
			}
		}
		return nil, nil

	case FileRecordTag:
		if len(components) != 1 || e.File.Name != components[0] {
			return nil, nil
		}
		return e, nil

	case FreeRecordTag:
		return nil, nil

	default:
		return nil, fmt.Errorf("ggpk: unexpected tag %#x during traversal: %w", e.Tag, poeerr.FormatError)
	}
}
