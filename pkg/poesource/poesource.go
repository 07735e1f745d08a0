// Package poesource implements the two FileSource variants that a VFS
// façade can be built on: a GGPK-backed Local source and an HTTP-backed
// Online source. Both resolve a logical path to a parsed bundle header plus
// its still-compressed payload, or (nil, nil, nil) when the path is absent.
package poesource

import "github.com/poe-tool-dev/ggpkfs/pkg/bundle"

// FileSource is the capability interface the VFS façade depends on. It is
// intentionally small: no deeper hierarchy than Local vs Online is
// warranted.
type FileSource interface {
	// GetFile resolves path to a bundle header and its compressed payload
	// bytes. A nil header, nil payload, and nil error together mean "not
	// found" — callers distinguish this from a real poeerr.NotFound by
	// checking for the nil triple, matching the source contract of
	// spec.md §4.4.
	GetFile(path string) (*bundle.Header, []byte, error)
}
