// Package poeerr defines the flat error taxonomy shared by every layer of
// the archive/VFS stack. Lower layers wrap one of the sentinels below with
// fmt.Errorf("...: %w", ...); callers test with errors.Is.
package poeerr

import "errors"

var (
	// FormatError marks a malformed GGPK/bundle/index/dat/it/translation
	// byte stream: unknown tag, bad sentinel, inconsistent sizes, a
	// row-length that doesn't evenly divide the fixed area.
	FormatError = errors.New("poeerr: malformed data")

	// NotFound marks an absent logical path, missing bundle, unknown file
	// hash, absent referenced bundle file, or missing schema table.
	NotFound = errors.New("poeerr: not found")

	// TransportError marks a network failure other than a 404.
	TransportError = errors.New("poeerr: transport failure")

	// CodecError marks a refusal by the block decompressor.
	CodecError = errors.New("poeerr: codec failure")

	// SchemaMismatch marks a schema column requesting a type the decoder
	// cannot satisfy for that column's layout.
	SchemaMismatch = errors.New("poeerr: schema mismatch")

	// UnsupportedError marks a feature not implemented for the requested
	// input, e.g. CSV export of an unknown extension.
	UnsupportedError = errors.New("poeerr: unsupported")

	// CycleError marks a cyclic `extends` chain in an it file.
	CycleError = errors.New("poeerr: cyclic extends chain")
)
