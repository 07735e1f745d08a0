package bundle

// Header is the leading prefix of a .bundle.bin file; its length varies
// with the number of block sizes in Head.
type Header struct {
	UncompressedSize  uint32
	TotalPayloadSize  uint32
	HeadSize          uint32
	Head              HeadPayload
}

// HeadPayload follows Header's three leading uint32s. BlockSizes has
// BlockCount entries and is read separately since it is variable-length.
type HeadPayload struct {
	FirstFileEncode    uint32
	Unk10              uint32 // opaque, preserved verbatim, never interpreted
	UncompressedSize64 uint64
	TotalPayloadSize64 uint64
	BlockCount         uint32
	BlockGranularity   uint32
	Unk28              [4]uint32 // opaque, preserved verbatim, never interpreted
	BlockSizes         []uint32
}

// headPayloadFixed is the binary.Read-able prefix of HeadPayload; BlockSizes
// is appended after reading BlockCount.
type headPayloadFixed struct {
	FirstFileEncode    uint32
	Unk10              uint32
	UncompressedSize64 uint64
	TotalPayloadSize64 uint64
	BlockCount         uint32
	BlockGranularity   uint32
	Unk28              [4]uint32
}

// maxBlockCount guards against allocating an unreasonable slice from a
// corrupt or truncated header.
const maxBlockCount = 1 << 20
