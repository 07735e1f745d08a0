package dat

import "unicode/utf16"

// Value is the tagged union spec.md §3 describes: every column decodes to
// exactly one of the concrete types below. The interface carries no
// methods — callers type-switch on the concrete type.
type Value interface {
	isValue()
}

// Bool is a one-byte boolean column (0/nonzero).
type Bool bool

// U16 is a two-byte unsigned column.
type U16 uint16

// I16 is a two-byte signed column.
type I16 int16

// U32 is a four-byte unsigned column.
type U32 uint32

// I32 is a four-byte signed column.
type I32 int32

// F32 is a four-byte IEEE-754 column.
type F32 float32

// String is a UTF-16LE string decoded from the variable heap.
type String string

// EnumRow is an index into a datschema.Enum's Enumerators (offset by that
// enum's Indexing), read as an unsigned i32.
type EnumRow uint32

// Row_ is a row-index reference within the same table; Index is nil when
// the raw u64 equals the absent sentinel. Named Row_ to avoid colliding
// with DatFile.NthRow's Row cursor type.
type Row_ struct {
	Index *uint64
}

// ForeignRow is a row-index reference into another table; either field is
// nil when the corresponding raw u64 equals the absent sentinel.
type ForeignRow struct {
	RID     *uint64
	Unknown *uint64
}

// Array holds a typed column's decoded elements, in heap order.
type Array []Value

// UnknownArray surfaces an untyped array's length and heap offset without
// attempting to decode its elements.
type UnknownArray struct {
	Length uint64
	Offset uint64
}

func (Bool) isValue()         {}
func (U16) isValue()         {}
func (I16) isValue()         {}
func (U32) isValue()         {}
func (I32) isValue()         {}
func (F32) isValue()         {}
func (String) isValue()      {}
func (EnumRow) isValue()     {}
func (Row_) isValue()        {}
func (ForeignRow) isValue()  {}
func (Array) isValue()       {}
func (UnknownArray) isValue() {}

// decodeUTF16 decodes a little-endian UTF-16 code unit sequence into a Go
// string, replacing unpaired surrogates with the Unicode replacement
// character per utf16.Decode's usual behavior.
func decodeUTF16(units []uint16) string {
	return string(utf16.Decode(units))
}
