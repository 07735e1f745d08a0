// Package dat decodes the two-region "dat" table format: a fixed-length
// row area, an 8-byte 0xBB sentinel marking the boundary, and a
// variable-length heap holding strings and array payloads referenced by
// offset from the fixed area.
package dat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/poe-tool-dev/ggpkfs/pkg/datschema"
	"github.com/poe-tool-dev/ggpkfs/pkg/poeerr"
)

// absentSentinel marks a Row/ForeignRow reference as absent.
const absentSentinel uint64 = 0xFEFEFEFEFEFEFEFE

// boundarySentinel is the 8-byte run that separates the fixed row area
// from the variable-length heap.
var boundarySentinel = bytes.Repeat([]byte{0xBB}, 8)

// DatFile is a parsed dat table: the fixed/variable split has been
// located and row_length has been checked against row_count, but no
// column has been decoded yet.
type DatFile struct {
	Data      []byte
	RowCount  uint32
	Boundary  int
	RowLength int
}

// New locates the fixed/variable boundary in data and validates that the
// fixed area divides evenly into RowCount rows of equal length.
func New(data []byte) (*DatFile, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("dat: %d bytes, need at least 4 for row_count: %w", len(data), poeerr.FormatError)
	}
	rowCount := binary.LittleEndian.Uint32(data[:4])

	boundary := bytes.Index(data, boundarySentinel)
	if boundary < 0 {
		return nil, fmt.Errorf("dat: no 8-byte 0xBB sentinel found: %w", poeerr.FormatError)
	}

	if rowCount == 0 {
		if boundary != 4 {
			return nil, fmt.Errorf("dat: row_count=0 but fixed area is %d bytes, want 0: %w", boundary-4, poeerr.FormatError)
		}
		return &DatFile{Data: data, RowCount: 0, Boundary: boundary, RowLength: 0}, nil
	}

	fixedLen := boundary - 4
	if fixedLen < 0 || fixedLen%int(rowCount) != 0 {
		return nil, fmt.Errorf("dat: fixed area length %d not divisible by row_count %d: %w", fixedLen, rowCount, poeerr.FormatError)
	}

	return &DatFile{
		Data:      data,
		RowCount:  rowCount,
		Boundary:  boundary,
		RowLength: fixedLen / int(rowCount),
	}, nil
}

// FixedData returns the fixed-length row area (excluding the leading
// row_count field).
func (d *DatFile) FixedData() []byte {
	return d.Data[4:d.Boundary]
}

// VariableData returns the variable-length heap, starting at the sentinel
// itself; string and array offsets read from the fixed area count from the
// first sentinel byte.
func (d *DatFile) VariableData() []byte {
	return d.Data[d.Boundary:]
}

// NthRow returns a cursor over the nth row's fixed bytes, backed by the
// shared variable-length heap.
func (d *DatFile) NthRow(n int) (*Row, error) {
	if n < 0 || n >= int(d.RowCount) {
		return nil, fmt.Errorf("dat: row %d out of range [0,%d): %w", n, d.RowCount, poeerr.FormatError)
	}
	start := n * d.RowLength
	end := start + d.RowLength
	fixed := d.FixedData()[start:end]
	return &Row{fixed: bytes.NewReader(fixed), variable: d.VariableData()}, nil
}

// Row is a cursor over one row's fixed-area bytes, plus a reference to
// the table's shared variable-length heap.
type Row struct {
	fixed    *bytes.Reader
	variable []byte
}

// ReadWithSchema decodes cols, in order, from the row's fixed cursor,
// consulting the variable heap for strings, arrays, and row offsets.
func (r *Row) ReadWithSchema(cols []datschema.Column) ([]Value, error) {
	values := make([]Value, 0, len(cols))
	for i, col := range cols {
		var v Value
		var err error
		if col.Array {
			v, err = r.readArray(col)
		} else {
			v, err = r.readScalar(col)
		}
		if err != nil {
			return nil, fmt.Errorf("dat: column %d (%s): %w", i, columnLabel(col), err)
		}
		values = append(values, v)
	}
	return values, nil
}

func columnLabel(col datschema.Column) string {
	if col.Name != nil {
		return *col.Name
	}
	return "<unnamed>"
}

func (r *Row) readScalar(col datschema.Column) (Value, error) {
	return readScalarFrom(r.fixed, r.variable, col)
}

func (r *Row) readArray(col datschema.Column) (Value, error) {
	length, err := readU64(r.fixed)
	if err != nil {
		return nil, fmt.Errorf("array length: %w", err)
	}
	offset, err := readU64(r.fixed)
	if err != nil {
		return nil, fmt.Errorf("array offset: %w", err)
	}

	if col.Type == datschema.ColumnArray {
		return UnknownArray{Length: length, Offset: offset}, nil
	}

	if offset > uint64(len(r.variable)) {
		return nil, fmt.Errorf("array offset %d exceeds %d-byte heap: %w", offset, len(r.variable), poeerr.FormatError)
	}
	elemReader := bytes.NewReader(r.variable[offset:])

	elems := make([]Value, 0, length)
	for i := uint64(0); i < length; i++ {
		v, err := readScalarFrom(elemReader, r.variable, col)
		if err != nil {
			return nil, fmt.Errorf("array element %d: %w", i, err)
		}
		elems = append(elems, v)
	}
	return Array(elems), nil
}

func readScalarFrom(fixed *bytes.Reader, variable []byte, col datschema.Column) (Value, error) {
	switch col.Type {
	case datschema.ColumnBool:
		b, err := fixed.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("bool: %w: %w", poeerr.FormatError, err)
		}
		return Bool(b != 0), nil
	case datschema.ColumnU16:
		v, err := readU16(fixed)
		if err != nil {
			return nil, fmt.Errorf("u16: %w", err)
		}
		return U16(v), nil
	case datschema.ColumnI16:
		v, err := readU16(fixed)
		if err != nil {
			return nil, fmt.Errorf("i16: %w", err)
		}
		return I16(int16(v)), nil
	case datschema.ColumnU32:
		v, err := readU32(fixed)
		if err != nil {
			return nil, fmt.Errorf("u32: %w", err)
		}
		return U32(v), nil
	case datschema.ColumnI32:
		v, err := readU32(fixed)
		if err != nil {
			return nil, fmt.Errorf("i32: %w", err)
		}
		return I32(int32(v)), nil
	case datschema.ColumnF32:
		v, err := readU32(fixed)
		if err != nil {
			return nil, fmt.Errorf("f32: %w", err)
		}
		return F32(math.Float32frombits(v)), nil
	case datschema.ColumnString:
		offset, err := readU64(fixed)
		if err != nil {
			return nil, fmt.Errorf("string offset: %w", err)
		}
		s, err := readVariableString(variable, offset)
		if err != nil {
			return nil, fmt.Errorf("string at offset %d: %w", offset, err)
		}
		return String(s), nil
	case datschema.ColumnEnumRow:
		v, err := readU32(fixed)
		if err != nil {
			return nil, fmt.Errorf("enumrow: %w", err)
		}
		return EnumRow(v), nil
	case datschema.ColumnRow:
		v, err := readU64(fixed)
		if err != nil {
			return nil, fmt.Errorf("row: %w", err)
		}
		return Row_{Index: wrapSentinel(v)}, nil
	case datschema.ColumnForeignRow:
		rid, err := readU64(fixed)
		if err != nil {
			return nil, fmt.Errorf("foreignrow rid: %w", err)
		}
		unknown, err := readU64(fixed)
		if err != nil {
			return nil, fmt.Errorf("foreignrow unknown: %w", err)
		}
		return ForeignRow{RID: wrapSentinel(rid), Unknown: wrapSentinel(unknown)}, nil
	default:
		return nil, fmt.Errorf("column type %q: %w", col.Type, poeerr.SchemaMismatch)
	}
}

func wrapSentinel(v uint64) *uint64 {
	if v == absentSentinel {
		return nil
	}
	return &v
}

func readU16(r *bytes.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := readFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("%w: %w", poeerr.FormatError, err)
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := readFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("%w: %w", poeerr.FormatError, err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readU64(r *bytes.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := readFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("%w: %w", poeerr.FormatError, err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// readVariableString decodes a UTF-16LE string starting at offset within
// data, stopping at the first 4-byte all-zero run that falls on an even
// byte-window index — this keeps a mid-codepoint zero high byte (e.g. the
// second byte of 'A' = 0x41 0x00) from being mistaken for termination.
func readVariableString(data []byte, offset uint64) (string, error) {
	if offset > uint64(len(data)) {
		return "", fmt.Errorf("offset %d exceeds %d-byte heap: %w", offset, len(data), poeerr.FormatError)
	}
	body := data[offset:]

	length := -1
	for i := 0; i+4 <= len(body); i++ {
		if i%2 != 0 {
			continue
		}
		if body[i] == 0 && body[i+1] == 0 && body[i+2] == 0 && body[i+3] == 0 {
			length = i
			break
		}
	}
	if length < 0 {
		return "", fmt.Errorf("no even-aligned 4-byte zero run in %d-byte remainder: %w", len(body), poeerr.FormatError)
	}

	units := make([]uint16, length/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(body[i*2 : i*2+2])
	}
	return decodeUTF16(units), nil
}
