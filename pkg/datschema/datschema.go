// Package datschema decodes the JSON table-schema document that drives
// pkg/dat's column-by-column row decoding. Schema delivery (fetching the
// document itself) is out of scope here; callers load the bytes however
// they like and hand them to Parse.
package datschema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/poe-tool-dev/ggpkfs/pkg/poeerr"
)

// Schema is the top-level schema document.
type Schema struct {
	Version      uint32 `json:"version"`
	CreatedAt    uint32 `json:"createdAt"`
	Tables       []Table
	Enumerations []Enum
}

// Table describes one dat file's column layout.
type Table struct {
	Name    string
	Columns []Column
	Tags    []string
}

// Column describes one field of a Table, in declared order.
type Column struct {
	Name        *string
	Description *string
	Array       bool
	Type        ColumnType `json:"type"`
	Unique      bool
	Localized   bool
	Until       *string
	References  *Reference
	File        *string
	Files       []string
}

// ColumnType names the scalar wire encoding a Column's values use.
type ColumnType string

const (
	ColumnBool       ColumnType = "bool"
	ColumnString     ColumnType = "string"
	ColumnI16        ColumnType = "i16"
	ColumnU16        ColumnType = "u16"
	ColumnI32        ColumnType = "i32"
	ColumnU32        ColumnType = "u32"
	ColumnF32        ColumnType = "f32"
	ColumnArray      ColumnType = "array"
	ColumnRow        ColumnType = "row"
	ColumnForeignRow ColumnType = "foreignrow"
	ColumnEnumRow    ColumnType = "enumrow"
)

// Reference names the table (and, for a non-row-index reference, the
// column) a Row/ForeignRow column points into.
type Reference struct {
	Table  string
	Column *string
}

// Enum is one named enumeration: Enumerators[i] is the display string for
// index i+Indexing, or nil where the game data leaves a gap.
type Enum struct {
	Name        string
	Indexing    uint8
	Enumerators []*string
}

// Parse decodes a schema document from JSON.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("datschema: decode: %w: %w", poeerr.FormatError, err)
	}
	return &s, nil
}

// FindTable returns the table whose name matches name case-insensitively,
// or nil if none does.
func (s *Schema) FindTable(name string) *Table {
	for i := range s.Tables {
		if strings.EqualFold(s.Tables[i].Name, name) {
			return &s.Tables[i]
		}
	}
	return nil
}
