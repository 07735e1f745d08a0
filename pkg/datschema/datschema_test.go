package datschema

import (
	"errors"
	"testing"

	"github.com/poe-tool-dev/ggpkfs/pkg/poeerr"
)

const sampleDoc = `{
	"version": 1,
	"createdAt": 1700000000,
	"tables": [
		{
			"name": "Mods",
			"tags": ["public"],
			"columns": [
				{"name": "Id", "array": false, "type": "string", "unique": true, "localized": false},
				{"name": "Domain", "array": false, "type": "i32", "unique": false, "localized": false,
				 "references": {"table": "ModDomains"}},
				{"name": "Families", "array": true, "type": "row", "unique": false, "localized": false}
			]
		}
	],
	"enumerations": [
		{"name": "ModDomains", "indexing": 0, "enumerators": ["Item", null, "Flask"]}
	]
}`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Version != 1 || s.CreatedAt != 1700000000 {
		t.Fatalf("header mismatch: %+v", s)
	}
	if len(s.Tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(s.Tables))
	}

	mods := s.Tables[0]
	if len(mods.Columns) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(mods.Columns))
	}
	if mods.Columns[1].Type != ColumnI32 {
		t.Errorf("Domain type = %q, want i32", mods.Columns[1].Type)
	}
	if mods.Columns[1].References == nil || mods.Columns[1].References.Table != "ModDomains" {
		t.Errorf("Domain reference = %+v, want table ModDomains", mods.Columns[1].References)
	}
	if !mods.Columns[2].Array || mods.Columns[2].Type != ColumnRow {
		t.Errorf("Families column = %+v, want array row", mods.Columns[2])
	}

	if len(s.Enumerations) != 1 || len(s.Enumerations[0].Enumerators) != 3 {
		t.Fatalf("enumerations mismatch: %+v", s.Enumerations)
	}
	if s.Enumerations[0].Enumerators[1] != nil {
		t.Errorf("Enumerators[1] = %v, want nil (gap)", s.Enumerations[0].Enumerators[1])
	}
}

func TestFindTable(t *testing.T) {
	s, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := s.FindTable("mods"); got == nil || got.Name != "Mods" {
		t.Errorf("FindTable(%q) = %v, want Mods", "mods", got)
	}
	if got := s.FindTable("MODS"); got == nil {
		t.Errorf("FindTable is not case-insensitive")
	}
	if got := s.FindTable("DoesNotExist"); got != nil {
		t.Errorf("FindTable(unknown) = %v, want nil", got)
	}
}

func TestParse_MalformedJSON(t *testing.T) {
	_, err := Parse([]byte("{not json"))
	if !errors.Is(err, poeerr.FormatError) {
		t.Fatalf("Parse(malformed): got %v, want poeerr.FormatError", err)
	}
}
