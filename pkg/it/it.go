// Package it parses the "it" section/key=value configuration format and
// merges a child file with its parsed "extends" parent per spec.md §4.8.
package it

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/poe-tool-dev/ggpkfs/pkg/poeerr"
)

var (
	headerRegexp  = regexp.MustCompile(`(?m)^version (?P<version>[0-9]+)[\r\n]*(?P<abstract>abstract)?[\r\n]*extends "(?P<extends>[\w./_]+)"[\r\n]*(?P<remainder>.*)$`)
	sectionRegexp = regexp.MustCompile(`(?ms)^(?P<key>[\w]+)[\r\n]+^\{(?P<contents>[^}]*)^\}`)
	keyValRegexp  = regexp.MustCompile(`(?m)^[\s]*(?P<key>[\S]+)[\s]*=[\s]*(?P<value>"[^"]*"|[\S]+)[\s]*$`)
)

// Value is the tagged union a section's entries hold: Number, String, or
// Set (a sorted slice standing in for the Rust original's BTreeSet).
type Value struct {
	kind   valueKind
	number int32
	str    string
	set    []Value
}

type valueKind int

const (
	kindNumber valueKind = iota
	kindString
	kindSet
)

// Number reports whether v is a Number value, and its payload.
func (v Value) Number() (int32, bool) {
	if v.kind != kindNumber {
		return 0, false
	}
	return v.number, true
}

// String reports whether v is a String value, and its payload.
func (v Value) String() (string, bool) {
	if v.kind != kindString {
		return "", false
	}
	return v.str, true
}

// Set reports whether v is a Set value, and its sorted elements.
func (v Value) Set() ([]Value, bool) {
	if v.kind != kindSet {
		return nil, false
	}
	return v.set, true
}

func newScalarValue(raw string) Value {
	if n, err := strconv.ParseInt(raw, 10, 32); err == nil {
		return Value{kind: kindNumber, number: int32(n)}
	}
	return Value{kind: kindString, str: raw}
}

func newSetValue(raw string) Value {
	return Value{kind: kindSet, set: sortedSet([]Value{newScalarValue(raw)})}
}

// less orders two Values for the sorted-set representation: by kind first
// (Number < String < Set, matching Rust derive(Ord) field declaration
// order), then by payload.
func less(a, b Value) bool {
	if a.kind != b.kind {
		return a.kind < b.kind
	}
	switch a.kind {
	case kindNumber:
		return a.number < b.number
	case kindString:
		return a.str < b.str
	default:
		if len(a.set) != len(b.set) {
			return len(a.set) < len(b.set)
		}
		for i := range a.set {
			if less(a.set[i], b.set[i]) {
				return true
			}
			if less(b.set[i], a.set[i]) {
				return false
			}
		}
		return false
	}
}

func sortedSet(values []Value) []Value {
	sort.Slice(values, func(i, j int) bool { return less(values[i], values[j]) })
	return values
}

// unionSet merges b into a, keeping the result sorted and free of
// duplicates (by equal ordering, i.e. neither less than the other).
func unionSet(a, b []Value) []Value {
	out := append([]Value{}, a...)
	for _, v := range b {
		if !containsEqual(out, v) {
			out = append(out, v)
		}
	}
	return sortedSet(out)
}

func containsEqual(set []Value, v Value) bool {
	for _, existing := range set {
		if !less(existing, v) && !less(v, existing) {
			return true
		}
	}
	return false
}

// ITFile is one parsed "it" document.
type ITFile struct {
	Version  uint8
	Abstract bool
	Extends  string
	Sections map[string]map[string]Value
}

// Parse decodes text per spec.md §4.8: a header line naming version and
// extends, followed by zero or more "<Section>\n{ ... }" blocks of
// key=value lines. Base.tag is always stored as a singleton Set, to
// support set-union aggregation when merging with a parent.
func Parse(text string) (*ITFile, error) {
	text = strings.TrimPrefix(text, "\xef\xbb\xbf")

	header := headerRegexp.FindStringSubmatch(text)
	if header == nil {
		return nil, fmt.Errorf("it: no version/extends header found: %w", poeerr.FormatError)
	}
	names := headerRegexp.SubexpNames()

	var versionStr, extends string
	var abstract bool
	for i, name := range names {
		switch name {
		case "version":
			versionStr = header[i]
		case "abstract":
			abstract = header[i] != ""
		case "extends":
			extends = header[i]
		}
	}
	version, err := strconv.ParseUint(versionStr, 10, 8)
	if err != nil {
		return nil, fmt.Errorf("it: parse version %q: %w: %w", versionStr, poeerr.FormatError, err)
	}

	sections := make(map[string]map[string]Value)
	for _, section := range sectionRegexp.FindAllStringSubmatch(text, -1) {
		sectionNames := sectionRegexp.SubexpNames()
		var sectionKey, contents string
		for i, name := range sectionNames {
			switch name {
			case "key":
				sectionKey = section[i]
			case "contents":
				contents = section[i]
			}
		}

		sectionMap := make(map[string]Value)
		for _, kv := range keyValRegexp.FindAllStringSubmatch(contents, -1) {
			kvNames := keyValRegexp.SubexpNames()
			var key, rawValue string
			for i, name := range kvNames {
				switch name {
				case "key":
					key = kv[i]
				case "value":
					rawValue = kv[i]
				}
			}
			rawValue = strings.Trim(rawValue, `"`)

			var value Value
			if sectionKey == "Base" && key == "tag" {
				value = newSetValue(rawValue)
			} else {
				value = newScalarValue(rawValue)
			}
			sectionMap[key] = value
		}

		sections[sectionKey] = sectionMap
	}

	return &ITFile{
		Version:  uint8(version),
		Abstract: abstract,
		Extends:  extends,
		Sections: sections,
	}, nil
}

// Merge returns a new ITFile combining f (the child) with parent, per
// spec.md §4.8: a parent section absent from the child is inserted
// wholesale; a parent key absent from the child's matching section is
// inserted; where both exist and both values are Set, they are unioned;
// otherwise the child's value wins. f's own Version/Abstract/Extends are
// carried through unchanged.
func (f *ITFile) Merge(parent *ITFile) *ITFile {
	merged := make(map[string]map[string]Value, len(f.Sections))
	for section, kv := range f.Sections {
		copied := make(map[string]Value, len(kv))
		for k, v := range kv {
			copied[k] = v
		}
		merged[section] = copied
	}

	for section, parentKV := range parent.Sections {
		childKV, ok := merged[section]
		if !ok {
			copied := make(map[string]Value, len(parentKV))
			for k, v := range parentKV {
				copied[k] = v
			}
			merged[section] = copied
			continue
		}
		for key, parentValue := range parentKV {
			childValue, ok := childKV[key]
			if !ok {
				childKV[key] = parentValue
				continue
			}
			childSet, childIsSet := childValue.Set()
			parentSet, parentIsSet := parentValue.Set()
			if childIsSet && parentIsSet {
				childKV[key] = Value{kind: kindSet, set: unionSet(childSet, parentSet)}
			}
			// otherwise keep the child's existing value
		}
	}

	return &ITFile{
		Version:  f.Version,
		Abstract: f.Abstract,
		Extends:  f.Extends,
		Sections: merged,
	}
}
