// Package translation decodes the line-oriented stat-translation rule
// format: an ordered sequence of description blocks, each keyed by one or
// more statistic ids, producing per-language formatting rows.
package translation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/poe-tool-dev/ggpkfs/pkg/poeerr"
)

var (
	rowRegexp         = regexp.MustCompile(`^[\s]*(?P<minmax>(?:[0-9\-|#!]+[ \t]+)+)"(?P<description>.*\s*)"(?P<quantifier>(?:[ \t]*[\w%]+)*)[ \t]*[\r\n]*$`)
	descriptionRegexp = regexp.MustCompile(`(?:^"(?P<header>.*)"$)|(?:^include "(?P<include>.*)")|(?:^no_description[\s]*(?P<no_description>[\w+%]*)[\s]*$)|(?P<description>^description[\s]*(?P<identifier>[\S]*)[\s]*$)`)
	statsRegexp       = regexp.MustCompile(`^[\s]*(?P<stat_id_count>[0-9]+) (?P<stat_ids>.*)$`)
	langRegexp        = regexp.MustCompile(`^[\s]*lang "(?P<language>[\w ]+)"[\s]*$`)
	rowCountRegexp    = regexp.MustCompile(`^[\s]*(?P<rows>[0-9]+)[\s]*$`)
)

// StatKey indexes a description block by the statistic id(s) it formats.
// A key with a single id is the Single case (see Single); a key with more
// than one id is the Multiple case, matching the Rust original's
// two-variant enum.
type StatKey struct {
	IDs []string
}

// Single reports whether k names exactly one statistic id.
func (k StatKey) Single() bool { return len(k.IDs) == 1 }

// Key returns a value comparable with ==, suitable for use as a map key
// (StatKey itself holds a slice and cannot be compared directly).
func (k StatKey) Key() string { return strings.Join(k.IDs, " ") }

// TranslationRow is one formatting rule within a description block, for
// one language.
type TranslationRow struct {
	Condition    string
	FormatString string
	Modifiers    string
}

// Result is the parsed translation file: language -> stat-key (by its
// Key() string form) -> rows in file order.
type Result struct {
	Languages map[string]map[string][]TranslationRow
	// Keys records, for all languages together, the StatKey each Key()
	// string form expands to, so callers can recover the original id list.
	Keys map[string]StatKey
}

type state int

const (
	stateDescription state = iota
	stateStats
	stateLang
	stateRowCount
	stateRows
)

// nextRowsState returns the state to enter after reading a row count: a
// declared count of zero has no row lines to parse, so it returns
// straight to Lang per spec.md §8's zero-row boundary case instead of
// consuming the next line as a malformed row.
func nextRowsState(rowCount int) state {
	if rowCount <= 0 {
		return stateLang
	}
	return stateRows
}

// Parse decodes text per spec.md §4.9's five-state machine. Blank lines
// are skipped in every state.
func Parse(text string) (*Result, error) {
	text = strings.TrimPrefix(text, "\xef\xbb\xbf")

	result := &Result{
		Languages: make(map[string]map[string][]TranslationRow),
		Keys:      make(map[string]StatKey),
	}

	st := stateDescription
	lang := "English"
	rowsRemaining := 0
	var statsIDs StatKey

	lines := strings.Split(text, "\n")
	for lineNo, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		switch st {
		case stateDescription:
			if m := descriptionRegexp.FindStringSubmatch(line); m != nil {
				if groupSet(descriptionRegexp, m, "description") {
					st = stateStats
				}
			}

		case stateStats:
			m := statsRegexp.FindStringSubmatch(line)
			if m == nil {
				return nil, fmt.Errorf("translation: line %d: %q does not match a stats declaration: %w", lineNo+1, line, poeerr.FormatError)
			}
			ids := strings.Fields(groupValue(statsRegexp, m, "stat_ids"))
			statsIDs = StatKey{IDs: ids}
			st = stateLang
			lang = "English"

		case stateLang:
			if m := langRegexp.FindStringSubmatch(line); m != nil {
				lang = groupValue(langRegexp, m, "language")
				st = stateRowCount
				continue
			}
			if m := rowCountRegexp.FindStringSubmatch(line); m != nil {
				n, err := strconv.Atoi(groupValue(rowCountRegexp, m, "rows"))
				if err != nil {
					return nil, fmt.Errorf("translation: line %d: parse row count: %w: %w", lineNo+1, poeerr.FormatError, err)
				}
				rowsRemaining = n
				st = nextRowsState(n)
				continue
			}
			if m := descriptionRegexp.FindStringSubmatch(line); m != nil {
				if groupSet(descriptionRegexp, m, "description") {
					st = stateStats
					continue
				}
			}
			// Lines like a stray no_description/header/include that match
			// descriptionRegexp without its "description" group, or match
			// nothing at all, leave the state unchanged and are ignored.

		case stateRowCount:
			m := rowCountRegexp.FindStringSubmatch(line)
			if m == nil {
				return nil, fmt.Errorf("translation: line %d: %q is not a row count: %w", lineNo+1, line, poeerr.FormatError)
			}
			n, err := strconv.Atoi(groupValue(rowCountRegexp, m, "rows"))
			if err != nil {
				return nil, fmt.Errorf("translation: line %d: parse row count: %w: %w", lineNo+1, poeerr.FormatError, err)
			}
			rowsRemaining = n
			st = nextRowsState(n)

		case stateRows:
			rowsRemaining--
			m := rowRegexp.FindStringSubmatch(line)
			if m == nil {
				return nil, fmt.Errorf("translation: line %d: %q is not a valid row: %w", lineNo+1, line, poeerr.FormatError)
			}
			row := TranslationRow{
				Condition:    groupValue(rowRegexp, m, "minmax"),
				FormatString: groupValue(rowRegexp, m, "description"),
				Modifiers:    groupValue(rowRegexp, m, "quantifier"),
			}

			key := statsIDs.Key()
			result.Keys[key] = statsIDs
			byLang, ok := result.Languages[lang]
			if !ok {
				byLang = make(map[string][]TranslationRow)
				result.Languages[lang] = byLang
			}
			byLang[key] = append(byLang[key], row)

			if rowsRemaining <= 0 {
				st = stateLang
			}
		}
	}

	return result, nil
}

func groupValue(re *regexp.Regexp, match []string, name string) string {
	for i, n := range re.SubexpNames() {
		if n == name {
			return match[i]
		}
	}
	return ""
}

func groupSet(re *regexp.Regexp, match []string, name string) bool {
	for i, n := range re.SubexpNames() {
		if n == name {
			return match[i] != ""
		}
	}
	return false
}
