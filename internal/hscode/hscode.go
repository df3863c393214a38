// Package hscode validates Harmonized System tariff codes and resolves their
// descriptions from a lookup table.
package hscode

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var validCode = regexp.MustCompile(`^(\d{4}|\d{6}|\d{8}|\d{10})$`)

var separators = strings.NewReplacer(" ", "", ".", "", "-", "")

// Normalize strips spaces and separators from a raw HS code.
func Normalize(code string) string {
	return separators.Replace(strings.TrimSpace(code))
}

// IsValid reports whether code is 4, 6, 8 or 10 digits once normalized.
func IsValid(code string) bool {
	if code == "" {
		return false
	}
	return validCode.MatchString(Normalize(code))
}

// Heading returns the first four digits of code. It reports false when fewer
// than four characters remain after normalization.
func Heading(code string) (string, bool) {
	n := Normalize(code)
	if len(n) < 4 {
		return "", false
	}
	return n[:4], true
}

// IsHeading reports whether code falls under the given heading prefix.
func IsHeading(code, heading string) bool {
	n := Normalize(code)
	if n == "" || heading == "" {
		return false
	}
	return strings.HasPrefix(n, Normalize(heading))
}

// Entry is one description row of the HS lookup table.
type Entry struct {
	Description string `json:"description"`
}

// Table resolves HS code descriptions. The zero value is an empty table.
type Table struct {
	entries map[string]Entry
}

// NewTable builds a Table from code → entry pairs. Keys are normalized.
func NewTable(entries map[string]Entry) *Table {
	t := &Table{entries: make(map[string]Entry, len(entries))}
	for k, v := range entries {
		t.entries[Normalize(k)] = v
	}
	return t
}

// Len returns the number of codes in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Describe returns the description for code: exact match first, then the
// 6- and 4-digit prefixes, else a placeholder. It never fails.
func (t *Table) Describe(code string) string {
	n := Normalize(code)
	if t != nil {
		if e, ok := t.entries[n]; ok {
			return e.Description
		}
		for _, length := range []int{6, 4} {
			if len(n) < length {
				continue
			}
			if e, ok := t.entries[n[:length]]; ok {
				return e.Description
			}
		}
	}
	return "HS Code " + n + " (Description not available)"
}

// IsValid reports whether code is syntactically valid.
func (t *Table) IsValid(code string) bool { return IsValid(code) }

// Heading returns the 4-digit heading of code.
func (t *Table) Heading(code string) (string, bool) { return Heading(code) }

// IsHeading reports whether code falls under heading.
func (t *Table) IsHeading(code, heading string) bool { return IsHeading(code, heading) }

// LoadTable reads an HS description table from a JSON file. A missing file
// yields an empty table.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		zap.L().Warn("hscode: description file not found, using empty table", zap.String("path", path))
		return NewTable(nil), nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "hscode: read table")
	}

	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, eris.Wrap(err, "hscode: unmarshal table")
	}
	return NewTable(entries), nil
}
