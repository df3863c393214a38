// Package registry holds the process-wide reference tables consulted during
// origin determination: the manufacturer list and the FTA rule table.
package registry

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/origin-cli/internal/model"
	"github.com/sells-group/origin-cli/internal/sheet"
)

var (
	vietnamNames = map[string]bool{
		"vietnam":                        true,
		"viet nam":                       true,
		"socialist republic of viet nam": true,
	}
	vietnamCodes = map[string]bool{"vn": true}
)

// headerRenames maps alternate manufacturer CSV headers to expected names.
var headerRenames = map[string]string{
	"Manufacturers: name": "name",
	"Country of location": "country",
}

var fold = cases.Fold()

// norm trims and case-folds s for matching.
func norm(s string) string {
	return fold.String(strings.TrimSpace(s))
}

// IsVietnamCountry reports whether a normalized country code or name
// designates Vietnam.
func IsVietnamCountry(code, name string) bool {
	return vietnamCodes[norm(code)] || vietnamNames[norm(name)]
}

// LookupResult is the answer to a manufacturer lookup.
type LookupResult struct {
	Found     bool                 `json:"found"`
	IsVietnam bool                 `json:"is_vietnam"`
	Match     *model.RegistryEntry `json:"match"`
}

// ManufacturerTable is an immutable, indexed manufacturer list. It is safe
// for concurrent reads.
type ManufacturerTable struct {
	entries []model.RegistryEntry
	byID    map[string]int
	byName  map[string]int
}

// NewManufacturerTable indexes entries. The first entry wins on duplicate
// identifiers or names.
func NewManufacturerTable(entries []model.RegistryEntry) *ManufacturerTable {
	t := &ManufacturerTable{
		entries: make([]model.RegistryEntry, len(entries)),
		byID:    make(map[string]int, len(entries)),
		byName:  make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		e.IDNorm = norm(e.ManufacturerID)
		e.NameNorm = norm(e.Name)
		e.CountryNorm = norm(e.Country)
		e.CodeNorm = norm(e.CountryCode)
		t.entries[i] = e

		if e.IDNorm != "" {
			if _, ok := t.byID[e.IDNorm]; !ok {
				t.byID[e.IDNorm] = i
			}
		}
		if e.NameNorm != "" {
			if _, ok := t.byName[e.NameNorm]; !ok {
				t.byName[e.NameNorm] = i
			}
		}
	}
	return t
}

// Len returns the number of entries.
func (t *ManufacturerTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Lookup finds a manufacturer by identifier, falling back to name when the
// identifier is absent or matches nothing.
func (t *ManufacturerTable) Lookup(name, manufacturerID string) LookupResult {
	if t == nil {
		return LookupResult{}
	}

	idx := -1
	if id := norm(manufacturerID); id != "" {
		if i, ok := t.byID[id]; ok {
			idx = i
		}
	}
	if n := norm(name); idx < 0 && n != "" {
		if i, ok := t.byName[n]; ok {
			idx = i
		}
	}
	if idx < 0 {
		return LookupResult{}
	}

	e := t.entries[idx]
	return LookupResult{
		Found:     true,
		IsVietnam: vietnamCodes[e.CodeNorm] || vietnamNames[e.CountryNorm],
		Match:     &e,
	}
}

// LoadManufacturers reads the manufacturer CSV at path. A missing file
// yields an empty table.
func LoadManufacturers(ctx context.Context, path string) (*ManufacturerTable, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		zap.L().Warn("registry: manufacturer file not found, using empty registry", zap.String("path", path))
		return NewManufacturerTable(nil), nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "registry: open manufacturers")
	}
	defer f.Close() //nolint:errcheck

	records, err := sheet.ReadCSV(ctx, f, sheet.CSVOptions{LazyQuotes: true})
	if err != nil {
		return nil, eris.Wrap(err, "registry: read manufacturers")
	}
	if len(records) == 0 {
		return NewManufacturerTable(nil), nil
	}

	col := make(map[string]int)
	for i, h := range records[0] {
		h = strings.TrimSpace(h)
		if renamed, ok := headerRenames[h]; ok {
			h = renamed
		}
		if _, dup := col[h]; !dup {
			col[h] = i
		}
	}
	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	entries := make([]model.RegistryEntry, 0, len(records)-1)
	for _, rec := range records[1:] {
		entries = append(entries, model.RegistryEntry{
			ManufacturerID: field(rec, "manufacturer_id"),
			Name:           field(rec, "name"),
			Country:        field(rec, "country"),
			CountryCode:    field(rec, "country_code"),
		})
	}

	zap.L().Info("registry: manufacturers loaded", zap.String("path", path), zap.Int("entries", len(entries)))
	return NewManufacturerTable(entries), nil
}
