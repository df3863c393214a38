package sheet

import (
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/origin-cli/internal/model"
)

// columnAliases maps each recognized key to the header spellings accepted
// for it, in priority order.
var columnAliases = []struct {
	key     string
	aliases []string
}{
	{model.KeyManufacturer, []string{"manufacturer", "mfg", "supplier", "vendor"}},
	{model.KeyManufacturerID, []string{"manufacturer_id", "mfg_id", "supplier_id"}},
	{model.KeyManufacturerCountry, []string{"manufacturer_country", "mfg_country", "supplier_country"}},
	{model.KeyCountryOfOrigin, []string{"country_of_origin", "country", "origin", "coo"}},
	{model.KeyHSCode, []string{"hs_code", "hscode", "hs", "tariff_code"}},
	{model.KeyCostPerPair, []string{"cost_per_pair", "unit_cost", "cost", "price"}},
	{model.KeyFOBWithTooling, []string{"fob_with_tooling", "fob", "total_cost"}},
	{model.KeyMaterialName, []string{"material_name", "material", "component", "description"}},
}

var numericKeys = map[string]bool{
	model.KeyCostPerPair:    true,
	model.KeyFOBWithTooling: true,
}

// contentScanRows bounds the search for a "Manufacturer: X" cell when the
// sheet has no manufacturer column.
const contentScanRows = 5

var lower = cases.Lower(language.Und)

// CleanHeader lower-cases a header and replaces spaces and slashes with
// underscores.
func CleanHeader(h string) string {
	h = lower.String(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "_", "/", "_").Replace(h)
}

// MapColumns resolves cleaned headers to recognized keys. The result maps
// column index to key; unmapped columns keep their cleaned header.
func MapColumns(header []string) []string {
	cleaned := make([]string, len(header))
	index := make(map[string]int, len(header))
	for i, h := range header {
		cleaned[i] = CleanHeader(h)
		if _, dup := index[cleaned[i]]; !dup {
			index[cleaned[i]] = i
		}
	}

	keys := append([]string(nil), cleaned...)
	claimed := make(map[int]bool)
	for _, ca := range columnAliases {
		for _, alias := range ca.aliases {
			i, ok := index[alias]
			if !ok || claimed[i] {
				continue
			}
			keys[i] = ca.key
			claimed[i] = true
			break
		}
	}
	return keys
}

// Normalize converts raw records (first record is the header) into rows
// keyed by recognized names. Fully empty rows are dropped, cost columns are
// coerced to numbers, and a manufacturer found in cell content is applied to
// every row when no manufacturer column exists.
func Normalize(records [][]string) []model.Row {
	if len(records) == 0 {
		return nil
	}
	keys := MapColumns(records[0])
	body := records[1:]

	hasManufacturer := false
	for _, k := range keys {
		if k == model.KeyManufacturer {
			hasManufacturer = true
			break
		}
	}

	var manufacturer string
	if !hasManufacturer {
		manufacturer = manufacturerFromContent(body)
		if manufacturer != "" {
			zap.L().Info("sheet: manufacturer found in cell content", zap.String("manufacturer", manufacturer))
		}
	}

	rows := make([]model.Row, 0, len(body))
	for _, rec := range body {
		row := make(model.Row, len(keys))
		for i, k := range keys {
			if i >= len(rec) || k == "" {
				continue
			}
			v := strings.TrimSpace(rec[i])
			if v == "" {
				continue
			}
			if numericKeys[k] {
				f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
				if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
					continue
				}
				row[k] = f
				continue
			}
			row[k] = v
		}
		if row.Empty() {
			continue
		}
		if manufacturer != "" {
			row[model.KeyManufacturer] = manufacturer
		}
		rows = append(rows, row)
	}
	return rows
}

func manufacturerFromContent(body [][]string) string {
	for i := 0; i < len(body) && i < contentScanRows; i++ {
		for _, cell := range body[i] {
			l := lower.String(cell)
			if !strings.Contains(l, "manufacturer") && !strings.Contains(l, "supplier") {
				continue
			}
			parts := strings.SplitN(cell, ":", 2)
			if len(parts) > 1 {
				if v := strings.TrimSpace(parts[1]); v != "" {
					return v
				}
			}
		}
	}
	return ""
}
