package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Recognized row keys produced by the tabular loader.
const (
	KeyManufacturer        = "manufacturer"
	KeyManufacturerID      = "manufacturer_id"
	KeyManufacturerCountry = "manufacturer_country"
	KeyCountryOfOrigin     = "country_of_origin"
	KeyHSCode              = "hs_code"
	KeyCostPerPair         = "cost_per_pair"
	KeyFOBWithTooling      = "fob_with_tooling"
	KeyMaterialName        = "material_name"
)

// RecognizedKeys lists every key the engine reads from a row.
var RecognizedKeys = []string{
	KeyManufacturer,
	KeyManufacturerID,
	KeyManufacturerCountry,
	KeyCountryOfOrigin,
	KeyHSCode,
	KeyCostPerPair,
	KeyFOBWithTooling,
	KeyMaterialName,
}

// Row is one normalized spreadsheet row. Values are strings or numbers;
// unrecognized keys are carried but ignored.
type Row map[string]any

// String returns the trimmed string form of key. Missing values and the
// placeholder tokens "nan" and "none" read as empty.
func (r Row) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64:
		if math.IsNaN(t) {
			return ""
		}
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	default:
		s = fmt.Sprint(t)
	}
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "nan", "none", "<nil>":
		return ""
	}
	return s
}

// Float returns key as a number. It reports false when the value is absent
// or not numeric.
func (r Row) Float(key string) (float64, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return finite(t)
	case float32:
		return finite(float64(t))
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	s := r.String(key)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return finite(f)
}

// finite rejects NaN and infinities.
func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Empty reports whether every value in the row is blank.
func (r Row) Empty() bool {
	for k := range r {
		if r.String(k) != "" {
			return false
		}
	}
	return true
}
