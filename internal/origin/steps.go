package origin

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/sells-group/origin-cli/internal/hscode"
	"github.com/sells-group/origin-cli/internal/model"
	"github.com/sells-group/origin-cli/internal/registry"
	"github.com/sells-group/origin-cli/internal/store"
)

// Outcome is a terminal verdict and its reason.
type Outcome struct {
	Verdict model.Verdict
	Reason  string
}

// stepFunc evaluates one workflow state.
type stepFunc func(*state) transition

// transition is what a step hands back to the engine: its audit record,
// the case changes to commit with it, and either an outcome or the next
// step.
type transition struct {
	record         model.StepRecord
	commit         store.StepCommit
	missingChanged bool
	outcome        *Outcome
	next           stepFunc
}

// state is the case-so-far threaded through the steps of one run.
type state struct {
	c       *model.AnalysisCase
	rows    []model.Row
	snap    registry.Snapshot
	heading string

	rules     model.RuleSet
	threshold float64
	materials []model.MaterialRecord
	critical  []int
}

func (s *state) missing(field string) {
	if !slices.Contains(s.c.MissingFields, field) {
		s.c.MissingFields = append(s.c.MissingFields, field)
	}
}

// first returns the first non-empty value of key scanning rows in order.
func (s *state) first(key string) string {
	for _, r := range s.rows {
		if v := r.String(key); v != "" {
			return v
		}
	}
	return ""
}

const screeningNote = "Non-VN and non-EU material requiring further analysis"

var euCountries = map[string]bool{
	"AT": true, "BE": true, "BG": true, "CY": true, "CZ": true, "DE": true, "DK": true,
	"EE": true, "ES": true, "FI": true, "FR": true, "GR": true, "HR": true, "HU": true,
	"IE": true, "IT": true, "LT": true, "LU": true, "LV": true, "MT": true, "NL": true,
	"PL": true, "PT": true, "RO": true, "SE": true, "SI": true, "SK": true,
}

// isProblematicCountry reports whether a material country is neither
// Vietnam nor an EU member. Codes are matched exactly after upper-casing.
func isProblematicCountry(country string) bool {
	c := strings.ToUpper(strings.TrimSpace(country))
	switch c {
	case "", "NAN", "NONE", "VN", "VIETNAM":
		return false
	}
	return !euCountries[c]
}

func terminal(rec model.StepRecord, v model.Verdict, reason string) transition {
	return transition{record: rec, outcome: &Outcome{Verdict: v, Reason: reason}}
}

func manufacturerCheck(s *state) transition {
	name := s.first(model.KeyManufacturer)
	id := s.first(model.KeyManufacturerID)
	declared := s.first(model.KeyManufacturerCountry)
	if declared == "" {
		declared = s.first(model.KeyCountryOfOrigin)
	}

	rec := model.StepRecord{Step: 1}
	if name == "" && id == "" {
		rec.Description = "Manufacturer information missing"
		rec.Details = map[string]any{"is_vietnamese": false, "proceed": false}
		s.missing("manufacturer")
		t := terminal(rec, model.VerdictIncomplete, "Manufacturer information missing")
		t.missingChanged = true
		return t
	}

	display := name
	if display == "" {
		display = id
	}
	var (
		vietnamese bool
		source     string
		reason     string
	)
	switch hit := s.snap.Manufacturers.Lookup(name, id); {
	case hit.Found:
		source = "registry"
		vietnamese = hit.IsVietnam
		if hit.Match != nil && hit.Match.Name != "" {
			display = hit.Match.Name
		}
		rec.Description = fmt.Sprintf("Manufacturer matched in reference list: %s", display)
		reason = "Manufacturer found in reference list but not located in Vietnam."
	case declared != "":
		source = "declared_country"
		vietnamese = registry.IsVietnamCountry(declared, declared)
		rec.Description = fmt.Sprintf("No reference list match. Falling back to provided country '%s'", declared)
		reason = fmt.Sprintf("Provided manufacturer country is '%s', not Vietnam.", declared)
	default:
		rec.Description = "Manufacturer not found in reference list and no country provided; unable to confirm Vietnam."
		rec.Details = map[string]any{
			"manufacturer":    name,
			"manufacturer_id": id,
			"is_vietnamese":   false,
			"proceed":         false,
		}
		s.missing("manufacturer_country (or manufacturers.csv entry)")
		t := terminal(rec, model.VerdictIncomplete, "Manufacturer could not be verified (missing data)")
		t.missingChanged = true
		t.commit.Manufacturer = &display
		s.c.Manufacturer = display
		return t
	}

	rec.Details = map[string]any{
		"manufacturer":    name,
		"manufacturer_id": id,
		"source":          source,
		"is_vietnamese":   vietnamese,
		"proceed":         vietnamese,
	}
	s.c.Manufacturer = display
	if !vietnamese {
		t := terminal(rec, model.VerdictNonOriginating, reason)
		t.commit.Manufacturer = &display
		return t
	}
	return transition{record: rec, commit: store.StepCommit{Manufacturer: &display}, next: finalHSCode}
}

func finalHSCode(s *state) transition {
	code := s.first(model.KeyHSCode)
	rec := model.StepRecord{Step: 2, Description: "Final product HS code identification"}

	if code == "" {
		rec.Details = map[string]any{"final_hs_code": nil, "is_valid": false}
		s.missing("final_product_hs_code")
		t := terminal(rec, model.VerdictIncomplete, "Final product HS code not found")
		t.missingChanged = true
		return t
	}

	valid := hscode.IsValid(code)
	rec.Details = map[string]any{"final_hs_code": code, "is_valid": valid}
	s.c.FinalHSCode = code
	if !valid {
		t := terminal(rec, model.VerdictIncomplete, fmt.Sprintf("Invalid HS code format: %s", code))
		t.commit.FinalHSCode = &code
		return t
	}
	rec.Details["hs_description"] = s.snap.HSCodes.Describe(code)
	return transition{record: rec, commit: store.StepCommit{FinalHSCode: &code}, next: ruleLookup}
}

func ruleLookup(s *state) transition {
	s.rules = s.snap.Rules.RulesFor(s.c.FinalHSCode)
	s.threshold = s.rules.ThresholdOrDefault()
	return transition{
		record: model.StepRecord{
			Step:        3,
			Description: "FTA rules of origin check",
			Details: map[string]any{
				"hs_code":          s.c.FinalHSCode,
				"applicable_rules": s.rules,
				"threshold":        s.threshold,
			},
		},
		next: materialScreening,
	}
}

func materialScreening(s *state) transition {
	found := make([]map[string]any, 0)
	for _, r := range s.rows {
		country := r.String(model.KeyCountryOfOrigin)
		if !isProblematicCountry(country) {
			continue
		}
		name := r.String(model.KeyMaterialName)
		if name == "" {
			name = "Unknown"
		}
		m := model.MaterialRecord{
			ID:              uuid.New().String(),
			CaseID:          s.c.ID,
			Position:        len(s.materials),
			Name:            name,
			CountryOfOrigin: strings.ToUpper(country),
			HSCode:          r.String(model.KeyHSCode),
			Problematic:     true,
		}
		if cost, ok := r.Float(model.KeyCostPerPair); ok && cost >= 0 {
			m.CostPerUnit = &cost
		}
		m.AddNote(screeningNote)
		s.materials = append(s.materials, m)
		found = append(found, map[string]any{"name": m.Name, "country": m.CountryOfOrigin, "hs_code": m.HSCode})
	}

	return transition{
		record: model.StepRecord{
			Step:        4,
			Description: "Non-VN and non-EU materials identification",
			Details:     map[string]any{"materials_found": len(found), "materials": found},
		},
		commit: store.StepCommit{Materials: slices.Clone(s.materials)},
		next:   materialHSValidation,
	}
}

func materialHSValidation(s *state) transition {
	var invalid, absent int
	changed := false
	for i := range s.materials {
		m := &s.materials[i]
		switch {
		case m.HSCode == "":
			m.AddNote("Missing HS code")
			s.missing("hs_code_for_" + m.Name)
			absent++
			changed = true
		case hscode.IsValid(m.HSCode):
			m.AddNote(fmt.Sprintf("HS code %s validated", m.HSCode))
		default:
			m.AddNote(fmt.Sprintf("Invalid HS code: %s", m.HSCode))
			s.missing("valid_hs_code_for_" + m.Name)
			invalid++
			changed = true
		}
	}

	return transition{
		record: model.StepRecord{
			Step:        5,
			Description: "HS codes validation for problematic materials",
			Details: map[string]any{
				"materials_checked": len(s.materials),
				"invalid_hs_codes":  invalid,
				"missing_hs_codes":  absent,
			},
		},
		commit:         store.StepCommit{Materials: slices.Clone(s.materials)},
		missingChanged: changed,
		next:           criticalHeading,
	}
}

func criticalHeading(s *state) transition {
	note := fmt.Sprintf("Falls under heading %s", s.heading)
	var changed []model.MaterialRecord
	for i := range s.materials {
		m := &s.materials[i]
		if !hscode.IsHeading(m.HSCode, s.heading) {
			continue
		}
		m.AddNote(note)
		s.critical = append(s.critical, i)
		changed = append(changed, *m)
	}

	rec := model.StepRecord{
		Step:        6,
		Description: fmt.Sprintf("Heading %s check", s.heading),
		Details:     map[string]any{"heading": s.heading, "materials_in_heading": len(s.critical)},
	}
	if len(s.critical) == 0 {
		return terminal(rec, model.VerdictOriginating, fmt.Sprintf("No materials under heading %s found", s.heading))
	}
	return transition{record: rec, commit: store.StepCommit{Materials: changed}, next: costAnalysis}
}

func costAnalysis(s *state) transition {
	var total, critical float64
	var missingCost []string
	isCritical := make(map[int]bool, len(s.critical))
	for _, i := range s.critical {
		isCritical[i] = true
	}
	for i, m := range s.materials {
		if !m.HasCost() {
			s.missing("cost_per_pair_for_" + m.Name)
			missingCost = append(missingCost, m.Name)
			continue
		}
		total += *m.CostPerUnit
		if isCritical[i] {
			critical += *m.CostPerUnit
		}
	}

	if math.IsInf(total, 0) {
		s.missing("cost_per_pair (total cost out of range)")
		rec := model.StepRecord{
			Step:        7,
			Description: "Cost percentage analysis",
			Details: map[string]any{
				"threshold":         s.threshold,
				"missing_cost_data": missingCost,
			},
		}
		t := terminal(rec, model.VerdictIncomplete, "Total material cost is out of range")
		t.missingChanged = true
		return t
	}

	pct := 0.0
	switch {
	case total <= 0:
	case critical > math.MaxFloat64/100:
		pct = critical / total * 100
	default:
		pct = critical * 100 / total
	}
	met := pct <= s.threshold

	rec := model.StepRecord{
		Step:        7,
		Description: "Cost percentage analysis",
		Details: map[string]any{
			"critical_heading_cost": critical,
			"total_cost":            total,
			"percentage":            pct,
			"threshold":             s.threshold,
			"threshold_met":         met,
			"missing_cost_data":     missingCost,
		},
	}

	limit := strconv.FormatFloat(s.threshold, 'f', -1, 64)
	var t transition
	if met {
		t = terminal(rec, model.VerdictOriginating,
			fmt.Sprintf("Materials under heading %s represent %.2f%% of total cost (≤%s%%)", s.heading, pct, limit))
	} else {
		t = terminal(rec, model.VerdictNonOriginating,
			fmt.Sprintf("Materials under heading %s represent %.2f%% of total cost (>%s%%)", s.heading, pct, limit))
	}
	t.missingChanged = len(missingCost) > 0
	return t
}
