package model

import (
	"time"
)

// Verdict is the terminal outcome of an origin determination.
type Verdict string

const (
	VerdictOriginating    Verdict = "originating"
	VerdictNonOriginating Verdict = "non_originating"
	VerdictIncomplete     Verdict = "incomplete"
	VerdictError          Verdict = "error"
)

// Valid reports whether v is one of the known terminal verdicts.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictOriginating, VerdictNonOriginating, VerdictIncomplete, VerdictError:
		return true
	default:
		return false
	}
}

// Label returns the verdict in upper-case words, e.g. "NON ORIGINATING".
func (v Verdict) Label() string {
	if v == "" {
		return "INCOMPLETE"
	}
	out := make([]byte, 0, len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c == '_':
			out = append(out, ' ')
		case c >= 'a' && c <= 'z':
			out = append(out, c-'a'+'A')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

// AnalysisCase is the root aggregate for one uploaded costing sheet.
type AnalysisCase struct {
	ID                  string       `json:"id"`
	Filename            string       `json:"filename"`
	SubmittedAt         time.Time    `json:"submitted_at"`
	Manufacturer        string       `json:"manufacturer,omitempty"`
	FinalHSCode         string       `json:"final_hs_code,omitempty"`
	Steps               []StepRecord `json:"steps"`
	Verdict             Verdict      `json:"result,omitempty"`
	Reason              string       `json:"reason,omitempty"`
	MissingFields       []string     `json:"missing_fields"`
	Completed           bool         `json:"completed"`
	Explanation         string       `json:"explanation,omitempty"`
	MissingDataAnalysis string       `json:"missing_data_analysis,omitempty"`
}

// LastStep returns the number of the last recorded step, or 0 when none.
func (c *AnalysisCase) LastStep() int {
	if len(c.Steps) == 0 {
		return 0
	}
	return c.Steps[len(c.Steps)-1].Step
}

// Status is the case status query projection.
type Status struct {
	Completed     bool         `json:"completed"`
	Steps         []StepRecord `json:"steps"`
	Result        *Verdict     `json:"result"`
	Reason        *string      `json:"reason"`
	MissingFields []string     `json:"missing_fields"`
}

// Status projects the case into its status query shape. Result and reason
// are null until the case reaches a verdict.
func (c *AnalysisCase) Status() Status {
	st := Status{
		Completed:     c.Completed,
		Steps:         c.Steps,
		MissingFields: c.MissingFields,
	}
	if st.Steps == nil {
		st.Steps = []StepRecord{}
	}
	if st.MissingFields == nil {
		st.MissingFields = []string{}
	}
	if c.Verdict != "" {
		v := c.Verdict
		st.Result = &v
	}
	if c.Reason != "" {
		r := c.Reason
		st.Reason = &r
	}
	return st
}

// StepRecord is one audit-trail entry produced by a workflow step.
type StepRecord struct {
	Step        int            `json:"step"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
	RecordedAt  time.Time      `json:"recorded_at"`
}

// MaterialRecord is a bill-of-materials line flagged during screening.
type MaterialRecord struct {
	ID              string   `json:"id"`
	CaseID          string   `json:"case_id"`
	Position        int      `json:"position"`
	Name            string   `json:"material_name"`
	CountryOfOrigin string   `json:"country_of_origin"`
	HSCode          string   `json:"hs_code"`
	CostPerUnit     *float64 `json:"cost_per_pair"`
	Problematic     bool     `json:"is_problematic"`
	Notes           string   `json:"analysis_notes"`
}

// AddNote appends a note, separating it from earlier notes with " | ".
func (m *MaterialRecord) AddNote(note string) {
	if m.Notes == "" {
		m.Notes = note
		return
	}
	m.Notes += " | " + note
}

// HasCost reports whether the material carries a known per-unit cost.
func (m *MaterialRecord) HasCost() bool {
	return m.CostPerUnit != nil
}
