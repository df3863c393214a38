package model

// RegistryEntry is one manufacturer in the reference list. The unexported
// shadow fields hold trimmed, case-folded copies for matching.
type RegistryEntry struct {
	ManufacturerID string `json:"manufacturer_id"`
	Name           string `json:"name"`
	Country        string `json:"country"`
	CountryCode    string `json:"country_code"`

	IDNorm      string `json:"-"`
	NameNorm    string `json:"-"`
	CountryNorm string `json:"-"`
	CodeNorm    string `json:"-"`
}

// DefaultThreshold is the non-originating content threshold percentage used
// when a rule set does not carry one.
const DefaultThreshold = 10.0

// RuleSet is an FTA rule table entry keyed by HS code, heading or "default".
type RuleSet struct {
	Key         string   `json:"key,omitempty" yaml:"-"`
	Description string   `json:"description" yaml:"description"`
	Rules       []string `json:"rules" yaml:"rules"`
	Threshold   *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// ThresholdOrDefault returns the configured threshold or DefaultThreshold.
func (r RuleSet) ThresholdOrDefault() float64 {
	if r.Threshold == nil {
		return DefaultThreshold
	}
	return *r.Threshold
}

// Compliance is the outcome of comparing a percentage against a rule set.
type Compliance struct {
	Compliant  bool    `json:"compliant"`
	Threshold  float64 `json:"threshold"`
	Percentage float64 `json:"percentage"`
	Rules      RuleSet `json:"rules"`
}
