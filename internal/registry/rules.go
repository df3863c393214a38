package registry

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/origin-cli/internal/hscode"
	"github.com/sells-group/origin-cli/internal/model"
)

// DefaultKey is the rule table key used when no code or heading matches.
const DefaultKey = "default"

// RuleTable maps HS codes and headings to FTA rule sets. It is immutable
// once built and safe for concurrent reads.
type RuleTable struct {
	sets map[string]model.RuleSet
}

// NewRuleTable builds a table from key → rule set pairs. A built-in default
// entry is added when sets has none.
func NewRuleTable(sets map[string]model.RuleSet) *RuleTable {
	t := &RuleTable{sets: make(map[string]model.RuleSet, len(sets)+1)}
	for k, v := range sets {
		key := strings.TrimSpace(k)
		if key != DefaultKey {
			key = hscode.Normalize(key)
		}
		v.Key = key
		t.sets[key] = v
	}
	if _, ok := t.sets[DefaultKey]; !ok {
		d := builtinRules()[DefaultKey]
		d.Key = DefaultKey
		t.sets[DefaultKey] = d
	}
	return t
}

// DefaultRuleTable returns the built-in rule table.
func DefaultRuleTable() *RuleTable {
	return NewRuleTable(builtinRules())
}

func builtinRules() map[string]model.RuleSet {
	ten := 10.0
	return map[string]model.RuleSet{
		DefaultKey: {
			Description: "General rules for origin determination",
			Rules: []string{
				"Manufacturing or processing must result in a change in tariff classification",
				"Value-added content must meet minimum thresholds",
				"Specific manufacturing processes may be required",
			},
		},
		"6406": {
			Description: "Parts of footwear; removable in-soles, heel cushions",
			Rules: []string{
				"Non-originating materials must not exceed 10% of FOB value",
				"Manufacturing must involve substantial transformation",
				"Assembly and finishing operations must occur in the originating country",
			},
			Threshold: &ten,
		},
	}
}

// Len returns the number of rule sets including the default.
func (t *RuleTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.sets)
}

// RulesFor resolves the rule set for hsCode: exact code, then 4-digit
// heading, then the default entry.
func (t *RuleTable) RulesFor(hsCode string) model.RuleSet {
	if t == nil {
		t = DefaultRuleTable()
	}
	code := hscode.Normalize(hsCode)
	if code != "" {
		if rs, ok := t.sets[code]; ok {
			return rs
		}
		heading := code
		if len(code) >= 4 {
			heading = code[:4]
		}
		if rs, ok := t.sets[heading]; ok {
			return rs
		}
	}
	return t.sets[DefaultKey]
}

// ThresholdFor returns the non-originating content threshold for hsCode.
func (t *RuleTable) ThresholdFor(hsCode string) float64 {
	return t.RulesFor(hsCode).ThresholdOrDefault()
}

// CheckCompliance compares a non-originating percentage against the
// threshold for hsCode. The comparison is inclusive.
func (t *RuleTable) CheckCompliance(hsCode string, nonOriginatingPct float64) model.Compliance {
	rs := t.RulesFor(hsCode)
	threshold := rs.ThresholdOrDefault()
	return model.Compliance{
		Compliant:  nonOriginatingPct <= threshold,
		Threshold:  threshold,
		Percentage: nonOriginatingPct,
		Rules:      rs,
	}
}

// LoadRuleTable reads the first existing file in paths (JSON, or YAML by
// .yaml/.yml extension). When none exists the built-in table is returned.
func LoadRuleTable(paths ...string) (*RuleTable, error) {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "registry: read rules %s", path)
		}

		var sets map[string]model.RuleSet
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, &sets)
		default:
			err = json.Unmarshal(data, &sets)
		}
		if err != nil {
			return nil, eris.Wrapf(err, "registry: unmarshal rules %s", path)
		}

		zap.L().Info("registry: fta rules loaded", zap.String("path", path), zap.Int("rule_sets", len(sets)))
		return NewRuleTable(sets), nil
	}

	zap.L().Warn("registry: no fta rules file found, using default rules", zap.Strings("paths", paths))
	return DefaultRuleTable(), nil
}
