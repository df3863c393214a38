// Package enrich produces prose explanations for completed analysis cases.
// A Claude-backed adapter is used when an API key is configured; otherwise
// and on any backend failure the deterministic Template is used.
package enrich

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/origin-cli/internal/hscode"
	"github.com/sells-group/origin-cli/internal/model"
	"github.com/sells-group/origin-cli/pkg/anthropic"
)

// Summary is the input to an explainer.
type Summary struct {
	Case      *model.AnalysisCase
	Materials []model.MaterialRecord
}

// Explainer turns a finalized case into prose.
type Explainer interface {
	// Explain always returns text.
	Explain(ctx context.Context, s Summary) string
	// MissingDataImpact returns a narrative on how missing fields affect the
	// determination. ok is false when no narrative is available.
	MissingDataImpact(ctx context.Context, s Summary) (text string, ok bool)
}

// Config selects and tunes the explainer. A nil Temperature selects 0.3;
// an explicit zero is sent as is.
type Config struct {
	APIKey            string
	Model             string
	MaxTokens         int64
	ImpactMaxTokens   int64
	Temperature       *float64
	Timeout           time.Duration
	RequestsPerSecond float64
	FailureThreshold  int

	Agreement       string
	CriticalHeading string
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "claude-sonnet-4-5-20250929"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 800
	}
	if c.ImpactMaxTokens <= 0 {
		c.ImpactMaxTokens = 400
	}
	if c.Temperature == nil {
		t := 0.3
		c.Temperature = &t
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Agreement == "" {
		c.Agreement = "EU-Vietnam FTA"
	}
	if c.CriticalHeading == "" {
		c.CriticalHeading = "6406"
	}
	return c
}

// New returns the Claude adapter when client is non-nil or an API key is
// configured, and the Template adapter otherwise.
func New(cfg Config, client anthropic.Client) Explainer {
	cfg = cfg.withDefaults()
	tmpl := &Template{Agreement: cfg.Agreement}
	if client == nil {
		if cfg.APIKey == "" {
			zap.L().Info("enrich: no anthropic key configured, using template explanations")
			return tmpl
		}
		client = anthropic.NewClient(cfg.APIKey, cfg.Timeout)
	}
	return newClaude(cfg, client, tmpl)
}

// headingCount counts materials whose HS code starts with heading.
func headingCount(materials []model.MaterialRecord, heading string) int {
	n := 0
	for _, m := range materials {
		if hscode.IsHeading(m.HSCode, heading) {
			n++
		}
	}
	return n
}

func problematicCount(materials []model.MaterialRecord) int {
	n := 0
	for _, m := range materials {
		if m.Problematic {
			n++
		}
	}
	return n
}
