package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/origin-cli/internal/model"
	"github.com/sells-group/origin-cli/internal/resilience"
	"github.com/sells-group/origin-cli/pkg/anthropic"
)

// maxPromptMaterials bounds the material lines included in a prompt.
const maxPromptMaterials = 10

const systemPrompt = "You are an expert in Free Trade Agreement compliance and rules of origin. " +
	"Write for trade compliance officers and business managers."

// Claude explains cases through the Anthropic Messages API.
type Claude struct {
	client   anthropic.Client
	guard    *resilience.Guard
	cfg      Config
	fallback *Template
}

func newClaude(cfg Config, client anthropic.Client, fallback *Template) *Claude {
	return &Claude{
		client: client,
		guard: resilience.NewGuard(resilience.GuardConfig{
			Name:              "anthropic",
			RequestsPerSecond: cfg.RequestsPerSecond,
			FailureThreshold:  cfg.FailureThreshold,
			Cooldown:          time.Minute,
			Retry:             resilience.RetryPolicy{Attempts: 3, Backoff: time.Second, MaxBackoff: 8 * time.Second},
		}),
		cfg:      cfg,
		fallback: fallback,
	}
}

// Explain asks the model for an explanation and falls back to the template
// on any failure or empty answer.
func (c *Claude) Explain(ctx context.Context, s Summary) string {
	text, err := c.complete(ctx, "explanation", c.explanationPrompt(s), c.cfg.MaxTokens)
	if err != nil {
		zap.L().Warn("enrich: explanation failed, using template", zap.String("case_id", caseID(s)), zap.Error(err))
		return c.fallback.Explain(ctx, s)
	}
	if text == "" {
		zap.L().Warn("enrich: empty explanation, using template", zap.String("case_id", caseID(s)))
		return c.fallback.Explain(ctx, s)
	}
	return text
}

// MissingDataImpact asks the model how missing fields affect confidence.
// It is skipped when the case has no missing fields.
func (c *Claude) MissingDataImpact(ctx context.Context, s Summary) (string, bool) {
	if s.Case == nil || len(s.Case.MissingFields) == 0 {
		return "", false
	}
	text, err := c.complete(ctx, "missing_data_impact", c.impactPrompt(s), c.cfg.ImpactMaxTokens)
	if err != nil {
		zap.L().Warn("enrich: missing data analysis failed", zap.String("case_id", caseID(s)), zap.Error(err))
		return "", false
	}
	return text, text != ""
}

func (c *Claude) complete(ctx context.Context, purpose, prompt string, maxTokens int64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	temp := *c.cfg.Temperature
	req := anthropic.MessageRequest{
		Model:       c.cfg.Model,
		MaxTokens:   maxTokens,
		System:      []anthropic.SystemBlock{{Text: systemPrompt}},
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	}

	resp, err := resilience.Call(ctx, c.guard, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		resp, err := c.client.CreateMessage(ctx, req)
		if err != nil {
			if code, ok := anthropic.StatusCode(err); ok && resilience.IsTransientHTTPStatus(code) {
				return nil, resilience.NewTransientError(err, code)
			}
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return "", eris.Wrapf(err, "enrich: %s", purpose)
	}
	resp.Usage.Log(c.cfg.Model, purpose)
	return resp.Text(), nil
}

func (c *Claude) explanationPrompt(s Summary) string {
	cs := s.Case
	if cs == nil {
		cs = &model.AnalysisCase{}
	}
	manufacturer := orDefault(cs.Manufacturer, "Unknown")
	hs := orDefault(cs.FinalHSCode, "Not determined")
	verdict := cs.Verdict
	if verdict == "" {
		verdict = model.VerdictIncomplete
	}
	missing := "None"
	if len(cs.MissingFields) > 0 {
		missing = strings.Join(cs.MissingFields, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following %s origin determination case and explain it for business stakeholders.\n\n", c.cfg.Agreement)
	b.WriteString("CASE DETAILS:\n")
	fmt.Fprintf(&b, "- Manufacturer: %s\n", manufacturer)
	fmt.Fprintf(&b, "- Final Product HS Code: %s\n", hs)
	fmt.Fprintf(&b, "- Final Determination: %s\n", verdict.Label())
	fmt.Fprintf(&b, "- System Reason: %s\n", orDefault(cs.Reason, "No reason provided"))
	fmt.Fprintf(&b, "- Total Materials Analyzed: %d\n", len(s.Materials))
	fmt.Fprintf(&b, "- Problematic Materials (non-VN/non-EU): %d\n", problematicCount(s.Materials))
	fmt.Fprintf(&b, "- Materials under Heading %s: %d\n\n", c.cfg.CriticalHeading, headingCount(s.Materials, c.cfg.CriticalHeading))

	b.WriteString("ANALYSIS STEPS COMPLETED:\n")
	if len(cs.Steps) == 0 {
		b.WriteString("No detailed steps available\n")
	}
	for _, st := range cs.Steps {
		fmt.Fprintf(&b, "Step %d: %s\n", st.Step, st.Description)
	}

	fmt.Fprintf(&b, "\nMISSING DATA FIELDS:\n%s\n\n", missing)
	b.WriteString("MATERIAL DETAILS:\n")
	b.WriteString(formatMaterials(s.Materials))

	fmt.Fprintf(&b, "\n\nCover: an executive summary with the result, the key factors, how the %s rules were applied, "+
		"the impact of any missing data, and recommended next steps. Be specific about thresholds. "+
		"Keep it to four to six paragraphs.", c.cfg.Agreement)
	return b.String()
}

func (c *Claude) impactPrompt(s Summary) string {
	return fmt.Sprintf("Analyze the impact of missing data on origin determination accuracy under the %s.\n\n"+
		"Missing data fields: %s\n"+
		"Available materials: %d with varying completeness\n\n"+
		"In two or three paragraphs, identify the most critical missing fields, how the gaps affect compliance "+
		"confidence, and which data to collect first.",
		c.cfg.Agreement, strings.Join(s.Case.MissingFields, ", "), len(s.Materials))
}

func formatMaterials(materials []model.MaterialRecord) string {
	if len(materials) == 0 {
		return "No material data available"
	}
	lines := make([]string, 0, maxPromptMaterials+1)
	for i, m := range materials {
		if i == maxPromptMaterials {
			lines = append(lines, fmt.Sprintf("... and %d more materials", len(materials)-maxPromptMaterials))
			break
		}
		cost := "N/A"
		if m.CostPerUnit != nil {
			cost = fmt.Sprintf("%.2f", *m.CostPerUnit)
		}
		flag := "ok"
		if m.Problematic {
			flag = "problematic"
		}
		lines = append(lines, fmt.Sprintf("- %s | %s | HS: %s | Cost: %s | %s",
			orDefault(m.Name, "Unknown"), orDefault(m.CountryOfOrigin, "Unknown"), orDefault(m.HSCode, "N/A"), cost, flag))
	}
	return strings.Join(lines, "\n")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func caseID(s Summary) string {
	if s.Case == nil {
		return ""
	}
	return s.Case.ID
}
