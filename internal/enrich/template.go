package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/origin-cli/internal/model"
)

// Template renders deterministic explanations without any backend.
type Template struct {
	Agreement string
}

// Explain renders the fallback explanation for s.
func (t *Template) Explain(_ context.Context, s Summary) string {
	c := s.Case
	if c == nil {
		c = &model.AnalysisCase{}
	}
	verdict := c.Verdict
	if verdict == "" {
		verdict = model.VerdictIncomplete
	}
	reason := c.Reason
	if reason == "" {
		reason = "Analysis could not be completed"
	}
	manufacturer := c.Manufacturer
	if manufacturer == "" {
		manufacturer = "Not identified"
	}
	plain := strings.ToLower(verdict.Label())

	var b strings.Builder
	b.WriteString("**FTA Origin Determination Analysis**\n\n")
	fmt.Fprintf(&b, "**Final Result:** %s\n\n", verdict.Label())
	fmt.Fprintf(&b, "**Summary:** Under the %s, this product was determined to be %s. %s\n\n", t.Agreement, plain, reason)
	fmt.Fprintf(&b, "**Manufacturer Analysis:** The manufacturer identified was %q. "+
		"Preferential treatment under the %s requires manufacture in Vietnam by a Vietnamese entity.\n\n", manufacturer, t.Agreement)
	b.WriteString("**Analysis Process:** The determination follows a seven-step workflow covering manufacturer location, " +
		"the final product HS code, the applicable FTA rules, material origins, material HS codes, the critical heading " +
		"and the non-originating cost threshold. Steps after a terminal finding are not evaluated.\n")

	if len(c.MissingFields) > 0 {
		b.WriteString("\n**Data Quality Issues:** The following fields were missing or incomplete:\n")
		for _, f := range c.MissingFields {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	b.WriteString("\n**Next Steps:** Populate every required field in the costing sheet and resubmit for a complete " +
		"assessment. Complex cases should be reviewed by a trade compliance specialist.\n\n")
	b.WriteString("*This automated analysis is preliminary guidance. Final origin determinations should be validated " +
		"by qualified trade compliance professionals.*\n")
	return b.String()
}

// MissingDataImpact is not produced by the template adapter.
func (t *Template) MissingDataImpact(context.Context, Summary) (string, bool) {
	return "", false
}
