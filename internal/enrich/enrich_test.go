package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/origin-cli/internal/model"
	"github.com/sells-group/origin-cli/internal/resilience"
	"github.com/sells-group/origin-cli/pkg/anthropic"
)

// mockClient implements anthropic.Client for testing.
type mockClient struct {
	mock.Mock
}

func (m *mockClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(s string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Type: "text", Text: s}}}
}

func floatPtr(f float64) *float64 { return &f }

func sampleSummary(missing ...string) Summary {
	return Summary{
		Case: &model.AnalysisCase{
			ID:            "case-1",
			Manufacturer:  "Acme",
			FinalHSCode:   "640399",
			Verdict:       model.VerdictNonOriginating,
			Reason:        "Materials under heading 6406 represent 15.00% of total cost (>10%)",
			MissingFields: missing,
			Steps: []model.StepRecord{
				{Step: 1, Description: "Manufacturer check"},
				{Step: 2, Description: "Final HS code"},
			},
		},
		Materials: []model.MaterialRecord{
			{Name: "Sole", CountryOfOrigin: "CN", HSCode: "640610", CostPerUnit: floatPtr(1.5), Problematic: true},
			{Name: "Strap", CountryOfOrigin: "CN", HSCode: "420100", CostPerUnit: floatPtr(8.5), Problematic: true},
		},
	}
}

func newTestClaude(client anthropic.Client) *Claude {
	c := newClaude(Config{CriticalHeading: "6406"}.withDefaults(), client, &Template{Agreement: "EU-Vietnam FTA"})
	c.guard = resilience.NewGuard(resilience.GuardConfig{
		Name:             "test",
		FailureThreshold: 10,
		Retry:            resilience.RetryPolicy{Attempts: 3, Backoff: time.Millisecond, MaxBackoff: time.Millisecond},
	})
	return c
}

func TestNew_SelectsAdapter(t *testing.T) {
	_, isTemplate := New(Config{}, nil).(*Template)
	assert.True(t, isTemplate)

	_, isClaude := New(Config{APIKey: "sk-test"}, nil).(*Claude)
	assert.True(t, isClaude)

	_, isClaude = New(Config{}, new(mockClient)).(*Claude)
	assert.True(t, isClaude)
}

func TestTemplate_Explain(t *testing.T) {
	tmpl := &Template{Agreement: "EU-Vietnam FTA"}
	text := tmpl.Explain(context.Background(), sampleSummary("cost_per_pair_for_Lace", "hs_code_for_Lace"))

	assert.Contains(t, text, "**Final Result:** NON ORIGINATING")
	assert.Contains(t, text, "determined to be non originating")
	assert.Contains(t, text, `"Acme"`)
	assert.Contains(t, text, "seven-step")
	assert.Contains(t, text, "- cost_per_pair_for_Lace\n")
	assert.Contains(t, text, "- hs_code_for_Lace\n")
	assert.Contains(t, text, "**Next Steps:**")
}

func TestTemplate_Explain_EmptyCase(t *testing.T) {
	tmpl := &Template{Agreement: "EU-Vietnam FTA"}
	text := tmpl.Explain(context.Background(), Summary{})

	assert.Contains(t, text, "INCOMPLETE")
	assert.Contains(t, text, "Not identified")
	assert.NotContains(t, text, "Data Quality Issues")
}

func TestTemplate_NoImpactNarrative(t *testing.T) {
	tmpl := &Template{}
	_, ok := tmpl.MissingDataImpact(context.Background(), sampleSummary("manufacturer"))
	assert.False(t, ok)
}

func TestClaude_Explain(t *testing.T) {
	mc := new(mockClient)
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		prompt := req.Messages[0].Content
		return req.MaxTokens == 800 &&
			req.Temperature != nil && *req.Temperature == 0.3 &&
			strings.Contains(prompt, "Manufacturer: Acme") &&
			strings.Contains(prompt, "Materials under Heading 6406: 1") &&
			strings.Contains(prompt, "Step 2: Final HS code") &&
			strings.Contains(prompt, "MISSING DATA FIELDS:\nNone")
	})).Return(textResponse("  Detailed explanation.  "), nil)

	c := newTestClaude(mc)
	text := c.Explain(context.Background(), sampleSummary())
	assert.Equal(t, "Detailed explanation.", text)
	mc.AssertExpectations(t)
}

func TestClaude_ExplicitZeroTemperature(t *testing.T) {
	mc := new(mockClient)
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Temperature != nil && *req.Temperature == 0
	})).Return(textResponse("Deterministic."), nil)

	zero := 0.0
	c := newTestClaude(mc)
	c.cfg = Config{CriticalHeading: "6406", Temperature: &zero}.withDefaults()

	assert.Equal(t, "Deterministic.", c.Explain(context.Background(), sampleSummary()))
	mc.AssertExpectations(t)
}

func TestClaude_Explain_FallsBackOnError(t *testing.T) {
	mc := new(mockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("invalid api key")).Once()

	c := newTestClaude(mc)
	text := c.Explain(context.Background(), sampleSummary())
	assert.Contains(t, text, "**FTA Origin Determination Analysis**")
	mc.AssertExpectations(t)
}

func TestClaude_Explain_FallsBackOnEmpty(t *testing.T) {
	mc := new(mockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("   "), nil)

	c := newTestClaude(mc)
	text := c.Explain(context.Background(), sampleSummary())
	assert.Contains(t, text, "**FTA Origin Determination Analysis**")
}

func TestClaude_Explain_RetriesTransient(t *testing.T) {
	mc := new(mockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, resilience.NewTransientError(errors.New("overloaded"), 529)).Once()
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("Recovered."), nil).Once()

	c := newTestClaude(mc)
	assert.Equal(t, "Recovered.", c.Explain(context.Background(), sampleSummary()))
	mc.AssertNumberOfCalls(t, "CreateMessage", 2)
}

func TestClaude_MissingDataImpact(t *testing.T) {
	mc := new(mockClient)
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.MaxTokens == 400 && strings.Contains(req.Messages[0].Content, "hs_code_for_Lace")
	})).Return(textResponse("Impact narrative."), nil)

	c := newTestClaude(mc)
	text, ok := c.MissingDataImpact(context.Background(), sampleSummary("hs_code_for_Lace"))
	require.True(t, ok)
	assert.Equal(t, "Impact narrative.", text)
}

func TestClaude_MissingDataImpact_SkippedWithoutMissing(t *testing.T) {
	mc := new(mockClient)
	c := newTestClaude(mc)

	_, ok := c.MissingDataImpact(context.Background(), sampleSummary())
	assert.False(t, ok)
	mc.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestClaude_MissingDataImpact_Failure(t *testing.T) {
	mc := new(mockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("bad request"))

	c := newTestClaude(mc)
	_, ok := c.MissingDataImpact(context.Background(), sampleSummary("manufacturer"))
	assert.False(t, ok)
}

func TestFormatMaterials_Truncates(t *testing.T) {
	var mats []model.MaterialRecord
	for i := 0; i < 12; i++ {
		mats = append(mats, model.MaterialRecord{Name: fmt.Sprintf("m%d", i)})
	}
	out := formatMaterials(mats)
	assert.Equal(t, 11, strings.Count(out, "\n")+1)
	assert.Contains(t, out, "... and 2 more materials")
	assert.Contains(t, out, "HS: N/A | Cost: N/A | ok")
	assert.Equal(t, "No material data available", formatMaterials(nil))
}
