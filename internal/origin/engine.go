// Package origin runs the seven-step FTA origin determination workflow.
package origin

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/origin-cli/internal/enrich"
	"github.com/sells-group/origin-cli/internal/model"
	"github.com/sells-group/origin-cli/internal/registry"
	"github.com/sells-group/origin-cli/internal/store"
)

// DefaultCriticalHeading is the footwear-parts heading subject to the
// non-originating content threshold.
const DefaultCriticalHeading = "6406"

// Reference supplies a consistent view of the reference tables.
type Reference interface {
	Snapshot(ctx context.Context) (registry.Snapshot, error)
}

// Options tunes an Engine.
type Options struct {
	CriticalHeading string
	// Now overrides the clock used for step timestamps.
	Now func() time.Time
}

// Engine determines origin for one case at a time. It holds no per-case
// state and is safe for concurrent use.
type Engine struct {
	store     store.Store
	ref       Reference
	explainer enrich.Explainer
	heading   string
	now       func() time.Time
}

// New creates an Engine. explainer may be nil to skip enrichment.
func New(st store.Store, ref Reference, explainer enrich.Explainer, opts Options) (*Engine, error) {
	if st == nil {
		return nil, ErrNoStore
	}
	if ref == nil {
		return nil, ErrNoReference
	}
	heading := opts.CriticalHeading
	if heading == "" {
		heading = DefaultCriticalHeading
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{store: st, ref: ref, explainer: explainer, heading: heading, now: now}, nil
}

// Analyze creates a case for filename and runs the workflow over rows to a
// terminal verdict. Store writes are detached from ctx cancellation so a
// started case always finishes. The returned error is non-nil only when
// the case could not be created or finalized.
func (e *Engine) Analyze(ctx context.Context, filename string, rows []model.Row) (*model.AnalysisCase, error) {
	ctx = context.WithoutCancel(ctx)

	c, err := e.store.CreateCase(ctx, filename)
	if err != nil {
		return nil, eris.Wrap(err, "origin: create case")
	}
	log := zap.L().With(zap.String("case_id", c.ID), zap.String("filename", filename))
	log.Info("origin: analysis started", zap.Int("rows", len(rows)))

	out, materials := e.run(ctx, c, rows, log)

	c.Verdict = out.Verdict
	c.Reason = out.Reason
	if err := e.store.Finalize(ctx, c.ID, store.Finalization{
		Verdict:       c.Verdict,
		Reason:        c.Reason,
		MissingFields: c.MissingFields,
	}); err != nil {
		return c, eris.Wrap(err, "origin: finalize case")
	}
	c.Completed = true
	log.Info("origin: analysis completed",
		zap.String("verdict", string(c.Verdict)),
		zap.String("reason", c.Reason),
		zap.Int("steps", len(c.Steps)),
		zap.Strings("missing_fields", c.MissingFields),
	)

	e.enrich(ctx, c, materials, log)
	return c, nil
}

// run drives the state machine and converts any failure into an error
// outcome. Steps committed before a failure remain.
func (e *Engine) run(ctx context.Context, c *model.AnalysisCase, rows []model.Row, log *zap.Logger) (Outcome, []model.MaterialRecord) {
	snap, err := e.ref.Snapshot(ctx)
	if err != nil {
		log.Error("origin: reference data unavailable", zap.Error(err))
		return errorOutcome(err), nil
	}

	s := &state{
		c:       c,
		rows:    rows,
		snap:    snap,
		heading: e.heading,
	}

	for step := stepFunc(manufacturerCheck); ; {
		t, err := e.apply(step, s)
		if err != nil {
			log.Error("origin: step failed", zap.Int("step", c.LastStep()+1), zap.Error(err))
			return errorOutcome(err), s.materials
		}

		rec := t.record
		rec.RecordedAt = e.now()
		commit := t.commit
		commit.Record = rec
		if t.missingChanged {
			commit.MissingFields = slices.Clone(c.MissingFields)
		}
		if err := e.store.CommitStep(ctx, c.ID, commit); err != nil {
			log.Error("origin: step commit failed", zap.Int("step", rec.Step), zap.Error(err))
			return errorOutcome(err), s.materials
		}
		c.Steps = append(c.Steps, rec)
		log.Info("origin: step recorded", zap.Int("step", rec.Step), zap.String("description", rec.Description))

		if t.outcome != nil {
			return *t.outcome, s.materials
		}
		step = t.next
	}
}

// apply runs one step, recovering panics as errors.
func (e *Engine) apply(step stepFunc, s *state) (t transition, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Wrapf(ErrStepPanic, "%v", r)
		}
	}()
	t = step(s)
	if t.outcome == nil && t.next == nil {
		return t, eris.Errorf("origin: step %d returned neither outcome nor next step", t.record.Step)
	}
	return t, nil
}

func (e *Engine) enrich(ctx context.Context, c *model.AnalysisCase, materials []model.MaterialRecord, log *zap.Logger) {
	if e.explainer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("origin: enrichment panicked", zap.Any("panic", r))
		}
	}()

	sum := enrich.Summary{Case: c, Materials: materials}
	var en store.Enrichment
	en.Explanation = e.explainer.Explain(ctx, sum)
	if text, ok := e.explainer.MissingDataImpact(ctx, sum); ok {
		en.MissingDataAnalysis = text
	}

	if err := e.store.SetEnrichment(ctx, c.ID, en); err != nil {
		log.Warn("origin: enrichment not saved", zap.Error(err))
		return
	}
	c.Explanation = en.Explanation
	c.MissingDataAnalysis = en.MissingDataAnalysis
}

func errorOutcome(err error) Outcome {
	return Outcome{Verdict: model.VerdictError, Reason: fmt.Sprintf("Analysis error: %s", err.Error())}
}
