package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/origin-cli/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetCase", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		c, err := s.CreateCase(ctx, "costing.xlsx")
		require.NoError(t, err)
		assert.NotEmpty(t, c.ID)
		assert.False(t, c.Completed)

		got, err := s.GetCase(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "costing.xlsx", got.Filename)
		assert.Empty(t, got.Steps)
		assert.Empty(t, got.MissingFields)
		assert.Empty(t, got.Verdict)
		assert.WithinDuration(t, c.SubmittedAt, got.SubmittedAt, time.Second)
	})

	t.Run("GetCase_NotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetCase(context.Background(), "missing")
		require.Error(t, err)
		assert.True(t, eris.Is(err, ErrNotFound))
	})

	t.Run("CommitStep", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		c, err := s.CreateCase(ctx, "costing.csv")
		require.NoError(t, err)

		require.NoError(t, s.CommitStep(ctx, c.ID, StepCommit{
			Record: model.StepRecord{
				Step:        1,
				Description: "Manufacturer check",
				Details:     map[string]any{"is_vietnamese": true},
			},
			Manufacturer: strPtr("Acme"),
		}))

		matID := uuid.New().String()
		require.NoError(t, s.CommitStep(ctx, c.ID, StepCommit{
			Record:      model.StepRecord{Step: 2, Description: "Final HS code"},
			FinalHSCode: strPtr("640399"),
			Materials: []model.MaterialRecord{{
				ID: matID, Position: 0, Name: "Sole", CountryOfOrigin: "CN",
				HSCode: "640610", CostPerUnit: floatPtr(1.5), Problematic: true, Notes: "first",
			}},
			MissingFields: []string{"cost_per_pair_for_Strap"},
		}))

		// Upsert updates notes and flag on an existing material.
		require.NoError(t, s.CommitStep(ctx, c.ID, StepCommit{
			Record: model.StepRecord{Step: 5, Description: "Material HS validation"},
			Materials: []model.MaterialRecord{{
				ID: matID, Position: 0, Name: "Sole", CountryOfOrigin: "CN",
				HSCode: "640610", CostPerUnit: floatPtr(1.5), Problematic: true, Notes: "first | second",
			}},
		}))

		got, err := s.GetCase(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "Acme", got.Manufacturer)
		assert.Equal(t, "640399", got.FinalHSCode)
		assert.Equal(t, []string{"cost_per_pair_for_Strap"}, got.MissingFields)
		require.Len(t, got.Steps, 3)
		assert.Equal(t, []int{1, 2, 5}, []int{got.Steps[0].Step, got.Steps[1].Step, got.Steps[2].Step})
		assert.Equal(t, true, got.Steps[0].Details["is_vietnamese"])

		mats, err := s.ListMaterials(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, mats, 1)
		assert.Equal(t, "first | second", mats[0].Notes)
		require.NotNil(t, mats[0].CostPerUnit)
		assert.InDelta(t, 1.5, *mats[0].CostPerUnit, 1e-9)
		assert.True(t, mats[0].Problematic)
	})

	t.Run("CommitStep_UnknownCaseRollsBack", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		err := s.CommitStep(ctx, "missing", StepCommit{
			Record:       model.StepRecord{Step: 1, Description: "Manufacturer check"},
			Manufacturer: strPtr("Acme"),
		})
		require.Error(t, err)
		assert.True(t, eris.Is(err, ErrNotFound))
	})

	t.Run("MaterialWithoutCost", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		c, err := s.CreateCase(ctx, "costing.csv")
		require.NoError(t, err)

		require.NoError(t, s.CommitStep(ctx, c.ID, StepCommit{
			Record: model.StepRecord{Step: 4, Description: "Material screening"},
			Materials: []model.MaterialRecord{
				{ID: uuid.New().String(), Position: 1, Name: "Strap", CountryOfOrigin: "CN", Problematic: true},
				{ID: uuid.New().String(), Position: 0, Name: "Sole", CountryOfOrigin: "CN", CostPerUnit: floatPtr(2), Problematic: true},
			},
		}))

		mats, err := s.ListMaterials(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, mats, 2)
		assert.Equal(t, "Sole", mats[0].Name, "ordered by position")
		assert.Nil(t, mats[1].CostPerUnit)
	})

	t.Run("FinalizeAndEnrich", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		c, err := s.CreateCase(ctx, "costing.xlsx")
		require.NoError(t, err)

		require.NoError(t, s.Finalize(ctx, c.ID, Finalization{
			Verdict:       model.VerdictIncomplete,
			Reason:        "Manufacturer information missing",
			MissingFields: []string{"manufacturer"},
		}))
		require.NoError(t, s.SetEnrichment(ctx, c.ID, Enrichment{Explanation: "because", MissingDataAnalysis: "impact"}))

		got, err := s.GetCase(ctx, c.ID)
		require.NoError(t, err)
		assert.True(t, got.Completed)
		assert.Equal(t, model.VerdictIncomplete, got.Verdict)
		assert.Equal(t, "Manufacturer information missing", got.Reason)
		assert.Equal(t, []string{"manufacturer"}, got.MissingFields)
		assert.Equal(t, "because", got.Explanation)
		assert.Equal(t, "impact", got.MissingDataAnalysis)
	})

	t.Run("Finalize_NotFound", func(t *testing.T) {
		s := newStore(t)
		err := s.Finalize(context.Background(), "missing", Finalization{Verdict: model.VerdictError})
		assert.True(t, eris.Is(err, ErrNotFound))
	})

	t.Run("ListCases", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a, err := s.CreateCase(ctx, "a.xlsx")
		require.NoError(t, err)
		_, err = s.CreateCase(ctx, "b.xlsx")
		require.NoError(t, err)
		require.NoError(t, s.Finalize(ctx, a.ID, Finalization{Verdict: model.VerdictOriginating, Reason: "ok"}))

		all, err := s.ListCases(ctx, CaseFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		done := true
		completed, err := s.ListCases(ctx, CaseFilter{Completed: &done})
		require.NoError(t, err)
		require.Len(t, completed, 1)
		assert.Equal(t, a.ID, completed[0].ID)

		byVerdict, err := s.ListCases(ctx, CaseFilter{Verdict: model.VerdictOriginating})
		require.NoError(t, err)
		assert.Len(t, byVerdict, 1)

		limited, err := s.ListCases(ctx, CaseFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("DeleteCaseCascades", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		c, err := s.CreateCase(ctx, "costing.xlsx")
		require.NoError(t, err)
		require.NoError(t, s.CommitStep(ctx, c.ID, StepCommit{
			Record:    model.StepRecord{Step: 4, Description: "Material screening"},
			Materials: []model.MaterialRecord{{ID: uuid.New().String(), Name: "Sole", CountryOfOrigin: "CN"}},
		}))

		require.NoError(t, s.DeleteCase(ctx, c.ID))

		_, err = s.GetCase(ctx, c.ID)
		assert.True(t, eris.Is(err, ErrNotFound))
		mats, err := s.ListMaterials(ctx, c.ID)
		require.NoError(t, err)
		assert.Empty(t, mats)

		assert.True(t, eris.Is(s.DeleteCase(ctx, c.ID), ErrNotFound))
	})
}
