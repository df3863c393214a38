package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/origin-cli/internal/model"
)

// ErrNotFound is returned when a case does not exist.
var ErrNotFound = eris.New("store: not found")

// CaseFilter specifies criteria for listing cases.
type CaseFilter struct {
	Verdict   model.Verdict `json:"verdict,omitempty"`
	Completed *bool         `json:"completed,omitempty"`
	Limit     int           `json:"limit,omitempty"`
	Offset    int           `json:"offset,omitempty"`
}

// StepCommit is everything one workflow step writes. It is applied in a
// single transaction.
type StepCommit struct {
	Record       model.StepRecord
	Manufacturer *string
	FinalHSCode  *string
	// Materials are upserted by ID. New materials must carry an ID.
	Materials []model.MaterialRecord
	// MissingFields replaces the stored list when non-nil.
	MissingFields []string
}

// Finalization is the terminal state written once per case.
type Finalization struct {
	Verdict       model.Verdict
	Reason        string
	MissingFields []string
}

// Enrichment is the optional prose attached after finalization.
type Enrichment struct {
	Explanation         string
	MissingDataAnalysis string
}

// Store defines the persistence interface for analysis cases.
type Store interface {
	// Cases
	CreateCase(ctx context.Context, filename string) (*model.AnalysisCase, error)
	CommitStep(ctx context.Context, caseID string, commit StepCommit) error
	Finalize(ctx context.Context, caseID string, fin Finalization) error
	SetEnrichment(ctx context.Context, caseID string, e Enrichment) error
	GetCase(ctx context.Context, caseID string) (*model.AnalysisCase, error)
	ListCases(ctx context.Context, filter CaseFilter) ([]model.AnalysisCase, error)
	DeleteCase(ctx context.Context, caseID string) error

	// Materials
	ListMaterials(ctx context.Context, caseID string) ([]model.MaterialRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func listLimit(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}
