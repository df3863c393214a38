package origin

import "github.com/rotisserie/eris"

var (
	// ErrStepPanic wraps a panic recovered from a workflow step.
	ErrStepPanic = eris.New("origin: step panicked")

	// ErrNoStore is returned by New when no store is supplied.
	ErrNoStore = eris.New("origin: store is required")

	// ErrNoReference is returned by New when no reference source is supplied.
	ErrNoReference = eris.New("origin: reference data is required")
)
