package registry

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/origin-cli/internal/hscode"
)

// Lazy is a lazily-initialized, explicitly reloadable value. Get loads on
// first use; Reload discards the cached value so the next Get reads again.
type Lazy[T any] struct {
	load func(ctx context.Context) (T, error)

	mu     sync.RWMutex
	loaded bool
	val    T
}

// NewLazy wraps load in a Lazy.
func NewLazy[T any](load func(ctx context.Context) (T, error)) *Lazy[T] {
	return &Lazy[T]{load: load}
}

// Get returns the cached value, loading it on first call. A failed load is
// not cached.
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	l.mu.RLock()
	if l.loaded {
		v := l.val
		l.mu.RUnlock()
		return v, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return l.val, nil
	}
	v, err := l.load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	l.val = v
	l.loaded = true
	return v, nil
}

// Reload clears the cached value.
func (l *Lazy[T]) Reload() {
	l.mu.Lock()
	defer l.mu.Unlock()
	var zero T
	l.val = zero
	l.loaded = false
}

// Snapshot is a consistent, read-only view of all reference tables.
type Snapshot struct {
	Manufacturers *ManufacturerTable
	Rules         *RuleTable
	HSCodes       *hscode.Table
}

// Paths locates the reference data files.
type Paths struct {
	Manufacturers string
	Rules         []string
	HSCodes       string
}

// Reference owns the process-wide reference tables.
type Reference struct {
	manufacturers *Lazy[*ManufacturerTable]
	rules         *Lazy[*RuleTable]
	hsCodes       *Lazy[*hscode.Table]
}

// NewReference creates a Reference that loads tables from paths on demand.
func NewReference(paths Paths) *Reference {
	return &Reference{
		manufacturers: NewLazy(func(ctx context.Context) (*ManufacturerTable, error) {
			return LoadManufacturers(ctx, paths.Manufacturers)
		}),
		rules: NewLazy(func(context.Context) (*RuleTable, error) {
			return LoadRuleTable(paths.Rules...)
		}),
		hsCodes: NewLazy(func(context.Context) (*hscode.Table, error) {
			return hscode.LoadTable(paths.HSCodes)
		}),
	}
}

// StaticReference returns a Reference that always serves snap. Reload is a
// no-op. Used by tests and offline tooling.
func StaticReference(snap Snapshot) *Reference {
	return &Reference{
		manufacturers: NewLazy(func(context.Context) (*ManufacturerTable, error) { return snap.Manufacturers, nil }),
		rules:         NewLazy(func(context.Context) (*RuleTable, error) { return snap.Rules, nil }),
		hsCodes:       NewLazy(func(context.Context) (*hscode.Table, error) { return snap.HSCodes, nil }),
	}
}

// Snapshot returns the current tables, loading any that are not cached.
func (r *Reference) Snapshot(ctx context.Context) (Snapshot, error) {
	m, err := r.manufacturers.Get(ctx)
	if err != nil {
		return Snapshot{}, eris.Wrap(err, "registry: load manufacturers")
	}
	rules, err := r.rules.Get(ctx)
	if err != nil {
		return Snapshot{}, eris.Wrap(err, "registry: load rules")
	}
	hs, err := r.hsCodes.Get(ctx)
	if err != nil {
		return Snapshot{}, eris.Wrap(err, "registry: load hs codes")
	}
	return Snapshot{Manufacturers: m, Rules: rules, HSCodes: hs}, nil
}

// Reload clears every cached table. In-flight analyses keep the snapshot
// they already hold.
func (r *Reference) Reload() {
	r.manufacturers.Reload()
	r.rules.Reload()
	r.hsCodes.Reload()
	zap.L().Info("registry: reference data cache cleared")
}
