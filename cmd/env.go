package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/origin-cli/internal/config"
	"github.com/sells-group/origin-cli/internal/enrich"
	"github.com/sells-group/origin-cli/internal/origin"
	"github.com/sells-group/origin-cli/internal/registry"
	"github.com/sells-group/origin-cli/internal/store"
)

// originEnv holds the store, reference data and engine shared by the
// analyze/batch/serve commands.
type originEnv struct {
	Store     store.Store
	Reference *registry.Reference
	Engine    *origin.Engine
}

// Close releases resources held by the environment.
func (e *originEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates config for mode, opens and migrates the store, warms
// the reference data and builds the engine. Callers should defer
// env.Close().
func initEnv(ctx context.Context, mode string) (*originEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	ref := newReference(cfg.Reference)
	snap, err := ref.Snapshot(ctx)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load reference data")
	}
	zap.L().Info("reference data loaded",
		zap.Int("manufacturers", snap.Manufacturers.Len()),
		zap.Int("rule_sets", snap.Rules.Len()),
		zap.Int("hs_codes", snap.HSCodes.Len()),
	)

	eng, err := origin.New(st, ref, newExplainer(cfg), origin.Options{
		CriticalHeading: cfg.Agreement.CriticalHeading,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &originEnv{Store: st, Reference: ref, Engine: eng}, nil
}

func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "sqlite":
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "origin.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, sc.DatabaseURL, &store.PoolConfig{
			MaxConns: sc.MaxConns,
			MinConns: sc.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}

func newReference(rc config.ReferenceConfig) *registry.Reference {
	return registry.NewReference(registry.Paths{
		Manufacturers: rc.ManufacturersPath,
		Rules:         rc.RulesPaths,
		HSCodes:       rc.HSCodesPath,
	})
}

// newExplainer selects the Claude explainer when a key is configured and
// the template otherwise.
func newExplainer(c *config.Config) enrich.Explainer {
	temp := c.Anthropic.Temperature
	ec := enrich.Config{
		APIKey:            c.Anthropic.Key,
		Model:             c.Anthropic.Model,
		MaxTokens:         c.Anthropic.MaxTokens,
		ImpactMaxTokens:   c.Anthropic.ImpactMaxTokens,
		Temperature:       &temp,
		Timeout:           time.Duration(c.Anthropic.TimeoutSecs) * time.Second,
		RequestsPerSecond: c.Anthropic.RequestsPerSecond,
		FailureThreshold:  c.Anthropic.FailureThreshold,
		Agreement:         c.Agreement.Name,
		CriticalHeading:   c.Agreement.CriticalHeading,
	}
	return enrich.New(ec, nil)
}
