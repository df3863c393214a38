package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/origin-cli/internal/db"
	"github.com/sells-group/origin-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS analysis_cases (
	id                    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	filename              TEXT NOT NULL,
	submitted_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	manufacturer          TEXT NOT NULL DEFAULT '',
	final_hs_code         TEXT NOT NULL DEFAULT '',
	verdict               TEXT NOT NULL DEFAULT '',
	reason                TEXT NOT NULL DEFAULT '',
	missing_fields        JSONB NOT NULL DEFAULT '[]'::jsonb,
	completed             BOOLEAN NOT NULL DEFAULT false,
	explanation           TEXT NOT NULL DEFAULT '',
	missing_data_analysis TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS case_steps (
	id          BIGSERIAL PRIMARY KEY,
	case_id     TEXT NOT NULL REFERENCES analysis_cases(id) ON DELETE CASCADE,
	step        INTEGER NOT NULL,
	description TEXT NOT NULL,
	details     JSONB NOT NULL DEFAULT '{}'::jsonb,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS materials (
	id                TEXT PRIMARY KEY,
	case_id           TEXT NOT NULL REFERENCES analysis_cases(id) ON DELETE CASCADE,
	position          INTEGER NOT NULL,
	material_name     TEXT NOT NULL DEFAULT '',
	country_of_origin TEXT NOT NULL DEFAULT '',
	hs_code           TEXT NOT NULL DEFAULT '',
	cost_per_pair     DOUBLE PRECISION,
	is_problematic    BOOLEAN NOT NULL DEFAULT false,
	analysis_notes    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_analysis_cases_submitted_at ON analysis_cases(submitted_at DESC);
CREATE INDEX IF NOT EXISTS idx_analysis_cases_verdict ON analysis_cases(verdict);
CREATE INDEX IF NOT EXISTS idx_case_steps_case_id ON case_steps(case_id);
CREATE INDEX IF NOT EXISTS idx_materials_case_id ON materials(case_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateCase(ctx context.Context, filename string) (*model.AnalysisCase, error) {
	c := &model.AnalysisCase{
		ID:            uuid.New().String(),
		Filename:      filename,
		SubmittedAt:   time.Now().UTC(),
		Steps:         []model.StepRecord{},
		MissingFields: []string{},
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_cases (id, filename, submitted_at) VALUES ($1, $2, $3)`,
		c.ID, c.Filename, c.SubmittedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert case")
	}
	return c, nil
}

func (s *PostgresStore) CommitStep(ctx context.Context, caseID string, commit StepCommit) error {
	details := commit.Record.Details
	if details == nil {
		details = map[string]any{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal step details")
	}
	recordedAt := commit.Record.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO case_steps (case_id, step, description, details, recorded_at) VALUES ($1, $2, $3, $4, $5)`,
			caseID, commit.Record.Step, commit.Record.Description, detailsJSON, recordedAt,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert step %d for case %s", commit.Record.Step, caseID)
		}

		if commit.Manufacturer != nil {
			if err := pgExecOne(ctx, tx, caseID, `UPDATE analysis_cases SET manufacturer = $1 WHERE id = $2`, *commit.Manufacturer, caseID); err != nil {
				return eris.Wrap(err, "postgres: update manufacturer")
			}
		}
		if commit.FinalHSCode != nil {
			if err := pgExecOne(ctx, tx, caseID, `UPDATE analysis_cases SET final_hs_code = $1 WHERE id = $2`, *commit.FinalHSCode, caseID); err != nil {
				return eris.Wrap(err, "postgres: update final hs code")
			}
		}
		if commit.MissingFields != nil {
			mf, err := json.Marshal(commit.MissingFields)
			if err != nil {
				return eris.Wrap(err, "postgres: marshal missing fields")
			}
			if err := pgExecOne(ctx, tx, caseID, `UPDATE analysis_cases SET missing_fields = $1 WHERE id = $2`, mf, caseID); err != nil {
				return eris.Wrap(err, "postgres: update missing fields")
			}
		}

		for _, m := range commit.Materials {
			if _, err := tx.Exec(ctx,
				`INSERT INTO materials (id, case_id, position, material_name, country_of_origin, hs_code, cost_per_pair, is_problematic, analysis_notes)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				 ON CONFLICT (id) DO UPDATE SET is_problematic = EXCLUDED.is_problematic, analysis_notes = EXCLUDED.analysis_notes`,
				m.ID, caseID, m.Position, m.Name, m.CountryOfOrigin, m.HSCode, m.CostPerUnit, m.Problematic, m.Notes,
			); err != nil {
				return eris.Wrapf(err, "postgres: upsert material %s", m.ID)
			}
		}
		return nil
	})
}

func (s *PostgresStore) Finalize(ctx context.Context, caseID string, fin Finalization) error {
	missing := fin.MissingFields
	if missing == nil {
		missing = []string{}
	}
	mf, err := json.Marshal(missing)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal missing fields")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_cases SET verdict = $1, reason = $2, missing_fields = $3, completed = true WHERE id = $4`,
		string(fin.Verdict), fin.Reason, mf, caseID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finalize case %s", caseID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "case %s", caseID)
	}
	return nil
}

func (s *PostgresStore) SetEnrichment(ctx context.Context, caseID string, e Enrichment) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_cases SET explanation = $1, missing_data_analysis = $2 WHERE id = $3`,
		e.Explanation, e.MissingDataAnalysis, caseID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set enrichment %s", caseID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "case %s", caseID)
	}
	return nil
}

const postgresCaseColumns = `id, filename, submitted_at, manufacturer, final_hs_code, verdict, reason, missing_fields, completed, explanation, missing_data_analysis`

func (s *PostgresStore) GetCase(ctx context.Context, caseID string) (*model.AnalysisCase, error) {
	c, err := scanPgCase(s.pool.QueryRow(ctx,
		`SELECT `+postgresCaseColumns+` FROM analysis_cases WHERE id = $1`,
		caseID,
	))
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT step, description, details, recorded_at FROM case_steps WHERE case_id = $1 ORDER BY id`,
		caseID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list steps %s", caseID)
	}
	defer rows.Close()

	for rows.Next() {
		var rec model.StepRecord
		var details []byte
		if err := rows.Scan(&rec.Step, &rec.Description, &details, &rec.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan step")
		}
		if err := json.Unmarshal(details, &rec.Details); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal step details")
		}
		c.Steps = append(c.Steps, rec)
	}
	return c, eris.Wrap(rows.Err(), "postgres: list steps iterate")
}

func (s *PostgresStore) ListCases(ctx context.Context, filter CaseFilter) ([]model.AnalysisCase, error) {
	query := `SELECT ` + postgresCaseColumns + ` FROM analysis_cases WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Verdict != "" {
		query += fmt.Sprintf(` AND verdict = $%d`, argIdx)
		args = append(args, string(filter.Verdict))
		argIdx++
	}
	if filter.Completed != nil {
		query += fmt.Sprintf(` AND completed = $%d`, argIdx)
		args = append(args, *filter.Completed)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY submitted_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cases")
	}
	defer rows.Close()

	var cases []model.AnalysisCase
	for rows.Next() {
		c, err := scanPgCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, *c)
	}
	return cases, eris.Wrap(rows.Err(), "postgres: list cases iterate")
}

func (s *PostgresStore) ListMaterials(ctx context.Context, caseID string) ([]model.MaterialRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, case_id, position, material_name, country_of_origin, hs_code, cost_per_pair, is_problematic, analysis_notes
		 FROM materials WHERE case_id = $1 ORDER BY position`,
		caseID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list materials %s", caseID)
	}
	defer rows.Close()

	var out []model.MaterialRecord
	for rows.Next() {
		var m model.MaterialRecord
		if err := rows.Scan(&m.ID, &m.CaseID, &m.Position, &m.Name, &m.CountryOfOrigin, &m.HSCode, &m.CostPerUnit, &m.Problematic, &m.Notes); err != nil {
			return nil, eris.Wrap(err, "postgres: scan material")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list materials iterate")
}

// DeleteCase removes a case; steps and materials go with it via ON DELETE
// CASCADE.
func (s *PostgresStore) DeleteCase(ctx context.Context, caseID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM analysis_cases WHERE id = $1`, caseID)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete case %s", caseID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "case %s", caseID)
	}
	return nil
}

func pgExecOne(ctx context.Context, tx pgx.Tx, caseID, query string, args ...any) error {
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "case %s", caseID)
	}
	return nil
}

func scanPgCase(row pgx.Row) (*model.AnalysisCase, error) {
	var c model.AnalysisCase
	var verdict string
	var missing []byte

	err := row.Scan(&c.ID, &c.Filename, &c.SubmittedAt, &c.Manufacturer, &c.FinalHSCode,
		&verdict, &c.Reason, &missing, &c.Completed, &c.Explanation, &c.MissingDataAnalysis)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "case")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan case")
	}

	c.Verdict = model.Verdict(verdict)
	c.MissingFields = []string{}
	if len(missing) > 0 {
		if err := json.Unmarshal(missing, &c.MissingFields); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal missing fields")
		}
	}
	c.Steps = []model.StepRecord{}
	return &c, nil
}
