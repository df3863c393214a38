package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/origin-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS analysis_cases (
	id                    TEXT PRIMARY KEY,
	filename              TEXT NOT NULL,
	submitted_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	manufacturer          TEXT NOT NULL DEFAULT '',
	final_hs_code         TEXT NOT NULL DEFAULT '',
	verdict               TEXT NOT NULL DEFAULT '',
	reason                TEXT NOT NULL DEFAULT '',
	missing_fields        TEXT NOT NULL DEFAULT '[]',
	completed             INTEGER NOT NULL DEFAULT 0,
	explanation           TEXT NOT NULL DEFAULT '',
	missing_data_analysis TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS case_steps (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	case_id     TEXT NOT NULL REFERENCES analysis_cases(id),
	step        INTEGER NOT NULL,
	description TEXT NOT NULL,
	details     TEXT NOT NULL DEFAULT '{}',
	recorded_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS materials (
	id                TEXT PRIMARY KEY,
	case_id           TEXT NOT NULL REFERENCES analysis_cases(id),
	position          INTEGER NOT NULL,
	material_name     TEXT NOT NULL DEFAULT '',
	country_of_origin TEXT NOT NULL DEFAULT '',
	hs_code           TEXT NOT NULL DEFAULT '',
	cost_per_pair     REAL,
	is_problematic    INTEGER NOT NULL DEFAULT 0,
	analysis_notes    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_analysis_cases_submitted_at ON analysis_cases(submitted_at);
CREATE INDEX IF NOT EXISTS idx_analysis_cases_verdict ON analysis_cases(verdict);
CREATE INDEX IF NOT EXISTS idx_case_steps_case_id ON case_steps(case_id);
CREATE INDEX IF NOT EXISTS idx_materials_case_id ON materials(case_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateCase(ctx context.Context, filename string) (*model.AnalysisCase, error) {
	c := &model.AnalysisCase{
		ID:            uuid.New().String(),
		Filename:      filename,
		SubmittedAt:   time.Now().UTC(),
		Steps:         []model.StepRecord{},
		MissingFields: []string{},
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analysis_cases (id, filename, submitted_at) VALUES (?, ?, ?)`,
		c.ID, c.Filename, c.SubmittedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert case")
	}
	return c, nil
}

func (s *SQLiteStore) CommitStep(ctx context.Context, caseID string, commit StepCommit) error {
	details, err := marshalDetails(commit.Record.Details)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal step details")
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		recordedAt := commit.Record.RecordedAt
		if recordedAt.IsZero() {
			recordedAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO case_steps (case_id, step, description, details, recorded_at) VALUES (?, ?, ?, ?, ?)`,
			caseID, commit.Record.Step, commit.Record.Description, details, recordedAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert step %d for case %s", commit.Record.Step, caseID)
		}

		if commit.Manufacturer != nil {
			if err := execOne(ctx, tx, `UPDATE analysis_cases SET manufacturer = ? WHERE id = ?`, *commit.Manufacturer, caseID); err != nil {
				return eris.Wrap(err, "sqlite: update manufacturer")
			}
		}
		if commit.FinalHSCode != nil {
			if err := execOne(ctx, tx, `UPDATE analysis_cases SET final_hs_code = ? WHERE id = ?`, *commit.FinalHSCode, caseID); err != nil {
				return eris.Wrap(err, "sqlite: update final hs code")
			}
		}
		if commit.MissingFields != nil {
			mf, err := json.Marshal(commit.MissingFields)
			if err != nil {
				return eris.Wrap(err, "sqlite: marshal missing fields")
			}
			if err := execOne(ctx, tx, `UPDATE analysis_cases SET missing_fields = ? WHERE id = ?`, string(mf), caseID); err != nil {
				return eris.Wrap(err, "sqlite: update missing fields")
			}
		}

		for _, m := range commit.Materials {
			var cost sql.NullFloat64
			if m.CostPerUnit != nil {
				cost = sql.NullFloat64{Float64: *m.CostPerUnit, Valid: true}
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO materials (id, case_id, position, material_name, country_of_origin, hs_code, cost_per_pair, is_problematic, analysis_notes)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT(id) DO UPDATE SET is_problematic = excluded.is_problematic, analysis_notes = excluded.analysis_notes`,
				m.ID, caseID, m.Position, m.Name, m.CountryOfOrigin, m.HSCode, cost, m.Problematic, m.Notes,
			); err != nil {
				return eris.Wrapf(err, "sqlite: upsert material %s", m.ID)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) Finalize(ctx context.Context, caseID string, fin Finalization) error {
	missing := fin.MissingFields
	if missing == nil {
		missing = []string{}
	}
	mf, err := json.Marshal(missing)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal missing fields")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE analysis_cases SET verdict = ?, reason = ?, missing_fields = ?, completed = 1 WHERE id = ?`,
		string(fin.Verdict), fin.Reason, string(mf), caseID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finalize case %s", caseID)
	}
	return checkRowsAffected(res, caseID)
}

func (s *SQLiteStore) SetEnrichment(ctx context.Context, caseID string, e Enrichment) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE analysis_cases SET explanation = ?, missing_data_analysis = ? WHERE id = ?`,
		e.Explanation, e.MissingDataAnalysis, caseID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set enrichment %s", caseID)
	}
	return checkRowsAffected(res, caseID)
}

const sqliteCaseColumns = `id, filename, submitted_at, manufacturer, final_hs_code, verdict, reason, missing_fields, completed, explanation, missing_data_analysis`

func (s *SQLiteStore) GetCase(ctx context.Context, caseID string) (*model.AnalysisCase, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteCaseColumns+` FROM analysis_cases WHERE id = ?`,
		caseID,
	)
	c, err := scanCase(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT step, description, details, recorded_at FROM case_steps WHERE case_id = ? ORDER BY id`,
		caseID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list steps")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var rec model.StepRecord
		var details string
		if err := rows.Scan(&rec.Step, &rec.Description, &details, &rec.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan step")
		}
		if err := json.Unmarshal([]byte(details), &rec.Details); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal step details")
		}
		c.Steps = append(c.Steps, rec)
	}
	return c, eris.Wrap(rows.Err(), "sqlite: list steps iterate")
}

func (s *SQLiteStore) ListCases(ctx context.Context, filter CaseFilter) ([]model.AnalysisCase, error) {
	query := `SELECT ` + sqliteCaseColumns + ` FROM analysis_cases WHERE 1=1`
	var args []any

	if filter.Verdict != "" {
		query += ` AND verdict = ?`
		args = append(args, string(filter.Verdict))
	}
	if filter.Completed != nil {
		query += ` AND completed = ?`
		args = append(args, *filter.Completed)
	}
	query += ` ORDER BY submitted_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cases")
	}
	defer rows.Close() //nolint:errcheck

	var cases []model.AnalysisCase
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, *c)
	}
	return cases, eris.Wrap(rows.Err(), "sqlite: list cases iterate")
}

func (s *SQLiteStore) ListMaterials(ctx context.Context, caseID string) ([]model.MaterialRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, case_id, position, material_name, country_of_origin, hs_code, cost_per_pair, is_problematic, analysis_notes
		 FROM materials WHERE case_id = ? ORDER BY position`,
		caseID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list materials")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.MaterialRecord
	for rows.Next() {
		var m model.MaterialRecord
		var cost sql.NullFloat64
		if err := rows.Scan(&m.ID, &m.CaseID, &m.Position, &m.Name, &m.CountryOfOrigin, &m.HSCode, &cost, &m.Problematic, &m.Notes); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan material")
		}
		if cost.Valid {
			v := cost.Float64
			m.CostPerUnit = &v
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list materials iterate")
}

func (s *SQLiteStore) DeleteCase(ctx context.Context, caseID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM case_steps WHERE case_id = ?`,
			`DELETE FROM materials WHERE case_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, caseID); err != nil {
				return eris.Wrapf(err, "sqlite: delete case %s", caseID)
			}
		}
		return execOne(ctx, tx, `DELETE FROM analysis_cases WHERE id = ?`, caseID)
	})
}

// helpers

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func execOne(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, args[len(args)-1].(string))
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "case %s", id)
	}
	return nil
}

func marshalDetails(details map[string]any) (string, error) {
	if details == nil {
		return "{}", nil
	}
	b, err := json.Marshal(details)
	return string(b), err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCase(row scannable) (*model.AnalysisCase, error) {
	var c model.AnalysisCase
	var verdict, missing string

	err := row.Scan(&c.ID, &c.Filename, &c.SubmittedAt, &c.Manufacturer, &c.FinalHSCode,
		&verdict, &c.Reason, &missing, &c.Completed, &c.Explanation, &c.MissingDataAnalysis)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "case")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan case")
	}

	c.Verdict = model.Verdict(verdict)
	if err := json.Unmarshal([]byte(missing), &c.MissingFields); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal missing fields")
	}
	c.Steps = []model.StepRecord{}
	return &c, nil
}
