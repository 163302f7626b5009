package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/disclosure-cli/internal/model"
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
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'running',
	started_at DATETIME NOT NULL DEFAULT (datetime('now')),
	ended_at   DATETIME
);

CREATE TABLE IF NOT EXISTS feature_records (
	run_id                 TEXT NOT NULL REFERENCES runs(id),
	cik                    TEXT NOT NULL,
	filing_year            INTEGER NOT NULL,
	input_path             TEXT,
	input_sha256           TEXT NOT NULL,
	dictionary_sha256      TEXT NOT NULL,
	dictionary_version     TEXT NOT NULL,
	sentences_total        INTEGER NOT NULL,
	sentences_env          INTEGER NOT NULL,
	sentences_aspirational INTEGER NOT NULL,
	sentences_kpi          INTEGER NOT NULL,
	env_word_count         INTEGER NOT NULL,
	a_share                REAL NOT NULL,
	q_share                REAL NOT NULL,
	PRIMARY KEY (run_id, cik, filing_year)
);

CREATE TABLE IF NOT EXISTS panel_rows (
	run_id                 TEXT NOT NULL REFERENCES runs(id),
	cik                    TEXT NOT NULL,
	filing_year            INTEGER NOT NULL,
	input_path             TEXT,
	input_sha256           TEXT NOT NULL,
	dictionary_sha256      TEXT NOT NULL,
	dictionary_version     TEXT NOT NULL,
	sentences_total        INTEGER NOT NULL,
	sentences_env          INTEGER NOT NULL,
	sentences_aspirational INTEGER NOT NULL,
	sentences_kpi          INTEGER NOT NULL,
	env_word_count         INTEGER NOT NULL,
	a_share                REAL NOT NULL,
	q_share                REAL NOT NULL,
	si_simple              REAL NOT NULL,
	emissions_co2e         REAL NOT NULL DEFAULT 0,
	inspections            INTEGER NOT NULL DEFAULT 0,
	violations             INTEGER NOT NULL DEFAULT 0,
	penalties_usd          REAL NOT NULL DEFAULT 0,
	linked                 INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, cik, filing_year)
);

CREATE INDEX IF NOT EXISTS idx_feature_records_cik ON feature_records(cik);
CREATE INDEX IF NOT EXISTS idx_panel_rows_cik ON panel_rows(cik);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, started_at) VALUES (?, ?, ?)`,
		runID, string(RunStatusRunning), time.Now().UTC().Format(time.RFC3339),
	)
	return eris.Wrapf(err, "sqlite: create run %s", runID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, ended_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: run %s not found", runID)
	}
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, started_at, COALESCE(ended_at, '') FROM runs ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Status, &r.StartedAt, &r.EndedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SavePanel(ctx context.Context, runID string, panel []model.PanelRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO panel_rows (
			run_id, cik, filing_year, input_path, input_sha256,
			dictionary_sha256, dictionary_version,
			sentences_total, sentences_env, sentences_aspirational, sentences_kpi,
			env_word_count, a_share, q_share,
			si_simple, emissions_co2e, inspections, violations, penalties_usd, linked
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, p := range panel {
		if _, err := stmt.ExecContext(ctx,
			runID, p.CIK, p.FilingYear, p.InputPath, p.InputSHA256,
			p.DictionarySHA256, p.DictionaryVersion,
			p.SentencesTotal, p.SentencesEnv, p.SentencesAspirational, p.SentencesKPI,
			p.EnvWordCount, p.AShare, p.QShare,
			p.SISimple, p.EmissionsCO2e, p.Inspections, p.Violations, p.PenaltiesUSD, p.Linked,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert panel row for %s/%d", p.CIK, p.FilingYear)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit panel")
}

func (s *SQLiteStore) ListPanel(ctx context.Context, runID string) ([]model.PanelRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cik, filing_year, input_path, input_sha256,
		       dictionary_sha256, dictionary_version,
		       sentences_total, sentences_env, sentences_aspirational, sentences_kpi,
		       env_word_count, a_share, q_share,
		       si_simple, emissions_co2e, inspections, violations, penalties_usd, linked
		FROM panel_rows WHERE run_id = ?
		ORDER BY cik, filing_year`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list panel")
	}
	defer rows.Close()

	var out []model.PanelRow
	for rows.Next() {
		var p model.PanelRow
		if err := rows.Scan(
			&p.CIK, &p.FilingYear, &p.InputPath, &p.InputSHA256,
			&p.DictionarySHA256, &p.DictionaryVersion,
			&p.SentencesTotal, &p.SentencesEnv, &p.SentencesAspirational, &p.SentencesKPI,
			&p.EnvWordCount, &p.AShare, &p.QShare,
			&p.SISimple, &p.EmissionsCO2e, &p.Inspections, &p.Violations, &p.PenaltiesUSD, &p.Linked,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan panel row")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveFeatures(ctx context.Context, runID string, recs []model.FeatureRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO feature_records (
			run_id, cik, filing_year, input_path, input_sha256,
			dictionary_sha256, dictionary_version,
			sentences_total, sentences_env, sentences_aspirational, sentences_kpi,
			env_word_count, a_share, q_share
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx,
			runID, r.CIK, r.FilingYear, r.InputPath, r.InputSHA256,
			r.DictionarySHA256, r.DictionaryVersion,
			r.SentencesTotal, r.SentencesEnv, r.SentencesAspirational, r.SentencesKPI,
			r.EnvWordCount, r.AShare, r.QShare,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert features for %s/%d", r.CIK, r.FilingYear)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit features")
}

func (s *SQLiteStore) ListFeatures(ctx context.Context, runID string) ([]model.FeatureRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cik, filing_year, input_path, input_sha256,
		       dictionary_sha256, dictionary_version,
		       sentences_total, sentences_env, sentences_aspirational, sentences_kpi,
		       env_word_count, a_share, q_share
		FROM feature_records WHERE run_id = ?
		ORDER BY cik, filing_year`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list features")
	}
	defer rows.Close()

	var out []model.FeatureRecord
	for rows.Next() {
		var r model.FeatureRecord
		if err := rows.Scan(
			&r.CIK, &r.FilingYear, &r.InputPath, &r.InputSHA256,
			&r.DictionarySHA256, &r.DictionaryVersion,
			&r.SentencesTotal, &r.SentencesEnv, &r.SentencesAspirational, &r.SentencesKPI,
			&r.EnvWordCount, &r.AShare, &r.QShare,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feature record")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
