package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store depends on.
// pgxmock.PgxPoolIface satisfies it for tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'running',
	started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	ended_at   TIMESTAMPTZ
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
	a_share                DOUBLE PRECISION NOT NULL,
	q_share                DOUBLE PRECISION NOT NULL,
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
	a_share                DOUBLE PRECISION NOT NULL,
	q_share                DOUBLE PRECISION NOT NULL,
	si_simple              DOUBLE PRECISION NOT NULL,
	emissions_co2e         DOUBLE PRECISION NOT NULL DEFAULT 0,
	inspections            INTEGER NOT NULL DEFAULT 0,
	violations             INTEGER NOT NULL DEFAULT 0,
	penalties_usd          DOUBLE PRECISION NOT NULL DEFAULT 0,
	linked                 BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (run_id, cik, filing_year)
);

CREATE INDEX IF NOT EXISTS idx_feature_records_cik ON feature_records(cik);
CREATE INDEX IF NOT EXISTS idx_panel_rows_cik ON panel_rows(cik);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, runID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, started_at) VALUES ($1, $2, $3)`,
		runID, string(RunStatusRunning), time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: create run %s", runID)
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, ended_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run %s not found", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, status, started_at::text, COALESCE(ended_at::text, '') FROM runs ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Status, &r.StartedAt, &r.EndedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SavePanel(ctx context.Context, runID string, panel []model.PanelRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, p := range panel {
		if _, err := tx.Exec(ctx, `
			INSERT INTO panel_rows (
				run_id, cik, filing_year, input_path, input_sha256,
				dictionary_sha256, dictionary_version,
				sentences_total, sentences_env, sentences_aspirational, sentences_kpi,
				env_word_count, a_share, q_share,
				si_simple, emissions_co2e, inspections, violations, penalties_usd, linked
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
			ON CONFLICT (run_id, cik, filing_year) DO UPDATE SET
				input_path = EXCLUDED.input_path,
				input_sha256 = EXCLUDED.input_sha256,
				dictionary_sha256 = EXCLUDED.dictionary_sha256,
				dictionary_version = EXCLUDED.dictionary_version,
				sentences_total = EXCLUDED.sentences_total,
				sentences_env = EXCLUDED.sentences_env,
				sentences_aspirational = EXCLUDED.sentences_aspirational,
				sentences_kpi = EXCLUDED.sentences_kpi,
				env_word_count = EXCLUDED.env_word_count,
				a_share = EXCLUDED.a_share,
				q_share = EXCLUDED.q_share,
				si_simple = EXCLUDED.si_simple,
				emissions_co2e = EXCLUDED.emissions_co2e,
				inspections = EXCLUDED.inspections,
				violations = EXCLUDED.violations,
				penalties_usd = EXCLUDED.penalties_usd,
				linked = EXCLUDED.linked`,
			runID, p.CIK, p.FilingYear, p.InputPath, p.InputSHA256,
			p.DictionarySHA256, p.DictionaryVersion,
			p.SentencesTotal, p.SentencesEnv, p.SentencesAspirational, p.SentencesKPI,
			p.EnvWordCount, p.AShare, p.QShare,
			p.SISimple, p.EmissionsCO2e, p.Inspections, p.Violations, p.PenaltiesUSD, p.Linked,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert panel row for %s/%d", p.CIK, p.FilingYear)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit panel")
}

func (s *PostgresStore) ListPanel(ctx context.Context, runID string) ([]model.PanelRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT cik, filing_year, input_path, input_sha256,
		       dictionary_sha256, dictionary_version,
		       sentences_total, sentences_env, sentences_aspirational, sentences_kpi,
		       env_word_count, a_share, q_share,
		       si_simple, emissions_co2e, inspections, violations, penalties_usd, linked
		FROM panel_rows WHERE run_id = $1
		ORDER BY cik, filing_year`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list panel")
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
			return nil, eris.Wrap(err, "postgres: scan panel row")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveFeatures(ctx context.Context, runID string, recs []model.FeatureRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, r := range recs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO feature_records (
				run_id, cik, filing_year, input_path, input_sha256,
				dictionary_sha256, dictionary_version,
				sentences_total, sentences_env, sentences_aspirational, sentences_kpi,
				env_word_count, a_share, q_share
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			ON CONFLICT (run_id, cik, filing_year) DO UPDATE SET
				input_path = EXCLUDED.input_path,
				input_sha256 = EXCLUDED.input_sha256,
				dictionary_sha256 = EXCLUDED.dictionary_sha256,
				dictionary_version = EXCLUDED.dictionary_version,
				sentences_total = EXCLUDED.sentences_total,
				sentences_env = EXCLUDED.sentences_env,
				sentences_aspirational = EXCLUDED.sentences_aspirational,
				sentences_kpi = EXCLUDED.sentences_kpi,
				env_word_count = EXCLUDED.env_word_count,
				a_share = EXCLUDED.a_share,
				q_share = EXCLUDED.q_share`,
			runID, r.CIK, r.FilingYear, r.InputPath, r.InputSHA256,
			r.DictionarySHA256, r.DictionaryVersion,
			r.SentencesTotal, r.SentencesEnv, r.SentencesAspirational, r.SentencesKPI,
			r.EnvWordCount, r.AShare, r.QShare,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert features for %s/%d", r.CIK, r.FilingYear)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit features")
}

func (s *PostgresStore) ListFeatures(ctx context.Context, runID string) ([]model.FeatureRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT cik, filing_year, input_path, input_sha256,
		       dictionary_sha256, dictionary_version,
		       sentences_total, sentences_env, sentences_aspirational, sentences_kpi,
		       env_word_count, a_share, q_share
		FROM feature_records WHERE run_id = $1
		ORDER BY cik, filing_year`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list features")
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
			return nil, eris.Wrap(err, "postgres: scan feature record")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
