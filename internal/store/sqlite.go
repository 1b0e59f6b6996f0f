package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/resolution-cli/internal/model"
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
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	user_input TEXT NOT NULL,
	market_id  TEXT NOT NULL DEFAULT '',
	phase      TEXT NOT NULL DEFAULT 'input',
	summary    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_stages (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	stage       TEXT NOT NULL,
	status      TEXT NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	errors      TEXT NOT NULL DEFAULT '[]',
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (run_id, stage)
);

CREATE INDEX IF NOT EXISTS idx_runs_phase ON runs(phase);
CREATE INDEX IF NOT EXISTS idx_runs_market_id ON runs(market_id);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	if run == nil || run.ID == "" {
		return eris.New("sqlite: create run: missing id")
	}
	now := time.Now().UTC()
	if run.Phase == "" {
		run.Phase = model.PhaseInput
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, user_input, market_id, phase, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.UserInput, run.MarketID, string(run.Phase), run.CreatedAt, run.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) UpdateRunPhase(ctx context.Context, runID string, phase model.Phase) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET phase = ?, updated_at = ? WHERE id = ?`,
		string(phase), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run phase %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) SetRunMarket(ctx context.Context, runID, marketID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET market_id = ?, updated_at = ? WHERE id = ?`,
		marketID, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set run market %s", runID)
	}
	return checkRowsAffected(res, runID)
}

// RecordStage upserts the stage row and touches the run; a stage re-run
// overwrites its previous record.
func (s *SQLiteStore) RecordStage(ctx context.Context, runID string, rec model.StageRecord) error {
	errsJSON, err := json.Marshal(nonNilErrors(rec.Errors))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stage errors")
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO run_stages (run_id, stage, status, duration_ms, errors, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, stage) DO UPDATE SET
		   status = excluded.status,
		   duration_ms = excluded.duration_ms,
		   errors = excluded.errors,
		   updated_at = excluded.updated_at`,
		runID, string(rec.Stage), string(rec.Status), rec.DurationMS, string(errsJSON), updated,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: record stage %s/%s", runID, rec.Stage)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE runs SET updated_at = ? WHERE id = ?`, updated, runID); err != nil {
		return eris.Wrapf(err, "sqlite: touch run %s", runID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit stage")
}

func (s *SQLiteStore) SaveSummary(ctx context.Context, runID string, sum model.RunSummary) error {
	sumJSON, err := json.Marshal(sum)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET summary = ?, market_id = CASE WHEN ? <> '' THEN ? ELSE market_id END, updated_at = ? WHERE id = ?`,
		string(sumJSON), sum.MarketID, sum.MarketID, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save summary %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_input, market_id, phase, summary, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if err != nil {
		if eris.Is(err, ErrNotFound) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: get run %s", runID)
		}
		return nil, err
	}

	stages, err := s.listStages(ctx, runID)
	if err != nil {
		return nil, err
	}
	r.Stages = stages
	return r, nil
}

func (s *SQLiteStore) listStages(ctx context.Context, runID string) ([]model.StageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, status, duration_ms, errors, updated_at FROM run_stages WHERE run_id = ?`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list stages %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.StageRecord
	for rows.Next() {
		var rec model.StageRecord
		var errsJSON string
		if err := rows.Scan(&rec.Stage, &rec.Status, &rec.DurationMS, &errsJSON, &rec.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stage")
		}
		if err := json.Unmarshal([]byte(errsJSON), &rec.Errors); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal stage errors")
		}
		if len(rec.Errors) == 0 {
			rec.Errors = nil
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate stages")
	}
	sortStages(out)
	return out, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, user_input, market_id, phase, summary, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Phase != "" {
		query += ` AND phase = ?`
		args = append(args, string(filter.Phase))
	}
	if filter.MarketID != "" {
		query += ` AND market_id = ?`
		args = append(args, filter.MarketID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limitOrDefault(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

// helpers

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var summaryJSON sql.NullString

	err := row.Scan(&r.ID, &r.UserInput, &r.MarketID, &r.Phase, &summaryJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if summaryJSON.Valid && summaryJSON.String != "" {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	return &r, nil
}

func nonNilErrors(errs []string) []string {
	if errs == nil {
		return []string{}
	}
	return errs
}

// sortStages orders records by pipeline position.
func sortStages(recs []model.StageRecord) {
	slices.SortStableFunc(recs, func(a, b model.StageRecord) int {
		return a.Stage.Index() - b.Stage.Index()
	})
}
