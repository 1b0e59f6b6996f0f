package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/resolution-cli/internal/db"
	"github.com/sells-group/resolution-cli/internal/model"
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

const (
	sqlInsertRun    = `INSERT INTO runs (id, user_input, market_id, phase, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`
	sqlUpdatePhase  = `UPDATE runs SET phase = $1, updated_at = $2 WHERE id = $3`
	sqlSetMarket    = `UPDATE runs SET market_id = $1, updated_at = $2 WHERE id = $3`
	sqlSaveSummary  = `UPDATE runs SET summary = $1, market_id = CASE WHEN $2 <> '' THEN $2 ELSE market_id END, updated_at = $3 WHERE id = $4`
	sqlGetRun       = `SELECT id, user_input, market_id, phase, summary, created_at, updated_at FROM runs WHERE id = $1`
	sqlListStages   = `SELECT stage, status, duration_ms, errors, updated_at FROM run_stages WHERE run_id = $1`
	sqlTouchRun     = `UPDATE runs SET updated_at = $1 WHERE id = $2`
	sqlUpsertStage  = `INSERT INTO run_stages (run_id, stage, status, duration_ms, errors, updated_at) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (run_id, stage) DO UPDATE SET status = EXCLUDED.status, duration_ms = EXCLUDED.duration_ms, errors = EXCLUDED.errors, updated_at = EXCLUDED.updated_at`
	sqlListRunsBase = `SELECT id, user_input, market_id, phase, summary, created_at, updated_at FROM runs WHERE true`
)

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_run":   sqlInsertRun,
	"update_phase": sqlUpdatePhase,
	"set_market":   sqlSetMarket,
	"save_summary": sqlSaveSummary,
	"get_run":      sqlGetRun,
	"list_stages":  sqlListStages,
	"touch_run":    sqlTouchRun,
	"upsert_stage": sqlUpsertStage,
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

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

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
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	user_input TEXT NOT NULL,
	market_id  TEXT NOT NULL DEFAULT '',
	phase      TEXT NOT NULL DEFAULT 'input',
	summary    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_stages (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	stage       TEXT NOT NULL,
	status      TEXT NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	errors      JSONB NOT NULL DEFAULT '[]',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, stage)
);

CREATE INDEX IF NOT EXISTS idx_runs_phase ON runs(phase);
CREATE INDEX IF NOT EXISTS idx_runs_market_id ON runs(market_id);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
`

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

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.Run) error {
	if run == nil || run.ID == "" {
		return eris.New("postgres: create run: missing id")
	}
	now := time.Now().UTC()
	if run.Phase == "" {
		run.Phase = model.PhaseInput
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	_, err := s.pool.Exec(ctx, sqlInsertRun,
		run.ID, run.UserInput, run.MarketID, string(run.Phase), run.CreatedAt, run.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.ID)
}

func (s *PostgresStore) UpdateRunPhase(ctx context.Context, runID string, phase model.Phase) error {
	tag, err := s.pool.Exec(ctx, sqlUpdatePhase, string(phase), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run phase %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) SetRunMarket(ctx context.Context, runID, marketID string) error {
	tag, err := s.pool.Exec(ctx, sqlSetMarket, marketID, time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: set run market %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

// RecordStage upserts the stage row and touches the run in one transaction.
func (s *PostgresStore) RecordStage(ctx context.Context, runID string, rec model.StageRecord) error {
	errsJSON, err := json.Marshal(nonNilErrors(rec.Errors))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stage errors")
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, sqlUpsertStage,
			runID, string(rec.Stage), string(rec.Status), rec.DurationMS, errsJSON, updated,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, sqlTouchRun, updated, runID)
		return err
	})
	return eris.Wrapf(err, "postgres: record stage %s/%s", runID, rec.Stage)
}

func (s *PostgresStore) SaveSummary(ctx context.Context, runID string, sum model.RunSummary) error {
	sumJSON, err := json.Marshal(sum)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tag, err := s.pool.Exec(ctx, sqlSaveSummary, sumJSON, sum.MarketID, time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: save summary %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx, sqlGetRun, runID))
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	rows, err := s.pool.Query(ctx, sqlListStages, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list stages %s", runID)
	}
	defer rows.Close()

	for rows.Next() {
		var rec model.StageRecord
		var stage, status string
		var errsJSON []byte
		if err := rows.Scan(&stage, &status, &rec.DurationMS, &errsJSON, &rec.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage")
		}
		rec.Stage = model.Stage(stage)
		rec.Status = model.StageStatus(status)
		if len(errsJSON) > 0 {
			if err := json.Unmarshal(errsJSON, &rec.Errors); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal stage errors")
			}
		}
		if len(rec.Errors) == 0 {
			rec.Errors = nil
		}
		r.Stages = append(r.Stages, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate stages")
	}
	sortStages(r.Stages)
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := sqlListRunsBase
	args := []any{}
	argIdx := 1

	if filter.Phase != "" {
		query += fmt.Sprintf(` AND phase = $%d`, argIdx)
		args = append(args, string(filter.Phase))
		argIdx++
	}
	if filter.MarketID != "" {
		query += fmt.Sprintf(` AND market_id = $%d`, argIdx)
		args = append(args, filter.MarketID)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limitOrDefault(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var phase string
	var summaryJSON []byte

	if err := row.Scan(&r.ID, &r.UserInput, &r.MarketID, &phase, &summaryJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Phase = model.Phase(phase)
	if len(summaryJSON) > 0 {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal(summaryJSON, r.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}
	return &r, nil
}
