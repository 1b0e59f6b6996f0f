package store

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/resolution-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var runColumns = []string{"id", "user_input", "market_id", "phase", "summary", "created_at", "updated_at"}

func TestPostgresStore_ImplementsStore(t *testing.T) {
	var _ Store = (*PostgresStore)(nil)
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(regexp.QuoteMeta(sqlInsertRun)).
		WithArgs("run-1", "question", "", "input", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run := &model.Run{ID: "run-1", UserInput: "question"}
	require.NoError(t, s.CreateRun(context.Background(), run))
	assert.Equal(t, model.PhaseInput, run.Phase)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunPhase_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(regexp.QuoteMeta(sqlUpdatePhase)).
		WithArgs("resolved", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRunPhase(context.Background(), "missing", model.PhaseResolved)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetRunMarket(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(regexp.QuoteMeta(sqlSetMarket)).
		WithArgs("mkt-1", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.SetRunMarket(context.Background(), "run-1", "mkt-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordStage(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(sqlUpsertStage)).
		WithArgs("run-1", "judge", "error", int64(12), []byte(`["abort"]`), at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta(sqlTouchRun)).
		WithArgs(at, "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := s.RecordStage(context.Background(), "run-1", model.StageRecord{
		Stage:      model.StageJudge,
		Status:     model.StageStatusError,
		DurationMS: 12,
		Errors:     []string{"abort"},
		UpdatedAt:  at,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordStage_RollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(sqlUpsertStage)).WillReturnError(errors.New("fk violation"))
	mock.ExpectRollback()

	err := s.RecordStage(context.Background(), "run-1", model.StageRecord{Stage: model.StageCollect, Status: model.StageStatusRunning})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record stage run-1/collect")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveSummary(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	sum := model.RunSummary{RunID: "run-1", MarketID: "mkt-1", Outcome: model.OutcomeNo}
	sumJSON, err := json.Marshal(sum)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(sqlSaveSummary)).
		WithArgs(sumJSON, "mkt-1", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.SaveSummary(context.Background(), "run-1", sum))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	sumJSON, err := json.Marshal(model.RunSummary{RunID: "run-1", Outcome: model.OutcomeYes, PoRRoot: "0xabc"})
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(sqlGetRun)).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow("run-1", "question", "mkt-1", "resolved", sumJSON, now, now))
	mock.ExpectQuery(regexp.QuoteMeta(sqlListStages)).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"stage", "status", "duration_ms", "errors", "updated_at"}).
			AddRow("collect", "completed", int64(120), []byte(`[]`), now).
			AddRow("prompt", "completed", int64(40), []byte(`[]`), now))

	got, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.PhaseResolved, got.Phase)
	assert.Equal(t, "mkt-1", got.MarketID)
	require.NotNil(t, got.Summary)
	assert.Equal(t, "0xabc", got.Summary.PoRRoot)
	require.Len(t, got.Stages, 2)
	assert.Equal(t, model.StagePrompt, got.Stages[0].Stage)
	assert.Equal(t, model.StageCollect, got.Stages[1].Stage)
	assert.Nil(t, got.Stages[0].Errors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, user_input, market_id, phase, summary, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM runs WHERE true AND phase = \$1 AND market_id = \$2 ORDER BY created_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("resolved", "mkt-1", 5, 10).
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow("run-2", "q2", "mkt-1", "resolved", []byte(nil), now, now).
			AddRow("run-1", "q1", "mkt-1", "resolved", []byte(nil), now, now))

	runs, err := s.ListRuns(context.Background(), RunFilter{Phase: model.PhaseResolved, MarketID: "mkt-1", Limit: 5, Offset: 10})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Nil(t, runs[0].Summary)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs WHERE true ORDER BY created_at DESC LIMIT \$1$`).
		WithArgs(DefaultListLimit).
		WillReturnRows(pgxmock.NewRows(runColumns))

	runs, err := s.ListRuns(context.Background(), RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close(t *testing.T) {
	closed := false
	s := &PostgresStore{closeFn: func() { closed = true }}
	require.NoError(t, s.Close())
	assert.True(t, closed)
}
