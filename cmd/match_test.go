package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/resolution-cli/internal/match"
	"github.com/sells-group/resolution-cli/internal/model"
	"github.com/sells-group/resolution-cli/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "cmd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedResolved(t *testing.T, st store.Store, id, marketID string, outcome model.Outcome, created time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.CreateRun(ctx, &model.Run{ID: id, UserInput: "q", MarketID: marketID, CreatedAt: created}))
	require.NoError(t, st.SaveSummary(ctx, id, model.RunSummary{
		RunID: id, MarketID: marketID, Outcome: outcome, VerificationOK: true,
	}))
	require.NoError(t, st.UpdateRunPhase(ctx, id, model.PhaseResolved))
}

func TestBuildPairs(t *testing.T) {
	st := newTestStore(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	seedResolved(t, st, "old", "mkt-1", model.OutcomeNo, base)
	seedResolved(t, st, "new", "mkt-1", model.OutcomeYes, base.Add(time.Hour))
	seedResolved(t, st, "pinned", "mkt-2", model.OutcomeNo, base)

	srcs := []model.SourceInfo{
		{MarketID: "mkt-1", OfficialOutcome: model.OutcomeYes},
		{MarketID: "mkt-2", OfficialOutcome: model.OutcomeNo, RunID: "pinned"},
		{MarketID: "mkt-3", OfficialOutcome: model.OutcomeYes},
		{MarketID: "mkt-4", OfficialOutcome: model.OutcomeYes, RunID: "gone"},
	}

	pairs, err := buildPairs(context.Background(), st, srcs)
	require.NoError(t, err)
	require.Len(t, pairs, 4)

	require.NotNil(t, pairs[0].Oracle)
	assert.Equal(t, "new", pairs[0].Oracle.RunID, "latest resolved run wins")
	require.NotNil(t, pairs[1].Oracle)
	assert.Equal(t, "pinned", pairs[1].Oracle.RunID)
	assert.Nil(t, pairs[2].Oracle)
	assert.Nil(t, pairs[3].Oracle)

	results := match.EvaluateAll(pairs)
	assert.Equal(t, []model.MatchStatus{
		model.MatchStatusMatch,
		model.MatchStatusMatch,
		model.MatchStatusPending,
		model.MatchStatusPending,
	}, []model.MatchStatus{results[0].Status, results[1].Status, results[2].Status, results[3].Status})
}

func TestFormatMatchResults(t *testing.T) {
	results := []match.Result{
		{MarketID: "mkt-1", Official: model.OutcomeYes, Oracle: model.OutcomeYes, RunID: "abc12345-0000", Status: model.MatchStatusMatch},
		{MarketID: "mkt-2", Official: model.OutcomeNo, Oracle: model.OutcomeYes, RunID: "def", Status: model.MatchStatusMismatch},
	}

	var buf bytes.Buffer
	formatMatchResults(&buf, results, match.Count(results))
	out := buf.String()

	assert.Contains(t, out, "MARKET")
	assert.Contains(t, out, "abc12345")
	assert.NotContains(t, out, "abc12345-0000")
	assert.Contains(t, out, "MISMATCH")
	assert.Contains(t, out, "50.0%")
}

func TestFormatMatchResults_NoAccuracyWhenUnsettled(t *testing.T) {
	results := []match.Result{{MarketID: "m", Status: model.MatchStatusPending}}
	var buf bytes.Buffer
	formatMatchResults(&buf, results, match.Count(results))
	assert.NotContains(t, buf.String(), "Accuracy")
}
