package main

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/resolution-cli/internal/ingest"
	"github.com/sells-group/resolution-cli/internal/match"
	"github.com/sells-group/resolution-cli/internal/model"
)

func verified(runID string, outcome model.Outcome) *model.RunSummary {
	return &model.RunSummary{RunID: runID, Outcome: outcome, VerificationOK: true}
}

func TestProcessBatch_Empty(t *testing.T) {
	called := false
	report, err := processBatch(context.Background(), nil, 0, 2, func(context.Context, ingest.Question) (*model.RunSummary, error) {
		called = true
		return nil, nil
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, batchReport{}, report)
}

func TestProcessBatch_Limit(t *testing.T) {
	questions := []ingest.Question{{UserInput: "q1"}, {UserInput: "q2"}, {UserInput: "q3"}}
	var calls atomic.Int32

	report, err := processBatch(context.Background(), questions, 2, 4, func(_ context.Context, q ingest.Question) (*model.RunSummary, error) {
		calls.Add(1)
		return verified("run-"+q.UserInput, model.OutcomeYes), nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, report.Succeeded)
	assert.Empty(t, report.Results, "questions without a market are not matched")
}

func TestProcessBatch_FailuresDoNotAbort(t *testing.T) {
	questions := []ingest.Question{
		{UserInput: "ok", MarketID: "m1", OfficialOutcome: model.OutcomeYes},
		{UserInput: "boom", MarketID: "m2", OfficialOutcome: model.OutcomeNo},
		{UserInput: "wrong", MarketID: "m3", OfficialOutcome: model.OutcomeNo},
		{UserInput: "unmatched"},
	}

	report, err := processBatch(context.Background(), questions, 0, 1, func(_ context.Context, q ingest.Question) (*model.RunSummary, error) {
		switch q.UserInput {
		case "boom":
			return nil, errors.New("gateway down")
		case "wrong":
			return verified("run-wrong", model.OutcomeYes), nil
		default:
			return verified("run-"+q.UserInput, model.OutcomeYes), nil
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 1, report.Failed)

	require.Len(t, report.Results, 3)
	assert.Equal(t, "m1", report.Results[0].MarketID)
	assert.Equal(t, model.MatchStatusMatch, report.Results[0].Status)
	assert.Equal(t, model.MatchStatusPending, report.Results[1].Status, "failed run has no summary")
	assert.Equal(t, model.MatchStatusMismatch, report.Results[2].Status)
	assert.Equal(t, "run-wrong", report.Results[2].RunID)

	c := match.Count(report.Results)
	assert.Equal(t, 1, c.Match)
	assert.Equal(t, 1, c.Mismatch)
	assert.Equal(t, 1, c.Pending)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, "boom", report.Failures[0].UserInput)
	assert.Equal(t, "gateway down", report.Failures[0].Error)
	assert.NotEmpty(t, report.Failures[0].FailedAt)
}

func TestWriteFailures_ReloadsAsQuestions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failed.yaml")
	failures := []failedQuestion{
		{Question: ingest.Question{UserInput: "Will X?", MarketID: "m1", OfficialOutcome: model.OutcomeNo}, Error: "timeout"},
		{Question: ingest.Question{UserInput: "Will Y?"}, Error: "auth"},
	}
	require.NoError(t, writeFailures(path, failures))

	qs, err := ingest.LoadQuestions(path)
	require.NoError(t, err)
	assert.Equal(t, []ingest.Question{
		{UserInput: "Will X?", MarketID: "m1", OfficialOutcome: model.OutcomeNo},
		{UserInput: "Will Y?"},
	}, qs)
}

func TestProcessBatch_RespectsConcurrency(t *testing.T) {
	questions := make([]ingest.Question, 12)
	for i := range questions {
		questions[i] = ingest.Question{UserInput: "q"}
	}

	var inFlight, peak atomic.Int32
	_, err := processBatch(context.Background(), questions, 0, 3, func(context.Context, ingest.Question) (*model.RunSummary, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		defer inFlight.Add(-1)
		return verified("r", model.OutcomeNo), nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}
