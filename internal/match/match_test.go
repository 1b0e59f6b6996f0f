package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/resolution-cli/internal/model"
)

func run(outcome model.Outcome, verified bool) *model.RunSummary {
	return &model.RunSummary{RunID: "run-1", Outcome: outcome, VerificationOK: verified}
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		official model.Outcome
		oracle   *model.RunSummary
		want     model.MatchStatus
	}{
		{"agreeing outcomes", model.OutcomeYes, run(model.OutcomeYes, true), model.MatchStatusMatch},
		{"disagreeing outcomes", model.OutcomeYes, run(model.OutcomeNo, true), model.MatchStatusMismatch},
		{"invalid agrees with invalid", model.OutcomeInvalid, run(model.OutcomeInvalid, true), model.MatchStatusMatch},
		{"no oracle run", model.OutcomeYes, nil, model.MatchStatusPending},
		{"official unknown", model.OutcomeUnknown, run(model.OutcomeYes, true), model.MatchStatusPending},
		{"oracle unknown", model.OutcomeNo, run(model.OutcomeUnknown, true), model.MatchStatusPending},
		{"official blank", "", run(model.OutcomeYes, true), model.MatchStatusPending},
		{"verification failed beats agreement", model.OutcomeYes, run(model.OutcomeYes, false), model.MatchStatusVerificationFailed},
		{"verification failed beats pending", model.OutcomeUnknown, run(model.OutcomeUnknown, false), model.MatchStatusVerificationFailed},
		{"case-insensitive outcomes", "yes", run("YES", true), model.MatchStatusMatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := model.SourceInfo{MarketID: "m", OfficialOutcome: tt.official}
			assert.Equal(t, tt.want, Evaluate(src, tt.oracle))
		})
	}
}

func TestEvaluateAllAndCount(t *testing.T) {
	t.Parallel()

	results := EvaluateAll([]Pair{
		{Source: model.SourceInfo{MarketID: "a", OfficialOutcome: model.OutcomeYes}, Oracle: run(model.OutcomeYes, true)},
		{Source: model.SourceInfo{MarketID: "b", OfficialOutcome: model.OutcomeYes}, Oracle: run(model.OutcomeNo, true)},
		{Source: model.SourceInfo{MarketID: "c", OfficialOutcome: model.OutcomeYes}},
		{Source: model.SourceInfo{MarketID: "d", OfficialOutcome: model.OutcomeNo}, Oracle: run(model.OutcomeNo, false)},
		{Source: model.SourceInfo{MarketID: "e", OfficialOutcome: model.OutcomeNo}, Oracle: run(model.OutcomeNo, true)},
	})
	require.Len(t, results, 5)
	assert.Equal(t, "a", results[0].MarketID)
	assert.Equal(t, "run-1", results[0].RunID)
	assert.Equal(t, model.Outcome(""), results[2].Oracle)

	c := Count(results)
	assert.Equal(t, Counts{Match: 2, Mismatch: 1, Pending: 1, VerificationFailed: 1}, c)
	assert.Equal(t, 5, c.Total())
	assert.InDelta(t, 2.0/3.0, c.Accuracy(), 1e-9)
	assert.Zero(t, Counts{Pending: 3}.Accuracy())
}
