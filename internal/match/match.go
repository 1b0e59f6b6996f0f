// Package match compares an oracle run against the official outcome of a
// market. Results are always derived on demand and never stored.
package match

import "github.com/sells-group/resolution-cli/internal/model"

// Evaluate derives the match status of an oracle run against the official
// record. A nil oracle means the market has not been resolved yet.
//
// A failed verification is reported before anything else, even when the
// outcomes agree.
func Evaluate(source model.SourceInfo, oracle *model.RunSummary) model.MatchStatus {
	if oracle != nil && !oracle.VerificationOK {
		return model.MatchStatusVerificationFailed
	}
	if oracle == nil || !known(source.OfficialOutcome) || !known(oracle.Outcome) {
		return model.MatchStatusPending
	}
	if model.ParseOutcome(string(source.OfficialOutcome)) == model.ParseOutcome(string(oracle.Outcome)) {
		return model.MatchStatusMatch
	}
	return model.MatchStatusMismatch
}

func known(o model.Outcome) bool {
	return model.ParseOutcome(string(o)).Known()
}

// Pair is one market to evaluate.
type Pair struct {
	Source model.SourceInfo
	Oracle *model.RunSummary
}

// Result is the status derived for a Pair.
type Result struct {
	MarketID string            `json:"market_id"`
	Official model.Outcome     `json:"official_outcome"`
	Oracle   model.Outcome     `json:"oracle_outcome,omitempty"`
	RunID    string            `json:"run_id,omitempty"`
	Status   model.MatchStatus `json:"status"`
}

// EvaluateAll evaluates every pair in order.
func EvaluateAll(pairs []Pair) []Result {
	out := make([]Result, len(pairs))
	for i, p := range pairs {
		r := Result{
			MarketID: p.Source.MarketID,
			Official: p.Source.OfficialOutcome,
			Status:   Evaluate(p.Source, p.Oracle),
		}
		if p.Oracle != nil {
			r.Oracle = p.Oracle.Outcome
			r.RunID = p.Oracle.RunID
		}
		out[i] = r
	}
	return out
}

// Counts tallies results by status.
type Counts struct {
	Match              int `json:"match"`
	Mismatch           int `json:"mismatch"`
	Pending            int `json:"pending"`
	VerificationFailed int `json:"verification_failed"`
}

// Total returns the number of results counted.
func (c Counts) Total() int {
	return c.Match + c.Mismatch + c.Pending + c.VerificationFailed
}

// Accuracy is the share of settled results that matched. It is zero when
// nothing has settled.
func (c Counts) Accuracy() float64 {
	settled := c.Match + c.Mismatch
	if settled == 0 {
		return 0
	}
	return float64(c.Match) / float64(settled)
}

// Count aggregates results by status.
func Count(results []Result) Counts {
	var c Counts
	for _, r := range results {
		switch r.Status {
		case model.MatchStatusMatch:
			c.Match++
		case model.MatchStatusMismatch:
			c.Mismatch++
		case model.MatchStatusPending:
			c.Pending++
		case model.MatchStatusVerificationFailed:
			c.VerificationFailed++
		}
	}
	return c
}
