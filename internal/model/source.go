package model

// SourceInfo is the official record of a market, sourced independently of
// the oracle.
type SourceInfo struct {
	MarketID        string  `json:"market_id" yaml:"market_id"`
	Question        string  `json:"question,omitempty" yaml:"question,omitempty"`
	OfficialOutcome Outcome `json:"official_outcome" yaml:"official_outcome"`
	Source          string  `json:"source,omitempty" yaml:"source,omitempty"`
	ResolvedAt      string  `json:"resolved_at,omitempty" yaml:"resolved_at,omitempty"`
	RunID           string  `json:"run_id,omitempty" yaml:"run_id,omitempty"`
}

// MatchStatus says whether the oracle verdict agrees with the official
// outcome. It is always derived on demand and never stored.
type MatchStatus string

const (
	MatchStatusMatch              MatchStatus = "MATCH"
	MatchStatusMismatch           MatchStatus = "MISMATCH"
	MatchStatusPending            MatchStatus = "PENDING"
	MatchStatusVerificationFailed MatchStatus = "VERIFICATION_FAILED"
)
