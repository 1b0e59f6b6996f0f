package model

import "slices"

// Check is a named local consistency check run while building a summary.
type Check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// RunSummary is the canonical result of a resolution run. It is built once
// and treated as read-only by every consumer.
//
// Required fields always carry a value. The optional enrichments are nil
// when the producing stage did not run; nil means "unknown", not "empty".
type RunSummary struct {
	RunID          string        `json:"run_id"`
	MarketID       string        `json:"market_id"`
	Outcome        Outcome       `json:"outcome"`
	Confidence     float64       `json:"confidence"`
	PoRRoot        string        `json:"por_root"`
	PromptSpecHash string        `json:"prompt_spec_hash"`
	EvidenceRoot   string        `json:"evidence_root"`
	ReasoningRoot  string        `json:"reasoning_root"`
	VerdictHash    string        `json:"verdict_hash"`
	ExecutionMode  ExecutionMode `json:"execution_mode"`
	DurationMS     int64         `json:"duration_ms"`
	VerificationOK bool          `json:"verification_ok"`
	Checks         []Check       `json:"checks"`
	Errors         []string      `json:"errors"`

	EvidenceItems       []EvidenceItem       `json:"evidence_items"`
	EvidenceBundles     []EvidenceBundle     `json:"evidence_bundles"`
	ReasoningSteps      []ReasoningStep      `json:"reasoning_steps"`
	ConfidenceBreakdown *ConfidenceBreakdown `json:"confidence_breakdown"`
	LLMReview           *LLMReview           `json:"llm_review"`
	DiscoveredSources   []DiscoveredSource   `json:"discovered_sources"`
}

// Clone returns a deep copy. Consumers that need to derive a modified view
// must clone first.
func (s RunSummary) Clone() RunSummary {
	out := s
	out.Checks = slices.Clone(s.Checks)
	out.Errors = slices.Clone(s.Errors)
	if s.EvidenceItems != nil {
		out.EvidenceItems = make([]EvidenceItem, len(s.EvidenceItems))
		for i, it := range s.EvidenceItems {
			out.EvidenceItems[i] = it.Clone()
		}
	}
	out.EvidenceBundles = CloneBundles(s.EvidenceBundles)
	out.ReasoningSteps = CloneSteps(s.ReasoningSteps)
	if s.ConfidenceBreakdown != nil {
		cb := *s.ConfidenceBreakdown
		cb.Adjustments = slices.Clone(cb.Adjustments)
		out.ConfidenceBreakdown = &cb
	}
	out.LLMReview = s.LLMReview.Clone()
	out.DiscoveredSources = slices.Clone(s.DiscoveredSources)
	return out
}
