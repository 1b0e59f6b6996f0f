package model

import (
	"slices"

	"github.com/rotisserie/eris"
)

// StepType classifies a reasoning step.
type StepType string

const (
	StepValidityCheck        StepType = "validity_check"
	StepEvidenceAnalysis     StepType = "evidence_analysis"
	StepRuleApplication      StepType = "rule_application"
	StepConfidenceAssessment StepType = "confidence_assessment"
)

// ReasoningStep is one step of the audit trace.
type ReasoningStep struct {
	StepID          string   `json:"step_id"`
	StepType        StepType `json:"step_type"`
	Description     string   `json:"description"`
	Conclusion      string   `json:"conclusion"`
	ConfidenceDelta float64  `json:"confidence_delta"`
	DependsOn       []string `json:"depends_on,omitempty"`
	EvidenceRefs    []string `json:"evidence_refs,omitempty"`
}

// ConfidenceAdjustment is a single named change to a confidence value.
type ConfidenceAdjustment struct {
	Reason string  `json:"reason"`
	Delta  float64 `json:"delta"`
}

// ConfidenceBreakdown explains how the final confidence was reached.
type ConfidenceBreakdown struct {
	BaseConfidence  float64                `json:"base_confidence"`
	Adjustments     []ConfidenceAdjustment `json:"adjustments,omitempty"`
	FinalConfidence float64                `json:"final_confidence"`
}

// ReasoningTrace is the output of the audit stage.
type ReasoningTrace struct {
	TraceID               string               `json:"trace_id"`
	Steps                 []ReasoningStep      `json:"steps"`
	PreliminaryOutcome    Outcome              `json:"preliminary_outcome,omitempty"`
	PreliminaryConfidence *float64             `json:"preliminary_confidence,omitempty"`
	ConfidenceBreakdown   *ConfidenceBreakdown `json:"confidence_breakdown,omitempty"`
}

// CloneSteps deep-copies a list of reasoning steps, preserving nil.
func CloneSteps(in []ReasoningStep) []ReasoningStep {
	if in == nil {
		return nil
	}
	out := make([]ReasoningStep, len(in))
	for i, s := range in {
		s.DependsOn = slices.Clone(s.DependsOn)
		s.EvidenceRefs = slices.Clone(s.EvidenceRefs)
		out[i] = s
	}
	return out
}

// ValidateDAG checks that step dependencies reference known steps and form
// no cycle. A step may depend on several predecessors.
func ValidateDAG(steps []ReasoningStep) error {
	index := make(map[string]int, len(steps))
	for i, s := range steps {
		if _, dup := index[s.StepID]; dup {
			return eris.Errorf("reasoning: duplicate step id %q", s.StepID)
		}
		index[s.StepID] = i
	}
	for _, s := range steps {
		for _, dep := range s.DependsOn {
			if _, ok := index[dep]; !ok {
				return eris.Errorf("reasoning: step %q depends on unknown step %q", s.StepID, dep)
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(steps))
	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case visiting:
			return eris.Errorf("reasoning: cycle through step %q", steps[i].StepID)
		case done:
			return nil
		}
		state[i] = visiting
		for _, dep := range steps[i].DependsOn {
			if err := visit(index[dep]); err != nil {
				return err
			}
		}
		state[i] = done
		return nil
	}
	for i := range steps {
		if err := visit(i); err != nil {
			return err
		}
	}
	return nil
}

// LLMReview is the independent validity check attached to a verdict.
type LLMReview struct {
	ReasoningValid        *bool                  `json:"reasoning_valid,omitempty"`
	Issues                []string               `json:"issues,omitempty"`
	ConfidenceAdjustments []ConfidenceAdjustment `json:"confidence_adjustments,omitempty"`
	FinalJustification    string                 `json:"final_justification,omitempty"`
}

// Clone returns a deep copy of the review.
func (r *LLMReview) Clone() *LLMReview {
	if r == nil {
		return nil
	}
	out := *r
	if r.ReasoningValid != nil {
		v := *r.ReasoningValid
		out.ReasoningValid = &v
	}
	out.Issues = slices.Clone(r.Issues)
	out.ConfidenceAdjustments = slices.Clone(r.ConfidenceAdjustments)
	return &out
}

// VerdictMetadata carries optional verdict annotations.
type VerdictMetadata struct {
	Strategy  string     `json:"strategy,omitempty"`
	LLMReview *LLMReview `json:"llm_review,omitempty"`
}

// Verdict is the output of the judge stage.
type Verdict struct {
	MarketID       string          `json:"market_id,omitempty"`
	Outcome        Outcome         `json:"outcome"`
	Confidence     float64         `json:"confidence"`
	PromptSpecHash string          `json:"prompt_spec_hash"`
	EvidenceRoot   string          `json:"evidence_root"`
	ReasoningRoot  string          `json:"reasoning_root"`
	Metadata       VerdictMetadata `json:"metadata"`
}

// PoRBundle combines the spec, evidence, reasoning and verdict hashes into a
// single proof-of-reasoning root.
type PoRBundle struct {
	SchemaVersion  string `json:"schema_version,omitempty"`
	MarketID       string `json:"market_id,omitempty"`
	PoRRoot        string `json:"por_root"`
	PromptSpecHash string `json:"prompt_spec_hash"`
	EvidenceRoot   string `json:"evidence_root"`
	ReasoningRoot  string `json:"reasoning_root"`
	VerdictHash    string `json:"verdict_hash,omitempty"`
}
