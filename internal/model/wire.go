package model

import (
	"encoding/json"
)

// Raw payload types mirror what the oracle gateway returns. Every optional
// field is nullable so that absence can be told apart from a zero value;
// canonicalization turns them into the types above. Scalars that collectors
// emit with inconsistent JSON types stay json.RawMessage and are coerced
// during canonicalization.

// RawProvenance is the nested provenance object of the current schema.
type RawProvenance struct {
	SourceID    *string         `json:"source_id,omitempty"`
	SourceURI   *string         `json:"source_uri,omitempty"`
	SourceName  *string         `json:"source_name,omitempty"`
	Tier        json.RawMessage `json:"tier,omitempty"`
	FetchedAt   *string         `json:"fetched_at,omitempty"`
	ContentHash *string         `json:"content_hash,omitempty"`
}

// RawEvidenceItem is an evidence item in any schema generation. Provenance
// is nested in the current schema and flat in the legacy one.
type RawEvidenceItem struct {
	EvidenceID *string        `json:"evidence_id,omitempty"`
	Provenance *RawProvenance `json:"provenance,omitempty"`

	SourceURI   *string         `json:"source_uri,omitempty"`
	SourceName  *string         `json:"source_name,omitempty"`
	Tier        json.RawMessage `json:"tier,omitempty"`
	FetchedAt   *string         `json:"fetched_at,omitempty"`
	ContentHash *string         `json:"content_hash,omitempty"`

	ParsedValue     json.RawMessage     `json:"parsed_value,omitempty"`
	ParsedExcerpt   *string             `json:"parsed_excerpt,omitempty"`
	Success         json.RawMessage     `json:"success,omitempty"`
	Error           *string             `json:"error,omitempty"`
	ExtractedFields *RawExtractedFields `json:"extracted_fields,omitempty"`
}

// RawEvidenceSource is a citation as returned by a collector. The
// credibility tier arrives as a number, a string, or not at all.
type RawEvidenceSource struct {
	URL             *string         `json:"url,omitempty"`
	SourceID        *string         `json:"source_id,omitempty"`
	CredibilityTier json.RawMessage `json:"credibility_tier,omitempty"`
	KeyFact         *string         `json:"key_fact,omitempty"`
	Supports        *string         `json:"supports,omitempty"`
	DatePublished   *string         `json:"date_published,omitempty"`
}

// RawExtractedFields is the loosely-typed field bag of a raw item.
type RawExtractedFields struct {
	ConfidenceScore   json.RawMessage            `json:"confidence_score,omitempty"`
	ResolutionStatus  *string                    `json:"resolution_status,omitempty"`
	Reason            *string                    `json:"reason,omitempty"`
	EvidenceSources   []RawEvidenceSource        `json:"evidence_sources,omitempty"`
	HypothesisMatch   json.RawMessage            `json:"hypothesis_match,omitempty"`
	Discrepancy       *string                    `json:"discrepancy,omitempty"`
	DiscoveredSources []DiscoveredSource         `json:"discovered_sources,omitempty"`
	Extra             map[string]json.RawMessage `json:"-"`
}

type rawExtractedFieldsJSON RawExtractedFields

// UnmarshalJSON decodes the typed keys and keeps the rest in Extra.
func (f *RawExtractedFields) UnmarshalJSON(data []byte) error {
	var known rawExtractedFieldsJSON
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	*f = RawExtractedFields(known)
	f.Extra = extraKeys(all)
	return nil
}

// RawEvidenceBundle is a collector bundle as returned by the gateway.
type RawEvidenceBundle struct {
	BundleID        *string           `json:"bundle_id,omitempty"`
	MarketID        *string           `json:"market_id,omitempty"`
	CollectorName   *string           `json:"collector_name,omitempty"`
	Weight          json.RawMessage   `json:"weight,omitempty"`
	Items           []RawEvidenceItem `json:"items,omitempty"`
	ExecutionTimeMS json.RawMessage   `json:"execution_time_ms,omitempty"`
}

// StepEnvelope is the logical status every step response carries.
type StepEnvelope struct {
	OK     *bool    `json:"ok,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// Failed reports a logical step failure: an explicit ok=false or any
// reported error.
func (e StepEnvelope) Failed() bool {
	return (e.OK != nil && !*e.OK) || len(e.Errors) > 0
}

// ErrorMessages returns the step's own error list.
func (e StepEnvelope) ErrorMessages() []string {
	return e.Errors
}

// PromptResponse is the /step/prompt response.
type PromptResponse struct {
	StepEnvelope
	PromptSpec json.RawMessage `json:"prompt_spec,omitempty"`
	ToolPlan   json.RawMessage `json:"tool_plan,omitempty"`
}

// CollectResponse is the /step/collect response. Older gateways return a
// single evidence_bundle instead of the evidence_bundles list.
type CollectResponse struct {
	StepEnvelope
	EvidenceBundles json.RawMessage `json:"evidence_bundles,omitempty"`
	EvidenceBundle  json.RawMessage `json:"evidence_bundle,omitempty"`
}

// AuditResponse is the /step/audit response.
type AuditResponse struct {
	StepEnvelope
	ReasoningTrace json.RawMessage `json:"reasoning_trace,omitempty"`
}

// JudgeResponse is the /step/judge response.
type JudgeResponse struct {
	StepEnvelope
	Verdict    json.RawMessage `json:"verdict,omitempty"`
	Outcome    *string         `json:"outcome,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
}

// BundleResponse is the /step/bundle response.
type BundleResponse struct {
	StepEnvelope
	PoRBundle json.RawMessage `json:"por_bundle,omitempty"`
	PoRRoot   *string         `json:"por_root,omitempty"`
}

// ResolveArtifacts nests the four pipeline artifacts of a single-call run.
type ResolveArtifacts struct {
	EvidenceBundles []RawEvidenceBundle `json:"evidence_bundles,omitempty"`
	EvidenceBundle  *RawEvidenceBundle  `json:"evidence_bundle,omitempty"`
	ReasoningTrace  *ReasoningTrace     `json:"reasoning_trace,omitempty"`
	Verdict         *Verdict            `json:"verdict,omitempty"`
	PoRBundle       *PoRBundle          `json:"por_bundle,omitempty"`
}

// ResolveResponse is the /step/resolve single-call response.
type ResolveResponse struct {
	StepEnvelope
	RunID          *string           `json:"run_id,omitempty"`
	MarketID       *string           `json:"market_id,omitempty"`
	Outcome        *string           `json:"outcome,omitempty"`
	Confidence     *float64          `json:"confidence,omitempty"`
	PoRRoot        *string           `json:"por_root,omitempty"`
	ExecutionMode  *string           `json:"execution_mode,omitempty"`
	DurationMS     *float64          `json:"duration_ms,omitempty"`
	VerificationOK *bool             `json:"verification_ok,omitempty"`
	Artifacts      *ResolveArtifacts `json:"artifacts,omitempty"`
}

// Present reports whether a raw JSON value was supplied and is not null.
func Present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
