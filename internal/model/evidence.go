package model

import (
	"encoding/json"
	"maps"
	"slices"
)

// EvidenceItem is one fetched piece of evidence in canonical form.
type EvidenceItem struct {
	EvidenceID      string          `json:"evidence_id"`
	SourceURI       string          `json:"source_uri"`
	SourceName      string          `json:"source_name"`
	Tier            int             `json:"tier"`
	FetchedAt       string          `json:"fetched_at"`
	ContentHash     string          `json:"content_hash"`
	ParsedValue     json.RawMessage `json:"parsed_value,omitempty"`
	ParsedExcerpt   string          `json:"parsed_excerpt"`
	Success         bool            `json:"success"`
	Error           *string         `json:"error"`
	ExtractedFields ExtractedFields `json:"extracted_fields"`
}

// Clone returns a deep copy of the item.
func (e EvidenceItem) Clone() EvidenceItem {
	out := e
	out.ParsedValue = slices.Clone(e.ParsedValue)
	if e.Error != nil {
		s := *e.Error
		out.Error = &s
	}
	out.ExtractedFields = e.ExtractedFields.Clone()
	return out
}

// ExtractedFields is the open-ended field bag attached to an evidence item.
// Known keys are typed; everything else is preserved in Extra.
type ExtractedFields struct {
	ConfidenceScore   *float64
	ResolutionStatus  string
	Reason            string
	EvidenceSources   []EvidenceSource
	HypothesisMatch   *bool
	Discrepancy       string
	DiscoveredSources []DiscoveredSource
	Extra             map[string]json.RawMessage
}

// Clone returns a deep copy of the field bag.
func (f ExtractedFields) Clone() ExtractedFields {
	out := f
	if f.ConfidenceScore != nil {
		v := *f.ConfidenceScore
		out.ConfidenceScore = &v
	}
	if f.HypothesisMatch != nil {
		v := *f.HypothesisMatch
		out.HypothesisMatch = &v
	}
	out.EvidenceSources = slices.Clone(f.EvidenceSources)
	out.DiscoveredSources = slices.Clone(f.DiscoveredSources)
	if f.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(f.Extra))
		for k, v := range f.Extra {
			out.Extra[k] = slices.Clone(v)
		}
	}
	return out
}

// MarshalJSON flattens Extra next to the typed keys.
func (f ExtractedFields) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(f.Extra)+7)
	for k, v := range f.Extra {
		m[k] = v
	}
	if f.ConfidenceScore != nil {
		m["confidence_score"] = *f.ConfidenceScore
	}
	if f.ResolutionStatus != "" {
		m["resolution_status"] = f.ResolutionStatus
	}
	if f.Reason != "" {
		m["reason"] = f.Reason
	}
	if f.EvidenceSources != nil {
		m["evidence_sources"] = f.EvidenceSources
	}
	if f.HypothesisMatch != nil {
		m["hypothesis_match"] = *f.HypothesisMatch
	}
	if f.Discrepancy != "" {
		m["discrepancy"] = f.Discrepancy
	}
	if f.DiscoveredSources != nil {
		m["discovered_sources"] = f.DiscoveredSources
	}
	return json.Marshal(m)
}

// EvidenceSource is a sub-citation backing an evidence item.
type EvidenceSource struct {
	URL             string `json:"url"`
	SourceID        string `json:"source_id,omitempty"`
	CredibilityTier string `json:"credibility_tier"`
	KeyFact         string `json:"key_fact,omitempty"`
	Supports        string `json:"supports"`
	DatePublished   string `json:"date_published,omitempty"`
}

// DiscoveredSource is a source surfaced by a collector while gathering
// evidence, beyond the ones named in the tool plan.
type DiscoveredSource struct {
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
	Domain string `json:"domain,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// EvidenceBundle is the output of one collector.
type EvidenceBundle struct {
	BundleID        string         `json:"bundle_id"`
	MarketID        string         `json:"market_id"`
	CollectorName   string         `json:"collector_name"`
	Weight          float64        `json:"weight"`
	Items           []EvidenceItem `json:"items"`
	ExecutionTimeMS *int64         `json:"execution_time_ms,omitempty"`
}

// Clone returns a deep copy of the bundle.
func (b EvidenceBundle) Clone() EvidenceBundle {
	out := b
	if b.Items != nil {
		out.Items = make([]EvidenceItem, len(b.Items))
		for i, it := range b.Items {
			out.Items[i] = it.Clone()
		}
	}
	if b.ExecutionTimeMS != nil {
		v := *b.ExecutionTimeMS
		out.ExecutionTimeMS = &v
	}
	return out
}

// CloneBundles deep-copies a bundle list, preserving nil.
func CloneBundles(in []EvidenceBundle) []EvidenceBundle {
	if in == nil {
		return nil
	}
	out := make([]EvidenceBundle, len(in))
	for i, b := range in {
		out[i] = b.Clone()
	}
	return out
}

// knownExtractedKeys are decoded into typed ExtractedFields members.
var knownExtractedKeys = []string{
	"confidence_score", "resolution_status", "reason", "evidence_sources",
	"hypothesis_match", "discrepancy", "discovered_sources",
}

// extraKeys returns every key of m that is not a typed extracted field.
func extraKeys(m map[string]json.RawMessage) map[string]json.RawMessage {
	out := maps.Clone(m)
	for _, k := range knownExtractedKeys {
		delete(out, k)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

type extractedFieldsJSON struct {
	ConfidenceScore   *float64           `json:"confidence_score"`
	ResolutionStatus  string             `json:"resolution_status"`
	Reason            string             `json:"reason"`
	EvidenceSources   []EvidenceSource   `json:"evidence_sources"`
	HypothesisMatch   *bool              `json:"hypothesis_match"`
	Discrepancy       string             `json:"discrepancy"`
	DiscoveredSources []DiscoveredSource `json:"discovered_sources"`
}

// UnmarshalJSON reads canonical extracted fields, keeping unknown keys in Extra.
func (f *ExtractedFields) UnmarshalJSON(data []byte) error {
	var known extractedFieldsJSON
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	*f = ExtractedFields{
		ConfidenceScore:   known.ConfidenceScore,
		ResolutionStatus:  known.ResolutionStatus,
		Reason:            known.Reason,
		EvidenceSources:   known.EvidenceSources,
		HypothesisMatch:   known.HypothesisMatch,
		Discrepancy:       known.Discrepancy,
		DiscoveredSources: known.DiscoveredSources,
		Extra:             extraKeys(all),
	}
	return nil
}
