package evidence

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/sells-group/resolution-cli/internal/model"
)

// ToRaw expresses a canonical item in the flat raw schema, so that
// canonical items can be fed back through CanonicalizeItem.
func ToRaw(item model.EvidenceItem) model.RawEvidenceItem {
	raw := model.RawEvidenceItem{
		EvidenceID:    ptr(item.EvidenceID),
		SourceURI:     ptr(item.SourceURI),
		SourceName:    ptr(item.SourceName),
		Tier:          intJSON(item.Tier),
		FetchedAt:     ptr(item.FetchedAt),
		ContentHash:   ptr(item.ContentHash),
		ParsedValue:   bytes.Clone(item.ParsedValue),
		ParsedExcerpt: ptr(item.ParsedExcerpt),
		Success:       boolJSON(item.Success),
	}
	if item.Error != nil {
		e := *item.Error
		raw.Error = &e
	}
	f := item.ExtractedFields
	rf := model.RawExtractedFields{
		DiscoveredSources: cloneDiscovered(f.DiscoveredSources),
	}
	if f.ConfidenceScore != nil {
		rf.ConfidenceScore = floatJSON(*f.ConfidenceScore)
	}
	if f.HypothesisMatch != nil {
		rf.HypothesisMatch = boolJSON(*f.HypothesisMatch)
	}
	if f.ResolutionStatus != "" {
		rf.ResolutionStatus = ptr(f.ResolutionStatus)
	}
	if f.Reason != "" {
		rf.Reason = ptr(f.Reason)
	}
	if f.Discrepancy != "" {
		rf.Discrepancy = ptr(f.Discrepancy)
	}
	if f.EvidenceSources != nil {
		rf.EvidenceSources = make([]model.RawEvidenceSource, len(f.EvidenceSources))
		for i, s := range f.EvidenceSources {
			tier, _ := json.Marshal(s.CredibilityTier)
			rf.EvidenceSources[i] = model.RawEvidenceSource{
				URL:             ptr(s.URL),
				SourceID:        ptr(s.SourceID),
				CredibilityTier: tier,
				KeyFact:         ptr(s.KeyFact),
				Supports:        ptr(s.Supports),
				DatePublished:   ptr(s.DatePublished),
			}
		}
	}
	if f.Extra != nil {
		rf.Extra = make(map[string]json.RawMessage, len(f.Extra))
		for k, v := range f.Extra {
			rf.Extra[k] = bytes.Clone(v)
		}
	}
	raw.ExtractedFields = &rf
	return raw
}

// ToRawBundle expresses a canonical bundle in the raw schema.
func ToRawBundle(b model.EvidenceBundle) model.RawEvidenceBundle {
	raw := model.RawEvidenceBundle{
		BundleID:      ptr(b.BundleID),
		MarketID:      ptr(b.MarketID),
		CollectorName: ptr(b.CollectorName),
		Weight:        floatJSON(b.Weight),
	}
	if b.Items != nil {
		raw.Items = make([]model.RawEvidenceItem, len(b.Items))
		for i, it := range b.Items {
			raw.Items[i] = ToRaw(it)
		}
	}
	if b.ExecutionTimeMS != nil {
		raw.ExecutionTimeMS = json.RawMessage(strconv.FormatInt(*b.ExecutionTimeMS, 10))
	}
	return raw
}

func ptr(s string) *string {
	return &s
}
