// Package evidence maps raw, version-ambiguous evidence payloads onto the
// canonical evidence model. Every function here is total: missing or
// malformed optional fields fall back to defaults and never produce errors.
package evidence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/sells-group/resolution-cli/internal/model"
)

const (
	// MaxExcerptRunes bounds an excerpt built from a parsed value.
	MaxExcerptRunes = 500

	// DefaultCredibilityTier is used for citations without a numeric tier.
	DefaultCredibilityTier = "3"

	// DefaultSupports is used for citations that do not say what they support.
	DefaultSupports = "N/A"

	// DefaultWeight is the weight of a bundle that does not declare one.
	DefaultWeight = 1.0

	// FetchFailedMessage is the error attached to a failed item that did
	// not report one.
	FetchFailedMessage = "evidence fetch failed"
)

// CanonicalizeItem converts a raw evidence item to canonical form.
//
// Provenance is read from the nested provenance object first and from the
// flat legacy fields second, field by field; an empty or mistyped nested
// value falls through to the flat one. Applying CanonicalizeItem to
// ToRaw of its own output reproduces that output.
func CanonicalizeItem(raw model.RawEvidenceItem) model.EvidenceItem {
	var prov model.RawProvenance
	if raw.Provenance != nil {
		prov = *raw.Provenance
	}

	item := model.EvidenceItem{
		EvidenceID:  deref(raw.EvidenceID),
		SourceURI:   first(prov.SourceURI, raw.SourceURI),
		SourceName:  first(prov.SourceName, raw.SourceName, prov.SourceID),
		FetchedAt:   first(prov.FetchedAt, raw.FetchedAt),
		ContentHash: normalizeHash(first(prov.ContentHash, raw.ContentHash)),
	}
	if tier, ok := intValue(prov.Tier); ok {
		item.Tier = tier
	} else if tier, ok := intValue(raw.Tier); ok {
		item.Tier = tier
	}

	if model.Present(raw.ParsedValue) {
		item.ParsedValue = bytes.Clone(raw.ParsedValue)
	}

	var fields model.ExtractedFields
	if raw.ExtractedFields != nil {
		fields = canonicalizeFields(*raw.ExtractedFields)
	}
	item.ExtractedFields = fields
	item.ParsedExcerpt = excerpt(item.ParsedValue, fields, deref(raw.ParsedExcerpt))

	if raw.Error != nil {
		e := *raw.Error
		item.Error = &e
	}
	if v, ok := boolValue(raw.Success); ok {
		item.Success = v
	} else {
		item.Success = item.Error == nil
	}
	if !item.Success && item.Error == nil {
		e := FetchFailedMessage
		item.Error = &e
	}

	return item
}

// CanonicalizeItems maps a list of raw items, preserving order and nil.
func CanonicalizeItems(raw []model.RawEvidenceItem) []model.EvidenceItem {
	if raw == nil {
		return nil
	}
	out := make([]model.EvidenceItem, len(raw))
	for i, r := range raw {
		out[i] = CanonicalizeItem(r)
	}
	return out
}

func canonicalizeFields(raw model.RawExtractedFields) model.ExtractedFields {
	f := model.ExtractedFields{
		ResolutionStatus:  deref(raw.ResolutionStatus),
		Reason:            deref(raw.Reason),
		Discrepancy:       deref(raw.Discrepancy),
		DiscoveredSources: cloneDiscovered(raw.DiscoveredSources),
	}
	if v, ok := floatValue(raw.ConfidenceScore); ok {
		f.ConfidenceScore = &v
	}
	if v, ok := boolValue(raw.HypothesisMatch); ok {
		f.HypothesisMatch = &v
	}
	if raw.EvidenceSources != nil {
		f.EvidenceSources = make([]model.EvidenceSource, len(raw.EvidenceSources))
		for i, src := range raw.EvidenceSources {
			f.EvidenceSources[i] = canonicalizeSource(src)
		}
	}
	if raw.Extra != nil {
		f.Extra = make(map[string]json.RawMessage, len(raw.Extra))
		for k, v := range raw.Extra {
			f.Extra[k] = bytes.Clone(v)
		}
	}
	return f
}

func canonicalizeSource(raw model.RawEvidenceSource) model.EvidenceSource {
	supports := deref(raw.Supports)
	if strings.TrimSpace(supports) == "" {
		supports = DefaultSupports
	}
	return model.EvidenceSource{
		URL:             deref(raw.URL),
		SourceID:        deref(raw.SourceID),
		CredibilityTier: credibilityTier(raw.CredibilityTier),
		KeyFact:         deref(raw.KeyFact),
		Supports:        supports,
		DatePublished:   deref(raw.DatePublished),
	}
}

// credibilityTier renders a tier given as a JSON number or numeric string.
// Anything else is the default tier.
func credibilityTier(raw json.RawMessage) string {
	if f, ok := floatValue(raw); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return DefaultCredibilityTier
}

// excerpt picks the human-readable excerpt: the parsed value, then the
// extracted reason, then a status/confidence line, then whatever excerpt
// the item already carried.
func excerpt(parsedValue json.RawMessage, f model.ExtractedFields, existing string) string {
	if model.Present(parsedValue) {
		return truncate(stringify(parsedValue), MaxExcerptRunes)
	}
	if f.Reason != "" {
		return f.Reason
	}
	var parts []string
	if f.ResolutionStatus != "" {
		parts = append(parts, "Status: "+f.ResolutionStatus)
	}
	if f.ConfidenceScore != nil {
		parts = append(parts, fmt.Sprintf("Confidence: %d%%", int(math.Round(*f.ConfidenceScore*100))))
	}
	if len(parts) > 0 {
		return strings.Join(parts, " | ")
	}
	return existing
}

// stringify renders strings verbatim and everything else as compact JSON.
func stringify(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

// normalizeHash keeps empty or hex digests (optionally 0x-prefixed) and
// drops anything else.
func normalizeHash(h string) string {
	h = strings.TrimSpace(h)
	digits := strings.TrimPrefix(strings.TrimPrefix(h, "0x"), "0X")
	if digits == "" {
		return ""
	}
	for _, c := range digits {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return ""
		}
	}
	return h
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// first returns the first non-empty value.
func first(vals ...*string) string {
	for _, v := range vals {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}

func cloneDiscovered(in []model.DiscoveredSource) []model.DiscoveredSource {
	return slices.Clone(in)
}
