package model

import (
	"encoding/json"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"
)

// PromptSpec is the deterministic specification of a market question. It is
// produced once by the prompt stage and never modified afterwards.
type PromptSpec struct {
	SchemaVersion      string         `json:"schema_version,omitempty"`
	Market             MarketSpec     `json:"market"`
	ForbiddenBehaviors []string       `json:"forbidden_behaviors,omitempty"`
	CreatedAt          *time.Time     `json:"created_at"` // nil when the spec must be hash-stable
	Extra              map[string]any `json:"extra,omitempty"`
}

// specTimeLayouts are tried in order for created_at. Zoneless layouts are
// read as UTC.
var specTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

// UnmarshalJSON decodes a spec, reading created_at leniently: an RFC 3339
// or zoneless ISO 8601 string, or Unix seconds. Anything else leaves
// CreatedAt nil.
func (s *PromptSpec) UnmarshalJSON(data []byte) error {
	type plain PromptSpec
	aux := struct {
		*plain
		CreatedAt json.RawMessage `json:"created_at"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.CreatedAt = parseSpecTime(aux.CreatedAt)
	return nil
}

func parseSpecTime(raw json.RawMessage) *time.Time {
	if !Present(raw) {
		return nil
	}
	var secs json.Number
	if err := json.Unmarshal(raw, &secs); err == nil && raw[0] != '"' {
		if f, err := secs.Float64(); err == nil {
			t := time.UnixMilli(int64(f * 1000)).UTC()
			return &t
		}
		return nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return nil
	}
	str = strings.TrimSpace(str)
	for _, layout := range specTimeLayouts {
		if t, err := time.Parse(layout, str); err == nil {
			return &t
		}
	}
	return nil
}

// MarketSpec describes the market being resolved.
type MarketSpec struct {
	MarketID           string           `json:"market_id"`
	Question           string           `json:"question"`
	EventDefinition    string           `json:"event_definition,omitempty"`
	ResolutionDeadline string           `json:"resolution_deadline,omitempty"`
	ResolutionRules    []ResolutionRule `json:"resolution_rules,omitempty"`
	AllowedSources     []AllowedSource  `json:"allowed_sources,omitempty"`
	MinProvenanceTier  int              `json:"min_provenance_tier"`
	DisputePolicy      DisputePolicy    `json:"dispute_policy"`
}

// ResolutionRule is one rule applied when resolving the market.
type ResolutionRule struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

// AllowedSource names a source the collectors may consult.
type AllowedSource struct {
	SourceID string `json:"source_id"`
	Kind     string `json:"kind,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

// DisputePolicy configures the dispute window for a resolution.
type DisputePolicy struct {
	DisputeWindowSeconds int  `json:"dispute_window_seconds"`
	AllowReopen          bool `json:"allow_reopen"`
}

// RulesByPriority returns the resolution rules, highest priority first.
// Rules with equal priority keep their declared order.
func (s PromptSpec) RulesByPriority() []ResolutionRule {
	rules := slices.Clone(s.Market.ResolutionRules)
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})
	return rules
}

// Clone returns a deep copy so later stages can never alias the original.
func (s PromptSpec) Clone() PromptSpec {
	out := s
	out.ForbiddenBehaviors = slices.Clone(s.ForbiddenBehaviors)
	out.Market.ResolutionRules = slices.Clone(s.Market.ResolutionRules)
	out.Market.AllowedSources = slices.Clone(s.Market.AllowedSources)
	if s.CreatedAt != nil {
		t := *s.CreatedAt
		out.CreatedAt = &t
	}
	out.Extra = maps.Clone(s.Extra)
	return out
}

// ToolPlan is the source-querying plan tied to a PromptSpec.
type ToolPlan struct {
	PlanID            string          `json:"plan_id"`
	RequirementIDs    []string        `json:"requirements"`
	Sources           []PlannedSource `json:"sources"`
	MinProvenanceTier int             `json:"min_provenance_tier"`
	AllowFallbacks    bool            `json:"allow_fallbacks"`
}

// PlannedSource is one source the collectors will query.
type PlannedSource struct {
	SourceID string `json:"source_id"`
	Provider string `json:"provider"`
	Endpoint string `json:"endpoint"`
	Tier     int    `json:"tier"`
}

// Clone returns a deep copy of the plan.
func (p ToolPlan) Clone() ToolPlan {
	out := p
	out.RequirementIDs = slices.Clone(p.RequirementIDs)
	out.Sources = slices.Clone(p.Sources)
	return out
}
