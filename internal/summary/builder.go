// Package summary composes the terminal artifacts of a resolution run into
// the canonical RunSummary.
package summary

import (
	"math"
	"slices"
	"strings"

	"github.com/sells-group/resolution-cli/internal/evidence"
	"github.com/sells-group/resolution-cli/internal/model"
)

// StageArtifacts is the multi-stage builder input: what the collect, audit,
// judge and bundle stages produced when run as separate calls. Pointer
// fields are optional; nil means the value was not supplied.
type StageArtifacts struct {
	RunID    string
	MarketID string

	EvidenceBundles []model.RawEvidenceBundle
	ReasoningTrace  *model.ReasoningTrace
	Verdict         *model.Verdict
	PoRBundle       *model.PoRBundle

	Outcome        *string
	Confidence     *float64
	PoRRoot        *string
	DurationMS     *int64
	Mode           string
	VerificationOK *bool

	Checks []model.Check
	Errors []string
}

// modeTable maps the mode vocabulary used across gateway versions onto the
// canonical execution modes.
var modeTable = map[string]model.ExecutionMode{
	"development": model.ModeDryRun,
	"api":         model.ModeLive,
	"live":        model.ModeLive,
	"replay":      model.ModeReplay,
	"dry_run":     model.ModeDryRun,
}

// MapMode maps a raw mode onto an ExecutionMode. Unrecognized modes are
// dry_run.
func MapMode(raw string) model.ExecutionMode {
	if m, ok := modeTable[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return m
	}
	return model.ModeDryRun
}

// Build composes a RunSummary from the multi-stage artifacts. Inputs are
// never modified.
func Build(in StageArtifacts) model.RunSummary {
	bundles := evidence.CanonicalizeBundles(in.EvidenceBundles)

	s := model.RunSummary{
		RunID:         in.RunID,
		MarketID:      in.MarketID,
		Outcome:       model.OutcomeUnknown,
		ExecutionMode: MapMode(in.Mode),
		Checks:        append([]model.Check{}, in.Checks...),
		Errors:        append([]string{}, in.Errors...),
	}

	if in.Verdict != nil {
		v := in.Verdict
		if v.Outcome != "" {
			s.Outcome = model.ParseOutcome(string(v.Outcome))
		}
		s.Confidence = v.Confidence
		s.PromptSpecHash = v.PromptSpecHash
		s.EvidenceRoot = v.EvidenceRoot
		s.ReasoningRoot = v.ReasoningRoot
		s.LLMReview = v.Metadata.LLMReview.Clone()
		if s.MarketID == "" {
			s.MarketID = v.MarketID
		}
	}
	if in.Outcome != nil && strings.TrimSpace(*in.Outcome) != "" {
		s.Outcome = model.ParseOutcome(*in.Outcome)
	}
	if in.Confidence != nil && !math.IsNaN(*in.Confidence) {
		s.Confidence = *in.Confidence
	}

	if in.PoRBundle != nil {
		p := in.PoRBundle
		s.PoRRoot = p.PoRRoot
		s.VerdictHash = p.VerdictHash
		s.PromptSpecHash = firstNonEmpty(s.PromptSpecHash, p.PromptSpecHash)
		s.EvidenceRoot = firstNonEmpty(s.EvidenceRoot, p.EvidenceRoot)
		s.ReasoningRoot = firstNonEmpty(s.ReasoningRoot, p.ReasoningRoot)
		if s.MarketID == "" {
			s.MarketID = p.MarketID
		}
	}
	if in.PoRRoot != nil && *in.PoRRoot != "" {
		s.PoRRoot = *in.PoRRoot
	}

	if bundles != nil {
		s.EvidenceBundles = bundles
		s.EvidenceItems = evidence.FlattenItems(bundles)
		s.DiscoveredSources = discoveredSources(s.EvidenceItems)
		if s.MarketID == "" {
			s.MarketID = bundleMarketID(bundles)
		}
	}

	if in.ReasoningTrace != nil {
		s.ReasoningSteps = model.CloneSteps(in.ReasoningTrace.Steps)
		if s.ReasoningSteps == nil {
			s.ReasoningSteps = []model.ReasoningStep{}
		}
		if cb := in.ReasoningTrace.ConfidenceBreakdown; cb != nil {
			c := *cb
			c.Adjustments = slices.Clone(cb.Adjustments)
			s.ConfidenceBreakdown = &c
		}
	}

	if in.DurationMS != nil {
		s.DurationMS = *in.DurationMS
	} else {
		s.DurationMS = totalDuration(bundles)
	}

	s.VerificationOK = verificationOK(in.VerificationOK, s.LLMReview)
	s.Checks = append(s.Checks, localChecks(s, in.PoRBundle)...)
	return s
}

// FromResolve composes a RunSummary from a single-call resolve response.
// A legacy singular evidence_bundle is wrapped into a one-element list when
// the evidence_bundles list is absent.
func FromResolve(resp model.ResolveResponse) model.RunSummary {
	in := StageArtifacts{
		RunID:          deref(resp.RunID),
		MarketID:       deref(resp.MarketID),
		Outcome:        resp.Outcome,
		Confidence:     resp.Confidence,
		PoRRoot:        resp.PoRRoot,
		Mode:           deref(resp.ExecutionMode),
		VerificationOK: resp.VerificationOK,
		Errors:         resp.Errors,
	}
	if resp.DurationMS != nil && !math.IsNaN(*resp.DurationMS) && !math.IsInf(*resp.DurationMS, 0) {
		ms := int64(math.Round(*resp.DurationMS))
		in.DurationMS = &ms
	}
	if a := resp.Artifacts; a != nil {
		in.EvidenceBundles = BundlesFromArtifacts(*a)
		in.ReasoningTrace = a.ReasoningTrace
		in.Verdict = a.Verdict
		in.PoRBundle = a.PoRBundle
	}
	return Build(in)
}

// BundlesFromArtifacts returns the evidence bundle list of a resolve
// response, wrapping the legacy singular bundle when needed.
func BundlesFromArtifacts(a model.ResolveArtifacts) []model.RawEvidenceBundle {
	if a.EvidenceBundles != nil {
		return a.EvidenceBundles
	}
	if a.EvidenceBundle != nil {
		return []model.RawEvidenceBundle{*a.EvidenceBundle}
	}
	return nil
}

// verificationOK follows the gateway convention: an explicit flag wins,
// then the judge's review, and a run with neither counts as verified.
func verificationOK(explicit *bool, review *model.LLMReview) bool {
	if explicit != nil {
		return *explicit
	}
	if review != nil && review.ReasoningValid != nil {
		return *review.ReasoningValid
	}
	return true
}

// totalDuration sums bundle execution times; missing values count as zero.
func totalDuration(bundles []model.EvidenceBundle) int64 {
	var total int64
	for _, b := range bundles {
		if b.ExecutionTimeMS != nil {
			total += *b.ExecutionTimeMS
		}
	}
	return total
}

// discoveredSources rebuilds the discovered-source list from every item,
// keeping the first occurrence of each URL.
func discoveredSources(items []model.EvidenceItem) []model.DiscoveredSource {
	out := []model.DiscoveredSource{}
	seen := make(map[string]bool)
	for _, it := range items {
		for _, ds := range it.ExtractedFields.DiscoveredSources {
			key := strings.TrimSpace(ds.URL)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, ds)
		}
	}
	return out
}

func bundleMarketID(bundles []model.EvidenceBundle) string {
	for _, b := range bundles {
		if b.MarketID != "" {
			return b.MarketID
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
