package evidence

import (
	"fmt"
	"math"

	"github.com/sells-group/resolution-cli/internal/model"
)

// CanonicalizeBundle converts one collector bundle. Item order is preserved
// and nothing is deduplicated.
func CanonicalizeBundle(raw model.RawEvidenceBundle) model.EvidenceBundle {
	b := model.EvidenceBundle{
		BundleID:      deref(raw.BundleID),
		MarketID:      deref(raw.MarketID),
		CollectorName: deref(raw.CollectorName),
		Weight:        DefaultWeight,
		Items:         CanonicalizeItems(raw.Items),
	}
	if b.Items == nil {
		b.Items = []model.EvidenceItem{}
	}
	if w, ok := floatValue(raw.Weight); ok && w > 0 {
		b.Weight = w
	}
	if v, ok := floatValue(raw.ExecutionTimeMS); ok {
		ms := int64(math.Round(v))
		b.ExecutionTimeMS = &ms
	}
	return b
}

// CanonicalizeBundles converts every bundle, keeping bundle identity and
// order. A nil input stays nil.
func CanonicalizeBundles(raw []model.RawEvidenceBundle) []model.EvidenceBundle {
	if raw == nil {
		return nil
	}
	out := make([]model.EvidenceBundle, len(raw))
	for i, r := range raw {
		out[i] = CanonicalizeBundle(r)
	}
	return out
}

// FlattenItems concatenates the items of every bundle in bundle order.
func FlattenItems(bundles []model.EvidenceBundle) []model.EvidenceItem {
	n := 0
	for _, b := range bundles {
		n += len(b.Items)
	}
	out := make([]model.EvidenceItem, 0, n)
	for _, b := range bundles {
		for _, it := range b.Items {
			out = append(out, it.Clone())
		}
	}
	return out
}

// ValidateBundle reports structural problems in a canonical bundle:
// duplicate evidence ids and failed items without an error. It never fails.
func ValidateBundle(b model.EvidenceBundle) []string {
	var problems []string
	seen := make(map[string]bool, len(b.Items))
	for i, it := range b.Items {
		if it.EvidenceID != "" {
			if seen[it.EvidenceID] {
				problems = append(problems, fmt.Sprintf("bundle %s: duplicate evidence_id %q", b.BundleID, it.EvidenceID))
			}
			seen[it.EvidenceID] = true
		}
		if !it.Success && it.Error == nil {
			problems = append(problems, fmt.Sprintf("bundle %s: item %d failed without an error", b.BundleID, i))
		}
	}
	return problems
}
