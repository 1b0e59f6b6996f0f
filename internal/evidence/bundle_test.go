package evidence

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/resolution-cli/internal/model"
)

func decodeBundles(t *testing.T, s string) []model.RawEvidenceBundle {
	t.Helper()
	var raw []model.RawEvidenceBundle
	require.NoError(t, json.Unmarshal([]byte(s), &raw))
	return raw
}

func TestCanonicalizeBundle_SharedFieldsAndDefaults(t *testing.T) {
	t.Parallel()

	raw := decodeBundles(t, `[{
		"bundle_id": "b-1",
		"market_id": "mkt-7",
		"collector_name": "CollectorWeb",
		"items": [{"evidence_id":"e1"},{"evidence_id":"e2"}],
		"execution_time_ms": 412.6
	}]`)[0]

	got := CanonicalizeBundle(raw)

	assert.Equal(t, "b-1", got.BundleID)
	assert.Equal(t, "mkt-7", got.MarketID)
	assert.Equal(t, "CollectorWeb", got.CollectorName)
	assert.InDelta(t, DefaultWeight, got.Weight, 1e-9)
	require.NotNil(t, got.ExecutionTimeMS)
	assert.Equal(t, int64(413), *got.ExecutionTimeMS)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "e1", got.Items[0].EvidenceID)
	assert.Equal(t, "e2", got.Items[1].EvidenceID)
}

func TestCanonicalizeBundle_Weight(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"explicit", `[{"weight":0.25}]`, 0.25},
		{"missing", `[{}]`, 1.0},
		{"zero", `[{"weight":0}]`, 1.0},
		{"negative", `[{"weight":-2}]`, 1.0},
		{"numeric string", `[{"weight":"0.5"}]`, 0.5},
		{"word", `[{"weight":"heavy"}]`, 1.0},
		{"null", `[{"weight":null}]`, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := CanonicalizeBundle(decodeBundles(t, tt.raw)[0])
			assert.InDelta(t, tt.want, got.Weight, 1e-9)
		})
	}
}

func TestCanonicalizeBundle_NoItemsIsEmptyNotNil(t *testing.T) {
	t.Parallel()

	got := CanonicalizeBundle(model.RawEvidenceBundle{})
	assert.NotNil(t, got.Items)
	assert.Empty(t, got.Items)
	assert.Nil(t, got.ExecutionTimeMS)
}

func TestCanonicalizeBundle_ExecutionTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want *int64
	}{
		{"number", `[{"execution_time_ms":250}]`, ptrInt64(250)},
		{"numeric string", `[{"execution_time_ms":"250.4"}]`, ptrInt64(250)},
		{"word", `[{"execution_time_ms":"slow"}]`, nil},
		{"object", `[{"execution_time_ms":{"ms":1}}]`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := CanonicalizeBundle(decodeBundles(t, tt.raw)[0])
			assert.Equal(t, tt.want, got.ExecutionTimeMS)
		})
	}
}

func TestCanonicalizeBundles_MistypedItemDoesNotSpoilBundle(t *testing.T) {
	t.Parallel()

	got := CanonicalizeBundles(decodeBundles(t, `[{"bundle_id":"b","items":[
		{"evidence_id":"e1","tier":"2","success":"true"},
		{"evidence_id":"e2","tier":2.0,"extracted_fields":{"confidence_score":"0.9"}}
	]}]`))

	require.Len(t, got, 1)
	require.Len(t, got[0].Items, 2)
	assert.Equal(t, 2, got[0].Items[0].Tier)
	assert.True(t, got[0].Items[0].Success)
	assert.Equal(t, 2, got[0].Items[1].Tier)
	require.NotNil(t, got[0].Items[1].ExtractedFields.ConfidenceScore)
	assert.InDelta(t, 0.9, *got[0].Items[1].ExtractedFields.ConfidenceScore, 1e-9)
}

func ptrInt64(v int64) *int64 { return &v }

func TestCanonicalizeBundles_PreservesIdentityAndOrder(t *testing.T) {
	t.Parallel()

	raw := decodeBundles(t, `[
		{"bundle_id":"b-2","collector_name":"B","items":[{"evidence_id":"x"},{"evidence_id":"y"}]},
		{"bundle_id":"b-1","collector_name":"A","items":[{"evidence_id":"x"}]}
	]`)

	got := CanonicalizeBundles(raw)
	require.Len(t, got, 2)
	assert.Equal(t, "b-2", got[0].BundleID)
	assert.Equal(t, "b-1", got[1].BundleID)

	flat := FlattenItems(got)
	ids := make([]string, len(flat))
	for i, it := range flat {
		ids[i] = it.EvidenceID
	}
	assert.Equal(t, []string{"x", "y", "x"}, ids, "items are concatenated, never deduplicated across bundles")
}

func TestCanonicalizeBundles_Nil(t *testing.T) {
	t.Parallel()
	assert.Nil(t, CanonicalizeBundles(nil))
}

func TestCanonicalizeBundle_Idempotent(t *testing.T) {
	t.Parallel()

	raw := decodeBundles(t, `[{
		"bundle_id":"b-1","market_id":"m","collector_name":"c","weight":2,
		"execution_time_ms":100,
		"items":[{"evidence_id":"e1","provenance":{"source_uri":"u","tier":1}},{"success":false}]
	}]`)[0]

	once := CanonicalizeBundle(raw)
	twice := CanonicalizeBundle(ToRawBundle(once))
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("bundle not idempotent (-once +twice):\n%s", diff)
	}
}

func TestFlattenItems_DoesNotAlias(t *testing.T) {
	t.Parallel()

	bundles := CanonicalizeBundles(decodeBundles(t, `[{"items":[{"evidence_id":"e1","error":"boom"}]}]`))
	flat := FlattenItems(bundles)
	require.Len(t, flat, 1)

	*flat[0].Error = "changed"
	assert.Equal(t, "boom", *bundles[0].Items[0].Error)
}

func TestValidateBundle(t *testing.T) {
	t.Parallel()

	b := CanonicalizeBundle(decodeBundles(t, `[{"bundle_id":"b","items":[
		{"evidence_id":"e1"},{"evidence_id":"e1"},{"evidence_id":"e2"}
	]}]`)[0])
	b.Items[2].Success = false
	b.Items[2].Error = nil

	problems := ValidateBundle(b)
	require.Len(t, problems, 2)
	assert.Contains(t, problems[0], `duplicate evidence_id "e1"`)
	assert.Contains(t, problems[1], "failed without an error")

	assert.Empty(t, ValidateBundle(CanonicalizeBundle(model.RawEvidenceBundle{})))
}
