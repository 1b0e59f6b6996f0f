package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepEnvelope_Failed(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"ok true", `{"ok":true}`, false},
		{"ok absent", `{}`, false},
		{"ok false", `{"ok":false}`, true},
		{"errors with ok true", `{"ok":true,"errors":["partial"]}`, true},
		{"empty errors", `{"ok":true,"errors":[]}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env StepEnvelope
			require.NoError(t, json.Unmarshal([]byte(tt.body), &env))
			assert.Equal(t, tt.want, env.Failed())
		})
	}
}

func TestStepEnvelope_EmbeddedInResponse(t *testing.T) {
	var resp JudgeResponse
	require.NoError(t, json.Unmarshal([]byte(`{"ok":false,"errors":["no verdict"]}`), &resp))
	assert.True(t, resp.Failed())
	assert.Equal(t, []string{"no verdict"}, resp.ErrorMessages())
}

func TestPresent(t *testing.T) {
	assert.False(t, Present(nil))
	assert.False(t, Present(json.RawMessage(`null`)))
	assert.True(t, Present(json.RawMessage(`{}`)))
	assert.True(t, Present(json.RawMessage(`[]`)))
	assert.True(t, Present(json.RawMessage(`0`)))
}

func TestRawExtractedFields_Extra(t *testing.T) {
	var f RawExtractedFields
	require.NoError(t, json.Unmarshal([]byte(`{"reason":"r","custom":{"a":1}}`), &f))
	require.NotNil(t, f.Reason)
	assert.Equal(t, "r", *f.Reason)
	assert.Nil(t, f.ConfidenceScore)
	require.Contains(t, f.Extra, "custom")
	assert.JSONEq(t, `{"a":1}`, string(f.Extra["custom"]))
}

func TestRawEvidenceItem_LegacyAndNested(t *testing.T) {
	var items []RawEvidenceItem
	require.NoError(t, json.Unmarshal([]byte(`[
		{"evidence_id":"e1","provenance":{"source_uri":"https://a","tier":1}},
		{"evidence_id":"e2","source_uri":"https://b","tier":2}
	]`), &items))
	require.Len(t, items, 2)

	require.NotNil(t, items[0].Provenance)
	assert.Equal(t, "https://a", *items[0].Provenance.SourceURI)
	assert.Nil(t, items[0].SourceURI)

	assert.Nil(t, items[1].Provenance)
	assert.JSONEq(t, `2`, string(items[1].Tier))
}

func TestPromptSpec_RulesByPriority(t *testing.T) {
	spec := PromptSpec{Market: MarketSpec{ResolutionRules: []ResolutionRule{
		{RuleID: "low", Priority: 1},
		{RuleID: "high-a", Priority: 5},
		{RuleID: "high-b", Priority: 5},
	}}}

	rules := spec.RulesByPriority()
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.RuleID
	}
	assert.Equal(t, []string{"high-a", "high-b", "low"}, ids)
	assert.Equal(t, "low", spec.Market.ResolutionRules[0].RuleID, "source order untouched")
}
