package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDAG(t *testing.T) {
	tests := []struct {
		name    string
		steps   []ReasoningStep
		wantErr string
	}{
		{name: "empty"},
		{
			name: "multiple predecessors",
			steps: []ReasoningStep{
				{StepID: "a"},
				{StepID: "b"},
				{StepID: "c", DependsOn: []string{"a", "b"}},
				{StepID: "d", DependsOn: []string{"c", "a"}},
			},
		},
		{
			name:    "duplicate id",
			steps:   []ReasoningStep{{StepID: "a"}, {StepID: "a"}},
			wantErr: `duplicate step id "a"`,
		},
		{
			name:    "unknown dependency",
			steps:   []ReasoningStep{{StepID: "a", DependsOn: []string{"z"}}},
			wantErr: `depends on unknown step "z"`,
		},
		{
			name:    "self loop",
			steps:   []ReasoningStep{{StepID: "a", DependsOn: []string{"a"}}},
			wantErr: "cycle",
		},
		{
			name: "cycle",
			steps: []ReasoningStep{
				{StepID: "a", DependsOn: []string{"c"}},
				{StepID: "b", DependsOn: []string{"a"}},
				{StepID: "c", DependsOn: []string{"b"}},
			},
			wantErr: "cycle",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDAG(tt.steps)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCloneSteps(t *testing.T) {
	assert.Nil(t, CloneSteps(nil))

	in := []ReasoningStep{{StepID: "a", DependsOn: []string{"x"}, EvidenceRefs: []string{"e1"}}}
	out := CloneSteps(in)
	out[0].DependsOn[0] = "changed"
	out[0].EvidenceRefs[0] = "changed"
	assert.Equal(t, "x", in[0].DependsOn[0])
	assert.Equal(t, "e1", in[0].EvidenceRefs[0])
}

func TestLLMReview_Clone(t *testing.T) {
	var nilReview *LLMReview
	assert.Nil(t, nilReview.Clone())

	valid := true
	r := &LLMReview{ReasoningValid: &valid, Issues: []string{"thin evidence"}}
	c := r.Clone()
	*c.ReasoningValid = false
	c.Issues[0] = "changed"
	assert.True(t, *r.ReasoningValid)
	assert.Equal(t, "thin evidence", r.Issues[0])
}
