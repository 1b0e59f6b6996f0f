package model

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOutcome(t *testing.T) {
	tests := []struct {
		in   string
		want Outcome
	}{
		{"YES", OutcomeYes},
		{"yes", OutcomeYes},
		{"  No ", OutcomeNo},
		{"invalid", OutcomeInvalid},
		{"Unknown", OutcomeUnknown},
		{"", OutcomeUnknown},
		{"maybe", OutcomeUnknown},
		{"Y", OutcomeUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseOutcome(tt.in), "ParseOutcome(%q)", tt.in)
	}
}

func TestParseOutcome_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				assert.Equal(t, OutcomeNo, ParseOutcome("no"))
			}
		}()
	}
	wg.Wait()
}

func TestOutcome_Known(t *testing.T) {
	assert.True(t, OutcomeYes.Known())
	assert.True(t, OutcomeNo.Known())
	assert.True(t, OutcomeInvalid.Known())
	assert.False(t, OutcomeUnknown.Known())
	assert.False(t, Outcome("").Known())
}

func TestStage_Index(t *testing.T) {
	for i, s := range Stages {
		assert.Equal(t, i, s.Index())
	}
	assert.Equal(t, -1, Stage("publish").Index())
}
