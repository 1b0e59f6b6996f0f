package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/resolution-cli/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			MarketID:  "will-x-happen-by-june-2025-and-then-some",
			Phase:     model.PhaseResolved,
			Summary:   &model.RunSummary{Outcome: model.OutcomeYes, Confidence: 0.78, DurationMS: 1500},
			CreatedAt: now,
			UpdatedAt: now.Add(2 * time.Minute),
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			MarketID:  "mkt-2",
			Phase:     model.PhasePrompted,
			CreatedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-30 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "MARKET")
	assert.Contains(t, output, "PHASE")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "will-x-happen-by-june-2025-...")
	assert.Contains(t, output, "resolved")
	assert.Contains(t, output, "YES")
	assert.Contains(t, output, "0.78")
	assert.Contains(t, output, "1.5s", "summary duration wins over timestamps")
	assert.Contains(t, output, "prompted")
	assert.Contains(t, output, "30m0s")
	assert.Contains(t, output, "2025-06-15 10:30")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "", truncateID(""))
}
