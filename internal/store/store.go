// Package store persists resolution run history: runs, their stage
// transitions and the final summary. Match status is never stored; it is
// always computed on demand.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/resolution-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Phase    model.Phase `json:"phase,omitempty"`
	MarketID string      `json:"market_id,omitempty"`
	Limit    int         `json:"limit,omitempty"`
	Offset   int         `json:"offset,omitempty"`
}

// DefaultListLimit caps ListRuns when the filter sets no limit.
const DefaultListLimit = 100

// ErrNotFound is wrapped into every error for a missing run.
var ErrNotFound = eris.New("run not found")

// Store defines the persistence interface for resolution runs. It satisfies
// pipeline.Recorder.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.Run) error
	UpdateRunPhase(ctx context.Context, runID string, phase model.Phase) error
	SetRunMarket(ctx context.Context, runID, marketID string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Stages and results
	RecordStage(ctx context.Context, runID string, rec model.StageRecord) error
	SaveSummary(ctx context.Context, runID string, s model.RunSummary) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// IsNotFound reports whether err is a missing-run error.
func IsNotFound(err error) bool {
	return eris.Is(err, ErrNotFound)
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	return n
}
