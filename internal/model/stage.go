package model

import "time"

// Stage is one of the five ordered pipeline steps.
type Stage string

const (
	StagePrompt  Stage = "prompt"
	StageCollect Stage = "collect"
	StageAudit   Stage = "audit"
	StageJudge   Stage = "judge"
	StageBundle  Stage = "bundle"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StagePrompt, StageCollect, StageAudit, StageJudge, StageBundle}

// Index returns the position of the stage in execution order, or -1.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// StageStatus is the status of a single stage within a run.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusError     StageStatus = "error"
)

// Phase is the overall phase of a resolution run.
type Phase string

const (
	PhaseInput     Phase = "input"
	PhasePrompting Phase = "prompting"
	PhasePrompted  Phase = "prompted"
	PhaseResolving Phase = "resolving"
	PhaseResolved  Phase = "resolved"
)

// StageRecord is the persisted outcome of one stage.
type StageRecord struct {
	Stage      Stage       `json:"stage"`
	Status     StageStatus `json:"status"`
	DurationMS int64       `json:"duration_ms"`
	Errors     []string    `json:"errors,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Run is a persisted resolution run.
type Run struct {
	ID        string        `json:"id"`
	UserInput string        `json:"user_input"`
	MarketID  string        `json:"market_id,omitempty"`
	Phase     Phase         `json:"phase"`
	Stages    []StageRecord `json:"stages,omitempty"`
	Summary   *RunSummary   `json:"summary,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
