package pipeline

import (
	"slices"

	"github.com/sells-group/resolution-cli/internal/model"
)

// StageState is the live status of one stage.
type StageState struct {
	Stage      model.Stage       `json:"stage"`
	Status     model.StageStatus `json:"status"`
	DurationMS int64             `json:"duration_ms"`
	Errors     []string          `json:"errors,omitempty"`
}

// Artifacts are the canonical outputs of the resolve stages. Fields stay
// nil until the producing stage completes.
type Artifacts struct {
	EvidenceBundles []model.EvidenceBundle `json:"evidence_bundles"`
	ReasoningTrace  *model.ReasoningTrace  `json:"reasoning_trace"`
	Verdict         *model.Verdict         `json:"verdict"`
	PoRBundle       *model.PoRBundle       `json:"por_bundle"`
}

// State is a snapshot of the orchestrator. Snapshots are copies and are
// never updated after they are handed out.
type State struct {
	RunID      string            `json:"run_id"`
	Phase      model.Phase       `json:"phase"`
	Stages     []StageState      `json:"stages"`
	PromptSpec *model.PromptSpec `json:"prompt_spec"`
	ToolPlan   *model.ToolPlan   `json:"tool_plan"`
	Artifacts  Artifacts         `json:"artifacts"`
	Summary    *model.RunSummary `json:"summary"`
	LastError  *StageError       `json:"-"`
	Generation uint64            `json:"generation"`
}

func initialState(gen uint64) State {
	st := State{Phase: model.PhaseInput, Generation: gen, Stages: make([]StageState, len(model.Stages))}
	for i, s := range model.Stages {
		st.Stages[i] = StageState{Stage: s, Status: model.StageStatusPending}
	}
	return st
}

// Stage returns the state of one stage.
func (s State) Stage(stage model.Stage) StageState {
	if i := stage.Index(); i >= 0 && i < len(s.Stages) {
		return s.Stages[i]
	}
	return StageState{Stage: stage, Status: model.StageStatusPending}
}

func (s *State) setStage(stage model.Stage, status model.StageStatus, durationMS int64, errs []string) {
	i := stage.Index()
	s.Stages[i] = StageState{
		Stage:      stage,
		Status:     status,
		DurationMS: durationMS,
		Errors:     slices.Clone(errs),
	}
}

// resetFrom returns every stage from the given one onwards to pending.
func (s *State) resetFrom(stage model.Stage) {
	for i := stage.Index(); i < len(s.Stages); i++ {
		s.Stages[i] = StageState{Stage: model.Stages[i], Status: model.StageStatusPending}
	}
}

func (s State) clone() State {
	out := s
	out.Stages = make([]StageState, len(s.Stages))
	for i, st := range s.Stages {
		st.Errors = slices.Clone(st.Errors)
		out.Stages[i] = st
	}
	if s.PromptSpec != nil {
		p := s.PromptSpec.Clone()
		out.PromptSpec = &p
	}
	if s.ToolPlan != nil {
		p := s.ToolPlan.Clone()
		out.ToolPlan = &p
	}
	out.Artifacts = s.Artifacts.clone()
	if s.Summary != nil {
		sum := s.Summary.Clone()
		out.Summary = &sum
	}
	out.LastError = s.LastError.clone()
	return out
}

func (a Artifacts) clone() Artifacts {
	out := Artifacts{EvidenceBundles: model.CloneBundles(a.EvidenceBundles)}
	if a.ReasoningTrace != nil {
		t := *a.ReasoningTrace
		t.Steps = model.CloneSteps(t.Steps)
		if t.PreliminaryConfidence != nil {
			v := *t.PreliminaryConfidence
			t.PreliminaryConfidence = &v
		}
		if t.ConfidenceBreakdown != nil {
			cb := *t.ConfidenceBreakdown
			cb.Adjustments = slices.Clone(cb.Adjustments)
			t.ConfidenceBreakdown = &cb
		}
		out.ReasoningTrace = &t
	}
	if a.Verdict != nil {
		v := *a.Verdict
		v.Metadata.LLMReview = a.Verdict.Metadata.LLMReview.Clone()
		out.Verdict = &v
	}
	if a.PoRBundle != nil {
		p := *a.PoRBundle
		out.PoRBundle = &p
	}
	return out
}

// rawArtifacts are the prompt outputs forwarded verbatim to later stages.
type rawArtifacts struct {
	promptSpec []byte
	toolPlan   []byte
}
