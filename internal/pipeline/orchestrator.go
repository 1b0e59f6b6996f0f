// Package pipeline drives the five-stage resolution protocol against the
// oracle gateway and exposes its progress as a state machine.
package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/resolution-cli/internal/evidence"
	"github.com/sells-group/resolution-cli/internal/model"
	"github.com/sells-group/resolution-cli/internal/summary"
	"github.com/sells-group/resolution-cli/pkg/oracle"
)

// Recorder persists run progress. Recording failures are logged and never
// fail a run.
type Recorder interface {
	CreateRun(ctx context.Context, run *model.Run) error
	UpdateRunPhase(ctx context.Context, runID string, phase model.Phase) error
	SetRunMarket(ctx context.Context, runID, marketID string) error
	RecordStage(ctx context.Context, runID string, rec model.StageRecord) error
	SaveSummary(ctx context.Context, runID string, s model.RunSummary) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder persists every transition through r.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// Orchestrator executes Prompt, Collect, Audit, Judge and Bundle strictly
// in order. One run is in flight at a time; overlapping calls are rejected.
type Orchestrator struct {
	session  *Session
	recorder Recorder

	mu    sync.Mutex
	state State
	raw   rawArtifacts
	gen   uint64
	busy  bool
	subs  map[int]chan State
	subID int
}

// New creates an orchestrator bound to a session.
func New(session *Session, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		session: session,
		state:   initialState(0),
		subs:    make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns a snapshot of the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Summary returns the run summary, or nil if the run has not resolved.
func (o *Orchestrator) Summary() *model.RunSummary {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Summary == nil {
		return nil
	}
	s := o.state.Summary.Clone()
	return &s
}

// Subscribe returns a channel that receives a snapshot after every state
// transition. Delivery never blocks the orchestrator: a slow reader only
// sees the latest snapshot. The returned func unsubscribes and closes the
// channel.
func (o *Orchestrator) Subscribe() (<-chan State, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := make(chan State, 1)
	id := o.subID
	o.subID++
	o.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			delete(o.subs, id)
			close(ch)
		})
	}
}

// notifyLocked publishes the current state. Callers hold o.mu; every send
// happens under it, so draining then sending cannot block.
func (o *Orchestrator) notifyLocked() {
	if len(o.subs) == 0 {
		return
	}
	snap := o.state.clone()
	for _, ch := range o.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// Reset discards all run state from any phase. Responses still in flight
// for the abandoned run are dropped when they arrive.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resetLocked()
	zap.L().Debug("pipeline: reset", zap.Uint64("generation", o.gen))
}

func (o *Orchestrator) resetLocked() {
	o.gen++
	o.busy = false
	o.state = initialState(o.gen)
	o.raw = rawArtifacts{}
	o.notifyLocked()
}

// finish releases the busy flag unless the run was superseded.
func (o *Orchestrator) finish(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen == gen {
		o.busy = false
	}
}

// RunPrompt runs the prompt stage. On success the PromptSpec and ToolPlan
// are stored and the phase becomes prompted. Any earlier run is replaced.
func (o *Orchestrator) RunPrompt(ctx context.Context, req PromptRequest) (State, error) {
	if strings.TrimSpace(req.UserInput) == "" {
		return State{}, ErrEmptyInput
	}
	code, err := o.session.AccessCode()
	if err != nil {
		return State{}, err
	}
	req = o.promptDefaults(req)

	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return State{}, ErrRunInProgress
	}
	o.gen++
	gen := o.gen
	o.busy = true
	o.state = initialState(gen)
	o.state.RunID = req.RunID
	if o.state.RunID == "" {
		o.state.RunID = uuid.NewString()
	}
	o.state.Phase = model.PhasePrompting
	o.raw = rawArtifacts{}
	runID := o.state.RunID
	o.mu.Unlock()
	defer o.finish(gen)

	log := zap.L().With(zap.String("run_id", runID))
	log.Info("pipeline: starting prompt", zap.Bool("strict_mode", req.StrictMode))

	now := time.Now().UTC()
	o.record(ctx, func(r Recorder) error {
		return r.CreateRun(ctx, &model.Run{
			ID:        runID,
			UserInput: req.UserInput,
			Phase:     model.PhasePrompting,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})

	var resp model.PromptResponse
	dur, serr := o.step(ctx, gen, runID, code, model.StagePrompt, oracle.PathPrompt, promptPayload{
		UserInput:  req.UserInput,
		StrictMode: req.StrictMode,
		Provider:   req.Provider,
		Model:      req.Model,
	}, &resp)
	if serr == nil {
		serr = requirePresent(model.StagePrompt, resp.PromptSpec, "prompt_spec")
	}

	var spec model.PromptSpec
	var plan *model.ToolPlan
	if serr == nil {
		if err := json.Unmarshal(resp.PromptSpec, &spec); err != nil {
			serr = malformed(model.StagePrompt, err, "decode prompt_spec")
		}
	}
	if serr == nil && model.Present(resp.ToolPlan) {
		plan = &model.ToolPlan{}
		if err := json.Unmarshal(resp.ToolPlan, plan); err != nil {
			serr = malformed(model.StagePrompt, err, "decode tool_plan")
		}
	}
	if serr != nil {
		return o.fail(ctx, gen, runID, serr, dur, model.PhaseInput)
	}

	snap, err := o.complete(ctx, gen, runID, model.StagePrompt, dur, model.PhasePrompted, func(st *State, raw *rawArtifacts) {
		st.PromptSpec = &spec
		st.ToolPlan = plan
		st.Artifacts = Artifacts{}
		raw.promptSpec = resp.PromptSpec
		raw.toolPlan = resp.ToolPlan
	})
	if err != nil {
		return State{}, err
	}
	if spec.Market.MarketID != "" {
		o.record(ctx, func(r Recorder) error { return r.SetRunMarket(ctx, runID, spec.Market.MarketID) })
	}
	log.Info("pipeline: prompt complete",
		zap.String("market_id", spec.Market.MarketID),
		zap.Int64("duration_ms", dur),
	)
	return snap, nil
}

// RunResolve runs collect, audit, judge and bundle in order, halting at the
// first failed stage. Artifacts of completed stages stay available on
// failure. On success the RunSummary is built and the phase becomes
// resolved.
func (o *Orchestrator) RunResolve(ctx context.Context, req ResolveRequest) (*model.RunSummary, error) {
	code, err := o.session.AccessCode()
	if err != nil {
		return nil, err
	}
	req = o.resolveDefaults(req)

	gen, runID, raw, err := o.beginResolve(ctx)
	if err != nil {
		return nil, err
	}
	defer o.finish(gen)

	log := zap.L().With(zap.String("run_id", runID))
	log.Info("pipeline: starting resolve", zap.Strings("collectors", req.Collectors), zap.String("mode", req.Mode))
	runStart := time.Now()

	// Collect.
	var collect model.CollectResponse
	dur, serr := o.step(ctx, gen, runID, code, model.StageCollect, oracle.PathCollect, collectPayload{
		PromptSpec: raw.promptSpec,
		ToolPlan:   raw.toolPlan,
		Collectors: req.Collectors,
		Provider:   req.Provider,
		Model:      req.Model,
		Mode:       req.Mode,
	}, &collect)
	var rawBundles []model.RawEvidenceBundle
	var bundlesJSON json.RawMessage
	if serr == nil {
		bundlesJSON, serr = collectedBundles(collect)
	}
	if serr == nil {
		if err := json.Unmarshal(bundlesJSON, &rawBundles); err != nil {
			serr = malformed(model.StageCollect, err, "decode evidence_bundles")
		}
	}
	if serr != nil {
		_, err := o.fail(ctx, gen, runID, serr, dur, model.PhasePrompted)
		return nil, err
	}
	bundles := evidence.CanonicalizeBundles(rawBundles)
	if bundles == nil {
		bundles = []model.EvidenceBundle{}
	}
	if _, err := o.complete(ctx, gen, runID, model.StageCollect, dur, model.PhaseResolving, func(st *State, _ *rawArtifacts) {
		st.Artifacts.EvidenceBundles = bundles
	}); err != nil {
		return nil, err
	}
	log.Info("pipeline: collect complete", zap.Int("bundles", len(bundles)), zap.Int64("duration_ms", dur))

	// Audit.
	var audit model.AuditResponse
	dur, serr = o.step(ctx, gen, runID, code, model.StageAudit, oracle.PathAudit, auditPayload{
		PromptSpec:      raw.promptSpec,
		EvidenceBundles: bundlesJSON,
		Provider:        req.Provider,
		Model:           req.Model,
	}, &audit)
	var trace model.ReasoningTrace
	if serr == nil {
		serr = requirePresent(model.StageAudit, audit.ReasoningTrace, "reasoning_trace")
	}
	if serr == nil {
		if err := json.Unmarshal(audit.ReasoningTrace, &trace); err != nil {
			serr = malformed(model.StageAudit, err, "decode reasoning_trace")
		}
	}
	if serr != nil {
		_, err := o.fail(ctx, gen, runID, serr, dur, model.PhasePrompted)
		return nil, err
	}
	if _, err := o.complete(ctx, gen, runID, model.StageAudit, dur, model.PhaseResolving, func(st *State, _ *rawArtifacts) {
		st.Artifacts.ReasoningTrace = &trace
	}); err != nil {
		return nil, err
	}
	log.Info("pipeline: audit complete", zap.Int("steps", len(trace.Steps)), zap.Int64("duration_ms", dur))

	// Judge.
	var judge model.JudgeResponse
	dur, serr = o.step(ctx, gen, runID, code, model.StageJudge, oracle.PathJudge, judgePayload{
		PromptSpec:      raw.promptSpec,
		EvidenceBundles: bundlesJSON,
		ReasoningTrace:  audit.ReasoningTrace,
		Provider:        req.Provider,
		Model:           req.Model,
	}, &judge)
	var verdict model.Verdict
	var verdictJSON json.RawMessage
	if serr == nil {
		verdict, verdictJSON, serr = judgedVerdict(judge)
	}
	if serr != nil {
		_, err := o.fail(ctx, gen, runID, serr, dur, model.PhasePrompted)
		return nil, err
	}
	if _, err := o.complete(ctx, gen, runID, model.StageJudge, dur, model.PhaseResolving, func(st *State, _ *rawArtifacts) {
		st.Artifacts.Verdict = &verdict
	}); err != nil {
		return nil, err
	}
	log.Info("pipeline: judge complete",
		zap.String("outcome", string(verdict.Outcome)),
		zap.Float64("confidence", verdict.Confidence),
		zap.Int64("duration_ms", dur),
	)

	// Bundle.
	var bundleResp model.BundleResponse
	dur, serr = o.step(ctx, gen, runID, code, model.StageBundle, oracle.PathBundle, bundlePayload{
		PromptSpec:      raw.promptSpec,
		ToolPlan:        raw.toolPlan,
		EvidenceBundles: bundlesJSON,
		ReasoningTrace:  audit.ReasoningTrace,
		Verdict:         verdictJSON,
	}, &bundleResp)
	var por model.PoRBundle
	if serr == nil {
		por, serr = bundledPoR(bundleResp)
	}
	if serr != nil {
		_, err := o.fail(ctx, gen, runID, serr, dur, model.PhasePrompted)
		return nil, err
	}

	sum := summary.Build(summary.StageArtifacts{
		RunID:           runID,
		MarketID:        raw.marketID,
		EvidenceBundles: rawBundles,
		ReasoningTrace:  &trace,
		Verdict:         &verdict,
		PoRBundle:       &por,
		Outcome:         judge.Outcome,
		Confidence:      judge.Confidence,
		PoRRoot:         bundleResp.PoRRoot,
		Mode:            req.Mode,
	})

	if _, err := o.complete(ctx, gen, runID, model.StageBundle, dur, model.PhaseResolved, func(st *State, _ *rawArtifacts) {
		st.Artifacts.PoRBundle = &por
		st.Summary = &sum
	}); err != nil {
		return nil, err
	}
	o.record(ctx, func(r Recorder) error { return r.SaveSummary(ctx, runID, sum) })

	log.Info("pipeline: resolve complete",
		zap.String("outcome", string(sum.Outcome)),
		zap.String("por_root", sum.PoRRoot),
		zap.Duration("elapsed", time.Since(runStart)),
	)
	out := sum.Clone()
	return &out, nil
}

// RunResolveSingle resolves with one /step/resolve call instead of four
// stage calls. The collect stage stands for the combined call; on success
// all four resolve stages complete together.
func (o *Orchestrator) RunResolveSingle(ctx context.Context, req ResolveRequest) (*model.RunSummary, error) {
	code, err := o.session.AccessCode()
	if err != nil {
		return nil, err
	}
	req = o.resolveDefaults(req)

	gen, runID, raw, err := o.beginResolve(ctx)
	if err != nil {
		return nil, err
	}
	defer o.finish(gen)

	log := zap.L().With(zap.String("run_id", runID))
	log.Info("pipeline: starting single-call resolve", zap.Strings("collectors", req.Collectors))

	var resp model.ResolveResponse
	dur, serr := o.step(ctx, gen, runID, code, model.StageCollect, oracle.PathResolve, resolvePayload{
		PromptSpec: raw.promptSpec,
		ToolPlan:   raw.toolPlan,
		Collectors: req.Collectors,
		Provider:   req.Provider,
		Model:      req.Model,
		Mode:       req.Mode,
	}, &resp)
	if serr != nil {
		_, err := o.fail(ctx, gen, runID, serr, dur, model.PhasePrompted)
		return nil, err
	}

	if resp.RunID == nil || *resp.RunID == "" {
		resp.RunID = &runID
	}
	if (resp.MarketID == nil || *resp.MarketID == "") && raw.marketID != "" {
		m := raw.marketID
		resp.MarketID = &m
	}
	if resp.ExecutionMode == nil && req.Mode != "" {
		m := req.Mode
		resp.ExecutionMode = &m
	}
	sum := summary.FromResolve(resp)
	sum.RunID = runID

	var arts Artifacts
	if a := resp.Artifacts; a != nil {
		arts.EvidenceBundles = evidence.CanonicalizeBundles(summary.BundlesFromArtifacts(*a))
		arts.ReasoningTrace = a.ReasoningTrace
		arts.Verdict = a.Verdict
		arts.PoRBundle = a.PoRBundle
	}

	now := time.Now().UTC()
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return nil, ErrSuperseded
	}
	for _, st := range model.Stages[model.StageCollect.Index():] {
		d := int64(0)
		if st == model.StageCollect {
			d = dur
		}
		o.state.setStage(st, model.StageStatusCompleted, d, nil)
	}
	o.state.Artifacts = arts.clone()
	o.state.Phase = model.PhaseResolved
	o.state.Summary = &sum
	o.notifyLocked()
	o.mu.Unlock()

	for _, st := range model.Stages[model.StageCollect.Index():] {
		rec := model.StageRecord{Stage: st, Status: model.StageStatusCompleted, UpdatedAt: now}
		if st == model.StageCollect {
			rec.DurationMS = dur
		}
		o.record(ctx, func(r Recorder) error { return r.RecordStage(ctx, runID, rec) })
	}
	o.record(ctx, func(r Recorder) error { return r.UpdateRunPhase(ctx, runID, model.PhaseResolved) })
	o.record(ctx, func(r Recorder) error { return r.SaveSummary(ctx, runID, sum) })

	log.Info("pipeline: resolve complete",
		zap.String("outcome", string(sum.Outcome)),
		zap.String("por_root", sum.PoRRoot),
		zap.Int64("duration_ms", dur),
	)
	out := sum.Clone()
	return &out, nil
}

// resolveInputs is what a resolve run reads from the completed prompt.
type resolveInputs struct {
	promptSpec json.RawMessage
	toolPlan   json.RawMessage
	marketID   string
}

// beginResolve checks the preconditions and moves the run into the
// resolving phase with every resolve stage pending.
func (o *Orchestrator) beginResolve(ctx context.Context) (uint64, string, resolveInputs, error) {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return 0, "", resolveInputs{}, ErrRunInProgress
	}
	if o.state.PromptSpec == nil || o.state.Stage(model.StagePrompt).Status != model.StageStatusCompleted {
		o.mu.Unlock()
		return 0, "", resolveInputs{}, ErrPromptRequired
	}
	o.busy = true
	gen := o.gen
	o.state.Phase = model.PhaseResolving
	o.state.resetFrom(model.StageCollect)
	o.state.Artifacts = Artifacts{}
	o.state.Summary = nil
	o.state.LastError = nil
	in := resolveInputs{
		promptSpec: o.raw.promptSpec,
		toolPlan:   o.raw.toolPlan,
		marketID:   o.state.PromptSpec.Market.MarketID,
	}
	runID := o.state.RunID
	o.notifyLocked()
	o.mu.Unlock()

	o.record(ctx, func(r Recorder) error { return r.UpdateRunPhase(ctx, runID, model.PhaseResolving) })
	return gen, runID, in, nil
}

// stepResponse is satisfied by every typed step response.
type stepResponse interface {
	Failed() bool
	ErrorMessages() []string
}

// step marks the stage running, calls the gateway and decodes the step
// response into out. It returns the elapsed milliseconds and a classified
// error; a superseded run yields ErrSuperseded wrapped in a StageError.
func (o *Orchestrator) step(ctx context.Context, gen uint64, runID, code string, stage model.Stage, path string, payload any, out stepResponse) (int64, *StageError) {
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return 0, &StageError{Stage: stage, Kind: KindTransport, Message: ErrSuperseded.Error(), Err: ErrSuperseded}
	}
	o.state.setStage(stage, model.StageStatusRunning, 0, nil)
	o.notifyLocked()
	o.mu.Unlock()

	o.record(ctx, func(r Recorder) error {
		return r.RecordStage(ctx, runID, model.StageRecord{Stage: stage, Status: model.StageStatusRunning, UpdatedAt: time.Now().UTC()})
	})

	start := time.Now()
	raw, err := o.session.Client().Step(ctx, code, path, payload)
	dur := time.Since(start).Milliseconds()
	if err != nil {
		return dur, classify(stage, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return dur, malformed(stage, err, "decode %s response", stage)
	}
	if out.Failed() {
		return dur, stepFailure(stage, out.ErrorMessages())
	}
	return dur, nil
}

// complete marks a stage completed and applies its artifacts, unless the
// run was superseded while the stage was in flight.
func (o *Orchestrator) complete(ctx context.Context, gen uint64, runID string, stage model.Stage, dur int64, phase model.Phase, apply func(*State, *rawArtifacts)) (State, error) {
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		zap.L().Info("pipeline: dropping superseded result", zap.String("run_id", runID), zap.String("stage", string(stage)))
		return State{}, ErrSuperseded
	}
	apply(&o.state, &o.raw)
	o.state.setStage(stage, model.StageStatusCompleted, dur, nil)
	o.state.Phase = phase
	snap := o.state.clone()
	o.notifyLocked()
	o.mu.Unlock()

	o.record(ctx, func(r Recorder) error {
		return r.RecordStage(ctx, runID, model.StageRecord{Stage: stage, Status: model.StageStatusCompleted, DurationMS: dur, UpdatedAt: time.Now().UTC()})
	})
	o.record(ctx, func(r Recorder) error { return r.UpdateRunPhase(ctx, runID, phase) })
	return snap, nil
}

// fail records a stage failure. An auth failure discards all run state and
// tears down the session; any other failure marks the stage error and
// reverts to the last good phase. Later stages stay pending.
func (o *Orchestrator) fail(ctx context.Context, gen uint64, runID string, serr *StageError, dur int64, phase model.Phase) (State, error) {
	log := zap.L().With(zap.String("run_id", runID), zap.String("stage", string(serr.Stage)))

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		log.Info("pipeline: dropping superseded failure", zap.Error(serr))
		return State{}, ErrSuperseded
	}
	if serr.Kind == KindAuth {
		o.resetLocked()
		o.mu.Unlock()
		o.session.Teardown()
		log.Warn("pipeline: access code rejected, session cleared")
		o.record(ctx, func(r Recorder) error {
			return r.RecordStage(ctx, runID, model.StageRecord{Stage: serr.Stage, Status: model.StageStatusError, DurationMS: dur, Errors: []string{serr.Message}, UpdatedAt: time.Now().UTC()})
		})
		o.record(ctx, func(r Recorder) error { return r.UpdateRunPhase(ctx, runID, model.PhaseInput) })
		return State{}, serr
	}

	errs := serr.Errors
	if len(errs) == 0 {
		errs = []string{serr.Message}
	}
	o.state.setStage(serr.Stage, model.StageStatusError, dur, errs)
	o.state.Phase = phase
	o.state.LastError = serr.clone()
	if serr.Stage == model.StagePrompt {
		o.state.PromptSpec = nil
		o.state.ToolPlan = nil
		o.raw = rawArtifacts{}
	}
	snap := o.state.clone()
	o.notifyLocked()
	o.mu.Unlock()

	log.Error("pipeline: stage failed",
		zap.String("kind", string(serr.Kind)),
		zap.Strings("errors", serr.Errors),
		zap.Int64("duration_ms", dur),
		zap.Error(serr),
	)
	o.record(ctx, func(r Recorder) error {
		return r.RecordStage(ctx, runID, model.StageRecord{Stage: serr.Stage, Status: model.StageStatusError, DurationMS: dur, Errors: errs, UpdatedAt: time.Now().UTC()})
	})
	o.record(ctx, func(r Recorder) error { return r.UpdateRunPhase(ctx, runID, phase) })
	return snap, serr
}

func (o *Orchestrator) record(ctx context.Context, fn func(Recorder) error) {
	if o.recorder == nil {
		return
	}
	if err := fn(o.recorder); err != nil {
		zap.L().Warn("pipeline: failed to record progress", zap.Error(err))
	}
}

func (o *Orchestrator) promptDefaults(req PromptRequest) PromptRequest {
	provider, mdl := o.session.Defaults()
	if req.Provider == "" {
		req.Provider = provider
	}
	if req.Model == "" {
		req.Model = mdl
	}
	return req
}

func (o *Orchestrator) resolveDefaults(req ResolveRequest) ResolveRequest {
	provider, mdl := o.session.Defaults()
	if req.Provider == "" {
		req.Provider = provider
	}
	if req.Model == "" {
		req.Model = mdl
	}
	return req
}

func requirePresent(stage model.Stage, raw json.RawMessage, field string) *StageError {
	if model.Present(raw) {
		return nil
	}
	return malformed(stage, nil, "%s response has no %s", stage, field)
}

// collectedBundles returns the evidence bundle list of a collect response,
// wrapping the legacy singular bundle into a one-element list.
func collectedBundles(resp model.CollectResponse) (json.RawMessage, *StageError) {
	if model.Present(resp.EvidenceBundles) {
		return resp.EvidenceBundles, nil
	}
	if model.Present(resp.EvidenceBundle) {
		wrapped := make([]byte, 0, len(resp.EvidenceBundle)+2)
		wrapped = append(wrapped, '[')
		wrapped = append(wrapped, resp.EvidenceBundle...)
		wrapped = append(wrapped, ']')
		return wrapped, nil
	}
	return nil, malformed(model.StageCollect, nil, "collect response has no evidence_bundles")
}

// judgedVerdict returns the verdict of a judge response. Gateways that
// report only a top-level outcome and confidence get a verdict built from
// them.
func judgedVerdict(resp model.JudgeResponse) (model.Verdict, json.RawMessage, *StageError) {
	var v model.Verdict
	if model.Present(resp.Verdict) {
		if err := json.Unmarshal(resp.Verdict, &v); err != nil {
			return v, nil, malformed(model.StageJudge, err, "decode verdict")
		}
		return v, resp.Verdict, nil
	}
	if resp.Outcome == nil {
		return v, nil, malformed(model.StageJudge, nil, "judge response has no verdict")
	}
	v.Outcome = model.ParseOutcome(*resp.Outcome)
	if resp.Confidence != nil {
		v.Confidence = *resp.Confidence
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v, nil, malformed(model.StageJudge, err, "encode verdict")
	}
	return v, raw, nil
}

// bundledPoR returns the proof-of-reasoning bundle, falling back to a
// top-level por_root.
func bundledPoR(resp model.BundleResponse) (model.PoRBundle, *StageError) {
	var p model.PoRBundle
	if model.Present(resp.PoRBundle) {
		if err := json.Unmarshal(resp.PoRBundle, &p); err != nil {
			return p, malformed(model.StageBundle, err, "decode por_bundle")
		}
		if p.PoRRoot == "" && resp.PoRRoot != nil {
			p.PoRRoot = *resp.PoRRoot
		}
		return p, nil
	}
	if resp.PoRRoot == nil || *resp.PoRRoot == "" {
		return p, malformed(model.StageBundle, nil, "bundle response has no por_bundle")
	}
	p.PoRRoot = *resp.PoRRoot
	return p, nil
}
