package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/resolution-cli/internal/ingest"
	"github.com/sells-group/resolution-cli/internal/match"
	"github.com/sells-group/resolution-cli/internal/model"
	"github.com/sells-group/resolution-cli/internal/pipeline"
	"github.com/sells-group/resolution-cli/internal/store"
)

// ResolveRequest is the body of POST /resolve.
type ResolveRequest struct {
	UserInput  string   `json:"user_input"`
	StrictMode *bool    `json:"strict_mode,omitempty"`
	Provider   string   `json:"llm_provider,omitempty"`
	Model      string   `json:"llm_model,omitempty"`
	Collectors []string `json:"collectors,omitempty"`
	Mode       string   `json:"execution_mode,omitempty"`
	SingleCall *bool    `json:"single_call,omitempty"`
}

// job merges the request over the server defaults.
func (r ResolveRequest) job(defaults pipeline.Job) pipeline.Job {
	j := defaults
	j.Prompt.UserInput = strings.TrimSpace(r.UserInput)
	if r.StrictMode != nil {
		j.Prompt.StrictMode = *r.StrictMode
	}
	if r.Provider != "" {
		j.Prompt.Provider = r.Provider
		j.Resolve.Provider = r.Provider
	}
	if r.Model != "" {
		j.Prompt.Model = r.Model
		j.Resolve.Model = r.Model
	}
	if len(r.Collectors) > 0 {
		j.Resolve.Collectors = r.Collectors
	}
	if r.Mode != "" {
		j.Resolve.Mode = r.Mode
	}
	if r.SingleCall != nil {
		j.SingleCall = *r.SingleCall
	}
	return j
}

// MatchResponse is the body returned by POST /runs/{id}/match.
type MatchResponse struct {
	RunID    string            `json:"run_id"`
	MarketID string            `json:"market_id"`
	Official model.Outcome     `json:"official_outcome"`
	Oracle   model.Outcome     `json:"oracle_outcome,omitempty"`
	Status   model.MatchStatus `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if s.factory == nil {
		writeError(w, http.StatusServiceUnavailable, "resolution is disabled")
		return
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	job := req.job(s.defaults)
	if job.Prompt.UserInput == "" {
		writeError(w, http.StatusBadRequest, "user_input is required")
		return
	}

	runID := uuid.NewString()
	job.Prompt.RunID = runID
	o := s.factory()
	if !s.begin(runID, o) {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	go func() {
		defer s.wg.Done()
		defer s.untrack(runID)

		sum, _, err := pipeline.Run(s.ctx, o, job)
		if err != nil {
			zap.L().Warn("api: background run failed", zap.String("run_id", runID), zap.Error(err))
			return
		}
		zap.L().Info("api: background run resolved",
			zap.String("run_id", runID),
			zap.String("outcome", string(sum.Outcome)),
		)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "run_id": runID})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	q := r.URL.Query()
	filter := store.RunFilter{
		Phase:    model.Phase(q.Get("phase")),
		MarketID: q.Get("market_id"),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		s.internalError(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	if run.Summary == nil {
		writeError(w, http.StatusNotFound, "run has no summary")
		return
	}
	writeJSON(w, http.StatusOK, run.Summary)
}

// handleRunState returns the live state of an in-flight run.
func (s *Server) handleRunState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	o, ok := s.lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "run is not in flight")
		return
	}
	writeJSON(w, http.StatusOK, o.State())
}

// handleMatch evaluates the run against the official record in the body.
// The market id defaults to the run's market.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var src model.SourceInfo
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	if src.MarketID == "" {
		src.MarketID = run.MarketID
	}
	src = ingest.NormalizeSource(src)

	resp := MatchResponse{
		RunID:    run.ID,
		MarketID: src.MarketID,
		Official: src.OfficialOutcome,
		Status:   match.Evaluate(src, run.Summary),
	}
	if run.Summary != nil {
		resp.Oracle = run.Summary.Outcome
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*model.Run, bool) {
	if !s.requireStore(w) {
		return nil, false
	}
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "run not found")
			return nil, false
		}
		s.internalError(w, "get run", err)
		return nil, false
	}
	return run, true
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run store is disabled")
		return false
	}
	return true
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	zap.L().Error("api: "+op, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

var errNegative = errors.New("negative")

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errNegative
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
