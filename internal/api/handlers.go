package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/auriol/strikeplan/internal/converter"
	"github.com/auriol/strikeplan/internal/models"
	"github.com/auriol/strikeplan/internal/solver"
)

// Envelope is the uniform response body.
type Envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

// SolutionReport is one optimized assignment as returned to clients. The
// assignment maps replaceable strategy ids to their chosen replacements.
type SolutionReport struct {
	Assignment    map[string]string `json:"assignment"`
	Price         float64           `json:"price"`
	AircraftLoss  int               `json:"aircraft_loss"`
	AircraftUsage int               `json:"aircraft_usage"`
}

// BaselineReport describes the plan as submitted, before any replacement,
// including the caps it already violates.
type BaselineReport struct {
	Price         float64  `json:"price"`
	AircraftLoss  int      `json:"aircraft_loss"`
	AircraftUsage int      `json:"aircraft_usage"`
	Exceeded      []string `json:"exceeded,omitempty"`
}

// OptimizeData is the payload of a completed optimization run. Solutions are
// ordered best first under the requested objective.
type OptimizeData struct {
	Solutions []SolutionReport `json:"solutions"`
	Baseline  BaselineReport   `json:"baseline"`
}

// handleOptimize runs one optimization: decode, convert, build, solve. A run
// that finds no valid assignment is not an error; it answers 201 so clients
// can tell "searched and found nothing" from "could not search".
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req converter.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.reply(w, http.StatusBadRequest, "invalid input: malformed request body", nil)
		return
	}

	scenario, err := converter.ToScenario(req)
	if err != nil {
		s.replyError(w, err)
		return
	}
	objective, err := scenario.Objective()
	if err != nil {
		s.replyError(w, err)
		return
	}
	plan, caps, err := scenario.Build(s.model)
	if err != nil {
		s.replyError(w, err)
		return
	}

	name := scenario.Solver
	if name == "" {
		name = s.defaultSolver
	}
	opt, err := s.optimizer(name)
	if err != nil {
		s.replyError(w, err)
		return
	}

	res, err := opt.Optimize(r.Context(), plan, caps, solver.Options{
		Objective:     objective,
		SolutionCount: scenario.SolutionCount,
		TimeLimit:     scenario.Deadline(),
		Tuning:        s.tuning,
	})
	if err != nil {
		s.replyError(w, err)
		return
	}

	data := Report(res)
	if !res.Feasible() {
		s.reply(w, http.StatusCreated, "no better solution found", data)
		return
	}
	s.reply(w, http.StatusOK, "success", data)
}

// handleReload refreshes the combat parameter tables from their source.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	s.cache.Reload(r.Context())
	exchange, defense := s.cache.Sizes()
	s.log.Info("combat parameters reloaded",
		zap.Int("exchange_ratios", exchange),
		zap.Int("defense_rates", defense))
	s.reply(w, http.StatusOK, "success", map[string]int{
		"exchange_ratios": exchange,
		"defense_rates":   defense,
	})
}

// Report renders a solver result as the wire payload. The CLI shares it for
// its --json output.
func Report(res solver.Result) OptimizeData {
	data := OptimizeData{
		Solutions: make([]SolutionReport, 0, len(res.Solutions)),
		Baseline: BaselineReport{
			Price:         res.Baseline.Price,
			AircraftLoss:  res.Baseline.Loss,
			AircraftUsage: res.Baseline.Usage,
			Exceeded:      res.Baseline.Exceeded,
		},
	}
	for _, sol := range res.Solutions {
		data.Solutions = append(data.Solutions, SolutionReport{
			Assignment:    converter.AssignmentIDs(sol.Assignment),
			Price:         sol.Price,
			AircraftLoss:  sol.Loss,
			AircraftUsage: sol.Usage,
		})
	}
	return data
}

func (s *Server) reply(w http.ResponseWriter, code int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(Envelope{Code: code, Msg: msg, Data: data}); err != nil {
		s.log.Error("failed to encode response", zap.Error(err))
	}
}

// replyError maps malformed input to 400 and everything else to 500.
func (s *Server) replyError(w http.ResponseWriter, err error) {
	var inputErr *models.InputError
	if errors.As(err, &inputErr) {
		s.reply(w, http.StatusBadRequest, "invalid input: "+inputErr.Error(), nil)
		return
	}
	s.log.Error("optimization failed", zap.Error(err))
	s.reply(w, http.StatusInternalServerError, "internal error", nil)
}
