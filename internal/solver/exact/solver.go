package exact

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/auriol/strikeplan/internal/models"
	"github.com/auriol/strikeplan/internal/solver"
)

// leafCheckInterval is how many enumerated combinations pass between
// cancellation checks.
const leafCheckInterval = 256

// Solver enumerates every replacement combination depth first and keeps the
// best distinct assignments. It is exact and fully deterministic but only
// viable for small replacement spaces; the genetic solver covers the rest.
type Solver struct {
	log *zap.Logger
}

// New builds an exact solver. A nil logger disables logging.
func New(log *zap.Logger) *Solver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Solver{log: log}
}

// Optimize walks the full combination space. Candidates are tried after the
// original strategy at every position, so on equal objective values keeping
// the plan unchanged wins. Cancellation or the time limit stops the walk and
// returns what was found.
func (s *Solver) Optimize(ctx context.Context, plan *models.Plan, caps models.Constraints, opts solver.Options) (solver.Result, error) {
	opts = opts.Normalized()
	if err := plan.Validate(); err != nil {
		return solver.Result{}, err
	}
	baseline := solver.BaselineOf(plan, caps)

	ids := plan.ReplaceableIDs()
	if len(ids) == 0 {
		return solver.Result{
			Baseline: baseline,
			Solutions: []solver.Solution{{
				Assignment: models.Assignment{},
				Price:      baseline.Price,
				Loss:       baseline.Loss,
				Usage:      baseline.Usage,
			}},
		}, nil
	}

	options := make([][]*models.Strategy, len(ids))
	space := 1.0
	for i, id := range ids {
		options[i] = plan.Replacements[id]
		space *= float64(len(options[i]) + 1)
	}
	s.log.Debug("exact search started",
		zap.Int("genes", len(ids)),
		zap.Float64("combinations", space))

	w := &search{
		ctx:        ctx,
		plan:       plan,
		caps:       caps,
		objective:  opts.Objective,
		ids:        ids,
		options:    options,
		buffer:     solver.NewSolutionBuffer(opts.SolutionCount),
		assignment: make(models.Assignment),
		ammo:       make(map[models.ResourceKey]int),
		counts:     make(map[string]int),
	}
	if opts.TimeLimit > 0 {
		w.deadline = time.Now().Add(opts.TimeLimit)
	}

	start := time.Now()
	replaceable := make(map[string]bool, len(ids))
	for _, id := range ids {
		replaceable[id] = true
	}
	fixedOverCap := false
	for _, action := range plan.Actions {
		for _, st := range action.Strategies {
			if replaceable[st.ID] {
				w.counts[st.ID]++
				continue
			}
			if !w.push(st, 1) {
				fixedOverCap = true
			}
		}
	}
	if !fixedOverCap {
		w.dfs(0)
	}

	solutions := w.buffer.Solutions()
	s.log.Info("exact search finished",
		zap.Int("combinations", w.visited),
		zap.Int("solutions", len(solutions)),
		zap.Bool("stopped_early", w.stopped),
		zap.Duration("elapsed", time.Since(start)))
	return solver.Result{Solutions: solutions, Baseline: baseline}, nil
}

type search struct {
	ctx       context.Context
	plan      *models.Plan
	caps      models.Constraints
	objective models.Objective
	ids       []string
	options   [][]*models.Strategy
	buffer    *solver.SolutionBuffer

	assignment models.Assignment
	// ammo tracks cumulative ammunition for the fixed part plus the choices
	// made so far. Contributions only grow with depth, so exceeding a cap
	// rules out the whole subtree.
	ammo map[models.ResourceKey]int
	// counts is how many actions each replaceable strategy occurs in.
	counts map[string]int

	deadline time.Time
	visited  int
	stopped  bool
}

func (w *search) dfs(depth int) {
	if w.stopped {
		return
	}
	if depth == len(w.ids) {
		w.leaf()
		return
	}

	id := w.ids[depth]
	times := w.counts[id]
	original := w.plan.Strategies[id]

	for choice := 0; choice <= len(w.options[depth]); choice++ {
		chosen := original
		if choice > 0 {
			chosen = w.options[depth][choice-1]
			w.assignment[id] = chosen
		}
		if w.push(chosen, times) {
			w.dfs(depth + 1)
		}
		w.pop(chosen, times)
		if choice > 0 {
			delete(w.assignment, id)
		}
		if w.stopped {
			return
		}
	}
}

func (w *search) leaf() {
	w.visited++
	if w.visited%leafCheckInterval == 0 {
		if w.ctx.Err() != nil || (!w.deadline.IsZero() && time.Now().After(w.deadline)) {
			w.stopped = true
			return
		}
	}
	ev := solver.Evaluate(w.plan, w.assignment, w.caps)
	if !ev.Valid {
		return
	}
	value := solver.ObjectiveValue(w.objective, ev.Price, ev.Loss, ev.Usage)
	w.buffer.Offer(w.assignment.Clone(), ev, value)
}

// push adds a strategy's ammunition, scaled by how many actions it occurs
// in, and reports whether every capped pool is still within its cap.
func (w *search) push(st *models.Strategy, times int) bool {
	ok := true
	for key, req := range st.Ammunition {
		if req.Count <= 0 {
			continue
		}
		w.ammo[key] += req.Count * times
		if limit, capped := w.caps.Ammunition[key]; capped && w.ammo[key] > limit {
			ok = false
		}
	}
	return ok
}

func (w *search) pop(st *models.Strategy, times int) {
	for key, req := range st.Ammunition {
		if req.Count > 0 {
			w.ammo[key] -= req.Count * times
		}
	}
}
