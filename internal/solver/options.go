package solver

import (
	"context"
	"time"

	"github.com/auriol/strikeplan/internal/models"
)

// Tuning holds the search hyperparameters. Zero values are replaced by the
// defaults, so callers only set what they want to change.
type Tuning struct {
	PopulationSize int
	Generations    int
	MutationRate   float64
	EliteSize      int

	// Convergence: once ConvergenceMinGen generations have run, the search
	// stops when the best objective over the last ConvergenceWindow
	// generations moved by less than ConvergenceEpsilon relative to the
	// best value found.
	ConvergenceMinGen  int
	ConvergenceWindow  int
	ConvergenceEpsilon float64
}

// DefaultTuning returns the production hyperparameters.
func DefaultTuning() Tuning {
	return Tuning{
		PopulationSize:     100,
		Generations:        200,
		MutationRate:       0.1,
		EliteSize:          10,
		ConvergenceMinGen:  150,
		ConvergenceWindow:  30,
		ConvergenceEpsilon: 0.001,
	}
}

// Options configures one optimization run.
type Options struct {
	Objective     models.Objective
	SolutionCount int
	TimeLimit     time.Duration
	// Seed fixes the random source; zero seeds from the clock.
	Seed   int64
	Tuning Tuning
}

// Normalized fills unset fields with defaults.
func (o Options) Normalized() Options {
	if o.Objective == "" {
		o.Objective = models.MinPrice
	}
	if o.SolutionCount <= 0 {
		o.SolutionCount = 1
	}
	def := DefaultTuning()
	if o.Tuning.PopulationSize <= 0 {
		o.Tuning.PopulationSize = def.PopulationSize
	}
	if o.Tuning.Generations <= 0 {
		o.Tuning.Generations = def.Generations
	}
	if o.Tuning.MutationRate <= 0 {
		o.Tuning.MutationRate = def.MutationRate
	}
	if o.Tuning.EliteSize <= 0 {
		o.Tuning.EliteSize = def.EliteSize
	}
	if o.Tuning.EliteSize > o.Tuning.PopulationSize {
		o.Tuning.EliteSize = o.Tuning.PopulationSize
	}
	if o.Tuning.ConvergenceMinGen <= 0 {
		o.Tuning.ConvergenceMinGen = def.ConvergenceMinGen
	}
	if o.Tuning.ConvergenceWindow <= 0 {
		o.Tuning.ConvergenceWindow = def.ConvergenceWindow
	}
	if o.Tuning.ConvergenceEpsilon <= 0 {
		o.Tuning.ConvergenceEpsilon = def.ConvergenceEpsilon
	}
	return o
}

// Solution is one feasible replacement assignment with its metrics.
type Solution struct {
	Assignment models.Assignment
	Price      float64
	Loss       int
	Usage      int
}

// Value returns the solution's scalar under the given objective.
func (s Solution) Value(obj models.Objective) float64 {
	return ObjectiveValue(obj, s.Price, s.Loss, s.Usage)
}

// ObjectiveValue projects the three metrics onto the chosen objective.
func ObjectiveValue(obj models.Objective, price float64, loss, usage int) float64 {
	switch obj {
	case models.MinAircraftLoss:
		return float64(loss)
	case models.MinAircraftUsage:
		return float64(usage)
	default:
		return price
	}
}

// Baseline reports the unmodified plan: its metrics and which caps it
// already violates.
type Baseline struct {
	Price    float64
	Loss     int
	Usage    int
	Exceeded []string
}

// Result is the outcome of one optimization run. Solutions are sorted best
// first under the run's objective; an empty slice means no valid assignment
// was found.
type Result struct {
	Solutions []Solution
	Baseline  Baseline
}

// Feasible reports whether the run produced at least one valid solution.
func (r Result) Feasible() bool {
	return len(r.Solutions) > 0
}

// Optimizer searches for replacement assignments that keep the plan within
// its caps while minimizing the objective. Implementations stop early when
// ctx is cancelled or the time limit passes, returning the best found so far.
type Optimizer interface {
	Optimize(ctx context.Context, plan *models.Plan, caps models.Constraints, opts Options) (Result, error)
}
