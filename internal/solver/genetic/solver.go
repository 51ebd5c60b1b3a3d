package genetic

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/auriol/strikeplan/internal/models"
	"github.com/auriol/strikeplan/internal/solver"
)

// Solver searches replacement assignments with a genetic algorithm. It
// scales to large replacement spaces at the cost of exactness; use the exact
// solver when the space is small enough to enumerate.
type Solver struct {
	log *zap.Logger
}

// New builds a genetic solver. A nil logger disables logging.
func New(log *zap.Logger) *Solver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Solver{log: log}
}

type scored struct {
	genes   genome
	eval    solver.Evaluation
	value   float64
	fitness float64
}

// Optimize runs the search. It stops at the generation limit, on
// convergence, when the time limit passes, or when ctx is cancelled,
// returning the best distinct solutions found so far.
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
	counts := make([]int, len(ids))
	for i, id := range ids {
		options[i] = plan.Replacements[id]
		counts[i] = len(options[i])
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	s.log.Debug("genetic search started",
		zap.Int64("seed", seed),
		zap.Int("genes", len(ids)),
		zap.String("objective", string(opts.Objective)))

	tuning := opts.Tuning
	buffer := solver.NewSolutionBuffer(opts.SolutionCount)
	population := seedPopulation(rng, tuning.PopulationSize, counts)
	history := make([]float64, 0, tuning.Generations)
	start := time.Now()
	generations := 0

	for gen := 0; gen < tuning.Generations; gen++ {
		generations = gen + 1
		pop := s.evaluate(population, ids, options, plan, caps, opts.Objective, buffer)
		sort.SliceStable(pop, func(i, j int) bool {
			return pop[i].fitness > pop[j].fitness
		})

		best, ok := buffer.BestValue()
		if !ok {
			best = math.Inf(1)
		}
		history = append(history, best)
		if gen%20 == 0 {
			s.log.Debug("generation evaluated",
				zap.Int("generation", gen),
				zap.Float64("best", best),
				zap.Int("solutions", buffer.Len()))
		}

		if ctx.Err() != nil {
			s.log.Info("genetic search cancelled", zap.Int("generations", generations))
			break
		}
		if opts.TimeLimit > 0 && time.Since(start) >= opts.TimeLimit {
			s.log.Info("genetic search hit the time limit", zap.Int("generations", generations))
			break
		}
		if converged(history, tuning) {
			s.log.Info("genetic search converged", zap.Int("generations", generations))
			break
		}
		if gen == tuning.Generations-1 {
			break
		}
		population = s.breed(rng, pop, tuning, counts)
	}

	solutions := buffer.Solutions()
	s.log.Info("genetic search finished",
		zap.Int("generations", generations),
		zap.Int("solutions", len(solutions)),
		zap.Duration("elapsed", time.Since(start)))
	return solver.Result{Solutions: solutions, Baseline: baseline}, nil
}

func (s *Solver) evaluate(population []genome, ids []string, options [][]*models.Strategy, plan *models.Plan, caps models.Constraints, objective models.Objective, buffer *solver.SolutionBuffer) []scored {
	out := make([]scored, len(population))
	for i, genes := range population {
		assignment := decode(genes, ids, options)
		ev := solver.Evaluate(plan, assignment, caps)
		sc := scored{genes: genes, eval: ev}
		if ev.Valid {
			sc.value = solver.ObjectiveValue(objective, ev.Price, ev.Loss, ev.Usage)
			sc.fitness = -sc.value
			buffer.Offer(assignment, ev, sc.value)
		} else {
			sc.value = math.Inf(1)
			sc.fitness = math.Inf(-1)
		}
		out[i] = sc
	}
	return out
}

func (s *Solver) breed(rng *rand.Rand, pop []scored, tuning solver.Tuning, counts []int) []genome {
	next := make([]genome, 0, tuning.PopulationSize)
	for i := 0; i < tuning.EliteSize && i < len(pop); i++ {
		next = append(next, pop[i].genes.clone())
	}
	fitness := make([]float64, len(pop))
	for i, sc := range pop {
		fitness[i] = sc.fitness
	}
	for len(next) < tuning.PopulationSize {
		a := pop[rouletteSelect(rng, fitness)].genes
		b := pop[rouletteSelect(rng, fitness)].genes
		child := crossover(rng, a, b, counts)
		mutate(rng, child, tuning.MutationRate, counts)
		next = append(next, child)
	}
	return next
}

// decode expands a genome into its replacement assignment.
func decode(genes genome, ids []string, options [][]*models.Strategy) models.Assignment {
	assignment := make(models.Assignment)
	for i, gene := range genes {
		if gene > 0 {
			assignment[ids[i]] = options[i][gene-1]
		}
	}
	return assignment
}

// converged reports whether the best objective has been flat, in relative
// terms, for the whole convergence window.
func converged(history []float64, tuning solver.Tuning) bool {
	n := len(history)
	if n < tuning.ConvergenceMinGen || n < tuning.ConvergenceWindow {
		return false
	}
	best := history[n-1]
	if math.IsInf(best, 1) {
		return false
	}
	for _, v := range history[n-tuning.ConvergenceWindow:] {
		if math.IsInf(v, 1) {
			return false
		}
		if math.Abs(v-best) >= tuning.ConvergenceEpsilon*math.Abs(best) {
			return false
		}
	}
	return true
}
