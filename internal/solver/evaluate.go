package solver

import (
	"fmt"
	"sort"

	"github.com/auriol/strikeplan/internal/models"
)

// Evaluation is the outcome of walking a plan under one assignment. When
// Valid is false at least one cap was broken; the metrics still describe the
// walked plan.
type Evaluation struct {
	Price float64
	Loss  int
	Usage int
	Valid bool
}

// Evaluate walks the plan with the given replacement assignment and checks
// it against the caps. Aircraft caps bound per-tick usage against the pool's
// remaining availability, where losses from every window ending at or before
// a tick are gone for good. Ammunition caps bound the plan-wide total.
func Evaluate(plan *models.Plan, assignment models.Assignment, caps models.Constraints) Evaluation {
	ev, _ := run(plan, assignment, caps, false)
	return ev
}

// Audit is Evaluate plus a deterministic description of every broken cap.
func Audit(plan *models.Plan, assignment models.Assignment, caps models.Constraints) (Evaluation, []string) {
	return run(plan, assignment, caps, true)
}

// BaselineOf evaluates the unmodified plan for reporting.
func BaselineOf(plan *models.Plan, caps models.Constraints) Baseline {
	ev, exceeded := Audit(plan, nil, caps)
	return Baseline{Price: ev.Price, Loss: ev.Loss, Usage: ev.Usage, Exceeded: exceeded}
}

func run(plan *models.Plan, assignment models.Assignment, caps models.Constraints, collect bool) (Evaluation, []string) {
	w := &planWalk{
		caps:     caps,
		ammoUsed: make(map[models.ResourceKey]int),
		usageAt:  make(map[int]map[models.ResourceKey]int),
		lossAt:   make(map[int]map[models.ResourceKey]int),
	}
	for _, action := range plan.SortedActions() {
		for _, s := range action.Strategies {
			w.commit(plan.Resolve(s, assignment))
		}
	}
	return w.check(collect)
}

// planWalk accumulates metrics and the per-tick usage and loss timelines for
// one pass over a plan.
type planWalk struct {
	caps  models.Constraints
	price float64
	loss  int
	usage int

	ammoUsed map[models.ResourceKey]int
	usageAt  map[int]map[models.ResourceKey]int
	// lossAt is keyed by window end: a window's losses deplete the pool
	// from the tick it closes onward.
	lossAt map[int]map[models.ResourceKey]int
}

func (w *planWalk) commit(s *models.Strategy) {
	w.price += s.Price()
	lossByKey, totalLoss := s.Losses()
	w.loss += totalLoss

	for key, req := range s.Aircraft {
		if req.Count <= 0 {
			continue
		}
		w.usage += req.Count
		if s.Window == nil {
			continue
		}
		for t := s.Window.Start; t < s.Window.End; t++ {
			at := w.usageAt[t]
			if at == nil {
				at = make(map[models.ResourceKey]int)
				w.usageAt[t] = at
			}
			at[key] += req.Count
		}
	}
	for key, req := range s.Ammunition {
		if req.Count > 0 {
			w.ammoUsed[key] += req.Count
		}
	}
	if s.Window != nil && totalLoss > 0 {
		at := w.lossAt[s.Window.End]
		if at == nil {
			at = make(map[models.ResourceKey]int)
			w.lossAt[s.Window.End] = at
		}
		for key, lost := range lossByKey {
			at[key] += lost
		}
	}
}

func (w *planWalk) check(collect bool) (Evaluation, []string) {
	ev := Evaluation{Price: w.price, Loss: w.loss, Usage: w.usage, Valid: true}
	var exceeded []string

	ticks := make([]int, 0, len(w.usageAt)+len(w.lossAt))
	seen := make(map[int]bool)
	for t := range w.usageAt {
		if !seen[t] {
			seen[t] = true
			ticks = append(ticks, t)
		}
	}
	for t := range w.lossAt {
		if !seen[t] {
			seen[t] = true
			ticks = append(ticks, t)
		}
	}
	sort.Ints(ticks)

	cumLoss := make(map[models.ResourceKey]int)
	for _, t := range ticks {
		if lost := w.lossAt[t]; lost != nil {
			for _, key := range models.SortKeys(lost) {
				cumLoss[key] += lost[key]
				limit, capped := w.caps.Aircraft[key]
				if capped && cumLoss[key] > limit {
					ev.Valid = false
					if collect {
						exceeded = append(exceeded, fmt.Sprintf(
							"aircraft %s: cumulative losses %d exceed cap %d by tick %d",
							key, cumLoss[key], limit, t))
					}
				}
			}
		}
		if used := w.usageAt[t]; used != nil {
			for _, key := range models.SortKeys(used) {
				limit, capped := w.caps.Aircraft[key]
				if !capped {
					continue
				}
				if available := limit - cumLoss[key]; used[key] > available {
					ev.Valid = false
					if collect {
						exceeded = append(exceeded, fmt.Sprintf(
							"aircraft %s: usage %d exceeds availability %d at tick %d",
							key, used[key], available, t))
					}
				}
			}
		}
		if !ev.Valid && !collect {
			return ev, nil
		}
	}

	for _, key := range models.SortKeys(w.ammoUsed) {
		limit, capped := w.caps.Ammunition[key]
		if capped && w.ammoUsed[key] > limit {
			ev.Valid = false
			if collect {
				exceeded = append(exceeded, fmt.Sprintf(
					"ammunition %s: total usage %d exceeds cap %d",
					key, w.ammoUsed[key], limit))
			}
		}
	}
	return ev, exceeded
}
