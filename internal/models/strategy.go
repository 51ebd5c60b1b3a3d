package models

import (
	"math"
	"sort"
	"strings"
	"sync"
)

// DefaultPenetrationRate applies when a strategy declares no explicit
// penetration rate: everything comes back unless an encounter says otherwise.
const DefaultPenetrationRate = 1.0

// LossModel computes expected aircraft attrition for one strategy sortie.
// The combat simulator provides the production implementation.
type LossModel interface {
	// Losses returns per-pool losses plus the total. Pools with zero loss
	// are absent from the map. fallbackRate is the flat penetration rate
	// used when enc is nil or empty.
	Losses(aircraft map[ResourceKey]Requirement, enc *Encounter, fallbackRate float64) (map[ResourceKey]int, int)
}

// Strategy is one flight mission template: the aircraft and ammunition it
// commits, when it flies, and what it expects to meet. Derived price and
// loss values are computed once and cached; a Strategy is immutable after
// it enters a Plan.
type Strategy struct {
	ID          string
	Replaceable bool

	Aircraft   map[ResourceKey]Requirement
	Ammunition map[ResourceKey]Requirement

	// InitialForce is the force the template was first assigned to,
	// recorded by expansion so variants can be told apart.
	InitialForce ForceID

	Window          *TimeWindow
	PenetrationRate float64
	Encounter       *Encounter

	model LossModel

	mu        sync.Mutex
	derived   bool
	lossByKey map[ResourceKey]int
	totalLoss int
	price     float64
}

// Bind attaches the loss model used to derive attrition. Plans bind every
// strategy at build time; rebinding after derivation has no effect.
func (s *Strategy) Bind(m LossModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.derived {
		s.model = m
	}
}

// Price returns the cost charged to the strategy: all committed ammunition
// plus the aircraft expected to be lost, at their unit prices. Surviving
// aircraft return to the pool and are not charged.
func (s *Strategy) Price() float64 {
	s.derive()
	return s.price
}

// Losses returns the expected per-pool aircraft losses for this strategy.
// The returned map is shared; callers must not modify it.
func (s *Strategy) Losses() (map[ResourceKey]int, int) {
	s.derive()
	return s.lossByKey, s.totalLoss
}

// TotalLoss returns the expected total aircraft loss.
func (s *Strategy) TotalLoss() int {
	s.derive()
	return s.totalLoss
}

// TotalAircraft returns the number of aircraft the strategy commits.
func (s *Strategy) TotalAircraft() int {
	total := 0
	for _, req := range s.Aircraft {
		total += req.Count
	}
	return total
}

func (s *Strategy) derive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.derived {
		return
	}
	rate := s.PenetrationRate
	if rate <= 0 || rate > 1 {
		rate = DefaultPenetrationRate
	}
	if s.model != nil {
		s.lossByKey, s.totalLoss = s.model.Losses(s.Aircraft, s.Encounter, rate)
	} else {
		s.lossByKey, s.totalLoss = FlatLosses(s.Aircraft, rate)
	}
	if s.lossByKey == nil {
		s.lossByKey = map[ResourceKey]int{}
	}
	for _, req := range s.Ammunition {
		s.price += float64(req.Count * req.UnitPrice)
	}
	for key, lost := range s.lossByKey {
		s.price += float64(lost * s.Aircraft[key].UnitPrice)
	}
	s.derived = true
}

// FlatLosses applies a flat penetration rate: every pool attrites at 1-rate,
// rounded up. It is the loss path for strategies without a declared encounter.
func FlatLosses(aircraft map[ResourceKey]Requirement, rate float64) (map[ResourceKey]int, int) {
	losses := make(map[ResourceKey]int)
	total := 0
	for key, req := range aircraft {
		if req.Count <= 0 {
			continue
		}
		loss := int(math.Ceil(float64(req.Count) * (1 - rate)))
		if loss > 0 {
			losses[key] = loss
			total += loss
		}
	}
	return losses, total
}

// Action is one ordered stage of the plan holding the strategies that fly in it.
type Action struct {
	ID         string
	Strategies []*Strategy
}

// EarliestStart returns the smallest window start among the action's
// strategies. Strategies without a window count as tick 0.
func (a *Action) EarliestStart() int {
	earliest := 0
	found := false
	for _, s := range a.Strategies {
		start := 0
		if s.Window != nil {
			start = s.Window.Start
		}
		if !found || start < earliest {
			earliest = start
			found = true
		}
	}
	return earliest
}

// Constraints caps the resources a plan may consume. Aircraft caps bound
// concurrent usage per tick; ammunition caps bound cumulative usage across
// the whole plan. Pools absent from a map are unconstrained.
type Constraints struct {
	Aircraft   map[ResourceKey]int
	Ammunition map[ResourceKey]int
}

// Empty reports whether no caps are declared at all.
func (c Constraints) Empty() bool {
	return len(c.Aircraft) == 0 && len(c.Ammunition) == 0
}

// Assignment maps a replaceable strategy ID to its chosen replacement.
// IDs absent from the map keep their original strategy.
type Assignment map[string]*Strategy

// Fingerprint renders the assignment as a canonical identity string so two
// assignments with the same substitutions compare equal.
func (a Assignment) Fingerprint() string {
	if len(a) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(a))
	for id, repl := range a {
		pairs = append(pairs, id+"="+repl.ID)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ";")
}

// Clone returns a shallow copy sharing the strategy pointers.
func (a Assignment) Clone() Assignment {
	out := make(Assignment, len(a))
	for id, repl := range a {
		out[id] = repl
	}
	return out
}

// Plan is the full optimization input: ordered actions, the strategy
// universe, and the replacement candidates per replaceable strategy.
type Plan struct {
	Actions      []*Action
	Strategies   map[string]*Strategy
	Replacements map[string][]*Strategy
}

// SortedActions returns the actions ordered by earliest strategy window
// start. The sort is stable so declared order breaks ties.
func (p *Plan) SortedActions() []*Action {
	out := make([]*Action, len(p.Actions))
	copy(out, p.Actions)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EarliestStart() < out[j].EarliestStart()
	})
	return out
}

// ReplaceableIDs returns the IDs the optimizer may substitute, in the order
// they first occur walking actions then strategies. Only strategies marked
// replaceable with at least one candidate qualify.
func (p *Plan) ReplaceableIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, action := range p.Actions {
		for _, s := range action.Strategies {
			if !s.Replaceable || seen[s.ID] {
				continue
			}
			if len(p.Replacements[s.ID]) == 0 {
				continue
			}
			seen[s.ID] = true
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// Resolve returns the strategy that actually flies for s under the
// assignment.
func (p *Plan) Resolve(s *Strategy, assignment Assignment) *Strategy {
	if repl, ok := assignment[s.ID]; ok && repl != nil {
		return repl
	}
	return s
}

// Bind attaches the loss model to every strategy in the plan, including
// replacement candidates.
func (p *Plan) Bind(m LossModel) {
	for _, s := range p.Strategies {
		s.Bind(m)
	}
	for _, candidates := range p.Replacements {
		for _, s := range candidates {
			s.Bind(m)
		}
	}
	for _, action := range p.Actions {
		for _, s := range action.Strategies {
			s.Bind(m)
		}
	}
}

// Validate checks referential integrity and basic field sanity. It returns
// an InputError describing the first problem found.
func (p *Plan) Validate() error {
	if len(p.Strategies) == 0 {
		return Inputf("strategies", "no strategies defined")
	}
	if len(p.Actions) == 0 {
		return Inputf("actions", "no actions defined")
	}
	for id, s := range p.Strategies {
		if s == nil {
			return Inputf("strategies", "strategy %q is nil", id)
		}
		if err := validateStrategy(s); err != nil {
			return err
		}
	}
	for _, action := range p.Actions {
		if len(action.Strategies) == 0 {
			return Inputf("actions", "action %q has no strategies", action.ID)
		}
		for _, s := range action.Strategies {
			if _, ok := p.Strategies[s.ID]; !ok {
				return Inputf("actions", "action %q references unknown strategy %q", action.ID, s.ID)
			}
		}
	}
	for id, candidates := range p.Replacements {
		owner, ok := p.Strategies[id]
		if !ok {
			return Inputf("replacement_options", "options declared for unknown strategy %q", id)
		}
		if !owner.Replaceable {
			return Inputf("replacement_options", "strategy %q is not replaceable", id)
		}
		for _, cand := range candidates {
			if cand == nil {
				return Inputf("replacement_options", "strategy %q has a nil candidate", id)
			}
			if err := validateStrategy(cand); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateStrategy(s *Strategy) error {
	if s.ID == "" {
		return Inputf("strategies", "strategy with empty ID")
	}
	for key, req := range s.Aircraft {
		if req.Count < 0 {
			return Inputf("strategies", "strategy %q: negative aircraft count for %s", s.ID, key)
		}
	}
	for key, req := range s.Ammunition {
		if req.Count < 0 {
			return Inputf("strategies", "strategy %q: negative ammunition count for %s", s.ID, key)
		}
	}
	if s.Window != nil && s.Window.End <= s.Window.Start {
		return Inputf("strategies", "strategy %q: time window must end after it starts", s.ID)
	}
	if s.PenetrationRate < 0 || s.PenetrationRate > 1 {
		return Inputf("strategies", "strategy %q: penetration rate %v outside [0, 1]", s.ID, s.PenetrationRate)
	}
	return nil
}
