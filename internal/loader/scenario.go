package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/auriol/strikeplan/internal/expand"
	"github.com/auriol/strikeplan/internal/models"
)

// StrategyJSON is the file form of one strategy. Resource maps pair each
// class with a [count, unit price] list.
type StrategyJSON struct {
	Replaceable     bool             `json:"replaceable"`
	Aircraft        map[string][]int `json:"aircraft,omitempty"`
	Ammunition      map[string][]int `json:"ammunition,omitempty"`
	TimeRange       []int            `json:"time_range,omitempty"`
	PenetrationRate float64          `json:"penetration_rate,omitempty"`
	Enemies         *EnemiesJSON     `json:"enemies,omitempty"`
	ArmyInit        string           `json:"army_init,omitempty"`
}

// EnemiesJSON declares the defenses met on a strategy's route.
type EnemiesJSON struct {
	Ground []GroundThreatJSON `json:"ground,omitempty"`
	Air    []AirThreatJSON    `json:"air,omitempty"`
}

type GroundThreatJSON struct {
	Type  string `json:"ground_type"`
	Count int    `json:"count"`
}

type AirThreatJSON struct {
	Type  string `json:"aircraft_type"`
	Count int    `json:"count"`
}

// InventoryJSON is one holding inside an army declaration.
type InventoryJSON struct {
	Count int `json:"count"`
}

// ForceJSON is one army's holdings by resource class.
type ForceJSON struct {
	Aircraft   map[string]InventoryJSON `json:"aircraft,omitempty"`
	Ammunition map[string]InventoryJSON `json:"ammunition,omitempty"`
}

// ConstraintsJSON caps resource pools by name.
type ConstraintsJSON struct {
	Aircraft   map[string]int `json:"aircraft,omitempty"`
	Ammunition map[string]int `json:"ammunition,omitempty"`
}

// Scenario is a complete optimization problem as stored on disk. Scenarios
// either declare armies, in which case strategies are templates expanded
// across the roster, or declare explicit constraints over the strategy
// resource names.
type Scenario struct {
	Strategies    map[string]StrategyJSON `json:"strategies"`
	Actions       map[string][]string     `json:"actions"`
	Replacements  map[string][]string     `json:"replacement_options,omitempty"`
	Armies        map[string]ForceJSON    `json:"armies,omitempty"`
	Constraints   *ConstraintsJSON        `json:"constraints,omitempty"`
	Stage         []string                `json:"stage,omitempty"`
	SolutionCount int                     `json:"solution_count,omitempty"`
	TimeLimit     float64                 `json:"time_limit,omitempty"`
	OptType       *int                    `json:"opt_type,omitempty"`
	Solver        string                  `json:"solver,omitempty"`
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes a scenario from JSON.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	return &s, nil
}

// Objective maps the scenario's opt_type code to an objective, defaulting
// to minimum price when absent.
func (s *Scenario) Objective() (models.Objective, error) {
	if s.OptType == nil {
		return models.MinPrice, nil
	}
	return models.ObjectiveFromCode(*s.OptType)
}

// Deadline converts the scenario's time limit in seconds to a duration,
// zero when unset.
func (s *Scenario) Deadline() time.Duration {
	if s.TimeLimit <= 0 {
		return 0
	}
	return time.Duration(s.TimeLimit * float64(time.Second))
}

// Build assembles the plan and constraints the scenario describes and binds
// the loss model to every strategy. Scenarios with armies are expanded into
// per-force variants; otherwise strategies and constraint caps are taken
// verbatim, resource names serving as untagged keys.
func (s *Scenario) Build(lm models.LossModel) (*models.Plan, models.Constraints, error) {
	order, err := s.actionOrder()
	if err != nil {
		return nil, models.Constraints{}, err
	}

	var (
		plan *models.Plan
		caps models.Constraints
	)
	if len(s.Armies) > 0 {
		plan, caps, err = s.expanded(order)
	} else {
		plan, caps, err = s.direct(order)
	}
	if err != nil {
		return nil, models.Constraints{}, err
	}
	if err := plan.Validate(); err != nil {
		return nil, models.Constraints{}, err
	}
	plan.Bind(lm)
	return plan, caps, nil
}

// actionOrder returns action ids in execution order: the stage list when
// declared, otherwise sorted ids. A declared stage must name every action
// exactly once.
func (s *Scenario) actionOrder() ([]string, error) {
	if len(s.Stage) == 0 {
		ids := make([]string, 0, len(s.Actions))
		for id := range s.Actions {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return ids, nil
	}
	seen := make(map[string]bool, len(s.Stage))
	for _, id := range s.Stage {
		if _, ok := s.Actions[id]; !ok {
			return nil, models.Inputf("stage", "stage references unknown action %q", id)
		}
		if seen[id] {
			return nil, models.Inputf("stage", "stage lists action %q twice", id)
		}
		seen[id] = true
	}
	if len(seen) != len(s.Actions) {
		return nil, models.Inputf("stage", "stage names %d of %d actions", len(seen), len(s.Actions))
	}
	return s.Stage, nil
}

func (s *Scenario) expanded(order []string) (*models.Plan, models.Constraints, error) {
	in := expand.Input{
		Templates:    make(map[string]expand.Template, len(s.Strategies)),
		Replacements: s.Replacements,
		Forces:       make(map[models.ForceID]expand.Force, len(s.Armies)),
	}
	for id, raw := range s.Strategies {
		tmpl, err := template(id, raw)
		if err != nil {
			return nil, models.Constraints{}, err
		}
		in.Templates[id] = tmpl
	}
	for _, id := range order {
		in.Actions = append(in.Actions, expand.ActionRef{ID: id, StrategyIDs: s.Actions[id]})
	}
	for id, raw := range s.Armies {
		in.Forces[models.ForceID(id)] = expand.Force{
			Aircraft:   inventory(raw.Aircraft),
			Ammunition: inventory(raw.Ammunition),
		}
	}
	return expand.Roster(in)
}

func (s *Scenario) direct(order []string) (*models.Plan, models.Constraints, error) {
	plan := &models.Plan{
		Strategies:   make(map[string]*models.Strategy, len(s.Strategies)),
		Replacements: make(map[string][]*models.Strategy, len(s.Replacements)),
	}
	for id, raw := range s.Strategies {
		st, err := strategy(id, raw)
		if err != nil {
			return nil, models.Constraints{}, err
		}
		plan.Strategies[id] = st
	}
	for _, aid := range order {
		action := &models.Action{ID: aid}
		for _, sid := range s.Actions[aid] {
			st, ok := plan.Strategies[sid]
			if !ok {
				return nil, models.Constraints{}, models.Inputf("actions",
					"action %q references unknown strategy %q", aid, sid)
			}
			action.Strategies = append(action.Strategies, st)
		}
		plan.Actions = append(plan.Actions, action)
	}
	for id, candidateIDs := range s.Replacements {
		if _, ok := plan.Strategies[id]; !ok {
			return nil, models.Constraints{}, models.Inputf("replacement_options",
				"options declared for unknown strategy %q", id)
		}
		var candidates []*models.Strategy
		for _, cid := range candidateIDs {
			cand, ok := plan.Strategies[cid]
			if !ok {
				return nil, models.Constraints{}, models.Inputf("replacement_options",
					"strategy %q lists unknown candidate %q", id, cid)
			}
			candidates = append(candidates, cand)
		}
		if len(candidates) > 0 {
			plan.Replacements[id] = candidates
		}
	}

	caps := models.Constraints{}
	if s.Constraints != nil {
		caps.Aircraft = resourceCaps(s.Constraints.Aircraft)
		caps.Ammunition = resourceCaps(s.Constraints.Ammunition)
	}
	return plan, caps, nil
}

func strategy(id string, raw StrategyJSON) (*models.Strategy, error) {
	aircraft, err := keyRequirements(id, raw.Aircraft)
	if err != nil {
		return nil, err
	}
	ammunition, err := keyRequirements(id, raw.Ammunition)
	if err != nil {
		return nil, err
	}
	window, err := timeWindow(id, raw.TimeRange)
	if err != nil {
		return nil, err
	}
	return &models.Strategy{
		ID:              id,
		Replaceable:     raw.Replaceable,
		Aircraft:        aircraft,
		Ammunition:      ammunition,
		InitialForce:    models.ForceID(raw.ArmyInit),
		Window:          window,
		PenetrationRate: raw.PenetrationRate,
		Encounter:       encounter(raw.Enemies),
	}, nil
}

func template(id string, raw StrategyJSON) (expand.Template, error) {
	aircraft, err := classRequirements(id, raw.Aircraft)
	if err != nil {
		return expand.Template{}, err
	}
	ammunition, err := classRequirements(id, raw.Ammunition)
	if err != nil {
		return expand.Template{}, err
	}
	window, err := timeWindow(id, raw.TimeRange)
	if err != nil {
		return expand.Template{}, err
	}
	return expand.Template{
		ID:              id,
		Replaceable:     raw.Replaceable,
		Aircraft:        aircraft,
		Ammunition:      ammunition,
		InitialForce:    models.ForceID(raw.ArmyInit),
		Window:          window,
		PenetrationRate: raw.PenetrationRate,
		Encounter:       encounter(raw.Enemies),
	}, nil
}

func keyRequirements(sid string, raw map[string][]int) (map[models.ResourceKey]models.Requirement, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[models.ResourceKey]models.Requirement, len(raw))
	for class, pair := range raw {
		req, err := pairRequirement(sid, class, pair)
		if err != nil {
			return nil, err
		}
		out[models.Key(class)] = req
	}
	return out, nil
}

func classRequirements(sid string, raw map[string][]int) (map[string]models.Requirement, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]models.Requirement, len(raw))
	for class, pair := range raw {
		req, err := pairRequirement(sid, class, pair)
		if err != nil {
			return nil, err
		}
		out[class] = req
	}
	return out, nil
}

func pairRequirement(sid, class string, pair []int) (models.Requirement, error) {
	if len(pair) != 2 {
		return models.Requirement{}, models.Inputf("strategies",
			"strategy %q: resource %q wants [count, price], got %d values", sid, class, len(pair))
	}
	return models.Requirement{Count: pair[0], UnitPrice: pair[1]}, nil
}

func timeWindow(sid string, r []int) (*models.TimeWindow, error) {
	switch len(r) {
	case 0:
		return nil, nil
	case 2:
		return &models.TimeWindow{Start: r[0], End: r[1]}, nil
	default:
		return nil, models.Inputf("strategies",
			"strategy %q: time_range wants [start, end], got %d values", sid, len(r))
	}
}

func encounter(raw *EnemiesJSON) *models.Encounter {
	if raw == nil {
		return nil
	}
	enc := &models.Encounter{}
	for _, g := range raw.Ground {
		enc.Ground = append(enc.Ground, models.GroundThreat{Class: g.Type, Count: g.Count})
	}
	for _, a := range raw.Air {
		enc.Air = append(enc.Air, models.AirThreat{Class: a.Type, Count: a.Count})
	}
	return enc
}

func inventory(raw map[string]InventoryJSON) map[string]int {
	out := make(map[string]int, len(raw))
	for class, inv := range raw {
		out[class] = inv.Count
	}
	return out
}

func resourceCaps(raw map[string]int) map[models.ResourceKey]int {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[models.ResourceKey]int, len(raw))
	for name, limit := range raw {
		out[models.Key(name)] = limit
	}
	return out
}
