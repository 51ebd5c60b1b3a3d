// Package converter translates integer-keyed wire requests into canonical
// string-keyed scenarios and back.
package converter

import (
	"strconv"

	"github.com/auriol/strikeplan/internal/loader"
	"github.com/auriol/strikeplan/internal/models"
)

// Request is the optimize endpoint's wire form. Strategies, actions, and
// armies carry integer identifiers that are stringified for the scenario;
// enemy classes stay as the names the parameter tables are keyed by.
type Request struct {
	Strategies    []StrategyDTO    `json:"strategies"`
	Actions       []ActionDTO      `json:"actions"`
	Replacements  []ReplacementDTO `json:"replacement_options,omitempty"`
	Armies        []ForceDTO       `json:"armies,omitempty"`
	Constraints   *ConstraintsDTO  `json:"constraints,omitempty"`
	Stage         []int            `json:"stage,omitempty"`
	SolutionCount int              `json:"solution_count,omitempty"`
	TimeLimit     float64          `json:"time_limit,omitempty"`
	OptType       *int             `json:"opt_type,omitempty"`
	Solver        string           `json:"solver,omitempty"`
}

type StrategyDTO struct {
	StrategyID      int             `json:"strategy_id"`
	Replaceable     bool            `json:"replaceable"`
	Aircraft        []AircraftDTO   `json:"aircraft,omitempty"`
	Ammunition      []AmmunitionDTO `json:"ammunition,omitempty"`
	ArmyInit        *int            `json:"army_init,omitempty"`
	TimeRange       *TimeRangeDTO   `json:"time_range,omitempty"`
	PenetrationRate float64         `json:"penetration_rate,omitempty"`
	Enemies         *EnemiesDTO     `json:"enemies,omitempty"`
}

type AircraftDTO struct {
	AircraftType int `json:"aircraft_type"`
	Count        int `json:"count"`
	Price        int `json:"price"`
}

type AmmunitionDTO struct {
	AmmunitionType int `json:"ammunition_type"`
	Count          int `json:"count"`
	Price          int `json:"price"`
}

type TimeRangeDTO struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type EnemiesDTO struct {
	Ground []GroundThreatDTO `json:"ground,omitempty"`
	Air    []AirThreatDTO    `json:"air,omitempty"`
}

type GroundThreatDTO struct {
	GroundType string `json:"ground_type"`
	Count      int    `json:"count"`
}

type AirThreatDTO struct {
	AircraftType string `json:"aircraft_type"`
	Count        int    `json:"count"`
}

type ActionDTO struct {
	ActionID    int   `json:"action_id"`
	StrategyIDs []int `json:"strategy_ids"`
}

type ReplacementDTO struct {
	StrategyID   int   `json:"strategy_id"`
	CandidateIDs []int `json:"candidate_ids"`
}

type ForceDTO struct {
	ArmyID     int            `json:"army_id"`
	Aircraft   []InventoryDTO `json:"aircraft,omitempty"`
	Ammunition []InventoryDTO `json:"ammunition,omitempty"`
}

type InventoryDTO struct {
	Type  int `json:"type"`
	Count int `json:"count"`
}

// ConstraintsDTO caps resource pools by integer type.
type ConstraintsDTO struct {
	Aircraft   []InventoryDTO `json:"aircraft,omitempty"`
	Ammunition []InventoryDTO `json:"ammunition,omitempty"`
}

// ToScenario converts a wire request into a scenario. Duplicate identifiers
// in any of the list sections are rejected.
func ToScenario(req Request) (*loader.Scenario, error) {
	s := &loader.Scenario{
		Strategies:    make(map[string]loader.StrategyJSON, len(req.Strategies)),
		Actions:       make(map[string][]string, len(req.Actions)),
		SolutionCount: req.SolutionCount,
		TimeLimit:     req.TimeLimit,
		OptType:       req.OptType,
		Solver:        req.Solver,
	}
	for _, dto := range req.Strategies {
		id := strconv.Itoa(dto.StrategyID)
		if _, dup := s.Strategies[id]; dup {
			return nil, models.Inputf("strategies", "duplicate strategy id %d", dto.StrategyID)
		}
		s.Strategies[id] = strategyJSON(dto)
	}
	for _, dto := range req.Actions {
		id := strconv.Itoa(dto.ActionID)
		if _, dup := s.Actions[id]; dup {
			return nil, models.Inputf("actions", "duplicate action id %d", dto.ActionID)
		}
		s.Actions[id] = stringIDs(dto.StrategyIDs)
	}
	if len(req.Replacements) > 0 {
		s.Replacements = make(map[string][]string, len(req.Replacements))
		for _, dto := range req.Replacements {
			id := strconv.Itoa(dto.StrategyID)
			if _, dup := s.Replacements[id]; dup {
				return nil, models.Inputf("replacement_options", "duplicate options for strategy %d", dto.StrategyID)
			}
			s.Replacements[id] = stringIDs(dto.CandidateIDs)
		}
	}
	if len(req.Armies) > 0 {
		s.Armies = make(map[string]loader.ForceJSON, len(req.Armies))
		for _, dto := range req.Armies {
			id := strconv.Itoa(dto.ArmyID)
			if _, dup := s.Armies[id]; dup {
				return nil, models.Inputf("armies", "duplicate army id %d", dto.ArmyID)
			}
			s.Armies[id] = loader.ForceJSON{
				Aircraft:   inventoryJSON(dto.Aircraft),
				Ammunition: inventoryJSON(dto.Ammunition),
			}
		}
	}
	if req.Constraints != nil {
		s.Constraints = &loader.ConstraintsJSON{
			Aircraft:   capsByType(req.Constraints.Aircraft),
			Ammunition: capsByType(req.Constraints.Ammunition),
		}
	}
	for _, aid := range req.Stage {
		s.Stage = append(s.Stage, strconv.Itoa(aid))
	}
	return s, nil
}

// AssignmentIDs renders a replacement assignment as a wire map of strategy
// id to chosen replacement id.
func AssignmentIDs(a models.Assignment) map[string]string {
	out := make(map[string]string, len(a))
	for id, repl := range a {
		out[id] = repl.ID
	}
	return out
}

func strategyJSON(dto StrategyDTO) loader.StrategyJSON {
	out := loader.StrategyJSON{
		Replaceable:     dto.Replaceable,
		PenetrationRate: dto.PenetrationRate,
	}
	if len(dto.Aircraft) > 0 {
		out.Aircraft = make(map[string][]int, len(dto.Aircraft))
		for _, a := range dto.Aircraft {
			out.Aircraft[strconv.Itoa(a.AircraftType)] = []int{a.Count, a.Price}
		}
	}
	if len(dto.Ammunition) > 0 {
		out.Ammunition = make(map[string][]int, len(dto.Ammunition))
		for _, m := range dto.Ammunition {
			out.Ammunition[strconv.Itoa(m.AmmunitionType)] = []int{m.Count, m.Price}
		}
	}
	if dto.ArmyInit != nil {
		out.ArmyInit = strconv.Itoa(*dto.ArmyInit)
	}
	if dto.TimeRange != nil {
		out.TimeRange = []int{dto.TimeRange.Start, dto.TimeRange.End}
	}
	if dto.Enemies != nil {
		enemies := &loader.EnemiesJSON{}
		for _, g := range dto.Enemies.Ground {
			enemies.Ground = append(enemies.Ground, loader.GroundThreatJSON{Type: g.GroundType, Count: g.Count})
		}
		for _, a := range dto.Enemies.Air {
			enemies.Air = append(enemies.Air, loader.AirThreatJSON{Type: a.AircraftType, Count: a.Count})
		}
		out.Enemies = enemies
	}
	return out
}

func stringIDs(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.Itoa(id)
	}
	return out
}

func inventoryJSON(items []InventoryDTO) map[string]loader.InventoryJSON {
	if len(items) == 0 {
		return nil
	}
	out := make(map[string]loader.InventoryJSON, len(items))
	for _, item := range items {
		out[strconv.Itoa(item.Type)] = loader.InventoryJSON{Count: item.Count}
	}
	return out
}

func capsByType(items []InventoryDTO) map[string]int {
	if len(items) == 0 {
		return nil
	}
	out := make(map[string]int, len(items))
	for _, item := range items {
		out[strconv.Itoa(item.Type)] = item.Count
	}
	return out
}
