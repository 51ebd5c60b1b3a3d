package loader

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/auriol/strikeplan/internal/models"
)

const directJSON = `{
  "strategies": {
    "s1": {
      "replaceable": true,
      "aircraft": {"J16": [4, 100]},
      "ammunition": {"PL15": [8, 5]},
      "time_range": [0, 2],
      "penetration_rate": 1.0,
      "enemies": {
        "ground": [{"ground_type": "SAM", "count": 3}],
        "air": [{"aircraft_type": "F16", "count": 2}]
      }
    },
    "alt": {"aircraft": {"J16": [2, 100]}, "penetration_rate": 1.0},
    "s2": {"aircraft": {"J10-C": [1, 50]}, "penetration_rate": 1.0}
  },
  "actions": {"a1": ["s1"], "a2": ["s2"]},
  "replacement_options": {"s1": ["alt"]},
  "constraints": {"aircraft": {"J16": 4, "J10-C": 2}, "ammunition": {"PL15": 10}},
  "stage": ["a2", "a1"],
  "solution_count": 3,
  "time_limit": 1.5,
  "opt_type": 1
}`

func TestParseScenario(t *testing.T) {
	s, err := Parse([]byte(directJSON))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(s.Strategies) != 3 {
		t.Errorf("Expected 3 strategies, got %d", len(s.Strategies))
	}
	s1 := s.Strategies["s1"]
	if !s1.Replaceable {
		t.Errorf("Expected s1 replaceable")
	}
	if pair := s1.Aircraft["J16"]; len(pair) != 2 || pair[0] != 4 || pair[1] != 100 {
		t.Errorf("Expected J16 pair [4 100], got %v", pair)
	}
	if s1.Enemies == nil || len(s1.Enemies.Ground) != 1 || s1.Enemies.Ground[0].Type != "SAM" {
		t.Errorf("Unexpected enemies: %+v", s1.Enemies)
	}
	if s.OptType == nil || *s.OptType != 1 {
		t.Errorf("Expected opt_type 1, got %v", s.OptType)
	}
	if s.SolutionCount != 3 || s.TimeLimit != 1.5 {
		t.Errorf("Unexpected run settings: count=%d limit=%v", s.SolutionCount, s.TimeLimit)
	}
}

func TestLoadReadsScenarioFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.json")
	if err := os.WriteFile(path, []byte(directJSON), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(s.Actions) != 2 {
		t.Errorf("Expected 2 actions, got %d", len(s.Actions))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Errorf("Expected an error for a missing file")
	}
}

func TestBuildDirectPlan(t *testing.T) {
	s, err := Parse([]byte(directJSON))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	plan, caps, err := s.Build(nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(plan.Actions) != 2 || plan.Actions[0].ID != "a2" || plan.Actions[1].ID != "a1" {
		t.Fatalf("Expected stage order [a2 a1], got %v", plan.Actions)
	}

	s1 := plan.Strategies["s1"]
	if s1.Window == nil || s1.Window.Start != 0 || s1.Window.End != 2 {
		t.Errorf("Expected window [0,2), got %v", s1.Window)
	}
	if req := s1.Aircraft[models.Key("J16")]; req.Count != 4 || req.UnitPrice != 100 {
		t.Errorf("Expected J16 requirement {4 100}, got %+v", req)
	}
	if s1.Encounter == nil || len(s1.Encounter.Air) != 1 || s1.Encounter.Air[0].Class != "F16" {
		t.Errorf("Unexpected encounter: %+v", s1.Encounter)
	}

	options := plan.Replacements["s1"]
	if len(options) != 1 || options[0] != plan.Strategies["alt"] {
		t.Errorf("Expected the alt strategy as the only candidate, got %v", options)
	}

	// Resource names are keys as written, dashes included.
	if caps.Aircraft[models.Key("J10-C")] != 2 {
		t.Errorf("Expected cap 2 for J10-C, got %d", caps.Aircraft[models.Key("J10-C")])
	}
	if caps.Ammunition[models.Key("PL15")] != 10 {
		t.Errorf("Expected ammunition cap 10, got %d", caps.Ammunition[models.Key("PL15")])
	}
}

func TestBuildSortsActionsWithoutStage(t *testing.T) {
	s, err := Parse([]byte(directJSON))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	s.Stage = nil

	plan, _, err := s.Build(nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if plan.Actions[0].ID != "a1" || plan.Actions[1].ID != "a2" {
		t.Errorf("Expected sorted order [a1 a2], got [%s %s]", plan.Actions[0].ID, plan.Actions[1].ID)
	}
}

func TestBuildStageValidation(t *testing.T) {
	cases := []struct {
		name  string
		stage []string
		want  string
	}{
		{"unknown action", []string{"a1", "ghost"}, "unknown action"},
		{"duplicate entry", []string{"a1", "a1"}, "twice"},
		{"missing action", []string{"a1"}, "names 1 of 2"},
	}

	for _, tc := range cases {
		s, err := Parse([]byte(directJSON))
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		s.Stage = tc.stage

		_, _, err = s.Build(nil)
		if err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: expected error containing %q, got %q", tc.name, tc.want, err.Error())
		}
	}
}

const armyJSON = `{
  "strategies": {
    "t1": {"replaceable": true, "aircraft": {"A": [2, 10]}, "army_init": "f1", "penetration_rate": 1.0},
    "c1": {"aircraft": {"A": [1, 10]}, "penetration_rate": 1.0}
  },
  "actions": {"a1": ["t1"]},
  "replacement_options": {"t1": ["c1"]},
  "armies": {
    "f1": {"aircraft": {"A": {"count": 10}}, "ammunition": {"M": {"count": 50}}},
    "f2": {"aircraft": {"A": {"count": 3}}}
  }
}`

func TestBuildExpandsArmies(t *testing.T) {
	s, err := Parse([]byte(armyJSON))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	plan, caps, err := s.Build(nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if got := plan.Actions[0].Strategies[0].ID; got != "t1-f1" {
		t.Errorf("Expected the expanded variant t1-f1, got %s", got)
	}
	options := plan.Replacements["t1-f1"]
	want := []string{"c1-f1", "c1-f2", "t1-f2"}
	if len(options) != len(want) {
		t.Fatalf("Expected %d options, got %d", len(want), len(options))
	}
	for i, opt := range options {
		if opt.ID != want[i] {
			t.Errorf("Expected option %d to be %s, got %s", i, want[i], opt.ID)
		}
	}
	if caps.Aircraft[models.OwnedKey("A", "f1")] != 10 {
		t.Errorf("Expected cap 10 for A-f1, got %d", caps.Aircraft[models.OwnedKey("A", "f1")])
	}
	if caps.Ammunition[models.OwnedKey("M", "f1")] != 50 {
		t.Errorf("Expected ammunition cap 50 for M-f1, got %d", caps.Ammunition[models.OwnedKey("M", "f1")])
	}
}

func TestBuildRejectsMalformedScenarios(t *testing.T) {
	cases := []struct {
		name string
		json string
		want string
	}{
		{
			name: "resource pair too short",
			json: `{"strategies": {"s1": {"aircraft": {"A": [2]}}}, "actions": {"a1": ["s1"]}}`,
			want: "[count, price]",
		},
		{
			name: "time range too long",
			json: `{"strategies": {"s1": {"aircraft": {"A": [2, 10]}, "time_range": [1, 2, 3]}}, "actions": {"a1": ["s1"]}}`,
			want: "[start, end]",
		},
		{
			name: "action references unknown strategy",
			json: `{"strategies": {"s1": {"aircraft": {"A": [2, 10]}}}, "actions": {"a1": ["ghost"]}}`,
			want: "unknown strategy",
		},
		{
			name: "unknown replacement candidate",
			json: `{"strategies": {"s1": {"replaceable": true, "aircraft": {"A": [2, 10]}}}, "actions": {"a1": ["s1"]}, "replacement_options": {"s1": ["ghost"]}}`,
			want: "unknown candidate",
		},
	}

	for _, tc := range cases {
		s, err := Parse([]byte(tc.json))
		if err != nil {
			t.Fatalf("%s: Parse failed: %v", tc.name, err)
		}
		_, _, err = s.Build(nil)
		if err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
			continue
		}
		var inputErr *models.InputError
		if !errors.As(err, &inputErr) {
			t.Errorf("%s: expected an InputError, got %T", tc.name, err)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: expected error containing %q, got %q", tc.name, tc.want, err.Error())
		}
	}
}

func TestScenarioObjective(t *testing.T) {
	s := &Scenario{}
	obj, err := s.Objective()
	if err != nil || obj != models.MinPrice {
		t.Errorf("Expected default objective price, got %v (%v)", obj, err)
	}

	code := 1
	s.OptType = &code
	obj, err = s.Objective()
	if err != nil || obj != models.MinAircraftLoss {
		t.Errorf("Expected aircraft_loss for code 1, got %v (%v)", obj, err)
	}

	bad := 9
	s.OptType = &bad
	if _, err := s.Objective(); err == nil {
		t.Errorf("Expected an error for code 9")
	}
}

func TestScenarioDeadline(t *testing.T) {
	s := &Scenario{}
	if got := s.Deadline(); got != 0 {
		t.Errorf("Expected no deadline, got %v", got)
	}
	s.TimeLimit = 1.5
	if got := s.Deadline(); got != 1500*time.Millisecond {
		t.Errorf("Expected 1.5s, got %v", got)
	}
}
