package models

import (
	"fmt"
	"sort"
	"strings"
)

// ForceID identifies the force (army grouping) that owns a tagged resource pool.
// The empty ForceID means the resource is untagged.
type ForceID string

// OwnerSeparator joins class and owner when a ResourceKey is rendered for
// display or the legacy wire format. It is never used for lookups.
const OwnerSeparator = "-"

// ResourceKey identifies one aircraft or ammunition pool. Class is the
// equipment type name; Owner is filled in by force expansion and left empty
// for untagged scenarios.
type ResourceKey struct {
	Class string
	Owner ForceID
}

// Key returns an untagged ResourceKey for a class name.
func Key(class string) ResourceKey {
	return ResourceKey{Class: class}
}

// OwnedKey returns a ResourceKey tagged with an owning force.
func OwnedKey(class string, owner ForceID) ResourceKey {
	return ResourceKey{Class: class, Owner: owner}
}

// String renders the key as "class" or "class-owner".
func (k ResourceKey) String() string {
	if k.Owner == "" {
		return k.Class
	}
	return k.Class + OwnerSeparator + string(k.Owner)
}

// SortKeys returns the keys of a resource map in deterministic order.
func SortKeys[V any](m map[ResourceKey]V) []ResourceKey {
	keys := make([]ResourceKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Class != keys[j].Class {
			return keys[i].Class < keys[j].Class
		}
		return keys[i].Owner < keys[j].Owner
	})
	return keys
}

// Requirement is a committed quantity of one resource pool with its unit price.
type Requirement struct {
	Count     int
	UnitPrice int
}

// TimeWindow is a half-open tick interval [Start, End).
type TimeWindow struct {
	Start int
	End   int
}

// Contains reports whether tick t falls inside the window.
func (w TimeWindow) Contains(t int) bool {
	return t >= w.Start && t < w.End
}

// GroundThreat is one ground installation group encountered during a strategy.
type GroundThreat struct {
	Class string
	Count int
}

// AirThreat is one enemy aircraft group encountered during a strategy.
type AirThreat struct {
	Class string
	Count int
}

// Encounter describes the enemy forces a strategy runs into, stage by stage.
// Slices keep their declared order.
type Encounter struct {
	Ground []GroundThreat
	Air    []AirThreat
}

// Empty reports whether the encounter declares no threats at all.
func (e *Encounter) Empty() bool {
	return e == nil || (len(e.Ground) == 0 && len(e.Air) == 0)
}

// Objective selects the scalar metric the optimizer ranks solutions by.
type Objective string

const (
	MinPrice         Objective = "price"
	MinAircraftLoss  Objective = "aircraft_loss"
	MinAircraftUsage Objective = "aircraft_usage"
)

// AllObjectives returns all objectives in deterministic order.
func AllObjectives() []Objective {
	return []Objective{MinPrice, MinAircraftLoss, MinAircraftUsage}
}

// ParseObjective maps a wire or CLI name to an Objective. The empty string
// selects the default price objective.
func ParseObjective(s string) (Objective, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "price", "cost":
		return MinPrice, nil
	case "loss", "aircraft_loss":
		return MinAircraftLoss, nil
	case "usage", "aircraft_usage":
		return MinAircraftUsage, nil
	}
	return "", &InputError{Field: "objective", Reason: fmt.Sprintf("unknown objective %q", s)}
}

// ObjectiveFromCode maps the numeric wire enum (0 price, 1 loss, 2 usage).
func ObjectiveFromCode(code int) (Objective, error) {
	switch code {
	case 0:
		return MinPrice, nil
	case 1:
		return MinAircraftLoss, nil
	case 2:
		return MinAircraftUsage, nil
	}
	return "", &InputError{Field: "opt_type", Reason: fmt.Sprintf("unknown optimization type %d", code)}
}

// InputError reports malformed optimization input. It is surfaced to the
// caller immediately and never retried; infeasibility is not an InputError.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// Inputf builds an InputError with a formatted reason.
func Inputf(field, format string, args ...any) error {
	return &InputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
