package expand

import (
	"sort"

	"github.com/auriol/strikeplan/internal/models"
)

// Template is one unexpanded mission strategy: untagged resource classes
// plus the force it was drawn up for.
type Template struct {
	ID              string
	Replaceable     bool
	Aircraft        map[string]models.Requirement
	Ammunition      map[string]models.Requirement
	InitialForce    models.ForceID
	Window          *models.TimeWindow
	PenetrationRate float64
	Encounter       *models.Encounter
}

// Force is one army's holdings by resource class.
type Force struct {
	Aircraft   map[string]int
	Ammunition map[string]int
}

// ActionRef is one ordered plan stage naming the templates that fly in it.
type ActionRef struct {
	ID          string
	StrategyIDs []string
}

// Input is an unexpanded scenario: templates, the declared stages, the
// declared replacement candidates per template, and the forces to field
// them with.
type Input struct {
	Templates    map[string]Template
	Actions      []ActionRef
	Replacements map[string][]string
	Forces       map[models.ForceID]Force
}

// Roster expands a scenario across its forces. Every template attached to an
// action becomes a variant tagged with its fielding force: the declared
// initial force when it can cover the requirements, otherwise the first
// feasible force. Replaceable templates get an option list holding the
// feasible variants of their declared candidates followed by the template's
// own variants on other feasible forces. Constraints are derived from the
// force holdings, one capped pool per force and class.
func Roster(in Input) (*models.Plan, models.Constraints, error) {
	if len(in.Forces) == 0 {
		return nil, models.Constraints{}, models.Inputf("armies", "no forces declared")
	}
	e := newExpander(in)

	plan := &models.Plan{
		Strategies:   make(map[string]*models.Strategy),
		Replacements: make(map[string][]*models.Strategy),
	}

	var attached []string
	attachedSeen := make(map[string]bool)
	for _, ref := range in.Actions {
		action := &models.Action{ID: ref.ID}
		for _, sid := range ref.StrategyIDs {
			tmpl, ok := in.Templates[sid]
			if !ok {
				return nil, models.Constraints{}, models.Inputf("actions",
					"action %q references unknown strategy %q", ref.ID, sid)
			}
			variant, err := e.initialVariant(tmpl)
			if err != nil {
				return nil, models.Constraints{}, err
			}
			action.Strategies = append(action.Strategies, variant)
			if !attachedSeen[sid] {
				attachedSeen[sid] = true
				attached = append(attached, sid)
			}
		}
		plan.Actions = append(plan.Actions, action)
	}

	for _, sid := range attached {
		tmpl := in.Templates[sid]
		if !tmpl.Replaceable {
			continue
		}
		initial, err := e.initialVariant(tmpl)
		if err != nil {
			return nil, models.Constraints{}, err
		}
		options, err := e.optionsFor(tmpl, initial)
		if err != nil {
			return nil, models.Constraints{}, err
		}
		if len(options) > 0 {
			plan.Replacements[initial.ID] = options
		}
	}

	for id, variant := range e.variants {
		plan.Strategies[id] = variant
	}
	return plan, e.constraints(), nil
}

type expander struct {
	in       Input
	feasible map[string][]models.ForceID
	initial  map[string]models.ForceID
	variants map[string]*models.Strategy
}

func newExpander(in Input) *expander {
	e := &expander{
		in:       in,
		feasible: make(map[string][]models.ForceID, len(in.Templates)),
		initial:  make(map[string]models.ForceID, len(in.Templates)),
		variants: make(map[string]*models.Strategy),
	}
	forceIDs := make([]models.ForceID, 0, len(in.Forces))
	for id := range in.Forces {
		forceIDs = append(forceIDs, id)
	}
	sort.Slice(forceIDs, func(i, j int) bool { return forceIDs[i] < forceIDs[j] })

	for id, tmpl := range in.Templates {
		var feasible []models.ForceID
		for _, fid := range forceIDs {
			if fieldable(in.Forces[fid], tmpl) {
				feasible = append(feasible, fid)
			}
		}
		e.feasible[id] = feasible
		if len(feasible) == 0 {
			continue
		}
		choice := feasible[0]
		if tmpl.InitialForce != "" {
			if force, ok := in.Forces[tmpl.InitialForce]; ok && fieldable(force, tmpl) {
				choice = tmpl.InitialForce
			}
		}
		e.initial[id] = choice
	}
	return e
}

// fieldable reports whether the force holds every class the template
// commits, at the committed counts.
func fieldable(f Force, tmpl Template) bool {
	for class, req := range tmpl.Aircraft {
		if req.Count > 0 && f.Aircraft[class] < req.Count {
			return false
		}
	}
	for class, req := range tmpl.Ammunition {
		if req.Count > 0 && f.Ammunition[class] < req.Count {
			return false
		}
	}
	return true
}

func (e *expander) initialVariant(tmpl Template) (*models.Strategy, error) {
	force, ok := e.initial[tmpl.ID]
	if !ok {
		return nil, models.Inputf("armies",
			"strategy %q cannot be fielded by any declared force", tmpl.ID)
	}
	return e.variant(tmpl, force), nil
}

// variant returns the canonical strategy object for a template fielded by a
// force, building it on first use. Resource keys are tagged with the force.
func (e *expander) variant(tmpl Template, force models.ForceID) *models.Strategy {
	id := tmpl.ID + models.OwnerSeparator + string(force)
	if v, ok := e.variants[id]; ok {
		return v
	}
	v := &models.Strategy{
		ID:              id,
		Replaceable:     tmpl.Replaceable && force == e.initial[tmpl.ID],
		Aircraft:        tagged(tmpl.Aircraft, force),
		Ammunition:      tagged(tmpl.Ammunition, force),
		InitialForce:    force,
		Window:          tmpl.Window,
		PenetrationRate: tmpl.PenetrationRate,
		Encounter:       tmpl.Encounter,
	}
	e.variants[id] = v
	return v
}

func tagged(reqs map[string]models.Requirement, force models.ForceID) map[models.ResourceKey]models.Requirement {
	out := make(map[models.ResourceKey]models.Requirement, len(reqs))
	for class, req := range reqs {
		out[models.OwnedKey(class, force)] = req
	}
	return out
}

// optionsFor assembles a template's replacement candidates: every feasible
// variant of each declared candidate, in declared then force order, followed
// by the template's own variants on its other feasible forces. Duplicates
// and the initial variant itself are dropped.
func (e *expander) optionsFor(tmpl Template, initial *models.Strategy) ([]*models.Strategy, error) {
	var options []*models.Strategy
	seen := map[string]bool{initial.ID: true}

	for _, cid := range e.in.Replacements[tmpl.ID] {
		candidate, ok := e.in.Templates[cid]
		if !ok {
			return nil, models.Inputf("replacement_options",
				"strategy %q lists unknown candidate %q", tmpl.ID, cid)
		}
		for _, force := range e.feasible[cid] {
			v := e.variant(candidate, force)
			if !seen[v.ID] {
				seen[v.ID] = true
				options = append(options, v)
			}
		}
	}
	for _, force := range e.feasible[tmpl.ID] {
		v := e.variant(tmpl, force)
		if !seen[v.ID] {
			seen[v.ID] = true
			options = append(options, v)
		}
	}
	return options, nil
}

// constraints caps every pool a force holds.
func (e *expander) constraints() models.Constraints {
	caps := models.Constraints{
		Aircraft:   make(map[models.ResourceKey]int),
		Ammunition: make(map[models.ResourceKey]int),
	}
	for fid, force := range e.in.Forces {
		for class, count := range force.Aircraft {
			caps.Aircraft[models.OwnedKey(class, fid)] = count
		}
		for class, count := range force.Ammunition {
			caps.Ammunition[models.OwnedKey(class, fid)] = count
		}
	}
	return caps
}
