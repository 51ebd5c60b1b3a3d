package combat

import (
	"math"

	"github.com/auriol/strikeplan/internal/models"
)

// Tuning constants for the two-stage attrition model. The ground stage
// degrades the base penetration rate; the air stage trades losses round by
// round at the configured exchange ratios.
const (
	basePenetrationRate = 0.95
	maxDefenseEffect    = 0.7
	minPenetrationRate  = 0.3
	defenseEffectScale  = 0.2
	maxAirRounds        = 10
	maxEngagedPerPair   = 5
)

// Simulator derives expected aircraft attrition for a strategy sortie. It is
// stateless; all tunable parameters come from the cache.
type Simulator struct {
	cache *Cache
}

// NewSimulator builds a simulator over the given parameter cache.
func NewSimulator(cache *Cache) *Simulator {
	return &Simulator{cache: cache}
}

// Losses runs the two-stage engagement for the committed aircraft against the
// declared encounter. Each stage runs only when its threat list is non-empty;
// without an encounter the flat fallbackRate applies instead. Only pools with
// a positive loss appear in the returned map.
func (s *Simulator) Losses(aircraft map[models.ResourceKey]models.Requirement, enc *models.Encounter, fallbackRate float64) (map[models.ResourceKey]int, int) {
	if enc.Empty() {
		return models.FlatLosses(aircraft, fallbackRate)
	}

	remaining := make(map[models.ResourceKey]int, len(aircraft))
	for key, req := range aircraft {
		if req.Count > 0 {
			remaining[key] = req.Count
		}
	}

	if len(enc.Ground) > 0 {
		rate := s.groundPenetration(enc.Ground)
		for key, count := range remaining {
			remaining[key] = int(float64(count) * rate)
		}
	}

	s.airStage(remaining, enc.Air)

	losses := make(map[models.ResourceKey]int)
	total := 0
	for key, req := range aircraft {
		if loss := req.Count - remaining[key]; loss > 0 {
			losses[key] = loss
			total += loss
		}
	}
	return losses, total
}

// groundPenetration folds every ground threat's detection effect into a
// single penetration rate. Each threat contributes a saturating effect that
// grows with its count; the summed effect is capped and the resulting rate
// never drops below the floor.
func (s *Simulator) groundPenetration(threats []models.GroundThreat) float64 {
	total := 0.0
	for _, t := range threats {
		if t.Count <= 0 {
			continue
		}
		rate := s.cache.DefenseRate(t.Class)
		count := float64(t.Count)
		total += (1 - math.Pow(1-rate, count)) * math.Log10(count+1) * defenseEffectScale
	}
	if total > maxDefenseEffect {
		total = maxDefenseEffect
	}
	rate := basePenetrationRate - total
	if rate < minPenetrationRate {
		rate = minPenetrationRate
	}
	return rate
}

// airStage runs up to maxAirRounds of pairwise engagements, mutating
// remaining in place. Our pools engage in deterministic key order, enemy
// groups in declared order, and losses land immediately so later pairings in
// the same round see them.
func (s *Simulator) airStage(remaining map[models.ResourceKey]int, threats []models.AirThreat) {
	if len(threats) == 0 {
		return
	}
	enemy := make([]int, len(threats))
	for i, t := range threats {
		if t.Count > 0 {
			enemy[i] = t.Count
		}
	}
	keys := models.SortKeys(remaining)

	for round := 0; round < maxAirRounds; round++ {
		if totalCount(remaining) == 0 || totalInts(enemy) == 0 {
			break
		}
		for _, key := range keys {
			for i := range threats {
				ours := remaining[key]
				if ours <= 0 || enemy[i] <= 0 {
					continue
				}
				ourRatio, enemyRatio := s.cache.ExchangeRatio(key.Class, threats[i].Class)
				if ourRatio <= 0 || enemyRatio <= 0 {
					continue
				}
				multiplier := enemyRatio / ourRatio

				engaged := ours
				if engaged > maxEngagedPerPair {
					engaged = maxEngagedPerPair
				}
				enemyLoss := int(float64(engaged) * multiplier)
				if enemyLoss > enemy[i] {
					enemyLoss = enemy[i]
				}
				ourLoss := int(math.Ceil(float64(enemyLoss) / multiplier))
				if ourLoss > ours {
					ourLoss = ours
				}

				enemy[i] -= enemyLoss
				remaining[key] -= ourLoss
			}
		}
	}
}

func totalCount(m map[models.ResourceKey]int) int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}

func totalInts(v []int) int {
	total := 0
	for _, n := range v {
		total += n
	}
	return total
}
