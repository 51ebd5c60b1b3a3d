package genetic

import (
	"math"
	"math/rand"
)

// invalidSelectionWeight keeps individuals with broken constraints barely
// selectable so their genes are not lost outright.
const invalidSelectionWeight = 0.01

// genome encodes one candidate assignment as option indexes aligned with the
// plan's replaceable IDs. Gene 0 keeps the original strategy; gene k selects
// replacement candidate k-1.
type genome []int

func (g genome) clone() genome {
	out := make(genome, len(g))
	copy(out, g)
	return out
}

// seedPopulation builds the initial population: the first genome keeps every
// original strategy, the rest draw every gene uniformly from its full range.
func seedPopulation(rng *rand.Rand, size int, optionCounts []int) []genome {
	population := make([]genome, 0, size)
	population = append(population, make(genome, len(optionCounts)))
	for len(population) < size {
		g := make(genome, len(optionCounts))
		for i, n := range optionCounts {
			g[i] = rng.Intn(n + 1)
		}
		population = append(population, g)
	}
	return population
}

// rouletteSelect picks an index with probability proportional to shifted
// fitness. Fitness values are negative objectives, so every finite value is
// shifted up by the worst finite fitness plus one; invalid individuals get
// the floor weight. With no finite fitness at all the draw is uniform.
func rouletteSelect(rng *rand.Rand, fitness []float64) int {
	minFinite := math.Inf(1)
	for _, f := range fitness {
		if !math.IsInf(f, -1) && f < minFinite {
			minFinite = f
		}
	}

	weights := make([]float64, len(fitness))
	total := 0.0
	for i, f := range fitness {
		w := invalidSelectionWeight
		if !math.IsInf(f, -1) {
			w = f + math.Abs(minFinite) + 1
		}
		weights[i] = w
		total += w
	}

	r := rng.Float64() * total
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w
		if r < cumulative {
			return i
		}
	}
	return len(fitness) - 1
}

// crossover splices two parents at a random point. Genes that land outside
// their option range are redrawn.
func crossover(rng *rand.Rand, a, b genome, optionCounts []int) genome {
	if len(a) <= 1 {
		return a.clone()
	}
	point := 1 + rng.Intn(len(a)-1)
	child := make(genome, len(a))
	copy(child, a[:point])
	copy(child[point:], b[point:])
	for i, gene := range child {
		if gene < 0 || gene > optionCounts[i] {
			child[i] = rng.Intn(optionCounts[i] + 1)
		}
	}
	return child
}

// mutate redraws each gene with the given probability, always to a different
// value.
func mutate(rng *rand.Rand, g genome, rate float64, optionCounts []int) {
	for i, n := range optionCounts {
		if n == 0 || rng.Float64() >= rate {
			continue
		}
		next := rng.Intn(n + 1)
		for next == g[i] {
			next = rng.Intn(n + 1)
		}
		g[i] = next
	}
}
