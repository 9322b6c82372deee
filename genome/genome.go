// Package genome provides the heritable trait vector for lifeforms.
package genome

import "math/rand"

// Trait indexes one scalar in the genome vector.
type Trait int

// Trait layout. Every lifeform carries all traits; species that do not
// use a trait simply ignore it (plants never read Attack, etc.).
const (
	TraitSpeed Trait = iota
	TraitVisionRange
	TraitMetabolism
	TraitDigestion
	TraitReproThreshold // fraction of max energy required to reproduce
	TraitReproRate      // reproduction attempts per second
	TraitMutationRate
	TraitPhotosynthesis // plant energy gain per second
	TraitAttack
	TraitDefense
	TraitHue // appearance only, still heritable

	NumTraits
)

var traitNames = [NumTraits]string{
	"speed", "vision_range", "metabolism", "digestion", "repro_threshold",
	"repro_rate", "mutation_rate", "photosynthesis", "attack", "defense", "hue",
}

// String returns the trait's name.
func (t Trait) String() string {
	if t < 0 || t >= NumTraits {
		return "unknown"
	}
	return traitNames[t]
}

// Range bounds a trait's domain. Mutation clamps into [Min, Max].
type Range struct {
	Min, Max float32
}

var domains = [NumTraits]Range{
	TraitSpeed:          {0, 80},
	TraitVisionRange:    {20, 180},
	TraitMetabolism:     {0.2, 2.5},
	TraitDigestion:      {0.1, 1},
	TraitReproThreshold: {0.3, 0.95},
	TraitReproRate:      {0.01, 0.5},
	TraitMutationRate:   {0.01, 0.5},
	TraitPhotosynthesis: {0, 4},
	TraitAttack:         {0, 10},
	TraitDefense:        {0, 10},
	TraitHue:            {0, 1},
}

// Domain returns the valid range for a trait.
func Domain(t Trait) Range {
	return domains[t]
}

// Genome is a fixed-length vector of bounded scalar traits.
// It has value semantics: copied at reproduction, never shared.
type Genome [NumTraits]float32

// Random returns a genome drawn uniformly inside every trait domain.
func Random(rng *rand.Rand) Genome {
	var g Genome
	for t := Trait(0); t < NumTraits; t++ {
		d := domains[t]
		g[t] = d.Min + rng.Float32()*(d.Max-d.Min)
	}
	return g
}

// Crossover picks each trait from either parent with probability 0.5.
// Deterministic given the injected random source.
func Crossover(rng *rand.Rand, a, b Genome) Genome {
	var child Genome
	for t := Trait(0); t < NumTraits; t++ {
		if rng.Float32() < 0.5 {
			child[t] = a[t]
		} else {
			child[t] = b[t]
		}
	}
	return child
}

// Mutate scales each trait with probability rate by a factor in
// [1-maxDelta, 1+maxDelta], clamping the result to the trait domain.
func Mutate(rng *rand.Rand, g Genome, rate, maxDelta float32) Genome {
	for t := Trait(0); t < NumTraits; t++ {
		if rng.Float32() >= rate {
			continue
		}
		factor := 1 + (rng.Float32()*2-1)*maxDelta
		g[t] = clampTrait(t, g[t]*factor)
	}
	return g
}

// Clamped returns the genome with every trait forced into its domain.
func (g Genome) Clamped() Genome {
	for t := Trait(0); t < NumTraits; t++ {
		g[t] = clampTrait(t, g[t])
	}
	return g
}

func clampTrait(t Trait, v float32) float32 {
	d := domains[t]
	if v < d.Min {
		return d.Min
	}
	if v > d.Max {
		return d.Max
	}
	return v
}
