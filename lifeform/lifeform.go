// Package lifeform defines the lifeform data model: species, ECS components
// for worker entity caches, and the immutable record form used in messages.
package lifeform

import (
	"fmt"
	"math/rand"

	"github.com/jessehattabaugh/world/genome"
	"github.com/jessehattabaugh/world/neural"
)

// Species identifies a lifeform's behavioral class.
type Species uint8

const (
	Plant Species = iota
	Herbivore
	Carnivore

	NumSpecies
)

var speciesNames = [NumSpecies]string{"plant", "herbivore", "carnivore"}

// String returns the species name.
func (s Species) String() string {
	if s >= NumSpecies {
		return fmt.Sprintf("species(%d)", uint8(s))
	}
	return speciesNames[s]
}

// ParseSpecies converts a species name to its enum value.
func ParseSpecies(name string) (Species, error) {
	for i, n := range speciesNames {
		if n == name {
			return Species(i), nil
		}
	}
	return 0, fmt.Errorf("lifeform: unknown species %q", name)
}

// Prey returns the species s hunts, and whether it hunts at all.
func (s Species) Prey() (Species, bool) {
	switch s {
	case Herbivore:
		return Plant, true
	case Carnivore:
		return Herbivore, true
	default:
		return 0, false
	}
}

// Predator returns the species that hunts s, and whether any does.
func (s Species) Predator() (Species, bool) {
	switch s {
	case Plant:
		return Herbivore, true
	case Herbivore:
		return Carnivore, true
	default:
		return 0, false
	}
}

// EatsResources reports whether the species consumes food items in
// addition to prey lifeforms.
func (s Species) EatsResources() bool {
	return s == Herbivore
}

// Position is an entity's world position.
type Position struct {
	X, Y float32
}

// Velocity is an entity's velocity in world units per second.
type Velocity struct {
	X, Y float32
}

// Body holds physical extent.
type Body struct {
	Size float32 // collision radius
}

// Energy tracks the vital state. Alive is false exactly when the energy
// floor or age ceiling has been hit.
type Energy struct {
	Value  float32
	Max    float32
	Age    float32 // seconds
	MaxAge float32
	Alive  bool
}

// Meta carries identity and heritable state.
type Meta struct {
	ID      uint64
	Species Species
	Genome  genome.Genome
}

// Record is the immutable wire form of a lifeform, passed between the
// controller and workers. The network travels as a flattened weight copy:
// transferred, never shared.
type Record struct {
	ID      uint64
	Species Species

	X, Y   float32
	VX, VY float32

	Energy    float32
	MaxEnergy float32
	Age       float32
	MaxAge    float32
	Size      float32

	Genome genome.Genome
	Brain  neural.Weights
}

// FounderGenome draws a random genome and biases it to the species' niche
// so founder populations behave sensibly from tick zero.
func FounderGenome(rng *rand.Rand, sp Species) genome.Genome {
	g := genome.Random(rng)
	switch sp {
	case Plant:
		g[genome.TraitSpeed] = 0
		g[genome.TraitAttack] = 0
		g[genome.TraitPhotosynthesis] = between(rng, 0.8, 2.5)
		g[genome.TraitMetabolism] = between(rng, 0.2, 0.6)
	case Herbivore:
		g[genome.TraitSpeed] = between(rng, 25, 55)
		g[genome.TraitPhotosynthesis] = 0
		g[genome.TraitAttack] = 0
		g[genome.TraitDigestion] = between(rng, 0.5, 0.9)
	case Carnivore:
		g[genome.TraitSpeed] = between(rng, 30, 65)
		g[genome.TraitPhotosynthesis] = 0
		g[genome.TraitAttack] = between(rng, 4, 9)
		g[genome.TraitDefense] = between(rng, 1, 4)
	}
	return g.Clamped()
}

func between(rng *rand.Rand, lo, hi float32) float32 {
	return lo + rng.Float32()*(hi-lo)
}
