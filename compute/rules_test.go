package compute

import (
	"math/rand"
	"testing"

	"github.com/jessehattabaugh/world/genome"
	"github.com/jessehattabaugh/world/lifeform"
	"github.com/jessehattabaugh/world/neural"
	"github.com/jessehattabaugh/world/resource"
)

func testBrain(seed int64) *neural.Network {
	return neural.MustNew(rand.New(rand.NewSource(seed)), neural.NumInputs, testHidden, neural.NumOutputs)
}

// herbGenome returns a herbivore genome with deterministic movement
// traits so seek behavior is predictable.
func herbGenome() genome.Genome {
	var g genome.Genome
	g[genome.TraitSpeed] = 40
	g[genome.TraitVisionRange] = 120
	g[genome.TraitMetabolism] = 1
	g[genome.TraitDigestion] = 0.8
	g[genome.TraitReproThreshold] = 0.9
	g[genome.TraitReproRate] = 0.1
	g[genome.TraitMutationRate] = 0.1
	g[genome.TraitDefense] = 2
	return g
}

func carnGenome(attack float32) genome.Genome {
	g := herbGenome()
	g[genome.TraitSpeed] = 50
	g[genome.TraitAttack] = attack
	g[genome.TraitDefense] = 2
	return g
}

func plantGenome(photo float32) genome.Genome {
	var g genome.Genome
	g[genome.TraitPhotosynthesis] = photo
	g[genome.TraitMetabolism] = 0.3
	g[genome.TraitReproThreshold] = 0.9
	g[genome.TraitReproRate] = 0.1
	return g
}

func stage(b *Batch, id uint64, sp lifeform.Species, g genome.Genome, x, y, energy float32) int {
	return b.Append(Item{
		ID:        id,
		Species:   sp,
		X:         x,
		Y:         y,
		Energy:    energy,
		MaxEnergy: 100,
		MaxAge:    300,
		Size:      4,
		Genome:    g,
		Brain:     testBrain(int64(id)),
	})
}

// TestHerbivoreSeeksFood verifies a herbivore moves toward a nearby food
// item and its energy changes within two ticks.
func TestHerbivoreSeeksFood(t *testing.T) {
	b := NewBatch(testHidden)
	h := stage(b, 1, lifeform.Herbivore, herbGenome(), 100, 100, 50)

	env := testEnv()
	env.Resources = []resource.Resource{{ID: 9, X: 150, Y: 100, Energy: 20}}

	seq := NewSequential(testHidden)
	for tick := uint64(0); tick < 2; tick++ {
		env.Tick = tick
		if _, err := seq.Step(b, env, nil); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}

	if b.X[h] <= 100 {
		t.Errorf("herbivore x = %v after 2 ticks, want > 100", b.X[h])
	}
	if b.Energy[h] == 50 {
		t.Error("herbivore energy unchanged after 2 ticks")
	}
}

// TestHerbivoreFleesPredator verifies fleeing takes priority over
// foraging when a carnivore is inside half the vision range.
func TestHerbivoreFleesPredator(t *testing.T) {
	b := NewBatch(testHidden)
	h := stage(b, 1, lifeform.Herbivore, herbGenome(), 100, 100, 50)
	stage(b, 2, lifeform.Carnivore, carnGenome(1), 110, 100, 50) // weak attacker to the right
	stage(b, 3, lifeform.Plant, plantGenome(2), 90, 100, 30)     // food to the left

	env := testEnv()
	seq := NewSequential(testHidden)
	if _, err := seq.Step(b, env, nil); err != nil {
		t.Fatalf("Step: %v", err)
	}

	if b.X[h] >= 100 {
		t.Errorf("herbivore x = %v, want < 100 (fleeing left, away from predator)", b.X[h])
	}
	if b.intents[h]&IntentFlee == 0 {
		t.Error("herbivore intent missing flee bit")
	}
	// Fleeing suppressed eating even though the plant was in reach.
	if !b.Alive[2] {
		t.Error("plant was eaten by a fleeing herbivore")
	}
}

// TestPlantPhotosynthesis verifies plants stay put and gain energy.
func TestPlantPhotosynthesis(t *testing.T) {
	b := NewBatch(testHidden)
	p := stage(b, 1, lifeform.Plant, plantGenome(3), 200, 200, 10)

	env := testEnv()
	seq := NewSequential(testHidden)
	if _, err := seq.Step(b, env, nil); err != nil {
		t.Fatalf("Step: %v", err)
	}

	if b.X[p] != 200 || b.Y[p] != 200 {
		t.Errorf("plant moved to (%v, %v)", b.X[p], b.Y[p])
	}
	if b.Energy[p] <= 10 {
		t.Errorf("plant energy = %v, want > 10", b.Energy[p])
	}
}

// TestCarnivoreAttack verifies the contact outcome is the pure trait
// comparison: strictly greater attack kills, anything else leaves the
// prey alive.
func TestCarnivoreAttack(t *testing.T) {
	tests := []struct {
		name     string
		attack   float32
		wantKill bool
	}{
		{"attack beats defense", 6, true},
		{"attack equals defense", 2, false},
		{"attack below defense", 1, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBatch(testHidden)
			c := stage(b, 1, lifeform.Carnivore, carnGenome(tc.attack), 100, 100, 50)
			h := stage(b, 2, lifeform.Herbivore, herbGenome(), 103, 100, 40)

			env := testEnv()
			seq := NewSequential(testHidden)
			events, err := seq.Step(b, env, nil)
			if err != nil {
				t.Fatalf("Step: %v", err)
			}

			var killed bool
			for _, ev := range events {
				if ev.Kind == EventKilled && ev.Index == c && ev.Target == h {
					killed = true
				}
			}
			if killed != tc.wantKill {
				t.Errorf("killed = %v, want %v", killed, tc.wantKill)
			}
			if b.Alive[h] == tc.wantKill {
				t.Errorf("prey alive = %v, want %v", b.Alive[h], !tc.wantKill)
			}
			if tc.wantKill && b.Energy[c] <= 50 {
				t.Errorf("predator energy = %v, want > 50 after kill", b.Energy[c])
			}
		})
	}
}

// TestNoDoubleKill verifies that once prey dies to one attacker in a
// tick, no later attacker is credited with the same prey.
func TestNoDoubleKill(t *testing.T) {
	b := NewBatch(testHidden)
	stage(b, 1, lifeform.Carnivore, carnGenome(8), 100, 100, 50)
	prey := stage(b, 2, lifeform.Herbivore, herbGenome(), 101, 100, 40)
	stage(b, 3, lifeform.Carnivore, carnGenome(8), 102, 100, 50)

	env := testEnv()
	seq := NewSequential(testHidden)
	events, err := seq.Step(b, env, nil)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	kills := 0
	for _, ev := range events {
		if ev.Kind == EventKilled && ev.Target == prey {
			kills++
		}
	}
	if kills != 1 {
		t.Errorf("prey credited to %d killers, want 1", kills)
	}
	if b.Alive[prey] {
		t.Error("prey still alive")
	}
}

// TestResourceClaimedOnce verifies two herbivores in reach of the same
// food item produce exactly one consumption claim.
func TestResourceClaimedOnce(t *testing.T) {
	b := NewBatch(testHidden)
	stage(b, 1, lifeform.Herbivore, herbGenome(), 100, 100, 50)
	stage(b, 2, lifeform.Herbivore, herbGenome(), 102, 100, 50)

	env := testEnv()
	env.Resources = []resource.Resource{{ID: 77, X: 101, Y: 100, Energy: 20}}

	seq := NewSequential(testHidden)
	events, err := seq.Step(b, env, nil)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	claims := 0
	for _, ev := range events {
		if ev.Kind == EventConsumed {
			if ev.ResourceID != 77 {
				t.Errorf("claim for resource %d, want 77", ev.ResourceID)
			}
			claims++
		}
	}
	if claims != 1 {
		t.Errorf("resource claimed %d times, want 1", claims)
	}
}

// TestBoundaryReflection verifies an entity crossing the world edge is
// reflected back inside with the velocity axis negated and damped. A
// predator just inside the wall drives the herbivore left across it.
func TestBoundaryReflection(t *testing.T) {
	b := NewBatch(testHidden)
	i := stage(b, 1, lifeform.Herbivore, herbGenome(), 0.5, 500, 50)
	stage(b, 2, lifeform.Carnivore, carnGenome(1), 8, 500, 50)

	env := testEnv()
	seq := NewSequential(testHidden)
	if _, err := seq.Step(b, env, nil); err != nil {
		t.Fatalf("Step: %v", err)
	}

	if b.X[i] < 0 || b.X[i] > env.WorldW {
		t.Fatalf("x = %v, want inside [0, %v]", b.X[i], env.WorldW)
	}
	if b.VX[i] <= 0 {
		t.Errorf("vx = %v after reflection, want > 0", b.VX[i])
	}
}

// TestFindMatePrefersNearestMature verifies mate selection picks the
// closest live same-species adult and skips juveniles.
func TestFindMatePrefersNearestMature(t *testing.T) {
	b := NewBatch(testHidden)
	i := stage(b, 1, lifeform.Herbivore, herbGenome(), 100, 100, 50)
	stage(b, 2, lifeform.Herbivore, herbGenome(), 180, 100, 50) // mature, far
	near := stage(b, 3, lifeform.Herbivore, herbGenome(), 120, 100, 50)
	juvenile := stage(b, 4, lifeform.Herbivore, herbGenome(), 105, 100, 50)
	stage(b, 5, lifeform.Carnivore, carnGenome(1), 110, 100, 50) // wrong species

	env := testEnv()
	for j := 0; j < b.N; j++ {
		b.Age[j] = env.MaturityAge + 10
	}
	b.Age[juvenile] = 0

	g := newGrid(env.WorldW, env.WorldH, env.GridCellSize)
	g.rebuild(b)
	sc := newScratch(testHidden)
	b.prepare(0)

	if got := findMate(b, env, g, &sc, i); got != near {
		t.Errorf("findMate = %d, want %d (nearest mature herbivore)", got, near)
	}

	b.Alive[near] = false
	if got := findMate(b, env, g, &sc, i); got != 1 {
		t.Errorf("findMate = %d after nearest died, want 1", got)
	}
}

// TestFindMateAloneIsAsexual verifies an isolated entity gets no mate.
func TestFindMateAloneIsAsexual(t *testing.T) {
	b := NewBatch(testHidden)
	i := stage(b, 1, lifeform.Herbivore, herbGenome(), 100, 100, 50)

	env := testEnv()
	b.Age[i] = env.MaturityAge + 10

	g := newGrid(env.WorldW, env.WorldH, env.GridCellSize)
	g.rebuild(b)
	sc := newScratch(testHidden)

	if got := findMate(b, env, g, &sc, i); got != -1 {
		t.Errorf("findMate = %d, want -1", got)
	}
}
