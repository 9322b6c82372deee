package compute

import (
	"errors"
	"math"
	"math/rand"
	"runtime"
	"testing"

	"gonum.org/v1/gonum/stat"

	"github.com/jessehattabaugh/world/lifeform"
	"github.com/jessehattabaugh/world/neural"
	"github.com/jessehattabaugh/world/resource"
)

const testHidden = 8

func testEnv() *Env {
	return &Env{
		Seed:          99,
		DT:            1.0 / 30,
		WorldW:        1000,
		WorldH:        1000,
		GridCellSize:  50,
		Friction:      0.98,
		BounceDamping: 0.5,
		BaseCost:      0.5,
		MoveCost:      0.01,
		GainCap:       50,
		MaturityAge:   5,
	}
}

// buildMixedBatch stages n lifeforms of all three species at seeded
// random positions. Two calls with the same seed stage identical batches.
func buildMixedBatch(n int, seed int64) *Batch {
	rng := rand.New(rand.NewSource(seed))
	b := NewBatch(testHidden)
	for i := 0; i < n; i++ {
		sp := lifeform.Species(i % int(lifeform.NumSpecies))
		g := lifeform.FounderGenome(rng, sp)
		b.Append(Item{
			ID:        uint64(i + 1),
			Species:   sp,
			X:         rng.Float32() * 1000,
			Y:         rng.Float32() * 1000,
			Energy:    50,
			MaxEnergy: 100,
			MaxAge:    300,
			Size:      4,
			Genome:    g,
			Brain:     neural.MustNew(rng, neural.NumInputs, testHidden, neural.NumOutputs),
		})
	}
	return b
}

func mean32(s []float32) float64 {
	f := make([]float64, len(s))
	for i, v := range s {
		f[i] = float64(v)
	}
	return stat.Mean(f, nil)
}

func relDiff(a, b float64) float64 {
	if a == 0 && b == 0 {
		return 0
	}
	return math.Abs(a-b) / math.Max(math.Abs(a), math.Abs(b))
}

// TestBackendEquivalence verifies both backends produce statistically
// equivalent populations from identical seeded inputs: position and
// energy means within 1% after many ticks.
func TestBackendEquivalence(t *testing.T) {
	if runtime.GOMAXPROCS(0) < 2 {
		t.Skip("accelerated backend needs more than one core")
	}

	const n = 1500
	const ticks = 25

	seqBatch := buildMixedBatch(n, 7)
	vecBatch := buildMixedBatch(n, 7)

	seq := NewSequential(testHidden)
	vec, err := NewVector(0)
	if err != nil {
		t.Fatalf("NewVector: %v", err)
	}
	defer vec.Close()

	env := testEnv()
	for tick := uint64(0); tick < ticks; tick++ {
		env.Tick = tick
		if _, err := seq.Step(seqBatch, env, nil); err != nil {
			t.Fatalf("sequential Step tick %d: %v", tick, err)
		}
		if _, err := vec.Step(vecBatch, env, nil); err != nil {
			t.Fatalf("vector Step tick %d: %v", tick, err)
		}
	}

	checks := []struct {
		name     string
		seq, vec float64
	}{
		{"x", mean32(seqBatch.X), mean32(vecBatch.X)},
		{"y", mean32(seqBatch.Y), mean32(vecBatch.Y)},
		{"energy", mean32(seqBatch.Energy), mean32(vecBatch.Energy)},
	}
	for _, c := range checks {
		if d := relDiff(c.seq, c.vec); d > 0.01 {
			t.Errorf("mean %s diverged: sequential %v, vector %v (%.2f%%)", c.name, c.seq, c.vec, d*100)
		}
	}
}

// TestVectorUnavailableSingleCore verifies capability detection returns
// ErrUnavailable instead of crashing when there is no parallelism.
func TestVectorUnavailableSingleCore(t *testing.T) {
	prev := runtime.GOMAXPROCS(1)
	defer runtime.GOMAXPROCS(prev)

	if _, err := NewVector(0); !errors.Is(err, ErrUnavailable) {
		t.Errorf("NewVector on one core: err = %v, want ErrUnavailable", err)
	}
}

// TestVectorSmallBatchInline verifies batches below the dispatch
// threshold take the inline path and still produce a full tick.
func TestVectorSmallBatchInline(t *testing.T) {
	if runtime.GOMAXPROCS(0) < 2 {
		t.Skip("accelerated backend needs more than one core")
	}

	vec, err := NewVector(64)
	if err != nil {
		t.Fatalf("NewVector: %v", err)
	}
	defer vec.Close()

	b := buildMixedBatch(10, 3)
	env := testEnv()
	if _, err := vec.Step(b, env, nil); err != nil {
		t.Fatalf("Step: %v", err)
	}

	for i := 0; i < b.N; i++ {
		if b.Age[i] != env.DT {
			t.Fatalf("entity %d age = %v after one tick, want %v", i, b.Age[i], env.DT)
		}
	}
}

// TestEnergyInvariants verifies that after any number of ticks every
// entity satisfies 0 <= energy <= maxEnergy and the alive flag agrees
// with energy and age.
func TestEnergyInvariants(t *testing.T) {
	b := buildMixedBatch(300, 11)
	// Short lives so age deaths occur during the test.
	for i := range b.MaxAge {
		b.MaxAge[i] = 2
	}

	seq := NewSequential(testHidden)
	env := testEnv()
	env.Resources = []resource.Resource{{ID: 1, X: 500, Y: 500, Energy: 20}}

	for tick := uint64(0); tick < 90; tick++ {
		env.Tick = tick
		if _, err := seq.Step(b, env, nil); err != nil {
			t.Fatalf("Step: %v", err)
		}
		for i := 0; i < b.N; i++ {
			if b.Energy[i] < 0 || b.Energy[i] > b.MaxEnergy[i] {
				t.Fatalf("tick %d entity %d energy = %v, want within [0, %v]", tick, i, b.Energy[i], b.MaxEnergy[i])
			}
			wantAlive := b.Energy[i] > 0 && b.Age[i] < b.MaxAge[i]
			if b.Alive[i] != wantAlive {
				t.Fatalf("tick %d entity %d alive = %v, want %v (energy %v, age %v)",
					tick, i, b.Alive[i], wantAlive, b.Energy[i], b.Age[i])
			}
		}
	}
}
