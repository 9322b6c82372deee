package compute

import "github.com/jessehattabaugh/world/neural"

// Sequential is the reference backend: identical math to the accelerated
// path in one ordinary loop. Always available.
type Sequential struct {
	grid *grid
	sc   scratch
}

// NewSequential creates the fallback backend for brains with the given
// hidden width.
func NewSequential(numHidden int) *Sequential {
	return &Sequential{sc: newScratch(numHidden)}
}

func (s *Sequential) Name() string { return "sequential" }

// Step advances every entity in index order, then resolves interactions.
func (s *Sequential) Step(b *Batch, env *Env, events []Event) ([]Event, error) {
	if s.grid == nil {
		s.grid = newGrid(env.WorldW, env.WorldH, env.GridCellSize)
	}
	b.prepare(len(env.Resources))
	s.grid.rebuild(b)

	for i := 0; i < b.N; i++ {
		if !b.Alive[i] {
			carryEntity(b, i)
			continue
		}
		senseEntity(b, env, s.grid, &s.sc, i)
		w1, b1, w2, b2 := b.brain(i)
		neural.ForwardSlices(w1, b1, w2, b2, b.senseSlot(i), s.sc.hidden, b.actSlot(i))
		decideEntity(b, env, i, b.actSlot(i))
		integrateEntity(b, env, i)
	}

	b.applyNext()
	return finishTick(b, env, s.grid, &s.sc, events), nil
}
