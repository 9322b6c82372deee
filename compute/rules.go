package compute

import (
	"math"

	"github.com/jessehattabaugh/world/genome"
	"github.com/jessehattabaugh/world/lifeform"
	"github.com/jessehattabaugh/world/neural"
)

const (
	wanderChance = 0.05 // per-tick chance of re-rolling a wander heading
	fleeBoost    = 1.5  // flee speed multiplier
	fleeRange    = 0.5  // fraction of vision range that triggers fleeing
	intentGate   = 0.5  // network output level treated as intent
)

// Intent records what an entity chose to do this tick.
type Intent uint8

const (
	IntentFlee Intent = 1 << iota
	IntentSeek
	IntentAttack
	IntentReproduce
)

// scratch holds per-goroutine reusable buffers.
type scratch struct {
	neighbors []neighbor
	hidden    []float32
}

func newScratch(numHidden int) scratch {
	return scratch{
		neighbors: make([]neighbor, 0, 64),
		hidden:    make([]float32, numHidden),
	}
}

// carryEntity passes a dead entity's state through the compute phase
// unchanged so applyNext stays a straight copy.
func carryEntity(b *Batch, i int) {
	b.nextX[i] = b.X[i]
	b.nextY[i] = b.Y[i]
	b.nextVX[i] = 0
	b.nextVY[i] = 0
	b.nextEnergy[i] = b.Energy[i]
	b.nextAge[i] = b.Age[i]
	b.intents[i] = 0
}

// senseEntity fills entity i's sensor slot from the frozen snapshot and
// records the chosen food and threat targets. Safe to run concurrently
// for distinct i.
func senseEntity(b *Batch, env *Env, g *grid, sc *scratch, i int) {
	sp := b.Species[i]
	vision := b.Genomes[i][genome.TraitVisionRange]
	x, y := b.X[i], b.Y[i]

	var (
		foodEnt      int32 = -1
		foodRes      int32 = -1
		threatEnt    int32 = -1
		foodDistSq   float32
		threatDistSq float32
		foodDX       float32
		foodDY       float32
		threatDX     float32
		threatDY     float32
	)
	foodDistSq = math.MaxFloat32
	threatDistSq = math.MaxFloat32

	prey, hasPrey := sp.Prey()
	pred, hasPred := sp.Predator()

	if hasPrey || hasPred {
		sc.neighbors = g.queryRadiusInto(sc.neighbors[:0], b, x, y, vision, int32(i))
		for _, nb := range sc.neighbors {
			j := nb.Index
			if !b.Alive[j] {
				continue
			}
			switch {
			case hasPrey && b.Species[j] == prey:
				if nb.DistSq < foodDistSq {
					foodDistSq = nb.DistSq
					foodEnt = j
					foodDX, foodDY = nb.DX, nb.DY
				}
			case hasPred && b.Species[j] == pred:
				if nb.DistSq < threatDistSq {
					threatDistSq = nb.DistSq
					threatEnt = j
					threatDX, threatDY = nb.DX, nb.DY
				}
			}
		}
	}

	if sp.EatsResources() {
		visionSq := vision * vision
		for ri := range env.Resources {
			r := &env.Resources[ri]
			dx := r.X - x
			dy := r.Y - y
			distSq := dx*dx + dy*dy
			if distSq <= visionSq && distSq < foodDistSq {
				foodDistSq = distSq
				foodEnt = -1
				foodRes = int32(ri)
				foodDX, foodDY = dx, dy
			}
		}
	}

	s := b.senseSlot(i)
	if foodEnt >= 0 || foodRes >= 0 {
		s[neural.InFoodDist] = sqrt32(foodDistSq) / vision
		s[neural.InFoodAngle] = normAngle(foodDY, foodDX)
	} else {
		s[neural.InFoodDist] = 1
		s[neural.InFoodAngle] = 0.5
	}
	if threatEnt >= 0 {
		s[neural.InThreatDist] = sqrt32(threatDistSq) / vision
		s[neural.InThreatAngle] = normAngle(threatDY, threatDX)
	} else {
		s[neural.InThreatDist] = 1
		s[neural.InThreatAngle] = 0.5
	}

	b.foodEnt[i] = foodEnt
	b.foodRes[i] = foodRes
	b.threat[i] = threatEnt
}

// decideFunc converts network outputs and sensed targets into a velocity
// for the next tick, returning movement intent bits.
type decideFunc func(b *Batch, env *Env, i int, out []float32) Intent

// behaviors dispatches species-specific decision logic.
var behaviors = [lifeform.NumSpecies]decideFunc{
	lifeform.Plant:     decidePlant,
	lifeform.Herbivore: decideHerbivore,
	lifeform.Carnivore: decideCarnivore,
}

func decideEntity(b *Batch, env *Env, i int, out []float32) {
	intent := behaviors[b.Species[i]](b, env, i, out)
	if out[neural.OutReproduce] >= intentGate {
		intent |= IntentReproduce
	}
	b.intents[i] = intent
}

func decidePlant(b *Batch, _ *Env, i int, _ []float32) Intent {
	b.nextVX[i] = 0
	b.nextVY[i] = 0
	return 0
}

func decideHerbivore(b *Batch, env *Env, i int, out []float32) Intent {
	g := &b.Genomes[i]
	speed := g[genome.TraitSpeed]

	// Fleeing takes priority over foraging.
	if t := b.threat[i]; t >= 0 {
		dx := b.X[t] - b.X[i]
		dy := b.Y[t] - b.Y[i]
		dist := sqrt32(dx*dx + dy*dy)
		if dist > 0 && dist <= g[genome.TraitVisionRange]*fleeRange {
			v := speed * fleeBoost / dist
			b.nextVX[i] = -dx * v
			b.nextVY[i] = -dy * v
			return IntentFlee
		}
	}

	if j := b.foodEnt[i]; j >= 0 {
		steerToward(b, i, b.X[j], b.Y[j], speed)
		return IntentSeek
	}
	if r := b.foodRes[i]; r >= 0 {
		steerToward(b, i, env.Resources[r].X, env.Resources[r].Y, speed)
		return IntentSeek
	}

	wander(b, env, i, out, speed)
	return 0
}

func decideCarnivore(b *Batch, env *Env, i int, out []float32) Intent {
	speed := b.Genomes[i][genome.TraitSpeed]

	// Pursuit requires attack intent from the network. The contact
	// outcome itself stays a pure trait comparison.
	if j := b.foodEnt[i]; j >= 0 && out[neural.OutAttack] >= intentGate {
		steerToward(b, i, b.X[j], b.Y[j], speed)
		return IntentSeek | IntentAttack
	}

	wander(b, env, i, out, speed)
	return 0
}

func steerToward(b *Batch, i int, tx, ty, speed float32) {
	dx := tx - b.X[i]
	dy := ty - b.Y[i]
	dist := sqrt32(dx*dx + dy*dy)
	if dist == 0 {
		b.nextVX[i] = 0
		b.nextVY[i] = 0
		return
	}
	b.nextVX[i] = dx / dist * speed
	b.nextVY[i] = dy / dist * speed
}

// wander re-rolls the heading with a small per-tick chance, steering by
// the network's movement outputs, and otherwise keeps the current
// velocity for friction to decay.
func wander(b *Batch, env *Env, i int, out []float32, speed float32) {
	if hashUniform(env.Seed, b.IDs[i], env.Tick, streamWander) < wanderChance {
		ang := out[neural.OutMoveAngle] * 2 * math.Pi
		sp := out[neural.OutMoveSpeed] * speed
		b.nextVX[i] = cos32(ang) * sp
		b.nextVY[i] = sin32(ang) * sp
		return
	}
	b.nextVX[i] = b.VX[i]
	b.nextVY[i] = b.VY[i]
}

// integrateEntity advances physics and energy for entity i, writing
// results only to the next buffers. Safe to run concurrently for
// distinct i.
func integrateEntity(b *Batch, env *Env, i int) {
	vx := b.nextVX[i]
	vy := b.nextVY[i]
	moved := sqrt32(vx*vx+vy*vy) * env.DT

	x := b.X[i] + vx*env.DT
	y := b.Y[i] + vy*env.DT

	// Reflect at the boundary: negate and damp the violated axis.
	if x < 0 {
		x = -x
		vx = -vx * env.BounceDamping
	} else if x > env.WorldW {
		x = 2*env.WorldW - x
		vx = -vx * env.BounceDamping
	}
	if y < 0 {
		y = -y
		vy = -vy * env.BounceDamping
	} else if y > env.WorldH {
		y = 2*env.WorldH - y
		vy = -vy * env.BounceDamping
	}

	b.nextX[i] = clamp(x, 0, env.WorldW)
	b.nextY[i] = clamp(y, 0, env.WorldH)
	b.nextVX[i] = vx * env.Friction
	b.nextVY[i] = vy * env.Friction

	g := &b.Genomes[i]
	e := b.Energy[i] - env.BaseCost*env.DT - env.MoveCost*moved*g[genome.TraitMetabolism]
	if b.Species[i] == lifeform.Plant {
		e += g[genome.TraitPhotosynthesis] * env.DT
	}
	b.nextEnergy[i] = clamp(e, 0, b.MaxEnergy[i])
	b.nextAge[i] = b.Age[i] + env.DT
}

// finishTick resolves interactions, deaths, and birth requests in batch
// index order. It runs single-threaded and identically on both backends.
// An entity zeroed by an earlier pair is ineligible as a later target.
func finishTick(b *Batch, env *Env, g *grid, sc *scratch, events []Event) []Event {
	for i := 0; i < b.N; i++ {
		if !b.Alive[i] {
			continue
		}
		switch b.Species[i] {
		case lifeform.Herbivore:
			// Fleeing suppresses foraging for the tick.
			if b.intents[i]&IntentSeek == 0 {
				continue
			}
			if j := b.foodEnt[i]; j >= 0 {
				events = eatPlant(b, i, int(j), events)
			} else if r := b.foodRes[i]; r >= 0 {
				events = claimResource(b, env, i, int(r), events)
			}
		case lifeform.Carnivore:
			if j := b.foodEnt[i]; j >= 0 {
				events = attackPrey(b, env, i, int(j), events)
			}
		}
	}

	for i := 0; i < b.N; i++ {
		if !b.Alive[i] {
			continue
		}
		if b.Energy[i] <= 0 {
			b.Alive[i] = false
			events = append(events, Event{Kind: EventDied, Index: i, Cause: CauseStarved})
		} else if b.Age[i] >= b.MaxAge[i] {
			b.Alive[i] = false
			events = append(events, Event{Kind: EventDied, Index: i, Cause: CauseOldAge})
		}
	}

	for i := 0; i < b.N; i++ {
		if !b.Alive[i] || b.intents[i]&IntentReproduce == 0 {
			continue
		}
		gn := &b.Genomes[i]
		if b.Energy[i] <= gn[genome.TraitReproThreshold]*b.MaxEnergy[i] {
			continue
		}
		if b.Age[i] <= env.MaturityAge {
			continue
		}
		if hashUniform(env.Seed, b.IDs[i], env.Tick, streamRepro) >= gn[genome.TraitReproRate]*env.DT {
			continue
		}
		events = append(events, Event{Kind: EventBirth, Index: i, Target: findMate(b, env, g, sc, i)})
	}

	return events
}

// findMate returns the batch index of the nearest live same-species
// entity past maturity within vision range, or -1 for an asexual birth.
func findMate(b *Batch, env *Env, g *grid, sc *scratch, i int) int {
	vision := b.Genomes[i][genome.TraitVisionRange]
	sc.neighbors = g.queryRadiusInto(sc.neighbors[:0], b, b.X[i], b.Y[i], vision, int32(i))

	best := -1
	bestDistSq := float32(math.MaxFloat32)
	for _, nb := range sc.neighbors {
		j := int(nb.Index)
		if !b.Alive[j] || b.Species[j] != b.Species[i] {
			continue
		}
		if b.Age[j] <= env.MaturityAge {
			continue
		}
		if nb.DistSq < bestDistSq {
			bestDistSq = nb.DistSq
			best = j
		}
	}
	return best
}

func eatPlant(b *Batch, i, j int, events []Event) []Event {
	if !b.Alive[j] || !inContact(b, i, j) {
		return events
	}
	gain := b.Energy[j] * b.Genomes[i][genome.TraitDigestion]
	b.Energy[i] = min(b.MaxEnergy[i], b.Energy[i]+gain)
	b.Energy[j] = 0
	b.Alive[j] = false
	return append(events,
		Event{Kind: EventAte, Index: i, Target: j},
		Event{Kind: EventDied, Index: j, Cause: CauseEaten},
	)
}

func claimResource(b *Batch, env *Env, i, r int, events []Event) []Event {
	if b.claimed[r] {
		return events
	}
	res := &env.Resources[r]
	dx := res.X - b.X[i]
	dy := res.Y - b.Y[i]
	reach := b.Size[i]
	if dx*dx+dy*dy > reach*reach {
		return events
	}
	b.claimed[r] = true
	gain := res.Energy * b.Genomes[i][genome.TraitDigestion]
	b.Energy[i] = min(b.MaxEnergy[i], b.Energy[i]+gain)
	return append(events, Event{Kind: EventConsumed, Index: i, ResourceID: res.ID})
}

func attackPrey(b *Batch, env *Env, i, j int, events []Event) []Event {
	if !b.Alive[j] || !inContact(b, i, j) {
		return events
	}
	if b.Genomes[i][genome.TraitAttack] <= b.Genomes[j][genome.TraitDefense] {
		return events
	}
	gain := min(b.Energy[j], env.GainCap)
	b.Energy[i] = min(b.MaxEnergy[i], b.Energy[i]+gain)
	b.Energy[j] = 0
	b.Alive[j] = false
	return append(events,
		Event{Kind: EventKilled, Index: i, Target: j},
		Event{Kind: EventDied, Index: j, Cause: CausePredation},
	)
}

// inContact reports whether entities i and j touch: center distance no
// more than the sum of their sizes.
func inContact(b *Batch, i, j int) bool {
	dx := b.X[j] - b.X[i]
	dy := b.Y[j] - b.Y[i]
	reach := b.Size[i] + b.Size[j]
	return dx*dx+dy*dy <= reach*reach
}

func sqrt32(x float32) float32 { return float32(math.Sqrt(float64(x))) }
func cos32(x float32) float32  { return float32(math.Cos(float64(x))) }
func sin32(x float32) float32  { return float32(math.Sin(float64(x))) }

// normAngle maps atan2(dy, dx) into [0, 1].
func normAngle(dy, dx float32) float32 {
	return (float32(math.Atan2(float64(dy), float64(dx))) + math.Pi) / (2 * math.Pi)
}

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
