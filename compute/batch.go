package compute

import (
	"github.com/jessehattabaugh/world/genome"
	"github.com/jessehattabaugh/world/lifeform"
	"github.com/jessehattabaugh/world/neural"
)

// Item is one lifeform staged into a Batch.
type Item struct {
	ID                uint64
	Species           lifeform.Species
	X, Y              float32
	VX, VY            float32
	Energy, MaxEnergy float32
	Age, MaxAge       float32
	Size              float32
	Genome            genome.Genome
	Brain             *neural.Network
}

// Batch holds lifeform state in flat parallel slices, the layout both
// backends operate on. Network weights are packed contiguously with a
// fixed stride since every brain shares one topology.
type Batch struct {
	N int

	IDs       []uint64
	Species   []lifeform.Species
	X, Y      []float32
	VX, VY    []float32
	Energy    []float32
	MaxEnergy []float32
	Age       []float32
	MaxAge    []float32
	Size      []float32
	Alive     []bool
	Genomes   []genome.Genome
	Weights   []float32

	numHidden int
	stride    int
	// offsets into one packed brain: w1 | b1 | w2 | b2
	offB1, offW2, offB2 int

	// per-tick scratch written by the compute phase, one slot per entity
	nextX, nextY   []float32
	nextVX, nextVY []float32
	nextEnergy     []float32
	nextAge        []float32
	senses         []float32
	acts           []float32
	foodEnt        []int32
	foodRes        []int32
	threat         []int32
	intents        []Intent
	claimed        []bool
}

// NewBatch creates an empty batch for brains with the given hidden width.
func NewBatch(numHidden int) *Batch {
	w1 := numHidden * neural.NumInputs
	return &Batch{
		numHidden: numHidden,
		stride:    neural.PackedLen(neural.NumInputs, numHidden, neural.NumOutputs),
		offB1:     w1,
		offW2:     w1 + numHidden,
		offB2:     w1 + numHidden + neural.NumOutputs*numHidden,
	}
}

// Reset empties the batch for the next tick without releasing capacity.
func (b *Batch) Reset() {
	b.N = 0
	b.IDs = b.IDs[:0]
	b.Species = b.Species[:0]
	b.X = b.X[:0]
	b.Y = b.Y[:0]
	b.VX = b.VX[:0]
	b.VY = b.VY[:0]
	b.Energy = b.Energy[:0]
	b.MaxEnergy = b.MaxEnergy[:0]
	b.Age = b.Age[:0]
	b.MaxAge = b.MaxAge[:0]
	b.Size = b.Size[:0]
	b.Alive = b.Alive[:0]
	b.Genomes = b.Genomes[:0]
	b.Weights = b.Weights[:0]
}

// Append stages one lifeform and returns its batch index. The brain must
// match the batch topology; construction validates dimensions so a
// mismatch here is a programming error.
func (b *Batch) Append(it Item) int {
	i := b.N
	b.N++
	b.IDs = append(b.IDs, it.ID)
	b.Species = append(b.Species, it.Species)
	b.X = append(b.X, it.X)
	b.Y = append(b.Y, it.Y)
	b.VX = append(b.VX, it.VX)
	b.VY = append(b.VY, it.VY)
	b.Energy = append(b.Energy, it.Energy)
	b.MaxEnergy = append(b.MaxEnergy, it.MaxEnergy)
	b.Age = append(b.Age, it.Age)
	b.MaxAge = append(b.MaxAge, it.MaxAge)
	b.Size = append(b.Size, it.Size)
	b.Alive = append(b.Alive, true)
	b.Genomes = append(b.Genomes, it.Genome)
	b.Weights = it.Brain.Pack(b.Weights)
	return i
}

// Len returns the number of staged lifeforms.
func (b *Batch) Len() int { return b.N }

// brain returns the four weight slices of entity i's packed network.
func (b *Batch) brain(i int) (w1, b1, w2, b2 []float32) {
	p := b.Weights[i*b.stride : (i+1)*b.stride]
	return p[:b.offB1], p[b.offB1:b.offW2], p[b.offW2:b.offB2], p[b.offB2:]
}

// prepare sizes the scratch slices for the current entity count. Called
// by backends at the start of a tick.
func (b *Batch) prepare(numResources int) {
	n := b.N
	b.nextX = resizeF32(b.nextX, n)
	b.nextY = resizeF32(b.nextY, n)
	b.nextVX = resizeF32(b.nextVX, n)
	b.nextVY = resizeF32(b.nextVY, n)
	b.nextEnergy = resizeF32(b.nextEnergy, n)
	b.nextAge = resizeF32(b.nextAge, n)
	b.senses = resizeF32(b.senses, n*neural.NumInputs)
	b.acts = resizeF32(b.acts, n*neural.NumOutputs)
	b.foodEnt = resizeI32(b.foodEnt, n)
	b.foodRes = resizeI32(b.foodRes, n)
	b.threat = resizeI32(b.threat, n)
	if cap(b.intents) < n {
		b.intents = make([]Intent, n)
	}
	b.intents = b.intents[:n]
	if cap(b.claimed) < numResources {
		b.claimed = make([]bool, numResources)
	}
	b.claimed = b.claimed[:numResources]
	for i := range b.claimed {
		b.claimed[i] = false
	}
}

// applyNext copies the compute phase results into the primary slices.
// Runs single-threaded between the parallel phase and interaction
// resolution.
func (b *Batch) applyNext() {
	copy(b.X, b.nextX)
	copy(b.Y, b.nextY)
	copy(b.VX, b.nextVX)
	copy(b.VY, b.nextVY)
	copy(b.Energy, b.nextEnergy)
	copy(b.Age, b.nextAge)
}

func (b *Batch) senseSlot(i int) []float32 {
	return b.senses[i*neural.NumInputs : (i+1)*neural.NumInputs]
}

func (b *Batch) actSlot(i int) []float32 {
	return b.acts[i*neural.NumOutputs : (i+1)*neural.NumOutputs]
}

func resizeF32(s []float32, n int) []float32 {
	if cap(s) < n {
		return make([]float32, n)
	}
	return s[:n]
}

func resizeI32(s []int32, n int) []int32 {
	if cap(s) < n {
		return make([]int32, n)
	}
	return s[:n]
}
