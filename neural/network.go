// Package neural provides the fixed-topology decision network for lifeforms.
package neural

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// Sensor input schema. Distances are normalized by vision range (1 = nothing
// in range), angles are normalized to [0,1) over a full turn.
const (
	InFoodDist = iota
	InFoodAngle
	InThreatDist
	InThreatAngle

	NumInputs
)

// Actuator output schema. All outputs are sigmoid-activated in [0,1].
const (
	OutMoveAngle = iota // heading as fraction of a full turn
	OutMoveSpeed        // fraction of the genome speed trait
	OutReproduce        // reproduce-intent gate, fires at >= 0.5
	OutAttack           // attack-intent gate, fires at >= 0.5

	NumOutputs
)

// ErrBadDimensions reports weight slices that do not match the declared topology.
var ErrBadDimensions = errors.New("neural: weight dimensions do not match topology")

// Network is a two-layer feed-forward network with ReLU hidden units and
// sigmoid outputs. Each instance is exclusively owned by one lifeform;
// reproduction builds a new network, never shares one.
type Network struct {
	in, hidden, out int

	w1 []float32 // [hidden][in] row-major
	b1 []float32 // [hidden]
	w2 []float32 // [out][hidden] row-major
	b2 []float32 // [out]
}

// New creates a randomly initialized network with the given topology.
func New(rng *rand.Rand, in, hidden, out int) (*Network, error) {
	if in <= 0 || hidden <= 0 || out <= 0 {
		return nil, fmt.Errorf("%w: topology %dx%dx%d", ErrBadDimensions, in, hidden, out)
	}
	n := &Network{
		in:     in,
		hidden: hidden,
		out:    out,
		w1:     make([]float32, hidden*in),
		b1:     make([]float32, hidden),
		w2:     make([]float32, out*hidden),
		b2:     make([]float32, out),
	}

	// Xavier initialization
	scale1 := float32(math.Sqrt(2.0 / float64(in)))
	scale2 := float32(math.Sqrt(2.0 / float64(hidden)))
	for i := range n.w1 {
		n.w1[i] = float32(rng.NormFloat64()) * scale1
	}
	for i := range n.w2 {
		n.w2[i] = float32(rng.NormFloat64()) * scale2
	}

	return n, nil
}

// MustNew is New but panics on an invalid topology. For callers whose
// dimensions are compile-time constants or already validated.
func MustNew(rng *rand.Rand, in, hidden, out int) *Network {
	n, err := New(rng, in, hidden, out)
	if err != nil {
		panic(err)
	}
	return n
}

// FromWeights restores a network from flat weight slices. Every slice length
// is checked against the topology; mismatches fail here rather than being
// silently truncated.
func FromWeights(in, hidden, out int, w Weights) (*Network, error) {
	if in <= 0 || hidden <= 0 || out <= 0 {
		return nil, fmt.Errorf("%w: topology %dx%dx%d", ErrBadDimensions, in, hidden, out)
	}
	if len(w.W1) != hidden*in || len(w.B1) != hidden ||
		len(w.W2) != out*hidden || len(w.B2) != out {
		return nil, fmt.Errorf("%w: got w1=%d b1=%d w2=%d b2=%d for topology %dx%dx%d",
			ErrBadDimensions, len(w.W1), len(w.B1), len(w.W2), len(w.B2), in, hidden, out)
	}
	n := &Network{
		in:     in,
		hidden: hidden,
		out:    out,
		w1:     append([]float32(nil), w.W1...),
		b1:     append([]float32(nil), w.B1...),
		w2:     append([]float32(nil), w.W2...),
		b2:     append([]float32(nil), w.B2...),
	}
	return n, nil
}

// Dims returns the network topology.
func (n *Network) Dims() (in, hidden, out int) {
	return n.in, n.hidden, n.out
}

// Forward computes outputs from inputs. Pure; safe for concurrent calls
// across distinct networks. Slice lengths must match the topology.
func (n *Network) Forward(inputs, outputs []float32) {
	hidden := make([]float32, n.hidden)
	n.ForwardInto(inputs, hidden, outputs)
}

// ForwardInto is Forward with caller-provided hidden scratch, for hot paths.
func (n *Network) ForwardInto(inputs, hidden, outputs []float32) {
	ForwardSlices(n.w1, n.b1, n.w2, n.b2, inputs, hidden, outputs)
}

// ForwardSlices runs a forward pass over flat weight slices:
// w1 is [hidden][in] row-major, w2 is [out][hidden] row-major.
// Both compute backends route through this for identical math.
func ForwardSlices(w1, b1, w2, b2, inputs, hidden, outputs []float32) {
	in := len(inputs)
	for h := range hidden {
		sum := b1[h]
		row := w1[h*in:]
		for j := 0; j < in; j++ {
			sum += row[j] * inputs[j]
		}
		if sum < 0 {
			sum = 0 // ReLU
		}
		hidden[h] = sum
	}

	nh := len(hidden)
	for o := range outputs {
		sum := b2[o]
		row := w2[o*nh:]
		for j := 0; j < nh; j++ {
			sum += row[j] * hidden[j]
		}
		outputs[o] = Sigmoid(sum)
	}
}

// Sigmoid maps x to (0,1).
func Sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

// Crossover builds a child network picking each weight and bias position
// from either parent with probability 0.5. Parents must share a topology.
func Crossover(rng *rand.Rand, a, b *Network) (*Network, error) {
	if a.in != b.in || a.hidden != b.hidden || a.out != b.out {
		return nil, fmt.Errorf("%w: %dx%dx%d vs %dx%dx%d",
			ErrBadDimensions, a.in, a.hidden, a.out, b.in, b.hidden, b.out)
	}
	child := &Network{
		in:     a.in,
		hidden: a.hidden,
		out:    a.out,
		w1:     crossSlice(rng, a.w1, b.w1),
		b1:     crossSlice(rng, a.b1, b.b1),
		w2:     crossSlice(rng, a.w2, b.w2),
		b2:     crossSlice(rng, a.b2, b.b2),
	}
	return child, nil
}

func crossSlice(rng *rand.Rand, a, b []float32) []float32 {
	out := make([]float32, len(a))
	for i := range out {
		if rng.Float32() < 0.5 {
			out[i] = a[i]
		} else {
			out[i] = b[i]
		}
	}
	return out
}

// Mutate perturbs each weight and bias with probability rate by Gaussian
// noise of the given sigma. Returns the average absolute delta applied.
func (n *Network) Mutate(rng *rand.Rand, rate, sigma float32) float32 {
	var totalDelta float32
	var count int

	mutate := func(s []float32) {
		for i := range s {
			if rng.Float32() < rate {
				delta := float32(rng.NormFloat64()) * sigma
				s[i] += delta
				totalDelta += abs32(delta)
				count++
			}
		}
	}
	mutate(n.w1)
	mutate(n.b1)
	mutate(n.w2)
	mutate(n.b2)

	if count == 0 {
		return 0
	}
	return totalDelta / float32(count)
}

// Clone creates a deep copy of the network.
func (n *Network) Clone() *Network {
	return &Network{
		in:     n.in,
		hidden: n.hidden,
		out:    n.out,
		w1:     append([]float32(nil), n.w1...),
		b1:     append([]float32(nil), n.b1...),
		w2:     append([]float32(nil), n.w2...),
		b2:     append([]float32(nil), n.b2...),
	}
}

// Weights holds flattened network weights for transfer between workers.
type Weights struct {
	W1 []float32
	B1 []float32
	W2 []float32
	B2 []float32
}

// Weights returns a flattened copy of the network parameters.
func (n *Network) Weights() Weights {
	return Weights{
		W1: append([]float32(nil), n.w1...),
		B1: append([]float32(nil), n.b1...),
		W2: append([]float32(nil), n.w2...),
		B2: append([]float32(nil), n.b2...),
	}
}

// PackedLen returns the flat buffer length one network occupies when packed
// as w1|b1|w2|b2, as batch backends lay it out.
func PackedLen(in, hidden, out int) int {
	return hidden*in + hidden + out*hidden + out
}

// Pack appends the network parameters to dst in w1|b1|w2|b2 order.
func (n *Network) Pack(dst []float32) []float32 {
	dst = append(dst, n.w1...)
	dst = append(dst, n.b1...)
	dst = append(dst, n.w2...)
	dst = append(dst, n.b2...)
	return dst
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
