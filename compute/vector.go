package compute

import (
	"runtime"
	"sync"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/jessehattabaugh/world/neural"
)

// vectorThreshold is the minimum entity count for dispatching to the
// worker pool. Below this, single-threaded is faster due to goroutine
// overhead.
const vectorThreshold = 64

// Vector is the accelerated backend. The per-entity phase is chunked
// across persistent workers with the network forward pass lowered onto
// BLAS level-2 kernels. Interaction resolution still runs
// single-threaded so both backends resolve pairs in the same order.
type Vector struct {
	threshold  int
	numWorkers int

	grid      *grid
	scratches []scratch

	workChan chan span
	doneChan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool

	// set for the duration of one Step dispatch
	batch *Batch
	env   *Env
}

type span struct {
	start, end int
}

// NewVector creates the accelerated backend, or returns ErrUnavailable
// when the machine offers no parallelism.
func NewVector(threshold int) (*Vector, error) {
	workers := runtime.GOMAXPROCS(0)
	if workers < 2 {
		return nil, ErrUnavailable
	}
	if threshold <= 0 {
		threshold = vectorThreshold
	}
	return &Vector{threshold: threshold, numWorkers: workers}, nil
}

func (v *Vector) Name() string { return "vector" }

// Step advances the batch one tick.
func (v *Vector) Step(b *Batch, env *Env, events []Event) ([]Event, error) {
	if v.grid == nil {
		v.grid = newGrid(env.WorldW, env.WorldH, env.GridCellSize)
	}
	if v.scratches == nil {
		v.scratches = make([]scratch, v.numWorkers)
		for i := range v.scratches {
			v.scratches[i] = newScratch(b.numHidden)
		}
	}

	b.prepare(len(env.Resources))
	v.grid.rebuild(b)
	v.batch, v.env = b, env

	if b.N < v.threshold {
		v.computeChunk(0, b.N, &v.scratches[0])
	} else {
		v.computeParallel(b.N)
	}

	b.applyNext()
	return finishTick(b, env, v.grid, &v.scratches[0], events), nil
}

// computeParallel dispatches chunk spans to the worker pool and waits.
func (v *Vector) computeParallel(n int) {
	if !v.running {
		v.startWorkers()
	}

	chunkSize := (n + v.numWorkers - 1) / v.numWorkers
	dispatched := 0
	for w := 0; w < v.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		v.workChan <- span{start: start, end: end}
		dispatched++
	}

	for i := 0; i < dispatched; i++ {
		<-v.doneChan
	}
}

// startWorkers launches persistent worker goroutines.
func (v *Vector) startWorkers() {
	v.workChan = make(chan span, v.numWorkers)
	v.doneChan = make(chan struct{}, v.numWorkers)
	v.stopChan = make(chan struct{})
	v.running = true

	for i := 0; i < v.numWorkers; i++ {
		v.wg.Add(1)
		go v.worker(i)
	}
}

func (v *Vector) worker(id int) {
	defer v.wg.Done()
	sc := &v.scratches[id]

	for {
		select {
		case <-v.stopChan:
			return
		case sp, ok := <-v.workChan:
			if !ok {
				return
			}
			v.computeChunk(sp.start, sp.end, sc)
			v.doneChan <- struct{}{}
		}
	}
}

// Close stops the worker pool. Safe on a pool that never started.
func (v *Vector) Close() error {
	if !v.running {
		return nil
	}
	close(v.stopChan)
	v.wg.Wait()
	close(v.workChan)
	close(v.doneChan)
	v.running = false
	return nil
}

// computeChunk runs sense, forward, decide, integrate for a range of
// entities, writing only to per-entity slots.
func (v *Vector) computeChunk(start, end int, sc *scratch) {
	b, env := v.batch, v.env
	for i := start; i < end; i++ {
		if !b.Alive[i] {
			carryEntity(b, i)
			continue
		}
		senseEntity(b, env, v.grid, sc, i)
		w1, b1, w2, b2 := b.brain(i)
		forwardBLAS(w1, b1, w2, b2, b.senseSlot(i), sc.hidden, b.actSlot(i))
		decideEntity(b, env, i, b.actSlot(i))
		integrateEntity(b, env, i)
	}
}

// forwardBLAS computes the same two-layer pass as the scalar path using
// level-2 BLAS kernels. Accumulation order may differ from the scalar
// loop, which is why backend equivalence is statistical, not bit-exact.
func forwardBLAS(w1, b1, w2, b2, inputs, hidden, outputs []float32) {
	in := len(inputs)
	h := len(hidden)
	out := len(outputs)

	copy(hidden, b1)
	blas32.Gemv(blas.NoTrans, 1,
		blas32.General{Rows: h, Cols: in, Stride: in, Data: w1},
		blas32.Vector{N: in, Inc: 1, Data: inputs},
		1, blas32.Vector{N: h, Inc: 1, Data: hidden})
	for i := range hidden {
		if hidden[i] < 0 {
			hidden[i] = 0
		}
	}

	copy(outputs, b2)
	blas32.Gemv(blas.NoTrans, 1,
		blas32.General{Rows: out, Cols: h, Stride: h, Data: w2},
		blas32.Vector{N: h, Inc: 1, Data: hidden},
		1, blas32.Vector{N: out, Inc: 1, Data: outputs})
	for i := range outputs {
		outputs[i] = neural.Sigmoid(outputs[i])
	}
}
