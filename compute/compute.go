// Package compute implements the two interchangeable backends that
// advance a batch of lifeforms by one tick: a sequential reference loop
// and an accelerated parallel implementation. Both run identical math;
// only float accumulation order differs, so results are statistically
// equivalent rather than bit-exact.
package compute

import (
	"errors"

	"github.com/jessehattabaugh/world/resource"
)

// ErrUnavailable reports that the accelerated backend cannot run on this
// machine. Callers recover by falling back to the sequential backend.
var ErrUnavailable = errors.New("accelerated backend unavailable")

// Env carries the per-tick parameters and the frozen food snapshot.
// Backends treat it as read-only.
type Env struct {
	Tick uint64
	Seed uint64
	DT   float32

	WorldW, WorldH float32
	GridCellSize   float32

	Friction      float32 // per-tick velocity multiplier
	BounceDamping float32 // velocity multiplier on boundary reflection
	BaseCost      float32 // energy drain per second
	MoveCost      float32 // energy drain per unit distance, times metabolism
	GainCap       float32 // max energy a predator gains from one kill
	MaturityAge   float32 // min age before reproduction

	Resources []resource.Resource
}

// Backend advances a batch by one tick. Step mutates the batch in place
// and appends lifecycle events for the caller to apply; backends own no
// identity or registry decisions.
type Backend interface {
	Name() string
	Step(b *Batch, env *Env, events []Event) ([]Event, error)
}
