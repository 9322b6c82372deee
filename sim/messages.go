// Package sim orchestrates the simulation: a controller owns the merged
// entity registry and a pool of tile workers, each ticking its own slice
// of the world. All cross-boundary communication is asynchronous message
// passing of immutable snapshots; workers never share memory with the
// controller or each other.
package sim

import (
	"time"

	"github.com/jessehattabaugh/world/compute"
	"github.com/jessehattabaugh/world/lifeform"
	"github.com/jessehattabaugh/world/tile"
)

// controlAction selects the run-state change a controlCmd carries.
type controlAction uint8

const (
	actionStart controlAction = iota
	actionStop
	actionReset
)

// command is a controller-to-worker message. Delivery is at-most-once:
// the controller never blocks on a full mailbox, it drops and logs.
type command interface{ isCommand() }

// initCmd seeds the worker before any tile work.
type initCmd struct {
	Seed  uint64
	Epoch uint64
}

// assignTileCmd transfers ownership of a tile, optionally with entities
// parked from a previous owner. The worker acknowledges with tileReady;
// the tile accepts spawns only after that.
type assignTileCmd struct {
	Tile     tile.Tile
	Entities []lifeform.Record
}

// unassignTileCmd revokes a tile. The worker releases the tile's food
// region and returns its entities in a tileReleasedEvent.
type unassignTileCmd struct {
	TileID int
}

// spawnEntityCmd inserts one lifeform into an owned, acknowledged tile.
type spawnEntityCmd struct {
	TileID int
	Rec    lifeform.Record
}

// spawnFoodCmd places a food item, subject to the spacing rule.
type spawnFoodCmd struct {
	X, Y float32
}

// injectCmd re-homes an entity that crossed a tile boundary. Takes effect
// at the worker's next tick boundary, never mid-tick.
type injectCmd struct {
	Rec lifeform.Record
}

// debitCmd charges reproduction costs against a worker-owned parent.
type debitCmd struct {
	ID     uint64
	Amount float32
}

// controlCmd switches the worker's run state. Reset carries the new epoch
// so stale events from before the reset can be told apart.
type controlCmd struct {
	Action controlAction
	Epoch  uint64
}

// stepCmd runs the given number of ticks immediately, regardless of the
// run state.
type stepCmd struct {
	Ticks int
}

func (initCmd) isCommand()         {}
func (assignTileCmd) isCommand()   {}
func (unassignTileCmd) isCommand() {}
func (spawnEntityCmd) isCommand()  {}
func (spawnFoodCmd) isCommand()    {}
func (injectCmd) isCommand()       {}
func (debitCmd) isCommand()        {}
func (controlCmd) isCommand()      {}
func (stepCmd) isCommand()         {}

// mailboxSize bounds each worker's command channel. Sends beyond it are
// dropped; the protocol tolerates loss.
const mailboxSize = 256

// eventHeader identifies the sending worker and the epoch its state
// belongs to. The controller drops events from before the latest reset.
type eventHeader struct {
	WorkerID int
	Epoch    uint64
}

func (h eventHeader) header() eventHeader { return h }

// workerEvent is a worker-to-controller message.
type workerEvent interface{ header() eventHeader }

// tileReadyEvent acknowledges a tile assignment.
type tileReadyEvent struct {
	eventHeader
	TileID int
}

// tileUpdateEvent publishes one tile's entity snapshot for one tick.
// Records omit brain weights; those travel only on ownership transfer.
type tileUpdateEvent struct {
	eventHeader
	TileID   int
	Tick     uint64
	Entities []lifeform.Record
}

// tileReleasedEvent returns a tile's entities after an unassign.
type tileReleasedEvent struct {
	eventHeader
	TileID   int
	Entities []lifeform.Record
}

// departedEvent carries entities that left the worker's tiles this tick.
// The controller re-homes them, so ownership transfer lands at the next
// tick boundary of the receiving worker.
type departedEvent struct {
	eventHeader
	Entities []lifeform.Record
}

// spawnedEvent reports a birth the worker resolved locally.
type spawnedEvent struct {
	eventHeader
	Rec      lifeform.Record
	ParentID uint64
	Tick     uint64
}

// diedEvent reports a death.
type diedEvent struct {
	eventHeader
	ID      uint64
	Species lifeform.Species
	Cause   compute.DeathCause
	Tick    uint64
}

// workerStatusEvent reports liveness, food churn, and timing for one tick.
// Degraded marks a tick that panicked or a backend failure; the worker
// keeps running and the controller decides whether to reassign its tiles.
type workerStatusEvent struct {
	eventHeader
	Tick         uint64
	EntityCount  int
	FoodCount    int
	FoodConsumed int
	FoodSpawned  int
	Duration     time.Duration
	Backend      string
	Degraded     bool
	Err          string
}
