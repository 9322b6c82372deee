package sim

import (
	"math/rand"
	"testing"
	"time"

	"github.com/jessehattabaugh/world/compute"
	"github.com/jessehattabaugh/world/lifeform"
	"github.com/jessehattabaugh/world/neural"
	"github.com/jessehattabaugh/world/tile"
)

type panicBackend struct{}

func (panicBackend) Name() string { return "panic" }

func (panicBackend) Step(*compute.Batch, *compute.Env, []compute.Event) ([]compute.Event, error) {
	panic("injected fault")
}

// testRecord builds a lifeform record with valid brain weights.
func testRecord(t *testing.T, id uint64, hidden int, x, y float32) lifeform.Record {
	t.Helper()
	net, err := neural.New(rand.New(rand.NewSource(int64(id))), neural.NumInputs, hidden, neural.NumOutputs)
	if err != nil {
		t.Fatalf("neural.New() error = %v", err)
	}
	return lifeform.Record{
		ID:        id,
		Species:   lifeform.Herbivore,
		X:         x,
		Y:         y,
		Energy:    60,
		MaxEnergy: 120,
		MaxAge:    180,
		Size:      6,
		Brain:     net.Weights(),
	}
}

func TestWorkerSurvivesTickPanic(t *testing.T) {
	cfg := testConfig(t)
	grid := tile.NewGrid(cfg.Derived.WorldW32, cfg.Derived.WorldH32, float32(cfg.Tiles.Size))
	events := make(chan workerEvent, 64)

	w := newWorker(0, cfg, grid, 1, events, 0, discardLogger())
	w.backend = panicBackend{}
	go w.run()
	defer close(w.commands)

	w.commands <- initCmd{Seed: 1}
	w.commands <- assignTileCmd{Tile: grid.Tile(0)}
	w.commands <- stepCmd{Ticks: 1}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			st, ok := ev.(workerStatusEvent)
			if !ok {
				continue
			}
			if !st.Degraded {
				t.Errorf("Degraded = false, want true")
			}
			if st.Err == "" {
				t.Errorf("Err = %q, want panic message", st.Err)
			}
			return
		case <-deadline:
			t.Fatal("no status event after panicking tick")
		}
	}
}

func TestWorkerHandsOffDepartures(t *testing.T) {
	cfg := testConfig(t)
	grid := tile.NewGrid(cfg.Derived.WorldW32, cfg.Derived.WorldH32, float32(cfg.Tiles.Size))
	events := make(chan workerEvent, 64)

	w := newWorker(0, cfg, grid, 1, events, 0, discardLogger())
	go w.run()
	defer close(w.commands)

	// The worker owns tile 0 only; the entity sits on a foreign tile.
	rec := testRecord(t, 7, cfg.Neural.NumHidden, 300, 100)
	w.commands <- initCmd{Seed: 1}
	w.commands <- assignTileCmd{Tile: grid.Tile(0)}
	w.commands <- spawnEntityCmd{TileID: 0, Rec: rec}
	w.commands <- stepCmd{Ticks: 1}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			dep, ok := ev.(departedEvent)
			if !ok {
				continue
			}
			if len(dep.Entities) != 1 {
				t.Fatalf("departed %d entities, want 1", len(dep.Entities))
			}
			got := dep.Entities[0]
			if got.ID != rec.ID {
				t.Errorf("departed ID = %d, want %d", got.ID, rec.ID)
			}
			if len(got.Brain.W1) == 0 {
				t.Errorf("departed record has no brain weights; ownership transfer must carry them")
			}
			return
		case <-deadline:
			t.Fatal("no departure event")
		}
	}
}

func TestWorkerRejectsSpawnForUnownedTile(t *testing.T) {
	cfg := testConfig(t)
	grid := tile.NewGrid(cfg.Derived.WorldW32, cfg.Derived.WorldH32, float32(cfg.Tiles.Size))
	events := make(chan workerEvent, 64)

	w := newWorker(0, cfg, grid, 1, events, 0, discardLogger())
	go w.run()
	defer close(w.commands)

	w.commands <- initCmd{Seed: 1}
	w.commands <- assignTileCmd{Tile: grid.Tile(0)}
	// Tile 1 was never assigned, so this spawn must be dropped.
	w.commands <- spawnEntityCmd{TileID: 1, Rec: testRecord(t, 9, cfg.Neural.NumHidden, 300, 100)}
	w.commands <- stepCmd{Ticks: 1}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			st, ok := ev.(workerStatusEvent)
			if !ok {
				continue
			}
			if st.EntityCount != 0 {
				t.Errorf("EntityCount = %d, want 0 after spawn for unowned tile", st.EntityCount)
			}
			return
		case <-deadline:
			t.Fatal("no status event")
		}
	}
}

func TestWorkerTileReadyBeforeUpdates(t *testing.T) {
	cfg := testConfig(t)
	grid := tile.NewGrid(cfg.Derived.WorldW32, cfg.Derived.WorldH32, float32(cfg.Tiles.Size))
	events := make(chan workerEvent, 64)

	w := newWorker(0, cfg, grid, 1, events, 0, discardLogger())
	go w.run()
	defer close(w.commands)

	w.commands <- initCmd{Seed: 1}
	w.commands <- assignTileCmd{Tile: grid.Tile(0), Entities: []lifeform.Record{
		testRecord(t, 3, cfg.Neural.NumHidden, 50, 50),
	}}
	w.commands <- stepCmd{Ticks: 1}

	sawReady := false
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			switch e := ev.(type) {
			case tileReadyEvent:
				if e.TileID != 0 {
					t.Errorf("tileReady for tile %d, want 0", e.TileID)
				}
				sawReady = true
			case tileUpdateEvent:
				if !sawReady {
					t.Fatal("tile update arrived before the tile was acknowledged ready")
				}
				if e.TileID != 0 {
					continue
				}
				if len(e.Entities) != 1 {
					t.Errorf("tile 0 update has %d entities, want 1", len(e.Entities))
				}
				return
			}
		case <-deadline:
			t.Fatal("no tile update")
		}
	}
}

func TestWorkerResetKeepsTiles(t *testing.T) {
	cfg := testConfig(t)
	grid := tile.NewGrid(cfg.Derived.WorldW32, cfg.Derived.WorldH32, float32(cfg.Tiles.Size))
	events := make(chan workerEvent, 128)

	w := newWorker(0, cfg, grid, 1, events, 0, discardLogger())
	go w.run()
	defer close(w.commands)

	w.commands <- initCmd{Seed: 1}
	w.commands <- assignTileCmd{Tile: grid.Tile(0)}
	w.commands <- spawnEntityCmd{TileID: 0, Rec: testRecord(t, 11, cfg.Neural.NumHidden, 50, 50)}
	w.commands <- controlCmd{Action: actionReset, Epoch: 1}
	w.commands <- stepCmd{Ticks: 1}

	var sawStatus, sawUpdate bool
	deadline := time.After(5 * time.Second)
	for !sawStatus || !sawUpdate {
		select {
		case ev := <-events:
			if ev.header().Epoch != 1 {
				continue
			}
			switch e := ev.(type) {
			case workerStatusEvent:
				if e.EntityCount != 0 {
					t.Errorf("EntityCount after reset = %d, want 0", e.EntityCount)
				}
				if e.Tick != 1 {
					t.Errorf("Tick after reset and one step = %d, want 1", e.Tick)
				}
				sawStatus = true
			case tileUpdateEvent:
				// The tile assignment survived the reset, now empty.
				if e.TileID != 0 {
					t.Errorf("post-reset update for tile %d, want 0", e.TileID)
				}
				if len(e.Entities) != 0 {
					t.Errorf("post-reset tile holds %d entities, want 0", len(e.Entities))
				}
				sawUpdate = true
			}
		case <-deadline:
			t.Fatal("missing post-reset status or tile update")
		}
	}
}
