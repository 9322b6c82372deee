package sim

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/mlange-42/ark/ecs"

	"github.com/jessehattabaugh/world/compute"
	"github.com/jessehattabaugh/world/config"
	"github.com/jessehattabaugh/world/genome"
	"github.com/jessehattabaugh/world/lifeform"
	"github.com/jessehattabaugh/world/neural"
	"github.com/jessehattabaugh/world/resource"
	"github.com/jessehattabaugh/world/tile"
)

// fallbackOnce guards the one-time notice when the accelerated backend is
// unavailable and workers downgrade to the sequential path.
var fallbackOnce sync.Once

// newBackend picks the compute backend for one worker. Capability failures
// recover locally; the simulation continues on the fallback, only slower.
func newBackend(cfg *config.Config, log *slog.Logger) compute.Backend {
	if cfg.Backend.Accelerated {
		v, err := compute.NewVector(cfg.Backend.Threshold)
		if err == nil {
			return v
		}
		if errors.Is(err, compute.ErrUnavailable) {
			fallbackOnce.Do(func() {
				log.Warn("accelerated backend unavailable, using sequential", "err", err)
			})
		}
	}
	return compute.NewSequential(cfg.Neural.NumHidden)
}

// worker owns a private entity cache for its assigned tiles, a per-tile
// food region set, and its own compute backend. It is internally
// single-threaded: all state is touched only from its run goroutine, and
// it communicates with the controller exclusively through messages.
type worker struct {
	id  int
	cfg *config.Config
	log *slog.Logger

	grid     *tile.Grid
	commands chan command
	events   chan<- workerEvent

	world  *ecs.World
	mapper *ecs.Map5[lifeform.Position, lifeform.Velocity, lifeform.Body, lifeform.Energy, lifeform.Meta]
	filter *ecs.Filter5[lifeform.Position, lifeform.Velocity, lifeform.Body, lifeform.Energy, lifeform.Meta]

	posMap    *ecs.Map1[lifeform.Position]
	velMap    *ecs.Map1[lifeform.Velocity]
	energyMap *ecs.Map1[lifeform.Energy]

	entities map[uint64]ecs.Entity
	brains   map[uint64]*neural.Network
	tiles    map[int]tile.Tile

	resources *resource.Manager
	backend   compute.Backend
	batch     *compute.Batch
	batchEnts []ecs.Entity
	env       compute.Env
	resBuf    []resource.Resource
	evBuf     []compute.Event

	rng       *rand.Rand
	seed      uint64
	epoch     uint64
	tickCount uint64
	running   bool
	interval  time.Duration
	childSeq  uint64
}

// newWorker builds a worker and its private world. The caller starts the
// run loop; the controller must send initCmd before any tile work.
func newWorker(id int, cfg *config.Config, grid *tile.Grid, seed uint64, events chan<- workerEvent, interval time.Duration, log *slog.Logger) *worker {
	world := ecs.NewWorld()

	w := &worker{
		id:       id,
		cfg:      cfg,
		log:      log.With("worker", id),
		grid:     grid,
		// Room for a whole-world tile assignment plus regular traffic, so
		// startup and viewport reloads never overflow the mailbox.
		commands: make(chan command, grid.Len()+mailboxSize),
		events:   events,
		world:    world,
		mapper: ecs.NewMap5[
			lifeform.Position,
			lifeform.Velocity,
			lifeform.Body,
			lifeform.Energy,
			lifeform.Meta,
		](world),
		filter: ecs.NewFilter5[
			lifeform.Position,
			lifeform.Velocity,
			lifeform.Body,
			lifeform.Energy,
			lifeform.Meta,
		](world),
		posMap:    ecs.NewMap1[lifeform.Position](world),
		velMap:    ecs.NewMap1[lifeform.Velocity](world),
		energyMap: ecs.NewMap1[lifeform.Energy](world),
		entities:  make(map[uint64]ecs.Entity),
		brains:    make(map[uint64]*neural.Network),
		tiles:     make(map[int]tile.Tile),
		backend:   newBackend(cfg, log),
		batch:     compute.NewBatch(cfg.Neural.NumHidden),
		rng:       rand.New(rand.NewSource(int64(seed) ^ int64(id+1)*0x9e3779b9)),
		seed:      seed,
		interval:  interval,
	}

	w.resources = resource.NewManager(resource.Params{
		EnergyValue: float32(cfg.Resource.EnergyValue),
		MinSpacing:  float32(cfg.Resource.MinSpacing),
		RegenRate:   cfg.Resource.RegenRate,
		MaxPerTile:  cfg.Resource.MaxPerTile,
		NoiseScale:  cfg.Resource.NoiseScale,
	}, int64(seed))

	w.env = compute.Env{
		Seed:          seed,
		DT:            cfg.Derived.DT32,
		WorldW:        cfg.Derived.WorldW32,
		WorldH:        cfg.Derived.WorldH32,
		GridCellSize:  float32(cfg.Physics.GridCellSize),
		Friction:      float32(cfg.Physics.Friction),
		BounceDamping: float32(cfg.Physics.BounceDamping),
		BaseCost:      float32(cfg.Energy.BaseCost),
		MoveCost:      float32(cfg.Energy.MoveCost),
		GainCap:       float32(cfg.Reproduction.GainCap),
		MaturityAge:   float32(cfg.Reproduction.MaturityAge),
	}

	return w
}

// run is the worker's single goroutine. It ticks on its own schedule when
// running and otherwise sleeps on its mailbox. Exits when the command
// channel closes.
func (w *worker) run() {
	interval := w.interval
	if interval <= 0 {
		interval = time.Second / 60
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer w.shutdown()

	for {
		var tickC <-chan time.Time
		if w.running {
			tickC = ticker.C
		}
		select {
		case cmd, ok := <-w.commands:
			if !ok {
				return
			}
			w.handle(cmd)
		case <-tickC:
			w.tick()
		}
	}
}

func (w *worker) shutdown() {
	if c, ok := w.backend.(io.Closer); ok {
		c.Close()
	}
}

func (w *worker) hdr() eventHeader {
	return eventHeader{WorkerID: w.id, Epoch: w.epoch}
}

func (w *worker) send(ev workerEvent) {
	w.events <- ev
}

func (w *worker) handle(cmd command) {
	switch c := cmd.(type) {
	case initCmd:
		w.seed = c.Seed
		w.epoch = c.Epoch
		w.env.Seed = c.Seed
		w.rng = rand.New(rand.NewSource(int64(c.Seed) ^ int64(w.id+1)*0x9e3779b9))

	case assignTileCmd:
		w.tiles[c.Tile.ID] = c.Tile
		w.resources.AddRegion(c.Tile.ID, c.Tile.Bounds)
		for _, rec := range c.Entities {
			w.insertRecord(rec, nil)
		}
		w.send(tileReadyEvent{eventHeader: w.hdr(), TileID: c.Tile.ID})

	case unassignTileCmd:
		if _, ok := w.tiles[c.TileID]; !ok {
			return
		}
		recs := w.evictTile(c.TileID)
		w.resources.RemoveRegion(c.TileID)
		delete(w.tiles, c.TileID)
		w.send(tileReleasedEvent{eventHeader: w.hdr(), TileID: c.TileID, Entities: recs})

	case spawnEntityCmd:
		if _, ok := w.tiles[c.TileID]; !ok {
			w.log.Warn("spawn for unowned tile dropped", "tile", c.TileID, "id", c.Rec.ID)
			return
		}
		w.insertRecord(c.Rec, nil)

	case spawnFoodCmd:
		w.resources.Spawn(c.X, c.Y, w.tickCount)

	case injectCmd:
		w.insertRecord(c.Rec, nil)

	case debitCmd:
		if e, ok := w.entities[c.ID]; ok {
			if en := w.energyMap.Get(e); en != nil {
				en.Value -= c.Amount
				if en.Value < 0 {
					en.Value = 0
				}
			}
		}

	case controlCmd:
		switch c.Action {
		case actionStart:
			w.running = true
		case actionStop:
			w.running = false
		case actionReset:
			w.reset(c.Epoch)
		}

	case stepCmd:
		for i := 0; i < c.Ticks; i++ {
			w.tick()
		}
	}
}

// reset clears all simulation state but keeps tile assignments and their
// food regions, so the topology survives across runs.
func (w *worker) reset(epoch uint64) {
	for _, e := range w.entities {
		w.mapper.Remove(e)
	}
	w.entities = make(map[uint64]ecs.Entity)
	w.brains = make(map[uint64]*neural.Network)
	w.resources.Reset()
	w.tickCount = 0
	w.running = false
	w.epoch = epoch
}

// tick advances the worker one step and reports status. A panicking tick
// degrades the worker for that step instead of killing it.
func (w *worker) tick() {
	start := time.Now()

	var consumed, regrown int
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("tick panic: %v", r)
			}
		}()
		consumed, regrown, err = w.runTick()
		return err
	}()

	status := workerStatusEvent{
		eventHeader:  w.hdr(),
		Tick:         w.tickCount,
		EntityCount:  len(w.entities),
		FoodCount:    w.resources.Count(),
		FoodConsumed: consumed,
		FoodSpawned:  regrown,
		Duration:     time.Since(start),
		Backend:      w.backend.Name(),
	}
	if err != nil {
		status.Degraded = true
		status.Err = err.Error()
		w.log.Error("tick failed", "tick", w.tickCount, "err", err)
	}
	w.send(status)
}

// runTick is the tick pipeline: regenerate food, stage the batch, run the
// backend, write results back, resolve lifecycle events, hand off
// departures, and publish per-tile snapshots.
func (w *worker) runTick() (consumed, regrown int, err error) {
	regrown = w.resources.Update(w.rng, w.env.DT, w.tickCount)

	w.stageBatch()

	w.env.Tick = w.tickCount
	w.env.Seed = w.seed
	w.resBuf = w.resources.Snapshot(w.resBuf[:0])
	w.env.Resources = w.resBuf

	w.evBuf, err = w.backend.Step(w.batch, &w.env, w.evBuf[:0])
	if err != nil {
		return consumed, regrown, err
	}

	w.applyBatch()
	consumed = w.applyEvents(w.evBuf)
	w.handleDepartures()

	w.tickCount++
	w.publishTiles()
	return consumed, regrown, nil
}

// stageBatch flattens the live entity cache into the compute batch.
func (w *worker) stageBatch() {
	w.batch.Reset()
	w.batchEnts = w.batchEnts[:0]

	query := w.filter.Query()
	for query.Next() {
		entity := query.Entity()
		pos, vel, body, en, meta := query.Get()

		if !en.Alive {
			continue
		}
		brain, ok := w.brains[meta.ID]
		if !ok {
			continue
		}

		w.batch.Append(compute.Item{
			ID:        meta.ID,
			Species:   meta.Species,
			X:         pos.X,
			Y:         pos.Y,
			VX:        vel.X,
			VY:        vel.Y,
			Energy:    en.Value,
			MaxEnergy: en.Max,
			Age:       en.Age,
			MaxAge:    en.MaxAge,
			Size:      body.Size,
			Genome:    meta.Genome,
			Brain:     brain,
		})
		w.batchEnts = append(w.batchEnts, entity)
	}
}

// applyBatch writes post-tick batch state back into the entity cache.
func (w *worker) applyBatch() {
	b := w.batch
	for i, e := range w.batchEnts {
		pos := w.posMap.Get(e)
		vel := w.velMap.Get(e)
		en := w.energyMap.Get(e)
		if pos == nil || vel == nil || en == nil {
			continue
		}
		pos.X, pos.Y = b.X[i], b.Y[i]
		vel.X, vel.Y = b.VX[i], b.VY[i]
		en.Value = b.Energy[i]
		en.Age = b.Age[i]
		en.Alive = b.Alive[i]
	}
}

// applyEvents resolves the lifecycle events the backend reported. Returns
// the number of food items actually consumed.
func (w *worker) applyEvents(events []compute.Event) int {
	consumed := 0
	for _, ev := range events {
		switch ev.Kind {
		case compute.EventConsumed:
			// The batch already credited the eater from the snapshot;
			// TryConsume is idempotent, so a racing unload is harmless.
			if _, ok := w.resources.TryConsume(ev.ResourceID); ok {
				consumed++
			}
		case compute.EventDied:
			w.removeDead(ev.Index, ev.Cause)
		case compute.EventBirth:
			w.spawnChild(ev.Index, ev.Target)
		}
	}
	return consumed
}

func (w *worker) removeDead(idx int, cause compute.DeathCause) {
	id := w.batch.IDs[idx]
	e, ok := w.entities[id]
	if !ok {
		return
	}
	w.mapper.Remove(e)
	delete(w.entities, id)
	delete(w.brains, id)
	w.send(diedEvent{
		eventHeader: w.hdr(),
		ID:          id,
		Species:     w.batch.Species[idx],
		Cause:       cause,
		Tick:        w.tickCount,
	})
}

// spawnChild resolves a birth the backend requested. With a mate still
// present, the child is a crossover of both parents spawned at their
// midpoint and both pay the flat parental cost; otherwise the birth is
// asexual, a mutated copy at a small random offset. Energy transfers
// from the initiating parent either way.
func (w *worker) spawnChild(parentIdx, mateIdx int) {
	b := w.batch
	pid := b.IDs[parentIdx]
	parentEnt, ok := w.entities[pid]
	if !ok {
		return
	}
	parentBrain, ok := w.brains[pid]
	if !ok {
		return
	}
	en := w.energyMap.Get(parentEnt)
	pos := w.posMap.Get(parentEnt)
	if en == nil || pos == nil || !en.Alive {
		return
	}

	transfer := en.Value * float32(w.cfg.Reproduction.ChildEnergyFrac)
	if transfer <= 0 {
		return
	}
	en.Value -= transfer + float32(w.cfg.Reproduction.ParentCost)
	if en.Value < 0 {
		en.Value = 0
	}

	childGenome := b.Genomes[parentIdx]
	childBrain := parentBrain.Clone()
	off := float32(w.cfg.Reproduction.SpawnOffset)
	cx := pos.X + (w.rng.Float32()*2-1)*off
	cy := pos.Y + (w.rng.Float32()*2-1)*off

	if mateIdx >= 0 && mateIdx < b.N {
		mateID := b.IDs[mateIdx]
		mateBrain, haveBrain := w.brains[mateID]
		mateEnt, haveEnt := w.entities[mateID]
		if haveBrain && haveEnt {
			if crossed, err := neural.Crossover(w.rng, parentBrain, mateBrain); err == nil {
				childBrain = crossed
				childGenome = genome.Crossover(w.rng, childGenome, b.Genomes[mateIdx])
				cx = (pos.X + b.X[mateIdx]) / 2
				cy = (pos.Y + b.Y[mateIdx]) / 2
				if mateEn := w.energyMap.Get(mateEnt); mateEn != nil && mateEn.Alive {
					mateEn.Value -= float32(w.cfg.Reproduction.ParentCost)
					if mateEn.Value < 0 {
						mateEn.Value = 0
					}
				}
			}
		}
	}

	childGenome = genome.Mutate(w.rng, childGenome, childGenome[genome.TraitMutationRate], float32(w.cfg.Mutation.TraitMaxDelta))
	childBrain.Mutate(w.rng, float32(w.cfg.Mutation.NetworkRate), float32(w.cfg.Mutation.NetworkSigma))

	cx = clampCoord(cx, w.env.WorldW)
	cy = clampCoord(cy, w.env.WorldH)

	sp := w.cfg.Species.ByIndex(int(b.Species[parentIdx]))
	rec := lifeform.Record{
		ID:        w.nextChildID(),
		Species:   b.Species[parentIdx],
		X:         cx,
		Y:         cy,
		Energy:    min(transfer, float32(sp.MaxEnergy)),
		MaxEnergy: float32(sp.MaxEnergy),
		MaxAge:    float32(sp.MaxAge),
		Size:      float32(sp.Size),
		Genome:    childGenome,
		Brain:     childBrain.Weights(),
	}
	if !w.insertRecord(rec, childBrain) {
		return
	}
	w.send(spawnedEvent{eventHeader: w.hdr(), Rec: rec, ParentID: pid, Tick: w.tickCount})
}

// nextChildID allocates an id in this worker's namespace so worker-born
// children never collide with controller-assigned ids.
func (w *worker) nextChildID() uint64 {
	w.childSeq++
	return uint64(w.id+1)<<48 | w.childSeq
}

// handleDepartures removes entities that moved off the worker's tiles and
// ships them to the controller for re-homing at the next tick boundary.
func (w *worker) handleDepartures() {
	var departed []lifeform.Record
	var leaving []uint64

	query := w.filter.Query()
	for query.Next() {
		pos, vel, body, en, meta := query.Get()
		tid := w.grid.TileFor(pos.X, pos.Y)
		if _, owned := w.tiles[tid]; owned {
			continue
		}
		departed = append(departed, makeRecord(pos, vel, body, en, meta, w.brains[meta.ID]))
		leaving = append(leaving, meta.ID)
	}

	for _, id := range leaving {
		if e, ok := w.entities[id]; ok {
			w.mapper.Remove(e)
			delete(w.entities, id)
			delete(w.brains, id)
		}
	}

	if len(departed) > 0 {
		w.send(departedEvent{eventHeader: w.hdr(), Entities: departed})
	}
}

// publishTiles sends one snapshot per owned tile. Snapshots omit brain
// weights; the registry keeps the copy it got when the entity was born.
func (w *worker) publishTiles() {
	if len(w.tiles) == 0 {
		return
	}

	byTile := make(map[int][]lifeform.Record, len(w.tiles))
	query := w.filter.Query()
	for query.Next() {
		pos, vel, body, en, meta := query.Get()
		tid := w.grid.TileFor(pos.X, pos.Y)
		if _, owned := w.tiles[tid]; !owned {
			continue
		}
		byTile[tid] = append(byTile[tid], makeRecord(pos, vel, body, en, meta, nil))
	}

	for tid := range w.tiles {
		w.send(tileUpdateEvent{
			eventHeader: w.hdr(),
			TileID:      tid,
			Tick:        w.tickCount,
			Entities:    byTile[tid],
		})
	}
}

// evictTile removes and returns all entities on the given tile, brains
// included, for transfer to the next owner.
func (w *worker) evictTile(tileID int) []lifeform.Record {
	var recs []lifeform.Record
	var leaving []uint64

	query := w.filter.Query()
	for query.Next() {
		pos, vel, body, en, meta := query.Get()
		if w.grid.TileFor(pos.X, pos.Y) != tileID {
			continue
		}
		recs = append(recs, makeRecord(pos, vel, body, en, meta, w.brains[meta.ID]))
		leaving = append(leaving, meta.ID)
	}

	for _, id := range leaving {
		if e, ok := w.entities[id]; ok {
			w.mapper.Remove(e)
			delete(w.entities, id)
			delete(w.brains, id)
		}
	}
	return recs
}

// insertRecord adds one lifeform to the cache. When brain is nil the
// record's weights are validated and unpacked; a malformed record is
// rejected, never truncated.
func (w *worker) insertRecord(rec lifeform.Record, brain *neural.Network) bool {
	if _, exists := w.entities[rec.ID]; exists {
		return false
	}
	if brain == nil {
		var err error
		brain, err = neural.FromWeights(neural.NumInputs, w.cfg.Neural.NumHidden, neural.NumOutputs, rec.Brain)
		if err != nil {
			w.log.Error("rejecting lifeform with malformed brain", "id", rec.ID, "err", err)
			return false
		}
	}

	pos := lifeform.Position{X: rec.X, Y: rec.Y}
	vel := lifeform.Velocity{X: rec.VX, Y: rec.VY}
	body := lifeform.Body{Size: rec.Size}
	en := lifeform.Energy{Value: rec.Energy, Max: rec.MaxEnergy, Age: rec.Age, MaxAge: rec.MaxAge, Alive: true}
	meta := lifeform.Meta{ID: rec.ID, Species: rec.Species, Genome: rec.Genome}

	entity := w.mapper.NewEntity(&pos, &vel, &body, &en, &meta)
	w.entities[rec.ID] = entity
	w.brains[rec.ID] = brain
	return true
}

// makeRecord snapshots one entity into its wire form. A nil brain leaves
// the weight copy empty.
func makeRecord(pos *lifeform.Position, vel *lifeform.Velocity, body *lifeform.Body, en *lifeform.Energy, meta *lifeform.Meta, brain *neural.Network) lifeform.Record {
	rec := lifeform.Record{
		ID:        meta.ID,
		Species:   meta.Species,
		X:         pos.X,
		Y:         pos.Y,
		VX:        vel.X,
		VY:        vel.Y,
		Energy:    en.Value,
		MaxEnergy: en.Max,
		Age:       en.Age,
		MaxAge:    en.MaxAge,
		Size:      body.Size,
		Genome:    meta.Genome,
	}
	if brain != nil {
		rec.Brain = brain.Weights()
	}
	return rec
}

func clampCoord(v, limit float32) float32 {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}
