package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/jessehattabaugh/world/config"
	"github.com/jessehattabaugh/world/genome"
	"github.com/jessehattabaugh/world/lifeform"
	"github.com/jessehattabaugh/world/neural"
	"github.com/jessehattabaugh/world/telemetry"
	"github.com/jessehattabaugh/world/tile"
)

// Surfaced operation errors. Callers test them with errors.Is.
var (
	ErrUnknownLifeform = errors.New("sim: unknown lifeform id")
	ErrSpeciesMismatch = errors.New("sim: cross-species reproduction")
	ErrInvalidSpecies  = errors.New("sim: invalid species")
	ErrOutOfBounds     = errors.New("sim: position outside world bounds")
	ErrTileNotReady    = errors.New("sim: tile not loaded")
)

// degradedStrikeLimit is how many consecutive failed ticks a worker gets
// before the controller reassigns its tiles.
const degradedStrikeLimit = 3

// NotificationKind tags a lifecycle notification.
type NotificationKind uint8

const (
	// Spawned reports a lifeform created through SpawnLifeform.
	Spawned NotificationKind = iota
	// Died reports a death, with its cause.
	Died
	// Reproduced reports a birth, with one parent (asexual) or two.
	Reproduced
)

// Notification is a lifecycle event published to the consumer.
type Notification struct {
	Kind    NotificationKind
	ID      uint64
	Parent1 uint64
	Parent2 uint64
	Species lifeform.Species
	Cause   string
	Tick    uint64
}

// Stats is the aggregated view published to consumers.
type Stats struct {
	Tick             uint64
	EntityCount      int
	FPS              float64
	FrameTime        time.Duration
	SpeciesBreakdown [lifeform.NumSpecies]int
	FoodCount        int
	FoodConsumed     uint64
	FoodSpawned      uint64
	Spawned          uint64
	Births           uint64
	Deaths           uint64
	Running          bool
	Workers          int
}

// SpawnOptions configures one SpawnLifeform call.
type SpawnOptions struct {
	Species lifeform.Species
	X, Y    float32
	Genome  *genome.Genome // nil draws a founder genome
	Energy  float32        // <=0 uses the species' initial energy
}

// Options configures a Controller.
type Options struct {
	Config       *config.Config
	Seed         int64
	TickInterval time.Duration // real time per tick when running; <=0 means 60/s
	Logger       *slog.Logger
	Viewport     *tile.Bounds // nil loads the whole world
}

// Controller owns the merged entity registry and the worker pool. Workers
// mutate only their private caches; every cross-boundary update flows
// through the controller's event loop, which is the registry's only
// writer. Public methods are safe for concurrent use and never block on a
// worker.
type Controller struct {
	cfg  *config.Config
	log  *slog.Logger
	grid *tile.Grid

	workers []*worker
	events  chan workerEvent
	notify  chan Notification

	mu       sync.Mutex
	closed   bool
	registry map[uint64]lifeform.Record
	counts   [lifeform.NumSpecies]int
	owner    map[int]int // tile id -> worker id
	ready    map[int]bool
	loads    []int
	strikes  []int
	excluded []bool
	parked   map[int][]lifeform.Record // entities of unloaded tiles
	pending  map[int][]lifeform.Record // spawns awaiting tileReady

	tick       uint64
	epoch      uint64
	running    bool
	nextID     uint64
	spawnCount uint64
	birthCount uint64
	deathCount uint64

	foodCounts   []int
	foodConsumed uint64
	foodSpawned  uint64

	rng   *rand.Rand
	timer *telemetry.FrameTimer

	done      chan struct{}
	workerWG  sync.WaitGroup
	loopWG    sync.WaitGroup
	closeOnce sync.Once
}

// NewController builds the tile grid, starts the worker pool, and assigns
// the initial tile set round-robin.
func NewController(opts Options) (*Controller, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("sim: nil config")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	grid := tile.NewGrid(cfg.Derived.WorldW32, cfg.Derived.WorldH32, float32(cfg.Tiles.Size))
	numWorkers := min(runtime.GOMAXPROCS(0), grid.Len())
	if numWorkers < 1 {
		numWorkers = 1
	}

	c := &Controller{
		cfg:        cfg,
		log:        log,
		grid:       grid,
		events:     make(chan workerEvent, 1024),
		notify:     make(chan Notification, 256),
		registry:   make(map[uint64]lifeform.Record),
		owner:      make(map[int]int),
		ready:      make(map[int]bool),
		loads:      make([]int, numWorkers),
		strikes:    make([]int, numWorkers),
		excluded:   make([]bool, numWorkers),
		parked:     make(map[int][]lifeform.Record),
		pending:    make(map[int][]lifeform.Record),
		foodCounts: make([]int, numWorkers),
		rng:        rand.New(rand.NewSource(opts.Seed)),
		timer:      telemetry.NewFrameTimer(cfg.Telemetry.PerfWindow),
		done:       make(chan struct{}),
	}

	seed := uint64(opts.Seed)
	for i := 0; i < numWorkers; i++ {
		w := newWorker(i, cfg, grid, seed, c.events, opts.TickInterval, log)
		c.workers = append(c.workers, w)
		c.workerWG.Add(1)
		go func() {
			defer c.workerWG.Done()
			w.run()
		}()
	}

	c.loopWG.Add(1)
	go func() {
		defer c.loopWG.Done()
		c.eventLoop()
	}()

	c.mu.Lock()
	for i := range c.workers {
		c.sendCmdLocked(i, initCmd{Seed: seed, Epoch: 0})
	}
	for i, tid := range c.wantedTiles(opts.Viewport) {
		c.assignTileLocked(tid, i%numWorkers, nil)
	}
	c.mu.Unlock()

	log.Info("simulation controller started",
		"workers", numWorkers,
		"tiles", grid.Len(),
		"world", fmt.Sprintf("%gx%g", cfg.World.Width, cfg.World.Height),
	)
	return c, nil
}

// wantedTiles returns the tile ids to load for a viewport, expanded by
// the configured buffer margin. A nil viewport loads every tile.
func (c *Controller) wantedTiles(vp *tile.Bounds) []int {
	if vp == nil {
		ids := make([]int, c.grid.Len())
		for i := range ids {
			ids[i] = i
		}
		return ids
	}
	margin := float32(c.cfg.Tiles.BufferTiles) * float32(c.cfg.Tiles.Size)
	return c.grid.Overlapping(tile.Bounds{
		MinX: vp.MinX - margin,
		MinY: vp.MinY - margin,
		MaxX: vp.MaxX + margin,
		MaxY: vp.MaxY + margin,
	}, nil)
}

func (c *Controller) assignTileLocked(tid, wid int, recs []lifeform.Record) {
	c.owner[tid] = wid
	c.ready[tid] = false
	c.loads[wid]++
	c.sendCmdLocked(wid, assignTileCmd{Tile: c.grid.Tile(tid), Entities: recs})
}

// sendCmdLocked delivers a command without blocking. A full mailbox drops
// the command; the protocol is at-most-once and tolerates loss.
func (c *Controller) sendCmdLocked(wid int, cmd command) {
	if c.closed {
		return
	}
	select {
	case c.workers[wid].commands <- cmd:
	default:
		c.log.Warn("worker mailbox full, dropping command", "worker", wid)
	}
}

func (c *Controller) eventLoop() {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.events:
			c.handleEvent(ev)
		}
	}
}

func (c *Controller) handleEvent(ev workerEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := ev.header()
	if h.Epoch != c.epoch {
		// Tile assignments outlive resets, so their acks always count.
		if _, ok := ev.(tileReadyEvent); !ok {
			return
		}
	}

	switch e := ev.(type) {
	case tileReadyEvent:
		if c.owner[e.TileID] != h.WorkerID {
			return
		}
		c.ready[e.TileID] = true
		for _, rec := range c.pending[e.TileID] {
			c.sendCmdLocked(h.WorkerID, spawnEntityCmd{TileID: e.TileID, Rec: rec})
		}
		delete(c.pending, e.TileID)

	case tileUpdateEvent:
		if c.owner[e.TileID] != h.WorkerID {
			return
		}
		if e.Tick > c.tick {
			c.tick = e.Tick
		}
		for _, rec := range e.Entities {
			c.mergeRecordLocked(rec)
		}

	case tileReleasedEvent:
		for _, rec := range e.Entities {
			c.mergeRecordLocked(rec)
			c.routeRecordLocked(rec)
		}

	case departedEvent:
		for _, rec := range e.Entities {
			c.mergeRecordLocked(rec)
			c.routeRecordLocked(rec)
		}

	case spawnedEvent:
		if _, dup := c.registry[e.Rec.ID]; !dup {
			c.registry[e.Rec.ID] = e.Rec
			c.counts[e.Rec.Species]++
			c.spawnCount++
			c.birthCount++
		}
		c.postLocked(Notification{
			Kind:    Reproduced,
			ID:      e.Rec.ID,
			Parent1: e.ParentID,
			Species: e.Rec.Species,
			Tick:    e.Tick,
		})

	case diedEvent:
		if _, ok := c.registry[e.ID]; ok {
			delete(c.registry, e.ID)
			c.counts[e.Species]--
			c.deathCount++
		}
		c.postLocked(Notification{
			Kind:    Died,
			ID:      e.ID,
			Species: e.Species,
			Cause:   e.Cause.String(),
			Tick:    e.Tick,
		})

	case workerStatusEvent:
		if e.Tick > c.tick {
			c.tick = e.Tick
		}
		c.timer.Record(e.Duration)
		c.foodCounts[h.WorkerID] = e.FoodCount
		c.foodConsumed += uint64(e.FoodConsumed)
		c.foodSpawned += uint64(e.FoodSpawned)

		if e.Degraded {
			c.strikes[h.WorkerID]++
			if c.strikes[h.WorkerID] >= degradedStrikeLimit && !c.excluded[h.WorkerID] {
				c.log.Warn("worker degraded, reassigning its tiles",
					"worker", h.WorkerID, "err", e.Err)
				c.excluded[h.WorkerID] = true
				c.reassignTilesLocked(h.WorkerID)
			}
		} else if c.strikes[h.WorkerID] > 0 {
			c.strikes[h.WorkerID] = 0
		}
	}
}

// mergeRecordLocked folds a snapshot into the registry. Snapshots without
// weights keep the brain copy already on record.
func (c *Controller) mergeRecordLocked(rec lifeform.Record) {
	old, ok := c.registry[rec.ID]
	if !ok {
		// First sighting; its birth notice was dropped or raced a reset.
		c.registry[rec.ID] = rec
		c.counts[rec.Species]++
		return
	}
	if len(rec.Brain.W1) == 0 {
		rec.Brain = old.Brain
	}
	c.registry[rec.ID] = rec
}

// routeRecordLocked hands an unhomed entity to its tile's owner, or parks
// it while the tile is unloaded. Workers deduplicate by id, so a racing
// double delivery is harmless.
func (c *Controller) routeRecordLocked(rec lifeform.Record) {
	tid := c.grid.TileFor(rec.X, rec.Y)
	wid, ok := c.owner[tid]
	switch {
	case ok && c.ready[tid]:
		c.sendCmdLocked(wid, injectCmd{Rec: rec})
	case ok:
		c.pending[tid] = append(c.pending[tid], rec)
	default:
		c.parked[tid] = append(c.parked[tid], rec)
	}
}

// reassignTilesLocked moves every tile off a degraded worker onto the
// least-loaded healthy ones, reseeding each tile from the registry view.
func (c *Controller) reassignTilesLocked(wid int) {
	for tid, owner := range c.owner {
		if owner != wid {
			continue
		}
		c.sendCmdLocked(wid, unassignTileCmd{TileID: tid})
		c.loads[wid]--

		next := c.leastLoadedLocked()
		if next < 0 {
			delete(c.owner, tid)
			delete(c.ready, tid)
			continue
		}
		c.assignTileLocked(tid, next, c.recordsInTileLocked(tid))
	}
}

func (c *Controller) leastLoadedLocked() int {
	best := -1
	for i := range c.workers {
		if c.excluded[i] {
			continue
		}
		if best < 0 || c.loads[i] < c.loads[best] {
			best = i
		}
	}
	return best
}

func (c *Controller) recordsInTileLocked(tid int) []lifeform.Record {
	var recs []lifeform.Record
	for _, rec := range c.registry {
		if c.grid.TileFor(rec.X, rec.Y) == tid {
			recs = append(recs, rec)
		}
	}
	return recs
}

// postLocked publishes a notification without blocking; with no consumer
// draining, notifications are dropped.
func (c *Controller) postLocked(n Notification) {
	select {
	case c.notify <- n:
	default:
	}
}

// Notifications returns the lifecycle notification stream. The channel
// closes on Close. Slow consumers miss notifications rather than stall
// the simulation.
func (c *Controller) Notifications() <-chan Notification {
	return c.notify
}

// SpawnLifeform creates a lifeform and routes it to the owner of its
// tile. The registry records it immediately; the worker picks it up at
// its next tick boundary.
func (c *Controller) SpawnLifeform(opts SpawnOptions) (uint64, error) {
	if opts.Species >= lifeform.NumSpecies {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSpecies, opts.Species)
	}
	if !c.inWorld(opts.X, opts.Y) {
		return 0, fmt.Errorf("%w: (%g, %g)", ErrOutOfBounds, opts.X, opts.Y)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var g genome.Genome
	if opts.Genome != nil {
		g = opts.Genome.Clamped()
	} else {
		g = lifeform.FounderGenome(c.rng, opts.Species)
	}

	brain, err := neural.New(c.rng, neural.NumInputs, c.cfg.Neural.NumHidden, neural.NumOutputs)
	if err != nil {
		return 0, err
	}

	sp := c.cfg.Species.ByIndex(int(opts.Species))
	energy := opts.Energy
	if energy <= 0 {
		energy = float32(sp.InitialEnergy)
	}
	if energy > float32(sp.MaxEnergy) {
		energy = float32(sp.MaxEnergy)
	}

	c.nextID++
	id := c.nextID
	rec := lifeform.Record{
		ID:        id,
		Species:   opts.Species,
		X:         opts.X,
		Y:         opts.Y,
		Energy:    energy,
		MaxEnergy: float32(sp.MaxEnergy),
		MaxAge:    float32(sp.MaxAge),
		Size:      float32(sp.Size),
		Genome:    g,
		Brain:     brain.Weights(),
	}

	c.registry[id] = rec
	c.counts[opts.Species]++
	c.spawnCount++
	c.routeSpawnLocked(rec)
	c.postLocked(Notification{Kind: Spawned, ID: id, Species: opts.Species, Tick: c.tick})
	return id, nil
}

func (c *Controller) routeSpawnLocked(rec lifeform.Record) {
	tid := c.grid.TileFor(rec.X, rec.Y)
	wid, ok := c.owner[tid]
	switch {
	case ok && c.ready[tid]:
		c.sendCmdLocked(wid, spawnEntityCmd{TileID: tid, Rec: rec})
	case ok:
		c.pending[tid] = append(c.pending[tid], rec)
	default:
		c.parked[tid] = append(c.parked[tid], rec)
	}
}

// SpawnFood places a food item, subject to the spacing rule applied by
// the owning worker's resource manager.
func (c *Controller) SpawnFood(x, y float32) error {
	if !c.inWorld(x, y) {
		return fmt.Errorf("%w: (%g, %g)", ErrOutOfBounds, x, y)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tid := c.grid.TileFor(x, y)
	wid, ok := c.owner[tid]
	if !ok || !c.ready[tid] {
		return fmt.Errorf("%w: tile %d", ErrTileNotReady, tid)
	}
	c.sendCmdLocked(wid, spawnFoodCmd{X: x, Y: y})
	return nil
}

// Reproduce breeds two registered lifeforms of the same species. The
// child's genome and network are crossovers of the parents plus mutation;
// it spawns at the parents' midpoint with a fraction of their mean
// energy, and both parents are debited. Unknown ids and species
// mismatches are rejected with no state change.
func (c *Controller) Reproduce(id1, id2 uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p1, ok := c.registry[id1]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownLifeform, id1)
	}
	p2, ok := c.registry[id2]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownLifeform, id2)
	}
	if p1.Species != p2.Species {
		return 0, fmt.Errorf("%w: %s and %s", ErrSpeciesMismatch, p1.Species, p2.Species)
	}

	hidden := c.cfg.Neural.NumHidden
	n1, err := neural.FromWeights(neural.NumInputs, hidden, neural.NumOutputs, p1.Brain)
	if err != nil {
		return 0, fmt.Errorf("sim: lifeform %d has no transferable brain: %w", id1, err)
	}
	n2, err := neural.FromWeights(neural.NumInputs, hidden, neural.NumOutputs, p2.Brain)
	if err != nil {
		return 0, fmt.Errorf("sim: lifeform %d has no transferable brain: %w", id2, err)
	}

	childNet, err := neural.Crossover(c.rng, n1, n2)
	if err != nil {
		return 0, err
	}
	childNet.Mutate(c.rng, float32(c.cfg.Mutation.NetworkRate), float32(c.cfg.Mutation.NetworkSigma))

	childGenome := genome.Crossover(c.rng, p1.Genome, p2.Genome)
	childGenome = genome.Mutate(c.rng, childGenome,
		childGenome[genome.TraitMutationRate], float32(c.cfg.Mutation.TraitMaxDelta))

	sp := c.cfg.Species.ByIndex(int(p1.Species))
	transfer := (p1.Energy + p2.Energy) / 2 * float32(c.cfg.Reproduction.ChildEnergyFrac)
	if transfer > float32(sp.MaxEnergy) {
		transfer = float32(sp.MaxEnergy)
	}
	cost := transfer/2 + float32(c.cfg.Reproduction.ParentCost)
	c.debitLocked(id1, cost)
	c.debitLocked(id2, cost)

	c.nextID++
	id := c.nextID
	rec := lifeform.Record{
		ID:        id,
		Species:   p1.Species,
		X:         (p1.X + p2.X) / 2,
		Y:         (p1.Y + p2.Y) / 2,
		Energy:    transfer,
		MaxEnergy: float32(sp.MaxEnergy),
		MaxAge:    float32(sp.MaxAge),
		Size:      float32(sp.Size),
		Genome:    childGenome,
		Brain:     childNet.Weights(),
	}

	c.registry[id] = rec
	c.counts[rec.Species]++
	c.spawnCount++
	c.birthCount++
	c.routeSpawnLocked(rec)
	c.postLocked(Notification{
		Kind:    Reproduced,
		ID:      id,
		Parent1: id1,
		Parent2: id2,
		Species: rec.Species,
		Tick:    c.tick,
	})
	return id, nil
}

// debitLocked charges a parent for reproduction, both in the registry
// view and on the owning worker.
func (c *Controller) debitLocked(id uint64, amount float32) {
	rec, ok := c.registry[id]
	if !ok {
		return
	}
	tid := c.grid.TileFor(rec.X, rec.Y)
	if wid, owned := c.owner[tid]; owned && c.ready[tid] {
		c.sendCmdLocked(wid, debitCmd{ID: id, Amount: amount})
	}
	rec.Energy -= amount
	if rec.Energy < 0 {
		rec.Energy = 0
	}
	c.registry[id] = rec
}

// GetLifeformState returns the registry's latest view of one lifeform.
func (c *Controller) GetLifeformState(id uint64) (lifeform.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.registry[id]
	if !ok {
		return lifeform.Record{}, fmt.Errorf("%w: %d", ErrUnknownLifeform, id)
	}
	return rec, nil
}

// Stats returns the aggregated published view.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	food := 0
	for _, n := range c.foodCounts {
		food += n
	}
	return Stats{
		Tick:             c.tick,
		EntityCount:      len(c.registry),
		FPS:              c.timer.FPS(),
		FrameTime:        c.timer.Avg(),
		SpeciesBreakdown: c.counts,
		FoodCount:        food,
		FoodConsumed:     c.foodConsumed,
		FoodSpawned:      c.foodSpawned,
		Spawned:          c.spawnCount,
		Births:           c.birthCount,
		Deaths:           c.deathCount,
		Running:          c.running,
		Workers:          len(c.workers),
	}
}

// TelemetrySnapshot samples the registry for one stats window flush.
func (c *Controller) TelemetrySnapshot() telemetry.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := telemetry.Snapshot{
		Plants:     c.counts[lifeform.Plant],
		Herbivores: c.counts[lifeform.Herbivore],
		Carnivores: c.counts[lifeform.Carnivore],
	}
	for _, n := range c.foodCounts {
		snap.FoodCount += n
	}
	for _, rec := range c.registry {
		switch rec.Species {
		case lifeform.Herbivore:
			snap.HerbEnergies = append(snap.HerbEnergies, float64(rec.Energy))
		case lifeform.Carnivore:
			snap.CarnEnergies = append(snap.CarnEnergies, float64(rec.Energy))
		}
	}
	return snap
}

// Perf returns tick timing statistics over the rolling sample window.
func (c *Controller) Perf() telemetry.PerfStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer.Stats()
}

// Start lets every worker tick on its own schedule.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	c.broadcastLocked(controlCmd{Action: actionStart})
}

// Stop pauses ticking. In-flight ticks finish and their results still
// apply; there is no mid-tick abort.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.broadcastLocked(controlCmd{Action: actionStop})
}

// Step advances every worker by exactly one tick, running or not.
func (c *Controller) Step() {
	c.Burst(1)
}

// Burst advances every worker by n ticks back to back.
func (c *Controller) Burst(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcastLocked(stepCmd{Ticks: n})
}

// Reset clears all registries and resets every worker. Safe whether
// running or stopped; the run state afterwards is stopped. Tile
// assignments survive.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.running = false
	c.tick = 0
	c.registry = make(map[uint64]lifeform.Record)
	c.counts = [lifeform.NumSpecies]int{}
	c.parked = make(map[int][]lifeform.Record)
	c.pending = make(map[int][]lifeform.Record)
	c.spawnCount = 0
	c.birthCount = 0
	c.deathCount = 0
	c.foodConsumed = 0
	c.foodSpawned = 0
	for i := range c.foodCounts {
		c.foodCounts[i] = 0
	}
	c.broadcastLocked(controlCmd{Action: actionReset, Epoch: c.epoch})
}

func (c *Controller) broadcastLocked(cmd command) {
	for i := range c.workers {
		c.sendCmdLocked(i, cmd)
	}
}

// SetViewport reloads the tile set around a camera view. Tiles that fall
// outside the buffered view are unloaded and their entities parked;
// newly visible tiles go to the least-loaded worker.
func (c *Controller) SetViewport(vp tile.Bounds) {
	c.mu.Lock()
	defer c.mu.Unlock()

	want := make(map[int]bool)
	for _, tid := range c.wantedTiles(&vp) {
		want[tid] = true
	}

	for tid, wid := range c.owner {
		if want[tid] {
			continue
		}
		c.sendCmdLocked(wid, unassignTileCmd{TileID: tid})
		c.loads[wid]--
		delete(c.owner, tid)
		delete(c.ready, tid)
	}

	for tid := range want {
		if _, owned := c.owner[tid]; owned {
			continue
		}
		wid := c.leastLoadedLocked()
		if wid < 0 {
			continue
		}
		recs := c.parked[tid]
		delete(c.parked, tid)
		c.assignTileLocked(tid, wid, recs)
	}
}

// WaitReady blocks until every assigned tile has been acknowledged, or
// the timeout elapses.
func (c *Controller) WaitReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		c.mu.Lock()
		allReady := true
		for tid := range c.owner {
			if !c.ready[tid] {
				allReady = false
				break
			}
		}
		c.mu.Unlock()

		if allReady {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("sim: tiles not ready after %v", timeout)
		}
		time.Sleep(time.Millisecond)
	}
}

// SeedPopulation spawns the configured founder population at random
// positions.
func (c *Controller) SeedPopulation() {
	kinds := []struct {
		sp lifeform.Species
		n  int
	}{
		{lifeform.Plant, c.cfg.Population.Plants},
		{lifeform.Herbivore, c.cfg.Population.Herbivores},
		{lifeform.Carnivore, c.cfg.Population.Carnivores},
	}
	w := c.cfg.Derived.WorldW32
	h := c.cfg.Derived.WorldH32
	for _, k := range kinds {
		for i := 0; i < k.n; i++ {
			x, y := c.randomPosition(w, h)
			if _, err := c.SpawnLifeform(SpawnOptions{Species: k.sp, X: x, Y: y}); err != nil {
				c.log.Error("founder spawn failed", "species", k.sp, "err", err)
			}
		}
	}
}

func (c *Controller) randomPosition(w, h float32) (float32, float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Float32() * w, c.rng.Float32() * h
}

func (c *Controller) inWorld(x, y float32) bool {
	return x >= 0 && y >= 0 && x <= c.cfg.Derived.WorldW32 && y <= c.cfg.Derived.WorldH32
}

// Close shuts down the worker pool and the event loop. Idempotent.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		for _, w := range c.workers {
			close(w.commands)
		}
		c.mu.Unlock()

		c.workerWG.Wait()
		close(c.done)
		c.loopWG.Wait()
		close(c.notify)
	})
	return nil
}
