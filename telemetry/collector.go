package telemetry

// Collector accumulates lifecycle events within time windows and produces
// WindowStats. It is not safe for concurrent use; the simulation controller
// feeds it from a single goroutine.
type Collector struct {
	windowDurationSec   float64
	windowDurationTicks uint64
	dt                  float32

	windowStartTick uint64

	// Event counters for the current window
	births       int
	deaths       int
	starved      int
	diedOfAge    int
	killed       int
	eaten        int
	foodConsumed int
	foodSpawned  int
}

// NewCollector creates a stats collector.
// windowDurationSec: how long each stats window lasts in simulation seconds.
// dt: seconds per tick, used for tick-to-time conversion.
func NewCollector(windowDurationSec float64, dt float32) *Collector {
	ticksPerWindow := uint64(windowDurationSec / float64(dt))
	if ticksPerWindow < 1 {
		ticksPerWindow = 1
	}

	return &Collector{
		windowDurationSec:   windowDurationSec,
		windowDurationTicks: ticksPerWindow,
		dt:                  dt,
	}
}

// RecordBirth records a birth event.
func (c *Collector) RecordBirth() {
	c.births++
}

// RecordDeath records a death event by cause name, as death notifications
// carry it.
func (c *Collector) RecordDeath(cause string) {
	c.deaths++
	switch cause {
	case "starved":
		c.starved++
	case "old age":
		c.diedOfAge++
	case "predation":
		c.killed++
	case "eaten":
		c.eaten++
	}
}

// RecordFoodConsumed records food items consumed.
func (c *Collector) RecordFoodConsumed(n int) {
	c.foodConsumed += n
}

// RecordFoodSpawned records food items regenerated.
func (c *Collector) RecordFoodSpawned(n int) {
	c.foodSpawned += n
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick uint64) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// Snapshot holds the population sample a Flush folds into its WindowStats.
type Snapshot struct {
	Plants     int
	Herbivores int
	Carnivores int
	FoodCount  int

	HerbEnergies []float64
	CarnEnergies []float64
}

// Flush produces a WindowStats from the accumulated events plus the given
// population snapshot, then resets counters for the next window.
func (c *Collector) Flush(currentTick uint64, snap Snapshot) WindowStats {
	herb := SummarizeEnergies(snap.HerbEnergies)
	carn := SummarizeEnergies(snap.CarnEnergies)

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      float64(currentTick) * float64(c.dt),

		Plants:     snap.Plants,
		Herbivores: snap.Herbivores,
		Carnivores: snap.Carnivores,
		FoodCount:  snap.FoodCount,

		Births:       c.births,
		Deaths:       c.deaths,
		Starved:      c.starved,
		DiedOfAge:    c.diedOfAge,
		Killed:       c.killed,
		Eaten:        c.eaten,
		FoodConsumed: c.foodConsumed,
		FoodSpawned:  c.foodSpawned,

		HerbEnergyMean: herb.Mean,
		HerbEnergyStd:  herb.Std,
		HerbEnergyP50:  herb.P50,
		CarnEnergyMean: carn.Mean,
		CarnEnergyStd:  carn.Std,
		CarnEnergyP50:  carn.P50,
	}

	c.windowStartTick = currentTick
	c.births = 0
	c.deaths = 0
	c.starved = 0
	c.diedOfAge = 0
	c.killed = 0
	c.eaten = 0
	c.foodConsumed = 0
	c.foodSpawned = 0

	return stats
}

// WindowDurationTicks returns the number of ticks per window.
func (c *Collector) WindowDurationTicks() uint64 {
	return c.windowDurationTicks
}
