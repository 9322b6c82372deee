package main

import (
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jessehattabaugh/world/config"
	"github.com/jessehattabaugh/world/lifeform"
	"github.com/jessehattabaugh/world/sim"
	"github.com/jessehattabaugh/world/telemetry"
)

// FitnessEvaluator runs headless simulations and computes fitness.
type FitnessEvaluator struct {
	params      *ParamVector
	maxTicks    uint64
	seeds       []int64
	baseConfig  *config.Config
	statsWindow float64

	mu          sync.Mutex
	bestFitness float64
	lastQuality float64 // quality from most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, maxTicks uint64, seeds []int64, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:      params,
		maxTicks:    maxTicks,
		seeds:       seeds,
		baseConfig:  baseCfg,
		statsWindow: 10.0, // 10 simulated seconds per window
		bestFitness: math.Inf(1),
	}
}

// LastQuality returns the quality score from the most recent evaluation.
func (fe *FitnessEvaluator) LastQuality() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastQuality
}

// Functional extinction: if herbivores or carnivores stay below this for
// extinctionGraceSec of simulated time, the run is over.
const (
	minViablePop       = 3
	extinctionGraceSec = 30.0
	warmupSec          = 5.0
	chunkTicks         = 60 // ticks advanced between population checks
)

// runResult holds the results from a single simulation run.
type runResult struct {
	survivalTicks uint64 // ticks before functional extinction (or maxTicks)
	windowStats   []telemetry.WindowStats
	maxEnergy     [lifeform.NumSpecies]float64
}

// seedResult holds the result from one seed evaluation.
type seedResult struct {
	fitness float64
	quality float64
}

// Evaluate computes fitness for a parameter vector (lower = better).
// Fitness is negative survival ticks: longer survival = lower fitness.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	// Run all seeds in parallel
	results := make([]seedResult, len(fe.seeds))
	var wg sync.WaitGroup

	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			result := fe.runSimulation(x, s)
			results[idx] = seedResult{
				fitness: fe.computeFitness(result),
				quality: computeQuality(result),
			}
		}(i, seed)
	}
	wg.Wait()

	var totalFitness, totalQuality float64
	for _, r := range results {
		totalFitness += r.fitness
		totalQuality += r.quality
	}

	n := float64(len(fe.seeds))
	avgFitness := totalFitness / n

	fe.mu.Lock()
	if avgFitness < fe.bestFitness {
		fe.bestFitness = avgFitness
	}
	fe.lastQuality = totalQuality / n
	fe.mu.Unlock()

	return avgFitness
}

// runSimulation executes a single headless run until functional extinction
// or maxTicks, whichever comes first.
func (fe *FitnessEvaluator) runSimulation(x []float64, seed int64) *runResult {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)
	result := &runResult{}
	if err := cfg.Finalize(); err != nil {
		// An unusable parameter combination scores as immediate collapse.
		return result
	}
	for sp := 0; sp < int(lifeform.NumSpecies); sp++ {
		result.maxEnergy[sp] = cfg.Species.ByIndex(sp).MaxEnergy
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctrl, err := sim.NewController(sim.Options{Config: cfg, Seed: seed, Logger: logger})
	if err != nil {
		return result
	}
	defer ctrl.Close()

	if err := ctrl.WaitReady(30 * time.Second); err != nil {
		return result
	}
	ctrl.SeedPopulation()

	collector := telemetry.NewCollector(fe.statsWindow, cfg.Derived.DT32)

	dt := cfg.Physics.DT
	graceTicks := uint64(extinctionGraceSec / dt)
	warmupTicks := uint64(warmupSec / dt)

	var herbBelow, carnBelow uint64
	var lastConsumed, lastSpawned uint64
	for tick := uint64(0); tick < fe.maxTicks; {
		target := tick + chunkTicks
		ctrl.Burst(chunkTicks)
		if !waitForTick(ctrl, target, 30*time.Second) {
			// Workers stopped advancing; score the run as ended here.
			result.survivalTicks = tick
			return result
		}
		tick = target

		drainNotifications(ctrl, collector)

		st := ctrl.Stats()
		herb := st.SpeciesBreakdown[lifeform.Herbivore]
		carn := st.SpeciesBreakdown[lifeform.Carnivore]

		collector.RecordFoodConsumed(int(st.FoodConsumed - lastConsumed))
		collector.RecordFoodSpawned(int(st.FoodSpawned - lastSpawned))
		lastConsumed = st.FoodConsumed
		lastSpawned = st.FoodSpawned

		if collector.ShouldFlush(tick) {
			result.windowStats = append(result.windowStats, collector.Flush(tick, ctrl.TelemetrySnapshot()))
		}

		if tick < warmupTicks {
			continue
		}

		// Hard extinction: either consumer species completely gone.
		if herb == 0 || carn == 0 {
			result.survivalTicks = tick
			return result
		}

		if herb < minViablePop {
			herbBelow += chunkTicks
		} else {
			herbBelow = 0
		}
		if carn < minViablePop {
			carnBelow += chunkTicks
		} else {
			carnBelow = 0
		}
		if herbBelow >= graceTicks || carnBelow >= graceTicks {
			result.survivalTicks = tick
			return result
		}
	}

	// Survived the full run
	result.survivalTicks = fe.maxTicks
	return result
}

// drainNotifications feeds queued lifecycle events into the collector
// without blocking.
func drainNotifications(ctrl *sim.Controller, collector *telemetry.Collector) {
	for {
		select {
		case n, ok := <-ctrl.Notifications():
			if !ok {
				return
			}
			switch n.Kind {
			case sim.Reproduced, sim.Spawned:
				collector.RecordBirth()
			case sim.Died:
				collector.RecordDeath(n.Cause)
			}
		default:
			return
		}
	}
}

// waitForTick blocks until every pending burst up to target has been
// processed, or the deadline passes.
func waitForTick(ctrl *sim.Controller, target uint64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ctrl.Stats().Tick >= target {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

// copyConfig creates a fresh config carrying the base run's settings.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg, _ := config.Load("")

	cfg.World = fe.baseConfig.World
	cfg.Physics = fe.baseConfig.Physics
	cfg.Energy = fe.baseConfig.Energy
	cfg.Species = fe.baseConfig.Species
	cfg.Reproduction = fe.baseConfig.Reproduction
	cfg.Mutation = fe.baseConfig.Mutation
	cfg.Neural = fe.baseConfig.Neural
	cfg.Resource = fe.baseConfig.Resource
	cfg.Tiles = fe.baseConfig.Tiles
	cfg.Backend = fe.baseConfig.Backend
	cfg.Population = fe.baseConfig.Population
	cfg.Telemetry = fe.baseConfig.Telemetry

	return cfg
}

// computeFitness calculates the scalar fitness (lower = better).
// Formula: -(survivalTicks × (1.0 + 0.2 × quality)). Survival dominates;
// quality adds up to 20% to separate configs with similar survival.
func (fe *FitnessEvaluator) computeFitness(r *runResult) float64 {
	survival := float64(r.survivalTicks)
	quality := computeQuality(r)
	return -(survival * (1.0 + 0.2*quality))
}

// Quality component weights.
const (
	qualityWeightRatio     = 0.35
	qualityWeightStability = 0.30
	qualityWeightEnergy    = 0.20
	qualityWeightHunting   = 0.15

	qualityWarmupWindows = 3 // skip first N windows
	qualityMinPop        = 3 // exclude windows where either species < this
	qualityTargetRatio   = 4.0
)

// computeQuality scores ecosystem health in [0, 1] from window stats:
// herbivore/carnivore balance, population stability, median energy
// levels, and predation activity.
func computeQuality(r *runResult) float64 {
	windows := r.windowStats
	if len(windows) <= qualityWarmupWindows {
		return 0
	}
	valid := windows[qualityWarmupWindows:]

	var ratioSum, energySum, huntSum float64
	var ratioCount, huntCount int

	herbCounts := make([]float64, 0, len(valid))
	carnCounts := make([]float64, 0, len(valid))

	herbMax := r.maxEnergy[lifeform.Herbivore]
	carnMax := r.maxEnergy[lifeform.Carnivore]

	for _, w := range valid {
		if w.Herbivores < qualityMinPop || w.Carnivores < qualityMinPop {
			continue
		}

		herbCounts = append(herbCounts, float64(w.Herbivores))
		carnCounts = append(carnCounts, float64(w.Carnivores))

		// 1. Population ratio score
		ratio := float64(w.Herbivores) / float64(w.Carnivores)
		logErr := math.Log(ratio / qualityTargetRatio)
		ratioSum += math.Exp(-logErr * logErr)
		ratioCount++

		// 3. Energy health score: median energy near 40% of max
		herbH := math.Exp(-math.Pow((w.HerbEnergyP50/herbMax-0.40)/0.20, 2))
		carnH := math.Exp(-math.Pow((w.CarnEnergyP50/carnMax-0.40)/0.20, 2))
		energySum += (herbH + carnH) / 2.0

		// 4. Predation activity: kills per carnivore per window
		if w.Carnivores > 0 {
			killsPerCarn := float64(w.Killed) / float64(w.Carnivores)
			huntSum += 1.0 - math.Exp(-killsPerCarn/2.0)
			huntCount++
		}
	}

	if ratioCount == 0 {
		return 0
	}

	ratioScore := ratioSum / float64(ratioCount)
	energyScore := energySum / float64(ratioCount)

	// 2. Population stability (CV across valid windows)
	stabilityScore := 0.0
	if len(herbCounts) >= 2 {
		cvHerb := cv(herbCounts)
		cvCarn := cv(carnCounts)
		stabilityScore = math.Exp(-(cvHerb*cvHerb + cvCarn*cvCarn))
	}

	huntScore := 0.0
	if huntCount > 0 {
		huntScore = huntSum / float64(huntCount)
	}

	quality := qualityWeightRatio*ratioScore +
		qualityWeightStability*stabilityScore +
		qualityWeightEnergy*energyScore +
		qualityWeightHunting*huntScore

	return clamp01(quality)
}

// cv computes the coefficient of variation (std/mean) for a slice of values.
func cv(values []float64) float64 {
	n := float64(len(values))
	if n == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n
	if mean == 0 {
		return 0
	}
	var sqDiff float64
	for _, v := range values {
		d := v - mean
		sqDiff += d * d
	}
	return math.Sqrt(sqDiff/n) / mean
}

// clamp01 clamps x to [0, 1].
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
