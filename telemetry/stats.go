package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for one time window.
type WindowStats struct {
	WindowStartTick uint64  `csv:"-"`
	WindowEndTick   uint64  `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Population counts at window end
	Plants     int `csv:"plants"`
	Herbivores int `csv:"herbivores"`
	Carnivores int `csv:"carnivores"`
	FoodCount  int `csv:"food"`

	// Events during window
	Births       int `csv:"births"`
	Deaths       int `csv:"deaths"`
	Starved      int `csv:"starved"`
	DiedOfAge    int `csv:"died_of_age"`
	Killed       int `csv:"killed"`
	Eaten        int `csv:"eaten"`
	FoodConsumed int `csv:"food_consumed"`
	FoodSpawned  int `csv:"food_spawned"`

	// Energy distribution sampled at window end
	HerbEnergyMean float64 `csv:"herb_energy_mean"`
	HerbEnergyStd  float64 `csv:"herb_energy_std"`
	HerbEnergyP50  float64 `csv:"herb_energy_p50"`
	CarnEnergyMean float64 `csv:"carn_energy_mean"`
	CarnEnergyStd  float64 `csv:"carn_energy_std"`
	CarnEnergyP50  float64 `csv:"carn_energy_p50"`
}

// EnergySummary holds the distribution moments of one species' energy values.
type EnergySummary struct {
	Mean float64
	Std  float64
	P50  float64
}

// SummarizeEnergies computes mean, standard deviation, and median of the
// given energy values. Returns zeros for an empty slice.
func SummarizeEnergies(values []float64) EnergySummary {
	n := len(values)
	if n == 0 {
		return EnergySummary{}
	}

	mean, std := stat.MeanStdDev(values, nil)
	if n == 1 {
		std = 0
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	return EnergySummary{
		Mean: mean,
		Std:  std,
		P50:  Percentile(sorted, 0.50),
	}
}

// Percentile calculates the p-th percentile of a sorted slice by linear
// interpolation. p should be in [0, 1]. Returns 0 if the slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("window_end", s.WindowEndTick),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("plants", s.Plants),
		slog.Int("herbivores", s.Herbivores),
		slog.Int("carnivores", s.Carnivores),
		slog.Int("food", s.FoodCount),
		slog.Int("births", s.Births),
		slog.Int("deaths", s.Deaths),
		slog.Int("starved", s.Starved),
		slog.Int("died_of_age", s.DiedOfAge),
		slog.Int("killed", s.Killed),
		slog.Int("eaten", s.Eaten),
		slog.Int("food_consumed", s.FoodConsumed),
		slog.Int("food_spawned", s.FoodSpawned),
		slog.Float64("herb_energy_mean", s.HerbEnergyMean),
		slog.Float64("herb_energy_p50", s.HerbEnergyP50),
		slog.Float64("carn_energy_mean", s.CarnEnergyMean),
		slog.Float64("carn_energy_p50", s.CarnEnergyP50),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndTick,
		"sim_time", s.SimTimeSec,
		"plants", s.Plants,
		"herbivores", s.Herbivores,
		"carnivores", s.Carnivores,
		"food", s.FoodCount,
		"births", s.Births,
		"deaths", s.Deaths,
		"starved", s.Starved,
		"died_of_age", s.DiedOfAge,
		"killed", s.Killed,
		"eaten", s.Eaten,
		"food_consumed", s.FoodConsumed,
		"food_spawned", s.FoodSpawned,
		"herb_energy_mean", s.HerbEnergyMean,
		"herb_energy_std", s.HerbEnergyStd,
		"herb_energy_p50", s.HerbEnergyP50,
		"carn_energy_mean", s.CarnEnergyMean,
		"carn_energy_std", s.CarnEnergyStd,
		"carn_energy_p50", s.CarnEnergyP50,
	)
}
