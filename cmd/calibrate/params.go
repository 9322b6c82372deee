// Package main provides CMA-ES calibration of simulation parameters.
package main

import (
	"github.com/jessehattabaugh/world/config"
)

// ParamSpec defines a single tunable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all tunable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of tunable parameters.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			// Energy drains
			{Name: "base_cost", Path: "energy.base_cost", Min: 0.1, Max: 1.5, Default: 0.4},
			{Name: "move_cost", Path: "energy.move_cost", Min: 0.01, Max: 0.2, Default: 0.05},
			// Food supply
			{Name: "food_energy", Path: "resource.energy_value", Min: 10, Max: 60, Default: 25},
			{Name: "food_regen_rate", Path: "resource.regen_rate", Min: 0.1, Max: 3.0, Default: 0.6},
			{Name: "food_max_per_tile", Path: "resource.max_per_tile", Min: 8, Max: 64, Default: 24},
			// Reproduction economics
			{Name: "maturity_age", Path: "reproduction.maturity_age", Min: 3.0, Max: 30.0, Default: 10.0},
			{Name: "child_energy_frac", Path: "reproduction.child_energy_frac", Min: 0.2, Max: 0.6, Default: 0.4},
			{Name: "parent_cost", Path: "reproduction.parent_cost", Min: 2.0, Max: 30.0, Default: 12.0},
			{Name: "gain_cap", Path: "reproduction.gain_cap", Min: 20, Max: 120, Default: 60},
			// Mutation pressure
			{Name: "trait_max_delta", Path: "mutation.trait_max_delta", Min: 0.02, Max: 0.4, Default: 0.15},
			{Name: "network_rate", Path: "mutation.network_rate", Min: 0.01, Max: 0.3, Default: 0.08},
			{Name: "network_sigma", Path: "mutation.network_sigma", Min: 0.02, Max: 0.3, Default: 0.1},
			// Founder population
			{Name: "plants", Path: "population.plants", Min: 20, Max: 200, Default: 60},
			{Name: "herbivores", Path: "population.herbivores", Min: 10, Max: 100, Default: 30},
			{Name: "carnivores", Path: "population.carnivores", Min: 2, Max: 40, Default: 8},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		val := v[i]
		if val < spec.Min {
			val = spec.Min
		}
		if val > spec.Max {
			val = spec.Max
		}
		clamped[i] = val
	}
	return clamped
}

// ApplyToConfig applies parameter values to a Config struct. The caller
// must Finalize the config afterwards.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	// Clamp values to ensure they're within bounds.
	// Order must match Specs order.
	clamped := pv.Clamp(values)
	i := 0

	cfg.Energy.BaseCost = clamped[i]
	i++
	cfg.Energy.MoveCost = clamped[i]
	i++

	cfg.Resource.EnergyValue = clamped[i]
	i++
	cfg.Resource.RegenRate = clamped[i]
	i++
	cfg.Resource.MaxPerTile = int(clamped[i])
	i++

	cfg.Reproduction.MaturityAge = clamped[i]
	i++
	cfg.Reproduction.ChildEnergyFrac = clamped[i]
	i++
	cfg.Reproduction.ParentCost = clamped[i]
	i++
	cfg.Reproduction.GainCap = clamped[i]
	i++

	cfg.Mutation.TraitMaxDelta = clamped[i]
	i++
	cfg.Mutation.NetworkRate = clamped[i]
	i++
	cfg.Mutation.NetworkSigma = clamped[i]
	i++

	cfg.Population.Plants = int(clamped[i])
	i++
	cfg.Population.Herbivores = int(clamped[i])
	i++
	cfg.Population.Carnivores = int(clamped[i])
}

// ExtractFromConfig extracts current parameter values from a Config struct.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	return []float64{
		cfg.Energy.BaseCost,
		cfg.Energy.MoveCost,
		cfg.Resource.EnergyValue,
		cfg.Resource.RegenRate,
		float64(cfg.Resource.MaxPerTile),
		cfg.Reproduction.MaturityAge,
		cfg.Reproduction.ChildEnergyFrac,
		cfg.Reproduction.ParentCost,
		cfg.Reproduction.GainCap,
		cfg.Mutation.TraitMaxDelta,
		cfg.Mutation.NetworkRate,
		cfg.Mutation.NetworkSigma,
		float64(cfg.Population.Plants),
		float64(cfg.Population.Herbivores),
		float64(cfg.Population.Carnivores),
	}
}
