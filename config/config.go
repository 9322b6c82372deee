// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	World        WorldConfig        `yaml:"world"`
	Physics      PhysicsConfig      `yaml:"physics"`
	Energy       EnergyConfig       `yaml:"energy"`
	Species      SpeciesConfigs     `yaml:"species"`
	Reproduction ReproductionConfig `yaml:"reproduction"`
	Mutation     MutationConfig     `yaml:"mutation"`
	Neural       NeuralConfig       `yaml:"neural"`
	Resource     ResourceConfig     `yaml:"resource"`
	Tiles        TilesConfig        `yaml:"tiles"`
	Backend      BackendConfig      `yaml:"backend"`
	Population   PopulationConfig   `yaml:"population"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// WorldConfig holds simulation world dimensions in world units.
type WorldConfig struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// PhysicsConfig holds movement integration parameters.
type PhysicsConfig struct {
	DT            float64 `yaml:"dt"`             // seconds per tick
	Friction      float64 `yaml:"friction"`       // velocity retention per tick
	BounceDamping float64 `yaml:"bounce_damping"` // velocity scale on boundary reflection
	GridCellSize  float64 `yaml:"grid_cell_size"` // neighbor index cell size
}

// EnergyConfig holds the shared energy economics.
// Drain per tick = (base_cost*dt + move_cost*distance) * metabolism.
type EnergyConfig struct {
	BaseCost float64 `yaml:"base_cost"`
	MoveCost float64 `yaml:"move_cost"`
}

// SpeciesParams defines founder defaults for one species.
type SpeciesParams struct {
	InitialEnergy float64 `yaml:"initial_energy"`
	MaxEnergy     float64 `yaml:"max_energy"`
	MaxAge        float64 `yaml:"max_age"` // seconds
	Size          float64 `yaml:"size"`    // body radius, world units
}

// SpeciesConfigs holds per-species founder parameters.
type SpeciesConfigs struct {
	Plant     SpeciesParams `yaml:"plant"`
	Herbivore SpeciesParams `yaml:"herbivore"`
	Carnivore SpeciesParams `yaml:"carnivore"`
}

// ByIndex returns species params by species index (0=plant, 1=herbivore, 2=carnivore).
func (s *SpeciesConfigs) ByIndex(i int) *SpeciesParams {
	switch i {
	case 0:
		return &s.Plant
	case 1:
		return &s.Herbivore
	default:
		return &s.Carnivore
	}
}

// ReproductionConfig holds reproduction parameters shared by all species.
// Per-entity threshold and rate come from the genome.
type ReproductionConfig struct {
	MaturityAge     float64 `yaml:"maturity_age"`      // seconds before first reproduction
	ChildEnergyFrac float64 `yaml:"child_energy_frac"` // child energy as fraction of parent energy
	ParentCost      float64 `yaml:"parent_cost"`       // flat energy cost per parent
	SpawnOffset     float64 `yaml:"spawn_offset"`      // asexual child offset radius
	GainCap         float64 `yaml:"gain_cap"`          // max energy a predator gains per kill
}

// MutationConfig holds mutation parameters.
type MutationConfig struct {
	TraitMaxDelta float64 `yaml:"trait_max_delta"` // genome trait scale range [1-d, 1+d]
	NetworkRate   float64 `yaml:"network_rate"`    // per-weight mutation probability
	NetworkSigma  float64 `yaml:"network_sigma"`   // weight perturbation stddev
}

// NeuralConfig holds decision network topology.
// Input and output widths are fixed by the sensor/actuator schema.
type NeuralConfig struct {
	NumHidden int `yaml:"num_hidden"`
}

// ResourceConfig holds food resource parameters.
type ResourceConfig struct {
	EnergyValue float64 `yaml:"energy_value"` // energy per food item
	MinSpacing  float64 `yaml:"min_spacing"`  // minimum distance between food items
	RegenRate   float64 `yaml:"regen_rate"`   // expected spawns per second per tile
	MaxPerTile  int     `yaml:"max_per_tile"` // regeneration stops at this density
	NoiseScale  float64 `yaml:"noise_scale"`  // fertility field frequency
}

// TilesConfig holds spatial partition parameters.
type TilesConfig struct {
	Size        float64 `yaml:"size"`         // tile edge length, world units
	BufferTiles int     `yaml:"buffer_tiles"` // viewport load margin in tiles
}

// BackendConfig holds compute backend selection.
type BackendConfig struct {
	Accelerated bool `yaml:"accelerated"` // try the vector backend first
	Threshold   int  `yaml:"threshold"`   // min batch size for parallel chunking
}

// PopulationConfig holds initial seeding counts.
type PopulationConfig struct {
	Plants     int `yaml:"plants"`
	Herbivores int `yaml:"herbivores"`
	Carnivores int `yaml:"carnivores"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow float64 `yaml:"stats_window"` // seconds per stats window
	PerfWindow  int     `yaml:"perf_window"`  // tick samples in the frame timer
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	DT32      float32 // Physics.DT as float32
	WorldW32  float32
	WorldH32  float32
	TileCols  int
	TileRows  int
	TileCount int
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.computeDerived()

	return cfg, nil
}

// validate rejects configurations that would corrupt the simulation.
func (c *Config) validate() error {
	if c.World.Width <= 0 || c.World.Height <= 0 {
		return fmt.Errorf("config: world dimensions must be positive, got %gx%g", c.World.Width, c.World.Height)
	}
	if c.Physics.DT <= 0 {
		return fmt.Errorf("config: physics.dt must be positive, got %g", c.Physics.DT)
	}
	if c.Tiles.Size <= 0 {
		return fmt.Errorf("config: tiles.size must be positive, got %g", c.Tiles.Size)
	}
	if c.Tiles.Size > c.World.Width || c.Tiles.Size > c.World.Height {
		return fmt.Errorf("config: tiles.size %g exceeds world dimensions %gx%g",
			c.Tiles.Size, c.World.Width, c.World.Height)
	}
	if c.Neural.NumHidden <= 0 {
		return fmt.Errorf("config: neural.num_hidden must be positive, got %d", c.Neural.NumHidden)
	}
	for i := 0; i < 3; i++ {
		sp := c.Species.ByIndex(i)
		if sp.MaxEnergy <= 0 || sp.InitialEnergy <= 0 || sp.MaxAge <= 0 || sp.Size <= 0 {
			return fmt.Errorf("config: species params must be positive (index %d): %+v", i, *sp)
		}
		if sp.InitialEnergy > sp.MaxEnergy {
			return fmt.Errorf("config: species initial_energy %g exceeds max_energy %g (index %d)",
				sp.InitialEnergy, sp.MaxEnergy, i)
		}
	}
	if c.Resource.MinSpacing < 0 || c.Resource.EnergyValue <= 0 {
		return fmt.Errorf("config: resource params invalid: spacing=%g energy=%g",
			c.Resource.MinSpacing, c.Resource.EnergyValue)
	}
	return nil
}

// Finalize revalidates a programmatically modified configuration and
// recomputes its derived values.
func (c *Config) Finalize() error {
	if err := c.validate(); err != nil {
		return err
	}
	c.computeDerived()
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.DT32 = float32(c.Physics.DT)
	c.Derived.WorldW32 = float32(c.World.Width)
	c.Derived.WorldH32 = float32(c.World.Height)

	cols := int(c.World.Width / c.Tiles.Size)
	if float64(cols)*c.Tiles.Size < c.World.Width {
		cols++
	}
	rows := int(c.World.Height / c.Tiles.Size)
	if float64(rows)*c.Tiles.Size < c.World.Height {
		rows++
	}
	c.Derived.TileCols = cols
	c.Derived.TileRows = rows
	c.Derived.TileCount = cols * rows
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
