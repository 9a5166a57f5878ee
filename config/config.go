// Package config provides configuration loading and access for the chamber simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Respiration shortfall policies.
const (
	ShortfallExtinct = "extinct"
	ShortfallClamp   = "clamp"
)

// ErrInvalid is returned by Validate for out-of-range settings.
var ErrInvalid = errors.New("config: invalid")

// Config holds all simulation configuration parameters.
type Config struct {
	Chamber   ChamberConfig    `yaml:"chamber"`
	Engine    EngineConfig     `yaml:"engine"`
	Organisms []OrganismConfig `yaml:"organisms"`
	Script    ScriptConfig     `yaml:"script"`
	Recorder  RecorderConfig   `yaml:"recorder"`
	Export    ExportConfig     `yaml:"export"`
	Telemetry TelemetryConfig  `yaml:"telemetry"`
	Seed      int64            `yaml:"seed" env:"SEED"`
}

// ChamberConfig holds the state a fresh or reset chamber starts from.
type ChamberConfig struct {
	O2         float64 `yaml:"o2"`
	CO2        float64 `yaml:"co2"`
	Light      bool    `yaml:"light"`
	StoredFood float64 `yaml:"stored_food"`
	TimeUnit   string  `yaml:"time_unit"` // "minute" or "hour"; labels only
}

// EngineConfig holds the step engine feature toggles and curve constants.
type EngineConfig struct {
	Mortality                  bool                `yaml:"mortality"`
	FoodReserve                bool                `yaml:"food_reserve"`
	SensorNoise                bool                `yaml:"sensor_noise"`
	NoiseMultiplier            float64             `yaml:"noise_multiplier"`
	CO2DependentPhotosynthesis bool                `yaml:"co2_dependent_photosynthesis"`
	RespirationShortfall       string              `yaml:"respiration_shortfall"`
	PhotosynthesisCurve        PhotosynthesisCurve `yaml:"photosynthesis_curve"`
	MortalityCurve             MortalityCurve      `yaml:"mortality_curve"`
	Food                       FoodConfig          `yaml:"food"`
}

// PhotosynthesisCurve maps CO2 to a per-individual rate: clamp(slope*co2 + offset, min, max).
type PhotosynthesisCurve struct {
	Slope  float64 `yaml:"slope"`
	Offset float64 `yaml:"offset"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
}

// MortalityCurve maps O2 to a per-individual death chance.
type MortalityCurve struct {
	AtmosphericO2 float64 `yaml:"atmospheric_o2"` // chance is 0 at or above this
	HypoxicO2     float64 `yaml:"hypoxic_o2"`     // chance equals HypoxicChance here
	HypoxicChance float64 `yaml:"hypoxic_chance"`
}

// FoodConfig holds food reserve economics (percent per tick).
type FoodConfig struct {
	PhotosynthesisGain float64 `yaml:"photosynthesis_gain"`
	MetabolismCost     float64 `yaml:"metabolism_cost"`
}

// OrganismConfig defines one organism kind in the catalog.
// Catalog order is the per-tick iteration order.
type OrganismConfig struct {
	Name               string  `yaml:"name"`
	Label              string  `yaml:"label"`
	PhotosynthesisRate float64 `yaml:"photosynthesis_rate"`
	RespirationRate    float64 `yaml:"respiration_rate"`
	AutoFed            bool    `yaml:"auto_fed"`
	CountVar           string  `yaml:"count_var"`
	FoodVar            string  `yaml:"food_var"`
	CountField         string  `yaml:"count_field"`
	FoodField          string  `yaml:"food_field"`
}

// ScriptConfig holds run loop parameters.
type ScriptConfig struct {
	StepDelay time.Duration `yaml:"step_delay"`
	AllowRush bool          `yaml:"allow_rush"`
}

// RecorderConfig holds the initial tracked-variable selection.
type RecorderConfig struct {
	Tracked map[string]bool `yaml:"tracked"`
}

// ExportConfig holds data store parameters.
type ExportConfig struct {
	Path      string `yaml:"path" env:"EXPORT_PATH"` // SQLite file; empty logs records instead
	QueueSize int    `yaml:"queue_size"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	WindowTicks  int    `yaml:"window_ticks"`
	OutputDir    string `yaml:"output_dir" env:"OUTPUT_DIR"`
	MetricsAddr  string `yaml:"metrics_addr" env:"METRICS_ADDR"`
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
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

// Default returns the embedded defaults without environment overrides.
func Default() *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	cfg.applyDefaults()
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults,
// then applies ECOCHAMBER_* environment overrides.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in file; a non-empty organisms list replaces the catalog.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills organism fields a user file left empty.
func (c *Config) applyDefaults() {
	for i := range c.Organisms {
		org := &c.Organisms[i]
		if org.Label == "" {
			org.Label = org.Name
		}
	}
	if c.Export.QueueSize <= 0 {
		c.Export.QueueSize = 64
	}
	if c.Telemetry.WindowTicks <= 0 {
		c.Telemetry.WindowTicks = 60
	}
	if c.Recorder.Tracked == nil {
		c.Recorder.Tracked = map[string]bool{}
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Chamber.O2 < 0 || c.Chamber.CO2 < 0:
		return fmt.Errorf("%w: chamber gases must be non-negative", ErrInvalid)
	case c.Chamber.StoredFood < 0 || c.Chamber.StoredFood > 100:
		return fmt.Errorf("%w: chamber.stored_food must be within [0,100]", ErrInvalid)
	case c.Engine.NoiseMultiplier < 0:
		return fmt.Errorf("%w: engine.noise_multiplier must be non-negative", ErrInvalid)
	case c.Engine.RespirationShortfall != ShortfallExtinct && c.Engine.RespirationShortfall != ShortfallClamp:
		return fmt.Errorf("%w: engine.respiration_shortfall %q", ErrInvalid, c.Engine.RespirationShortfall)
	case c.Engine.PhotosynthesisCurve.Min > c.Engine.PhotosynthesisCurve.Max:
		return fmt.Errorf("%w: photosynthesis_curve min exceeds max", ErrInvalid)
	case c.Engine.MortalityCurve.AtmosphericO2 <= c.Engine.MortalityCurve.HypoxicO2:
		return fmt.Errorf("%w: mortality_curve atmospheric_o2 must exceed hypoxic_o2", ErrInvalid)
	case c.Engine.MortalityCurve.HypoxicChance < 0 || c.Engine.MortalityCurve.HypoxicChance > 1:
		return fmt.Errorf("%w: mortality_curve hypoxic_chance must be within [0,1]", ErrInvalid)
	case c.Script.StepDelay < 0:
		return fmt.Errorf("%w: script.step_delay must be non-negative", ErrInvalid)
	case len(c.Organisms) == 0:
		return fmt.Errorf("%w: at least one organism is required", ErrInvalid)
	}
	return nil
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
