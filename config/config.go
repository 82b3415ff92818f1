// Package config provides configuration loading and access for the lab.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/protolab/lab"
)

//go:embed defaults.yaml
var defaultsYAML []byte

var validate = validator.New()

// Config holds all lab configuration parameters.
type Config struct {
	Environment lab.Environment `yaml:"environment"`
	Scheduler   SchedulerConfig `yaml:"scheduler"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Server      ServerConfig    `yaml:"server"`
	Watch       WatchConfig     `yaml:"watch"`
	Drift       DriftConfig     `yaml:"drift"`
	Scenario    []ScenarioStep  `yaml:"scenario" validate:"dive"`
	Optimize    OptimizeConfig  `yaml:"optimize"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SchedulerConfig holds tick cadence parameters.
type SchedulerConfig struct {
	TickRate float64 `yaml:"tick_rate" validate:"gt=0,lte=1000"` // Steps per wall-clock second
	BaseDT   float64 `yaml:"base_dt" validate:"gt=0"`            // Simulated seconds per step at time_scale 1
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         float64 `yaml:"stats_window" validate:"gt=0"`   // Window length in simulated seconds
	MilestoneHistory    int     `yaml:"milestone_history" validate:"gte=1"`
	StallWindows        int     `yaml:"stall_windows" validate:"gte=1"` // Windows without progress before a stall milestone
	PerfCollectorWindow int     `yaml:"perf_collector_window" validate:"gte=1"`
	StateLogInterval    int     `yaml:"state_log_interval" validate:"gte=0"` // Ticks between text summaries (0 = off)
}

// ServerConfig holds the HTTP adapter settings.
type ServerConfig struct {
	Addr             string  `yaml:"addr"`
	SnapshotInterval float64 `yaml:"snapshot_interval" validate:"gt=0"` // Seconds between websocket snapshots
	ShutdownTimeout  float64 `yaml:"shutdown_timeout" validate:"gt=0"`
}

// WatchConfig holds environment file watcher settings.
type WatchConfig struct {
	Debounce float64 `yaml:"debounce" validate:"gte=0"` // Seconds to wait for writes to settle
}

// DriftConfig holds environmental drift parameters.
type DriftConfig struct {
	Seed      int64              `yaml:"seed"`
	Interval  float64            `yaml:"interval" validate:"gt=0"` // Wall-clock seconds between drift updates
	Period    float64            `yaml:"period" validate:"gt=0"`   // Simulated seconds per noise unit
	Amplitude map[string]float64 `yaml:"amplitude"`                // Parameter name -> peak deviation
}

// ScenarioStep applies an environment patch once simulated time reaches At.
type ScenarioStep struct {
	At  float64              `yaml:"at" validate:"gte=0"`
	Set lab.EnvironmentPatch `yaml:"set"`
}

// OptimizeConfig holds defaults for the environment optimizer.
type OptimizeConfig struct {
	MaxTicks int     `yaml:"max_ticks" validate:"gt=0"`
	Jitter   float64 `yaml:"jitter" validate:"gte=0"`   // Relative perturbation of robustness copies
	Copies   int     `yaml:"copies" validate:"gte=1"`   // Labs evaluated per candidate
	StepSize float64 `yaml:"step_size" validate:"gt=0"` // CMA-ES initial step in normalized space
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	TickInterval     time.Duration // 1 / Scheduler.TickRate
	SnapshotInterval time.Duration
	ShutdownTimeout  time.Duration
	Debounce         time.Duration
	DriftInterval    time.Duration
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
	cfg, err := Defaults()
	if err != nil {
		return nil, err
	}

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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()
	return cfg, nil
}

// Defaults returns the embedded default configuration.
func Defaults() (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	cfg.computeDerived()
	return cfg, nil
}

// Validate checks the structural constraints on the configuration.
// Environment values are not validated; the lab clamps them.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for name := range c.Drift.Amplitude {
		if _, ok := lab.LookupParam(name); !ok {
			return fmt.Errorf("invalid config: drift.amplitude: unknown parameter %q", name)
		}
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Environment = c.Environment.Clamped()
	c.Derived.TickInterval = seconds(1 / c.Scheduler.TickRate)
	c.Derived.SnapshotInterval = seconds(c.Server.SnapshotInterval)
	c.Derived.ShutdownTimeout = seconds(c.Server.ShutdownTimeout)
	c.Derived.Debounce = seconds(c.Watch.Debounce)
	c.Derived.DriftInterval = seconds(c.Drift.Interval)
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

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	out := *c
	out.Scenario = append([]ScenarioStep(nil), c.Scenario...)
	if c.Drift.Amplitude != nil {
		out.Drift.Amplitude = make(map[string]float64, len(c.Drift.Amplitude))
		for k, v := range c.Drift.Amplitude {
			out.Drift.Amplitude[k] = v
		}
	}
	return &out
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
