// Package lab implements the staged chemical-evolution model: environmental
// inputs, stage gates, the per-tick step function and derived fidelity metrics.
package lab

import "math"

// Documented input ranges. Values outside them are clamped, never rejected.
const (
	MinLevel       = 0.0
	MaxLevel       = 100.0
	MinTemperature = 253.0 // K
	MaxTemperature = 673.0 // K
	MinTimeScale   = 0.01
	MaxTimeScale   = 100.0

	// OptimalTemperature is the centre of the accuracy optimum and the
	// reference for every temperature window in the stage gates.
	OptimalTemperature = 298.0
)

// Environment holds the exogenous inputs of the lab. It is owned by the
// caller; the step function only reads it.
type Environment struct {
	// Energy inputs, 0-100
	UV            float64 `yaml:"uv" json:"uv"`
	Lightning     float64 `yaml:"lightning" json:"lightning"`
	Hydrothermal  float64 `yaml:"hydrothermal" json:"hydrothermal"`
	DryWetCycling float64 `yaml:"dry_wet_cycling" json:"dry_wet_cycling"`

	ChemistryRichness float64 `yaml:"chemistry_richness" json:"chemistry_richness"` // 0-100
	WaterActivity     float64 `yaml:"water_activity" json:"water_activity"`         // 0-100
	Temperature       float64 `yaml:"temperature" json:"temperature"`               // Kelvin
	MineralCatalysis  bool    `yaml:"mineral_catalysis" json:"mineral_catalysis"`
	TimeScale         float64 `yaml:"time_scale" json:"time_scale"` // simulated time multiplier
}

// DefaultEnvironment returns a neutral mid-range environment at room temperature.
func DefaultEnvironment() Environment {
	return Environment{
		UV:                30,
		Lightning:         20,
		Hydrothermal:      40,
		DryWetCycling:     50,
		ChemistryRichness: 60,
		WaterActivity:     70,
		Temperature:       OptimalTemperature,
		MineralCatalysis:  false,
		TimeScale:         1,
	}
}

// Clamped returns a copy with every field forced into its documented range.
func (e Environment) Clamped() Environment {
	e.UV = clampRange(e.UV, MinLevel, MaxLevel)
	e.Lightning = clampRange(e.Lightning, MinLevel, MaxLevel)
	e.Hydrothermal = clampRange(e.Hydrothermal, MinLevel, MaxLevel)
	e.DryWetCycling = clampRange(e.DryWetCycling, MinLevel, MaxLevel)
	e.ChemistryRichness = clampRange(e.ChemistryRichness, MinLevel, MaxLevel)
	e.WaterActivity = clampRange(e.WaterActivity, MinLevel, MaxLevel)
	e.Temperature = clampRange(e.Temperature, MinTemperature, MaxTemperature)
	e.TimeScale = clampRange(e.TimeScale, MinTimeScale, MaxTimeScale)
	return e
}

// Apply merges the set fields of p into e and clamps the result.
func (e Environment) Apply(p EnvironmentPatch) Environment {
	if p.UV != nil {
		e.UV = *p.UV
	}
	if p.Lightning != nil {
		e.Lightning = *p.Lightning
	}
	if p.Hydrothermal != nil {
		e.Hydrothermal = *p.Hydrothermal
	}
	if p.DryWetCycling != nil {
		e.DryWetCycling = *p.DryWetCycling
	}
	if p.ChemistryRichness != nil {
		e.ChemistryRichness = *p.ChemistryRichness
	}
	if p.WaterActivity != nil {
		e.WaterActivity = *p.WaterActivity
	}
	if p.Temperature != nil {
		e.Temperature = *p.Temperature
	}
	if p.MineralCatalysis != nil {
		e.MineralCatalysis = *p.MineralCatalysis
	}
	if p.TimeScale != nil {
		e.TimeScale = *p.TimeScale
	}
	return e.Clamped()
}

// EnvironmentPatch is a partial environment update. Nil fields are left as is.
type EnvironmentPatch struct {
	UV                *float64 `yaml:"uv,omitempty" json:"uv,omitempty"`
	Lightning         *float64 `yaml:"lightning,omitempty" json:"lightning,omitempty"`
	Hydrothermal      *float64 `yaml:"hydrothermal,omitempty" json:"hydrothermal,omitempty"`
	DryWetCycling     *float64 `yaml:"dry_wet_cycling,omitempty" json:"dry_wet_cycling,omitempty"`
	ChemistryRichness *float64 `yaml:"chemistry_richness,omitempty" json:"chemistry_richness,omitempty"`
	WaterActivity     *float64 `yaml:"water_activity,omitempty" json:"water_activity,omitempty"`
	Temperature       *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MineralCatalysis  *bool    `yaml:"mineral_catalysis,omitempty" json:"mineral_catalysis,omitempty"`
	TimeScale         *float64 `yaml:"time_scale,omitempty" json:"time_scale,omitempty"`
}

// IsEmpty reports whether the patch sets no field.
func (p EnvironmentPatch) IsEmpty() bool {
	return p.UV == nil && p.Lightning == nil && p.Hydrothermal == nil &&
		p.DryWetCycling == nil && p.ChemistryRichness == nil && p.WaterActivity == nil &&
		p.Temperature == nil && p.MineralCatalysis == nil && p.TimeScale == nil
}

// PatchFrom builds a patch that sets every field to the values in e.
func PatchFrom(e Environment) EnvironmentPatch {
	return EnvironmentPatch{
		UV:                &e.UV,
		Lightning:         &e.Lightning,
		Hydrothermal:      &e.Hydrothermal,
		DryWetCycling:     &e.DryWetCycling,
		ChemistryRichness: &e.ChemistryRichness,
		WaterActivity:     &e.WaterActivity,
		Temperature:       &e.Temperature,
		MineralCatalysis:  &e.MineralCatalysis,
		TimeScale:         &e.TimeScale,
	}
}

// clampRange clamps v to [lo, hi]. NaN maps to lo.
func clampRange(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
