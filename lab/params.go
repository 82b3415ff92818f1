package lab

// Param describes one continuous environment input by name.
type Param struct {
	Name string
	Min  float64
	Max  float64
	Get  func(Environment) float64
	Set  func(*Environment, float64)
}

var params = []Param{
	{"uv", MinLevel, MaxLevel,
		func(e Environment) float64 { return e.UV }, func(e *Environment, v float64) { e.UV = v }},
	{"lightning", MinLevel, MaxLevel,
		func(e Environment) float64 { return e.Lightning }, func(e *Environment, v float64) { e.Lightning = v }},
	{"hydrothermal", MinLevel, MaxLevel,
		func(e Environment) float64 { return e.Hydrothermal }, func(e *Environment, v float64) { e.Hydrothermal = v }},
	{"dry_wet_cycling", MinLevel, MaxLevel,
		func(e Environment) float64 { return e.DryWetCycling }, func(e *Environment, v float64) { e.DryWetCycling = v }},
	{"chemistry_richness", MinLevel, MaxLevel,
		func(e Environment) float64 { return e.ChemistryRichness }, func(e *Environment, v float64) { e.ChemistryRichness = v }},
	{"water_activity", MinLevel, MaxLevel,
		func(e Environment) float64 { return e.WaterActivity }, func(e *Environment, v float64) { e.WaterActivity = v }},
	{"temperature", MinTemperature, MaxTemperature,
		func(e Environment) float64 { return e.Temperature }, func(e *Environment, v float64) { e.Temperature = v }},
	{"time_scale", MinTimeScale, MaxTimeScale,
		func(e Environment) float64 { return e.TimeScale }, func(e *Environment, v float64) { e.TimeScale = v }},
}

// Params returns the continuous environment inputs in a fixed order.
func Params() []Param {
	out := make([]Param, len(params))
	copy(out, params)
	return out
}

// LookupParam finds a parameter by its snake_case name.
func LookupParam(name string) (Param, bool) {
	for _, p := range params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Changed lists the names of the inputs that differ between e and other.
func (e Environment) Changed(other Environment) []string {
	var out []string
	for _, p := range params {
		if p.Get(e) != p.Get(other) {
			out = append(out, p.Name)
		}
	}
	if e.MineralCatalysis != other.MineralCatalysis {
		out = append(out, "mineral_catalysis")
	}
	return out
}
