// Package main provides CMA-ES optimization over the lab environment.
package main

import (
	"github.com/pthm-cable/protolab/lab"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string  // Environment parameter name
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Starting value
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates one spec per continuous environment input, starting
// from base.
func NewParamVector(base lab.Environment) *ParamVector {
	base = base.Clamped()
	var specs []ParamSpec
	for _, p := range lab.Params() {
		specs = append(specs, ParamSpec{Name: p.Name, Min: p.Min, Max: p.Max, Default: p.Get(base)})
	}
	return &ParamVector{Specs: specs}
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
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// Apply writes the clamped values into a copy of base.
func (pv *ParamVector) Apply(base lab.Environment, values []float64) lab.Environment {
	clamped := pv.Clamp(values)
	env := base
	for i, spec := range pv.Specs {
		p, ok := lab.LookupParam(spec.Name)
		if !ok {
			continue
		}
		p.Set(&env, clamped[i])
	}
	return env.Clamped()
}
