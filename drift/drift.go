// Package drift perturbs the lab environment over simulated time with
// smooth OpenSimplex noise.
package drift

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ojrac/opensimplex-go"

	"github.com/pthm-cable/protolab/config"
	"github.com/pthm-cable/protolab/lab"
)

// Target is the lab being perturbed.
type Target interface {
	Snapshot() lab.State
	SetEnvironment(lab.EnvironmentPatch) lab.Environment
}

// channel drives one parameter from its own noise row.
type channel struct {
	param     lab.Param
	amplitude float64
	row       float64
}

// rowSpacing separates parameter rows far enough that they decorrelate.
const rowSpacing = 17.31

// Driver computes drifted values around a base environment.
type Driver struct {
	noise    opensimplex.Noise
	base     lab.Environment
	period   float64
	channels []channel
}

// New creates a driver for the parameters with a non-zero amplitude in cfg.
func New(seed int64, cfg config.DriftConfig, base lab.Environment) (*Driver, error) {
	if cfg.Period <= 0 {
		return nil, fmt.Errorf("drift period must be positive, got %v", cfg.Period)
	}

	names := make([]string, 0, len(cfg.Amplitude))
	for name := range cfg.Amplitude {
		names = append(names, name)
	}
	sort.Strings(names)

	d := &Driver{
		noise:  opensimplex.New(seed),
		base:   base.Clamped(),
		period: cfg.Period,
	}
	for _, name := range names {
		amp := cfg.Amplitude[name]
		if amp == 0 {
			continue
		}
		p, ok := lab.LookupParam(name)
		if !ok {
			return nil, fmt.Errorf("drift: unknown parameter %q", name)
		}
		d.channels = append(d.channels, channel{
			param:     p,
			amplitude: math.Abs(amp),
			row:       float64(paramIndex(name)) * rowSpacing,
		})
	}
	return d, nil
}

func paramIndex(name string) int {
	for i, p := range lab.Params() {
		if p.Name == name {
			return i
		}
	}
	return 0
}

// Active reports whether any parameter drifts.
func (d *Driver) Active() bool {
	return len(d.channels) > 0
}

// Base returns the environment the drift is centred on.
func (d *Driver) Base() lab.Environment {
	return d.base
}

// Patch returns the drifted values at simTime for every configured parameter.
// Each value stays within base ± amplitude and within the parameter's range.
func (d *Driver) Patch(simTime float64) lab.EnvironmentPatch {
	env := d.base
	x := simTime / d.period
	for _, ch := range d.channels {
		n := d.noise.Eval2(x, ch.row)
		n = math.Max(-1, math.Min(1, n))
		v := ch.param.Get(d.base) + ch.amplitude*n
		ch.param.Set(&env, math.Max(ch.param.Min, math.Min(ch.param.Max, v)))
	}

	full := lab.PatchFrom(env)
	patch := lab.EnvironmentPatch{}
	for _, ch := range d.channels {
		copyField(&patch, full, ch.param.Name)
	}
	return patch
}

// copyField moves one named field from src into dst.
func copyField(dst *lab.EnvironmentPatch, src lab.EnvironmentPatch, name string) {
	switch name {
	case "uv":
		dst.UV = src.UV
	case "lightning":
		dst.Lightning = src.Lightning
	case "hydrothermal":
		dst.Hydrothermal = src.Hydrothermal
	case "dry_wet_cycling":
		dst.DryWetCycling = src.DryWetCycling
	case "chemistry_richness":
		dst.ChemistryRichness = src.ChemistryRichness
	case "water_activity":
		dst.WaterActivity = src.WaterActivity
	case "temperature":
		dst.Temperature = src.Temperature
	case "time_scale":
		dst.TimeScale = src.TimeScale
	}
}

// Run applies the drift patch for the target's current simulated time every
// interval until ctx is cancelled.
func (d *Driver) Run(ctx context.Context, target Target, clk clock.Clock, interval time.Duration) error {
	if !d.Active() {
		slog.Info("drift disabled: no parameter has an amplitude")
		<-ctx.Done()
		return nil
	}
	if clk == nil {
		clk = clock.New()
	}

	ticker := clk.Ticker(interval)
	defer ticker.Stop()

	names := make([]string, len(d.channels))
	for i, ch := range d.channels {
		names[i] = ch.param.Name
	}
	slog.Info("drift started", "params", names, "period", d.period, "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			simTime := target.Snapshot().SimTime
			env := target.SetEnvironment(d.Patch(simTime))
			slog.Debug("drift applied", "sim_time", simTime, "environment", env)
		}
	}
}
