package telemetry

import "github.com/pthm-cable/protolab/lab"

// Collector accumulates per-tick samples and events within time windows
// and produces WindowStats.
type Collector struct {
	windowDurationSec float64

	// Current window tracking
	windowStartTick int64
	windowStartSim  float64

	// Event counters for current window
	stageAdvances int
	envChanges    int
	scenarioSteps int
	faults        int

	// Threshold tracking
	eigenGained int
	eigenLost   int
	eigenTicks  int
	lastPasses  bool
	havePrev    bool

	// Life potential samples for the current window
	potentials []float64
}

// windowEpsilon absorbs float drift in summed time steps.
const windowEpsilon = 1e-9

// NewCollector creates a new stats collector whose windows last
// windowDurationSec simulated seconds, whatever the time scale.
func NewCollector(windowDurationSec float64) *Collector {
	return &Collector{
		windowDurationSec: windowDurationSec,
		potentials:        make([]float64, 0, 64),
	}
}

// Record samples the state produced by one tick.
func (c *Collector) Record(s lab.State) {
	if c.havePrev && s.PassesEigen != c.lastPasses {
		if s.PassesEigen {
			c.eigenGained++
		} else {
			c.eigenLost++
		}
	}
	c.lastPasses = s.PassesEigen
	c.havePrev = true

	if s.PassesEigen {
		c.eigenTicks++
	}
	c.potentials = append(c.potentials, s.LifePotential)
}

// RecordEvent counts an event in the current window.
func (c *Collector) RecordEvent(ev Event) {
	switch ev.Type {
	case EventStageAdvanced:
		c.stageAdvances++
	case EventEnvironmentChanged:
		c.envChanges++
	case EventScenarioApplied:
		c.scenarioSteps++
	case EventFault:
		c.faults++
	}
}

// ShouldFlush returns true once the window spans windowDurationSec of
// simulated time.
func (c *Collector) ShouldFlush(simTime float64) bool {
	return simTime-c.windowStartSim >= c.windowDurationSec-windowEpsilon
}

// Flush produces a WindowStats from the window's samples and the state at
// currentTick, then resets counters for the next window.
func (c *Collector) Flush(currentTick int64, s lab.State) WindowStats {
	var eigenFraction float64
	if len(c.potentials) > 0 {
		eigenFraction = float64(c.eigenTicks) / float64(len(c.potentials))
	}
	lpMean, lpStd, lpP10, lpP50, lpP90 := ComputeSeriesStats(c.potentials)

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      s.SimTime,

		Stage:     int(s.Stage),
		StageName: s.Stage.String(),

		StageAdvances: c.stageAdvances,
		EnvChanges:    c.envChanges,
		ScenarioSteps: c.scenarioSteps,
		Faults:        c.faults,

		EigenGained:       c.eigenGained,
		EigenLost:         c.eigenLost,
		EigenPassFraction: eigenFraction,
		PerBaseAccuracy:   s.PerBaseAccuracy,
		StrandFidelity:    s.StrandFidelity,

		AminoAcidYield:    s.AminoAcidYield,
		PeptideCount:      s.PeptideCount,
		MeanPeptideLength: s.MeanPeptideLength,
		VesicleCount:      s.VesicleCount,
		EncapsulationRate: s.EncapsulationRate,
		TemplateStrands:   s.TemplateStrands,
		MeanStrandLength:  s.MeanStrandLength,
		RNAStrands:        s.RNAStrands,
		RNALength:         s.RNALength,
		DNAStrands:        s.DNAStrands,
		DNALength:         s.DNALength,

		LifePotential:     s.LifePotential,
		LifeCeiling:       lab.LifeCeiling(s),
		LifePotentialMean: lpMean,
		LifePotentialStd:  lpStd,
		LifePotentialP10:  lpP10,
		LifePotentialP50:  lpP50,
		LifePotentialP90:  lpP90,
	}

	c.windowStartTick = currentTick
	c.windowStartSim = s.SimTime
	c.resetCounters()

	return stats
}

// Reset discards the current window and restarts counting at tick 0.
func (c *Collector) Reset() {
	c.windowStartTick = 0
	c.windowStartSim = 0
	c.havePrev = false
	c.lastPasses = false
	c.resetCounters()
}

func (c *Collector) resetCounters() {
	c.stageAdvances = 0
	c.envChanges = 0
	c.scenarioSteps = 0
	c.faults = 0
	c.eigenGained = 0
	c.eigenLost = 0
	c.eigenTicks = 0
	c.potentials = c.potentials[:0]
}

// WindowDurationSec returns the window length in simulated seconds.
func (c *Collector) WindowDurationSec() float64 {
	return c.windowDurationSec
}
