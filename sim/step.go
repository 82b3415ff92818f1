package sim

import (
	"log/slog"

	"github.com/pthm-cable/protolab/lab"
	"github.com/pthm-cable/protolab/telemetry"
)

// Step advances the lab by one tick whether or not the clock loop is
// running and returns the new state. Headless runs and tests drive the
// simulation through Step.
func (s *Simulation) Step() lab.State {
	s.mu.Lock()
	events := s.advanceLocked()
	state := s.state
	s.mu.Unlock()

	s.notify(events)
	return state
}

// stepIfCurrent steps only if no pause or reset happened since the loop
// generation gen started.
func (s *Simulation) stepIfCurrent(gen uint64) {
	s.mu.Lock()
	if !s.running || s.generation != gen {
		s.mu.Unlock()
		return
	}
	events := s.advanceLocked()
	s.mu.Unlock()

	s.notify(events)
}

// advanceLocked runs one tick. s.mu must be held.
func (s *Simulation) advanceLocked() []StageEvent {
	s.perf.StartTick()

	s.perf.StartPhase(telemetry.PhaseScenario)
	s.applyScenarioLocked()

	s.perf.StartPhase(telemetry.PhaseStep)
	prev := s.state
	dt := s.opts.BaseDT * s.env.TimeScale
	next := lab.Step(prev, s.env, dt)

	s.perf.StartPhase(telemetry.PhaseValidate)
	if err := next.Validate(); err != nil {
		// Keep the last good state and stop; this is a fault, not a stall.
		slog.Error("lab invariant violated, pausing",
			"run_id", s.runID,
			"tick", s.tick+1,
			"stage", prev.Stage.String(),
			"error", err,
		)
		s.collector.RecordEvent(telemetry.NewFaultEvent(s.tick+1, next.SimTime, prev.Stage, err))
		s.pauseLocked()
		s.perf.EndTick()
		return nil
	}
	s.state = next
	s.tick++

	var events []StageEvent
	for st := prev.Stage + 1; st <= next.Stage; st++ {
		events = append(events, StageEvent{Stage: st, Tick: s.tick, SimTime: next.SimTime, State: next})
	}

	s.perf.StartPhase(telemetry.PhaseTelemetry)
	s.collector.Record(next)
	for _, ev := range events {
		tev := telemetry.NewStageAdvancedEvent(ev.Tick, ev.SimTime, ev.Stage)
		s.collector.RecordEvent(tev)
		s.timeline.Record(tev)
		slog.Info("stage advanced",
			"run_id", s.runID,
			"stage", ev.Stage.String(),
			"tick", ev.Tick,
			"sim_time", ev.SimTime,
		)
	}
	s.logStateLocked()

	s.perf.StartPhase(telemetry.PhaseMilestone)
	for _, ev := range events {
		s.recordMilestoneLocked(s.milestones.StageReached(telemetry.NewStageAdvancedEvent(ev.Tick, ev.SimTime, ev.Stage)))
	}
	s.flushTelemetryLocked()

	s.perf.EndTick()
	return events
}

// applyScenarioLocked applies every scripted step whose time has come.
func (s *Simulation) applyScenarioLocked() {
	for s.nextStep < len(s.scenario) && s.state.SimTime >= s.scenario[s.nextStep].At {
		step := s.scenario[s.nextStep]
		s.nextStep++
		s.setEnvironmentLocked(step.Set, "scenario")
		s.collector.RecordEvent(telemetry.NewScenarioEvent(s.tick, s.state.SimTime, s.state.Stage, step.At))
		slog.Info("scenario step applied",
			"run_id", s.runID,
			"at", step.At,
			"sim_time", s.state.SimTime,
		)
	}
}
