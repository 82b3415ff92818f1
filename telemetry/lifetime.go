package telemetry

import "github.com/pthm-cable/protolab/lab"

// StageEntry records when a stage was first reached.
type StageEntry struct {
	Stage   lab.Stage `json:"stage"`
	Name    string    `json:"name"`
	Tick    int64     `json:"tick"`
	SimTime float64   `json:"sim_time"`
}

// StageTimeline tracks when each stage of one lab was reached. Stage 0 is
// reached at tick 0.
type StageTimeline struct {
	entries [lab.NumStages]StageEntry
	reached [lab.NumStages]bool
}

// NewStageTimeline creates a timeline with only the initial stage reached.
func NewStageTimeline() *StageTimeline {
	st := &StageTimeline{}
	st.Reset()
	return st
}

// Reset forgets every stage except the initial one.
func (st *StageTimeline) Reset() {
	*st = StageTimeline{}
	st.entries[lab.StageSimpleMolecules] = StageEntry{
		Stage: lab.StageSimpleMolecules,
		Name:  lab.StageSimpleMolecules.String(),
	}
	st.reached[lab.StageSimpleMolecules] = true
}

// Record notes a stage advance. Repeated or invalid stages are ignored.
func (st *StageTimeline) Record(ev Event) {
	if ev.Type != EventStageAdvanced || !ev.Stage.Valid() || st.reached[ev.Stage] {
		return
	}
	st.entries[ev.Stage] = StageEntry{
		Stage:   ev.Stage,
		Name:    ev.Stage.String(),
		Tick:    ev.Tick,
		SimTime: ev.SimTime,
	}
	st.reached[ev.Stage] = true
}

// Reached returns the entry for stage if it has been reached.
func (st *StageTimeline) Reached(stage lab.Stage) (StageEntry, bool) {
	if !stage.Valid() || !st.reached[stage] {
		return StageEntry{}, false
	}
	return st.entries[stage], true
}

// Dwell returns the simulated seconds spent in stage. For the current
// stage it is measured up to now.
func (st *StageTimeline) Dwell(stage lab.Stage, now float64) float64 {
	entry, ok := st.Reached(stage)
	if !ok {
		return 0
	}
	if next, ok := st.Reached(stage + 1); ok && !stage.Final() {
		return next.SimTime - entry.SimTime
	}
	return now - entry.SimTime
}

// Entries returns the reached stages in order.
func (st *StageTimeline) Entries() []StageEntry {
	var out []StageEntry
	for i, ok := range st.reached {
		if ok {
			out = append(out, st.entries[i])
		}
	}
	return out
}
