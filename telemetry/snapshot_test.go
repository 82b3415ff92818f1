package telemetry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pthm-cable/protolab/lab"
)

func TestSaveSnapshot(t *testing.T) {
	tmpDir := t.TempDir()

	state := lab.NewState()
	state.Stage = lab.StageProtocells
	state.VesicleCount = 22.5
	env := lab.DefaultEnvironment()

	timeline := NewStageTimeline()
	timeline.Record(NewStageAdvancedEvent(40, 4, lab.StageAminoAcids))

	snapshot := &Snapshot{
		Version:     SnapshotVersion,
		RunID:       "run-1",
		Tick:        1000,
		Environment: env,
		State:       state,
		Gate:        lab.Diagnose(state, env),
		Timeline:    timeline.Entries(),
	}

	path, err := SaveSnapshot(snapshot, tmpDir)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if filepath.Base(path) != "snapshot_1000.json" {
		t.Errorf("unexpected filename %s", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	var loaded Snapshot
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}

	if loaded.Version != SnapshotVersion || loaded.RunID != "run-1" {
		t.Errorf("header = %d/%s", loaded.Version, loaded.RunID)
	}
	if loaded.State != state {
		t.Errorf("state = %+v, want %+v", loaded.State, state)
	}
	if loaded.Environment != env {
		t.Errorf("environment = %+v, want %+v", loaded.Environment, env)
	}
	if loaded.Gate.Target != lab.StageTemplates {
		t.Errorf("gate target = %v", loaded.Gate.Target)
	}
	if len(loaded.Timeline) != 2 || loaded.Timeline[1].Tick != 40 {
		t.Errorf("timeline = %+v", loaded.Timeline)
	}
}

func TestSaveSnapshotWithMilestone(t *testing.T) {
	tmpDir := t.TempDir()

	snapshot := &Snapshot{
		Version: SnapshotVersion,
		Tick:    500,
		State:   lab.NewState(),
		Milestone: &Milestone{
			Type:        MilestoneStalled,
			Tick:        500,
			Description: "No progress",
		},
	}

	path, err := SaveSnapshot(snapshot, tmpDir)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if !strings.HasSuffix(path, "snapshot_500_stalled.json") {
		t.Errorf("expected milestone type in filename, got %s", path)
	}
}

func TestStageTimeline(t *testing.T) {
	st := NewStageTimeline()

	st.Record(NewStageAdvancedEvent(10, 1, lab.StageAminoAcids))
	st.Record(NewStageAdvancedEvent(30, 3, lab.StagePeptides))
	st.Record(NewStageAdvancedEvent(50, 5, lab.StageAminoAcids)) // repeat ignored
	st.Record(NewEnvironmentChangedEvent(60, 6, lab.StagePeptides, []string{"uv"}))

	if got := st.Dwell(lab.StageAminoAcids, 10); got != 2 {
		t.Errorf("dwell in amino_acids = %v, want 2", got)
	}
	if got := st.Dwell(lab.StagePeptides, 10); got != 7 {
		t.Errorf("dwell in current stage = %v, want 7", got)
	}
	if got := st.Dwell(lab.StageRNAWorld, 10); got != 0 {
		t.Errorf("dwell in unreached stage = %v, want 0", got)
	}
	if e, ok := st.Reached(lab.StageAminoAcids); !ok || e.Tick != 10 {
		t.Errorf("Reached(amino_acids) = %+v, %v", e, ok)
	}
	if n := len(st.Entries()); n != 3 {
		t.Errorf("entries = %d, want 3", n)
	}

	st.Reset()
	if n := len(st.Entries()); n != 1 {
		t.Errorf("entries after reset = %d, want 1", n)
	}
}

func TestHallOfFameKeepsBest(t *testing.T) {
	hof := NewHallOfFame(3)

	for i, f := range []float64{5, 1, 9, 3, 7} {
		hof.Consider(HallEntry{Label: string(rune('a' + i)), Fitness: f})
	}

	entries := hof.Entries()
	if len(entries) != 3 {
		t.Fatalf("size = %d, want 3", len(entries))
	}
	want := []float64{9, 7, 5}
	for i, e := range entries {
		if e.Fitness != want[i] {
			t.Errorf("entries[%d].Fitness = %v, want %v", i, e.Fitness, want[i])
		}
	}
	if hof.Consider(HallEntry{Fitness: 2}) {
		t.Error("low-fitness entry should be rejected when full")
	}
	if best, ok := hof.Best(); !ok || best.Label != "c" {
		t.Errorf("Best() = %+v, %v", best, ok)
	}
}
