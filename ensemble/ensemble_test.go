package ensemble

import (
	"fmt"
	"testing"

	"github.com/pthm-cable/protolab/lab"
)

func genomeEnv() lab.Environment {
	return lab.Environment{
		UV:                30,
		Lightning:         40,
		Hydrothermal:      80,
		DryWetCycling:     85,
		ChemistryRichness: 90,
		WaterActivity:     80,
		Temperature:       298,
		MineralCatalysis:  true,
		TimeScale:         1,
	}
}

// coldEnv freezes chemistry below the amino acid gate.
func coldEnv() lab.Environment {
	env := genomeEnv()
	env.Temperature = lab.MinTemperature
	env.Lightning = 0
	env.UV = 0
	env.Hydrothermal = 0
	return env
}

func TestMatchesSingleLab(t *testing.T) {
	e := New(lab.BaseDT)
	e.Add("a", genomeEnv())

	want := lab.NewState()
	for i := 0; i < 300; i++ {
		e.Step()
		want = lab.Step(want, genomeEnv(), lab.BaseDT)
	}

	got := e.Results()[0].Final
	if got != want {
		t.Errorf("ensemble state diverged:\n got %+v\nwant %+v", got, want)
	}
	if e.Tick() != 300 {
		t.Errorf("Tick = %d, want 300", e.Tick())
	}
}

func TestProgressRecordsStageArrival(t *testing.T) {
	e := New(lab.BaseDT)
	e.Add("fast", genomeEnv())
	e.Add("cold", coldEnv())

	ticks := e.Run(5000, lab.StageDNAGenome)
	if ticks != 5000 {
		t.Errorf("Run stopped after %d ticks although cold lab cannot finish", ticks)
	}

	results := e.Results()
	if results[0].Label != "fast" || results[1].Label != "cold" {
		t.Fatalf("results out of insertion order: %v, %v", results[0].Label, results[1].Label)
	}

	fast := results[0]
	if fast.Final.Stage != lab.StageDNAGenome {
		t.Fatalf("fast lab ended at %v", fast.Final.Stage)
	}
	prev := int64(0)
	for s := lab.StageAminoAcids; s <= lab.StageDNAGenome; s++ {
		at, ok := fast.Reached(s)
		if !ok {
			t.Fatalf("stage %v not recorded", s)
		}
		if at < prev {
			t.Errorf("stage %v reached at %d, before previous stage at %d", s, at, prev)
		}
		prev = at
	}

	cold := results[1]
	if _, ok := cold.Reached(lab.StageDNAGenome); ok {
		t.Error("cold lab recorded the final stage")
	}
	if at, ok := cold.Reached(lab.StageSimpleMolecules); !ok || at != 0 {
		t.Errorf("stage 0 should be reached at tick 0, got %d %v", at, ok)
	}
}

func TestRunStopsWhenAllReached(t *testing.T) {
	e := New(lab.BaseDT)
	e.Add("a", genomeEnv())
	e.Add("b", genomeEnv())

	ticks := e.Run(10000, lab.StageAminoAcids)
	if ticks == 0 || ticks >= 10000 {
		t.Fatalf("Run took %d ticks", ticks)
	}
	if !e.AllReached(lab.StageAminoAcids) {
		t.Error("AllReached false after Run returned early")
	}
	at, _ := e.Results()[0].Reached(lab.StageAminoAcids)
	if at != ticks {
		t.Errorf("amino acids reached at %d, Run returned %d", at, ticks)
	}
}

func TestParallelMatchesSequential(t *testing.T) {
	big := New(lab.BaseDT)
	for i := 0; i < parallelThreshold+10; i++ {
		env := genomeEnv()
		env.Hydrothermal = float64(i % 100)
		big.Add(fmt.Sprintf("m%d", i), env)
	}
	for i := 0; i < 200; i++ {
		big.Step()
	}

	for i, r := range big.Results() {
		want := lab.NewState()
		for j := 0; j < 200; j++ {
			want = lab.Step(want, r.Environment, lab.BaseDT)
		}
		if r.Final != want {
			t.Fatalf("member %d diverged from a sequential run", i)
		}
	}
}

func TestAddClampsAndScalesTime(t *testing.T) {
	e := New(lab.BaseDT)
	env := genomeEnv()
	env.UV = 500
	env.TimeScale = 2
	e.Add("x", env)
	e.Step()

	r := e.Results()[0]
	if r.Environment.UV != lab.MaxLevel {
		t.Errorf("UV = %v, want clamped", r.Environment.UV)
	}
	if r.Final.SimTime != 2*lab.BaseDT {
		t.Errorf("SimTime = %v, want %v", r.Final.SimTime, 2*lab.BaseDT)
	}
	if e.Len() != 1 {
		t.Errorf("Len = %d", e.Len())
	}
}
