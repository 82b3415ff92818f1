package main

import (
	"math"
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

func TestParamVectorRoundTrip(t *testing.T) {
	base := genomeEnv()
	pv := NewParamVector(base)
	if pv.Dim() != len(lab.Params()) {
		t.Fatalf("Dim = %d", pv.Dim())
	}

	raw := pv.DefaultVector()
	back := pv.Denormalize(pv.Normalize(raw))
	for i := range raw {
		if math.Abs(back[i]-raw[i]) > 1e-9 {
			t.Errorf("%s: %v -> %v", pv.Specs[i].Name, raw[i], back[i])
		}
	}
	if got := pv.Apply(lab.Environment{MineralCatalysis: true}, raw); got != base {
		t.Errorf("Apply(defaults) = %+v, want %+v", got, base)
	}
}

func TestParamVectorClamps(t *testing.T) {
	pv := NewParamVector(genomeEnv())
	x := pv.Denormalize(make([]float64, pv.Dim()))
	for i := range x {
		x[i] -= 1000
	}
	env := pv.Apply(genomeEnv(), x)
	if env.UV != lab.MinLevel || env.Temperature != lab.MinTemperature || env.TimeScale != lab.MinTimeScale {
		t.Errorf("out-of-range values not clamped: %+v", env)
	}
}

func TestFitnessPrefersFinishingEnvironment(t *testing.T) {
	base := genomeEnv()
	pv := NewParamVector(base)
	fe := NewFitnessEvaluator(pv, base, 4000, 2, 0.01, 1, lab.BaseDT)

	good := fe.Evaluate(pv.DefaultVector())

	cold := base
	cold.Hydrothermal = 0
	poor := fe.Evaluate(NewParamVector(cold).DefaultVector())

	if good.Fitness >= poor.Fitness {
		t.Errorf("good fitness %.1f not below poor %.1f", good.Fitness, poor.Fitness)
	}
	if good.FinishedFrac == 0 || good.FastestFinish <= 0 {
		t.Errorf("genome environment should finish: %+v", good)
	}
	if len(good.CopyResults) != 2 {
		t.Errorf("CopyResults = %d, want 2", len(good.CopyResults))
	}

	best := fe.Best()
	if best.Fitness != good.Fitness {
		t.Errorf("Best fitness = %v, want %v", best.Fitness, good.Fitness)
	}
	entry, ok := fe.HallOfFame().Best()
	if !ok || entry.Fitness != -good.Fitness || entry.Stage != lab.StageDNAGenome {
		t.Errorf("hall of fame best = %+v", entry)
	}
}
