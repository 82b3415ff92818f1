package lab

import (
	"math"
	"testing"
)

func TestGrowthPermitted(t *testing.T) {
	base := rnaWorldEnv()
	with := func(mut func(*Environment)) Environment {
		e := base
		mut(&e)
		return e
	}

	tests := []struct {
		name   string
		target Stage
		env    Environment
		want   bool
	}{
		{"amino acids with energy", StageAminoAcids, base, true},
		{"amino acids without energy", StageAminoAcids, with(func(e *Environment) {
			e.UV, e.Lightning, e.Hydrothermal, e.DryWetCycling = 0, 0, 0, 0
		}), false},
		{"peptides at thresholds", StagePeptides, with(func(e *Environment) { e.DryWetCycling, e.Hydrothermal = 60, 40 }), true},
		{"peptides dry", StagePeptides, with(func(e *Environment) { e.DryWetCycling = 59.9 }), false},
		{"protocells", StageProtocells, base, true},
		{"protocells low water", StageProtocells, with(func(e *Environment) { e.WaterActivity = 50 }), false},
		{"templates warm edge", StageTemplates, with(func(e *Environment) { e.Temperature = 308 }), true},
		{"templates too warm", StageTemplates, with(func(e *Environment) { e.Temperature = 308.5 }), false},
		{"templates poor chemistry", StageTemplates, with(func(e *Environment) { e.ChemistryRichness = 69 }), false},
		{"rna world", StageRNAWorld, base, true},
		{"rna world too much uv", StageRNAWorld, with(func(e *Environment) { e.UV = 46 }), false},
		{"rna world too little lightning", StageRNAWorld, with(func(e *Environment) { e.Lightning = 29 }), false},
		{"rna world off temperature", StageRNAWorld, with(func(e *Environment) { e.Temperature = 304 }), false},
		{"dna genome", StageDNAGenome, base, true},
		{"dna genome flooded", StageDNAGenome, with(func(e *Environment) { e.WaterActivity = 91 }), false},
		{"dna genome uv above window", StageDNAGenome, with(func(e *Environment) { e.UV = 36 }), false},
		{"dna genome temperature edge", StageDNAGenome, with(func(e *Environment) { e.Temperature = 301 }), true},
		{"dna genome temperature out", StageDNAGenome, with(func(e *Environment) { e.Temperature = 301.5 }), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GrowthPermitted(tt.target, tt.env); got != tt.want {
				t.Errorf("GrowthPermitted(%v) = %v, want %v (blockers: %v)",
					tt.target, got, tt.want, growthBlockers(tt.target, tt.env))
			}
		})
	}
}

func TestReadyToAdvance(t *testing.T) {
	env := rnaWorldEnv()

	tests := []struct {
		name   string
		target Stage
		state  State
		want   bool
	}{
		{"yield exactly 1", StageAminoAcids, State{AminoAcidYield: 1.0}, false},
		{"yield above 1", StageAminoAcids, State{AminoAcidYield: 1.01}, true},
		{"peptides short", StagePeptides, State{PeptideCount: 60, MeanPeptideLength: 4.9}, false},
		{"peptides count at 50", StagePeptides, State{PeptideCount: 50, MeanPeptideLength: 5}, false},
		{"peptides ready", StagePeptides, State{PeptideCount: 51, MeanPeptideLength: 5}, true},
		{"protocells ready", StageProtocells, State{VesicleCount: 21, EncapsulationRate: 0.11}, true},
		{"protocells leaky", StageProtocells, State{VesicleCount: 21, EncapsulationRate: 0.1}, false},
		{"templates ready", StageTemplates, State{TemplateStrands: 5, MeanStrandLength: 5}, true},
		{"rna needs eigen", StageRNAWorld, State{TemplateStrands: 10, MeanStrandLength: 10, PassesEigen: false}, false},
		{"rna ready", StageRNAWorld, State{TemplateStrands: 10, MeanStrandLength: 10, PassesEigen: true}, true},
		{"dna low accuracy", StageDNAGenome, State{RNAStrands: 10, RNALength: 25, PerBaseAccuracy: 0.85}, false},
		{"dna ready", StageDNAGenome, State{RNAStrands: 10, RNALength: 25, PerBaseAccuracy: 0.86}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReadyToAdvance(tt.target, tt.state, env); got != tt.want {
				t.Errorf("ReadyToAdvance(%v) = %v, want %v (blockers: %v)",
					tt.target, got, tt.want, advanceBlockers(tt.target, tt.state, env))
			}
		})
	}
}

func TestReadyToAdvanceRequiresPermission(t *testing.T) {
	env := rnaWorldEnv()
	env.Temperature = 320

	s := State{TemplateStrands: 20, MeanStrandLength: 20, RNAStrands: 50, RNALength: 100, PerBaseAccuracy: 0.99}
	if ReadyToAdvance(StageTemplates, s, env) {
		t.Error("templates advanced outside the temperature window")
	}
	if ReadyToAdvance(StageDNAGenome, s, env) {
		t.Error("dna genome advanced outside the temperature window")
	}
}

func TestAdvanceIsSequential(t *testing.T) {
	env := rnaWorldEnv()
	// Every later predicate holds but peptides are missing.
	s := State{
		Stage:             StageAminoAcids,
		VesicleCount:      30,
		EncapsulationRate: 0.5,
		TemplateStrands:   15,
		MeanStrandLength:  10,
		PassesEigen:       true,
		RNAStrands:        20,
		RNALength:         40,
		PerBaseAccuracy:   0.94,
	}
	if got := advance(s, env); got != StageAminoAcids {
		t.Errorf("advance = %v, want amino_acids", got)
	}

	s.PeptideCount, s.MeanPeptideLength = 60, 6
	if got := advance(s, env); got != StageDNAGenome {
		t.Errorf("advance = %v, want dna_genome in one pass", got)
	}
}

func TestDiagnose(t *testing.T) {
	env := rnaWorldEnv()
	env.DryWetCycling = 10

	r := Diagnose(State{Stage: StageAminoAcids}, env)
	if r.Target != StagePeptides {
		t.Fatalf("target = %v, want peptides", r.Target)
	}
	if r.GrowthPermitted {
		t.Error("growth should be blocked by dry_wet_cycling")
	}
	if len(r.GrowthBlockers) != 1 {
		t.Errorf("growth blockers = %v, want exactly one", r.GrowthBlockers)
	}
	if r.ReadyToAdvance || len(r.AdvanceBlockers) != 2 {
		t.Errorf("advance blockers = %v, want two", r.AdvanceBlockers)
	}

	done := Diagnose(State{Stage: StageDNAGenome}, env)
	if !done.Complete || done.Target != StageDNAGenome {
		t.Errorf("final stage report = %+v", done)
	}
}

func TestEigenThreshold(t *testing.T) {
	tests := []struct {
		length float64
		p      float64
		want   bool
	}{
		{0, 0.5, true},    // L = 1, pCrit ~ 0.307
		{0.4, 0.31, true}, // rounds to 0, guarded to 1
		{10, 0.94, true},  // pCrit ~ 0.9307
		{11.4, 0.94, true},
		{11.6, 0.94, false}, // L = 12, pCrit ~ 0.9422
		{30, 0.976, false},
		{30, 0.977, true},
	}
	for _, tt := range tests {
		got, fidelity := eigen(tt.p, tt.length)
		if got != tt.want {
			t.Errorf("eigen(p=%v, len=%v) = %v, want %v", tt.p, tt.length, got, tt.want)
		}
		wantFid := math.Pow(tt.p, float64(EffectiveLength(tt.length)))
		if math.Abs(fidelity-wantFid) > 1e-12 {
			t.Errorf("fidelity = %v, want %v", fidelity, wantFid)
		}
	}
}

func TestPerBaseAccuracy(t *testing.T) {
	tests := []struct {
		name string
		env  Environment
		want float64
	}{
		{"optimum with minerals", Environment{Temperature: 298, MineralCatalysis: true}, 0.995},
		{"optimum bare", Environment{Temperature: 298}, 0.82},
		{"full uv", Environment{Temperature: 298, UV: 100}, 0.62},
		{"frozen", Environment{Temperature: 253}, 0.70},
		{"scorched with uv", Environment{Temperature: 673, UV: 100}, 0.5},
		{"rna world", rnaWorldEnv(), 0.94},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PerBaseAccuracy(tt.env)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("PerBaseAccuracy = %v, want %v", got, tt.want)
			}
		})
	}
}
