package lab

import (
	"fmt"
	"math"
)

// GrowthPermitted reports whether the products of target may accumulate
// under env this tick. Stage 0 has no products and is always permitted.
func GrowthPermitted(target Stage, env Environment) bool {
	return len(growthBlockers(target, env)) == 0
}

// ReadyToAdvance reports whether the advancement predicate for target holds.
// It does not check that the previous stage has been reached.
func ReadyToAdvance(target Stage, s State, env Environment) bool {
	return len(advanceBlockers(target, s, env)) == 0
}

// growthBlockers lists the unmet growth-permission conditions for target.
func growthBlockers(target Stage, env Environment) []string {
	env = env.Clamped()
	var out []string
	atLeast := func(name string, v, min float64) {
		if v < min {
			out = append(out, fmt.Sprintf("%s %.1f < %.0f", name, v, min))
		}
	}
	within := func(name string, v, lo, hi float64) {
		if v < lo || v > hi {
			out = append(out, fmt.Sprintf("%s %.1f outside [%.0f, %.0f]", name, v, lo, hi))
		}
	}
	nearOptimum := func(tol float64) {
		if math.Abs(env.Temperature-OptimalTemperature) > tol {
			out = append(out, fmt.Sprintf("temperature %.1fK not within %.0fK of %.0fK", env.Temperature, tol, OptimalTemperature))
		}
	}

	switch target {
	case StageAminoAcids:
		if energyFactor(env) <= 0 {
			out = append(out, "no energy input")
		}
	case StagePeptides:
		atLeast("dry_wet_cycling", env.DryWetCycling, 60)
		atLeast("hydrothermal", env.Hydrothermal, 40)
	case StageProtocells:
		atLeast("water_activity", env.WaterActivity, 60)
		atLeast("hydrothermal", env.Hydrothermal, 60)
	case StageTemplates:
		atLeast("chemistry_richness", env.ChemistryRichness, 70)
		atLeast("hydrothermal", env.Hydrothermal, 70)
		atLeast("dry_wet_cycling", env.DryWetCycling, 70)
		nearOptimum(10)
	case StageRNAWorld:
		within("uv", env.UV, 25, 45)
		within("lightning", env.Lightning, 30, 55)
		atLeast("chemistry_richness", env.ChemistryRichness, 85)
		atLeast("water_activity", env.WaterActivity, 75)
		nearOptimum(5)
	case StageDNAGenome:
		within("uv", env.UV, 20, 35)
		atLeast("dry_wet_cycling", env.DryWetCycling, 80)
		atLeast("chemistry_richness", env.ChemistryRichness, 85)
		within("water_activity", env.WaterActivity, 75, 90)
		nearOptimum(3)
	}
	return out
}

// advanceBlockers lists the unmet advancement conditions for target.
func advanceBlockers(target Stage, s State, env Environment) []string {
	var out []string
	need := func(ok bool, format string, args ...any) {
		if !ok {
			out = append(out, fmt.Sprintf(format, args...))
		}
	}
	permitted := func() {
		if blockers := growthBlockers(target, env); len(blockers) > 0 {
			out = append(out, "growth not permitted")
		}
	}

	switch target {
	case StageSimpleMolecules:
	case StageAminoAcids:
		need(s.AminoAcidYield > 1.0, "amino_acid_yield %.2f <= 1.0", s.AminoAcidYield)
	case StagePeptides:
		need(s.MeanPeptideLength >= 5, "mean_peptide_length %.2f < 5", s.MeanPeptideLength)
		need(s.PeptideCount > 50, "peptide_count %.1f <= 50", s.PeptideCount)
	case StageProtocells:
		need(s.VesicleCount > 20, "vesicle_count %.1f <= 20", s.VesicleCount)
		need(s.EncapsulationRate > 0.1, "encapsulation_rate %.3f <= 0.1", s.EncapsulationRate)
	case StageTemplates:
		need(s.TemplateStrands >= 5, "template_strands %.1f < 5", s.TemplateStrands)
		need(s.MeanStrandLength >= 5, "mean_strand_length %.2f < 5", s.MeanStrandLength)
		permitted()
	case StageRNAWorld:
		need(s.TemplateStrands >= 10, "template_strands %.1f < 10", s.TemplateStrands)
		need(s.MeanStrandLength >= 10, "mean_strand_length %.2f < 10", s.MeanStrandLength)
		need(s.PassesEigen, "below error threshold: accuracy %.3f < %.3f",
			s.PerBaseAccuracy, CriticalAccuracy(EffectiveLength(s.MeanStrandLength)))
	case StageDNAGenome:
		need(s.RNAStrands >= 10, "rna_strands %.1f < 10", s.RNAStrands)
		need(s.RNALength >= 25, "rna_length %.2f < 25", s.RNALength)
		need(s.PerBaseAccuracy > 0.85, "per_base_accuracy %.3f <= 0.85", s.PerBaseAccuracy)
		permitted()
	default:
		out = append(out, "unknown stage")
	}
	return out
}

// GateReport explains why the lab is or is not moving toward its next stage.
type GateReport struct {
	Current         Stage    `json:"current"`
	Target          Stage    `json:"target"`
	Complete        bool     `json:"complete"`
	GrowthPermitted bool     `json:"growth_permitted"`
	ReadyToAdvance  bool     `json:"ready_to_advance"`
	GrowthBlockers  []string `json:"growth_blockers,omitempty"`
	AdvanceBlockers []string `json:"advance_blockers,omitempty"`
}

// Diagnose reports the gate status of the next stage.
func Diagnose(s State, env Environment) GateReport {
	r := GateReport{Current: s.Stage, Target: s.Stage.Next(), Complete: s.Stage.Final()}
	if r.Complete {
		r.GrowthPermitted = true
		return r
	}
	r.GrowthBlockers = growthBlockers(r.Target, env)
	r.AdvanceBlockers = advanceBlockers(r.Target, s, env)
	r.GrowthPermitted = len(r.GrowthBlockers) == 0
	r.ReadyToAdvance = len(r.AdvanceBlockers) == 0
	return r
}
