package lab

import "math"

// BaseDT is the simulated time per tick at TimeScale 1.
const BaseDT = 0.1

// minStrandTarget keeps the strand length target above the templates
// threshold of 5, so only accuracy gates the later stages.
const minStrandTarget = 5.5

// energyFactor is the combined energy input in [0, 1]. UV counts half.
func energyFactor(env Environment) float64 {
	return clampRange((env.UV*0.5+env.Lightning+env.Hydrothermal+env.DryWetCycling)/400, 0, 1)
}

func mineralFactor(env Environment) float64 {
	if env.MineralCatalysis {
		return 1.5
	}
	return 1.0
}

// Step advances prev by dt simulated seconds under env and returns the new
// state. prev is not modified. A non-positive or NaN dt only recomputes
// the derived metrics.
func Step(prev State, env Environment, dt float64) State {
	env = env.Clamped()
	if dt < 0 || math.IsNaN(dt) {
		dt = 0
	}
	s := prev

	energy := energyFactor(env)
	mineral := mineralFactor(env)
	richness := clampRange(env.ChemistryRichness/100, 0, 1)

	// Stage 0 output
	s.AminoAcidYield = grow(s.AminoAcidYield, MaxAminoAcidYield, energy*richness*0.02*dt, MaxAminoAcidYield)
	if energy < 0.1 {
		s.AminoAcidYield = math.Max(0, s.AminoAcidYield-0.01*dt)
	}

	if GrowthPermitted(StagePeptides, env) {
		substrate := s.AminoAcidYield / MaxAminoAcidYield
		s.PeptideCount = grow(s.PeptideCount, MaxPeptideCount, substrate*mineral*0.05*dt, MaxPeptideCount)
		s.MeanPeptideLength = grow(s.MeanPeptideLength, MaxPeptideLength,
			substrate*mineral*(env.DryWetCycling/100)*0.02*dt, MaxPeptideLength)
	}

	if GrowthPermitted(StageProtocells, env) {
		s.VesicleCount = grow(s.VesicleCount, MaxVesicleCount, energy*(env.WaterActivity/100)*0.04*dt, MaxVesicleCount)
		s.EncapsulationRate = grow(s.EncapsulationRate, MaxEncapsulationRate,
			(s.PeptideCount/MaxPeptideCount)*mineral*0.02*dt, MaxEncapsulationRate)
	}

	if GrowthPermitted(StageTemplates, env) {
		compartments := 0.25 + s.VesicleCount/MaxVesicleCount
		s.TemplateStrands = grow(s.TemplateStrands, MaxTemplateStrands,
			richness*mineral*compartments*0.03*dt, MaxTemplateStrands)
		// Beyond the floor, strands only lengthen up to what the current
		// accuracy can maintain.
		target := math.Max(minStrandTarget, 0.95*ErrorThresholdLength(s.PerBaseAccuracy))
		target = math.Min(MaxStrandLength, target)
		s.MeanStrandLength = grow(s.MeanStrandLength, target, richness*0.01*dt, MaxStrandLength)
	}

	if GrowthPermitted(StageRNAWorld, env) {
		s.RNAStrands = grow(s.RNAStrands, MaxRNAStrands,
			(s.TemplateStrands/MaxTemplateStrands)*richness*0.03*dt, MaxRNAStrands)
		s.RNALength = grow(s.RNALength, MaxRNALength, s.PerBaseAccuracy*0.01*dt, MaxRNALength)
	}

	if GrowthPermitted(StageDNAGenome, env) {
		s.DNAStrands = grow(s.DNAStrands, MaxDNAStrands, (s.RNAStrands/MaxRNAStrands)*0.02*dt, MaxDNAStrands)
		s.DNALength = grow(s.DNALength, MaxDNALength, (s.RNALength/MaxRNALength)*0.01*dt, MaxDNALength)
	}

	s.PerBaseAccuracy = PerBaseAccuracy(env)
	s.PassesEigen, s.StrandFidelity = eigen(s.PerBaseAccuracy, s.MeanStrandLength)

	s.Stage = advance(s, env)
	s.LifePotential = lifePotential(s)
	s.SimTime += dt
	return s
}

// advance ratchets the stage through every consecutive predicate that holds.
func advance(s State, env Environment) Stage {
	stage := s.Stage
	for target := stage + 1; target < NumStages; target++ {
		if !ReadyToAdvance(target, s, env) {
			break
		}
		stage = stage.Ratchet(target)
	}
	return stage
}
