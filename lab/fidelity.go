package lab

import "math"

// SelectiveAdvantage is the s in the error threshold pCrit = 1 - ln(s)/L.
const SelectiveAdvantage = 2.0

// PerBaseAccuracy is the copying accuracy under env: a Gaussian optimum
// around 298 K, a bonus for mineral surfaces and a UV damage penalty.
func PerBaseAccuracy(env Environment) float64 {
	dT := (env.Temperature - OptimalTemperature) / 8
	tempBoost := math.Exp(-0.5 * dT * dT)
	p := 0.70 + 0.12*tempBoost - 0.20*(env.UV/100)
	if env.MineralCatalysis {
		p += 0.18
	}
	return clampRange(p, MinPerBaseAccuracy, MaxPerBaseAccuracy)
}

// EffectiveLength is the replicator length used by the error threshold.
// It is at least 1.
func EffectiveLength(meanStrandLength float64) int {
	l := int(math.Round(meanStrandLength))
	if l < 1 {
		return 1
	}
	return l
}

// CriticalAccuracy is the Eigen threshold for a replicator of length l.
func CriticalAccuracy(l int) float64 {
	if l < 1 {
		l = 1
	}
	return 1 - math.Log(SelectiveAdvantage)/float64(l)
}

// ErrorThresholdLength is the longest sequence accuracy p can maintain.
func ErrorThresholdLength(p float64) float64 {
	if p >= 1 {
		return math.Inf(1)
	}
	return math.Log(SelectiveAdvantage) / (1 - p)
}

// eigen returns the threshold verdict and whole-strand fidelity p^L.
func eigen(p, meanStrandLength float64) (passes bool, fidelity float64) {
	l := EffectiveLength(meanStrandLength)
	return p >= CriticalAccuracy(l), math.Pow(p, float64(l))
}

// tier is a life-potential ceiling and multiplier pair.
type tier struct {
	max        float64
	multiplier float64
}

// lifeTier picks the highest tier the state has unlocked.
func lifeTier(s State) tier {
	switch {
	case s.Stage >= StageDNAGenome && s.DNAStrands >= 3:
		return tier{100, 1.5}
	case s.Stage >= StageRNAWorld && s.RNAStrands >= 5:
		return tier{80, 1.2}
	case s.Stage >= StageTemplates:
		return tier{60, 1.0}
	default:
		return tier{40, 1.0}
	}
}

// LifeCeiling is the maximum life potential the state can currently score.
func LifeCeiling(s State) float64 {
	return lifeTier(s).max
}

// lifePotential combines catalysis, compartmentalisation and heredity.
func lifePotential(s State) float64 {
	l := EffectiveLength(s.MeanStrandLength)
	p := s.PerBaseAccuracy
	infoFactor := math.Min(1, float64(l)/20)
	heredity := 0.6*p + 0.4*infoFactor*p

	t := lifeTier(s)
	raw := ((s.MeanPeptideLength/20)*0.3 + s.EncapsulationRate*0.3 + heredity*0.4) * 100 * t.multiplier
	return clampRange(raw, 0, t.max)
}
