package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	WindowStartTick int64   `csv:"-"`
	WindowEndTick   int64   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Stage at window end
	Stage     int    `csv:"stage"`
	StageName string `csv:"stage_name"`

	// Events during window
	StageAdvances int `csv:"stage_advances"`
	EnvChanges    int `csv:"env_changes"`
	ScenarioSteps int `csv:"scenario_steps"`
	Faults        int `csv:"faults"`

	// Error threshold
	EigenGained       int     `csv:"eigen_gained"`
	EigenLost         int     `csv:"eigen_lost"`
	EigenPassFraction float64 `csv:"eigen_pass_fraction"` // fraction of ticks above the threshold
	PerBaseAccuracy   float64 `csv:"per_base_accuracy"`
	StrandFidelity    float64 `csv:"strand_fidelity"`

	// Accumulators at window end
	AminoAcidYield    float64 `csv:"amino_acid_yield"`
	PeptideCount      float64 `csv:"peptide_count"`
	MeanPeptideLength float64 `csv:"mean_peptide_length"`
	VesicleCount      float64 `csv:"vesicle_count"`
	EncapsulationRate float64 `csv:"encapsulation_rate"`
	TemplateStrands   float64 `csv:"template_strands"`
	MeanStrandLength  float64 `csv:"mean_strand_length"`
	RNAStrands        float64 `csv:"rna_strands"`
	RNALength         float64 `csv:"rna_length"`
	DNAStrands        float64 `csv:"dna_strands"`
	DNALength         float64 `csv:"dna_length"`

	// Life potential distribution over the window's ticks
	LifePotential     float64 `csv:"life_potential"` // value at window end
	LifeCeiling       float64 `csv:"life_ceiling"`
	LifePotentialMean float64 `csv:"life_potential_mean"`
	LifePotentialStd  float64 `csv:"life_potential_std"`
	LifePotentialP10  float64 `csv:"life_potential_p10"`
	LifePotentialP50  float64 `csv:"life_potential_p50"`
	LifePotentialP90  float64 `csv:"life_potential_p90"`
}

// Percentile returns the p-th empirical quantile of a sorted slice: the
// lowest value at or above fraction p of the samples.
// p is clamped to [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if !(p > 0) {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// ComputeSeriesStats calculates population mean, std, and percentiles.
func ComputeSeriesStats(values []float64) (mean, std, p10, p50, p90 float64) {
	n := len(values)
	if n == 0 {
		return 0, 0, 0, 0, 0
	}

	mean, std = stat.PopMeanStdDev(values, nil)

	// Sort for percentiles
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	p10 = Percentile(sorted, 0.10)
	p50 = Percentile(sorted, 0.50)
	p90 = Percentile(sorted, 0.90)

	return mean, std, p10, p50, p90
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("window_start", s.WindowStartTick),
		slog.Int64("window_end", s.WindowEndTick),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.String("stage", s.StageName),
		slog.Int("stage_advances", s.StageAdvances),
		slog.Int("env_changes", s.EnvChanges),
		slog.Int("scenario_steps", s.ScenarioSteps),
		slog.Int("faults", s.Faults),
		slog.Int("eigen_gained", s.EigenGained),
		slog.Int("eigen_lost", s.EigenLost),
		slog.Float64("eigen_pass_fraction", s.EigenPassFraction),
		slog.Float64("per_base_accuracy", s.PerBaseAccuracy),
		slog.Float64("strand_fidelity", s.StrandFidelity),
		slog.Float64("amino_acid_yield", s.AminoAcidYield),
		slog.Float64("peptide_count", s.PeptideCount),
		slog.Float64("mean_peptide_length", s.MeanPeptideLength),
		slog.Float64("vesicle_count", s.VesicleCount),
		slog.Float64("encapsulation_rate", s.EncapsulationRate),
		slog.Float64("template_strands", s.TemplateStrands),
		slog.Float64("mean_strand_length", s.MeanStrandLength),
		slog.Float64("rna_strands", s.RNAStrands),
		slog.Float64("rna_length", s.RNALength),
		slog.Float64("dna_strands", s.DNAStrands),
		slog.Float64("dna_length", s.DNALength),
		slog.Float64("life_potential", s.LifePotential),
		slog.Float64("life_ceiling", s.LifeCeiling),
		slog.Float64("life_potential_mean", s.LifePotentialMean),
		slog.Float64("life_potential_std", s.LifePotentialStd),
		slog.Float64("life_potential_p10", s.LifePotentialP10),
		slog.Float64("life_potential_p50", s.LifePotentialP50),
		slog.Float64("life_potential_p90", s.LifePotentialP90),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndTick,
		"sim_time", s.SimTimeSec,
		"stage", s.StageName,
		"stage_advances", s.StageAdvances,
		"env_changes", s.EnvChanges,
		"faults", s.Faults,
		"eigen_pass_fraction", s.EigenPassFraction,
		"per_base_accuracy", s.PerBaseAccuracy,
		"strand_fidelity", s.StrandFidelity,
		"amino_acid_yield", s.AminoAcidYield,
		"peptide_count", s.PeptideCount,
		"vesicle_count", s.VesicleCount,
		"template_strands", s.TemplateStrands,
		"mean_strand_length", s.MeanStrandLength,
		"rna_strands", s.RNAStrands,
		"rna_length", s.RNALength,
		"dna_strands", s.DNAStrands,
		"dna_length", s.DNALength,
		"life_potential", s.LifePotential,
		"life_ceiling", s.LifeCeiling,
		"life_potential_mean", s.LifePotentialMean,
		"life_potential_p90", s.LifePotentialP90,
	)
}
