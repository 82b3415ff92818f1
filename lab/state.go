package lab

import (
	"errors"
	"fmt"
	"math"
)

// Accumulator ceilings.
const (
	MaxAminoAcidYield    = 10.0
	MaxPeptideCount      = 100.0
	MaxPeptideLength     = 20.0
	MaxVesicleCount      = 50.0
	MaxEncapsulationRate = 1.0
	MaxTemplateStrands   = 20.0
	MaxStrandLength      = 30.0
	MaxRNAStrands        = 50.0
	MaxRNALength         = 100.0
	MaxDNAStrands        = 20.0
	MaxDNALength         = 500.0
)

// Accuracy bounds and the neutral starting accuracy.
const (
	MinPerBaseAccuracy     = 0.5
	MaxPerBaseAccuracy     = 0.995
	InitialPerBaseAccuracy = 0.70
)

// ErrInvariant is returned by Validate when a state breaks one of its bounds.
var ErrInvariant = errors.New("lab: state invariant violated")

// State is the process state of one lab. It contains no references, so
// any copy is an independent snapshot.
type State struct {
	Stage Stage `json:"stage"`

	AminoAcidYield float64 `json:"amino_acid_yield"`

	PeptideCount      float64 `json:"peptide_count"`
	MeanPeptideLength float64 `json:"mean_peptide_length"`

	VesicleCount      float64 `json:"vesicle_count"`
	EncapsulationRate float64 `json:"encapsulation_rate"`

	TemplateStrands  float64 `json:"template_strands"`
	MeanStrandLength float64 `json:"mean_strand_length"`

	RNAStrands float64 `json:"rna_strands"`
	RNALength  float64 `json:"rna_length"`

	DNAStrands float64 `json:"dna_strands"`
	DNALength  float64 `json:"dna_length"`

	// Derived, recomputed every step
	PerBaseAccuracy float64 `json:"per_base_accuracy"`
	StrandFidelity  float64 `json:"strand_fidelity"`
	PassesEigen     bool    `json:"passes_eigen"`
	LifePotential   float64 `json:"life_potential"`

	SimTime float64 `json:"sim_time"` // accumulated simulated time
}

// NewState returns the initial state: no products, stage 0, neutral accuracy.
// The derived fields are computed as a step would compute them.
func NewState() State {
	s := State{PerBaseAccuracy: InitialPerBaseAccuracy}
	s.PassesEigen, s.StrandFidelity = eigen(s.PerBaseAccuracy, s.MeanStrandLength)
	s.LifePotential = lifePotential(s)
	return s
}

// accumulator pairs a name, a value and its ceiling for bound checks and reporting.
type accumulator struct {
	name    string
	value   float64
	ceiling float64
}

func (s State) accumulators() []accumulator {
	return []accumulator{
		{"amino_acid_yield", s.AminoAcidYield, MaxAminoAcidYield},
		{"peptide_count", s.PeptideCount, MaxPeptideCount},
		{"mean_peptide_length", s.MeanPeptideLength, MaxPeptideLength},
		{"vesicle_count", s.VesicleCount, MaxVesicleCount},
		{"encapsulation_rate", s.EncapsulationRate, MaxEncapsulationRate},
		{"template_strands", s.TemplateStrands, MaxTemplateStrands},
		{"mean_strand_length", s.MeanStrandLength, MaxStrandLength},
		{"rna_strands", s.RNAStrands, MaxRNAStrands},
		{"rna_length", s.RNALength, MaxRNALength},
		{"dna_strands", s.DNAStrands, MaxDNAStrands},
		{"dna_length", s.DNALength, MaxDNALength},
	}
}

// Accumulators returns the accumulator values keyed by name.
func (s State) Accumulators() map[string]float64 {
	accs := s.accumulators()
	out := make(map[string]float64, len(accs))
	for _, a := range accs {
		out[a.name] = a.value
	}
	return out
}

// Validate checks every bound the step function guarantees. A non-nil
// error means an internal fault, not a stalled gate.
func (s State) Validate() error {
	if !s.Stage.Valid() {
		return fmt.Errorf("%w: stage %d out of range", ErrInvariant, s.Stage)
	}
	for _, a := range s.accumulators() {
		if math.IsNaN(a.value) || a.value < 0 || a.value > a.ceiling {
			return fmt.Errorf("%w: %s=%v outside [0, %v]", ErrInvariant, a.name, a.value, a.ceiling)
		}
	}
	if math.IsNaN(s.PerBaseAccuracy) || s.PerBaseAccuracy < MinPerBaseAccuracy || s.PerBaseAccuracy > MaxPerBaseAccuracy {
		return fmt.Errorf("%w: per_base_accuracy=%v outside [%v, %v]",
			ErrInvariant, s.PerBaseAccuracy, MinPerBaseAccuracy, MaxPerBaseAccuracy)
	}
	if ceiling := LifeCeiling(s); math.IsNaN(s.LifePotential) || s.LifePotential < 0 || s.LifePotential > ceiling {
		return fmt.Errorf("%w: life_potential=%v outside [0, %v]", ErrInvariant, s.LifePotential, ceiling)
	}
	return nil
}
