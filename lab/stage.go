package lab

// Stage is one of the seven ordered milestones of chemical complexity.
type Stage uint8

const (
	StageSimpleMolecules Stage = iota
	StageAminoAcids
	StagePeptides
	StageProtocells
	StageTemplates
	StageRNAWorld
	StageDNAGenome
)

// NumStages is the number of stages, including stage 0.
const NumStages = 7

var stageNames = [NumStages]string{
	"simple_molecules",
	"amino_acids",
	"peptides",
	"protocells",
	"templates",
	"rna_world",
	"dna_genome",
}

// String returns the snake_case stage name.
func (s Stage) String() string {
	if !s.Valid() {
		return "unknown"
	}
	return stageNames[s]
}

// Valid reports whether s is within 0..6.
func (s Stage) Valid() bool {
	return s < NumStages
}

// Ratchet returns the higher of s and to. A stage never moves backwards.
func (s Stage) Ratchet(to Stage) Stage {
	if to > s {
		return to
	}
	return s
}

// Next returns the following stage, or s itself at the final stage.
func (s Stage) Next() Stage {
	if s >= StageDNAGenome {
		return StageDNAGenome
	}
	return s + 1
}

// Final reports whether s is the last stage.
func (s Stage) Final() bool {
	return s >= StageDNAGenome
}
