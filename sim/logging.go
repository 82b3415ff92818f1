package sim

import (
	"fmt"
	"io"
	"strings"

	"github.com/pthm-cable/protolab/lab"
)

// logWriter is the destination for text summaries.
var logWriter io.Writer

// SetLogWriter sets the text summary destination (nil = stdout).
func SetLogWriter(w io.Writer) {
	logWriter = w
}

// Logf writes a formatted log line.
func Logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if logWriter != nil {
		fmt.Fprintln(logWriter, msg)
	} else {
		fmt.Println(msg)
	}
}

// logStateLocked writes a human-readable lab summary every
// StateLogInterval ticks.
func (s *Simulation) logStateLocked() {
	n := s.opts.StateLogInterval
	if n <= 0 || s.tick%int64(n) != 0 {
		return
	}
	logLabState(s.tick, s.state, s.env)
}

func logLabState(tick int64, st lab.State, env lab.Environment) {
	Logf("=== Lab @ Tick %d (t=%.1fs) | Stage %d %s ===", tick, st.SimTime, st.Stage, st.Stage)
	Logf("Environment: uv=%.0f lightning=%.0f hydro=%.0f dry_wet=%.0f richness=%.0f water=%.0f T=%.0fK mineral=%v x%.2f",
		env.UV, env.Lightning, env.Hydrothermal, env.DryWetCycling,
		env.ChemistryRichness, env.WaterActivity, env.Temperature, env.MineralCatalysis, env.TimeScale)
	Logf("  amino acids   yield %6.2f", st.AminoAcidYield)
	Logf("  peptides      count %6.1f  length %5.2f", st.PeptideCount, st.MeanPeptideLength)
	Logf("  protocells    vesicles %6.1f  encapsulation %5.3f", st.VesicleCount, st.EncapsulationRate)
	Logf("  templates     strands %6.2f  length %5.2f", st.TemplateStrands, st.MeanStrandLength)
	Logf("  rna           strands %6.2f  length %6.2f", st.RNAStrands, st.RNALength)
	Logf("  dna           strands %6.2f  length %6.1f", st.DNAStrands, st.DNALength)

	eigen := "below"
	if st.PassesEigen {
		eigen = "above"
	}
	Logf("Fidelity: accuracy %.3f  strand fidelity %.3f  %s error threshold (L*=%.1f)",
		st.PerBaseAccuracy, st.StrandFidelity, eigen, lab.ErrorThresholdLength(st.PerBaseAccuracy))
	Logf("Life potential: %.1f / %.0f", st.LifePotential, lab.LifeCeiling(st))

	report := lab.Diagnose(st, env)
	switch {
	case report.Complete:
		Logf("Gate: final stage reached")
	case report.ReadyToAdvance:
		Logf("Gate: ready for %s", report.Target)
	default:
		blockers := append(append([]string(nil), report.GrowthBlockers...), report.AdvanceBlockers...)
		Logf("Gate: waiting for %s: %s", report.Target, strings.Join(blockers, "; "))
	}
	Logf("")
}
