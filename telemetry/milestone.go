package telemetry

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/pthm-cable/protolab/lab"
)

// MilestoneType identifies the type of milestone.
type MilestoneType string

const (
	MilestoneStageReached  MilestoneType = "stage_reached"
	MilestoneEigenCrossed  MilestoneType = "eigen_crossed"
	MilestoneCeilingRaised MilestoneType = "ceiling_raised"
	MilestoneStalled       MilestoneType = "stalled"
)

// Milestone represents an automatically detected point of interest.
type Milestone struct {
	Type        MilestoneType `csv:"type" json:"type"`
	Tick        int64         `csv:"tick" json:"tick"`
	SimTime     float64       `csv:"sim_time" json:"sim_time"`
	Stage       string        `csv:"stage" json:"stage"`
	Description string        `csv:"description" json:"description"`
}

// LogMilestone logs the milestone using slog.
func (m Milestone) LogMilestone() {
	slog.Info("milestone",
		"type", string(m.Type),
		"tick", m.Tick,
		"sim_time", m.SimTime,
		"stage", m.Stage,
		"description", m.Description,
	)
}

// MilestoneDetector detects notable moments in a lab's progress.
type MilestoneDetector struct {
	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	// State tracking
	stallWindows          int     // windows without advance before a stall is reported
	windowsWithoutAdvance int     // consecutive windows with no stage advance
	lastCeiling           float64 // life ceiling at the previous window
	haveCeiling           bool
}

// NewMilestoneDetector creates a detector with the given history size.
func NewMilestoneDetector(historySize, stallWindows int) *MilestoneDetector {
	if historySize < 2 {
		historySize = 2
	}
	if stallWindows < 1 {
		stallWindows = 1
	}
	return &MilestoneDetector{
		history:      make([]WindowStats, historySize),
		historySize:  historySize,
		stallWindows: stallWindows,
	}
}

// StageReached converts a stage event into a milestone.
func (md *MilestoneDetector) StageReached(ev Event) Milestone {
	return Milestone{
		Type:        MilestoneStageReached,
		Tick:        ev.Tick,
		SimTime:     ev.SimTime,
		Stage:       ev.Stage.String(),
		Description: fmt.Sprintf("Reached stage %d (%s) at t=%.1fs", ev.Stage, ev.Stage, ev.SimTime),
	}
}

// Check analyzes the latest window and returns any triggered milestones.
// report is the gate diagnosis at window end; it explains stalls.
func (md *MilestoneDetector) Check(stats WindowStats, report lab.GateReport) []Milestone {
	var milestones []Milestone

	if m := md.checkEigenCrossed(stats); m != nil {
		milestones = append(milestones, *m)
	}
	if m := md.checkCeilingRaised(stats); m != nil {
		milestones = append(milestones, *m)
	}
	if m := md.checkStalled(stats, report); m != nil {
		milestones = append(milestones, *m)
	}

	md.addToHistory(stats)

	return milestones
}

// Reset clears history and stall tracking.
func (md *MilestoneDetector) Reset() {
	md.historyIdx = 0
	md.historyFull = false
	md.windowsWithoutAdvance = 0
	md.lastCeiling = 0
	md.haveCeiling = false
}

func (md *MilestoneDetector) addToHistory(stats WindowStats) {
	md.history[md.historyIdx] = stats
	md.historyIdx = (md.historyIdx + 1) % md.historySize
	if md.historyIdx == 0 {
		md.historyFull = true
	}
}

// previous returns the most recent window in history.
func (md *MilestoneDetector) previous() (WindowStats, bool) {
	if !md.historyFull && md.historyIdx == 0 {
		return WindowStats{}, false
	}
	idx := (md.historyIdx - 1 + md.historySize) % md.historySize
	return md.history[idx], true
}

func (md *MilestoneDetector) checkEigenCrossed(stats WindowStats) *Milestone {
	if stats.Stage < int(lab.StageTemplates) || stats.EigenPassFraction == 0 {
		return nil
	}
	prev, ok := md.previous()
	if !ok || prev.EigenPassFraction > 0 {
		return nil
	}

	return &Milestone{
		Type:    MilestoneEigenCrossed,
		Tick:    stats.WindowEndTick,
		SimTime: stats.SimTimeSec,
		Stage:   stats.StageName,
		Description: fmt.Sprintf("Strands of length %.1f now replicate above the error threshold (accuracy %.3f)",
			stats.MeanStrandLength, stats.PerBaseAccuracy),
	}
}

func (md *MilestoneDetector) checkCeilingRaised(stats WindowStats) *Milestone {
	prevCeiling, had := md.lastCeiling, md.haveCeiling
	md.lastCeiling = stats.LifeCeiling
	md.haveCeiling = true

	if !had || stats.LifeCeiling <= prevCeiling {
		return nil
	}
	return &Milestone{
		Type:        MilestoneCeilingRaised,
		Tick:        stats.WindowEndTick,
		SimTime:     stats.SimTimeSec,
		Stage:       stats.StageName,
		Description: fmt.Sprintf("Life potential ceiling raised from %.0f to %.0f", prevCeiling, stats.LifeCeiling),
	}
}

func (md *MilestoneDetector) checkStalled(stats WindowStats, report lab.GateReport) *Milestone {
	if stats.StageAdvances > 0 || report.Complete {
		md.windowsWithoutAdvance = 0
		return nil
	}

	md.windowsWithoutAdvance++
	if md.windowsWithoutAdvance != md.stallWindows { // trigger once per stall
		return nil
	}

	blockers := append(append([]string(nil), report.GrowthBlockers...), report.AdvanceBlockers...)
	reason := "advancement conditions pending"
	if len(blockers) > 0 {
		reason = strings.Join(blockers, "; ")
	}
	return &Milestone{
		Type:    MilestoneStalled,
		Tick:    stats.WindowEndTick,
		SimTime: stats.SimTimeSec,
		Stage:   stats.StageName,
		Description: fmt.Sprintf("No progress toward %s for %d windows: %s",
			report.Target, md.windowsWithoutAdvance, reason),
	}
}
