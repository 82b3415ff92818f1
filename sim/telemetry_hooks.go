package sim

import (
	"log/slog"

	"github.com/pthm-cable/protolab/lab"
	"github.com/pthm-cable/protolab/telemetry"
)

// flushTelemetryLocked checks if the stats window should be flushed and
// handles milestones.
func (s *Simulation) flushTelemetryLocked() {
	if !s.collector.ShouldFlush(s.state.SimTime) {
		return
	}

	stats := s.collector.Flush(s.tick, s.state)
	perfStats := s.perf.Stats()

	if s.opts.StatsCallback != nil {
		s.opts.StatsCallback(stats)
	}

	if s.opts.LogStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if s.outputManager != nil {
		if err := s.outputManager.WriteTelemetry(stats); err != nil {
			slog.Error("failed to write telemetry", "error", err)
		}
		if err := s.outputManager.WritePerf(perfStats, stats.WindowEndTick); err != nil {
			slog.Error("failed to write perf", "error", err)
		}
	}

	report := lab.Diagnose(s.state, s.env)
	for _, m := range s.milestones.Check(stats, report) {
		s.recordMilestoneLocked(m)
	}
}

// recordMilestoneLocked logs, writes and snapshots one milestone.
func (s *Simulation) recordMilestoneLocked(m telemetry.Milestone) {
	s.recent = append(s.recent, m)
	if len(s.recent) > maxRecentMilestones {
		s.recent = s.recent[len(s.recent)-maxRecentMilestones:]
	}

	if s.opts.LogStats {
		m.LogMilestone()
	}
	if s.opts.MilestoneCallback != nil {
		s.opts.MilestoneCallback(m)
	}

	if s.outputManager != nil {
		if err := s.outputManager.WriteMilestone(m); err != nil {
			slog.Error("failed to write milestone", "error", err)
		}
	}

	if s.opts.SnapshotDir != "" {
		s.saveSnapshotLocked(&m)
	}
}

// saveSnapshotLocked creates and saves a snapshot to disk.
func (s *Simulation) saveSnapshotLocked(m *telemetry.Milestone) {
	path, err := telemetry.SaveSnapshot(s.createSnapshotLocked(m), s.opts.SnapshotDir)
	if err != nil {
		slog.Error("failed to save snapshot", "error", err)
		return
	}
	slog.Info("snapshot saved", "path", path, "tick", s.tick)
}

// createSnapshotLocked builds a snapshot from the current state.
func (s *Simulation) createSnapshotLocked(m *telemetry.Milestone) *telemetry.Snapshot {
	return &telemetry.Snapshot{
		Version:     telemetry.SnapshotVersion,
		RunID:       s.runID,
		Tick:        s.tick,
		Environment: s.env,
		State:       s.state,
		Gate:        lab.Diagnose(s.state, s.env),
		Timeline:    s.timeline.Entries(),
		Milestone:   m,
	}
}
