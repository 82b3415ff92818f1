// Package sim owns a single lab's process state and drives it on a clock.
package sim

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/pthm-cable/protolab/config"
	"github.com/pthm-cable/protolab/lab"
	"github.com/pthm-cable/protolab/telemetry"
)

// Options configures a Simulation.
type Options struct {
	Environment lab.Environment
	TickRate    float64     // steps per wall-clock second (default 30)
	BaseDT      float64     // simulated seconds per step at time scale 1 (default lab.BaseDT)
	Clock       clock.Clock // nil = wall clock
	RunID       string      // empty = random UUID

	LogStats         bool    // Output window stats and milestones via slog
	StateLogInterval int     // Ticks between text state summaries (0 = off)
	StatsWindowSec   float64 // Stats window size in simulated seconds
	SnapshotDir      string  // Directory for milestone snapshots (empty = disabled)
	OutputDir        string  // Directory for CSV output (empty = disabled)

	MilestoneHistory int
	StallWindows     int
	PerfWindow       int

	Scenario []config.ScenarioStep

	// Config is written to OutputDir as config.yaml when set.
	Config *config.Config

	// Called under the simulation lock; must not call back into the Simulation.
	StatsCallback     func(telemetry.WindowStats)
	MilestoneCallback func(telemetry.Milestone)
}

// OptionsFromConfig builds Options from a loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Environment:      cfg.Environment,
		TickRate:         cfg.Scheduler.TickRate,
		BaseDT:           cfg.Scheduler.BaseDT,
		StateLogInterval: cfg.Telemetry.StateLogInterval,
		StatsWindowSec:   cfg.Telemetry.StatsWindow,
		MilestoneHistory: cfg.Telemetry.MilestoneHistory,
		StallWindows:     cfg.Telemetry.StallWindows,
		PerfWindow:       cfg.Telemetry.PerfCollectorWindow,
		Scenario:         cfg.Scenario,
		Config:           cfg,
	}
}

// StageEvent is delivered to listeners once per stage increment.
type StageEvent struct {
	Stage   lab.Stage `json:"stage"`
	Tick    int64     `json:"tick"`
	SimTime float64   `json:"sim_time"`
	State   lab.State `json:"state"`
}

// Simulation is the tick scheduler and sole owner of one lab's state.
// All methods are safe for concurrent use.
type Simulation struct {
	opts     Options
	clock    clock.Clock
	interval time.Duration
	runID    string

	mu         sync.Mutex
	state      lab.State
	env        lab.Environment
	tick       int64
	scenario   []config.ScenarioStep
	nextStep   int // index of the next scenario step to apply
	running    bool
	closed     bool
	generation uint64 // bumped on every pause/reset; stale loop ticks are dropped
	stop       chan struct{}
	wg         sync.WaitGroup

	listenersMu  sync.Mutex
	listeners    map[uint64]func(StageEvent)
	nextListener uint64

	// Telemetry (guarded by mu)
	collector     *telemetry.Collector
	milestones    *telemetry.MilestoneDetector
	perf          *telemetry.PerfCollector
	timeline      *telemetry.StageTimeline
	outputManager *telemetry.OutputManager
	recent        []telemetry.Milestone
}

// maxRecentMilestones bounds the milestone list kept for Milestones().
const maxRecentMilestones = 64

// New creates a paused simulation at the initial state.
func New(opts Options) (*Simulation, error) {
	if opts.TickRate <= 0 {
		opts.TickRate = 30
	}
	if opts.BaseDT <= 0 {
		opts.BaseDT = lab.BaseDT
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.StatsWindowSec <= 0 {
		opts.StatsWindowSec = 10
	}
	if opts.MilestoneHistory <= 0 {
		opts.MilestoneHistory = 20
	}
	if opts.StallWindows <= 0 {
		opts.StallWindows = 30
	}
	if opts.PerfWindow <= 0 {
		opts.PerfWindow = 120
	}

	// Scenario steps fire in time order
	scenario := append([]config.ScenarioStep(nil), opts.Scenario...)
	sort.SliceStable(scenario, func(i, j int) bool { return scenario[i].At < scenario[j].At })

	om, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("setting up output: %w", err)
	}
	if opts.Config != nil {
		if err := om.WriteConfig(opts.Config); err != nil {
			om.Close()
			return nil, fmt.Errorf("writing config: %w", err)
		}
	}

	s := &Simulation{
		opts:          opts,
		clock:         opts.Clock,
		interval:      time.Duration(float64(time.Second) / opts.TickRate),
		runID:         opts.RunID,
		state:         lab.NewState(),
		env:           opts.Environment.Clamped(),
		scenario:      scenario,
		listeners:     make(map[uint64]func(StageEvent)),
		collector:     telemetry.NewCollector(opts.StatsWindowSec),
		milestones:    telemetry.NewMilestoneDetector(opts.MilestoneHistory, opts.StallWindows),
		perf:          telemetry.NewPerfCollector(opts.PerfWindow),
		timeline:      telemetry.NewStageTimeline(),
		outputManager: om,
	}

	if om != nil {
		slog.Info("output enabled", "dir", om.Dir(), "run_id", s.runID)
	}
	return s, nil
}

// RunID returns the identifier attached to logs and snapshots.
func (s *Simulation) RunID() string {
	return s.runID
}

// Start begins ticking on the clock. Calling Start while running is a no-op.
func (s *Simulation) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.closed {
		return
	}
	s.running = true
	s.generation++

	// The ticker is created before returning so a mock clock advanced right
	// after Start is observed by the loop.
	ticker := s.clock.Ticker(s.interval)
	stop := make(chan struct{})
	s.stop = stop
	s.wg.Add(1)
	go s.loop(s.generation, ticker, stop)

	slog.Info("simulation started", "run_id", s.runID, "tick", s.tick, "tick_interval", s.interval)
}

func (s *Simulation) loop(gen uint64, ticker *clock.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.stepIfCurrent(gen)
		}
	}
}

// Pause stops ticking. The current state is kept.
func (s *Simulation) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pauseLocked() {
		slog.Info("simulation paused", "run_id", s.runID, "tick", s.tick)
	}
}

func (s *Simulation) pauseLocked() bool {
	if !s.running {
		return false
	}
	s.running = false
	s.generation++
	close(s.stop)
	return true
}

// Reset pauses and restores the initial state. The environment is kept and
// the scenario script starts over.
func (s *Simulation) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauseLocked()
	s.generation++
	s.state = lab.NewState()
	s.tick = 0
	s.nextStep = 0
	s.collector.Reset()
	s.milestones.Reset()
	s.timeline.Reset()
	s.recent = nil
	slog.Info("simulation reset", "run_id", s.runID)
}

// Running reports whether the clock loop is active.
func (s *Simulation) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Tick returns the number of steps taken since the last reset.
func (s *Simulation) Tick() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// Snapshot returns a copy of the current process state.
func (s *Simulation) Snapshot() lab.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View is a consistent read of the simulation: the state produced by Tick
// under Environment.
type View struct {
	Tick        int64
	Running     bool
	State       lab.State
	Environment lab.Environment
}

// View returns the tick, run flag, state and environment under one lock.
func (s *Simulation) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		Tick:        s.tick,
		Running:     s.running,
		State:       s.state,
		Environment: s.env,
	}
}

// Environment returns the current environment.
func (s *Simulation) Environment() lab.Environment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.env
}

// SetEnvironment merges p into the environment, clamping every value, and
// returns the result. It takes effect from the next step.
func (s *Simulation) SetEnvironment(p lab.EnvironmentPatch) lab.Environment {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setEnvironmentLocked(p, "api")
	return s.env
}

func (s *Simulation) setEnvironmentLocked(p lab.EnvironmentPatch, source string) {
	next := s.env.Apply(p)
	changed := s.env.Changed(next)
	s.env = next
	if len(changed) == 0 {
		return
	}
	s.collector.RecordEvent(telemetry.NewEnvironmentChangedEvent(s.tick, s.state.SimTime, s.state.Stage, changed))
	slog.Debug("environment changed", "run_id", s.runID, "source", source, "changed", changed)
}

// Diagnose reports the gate status of the next stage under the current
// environment.
func (s *Simulation) Diagnose() lab.GateReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lab.Diagnose(s.state, s.env)
}

// Timeline returns the stages reached so far.
func (s *Simulation) Timeline() []telemetry.StageEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Entries()
}

// Milestones returns the most recent milestones, oldest first.
func (s *Simulation) Milestones() []telemetry.Milestone {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]telemetry.Milestone(nil), s.recent...)
}

// OnStageAdvance registers fn to be called once per stage increment, after
// the new state is visible through Snapshot. The returned func removes it.
func (s *Simulation) OnStageAdvance(fn func(StageEvent)) (cancel func()) {
	s.listenersMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

func (s *Simulation) notify(events []StageEvent) {
	if len(events) == 0 {
		return
	}
	s.listenersMu.Lock()
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(StageEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	s.listenersMu.Unlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

// SaveSnapshot exports the current state to the snapshot directory.
func (s *Simulation) SaveSnapshot() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.SnapshotDir == "" {
		return "", fmt.Errorf("snapshot directory not configured")
	}
	return telemetry.SaveSnapshot(s.createSnapshotLocked(nil), s.opts.SnapshotDir)
}

// Close pauses the simulation, waits for the loop to exit and closes output files.
func (s *Simulation) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.pauseLocked()
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()
	return s.outputManager.Close()
}
