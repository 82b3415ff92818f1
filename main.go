package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/protolab/config"
	"github.com/pthm-cable/protolab/drift"
	"github.com/pthm-cable/protolab/metrics"
	"github.com/pthm-cable/protolab/server"
	"github.com/pthm-cable/protolab/sim"
	"github.com/pthm-cable/protolab/watch"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	logState := flag.Int("log-state", -1, "Ticks between text lab summaries (-1 = use config, 0 = off)")
	statsWindow := flag.Float64("stats-window", 0, "Stats window size in simulated seconds (0 = use config)")
	snapshotDir := flag.String("snapshot-dir", "", "Directory for snapshot files")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	maxTicks := flag.Int64("max-ticks", 0, "Stop after N ticks (0 = unlimited)")
	realtime := flag.Bool("realtime", false, "Tick on the wall clock instead of as fast as possible")
	listen := flag.String("listen", "", "HTTP listen address, realtime only (empty = server.addr)")
	noServer := flag.Bool("no-server", false, "Disable the HTTP server in realtime mode")
	watchPath := flag.String("watch", "", "Environment patch YAML file to watch (realtime only)")
	enableDrift := flag.Bool("drift", false, "Enable environmental drift (realtime only)")
	seed := flag.Int64("seed", 0, "Drift noise seed (0 = use config)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	// Use config values if not overridden by CLI
	if *statsWindow > 0 {
		cfg.Telemetry.StatsWindow = *statsWindow
	}
	if *logState >= 0 {
		cfg.Telemetry.StateLogInterval = *logState
	}
	if *seed != 0 {
		cfg.Drift.Seed = *seed
	}
	if *listen == "" {
		*listen = cfg.Server.Addr
	}

	opts := sim.OptionsFromConfig(cfg)
	opts.LogStats = *logStats
	opts.SnapshotDir = *snapshotDir
	opts.OutputDir = *outputDir

	s, err := sim.New(opts)
	if err != nil {
		slog.Error("failed to create simulation", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *realtime {
		err = runRealtime(ctx, s, cfg, realtimeOptions{
			maxTicks: *maxTicks,
			listen:   *listen,
			server:   !*noServer,
			watch:    *watchPath,
			drift:    *enableDrift,
		})
	} else {
		err = runHeadless(ctx, s, *maxTicks)
	}

	if *snapshotDir != "" {
		if path, err := s.SaveSnapshot(); err != nil {
			slog.Error("failed to save final snapshot", "error", err)
		} else {
			slog.Info("final snapshot saved", "path", path)
		}
	}

	state := s.Snapshot()
	slog.Info("run finished",
		"run_id", s.RunID(),
		"tick", s.Tick(),
		"sim_time", state.SimTime,
		"stage", state.Stage.String(),
		"life_potential", state.LifePotential,
	)

	if cerr := s.Close(); cerr != nil {
		slog.Error("failed to close output", "error", cerr)
	}
	if err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

// runHeadless steps as fast as possible until maxTicks, the final stage when
// maxTicks is 0, or a signal. A step that does not advance the tick is a fault.
func runHeadless(ctx context.Context, s *sim.Simulation, maxTicks int64) error {
	slog.Info("starting headless simulation",
		"run_id", s.RunID(),
		"max_ticks", maxTicks,
		"environment", s.Environment(),
	)

	for {
		if ctx.Err() != nil {
			slog.Info("interrupted", "tick", s.Tick())
			return nil
		}
		before := s.Tick()
		state := s.Step()
		tick := s.Tick()

		if tick == before {
			return errLabFault
		}
		if maxTicks > 0 && tick >= maxTicks {
			slog.Info("max ticks reached", "tick", tick)
			return nil
		}
		if maxTicks == 0 && state.Stage.Final() {
			slog.Info("final stage reached", "tick", tick)
			return nil
		}
	}
}

type realtimeOptions struct {
	maxTicks int64
	listen   string
	server   bool
	watch    string
	drift    bool
}

// runRealtime ticks on the wall clock and runs the outer surfaces until the
// context ends, maxTicks is reached, or a component fails.
func runRealtime(ctx context.Context, s *sim.Simulation, cfg *config.Config, ro realtimeOptions) error {
	reporter := metrics.NewReporter(s)
	cancelListener := s.OnStageAdvance(func(ev sim.StageEvent) {
		reporter.ObserveStageAdvance(ev.Stage)
	})
	defer cancelListener()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	if ro.server {
		srv := server.New(s, reporter, server.Options{
			Addr:             ro.listen,
			SnapshotInterval: cfg.Derived.SnapshotInterval,
			ShutdownTimeout:  cfg.Derived.ShutdownTimeout,
		})
		g.Go(func() error { return srv.Run(ctx) })
	}

	if ro.watch != "" {
		w := watch.New(ro.watch, s, cfg.Derived.Debounce)
		g.Go(func() error { return w.Run(ctx) })
	}

	if ro.drift {
		d, err := drift.New(cfg.Drift.Seed, cfg.Drift, s.Environment())
		if err != nil {
			return err
		}
		g.Go(func() error { return d.Run(ctx, s, nil, cfg.Derived.DriftInterval) })
	}

	if ro.maxTicks > 0 {
		g.Go(func() error { return waitForTicks(ctx, s, ro.maxTicks) })
	}

	slog.Info("starting realtime simulation",
		"run_id", s.RunID(),
		"tick_rate", cfg.Scheduler.TickRate,
		"max_ticks", ro.maxTicks,
		"listen", ro.listen,
		"server", ro.server,
		"watch", ro.watch,
		"drift", ro.drift,
	)
	s.Start()

	err := g.Wait()
	s.Pause()
	if errors.Is(err, errMaxTicks) {
		slog.Info("max ticks reached", "tick", s.Tick())
		return nil
	}
	return err
}

var (
	// errMaxTicks ends the errgroup once -max-ticks is reached.
	errMaxTicks = errors.New("max ticks reached")
	errLabFault = errors.New("lab invariant violated")
)

func waitForTicks(ctx context.Context, s *sim.Simulation, maxTicks int64) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if s.Tick() >= maxTicks {
				s.Pause()
				return errMaxTicks
			}
		}
	}
}

// Compile-time checks that the simulation satisfies the component targets.
var (
	_ watch.Target   = (*sim.Simulation)(nil)
	_ drift.Target   = (*sim.Simulation)(nil)
	_ metrics.Source = (*sim.Simulation)(nil)
)
