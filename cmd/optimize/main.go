// Package main provides CMA-ES optimization for finding the environment that
// drives a lab to the final stage fastest.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gonum.org/v1/gonum/optimize"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/protolab/config"
	"github.com/pthm-cable/protolab/lab"
	"github.com/pthm-cable/protolab/telemetry"
)

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

// logRow is one line of optimize_log.csv.
type logRow struct {
	Eval              int     `csv:"eval"`
	Fitness           float64 `csv:"fitness"`
	MeanStage         float64 `csv:"mean_stage"`
	MeanLife          float64 `csv:"mean_life_potential"`
	FinishedFrac      float64 `csv:"finished_frac"`
	FastestFinish     int64   `csv:"fastest_finish_tick"`
	UV                float64 `csv:"uv"`
	Lightning         float64 `csv:"lightning"`
	Hydrothermal      float64 `csv:"hydrothermal"`
	DryWetCycling     float64 `csv:"dry_wet_cycling"`
	ChemistryRichness float64 `csv:"chemistry_richness"`
	WaterActivity     float64 `csv:"water_activity"`
	Temperature       float64 `csv:"temperature"`
	TimeScale         float64 `csv:"time_scale"`
	MineralCatalysis  bool    `csv:"mineral_catalysis"`
}

func newLogRow(n int, e Evaluation) logRow {
	env := e.Environment
	return logRow{
		Eval:              n,
		Fitness:           e.Fitness,
		MeanStage:         e.MeanStage,
		MeanLife:          e.MeanLife,
		FinishedFrac:      e.FinishedFrac,
		FastestFinish:     e.FastestFinish,
		UV:                env.UV,
		Lightning:         env.Lightning,
		Hydrothermal:      env.Hydrothermal,
		DryWetCycling:     env.DryWetCycling,
		ChemistryRichness: env.ChemistryRichness,
		WaterActivity:     env.WaterActivity,
		Temperature:       env.Temperature,
		TimeScale:         env.TimeScale,
		MineralCatalysis:  env.MineralCatalysis,
	}
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	maxTicks := flag.Int("max-ticks", 0, "Ticks per evaluation (0 = optimize.max_ticks)")
	copies := flag.Int("copies", 0, "Jittered labs per evaluation (0 = optimize.copies)")
	jitter := flag.Float64("jitter", -1, "Relative perturbation of jittered copies (<0 = optimize.jitter)")
	maxEvals := flag.Int("max-evals", 200, "Maximum number of evaluations")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	seed := flag.Int64("seed", 42, "Seed for copy perturbations")
	mineral := flag.String("mineral", "", "Fix mineral catalysis to true/false (empty = config value)")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}

	// Create output directory
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	// Load base config
	if err := config.Init(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Cfg()
	if *maxTicks <= 0 {
		*maxTicks = cfg.Optimize.MaxTicks
	}
	if *copies <= 0 {
		*copies = cfg.Optimize.Copies
	}
	if *jitter < 0 {
		*jitter = cfg.Optimize.Jitter
	}

	base := cfg.Environment
	if *mineral != "" {
		v, err := strconv.ParseBool(*mineral)
		if err != nil {
			log.Fatalf("invalid -mineral %q: %v", *mineral, err)
		}
		base.MineralCatalysis = v
	}

	params := NewParamVector(base)
	evaluator := NewFitnessEvaluator(params, base, int64(*maxTicks), *copies, *jitter, *seed, cfg.Scheduler.BaseDT)

	// Set up CMA-ES
	dim := params.Dim()
	initX := params.Normalize(params.DefaultVector())

	// Population size
	popSize := *population
	if popSize == 0 {
		popSize = 4 + int(3.0*float64(dim)/2.0)
	}

	method := &optimize.CmaEsChol{
		InitStepSize: cfg.Optimize.StepSize,
		Population:   popSize,
	}
	settings := &optimize.Settings{
		FuncEvaluations: *maxEvals,
		Concurrent:      0, // Sequential evaluation
	}

	// Open log file
	logCSV, err := telemetry.CreateCSV(filepath.Join(*outputDir, "optimize_log.csv"))
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logCSV.Close()

	evalCount := 0
	bestFitness := 1e9
	startTime := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			eval := evaluator.Evaluate(params.Denormalize(x))
			evalCount++
			if eval.Fitness < bestFitness {
				bestFitness = eval.Fitness
			}

			if err := logCSV.Write([]logRow{newLogRow(evalCount, eval)}); err != nil {
				log.Printf("failed to write log row: %v", err)
			}

			elapsed := time.Since(startTime)
			avgPerEval := elapsed / time.Duration(evalCount)
			remaining := time.Duration(*maxEvals-evalCount) * avgPerEval
			fmt.Printf("Eval %d/%d: fitness=%.1f stage=%.2f life=%.1f finished=%.0f%% (best=%.1f) | elapsed: %s, ETA: %s\n",
				evalCount, *maxEvals, eval.Fitness, eval.MeanStage, eval.MeanLife, eval.FinishedFrac*100,
				bestFitness, formatDuration(elapsed), formatDuration(remaining))

			return eval.Fitness
		},
	}

	fmt.Printf("Starting CMA-ES optimization with %d parameters, population=%d, max_evals=%d\n",
		dim, popSize, *maxEvals)
	fmt.Printf("Copies per evaluation: %d (jitter %.2f), ticks per run: %d, mineral catalysis: %v\n",
		*copies, *jitter, *maxTicks, base.MineralCatalysis)

	if _, err := optimize.Minimize(problem, initX, settings, method); err != nil {
		log.Printf("optimization ended: %v", err)
	}

	best := evaluator.Best()
	totalTime := time.Since(startTime)
	fmt.Printf("\nOptimization complete after %d evaluations in %s\n", evalCount, formatDuration(totalTime))
	fmt.Printf("Best fitness: %.1f (mean stage %.2f, finished %.0f%%)\n",
		best.Fitness, best.MeanStage, best.FinishedFrac*100)

	fmt.Println("\nBest environment:")
	for _, p := range lab.Params() {
		fmt.Printf("  %s: %.3f\n", p.Name, p.Get(best.Environment))
	}
	fmt.Printf("  mineral_catalysis: %v\n", best.Environment.MineralCatalysis)

	envPath := filepath.Join(*outputDir, "best_environment.yaml")
	if err := writeEnvironment(envPath, best.Environment); err != nil {
		log.Printf("failed to write best environment: %v", err)
	} else {
		fmt.Printf("\nBest environment saved to: %s\n", envPath)
	}

	// The full config with the best environment runs directly via -config.
	bestCfg := cfg.Clone()
	bestCfg.Environment = best.Environment
	configOutPath := filepath.Join(*outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		log.Printf("failed to write best config: %v", err)
	}

	hofPath := filepath.Join(*outputDir, "hall_of_fame.json")
	if err := telemetry.SaveHallOfFame(evaluator.HallOfFame(), hofPath); err != nil {
		log.Printf("failed to write hall of fame: %v", err)
	} else {
		fmt.Printf("Hall of fame saved to: %s\n", hofPath)
	}
}

// writeEnvironment saves env as a patch file usable with -watch.
func writeEnvironment(path string, env lab.Environment) error {
	data, err := yaml.Marshal(lab.PatchFrom(env))
	if err != nil {
		return fmt.Errorf("marshaling environment: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
