// Package main sweeps two environment parameters over a grid and records how
// far each lab gets.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/pthm-cable/protolab/config"
	"github.com/pthm-cable/protolab/ensemble"
	"github.com/pthm-cable/protolab/lab"
	"github.com/pthm-cable/protolab/telemetry"
)

// Axis is one swept parameter.
type Axis struct {
	Param lab.Param
	Min   float64
	Max   float64
	Steps int
}

// Values returns Steps evenly spaced values from Min to Max inclusive.
func (a Axis) Values() []float64 {
	if a.Steps <= 1 {
		return []float64{a.Min}
	}
	out := make([]float64, a.Steps)
	step := (a.Max - a.Min) / float64(a.Steps-1)
	for i := range out {
		out[i] = a.Min + float64(i)*step
	}
	return out
}

func newAxis(name string, lo, hi float64, steps int) (Axis, error) {
	p, ok := lab.LookupParam(name)
	if !ok {
		return Axis{}, fmt.Errorf("unknown parameter %q", name)
	}
	if steps < 1 {
		return Axis{}, fmt.Errorf("%s: steps must be at least 1", name)
	}
	// NaN bounds fall back to the parameter's full range.
	if math.IsNaN(lo) {
		lo = p.Min
	}
	if math.IsNaN(hi) {
		hi = p.Max
	}
	return Axis{Param: p, Min: lo, Max: hi, Steps: steps}, nil
}

// Row is one line of sweep.csv.
type Row struct {
	XParam        string  `csv:"x_param"`
	X             float64 `csv:"x"`
	YParam        string  `csv:"y_param"`
	Y             float64 `csv:"y"`
	Stage         int     `csv:"stage"`
	StageName     string  `csv:"stage_name"`
	LifePotential float64 `csv:"life_potential"`
	PassesEigen   bool    `csv:"passes_eigen"`
	AminoAcids    int64   `csv:"t_amino_acids"`
	Peptides      int64   `csv:"t_peptides"`
	Protocells    int64   `csv:"t_protocells"`
	Templates     int64   `csv:"t_templates"`
	RNAWorld      int64   `csv:"t_rna_world"`
	DNAGenome     int64   `csv:"t_dna_genome"`
}

// Sweep runs the grid and returns one row per cell, x-major.
func Sweep(base lab.Environment, x, y Axis, baseDT float64, ticks int64, hof *telemetry.HallOfFame) []Row {
	ens := ensemble.New(baseDT)
	for _, xv := range x.Values() {
		for _, yv := range y.Values() {
			env := base
			x.Param.Set(&env, xv)
			y.Param.Set(&env, yv)
			ens.Add(fmt.Sprintf("%s=%.3g,%s=%.3g", x.Param.Name, xv, y.Param.Name, yv), env)
		}
	}
	ens.Run(ticks, lab.StageDNAGenome)

	results := ens.Results()
	rows := make([]Row, len(results))
	for i, r := range results {
		rows[i] = Row{
			XParam:        x.Param.Name,
			X:             x.Param.Get(r.Environment),
			YParam:        y.Param.Name,
			Y:             y.Param.Get(r.Environment),
			Stage:         int(r.Final.Stage),
			StageName:     r.Final.Stage.String(),
			LifePotential: r.Final.LifePotential,
			PassesEigen:   r.Final.PassesEigen,
			AminoAcids:    r.ReachedAt[lab.StageAminoAcids],
			Peptides:      r.ReachedAt[lab.StagePeptides],
			Protocells:    r.ReachedAt[lab.StageProtocells],
			Templates:     r.ReachedAt[lab.StageTemplates],
			RNAWorld:      r.ReachedAt[lab.StageRNAWorld],
			DNAGenome:     r.ReachedAt[lab.StageDNAGenome],
		}
		if hof != nil {
			hof.Consider(telemetry.HallEntry{
				Label:         r.Label,
				Fitness:       cellScore(r, ticks),
				Stage:         r.Final.Stage,
				LifePotential: r.Final.LifePotential,
				FinalTick:     r.ReachedAt[lab.StageDNAGenome],
				Environment:   r.Environment,
			})
		}
	}
	return rows
}

// cellScore ranks cells by stage, then life potential, then speed.
func cellScore(r ensemble.Result, ticks int64) float64 {
	score := float64(r.Final.Stage)*100 + r.Final.LifePotential
	if at, ok := r.Reached(lab.StageDNAGenome); ok && ticks > 0 {
		score += 100 * (1 - float64(at)/float64(ticks))
	}
	return score
}

func nan() float64 { return math.NaN() }

func main() {
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	xName := flag.String("x", "hydrothermal", "First swept parameter")
	xMin := flag.Float64("x-min", nan(), "First axis lower bound (default: parameter minimum)")
	xMax := flag.Float64("x-max", nan(), "First axis upper bound (default: parameter maximum)")
	xSteps := flag.Int("x-steps", 11, "First axis grid points")
	yName := flag.String("y", "temperature", "Second swept parameter")
	yMin := flag.Float64("y-min", nan(), "Second axis lower bound (default: parameter minimum)")
	yMax := flag.Float64("y-max", nan(), "Second axis upper bound (default: parameter maximum)")
	ySteps := flag.Int("y-steps", 11, "Second axis grid points")
	ticks := flag.Int64("ticks", 20000, "Ticks per lab")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}
	if err := config.Init(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Cfg()

	x, err := newAxis(*xName, *xMin, *xMax, *xSteps)
	if err != nil {
		log.Fatalf("invalid -x: %v", err)
	}
	y, err := newAxis(*yName, *yMin, *yMax, *ySteps)
	if err != nil {
		log.Fatalf("invalid -y: %v", err)
	}
	if x.Param.Name == y.Param.Name {
		log.Fatal("-x and -y must differ")
	}

	fmt.Printf("Sweeping %s [%g, %g] x %s [%g, %g]: %d labs, %d ticks each\n",
		x.Param.Name, x.Min, x.Max, y.Param.Name, y.Min, y.Max, x.Steps*y.Steps, *ticks)
	start := time.Now()

	hof := telemetry.NewHallOfFame(10)
	rows := Sweep(cfg.Environment, x, y, cfg.Scheduler.BaseDT, *ticks, hof)

	out, err := telemetry.CreateCSV(filepath.Join(*outputDir, "sweep.csv"))
	if err != nil {
		log.Fatalf("failed to create sweep.csv: %v", err)
	}
	if err := out.Write(rows); err != nil {
		log.Fatalf("failed to write sweep.csv: %v", err)
	}
	if err := out.Close(); err != nil {
		log.Fatalf("failed to close sweep.csv: %v", err)
	}

	if err := telemetry.SaveHallOfFame(hof, filepath.Join(*outputDir, "hall_of_fame.json")); err != nil {
		log.Printf("failed to write hall of fame: %v", err)
	}

	fmt.Printf("Done in %s\n", time.Since(start).Round(time.Millisecond))
	if best, ok := hof.Best(); ok {
		fmt.Printf("Best cell: %s reached %s (life potential %.1f)\n", best.Label, best.Stage, best.LifePotential)
	}
}
