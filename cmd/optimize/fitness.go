package main

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/pthm-cable/protolab/ensemble"
	"github.com/pthm-cable/protolab/lab"
	"github.com/pthm-cable/protolab/telemetry"
)

// Score weights: one stage outranks any life potential difference, and an
// unfinished run costs the full time penalty.
const (
	stageWeight       = 100.0
	timePenaltyWeight = 100.0
)

// Evaluation summarizes one candidate across its robustness copies.
type Evaluation struct {
	Fitness       float64 // lower = better
	MeanStage     float64
	MeanLife      float64
	FinishedFrac  float64 // share of copies that reached the final stage
	FastestFinish int64   // earliest final-stage tick, -1 if none
	Environment   lab.Environment
	CopyResults   []ensemble.Result
}

// FitnessEvaluator runs candidate environments in an ensemble and scores them.
type FitnessEvaluator struct {
	params   *ParamVector
	base     lab.Environment
	maxTicks int64
	copies   int
	jitter   float64
	seed     int64
	baseDT   float64

	mu         sync.Mutex
	evals      int
	best       Evaluation
	hallOfFame *telemetry.HallOfFame
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, base lab.Environment, maxTicks int64, copies int, jitter float64, seed int64, baseDT float64) *FitnessEvaluator {
	if copies < 1 {
		copies = 1
	}
	return &FitnessEvaluator{
		params:     params,
		base:       base,
		maxTicks:   maxTicks,
		copies:     copies,
		jitter:     jitter,
		seed:       seed,
		baseDT:     baseDT,
		best:       Evaluation{Fitness: math.Inf(1)},
		hallOfFame: telemetry.NewHallOfFame(10),
	}
}

// HallOfFame returns the best candidates seen so far.
func (fe *FitnessEvaluator) HallOfFame() *telemetry.HallOfFame {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.hallOfFame
}

// Best returns the lowest-fitness evaluation seen so far.
func (fe *FitnessEvaluator) Best() Evaluation {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.best
}

// Evaluate computes fitness for raw parameter values (lower = better).
func (fe *FitnessEvaluator) Evaluate(x []float64) Evaluation {
	env := fe.params.Apply(fe.base, x)

	// Every candidate sees the same perturbations, so differences in
	// fitness come from the candidate alone.
	rng := rand.New(rand.NewSource(fe.seed))
	ens := ensemble.New(fe.baseDT)
	ens.Add("exact", env)
	for i := 1; i < fe.copies; i++ {
		ens.Add(fmt.Sprintf("jitter-%d", i), fe.perturb(env, rng))
	}
	ens.Run(fe.maxTicks, lab.StageDNAGenome)

	eval := fe.score(env, ens.Results())

	fe.mu.Lock()
	fe.evals++
	if eval.Fitness < fe.best.Fitness {
		fe.best = eval
	}
	exact := eval.CopyResults[0]
	finalTick, _ := exact.Reached(lab.StageDNAGenome)
	fe.hallOfFame.Consider(telemetry.HallEntry{
		Label:         fmt.Sprintf("eval-%d", fe.evals),
		Fitness:       -eval.Fitness,
		Stage:         exact.Final.Stage,
		LifePotential: exact.Final.LifePotential,
		FinalTick:     finalTick,
		Environment:   env,
	})
	fe.mu.Unlock()

	return eval
}

// perturb shifts every parameter by up to ±jitter of its range.
func (fe *FitnessEvaluator) perturb(env lab.Environment, rng *rand.Rand) lab.Environment {
	for _, spec := range fe.params.Specs {
		p, ok := lab.LookupParam(spec.Name)
		if !ok {
			continue
		}
		delta := fe.jitter * (spec.Max - spec.Min) * (2*rng.Float64() - 1)
		p.Set(&env, p.Get(env)+delta)
	}
	return env.Clamped()
}

// score averages stage·100 + life potential − time penalty over the copies.
func (fe *FitnessEvaluator) score(env lab.Environment, results []ensemble.Result) Evaluation {
	eval := Evaluation{Environment: env, CopyResults: results, FastestFinish: ensemble.NotReached}
	var total float64
	var finished int
	for _, r := range results {
		penalty := timePenaltyWeight
		if at, ok := r.Reached(lab.StageDNAGenome); ok {
			penalty = timePenaltyWeight * float64(at) / float64(fe.maxTicks)
			finished++
			if eval.FastestFinish == ensemble.NotReached || at < eval.FastestFinish {
				eval.FastestFinish = at
			}
		}
		total += float64(r.Final.Stage)*stageWeight + r.Final.LifePotential - penalty
		eval.MeanStage += float64(r.Final.Stage)
		eval.MeanLife += r.Final.LifePotential
	}

	n := float64(len(results))
	eval.Fitness = -total / n
	eval.MeanStage /= n
	eval.MeanLife /= n
	eval.FinishedFrac = float64(finished) / n
	return eval
}
