// Package ensemble steps many independent labs together in an ECS world.
// Sweeps and optimizer evaluations use it to compare environments.
package ensemble

import (
	"runtime"
	"sort"

	"github.com/mlange-42/ark/ecs"
	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/protolab/lab"
)

// parallelThreshold is the minimum member count to step in parallel.
// Below this, single-threaded is faster due to goroutine overhead.
const parallelThreshold = 64

// NotReached marks a stage a member has not reached.
const NotReached int64 = -1

// Member identifies one lab in the ensemble.
type Member struct {
	Index int
	Label string
}

// Progress records the tick each stage was first reached.
type Progress struct {
	ReachedAt [lab.NumStages]int64
}

func newProgress() Progress {
	var p Progress
	for i := range p.ReachedAt {
		p.ReachedAt[i] = NotReached
	}
	p.ReachedAt[lab.StageSimpleMolecules] = 0
	return p
}

// Result is the outcome of one member.
type Result struct {
	Label       string
	Environment lab.Environment
	Final       lab.State
	ReachedAt   [lab.NumStages]int64
}

// Reached reports whether the member reached stage and at which tick.
func (r Result) Reached(stage lab.Stage) (int64, bool) {
	if !stage.Valid() {
		return NotReached, false
	}
	t := r.ReachedAt[stage]
	return t, t != NotReached
}

// memberSnapshot captures read-only inputs for the compute phase.
type memberSnapshot struct {
	entity ecs.Entity
	env    lab.Environment
	state  lab.State
}

// Ensemble holds the labs and the shared step size.
type Ensemble struct {
	world  *ecs.World
	mapper *ecs.Map4[Member, lab.Environment, lab.State, Progress]
	filter *ecs.Filter4[Member, lab.Environment, lab.State, Progress]

	stateMap    *ecs.Map1[lab.State]
	progressMap *ecs.Map1[Progress]

	baseDT     float64
	tick       int64
	size       int
	numWorkers int

	snapshots []memberSnapshot
	next      []lab.State
}

// New creates an empty ensemble. baseDT is the simulated seconds per step at
// time scale 1; each member scales it by its own environment.
func New(baseDT float64) *Ensemble {
	if baseDT <= 0 {
		baseDT = lab.BaseDT
	}
	world := ecs.NewWorld()
	return &Ensemble{
		world:       world,
		mapper:      ecs.NewMap4[Member, lab.Environment, lab.State, Progress](world),
		filter:      ecs.NewFilter4[Member, lab.Environment, lab.State, Progress](world),
		stateMap:    ecs.NewMap1[lab.State](world),
		progressMap: ecs.NewMap1[Progress](world),
		baseDT:      baseDT,
		numWorkers:  runtime.GOMAXPROCS(0),
	}
}

// Add creates a lab at the initial state under env (clamped).
func (e *Ensemble) Add(label string, env lab.Environment) ecs.Entity {
	member := Member{Index: e.size, Label: label}
	env = env.Clamped()
	state := lab.NewState()
	progress := newProgress()
	e.size++
	return e.mapper.NewEntity(&member, &env, &state, &progress)
}

// Len returns the number of labs.
func (e *Ensemble) Len() int {
	return e.size
}

// Tick returns the number of steps taken.
func (e *Ensemble) Tick() int64 {
	return e.tick
}

// Step advances every lab by one step.
func (e *Ensemble) Step() {
	// Phase A: snapshot inputs
	e.snapshots = e.snapshots[:0]
	query := e.filter.Query()
	for query.Next() {
		_, env, state, _ := query.Get()
		e.snapshots = append(e.snapshots, memberSnapshot{
			entity: query.Entity(),
			env:    *env,
			state:  *state,
		})
	}

	n := len(e.snapshots)
	if n == 0 {
		e.tick++
		return
	}
	if cap(e.next) < n {
		e.next = make([]lab.State, n)
	}
	e.next = e.next[:n]

	// Phase B: compute, parallel for large ensembles
	if n < parallelThreshold {
		e.computeChunk(0, n)
	} else {
		e.computeParallel(n)
	}

	// Phase C: write back and record stage arrivals
	e.tick++
	for i, snap := range e.snapshots {
		next := e.next[i]
		*e.stateMap.Get(snap.entity) = next
		progress := e.progressMap.Get(snap.entity)
		for s := snap.state.Stage + 1; s <= next.Stage; s++ {
			if progress.ReachedAt[s] == NotReached {
				progress.ReachedAt[s] = e.tick
			}
		}
	}
}

func (e *Ensemble) computeChunk(start, end int) {
	for i := start; i < end; i++ {
		snap := &e.snapshots[i]
		e.next[i] = lab.Step(snap.state, snap.env, e.baseDT*snap.env.TimeScale)
	}
}

func (e *Ensemble) computeParallel(n int) {
	chunkSize := (n + e.numWorkers - 1) / e.numWorkers
	var g errgroup.Group
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		g.Go(func() error {
			e.computeChunk(start, end)
			return nil
		})
	}
	g.Wait()
}

// AllReached reports whether every lab has reached stage.
func (e *Ensemble) AllReached(stage lab.Stage) bool {
	all := true
	query := e.filter.Query()
	for query.Next() {
		_, _, state, _ := query.Get()
		if state.Stage < stage {
			all = false
		}
	}
	return all
}

// Run steps up to maxTicks times, stopping early once every lab has reached
// stopWhen. It returns the number of steps taken.
func (e *Ensemble) Run(maxTicks int64, stopWhen lab.Stage) int64 {
	var taken int64
	for taken < maxTicks {
		if e.AllReached(stopWhen) {
			break
		}
		e.Step()
		taken++
	}
	return taken
}

// Results returns one entry per lab in insertion order.
func (e *Ensemble) Results() []Result {
	type indexed struct {
		index  int
		result Result
	}
	rows := make([]indexed, 0, e.size)
	query := e.filter.Query()
	for query.Next() {
		member, env, state, progress := query.Get()
		rows = append(rows, indexed{member.Index, Result{
			Label:       member.Label,
			Environment: *env,
			Final:       *state,
			ReachedAt:   progress.ReachedAt,
		}})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].index < rows[j].index })

	out := make([]Result, len(rows))
	for i, r := range rows {
		out[i] = r.result
	}
	return out
}
