// Package metrics exposes lab state to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pthm-cable/protolab/lab"
)

// Source provides the values the collector reads on every scrape.
type Source interface {
	Snapshot() lab.State
	Environment() lab.Environment
	Tick() int64
}

// Collector reads a fresh snapshot from its Source on every scrape.
type Collector struct {
	source Source

	stage         *prometheus.Desc
	lifePotential *prometheus.Desc
	lifeCeiling   *prometheus.Desc
	accuracy      *prometheus.Desc
	fidelity      *prometheus.Desc
	passesEigen   *prometheus.Desc
	simTime       *prometheus.Desc
	ticks         *prometheus.Desc
	accumulator   *prometheus.Desc
	environment   *prometheus.Desc
	mineral       *prometheus.Desc
}

// NewCollector creates a collector for source.
func NewCollector(source Source) *Collector {
	return &Collector{
		source:        source,
		stage:         prometheus.NewDesc("protolab_stage", "Current stage index (0-6).", nil, nil),
		lifePotential: prometheus.NewDesc("protolab_life_potential", "Life potential score.", nil, nil),
		lifeCeiling:   prometheus.NewDesc("protolab_life_ceiling", "Life potential ceiling of the current tier.", nil, nil),
		accuracy:      prometheus.NewDesc("protolab_per_base_accuracy", "Per-base copying accuracy.", nil, nil),
		fidelity:      prometheus.NewDesc("protolab_strand_fidelity", "Whole-strand copying fidelity.", nil, nil),
		passesEigen:   prometheus.NewDesc("protolab_passes_eigen", "1 if accuracy is at or above the error threshold.", nil, nil),
		simTime:       prometheus.NewDesc("protolab_sim_time_seconds", "Accumulated simulated time.", nil, nil),
		ticks:         prometheus.NewDesc("protolab_ticks_total", "Steps taken since the last reset.", nil, nil),
		accumulator:   prometheus.NewDesc("protolab_accumulator", "Process state accumulator value.", []string{"name"}, nil),
		environment:   prometheus.NewDesc("protolab_environment", "Environment input value.", []string{"param"}, nil),
		mineral:       prometheus.NewDesc("protolab_mineral_catalysis", "1 if mineral catalysis is enabled.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.stage
	ch <- c.lifePotential
	ch <- c.lifeCeiling
	ch <- c.accuracy
	ch <- c.fidelity
	ch <- c.passesEigen
	ch <- c.simTime
	ch <- c.ticks
	ch <- c.accumulator
	ch <- c.environment
	ch <- c.mineral
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Snapshot()
	env := c.source.Environment()

	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	gauge(c.stage, float64(s.Stage))
	gauge(c.lifePotential, s.LifePotential)
	gauge(c.lifeCeiling, lab.LifeCeiling(s))
	gauge(c.accuracy, s.PerBaseAccuracy)
	gauge(c.fidelity, s.StrandFidelity)
	gauge(c.passesEigen, boolValue(s.PassesEigen))
	gauge(c.simTime, s.SimTime)
	ch <- prometheus.MustNewConstMetric(c.ticks, prometheus.CounterValue, float64(c.source.Tick()))

	for name, v := range s.Accumulators() {
		gauge(c.accumulator, v, name)
	}
	for _, p := range lab.Params() {
		gauge(c.environment, p.Get(env), p.Name)
	}
	gauge(c.mineral, boolValue(env.MineralCatalysis))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Reporter owns a registry with the lab collector, event counters and
// HTTP request metrics.
type Reporter struct {
	registry        *prometheus.Registry
	stageAdvances   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewReporter creates a reporter with its own registry.
func NewReporter(source Source) *Reporter {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(source),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Reporter{
		registry: reg,
		stageAdvances: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "protolab_stage_advances_total",
			Help: "Stage advances observed, by stage reached.",
		}, []string{"stage"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "protolab_http_request_duration_seconds",
			Help:    "HTTP request duration by route and status.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~1.6s
		}, []string{"route", "method", "status"}),
	}
}

// Registry returns the reporter's registry.
func (r *Reporter) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveStageAdvance counts one stage advance.
func (r *Reporter) ObserveStageAdvance(stage lab.Stage) {
	r.stageAdvances.WithLabelValues(stage.String()).Inc()
}

// ObserveRequest records one HTTP request.
func (r *Reporter) ObserveRequest(route, method, status string, d time.Duration) {
	r.requestDuration.WithLabelValues(route, method, status).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Reporter) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
