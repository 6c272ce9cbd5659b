package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Names
const (
	RefreshCycleCounter     = "apicatalog_refresh_cycles_total"
	RefreshInstanceCounter  = "apicatalog_refresh_instances_total"
	RefreshDurationSeconds  = "apicatalog_refresh_duration_seconds"
	BootstrapAttemptCounter = "apicatalog_bootstrap_attempts_total"
	ContainersGauge         = "apicatalog_containers"
	BreakerStateGauge       = "apicatalog_registry_breaker_state"
)

// Labels
const (
	OutcomeLabel = "outcome"
	ActionLabel  = "action"
)

// Label values
const (
	SuccessOutcome   = "success"
	SkippedOutcome   = "skipped"
	UnchangedOutcome = "unchanged"
	TimeoutOutcome   = "timeout"
	FailureOutcome   = "failure"
	RetryOutcome     = "retry"

	AddedAction    = "added"
	ModifiedAction = "modified"
	DeletedAction  = "deleted"
	FailedAction   = "failed"
)

// Measures groups the collectors of the synchronization engine.
type Measures struct {
	RefreshCycles     *prometheus.CounterVec
	RefreshInstances  *prometheus.CounterVec
	RefreshDuration   prometheus.Histogram
	BootstrapAttempts *prometheus.CounterVec
	Containers        prometheus.Gauge
	BreakerState      prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on a fresh registry.
func New() *Measures {
	reg := prometheus.NewRegistry()
	m := NewWith(reg)
	m.gatherer = reg
	return m
}

// NewWith creates the collectors and registers them on reg.
func NewWith(reg prometheus.Registerer) *Measures {
	m := &Measures{
		RefreshCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: RefreshCycleCounter,
				Help: "Counter for refresh cycles by outcome.",
			},
			[]string{OutcomeLabel},
		),
		RefreshInstances: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: RefreshInstanceCounter,
				Help: "Counter for delta instances applied to the catalog cache, by action.",
			},
			[]string{ActionLabel},
		),
		RefreshDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    RefreshDurationSeconds,
				Help:    "Duration of refresh cycles that ran the apply step.",
				Buckets: prometheus.DefBuckets,
			},
		),
		BootstrapAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: BootstrapAttemptCounter,
				Help: "Counter for cache bootstrap attempts by outcome.",
			},
			[]string{OutcomeLabel},
		),
		Containers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: ContainersGauge,
				Help: "Number of containers held in the catalog cache.",
			},
		),
		BreakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: BreakerStateGauge,
				Help: "State of the registry circuit breaker (0 closed, 1 half-open, 2 open).",
			},
		),
	}

	reg.MustRegister(
		m.RefreshCycles,
		m.RefreshInstances,
		m.RefreshDuration,
		m.BootstrapAttempts,
		m.Containers,
		m.BreakerState,
	)
	return m
}

// Cycle records one refresh cycle outcome.
func (m *Measures) Cycle(outcome string) {
	m.RefreshCycles.With(prometheus.Labels{OutcomeLabel: outcome}).Inc()
}

// Instance records one applied delta instance.
func (m *Measures) Instance(action string) {
	m.RefreshInstances.With(prometheus.Labels{ActionLabel: action}).Inc()
}

// Bootstrap records one bootstrap attempt outcome.
func (m *Measures) Bootstrap(outcome string) {
	m.BootstrapAttempts.With(prometheus.Labels{OutcomeLabel: outcome}).Inc()
}

// Handler exposes the registry the measures were created on.
func (m *Measures) Handler() http.Handler {
	if m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
