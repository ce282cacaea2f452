package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects prometheus metrics for the bot engine.
type Metrics struct {
	config   MetricsConfig
	registry *prometheus.Registry

	transitions          *prometheus.CounterVec
	transitionRejections *prometheus.CounterVec
	runs                 *prometheus.CounterVec
	runDuration          *prometheus.HistogramVec
	errors               *prometheus.CounterVec
	escalations          *prometheus.CounterVec
	chickens             prometheus.Counter
	deaths               prometheus.Counter
	healthPercent        prometheus.Gauge
	manaPercent          prometheus.Gauge
	ticks                prometheus.Counter
}

// NewMetrics creates and registers all engine metrics. When disabled, a
// Metrics value is still returned and every recorder is a no-op.
func NewMetrics(cfg MetricsConfig) *Metrics {
	m := &Metrics{config: cfg}
	if !cfg.Enabled {
		return m
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "d2herder"
	}

	m.registry = prometheus.NewRegistry()

	m.transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "transitions_total",
		Help:      "State transitions applied, by from/to state and priority.",
	}, []string{"from", "to", "priority"})

	m.transitionRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "transition_rejections_total",
		Help:      "Transition requests rejected, by reason.",
	}, []string{"reason"})

	m.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "runs_total",
		Help:      "Completed runs, by run name and terminal status.",
	}, []string{"run", "status"})

	m.runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "run_duration_seconds",
		Help:      "Run wall time in seconds.",
		Buckets:   []float64{15, 30, 60, 90, 120, 180, 300, 600},
	}, []string{"run"})

	m.errors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "errors_total",
		Help:      "Error events routed through the recovery coordinator.",
	}, []string{"kind", "severity"})

	m.escalations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "error_escalations_total",
		Help:      "Retry-budget escalations, by original error kind.",
	}, []string{"kind"})

	m.chickens = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "chickens_total",
		Help:      "Emergency exits triggered by the health controller.",
	})

	m.deaths = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "deaths_total",
		Help:      "Character deaths observed this session.",
	})

	m.healthPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "health_percent",
		Help:      "Last sampled character health percentage.",
	})

	m.manaPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "mana_percent",
		Help:      "Last sampled character mana percentage.",
	})

	m.ticks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "loop_ticks_total",
		Help:      "Orchestration loop iterations.",
	})

	m.registry.MustRegister(
		m.transitions, m.transitionRejections,
		m.runs, m.runDuration,
		m.errors, m.escalations,
		m.chickens, m.deaths,
		m.healthPercent, m.manaPercent,
		m.ticks,
	)

	return m
}

// RecordTransition records an applied state transition.
func (m *Metrics) RecordTransition(from, to, priority string) {
	if m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(from, to, priority).Inc()
}

// RecordTransitionRejection records a rejected transition request.
func (m *Metrics) RecordTransitionRejection(reason string) {
	if m.transitionRejections == nil {
		return
	}
	m.transitionRejections.WithLabelValues(reason).Inc()
}

// RecordRun records a completed run with its duration.
func (m *Metrics) RecordRun(run, status string, duration time.Duration) {
	if m.runs == nil {
		return
	}
	m.runs.WithLabelValues(run, status).Inc()
	m.runDuration.WithLabelValues(run).Observe(duration.Seconds())
}

// RecordError records an error event by kind and severity.
func (m *Metrics) RecordError(kind, severity string) {
	if m.errors == nil {
		return
	}
	m.errors.WithLabelValues(kind, severity).Inc()
}

// RecordEscalation records a retry-budget escalation.
func (m *Metrics) RecordEscalation(kind string) {
	if m.escalations == nil {
		return
	}
	m.escalations.WithLabelValues(kind).Inc()
}

// RecordChicken records an emergency exit.
func (m *Metrics) RecordChicken() {
	if m.chickens == nil {
		return
	}
	m.chickens.Inc()
}

// RecordDeath records a character death.
func (m *Metrics) RecordDeath() {
	if m.deaths == nil {
		return
	}
	m.deaths.Inc()
}

// SetVitals records the latest sampled health and mana percentages.
func (m *Metrics) SetVitals(health, mana float64) {
	if m.healthPercent == nil {
		return
	}
	m.healthPercent.Set(health)
	m.manaPercent.Set(mana)
}

// RecordTick records one orchestration loop iteration.
func (m *Metrics) RecordTick() {
	if m.ticks == nil {
		return
	}
	m.ticks.Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartServer starts an HTTP server exposing the metrics endpoint.
func (m *Metrics) StartServer() error {
	if !m.config.Enabled {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
