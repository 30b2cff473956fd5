package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sequencer holds the collectors updated while a stack starts.
type Sequencer struct {
	servicesStarted *prometheus.CounterVec
	healthProbes    *prometheus.CounterVec
	startupFailures *prometheus.CounterVec
	timeToHealthy   *prometheus.HistogramVec
}

// NewSequencer registers the sequencer collectors on reg.
func NewSequencer(reg prometheus.Registerer) *Sequencer {
	m := &Sequencer{
		servicesStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sequencer_services_started_total",
			Help: "Services whose container was started",
		}, []string{"service"}),
		healthProbes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sequencer_health_probes_total",
			Help: "Health check executions by result",
		}, []string{"service", "result"}),
		startupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sequencer_startup_failures_total",
			Help: "Startup failures by kind",
		}, []string{"service", "kind"}),
		timeToHealthy: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sequencer_time_to_healthy_seconds",
			Help:    "Time from container start until the health check first passed",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"service"}),
	}

	reg.MustRegister(m.servicesStarted, m.healthProbes, m.startupFailures, m.timeToHealthy)
	return m
}

func (m *Sequencer) ServiceStarted(service string) {
	if m == nil {
		return
	}
	m.servicesStarted.WithLabelValues(service).Inc()
}

func (m *Sequencer) HealthProbe(service string, healthy bool) {
	if m == nil {
		return
	}
	result := "unhealthy"
	if healthy {
		result = "healthy"
	}
	m.healthProbes.WithLabelValues(service, result).Inc()
}

func (m *Sequencer) StartupFailure(service, kind string) {
	if m == nil {
		return
	}
	m.startupFailures.WithLabelValues(service, kind).Inc()
}

func (m *Sequencer) Healthy(service string, waited time.Duration) {
	if m == nil {
		return
	}
	m.timeToHealthy.WithLabelValues(service).Observe(waited.Seconds())
}
