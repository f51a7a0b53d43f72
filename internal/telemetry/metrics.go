// Package telemetry exposes the supervisor's metrics, health and status over
// HTTP. Every method on a nil *Metrics is a no-op so components can run
// without telemetry.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "watchdog"

// Exit reasons used as the reason label of child exits.
const (
	ReasonSelfUpdate = "self_update"
	ReasonCrash      = "crash"
	ReasonSignal     = "signal"
)

// Metrics holds the supervisor's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	childStarts  prometheus.Counter
	childExits   *prometheus.CounterVec
	childUp      prometheus.Gauge
	lastExitCode prometheus.Gauge
	syncs        *prometheus.CounterVec
	installs     *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		childStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "child_starts_total",
			Help:      "Number of times the application was started.",
		}),
		childExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "child_exits_total",
			Help:      "Number of application exits by reason.",
		}, []string{"reason"}),
		childUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "child_up",
			Help:      "1 while the application is running.",
		}),
		lastExitCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "child_last_exit_code",
			Help:      "Exit status of the most recent application run (-1 for signal or start failure).",
		}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syncs_total",
			Help:      "Repository syncs by source and result.",
		}, []string{"source", "result"}),
		installs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "installs_total",
			Help:      "Dependency installs by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.childStarts,
		m.childExits,
		m.childUp,
		m.lastExitCode,
		m.syncs,
		m.installs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ChildStarted records a successful start.
func (m *Metrics) ChildStarted() {
	if m == nil {
		return
	}
	m.childStarts.Inc()
	m.childUp.Set(1)
}

// ChildExited records an exit with its reason label and status.
func (m *Metrics) ChildExited(reason string, code int) {
	if m == nil {
		return
	}
	m.childExits.WithLabelValues(reason).Inc()
	m.childUp.Set(0)
	m.lastExitCode.Set(float64(code))
}

// SyncDone records a repository sync.
func (m *Metrics) SyncDone(source string, failed bool) {
	if m == nil {
		return
	}
	result := "ok"
	if failed {
		result = "error"
	}
	m.syncs.WithLabelValues(source, result).Inc()
}

// InstallDone records a dependency install outcome.
func (m *Metrics) InstallDone(result string) {
	if m == nil {
		return
	}
	m.installs.WithLabelValues(result).Inc()
}
