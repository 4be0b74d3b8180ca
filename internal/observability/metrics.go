package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	registerOnce sync.Once

	nodesRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "clusternode",
			Subsystem: "runner",
			Name:      "nodes",
			Help:      "Nodes currently launched by the runner.",
		},
	)
	workerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clusternode",
			Subsystem: "runner",
			Name:      "worker_transitions_total",
			Help:      "Role worker start/stop transitions.",
		},
		[]string{"role", "transition", "outcome"},
	)
	workerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clusternode",
			Subsystem: "runner",
			Name:      "worker_transition_seconds",
			Help:      "Role worker start/stop duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"role", "transition"},
	)
	binderEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clusternode",
			Subsystem: "binder",
			Name:      "events_total",
			Help:      "Discovery events handled by reference binders.",
		},
		[]string{"system", "kind", "outcome"},
	)
	deadLetters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clusternode",
			Subsystem: "runtime",
			Name:      "dead_letters_total",
			Help:      "Messages told to units that already stopped.",
		},
		[]string{"system"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clusternode",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clusternode",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			nodesRunning,
			workerTransitions,
			workerDuration,
			binderEvents,
			deadLetters,
			httpRequests,
			httpDuration,
		)
	})
}

func SetNodes(n int) {
	RegisterMetrics()
	nodesRunning.Set(float64(n))
}

func RecordWorkerTransition(role, transition string, duration time.Duration, err error) {
	RegisterMetrics()
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	workerTransitions.WithLabelValues(role, transition, outcome).Inc()
	workerDuration.WithLabelValues(role, transition).Observe(duration.Seconds())
}

func RecordBinderEvent(system, kind, outcome string) {
	RegisterMetrics()
	binderEvents.WithLabelValues(system, kind, outcome).Inc()
}

func RecordDeadLetter(system string) {
	RegisterMetrics()
	deadLetters.WithLabelValues(system).Inc()
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
