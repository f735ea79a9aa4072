// metrics.go tracks server activity twice: as plain atomic totals for the
// INFO command, and as Prometheus collectors on a registry owned by the
// application. A private registry keeps parallel test servers from colliding
// on the global default registry.

package main

import (
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "bloomd"

// Metrics holds the counters for monitoring the server's health.
type Metrics struct {
	TotalConnections atomic.Uint64
	TotalCommands    atomic.Uint64
	HashErrors       atomic.Uint64

	registry    *prometheus.Registry
	connections prometheus.Counter
	commands    *prometheus.CounterVec
	hashErrors  prometheus.Counter
}

// NewMetrics creates the collectors. filterCount is sampled on every scrape
// to report the number of live filters.
func NewMetrics(filterCount func() int) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		connections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_total",
			Help:      "Client connections accepted since start.",
		}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_total",
			Help:      "Commands processed, by command name.",
		}, []string{"command"}),
		hashErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "hash_errors_total",
			Help:      "Filter operations that failed while hashing an element.",
		}),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "filters",
		Help:      "Filters currently held in memory.",
	}, func() float64 { return float64(filterCount()) })

	return m
}

func (m *Metrics) connectionOpened() {
	m.TotalConnections.Add(1)
	m.connections.Inc()
}

// commandProcessed counts one command. Unregistered names share a single
// label value so that clients cannot grow the label set.
func (m *Metrics) commandProcessed(name string, known bool) {
	m.TotalCommands.Add(1)
	if !known {
		name = "unknown"
	}
	m.commands.WithLabelValues(strings.ToLower(name)).Inc()
}

func (m *Metrics) hashFailed() {
	m.HashErrors.Add(1)
	m.hashErrors.Inc()
}

// metricsServer returns an HTTP server exposing the registry at /metrics.
func (app *application) metricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(app.metrics.registry, promhttp.HandlerOpts{
		Registry: app.metrics.registry,
	}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
