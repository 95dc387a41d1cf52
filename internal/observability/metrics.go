// Package observability exports limiter and job metrics to Prometheus.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/serroba/tg-dispatch/internal/delivery"
	"github.com/serroba/tg-dispatch/internal/ratelimit"
	"go.uber.org/zap"
)

const namespace = "tgdispatch"

// Metrics holds every collector of the service in its own registry.
type Metrics struct {
	registry *prometheus.Registry
	acquires *prometheus.CounterVec
	wait     *prometheus.HistogramVec
	jobs     *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		acquires: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "acquire_total",
			Help:      "Slot acquisitions per window and outcome.",
		}, []string{"window", "outcome"}),
		wait: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for a slot, per window.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30, 60, 65},
		}, []string{"window"}),
		jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Send jobs by final status.",
		}, []string{"status"}),
	}
}

// ObserveAcquire implements ratelimit.Recorder.
func (m *Metrics) ObserveAcquire(window string, outcome ratelimit.Outcome, waited time.Duration) {
	m.acquires.WithLabelValues(window, string(outcome)).Inc()
	m.wait.WithLabelValues(window).Observe(waited.Seconds())
}

// ObserveJob implements sender.JobRecorder.
func (m *Metrics) ObserveJob(status delivery.Status) {
	m.jobs.WithLabelValues(string(status)).Inc()
}

// Registry returns the registry backing the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Server serves metrics on a dedicated port, for processes without an API.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// NewServer creates a metrics server listening on port.
func NewServer(port int, metrics *Metrics, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start serves until Shutdown. It returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("metrics server starting", zap.String("addr", s.server.Addr))

	return s.server.ListenAndServe()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
