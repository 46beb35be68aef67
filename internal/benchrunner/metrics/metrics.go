package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const (
	MetricPrefix = "benchrunner_"
	TextfileName = "metrics.prom"
)

// Metrics holds the instrumentation of a single run. Each instance has its own registry so
// that several runs (and tests) can coexist in one process.
type Metrics struct {
	registry       *prometheus.Registry
	jobsPlanned    prometheus.Gauge
	jobOutcomes    *prometheus.CounterVec
	solversRunning prometheus.Gauge
	solverDuration prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobsPlanned: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricPrefix + "jobs_planned",
			Help: "Number of jobs submitted to the engine for this run",
		}),
		jobOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPrefix + "job_outcomes_total",
			Help: "Number of jobs that finished, by outcome",
		}, []string{"outcome"}),
		solversRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricPrefix + "solvers_running",
			Help: "Number of solver processes currently running",
		}),
		solverDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricPrefix + "solver_duration_seconds",
			Help:    "Wall-clock duration of solver processes",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
	m.registry.MustRegister(m.jobsPlanned, m.jobOutcomes, m.solversRunning, m.solverDuration)
	return m
}

// Registry is where other collectors for the run (e.g. log counters) should be registered.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) SetJobsPlanned(n int) {
	m.jobsPlanned.Set(float64(n))
}

func (m *Metrics) RecordOutcome(outcome fmt.Stringer) {
	m.jobOutcomes.WithLabelValues(outcome.String()).Inc()
}

func (m *Metrics) SolverStarted() {
	m.solversRunning.Inc()
}

func (m *Metrics) SolverFinished(duration time.Duration) {
	m.solversRunning.Dec()
	m.solverDuration.Observe(duration.Seconds())
}

// WriteTextfile dumps the current values in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return errors.WithStack(prometheus.WriteToTextfile(path, m.registry))
}

// Serve exposes the metrics on :port/metrics until ctx is done.
func (m *Metrics) Serve(ctx context.Context, port uint16) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("metrics server did not shut down cleanly")
		}
	}()

	log.Debugf("serving metrics on %s/metrics", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.WithStack(err)
	}
	return nil
}
