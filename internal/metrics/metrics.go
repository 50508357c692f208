// Package metrics exposes Prometheus metrics for test runs.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lucasnoah/testbridge/internal/result"
)

const Namespace = "testbridge"

// Run outcomes used as the "outcome" label.
const (
	OutcomePassed      = "passed"
	OutcomeFailed      = "failed"
	OutcomeError       = "error"
	OutcomeCancelled   = "cancelled"
	OutcomeLaunchError = "launch_error"
)

// Collector records run and result metrics in its own registry.
type Collector struct {
	registry *prometheus.Registry

	runsTotal    *prometheus.CounterVec
	resultsTotal *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	lastRunTests *prometheus.GaugeVec
}

// New creates a Collector with a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Count of test runs by framework and outcome",
		}, []string{"framework", "outcome"}),
		resultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "results_total",
			Help:      "Count of parsed test results by framework and category",
		}, []string{"framework", "category"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of runner processes",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"framework"}),
		lastRunTests: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_tests",
			Help:      "Number of tests per category in the most recent run",
		}, []string{"framework", "category"}),
	}
	c.registry.MustRegister(c.runsTotal, c.resultsTotal, c.runDuration, c.lastRunTests)
	return c
}

// Registry returns the registry the collector writes to.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveRun records one settled run.
func (c *Collector) ObserveRun(framework, outcome string, duration time.Duration) {
	c.runsTotal.WithLabelValues(framework, outcome).Inc()
	if duration > 0 {
		c.runDuration.WithLabelValues(framework).Observe(duration.Seconds())
	}
}

// ObserveResults records the parsed results of one run.
func (c *Collector) ObserveResults(framework string, records []result.Record) {
	counts := map[result.Category]int{result.OK: 0, result.Fail: 0, result.Skip: 0}
	for _, r := range records {
		counts[r.Category]++
	}
	for cat, n := range counts {
		c.resultsTotal.WithLabelValues(framework, cat.String()).Add(float64(n))
		c.lastRunTests.WithLabelValues(framework, cat.String()).Set(float64(n))
	}
}

// WriteTextfile writes the current metrics in the text exposition format,
// for pickup by the node exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
