package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasnoah/testbridge/internal/result"
)

// value returns the counter or gauge value of the series with the given
// labels, or -1 when it does not exist.
func value(t *testing.T, c *Collector, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := c.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue series
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			if m.GetGauge() != nil {
				return m.GetGauge().GetValue()
			}
			if m.GetHistogram() != nil {
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return -1
}

func TestCollector_ObserveRun(t *testing.T) {
	c := New()
	c.ObserveRun("pytest", OutcomePassed, 2*time.Second)
	c.ObserveRun("pytest", OutcomePassed, time.Second)
	c.ObserveRun("nose", OutcomeCancelled, 0)

	assert.Equal(t, 2.0, value(t, c, "testbridge_runs_total", map[string]string{"framework": "pytest", "outcome": OutcomePassed}))
	assert.Equal(t, 1.0, value(t, c, "testbridge_runs_total", map[string]string{"framework": "nose", "outcome": OutcomeCancelled}))
	assert.Equal(t, 2.0, value(t, c, "testbridge_run_duration_seconds", map[string]string{"framework": "pytest"}))
	assert.Equal(t, -1.0, value(t, c, "testbridge_run_duration_seconds", map[string]string{"framework": "nose"}))
}

func TestCollector_ObserveResults(t *testing.T) {
	c := New()
	c.ObserveResults("pytest", []result.Record{
		{Category: result.OK}, {Category: result.OK}, {Category: result.Fail},
	})
	c.ObserveResults("pytest", []result.Record{{Category: result.Skip}})

	assert.Equal(t, 2.0, value(t, c, "testbridge_results_total", map[string]string{"framework": "pytest", "category": "ok"}))
	assert.Equal(t, 1.0, value(t, c, "testbridge_results_total", map[string]string{"framework": "pytest", "category": "fail"}))
	assert.Equal(t, 1.0, value(t, c, "testbridge_results_total", map[string]string{"framework": "pytest", "category": "skip"}))

	assert.Equal(t, 0.0, value(t, c, "testbridge_last_run_tests", map[string]string{"framework": "pytest", "category": "ok"}))
	assert.Equal(t, 1.0, value(t, c, "testbridge_last_run_tests", map[string]string{"framework": "pytest", "category": "skip"}))
}

func TestCollector_WriteTextfile(t *testing.T) {
	c := New()
	c.ObserveRun("nose", OutcomeFailed, time.Second)

	path := filepath.Join(t.TempDir(), "testbridge.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `testbridge_runs_total{framework="nose",outcome="failed"} 1`)
}
