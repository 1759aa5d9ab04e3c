package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/mfreeman451/statustracker/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Probe(true)
	m.Probe(false)
	m.Probe(false)
	m.Write(models.EngineProber, nil)
	m.Write(models.EngineProber, errors.New("boom"))
	m.Terminal("timeout")
	m.ObserveTick(&models.TickSummary{Engine: models.EngineWatchdog, Duration: time.Second})
	m.ObserveTick(&models.TickSummary{Engine: models.EngineWatchdog, Error: "failed"})

	assert.InDelta(t, 1, testutil.ToFloat64(m.probes.WithLabelValues("reachable")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.probes.WithLabelValues("unreachable")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.writes.WithLabelValues(models.EngineProber, "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.terminals.WithLabelValues("timeout")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ticks.WithLabelValues(models.EngineWatchdog, "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ticks.WithLabelValues(models.EngineWatchdog, "error")), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Probe(true)
		m.Write("x", nil)
		m.Terminal("x")
		m.ObserveTick(&models.TickSummary{})
	})
}
