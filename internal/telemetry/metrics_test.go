package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RunFinished("SUCCEEDED")
	m.RunFinished("SUCCEEDED")
	m.RunFinished("FAILED")
	m.JobFinished("build", "SUCCEEDED")
	m.ArtifactStored(128)
	m.ArtifactStored(64)
	m.ReleaseFinished("PUBLISHED")
	m.ObserveStep("shell", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("SUCCEEDED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues("build", "SUCCEEDED")))
	assert.Equal(t, 192.0, testutil.ToFloat64(m.ArtifactBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReleasesTotal.WithLabelValues("PUBLISHED")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StepDuration))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	// Ни один вызов не должен паниковать
	m.RunFinished("SUCCEEDED")
	m.JobFinished("build", "FAILED")
	m.ObserveStep("shell", time.Second)
	m.ArtifactStored(1)
	m.ReleaseFinished("SKIPPED")
}

func TestParseLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", ParseLevel("debug").String())
	assert.Equal(t, "WARN", ParseLevel("WARNING").String())
	assert.Equal(t, "ERROR", ParseLevel("ERROR").String())
	assert.Equal(t, "INFO", ParseLevel("").String())
}
