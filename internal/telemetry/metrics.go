package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — Prometheus метрики Shipyard.
//
// Все методы безопасны для nil-получателя: библиотечный код
// может работать без метрик.
type Metrics struct {
	RunsTotal     *prometheus.CounterVec
	JobsTotal     *prometheus.CounterVec
	StepDuration  *prometheus.HistogramVec
	ArtifactBytes prometheus.Counter
	ReleasesTotal *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в reg.
// Если reg == nil, используется prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shipyard_runs_total",
			Help: "Total finished pipeline runs by final status",
		}, []string{"status"}),

		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shipyard_jobs_total",
			Help: "Total finished job instances by job and status",
		}, []string{"job", "status"}),

		StepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shipyard_step_duration_seconds",
			Help:    "Duration of step execution by action",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"action"}),

		ArtifactBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "shipyard_artifact_bytes_total",
			Help: "Total bytes published to the artifact store",
		}),

		ReleasesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shipyard_releases_total",
			Help: "Total release gate outcomes by final state",
		}, []string{"state"}),
	}
}

// RunFinished учитывает завершённый run.
func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
}

// JobFinished учитывает завершённый экземпляр job.
func (m *Metrics) JobFinished(job, status string) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(job, status).Inc()
}

// ObserveStep записывает длительность шага.
func (m *Metrics) ObserveStep(action string, d time.Duration) {
	if m == nil {
		return
	}
	m.StepDuration.WithLabelValues(action).Observe(d.Seconds())
}

// ArtifactStored учитывает размер опубликованного артефакта.
func (m *Metrics) ArtifactStored(size int64) {
	if m == nil {
		return
	}
	m.ArtifactBytes.Add(float64(size))
}

// ReleaseFinished учитывает итог Release Gate.
func (m *Metrics) ReleaseFinished(state string) {
	if m == nil {
		return
	}
	m.ReleasesTotal.WithLabelValues(state).Inc()
}
