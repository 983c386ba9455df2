package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MaintenanceMetrics records maintenance job runs and the rows they purge.
type MaintenanceMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	purged   *prometheus.CounterVec
}

func NewMaintenanceMetrics(reg prometheus.Registerer) *MaintenanceMetrics {
	if reg == nil {
		return &MaintenanceMetrics{}
	}
	m := &MaintenanceMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "maintenance_job_duration_seconds",
			Help:    "Duration of maintenance jobs in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maintenance_job_runs_total",
			Help: "Maintenance job runs by outcome.",
		}, []string{"job", "outcome"}),
		purged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maintenance_rows_purged_total",
			Help: "Rows removed by retention jobs.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.duration, m.runs, m.purged)
	return m
}

// JobFinished records one run. A nil error counts as success.
func (m *MaintenanceMetrics) JobFinished(job string, duration time.Duration, err error) {
	if m == nil || m.runs == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
	m.runs.WithLabelValues(normalizeLabel(job), outcome).Inc()
}

func (m *MaintenanceMetrics) RowsPurged(job string, rows int64) {
	if m == nil || m.purged == nil || rows <= 0 {
		return
	}
	m.purged.WithLabelValues(normalizeLabel(job)).Add(float64(rows))
}
