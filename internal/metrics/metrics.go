// Package metrics exposes Prometheus instrumentation for sync runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grantpipe/grant-ingestor/internal/models"
)

// Metrics holds the sync counters, labeled by source and outcome.
type Metrics struct {
	jobsTotal    *prometheus.CounterVec
	grantsTotal  *prometheus.CounterVec
	recordErrors *prometheus.CounterVec
	syncDuration *prometheus.HistogramVec
}

// New registers the sync metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grant_sync_jobs_total",
			Help: "Sync jobs by source and terminal status.",
		}, []string{"source_key", "status"}),
		grantsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grant_sync_grants_total",
			Help: "Grants processed by source and reconcile action.",
		}, []string{"source_key", "action"}),
		recordErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grant_sync_record_errors_total",
			Help: "Record-level errors by source and error code.",
		}, []string{"source_key", "code"}),
		syncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grant_sync_duration_seconds",
			Help:    "Wall-clock duration of sync runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"source_key"}),
	}

	reg.MustRegister(m.jobsTotal, m.grantsTotal, m.recordErrors, m.syncDuration)
	return m
}

// ObserveJob records a terminal sync job.
func (m *Metrics) ObserveJob(job *models.SyncJob) {
	m.jobsTotal.WithLabelValues(job.SourceKey, job.Status).Inc()

	m.grantsTotal.WithLabelValues(job.SourceKey, "created").Add(float64(job.GrantsCreated))
	m.grantsTotal.WithLabelValues(job.SourceKey, "updated").Add(float64(job.GrantsUpdated))
	m.grantsTotal.WithLabelValues(job.SourceKey, "skipped").Add(float64(job.GrantsSkipped))

	for _, jobErr := range job.Errors {
		m.recordErrors.WithLabelValues(job.SourceKey, jobErr.Code).Inc()
	}

	if job.StartedAt != nil && job.CompletedAt != nil {
		m.syncDuration.WithLabelValues(job.SourceKey).
			Observe(job.CompletedAt.Sub(*job.StartedAt).Seconds())
	}
}
