package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/grantpipe/grant-ingestor/internal/models"
)

func TestMetrics_ObserveJob(t *testing.T) {
	m := New(prometheus.NewRegistry())

	started := time.Now().Add(-2 * time.Second)
	completed := time.Now()
	job := &models.SyncJob{
		SourceKey:     "federal-registry",
		Status:        models.JobStatusCompleted,
		GrantsCreated: 3,
		GrantsUpdated: 1,
		GrantsSkipped: 10,
		Errors: models.JobErrorList{
			{Code: models.ErrCodeNormalization, Message: "title is required"},
		},
		StartedAt:   &started,
		CompletedAt: &completed,
	}

	m.ObserveJob(job)
	m.ObserveJob(job)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobsTotal.WithLabelValues("federal-registry", "completed")))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.grantsTotal.WithLabelValues("federal-registry", "created")))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.grantsTotal.WithLabelValues("federal-registry", "skipped")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.recordErrors.WithLabelValues("federal-registry", models.ErrCodeNormalization)))
}
