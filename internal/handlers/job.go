package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/grantpipe/grant-ingestor/internal/logger"
	"github.com/grantpipe/grant-ingestor/internal/models"
	"github.com/grantpipe/grant-ingestor/internal/repository"
)

// JobStore is the job lookup surface the handler needs.
type JobStore interface {
	GetByID(ctx context.Context, id string) (*models.SyncJob, error)
	List(ctx context.Context, filter repository.JobFilter) ([]models.SyncJob, error)
}

type JobHandler struct {
	jobs   JobStore
	logger logger.Logger
}

func NewJobHandler(jobs JobStore, log logger.Logger) *JobHandler {
	return &JobHandler{
		jobs:   jobs,
		logger: log,
	}
}

func (h *JobHandler) List(c *gin.Context) {
	filter := repository.JobFilter{
		SourceKey: c.Query("source_key"),
		Status:    c.Query("status"),
		Limit:     intQuery(c, "limit"),
		Offset:    intQuery(c, "offset"),
	}

	jobs, err := h.jobs.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs",
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

func (h *JobHandler) GetByID(c *gin.Context) {
	id := c.Param("id")

	job, err := h.jobs.GetByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get job",
			logger.String("job_id", id),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get job"})
		return
	}

	c.JSON(http.StatusOK, job)
}

func intQuery(c *gin.Context, name string) int {
	raw := c.Query(name)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0
	}
	return value
}
