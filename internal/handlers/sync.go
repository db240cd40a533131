// Package handlers implements the HTTP handlers for the ingestion API.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/grantpipe/grant-ingestor/internal/adapters"
	"github.com/grantpipe/grant-ingestor/internal/logger"
	"github.com/grantpipe/grant-ingestor/internal/models"
	"github.com/grantpipe/grant-ingestor/internal/repository"
	"github.com/grantpipe/grant-ingestor/internal/sync"
)

// SweepRunner runs every sync-enabled source.
type SweepRunner interface {
	RunAll(ctx context.Context) ([]sync.SourceSummary, error)
}

// SourceSyncer runs one source.
type SourceSyncer interface {
	Run(ctx context.Context, sourceKey string, runOpts sync.RunOptions) (*models.SyncJob, error)
}

type SyncHandler struct {
	runner SweepRunner
	syncer SourceSyncer
	logger logger.Logger
}

func NewSyncHandler(runner SweepRunner, syncer SourceSyncer, log logger.Logger) *SyncHandler {
	return &SyncHandler{
		runner: runner,
		syncer: syncer,
		logger: log,
	}
}

// RunAll triggers a sweep over every sync-enabled source.
func (h *SyncHandler) RunAll(c *gin.Context) {
	summaries, err := h.runner.RunAll(c.Request.Context())
	if err != nil {
		h.logger.Error("Sync sweep failed",
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run sync"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results": summaries,
		"count":   len(summaries),
	})
}

type syncRequest struct {
	Type    string `json:"type"`
	GrantID string `json:"grant_id"`
}

// RunSource triggers a sync run for one source. The optional body selects
// the job type or targets one grant.
func (h *SyncHandler) RunSource(c *gin.Context) {
	key := c.Param("key")

	var req syncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
	}

	job, err := h.syncer.Run(c.Request.Context(), key, sync.RunOptions{
		JobType: req.Type,
		GrantID: req.GrantID,
	})

	switch {
	case errors.Is(err, repository.ErrSourceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	case errors.Is(err, repository.ErrSyncInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "Sync already in progress for source"})
		return
	case errors.Is(err, adapters.ErrUnknownSource):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No adapter for source"})
		return
	case err != nil && job == nil:
		h.logger.Error("Sync run failed to start",
			logger.String("source_key", key),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run sync"})
		return
	case err != nil:
		// The run executed but failed; the job carries the details.
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "job": job})
		return
	}

	c.JSON(http.StatusOK, job)
}
