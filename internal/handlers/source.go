package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/grantpipe/grant-ingestor/internal/logger"
	"github.com/grantpipe/grant-ingestor/internal/models"
	"github.com/grantpipe/grant-ingestor/internal/repository"
)

// SourceStore is the source lookup surface the handler needs.
type SourceStore interface {
	GetByKey(ctx context.Context, key string) (*models.Source, error)
	List(ctx context.Context) ([]models.Source, error)
}

// GrantCounter reports catalog row counts per source.
type GrantCounter interface {
	CountBySource(ctx context.Context, sourceKey string) (int, error)
}

type SourceHandler struct {
	sources SourceStore
	counts  GrantCounter
	logger  logger.Logger
}

func NewSourceHandler(sources SourceStore, counts GrantCounter, log logger.Logger) *SourceHandler {
	return &SourceHandler{
		sources: sources,
		counts:  counts,
		logger:  log,
	}
}

func (h *SourceHandler) List(c *gin.Context) {
	sources, err := h.sources.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list sources",
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sources"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sources": sources,
		"count":   len(sources),
	})
}

func (h *SourceHandler) GetByKey(c *gin.Context) {
	key := c.Param("key")

	source, err := h.sources.GetByKey(c.Request.Context(), key)
	if errors.Is(err, repository.ErrSourceNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get source",
			logger.String("source_key", key),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get source"})
		return
	}

	count, err := h.counts.CountBySource(c.Request.Context(), key)
	if err != nil {
		h.logger.Error("Failed to count grants for source",
			logger.String("source_key", key),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get source"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"source":      source,
		"grant_count": count,
	})
}
