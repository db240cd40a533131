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

// GrantStore is the catalog lookup surface the handler needs.
type GrantStore interface {
	GetByID(ctx context.Context, id string) (*models.Grant, error)
	List(ctx context.Context, filter repository.GrantFilter) ([]models.Grant, error)
}

// ManualSubmitter writes a validated manual entry to the catalog.
type ManualSubmitter interface {
	Submit(ctx context.Context, input *models.ManualGrantInput) (*models.Grant, sync.Action, error)
}

// DuplicateFinder proposes and records duplicate links for one grant.
type DuplicateFinder interface {
	FindForGrant(ctx context.Context, grantID string) ([]models.DuplicateMatch, error)
}

// DuplicateStore lists recorded duplicate links.
type DuplicateStore interface {
	ListForGrant(ctx context.Context, grantID string) ([]models.DuplicateMatch, error)
}

type GrantHandler struct {
	grants     GrantStore
	entry      ManualSubmitter
	finder     DuplicateFinder
	duplicates DuplicateStore
	logger     logger.Logger
}

func NewGrantHandler(
	grants GrantStore,
	entry ManualSubmitter,
	finder DuplicateFinder,
	duplicates DuplicateStore,
	log logger.Logger,
) *GrantHandler {
	return &GrantHandler{
		grants:     grants,
		entry:      entry,
		finder:     finder,
		duplicates: duplicates,
		logger:     log,
	}
}

func (h *GrantHandler) List(c *gin.Context) {
	filter := repository.GrantFilter{
		SourceKey:  c.Query("source_key"),
		Status:     c.Query("status"),
		ActiveOnly: c.Query("active") == "true",
		Search:     c.Query("q"),
		Limit:      intQuery(c, "limit"),
		Offset:     intQuery(c, "offset"),
	}

	grants, err := h.grants.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list grants",
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list grants"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"grants": grants,
		"count":  len(grants),
	})
}

func (h *GrantHandler) GetByID(c *gin.Context) {
	id := c.Param("id")

	grant, err := h.grants.GetByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrGrantNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Grant not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get grant",
			logger.String("grant_id", id),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get grant"})
		return
	}

	c.JSON(http.StatusOK, grant)
}

// Create handles the manual-entry path: validate, then normalize and
// reconcile directly against the catalog. Invalid input never writes.
func (h *GrantHandler) Create(c *gin.Context) {
	var input models.ManualGrantInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if validation := adapters.ValidateInput(&input); !validation.Valid {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "Validation failed",
			"validation": validation,
		})
		return
	}

	grant, action, err := h.entry.Submit(c.Request.Context(), &input)
	if err != nil {
		var validationErr *adapters.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validationErr.Error()})
			return
		}
		h.logger.Error("Failed to store manual grant",
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store grant"})
		return
	}

	h.logger.Info("Manual grant stored",
		logger.String("grant_id", grant.ID),
		logger.String("action", string(action)),
	)

	status := http.StatusOK
	if action == sync.ActionCreated {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"grant":  grant,
		"action": action,
	})
}

// FindDuplicates triggers duplicate detection for one grant.
func (h *GrantHandler) FindDuplicates(c *gin.Context) {
	id := c.Param("id")

	matches, err := h.finder.FindForGrant(c.Request.Context(), id)
	if errors.Is(err, repository.ErrGrantNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Grant not found"})
		return
	}
	if err != nil {
		h.logger.Error("Duplicate detection failed",
			logger.String("grant_id", id),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to find duplicates"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"matches": matches,
		"count":   len(matches),
	})
}

// ListDuplicates returns the recorded duplicate links for one grant.
func (h *GrantHandler) ListDuplicates(c *gin.Context) {
	id := c.Param("id")

	matches, err := h.duplicates.ListForGrant(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to list duplicates",
			logger.String("grant_id", id),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list duplicates"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"matches": matches,
		"count":   len(matches),
	})
}
