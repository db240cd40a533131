package sync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/grantpipe/grant-ingestor/internal/adapters"
	"github.com/grantpipe/grant-ingestor/internal/models"
	"github.com/grantpipe/grant-ingestor/internal/repository"
)

// Action is the reconcile outcome for one record.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionSkipped Action = "skipped"
)

// ManualEntry handles manually entered grants: normalize through the manual
// adapter and write directly to the catalog, bypassing the pagination loop
// and job lifecycle. Callers must run adapters.ValidateInput first; nothing
// here re-checks business rules.
type ManualEntry struct {
	adapter *adapters.ManualAdapter
	grants  GrantStore

	now func() time.Time
}

func NewManualEntry(adapter *adapters.ManualAdapter, grants GrantStore) *ManualEntry {
	return &ManualEntry{
		adapter: adapter,
		grants:  grants,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Submit normalizes the input and reconciles it against the catalog using
// the same natural-key and hash rules as a sync run. Inputs without an
// external id get a generated one and always insert. Returns the stored
// grant and what happened to it.
func (m *ManualEntry) Submit(ctx context.Context, input *models.ManualGrantInput) (*models.Grant, Action, error) {
	grant, err := m.adapter.NormalizeInput(input)
	if err != nil {
		return nil, "", err
	}

	if grant.ExternalID == "" {
		grant.ExternalID = uuid.New().String()
	}

	now := m.now()

	existing, err := m.grants.GetByNaturalKey(ctx, grant.SourceKey, grant.ExternalID)
	if err != nil && !errors.Is(err, repository.ErrGrantNotFound) {
		return nil, "", err
	}

	switch {
	case existing == nil:
		grant.FirstSeenAt = now
		grant.LastUpdatedAt = now
		grant.LastSyncedAt = now
		grant.Refresh()
		if err := m.grants.Insert(ctx, grant); err != nil {
			return nil, "", err
		}
		return grant, ActionCreated, nil

	case existing.ContentHash != grant.ContentHash:
		grant.ID = existing.ID
		grant.FirstSeenAt = existing.FirstSeenAt
		grant.LastUpdatedAt = now
		grant.LastSyncedAt = now
		grant.Refresh()
		if err := m.grants.Update(ctx, grant); err != nil {
			return nil, "", err
		}
		return grant, ActionUpdated, nil

	default:
		if err := m.grants.TouchSynced(ctx, existing.ID, now); err != nil {
			return nil, "", err
		}
		return existing, ActionSkipped, nil
	}
}
