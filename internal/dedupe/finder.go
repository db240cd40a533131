// Package dedupe flags likely duplicate grants across sources. Matches are
// advisory: they are recorded for review, never merged or deleted
// automatically.
package dedupe

import (
	"context"

	"github.com/grantpipe/grant-ingestor/internal/logger"
	"github.com/grantpipe/grant-ingestor/internal/models"
	"github.com/grantpipe/grant-ingestor/internal/repository"
)

// Matcher proposes duplicate candidates for one grant.
type Matcher interface {
	Method() string
	Match(ctx context.Context, grant *models.Grant) ([]models.DuplicateMatch, error)
}

// CatalogStore is the catalog access duplicate detection needs.
type CatalogStore interface {
	GetByID(ctx context.Context, id string) (*models.Grant, error)
	List(ctx context.Context, filter repository.GrantFilter) ([]models.Grant, error)
	FindTitleMatches(ctx context.Context, grant *models.Grant) ([]models.Grant, error)
}

// MatchStore persists duplicate links.
type MatchStore interface {
	Upsert(ctx context.Context, match *models.DuplicateMatch) (bool, error)
}

// TitleMatcher flags grants from different sources whose normalized titles
// are identical. Exact-normalized-title collisions across sources are
// almost always the same opportunity listed twice.
type TitleMatcher struct {
	catalog CatalogStore
}

func NewTitleMatcher(catalog CatalogStore) *TitleMatcher {
	return &TitleMatcher{catalog: catalog}
}

func (m *TitleMatcher) Method() string { return models.MatchMethodTitleHash }

func (m *TitleMatcher) Match(ctx context.Context, grant *models.Grant) ([]models.DuplicateMatch, error) {
	candidates, err := m.catalog.FindTitleMatches(ctx, grant)
	if err != nil {
		return nil, err
	}

	matches := make([]models.DuplicateMatch, 0, len(candidates))
	for _, candidate := range candidates {
		matches = append(matches, models.DuplicateMatch{
			PrimaryGrantID:   grant.ID,
			DuplicateGrantID: candidate.ID,
			Score:            1.0,
			Method:           models.MatchMethodTitleHash,
		})
	}
	return matches, nil
}

// Result summarizes one detection sweep.
type Result struct {
	Scanned int `json:"scanned"`
	Found   int `json:"found"`
	New     int `json:"new"`
}

// Finder runs every matcher over a slice of the catalog and records the
// proposed links.
type Finder struct {
	catalog  CatalogStore
	matches  MatchStore
	matchers []Matcher
	log      logger.Logger
}

func NewFinder(catalog CatalogStore, matches MatchStore, log logger.Logger, matchers ...Matcher) *Finder {
	return &Finder{
		catalog:  catalog,
		matches:  matches,
		matchers: matchers,
		log:      log,
	}
}

const scanBatchSize = 200

// FindForGrant runs the matchers against one grant and records the
// proposed links. Returns everything proposed, previously recorded or not.
func (f *Finder) FindForGrant(ctx context.Context, grantID string) ([]models.DuplicateMatch, error) {
	grant, err := f.catalog.GetByID(ctx, grantID)
	if err != nil {
		return nil, err
	}

	recorded := make([]models.DuplicateMatch, 0)
	for _, matcher := range f.matchers {
		proposed, err := matcher.Match(ctx, grant)
		if err != nil {
			return nil, err
		}
		for i := range proposed {
			if _, err := f.matches.Upsert(ctx, &proposed[i]); err != nil {
				return nil, err
			}
			recorded = append(recorded, proposed[i])
		}
	}

	return recorded, nil
}

// Run scans the catalog (optionally limited to one source) and upserts
// every proposed match. Re-running is idempotent: existing links count as
// found but not new.
func (f *Finder) Run(ctx context.Context, sourceKey string) (*Result, error) {
	result := &Result{}

	for offset := 0; ; offset += scanBatchSize {
		grants, err := f.catalog.List(ctx, repository.GrantFilter{
			SourceKey:  sourceKey,
			ActiveOnly: true,
			Limit:      scanBatchSize,
			Offset:     offset,
		})
		if err != nil {
			return nil, err
		}
		if len(grants) == 0 {
			break
		}

		for i := range grants {
			if err := f.scanGrant(ctx, &grants[i], result); err != nil {
				return nil, err
			}
		}

		if len(grants) < scanBatchSize {
			break
		}
	}

	f.log.Info("Duplicate detection finished",
		logger.String("source_key", sourceKey),
		logger.Int("scanned", result.Scanned),
		logger.Int("found", result.Found),
		logger.Int("new", result.New),
	)

	return result, nil
}

func (f *Finder) scanGrant(ctx context.Context, grant *models.Grant, result *Result) error {
	result.Scanned++

	for _, matcher := range f.matchers {
		proposed, err := matcher.Match(ctx, grant)
		if err != nil {
			return err
		}

		for i := range proposed {
			result.Found++
			created, err := f.matches.Upsert(ctx, &proposed[i])
			if err != nil {
				return err
			}
			if created {
				result.New++
			}
		}
	}

	return nil
}
