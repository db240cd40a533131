package adapters

import (
	"fmt"
	"net/http"

	"github.com/grantpipe/grant-ingestor/internal/logger"
	"github.com/grantpipe/grant-ingestor/internal/models"
)

// Well-known source keys.
const (
	SourceKeyFederal    = "federal-registry"
	SourceKeyAggregator = "aggregator"
	SourceKeyManual     = "manual"
)

// Credentials carries per-source API keys, injected by the caller rather
// than resolved from process-global state.
type Credentials struct {
	FederalAPIKey    string
	AggregatorAPIKey string
}

// Factory builds the adapter for a source. New sources are added here as
// new implementations, never by branching inside the orchestrator.
type Factory struct {
	creds  Credentials
	client *http.Client
	log    logger.Logger
}

// NewFactory creates an adapter factory sharing one HTTP client across
// adapters.
func NewFactory(creds Credentials, client *http.Client, log logger.Logger) *Factory {
	return &Factory{
		creds:  creds,
		client: client,
		log:    log,
	}
}

// ForSource returns the adapter for a source, selected by source key with
// a category fallback for custom keys.
func (f *Factory) ForSource(source *models.Source) (Adapter, error) {
	switch source.Key {
	case SourceKeyFederal:
		return NewFederalAdapter(source, f.creds.FederalAPIKey, f.client, f.log), nil
	case SourceKeyAggregator:
		return NewAggregatorAdapter(source, f.creds.AggregatorAPIKey, f.client, f.log), nil
	case SourceKeyManual:
		return NewManualAdapter(source), nil
	}

	switch source.Category {
	case models.CategoryFederal:
		return NewFederalAdapter(source, f.creds.FederalAPIKey, f.client, f.log), nil
	case models.CategoryCustom:
		return NewManualAdapter(source), nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownSource, source.Key)
}
