package adapters

import (
	"errors"
	"fmt"
)

// ErrUnknownSource is returned by the factory for a source key it has no
// adapter for.
var ErrUnknownSource = errors.New("no adapter registered for source")

// SourceUnavailableError indicates a transport or protocol failure talking
// to an external source. It carries the upstream HTTP status for
// diagnostics and is fatal to the current run.
type SourceUnavailableError struct {
	SourceKey  string
	StatusCode int
	Body       string
	Err        error
}

func (e *SourceUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source %s unavailable: %v", e.SourceKey, e.Err)
	}
	return fmt.Sprintf("source %s unavailable: upstream status %d", e.SourceKey, e.StatusCode)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}

// ValidationError indicates a single record failed required-field checks
// during normalization. It is recorded against the job and skipped, never
// fatal to the run.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is a record-level validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
