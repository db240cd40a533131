package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Job types.
const (
	JobTypeFull        = "full"
	JobTypeIncremental = "incremental"
	JobTypeSingle      = "single"
)

// Job statuses. Transitions: pending -> running -> completed | failed.
// Terminal statuses are final; a retry is a fresh job.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job error codes recorded in a job's error list.
const (
	ErrCodeFetch         = "FETCH_ERROR"
	ErrCodeNormalization = "NORMALIZATION_ERROR"
	ErrCodeProcessing    = "PROCESSING_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
)

// JobError is one record-level problem captured during a run. Record-level
// problems never abort the run; they accumulate here.
type JobError struct {
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	ExternalID string    `json:"external_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// JobErrorList is stored as a JSONB column.
type JobErrorList []JobError

// Value implements driver.Valuer.
func (l JobErrorList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *JobErrorList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unsupported job error list type %T", value)
	}
	return json.Unmarshal(bytes, l)
}

// SyncJob is one execution record for one source. It is created at the
// start of a run, mutated only by the owning run, and immutable once
// terminal.
type SyncJob struct {
	ID              string       `json:"id"               db:"id"`
	SourceKey       string       `json:"source_key"       db:"source_key"`
	JobType         string       `json:"job_type"         db:"job_type"`
	Status          string       `json:"status"           db:"status"`
	GrantsFetched   int          `json:"grants_fetched"   db:"grants_fetched"`
	GrantsCreated   int          `json:"grants_created"   db:"grants_created"`
	GrantsUpdated   int          `json:"grants_updated"   db:"grants_updated"`
	GrantsSkipped   int          `json:"grants_skipped"   db:"grants_skipped"`
	DuplicatesFound int          `json:"duplicates_found" db:"duplicates_found"`
	ErrorMessage    *string      `json:"error_message"    db:"error_message"`
	Errors          JobErrorList `json:"errors"           db:"errors"`
	StartedAt       *time.Time   `json:"started_at"       db:"started_at"`
	CompletedAt     *time.Time   `json:"completed_at"     db:"completed_at"`
	CreatedAt       time.Time    `json:"created_at"       db:"created_at"`
}

// ErrInvalidTransition is returned when a job status change is not allowed
// by the lifecycle.
var ErrInvalidTransition = errors.New("invalid job status transition")

var allowedTransitions = map[string][]string{
	JobStatusPending: {JobStatusRunning, JobStatusFailed},
	JobStatusRunning: {JobStatusCompleted, JobStatusFailed},
}

// Transition moves the job to a new status, enforcing the lifecycle.
func (j *SyncJob) Transition(to string) error {
	for _, next := range allowedTransitions[j.Status] {
		if next == to {
			j.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
}

// IsTerminal reports whether the job has reached a final status.
func (j *SyncJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// AddError appends a record-level error to the job's error list.
func (j *SyncJob) AddError(code, message, externalID string) {
	j.Errors = append(j.Errors, JobError{
		Code:       code,
		Message:    message,
		ExternalID: externalID,
		OccurredAt: time.Now().UTC(),
	})
}
