package domain

import (
	"errors"
	"fmt"
)

// ValidationError rejects malformed or mismatched input before any side
// effect takes place.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ExtractionError marks a per-file extraction failure. It is non-fatal to
// an indexing pass: the file is logged and skipped.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ErrMetadataPersistence wraps index metadata store write failures. These
// are fatal to the current pass: files must not be marked indexed when the
// record of that fact could not be persisted.
var ErrMetadataPersistence = errors.New("index metadata persistence failed")
