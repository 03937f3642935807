package extract

import (
	"errors"
	"fmt"
)

// Common document processing errors
var (
	// ErrInvalidImage is returned when the upload cannot be decoded as an image.
	ErrInvalidImage = errors.New("invalid or unsupported image")

	// ErrUnknownTemplate is returned when no ROI table is registered under the requested name.
	ErrUnknownTemplate = errors.New("unknown document template")
)

// ProcessingError wraps a failure with the operation and, when known, the field it happened on.
type ProcessingError struct {
	// Op is the operation that failed (e.g., "Decode", "ExtractField").
	Op string

	// Field is the ROI entry being evaluated, empty for document-level failures.
	Field string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ProcessingError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("extract: %s %s failed: %v", e.Op, e.Field, e.Err)
	}
	return fmt.Sprintf("extract: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *ProcessingError) Is(target error) bool {
	return errors.Is(e.Err, target)
}
