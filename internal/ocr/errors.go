package ocr

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Common OCR processing errors
var (
	// ErrMissingCredentials is returned when GOOGLE_APPLICATION_CREDENTIALS_B64 is empty.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS_B64")

	// ErrInvalidCredentials is returned when the credentials are not base64 encoded JSON.
	ErrInvalidCredentials = errors.New("invalid Google Cloud credentials")

	// ErrAuthFailed is returned when the OCR service rejects the credentials.
	ErrAuthFailed = errors.New("OCR service authentication failed")

	// ErrQuotaExceeded is returned when the OCR API quota is exhausted.
	ErrQuotaExceeded = errors.New("OCR API quota exceeded")

	// ErrOCRFailed is returned when the OCR service fails to process an image.
	ErrOCRFailed = errors.New("OCR processing failed")

	// ErrContextCanceled is returned when the context is canceled during processing.
	ErrContextCanceled = errors.New("OCR processing was canceled")
)

// OCRError wraps errors with additional context about the OCR processing failure.
type OCRError struct {
	// Op is the operation that failed (e.g., "DetectText", "NewGoogleVisionService").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *OCRError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *OCRError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewOCRError creates a new OCRError with the specified operation and underlying error.
func NewOCRError(op string, err error, details string) *OCRError {
	return &OCRError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// WrapOCRError wraps an error as an OCRError if it isn't already one.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err
	}

	return NewOCRError(op, err, details)
}

// classifyRPCError maps a gRPC failure from either backend to one of the sentinels.
func classifyRPCError(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return WrapOCRError(op, context.DeadlineExceeded, "OCR call timed out")
	case errors.Is(err, context.Canceled):
		return WrapOCRError(op, ErrContextCanceled, "")
	}

	st, ok := status.FromError(err)
	if !ok {
		return WrapOCRError(op, ErrOCRFailed, err.Error())
	}

	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return WrapOCRError(op, ErrAuthFailed, st.Message())
	case codes.ResourceExhausted:
		return WrapOCRError(op, ErrQuotaExceeded, st.Message())
	case codes.DeadlineExceeded:
		return WrapOCRError(op, context.DeadlineExceeded, st.Message())
	case codes.Canceled:
		return WrapOCRError(op, ErrContextCanceled, st.Message())
	default:
		return WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("%s: %s", st.Code(), st.Message()))
	}
}
