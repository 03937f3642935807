// Package ocr provides the text-recognition collaborator used for every ROI crop.
//
// Two backends are available, both reached over gRPC with the same
// service-account credentials:
//   - Google Cloud Vision TEXT_DETECTION (default)
//   - Google Document AI OCR processor
//
// Credentials are supplied once at startup as a base64-encoded service
// account JSON (GOOGLE_APPLICATION_CREDENTIALS_B64), decoded with
// DecodeCredentials and passed to the backend constructor. Nothing in this
// package reads the environment.
//
// Cloud Vision API limitations relevant here:
//   - Maximum image size: 20MB per request (ROI crops are a few KB)
//   - One request per crop; no batching is attempted
package ocr

import (
	"context"
)

// TextDetector recognizes text in one encoded image.
type TextDetector interface {
	// DetectText returns the engine's annotations in engine order.
	// The first annotation, when present, is the aggregate text of the whole image.
	// An image without text yields an empty slice and a nil error.
	DetectText(ctx context.Context, image []byte) ([]Annotation, error)
}

// Annotation is one recognized text block.
type Annotation struct {
	Description string `json:"description"`
	Locale      string `json:"locale,omitempty"`
}

// First returns the description of the aggregate annotation, or "" when there is none.
func First(annotations []Annotation) string {
	if len(annotations) == 0 {
		return ""
	}
	return annotations[0].Description
}
