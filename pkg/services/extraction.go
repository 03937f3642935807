package services

import (
	"context"
	"io"

	"docscan/pkg/models"
)

// ExtractionService defines the interface the HTTP handlers and CLI commands
// use to read a scanned document
type ExtractionService interface {
	// ProcessDocument decodes the image in r and extracts every field of the
	// named template
	ProcessDocument(ctx context.Context, template string, r io.Reader) (*models.DocumentResult, error)
}
