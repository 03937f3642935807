package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"docscan/internal/logger"
)

// DocumentAIConfig identifies the Document AI OCR processor.
type DocumentAIConfig struct {
	ProjectID   string
	Location    string
	ProcessorID string
	Timeout     time.Duration
}

// ProcessorName builds the fully-qualified processor resource name.
func (c DocumentAIConfig) ProcessorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", c.ProjectID, c.Location, c.ProcessorID)
}

// DocumentAIService implements TextDetector with a Document AI OCR processor.
// Document AI returns one document text per request, so the result is a single
// aggregate annotation.
type DocumentAIService struct {
	client *documentai.DocumentProcessorClient
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAIService creates a Document AI client with a regional endpoint.
func NewDocumentAIService(ctx context.Context, creds *Credentials, cfg DocumentAIConfig) (*DocumentAIService, error) {
	const op = "NewDocumentAIService"

	if creds == nil || len(creds.JSON) == 0 {
		return nil, WrapOCRError(op, ErrMissingCredentials, "")
	}
	if cfg.ProjectID == "" {
		cfg.ProjectID = creds.ProjectID
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}
	if cfg.ProjectID == "" || cfg.ProcessorID == "" {
		return nil, WrapOCRError(op, ErrInvalidCredentials, "project and processor ID are required")
	}

	opts := []option.ClientOption{
		option.WithCredentialsJSON(creds.JSON),
		option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)),
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, WrapOCRError(op, ErrInvalidCredentials, fmt.Sprintf("failed to create Document AI client for location %s: %v", cfg.Location, err))
	}

	return &DocumentAIService{
		client: client,
		config: cfg,
		log:    logger.WithComponent("ocr-documentai"),
	}, nil
}

// DetectText sends one JPEG crop to the processor.
func (d *DocumentAIService) DetectText(ctx context.Context, image []byte) ([]Annotation, error) {
	const op = "DetectText"

	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	req := &documentaipb.ProcessRequest{
		Name: d.config.ProcessorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  image,
				MimeType: "image/jpeg",
			},
		},
	}

	resp, err := d.client.ProcessDocument(ctx, req)
	if err != nil {
		return nil, classifyRPCError(op, err)
	}
	if resp.Document == nil {
		return nil, WrapOCRError(op, ErrOCRFailed, "no document in response")
	}

	return annotationsFromDocument(resp.Document), nil
}

func annotationsFromDocument(doc *documentaipb.Document) []Annotation {
	if strings.TrimSpace(doc.Text) == "" {
		return nil
	}

	var locale string
	if len(doc.Pages) > 0 && len(doc.Pages[0].DetectedLanguages) > 0 {
		locale = doc.Pages[0].DetectedLanguages[0].LanguageCode
	}

	return []Annotation{{Description: doc.Text, Locale: locale}}
}

// Close closes the underlying Document AI client.
func (d *DocumentAIService) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}
