package ocr

import (
	"context"
	"fmt"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"docscan/internal/logger"
)

// MaxImageSizeBytes is the maximum image size accepted by the Vision API (20MB)
const MaxImageSizeBytes = 20 * 1024 * 1024

// GoogleVisionService implements TextDetector using Google Cloud Vision TEXT_DETECTION.
type GoogleVisionService struct {
	client  *vision.ImageAnnotatorClient
	timeout time.Duration
	log     zerolog.Logger
}

// NewGoogleVisionService creates a Vision client from decoded credentials.
// A zero timeout leaves deadlines to the caller's context.
func NewGoogleVisionService(ctx context.Context, creds *Credentials, timeout time.Duration) (*GoogleVisionService, error) {
	const op = "NewGoogleVisionService"

	if creds == nil || len(creds.JSON) == 0 {
		return nil, WrapOCRError(op, ErrMissingCredentials, "")
	}

	client, err := vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON(creds.JSON))
	if err != nil {
		return nil, WrapOCRError(op, ErrInvalidCredentials, fmt.Sprintf("failed to create Vision client: %v", err))
	}

	return &GoogleVisionService{
		client:  client,
		timeout: timeout,
		log:     logger.WithComponent("ocr-vision"),
	}, nil
}

// DetectText runs TEXT_DETECTION on one encoded image.
func (g *GoogleVisionService) DetectText(ctx context.Context, image []byte) ([]Annotation, error) {
	const op = "DetectText"

	if len(image) > MaxImageSizeBytes {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("image size %d exceeds %d bytes", len(image), MaxImageSizeBytes))
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: image},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_TEXT_DETECTION},
				},
			},
		},
	}

	start := time.Now()
	resp, err := g.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, classifyRPCError(op, err)
	}

	if len(resp.Responses) == 0 {
		return nil, WrapOCRError(op, ErrOCRFailed, "no response from Vision API")
	}

	imgResp := resp.Responses[0]
	if imgResp.Error != nil && imgResp.Error.Code != 0 {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API error: %s", imgResp.Error.Message))
	}

	annotations := make([]Annotation, 0, len(imgResp.TextAnnotations))
	for _, ta := range imgResp.TextAnnotations {
		annotations = append(annotations, Annotation{
			Description: ta.Description,
			Locale:      ta.Locale,
		})
	}

	g.log.Debug().
		Int("bytes", len(image)).
		Int("annotations", len(annotations)).
		Dur("duration", time.Since(start)).
		Msg("Vision text detection completed")

	return annotations, nil
}

// Close closes the underlying Vision client.
func (g *GoogleVisionService) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
