package extract

import (
	"context"
	"image"
	"strings"

	"docscan/internal/ocr"
	"docscan/internal/signature"
)

// readText OCRs one crop and returns the aggregate annotation untouched.
// Empty crops are never sent.
func readText(ctx context.Context, detector ocr.TextDetector, crop image.Image) (string, error) {
	if crop.Bounds().Empty() {
		return "", nil
	}

	data, err := signature.EncodeJPEG(crop)
	if err != nil {
		return "", err
	}

	annotations, err := detector.DetectText(ctx, data)
	if err != nil {
		return "", err
	}
	return ocr.First(annotations), nil
}

// CleanText joins lines with spaces and trims the result.
func CleanText(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}
