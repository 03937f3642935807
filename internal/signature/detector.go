// Package signature decides whether a signature box carries ink and prepares
// the crop that is kept for review.
package signature

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const (
	DefaultIntensityThreshold = 128
	DefaultPixelThreshold     = 500

	// JPEGQuality is used for persisted crops.
	JPEGQuality = 95
)

// Detector counts dark pixels in a signature crop.
// A pixel is ink when its luma is at or below IntensityThreshold; the crop
// holds a signature when more than PixelThreshold pixels are ink.
type Detector struct {
	IntensityThreshold uint8
	PixelThreshold     int
	StripBackground    bool
}

// DefaultDetector returns the detector with the stock thresholds.
func DefaultDetector() Detector {
	return Detector{
		IntensityThreshold: DefaultIntensityThreshold,
		PixelThreshold:     DefaultPixelThreshold,
		StripBackground:    true,
	}
}

// Result is the outcome for one crop.
type Result struct {
	Present   bool
	InkPixels int
}

// CountInk returns the number of ink pixels in img.
func (d Detector) CountInk(img image.Image) int {
	gray := imaging.Grayscale(img)
	n := 0
	for i := 0; i < len(gray.Pix); i += 4 {
		if gray.Pix[i] <= d.IntensityThreshold {
			n++
		}
	}
	return n
}

// Detect classifies img. The same image always yields the same result.
func (d Detector) Detect(img image.Image) Result {
	ink := d.CountInk(img)
	return Result{Present: ink > d.PixelThreshold, InkPixels: ink}
}

// Strip blacks out every pixel brighter than the intensity threshold and keeps
// ink pixels in their original colour.
func (d Detector) Strip(img image.Image) *image.NRGBA {
	gray := imaging.Grayscale(img)
	out := imaging.Clone(img)
	for i := 0; i < len(out.Pix); i += 4 {
		if gray.Pix[i] > d.IntensityThreshold {
			out.Pix[i+0] = 0
			out.Pix[i+1] = 0
			out.Pix[i+2] = 0
		}
	}
	return out
}

// Prepare returns the JPEG bytes to persist for a present signature.
func (d Detector) Prepare(img image.Image) ([]byte, error) {
	if d.StripBackground {
		img = d.Strip(img)
	}
	return EncodeJPEG(img)
}

// EncodeJPEG encodes img at JPEGQuality.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("signature: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Status is the label reported for a presence flag.
func Status(present bool) string {
	if present {
		return "Present"
	}
	return "Not Present"
}
