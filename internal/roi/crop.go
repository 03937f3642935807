package roi

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Crop cuts r out of img. The rectangle is intersected with the image bounds;
// truncated is true when any part of r fell outside. A rectangle entirely
// outside the image yields an empty 0x0 image. The result origin is (0,0).
func Crop(img image.Image, r Rect) (crop *image.NRGBA, truncated bool) {
	b := img.Bounds()
	want := r.Image().Add(b.Min)
	got := want.Intersect(b)

	truncated = got != want
	if got.Empty() {
		return imaging.New(0, 0, color.Transparent), true
	}
	return imaging.Crop(img, got), truncated
}
