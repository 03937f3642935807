package extract

import (
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"

	// Formats beyond the ones imaging registers.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Decode reads an uploaded page. EXIF orientation is applied so phone photos
// line up with the template tables.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, &ProcessingError{Op: "Decode", Err: fmt.Errorf("%w: %v", ErrInvalidImage, err)}
	}
	if img.Bounds().Empty() {
		return nil, &ProcessingError{Op: "Decode", Err: fmt.Errorf("%w: image has no pixels", ErrInvalidImage)}
	}
	return img, nil
}
