package roi

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	overlayColors = map[Kind]color.NRGBA{
		KindText:      {R: 0, G: 200, B: 0, A: 255},
		KindDate:      {R: 0, G: 90, B: 255, A: 255},
		KindSignature: {R: 230, G: 0, B: 0, A: 255},
	}
	labelColor = color.NRGBA{R: 255, G: 0, B: 0, A: 255}
)

const overlayStroke = 2

// Overlay draws every ROI of t on a copy of img, labelled with its field
// name. Digit slots of composite dates are outlined individually. It is
// used to calibrate tables against sample scans.
func Overlay(img image.Image, t *Template) *image.NRGBA {
	dst := imaging.Clone(img)

	for _, f := range t.Fields {
		c := overlayColors[f.Kind]
		if f.Composite() {
			for _, d := range f.Digits {
				strokeRect(dst, d.Rect.Image(), c)
			}
		} else {
			strokeRect(dst, f.Rect.Image(), c)
		}

		b := f.Bounds()
		drawLabel(dst, f.Name, image.Pt(b.X1, b.Y1-4))
	}

	return dst
}

func strokeRect(dst *image.NRGBA, r image.Rectangle, c color.Color) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+overlayStroke),
		image.Rect(r.Min.X, r.Max.Y-overlayStroke, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+overlayStroke, r.Max.Y),
		image.Rect(r.Max.X-overlayStroke, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}

func drawLabel(dst *image.NRGBA, text string, at image.Point) {
	face := basicfont.Face7x13
	if at.Y < face.Ascent {
		at.Y = face.Ascent
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot:  fixed.P(at.X, at.Y),
	}
	d.DrawString(text)
}
