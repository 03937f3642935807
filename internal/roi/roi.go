// Package roi holds the fixed pixel layouts of the supported document
// templates and the cropping helpers that cut fields out of a page image.
package roi

import (
	"encoding/json"
	"fmt"
	"image"
	"strings"
)

// Rect is an ROI in template pixel coordinates: (X1,Y1) inclusive, (X2,Y2) exclusive.
type Rect struct {
	X1, Y1, X2, Y2 int
}

// R is shorthand used by the template tables.
func R(x1, y1, x2, y2 int) Rect {
	return Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

func (r Rect) Dx() int { return r.X2 - r.X1 }
func (r Rect) Dy() int { return r.Y2 - r.Y1 }

// Image returns the rectangle as an image.Rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// Valid reports whether the rectangle is non-empty and not inverted.
func (r Rect) Valid() bool {
	return r.X1 >= 0 && r.Y1 >= 0 && r.X1 < r.X2 && r.Y1 < r.Y2
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", r.X1, r.Y1, r.X2, r.Y2)
}

// MarshalJSON encodes the rectangle as [x1, y1, x2, y2].
func (r Rect) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{r.X1, r.Y1, r.X2, r.Y2})
}

// UnmarshalJSON accepts the [x1, y1, x2, y2] form.
func (r *Rect) UnmarshalJSON(data []byte) error {
	var v [4]int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("roi: rectangle must be [x1,y1,x2,y2]: %w", err)
	}
	*r = Rect{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}
	return nil
}

// Kind tags how a field is extracted.
type Kind int

const (
	KindText Kind = iota
	KindDate
	KindSignature
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindDate:
		return "date"
	case KindSignature:
		return "signature"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Digit is one character slot of a composite date field.
type Digit struct {
	Name string `json:"name"`
	Rect Rect   `json:"rect"`
}

// Field is one entry of a template table.
// Date fields either carry Digits (one OCR call per slot, concatenated in
// order) or a single Rect read in one call.
type Field struct {
	Name   string  `json:"name"`
	Kind   Kind    `json:"kind"`
	Rect   Rect    `json:"rect"`
	Digits []Digit `json:"digits,omitempty"`
}

// Composite reports whether the field is read digit by digit.
func (f Field) Composite() bool {
	return len(f.Digits) > 0
}

// Bounds returns the rectangle enclosing the field, including all digit slots.
func (f Field) Bounds() Rect {
	if !f.Composite() {
		return f.Rect
	}
	b := f.Digits[0].Rect
	for _, d := range f.Digits[1:] {
		b.X1 = min(b.X1, d.Rect.X1)
		b.Y1 = min(b.Y1, d.Rect.Y1)
		b.X2 = max(b.X2, d.Rect.X2)
		b.Y2 = max(b.Y2, d.Rect.Y2)
	}
	return b
}

// Text, Date, DateDigits and Signature build table entries.
func Text(name string, r Rect) Field      { return Field{Name: name, Kind: KindText, Rect: r} }
func Date(name string, r Rect) Field      { return Field{Name: name, Kind: KindDate, Rect: r} }
func Signature(name string, r Rect) Field { return Field{Name: name, Kind: KindSignature, Rect: r} }

func DateDigits(name string, digits ...Digit) Field {
	f := Field{Name: name, Kind: KindDate, Digits: digits}
	f.Rect = f.Bounds()
	return f
}

// Classify applies the legacy name-based rule: composite entries are dates,
// names containing "Signature" are signatures, everything else is text.
func Classify(name string, composite bool) Kind {
	switch {
	case composite:
		return KindDate
	case strings.Contains(name, "Signature"):
		return KindSignature
	default:
		return KindText
	}
}

// LegacyEntry is a name → rectangle (or digit slots) pair from an untyped table.
type LegacyEntry struct {
	Name   string
	Rect   Rect
	Digits []Digit
}

// FromLegacy builds typed fields from an untyped table using Classify.
func FromLegacy(entries []LegacyEntry) []Field {
	fields := make([]Field, 0, len(entries))
	for _, e := range entries {
		switch Classify(e.Name, len(e.Digits) > 0) {
		case KindDate:
			fields = append(fields, DateDigits(e.Name, e.Digits...))
		case KindSignature:
			fields = append(fields, Signature(e.Name, e.Rect))
		default:
			fields = append(fields, Text(e.Name, e.Rect))
		}
	}
	return fields
}
