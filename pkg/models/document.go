package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"docscan/internal/roi"
)

// DocumentResult is everything extracted from one uploaded page.
// It is returned to the caller and not kept server-side.
type DocumentResult struct {
	DocumentID string            `json:"document_id"`      // Per-request ID, also prefixes persisted crop names
	Template   string            `json:"template"`         // Template the page was read with
	Fields     FieldValues       `json:"Extracted_Text"`   // Text and date values in table order
	Signatures []SignatureResult `json:"Signatures"`       // One entry per signature ROI, table order
	Errors     map[string]string `json:"Errors,omitempty"` // Per-field failures, partial-results mode only
}

// SignatureResult reports one signature region.
type SignatureResult struct {
	Label        string   `json:"signature_label"`
	Present      bool     `json:"-"`
	Status       string   `json:"status"`                  // "Present" or "Not Present"
	Coordinates  roi.Rect `json:"coordinates"`             // Source rectangle [x1,y1,x2,y2]
	InkPixels    int      `json:"ink_pixels"`              // Dark pixel count the decision was based on
	CroppedImage string   `json:"cropped_image,omitempty"` // URL of the persisted crop, present signatures only
}

// FieldValue is one extracted text or date.
type FieldValue struct {
	Name  string
	Value string
}

// FieldValues keeps extraction order and serializes as a JSON object whose
// keys follow that order.
type FieldValues []FieldValue

// Get returns the value recorded for name.
func (fv FieldValues) Get(name string) (string, bool) {
	for _, f := range fv {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Map returns the values keyed by field name.
func (fv FieldValues) Map() map[string]string {
	m := make(map[string]string, len(fv))
	for _, f := range fv {
		m[f.Name] = f.Value
	}
	return m
}

func (fv FieldValues) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fv {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object of string values, keeping key order.
func (fv *FieldValues) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*fv = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("extracted text must be an object")
	}

	out := FieldValues{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("extracted text %q: %w", name, err)
		}
		out = append(out, FieldValue{Name: name, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*fv = out
	return nil
}
