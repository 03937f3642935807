// Package store persists signature crops so clients can fetch them after the
// response has been sent.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
)

var (
	ErrNotFound    = errors.New("crop not found")
	ErrInvalidName = errors.New("invalid crop name")
)

// Store keeps crops under flat names.
type Store interface {
	// Put stores data under name and returns the URL clients use to fetch it.
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
	// Open returns the stored crop or ErrNotFound.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Cleanup removes crops last written before cutoff.
	Cleanup(ctx context.Context, cutoff time.Time) (int, error)
}

var (
	nameRe   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	unsafeRe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
)

// ValidName reports whether name is a single safe path element.
func ValidName(name string) bool {
	return len(name) <= 200 && nameRe.MatchString(name) && !strings.Contains(name, "..")
}

// CropName builds the per-document name of a signature crop, e.g.
// "3f6c..._Signature_1.jpg". Runs of characters outside [A-Za-z0-9_-] become "_".
func CropName(documentID, label string) string {
	label = strings.Trim(unsafeRe.ReplaceAllString(label, "_"), "_")
	return fmt.Sprintf("%s_%s.jpg", documentID, label)
}

// isCrop reports whether name looks like a crop written through CropName.
// Cleanup never touches anything else.
func isCrop(name string) bool {
	return ValidName(name) && strings.HasSuffix(name, ".jpg")
}

func checkName(name string) error {
	if !ValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// URL joins a URL prefix and a crop name.
func URL(prefix, name string) string {
	return strings.TrimRight(prefix, "/") + "/" + name
}
