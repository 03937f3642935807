package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docscan/internal/extract"
	"docscan/internal/logger"
	"docscan/internal/ocr"
	"docscan/internal/roi"
	"docscan/pkg/models"
)

// fakeExtractor answers from the uploaded bytes: "fail" errors out, "partial"
// reports a field error, "baddate" leaves the date unformatted.
type fakeExtractor struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeExtractor) ProcessDocument(_ context.Context, template string, r io.Reader) (*models.DocumentResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	res := &models.DocumentResult{
		DocumentID: "doc",
		Template:   template,
		Fields:     models.FieldValues{{Name: "Date", Value: "01/02/2025"}},
	}
	switch string(data) {
	case "fail":
		return nil, fmt.Errorf("boom: %w", extract.ErrInvalidImage)
	case "partial":
		res.Errors = map[string]string{"Amount": "quota"}
	case "baddate":
		res.Fields[0].Value = "0102"
	}
	return res, nil
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestFindImageFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.jpg":           "x",
		"b.PNG":           "x",
		"notes.txt":       "x",
		"sub/c.tiff":      "x",
		".cache/d.jpg":    "x",
		"sub/deeper/e.gz": "x",
	})

	files, err := findImageFiles(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "b.PNG"),
		filepath.Join(dir, "sub", "c.tiff"),
	}, files)
}

func TestHasImageExtension(t *testing.T) {
	for _, name := range []string{"a.jpg", "a.JPEG", "scan.webp", "x.bmp", "x.tif", "x.gif"} {
		assert.True(t, hasImageExtension(name), name)
	}
	for _, name := range []string{"a.pdf", "jpg", "a.jpg.txt", ""} {
		assert.False(t, hasImageExtension(name), name)
	}
}

func TestBatchStatus(t *testing.T) {
	ok := &models.DocumentResult{Fields: models.FieldValues{{Name: "Date", Value: "01/02/2025"}}}
	assert.Equal(t, "success", batchStatus(roi.Cheque, ok))

	partial := &models.DocumentResult{
		Fields: models.FieldValues{{Name: "Date", Value: "01/02/2025"}},
		Errors: map[string]string{"Amount": "x"},
	}
	assert.Equal(t, "warning", batchStatus(roi.Cheque, partial))

	raw := &models.DocumentResult{Fields: models.FieldValues{{Name: "Date", Value: "1/2/25"}}}
	assert.Equal(t, "warning", batchStatus(roi.Cheque, raw))

	missing := &models.DocumentResult{}
	assert.Equal(t, "warning", batchStatus(roi.Cheque, missing))
}

func TestProcessImagesInParallel(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"1.jpg": "ok",
		"2.jpg": "fail",
		"3.jpg": "partial",
		"4.jpg": "baddate",
		"5.jpg": "ok",
	})
	files, err := findImageFiles(dir)
	require.NoError(t, err)
	files = append(files, filepath.Join(dir, "missing.jpg"))

	ex := &fakeExtractor{}
	results := processImagesInParallel(context.Background(), files, roi.Cheque, ex, 3, logger.Nop(), true)

	require.Len(t, results, 6)
	assert.Equal(t, 5, ex.calls)

	want := []string{"success", "error", "warning", "warning", "success", "error"}
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, filepath.Base(files[i]), r.Filename)
		assert.Equal(t, want[i], r.Status, r.Filename)
	}
	assert.ErrorIs(t, results[1].Error, extract.ErrInvalidImage)
	assert.Nil(t, results[1].Result)
	assert.Contains(t, results[5].Error.Error(), "failed to open image file")

	success, warning, failed := countStatuses(results)
	assert.Equal(t, 2, success)
	assert.Equal(t, 2, warning)
	assert.Equal(t, 2, failed)

	out := toBatchOutput(results)
	assert.Equal(t, "2.jpg", out[1].File)
	assert.NotEmpty(t, out[1].Error)
	assert.Empty(t, out[0].Error)
	assert.NotNil(t, out[0].Result)
}

func TestValidateImageFile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"scan.png": "data", "empty.png": ""})

	info, err := validateImageFile(filepath.Join(dir, "scan.png"), logger.Nop())
	require.NoError(t, err)
	assert.EqualValues(t, 4, info.Size())

	_, err = validateImageFile(filepath.Join(dir, "empty.png"), logger.Nop())
	assert.ErrorContains(t, err, "empty")

	_, err = validateImageFile(filepath.Join(dir, "nope.png"), logger.Nop())
	assert.ErrorContains(t, err, "not found")

	_, err = validateImageFile(dir, logger.Nop())
	assert.ErrorContains(t, err, "not a regular file")
}

func TestHandleOCRError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, "timed out"},
		{fmt.Errorf("wrap: %w", context.Canceled), "canceled"},
		{extract.ErrInvalidImage, "invalid or corrupted image"},
		{extract.ErrUnknownTemplate, "unknown template"},
		{ocr.WrapOCRError("DetectText", ocr.ErrAuthFailed, ""), "authentication failed"},
		{ocr.WrapOCRError("DetectText", ocr.ErrQuotaExceeded, ""), "quota exceeded"},
		{errors.New("something else"), "extraction failed"},
	}
	for _, tt := range tests {
		assert.ErrorContains(t, handleOCRError(tt.err, logger.Nop()), tt.want, tt.err.Error())
	}
}

func TestFieldSummary(t *testing.T) {
	assert.Equal(t, "10 text, 1 date, 2 signature", fieldSummary(roi.Cheque))
}

func TestBatchCommand_CropsAreOptIn(t *testing.T) {
	keep := batchCmd.Flags().Lookup("keep-crops")
	require.NotNil(t, keep)
	assert.Equal(t, "false", keep.DefValue)
	assert.Nil(t, batchCmd.Flags().Lookup("no-crops"))
	assert.Contains(t, batchCmd.Long, "--keep-crops")
}
