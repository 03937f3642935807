package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docscan/internal/extract"
	"docscan/internal/ocr"
	"docscan/internal/roi"
	"docscan/internal/store"
	"docscan/pkg/models"
)

type fakeExtractor struct {
	mu        sync.Mutex
	templates []string
	bodies    []string
	result    *models.DocumentResult
	err       error
}

func (f *fakeExtractor) ProcessDocument(_ context.Context, template string, r io.Reader) (*models.DocumentResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.templates = append(f.templates, template)
	f.bodies = append(f.bodies, string(data))
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	res := *f.result
	res.Template = template
	return &res, nil
}

func sampleResult() *models.DocumentResult {
	return &models.DocumentResult{
		DocumentID: "doc-1",
		Fields: models.FieldValues{
			{Name: "Payee_Name", Value: "JUAN DELA CRUZ"},
			{Name: "Date", Value: "01/02/2025"},
			{Name: "Account_Number", Value: "0012"},
		},
		Signatures: []models.SignatureResult{
			{Label: "Signature_1", Present: true, Status: "Present", Coordinates: roi.R(1500, 550, 1905, 690), InkPixels: 900, CroppedImage: "/static/doc-1_Signature_1.jpg"},
		},
	}
}

func newTestServer(t *testing.T, ext *fakeExtractor, st store.Store) *http.ServeMux {
	t.Helper()
	s, err := NewServer(Config{
		Extractor:   ext,
		Store:       st,
		CORSOrigin:  "*",
		MaxUploadMB: 1,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "no file here"))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func upload(t *testing.T, mux http.Handler, path string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, "file", "page.jpg", content)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestNewServer_RequiresExtractor(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestServer_ProcessCheque(t *testing.T) {
	ext := &fakeExtractor{result: sampleResult()}
	mux := newTestServer(t, ext, nil)

	w := upload(t, mux, "/process-cheque", []byte("image-bytes"))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, []string{"cheque"}, ext.templates)
	assert.Equal(t, []string{"image-bytes"}, ext.bodies)

	body := w.Body.String()
	assert.Less(t, strings.Index(body, "Payee_Name"), strings.Index(body, "Account_Number"), "field order kept")

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "cheque", got["template"])
	assert.Contains(t, got, "Extracted_Text")
	assert.NotContains(t, got, "Errors")

	sigs := got["Signatures"].([]any)
	require.Len(t, sigs, 1)
	sig := sigs[0].(map[string]any)
	assert.Equal(t, "Signature_1", sig["signature_label"])
	assert.Equal(t, "Present", sig["status"])
	assert.Equal(t, []any{1500.0, 550.0, 1905.0, 690.0}, sig["coordinates"])
	assert.Equal(t, "/static/doc-1_Signature_1.jpg", sig["cropped_image"])
}

func TestServer_TemplateRoutes(t *testing.T) {
	tests := []struct {
		path     string
		template string
	}{
		{"/process-mandate", "mandate"},
		{"/documents/cheque", "cheque"},
		{"/documents/mandate", "mandate"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			ext := &fakeExtractor{result: sampleResult()}
			w := upload(t, newTestServer(t, ext, nil), tt.path, []byte("x"))

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, []string{tt.template}, ext.templates)
		})
	}
}

func TestServer_UnknownTemplate(t *testing.T) {
	ext := &fakeExtractor{result: sampleResult()}
	w := upload(t, newTestServer(t, ext, nil), "/documents/passport", []byte("x"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, ext.templates)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	mux := newTestServer(t, &fakeExtractor{result: sampleResult()}, nil)

	for _, tt := range []struct{ method, path string }{
		{http.MethodGet, "/process-cheque"},
		{http.MethodPut, "/documents/cheque"},
		{http.MethodPost, "/health"},
		{http.MethodPost, "/templates"},
	} {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, "%s %s", tt.method, tt.path)
	}
}

func TestServer_BadUploads(t *testing.T) {
	mux := newTestServer(t, &fakeExtractor{result: sampleResult()}, nil)

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/process-cheque", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing file field", func(t *testing.T) {
		body, contentType := multipartBody(t, "", "", nil)
		req := httptest.NewRequest(http.MethodPost, "/process-cheque", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp.Error, "file")
	})

	t.Run("wrong field name", func(t *testing.T) {
		body, contentType := multipartBody(t, "image", "page.jpg", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/process-cheque", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("empty file", func(t *testing.T) {
		w := upload(t, mux, "/process-cheque", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("too large", func(t *testing.T) {
		w := upload(t, mux, "/process-cheque", bytes.Repeat([]byte("a"), 2*1024*1024))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid image", &extract.ProcessingError{Op: "Decode", Err: fmt.Errorf("%w: bad", extract.ErrInvalidImage)}, http.StatusBadRequest},
		{"unknown template", fmt.Errorf("%w: x", extract.ErrUnknownTemplate), http.StatusNotFound},
		{"ocr failure", &extract.ProcessingError{Op: "ExtractField", Field: "Payee_Name", Err: ocr.NewOCRError("DetectText", ocr.ErrQuotaExceeded, "")}, http.StatusBadGateway},
		{"ocr auth", ocr.NewOCRError("DetectText", ocr.ErrAuthFailed, ""), http.StatusBadGateway},
		{"ocr timeout", &extract.ProcessingError{Op: "ExtractField", Err: ocr.NewOCRError("DetectText", context.DeadlineExceeded, "")}, http.StatusGatewayTimeout},
		{"store failure", &extract.ProcessingError{Op: "ExtractField", Err: errors.New("disk full")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, status := classifyError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.NotEmpty(t, msg)
		})
	}
}

func TestServer_ProcessingErrorStatus(t *testing.T) {
	ext := &fakeExtractor{err: &extract.ProcessingError{Op: "ExtractField", Field: "Payee_Name", Err: ocr.NewOCRError("DetectText", ocr.ErrOCRFailed, "INTERNAL")}}
	w := upload(t, newTestServer(t, ext, nil), "/process-cheque", []byte("x"))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "OCR processing failed")
}

func TestServer_HealthAndTemplates(t *testing.T) {
	mux := newTestServer(t, &fakeExtractor{result: sampleResult()}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, []string{"cheque", "mandate"}, health.Templates)

	req = httptest.NewRequest(http.MethodGet, "/templates", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var templates TemplatesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &templates))
	require.Equal(t, 2, templates.Count)
	assert.Equal(t, "cheque", templates.Templates[0].Name)
	assert.Equal(t, "strict", templates.Templates[0].DateStyle)
	assert.Equal(t, "MM/DD/YYYY", templates.Templates[0].DateOrder)
	assert.Equal(t, 1905, templates.Templates[0].Width)
	assert.Len(t, templates.Templates[0].Fields, len(roi.Cheque.Fields))
	assert.Equal(t, "padded", templates.Templates[1].DateStyle)
}

func TestServer_CORS(t *testing.T) {
	mux := newTestServer(t, &fakeExtractor{result: sampleResult()}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/process-cheque", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestServer_RequestIDEchoed(t *testing.T) {
	mux := newTestServer(t, &fakeExtractor{result: sampleResult()}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestServer_Static(t *testing.T) {
	st, err := store.NewLocalStore(t.TempDir(), "/static")
	require.NoError(t, err)
	_, err = st.Put(context.Background(), "doc-1_Signature_1.jpg", []byte("jpeg-data"), "image/jpeg")
	require.NoError(t, err)

	mux := newTestServer(t, &fakeExtractor{result: sampleResult()}, st)

	tests := []struct {
		path   string
		status int
	}{
		{"/static/doc-1_Signature_1.jpg", http.StatusOK},
		{"/static/missing.jpg", http.StatusNotFound},
		{"/static/.hidden", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
				assert.Equal(t, "jpeg-data", w.Body.String())
			}
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	mux := newTestServer(t, &fakeExtractor{result: sampleResult()}, nil)
	upload(t, mux, "/process-cheque", []byte("x"))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "docscan_documents_total")
	assert.Contains(t, w.Body.String(), "docscan_http_requests_total")
}

type stubDetector struct {
	err error
}

func (s stubDetector) DetectText(context.Context, []byte) ([]ocr.Annotation, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []ocr.Annotation{{Description: "text"}}, nil
}

func TestInstrumentDetector_PassesThrough(t *testing.T) {
	d := InstrumentDetector(stubDetector{})
	ann, err := d.DetectText(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "text", ocr.First(ann))

	boom := errors.New("boom")
	_, err = InstrumentDetector(stubDetector{err: boom}).DetectText(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
}
