package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"docscan/internal/extract"
	"docscan/internal/ocr"
	"docscan/internal/roi"
	"docscan/internal/store"
	"docscan/pkg/models"
)

// uploadField is the multipart field carrying the page image.
const uploadField = "file"

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, r, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Time:      time.Now().UTC().Format(time.RFC3339),
		Templates: roi.Names(),
	})
}

// templatesHandler lists the ROI tables the service can read.
func (s *Server) templatesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	templates := roi.Templates()
	infos := make([]TemplateInfo, len(templates))
	for i, t := range templates {
		width, height := t.Extent()
		infos[i] = TemplateInfo{
			Name:        t.Name,
			Description: t.Description,
			DateStyle:   t.DateStyle.String(),
			DateOrder:   string(t.DateOrder),
			Width:       width,
			Height:      height,
			Fields:      t.Fields,
		}
	}

	s.writeJSON(w, r, http.StatusOK, TemplatesResponse{Templates: infos, Count: len(infos)})
}

// templateHandler serves a fixed-template route such as /process-cheque.
func (s *Server) templateHandler(template string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.processDocument(w, r, template)
	}
}

// documentsHandler serves /documents/{template}.
func (s *Server) documentsHandler(w http.ResponseWriter, r *http.Request) {
	s.processDocument(w, r, r.PathValue("template"))
}

func (s *Server) processDocument(w http.ResponseWriter, r *http.Request, template string) {
	if r.Method != http.MethodPost {
		s.writeErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := roi.Lookup(template); !ok {
		s.writeErrorResponse(w, fmt.Sprintf("Unknown template %q", template), http.StatusNotFound)
		return
	}

	log := zerolog.Ctx(r.Context())

	file, size, cleanup, err := s.parseUpload(w, r)
	if err != nil {
		documentsTotal.WithLabelValues(template, "rejected").Inc()
		log.Debug().Err(err).Msg("Upload rejected")
		return // error already written
	}
	defer cleanup()

	uploadSizeBytes.Observe(float64(size))

	start := time.Now()
	result, err := s.extractor.ProcessDocument(r.Context(), template, file)
	duration := time.Since(start)

	if err != nil {
		documentsTotal.WithLabelValues(template, "error").Inc()
		message, status := classifyError(err)
		log.Error().Err(err).Str("template", template).Int("status", status).Msg("Document processing failed")
		s.writeErrorResponse(w, message, status)
		return
	}

	documentsTotal.WithLabelValues(template, "success").Inc()
	documentProcessingDuration.WithLabelValues(template).Observe(duration.Seconds())
	recordResult(result)

	log.Info().
		Str("document_id", result.DocumentID).
		Str("template", template).
		Int64("size", size).
		Dur("duration", duration).
		Msg("Document extracted")

	s.writeJSON(w, r, http.StatusOK, result)
}

// parseUpload enforces the size limit and returns the uploaded file. The
// returned cleanup closes the file and removes multipart temp files.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) (io.Reader, int64, func(), error) {
	maxBytes := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		s.handleFormParseError(w, err)
		return nil, 0, nil, err
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		_ = r.MultipartForm.RemoveAll()
		s.writeErrorResponse(w, "No file provided in form field \"file\"", http.StatusBadRequest)
		return nil, 0, nil, err
	}

	cleanup := func() {
		_ = file.Close()
		_ = r.MultipartForm.RemoveAll()
	}

	if header.Size > maxBytes {
		cleanup()
		s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		return nil, 0, nil, fmt.Errorf("upload of %d bytes exceeds %d", header.Size, maxBytes)
	}
	if header.Size == 0 {
		cleanup()
		s.writeErrorResponse(w, "Uploaded file is empty", http.StatusBadRequest)
		return nil, 0, nil, errors.New("empty upload")
	}

	return file, header.Size, cleanup, nil
}

func (s *Server) handleFormParseError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(strings.ToLower(err.Error()), "too large") {
		s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		return
	}
	s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
}

// classifyError maps a processing failure to a client message and status.
func classifyError(err error) (string, int) {
	var ocrErr *ocr.OCRError
	switch {
	case errors.Is(err, extract.ErrInvalidImage):
		return "Invalid image format", http.StatusBadRequest
	case errors.Is(err, extract.ErrUnknownTemplate):
		return "Unknown template", http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return "OCR service timed out", http.StatusGatewayTimeout
	case errors.As(err, &ocrErr):
		return fmt.Sprintf("OCR processing failed: %v", err), http.StatusBadGateway
	default:
		return fmt.Sprintf("Document processing failed: %v", err), http.StatusInternalServerError
	}
}

func recordResult(res *models.DocumentResult) {
	for _, sig := range res.Signatures {
		signaturesTotal.WithLabelValues(res.Template, sig.Status).Inc()
	}
	if n := len(res.Errors); n > 0 {
		fieldErrorsTotal.WithLabelValues(res.Template).Add(float64(n))
	}
}

// staticHandler serves persisted signature crops.
func (s *Server) staticHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.writeErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.PathValue("name")
	rc, err := s.store.Open(r.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidName) {
			s.writeErrorResponse(w, "Not found", http.StatusNotFound)
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Str("name", name).Msg("Failed to open signature crop")
		s.writeErrorResponse(w, "Failed to read file", http.StatusInternalServerError)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, rc); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("name", name).Msg("Failed to stream signature crop")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Error encoding response")
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		s.log.Error().Err(err).Msg("Error writing error response")
	}
}
