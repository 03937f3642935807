package server

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"docscan/internal/roi"
	"docscan/internal/store"
	"docscan/pkg/services"
)

// Server holds the HTTP handlers of the extraction service.
type Server struct {
	extractor   services.ExtractionService
	store       store.Store
	corsOrigin  string
	maxUploadMB int64
	log         zerolog.Logger
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64

	// Extractor processes uploaded documents. Required.
	Extractor services.ExtractionService

	// Store serves persisted signature crops under /static/. Nil disables the route.
	Store store.Store

	Logger zerolog.Logger
}

// Response types for API endpoints.
type HealthResponse struct {
	Status    string   `json:"status"`
	Time      string   `json:"time"`
	Templates []string `json:"templates"`
}

type TemplateInfo struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	DateStyle   string      `json:"date_style"`
	DateOrder   string      `json:"date_order"`
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	Fields      []roi.Field `json:"fields"`
}

type TemplatesResponse struct {
	Templates []TemplateInfo `json:"templates"`
	Count     int            `json:"count"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer creates a new extraction server instance.
func NewServer(config Config) (*Server, error) {
	if config.Extractor == nil {
		return nil, errors.New("server: extractor is required")
	}
	if config.MaxUploadMB <= 0 {
		config.MaxUploadMB = 20
	}
	if config.CORSOrigin == "" {
		config.CORSOrigin = "*"
	}

	return &Server{
		extractor:   config.Extractor,
		store:       config.Store,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		log:         config.Logger,
	}, nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.wrap("/health", s.healthHandler))
	mux.HandleFunc("/templates", s.wrap("/templates", s.templatesHandler))
	mux.HandleFunc("/process-cheque", s.wrap("/process-cheque", s.templateHandler(roi.Cheque.Name)))
	mux.HandleFunc("/process-mandate", s.wrap("/process-mandate", s.templateHandler(roi.Mandate.Name)))
	mux.HandleFunc("/documents/{template}", s.wrap("/documents/{template}", s.documentsHandler))
	if s.store != nil {
		mux.HandleFunc("/static/{name}", s.wrap("/static/{name}", s.staticHandler))
	}
	mux.Handle("/metrics", promhttp.Handler())
}

// wrap applies the middleware chain shared by every API route.
func (s *Server) wrap(route string, h http.HandlerFunc) http.HandlerFunc {
	return s.corsMiddleware(route, s.requestIDMiddleware(h))
}
