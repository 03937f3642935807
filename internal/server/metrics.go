package server

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"docscan/internal/ocr"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docscan_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docscan_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	documentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docscan_documents_total",
			Help: "Total number of processed documents",
		},
		[]string{"template", "status"},
	)

	documentProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docscan_document_processing_duration_seconds",
			Help:    "Time spent extracting one document",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"template"},
	)

	signaturesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docscan_signatures_total",
			Help: "Signature regions evaluated, by outcome",
		},
		[]string{"template", "status"},
	)

	fieldErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docscan_field_errors_total",
			Help: "Fields reported as failed in partial-results mode",
		},
		[]string{"template"},
	)

	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docscan_upload_size_bytes",
			Help:    "Size of uploaded document images",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 12),
		},
	)

	ocrCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docscan_ocr_calls_total",
			Help: "OCR calls made for ROI crops",
		},
		[]string{"status"},
	)

	ocrCallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docscan_ocr_call_duration_seconds",
			Help:    "Latency of a single OCR call",
			Buckets: prometheus.DefBuckets,
		},
	)
)

type instrumentedDetector struct {
	next ocr.TextDetector
}

// InstrumentDetector counts and times every OCR call made through d.
func InstrumentDetector(d ocr.TextDetector) ocr.TextDetector {
	return &instrumentedDetector{next: d}
}

func (d *instrumentedDetector) DetectText(ctx context.Context, image []byte) ([]ocr.Annotation, error) {
	start := time.Now()
	annotations, err := d.next.DetectText(ctx, image)
	ocrCallDuration.Observe(time.Since(start).Seconds())

	status := "success"
	if err != nil {
		status = "error"
	}
	ocrCallsTotal.WithLabelValues(status).Inc()
	return annotations, err
}
