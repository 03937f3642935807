package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"docscan/internal/config"
	"docscan/internal/extract"
	"docscan/internal/logger"
	"docscan/internal/ocr"
	"docscan/internal/signature"
	"docscan/internal/store"
)

// imageExtensions are the scan formats Decode understands.
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// loadConfig reads the environment and explains what is missing
func loadConfig(log zerolog.Logger) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Configuration is incomplete")
		return nil, fmt.Errorf("%w\n\nSet the variables in the environment or in a .env file. "+
			"GOOGLE_APPLICATION_CREDENTIALS_B64 holds the base64 encoded service account JSON:\n"+
			"   export GOOGLE_APPLICATION_CREDENTIALS_B64=$(base64 -w0 service-account-key.json)", err)
	}
	return cfg, nil
}

// createContextWithTimeout creates a context with timeout and signal handling.
// A zero timeout only cancels on signals.
func createContextWithTimeout(timeout time.Duration, log zerolog.Logger) (context.Context, context.CancelFunc) {
	var ctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling processing")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// textDetector is an OCR backend that holds a client connection
type textDetector interface {
	ocr.TextDetector
	io.Closer
}

// createTextDetector builds the configured OCR backend from the base64 credentials
func createTextDetector(ctx context.Context, cfg *config.Config, log zerolog.Logger) (textDetector, *ocr.Credentials, error) {
	creds, err := ocr.DecodeCredentials(cfg.GoogleCredentialsB64)
	if err != nil {
		log.Error().Err(err).Msg("Google Cloud credentials could not be decoded")
		return nil, nil, fmt.Errorf("Google Cloud credentials validation failed. Please verify:\n\n"+
			"1. GOOGLE_APPLICATION_CREDENTIALS_B64 holds the whole service account JSON\n"+
			"2. The value is base64 encoded without line breaks\n\n"+
			"Original error: %w", err)
	}

	var detector textDetector
	switch cfg.OCRBackend {
	case "documentai":
		detector, err = ocr.NewDocumentAIService(ctx, creds, ocr.DocumentAIConfig{
			ProjectID:   cfg.GoogleCloudProject,
			Location:    cfg.GoogleCloudLocation,
			ProcessorID: cfg.DocumentAIProcessorID,
			Timeout:     cfg.OCRTimeout,
		})
	default:
		detector, err = ocr.NewGoogleVisionService(ctx, creds, cfg.OCRTimeout)
	}
	if err != nil {
		log.Error().Err(err).Str("backend", cfg.OCRBackend).Msg("Failed to create OCR service")
		return nil, nil, fmt.Errorf("failed to create OCR service: %w", err)
	}

	log.Debug().
		Str("backend", cfg.OCRBackend).
		Str("client", creds.ClientID).
		Msg("OCR service created successfully")
	return detector, creds, nil
}

// createStore opens the configured signature crop store
func createStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, error) {
	switch cfg.SignatureStore {
	case "s3":
		s3, err := store.NewS3Store(store.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
			URLPrefix: cfg.StaticURLPrefix,
		})
		if err != nil {
			return nil, err
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		log.Debug().Str("bucket", s3.Bucket()).Msg("Using S3 signature store")
		return s3, nil
	default:
		local, err := store.NewLocalStore(cfg.StaticDir, cfg.StaticURLPrefix)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("dir", local.Dir()).Msg("Using local signature store")
		return local, nil
	}
}

// newProcessor wires the extraction pipeline. A nil store disables crop persistence.
func newProcessor(cfg *config.Config, detector ocr.TextDetector, crops store.Store) (*extract.Processor, error) {
	return extract.NewProcessor(extract.Config{
		OCR: detector,
		Signatures: signature.Detector{
			IntensityThreshold: uint8(cfg.SignatureIntensityThreshold),
			PixelThreshold:     cfg.SignaturePixelThreshold,
			StripBackground:    cfg.SignatureStripBackground,
		},
		Store:          crops,
		Concurrency:    cfg.OCRConcurrency,
		PartialResults: cfg.PartialResults,
		Logger:         logger.WithComponent("extract"),
	})
}

// validateImageFile checks the file exists, is a regular non-empty file and fits the OCR limit
func validateImageFile(path string, log zerolog.Logger) (os.FileInfo, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().Str("file", path).Msg("Image file not found")
			return nil, fmt.Errorf("image file not found: %s", path)
		}
		if os.IsPermission(err) {
			log.Error().Str("file", path).Msg("Permission denied accessing image file")
			return nil, fmt.Errorf("permission denied accessing image file: %s", path)
		}
		return nil, fmt.Errorf("error accessing image file: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		log.Error().Str("file", path).Msg("Path is not a regular file")
		return nil, fmt.Errorf("path is not a regular file: %s", path)
	}

	if !hasImageExtension(path) {
		log.Warn().Str("file", path).Msg("File does not have a known image extension")
	}

	if fileInfo.Size() == 0 {
		log.Error().Str("file", path).Msg("Image file is empty")
		return nil, fmt.Errorf("image file is empty: %s", path)
	}

	if fileInfo.Size() > ocr.MaxImageSizeBytes {
		log.Error().
			Str("file", path).
			Int64("size", fileInfo.Size()).
			Int64("max_size", ocr.MaxImageSizeBytes).
			Msg("Image file exceeds maximum size limit")
		return nil, fmt.Errorf("image file too large (%d bytes). Maximum size is %d bytes (20MB)",
			fileInfo.Size(), ocr.MaxImageSizeBytes)
	}

	return fileInfo, nil
}

func hasImageExtension(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// handleOCRError provides user-friendly error messages for extraction failures
func handleOCRError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Extraction failed")

	errStr := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("processing timed out. Try increasing --timeout or OCR_TIMEOUT")
	case errors.Is(err, context.Canceled), errors.Is(err, ocr.ErrContextCanceled):
		return fmt.Errorf("processing was canceled")
	case errors.Is(err, extract.ErrInvalidImage):
		return fmt.Errorf("invalid or corrupted image file. Supported formats are JPEG, PNG, GIF, BMP, TIFF and WebP")
	case errors.Is(err, extract.ErrUnknownTemplate):
		return fmt.Errorf("unknown template. Run \"docscan templates\" to list the available ones")
	case errors.Is(err, ocr.ErrAuthFailed):
		return fmt.Errorf("Google Cloud authentication failed. Please check your credentials:\n\n"+
			"1. GOOGLE_APPLICATION_CREDENTIALS_B64 must hold a valid service account key\n"+
			"2. The key must not be revoked or expired\n"+
			"3. The service account needs the 'Cloud Vision API User' or 'Document AI API User' role\n\n"+
			"Original error: %v", err)
	case strings.Contains(errStr, "PERMISSION_DENIED") ||
		strings.Contains(errStr, "forbidden"):
		return fmt.Errorf("permission denied. Please ensure your Google Cloud service account may call the OCR API")
	case errors.Is(err, ocr.ErrQuotaExceeded):
		return fmt.Errorf("Google Cloud OCR quota exceeded. Check your project quotas in the Google Cloud Console")
	case errors.Is(err, ocr.ErrOCRFailed):
		return fmt.Errorf("OCR processing failed. This may be due to network issues, API quota limits, or service unavailability: %w", err)
	default:
		return fmt.Errorf("extraction failed: %w", err)
	}
}

// writeOutput writes data to outputPath, or to stdout when it is empty
func writeOutput(data []byte, outputPath string, log zerolog.Logger) error {
	if outputPath == "" {
		if _, err := os.Stdout.Write(append(data, '\n')); err != nil {
			log.Error().Err(err).Msg("Failed to write to stdout")
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		log.Error().
			Err(err).
			Str("output_file", outputPath).
			Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}

	log.Info().
		Str("output_file", outputPath).
		Int("bytes", len(data)).
		Msg("Results written to file")
	return nil
}
