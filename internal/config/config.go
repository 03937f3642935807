package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"docscan/internal/logger"
)

// Config is built once at startup and handed to the services that need it.
type Config struct {
	// Google Cloud Configuration
	GoogleCredentialsB64  string
	OCRBackend            string
	GoogleCloudProject    string
	GoogleCloudLocation   string
	DocumentAIProcessorID string
	OCRTimeout            time.Duration
	OCRConcurrency        int
	PartialResults        bool

	// Signature detection
	SignatureIntensityThreshold int
	SignaturePixelThreshold     int
	SignatureStripBackground    bool

	// Signature crop store
	SignatureStore           string
	StaticDir                string
	StaticURLPrefix          string
	SignatureTTL             time.Duration
	SignatureCleanupInterval time.Duration

	// S3 crop store
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Region    string
	S3UseSSL    bool

	// HTTP server
	ServerHost  string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64

	// Batch export
	GoogleSheetURL       string
	GoogleSheetWorksheet string
	BatchWorkers         int

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		GoogleCredentialsB64:  getEnv("GOOGLE_APPLICATION_CREDENTIALS_B64", ""),
		OCRBackend:            strings.ToLower(getEnv("OCR_BACKEND", "vision")),
		GoogleCloudProject:    getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:   getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAIProcessorID: getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		OCRTimeout:            time.Duration(getIntEnv("OCR_TIMEOUT", 30)) * time.Second,
		OCRConcurrency:        getIntEnv("OCR_CONCURRENCY", 1),
		PartialResults:        getBoolEnv("PARTIAL_RESULTS", false),

		SignatureIntensityThreshold: getIntEnv("SIGNATURE_INTENSITY_THRESHOLD", 128),
		SignaturePixelThreshold:     getIntEnv("SIGNATURE_PIXEL_THRESHOLD", 500),
		SignatureStripBackground:    getBoolEnv("SIGNATURE_STRIP_BACKGROUND", true),

		SignatureStore:           strings.ToLower(getEnv("SIGNATURE_STORE", "local")),
		StaticDir:                getEnv("STATIC_DIR", "static"),
		StaticURLPrefix:          strings.TrimRight(getEnv("STATIC_URL_PREFIX", "/static"), "/"),
		SignatureTTL:             getDurationEnv("SIGNATURE_TTL", 24*time.Hour),
		SignatureCleanupInterval: getDurationEnv("SIGNATURE_CLEANUP_INTERVAL", 10*time.Minute),

		S3Endpoint:  getEnv("S3_ENDPOINT", "localhost:9000"),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3Bucket:    getEnv("S3_BUCKET", "signatures"),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3UseSSL:    getBoolEnv("S3_USE_SSL", false),

		ServerHost:  getEnv("SERVER_HOST", "0.0.0.0"),
		Port:        getIntEnv("PORT", 8000),
		CORSOrigin:  getEnv("CORS_ORIGIN", "*"),
		MaxUploadMB: int64(getIntEnv("MAX_UPLOAD_MB", 20)),

		GoogleSheetURL:       getEnv("GOOGLE_SHEET_URL", ""),
		GoogleSheetWorksheet: getEnv("GOOGLE_SHEET_WORKSHEET", "Documents"),
		BatchWorkers:         getIntEnv("BATCH_WORKERS", 4),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "console"),
		LogTimeFormat: getEnv("LOG_TIME_FORMAT", time.RFC3339),
		LogOutput:     getEnv("LOG_OUTPUT", "stdout"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.GoogleCredentialsB64 == "" {
		return fmt.Errorf("GOOGLE_APPLICATION_CREDENTIALS_B64 is required")
	}
	switch c.OCRBackend {
	case "vision":
	case "documentai":
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for the documentai backend")
		}
		if c.DocumentAIProcessorID == "" {
			return fmt.Errorf("DOCUMENT_AI_PROCESSOR_ID is required for the documentai backend")
		}
	default:
		return fmt.Errorf("OCR_BACKEND must be vision or documentai, got %q", c.OCRBackend)
	}
	if c.OCRConcurrency < 1 {
		return fmt.Errorf("OCR_CONCURRENCY must be at least 1")
	}
	if c.SignatureIntensityThreshold < 0 || c.SignatureIntensityThreshold > 255 {
		return fmt.Errorf("SIGNATURE_INTENSITY_THRESHOLD must be between 0 and 255")
	}
	switch c.SignatureStore {
	case "local":
	case "s3":
		if c.S3AccessKey == "" || c.S3SecretKey == "" {
			return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY are required for the s3 signature store")
		}
	default:
		return fmt.Errorf("SIGNATURE_STORE must be local or s3, got %q", c.SignatureStore)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getDurationEnv accepts Go duration strings ("90m") or bare seconds ("5400")
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
