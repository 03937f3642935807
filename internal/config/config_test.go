package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS_B64", "e30=")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "vision", cfg.OCRBackend)
	assert.Equal(t, 30*time.Second, cfg.OCRTimeout)
	assert.Equal(t, 1, cfg.OCRConcurrency)
	assert.False(t, cfg.PartialResults)
	assert.Equal(t, 128, cfg.SignatureIntensityThreshold)
	assert.Equal(t, 500, cfg.SignaturePixelThreshold)
	assert.True(t, cfg.SignatureStripBackground)
	assert.Equal(t, "local", cfg.SignatureStore)
	assert.Equal(t, "static", cfg.StaticDir)
	assert.Equal(t, "/static", cfg.StaticURLPrefix)
	assert.Equal(t, 24*time.Hour, cfg.SignatureTTL)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, int64(20), cfg.MaxUploadMB)
	assert.Equal(t, "*", cfg.CORSOrigin)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS_B64", "e30=")
	t.Setenv("SIGNATURE_PIXEL_THRESHOLD", "900")
	t.Setenv("SIGNATURE_TTL", "90m")
	t.Setenv("SIGNATURE_CLEANUP_INTERVAL", "120")
	t.Setenv("OCR_CONCURRENCY", "4")
	t.Setenv("STATIC_URL_PREFIX", "/crops/")
	t.Setenv("PARTIAL_RESULTS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 900, cfg.SignaturePixelThreshold)
	assert.Equal(t, 90*time.Minute, cfg.SignatureTTL)
	assert.Equal(t, 2*time.Minute, cfg.SignatureCleanupInterval)
	assert.Equal(t, 4, cfg.OCRConcurrency)
	assert.Equal(t, "/crops", cfg.StaticURLPrefix)
	assert.True(t, cfg.PartialResults)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "missing credentials",
			env:  map[string]string{"GOOGLE_APPLICATION_CREDENTIALS_B64": ""},
			want: "GOOGLE_APPLICATION_CREDENTIALS_B64 is required",
		},
		{
			name: "unknown backend",
			env:  map[string]string{"OCR_BACKEND": "tesseract"},
			want: "OCR_BACKEND",
		},
		{
			name: "documentai without processor",
			env:  map[string]string{"OCR_BACKEND": "documentai", "GOOGLE_CLOUD_PROJECT": "p"},
			want: "DOCUMENT_AI_PROCESSOR_ID",
		},
		{
			name: "threshold out of range",
			env:  map[string]string{"SIGNATURE_INTENSITY_THRESHOLD": "300"},
			want: "SIGNATURE_INTENSITY_THRESHOLD",
		},
		{
			name: "s3 store without keys",
			env:  map[string]string{"SIGNATURE_STORE": "s3"},
			want: "S3_ACCESS_KEY",
		},
		{
			name: "zero concurrency",
			env:  map[string]string{"OCR_CONCURRENCY": "0"},
			want: "OCR_CONCURRENCY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GOOGLE_APPLICATION_CREDENTIALS_B64", "e30=")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGetLoggerConfig(t *testing.T) {
	cfg := &Config{LogLevel: "debug", LogFormat: "json", LogTimeFormat: time.RFC3339, LogOutput: "stderr"}

	lc := cfg.GetLoggerConfig()
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, "json", lc.Format)
	assert.Equal(t, "stderr", lc.Output)
}
