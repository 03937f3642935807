package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"docscan/internal/logger"
	"docscan/internal/server"
	"docscan/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP extraction service",
	Long: `Start an HTTP server that extracts cheques and mandates from uploaded scans.

Endpoints:
  POST /process-cheque        - Extract a cheque (multipart field "file")
  POST /process-mandate       - Extract a mandate form
  POST /documents/{template}  - Extract with any registered template
  GET  /templates             - List templates and their regions
  GET  /static/{name}         - Persisted signature crops
  GET  /health                - Health check
  GET  /metrics               - Prometheus metrics

Flags override the matching environment variables (SERVER_HOST, PORT,
CORS_ORIGIN, MAX_UPLOAD_MB).`,
	Example: `  docscan serve
  docscan serve --port 8080
  docscan serve --host 127.0.0.1 --max-upload-size 10`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("host", "H", "", "server host (default SERVER_HOST)")
	serveCmd.Flags().IntP("port", "p", 0, "server port (default PORT)")
	serveCmd.Flags().String("cors-origin", "", "CORS allowed origin (default CORS_ORIGIN)")
	serveCmd.Flags().Int64("max-upload-size", 0, "maximum upload size in MB (default MAX_UPLOAD_MB)")
	serveCmd.Flags().Int("timeout", 120, "request read/write timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	host := cfg.ServerHost
	if cmd.Flags().Changed("host") {
		host, _ = cmd.Flags().GetString("host")
	}
	port := cfg.Port
	if cmd.Flags().Changed("port") {
		port, _ = cmd.Flags().GetInt("port")
	}
	corsOrigin := cfg.CORSOrigin
	if cmd.Flags().Changed("cors-origin") {
		corsOrigin, _ = cmd.Flags().GetString("cors-origin")
	}
	maxUploadMB := cfg.MaxUploadMB
	if cmd.Flags().Changed("max-upload-size") {
		maxUploadMB, _ = cmd.Flags().GetInt64("max-upload-size")
	}
	timeout, _ := cmd.Flags().GetInt("timeout")
	shutdownTimeout, _ := cmd.Flags().GetInt("shutdown-timeout")

	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", port)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	detector, _, err := createTextDetector(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := detector.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close OCR client")
		}
	}()

	crops, err := createStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open signature store: %w", err)
	}

	processor, err := newProcessor(cfg, server.InstrumentDetector(detector), crops)
	if err != nil {
		return fmt.Errorf("failed to create processor: %w", err)
	}

	srv, err := server.NewServer(server.Config{
		Host:        host,
		Port:        port,
		CORSOrigin:  corsOrigin,
		MaxUploadMB: maxUploadMB,
		Extractor:   processor,
		Store:       crops,
		Logger:      logger.WithComponent("server"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(timeout) * time.Second,
		WriteTimeout:      time.Duration(timeout) * time.Second,
	}

	go store.RunJanitor(ctx, crops, cfg.SignatureTTL, cfg.SignatureCleanupInterval, logger.WithComponent("janitor"))

	go func() {
		log.Info().
			Str("host", host).
			Int("port", port).
			Str("ocr_backend", cfg.OCRBackend).
			Str("signature_store", cfg.SignatureStore).
			Msg("Starting extraction server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server error")
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled, initiating shutdown")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(shutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	cancel()

	log.Info().Msg("Graceful shutdown completed")
	return nil
}
