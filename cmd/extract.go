package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"docscan/internal/logger"
	"docscan/internal/roi"
	"docscan/internal/store"
)

var extractCmd = &cobra.Command{
	Use:   "extract [image-file]",
	Short: "Extract fields and signatures from a single scan",
	Long: `Read one scanned page with a fixed ROI template and print the result as JSON.

Text and date regions are sent to the configured OCR backend (OCR_BACKEND),
signature boxes are checked for ink locally. Crops of present signatures are
written to the signature store unless --no-crops is given.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS_B64 - base64 encoded service account JSON`,
	Example: `  # Extract a cheque to stdout
  docscan extract cheque.jpg

  # Extract a mandate form and save the result
  docscan extract mandate.png --template mandate -o mandate.json

  # Keep going when a single field fails
  PARTIAL_RESULTS=true docscan extract scan.tif`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("template", "t", roi.Cheque.Name, "ROI template (cheque, mandate)")
	extractCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	extractCmd.Flags().Int("timeout", 120, "Processing timeout in seconds")
	extractCmd.Flags().Bool("no-crops", false, "Do not persist signature crops")
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("extract")

	templateName, _ := cmd.Flags().GetString("template")
	outputPath, _ := cmd.Flags().GetString("output")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	noCrops, _ := cmd.Flags().GetBool("no-crops")

	imagePath := args[0]

	tpl, ok := roi.Lookup(templateName)
	if !ok {
		return fmt.Errorf("unknown template %q (available: %v)", templateName, roi.Names())
	}

	log.Info().
		Str("file", imagePath).
		Str("template", tpl.Name).
		Str("output", outputPath).
		Int("timeout", timeoutSecs).
		Msg("Starting extraction")

	fileInfo, err := validateImageFile(imagePath, log)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutSecs)*time.Second, log)
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

	var crops store.Store
	if !noCrops {
		if crops, err = createStore(ctx, cfg, log); err != nil {
			return fmt.Errorf("failed to open signature store: %w", err)
		}
	}

	processor, err := newProcessor(cfg, detector, crops)
	if err != nil {
		return err
	}

	file, err := os.Open(imagePath)
	if err != nil {
		log.Error().Err(err).Str("file", imagePath).Msg("Failed to open image file")
		return fmt.Errorf("failed to open image file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close image file")
		}
	}()

	startTime := time.Now()
	result, err := processor.Process(ctx, tpl, file)
	if err != nil {
		return handleOCRError(err, log)
	}

	log.Info().
		Str("document_id", result.DocumentID).
		Int64("size", fileInfo.Size()).
		Int("fields", len(result.Fields)).
		Int("signatures", len(result.Signatures)).
		Int("field_errors", len(result.Errors)).
		Dur("duration", time.Since(startTime)).
		Msg("Extraction completed successfully")

	outputData, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON output")
		return fmt.Errorf("failed to create JSON output: %w", err)
	}

	return writeOutput(outputData, outputPath, log)
}
