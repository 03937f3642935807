package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"docscan/internal/datefmt"
	"docscan/internal/logger"
	"docscan/internal/roi"
	"docscan/internal/sheets"
	"docscan/internal/store"
	"docscan/pkg/models"
	"docscan/pkg/services"
)

var batchCmd = &cobra.Command{
	Use:   "batch [folder-path]",
	Short: "Process all scans in a folder and write the results to Google Sheets",
	Long: `Process every image in a folder with one ROI template, print a summary and
append one row per document to a Google Sheet.

A document is reported as a warning when a field failed (PARTIAL_RESULTS=true)
or a date could not be laid out as XX/XX/XXXX, and as an error when the whole
document failed.

Signature crops are not persisted unless --keep-crops is given. Batch runs do
not expire crops; kept crops stay in the signature store until a running
"docscan serve" with SIGNATURE_TTL removes them, or they are deleted by hand.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS_B64 - base64 encoded service account JSON

Optional environment variables:
  GOOGLE_SHEET_URL       - Google Sheets URL to write results (skipped when empty)
  GOOGLE_SHEET_WORKSHEET - Worksheet name (default: Documents)
  BATCH_WORKERS          - Number of parallel workers (default: 4)`,
	Example: `  # Process all cheques in a folder
  docscan batch ./scans

  # Mandate forms, results also saved as JSON
  docscan batch ./mandates --template mandate -o results.json

  # Dry run to test processing without writing to the sheet
  docscan batch ./scans --dry-run --verbose`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

// BatchResult is the outcome of processing a single image
type BatchResult struct {
	Filename string
	Result   *models.DocumentResult
	Error    error
	Status   string // "success", "warning", "error"
	Index    int
}

// WorkerJob is one image waiting for a worker
type WorkerJob struct {
	FilePath string
	Index    int
}

// batchOutput is the JSON shape written by --output
type batchOutput struct {
	File   string                 `json:"file"`
	Status string                 `json:"status"`
	Error  string                 `json:"error,omitempty"`
	Result *models.DocumentResult `json:"result,omitempty"`
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringP("template", "t", roi.Cheque.Name, "ROI template (cheque, mandate)")
	batchCmd.Flags().StringP("output", "o", "", "Also write all results as JSON to this file")
	batchCmd.Flags().Int("workers", 0, "Number of parallel workers (default BATCH_WORKERS)")
	batchCmd.Flags().Duration("timeout", 30*time.Minute, "Timeout for the whole batch")
	batchCmd.Flags().Bool("dry-run", false, "Process files but don't write to Google Sheet")
	batchCmd.Flags().Bool("keep-crops", false, "Persist signature crops to the signature store (never expired by batch)")
	batchCmd.Flags().Bool("verbose", false, "Show detailed processing information")
}

func runBatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("batch")

	folderPath := args[0]
	templateName, _ := cmd.Flags().GetString("template")
	outputPath, _ := cmd.Flags().GetString("output")
	workers, _ := cmd.Flags().GetInt("workers")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	keepCrops, _ := cmd.Flags().GetBool("keep-crops")
	verbose, _ := cmd.Flags().GetBool("verbose")

	tpl, ok := roi.Lookup(templateName)
	if !ok {
		return fmt.Errorf("unknown template %q (available: %v)", templateName, roi.Names())
	}

	folderInfo, err := os.Stat(folderPath)
	if err != nil {
		return fmt.Errorf("folder not found: %s", folderPath)
	}
	if !folderInfo.IsDir() {
		return fmt.Errorf("path is not a directory: %s", folderPath)
	}

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if workers <= 0 {
		workers = cfg.BatchWorkers
	}
	if workers <= 0 {
		workers = 1
	}

	log.Info().
		Str("folder", folderPath).
		Str("template", tpl.Name).
		Int("workers", workers).
		Bool("dry_run", dryRun).
		Bool("verbose", verbose).
		Msg("Starting batch processing")

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("                         BATCH PROCESSING")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Folder: %s\n", folderPath)
	fmt.Printf("Template: %s (%s)\n", tpl.Name, tpl.Description)
	if dryRun {
		fmt.Printf("Mode: dry run (no Google Sheets update)\n")
	}
	fmt.Println()

	ctx, cancel := createContextWithTimeout(timeout, log)
	defer cancel()

	files, err := findImageFiles(folderPath)
	if err != nil {
		return fmt.Errorf("failed to find image files: %w", err)
	}
	if len(files) == 0 {
		fmt.Println("No image files found in the folder.")
		return nil
	}

	detector, creds, err := createTextDetector(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := detector.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close OCR client")
		}
	}()

	var crops store.Store
	if keepCrops {
		if crops, err = createStore(ctx, cfg, log); err != nil {
			return fmt.Errorf("failed to open signature store: %w", err)
		}
	}

	processor, err := newProcessor(cfg, detector, crops)
	if err != nil {
		return err
	}

	fmt.Printf("Processing %d images with %d parallel workers...\n", len(files), workers)
	fmt.Println()

	results := processImagesInParallel(ctx, files, tpl, processor, workers, log, verbose)

	fmt.Println()

	successCount, warningCount, errorCount := countStatuses(results)

	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("                 RESULTS")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Successful: %d\n", successCount)
	if warningCount > 0 {
		fmt.Printf("With warnings: %d\n", warningCount)
	}
	if errorCount > 0 {
		fmt.Printf("Errors: %d\n", errorCount)
	}
	fmt.Println()

	if outputPath != "" {
		data, err := json.MarshalIndent(toBatchOutput(results), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		if err := writeOutput(data, outputPath, log); err != nil {
			return err
		}
		fmt.Printf("JSON: %s\n", outputPath)
	}

	switch {
	case dryRun:
	case cfg.GoogleSheetURL == "":
		log.Warn().Msg("GOOGLE_SHEET_URL not set, skipping Google Sheets export")
	default:
		fmt.Println("Writing results to Google Sheet...")

		sheetsService, err := sheets.NewSheetsService(ctx, cfg.GoogleSheetURL, creds)
		if err != nil {
			return fmt.Errorf("failed to create Google Sheets service: %w", err)
		}

		sheetResults := make([]sheets.BatchResult, len(results))
		for i, result := range results {
			sheetResults[i] = sheets.BatchResult{
				Filename: result.Filename,
				Result:   result.Result,
				Error:    result.Error,
				Status:   result.Status,
			}
		}

		if err := sheetsService.WriteDocumentResults(ctx, tpl, sheetResults, cfg.GoogleSheetWorksheet); err != nil {
			return fmt.Errorf("failed to write to Google Sheet: %w", err)
		}

		fmt.Printf("Sheet: %s\n", cfg.GoogleSheetWorksheet)
		fmt.Printf("Rows added: %d\n", len(sheetResults))
		fmt.Printf("URL: %s\n", cfg.GoogleSheetURL)
	}

	fmt.Println(strings.Repeat("=", 80))

	log.Info().
		Int("total", len(files)).
		Int("success", successCount).
		Int("warnings", warningCount).
		Int("errors", errorCount).
		Msg("Batch processing completed")

	return nil
}

// findImageFiles finds all scans in the folder, sorted by path
func findImageFiles(folderPath string) ([]string, error) {
	var files []string

	err := filepath.Walk(folderPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != folderPath && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if hasImageExtension(info.Name()) {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// processSingleImage extracts one file and grades the result
func processSingleImage(ctx context.Context, path string, tpl *roi.Template, extractor services.ExtractionService, log zerolog.Logger, verbose bool) BatchResult {
	result := BatchResult{Status: "error"}

	file, err := os.Open(path)
	if err != nil {
		result.Error = fmt.Errorf("failed to open image file: %w", err)
		return result
	}
	defer file.Close()

	doc, err := extractor.ProcessDocument(ctx, tpl.Name, file)
	if err != nil {
		result.Error = err
		return result
	}

	result.Result = doc
	result.Status = batchStatus(tpl, doc)

	if verbose {
		log.Info().
			Str("file", filepath.Base(path)).
			Str("document_id", doc.DocumentID).
			Str("status", result.Status).
			Int("field_errors", len(doc.Errors)).
			Msg("Image processed")
	}

	return result
}

// batchStatus is "warning" when a field failed or a date needs manual review
func batchStatus(tpl *roi.Template, doc *models.DocumentResult) string {
	if len(doc.Errors) > 0 {
		return "warning"
	}
	for _, f := range tpl.Fields {
		if f.Kind != roi.KindDate {
			continue
		}
		if v, _ := doc.Fields.Get(f.Name); !datefmt.IsFormatted(v) {
			return "warning"
		}
	}
	return "success"
}

// processImagesInParallel processes images using a worker pool. Results keep
// the order of files.
func processImagesInParallel(ctx context.Context, files []string, tpl *roi.Template, extractor services.ExtractionService, numWorkers int, log zerolog.Logger, verbose bool) []BatchResult {
	jobs := make(chan WorkerJob, len(files))
	results := make([]BatchResult, len(files))

	var processedCount int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for job := range jobs {
				log.Debug().
					Int("worker", workerID).
					Str("file", job.FilePath).
					Int("index", job.Index+1).
					Msg("Worker processing image")

				result := processSingleImage(ctx, job.FilePath, tpl, extractor, log, verbose)
				result.Index = job.Index
				result.Filename = filepath.Base(job.FilePath)
				results[job.Index] = result

				mu.Lock()
				processedCount++
				fmt.Printf("[%d/%d] %s - %s", processedCount, len(files), result.Filename, getStatusEmoji(result.Status))
				if result.Error != nil {
					fmt.Printf(" (%s)", result.Error.Error())
				} else if n := len(result.Result.Errors); n > 0 {
					fmt.Printf(" (%d field(s) failed)", n)
				}
				fmt.Println()
				mu.Unlock()
			}
		}(w)
	}

	for i, file := range files {
		jobs <- WorkerJob{FilePath: file, Index: i}
	}
	close(jobs)

	wg.Wait()

	return results
}

func countStatuses(results []BatchResult) (success, warning, failed int) {
	for _, result := range results {
		switch result.Status {
		case "success":
			success++
		case "warning":
			warning++
		case "error":
			failed++
		}
	}
	return success, warning, failed
}

func toBatchOutput(results []BatchResult) []batchOutput {
	out := make([]batchOutput, len(results))
	for i, r := range results {
		out[i] = batchOutput{File: r.Filename, Status: r.Status, Result: r.Result}
		if r.Error != nil {
			out[i].Error = r.Error.Error()
		}
	}
	return out
}

// getStatusEmoji returns an emoji for the processing status
func getStatusEmoji(status string) string {
	switch status {
	case "success":
		return "✅"
	case "warning":
		return "⚠️"
	case "error":
		return "❌"
	default:
		return "❓"
	}
}
