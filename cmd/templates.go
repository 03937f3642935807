package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"docscan/internal/extract"
	"docscan/internal/logger"
	"docscan/internal/roi"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List ROI templates or draw one over a scan",
	Long: `List the registered ROI templates with their regions.

With --overlay the regions of --template are drawn over the given scan and
written to --output. Use it to check that a scanner produces pages in the
pixel geometry the template expects.`,
	Example: `  # List templates
  docscan templates

  # Full region tables as JSON
  docscan templates --json

  # Draw the mandate regions over a scan
  docscan templates --overlay mandate.png --template mandate -o overlay.png`,
	Args: cobra.NoArgs,
	RunE: runTemplates,
}

func init() {
	rootCmd.AddCommand(templatesCmd)

	templatesCmd.Flags().Bool("json", false, "Output the region tables as JSON")
	templatesCmd.Flags().String("overlay", "", "Scan to draw the template regions on")
	templatesCmd.Flags().StringP("template", "t", roi.Cheque.Name, "Template used with --overlay")
	templatesCmd.Flags().StringP("output", "o", "overlay.png", "Overlay output file")
}

func runTemplates(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("templates")

	jsonOutput, _ := cmd.Flags().GetBool("json")
	overlayPath, _ := cmd.Flags().GetString("overlay")
	templateName, _ := cmd.Flags().GetString("template")
	outputPath, _ := cmd.Flags().GetString("output")

	if overlayPath != "" {
		return drawOverlay(overlayPath, templateName, outputPath)
	}

	if jsonOutput {
		data, err := json.MarshalIndent(roi.Templates(), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		return writeOutput(data, "", log)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDATES\tEXTENT\tFIELDS\tDESCRIPTION")
	for _, t := range roi.Templates() {
		width, height := t.Extent()
		fmt.Fprintf(w, "%s\t%s %s\t%dx%d\t%s\t%s\n",
			t.Name, t.DateStyle, t.DateOrder, width, height, fieldSummary(t), t.Description)
	}
	return w.Flush()
}

// fieldSummary counts the fields of a template per kind
func fieldSummary(t *roi.Template) string {
	counts := map[roi.Kind]int{}
	for _, f := range t.Fields {
		counts[f.Kind]++
	}
	parts := make([]string, 0, 3)
	for _, k := range []roi.Kind{roi.KindText, roi.KindDate, roi.KindSignature} {
		if counts[k] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[k], k))
		}
	}
	return strings.Join(parts, ", ")
}

func drawOverlay(imagePath, templateName, outputPath string) error {
	log := logger.WithComponent("templates")

	tpl, ok := roi.Lookup(templateName)
	if !ok {
		return fmt.Errorf("unknown template %q (available: %v)", templateName, roi.Names())
	}

	if _, err := validateImageFile(imagePath, log); err != nil {
		return err
	}

	file, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("failed to open image file: %w", err)
	}
	defer file.Close()

	img, err := extract.Decode(file)
	if err != nil {
		return handleOCRError(err, log)
	}

	width, height := tpl.Extent()
	bounds := img.Bounds()
	if bounds.Dx() < width || bounds.Dy() < height {
		log.Warn().
			Int("width", bounds.Dx()).
			Int("height", bounds.Dy()).
			Int("template_width", width).
			Int("template_height", height).
			Msg("Scan is smaller than the template, some regions will be cut off")
	}

	if err := imaging.Save(roi.Overlay(img, tpl), outputPath); err != nil {
		return fmt.Errorf("failed to save overlay: %w", err)
	}

	log.Info().
		Str("template", tpl.Name).
		Str("output_file", outputPath).
		Msg("Overlay written")
	return nil
}
