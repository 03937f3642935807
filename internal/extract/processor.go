// Package extract turns an uploaded page into a DocumentResult by walking a
// template's ROI table: text fields and dates go through OCR, signature
// boxes through the ink detector.
package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"docscan/internal/datefmt"
	"docscan/internal/ocr"
	"docscan/internal/roi"
	"docscan/internal/signature"
	"docscan/internal/store"
	"docscan/pkg/models"
)

// Config wires a Processor to its collaborators.
type Config struct {
	// OCR reads text and date regions. Required.
	OCR ocr.TextDetector

	// Signatures decides presence and prepares persisted crops. The zero
	// value means signature.DefaultDetector().
	Signatures signature.Detector

	// Store keeps crops of present signatures. Nil disables persistence.
	Store store.Store

	// Concurrency is the number of ROI entries evaluated at once. Values
	// below 2 evaluate the table strictly in order.
	Concurrency int

	// PartialResults keeps going after a field fails: the field is reported
	// as "" and the error is listed under Errors. Cancellation always aborts.
	PartialResults bool

	Logger zerolog.Logger
}

// Processor extracts documents. It is safe for concurrent use.
type Processor struct {
	cfg Config
	log zerolog.Logger
}

// NewProcessor validates cfg and returns a Processor.
func NewProcessor(cfg Config) (*Processor, error) {
	if cfg.OCR == nil {
		return nil, errors.New("extract: OCR text detector is required")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Signatures == (signature.Detector{}) {
		cfg.Signatures = signature.DefaultDetector()
	}
	return &Processor{cfg: cfg, log: cfg.Logger}, nil
}

// ProcessDocument looks up the template by name and processes the image in r.
func (p *Processor) ProcessDocument(ctx context.Context, template string, r io.Reader) (*models.DocumentResult, error) {
	tpl, ok := roi.Lookup(template)
	if !ok {
		return nil, &ProcessingError{Op: "ProcessDocument", Err: fmt.Errorf("%w: %q", ErrUnknownTemplate, template)}
	}
	return p.Process(ctx, tpl, r)
}

// Process decodes r and extracts every field of tpl.
func (p *Processor) Process(ctx context.Context, tpl *roi.Template, r io.Reader) (*models.DocumentResult, error) {
	img, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return p.ProcessImage(ctx, tpl, img, uuid.NewString())
}

// outcome is the evaluation of one ROI entry.
type outcome struct {
	value string
	sig   *models.SignatureResult
	err   error
}

// ProcessImage extracts every field of tpl from an already decoded page.
// Fields and signatures are reported in table order whatever the concurrency.
func (p *Processor) ProcessImage(ctx context.Context, tpl *roi.Template, img image.Image, documentID string) (*models.DocumentResult, error) {
	start := time.Now()
	log := p.log.With().Str("document_id", documentID).Str("template", tpl.Name).Logger()

	b := img.Bounds()
	if w, h := tpl.Extent(); b.Dx() < w || b.Dy() < h {
		log.Warn().
			Int("width", b.Dx()).
			Int("height", b.Dy()).
			Int("layout_width", w).
			Int("layout_height", h).
			Msg("Image is smaller than the template layout, regions will be clamped")
	}

	outcomes := make([]outcome, len(tpl.Fields))
	if err := p.evaluateAll(ctx, tpl, img, documentID, outcomes, log); err != nil {
		return nil, err
	}

	result := &models.DocumentResult{
		DocumentID: documentID,
		Template:   tpl.Name,
		Fields:     models.FieldValues{},
		Signatures: []models.SignatureResult{},
	}
	for i, f := range tpl.Fields {
		o := outcomes[i]
		if o.err != nil {
			if result.Errors == nil {
				result.Errors = make(map[string]string)
			}
			result.Errors[f.Name] = o.err.Error()
		}
		if f.Kind == roi.KindSignature {
			if o.sig != nil {
				result.Signatures = append(result.Signatures, *o.sig)
			}
			continue
		}
		result.Fields = append(result.Fields, models.FieldValue{Name: f.Name, Value: o.value})
	}

	log.Info().
		Int("fields", len(result.Fields)).
		Int("signatures", len(result.Signatures)).
		Int("failed", len(result.Errors)).
		Dur("duration", time.Since(start)).
		Msg("Document processed")

	return result, nil
}

// evaluateAll fills outcomes. It returns an error only when the document as a
// whole must be rejected.
func (p *Processor) evaluateAll(ctx context.Context, tpl *roi.Template, img image.Image, documentID string, outcomes []outcome, log zerolog.Logger) error {
	fatal := func(f roi.Field, o outcome) error {
		if o.err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return &ProcessingError{Op: "ExtractField", Field: f.Name, Err: ctx.Err()}
		}
		if !p.cfg.PartialResults {
			return &ProcessingError{Op: "ExtractField", Field: f.Name, Err: o.err}
		}
		log.Warn().Err(o.err).Str("field", f.Name).Msg("Field extraction failed, continuing")
		return nil
	}

	if p.cfg.Concurrency <= 1 {
		for i, f := range tpl.Fields {
			outcomes[i] = p.evaluate(ctx, tpl, f, img, documentID, log)
			if err := fatal(f, outcomes[i]); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, f := range tpl.Fields {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i] = outcome{err: err}
				return err
			}
			outcomes[i] = p.evaluate(gctx, tpl, f, img, documentID, log)
			return fatal(f, outcomes[i])
		})
	}
	if err := g.Wait(); err != nil {
		var perr *ProcessingError
		if errors.As(err, &perr) {
			return err
		}
		return &ProcessingError{Op: "ExtractField", Err: err}
	}
	return nil
}

// evaluate dispatches one entry on its kind.
func (p *Processor) evaluate(ctx context.Context, tpl *roi.Template, f roi.Field, img image.Image, documentID string, log zerolog.Logger) outcome {
	switch f.Kind {
	case roi.KindSignature:
		sig, err := p.evaluateSignature(ctx, f, img, documentID, log)
		return outcome{sig: sig, err: err}
	case roi.KindDate:
		v, err := p.evaluateDate(ctx, tpl, f, img, log)
		return outcome{value: v, err: err}
	default:
		v, err := p.evaluateText(ctx, f.Name, f.Rect, img, log)
		return outcome{value: CleanText(v), err: err}
	}
}

func (p *Processor) crop(img image.Image, name string, r roi.Rect, log zerolog.Logger) *image.NRGBA {
	c, truncated := roi.Crop(img, r)
	if truncated {
		log.Warn().Str("field", name).Stringer("rect", r).Msg("Region extends past the image and was clamped")
	}
	return c
}

func (p *Processor) evaluateText(ctx context.Context, name string, r roi.Rect, img image.Image, log zerolog.Logger) (string, error) {
	return readText(ctx, p.cfg.OCR, p.crop(img, name, r, log))
}

func (p *Processor) evaluateDate(ctx context.Context, tpl *roi.Template, f roi.Field, img image.Image, log zerolog.Logger) (string, error) {
	if !f.Composite() {
		text, err := p.evaluateText(ctx, f.Name, f.Rect, img, log)
		if err != nil {
			return "", err
		}
		return p.checkDate(f.Name, datefmt.Format(CleanText(text), tpl.DateStyle), log), nil
	}

	parts := make([]string, len(f.Digits))
	for i, d := range f.Digits {
		text, err := p.evaluateText(ctx, f.Name+"."+d.Name, d.Rect, img, log)
		if err != nil {
			return "", err
		}
		parts[i] = strings.TrimSpace(text)
	}
	return p.checkDate(f.Name, datefmt.Assemble(parts, tpl.DateStyle), log), nil
}

func (p *Processor) checkDate(name, value string, log zerolog.Logger) string {
	if !datefmt.IsFormatted(value) {
		log.Debug().Str("field", name).Str("value", value).Msg("Date did not read as XX/XX/XXXX, passing raw value through")
	}
	return value
}

func (p *Processor) evaluateSignature(ctx context.Context, f roi.Field, img image.Image, documentID string, log zerolog.Logger) (*models.SignatureResult, error) {
	crop := p.crop(img, f.Name, f.Rect, log)
	det := p.cfg.Signatures.Detect(crop)

	res := &models.SignatureResult{
		Label:       f.Name,
		Present:     det.Present,
		Status:      signature.Status(det.Present),
		Coordinates: f.Rect,
		InkPixels:   det.InkPixels,
	}
	if !det.Present || p.cfg.Store == nil {
		return res, nil
	}

	data, err := p.cfg.Signatures.Prepare(crop)
	if err != nil {
		return res, err
	}
	url, err := p.cfg.Store.Put(ctx, store.CropName(documentID, f.Name), data, "image/jpeg")
	if err != nil {
		return res, fmt.Errorf("persist signature crop: %w", err)
	}
	res.CroppedImage = url

	log.Debug().Str("field", f.Name).Int("ink_pixels", det.InkPixels).Str("url", url).Msg("Signature crop stored")
	return res, nil
}
