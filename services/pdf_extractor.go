package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/tgautier-sma/ai-llama/internal/logger"
	"github.com/tgautier-sma/ai-llama/internal/pdfdoc"
	"github.com/tgautier-sma/ai-llama/internal/telemetry"
	"github.com/tgautier-sma/ai-llama/models"
)

// ExtractorOptions tunes the OCR fallback.
type ExtractorOptions struct {
	// Trimmed text-layer output shorter than this (in characters) triggers OCR.
	MinChars    int
	Languages   []string
	OCRZoom     float64
	PageWorkers int
}

// PDFExtractor recovers text from a document: the text layer when it is
// substantial, OCR of rendered pages otherwise.
type PDFExtractor struct {
	ocr     OCREngine
	opts    ExtractorOptions
	metrics *telemetry.Metrics
}

func NewPDFExtractor(ocr OCREngine, opts ExtractorOptions, metrics *telemetry.Metrics) *PDFExtractor {
	if opts.PageWorkers < 1 {
		opts.PageWorkers = 1
	}
	return &PDFExtractor{ocr: ocr, opts: opts, metrics: metrics}
}

// ExtractText concatenates the text layer of every page. When the trimmed
// result has fewer than MinChars characters it is discarded and every page
// is OCR'd instead; each OCR'd page is followed by a blank line. An empty
// result is not an error here.
func (e *PDFExtractor) ExtractText(ctx context.Context, doc pdfdoc.Document) (*models.ExtractionResult, error) {
	var sb strings.Builder
	for i := 0; i < doc.PageCount(); i++ {
		sb.WriteString(doc.PageText(i))
	}
	text := sb.String()

	if utf8.RuneCountInString(strings.TrimSpace(text)) >= e.opts.MinChars {
		return &models.ExtractionResult{
			Text:      text,
			CharCount: utf8.RuneCountInString(text),
		}, nil
	}

	logger.Info("Text layer too short, falling back to OCR",
		"pages", doc.PageCount(),
		"chars", utf8.RuneCountInString(strings.TrimSpace(text)),
	)
	e.metrics.RecordOCRFallback(doc.PageCount())

	text, err := e.ocrPages(ctx, doc)
	if err != nil {
		return nil, err
	}

	return &models.ExtractionResult{
		Text:      text,
		OCRUsed:   true,
		CharCount: utf8.RuneCountInString(text),
	}, nil
}

func (e *PDFExtractor) ocrPages(ctx context.Context, doc pdfdoc.Document) (string, error) {
	if e.ocr == nil {
		return "", fmt.Errorf("OCR fallback needed but no OCR engine is configured")
	}

	results := make([]string, doc.PageCount())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.PageWorkers)

	for i := range results {
		i := i
		g.Go(func() error {
			png, err := doc.Rasterize(gctx, i, e.opts.OCRZoom)
			if err != nil {
				return fmt.Errorf("rasterize page %d for OCR: %w", i+1, err)
			}
			text, err := e.ocr.Recognize(gctx, png, e.opts.Languages)
			if err != nil {
				return fmt.Errorf("OCR page %d: %w", i+1, err)
			}
			results[i] = text
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, text := range results {
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}

// ExtractPageImages renders the first min(PageCount, maxPages) pages and
// returns them base64-encoded, in page order.
func (e *PDFExtractor) ExtractPageImages(ctx context.Context, doc pdfdoc.Document, maxPages int, zoom float64) ([]string, error) {
	n := min(doc.PageCount(), maxPages)
	images := make([]string, 0, max(n, 0))
	for i := 0; i < n; i++ {
		png, err := doc.Rasterize(ctx, i, zoom)
		if err != nil {
			return nil, fmt.Errorf("rasterize page %d: %w", i+1, err)
		}
		images = append(images, base64.StdEncoding.EncodeToString(png))
	}
	return images, nil
}
