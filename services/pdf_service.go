package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tgautier-sma/ai-llama/internal/ai"
	"github.com/tgautier-sma/ai-llama/internal/config"
	"github.com/tgautier-sma/ai-llama/internal/logger"
	"github.com/tgautier-sma/ai-llama/internal/pdfdoc"
	"github.com/tgautier-sma/ai-llama/internal/telemetry"
	"github.com/tgautier-sma/ai-llama/internal/workerpool"
	"github.com/tgautier-sma/ai-llama/models"
)

var (
	// ErrEmptyExtraction means neither the text layer nor OCR produced text.
	ErrEmptyExtraction = errors.New("no text could be extracted from the PDF")
	// ErrNoImages means the vision path had no page to render.
	ErrNoImages = errors.New("no page images could be extracted from the PDF")
)

const (
	modeText   = "text"
	modeVision = "vision"
)

// Settings is fixed at startup and never changes afterwards.
type Settings struct {
	VisionMode     bool
	TextEndpoint   string
	VisionEndpoint string
	TextTimeout    time.Duration
	VisionTimeout  time.Duration
	Temperature    float64
	MaxPromptChars int
	VisionMaxPages int
	VisionZoom     float64
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		VisionMode:     cfg.VisionMode,
		TextEndpoint:   cfg.LLMURL,
		VisionEndpoint: cfg.LLMVisionURL,
		TextTimeout:    cfg.TextTimeout,
		VisionTimeout:  cfg.VisionTimeout,
		Temperature:    cfg.Temperature,
		MaxPromptChars: cfg.MaxPromptChars,
		VisionMaxPages: cfg.VisionMaxPages,
		VisionZoom:     cfg.VisionZoom,
	}
}

// DocumentOpener parses raw upload bytes.
type DocumentOpener interface {
	Open(data []byte) (pdfdoc.Document, error)
}

// Completer sends one chat-completion request and returns the raw body.
type Completer interface {
	Complete(ctx context.Context, baseURL string, req ai.ChatRequest, timeout time.Duration) ([]byte, error)
}

// PDFService runs the question-answering pipeline over one uploaded PDF.
type PDFService struct {
	settings  Settings
	opener    DocumentOpener
	extractor *PDFExtractor
	llm       Completer
	pool      *workerpool.Pool
	metrics   *telemetry.Metrics
	tracer    trace.Tracer
}

func NewPDFService(settings Settings, opener DocumentOpener, extractor *PDFExtractor, llm Completer, pool *workerpool.Pool, metrics *telemetry.Metrics) *PDFService {
	return &PDFService{
		settings:  settings,
		opener:    opener,
		extractor: extractor,
		llm:       llm,
		pool:      pool,
		metrics:   metrics,
		tracer:    otel.Tracer("pdf-service"),
	}
}

func (s *PDFService) Settings() Settings {
	return s.settings
}

// Analyze answers question about the PDF in data. In text mode the document
// text (OCR'd if needed, then truncated) is inlined into the prompt; in
// vision mode the first pages are sent as images.
func (s *PDFService) Analyze(ctx context.Context, data []byte, question string, maxTokens int) (*models.ChatResult, error) {
	mode := modeText
	if s.settings.VisionMode {
		mode = modeVision
	}

	ctx, span := s.tracer.Start(ctx, "pdf.analyze", trace.WithAttributes(
		attribute.String("pdf.mode", mode),
		attribute.Int("pdf.bytes", len(data)),
		attribute.Int("llm.max_tokens", maxTokens),
	))
	defer span.End()

	doc, err := s.open(ctx, data)
	if err != nil {
		s.fail(span, mode, err)
		return nil, err
	}
	defer doc.Close()

	pages := doc.PageCount()
	span.SetAttributes(attribute.Int("pdf.pages", pages))

	start := time.Now()
	var result *models.ChatResult
	if s.settings.VisionMode {
		result, err = s.analyzeVision(ctx, doc, question, maxTokens)
	} else {
		result, err = s.analyzeText(ctx, doc, question, maxTokens)
	}
	elapsed := time.Since(start)

	if err != nil {
		s.metrics.RecordPDFProcessing(elapsed.Seconds(), mode, "error")
		s.fail(span, mode, err)
		return nil, err
	}

	result.PagesExtracted = pages
	result.VisionUsed = s.settings.VisionMode
	result.ResponseTime = roundSeconds(elapsed)

	s.metrics.RecordPDFProcessing(elapsed.Seconds(), mode, "success")
	s.metrics.RecordTokensUsed(int64(result.TotalTokens), mode)
	span.SetAttributes(
		attribute.Bool("pdf.ocr_used", result.OCRUsed),
		attribute.Int("pdf.chars_extracted", result.CharsExtracted),
		attribute.Int("llm.total_tokens", result.TotalTokens),
	)

	logger.Info("PDF analyzed",
		"mode", mode,
		"pages", pages,
		"chars", result.CharsExtracted,
		"ocr_used", result.OCRUsed,
		"total_tokens", result.TotalTokens,
		"response_time", result.ResponseTime,
	)
	return result, nil
}

func (s *PDFService) analyzeText(ctx context.Context, doc pdfdoc.Document, question string, maxTokens int) (*models.ChatResult, error) {
	extraction, err := workerpool.Submit(ctx, s.pool, func() (*models.ExtractionResult, error) {
		return s.extractor.ExtractText(ctx, doc)
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(extraction.Text) == "" {
		return nil, ErrEmptyExtraction
	}

	text := TruncateText(extraction.Text, s.settings.MaxPromptChars)
	payload := BuildTextPrompt(text, question)

	answer, usage, err := s.dispatch(ctx, s.settings.TextEndpoint, payload, maxTokens, s.settings.TextTimeout)
	if err != nil {
		return nil, err
	}

	return &models.ChatResult{
		Answer:           answer,
		CharsExtracted:   utf8.RuneCountInString(text),
		OCRUsed:          extraction.OCRUsed,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	}, nil
}

func (s *PDFService) analyzeVision(ctx context.Context, doc pdfdoc.Document, question string, maxTokens int) (*models.ChatResult, error) {
	images, err := workerpool.Submit(ctx, s.pool, func() ([]string, error) {
		return s.extractor.ExtractPageImages(ctx, doc, s.settings.VisionMaxPages, s.settings.VisionZoom)
	})
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	payload, err := BuildVisionPrompt(question, images)
	if err != nil {
		return nil, err
	}

	answer, usage, err := s.dispatch(ctx, s.settings.VisionEndpoint, payload, maxTokens, s.settings.VisionTimeout)
	if err != nil {
		return nil, err
	}

	return &models.ChatResult{
		Answer:           answer,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	}, nil
}

func (s *PDFService) dispatch(ctx context.Context, endpoint string, payload PromptPayload, maxTokens int, timeout time.Duration) (string, ai.Usage, error) {
	raw, err := s.llm.Complete(ctx, endpoint, NewChatRequest(payload, maxTokens, s.settings.Temperature), timeout)
	if err != nil {
		return "", ai.Usage{}, err
	}
	return ai.InterpretResponse(raw)
}

// ExtractText returns the document text without calling the LLM. The text
// is not truncated.
func (s *PDFService) ExtractText(ctx context.Context, data []byte) (*models.ExtractionResult, int, error) {
	ctx, span := s.tracer.Start(ctx, "pdf.extract_text")
	defer span.End()

	doc, err := s.open(ctx, data)
	if err != nil {
		s.fail(span, "extract", err)
		return nil, 0, err
	}
	defer doc.Close()

	extraction, err := workerpool.Submit(ctx, s.pool, func() (*models.ExtractionResult, error) {
		return s.extractor.ExtractText(ctx, doc)
	})
	if err != nil {
		s.fail(span, "extract", err)
		return nil, 0, err
	}
	if strings.TrimSpace(extraction.Text) == "" {
		s.fail(span, "extract", ErrEmptyExtraction)
		return nil, 0, ErrEmptyExtraction
	}

	span.SetAttributes(
		attribute.Int("pdf.pages", doc.PageCount()),
		attribute.Bool("pdf.ocr_used", extraction.OCRUsed),
	)
	return extraction, doc.PageCount(), nil
}

func (s *PDFService) open(ctx context.Context, data []byte) (pdfdoc.Document, error) {
	doc, err := workerpool.Submit(ctx, s.pool, func() (pdfdoc.Document, error) {
		return s.opener.Open(data)
	})
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	return doc, nil
}

func (s *PDFService) fail(span trace.Span, mode string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Warn("PDF pipeline failed", "mode", mode, "error", err)
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
