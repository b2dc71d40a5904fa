package services

import (
	"context"
	"time"

	"github.com/tgautier-sma/ai-llama/internal/ai"
	"github.com/tgautier-sma/ai-llama/internal/cmdrun"
	"github.com/tgautier-sma/ai-llama/internal/config"
	"github.com/tgautier-sma/ai-llama/internal/logger"
	"github.com/tgautier-sma/ai-llama/internal/pdfdoc"
	"github.com/tgautier-sma/ai-llama/internal/telemetry"
	"github.com/tgautier-sma/ai-llama/internal/workerpool"
)

// NewOCREngine picks the OCR backend named by cfg.OCRBackend.
func NewOCREngine(cfg *config.Config) OCREngine {
	if cfg.OCRBackend == config.OCRBackendHTTP {
		client := NewOCRClient(cfg.OCRServiceURL, cfg.OCRTimeout)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if healthy, err := client.IsHealthy(ctx); err != nil || !healthy {
			logger.Warn("OCR service not ready, requests needing OCR may fail", "url", cfg.OCRServiceURL, "error", err)
		}
		return client
	}

	if !cmdrun.Available(cfg.TesseractPath) {
		logger.Warn("tesseract not found, scanned PDFs will fail", "path", cfg.TesseractPath)
	}
	return NewTesseractEngine(cfg.TesseractPath, cfg.TessdataDir, cmdrun.ExecRunner{})
}

// BuildPDFService wires the pipeline from configuration.
func BuildPDFService(cfg *config.Config, metrics *telemetry.Metrics) *PDFService {
	if !cmdrun.Available(cfg.PdftoppmPath) {
		logger.Warn("pdftoppm not found, OCR and vision mode will fail", "path", cfg.PdftoppmPath)
	}

	loader := pdfdoc.NewLoader(pdfdoc.NewPopplerRasterizer(cfg.PdftoppmPath, cmdrun.ExecRunner{}))
	extractor := NewPDFExtractor(NewOCREngine(cfg), ExtractorOptions{
		MinChars:    cfg.OCRMinChars,
		Languages:   cfg.OCRLanguages,
		OCRZoom:     cfg.OCRZoom,
		PageWorkers: cfg.OCRPageWorkers,
	}, metrics)
	llm := ai.NewCompletionClient(
		ai.WithMetrics(metrics),
		ai.WithCircuitBreaker(cfg.LLMBreakerEnabled),
	)

	return NewPDFService(SettingsFromConfig(cfg), loader, extractor, llm, workerpool.New(cfg.WorkerPoolSize), metrics)
}
