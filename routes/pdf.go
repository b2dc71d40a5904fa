package routes

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tgautier-sma/ai-llama/internal/ai"
	"github.com/tgautier-sma/ai-llama/internal/logger"
	"github.com/tgautier-sma/ai-llama/internal/pdfdoc"
	"github.com/tgautier-sma/ai-llama/middleware"
	"github.com/tgautier-sma/ai-llama/models"
	"github.com/tgautier-sma/ai-llama/services"
	"github.com/tgautier-sma/ai-llama/utils"
)

const (
	DefaultQuestion  = "Résume ce document en français"
	DefaultMaxTokens = 1024
)

func SetupHealthRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func SetupPDFRoutes(router *gin.Engine, pdfService *services.PDFService, maxFileSize int64) {
	router.POST("/analyze-pdf", func(c *gin.Context) {
		filename, data, ok := readUpload(c, maxFileSize)
		if !ok {
			return
		}

		question := c.DefaultQuery("question", DefaultQuestion)
		maxTokens := DefaultMaxTokens
		if raw := c.Query("max_tokens"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				utils.RespondWithBadRequest(c, "invalid_max_tokens", "max_tokens must be a positive integer")
				return
			}
			maxTokens = n
		}

		result, err := pdfService.Analyze(c.Request.Context(), data, question, maxTokens)
		if err != nil {
			respondPipelineError(c, err, pdfService.Settings().VisionMode)
			return
		}

		logger.Info("analyze-pdf completed",
			"request_id", middleware.GetRequestID(c),
			"filename", filename,
			"vision", result.VisionUsed,
			"response_time", result.ResponseTime,
		)
		c.JSON(http.StatusOK, result)
	})

	router.POST("/extract-text", func(c *gin.Context) {
		filename, data, ok := readUpload(c, maxFileSize)
		if !ok {
			return
		}

		extraction, pages, err := pdfService.ExtractText(c.Request.Context(), data)
		if err != nil {
			respondPipelineError(c, err, false)
			return
		}

		c.JSON(http.StatusOK, models.TextExtraction{
			Filename: filename,
			Pages:    pages,
			Chars:    extraction.CharCount,
			OCRUsed:  extraction.OCRUsed,
			Text:     extraction.Text,
		})
	})
}

// readUpload validates the "file" form field and reads it. The filename
// check comes first so non-PDF uploads are never parsed.
func readUpload(c *gin.Context, maxFileSize int64) (string, []byte, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "request_too_large", "Uploaded file is too large", nil)
			return "", nil, false
		}
		utils.RespondWithBadRequest(c, "no_file", "A PDF must be uploaded in the \"file\" form field")
		return "", nil, false
	}

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		utils.RespondWithBadRequest(c, "invalid_file_type", "File must be a PDF")
		return "", nil, false
	}

	if header.Size > maxFileSize {
		utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "request_too_large",
			fmt.Sprintf("File exceeds the %d MB limit", maxFileSize/(1024*1024)), nil)
		return "", nil, false
	}

	f, err := header.Open()
	if err != nil {
		utils.RespondWithInternalError(c, "upload_read_failed", "Could not read the uploaded file")
		return "", nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxFileSize+1))
	if err != nil {
		utils.RespondWithInternalError(c, "upload_read_failed", "Could not read the uploaded file")
		return "", nil, false
	}
	if int64(len(data)) > maxFileSize {
		utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "request_too_large",
			fmt.Sprintf("File exceeds the %d MB limit", maxFileSize/(1024*1024)), nil)
		return "", nil, false
	}

	return header.Filename, data, true
}

func respondPipelineError(c *gin.Context, err error, visionMode bool) {
	var upstream *ai.UpstreamError

	switch {
	case errors.Is(err, pdfdoc.ErrMalformedDocument):
		utils.RespondWithBadRequest(c, "invalid_pdf", "The file is not a readable PDF")
	case errors.Is(err, services.ErrEmptyExtraction):
		utils.RespondWithBadRequest(c, "extraction_failed", "Could not extract text from the PDF (even with OCR)")
	case errors.Is(err, services.ErrNoImages):
		utils.RespondWithBadRequest(c, "extraction_failed", "Could not extract images from the PDF")
	case errors.As(err, &upstream):
		prefix := "LLM error: "
		if visionMode {
			prefix = "LLM vision error: "
		}
		utils.RespondWithInternalError(c, "llm_error", prefix+upstream.Detail())
	case errors.Is(err, ai.ErrMalformedResponse):
		utils.RespondWithInternalError(c, "llm_error", "LLM error: "+err.Error())
	default:
		logger.Error("PDF request failed", "request_id", middleware.GetRequestID(c), "error", err)
		utils.RespondWithInternalError(c, "internal_error", err.Error())
	}
}
