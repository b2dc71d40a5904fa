package config

import (
	"fmt"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	OCRBackendTesseract = "tesseract"
	OCRBackendHTTP      = "http"

	// Upper bound on pages sent to the vision model.
	MaxVisionPages = 3
)

type Config struct {
	Port        string
	GinMode     string
	LogLevel    string
	CORSOrigins []string
	MaxFileSize int64

	// LLM endpoints
	LLMURL            string
	LLMVisionURL      string
	VisionMode        bool
	Temperature       float64
	TextTimeout       time.Duration
	VisionTimeout     time.Duration
	LLMBreakerEnabled bool

	// Extraction
	MaxPromptChars int
	OCRMinChars    int
	OCRLanguages   []string
	OCRZoom        float64
	VisionZoom     float64
	VisionMaxPages int

	// OCR backend
	OCRBackend    string
	OCRServiceURL string
	OCRTimeout    time.Duration
	TesseractPath string
	TessdataDir   string
	PdftoppmPath  string

	// Worker pool
	WorkerPoolSize int
	OCRPageWorkers int

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Redis Configuration (optional, enables shared rate limiting)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Tracing
	TracingEnabled     bool
	OTLPEndpoint       string
	TracingSampleRatio float64
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8000"),
		GinMode:     getEnv("GIN_MODE", "release"),
		LogLevel:    getEnv("LOG_LEVEL", ""),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
		MaxFileSize: getEnvInt64("MAX_FILE_SIZE", 52428800), // 50MB

		LLMURL:            getEnv("LLAMA_URL", "http://llama-server:8080"),
		LLMVisionURL:      getEnv("LLAMA_URL_VISION", "http://llama-server-vision:8080"),
		VisionMode:        getEnvBool("VISION_MODE", false),
		Temperature:       getEnvFloat64("LLM_TEMPERATURE", 0.7),
		TextTimeout:       getEnvDuration("LLM_TEXT_TIMEOUT", 120*time.Second),
		VisionTimeout:     getEnvDuration("LLM_VISION_TIMEOUT", 180*time.Second),
		LLMBreakerEnabled: getEnvBool("LLM_BREAKER_ENABLED", true),

		MaxPromptChars: getEnvInt("MAX_PROMPT_CHARS", 4000),
		OCRMinChars:    getEnvInt("OCR_MIN_CHARS", 100),
		OCRLanguages:   splitList(getEnv("OCR_LANGUAGES", "fra,eng")),
		OCRZoom:        getEnvFloat64("OCR_ZOOM", 2.0),
		VisionZoom:     getEnvFloat64("VISION_ZOOM", 1.5),
		VisionMaxPages: getEnvInt("VISION_MAX_PAGES", MaxVisionPages),

		OCRBackend:    strings.ToLower(getEnv("OCR_BACKEND", OCRBackendTesseract)),
		OCRServiceURL: getEnv("OCR_SERVICE_URL", "http://localhost:8001"),
		OCRTimeout:    getEnvDuration("OCR_TIMEOUT", 60*time.Second),
		TesseractPath: getEnv("TESSERACT_PATH", "tesseract"),
		TessdataDir:   getEnv("TESSDATA_DIR", ""),
		PdftoppmPath:  getEnv("PDFTOPPM_PATH", "pdftoppm"),

		WorkerPoolSize: getEnvInt("WORKER_POOL_SIZE", runtime.NumCPU()),
		OCRPageWorkers: getEnvInt("OCR_PAGE_WORKERS", 2),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		RedisURL:      getEnv("REDIS_URL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		TracingEnabled:     getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRatio: getEnvFloat64("TRACING_SAMPLE_RATIO", 0.1),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges and clamps the vision page count.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{"LLAMA_URL": c.LLMURL, "LLAMA_URL_VISION": c.LLMVisionURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}

	if c.MaxPromptChars <= 0 {
		return fmt.Errorf("MAX_PROMPT_CHARS must be positive")
	}
	if c.OCRMinChars < 0 {
		return fmt.Errorf("OCR_MIN_CHARS must not be negative")
	}
	if c.OCRZoom <= 0 || c.VisionZoom <= 0 {
		return fmt.Errorf("OCR_ZOOM and VISION_ZOOM must be positive")
	}
	if len(c.OCRLanguages) == 0 {
		return fmt.Errorf("OCR_LANGUAGES is required")
	}
	if c.TextTimeout <= 0 || c.VisionTimeout <= 0 {
		return fmt.Errorf("LLM timeouts must be positive")
	}

	switch c.OCRBackend {
	case OCRBackendTesseract, OCRBackendHTTP:
	default:
		return fmt.Errorf("OCR_BACKEND must be %q or %q, got %q", OCRBackendTesseract, OCRBackendHTTP, c.OCRBackend)
	}

	if c.VisionMaxPages < 1 {
		c.VisionMaxPages = 1
	}
	if c.VisionMaxPages > MaxVisionPages {
		c.VisionMaxPages = MaxVisionPages
	}
	if c.WorkerPoolSize < 1 {
		c.WorkerPoolSize = 1
	}
	if c.OCRPageWorkers < 1 {
		c.OCRPageWorkers = 1
	}

	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}
