package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/tgautier-sma/ai-llama/internal/config"
	"github.com/tgautier-sma/ai-llama/internal/logger"
	"github.com/tgautier-sma/ai-llama/internal/telemetry"
	"github.com/tgautier-sma/ai-llama/middleware"
	"github.com/tgautier-sma/ai-llama/routes"
	"github.com/tgautier-sma/ai-llama/services"
	"github.com/tgautier-sma/ai-llama/utils"
)

const serviceName = "pdf-llm-service"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	if cfg.TracingEnabled {
		shutdownTracer, err := telemetry.InitTracer(telemetry.TracerSettings{
			ServiceName: serviceName,
			Endpoint:    cfg.OTLPEndpoint,
			SampleRatio: cfg.TracingSampleRatio,
			Environment: cfg.GinMode,
		})
		if err != nil {
			logger.Error("Tracing disabled", "error", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				shutdownTracer(ctx)
			}()
		}
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Warn("Metrics disabled", "error", err)
		metrics = nil
	}

	pdfService := services.BuildPDFService(cfg, metrics)
	logger.Info("PDF pipeline ready",
		"vision_mode", cfg.VisionMode,
		"llm_url", cfg.LLMURL,
		"llm_vision_url", cfg.LLMVisionURL,
		"ocr_backend", cfg.OCRBackend,
		"worker_pool_size", cfg.WorkerPoolSize,
	)

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	if cfg.TracingEnabled {
		router.Use(middleware.TracingMiddleware(serviceName), middleware.EnrichTrace())
	}
	router.Use(middleware.MetricsMiddleware(metrics))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Requested-With", middleware.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	window := time.Duration(cfg.RateLimitWindow) * time.Second
	var limiter middleware.Limiter
	if cfg.RedisURL != "" {
		rdb, err := config.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("Redis unavailable, using in-memory rate limiting", "error", err)
		} else {
			defer rdb.Close()
			limiter = middleware.NewRedisLimiter(rdb, cfg.RateLimitReqs, window)
		}
	}
	if limiter == nil {
		memLimiter := middleware.NewMemoryLimiter(cfg.RateLimitReqs, window)
		memLimiter.StartSweeper(bgCtx, 5*time.Minute)
		limiter = memLimiter
	}
	router.Use(middleware.RateLimitMiddleware(limiter, cfg.RateLimitReqs, window))
	router.Use(middleware.RequestSizeLimit(cfg.MaxFileSize))
	router.MaxMultipartMemory = 32 << 20

	routes.SetupHealthRoutes(router)
	routes.SetupPDFRoutes(router, pdfService, cfg.MaxFileSize)
	router.NoRoute(func(c *gin.Context) {
		utils.RespondWithNotFound(c, "Not Found")
	})

	// The vision timeout bounds the slowest legitimate request.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.VisionTimeout + cfg.TextTimeout,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
