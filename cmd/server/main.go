package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/lyrasync/backend/internal/broker"
	"github.com/lyrasync/backend/internal/config"
	"github.com/lyrasync/backend/internal/handlers"
	"github.com/lyrasync/backend/internal/logger"
	"github.com/lyrasync/backend/internal/metrics"
	"github.com/lyrasync/backend/internal/middleware"
	"github.com/lyrasync/backend/internal/storage"
	"github.com/lyrasync/backend/internal/telemetry"
)

func main() {
	// Initialize structured logging before everything else
	if err := logger.Initialize(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FILE")); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Log.Info("=== Translation gateway starting ===")

	if err := godotenv.Load(); err != nil {
		logger.Log.Warn("Warning: .env file not found, using system environment variables")
	}

	cfg := config.Load()
	metrics.Initialize()

	// OpenTelemetry (opt-in)
	var tracerProvider *sdktrace.TracerProvider
	if os.Getenv("OTEL_ENABLED") == "true" {
		tcfg := telemetry.Config{
			ServiceName:  getEnvOrDefault("OTEL_SERVICE_NAME", "translation-gateway"),
			Environment:  getEnvOrDefault("OTEL_ENVIRONMENT", "development"),
			OTLPEndpoint: getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			Enabled:      true,
			SamplingRate: getEnvFloat("OTEL_TRACE_SAMPLER_RATE", 1.0),
		}

		var tracerErr error
		tracerProvider, tracerErr = telemetry.InitTracer(tcfg)
		if tracerErr != nil {
			logger.Log.Warn("Failed to initialize OpenTelemetry", zap.Error(tracerErr))
		} else {
			logger.Log.Info("✅ OpenTelemetry tracing enabled",
				zap.String("service", tcfg.ServiceName),
				zap.Float64("sampling_rate", tcfg.SamplingRate),
			)
			defer func() {
				if tracerProvider != nil {
					if err := tracerProvider.Shutdown(context.Background()); err != nil {
						logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
					}
				}
			}()
		}
	}

	// Broker connection pool, shared by all requests
	brokerClient, err := broker.NewClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
	if err != nil {
		logger.FatalWithFields("Failed to connect to Redis broker", err)
	}
	defer brokerClient.Close()

	volume, err := storage.NewVolume(cfg.SharedDataDir)
	if err != nil {
		logger.FatalWithFields("Failed to open shared volume", err)
	}

	if len(cfg.AccessCodes) == 0 {
		logger.Log.Warn("No access codes configured; all submissions will be rejected")
	}

	h := handlers.NewHandlers(cfg, brokerClient, volume)

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	if tracerProvider != nil {
		router.Use(otelgin.Middleware("translation-gateway"))
	}
	router.Use(cors.Default())
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/files/"})))

	h.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Log.Info("🚀 Gateway listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalWithFields("Server failed", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down gateway...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.ErrorWithFields("Forced shutdown", err)
	}
	logger.Log.Info("Gateway stopped")
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
