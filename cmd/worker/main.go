package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/lyrasync/backend/internal/broker"
	"github.com/lyrasync/backend/internal/config"
	"github.com/lyrasync/backend/internal/logger"
	"github.com/lyrasync/backend/internal/metrics"
	"github.com/lyrasync/backend/internal/pipeline"
	"github.com/lyrasync/backend/internal/services"
	"github.com/lyrasync/backend/internal/storage"
	"github.com/lyrasync/backend/internal/telemetry"
)

func main() {
	if err := logger.Initialize(os.Getenv("LOG_LEVEL"), getEnvOrDefault("LOG_FILE", "worker.log")); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Log.Info("=== Translation worker starting ===")

	if err := godotenv.Load(); err != nil {
		logger.Log.Warn("Warning: .env file not found, using system environment variables")
	}

	cfg := config.Load()
	metrics.Initialize()

	var tracerProvider *sdktrace.TracerProvider
	if os.Getenv("OTEL_ENABLED") == "true" {
		tcfg := telemetry.Config{
			ServiceName:  getEnvOrDefault("OTEL_SERVICE_NAME", "translation-worker"),
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
			defer func() {
				if tracerProvider != nil {
					if err := tracerProvider.Shutdown(context.Background()); err != nil {
						logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
					}
				}
			}()
		}
	}

	// The broker may come up after the worker; retry before giving up
	brokerClient, err := broker.NewClientWithRetry(
		cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword, 5, 5*time.Second)
	if err != nil {
		logger.FatalWithFields("Worker could not connect to Redis", err)
	}
	defer brokerClient.Close()

	volume, err := storage.NewVolume(cfg.SharedDataDir)
	if err != nil {
		logger.FatalWithFields("Failed to open shared volume", err)
	}

	clients := pipeline.Clients{
		Separator: services.NewSeparatorClient(cfg.SeparatorURL),
		Aligner:   services.NewAlignerClient(cfg.AlignerURL),
		F0:        services.NewF0Client(cfg.F0URL),
		RMS:       services.NewRMSClient(cfg.RMSURL),
		Drums:     services.NewDrumClient(cfg.DrumURL),
	}

	pipe := pipeline.New(brokerClient, clients, cfg.JobTimeout)
	worker := pipeline.NewWorker(brokerClient, pipe, volume, cfg.WorkerCount)
	worker.Start()

	logger.Log.Info("Worker listening",
		zap.String("queue", broker.TranslationQueue),
		zap.Int("workers", cfg.WorkerCount),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down worker...")
	worker.Stop()
	logger.Log.Info("Worker stopped")
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
