package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-engine/configs"
	"github.com/enterprise/fraud-engine/internal/analytics"
	"github.com/enterprise/fraud-engine/internal/events"
	"github.com/enterprise/fraud-engine/internal/queue"
	"github.com/enterprise/fraud-engine/internal/repositories"
	"github.com/enterprise/fraud-engine/internal/scoring"
)

const metricsInterval = time.Minute

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := configs.Load()
	setupLogging(cfg.Server.Environment)

	log.Info().
		Str("environment", cfg.Server.Environment).
		Int("concurrency", cfg.Worker.Concurrency).
		Msg("Starting Fraud Engine Worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := repositories.OpenStores(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open stores")
	}
	defer stores.Close()

	redisClient, err := queue.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	streamClient, err := queue.NewRedisStreamClient(redisClient, cfg.Redis, cfg.Worker.DeadLetterStream)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis Stream")
	}

	policy := scoring.NewPolicyStore(cfg.Fraud)
	pipeline := scoring.NewFraudDecisionPipeline(
		scoring.NewStaticRuleEngine(policy),
		scoring.NewBehavioralRuleEngine(policy),
		scoring.NewHTTPScorer(cfg.Scorer.URL, cfg.Scorer.Timeout),
		stores.Profiles,
		stores.Log,
		scoring.PipelineConfig{
			LogWriteRetries: cfg.Database.LogWriteRetries,
			PersistTimeout:  cfg.Database.PersistTimeout,
		},
	)

	// Decisions leave the worker through Kafka when enabled, otherwise straight into the live counters
	recordLive := analytics.NewAnalyticsService(stores.Analytics, queue.NewCacheClient(redisClient), 30*time.Second).HandleDecision
	if cfg.Kafka.Enabled {
		publisher, err := events.NewDecisionPublisher(cfg.Kafka, 5)
		if err != nil {
			log.Error().Err(err).Msg("Kafka unavailable, recording live analytics in process")
			pipeline.AddSink(recordLive)
		} else {
			defer publisher.Close()
			pipeline.AddSink(publisher.HandleDecision)
		}
	} else {
		pipeline.AddSink(recordLive)
	}

	workerPool := scoring.NewWorkerPool(cfg.Worker.Concurrency, pipeline, streamClient, cfg.Worker)
	workerPool.Start(ctx)

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Received shutdown signal")
			workerPool.Stop()
			log.Info().Interface("metrics", workerPool.GetAggregatedMetrics()).Msg("Worker shutdown complete")
			return
		case <-ticker.C:
			info, err := streamClient.GetStreamInfo(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to read stream info")
			}
			log.Info().
				Interface("metrics", workerPool.GetAggregatedMetrics()).
				Interface("stream", info).
				Msg("Worker pool status")
		}
	}
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
