package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-engine/configs"
	"github.com/enterprise/fraud-engine/internal/analytics"
	"github.com/enterprise/fraud-engine/internal/events"
	"github.com/enterprise/fraud-engine/internal/queue"
)

const (
	connectAttempts = 30
	reportInterval  = 30 * time.Second
)

// The kafka-worker does not score transactions. It folds the decision events
// published by the API server and the stream workers into the live counters.
func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := configs.Load()
	setupLogging(cfg.Server.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := queue.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// Live counters only, the aggregate store is not needed here
	liveAnalytics := analytics.NewAnalyticsService(nil, queue.NewCacheClient(redisClient), time.Minute)

	var consumerGroup sarama.ConsumerGroup
	for i := 0; i < connectAttempts; i++ {
		consumerGroup, err = sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, events.NewSaramaConfig())
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("Failed to connect to Kafka, retrying...")
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Kafka consumer group after retries")
	}
	defer consumerGroup.Close()

	go func() {
		for err := range consumerGroup.Errors() {
			log.Error().Err(err).Msg("Kafka consumer error")
		}
	}()

	go reportLive(ctx, liveAnalytics)

	handler := events.NewDecisionConsumer(liveAnalytics.RecordDecision)
	topics := []string{cfg.Kafka.DecisionTopic}

	log.Info().
		Strs("brokers", cfg.Kafka.Brokers).
		Strs("topics", topics).
		Str("group_id", cfg.Kafka.ConsumerGroup).
		Msg("Decision analytics consumer started")

	for {
		if err := consumerGroup.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			log.Error().Err(err).Msg("Error from consumer")
		}

		if ctx.Err() != nil {
			log.Info().Msg("Context cancelled, shutting down decision consumer")
			return
		}
	}
}

func reportLive(ctx context.Context, live *analytics.AnalyticsService) {
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			view, err := live.GetLive(ctx, 1)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to read live counters")
				continue
			}
			log.Info().
				Int64("total", view.Counters.Total).
				Int64("flagged", view.Counters.Flagged).
				Float64("fraud_rate", view.Counters.FraudRate).
				Msg("Live decision counters")
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
