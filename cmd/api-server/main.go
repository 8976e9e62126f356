package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-engine/configs"
	"github.com/enterprise/fraud-engine/internal/analytics"
	"github.com/enterprise/fraud-engine/internal/auth"
	"github.com/enterprise/fraud-engine/internal/events"
	"github.com/enterprise/fraud-engine/internal/graph"
	"github.com/enterprise/fraud-engine/internal/ingestion"
	"github.com/enterprise/fraud-engine/internal/queue"
	"github.com/enterprise/fraud-engine/internal/repositories"
	"github.com/enterprise/fraud-engine/internal/scoring"
	"github.com/enterprise/fraud-engine/internal/stream"
)

const summaryCacheTTL = 30 * time.Second

func main() {
	// api-server hash-password <password> prints a value for ANALYST_PASSWORD_HASH
	if len(os.Args) == 3 && os.Args[1] == "hash-password" {
		hash, err := auth.HashPassword(os.Args[2])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	// Load .env file if exists
	_ = godotenv.Load()

	cfg := configs.Load()
	setupLogging(cfg.Server.Environment)

	log.Info().
		Str("environment", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Str("store_driver", cfg.Database.Driver).
		Msg("Starting Fraud Engine API Server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := repositories.OpenStores(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open stores")
	}
	defer stores.Close()

	checks := []healthCheck{{name: "database", check: stores.HealthCheck}}

	// Redis is optional for synchronous detection
	var (
		ingestionService *ingestion.IngestionService
		analyticsCache   analytics.Cache
		graphCache       graph.ReportCache
	)
	redisClient, err := queue.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, async ingestion and caching disabled")
	} else {
		defer redisClient.Close()
		cacheClient := queue.NewCacheClient(redisClient)
		analyticsCache, graphCache = cacheClient, cacheClient
		checks = append(checks, healthCheck{name: "redis", check: cacheClient.Ping})

		streamClient, err := queue.NewRedisStreamClient(redisClient, cfg.Redis, cfg.Worker.DeadLetterStream)
		if err != nil {
			log.Warn().Err(err).Msg("Redis Stream unavailable, async ingestion disabled")
		} else {
			ingestionService = ingestion.NewIngestionService(streamClient)
		}
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

	hub := stream.NewHub()
	go hub.Run(ctx)
	pipeline.AddSink(hub.HandleDecision)

	analyticsService := analytics.NewAnalyticsService(stores.Analytics, analyticsCache, summaryCacheTTL)
	// With Kafka enabled the kafka-worker maintains the live counters
	if cfg.Kafka.Enabled {
		publisher, err := events.NewDecisionPublisher(cfg.Kafka, 5)
		if err != nil {
			log.Error().Err(err).Msg("Kafka unavailable, recording live analytics in process")
			pipeline.AddSink(analyticsService.HandleDecision)
		} else {
			defer publisher.Close()
			pipeline.AddSink(publisher.HandleDecision)
		}
	} else {
		pipeline.AddSink(analyticsService.HandleDecision)
	}

	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiration)

	srvDeps := &server{
		pipeline:   pipeline,
		policy:     policy,
		backtest:   scoring.NewBacktestService(stores.Log),
		profiles:   stores.Profiles,
		txLog:      stores.Log,
		ingestion:  ingestionService,
		analyzer:   graph.NewAnalyzer(stores.Log, graphCache, cfg.Graph),
		analytics:  analyticsService,
		hub:        hub,
		authn:      auth.NewAuthenticator(cfg.Analyst, jwtManager),
		jwtManager: jwtManager,
		checks:     checks,
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	limiter := NewRateLimiter(cfg.Server.RateLimit, time.Minute)
	go limiter.Run(ctx.Done())

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newRouter(srvDeps, limiter),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func newRouter(s *server, limiter *RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware())
	router.Use(corsMiddleware())
	if limiter != nil {
		router.Use(rateLimitMiddleware(limiter))
	}

	setupRoutes(router, s)
	return router
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
