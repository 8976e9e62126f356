package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/enterprise/fraud-engine/internal/analytics"
	"github.com/enterprise/fraud-engine/internal/auth"
	"github.com/enterprise/fraud-engine/internal/graph"
	"github.com/enterprise/fraud-engine/internal/ingestion"
	"github.com/enterprise/fraud-engine/internal/repositories"
	"github.com/enterprise/fraud-engine/internal/scoring"
	"github.com/enterprise/fraud-engine/internal/stream"
)

// healthCheck reports whether one dependency is reachable
type healthCheck struct {
	name  string
	check func(ctx context.Context) error
}

// server holds the services behind the HTTP handlers
type server struct {
	pipeline   *scoring.FraudDecisionPipeline
	policy     *scoring.PolicyStore
	backtest   *scoring.BacktestService
	profiles   repositories.ProfileStore
	txLog      repositories.TransactionLog
	ingestion  *ingestion.IngestionService // nil when the queue is unavailable
	analyzer   *graph.Analyzer
	analytics  *analytics.AnalyticsService
	hub        *stream.Hub
	authn      *auth.Authenticator
	jwtManager *auth.JWTManager
	checks     []healthCheck
}

func setupRoutes(router *gin.Engine, s *server) {
	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	v1.POST("/auth/login", s.login)
	v1.GET("/stream", s.streamDecisions)

	txRoutes := v1.Group("/transactions")
	{
		txRoutes.POST("/detect", s.detectTransaction)
		txRoutes.POST("/ingest", s.ingestTransaction)
		txRoutes.POST("/ingest/batch", s.ingestBatch)
		txRoutes.GET("/recent", s.recentTransactions)
		txRoutes.GET("/customer/:customerId", s.customerTransactions)
	}

	profileRoutes := v1.Group("/profiles")
	{
		profileRoutes.POST("", s.createProfile)
		profileRoutes.GET("/:customerId", s.getProfile)
	}

	// Analyst routes
	protected := v1.Group("")
	protected.Use(auth.AuthMiddleware(s.jwtManager), auth.RoleMiddleware(auth.RoleAnalyst))

	protected.GET("/graph/analyze", s.analyzeGraph)

	analyticsRoutes := protected.Group("/analytics")
	{
		analyticsRoutes.GET("/summary", s.analyticsSummary)
		analyticsRoutes.GET("/trends", s.analyticsTrends)
		analyticsRoutes.GET("/hourly", s.analyticsHourly)
		analyticsRoutes.GET("/live", s.analyticsLive)
	}

	rulesRoutes := protected.Group("/rules")
	{
		rulesRoutes.GET("/policy", s.getPolicy)
		rulesRoutes.PUT("/policy", s.updatePolicy)
		rulesRoutes.POST("/policy/backtest", s.backtestPolicy)
	}

	protected.POST("/profiles/reset-monthly-spend", s.resetMonthlySpend)
}

func (s *server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	components := gin.H{}
	for _, hc := range s.checks {
		if err := hc.check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			components[hc.name] = err.Error()
			continue
		}
		components[hc.name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":         state,
		"components":     components,
		"stream_clients": s.hub.ClientCount(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}
