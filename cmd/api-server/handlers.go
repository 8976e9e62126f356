package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-engine/configs"
	"github.com/enterprise/fraud-engine/internal/auth"
	"github.com/enterprise/fraud-engine/internal/ingestion"
	"github.com/enterprise/fraud-engine/internal/models"
	"github.com/enterprise/fraud-engine/internal/repositories"
	"github.com/enterprise/fraud-engine/internal/scoring"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// detectResponse flattens the detection result next to the success flag
type detectResponse struct {
	Success bool `json:"success"`
	*models.DetectionResponse
	PersistenceErrors []string `json:"persistence_errors,omitempty"`
}

func (s *server) detectTransaction(c *gin.Context) {
	var tx models.Transaction
	if err := c.ShouldBindJSON(&tx); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if tx.TransactionTimestamp.IsZero() {
		tx.TransactionTimestamp = time.Now().UTC()
	}

	decision := s.pipeline.Detect(c.Request.Context(), &tx)

	c.JSON(http.StatusOK, detectResponse{
		Success:           true,
		DetectionResponse: models.NewDetectionResponse(&tx, decision),
		PersistenceErrors: decision.PersistenceErrors,
	})
}

func (s *server) ingestTransaction(c *gin.Context) {
	if s.ingestion == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "transaction queue unavailable"})
		return
	}

	var tx models.Transaction
	if err := c.ShouldBindJSON(&tx); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.ingestion.IngestTransaction(c.Request.Context(), &tx, c.GetString(requestIDKey))
	if err != nil {
		log.Error().Err(err).Str("transaction_id", tx.TransactionID).Msg("Failed to ingest transaction")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

func (s *server) ingestBatch(c *gin.Context) {
	if s.ingestion == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "transaction queue unavailable"})
		return
	}

	var req ingestion.BatchTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.ingestion.IngestBatch(c.Request.Context(), &req, c.GetString(requestIDKey))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

func (s *server) recentTransactions(c *gin.Context) {
	records, err := s.txLog.FindRecent(c.Request.Context(), getLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	transactions := make([]*models.DetectionResponse, 0, len(records))
	for _, rec := range records {
		transactions = append(transactions, models.NewHistoricalResponse(rec, nil))
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"count":        len(transactions),
		"transactions": transactions,
	})
}

func (s *server) customerTransactions(c *gin.Context) {
	customerID := c.Param("customerId")
	ctx := c.Request.Context()

	records, err := s.txLog.FindByCustomer(ctx, customerID, getLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	profile, err := s.profiles.FindByCustomerID(ctx, customerID)
	if err != nil && !errors.Is(err, repositories.ErrProfileNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	transactions := make([]*models.DetectionResponse, 0, len(records))
	for _, rec := range records {
		transactions = append(transactions, models.NewHistoricalResponse(rec, nil))
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"customer_id":  customerID,
		"profile":      models.SummarizeProfile(profile),
		"count":        len(transactions),
		"transactions": transactions,
	})
}

type createProfileRequest struct {
	CustomerID     string   `json:"customer_id" binding:"required"`
	AccountID      string   `json:"account_id" binding:"required"`
	UserName       string   `json:"user_name"`
	AccountType    string   `json:"account_type"`
	AccountAgeDays int      `json:"account_age_days" binding:"gte=0"`
	KYCStatus      string   `json:"kyc_status"`
	State          string   `json:"state"`
	City           string   `json:"city"`
	Latitude       *float64 `json:"latitude,omitempty" binding:"omitempty,latitude"`
	Longitude      *float64 `json:"longitude,omitempty" binding:"omitempty,longitude"`
	MonthlyLimit   float64  `json:"monthly_limit" binding:"gt=0"`
}

func (s *server) createProfile(c *gin.Context) {
	var req createProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	profile := &models.ClientProfile{
		CustomerID:     req.CustomerID,
		AccountID:      req.AccountID,
		UserName:       req.UserName,
		AccountType:    req.AccountType,
		AccountAgeDays: req.AccountAgeDays,
		KYCStatus:      req.KYCStatus,
		State:          req.State,
		City:           req.City,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		MonthlyLimit:   req.MonthlyLimit,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.profiles.Create(c.Request.Context(), profile); err != nil {
		if errors.Is(err, repositories.ErrDuplicateProfile) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, profile)
}

func (s *server) getProfile(c *gin.Context) {
	profile, err := s.profiles.FindByCustomerID(c.Request.Context(), c.Param("customerId"))
	if err != nil {
		if errors.Is(err, repositories.ErrProfileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, profile)
}

func (s *server) resetMonthlySpend(c *gin.Context) {
	n, err := s.profiles.ResetMonthlySpend(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	analyst, _ := auth.GetUsernameFromContext(c)
	log.Info().Int64("profiles", n).Str("analyst", analyst).Msg("Monthly spend reset")
	c.JSON(http.StatusOK, gin.H{"reset": n})
}

func (s *server) analyzeGraph(c *gin.Context) {
	c.JSON(http.StatusOK, s.analyzer.Analyze(c.Request.Context()))
}

func (s *server) analyticsSummary(c *gin.Context) {
	summary, err := s.analytics.GetSummary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *server) analyticsTrends(c *gin.Context) {
	trends, err := s.analytics.GetTrends(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, trends)
}

func (s *server) analyticsHourly(c *gin.Context) {
	hourly, err := s.analytics.GetHourly(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, hourly)
}

func (s *server) analyticsLive(c *gin.Context) {
	live, err := s.analytics.GetLive(c.Request.Context(), getIntParam(c, "limit", 20))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, live)
}

func (s *server) getPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, s.policy.Get())
}

func (s *server) updatePolicy(c *gin.Context) {
	var policy configs.FraudConfig
	if err := c.ShouldBindJSON(&policy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.policy.Update(policy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, s.policy.Get())
}

func (s *server) backtestPolicy(c *gin.Context) {
	var req scoring.BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := scoring.ValidatePolicy(req.Policy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.backtest.RunBacktest(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *server) login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.authn.Login(&req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, auth.ErrInvalidCredentials) {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *server) streamDecisions(c *gin.Context) {
	s.hub.ServeWS(c.Writer, c.Request)
}

// Helper functions

func getIntParam(c *gin.Context, key string, defaultValue int) int {
	if val := c.Query(key); val != "" {
		if result, err := strconv.Atoi(val); err == nil && result > 0 {
			return result
		}
	}
	return defaultValue
}

func getLimit(c *gin.Context) int {
	limit := getIntParam(c, "limit", defaultListLimit)
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
