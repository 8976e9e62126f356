package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-engine/internal/models"
)

// ModelUnavailableReason is reported when the external model could not score a transaction
const ModelUnavailableReason = "model unavailable - transaction approved"

// MLRequest is the body sent to the external model service
type MLRequest struct {
	Transaction MLFeatures `json:"transaction"`
}

// MLFeatures are the model inputs derived from a transaction and its sender's history
type MLFeatures struct {
	Amount                     float64 `json:"amount"`
	TransactionAmountDeviation float64 `json:"Transaction_Amount_Deviation"`
	TransactionFrequency       int     `json:"Transaction_Frequency"`
	DaysSinceLastTransaction   int     `json:"Days_Since_Last_Transaction"`
	Date                       string  `json:"Date"`
	Time                       string  `json:"Time"`
	TransactionStatus          string  `json:"Transaction_Status"`
	TransactionType            string  `json:"Transaction_Type"`
	DeviceOS                   string  `json:"Device_OS"`
	MerchantCategory           string  `json:"Merchant_Category"`
	MerchantRiskLevel          int     `json:"Merchant_Risk_Level"`
}

// MLResponse is the model service answer
type MLResponse struct {
	IsFlagged         bool     `json:"is_flagged"`
	EnsembleScore     *float64 `json:"ensemble_score"`
	Confidence        *float64 `json:"confidence"`
	Severity          string   `json:"severity,omitempty"`
	RecommendedAction string   `json:"recommended_action,omitempty"`
	IsoScore          float64  `json:"iso_score"`
	RFProba           float64  `json:"rf_proba"`
	XGBProba          float64  `json:"xgb_proba"`
}

// ScoreOutcome is either a model response or the reason the model could not answer
type ScoreOutcome struct {
	Response *MLResponse
	Failure  error
}

// OK reports whether the model answered
func (o ScoreOutcome) OK() bool {
	return o.Failure == nil && o.Response != nil
}

// ExternalScorer scores a transaction through a remote model
type ExternalScorer interface {
	Score(ctx context.Context, req *MLRequest) ScoreOutcome
}

// HTTPScorer calls the model service over HTTP
type HTTPScorer struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
}

// NewHTTPScorer creates a scorer that POSTs to endpoint with a per-call timeout
func NewHTTPScorer(endpoint string, timeout time.Duration) *HTTPScorer {
	return &HTTPScorer{
		endpoint:   endpoint,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Score never returns an error; every failure is carried in the outcome
func (s *HTTPScorer) Score(ctx context.Context, req *MLRequest) ScoreOutcome {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return ScoreOutcome{Failure: fmt.Errorf("failed to encode request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return ScoreOutcome{Failure: fmt.Errorf("failed to build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return ScoreOutcome{Failure: fmt.Errorf("model request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return ScoreOutcome{Failure: fmt.Errorf("model returned status %d", resp.StatusCode)}
	}

	var out MLResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ScoreOutcome{Failure: fmt.Errorf("failed to decode model response: %w", err)}
	}
	return ScoreOutcome{Response: &out}
}

// BuildMLRequest derives the model features for tx
func BuildMLRequest(tx *models.Transaction, profile *models.ClientProfile) *MLRequest {
	ts := tx.TransactionTimestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()

	var deviation float64
	daysSinceLast := 1
	if profile != nil && profile.History.Len() > 0 {
		if mean := Mean(profile.History.Amounts()); mean > 0 {
			deviation = math.Round((tx.AmountValue - mean) / mean * 100)
		}
		// whole days elapsed; a same-day repeat is 0
		if latest, ok := profile.History.Latest(); ok && ts.After(latest.Timestamp) {
			daysSinceLast = int(ts.Sub(latest.Timestamp).Hours() / 24)
		}
	}

	frequency := tx.SenderTxnCount10Min
	if frequency == 0 {
		frequency = 1
	}

	return &MLRequest{Transaction: MLFeatures{
		Amount:                     tx.AmountValue,
		TransactionAmountDeviation: deviation,
		TransactionFrequency:       frequency,
		DaysSinceLastTransaction:   daysSinceLast,
		Date:                       ts.Format("2006-01-02"),
		Time:                       ts.Format("15:04:05"),
		TransactionStatus:          orDefault(tx.TransactionStatus, "Success"),
		TransactionType:            orDefault(tx.PaymentMethod, "UPI"),
		DeviceOS:                   orDefault(tx.DeviceOS, "Android"),
		MerchantCategory:           orDefault(tx.MerchantCategory, "Retail"),
		MerchantRiskLevel:          merchantRiskLevel(tx.MerchantRiskLevel),
	}}
}

// MapScoreOutcome converts a model outcome into a fraud result, failing open
func MapScoreOutcome(outcome ScoreOutcome) models.FraudResult {
	if !outcome.OK() {
		return models.FraudResult{
			IsFraud:       false,
			RiskScore:     0.0,
			FraudSeverity: models.SeverityLow,
			FlagColor:     models.FlagGreen,
			ReasonOfFraud: ModelUnavailableReason,
		}
	}

	r := outcome.Response
	var ensemble, confidence float64
	if r.EnsembleScore != nil {
		ensemble = *r.EnsembleScore
	}
	if r.Confidence != nil {
		confidence = *r.Confidence
	}

	risk := ensemble
	if risk == 0 {
		risk = confidence
	}
	isFraud := r.IsFlagged || ensemble > 0.5

	severity := parseSeverity(r.Severity)
	if severity == "" {
		switch {
		case risk > 0.7:
			severity = models.SeverityHigh
		case risk > 0.4:
			severity = models.SeverityMedium
		default:
			severity = models.SeverityLow
		}
	}

	reason := "Transaction approved by ML model"
	if isFraud {
		action := r.RecommendedAction
		if action == "" {
			action = "Flagged by model"
		}
		reason = fmt.Sprintf("ML Detection: %s (Score: %.1f%%)", action, risk*100)
	}

	return models.FraudResult{
		IsFraud:             isFraud,
		RiskScore:           risk,
		FraudSeverity:       severity,
		FlagColor:           models.FlagFor(severity),
		ReasonUnusualAmount: r.IsoScore > 0.5,
		ReasonHighVelocity:  r.RFProba > 0.5,
		ReasonOfFraud:       reason,
		MLScores: &models.MLScores{
			IsoScore:      r.IsoScore,
			RFProba:       r.RFProba,
			XGBProba:      r.XGBProba,
			EnsembleScore: ensemble,
			Confidence:    confidence,
		},
	}
}

// scoreWithModel calls the scorer and logs failures; it never propagates them
func scoreWithModel(ctx context.Context, scorer ExternalScorer, req *MLRequest, txID string) ScoreOutcome {
	outcome := scorer.Score(ctx, req)
	if !outcome.OK() {
		failure := outcome.Failure
		if failure == nil {
			failure = fmt.Errorf("empty model response")
		}
		log.Warn().
			Err(failure).
			Str("transaction_id", txID).
			Msg("External model unavailable, failing open")
		scorerFailures.Inc()
	}
	return outcome
}

func parseSeverity(s string) models.Severity {
	switch models.Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case models.SeverityHigh:
		return models.SeverityHigh
	case models.SeverityMedium:
		return models.SeverityMedium
	case models.SeverityLow:
		return models.SeverityLow
	}
	return ""
}

func merchantRiskLevel(level string) int {
	switch strings.ToUpper(level) {
	case "HIGH":
		return 4
	case "MEDIUM":
		return 2
	default:
		return 1
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
