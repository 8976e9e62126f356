package models

import (
	"time"
)

// Transaction is the inbound payment submitted for a fraud decision
type Transaction struct {
	TransactionID        string    `json:"transaction_id" binding:"required"`
	TransactionType      string    `json:"transaction_type"`
	TransactionStatus    string    `json:"transaction_status"`
	TransactionTimestamp time.Time `json:"transaction_timestamp"`
	AmountValue          float64   `json:"amount_value" binding:"gt=0"`
	AmountCurrency       string    `json:"amount_currency"`

	// Sender
	SenderCustomerID     string   `json:"sender_customer_id" binding:"required"`
	SenderUserName       string   `json:"sender_user_name"`
	SenderAccountID      string   `json:"sender_account_id" binding:"required"`
	SenderAccountType    string   `json:"sender_account_type"`
	SenderKYCStatus      string   `json:"sender_kyc_status"`
	SenderAccountAgeDays int      `json:"sender_account_age_days" binding:"gte=0"`
	SenderState          string   `json:"sender_state"`
	SenderCity           string   `json:"sender_city"`
	SenderLatitude       *float64 `json:"sender_latitude,omitempty"`
	SenderLongitude      *float64 `json:"sender_longitude,omitempty"`
	CurrentLatitude      *float64 `json:"current_latitude,omitempty" binding:"omitempty,latitude"`
	CurrentLongitude     *float64 `json:"current_longitude,omitempty" binding:"omitempty,longitude"`

	// Velocity counters are computed upstream
	SenderTxnCount1Min  int     `json:"sender_txn_count_1min" binding:"gte=0"`
	SenderTxnCount10Min int     `json:"sender_txn_count_10min" binding:"gte=0"`
	SenderAmount24Hr    float64 `json:"sender_amount_24hr" binding:"gte=0"`

	// Device
	DeviceType string `json:"device_type"`
	DeviceOS   string `json:"device_os"`
	AppVersion string `json:"app_version"`
	IPRisk     string `json:"ip_risk" binding:"omitempty,oneof=LOW MEDIUM HIGH"`

	// Receiver
	ReceiverType      string `json:"receiver_type"`
	ReceiverBank      string `json:"receiver_bank"`
	ReceiverAccountID string `json:"receiver_account_id"`
	ReceiverUserName  string `json:"receiver_user_name"`
	MerchantCategory  string `json:"merchant_category"`
	MerchantRiskLevel string `json:"merchant_risk_level" binding:"omitempty,oneof=LOW MEDIUM HIGH"`

	PaymentMethod     string `json:"payment_method"`
	AuthorizationType string `json:"authorization_type"`
}

// HasLocation reports whether the live location was captured
func (t *Transaction) HasLocation() bool {
	return t.CurrentLatitude != nil && t.CurrentLongitude != nil
}

// ClientProfile is the durable per-customer behavioral baseline
type ClientProfile struct {
	CustomerID        string         `json:"customer_id"`
	AccountID         string         `json:"account_id"`
	UserName          string         `json:"user_name"`
	AccountType       string         `json:"account_type"`
	AccountAgeDays    int            `json:"account_age_days"`
	KYCStatus         string         `json:"kyc_status"`
	State             string         `json:"state"`
	City              string         `json:"city"`
	Latitude          *float64       `json:"latitude,omitempty"`
	Longitude         *float64       `json:"longitude,omitempty"`
	MonthlyLimit      float64        `json:"monthly_limit"`
	CurrentMonthSpend float64        `json:"current_month_spend"`
	FlaggedScore      int            `json:"flagged_score"`
	History           RollingHistory `json:"last_30_transactions"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// MaxFlaggedScore caps the cumulative flagged-risk score
const MaxFlaggedScore = 100

// HasLocation reports whether the home location is known
func (p *ClientProfile) HasLocation() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// AddFlaggedScore applies an increment and clamps the result into [0, MaxFlaggedScore]
func (p *ClientProfile) AddFlaggedScore(delta int) {
	p.FlaggedScore = ClampFlaggedScore(p.FlaggedScore + delta)
}

// ClampFlaggedScore bounds a flagged score
func ClampFlaggedScore(score int) int {
	if score > MaxFlaggedScore {
		return MaxFlaggedScore
	}
	if score < 0 {
		return 0
	}
	return score
}

// Clone returns a deep copy so callers can mutate without touching shared state
func (p *ClientProfile) Clone() *ClientProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.History = p.History.Clone()
	if p.Latitude != nil {
		lat := *p.Latitude
		c.Latitude = &lat
	}
	if p.Longitude != nil {
		lng := *p.Longitude
		c.Longitude = &lng
	}
	return &c
}

// Severity of a fraud decision
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// FlagColor is the display color derived from severity
type FlagColor string

const (
	FlagGreen  FlagColor = "GREEN"
	FlagOrange FlagColor = "ORANGE"
	FlagRed    FlagColor = "RED"
)

// FlagFor maps a severity to its display color
func FlagFor(s Severity) FlagColor {
	switch s {
	case SeverityHigh:
		return FlagRed
	case SeverityMedium:
		return FlagOrange
	default:
		return FlagGreen
	}
}

// DetectionMethod names the pipeline stage that produced a decision
type DetectionMethod string

const (
	MethodStaticRules DetectionMethod = "STATIC_RULES"
	MethodBehavioral  DetectionMethod = "BEHAVIORAL_ANALYSIS"
	MethodMLModel     DetectionMethod = "ML_MODEL"
	MethodHistorical  DetectionMethod = "HISTORICAL" // replayed from the log
)

// FraudResult is the outcome of a fraud check
type FraudResult struct {
	IsFraud                  bool      `json:"is_fraud"`
	RiskScore                float64   `json:"risk_score"`
	FraudSeverity            Severity  `json:"fraud_severity"`
	FlagColor                FlagColor `json:"flag_color"`
	ReasonUnusualAmount      bool      `json:"fraud_reason_unusual_amount"`
	ReasonGeoDistanceAnomaly bool      `json:"fraud_reason_geo_distance_anomaly"`
	ReasonHighVelocity       bool      `json:"fraud_reason_high_velocity"`
	ReasonOfFraud            string    `json:"reason_of_fraud"`
	MLScores                 *MLScores `json:"ml_scores,omitempty"`
}

// MLScores holds raw sub-scores returned by the external model
type MLScores struct {
	IsoScore      float64 `json:"iso_score"`
	RFProba       float64 `json:"rf_proba"`
	XGBProba      float64 `json:"xgb_proba"`
	EnsembleScore float64 `json:"ensemble_score"`
	Confidence    float64 `json:"confidence"`
}

// AnalysisBundle carries the details of every behavioral check that ran
type AnalysisBundle struct {
	AmountAnomaly   *AmountAnomaly   `json:"amountAnomaly"`
	RepeatedPattern *RepeatedPattern `json:"repeatedPattern"`
	SpendingSpike   *SpendingSpike   `json:"spendingSpike"`
	GeoDistance     *GeoDistance     `json:"geoDistance"`
	MonthlyLimit    *MonthlyLimit    `json:"monthlyLimit"`
}

// AmountAnomaly is the z-score check outcome
type AmountAnomaly struct {
	IsAnomaly bool     `json:"isAnomaly"`
	ZScore    float64  `json:"zScore"`
	Mean      float64  `json:"mean"`
	StdDev    float64  `json:"stdDev"`
	Severity  Severity `json:"severity,omitempty"`
	Details   string   `json:"details"`
}

// RepeatedPattern is the repeated-amount check outcome
type RepeatedPattern struct {
	IsPattern    bool    `json:"isPattern"`
	ExactMatches int     `json:"exactMatches"`
	SimilarCount int     `json:"similarMatches"`
	Frequency    float64 `json:"frequency"` // percentage of history
	Details      string  `json:"details"`
}

// SpendingSpike is the recent-vs-historical average check outcome
type SpendingSpike struct {
	IsSpike       bool    `json:"isSpike"`
	Ratio         float64 `json:"ratio"`
	RecentAvg     float64 `json:"recentAvg"`
	HistoricalAvg float64 `json:"historicalAvg"`
	Details       string  `json:"details"`
}

// GeoPoint is a latitude/longitude pair
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// GeoDistance is the home-vs-live location check outcome
type GeoDistance struct {
	Distance            float64  `json:"distance"`
	MaxAllowed          float64  `json:"maxAllowed"`
	ProfileLocation     GeoPoint `json:"profileLocation"`
	TransactionLocation GeoPoint `json:"transactionLocation"`
}

// MonthlyLimit is the projected monthly spend check outcome
type MonthlyLimit struct {
	Exceeded       bool    `json:"exceeded"`
	CurrentSpend   float64 `json:"currentSpend"`
	ProjectedSpend float64 `json:"projectedSpend"`
	Limit          float64 `json:"limit"`
}

// Decision is the unified output of the detection pipeline
type Decision struct {
	Result            FraudResult     `json:"result"`
	Profile           *ClientProfile  `json:"profile,omitempty"`
	Analysis          *AnalysisBundle `json:"analysis,omitempty"`
	Method            DetectionMethod `json:"detection_method"`
	Violations        []string        `json:"violations,omitempty"`
	PersistenceErrors []string        `json:"persistence_errors,omitempty"`
	Logged            bool            `json:"-"` // the transaction log holds this transaction
}

// TransactionRecord is one row of the append-only transaction log
type TransactionRecord struct {
	Transaction
	FraudResult
	DetectionMethod DetectionMethod `json:"detection_method"`
	Violations      []string        `json:"violations"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NewTransactionRecord builds a log record from a transaction and its outcome
func NewTransactionRecord(tx *Transaction, result FraudResult, method DetectionMethod, violations []string) *TransactionRecord {
	return &TransactionRecord{
		Transaction:     *tx,
		FraudResult:     result,
		DetectionMethod: method,
		Violations:      violations,
		CreatedAt:       time.Now().UTC(),
	}
}

// TransactionEvent is the envelope published to Redis Streams for asynchronous detection
type TransactionEvent struct {
	EventID     string      `json:"event_id"`
	RequestID   string      `json:"request_id"`
	Transaction Transaction `json:"transaction"`
	RetryCount  int         `json:"retry_count"`
	EnqueuedAt  time.Time   `json:"enqueued_at"`
}

// DecisionEvent is published to Kafka for every decision
type DecisionEvent struct {
	TransactionID string          `json:"transaction_id"`
	CustomerID    string          `json:"customer_id"`
	AccountID     string          `json:"account_id"`
	Amount        float64         `json:"amount"`
	IsFraud       bool            `json:"is_fraud"`
	RiskScore     float64         `json:"risk_score"`
	Severity      Severity        `json:"fraud_severity"`
	Method        DetectionMethod `json:"detection_method"`
	DecidedAt     time.Time       `json:"decided_at"`
}

// NewDecisionEvent flattens a decision for downstream consumers
func NewDecisionEvent(tx *Transaction, d *Decision) *DecisionEvent {
	return &DecisionEvent{
		TransactionID: tx.TransactionID,
		CustomerID:    tx.SenderCustomerID,
		AccountID:     tx.SenderAccountID,
		Amount:        tx.AmountValue,
		IsFraud:       d.Result.IsFraud,
		RiskScore:     d.Result.RiskScore,
		Severity:      d.Result.FraudSeverity,
		Method:        d.Method,
		DecidedAt:     time.Now().UTC(),
	}
}
