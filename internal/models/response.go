package models

import "time"

// DetectionResponse is the enriched decision returned to callers and broadcast to dashboards
type DetectionResponse struct {
	Transaction TransactionInfo  `json:"transaction"`
	Sender      SenderInfo       `json:"sender"`
	Device      DeviceInfo       `json:"device"`
	Receiver    ReceiverInfo     `json:"receiver"`
	Fraud       FraudInfo        `json:"fraud"`
	Profile     *ProfileSummary  `json:"profile"`
	Analysis    *AnalysisSummary `json:"analysis"`
	Metadata    ResponseMetadata `json:"metadata"`
}

type TransactionInfo struct {
	TransactionID        string    `json:"transaction_id"`
	TransactionType      string    `json:"transaction_type"`
	TransactionStatus    string    `json:"transaction_status"`
	TransactionTimestamp time.Time `json:"transaction_timestamp"`
	AmountValue          float64   `json:"amount_value"`
	AmountCurrency       string    `json:"amount_currency"`
	PaymentMethod        string    `json:"payment_method"`
	AuthorizationType    string    `json:"authorization_type"`
}

type SenderInfo struct {
	CustomerID       string   `json:"customer_id"`
	UserName         string   `json:"user_name"`
	AccountID        string   `json:"account_id"`
	AccountType      string   `json:"account_type"`
	KYCStatus        string   `json:"kyc_status"`
	AccountAgeDays   int      `json:"account_age_days"`
	State            string   `json:"state"`
	City             string   `json:"city"`
	CurrentLatitude  *float64 `json:"current_latitude"`
	CurrentLongitude *float64 `json:"current_longitude"`
	TxnCount1Min     int      `json:"txn_count_1min"`
	TxnCount10Min    int      `json:"txn_count_10min"`
	Amount24Hr       float64  `json:"amount_24hr"`
}

type DeviceInfo struct {
	DeviceType string `json:"device_type"`
	DeviceOS   string `json:"device_os"`
	AppVersion string `json:"app_version"`
	IPRisk     string `json:"ip_risk"`
}

type ReceiverInfo struct {
	ReceiverType      string `json:"receiver_type"`
	ReceiverBank      string `json:"receiver_bank"`
	AccountID         string `json:"account_id,omitempty"`
	UserName          string `json:"user_name,omitempty"`
	MerchantCategory  string `json:"merchant_category"`
	MerchantRiskLevel string `json:"merchant_risk_level"`
}

type FraudInfo struct {
	IsFraud         bool            `json:"is_fraud"`
	RiskScore       float64         `json:"risk_score"`
	FraudSeverity   Severity        `json:"fraud_severity"`
	FlagColor       FlagColor       `json:"flag_color"`
	ReasonOfFraud   string          `json:"reason_of_fraud"`
	DetectionMethod DetectionMethod `json:"detection_method"`
	Reasons         FraudReasons    `json:"reasons"`
	MLScores        *MLScores       `json:"ml_scores,omitempty"`
}

type FraudReasons struct {
	UnusualAmount      bool `json:"unusual_amount"`
	GeoDistanceAnomaly bool `json:"geo_distance_anomaly"`
	HighVelocity       bool `json:"high_velocity"`
}

// ProfileSummary is the profile view exposed to dashboards
type ProfileSummary struct {
	CustomerID              string   `json:"customer_id"`
	AccountID               string   `json:"account_id"`
	UserName                string   `json:"user_name"`
	AccountType             string   `json:"account_type"`
	AccountAgeDays          int      `json:"account_age_days"`
	KYCStatus               string   `json:"kyc_status"`
	State                   string   `json:"state"`
	City                    string   `json:"city"`
	Latitude                *float64 `json:"latitude"`
	Longitude               *float64 `json:"longitude"`
	MonthlyLimit            float64  `json:"monthly_limit"`
	CurrentMonthSpend       float64  `json:"current_month_spend"`
	FlaggedScore            int      `json:"flagged_score"`
	TransactionHistoryCount int      `json:"transaction_history_count"`
}

type AnalysisSummary struct {
	AmountAnomaly   *AmountAnomaly   `json:"amount_anomaly"`
	RepeatedPattern *RepeatedPattern `json:"repeated_pattern"`
	SpendingSpike   *SpendingSpike   `json:"spending_spike"`
	GeoDistance     *GeoDistance     `json:"geo_distance"`
	MonthlyLimit    *MonthlyLimit    `json:"monthly_limit"`
}

type ResponseMetadata struct {
	ProcessedAt     time.Time       `json:"processed_at"`
	DetectionMethod DetectionMethod `json:"detection_method"`
}

// NewDetectionResponse assembles the response for a freshly decided transaction
func NewDetectionResponse(tx *Transaction, d *Decision) *DetectionResponse {
	resp := baseResponse(tx, d.Result, d.Method)
	resp.Profile = SummarizeProfile(d.Profile)
	if d.Analysis != nil {
		resp.Analysis = &AnalysisSummary{
			AmountAnomaly:   d.Analysis.AmountAnomaly,
			RepeatedPattern: d.Analysis.RepeatedPattern,
			SpendingSpike:   d.Analysis.SpendingSpike,
			GeoDistance:     d.Analysis.GeoDistance,
			MonthlyLimit:    d.Analysis.MonthlyLimit,
		}
	}
	return resp
}

// NewHistoricalResponse formats a logged record, optionally enriched with the current profile
func NewHistoricalResponse(rec *TransactionRecord, profile *ClientProfile) *DetectionResponse {
	resp := baseResponse(&rec.Transaction, rec.FraudResult, MethodHistorical)
	resp.Profile = SummarizeProfile(profile)
	resp.Metadata.ProcessedAt = rec.CreatedAt
	return resp
}

// SummarizeProfile returns nil for a missing profile
func SummarizeProfile(p *ClientProfile) *ProfileSummary {
	if p == nil {
		return nil
	}
	return &ProfileSummary{
		CustomerID:              p.CustomerID,
		AccountID:               p.AccountID,
		UserName:                p.UserName,
		AccountType:             p.AccountType,
		AccountAgeDays:          p.AccountAgeDays,
		KYCStatus:               p.KYCStatus,
		State:                   p.State,
		City:                    p.City,
		Latitude:                p.Latitude,
		Longitude:               p.Longitude,
		MonthlyLimit:            p.MonthlyLimit,
		CurrentMonthSpend:       p.CurrentMonthSpend,
		FlaggedScore:            p.FlaggedScore,
		TransactionHistoryCount: p.History.Len(),
	}
}

func baseResponse(tx *Transaction, r FraudResult, method DetectionMethod) *DetectionResponse {
	return &DetectionResponse{
		Transaction: TransactionInfo{
			TransactionID:        tx.TransactionID,
			TransactionType:      tx.TransactionType,
			TransactionStatus:    tx.TransactionStatus,
			TransactionTimestamp: tx.TransactionTimestamp,
			AmountValue:          tx.AmountValue,
			AmountCurrency:       tx.AmountCurrency,
			PaymentMethod:        tx.PaymentMethod,
			AuthorizationType:    tx.AuthorizationType,
		},
		Sender: SenderInfo{
			CustomerID:       tx.SenderCustomerID,
			UserName:         tx.SenderUserName,
			AccountID:        tx.SenderAccountID,
			AccountType:      tx.SenderAccountType,
			KYCStatus:        tx.SenderKYCStatus,
			AccountAgeDays:   tx.SenderAccountAgeDays,
			State:            tx.SenderState,
			City:             tx.SenderCity,
			CurrentLatitude:  tx.CurrentLatitude,
			CurrentLongitude: tx.CurrentLongitude,
			TxnCount1Min:     tx.SenderTxnCount1Min,
			TxnCount10Min:    tx.SenderTxnCount10Min,
			Amount24Hr:       tx.SenderAmount24Hr,
		},
		Device: DeviceInfo{
			DeviceType: tx.DeviceType,
			DeviceOS:   tx.DeviceOS,
			AppVersion: tx.AppVersion,
			IPRisk:     tx.IPRisk,
		},
		Receiver: ReceiverInfo{
			ReceiverType:      tx.ReceiverType,
			ReceiverBank:      tx.ReceiverBank,
			AccountID:         tx.ReceiverAccountID,
			UserName:          tx.ReceiverUserName,
			MerchantCategory:  tx.MerchantCategory,
			MerchantRiskLevel: tx.MerchantRiskLevel,
		},
		Fraud: FraudInfo{
			IsFraud:         r.IsFraud,
			RiskScore:       r.RiskScore,
			FraudSeverity:   r.FraudSeverity,
			FlagColor:       r.FlagColor,
			ReasonOfFraud:   r.ReasonOfFraud,
			DetectionMethod: method,
			Reasons: FraudReasons{
				UnusualAmount:      r.ReasonUnusualAmount,
				GeoDistanceAnomaly: r.ReasonGeoDistanceAnomaly,
				HighVelocity:       r.ReasonHighVelocity,
			},
			MLScores: r.MLScores,
		},
		Metadata: ResponseMetadata{
			ProcessedAt:     time.Now().UTC(),
			DetectionMethod: method,
		},
	}
}
