package models

import "time"

// PeriodStats aggregates logged transactions over a time range
type PeriodStats struct {
	TotalTransactions   int     `json:"totalTransactions"`
	TotalAmount         float64 `json:"totalAmount"`
	AvgRiskScore        float64 `json:"avgRiskScore"`
	FlaggedTransactions int     `json:"flaggedTransactions"`
	FlaggedAmount       float64 `json:"flaggedAmount"`
}

// ActivityPoint is the minimal projection of a logged transaction used for trends
type ActivityPoint struct {
	Timestamp time.Time
	IsFraud   bool
	Amount    float64
}

// DailyTrend is one day of the 30-day trend
type DailyTrend struct {
	Date    string  `json:"date"`
	Total   int     `json:"total"`
	Flagged int     `json:"flagged"`
	Amount  float64 `json:"amount"`
}

// LiveCounters are the real-time counters maintained by the decision consumer
type LiveCounters struct {
	Total      int64            `json:"total"`
	Flagged    int64            `json:"flagged"`
	ByMethod   map[string]int64 `json:"by_method"`
	BySeverity map[string]int64 `json:"by_severity"`
	FraudRate  float64          `json:"fraud_rate"`
}
