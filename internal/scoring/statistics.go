package scoring

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/enterprise/fraud-engine/internal/models"
)

// Minimum history sizes for each statistical check
const (
	MinAnomalySamples = 5
	MinPatternSamples = 3
	MinSpikeSamples   = 10

	spikeRecentWindow   = 5
	patternTolerance    = 0.05
	patternMinFreq      = 0.30
	patternMinMatches   = 3
	anomalyZThreshold   = 2.0
	anomalyZHigh        = 3.0
	spikeRatioThreshold = 2.0
)

// Mean returns the arithmetic mean, 0 for an empty series
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation around mean, 0 for fewer than two values
func StdDev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(len(values)))
}

// ZScore returns how many standard deviations value lies from mean, 0 when stddev is 0
func ZScore(value, mean, stddev float64) float64 {
	if stddev == 0 {
		return 0
	}
	return (value - mean) / stddev
}

// DetectAmountAnomaly runs a two-sided z-score test of amount against the history
func DetectAmountAnomaly(amount float64, history []models.HistoryEntry) *models.AmountAnomaly {
	if len(history) < MinAnomalySamples {
		return &models.AmountAnomaly{Details: "Insufficient data for analysis"}
	}

	amounts := amountsOf(history)
	mean := Mean(amounts)
	stddev := StdDev(amounts, mean)
	z := ZScore(amount, mean, stddev)
	absZ := math.Abs(z)

	result := &models.AmountAnomaly{
		IsAnomaly: absZ > anomalyZThreshold,
		ZScore:    round2(z),
		Mean:      round2(mean),
		StdDev:    round2(stddev),
		Severity:  models.SeverityLow,
		Details:   "Amount is within normal range",
	}
	switch {
	case absZ > anomalyZHigh:
		result.Severity = models.SeverityHigh
	case absZ > anomalyZThreshold:
		result.Severity = models.SeverityMedium
	}
	if result.IsAnomaly {
		result.Details = fmt.Sprintf("Amount ₹%s is %.1f std deviations from average ₹%.0f",
			formatAmount(amount), absZ, mean)
	}
	return result
}

// DetectRepeatedPattern flags amounts that recur within a 5% band too often to be organic
func DetectRepeatedPattern(amount float64, history []models.HistoryEntry) *models.RepeatedPattern {
	if len(history) < MinPatternSamples {
		return &models.RepeatedPattern{Details: "Insufficient data"}
	}

	tolerance := amount * patternTolerance
	var exact, similar int
	for _, h := range history {
		if h.Amount == amount {
			exact++
		}
		if math.Abs(h.Amount-amount) <= tolerance {
			similar++
		}
	}

	freq := float64(similar) / float64(len(history))
	result := &models.RepeatedPattern{
		IsPattern:    freq > patternMinFreq && similar >= patternMinMatches,
		ExactMatches: exact,
		SimilarCount: similar,
		Frequency:    math.Round(freq * 100),
		Details:      "No suspicious patterns detected",
	}
	if result.IsPattern {
		result.Details = fmt.Sprintf("Repeated amount pattern: ₹%s appears %d times (%.0f%% of transactions)",
			formatAmount(amount), similar, result.Frequency)
	}
	return result
}

// DetectSpendingSpike compares the five most recent amounts, blended with the candidate,
// to the older part of the history
func DetectSpendingSpike(amount float64, history []models.HistoryEntry) *models.SpendingSpike {
	if len(history) < MinSpikeSamples {
		return &models.SpendingSpike{Details: "Insufficient data"}
	}

	sorted := make([]models.HistoryEntry, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	recent := sorted[:spikeRecentWindow]
	historical := sorted[spikeRecentWindow:]
	if len(historical) < spikeRecentWindow {
		return &models.SpendingSpike{Details: "Insufficient historical data"}
	}

	recentAvg := Mean(amountsOf(recent))
	historicalAvg := Mean(amountsOf(historical))
	recentWithCurrent := (recentAvg*float64(len(recent)) + amount) / float64(len(recent)+1)

	var ratio float64
	if historicalAvg > 0 {
		ratio = recentWithCurrent / historicalAvg
	}

	result := &models.SpendingSpike{
		IsSpike:       ratio > spikeRatioThreshold,
		Ratio:         round2(ratio),
		RecentAvg:     math.Round(recentWithCurrent),
		HistoricalAvg: math.Round(historicalAvg),
		Details:       "Spending pattern is normal",
	}
	if result.IsSpike {
		result.Details = fmt.Sprintf("Spending spike detected: Recent avg ₹%.0f is %.1fx historical avg ₹%.0f",
			result.RecentAvg, ratio, result.HistoricalAvg)
	}
	return result
}

func amountsOf(entries []models.HistoryEntry) []float64 {
	out := make([]float64, len(entries))
	for i, e := range entries {
		out[i] = e.Amount
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
