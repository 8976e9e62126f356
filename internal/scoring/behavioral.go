package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/enterprise/fraud-engine/internal/models"
)

// Risk contributions of each behavioral check
const (
	weightMonthlyLimit   = 0.40
	weightAnomalyHigh    = 0.40
	weightAnomalyMedium  = 0.25
	weightPattern        = 0.30
	weightSpendingSpike  = 0.35
	weightGeoDistance    = 0.30
	behavioralHighCutoff = 0.7
)

// BehavioralOutcome is the result of the behavioral stage
type BehavioralOutcome struct {
	Result     *models.FraudResult // nil when nothing fired
	Violations []string
	Analysis   *models.AnalysisBundle
}

// BehavioralRuleEngine checks a transaction against the sender's own history and limits
type BehavioralRuleEngine struct {
	policy *PolicyStore
}

// NewBehavioralRuleEngine creates a behavioral engine reading the geo threshold from policy
func NewBehavioralRuleEngine(policy *PolicyStore) *BehavioralRuleEngine {
	return &BehavioralRuleEngine{policy: policy}
}

// Evaluate runs the monthly limit, amount anomaly, repeated pattern, spending spike and
// geo distance checks in that order. The analysis bundle is returned even when nothing fired.
func (e *BehavioralRuleEngine) Evaluate(tx *models.Transaction, profile *models.ClientProfile) *BehavioralOutcome {
	if profile == nil {
		return &BehavioralOutcome{}
	}

	var (
		violations []string
		risk       float64
		unusual    bool
		velocity   bool
		geo        bool
	)
	analysis := &models.AnalysisBundle{}
	history := profile.History.Entries()
	amount := tx.AmountValue

	// Check 1: monthly limit. A zero limit allows no spend at all.
	projected := profile.CurrentMonthSpend + amount
	analysis.MonthlyLimit = &models.MonthlyLimit{
		Exceeded:       projected > profile.MonthlyLimit,
		CurrentSpend:   profile.CurrentMonthSpend,
		ProjectedSpend: projected,
		Limit:          profile.MonthlyLimit,
	}
	if analysis.MonthlyLimit.Exceeded {
		violations = append(violations, fmt.Sprintf("Monthly limit exceeded: ₹%s > ₹%s",
			formatAmount(projected), formatAmount(profile.MonthlyLimit)))
		risk += weightMonthlyLimit
		unusual = true
	}

	// Check 2: z-score
	if len(history) >= MinAnomalySamples {
		anomaly := DetectAmountAnomaly(amount, history)
		analysis.AmountAnomaly = anomaly
		if anomaly.IsAnomaly {
			violations = append(violations, anomaly.Details)
			if anomaly.Severity == models.SeverityHigh {
				risk += weightAnomalyHigh
			} else {
				risk += weightAnomalyMedium
			}
			unusual = true
		}
	}

	// Check 3: repeated amounts suggest automation
	if len(history) >= MinPatternSamples {
		pattern := DetectRepeatedPattern(amount, history)
		analysis.RepeatedPattern = pattern
		if pattern.IsPattern {
			violations = append(violations, pattern.Details)
			risk += weightPattern
			velocity = true
		}
	}

	// Check 4: spending spike
	if len(history) >= MinSpikeSamples {
		spike := DetectSpendingSpike(amount, history)
		analysis.SpendingSpike = spike
		if spike.IsSpike {
			violations = append(violations, spike.Details)
			risk += weightSpendingSpike
			unusual = true
		}
	}

	// Check 5: distance from home
	if profile.HasLocation() && tx.HasLocation() {
		maxKm := e.policy.Get().MaxGeoDistanceKm
		distance := HaversineKm(*profile.Latitude, *profile.Longitude, *tx.CurrentLatitude, *tx.CurrentLongitude)
		analysis.GeoDistance = &models.GeoDistance{
			Distance:            round2(distance),
			MaxAllowed:          maxKm,
			ProfileLocation:     models.GeoPoint{Lat: *profile.Latitude, Lng: *profile.Longitude},
			TransactionLocation: models.GeoPoint{Lat: *tx.CurrentLatitude, Lng: *tx.CurrentLongitude},
		}
		if distance > maxKm {
			violations = append(violations, fmt.Sprintf("Geographic distance %.2fkm exceeds limit of %skm",
				distance, formatAmount(maxKm)))
			risk += weightGeoDistance
			geo = true
		}
	}

	outcome := &BehavioralOutcome{Analysis: analysis}
	if len(violations) == 0 {
		return outcome
	}

	risk = math.Min(risk, 1.0)
	severity := models.SeverityMedium
	if risk >= behavioralHighCutoff {
		severity = models.SeverityHigh
	}

	outcome.Violations = violations
	outcome.Result = &models.FraudResult{
		IsFraud:                  true,
		RiskScore:                risk,
		FraudSeverity:            severity,
		FlagColor:                models.FlagRed,
		ReasonUnusualAmount:      unusual,
		ReasonGeoDistanceAnomaly: geo,
		ReasonHighVelocity:       velocity,
		ReasonOfFraud:            strings.Join(violations, "; "),
	}
	return outcome
}
