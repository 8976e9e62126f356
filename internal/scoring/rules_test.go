package scoring

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/fraud-engine/configs"
	"github.com/enterprise/fraud-engine/internal/models"
)

func floatPtr(v float64) *float64 { return &v }

func normalTransaction() *models.Transaction {
	return &models.Transaction{
		TransactionID:       "TXN-1",
		AmountValue:         2500,
		SenderCustomerID:    "CUST-1",
		SenderAccountID:     "ACC-1",
		SenderTxnCount1Min:  1,
		SenderTxnCount10Min: 2,
		SenderAmount24Hr:    10000,
	}
}

func TestStaticRuleEngine_SingleAmount(t *testing.T) {
	engine := NewStaticRuleEngine(NewPolicyStore(configs.DefaultFraudConfig()))
	tx := normalTransaction()
	tx.AmountValue = 200000
	tx.SenderAmount24Hr = 0

	result, violations, fired := engine.Evaluate(tx)
	require.True(t, fired)
	assert.True(t, result.IsFraud)
	assert.Equal(t, 1.0, result.RiskScore)
	assert.Equal(t, models.SeverityHigh, result.FraudSeverity)
	assert.Equal(t, models.FlagRed, result.FlagColor)
	assert.True(t, result.ReasonUnusualAmount)
	assert.False(t, result.ReasonHighVelocity)
	assert.False(t, result.ReasonGeoDistanceAnomaly)
	assert.Equal(t, []string{"Amount 200000 exceeds single transaction limit of 100000 INR"}, violations)
	assert.Equal(t, violations[0], result.ReasonOfFraud)
}

func TestStaticRuleEngine_AllRulesInOrder(t *testing.T) {
	engine := NewStaticRuleEngine(NewPolicyStore(configs.DefaultFraudConfig()))
	tx := normalTransaction()
	tx.AmountValue = 150000
	tx.SenderTxnCount1Min = 5
	tx.SenderTxnCount10Min = 20
	tx.SenderAmount24Hr = 300000

	result, violations, fired := engine.Evaluate(tx)
	require.True(t, fired)
	assert.Equal(t, []string{
		"Amount 150000 exceeds single transaction limit of 100000 INR",
		"Transaction count in 1 minute (5) exceeds limit of 3",
		"Transaction count in 10 minutes (20) exceeds limit of 10",
		"24-hour transaction amount (300000) exceeds limit of 200000 INR",
	}, violations)
	assert.Equal(t, strings.Join(violations, "; "), result.ReasonOfFraud)
	assert.True(t, result.ReasonUnusualAmount)
	assert.True(t, result.ReasonHighVelocity)
}

func TestStaticRuleEngine_VelocityOnly(t *testing.T) {
	engine := NewStaticRuleEngine(NewPolicyStore(configs.DefaultFraudConfig()))
	tx := normalTransaction()
	tx.SenderTxnCount10Min = 11

	result, _, fired := engine.Evaluate(tx)
	require.True(t, fired)
	assert.False(t, result.ReasonUnusualAmount)
	assert.False(t, result.ReasonHighVelocity)
}

func TestStaticRuleEngine_NoDecision(t *testing.T) {
	engine := NewStaticRuleEngine(NewPolicyStore(configs.DefaultFraudConfig()))

	result, violations, fired := engine.Evaluate(normalTransaction())
	assert.False(t, fired)
	assert.Nil(t, result)
	assert.Empty(t, violations)

	// Limits are inclusive
	tx := normalTransaction()
	tx.AmountValue = 100000
	tx.SenderTxnCount1Min = 3
	tx.SenderTxnCount10Min = 10
	tx.SenderAmount24Hr = 200000
	_, _, fired = engine.Evaluate(tx)
	assert.False(t, fired)
}

func TestStaticRuleEngine_PolicyUpdate(t *testing.T) {
	policy := NewPolicyStore(configs.DefaultFraudConfig())
	engine := NewStaticRuleEngine(policy)

	updated := configs.DefaultFraudConfig()
	updated.MaxSingleTransaction = 1000
	require.NoError(t, policy.Update(updated))

	_, violations, fired := engine.Evaluate(normalTransaction())
	require.True(t, fired)
	assert.Equal(t, "Amount 2500 exceeds single transaction limit of 1000 INR", violations[0])

	invalid := configs.DefaultFraudConfig()
	invalid.MaxAmount24Hr = 0
	assert.Error(t, policy.Update(invalid))
	assert.Equal(t, 1000.0, policy.Get().MaxSingleTransaction)
}

func TestBehavioralRuleEngine_NoProfileSkipsStage(t *testing.T) {
	engine := NewBehavioralRuleEngine(NewPolicyStore(configs.DefaultFraudConfig()))

	outcome := engine.Evaluate(normalTransaction(), nil)
	assert.Nil(t, outcome.Result)
	assert.Nil(t, outcome.Analysis)
	assert.Empty(t, outcome.Violations)
}

func TestBehavioralRuleEngine_CleanProfile(t *testing.T) {
	engine := NewBehavioralRuleEngine(NewPolicyStore(configs.DefaultFraudConfig()))
	profile := &models.ClientProfile{CustomerID: "CUST-1", MonthlyLimit: 100000}

	outcome := engine.Evaluate(normalTransaction(), profile)
	assert.Nil(t, outcome.Result)
	require.NotNil(t, outcome.Analysis)
	require.NotNil(t, outcome.Analysis.MonthlyLimit)
	assert.False(t, outcome.Analysis.MonthlyLimit.Exceeded)
	assert.Nil(t, outcome.Analysis.AmountAnomaly)
	assert.Nil(t, outcome.Analysis.RepeatedPattern)
	assert.Nil(t, outcome.Analysis.SpendingSpike)
	assert.Nil(t, outcome.Analysis.GeoDistance)
}

func TestBehavioralRuleEngine_MonthlyLimit(t *testing.T) {
	engine := NewBehavioralRuleEngine(NewPolicyStore(configs.DefaultFraudConfig()))
	profile := &models.ClientProfile{CustomerID: "CUST-1", MonthlyLimit: 10000, CurrentMonthSpend: 9000}

	outcome := engine.Evaluate(normalTransaction(), profile)
	require.NotNil(t, outcome.Result)
	assert.True(t, outcome.Result.IsFraud)
	assert.InDelta(t, 0.40, outcome.Result.RiskScore, 1e-9)
	assert.Equal(t, models.SeverityMedium, outcome.Result.FraudSeverity)
	assert.Equal(t, models.FlagRed, outcome.Result.FlagColor)
	assert.True(t, outcome.Result.ReasonUnusualAmount)
	assert.Equal(t, []string{"Monthly limit exceeded: ₹11500 > ₹10000"}, outcome.Violations)

	require.NotNil(t, outcome.Analysis.MonthlyLimit)
	assert.Equal(t, 11500.0, outcome.Analysis.MonthlyLimit.ProjectedSpend)
}

func TestBehavioralRuleEngine_ZeroMonthlyLimit(t *testing.T) {
	engine := NewBehavioralRuleEngine(NewPolicyStore(configs.DefaultFraudConfig()))
	profile := &models.ClientProfile{CustomerID: "CUST-1"}
	tx := normalTransaction()
	tx.AmountValue = 500

	outcome := engine.Evaluate(tx, profile)
	require.NotNil(t, outcome.Result)
	assert.True(t, outcome.Result.IsFraud)
	assert.True(t, outcome.Result.ReasonUnusualAmount)
	assert.Equal(t, []string{"Monthly limit exceeded: ₹500 > ₹0"}, outcome.Violations)
	require.NotNil(t, outcome.Analysis.MonthlyLimit)
	assert.True(t, outcome.Analysis.MonthlyLimit.Exceeded)
	assert.Zero(t, outcome.Analysis.MonthlyLimit.Limit)
}

func TestBehavioralRuleEngine_GeoDistance(t *testing.T) {
	engine := NewBehavioralRuleEngine(NewPolicyStore(configs.DefaultFraudConfig()))
	// Mumbai home, Delhi live location: roughly 1150 km apart
	profile := &models.ClientProfile{
		CustomerID:   "CUST-1",
		MonthlyLimit: 100000,
		Latitude:     floatPtr(19.0760),
		Longitude:    floatPtr(72.8777),
	}
	tx := normalTransaction()
	tx.CurrentLatitude = floatPtr(28.7041)
	tx.CurrentLongitude = floatPtr(77.1025)

	outcome := engine.Evaluate(tx, profile)
	require.NotNil(t, outcome.Result)
	assert.True(t, outcome.Result.ReasonGeoDistanceAnomaly)
	assert.False(t, outcome.Result.ReasonUnusualAmount)
	assert.InDelta(t, 0.30, outcome.Result.RiskScore, 1e-9)
	require.Len(t, outcome.Violations, 1)
	assert.Contains(t, outcome.Violations[0], "exceeds limit of 500km")

	geo := outcome.Analysis.GeoDistance
	require.NotNil(t, geo)
	assert.InDelta(t, 1150, geo.Distance, 20)
	assert.Equal(t, 500.0, geo.MaxAllowed)
}

func TestBehavioralRuleEngine_GeoRequiresBothLocations(t *testing.T) {
	engine := NewBehavioralRuleEngine(NewPolicyStore(configs.DefaultFraudConfig()))
	profile := &models.ClientProfile{CustomerID: "CUST-1", MonthlyLimit: 100000, Latitude: floatPtr(19.07), Longitude: floatPtr(72.87)}

	outcome := engine.Evaluate(normalTransaction(), profile)
	assert.Nil(t, outcome.Result)
	assert.Nil(t, outcome.Analysis.GeoDistance)
}

func TestBehavioralRuleEngine_AccumulatesAndCaps(t *testing.T) {
	engine := NewBehavioralRuleEngine(NewPolicyStore(configs.DefaultFraudConfig()))
	profile := &models.ClientProfile{
		CustomerID:   "CUST-1",
		MonthlyLimit: 5000,
		Latitude:     floatPtr(19.0760),
		Longitude:    floatPtr(72.8777),
		History:      models.NewRollingHistory(historyOf(90, 110, 90, 110, 90, 110, 90, 110, 90, 110)...),
	}
	tx := normalTransaction()
	tx.AmountValue = 10000
	tx.CurrentLatitude = floatPtr(28.7041)
	tx.CurrentLongitude = floatPtr(77.1025)

	outcome := engine.Evaluate(tx, profile)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, 1.0, outcome.Result.RiskScore)
	assert.Equal(t, models.SeverityHigh, outcome.Result.FraudSeverity)
	assert.True(t, outcome.Result.ReasonUnusualAmount)
	assert.True(t, outcome.Result.ReasonGeoDistanceAnomaly)
	assert.False(t, outcome.Result.ReasonHighVelocity)

	// monthly limit, anomaly, spike, geo in that order
	require.Len(t, outcome.Violations, 4)
	assert.True(t, strings.HasPrefix(outcome.Violations[0], "Monthly limit exceeded"))
	assert.Contains(t, outcome.Violations[1], "std deviations")
	assert.Contains(t, outcome.Violations[2], "Spending spike detected")
	assert.Contains(t, outcome.Violations[3], "Geographic distance")
	assert.Equal(t, strings.Join(outcome.Violations, "; "), outcome.Result.ReasonOfFraud)

	assert.NotNil(t, outcome.Analysis.RepeatedPattern)
	assert.False(t, outcome.Analysis.RepeatedPattern.IsPattern)
}

func TestBehavioralRuleEngine_RepeatedPatternSetsVelocity(t *testing.T) {
	engine := NewBehavioralRuleEngine(NewPolicyStore(configs.DefaultFraudConfig()))
	profile := &models.ClientProfile{
		CustomerID:   "CUST-1",
		MonthlyLimit: 100000,
		History:      models.NewRollingHistory(historyOf(2500, 2500, 2500)...),
	}

	outcome := engine.Evaluate(normalTransaction(), profile)
	require.NotNil(t, outcome.Result)
	assert.True(t, outcome.Result.ReasonHighVelocity)
	assert.InDelta(t, 0.30, outcome.Result.RiskScore, 1e-9)
	assert.Equal(t, models.SeverityMedium, outcome.Result.FraudSeverity)
}

func TestHaversineKm(t *testing.T) {
	assert.Equal(t, 0.0, HaversineKm(12.97, 77.59, 12.97, 77.59))
	// One degree of latitude is about 111.2 km
	assert.InDelta(t, 111.19, HaversineKm(0, 0, 1, 0), 0.01)
}
