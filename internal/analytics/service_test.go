package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/fraud-engine/internal/models"
	"github.com/enterprise/fraud-engine/internal/repositories"
)

var now = time.Date(2026, 6, 15, 14, 30, 0, 0, time.UTC)

// memoryCache keeps values as JSON, like the Redis client
type memoryCache struct {
	mu     sync.Mutex
	values map[string][]byte
	hashes map[string]map[string]int64
	lists  map[string][]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		values: map[string][]byte{},
		hashes: map[string]map[string]int64{},
		lists:  map[string][]string{},
	}
}

func (c *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.values[key]
	if !ok {
		return errors.New("miss")
	}
	return json.Unmarshal(data, dest)
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = data
	return nil
}

func (c *memoryCache) IncrementCounters(_ context.Context, key string, fields map[string]int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.hashes[key]
	if !ok {
		h = map[string]int64{}
		c.hashes[key] = h
	}
	for f, n := range fields {
		h[f] += n
	}
	return nil
}

func (c *memoryCache) HGetAll(_ context.Context, key string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string]string{}
	for f, n := range c.hashes[key] {
		out[f] = strconv.FormatInt(n, 10)
	}
	return out, nil
}

func (c *memoryCache) PushCapped(_ context.Context, key string, value interface{}, max int64) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	list := append([]string{string(data)}, c.lists[key]...)
	if int64(len(list)) > max {
		list = list[:max]
	}
	c.lists[key] = list
	return nil
}

func (c *memoryCache) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.lists[key]
	if stop >= int64(len(list)) {
		stop = int64(len(list)) - 1
	}
	if start > stop {
		return nil, nil
	}
	return append([]string(nil), list[start:stop+1]...), nil
}

func logged(t *testing.T, store *repositories.MemoryTransactionLog, id string, ts time.Time, amount float64, fraud bool) {
	t.Helper()
	tx := &models.Transaction{
		TransactionID:        id,
		TransactionTimestamp: ts,
		AmountValue:          amount,
		SenderCustomerID:     "C1",
		SenderAccountID:      "ACC-C1",
	}
	result := models.FraudResult{IsFraud: fraud, RiskScore: 0.2}
	if fraud {
		result.RiskScore = 0.9
	}
	require.NoError(t, store.Create(context.Background(), models.NewTransactionRecord(tx, result, models.MethodMLModel, nil)))
}

func newService(store repositories.AnalyticsStore, cache Cache) *AnalyticsService {
	s := NewAnalyticsService(store, cache, time.Minute)
	s.now = func() time.Time { return now }
	return s
}

func TestGetSummary(t *testing.T) {
	store := repositories.NewMemoryTransactionLog()
	logged(t, store, "T1", now.Add(-2*time.Hour), 1000, false)
	logged(t, store, "T2", now.Add(-1*time.Hour), 3000, true)
	logged(t, store, "T3", now.Add(-1*time.Hour), 500, false)
	logged(t, store, "T4", now.AddDate(0, 0, -3), 7000, true)
	logged(t, store, "T5", now.AddDate(0, -2, 0), 100, true)

	summary, err := newService(store, nil).GetSummary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Today.TotalTransactions)
	assert.Equal(t, 1, summary.Today.FlaggedTransactions)
	assert.Equal(t, 1, summary.Today.OpenAlerts)
	assert.Equal(t, 33.33, summary.Today.FraudDetectionRate)
	assert.Equal(t, 0.43, summary.Today.AvgRiskScore)
	assert.Equal(t, 3000.0, summary.Today.LossesPrevented)
	assert.Equal(t, 4500.0, summary.Today.TotalAmount)

	assert.Equal(t, 4, summary.Month.TotalTransactions)
	assert.Equal(t, 2, summary.Month.FlaggedTransactions)
	assert.Equal(t, 10000.0, summary.Month.FlaggedAmount)

	assert.Equal(t, 2, summary.Overall.FraudCasesLast30Days)
	assert.Equal(t, 0.62, summary.Overall.AvgRiskScore)
}

func TestGetSummary_EmptyLog(t *testing.T) {
	summary, err := newService(repositories.NewMemoryTransactionLog(), nil).GetSummary(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Today.TotalTransactions)
	assert.Zero(t, summary.Today.FraudDetectionRate)
}

func TestGetSummary_Cached(t *testing.T) {
	store := repositories.NewMemoryTransactionLog()
	cache := newMemoryCache()
	s := newService(store, cache)

	logged(t, store, "T1", now, 1000, false)
	first, err := s.GetSummary(context.Background())
	require.NoError(t, err)

	logged(t, store, "T2", now, 1000, true)
	second, err := s.GetSummary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, second.Today.TotalTransactions)
}

func TestGetTrends(t *testing.T) {
	store := repositories.NewMemoryTransactionLog()
	logged(t, store, "T1", now, 100, false)
	logged(t, store, "T2", now.Add(-time.Hour), 200, true)
	logged(t, store, "T3", now.AddDate(0, 0, -29), 50, false)
	logged(t, store, "T4", now.AddDate(0, 0, -30), 999, true)

	trends, err := newService(store, nil).GetTrends(context.Background())
	require.NoError(t, err)

	require.Len(t, trends.Last30Days, 30)
	first, last := trends.Last30Days[0], trends.Last30Days[29]
	assert.Equal(t, "2026-05-17", first.Date)
	assert.Equal(t, 1, first.Total)
	assert.Equal(t, "2026-06-15", last.Date)
	assert.Equal(t, 2, last.Total)
	assert.Equal(t, 1, last.Flagged)
	assert.Equal(t, 300.0, last.Amount)

	assert.Equal(t, 3, trends.Summary.TotalTransactions)
	assert.Equal(t, 1, trends.Summary.TotalFlagged)
	assert.Equal(t, 350.0, trends.Summary.TotalAmount)
}

func TestGetHourly(t *testing.T) {
	store := repositories.NewMemoryTransactionLog()
	day := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	logged(t, store, "T1", day.Add(9*time.Hour), 100, true)
	logged(t, store, "T2", day.Add(9*time.Hour+5*time.Minute), 100, true)
	logged(t, store, "T3", day.Add(3*time.Hour), 100, true)
	logged(t, store, "T4", day.Add(12*time.Hour), 400, false)

	hourly, err := newService(store, nil).GetHourly(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, hourly.HourlyVolume[9])
	assert.Equal(t, 2, hourly.HourlyFraudCount[9])
	assert.Equal(t, 400.0, hourly.HourlyAmount[12])
	assert.Equal(t, []int{9, 3}, hourly.PeakFraudHours)
}

func TestPeakHours(t *testing.T) {
	var counts [24]int
	assert.Empty(t, PeakHours(counts, 3))

	counts[5], counts[20], counts[1], counts[7] = 4, 4, 2, 1
	assert.Equal(t, []int{5, 20, 1}, PeakHours(counts, 3))
}

func TestRecordDecisionAndLive(t *testing.T) {
	cache := newMemoryCache()
	s := newService(repositories.NewMemoryTransactionLog(), cache)
	ctx := context.Background()

	events := []*models.DecisionEvent{
		{TransactionID: "T1", IsFraud: true, Severity: models.SeverityHigh, Method: models.MethodStaticRules},
		{TransactionID: "T2", Severity: models.SeverityLow, Method: models.MethodMLModel},
		{TransactionID: "T3", Severity: models.SeverityLow, Method: models.MethodMLModel},
		{TransactionID: "T4", IsFraud: true, Severity: models.SeverityMedium, Method: models.MethodBehavioral},
	}
	for _, e := range events {
		require.NoError(t, s.RecordDecision(ctx, e))
	}

	live, err := s.GetLive(ctx, 2)
	require.NoError(t, err)

	assert.Equal(t, int64(4), live.Counters.Total)
	assert.Equal(t, int64(2), live.Counters.Flagged)
	assert.Equal(t, 50.0, live.Counters.FraudRate)
	assert.Equal(t, int64(2), live.Counters.ByMethod["ML_MODEL"])
	assert.Equal(t, int64(1), live.Counters.BySeverity["HIGH"])

	require.Len(t, live.Recent, 2)
	assert.Equal(t, "T4", live.Recent[0].TransactionID)
	assert.Equal(t, "T3", live.Recent[1].TransactionID)
}

func TestLive_WithoutCache(t *testing.T) {
	s := newService(repositories.NewMemoryTransactionLog(), nil)

	require.NoError(t, s.RecordDecision(context.Background(), &models.DecisionEvent{TransactionID: "T1"}))
	live, err := s.GetLive(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, live.Counters.Total)
	assert.Empty(t, live.Recent)
}

func TestParseLiveCounters_IgnoresGarbage(t *testing.T) {
	c := ParseLiveCounters(map[string]string{"total": "10", "flagged": "x", "other": "3"})
	assert.Equal(t, int64(10), c.Total)
	assert.Zero(t, c.Flagged)
	assert.Zero(t, c.FraudRate)
}
