package repositories

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/fraud-engine/configs"
	"github.com/enterprise/fraud-engine/internal/models"
)

func newProfile(id string) *models.ClientProfile {
	return &models.ClientProfile{
		CustomerID:   id,
		AccountID:    "ACC-" + id,
		UserName:     "user " + id,
		MonthlyLimit: 50000,
	}
}

func TestMemoryProfileStore_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryProfileStore()

	require.NoError(t, store.Create(ctx, newProfile("C1")))
	assert.ErrorIs(t, store.Create(ctx, newProfile("C1")), ErrDuplicateProfile)

	p, err := store.FindByCustomerID(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, "ACC-C1", p.AccountID)
	assert.False(t, p.CreatedAt.IsZero())

	_, err = store.FindByCustomerID(ctx, "missing")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestMemoryProfileStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryProfileStore()
	require.NoError(t, store.Create(ctx, newProfile("C1")))

	p, err := store.FindByCustomerID(ctx, "C1")
	require.NoError(t, err)
	p.CurrentMonthSpend = 999
	p.History.Append(models.HistoryEntry{TransactionID: "x", Amount: 1})

	again, err := store.FindByCustomerID(ctx, "C1")
	require.NoError(t, err)
	assert.Zero(t, again.CurrentMonthSpend)
	assert.Zero(t, again.History.Len())
}

func TestMemoryProfileStore_FlaggedScoreClamped(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryProfileStore()
	require.NoError(t, store.Create(ctx, newProfile("C1")))

	for i := 0; i < 12; i++ {
		_, err := store.IncrementFlaggedScore(ctx, "C1", 10)
		require.NoError(t, err)
	}
	score, err := store.IncrementFlaggedScore(ctx, "C1", 0)
	require.NoError(t, err)
	assert.Equal(t, models.MaxFlaggedScore, score)

	_, err = store.IncrementFlaggedScore(ctx, "nobody", 5)
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestMemoryProfileStore_UpdateErrorLeavesProfileUntouched(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryProfileStore()
	require.NoError(t, store.Create(ctx, newProfile("C1")))

	_, err := store.Update(ctx, "C1", func(p *models.ClientProfile) error {
		p.CurrentMonthSpend = 1000
		return fmt.Errorf("boom")
	})
	require.Error(t, err)

	p, err := store.FindByCustomerID(ctx, "C1")
	require.NoError(t, err)
	assert.Zero(t, p.CurrentMonthSpend)
}

func TestMemoryProfileStore_ConcurrentUpdatesAreAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryProfileStore()
	require.NoError(t, store.Create(ctx, newProfile("C1")))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Update(ctx, "C1", func(p *models.ClientProfile) error {
				p.CurrentMonthSpend += 10
				p.History.Append(models.HistoryEntry{TransactionID: fmt.Sprintf("T%d", i), Amount: 10})
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	p, err := store.FindByCustomerID(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, 500.0, p.CurrentMonthSpend)
	assert.Equal(t, models.HistoryCapacity, p.History.Len())
}

func TestMemoryProfileStore_ResetMonthlySpend(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryProfileStore()
	require.NoError(t, store.Create(ctx, newProfile("C1")))
	require.NoError(t, store.Create(ctx, newProfile("C2")))
	require.NoError(t, store.IncrementMonthlySpend(ctx, "C1", 250))

	n, err := store.ResetMonthlySpend(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	p, err := store.FindByCustomerID(ctx, "C1")
	require.NoError(t, err)
	assert.Zero(t, p.CurrentMonthSpend)
}

func record(id, customer, receiver string, amount float64, fraud bool, ts time.Time) *models.TransactionRecord {
	tx := &models.Transaction{
		TransactionID:        id,
		TransactionTimestamp: ts,
		AmountValue:          amount,
		SenderCustomerID:     customer,
		SenderAccountID:      "ACC-" + customer,
		ReceiverAccountID:    receiver,
	}
	result := models.FraudResult{IsFraud: fraud, RiskScore: 0.2}
	if fraud {
		result.RiskScore = 0.8
	}
	return models.NewTransactionRecord(tx, result, models.MethodMLModel, nil)
}

func TestMemoryTransactionLog_CreateRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryTransactionLog()
	now := time.Now().UTC()

	require.NoError(t, log.Create(ctx, record("T1", "C1", "", 100, false, now)))
	assert.ErrorIs(t, log.Create(ctx, record("T1", "C1", "", 100, false, now)), ErrDuplicateTransaction)
	assert.Equal(t, 1, log.Len())
}

func TestMemoryTransactionLog_Queries(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryTransactionLog()
	now := time.Now().UTC()

	require.NoError(t, log.Create(ctx, record("T1", "C1", "B", 100, false, now)))
	require.NoError(t, log.Create(ctx, record("T2", "C2", "", 200, true, now)))
	require.NoError(t, log.Create(ctx, record("T3", "C1", "C", 300, false, now)))

	recent, err := log.FindRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "T3", recent[0].TransactionID)
	assert.Equal(t, "T2", recent[1].TransactionID)

	byCustomer, err := log.FindByCustomer(ctx, "C1", 10)
	require.NoError(t, err)
	require.Len(t, byCustomer, 2)
	assert.Equal(t, "T3", byCustomer[0].TransactionID)

	window, err := log.FindRecentByCustomerWithinMinutes(ctx, "C1", 5)
	require.NoError(t, err)
	assert.Len(t, window, 2)

	withReceiver, err := log.FindWithReceiverSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, withReceiver, 2)
	assert.Equal(t, "T1", withReceiver[0].TransactionID)
	assert.Equal(t, "T3", withReceiver[1].TransactionID)
}

func TestMemoryTransactionLog_Analytics(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryTransactionLog()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, log.Create(ctx, record("T1", "C1", "", 100, false, day.Add(1*time.Hour))))
	require.NoError(t, log.Create(ctx, record("T2", "C1", "", 300, true, day.Add(2*time.Hour))))
	require.NoError(t, log.Create(ctx, record("T3", "C1", "", 500, true, day.Add(-2*time.Hour))))

	stats, err := log.Aggregate(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalTransactions)
	assert.Equal(t, 400.0, stats.TotalAmount)
	assert.Equal(t, 1, stats.FlaggedTransactions)
	assert.Equal(t, 300.0, stats.FlaggedAmount)
	assert.InDelta(t, 0.5, stats.AvgRiskScore, 1e-9)

	points, err := log.Activity(ctx, day.Add(-24*time.Hour), day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, 500.0, points[0].Amount)

	frauds, err := log.CountFraudSince(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 1, frauds)

	avg, err := log.AverageRiskScore(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, avg, 1e-9)
}

func TestOpenStores_Memory(t *testing.T) {
	stores, err := OpenStores(context.Background(), configs.DatabaseConfig{Driver: DriverMemory})
	require.NoError(t, err)
	defer stores.Close()

	assert.Nil(t, stores.DB)
	assert.NoError(t, stores.HealthCheck(context.Background()))
	assert.Same(t, stores.Log, stores.Analytics)
}

func TestOpenStores_UnknownDriver(t *testing.T) {
	_, err := OpenStores(context.Background(), configs.DatabaseConfig{Driver: "sqlite"})
	assert.ErrorContains(t, err, "sqlite")
}
