package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/enterprise/fraud-engine/internal/models"
)

// MemoryProfileStore keeps profiles in process memory
type MemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*models.ClientProfile
}

// NewMemoryProfileStore creates an empty in-memory profile store
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string]*models.ClientProfile)}
}

// FindByCustomerID returns a copy of the stored profile
func (s *MemoryProfileStore) FindByCustomerID(ctx context.Context, customerID string) (*models.ClientProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[customerID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return p.Clone(), nil
}

// Create stores a new profile
func (s *MemoryProfileStore) Create(ctx context.Context, profile *models.ClientProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[profile.CustomerID]; ok {
		return ErrDuplicateProfile
	}

	now := time.Now().UTC()
	profile.CreatedAt = now
	profile.UpdatedAt = now
	profile.FlaggedScore = models.ClampFlaggedScore(profile.FlaggedScore)
	s.profiles[profile.CustomerID] = profile.Clone()
	return nil
}

// IncrementMonthlySpend adds amount to the current month spend
func (s *MemoryProfileStore) IncrementMonthlySpend(ctx context.Context, customerID string, amount float64) error {
	_, err := s.Update(ctx, customerID, func(p *models.ClientProfile) error {
		p.CurrentMonthSpend += amount
		return nil
	})
	return err
}

// IncrementFlaggedScore adds delta to the flagged score, clamped into [0, 100]
func (s *MemoryProfileStore) IncrementFlaggedScore(ctx context.Context, customerID string, delta int) (int, error) {
	p, err := s.Update(ctx, customerID, func(p *models.ClientProfile) error {
		p.AddFlaggedScore(delta)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return p.FlaggedScore, nil
}

// AppendHistory appends one entry to the rolling history
func (s *MemoryProfileStore) AppendHistory(ctx context.Context, customerID string, entry models.HistoryEntry) error {
	_, err := s.Update(ctx, customerID, func(p *models.ClientProfile) error {
		p.History.Append(entry)
		return nil
	})
	return err
}

// Update applies fn to a copy under the write lock and stores it only when fn succeeds
func (s *MemoryProfileStore) Update(ctx context.Context, customerID string, fn func(*models.ClientProfile) error) (*models.ClientProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.profiles[customerID]
	if !ok {
		return nil, ErrProfileNotFound
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.FlaggedScore = models.ClampFlaggedScore(next.FlaggedScore)
	next.UpdatedAt = time.Now().UTC()
	s.profiles[customerID] = next
	return next.Clone(), nil
}

// ResetMonthlySpend zeroes every profile's month-to-date spend
func (s *MemoryProfileStore) ResetMonthlySpend(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, p := range s.profiles {
		p.CurrentMonthSpend = 0
		p.UpdatedAt = now
	}
	return int64(len(s.profiles)), nil
}

// MemoryTransactionLog is an append-only in-memory transaction log
type MemoryTransactionLog struct {
	mu      sync.RWMutex
	records []*models.TransactionRecord
	ids     map[string]struct{}
}

// NewMemoryTransactionLog creates an empty in-memory log
func NewMemoryTransactionLog() *MemoryTransactionLog {
	return &MemoryTransactionLog{ids: make(map[string]struct{})}
}

// Create appends one record
func (l *MemoryTransactionLog) Create(ctx context.Context, rec *models.TransactionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.ids[rec.TransactionID]; ok {
		return ErrDuplicateTransaction
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	stored := *rec
	stored.Violations = append([]string(nil), rec.Violations...)
	l.records = append(l.records, &stored)
	l.ids[rec.TransactionID] = struct{}{}
	return nil
}

// Len returns the number of logged records
func (l *MemoryTransactionLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// FindRecent returns the newest records
func (l *MemoryTransactionLog) FindRecent(ctx context.Context, limit int) ([]*models.TransactionRecord, error) {
	return l.newestFirst(limit, func(*models.TransactionRecord) bool { return true }), nil
}

// FindByCustomer returns the newest records sent by a customer
func (l *MemoryTransactionLog) FindByCustomer(ctx context.Context, customerID string, limit int) ([]*models.TransactionRecord, error) {
	return l.newestFirst(limit, func(r *models.TransactionRecord) bool {
		return r.SenderCustomerID == customerID
	}), nil
}

// FindRecentByCustomerWithinMinutes returns a customer's records logged in the trailing window
func (l *MemoryTransactionLog) FindRecentByCustomerWithinMinutes(ctx context.Context, customerID string, minutes int) ([]*models.TransactionRecord, error) {
	since := time.Now().UTC().Add(-time.Duration(minutes) * time.Minute)
	return l.newestFirst(0, func(r *models.TransactionRecord) bool {
		return r.SenderCustomerID == customerID && !r.CreatedAt.Before(since)
	}), nil
}

// FindWithReceiverSince returns records with a receiver account, oldest first
func (l *MemoryTransactionLog) FindWithReceiverSince(ctx context.Context, since time.Time) ([]*models.TransactionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*models.TransactionRecord
	for _, r := range l.records {
		if r.ReceiverAccountID != "" && !recordTime(r).Before(since) {
			c := *r
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return recordTime(out[i]).Before(recordTime(out[j])) })
	return out, nil
}

// newestFirst walks the log backwards; limit <= 0 means no limit
func (l *MemoryTransactionLog) newestFirst(limit int, keep func(*models.TransactionRecord) bool) []*models.TransactionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*models.TransactionRecord
	for i := len(l.records) - 1; i >= 0; i-- {
		r := l.records[i]
		if !keep(r) {
			continue
		}
		c := *r
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Aggregate summarizes transactions with a timestamp in [from, to)
func (l *MemoryTransactionLog) Aggregate(ctx context.Context, from, to time.Time) (*models.PeriodStats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := &models.PeriodStats{}
	var riskSum float64
	for _, r := range l.records {
		ts := recordTime(r)
		if ts.Before(from) || !ts.Before(to) {
			continue
		}
		stats.TotalTransactions++
		stats.TotalAmount += r.AmountValue
		riskSum += r.RiskScore
		if r.IsFraud {
			stats.FlaggedTransactions++
			stats.FlaggedAmount += r.AmountValue
		}
	}
	if stats.TotalTransactions > 0 {
		stats.AvgRiskScore = riskSum / float64(stats.TotalTransactions)
	}
	return stats, nil
}

// Activity returns the timestamp, outcome and amount of every transaction in [from, to)
func (l *MemoryTransactionLog) Activity(ctx context.Context, from, to time.Time) ([]models.ActivityPoint, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var points []models.ActivityPoint
	for _, r := range l.records {
		ts := recordTime(r)
		if ts.Before(from) || !ts.Before(to) {
			continue
		}
		points = append(points, models.ActivityPoint{Timestamp: ts, IsFraud: r.IsFraud, Amount: r.AmountValue})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	return points, nil
}

// AverageRiskScore returns the mean risk over the whole log
func (l *MemoryTransactionLog) AverageRiskScore(ctx context.Context) (float64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.records) == 0 {
		return 0, nil
	}
	var sum float64
	for _, r := range l.records {
		sum += r.RiskScore
	}
	return sum / float64(len(l.records)), nil
}

// CountFraudSince counts fraudulent transactions since the given time
func (l *MemoryTransactionLog) CountFraudSince(ctx context.Context, since time.Time) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	count := 0
	for _, r := range l.records {
		if r.IsFraud && !recordTime(r).Before(since) {
			count++
		}
	}
	return count, nil
}

// recordTime mirrors the Postgres store, which writes created_at when the timestamp is missing
func recordTime(r *models.TransactionRecord) time.Time {
	if r.TransactionTimestamp.IsZero() {
		return r.CreatedAt
	}
	return r.TransactionTimestamp
}
