package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/enterprise/fraud-engine/internal/models"
)

var (
	ErrProfileNotFound      = errors.New("client profile not found")
	ErrDuplicateProfile     = errors.New("client profile already exists")
	ErrDuplicateTransaction = errors.New("transaction already logged")
)

// ProfileStore persists per-customer profiles
type ProfileStore interface {
	// FindByCustomerID returns ErrProfileNotFound when the customer has no profile
	FindByCustomerID(ctx context.Context, customerID string) (*models.ClientProfile, error)
	Create(ctx context.Context, profile *models.ClientProfile) error
	IncrementMonthlySpend(ctx context.Context, customerID string, amount float64) error
	// IncrementFlaggedScore adds delta and clamps the stored score into [0, 100]
	IncrementFlaggedScore(ctx context.Context, customerID string, delta int) (int, error)
	AppendHistory(ctx context.Context, customerID string, entry models.HistoryEntry) error
	// Update applies fn to the profile as one atomic read-modify-write
	Update(ctx context.Context, customerID string, fn func(*models.ClientProfile) error) (*models.ClientProfile, error)
	// ResetMonthlySpend starts a new spending month for every profile
	ResetMonthlySpend(ctx context.Context) (int64, error)
}

// TransactionLog is the append-only record of scored transactions
type TransactionLog interface {
	Create(ctx context.Context, rec *models.TransactionRecord) error
	FindRecent(ctx context.Context, limit int) ([]*models.TransactionRecord, error)
	FindByCustomer(ctx context.Context, customerID string, limit int) ([]*models.TransactionRecord, error)
	FindRecentByCustomerWithinMinutes(ctx context.Context, customerID string, minutes int) ([]*models.TransactionRecord, error)
	// FindWithReceiverSince returns records with a receiver account logged at or after since, oldest first
	FindWithReceiverSince(ctx context.Context, since time.Time) ([]*models.TransactionRecord, error)
}

// AnalyticsStore answers aggregate questions over the transaction log
type AnalyticsStore interface {
	Aggregate(ctx context.Context, from, to time.Time) (*models.PeriodStats, error)
	Activity(ctx context.Context, from, to time.Time) ([]models.ActivityPoint, error)
	AverageRiskScore(ctx context.Context) (float64, error)
	CountFraudSince(ctx context.Context, since time.Time) (int, error)
}
