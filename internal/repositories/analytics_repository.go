package repositories

import (
	"context"
	"time"

	"github.com/enterprise/fraud-engine/internal/models"
)

// AnalyticsRepository runs aggregate queries over the transaction log
type AnalyticsRepository struct {
	db *Database
}

// NewAnalyticsRepository creates a new analytics repository
func NewAnalyticsRepository(db *Database) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// Aggregate summarizes transactions with a timestamp in [from, to)
func (r *AnalyticsRepository) Aggregate(ctx context.Context, from, to time.Time) (*models.PeriodStats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(amount_value), 0),
			COALESCE(AVG(risk_score), 0),
			COUNT(*) FILTER (WHERE is_fraud),
			COALESCE(SUM(amount_value) FILTER (WHERE is_fraud), 0)
		FROM fraud_transactions
		WHERE transaction_timestamp >= $1 AND transaction_timestamp < $2
	`

	stats := &models.PeriodStats{}
	err := r.db.Pool.QueryRow(ctx, query, from, to).Scan(
		&stats.TotalTransactions,
		&stats.TotalAmount,
		&stats.AvgRiskScore,
		&stats.FlaggedTransactions,
		&stats.FlaggedAmount,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Activity returns the timestamp, outcome and amount of every transaction in [from, to)
func (r *AnalyticsRepository) Activity(ctx context.Context, from, to time.Time) ([]models.ActivityPoint, error) {
	query := `
		SELECT transaction_timestamp, is_fraud, amount_value
		FROM fraud_transactions
		WHERE transaction_timestamp >= $1 AND transaction_timestamp < $2
		ORDER BY transaction_timestamp ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []models.ActivityPoint
	for rows.Next() {
		var p models.ActivityPoint
		if err := rows.Scan(&p.Timestamp, &p.IsFraud, &p.Amount); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// AverageRiskScore returns the mean risk over the whole log
func (r *AnalyticsRepository) AverageRiskScore(ctx context.Context) (float64, error) {
	var avg float64
	err := r.db.Pool.QueryRow(ctx, `SELECT COALESCE(AVG(risk_score), 0) FROM fraud_transactions`).Scan(&avg)
	return avg, err
}

// CountFraudSince counts fraudulent transactions since the given time
func (r *AnalyticsRepository) CountFraudSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM fraud_transactions WHERE is_fraud AND transaction_timestamp >= $1`,
		since,
	).Scan(&count)
	return count, err
}
