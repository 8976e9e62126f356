package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/enterprise/fraud-engine/internal/models"
)

const profileColumns = `
	customer_id, account_id, user_name, account_type, account_age_days, kyc_status,
	state, city, latitude, longitude, monthly_limit, current_month_spend, flagged_score,
	last_30_transactions, created_at, updated_at`

// ProfileRepository stores client profiles in PostgreSQL
type ProfileRepository struct {
	db *Database
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *Database) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Create inserts a new profile
func (r *ProfileRepository) Create(ctx context.Context, p *models.ClientProfile) error {
	query := `
		INSERT INTO client_profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	history, err := json.Marshal(p.History)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.FlaggedScore = models.ClampFlaggedScore(p.FlaggedScore)

	_, err = r.db.Pool.Exec(ctx, query,
		p.CustomerID,
		p.AccountID,
		p.UserName,
		p.AccountType,
		p.AccountAgeDays,
		p.KYCStatus,
		p.State,
		p.City,
		p.Latitude,
		p.Longitude,
		p.MonthlyLimit,
		p.CurrentMonthSpend,
		p.FlaggedScore,
		history,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateProfile
		}
		return err
	}
	return nil
}

// FindByCustomerID loads a profile
func (r *ProfileRepository) FindByCustomerID(ctx context.Context, customerID string) (*models.ClientProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM client_profiles WHERE customer_id = $1`
	return scanProfile(r.db.Pool.QueryRow(ctx, query, customerID))
}

// IncrementMonthlySpend adds amount to the current month spend
func (r *ProfileRepository) IncrementMonthlySpend(ctx context.Context, customerID string, amount float64) error {
	query := `
		UPDATE client_profiles
		SET current_month_spend = current_month_spend + $2, updated_at = NOW()
		WHERE customer_id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query, customerID, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// IncrementFlaggedScore adds delta to the flagged score, clamped into [0, 100]
func (r *ProfileRepository) IncrementFlaggedScore(ctx context.Context, customerID string, delta int) (int, error) {
	query := `
		UPDATE client_profiles
		SET flagged_score = LEAST($3, GREATEST(0, flagged_score + $2)), updated_at = NOW()
		WHERE customer_id = $1
		RETURNING flagged_score
	`
	var score int
	err := r.db.Pool.QueryRow(ctx, query, customerID, delta, models.MaxFlaggedScore).Scan(&score)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrProfileNotFound
		}
		return 0, err
	}
	return score, nil
}

// AppendHistory appends one entry to the rolling history, evicting the oldest over capacity
func (r *ProfileRepository) AppendHistory(ctx context.Context, customerID string, entry models.HistoryEntry) error {
	_, err := r.Update(ctx, customerID, func(p *models.ClientProfile) error {
		p.History.Append(entry)
		return nil
	})
	return err
}

// Update locks the profile row, applies fn and writes the mutable fields back
func (r *ProfileRepository) Update(ctx context.Context, customerID string, fn func(*models.ClientProfile) error) (*models.ClientProfile, error) {
	var updated *models.ClientProfile

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		query := `SELECT ` + profileColumns + ` FROM client_profiles WHERE customer_id = $1 FOR UPDATE`
		p, err := scanProfile(tx.QueryRow(ctx, query, customerID))
		if err != nil {
			return err
		}

		if err := fn(p); err != nil {
			return err
		}
		p.FlaggedScore = models.ClampFlaggedScore(p.FlaggedScore)
		p.UpdatedAt = time.Now().UTC()

		history, err := json.Marshal(p.History)
		if err != nil {
			return fmt.Errorf("failed to encode history: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE client_profiles
			SET monthly_limit = $2, current_month_spend = $3, flagged_score = $4,
				last_30_transactions = $5, updated_at = $6
			WHERE customer_id = $1
		`, customerID, p.MonthlyLimit, p.CurrentMonthSpend, p.FlaggedScore, history, p.UpdatedAt)
		if err != nil {
			return err
		}

		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ResetMonthlySpend zeroes every profile's month-to-date spend
func (r *ProfileRepository) ResetMonthlySpend(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE client_profiles SET current_month_spend = 0, updated_at = NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanProfile(row pgx.Row) (*models.ClientProfile, error) {
	p := &models.ClientProfile{}
	var history []byte

	err := row.Scan(
		&p.CustomerID,
		&p.AccountID,
		&p.UserName,
		&p.AccountType,
		&p.AccountAgeDays,
		&p.KYCStatus,
		&p.State,
		&p.City,
		&p.Latitude,
		&p.Longitude,
		&p.MonthlyLimit,
		&p.CurrentMonthSpend,
		&p.FlaggedScore,
		&history,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}

	if len(history) > 0 {
		if err := json.Unmarshal(history, &p.History); err != nil {
			return nil, fmt.Errorf("failed to decode history for %s: %w", p.CustomerID, err)
		}
	}
	return p, nil
}
