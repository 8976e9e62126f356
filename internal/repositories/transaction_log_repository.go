package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/enterprise/fraud-engine/internal/models"
)

const recordColumns = `
	transaction_id, transaction_type, transaction_status, transaction_timestamp,
	amount_value, amount_currency, sender_customer_id, sender_user_name, sender_account_id,
	sender_account_type, sender_kyc_status, sender_account_age_days, sender_state, sender_city,
	current_latitude, current_longitude, sender_txn_count_1min, sender_txn_count_10min,
	sender_amount_24hr, device_type, device_os, app_version, ip_risk, receiver_type,
	receiver_bank, receiver_account_id, receiver_user_name, merchant_category,
	merchant_risk_level, payment_method, authorization_type, is_fraud, risk_score,
	fraud_severity, flag_color, reason_unusual_amount, reason_geo_distance,
	reason_high_velocity, reason_of_fraud, detection_method, violations, ml_scores, created_at`

// TransactionLogRepository appends scored transactions to PostgreSQL
type TransactionLogRepository struct {
	db *Database
}

// NewTransactionLogRepository creates a new transaction log repository
func NewTransactionLogRepository(db *Database) *TransactionLogRepository {
	return &TransactionLogRepository{db: db}
}

// Create appends one record
func (r *TransactionLogRepository) Create(ctx context.Context, rec *models.TransactionRecord) error {
	query := `
		INSERT INTO fraud_transactions (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34, $35,
			$36, $37, $38, $39, $40, $41, $42, $43)
	`

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	txTime := rec.TransactionTimestamp
	if txTime.IsZero() {
		txTime = rec.CreatedAt
	}

	var mlScores []byte
	if rec.MLScores != nil {
		b, err := json.Marshal(rec.MLScores)
		if err != nil {
			return fmt.Errorf("failed to encode ml scores: %w", err)
		}
		mlScores = b
	}

	var receiver *string
	if rec.ReceiverAccountID != "" {
		receiver = &rec.ReceiverAccountID
	}

	violations := rec.Violations
	if violations == nil {
		violations = []string{}
	}

	_, err := r.db.Pool.Exec(ctx, query,
		rec.TransactionID,
		rec.TransactionType,
		rec.TransactionStatus,
		txTime,
		rec.AmountValue,
		rec.AmountCurrency,
		rec.SenderCustomerID,
		rec.SenderUserName,
		rec.SenderAccountID,
		rec.SenderAccountType,
		rec.SenderKYCStatus,
		rec.SenderAccountAgeDays,
		rec.SenderState,
		rec.SenderCity,
		rec.CurrentLatitude,
		rec.CurrentLongitude,
		rec.SenderTxnCount1Min,
		rec.SenderTxnCount10Min,
		rec.SenderAmount24Hr,
		rec.DeviceType,
		rec.DeviceOS,
		rec.AppVersion,
		rec.IPRisk,
		rec.ReceiverType,
		rec.ReceiverBank,
		receiver,
		rec.ReceiverUserName,
		rec.MerchantCategory,
		rec.MerchantRiskLevel,
		rec.PaymentMethod,
		rec.AuthorizationType,
		rec.IsFraud,
		rec.RiskScore,
		string(rec.FraudSeverity),
		string(rec.FlagColor),
		rec.ReasonUnusualAmount,
		rec.ReasonGeoDistanceAnomaly,
		rec.ReasonHighVelocity,
		rec.ReasonOfFraud,
		string(rec.DetectionMethod),
		pq.Array(violations),
		mlScores,
		rec.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateTransaction
		}
		return err
	}
	return nil
}

// FindRecent returns the newest records
func (r *TransactionLogRepository) FindRecent(ctx context.Context, limit int) ([]*models.TransactionRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM fraud_transactions ORDER BY created_at DESC LIMIT $1`
	return r.query(ctx, query, limit)
}

// FindByCustomer returns the newest records sent by a customer
func (r *TransactionLogRepository) FindByCustomer(ctx context.Context, customerID string, limit int) ([]*models.TransactionRecord, error) {
	query := `
		SELECT ` + recordColumns + ` FROM fraud_transactions
		WHERE sender_customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.query(ctx, query, customerID, limit)
}

// FindRecentByCustomerWithinMinutes returns a customer's records logged in the trailing window
func (r *TransactionLogRepository) FindRecentByCustomerWithinMinutes(ctx context.Context, customerID string, minutes int) ([]*models.TransactionRecord, error) {
	since := time.Now().UTC().Add(-time.Duration(minutes) * time.Minute)
	query := `
		SELECT ` + recordColumns + ` FROM fraud_transactions
		WHERE sender_customer_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`
	return r.query(ctx, query, customerID, since)
}

// FindWithReceiverSince returns records with a receiver account made at or after since, oldest first
func (r *TransactionLogRepository) FindWithReceiverSince(ctx context.Context, since time.Time) ([]*models.TransactionRecord, error) {
	query := `
		SELECT ` + recordColumns + ` FROM fraud_transactions
		WHERE receiver_account_id IS NOT NULL AND receiver_account_id <> ''
		  AND transaction_timestamp >= $1
		ORDER BY transaction_timestamp ASC, id ASC
	`
	return r.query(ctx, query, since)
}

func (r *TransactionLogRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.TransactionRecord, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.TransactionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(row pgx.Row) (*models.TransactionRecord, error) {
	rec := &models.TransactionRecord{}
	var (
		receiver *string
		severity string
		flag     string
		method   string
		mlScores []byte
	)

	err := row.Scan(
		&rec.TransactionID,
		&rec.TransactionType,
		&rec.TransactionStatus,
		&rec.TransactionTimestamp,
		&rec.AmountValue,
		&rec.AmountCurrency,
		&rec.SenderCustomerID,
		&rec.SenderUserName,
		&rec.SenderAccountID,
		&rec.SenderAccountType,
		&rec.SenderKYCStatus,
		&rec.SenderAccountAgeDays,
		&rec.SenderState,
		&rec.SenderCity,
		&rec.CurrentLatitude,
		&rec.CurrentLongitude,
		&rec.SenderTxnCount1Min,
		&rec.SenderTxnCount10Min,
		&rec.SenderAmount24Hr,
		&rec.DeviceType,
		&rec.DeviceOS,
		&rec.AppVersion,
		&rec.IPRisk,
		&rec.ReceiverType,
		&rec.ReceiverBank,
		&receiver,
		&rec.ReceiverUserName,
		&rec.MerchantCategory,
		&rec.MerchantRiskLevel,
		&rec.PaymentMethod,
		&rec.AuthorizationType,
		&rec.IsFraud,
		&rec.RiskScore,
		&severity,
		&flag,
		&rec.ReasonUnusualAmount,
		&rec.ReasonGeoDistanceAnomaly,
		&rec.ReasonHighVelocity,
		&rec.ReasonOfFraud,
		&method,
		&rec.Violations,
		&mlScores,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if receiver != nil {
		rec.ReceiverAccountID = *receiver
	}
	rec.FraudSeverity = models.Severity(severity)
	rec.FlagColor = models.FlagColor(flag)
	rec.DetectionMethod = models.DetectionMethod(method)

	if len(mlScores) > 0 {
		rec.MLScores = &models.MLScores{}
		if err := json.Unmarshal(mlScores, rec.MLScores); err != nil {
			return nil, fmt.Errorf("failed to decode ml scores: %w", err)
		}
	}
	return rec, nil
}
