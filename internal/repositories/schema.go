package repositories

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS client_profiles (
		customer_id          TEXT PRIMARY KEY,
		account_id           TEXT NOT NULL,
		user_name            TEXT NOT NULL DEFAULT '',
		account_type         TEXT NOT NULL DEFAULT '',
		account_age_days     INTEGER NOT NULL DEFAULT 0,
		kyc_status           TEXT NOT NULL DEFAULT '',
		state                TEXT NOT NULL DEFAULT '',
		city                 TEXT NOT NULL DEFAULT '',
		latitude             DOUBLE PRECISION,
		longitude            DOUBLE PRECISION,
		monthly_limit        DOUBLE PRECISION NOT NULL DEFAULT 0,
		current_month_spend  DOUBLE PRECISION NOT NULL DEFAULT 0,
		flagged_score        INTEGER NOT NULL DEFAULT 0 CHECK (flagged_score BETWEEN 0 AND 100),
		last_30_transactions JSONB NOT NULL DEFAULT '[]'::jsonb,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS fraud_transactions (
		id                        BIGSERIAL PRIMARY KEY,
		transaction_id            TEXT NOT NULL UNIQUE,
		transaction_type          TEXT NOT NULL DEFAULT '',
		transaction_status        TEXT NOT NULL DEFAULT '',
		transaction_timestamp     TIMESTAMPTZ NOT NULL,
		amount_value              DOUBLE PRECISION NOT NULL,
		amount_currency           TEXT NOT NULL DEFAULT '',
		sender_customer_id        TEXT NOT NULL,
		sender_user_name          TEXT NOT NULL DEFAULT '',
		sender_account_id         TEXT NOT NULL,
		sender_account_type       TEXT NOT NULL DEFAULT '',
		sender_kyc_status         TEXT NOT NULL DEFAULT '',
		sender_account_age_days   INTEGER NOT NULL DEFAULT 0,
		sender_state              TEXT NOT NULL DEFAULT '',
		sender_city               TEXT NOT NULL DEFAULT '',
		current_latitude          DOUBLE PRECISION,
		current_longitude         DOUBLE PRECISION,
		sender_txn_count_1min     INTEGER NOT NULL DEFAULT 0,
		sender_txn_count_10min    INTEGER NOT NULL DEFAULT 0,
		sender_amount_24hr        DOUBLE PRECISION NOT NULL DEFAULT 0,
		device_type               TEXT NOT NULL DEFAULT '',
		device_os                 TEXT NOT NULL DEFAULT '',
		app_version               TEXT NOT NULL DEFAULT '',
		ip_risk                   TEXT NOT NULL DEFAULT '',
		receiver_type             TEXT NOT NULL DEFAULT '',
		receiver_bank             TEXT NOT NULL DEFAULT '',
		receiver_account_id       TEXT,
		receiver_user_name        TEXT NOT NULL DEFAULT '',
		merchant_category         TEXT NOT NULL DEFAULT '',
		merchant_risk_level       TEXT NOT NULL DEFAULT '',
		payment_method            TEXT NOT NULL DEFAULT '',
		authorization_type        TEXT NOT NULL DEFAULT '',
		is_fraud                  BOOLEAN NOT NULL,
		risk_score                DOUBLE PRECISION NOT NULL,
		fraud_severity            TEXT NOT NULL,
		flag_color                TEXT NOT NULL,
		reason_unusual_amount     BOOLEAN NOT NULL DEFAULT FALSE,
		reason_geo_distance       BOOLEAN NOT NULL DEFAULT FALSE,
		reason_high_velocity      BOOLEAN NOT NULL DEFAULT FALSE,
		reason_of_fraud           TEXT NOT NULL DEFAULT '',
		detection_method          TEXT NOT NULL,
		violations                TEXT[] NOT NULL DEFAULT '{}',
		ml_scores                 JSONB,
		created_at                TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fraud_transactions_created_at ON fraud_transactions (created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_fraud_transactions_sender ON fraud_transactions (sender_customer_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_fraud_transactions_timestamp ON fraud_transactions (transaction_timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_fraud_transactions_receiver ON fraud_transactions (created_at)
		WHERE receiver_account_id IS NOT NULL`,
}
