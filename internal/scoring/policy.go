package scoring

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-engine/configs"
)

// PolicyStore holds the fraud thresholds shared by the rule engines
type PolicyStore struct {
	mu      sync.RWMutex
	current configs.FraudConfig
}

var policyValidator = validator.New()

// ValidatePolicy rejects non-positive limits and negative velocity counts
func ValidatePolicy(policy configs.FraudConfig) error {
	if err := policyValidator.Struct(policy); err != nil {
		return fmt.Errorf("invalid fraud policy: %w", err)
	}
	return nil
}

// NewPolicyStore creates a store seeded with policy
func NewPolicyStore(policy configs.FraudConfig) *PolicyStore {
	return &PolicyStore{current: policy}
}

// Get returns the active thresholds
func (s *PolicyStore) Get() configs.FraudConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update validates and swaps the thresholds used by subsequent evaluations
func (s *PolicyStore) Update(policy configs.FraudConfig) error {
	if err := ValidatePolicy(policy); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = policy
	s.mu.Unlock()

	log.Info().
		Float64("max_single_transaction", policy.MaxSingleTransaction).
		Int("max_transactions_1min", policy.MaxTransactions1Min).
		Int("max_transactions_10min", policy.MaxTransactions10Min).
		Float64("max_amount_24hr", policy.MaxAmount24Hr).
		Float64("max_geo_distance_km", policy.MaxGeoDistanceKm).
		Msg("Fraud policy updated")
	return nil
}
