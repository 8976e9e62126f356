package scoring

import (
	"fmt"
	"strings"

	"github.com/enterprise/fraud-engine/configs"
	"github.com/enterprise/fraud-engine/internal/models"
)

// Static rule identifiers, in evaluation order
const (
	RuleSingleAmount  = "RULE_SINGLE_TRANSACTION_AMOUNT"
	RuleVelocity1Min  = "RULE_VELOCITY_1MIN"
	RuleVelocity10Min = "RULE_VELOCITY_10MIN"
	RuleAmount24Hr    = "RULE_AMOUNT_24HR"
)

// StaticRule is one deterministic threshold check
type StaticRule struct {
	ID    string
	Name  string
	Check func(tx *models.Transaction, policy configs.FraudConfig) (string, bool)
}

// StaticRuleEngine evaluates fixed policy thresholds against a transaction
type StaticRuleEngine struct {
	policy *PolicyStore
	rules  []StaticRule
}

// NewStaticRuleEngine creates a rule engine reading thresholds from policy
func NewStaticRuleEngine(policy *PolicyStore) *StaticRuleEngine {
	e := &StaticRuleEngine{policy: policy}
	e.initializeRules()
	return e
}

// initializeRules sets up the rules in the order their messages are reported
func (e *StaticRuleEngine) initializeRules() {
	e.rules = []StaticRule{
		{
			ID:   RuleSingleAmount,
			Name: "Single transaction limit",
			Check: func(tx *models.Transaction, p configs.FraudConfig) (string, bool) {
				if tx.AmountValue > p.MaxSingleTransaction {
					return fmt.Sprintf("Amount %s exceeds single transaction limit of %s INR",
						formatAmount(tx.AmountValue), formatAmount(p.MaxSingleTransaction)), true
				}
				return "", false
			},
		},
		{
			ID:   RuleVelocity1Min,
			Name: "1 minute velocity",
			Check: func(tx *models.Transaction, p configs.FraudConfig) (string, bool) {
				if tx.SenderTxnCount1Min > p.MaxTransactions1Min {
					return fmt.Sprintf("Transaction count in 1 minute (%d) exceeds limit of %d",
						tx.SenderTxnCount1Min, p.MaxTransactions1Min), true
				}
				return "", false
			},
		},
		{
			ID:   RuleVelocity10Min,
			Name: "10 minute velocity",
			Check: func(tx *models.Transaction, p configs.FraudConfig) (string, bool) {
				if tx.SenderTxnCount10Min > p.MaxTransactions10Min {
					return fmt.Sprintf("Transaction count in 10 minutes (%d) exceeds limit of %d",
						tx.SenderTxnCount10Min, p.MaxTransactions10Min), true
				}
				return "", false
			},
		},
		{
			ID:   RuleAmount24Hr,
			Name: "24 hour amount",
			Check: func(tx *models.Transaction, p configs.FraudConfig) (string, bool) {
				if tx.SenderAmount24Hr > p.MaxAmount24Hr {
					return fmt.Sprintf("24-hour transaction amount (%s) exceeds limit of %s INR",
						formatAmount(tx.SenderAmount24Hr), formatAmount(p.MaxAmount24Hr)), true
				}
				return "", false
			},
		},
	}
}

// Evaluate runs every rule and returns a decision when at least one is violated.
// The boolean is false when no rule fired.
func (e *StaticRuleEngine) Evaluate(tx *models.Transaction) (*models.FraudResult, []string, bool) {
	policy := e.policy.Get()

	var violations []string
	fired := make(map[string]bool, len(e.rules))
	for _, rule := range e.rules {
		if msg, violated := rule.Check(tx, policy); violated {
			violations = append(violations, msg)
			fired[rule.ID] = true
		}
	}

	if len(violations) == 0 {
		return nil, nil, false
	}

	return &models.FraudResult{
		IsFraud:             true,
		RiskScore:           1.0,
		FraudSeverity:       models.SeverityHigh,
		FlagColor:           models.FlagRed,
		ReasonUnusualAmount: fired[RuleSingleAmount],
		ReasonHighVelocity:  fired[RuleVelocity1Min],
		ReasonOfFraud:       strings.Join(violations, "; "),
	}, violations, true
}
