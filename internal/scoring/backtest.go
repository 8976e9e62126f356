package scoring

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-engine/configs"
	"github.com/enterprise/fraud-engine/internal/models"
	"github.com/enterprise/fraud-engine/internal/repositories"
)

const (
	defaultBacktestSample = 1000
	maxBacktestSample     = 10000
	maxBacktestChanges    = 100
)

// BacktestService replays logged transactions through the static rules under a candidate policy
type BacktestService struct {
	txLog repositories.TransactionLog
}

// NewBacktestService creates a new backtest service
func NewBacktestService(txLog repositories.TransactionLog) *BacktestService {
	return &BacktestService{txLog: txLog}
}

// BacktestRequest represents a backtest request
type BacktestRequest struct {
	Policy     configs.FraudConfig `json:"policy"`
	SampleSize int                 `json:"sample_size,omitempty"` // newest records replayed
}

// BacktestResult compares the candidate policy with the logged decisions
type BacktestResult struct {
	Policy            configs.FraudConfig   `json:"policy"`
	TotalTransactions int                   `json:"total_transactions"`
	WouldFlag         int                   `json:"would_flag"`
	CurrentlyFlagged  int                   `json:"currently_flagged"`
	NewlyFlagged      int                   `json:"newly_flagged"`
	Cleared           int                   `json:"cleared"`
	RuleCounts        []RuleCount           `json:"rule_counts"`
	Changes           []TransactionBacktest `json:"changes"`
	ProcessingTimeMs  int64                 `json:"processing_time_ms"`
}

// RuleCount is how many replayed transactions violated one rule
type RuleCount struct {
	RuleID string `json:"rule_id"`
	Count  int    `json:"count"`
}

// TransactionBacktest is one transaction whose static outcome changes
type TransactionBacktest struct {
	TransactionID  string                 `json:"transaction_id"`
	OriginalMethod models.DetectionMethod `json:"original_method"`
	WouldFlag      bool                   `json:"would_flag"`
	Violations     []string               `json:"violations,omitempty"`
}

// RunBacktest evaluates the candidate policy against recent log records.
// Behavioral and model stages are not replayed since they depend on profile state at decision time.
func (s *BacktestService) RunBacktest(ctx context.Context, req *BacktestRequest) (*BacktestResult, error) {
	startTime := time.Now()

	if err := ValidatePolicy(req.Policy); err != nil {
		return nil, err
	}

	sample := req.SampleSize
	if sample <= 0 {
		sample = defaultBacktestSample
	}
	if sample > maxBacktestSample {
		sample = maxBacktestSample
	}

	records, err := s.txLog.FindRecent(ctx, sample)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	engine := NewStaticRuleEngine(NewPolicyStore(req.Policy))
	result := &BacktestResult{
		Policy:            req.Policy,
		TotalTransactions: len(records),
		Changes:           make([]TransactionBacktest, 0),
	}
	ruleTriggers := make(map[string]int, len(engine.rules))

	for _, rec := range records {
		var violations []string
		for _, rule := range engine.rules {
			if msg, violated := rule.Check(&rec.Transaction, req.Policy); violated {
				violations = append(violations, msg)
				ruleTriggers[rule.ID]++
			}
		}

		wouldFlag := len(violations) > 0
		wasFlagged := rec.DetectionMethod == models.MethodStaticRules
		if wouldFlag {
			result.WouldFlag++
		}
		if wasFlagged {
			result.CurrentlyFlagged++
		}
		if wouldFlag == wasFlagged {
			continue
		}

		if wouldFlag {
			result.NewlyFlagged++
		} else {
			result.Cleared++
		}
		if len(result.Changes) < maxBacktestChanges {
			result.Changes = append(result.Changes, TransactionBacktest{
				TransactionID:  rec.TransactionID,
				OriginalMethod: rec.DetectionMethod,
				WouldFlag:      wouldFlag,
				Violations:     violations,
			})
		}
	}

	result.RuleCounts = make([]RuleCount, 0, len(ruleTriggers))
	for _, rule := range engine.rules {
		if n := ruleTriggers[rule.ID]; n > 0 {
			result.RuleCounts = append(result.RuleCounts, RuleCount{RuleID: rule.ID, Count: n})
		}
	}
	sort.SliceStable(result.RuleCounts, func(i, j int) bool {
		return result.RuleCounts[i].Count > result.RuleCounts[j].Count
	})
	result.ProcessingTimeMs = time.Since(startTime).Milliseconds()

	log.Info().
		Int("total", result.TotalTransactions).
		Int("would_flag", result.WouldFlag).
		Int("newly_flagged", result.NewlyFlagged).
		Int("cleared", result.Cleared).
		Int64("processing_time_ms", result.ProcessingTimeMs).
		Msg("Policy backtest complete")

	return result, nil
}
