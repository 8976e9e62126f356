package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-engine/internal/models"
	"github.com/enterprise/fraud-engine/internal/repositories"
)

// Flagged-score increments by risk tier
const (
	flaggedIncrementHigh   = 10
	flaggedIncrementMedium = 5
	flaggedIncrementLow    = 2
)

// StageOutcome is what one pipeline stage reports; Decided stops the chain
type StageOutcome struct {
	Decided    bool
	Result     *models.FraudResult
	Violations []string
	Analysis   *models.AnalysisBundle
}

// Stage is one step of the detection chain
type Stage struct {
	Method models.DetectionMethod
	Run    func(ctx context.Context, tx *models.Transaction, profile *models.ClientProfile) StageOutcome
}

// DecisionSink receives every decision after it has been persisted.
// Sinks run in their own goroutine and must not block the caller.
type DecisionSink func(ctx context.Context, tx *models.Transaction, d *models.Decision)

// PipelineConfig tunes persistence behavior
type PipelineConfig struct {
	LogWriteRetries int
	RetryBackoff    time.Duration
	// PersistTimeout bounds the log write and profile mutation. They run
	// detached from the caller's cancellation.
	PersistTimeout time.Duration
}

// FraudDecisionPipeline runs static rules, behavioral analysis and the external model in order
type FraudDecisionPipeline struct {
	stages   []Stage
	profiles repositories.ProfileStore
	txLog    repositories.TransactionLog
	locker   *KeyedLocker
	sinks    []DecisionSink
	cfg      PipelineConfig
}

// NewFraudDecisionPipeline wires the three stages against the given stores
func NewFraudDecisionPipeline(
	static *StaticRuleEngine,
	behavioral *BehavioralRuleEngine,
	scorer ExternalScorer,
	profiles repositories.ProfileStore,
	txLog repositories.TransactionLog,
	cfg PipelineConfig,
) *FraudDecisionPipeline {
	if cfg.LogWriteRetries < 1 {
		cfg.LogWriteRetries = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 50 * time.Millisecond
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}

	p := &FraudDecisionPipeline{
		profiles: profiles,
		txLog:    txLog,
		locker:   NewKeyedLocker(),
		cfg:      cfg,
	}
	p.stages = []Stage{
		{Method: models.MethodStaticRules, Run: staticStage(static)},
		{Method: models.MethodBehavioral, Run: behavioralStage(behavioral)},
		{Method: models.MethodMLModel, Run: modelStage(scorer)},
	}
	return p
}

// AddSink registers a consumer notified after every decision
func (p *FraudDecisionPipeline) AddSink(sink DecisionSink) {
	p.sinks = append(p.sinks, sink)
}

// Detect decides tx and persists the outcome. It always returns a decision;
// persistence problems are reported in Decision.PersistenceErrors.
func (p *FraudDecisionPipeline) Detect(ctx context.Context, tx *models.Transaction) *models.Decision {
	start := time.Now()

	unlock := p.locker.Lock(tx.SenderCustomerID)
	defer unlock()

	decision := &models.Decision{}

	profile, err := p.profiles.FindByCustomerID(ctx, tx.SenderCustomerID)
	if err != nil {
		profile = nil
		if !errors.Is(err, repositories.ErrProfileNotFound) {
			p.persistenceError(decision, "profile_lookup", tx, err)
		}
	}
	decision.Profile = profile

	var analysis *models.AnalysisBundle
	for _, stage := range p.stages {
		outcome := stage.Run(ctx, tx, profile)
		if outcome.Analysis != nil {
			analysis = outcome.Analysis
		}
		if !outcome.Decided {
			continue
		}
		decision.Result = *outcome.Result
		decision.Method = stage.Method
		decision.Violations = outcome.Violations
		break
	}
	if decision.Method != models.MethodStaticRules {
		decision.Analysis = analysis
	}

	// A client that disconnects after the decision still gets its audit record
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.PersistTimeout)
	p.persist(persistCtx, tx, decision)
	cancel()

	elapsed := time.Since(start)
	decisionsTotal.WithLabelValues(string(decision.Method), outcomeLabel(decision.Result.IsFraud)).Inc()
	decisionLatency.WithLabelValues(string(decision.Method)).Observe(elapsed.Seconds())

	log.Info().
		Str("transaction_id", tx.TransactionID).
		Str("customer_id", tx.SenderCustomerID).
		Float64("amount", tx.AmountValue).
		Bool("is_fraud", decision.Result.IsFraud).
		Float64("risk_score", decision.Result.RiskScore).
		Str("severity", string(decision.Result.FraudSeverity)).
		Str("detection_method", string(decision.Method)).
		Dur("latency", elapsed).
		Msg("Transaction decided")

	for _, sink := range p.sinks {
		go sink(context.WithoutCancel(ctx), tx, decision)
	}

	return decision
}

// persist writes the log record first and mutates the profile only once the record exists
func (p *FraudDecisionPipeline) persist(ctx context.Context, tx *models.Transaction, d *models.Decision) {
	rec := models.NewTransactionRecord(tx, d.Result, d.Method, d.Violations)
	err := p.writeLog(ctx, rec)
	if errors.Is(err, repositories.ErrDuplicateTransaction) {
		// Replays must not count twice against the profile
		log.Warn().Str("transaction_id", tx.TransactionID).Msg("Transaction already logged, skipping profile update")
		d.PersistenceErrors = append(d.PersistenceErrors, err.Error())
		d.Logged = true
		return
	}
	if err != nil {
		// Without an audit record the profile is left alone so a retry starts clean
		p.persistenceError(d, "transaction_log", tx, err)
		return
	}
	d.Logged = true

	if d.Result.IsFraud {
		score, err := p.profiles.IncrementFlaggedScore(ctx, tx.SenderCustomerID, FlaggedScoreIncrement(d.Result.RiskScore))
		switch {
		case errors.Is(err, repositories.ErrProfileNotFound):
		case err != nil:
			p.persistenceError(d, "flagged_score", tx, err)
		case d.Profile != nil:
			d.Profile.FlaggedScore = score
		}
		return
	}

	if d.Method != models.MethodMLModel || d.Profile == nil {
		return
	}

	ts := tx.TransactionTimestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	entry := models.HistoryEntry{TransactionID: tx.TransactionID, Amount: tx.AmountValue, Timestamp: ts}

	updated, err := p.profiles.Update(ctx, tx.SenderCustomerID, func(profile *models.ClientProfile) error {
		profile.CurrentMonthSpend += tx.AmountValue
		profile.History.Append(entry)
		return nil
	})
	if err != nil {
		p.persistenceError(d, "profile_update", tx, err)
		return
	}
	d.Profile = updated
}

// writeLog retries the append with linear backoff; duplicates are not retried
func (p *FraudDecisionPipeline) writeLog(ctx context.Context, rec *models.TransactionRecord) error {
	var err error
	for attempt := 1; attempt <= p.cfg.LogWriteRetries; attempt++ {
		err = p.txLog.Create(ctx, rec)
		if err == nil || errors.Is(err, repositories.ErrDuplicateTransaction) {
			return err
		}
		if attempt == p.cfg.LogWriteRetries {
			break
		}

		log.Warn().
			Err(err).
			Str("transaction_id", rec.TransactionID).
			Int("attempt", attempt).
			Msg("Transaction log write failed, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction log write aborted: %w", ctx.Err())
		case <-time.After(time.Duration(attempt) * p.cfg.RetryBackoff):
		}
	}
	return fmt.Errorf("transaction log write failed after %d attempts: %w", p.cfg.LogWriteRetries, err)
}

func (p *FraudDecisionPipeline) persistenceError(d *models.Decision, operation string, tx *models.Transaction, err error) {
	persistenceFailures.WithLabelValues(operation).Inc()
	log.Error().
		Err(err).
		Str("operation", operation).
		Str("transaction_id", tx.TransactionID).
		Str("customer_id", tx.SenderCustomerID).
		Msg("Persistence failure, decision stands")
	d.PersistenceErrors = append(d.PersistenceErrors, fmt.Sprintf("%s: %v", operation, err))
}

// FlaggedScoreIncrement maps a fraud risk score to its flagged-score tier
func FlaggedScoreIncrement(risk float64) int {
	switch {
	case risk >= 0.7:
		return flaggedIncrementHigh
	case risk >= 0.4:
		return flaggedIncrementMedium
	default:
		return flaggedIncrementLow
	}
}

func staticStage(engine *StaticRuleEngine) func(context.Context, *models.Transaction, *models.ClientProfile) StageOutcome {
	return func(_ context.Context, tx *models.Transaction, _ *models.ClientProfile) StageOutcome {
		result, violations, fired := engine.Evaluate(tx)
		if !fired {
			return StageOutcome{}
		}
		return StageOutcome{Decided: true, Result: result, Violations: violations}
	}
}

func behavioralStage(engine *BehavioralRuleEngine) func(context.Context, *models.Transaction, *models.ClientProfile) StageOutcome {
	return func(_ context.Context, tx *models.Transaction, profile *models.ClientProfile) StageOutcome {
		outcome := engine.Evaluate(tx, profile)
		if outcome.Result == nil {
			return StageOutcome{Analysis: outcome.Analysis}
		}
		return StageOutcome{
			Decided:    true,
			Result:     outcome.Result,
			Violations: outcome.Violations,
			Analysis:   outcome.Analysis,
		}
	}
}

func modelStage(scorer ExternalScorer) func(context.Context, *models.Transaction, *models.ClientProfile) StageOutcome {
	return func(ctx context.Context, tx *models.Transaction, profile *models.ClientProfile) StageOutcome {
		outcome := scoreWithModel(ctx, scorer, BuildMLRequest(tx, profile), tx.TransactionID)
		result := MapScoreOutcome(outcome)
		return StageOutcome{Decided: true, Result: &result}
	}
}
