package scoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-engine/configs"
	"github.com/enterprise/fraud-engine/internal/models"
	"github.com/enterprise/fraud-engine/internal/queue"
)

// EventStream is the queue the worker consumes transactions from
type EventStream interface {
	Consume(ctx context.Context, consumerName string, count int64, block time.Duration) ([]queue.StreamMessage, error)
	Publish(ctx context.Context, event *models.TransactionEvent) (string, error)
	AcknowledgeBatch(ctx context.Context, messageIDs []string) error
	SendToDeadLetter(ctx context.Context, event *models.TransactionEvent, cause error) error
}

// Detector decides one transaction
type Detector interface {
	Detect(ctx context.Context, tx *models.Transaction) *models.Decision
}

// permanentError marks failures that retrying cannot fix
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Worker runs ingested transactions through the detection pipeline
type Worker struct {
	id       string
	detector Detector
	stream   EventStream
	config   configs.WorkerConfig
	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
	metrics  *WorkerMetrics
}

// WorkerMetrics tracks worker performance
type WorkerMetrics struct {
	mu                sync.RWMutex
	ProcessedCount    int64
	FlaggedCount      int64
	FailedCount       int64
	DeadLetterCount   int64
	TotalProcessingMs int64
	LastProcessedAt   time.Time
}

// NewWorker creates a new detection worker
func NewWorker(id string, detector Detector, stream EventStream, config configs.WorkerConfig) *Worker {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.BatchSize < 1 {
		config.BatchSize = 1
	}
	return &Worker{
		id:       id,
		detector: detector,
		stream:   stream,
		config:   config,
		stopCh:   make(chan struct{}),
		metrics:  &WorkerMetrics{},
	}
}

// Start launches the consumer goroutines and returns immediately
func (w *Worker) Start(ctx context.Context) {
	log.Info().
		Str("worker_id", w.id).
		Int("concurrency", w.config.Concurrency).
		Msg("Starting detection worker")

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.processLoop(ctx, fmt.Sprintf("%s-%d", w.id, i))
	}
}

// Stop signals the consumers and waits for in-flight batches
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		log.Info().Str("worker_id", w.id).Msg("Stopping worker...")
		close(w.stopCh)
	})
	w.wg.Wait()
	log.Info().Str("worker_id", w.id).Msg("Worker stopped")
}

func (w *Worker) processLoop(ctx context.Context, consumerName string) {
	defer w.wg.Done()

	log.Debug().Str("consumer", consumerName).Msg("Worker goroutine started")

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
			w.processBatch(ctx, consumerName)
		}
	}
}

func (w *Worker) processBatch(ctx context.Context, consumerName string) {
	messages, err := w.stream.Consume(ctx, consumerName, int64(w.config.BatchSize), w.config.PollInterval)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error().Err(err).Str("consumer", consumerName).Msg("Failed to consume messages")
		select {
		case <-time.After(time.Second):
		case <-w.stopCh:
		case <-ctx.Done():
		}
		return
	}
	if len(messages) == 0 {
		return
	}

	ackIDs := make([]string, 0, len(messages))
	for _, msg := range messages {
		if err := w.processMessage(ctx, msg); err != nil {
			w.handleFailure(ctx, msg, err)
		}
		ackIDs = append(ackIDs, msg.ID)
	}

	if err := w.stream.AcknowledgeBatch(ctx, ackIDs); err != nil {
		log.Error().Err(err).Msg("Failed to acknowledge messages")
	}
}

func (w *Worker) processMessage(ctx context.Context, msg queue.StreamMessage) error {
	start := time.Now()
	tx := &msg.Event.Transaction

	if err := binding.Validator.ValidateStruct(tx); err != nil {
		return permanentError{fmt.Errorf("invalid transaction: %w", err)}
	}

	decision := w.detector.Detect(ctx, tx)
	if !decision.Logged {
		return fmt.Errorf("decision for %s was not logged: %v", tx.TransactionID, decision.PersistenceErrors)
	}

	elapsed := time.Since(start)
	w.metrics.mu.Lock()
	w.metrics.ProcessedCount++
	if decision.Result.IsFraud {
		w.metrics.FlaggedCount++
	}
	w.metrics.TotalProcessingMs += elapsed.Milliseconds()
	w.metrics.LastProcessedAt = time.Now()
	w.metrics.mu.Unlock()

	return nil
}

// handleFailure requeues transient failures and parks the rest
func (w *Worker) handleFailure(ctx context.Context, msg queue.StreamMessage, cause error) {
	event := msg.Event
	log.Error().
		Err(cause).
		Str("message_id", msg.ID).
		Str("transaction_id", event.Transaction.TransactionID).
		Int("retry_count", event.RetryCount).
		Msg("Failed to process message")

	w.metrics.mu.Lock()
	w.metrics.FailedCount++
	w.metrics.mu.Unlock()

	_, permanent := cause.(permanentError)
	if !permanent && event.RetryCount < w.config.RetryAttempts {
		event.RetryCount++
		if _, err := w.stream.Publish(ctx, event); err != nil {
			log.Error().Err(err).Msg("Failed to requeue message")
		}
		return
	}

	if err := w.stream.SendToDeadLetter(ctx, event, cause); err != nil {
		log.Error().Err(err).Msg("Failed to send to dead letter stream")
		return
	}
	w.metrics.mu.Lock()
	w.metrics.DeadLetterCount++
	w.metrics.mu.Unlock()
}

// GetMetrics returns a snapshot of the worker metrics
func (w *Worker) GetMetrics() WorkerMetrics {
	w.metrics.mu.RLock()
	defer w.metrics.mu.RUnlock()
	return WorkerMetrics{
		ProcessedCount:    w.metrics.ProcessedCount,
		FlaggedCount:      w.metrics.FlaggedCount,
		FailedCount:       w.metrics.FailedCount,
		DeadLetterCount:   w.metrics.DeadLetterCount,
		TotalProcessingMs: w.metrics.TotalProcessingMs,
		LastProcessedAt:   w.metrics.LastProcessedAt,
	}
}

// WorkerPool manages multiple workers
type WorkerPool struct {
	workers []*Worker
}

// NewWorkerPool creates numWorkers workers sharing one detector and stream
func NewWorkerPool(numWorkers int, detector Detector, stream EventStream, config configs.WorkerConfig) *WorkerPool {
	pool := &WorkerPool{workers: make([]*Worker, numWorkers)}
	for i := 0; i < numWorkers; i++ {
		pool.workers[i] = NewWorker(fmt.Sprintf("worker-%d", i), detector, stream, config)
	}
	return pool
}

// Start starts all workers in the pool
func (p *WorkerPool) Start(ctx context.Context) {
	log.Info().Int("num_workers", len(p.workers)).Msg("Starting worker pool")
	for _, w := range p.workers {
		w.Start(ctx)
	}
}

// Stop stops all workers in the pool
func (p *WorkerPool) Stop() {
	log.Info().Msg("Stopping worker pool")
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Stop()
		}(w)
	}
	wg.Wait()
	log.Info().Msg("Worker pool stopped")
}

// GetAggregatedMetrics returns aggregated metrics from all workers
func (p *WorkerPool) GetAggregatedMetrics() map[string]interface{} {
	var processed, flagged, failed, deadLettered, processingMs int64
	var lastProcessedAt time.Time

	for _, w := range p.workers {
		m := w.GetMetrics()
		processed += m.ProcessedCount
		flagged += m.FlaggedCount
		failed += m.FailedCount
		deadLettered += m.DeadLetterCount
		processingMs += m.TotalProcessingMs
		if m.LastProcessedAt.After(lastProcessedAt) {
			lastProcessedAt = m.LastProcessedAt
		}
	}

	avgProcessingMs := float64(0)
	if processed > 0 {
		avgProcessingMs = float64(processingMs) / float64(processed)
	}

	return map[string]interface{}{
		"total_processed":   processed,
		"total_flagged":     flagged,
		"total_failed":      failed,
		"total_dead_letter": deadLettered,
		"avg_processing_ms": avgProcessingMs,
		"last_processed_at": lastProcessedAt,
		"active_workers":    len(p.workers),
	}
}
