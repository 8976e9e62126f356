package scoring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/fraud-engine/configs"
	"github.com/enterprise/fraud-engine/internal/models"
	"github.com/enterprise/fraud-engine/internal/queue"
)

type fakeStream struct {
	mu         sync.Mutex
	pending    []queue.StreamMessage
	published  []*models.TransactionEvent
	acked      []string
	deadLetter []*models.TransactionEvent
	consumeErr error
}

func (s *fakeStream) Consume(ctx context.Context, _ string, count int64, block time.Duration) ([]queue.StreamMessage, error) {
	s.mu.Lock()
	if s.consumeErr != nil {
		err := s.consumeErr
		s.mu.Unlock()
		return nil, err
	}
	n := int(count)
	if n > len(s.pending) {
		n = len(s.pending)
	}
	batch := s.pending[:n]
	s.pending = s.pending[n:]
	s.mu.Unlock()

	if len(batch) == 0 {
		select {
		case <-ctx.Done():
		case <-time.After(block):
		}
	}
	return batch, nil
}

func (s *fakeStream) Publish(_ context.Context, event *models.TransactionEvent) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *event
	s.published = append(s.published, &copied)
	return "requeued", nil
}

func (s *fakeStream) AcknowledgeBatch(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked = append(s.acked, ids...)
	return nil
}

func (s *fakeStream) SendToDeadLetter(_ context.Context, event *models.TransactionEvent, _ error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadLetter = append(s.deadLetter, event)
	return nil
}

func (s *fakeStream) push(id string, tx models.Transaction, retries int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, queue.StreamMessage{
		ID:    id,
		Event: &models.TransactionEvent{EventID: id, Transaction: tx, RetryCount: retries},
	})
}

func (s *fakeStream) ackCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.acked)
}

// unloggedDetector decides everything clean but never reaches the transaction log
type unloggedDetector struct{}

func (unloggedDetector) Detect(context.Context, *models.Transaction) *models.Decision {
	return &models.Decision{
		Method:            models.MethodMLModel,
		PersistenceErrors: []string{"transaction_log: connection refused"},
	}
}

func workerConfig() configs.WorkerConfig {
	return configs.WorkerConfig{
		Concurrency:   1,
		BatchSize:     10,
		PollInterval:  5 * time.Millisecond,
		RetryAttempts: 2,
	}
}

func TestWorker_ProcessesAndAcknowledges(t *testing.T) {
	f := newFixture(t, cleanScorer())
	stream := &fakeStream{}
	stream.push("1-0", *txFor("T1", "C1", 2500), 0)
	stream.push("2-0", *txFor("T2", "C2", 500000), 0)

	w := NewWorker("test", f.pipeline, stream, workerConfig())
	w.processBatch(context.Background(), "test-0")

	assert.Equal(t, []string{"1-0", "2-0"}, stream.acked)
	assert.Empty(t, stream.published)
	assert.Empty(t, stream.deadLetter)

	m := w.GetMetrics()
	assert.Equal(t, int64(2), m.ProcessedCount)
	assert.Equal(t, int64(1), m.FlaggedCount)
	assert.Zero(t, m.FailedCount)
	assert.Equal(t, 2, f.txLog.Len())
}

func TestWorker_InvalidTransactionGoesToDeadLetter(t *testing.T) {
	f := newFixture(t, cleanScorer())
	stream := &fakeStream{}
	bad := *txFor("T1", "C1", 0)
	bad.SenderAccountID = ""
	stream.push("1-0", bad, 0)

	w := NewWorker("test", f.pipeline, stream, workerConfig())
	w.processBatch(context.Background(), "test-0")

	require.Len(t, stream.deadLetter, 1)
	assert.Equal(t, "T1", stream.deadLetter[0].Transaction.TransactionID)
	assert.Empty(t, stream.published)
	assert.Equal(t, []string{"1-0"}, stream.acked)
	assert.Zero(t, f.txLog.Len())
	assert.Equal(t, int64(1), w.GetMetrics().DeadLetterCount)
}

func TestWorker_UnloggedDecisionIsRequeued(t *testing.T) {
	stream := &fakeStream{}
	stream.push("1-0", *txFor("T1", "C1", 2500), 0)

	w := NewWorker("test", unloggedDetector{}, stream, workerConfig())
	w.processBatch(context.Background(), "test-0")

	require.Len(t, stream.published, 1)
	assert.Equal(t, 1, stream.published[0].RetryCount)
	assert.Empty(t, stream.deadLetter)
	assert.Equal(t, []string{"1-0"}, stream.acked)
	assert.Equal(t, int64(1), w.GetMetrics().FailedCount)
}

func TestWorker_RetriesExhaustedGoesToDeadLetter(t *testing.T) {
	stream := &fakeStream{}
	stream.push("1-0", *txFor("T1", "C1", 2500), 2)

	w := NewWorker("test", unloggedDetector{}, stream, workerConfig())
	w.processBatch(context.Background(), "test-0")

	assert.Empty(t, stream.published)
	require.Len(t, stream.deadLetter, 1)
	assert.Equal(t, 2, stream.deadLetter[0].RetryCount)
}

func TestWorker_ConsumeErrorIsNotFatal(t *testing.T) {
	stream := &fakeStream{consumeErr: errors.New("connection refused")}
	w := NewWorker("test", unloggedDetector{}, stream, workerConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.processBatch(ctx, "test-0")

	assert.Empty(t, stream.acked)
	assert.Zero(t, w.GetMetrics().FailedCount)
}

func TestWorkerPool_DrainsStream(t *testing.T) {
	f := newFixture(t, cleanScorer())
	stream := &fakeStream{}
	for i, id := range []string{"T1", "T2", "T3", "T4", "T5", "T6"} {
		stream.push(id+"-msg", *txFor(id, "C"+string(rune('A'+i%3)), 1000), 0)
	}

	cfg := workerConfig()
	cfg.BatchSize = 2
	pool := NewWorkerPool(2, f.pipeline, stream, cfg)
	pool.Start(context.Background())

	require.Eventually(t, func() bool { return stream.ackCount() == 6 }, 2*time.Second, 5*time.Millisecond)
	pool.Stop()

	metrics := pool.GetAggregatedMetrics()
	assert.Equal(t, int64(6), metrics["total_processed"])
	assert.Equal(t, int64(0), metrics["total_flagged"])
	assert.Equal(t, 2, metrics["active_workers"])
	assert.Equal(t, 6, f.txLog.Len())
}

func TestWorker_StopIsIdempotent(t *testing.T) {
	w := NewWorker("test", unloggedDetector{}, &fakeStream{}, workerConfig())
	w.Start(context.Background())
	w.Stop()
	assert.NotPanics(t, w.Stop)
}
