package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-engine/internal/models"
)

// Publisher enqueues transactions for the detection workers
type Publisher interface {
	Publish(ctx context.Context, event *models.TransactionEvent) (string, error)
	PublishBatch(ctx context.Context, events []*models.TransactionEvent) ([]string, error)
}

// BatchTransactionRequest represents a batch of transactions
type BatchTransactionRequest struct {
	Transactions []models.Transaction `json:"transactions" binding:"required,min=1,max=1000,dive"`
}

// IngestResponse acknowledges one queued transaction
type IngestResponse struct {
	TransactionID string    `json:"transaction_id"`
	EventID       string    `json:"event_id"`
	MessageID     string    `json:"message_id,omitempty"`
	Status        string    `json:"status"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
	Message       string    `json:"message,omitempty"`
}

// BatchIngestResponse represents the response for batch ingestion
type BatchIngestResponse struct {
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
	Results    []IngestResponse `json:"results"`
}

const (
	StatusQueued = "queued"
	StatusFailed = "failed"
)

// IngestionService accepts transactions for asynchronous detection
type IngestionService struct {
	publisher Publisher
	now       func() time.Time
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(publisher Publisher) *IngestionService {
	return &IngestionService{
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// IngestTransaction enqueues one validated transaction. Unlike synchronous detection,
// a queue failure is an error because nothing else will pick the transaction up.
func (s *IngestionService) IngestTransaction(ctx context.Context, tx *models.Transaction, requestID string) (*IngestResponse, error) {
	start := time.Now()
	event := s.newEvent(tx, requestID)

	msgID, err := s.publisher.Publish(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue transaction %s: %w", tx.TransactionID, err)
	}

	log.Info().
		Str("transaction_id", tx.TransactionID).
		Str("customer_id", tx.SenderCustomerID).
		Str("message_id", msgID).
		Str("request_id", requestID).
		Float64("amount", tx.AmountValue).
		Dur("processing_time", time.Since(start)).
		Msg("Transaction ingested")

	return &IngestResponse{
		TransactionID: tx.TransactionID,
		EventID:       event.EventID,
		MessageID:     msgID,
		Status:        StatusQueued,
		EnqueuedAt:    event.EnqueuedAt,
	}, nil
}

// IngestBatch enqueues a batch in one round trip; duplicates within the batch are rejected
func (s *IngestionService) IngestBatch(ctx context.Context, req *BatchTransactionRequest, requestID string) (*BatchIngestResponse, error) {
	start := time.Now()
	response := &BatchIngestResponse{Results: make([]IngestResponse, 0, len(req.Transactions))}

	seen := make(map[string]struct{}, len(req.Transactions))
	var events []*models.TransactionEvent
	var positions []int

	for i := range req.Transactions {
		tx := &req.Transactions[i]
		if _, dup := seen[tx.TransactionID]; dup {
			response.Failed++
			response.Results = append(response.Results, IngestResponse{
				TransactionID: tx.TransactionID,
				Status:        StatusFailed,
				Message:       "duplicate transaction_id in batch",
			})
			continue
		}
		seen[tx.TransactionID] = struct{}{}

		event := s.newEvent(tx, requestID)
		events = append(events, event)
		positions = append(positions, len(response.Results))
		response.Results = append(response.Results, IngestResponse{
			TransactionID: tx.TransactionID,
			EventID:       event.EventID,
			Status:        StatusQueued,
			EnqueuedAt:    event.EnqueuedAt,
		})
	}

	ids, err := s.publisher.PublishBatch(ctx, events)
	if err != nil {
		log.Error().Err(err).Int("events", len(events)).Msg("Failed to batch publish events")
		for _, pos := range positions {
			response.Results[pos].Status = StatusFailed
			response.Results[pos].Message = fmt.Sprintf("enqueue failed: %v", err)
		}
		response.Failed += len(positions)
	} else {
		for i, pos := range positions {
			if i < len(ids) {
				response.Results[pos].MessageID = ids[i]
			}
		}
		response.Successful = len(positions)
	}

	log.Info().
		Int("total", len(req.Transactions)).
		Int("successful", response.Successful).
		Int("failed", response.Failed).
		Dur("processing_time", time.Since(start)).
		Msg("Batch ingestion completed")

	return response, nil
}

func (s *IngestionService) newEvent(tx *models.Transaction, requestID string) *models.TransactionEvent {
	now := s.now()
	if tx.TransactionTimestamp.IsZero() {
		tx.TransactionTimestamp = now
	}
	return &models.TransactionEvent{
		EventID:     uuid.New().String(),
		RequestID:   requestID,
		Transaction: *tx,
		EnqueuedAt:  now,
	}
}
