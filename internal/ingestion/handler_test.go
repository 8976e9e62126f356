package ingestion

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/fraud-engine/internal/models"
)

type recordingPublisher struct {
	events []*models.TransactionEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event *models.TransactionEvent) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, event)
	return fmt.Sprintf("%d-0", len(p.events)), nil
}

func (p *recordingPublisher) PublishBatch(ctx context.Context, events []*models.TransactionEvent) ([]string, error) {
	var ids []string
	for _, e := range events {
		id, err := p.Publish(ctx, e)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

var fixedNow = time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)

func newService(p Publisher) *IngestionService {
	s := NewIngestionService(p)
	s.now = func() time.Time { return fixedNow }
	return s
}

func tx(id string) models.Transaction {
	return models.Transaction{
		TransactionID:    id,
		AmountValue:      100,
		SenderCustomerID: "C1",
		SenderAccountID:  "ACC-C1",
	}
}

func TestIngestTransaction(t *testing.T) {
	pub := &recordingPublisher{}
	in := tx("T1")

	resp, err := newService(pub).IngestTransaction(context.Background(), &in, "req-1")
	require.NoError(t, err)

	assert.Equal(t, "T1", resp.TransactionID)
	assert.Equal(t, StatusQueued, resp.Status)
	assert.Equal(t, "1-0", resp.MessageID)
	assert.NotEmpty(t, resp.EventID)

	require.Len(t, pub.events, 1)
	event := pub.events[0]
	assert.Equal(t, "req-1", event.RequestID)
	assert.Zero(t, event.RetryCount)
	assert.Equal(t, fixedNow, event.EnqueuedAt)
	assert.Equal(t, fixedNow, event.Transaction.TransactionTimestamp)
}

func TestIngestTransaction_KeepsTimestamp(t *testing.T) {
	pub := &recordingPublisher{}
	in := tx("T1")
	in.TransactionTimestamp = fixedNow.Add(-time.Hour)

	_, err := newService(pub).IngestTransaction(context.Background(), &in, "")
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(-time.Hour), pub.events[0].Transaction.TransactionTimestamp)
}

func TestIngestTransaction_QueueFailure(t *testing.T) {
	in := tx("T1")
	_, err := newService(&recordingPublisher{err: errors.New("READONLY")}).IngestTransaction(context.Background(), &in, "")
	assert.ErrorContains(t, err, "T1")
}

func TestIngestBatch(t *testing.T) {
	pub := &recordingPublisher{}
	req := &BatchTransactionRequest{Transactions: []models.Transaction{tx("T1"), tx("T2"), tx("T1")}}

	resp, err := newService(pub).IngestBatch(context.Background(), req, "req-2")
	require.NoError(t, err)

	assert.Equal(t, 2, resp.Successful)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "1-0", resp.Results[0].MessageID)
	assert.Equal(t, "2-0", resp.Results[1].MessageID)
	assert.Equal(t, StatusFailed, resp.Results[2].Status)
	assert.Len(t, pub.events, 2)
}

func TestIngestBatch_QueueFailure(t *testing.T) {
	req := &BatchTransactionRequest{Transactions: []models.Transaction{tx("T1"), tx("T2")}}

	resp, err := newService(&recordingPublisher{err: errors.New("timeout")}).IngestBatch(context.Background(), req, "")
	require.NoError(t, err)

	assert.Zero(t, resp.Successful)
	assert.Equal(t, 2, resp.Failed)
	for _, r := range resp.Results {
		assert.Equal(t, StatusFailed, r.Status)
		assert.Contains(t, r.Message, "timeout")
	}
}
