package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-engine/internal/models"
)

// DecisionHandler processes one decoded event
type DecisionHandler func(ctx context.Context, event *models.DecisionEvent) error

// DecisionConsumer is a sarama consumer group handler for the decision topic
type DecisionConsumer struct {
	handle DecisionHandler
}

// NewDecisionConsumer creates a consumer that passes every event to handle
func NewDecisionConsumer(handle DecisionHandler) *DecisionConsumer {
	return &DecisionConsumer{handle: handle}
}

func (c *DecisionConsumer) Setup(sarama.ConsumerGroupSession) error {
	log.Info().Msg("Decision consumer session started")
	return nil
}

func (c *DecisionConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info().Msg("Decision consumer session ended")
	return nil
}

// ConsumeClaim marks every message, including ones that fail, so a poison message cannot stall the partition
func (c *DecisionConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.Process(session.Context(), message); err != nil {
				log.Error().
					Err(err).
					Str("topic", message.Topic).
					Int32("partition", message.Partition).
					Int64("offset", message.Offset).
					Msg("Failed to process decision event")
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// Process decodes a message and hands it to the handler
func (c *DecisionConsumer) Process(ctx context.Context, message *sarama.ConsumerMessage) error {
	event, err := DecodeDecisionEvent(message.Value)
	if err != nil {
		return err
	}
	return c.handle(ctx, event)
}

// DecodeDecisionEvent parses a decision payload
func DecodeDecisionEvent(payload []byte) (*models.DecisionEvent, error) {
	var event models.DecisionEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse decision event: %w", err)
	}
	if event.TransactionID == "" {
		return nil, fmt.Errorf("decision event without transaction id")
	}
	return &event, nil
}
