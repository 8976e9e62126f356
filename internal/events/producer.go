package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-engine/configs"
	"github.com/enterprise/fraud-engine/internal/models"
)

// DecisionPublisher writes every decision to the Kafka decision topic
type DecisionPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewSaramaConfig returns the client settings shared by the producer and the consumer group
func NewSaramaConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Version = sarama.V3_0_0_0
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Return.Successes = true
	config.Producer.Retry.Max = 3
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true
	return config
}

// NewDecisionPublisher connects to the brokers, retrying while they come up
func NewDecisionPublisher(cfg configs.KafkaConfig, attempts int) (*DecisionPublisher, error) {
	var producer sarama.SyncProducer
	var err error
	for i := 0; i < attempts; i++ {
		producer, err = sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig())
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("Failed to connect to Kafka, retrying...")
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	log.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.DecisionTopic).Msg("Kafka decision publisher ready")
	return NewDecisionPublisherWithProducer(producer, cfg.DecisionTopic), nil
}

// NewDecisionPublisherWithProducer wraps an existing producer
func NewDecisionPublisherWithProducer(producer sarama.SyncProducer, topic string) *DecisionPublisher {
	return &DecisionPublisher{producer: producer, topic: topic}
}

// Publish sends one event keyed by customer so a customer's decisions stay ordered
func (p *DecisionPublisher) Publish(ctx context.Context, event *models.DecisionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal decision event: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.CustomerID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("detection_method"), Value: []byte(event.Method)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish decision event: %w", err)
	}

	log.Debug().
		Str("transaction_id", event.TransactionID).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("Decision event published")
	return nil
}

// HandleDecision publishes d; it has the pipeline sink signature
func (p *DecisionPublisher) HandleDecision(ctx context.Context, tx *models.Transaction, d *models.Decision) {
	if err := p.Publish(ctx, models.NewDecisionEvent(tx, d)); err != nil {
		log.Warn().Err(err).Str("transaction_id", tx.TransactionID).Msg("Decision event not published")
	}
}

// Close flushes and closes the producer
func (p *DecisionPublisher) Close() error {
	return p.producer.Close()
}
