package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-engine/configs"
	"github.com/enterprise/fraud-engine/internal/models"
)

// claimIdle is how long a delivered message may stay unacknowledged before another consumer takes it
const claimIdle = 30 * time.Second

// NewRedisClient parses the URL and verifies the connection
func NewRedisClient(cfg configs.RedisConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisStreamClient moves transactions awaiting detection through a Redis Stream
type RedisStreamClient struct {
	client           *redis.Client
	streamName       string
	consumerGroup    string
	deadLetterStream string
}

// NewRedisStreamClient creates the stream client and its consumer group
func NewRedisStreamClient(client *redis.Client, cfg configs.RedisConfig, deadLetterStream string) (*RedisStreamClient, error) {
	rsc := &RedisStreamClient{
		client:           client,
		streamName:       cfg.StreamName,
		consumerGroup:    cfg.ConsumerGroup,
		deadLetterStream: deadLetterStream,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rsc.createConsumerGroup(ctx); err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	log.Info().
		Str("stream", rsc.streamName).
		Str("group", rsc.consumerGroup).
		Msg("Redis Stream client initialized")
	return rsc, nil
}

func (r *RedisStreamClient) createConsumerGroup(ctx context.Context) error {
	err := r.client.XGroupCreateMkStream(ctx, r.streamName, r.consumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Publish appends a transaction event to the stream
func (r *RedisStreamClient) Publish(ctx context.Context, event *models.TransactionEvent) (string, error) {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	msgID, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.streamName,
		Values: map[string]interface{}{
			"data":           string(eventJSON),
			"transaction_id": event.Transaction.TransactionID,
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish event: %w", err)
	}

	log.Debug().
		Str("message_id", msgID).
		Str("transaction_id", event.Transaction.TransactionID).
		Int("retry_count", event.RetryCount).
		Msg("Event published to stream")

	return msgID, nil
}

// PublishBatch appends several events in one round trip and returns their message ids
func (r *RedisStreamClient) PublishBatch(ctx context.Context, events []*models.TransactionEvent) ([]string, error) {
	if len(events) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, 0, len(events))
	for _, event := range events {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event: %w", err)
		}
		cmds = append(cmds, pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: r.streamName,
			Values: map[string]interface{}{
				"data":           string(eventJSON),
				"transaction_id": event.Transaction.TransactionID,
			},
		}))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to publish batch: %w", err)
	}

	ids := make([]string, len(cmds))
	for i, cmd := range cmds {
		ids[i] = cmd.Val()
	}
	return ids, nil
}

// Consume returns abandoned messages first, then blocks for new ones
func (r *RedisStreamClient) Consume(ctx context.Context, consumerName string, count int64, block time.Duration) ([]StreamMessage, error) {
	pending, err := r.claimPendingMessages(ctx, consumerName, count)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to claim pending messages")
	}
	if len(pending) > 0 {
		return pending, nil
	}

	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.consumerGroup,
		Consumer: consumerName,
		Streams:  []string{r.streamName, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var messages []StreamMessage
	for _, stream := range streams {
		messages = append(messages, r.decode(ctx, stream.Messages)...)
	}
	return messages, nil
}

func (r *RedisStreamClient) claimPendingMessages(ctx context.Context, consumerName string, count int64) ([]StreamMessage, error) {
	claimed, _, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   r.streamName,
		Group:    r.consumerGroup,
		Consumer: consumerName,
		MinIdle:  claimIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil {
		return nil, err
	}
	return r.decode(ctx, claimed), nil
}

// decode parses messages; undecodable ones are acknowledged and dropped so they cannot loop forever
func (r *RedisStreamClient) decode(ctx context.Context, raw []redis.XMessage) []StreamMessage {
	var messages []StreamMessage
	for _, msg := range raw {
		event, err := parseMessage(msg)
		if err != nil {
			log.Error().Err(err).Str("message_id", msg.ID).Msg("Dropping malformed stream message")
			_ = r.Acknowledge(ctx, msg.ID)
			continue
		}
		messages = append(messages, StreamMessage{ID: msg.ID, Event: event})
	}
	return messages
}

func parseMessage(msg redis.XMessage) (*models.TransactionEvent, error) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid message format")
	}

	var event models.TransactionEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &event, nil
}

// Acknowledge marks one message as processed
func (r *RedisStreamClient) Acknowledge(ctx context.Context, messageID string) error {
	return r.AcknowledgeBatch(ctx, []string{messageID})
}

// AcknowledgeBatch marks messages as processed
func (r *RedisStreamClient) AcknowledgeBatch(ctx context.Context, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if err := r.client.XAck(ctx, r.streamName, r.consumerGroup, messageIDs...).Err(); err != nil {
		return fmt.Errorf("failed to acknowledge messages: %w", err)
	}
	return nil
}

// SendToDeadLetter parks an event that exhausted its retries
func (r *RedisStreamClient) SendToDeadLetter(ctx context.Context, event *models.TransactionEvent, cause error) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.deadLetterStream,
		Values: map[string]interface{}{
			"data":  string(eventJSON),
			"error": cause.Error(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to send to dead letter: %w", err)
	}

	log.Warn().
		Err(cause).
		Str("transaction_id", event.Transaction.TransactionID).
		Str("stream", r.deadLetterStream).
		Msg("Event sent to dead letter stream")
	return nil
}

// GetStreamInfo returns the stream length and this group's backlog
func (r *RedisStreamClient) GetStreamInfo(ctx context.Context) (*StreamInfo, error) {
	info, err := r.client.XInfoStream(ctx, r.streamName).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get stream info: %w", err)
	}

	groups, err := r.client.XInfoGroups(ctx, r.streamName).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get groups info: %w", err)
	}

	stats := &StreamInfo{Length: info.Length, Groups: len(groups)}
	for _, g := range groups {
		if g.Name == r.consumerGroup {
			stats.PendingCount = g.Pending
			stats.Lag = g.Lag
			break
		}
	}
	return stats, nil
}

// StreamMessage is one delivered event
type StreamMessage struct {
	ID    string
	Event *models.TransactionEvent
}

// StreamInfo contains stream statistics
type StreamInfo struct {
	Length       int64 `json:"length"`
	PendingCount int64 `json:"pending"`
	Lag          int64 `json:"lag"`
	Groups       int   `json:"groups"`
}
