// Package messaging forwards domain events to Kafka for notification consumers.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/memberhub/approval-workflow/internal/application/port"
	"github.com/memberhub/approval-workflow/internal/domain/event"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig holds producer settings
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	MaxAttempts  int
	WriteTimeout time.Duration
}

// KafkaPublisher implements port.EventPublisher. Messages are keyed by entity
// so all events of one application land on the same partition in order.
type KafkaPublisher struct {
	writer MessageWriter
	topic  string
	logger *zap.Logger
}

var _ port.EventPublisher = (*KafkaPublisher)(nil)

// NewKafkaWriter builds a writer with hash partitioning
func NewKafkaWriter(cfg KafkaConfig) *kafka.Writer {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		MaxAttempts:            attempts,
		WriteTimeout:           timeout,
	}
}

// NewKafkaPublisher wraps a writer. topic is only used for logging when the
// writer already carries one.
func NewKafkaPublisher(writer MessageWriter, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
		topic:  topic,
		logger: logger,
	}
}

// Publish writes one event synchronously
func (p *KafkaPublisher) Publish(ctx context.Context, evt *event.Event) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", evt.ID, err)
	}

	msg := kafka.Message{
		Key:   []byte(messageKey(evt)),
		Value: value,
		Time:  evt.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
			{Key: "event_id", Value: []byte(evt.ID)},
			{Key: "correlation_id", Value: []byte(evt.CorrelationID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("topic", p.topic),
			zap.String("event_type", evt.Type.String()),
			zap.String("event_id", evt.ID),
			zap.Error(err))
		return fmt.Errorf("failed to publish event %s: %w", evt.ID, err)
	}

	p.logger.Debug("Event published",
		zap.String("topic", p.topic),
		zap.String("event_type", evt.Type.String()),
		zap.Int64("entity_id", evt.EntityID))
	return nil
}

// Handle adapts Publish to the dispatcher handler signature
func (p *KafkaPublisher) Handle(ctx context.Context, evt *event.Event) error {
	return p.Publish(ctx, evt)
}

// Close flushes pending writes
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func messageKey(evt *event.Event) string {
	if evt.EntityType == "" {
		return strconv.FormatInt(evt.EntityID, 10)
	}
	return evt.EntityType + ":" + strconv.FormatInt(evt.EntityID, 10)
}
