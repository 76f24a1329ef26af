package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	TopicOrderCreated       = "orders.created"
	TopicOrderStatusChanged = "orders.status_changed"
	TopicProductChanged     = "products.changed"
)

// Publisher emits domain events. Publishing is best effort for callers:
// a failed publish never rolls back the change that produced the event.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
	Close() error
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, any) error { return nil }
func (NopPublisher) Close() error                                      { return nil }

// KafkaPublisher writes JSON events with the entity id as message key.
type KafkaPublisher struct {
	writer *kafka.Writer
	prefix string
	logger *slog.Logger
}

func NewKafkaPublisher(brokers []string, prefix string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			WriteTimeout:           5 * time.Second,
		},
		prefix: prefix,
		logger: logger,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: marshal event: %w", err)
	}

	msg := kafka.Message{
		Topic: TopicName(p.prefix, topic),
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s: %w", msg.Topic, err)
	}
	p.logger.Debug("event published", "topic", msg.Topic, "key", key)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// TopicName prefixes topic with the deployment namespace.
func TopicName(prefix, topic string) string {
	if prefix == "" {
		return topic
	}
	return prefix + "." + topic
}

// New picks the Kafka publisher when brokers are configured.
func New(brokers []string, prefix string, logger *slog.Logger) Publisher {
	if len(brokers) == 0 {
		logger.Info("kafka brokers not configured, events disabled")
		return NopPublisher{}
	}
	return NewKafkaPublisher(brokers, prefix, logger)
}
