package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig configures the Kafka event channel.
type KafkaConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Brokers    []string `mapstructure:"brokers"`
	Topic      string   `mapstructure:"topic"`
	MaxRetries int      `mapstructure:"max_retries"`
}

// messageWriter is the subset of *kafka.Writer the channel needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes notifications as JSON events keyed by type.
type KafkaNotifier struct {
	writer  messageWriter
	topic   string
	enabled bool
}

// NewKafkaNotifier creates a producer for cfg.Topic.
func NewKafkaNotifier(cfg KafkaConfig) *KafkaNotifier {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		AllowAutoTopicCreation: true,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            retries,
		WriteBackoffMin:        100 * time.Millisecond,
		WriteBackoffMax:        time.Second,
	}
	return &KafkaNotifier{
		writer:  writer,
		topic:   cfg.Topic,
		enabled: cfg.Enabled && len(cfg.Brokers) > 0 && cfg.Topic != "",
	}
}

// Name returns the name of the notifier.
func (k *KafkaNotifier) Name() string {
	return "kafka"
}

// IsEnabled returns whether the notifier is enabled.
func (k *KafkaNotifier) IsEnabled() bool {
	return k.enabled
}

// Send publishes n. The message key is the notification type so events of
// one kind stay ordered on a partition.
func (k *KafkaNotifier) Send(ctx context.Context, n Notification) error {
	if !k.enabled {
		return nil
	}
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(n.Type),
		Value: value,
		Time:  n.Timestamp,
		Headers: []kafka.Header{
			{Key: "source", Value: []byte("spread-trader")},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", k.topic, err)
	}
	return nil
}

// Close flushes and closes the producer.
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
