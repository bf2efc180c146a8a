package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConfig contains configuration for the Kafka writer
type KafkaConfig struct {
	Brokers      []string      `json:"brokers"`
	Topic        string        `json:"topic"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BatchTimeout time.Duration `json:"batch_timeout"`
	RequiredAcks int           `json:"required_acks"`
	MaxAttempts  int           `json:"max_attempts"`
}

// DefaultKafkaConfig returns defaults suitable for a local broker
func DefaultKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "swap-events",
		WriteTimeout: time.Second,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: 1,
		MaxAttempts:  3,
	}
}

// Publisher emits swap lifecycle events. Publishing is best effort; the
// swap history table stays the source of truth.
type Publisher interface {
	Publish(ctx context.Context, key string, event interface{}) error
	Close() error
}

// KafkaPublisher writes JSON events keyed by swap or batch id
type KafkaPublisher struct {
	config *KafkaConfig
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaPublisher creates a publisher for config.Topic
func NewKafkaPublisher(config *KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	if config == nil {
		config = DefaultKafkaConfig()
	}
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{}, // same key, same partition: per-swap ordering
		BatchTimeout: config.BatchTimeout,
		WriteTimeout: config.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
		MaxAttempts:  config.MaxAttempts,
		Compression:  kafka.Snappy,
	}

	return &KafkaPublisher{
		config: config,
		writer: writer,
		logger: logger.Named("kafka-publisher"),
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Warn("Failed to publish event", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }
func (NopPublisher) Close() error                                       { return nil }

// MemoryPublisher records events in memory
type MemoryPublisher struct {
	mu     sync.Mutex
	events []interface{}
}

func (p *MemoryPublisher) Publish(_ context.Context, _ string, event interface{}) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}

func (p *MemoryPublisher) Close() error { return nil }

// Events returns a copy of everything published so far
func (p *MemoryPublisher) Events() []interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]interface{}, len(p.events))
	copy(out, p.events)
	return out
}

// SwapEvents returns the published swap events of the given type
func (p *MemoryPublisher) SwapEvents(msgType MessageType) []SwapEvent {
	var out []SwapEvent
	for _, e := range p.Events() {
		if se, ok := e.(SwapEvent); ok && se.Type == msgType {
			out = append(out, se)
		}
	}
	return out
}
