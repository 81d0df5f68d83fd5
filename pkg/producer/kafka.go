package producer

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// ProduceResult holds the result of an asynchronous production
type ProduceResult struct {
	Error error
}

// Producer defines the interface for publishing messages to Kafka
type Producer interface {
	// PublishAsync sends a message to Kafka without blocking the caller.
	// The returned channel receives exactly one result once the broker acknowledged or refused it.
	PublishAsync(ctx context.Context, key, value []byte) <-chan ProduceResult

	// Close flushes pending messages and shuts down the producer
	Close() error
}

// KafkaProducer implements the Producer interface using kafka-go
type KafkaProducer struct {
	writer *kafka.Writer
}

// Config holds Kafka producer configuration
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// NewKafkaProducer creates a new KafkaProducer instance. Messages are
// partitioned by key so every update for one user lands on one partition.
func NewKafkaProducer(cfg Config) *KafkaProducer {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: cfg.BatchTimeout,
	}

	return &KafkaProducer{
		writer: writer,
	}
}

// PublishAsync runs a synchronous write on its own goroutine, so the result
// on the channel is the broker's acknowledgement rather than a queueing receipt.
func (p *KafkaProducer) PublishAsync(ctx context.Context, key, value []byte) <-chan ProduceResult {
	resultChan := make(chan ProduceResult, 1)

	msg := kafka.Message{
		Key:   key,
		Value: value,
	}

	go func() {
		err := p.writer.WriteMessages(ctx, msg)
		resultChan <- ProduceResult{Error: err}
		close(resultChan)
	}()

	return resultChan
}

// Close gracefully shuts down the producer
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
