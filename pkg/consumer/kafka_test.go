package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestNewKafkaConsumer(t *testing.T) {
	c := NewKafkaConsumer(Config{
		Brokers: []string{"localhost:9092"},
		Topic:   "ranking",
		GroupID: "ranker-group",
	})
	assert.NotNil(t, c.reader)
	assert.Equal(t, "ranking", c.reader.Config().Topic)
	assert.Equal(t, 500*time.Millisecond, c.reader.Config().MaxWait)
	_ = c.Close()
}

func TestFromKafkaKeepsCoordinates(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("converted message carries the raw message for commits", prop.ForAll(
		func(partition int, offset int64, key string) bool {
			raw := kafka.Message{Topic: "ranking", Partition: partition, Offset: offset, Key: []byte(key)}
			m := fromKafka(raw)
			return m.Partition == partition &&
				m.Offset == offset &&
				string(m.Key) == key &&
				m.Raw.Offset == offset
		},
		gen.IntRange(0, 64),
		gen.Int64Range(0, 1<<40),
		gen.Identifier(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestCommitWithoutMessagesIsNoop(t *testing.T) {
	c := NewKafkaConsumer(Config{Brokers: []string{"localhost:9999"}, Topic: "ranking", GroupID: "test"})
	defer c.Close()

	assert.NoError(t, c.Commit(context.Background()))
}

func TestCommitHonoursCancelledContext(t *testing.T) {
	c := NewKafkaConsumer(Config{Brokers: []string{"localhost:9999"}, Topic: "ranking", GroupID: "test"})
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Commit(ctx, Message{Offset: 3})
	assert.Error(t, err)
}

func TestConsumerFetchTimeout(t *testing.T) {
	c := NewKafkaConsumer(Config{
		Brokers: []string{"localhost:9999"},
		Topic:   "ranking",
		GroupID: "test",
	})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	msgChan, errChan := c.Consume(ctx)

	select {
	case m, ok := <-msgChan:
		assert.False(t, ok, "unexpected message %v from a missing broker", m.Offset)
	case <-errChan:
	case <-time.After(time.Second):
		t.Fatal("consumer loop did not stop with its context")
	}
}
