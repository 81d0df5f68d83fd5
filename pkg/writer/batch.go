package writer

import (
	"sync"
	"time"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/consumer"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/ranking"
)

// Record is a leaderboard entry together with the message that carried it.
// A skipped record only holds a message whose offset must be committed.
type Record struct {
	Entry   ranking.Entry
	Message consumer.Message
	Skip    bool
}

// BatchBuffer defines the interface for buffering records before a flush
type BatchBuffer interface {
	// Add adds a record to the buffer. Returns true if buffer should be flushed.
	Add(record Record) bool

	// Flush returns all buffered records and clears the buffer
	Flush() []Record

	// Size returns the current number of buffered records
	Size() int

	// ShouldFlush checks if flush conditions are met based on time
	ShouldFlush(interval time.Duration) bool

	// Restore puts records that failed to flush back in front of the buffer
	Restore(records []Record)
}

// InMemoryBuffer implements BatchBuffer using a slice
type InMemoryBuffer struct {
	mu        sync.Mutex
	records   []Record
	capacity  int
	lastFlush time.Time
	now       func() time.Time
}

func NewInMemoryBuffer(capacity int) *InMemoryBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &InMemoryBuffer{
		records:   make([]Record, 0, capacity),
		capacity:  capacity,
		lastFlush: time.Now(),
		now:       time.Now,
	}
}

func (b *InMemoryBuffer) Add(record Record) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.records = append(b.records, record)
	return len(b.records) >= b.capacity
}

// Flush returns the current batch and clears the buffer
func (b *InMemoryBuffer) Flush() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.records
	b.records = make([]Record, 0, b.capacity)
	b.lastFlush = b.now()
	return batch
}

func (b *InMemoryBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// ShouldFlush returns true if records are waiting and interval has passed since the last flush
func (b *InMemoryBuffer) ShouldFlush(interval time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.records) == 0 {
		return false
	}
	return b.now().Sub(b.lastFlush) >= interval
}

func (b *InMemoryBuffer) Restore(records []Record) {
	if len(records) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	restored := make([]Record, 0, len(records)+len(b.records))
	restored = append(restored, records...)
	b.records = append(restored, b.records...)
}

// Entries projects a batch onto its leaderboard entries, in arrival order.
func Entries(records []Record) []ranking.Entry {
	entries := make([]ranking.Entry, 0, len(records))
	for _, r := range records {
		if r.Skip {
			continue
		}
		entries = append(entries, r.Entry)
	}
	return entries
}

// Messages returns the messages to commit once a batch is durable.
func Messages(records []Record) []consumer.Message {
	msgs := make([]consumer.Message, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, r.Message)
	}
	return msgs
}
