// Package ranking holds the world leaderboard: its entries, the event that
// carries an entry over Kafka, and the Redis cache that serves reads.
package ranking

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Entry is one row of the leaderboard, a projection of a saved player.
type Entry struct {
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Gold        float64   `json:"gold"`
	TotalIncome float64   `json:"total_income"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Event wraps an Entry for the ranking topic.
type Event struct {
	ID        string    `json:"id"`
	Entry     Entry     `json:"entry"`
	EmittedAt time.Time `json:"emitted_at"`
}

// NewEvent stamps e with a fresh id.
func NewEvent(e Entry) Event {
	return Event{
		ID:        uuid.NewString(),
		Entry:     e,
		EmittedAt: time.Now().UTC(),
	}
}

// Key partitions events by user so updates for one user stay ordered.
func (e Event) Key() []byte {
	return []byte(e.Entry.UserID)
}

func (e Event) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize ranking event: %w", err)
	}
	return data, nil
}

// Latest collapses entries to one per user, keeping the most recently
// updated one. Ties go to the later position. Input order is preserved
// for the survivors.
func Latest(entries []Entry) []Entry {
	index := make(map[string]int, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		i, ok := index[e.UserID]
		if !ok {
			index[e.UserID] = len(out)
			out = append(out, e)
			continue
		}
		if !e.UpdatedAt.Before(out[i].UpdatedAt) {
			out[i] = e
		}
	}
	return out
}
