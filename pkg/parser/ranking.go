package parser

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/ranking"
)

var ErrInvalidEvent = errors.New("invalid ranking event")

// ParseRankingEvent deserializes a Kafka message value into a ranking.Event.
// Entries without their own timestamp take the emission time.
func ParseRankingEvent(data []byte) (ranking.Event, error) {
	var root struct {
		ID        string          `json:"id"`
		Entry     json.RawMessage `json:"entry"`
		EmittedAt interface{}     `json:"emitted_at"`
	}
	if err := json.Unmarshal(data, &root); err != nil {
		return ranking.Event{}, fmt.Errorf("failed to unmarshal JSON envelope: %w", err)
	}

	if root.ID == "" {
		return ranking.Event{}, fmt.Errorf("%w: missing event ID", ErrInvalidEvent)
	}
	if len(root.Entry) == 0 {
		return ranking.Event{}, fmt.Errorf("%w: missing entry", ErrInvalidEvent)
	}

	var entry struct {
		UserID      string      `json:"user_id"`
		Name        string      `json:"name"`
		Gold        float64     `json:"gold"`
		TotalIncome float64     `json:"total_income"`
		UpdatedAt   interface{} `json:"updated_at"`
	}
	if err := json.Unmarshal(root.Entry, &entry); err != nil {
		return ranking.Event{}, fmt.Errorf("failed to parse entry fields: %w", err)
	}
	if entry.UserID == "" {
		return ranking.Event{}, fmt.Errorf("%w: missing user_id", ErrInvalidEvent)
	}
	if math.IsNaN(entry.TotalIncome) || math.IsInf(entry.TotalIncome, 0) {
		return ranking.Event{}, fmt.Errorf("%w: total_income is not a number", ErrInvalidEvent)
	}

	event := ranking.Event{
		ID: root.ID,
		Entry: ranking.Entry{
			UserID:      entry.UserID,
			Name:        entry.Name,
			Gold:        entry.Gold,
			TotalIncome: entry.TotalIncome,
			UpdatedAt:   parseTime(entry.UpdatedAt),
		},
		EmittedAt: parseTime(root.EmittedAt),
	}
	if event.Entry.UpdatedAt.IsZero() {
		event.Entry.UpdatedAt = event.EmittedAt
	}
	return event, nil
}

func parseTime(v interface{}) time.Time {
	if s, ok := v.(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
