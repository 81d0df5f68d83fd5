package parser

import (
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/ranking"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRankingEventProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("parsed event matches the published entry", prop.ForAll(
		func(userID, name string, gold, income float64) bool {
			event := ranking.NewEvent(ranking.Entry{
				UserID:      userID,
				Name:        name,
				Gold:        gold,
				TotalIncome: income,
				UpdatedAt:   time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
			})
			data, err := event.Marshal()
			if err != nil {
				return false
			}

			parsed, err := ParseRankingEvent(data)
			if err != nil {
				return false
			}
			return parsed.ID == event.ID &&
				parsed.Entry.UserID == userID &&
				parsed.Entry.Name == name &&
				parsed.Entry.Gold == gold &&
				parsed.Entry.TotalIncome == income &&
				parsed.Entry.UpdatedAt.Equal(event.Entry.UpdatedAt)
		},
		gen.Identifier(),
		gen.AnyString(),
		gen.Float64Range(0, 1e12),
		gen.Float64Range(0, 1e12),
	))

	properties.Property("invalid JSON returns error", prop.ForAll(
		func(data string) bool {
			_, err := ParseRankingEvent([]byte(data))
			if json.Valid([]byte(data)) {
				return true
			}
			return err != nil
		},
		gen.AnyString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestParseRankingEventValidation(t *testing.T) {
	cases := map[string]string{
		"missing id":      `{"entry":{"user_id":"u1"}}`,
		"missing entry":   `{"id":"e1"}`,
		"missing user_id": `{"id":"e1","entry":{"name":"x"}}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRankingEvent([]byte(payload))
			assert.ErrorIs(t, err, ErrInvalidEvent)
		})
	}

	_, err := ParseRankingEvent([]byte(`{"id":"e1","entry":"oops"}`))
	assert.Error(t, err)
}

func TestParseRankingEventDefaultsUpdatedAt(t *testing.T) {
	data := []byte(`{"id":"e1","entry":{"user_id":"u1","total_income":10},"emitted_at":"2026-10-17T08:30:00Z"}`)

	event, err := ParseRankingEvent(data)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 17, 8, 30, 0, 0, time.UTC), event.Entry.UpdatedAt)
	assert.Equal(t, event.EmittedAt, event.Entry.UpdatedAt)
}

func BenchmarkParseRankingEvent(b *testing.B) {
	data, _ := ranking.NewEvent(ranking.Entry{UserID: "user-123", Name: "benchmark_user", Gold: 10, TotalIncome: 99999}).Marshal()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := ParseRankingEvent(data); err != nil {
			b.Fatal(err)
		}
	}
}
