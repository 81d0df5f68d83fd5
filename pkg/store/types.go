package store

import (
	"time"

	"github.com/goccy/go-json"
)

type Tickets struct {
	Normal  int `json:"normal"`
	Gold    int `json:"gold"`
	Rainbow int `json:"rainbow"`
}

type Assistant struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
	Star  int    `json:"star"`
}

type Booth struct {
	Unlocked bool `json:"unlocked"`
	// Assistant is a snapshot of the assistant working the booth, if any.
	Assistant   *Assistant `json:"assistant,omitempty"`
	LastCollect int64      `json:"last_collect"`
}

// Player is the aggregate persisted across players and its five child tables.
// A zero PlayerID means no id has been allocated yet.
type Player struct {
	PlayerID            int64           `json:"player_id"`
	Name                string          `json:"name"`
	Gold                float64         `json:"gold"`
	Diamond             int             `json:"diamond"`
	CityLevel           int             `json:"city_level"`
	TotalIncome         float64         `json:"total_income"`
	TutorialStep        int             `json:"tutorial_step"`
	Tickets             Tickets         `json:"tickets"`
	LastCheckinDate     string          `json:"last_checkin_date,omitempty"`
	ConsecutiveCheckins int             `json:"consecutive_checkins"`
	MemoryTickets       int             `json:"memory_tickets"`
	CurrentEvent        json.RawMessage `json:"current_event,omitempty"`
	EventExpireTime     int64           `json:"event_expire_time"`

	Booths      map[string]Booth `json:"booths"`
	Assistants  []Assistant      `json:"assistants"`
	Fragments   map[string]int   `json:"fragments"`
	MemoryParts map[string]int   `json:"memory_parts"`
	MemoryCards map[string]int   `json:"memory_cards"`
}

// NewPlayer returns a fresh aggregate with the starting values of a new account.
func NewPlayer(name string) *Player {
	return &Player{
		Name:         name,
		CityLevel:    1,
		TutorialStep: 1,
		Tickets:      Tickets{Normal: 1},
		Booths:       map[string]Booth{},
		Assistants:   []Assistant{},
		Fragments:    map[string]int{},
		MemoryParts:  map[string]int{},
		MemoryCards:  map[string]int{},
	}
}

type FriendStatus string

const (
	FriendPending  FriendStatus = "pending"
	FriendAccepted FriendStatus = "accepted"
	FriendBlocked  FriendStatus = "blocked"
)

// Friend is the counterpart of a friendship edge as shown to a player.
type Friend struct {
	PlayerID    int64     `json:"player_id"`
	Name        string    `json:"name"`
	CityLevel   int       `json:"city_level"`
	TotalIncome float64   `json:"total_income"`
	Since       time.Time `json:"since"`
}
