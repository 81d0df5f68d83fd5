package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/config"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/dbpool"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/dialect"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/logger"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/ranking"

	"github.com/goccy/go-json"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSQLiteStore opens a fresh database file with the schema in place. The
// returned *sql.DB bypasses the pool and is meant for assertions only.
func newSQLiteStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	d := dialect.SQLite{}
	db, err := d.Open(config.DatabaseConfig{Name: filepath.Join(t.TempDir(), "tycoon.db")})
	require.NoError(t, err)

	pool := dbpool.New(context.Background(), dbpool.Config{PoolSize: 2, MaxOverflow: 1}, dbpool.NewSQLDialer(db), logger.NewNop())
	t.Cleanup(func() {
		pool.Close()
		db.Close()
	})

	s := New(pool, d, logger.NewNop(), Options{})
	require.NoError(t, s.CreateTables(context.Background()))
	return s, db
}

func mustSave(t *testing.T, s *Store, userID, name string) *Player {
	t.Helper()
	p := NewPlayer(name)
	require.NoError(t, s.Save(context.Background(), userID, p))
	require.NotZero(t, p.PlayerID)
	return p
}

func countRowsFor(t *testing.T, db *sql.DB, table, userID string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table+" WHERE user_id = ?", userID).Scan(&n))
	return n
}

func TestCreateTablesIsIdempotent(t *testing.T) {
	s, db := newSQLiteStore(t)
	require.NoError(t, s.CreateTables(context.Background()))

	for _, table := range (dialect.SQLite{}).Schema() {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table.Name).Scan(&name)
		assert.NoError(t, err, table.Name)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, _ := newSQLiteStore(t)
	ctx := context.Background()

	p := NewPlayer("alice")
	p.Gold = 1234.5
	p.Diamond = 40
	p.CityLevel = 3
	p.TotalIncome = 98765.25
	p.LastCheckinDate = "2026-10-17"
	p.ConsecutiveCheckins = 4
	p.CurrentEvent = json.RawMessage(`{"kind":"festival","bonus":2}`)
	p.EventExpireTime = 1760000000
	p.Booths = map[string]Booth{
		"tea":    {Unlocked: true, Assistant: &Assistant{Name: "mia", Level: 3, Star: 2}, LastCollect: 1759990000},
		"bakery": {Unlocked: false},
	}
	p.Assistants = []Assistant{{Name: "mia", Level: 3, Star: 2}, {Name: "zed", Level: 1, Star: 1}}
	p.Fragments = map[string]int{"mia": 5, "zed": 0, "old": -1}
	p.MemoryParts = map[string]int{"sunset_1": 2}
	p.MemoryCards = map[string]int{"sunset": 1}

	require.NoError(t, s.Save(ctx, "u1", p))

	got, err := s.Load(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, p.PlayerID, got.PlayerID)
	assert.Equal(t, "alice", got.Name)
	assert.Equal(t, 1234.5, got.Gold)
	assert.Equal(t, 98765.25, got.TotalIncome)
	assert.Equal(t, "2026-10-17", got.LastCheckinDate)
	assert.JSONEq(t, `{"kind":"festival","bonus":2}`, string(got.CurrentEvent))
	assert.Equal(t, p.Booths, got.Booths)
	assert.Equal(t, p.Assistants, got.Assistants)
	assert.Equal(t, map[string]int{"mia": 5}, got.Fragments)
	assert.Equal(t, p.MemoryParts, got.MemoryParts)
	assert.Equal(t, p.MemoryCards, got.MemoryCards)
}

func TestSaveReplacesChildRows(t *testing.T) {
	s, db := newSQLiteStore(t)
	ctx := context.Background()

	p := NewPlayer("bob")
	p.Fragments = map[string]int{"mia": 2, "zed": 3}
	p.Assistants = []Assistant{{Name: "mia", Level: 1, Star: 1}}
	require.NoError(t, s.Save(ctx, "u2", p))
	id := p.PlayerID

	p.Fragments = map[string]int{}
	p.Assistants = nil
	require.NoError(t, s.Save(ctx, "u2", p))

	assert.Equal(t, id, p.PlayerID, "an allocated id is kept")
	assert.Zero(t, countRowsFor(t, db, "player_fragments", "u2"))
	assert.Zero(t, countRowsFor(t, db, "player_assistants", "u2"))

	got, err := s.Load(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, got.Fragments)
	assert.Empty(t, got.Assistants)
}

func TestSaveAllocatesSequentialIDs(t *testing.T) {
	s, _ := newSQLiteStore(t)
	ctx := context.Background()

	next, err := s.NextPlayerID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)

	a := mustSave(t, s, "ua", "a")
	b := mustSave(t, s, "ub", "b")
	assert.Equal(t, int64(1), a.PlayerID)
	assert.Equal(t, int64(2), b.PlayerID)

	next, err = s.NextPlayerID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), next)
}

func TestSaveWithAnotherUsersPlayerIDFails(t *testing.T) {
	s, db := newSQLiteStore(t)
	alice := mustSave(t, s, "alice", "alice")

	p := NewPlayer("mallory")
	p.PlayerID = alice.PlayerID
	err := s.Save(context.Background(), "mallory", p)

	assert.ErrorIs(t, err, ErrSaveFailed)
	assert.Equal(t, alice.PlayerID, p.PlayerID)
	loaded, err := s.Load(context.Background(), "mallory")
	require.NoError(t, err)
	assert.Nil(t, loaded)
	assert.Zero(t, countRowsFor(t, db, "players", "mallory"))
}

func TestLoadUnknownPlayer(t *testing.T) {
	s, _ := newSQLiteStore(t)
	p, err := s.Load(context.Background(), "nobody")
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestLookups(t *testing.T) {
	s, _ := newSQLiteStore(t)
	ctx := context.Background()
	p := mustSave(t, s, "u1", "carol")

	userID, err := s.UserIDByPlayerID(ctx, p.PlayerID)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	playerID, err := s.PlayerIDByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, p.PlayerID, playerID)

	_, err = s.UserIDByPlayerID(ctx, 404)
	assert.ErrorIs(t, err, ErrPlayerNotFound)
	_, err = s.PlayerIDByUserID(ctx, "ghost")
	assert.ErrorIs(t, err, ErrPlayerNotFound)

	exists, err := s.NameExists(ctx, "carol")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = s.NameExists(ctx, "dave")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSaveLoadProperty(t *testing.T) {
	s, _ := newSQLiteStore(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	properties.Property("load returns what save wrote, minus non-positive counts", prop.ForAll(
		func(gold float64, diamond int, booths []bool, counts []int) bool {
			p := NewPlayer("prop")
			p.Gold = gold
			p.Diamond = diamond
			for i, unlocked := range booths {
				b := Booth{Unlocked: unlocked, LastCollect: int64(i)}
				if i%2 == 0 {
					b.Assistant = &Assistant{Name: fmt.Sprintf("a%d", i), Level: i + 1, Star: 1}
					p.Assistants = append(p.Assistants, *b.Assistant)
				}
				p.Booths[fmt.Sprintf("b%d", i)] = b
			}
			want := map[string]int{}
			for i, c := range counts {
				key := fmt.Sprintf("f%d", i)
				p.Fragments[key] = c
				p.MemoryCards[key] = c
				if c > 0 {
					want[key] = c
				}
			}

			if err := s.Save(ctx, "prop-user", p); err != nil {
				return false
			}
			got, err := s.Load(ctx, "prop-user")
			if err != nil || got == nil {
				return false
			}
			return got.PlayerID == p.PlayerID &&
				got.Gold == gold &&
				got.Diamond == diamond &&
				reflect.DeepEqual(got.Booths, p.Booths) &&
				reflect.DeepEqual(got.Assistants, p.Assistants) &&
				reflect.DeepEqual(got.Fragments, want) &&
				reflect.DeepEqual(got.MemoryCards, want)
		},
		gen.Float64Range(0, 1e9),
		gen.IntRange(0, 100000),
		gen.SliceOf(gen.Bool()),
		gen.SliceOf(gen.IntRange(-3, 50)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRankingTable(t *testing.T) {
	s, _ := newSQLiteStore(t)
	ctx := context.Background()
	for _, u := range []string{"u1", "u2", "u3"} {
		mustSave(t, s, u, u)
	}

	require.NoError(t, s.UpsertRanking(ctx, ranking.Entry{UserID: "u1", Name: "u1", Gold: 1, TotalIncome: 100}))
	require.NoError(t, s.UpsertRankings(ctx, []ranking.Entry{
		{UserID: "u2", Name: "u2", Gold: 2, TotalIncome: 300},
		{UserID: "u3", Name: "u3", Gold: 3, TotalIncome: 200},
	}))
	require.NoError(t, s.UpsertRanking(ctx, ranking.Entry{UserID: "u1", Name: "u1-renamed", Gold: 9, TotalIncome: 400}))

	top, err := s.LoadRanking(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "u1", top[0].UserID)
	assert.Equal(t, "u1-renamed", top[0].Name)
	assert.Equal(t, 400.0, top[0].TotalIncome)
	assert.False(t, top[0].UpdatedAt.IsZero())
	assert.Equal(t, "u2", top[1].UserID)

	all, err := s.LoadRanking(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFriendRequests(t *testing.T) {
	s, db := newSQLiteStore(t)
	ctx := context.Background()
	alice := mustSave(t, s, "alice", "Alice")
	bob := mustSave(t, s, "bob", "Bob")
	mustSave(t, s, "carol", "Carol")

	require.NoError(t, s.AddFriend(ctx, "alice", bob.PlayerID))
	assert.ErrorIs(t, s.AddFriend(ctx, "alice", bob.PlayerID), ErrRequestPending)
	assert.Equal(t, 1, countRowsFor(t, db, "player_friends", "alice"))

	assert.ErrorIs(t, s.AddFriend(ctx, "alice", alice.PlayerID), ErrSelfFriend)
	assert.ErrorIs(t, s.AddFriend(ctx, "alice", 999), ErrPlayerNotFound)

	requests, err := s.FriendRequests(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, alice.PlayerID, requests[0].PlayerID)
	assert.Equal(t, "Alice", requests[0].Name)

	assert.ErrorIs(t, s.AcceptFriend(ctx, "carol", alice.PlayerID), ErrRequestNotFound)
	require.NoError(t, s.AcceptFriend(ctx, "bob", alice.PlayerID))

	aliceFriends, err := s.Friends(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, aliceFriends, 1)
	assert.Equal(t, bob.PlayerID, aliceFriends[0].PlayerID)

	bobFriends, err := s.Friends(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobFriends, 1)
	assert.Equal(t, alice.PlayerID, bobFriends[0].PlayerID)

	requests, err = s.FriendRequests(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, requests)

	assert.ErrorIs(t, s.AddFriend(ctx, "alice", bob.PlayerID), ErrAlreadyFriends)
	assert.ErrorIs(t, s.AddFriend(ctx, "bob", alice.PlayerID), ErrAlreadyFriends)

	_, err = db.Exec("INSERT INTO player_friends (user_id, friend_user_id, friend_player_id, status) VALUES (?, ?, ?, 'blocked')",
		"carol", "alice", alice.PlayerID)
	require.NoError(t, err)
	assert.ErrorIs(t, s.AddFriend(ctx, "carol", alice.PlayerID), ErrFriendBlocked)
}
