package dialect

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/config"

	"modernc.org/sqlite"
)

// Primary result code; extended codes keep it in the low byte.
const sqliteBusy = 5

// SQLite is an embedded engine for development and tests. cfg.Name is the file path.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

// DSN renders a file URI with foreign keys on and a WAL journal.
func (SQLite) DSN(cfg config.DatabaseConfig) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + cfg.Name + "?" + q.Encode()
}

func (d SQLite) Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("sqlite", d.DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	return db, nil
}

func (SQLite) Schema() []Table {
	child := func(name, body, uniq string) Table {
		return Table{Name: name, Statements: []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id TEXT NOT NULL REFERENCES players(user_id) ON DELETE CASCADE,
				%s,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (user_id, %s)
			)`, name, body, uniq),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_user_id ON %s (user_id)", name, name),
		}}
	}

	return []Table{
		{Name: "players", Statements: []string{
			`CREATE TABLE IF NOT EXISTS players (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id TEXT NOT NULL UNIQUE,
				player_id INTEGER NOT NULL UNIQUE,
				name TEXT NOT NULL,
				gold REAL DEFAULT 0,
				diamond INTEGER DEFAULT 0,
				city_level INTEGER DEFAULT 1,
				total_income REAL DEFAULT 0,
				tutorial_step INTEGER DEFAULT 1,
				ticket_normal INTEGER DEFAULT 1,
				ticket_gold INTEGER DEFAULT 0,
				ticket_rainbow INTEGER DEFAULT 0,
				last_checkin_date TEXT DEFAULT NULL,
				consecutive_checkins INTEGER DEFAULT 0,
				memory_tickets INTEGER DEFAULT 0,
				current_event TEXT DEFAULT NULL,
				event_expire_time INTEGER DEFAULT 0,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
			"CREATE INDEX IF NOT EXISTS idx_players_name ON players (name)",
			"CREATE INDEX IF NOT EXISTS idx_players_total_income ON players (total_income)",
		}},
		child("player_booths", `booth_name TEXT NOT NULL,
				unlocked INTEGER DEFAULT 0,
				assistant_name TEXT DEFAULT NULL,
				assistant_level INTEGER DEFAULT 1,
				assistant_star INTEGER DEFAULT 1,
				last_collect INTEGER DEFAULT 0`, "booth_name"),
		child("player_assistants", `assistant_name TEXT NOT NULL,
				level INTEGER DEFAULT 1,
				star INTEGER DEFAULT 1`, "assistant_name"),
		child("player_fragments", `assistant_name TEXT NOT NULL,
				count INTEGER DEFAULT 0`, "assistant_name"),
		child("player_memory_parts", `card_part_key TEXT NOT NULL,
				count INTEGER DEFAULT 0`, "card_part_key"),
		child("player_memory_cards", `card_name TEXT NOT NULL,
				count INTEGER DEFAULT 0`, "card_name"),
		{Name: "world_ranking", Statements: []string{
			`CREATE TABLE IF NOT EXISTS world_ranking (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id TEXT NOT NULL UNIQUE REFERENCES players(user_id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				gold REAL DEFAULT 0,
				total_income REAL DEFAULT 0,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
			"CREATE INDEX IF NOT EXISTS idx_world_ranking_total_income ON world_ranking (total_income DESC)",
		}},
		{Name: "player_friends", Statements: []string{
			`CREATE TABLE IF NOT EXISTS player_friends (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id TEXT NOT NULL REFERENCES players(user_id) ON DELETE CASCADE,
				friend_user_id TEXT NOT NULL REFERENCES players(user_id) ON DELETE CASCADE,
				friend_player_id INTEGER NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'accepted', 'blocked')),
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (user_id, friend_user_id)
			)`,
			"CREATE INDEX IF NOT EXISTS idx_player_friends_user_id ON player_friends (user_id)",
			"CREATE INDEX IF NOT EXISTS idx_player_friends_status ON player_friends (status)",
		}},
	}
}

func (SQLite) Upsert(table, key string, columns []string) string {
	return upsertOnConflict(table, key, columns)
}

func (SQLite) SessionSetup() []string {
	return []string{"PRAGMA busy_timeout = 30000"}
}

func (SQLite) SessionRestore() []string {
	return []string{"PRAGMA busy_timeout = 5000"}
}

func (SQLite) IsLockTimeout(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code()&0xff == sqliteBusy
}

func (SQLite) Rebind(query string) string { return query }
