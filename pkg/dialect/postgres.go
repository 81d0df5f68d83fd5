package dialect

import (
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
)

// lock_not_available, raised when lock_timeout expires.
const pgLockNotAvailable = "55P03"

type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

// URI renders a connection URI for cfg.
func (Postgres) URI(cfg config.DatabaseConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
	}
	return u.String()
}

func (d Postgres) Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	connCfg, err := pgx.ParseConfig(d.URI(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	return stdlib.OpenDB(*connCfg), nil
}

func (Postgres) Schema() []Table {
	child := func(name, body, uniq string) Table {
		return Table{Name: name, Statements: []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id SERIAL PRIMARY KEY,
				user_id VARCHAR(128) NOT NULL REFERENCES players(user_id) ON DELETE CASCADE,
				%s,
				created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (user_id, %s)
			)`, name, body, uniq),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_user_id ON %s (user_id)", name, name),
		}}
	}

	return []Table{
		{Name: "players", Statements: []string{
			`CREATE TABLE IF NOT EXISTS players (
				id SERIAL PRIMARY KEY,
				user_id VARCHAR(128) NOT NULL UNIQUE,
				player_id INT NOT NULL UNIQUE,
				name VARCHAR(100) NOT NULL,
				gold NUMERIC(30,2) DEFAULT 0,
				diamond INT DEFAULT 0,
				city_level INT DEFAULT 1,
				total_income NUMERIC(30,2) DEFAULT 0,
				tutorial_step INT DEFAULT 1,
				ticket_normal INT DEFAULT 1,
				ticket_gold INT DEFAULT 0,
				ticket_rainbow INT DEFAULT 0,
				last_checkin_date VARCHAR(10) DEFAULT NULL,
				consecutive_checkins INT DEFAULT 0,
				memory_tickets INT DEFAULT 0,
				current_event JSONB DEFAULT NULL,
				event_expire_time BIGINT DEFAULT 0,
				created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
			)`,
			"CREATE INDEX IF NOT EXISTS idx_players_name ON players (name)",
			"CREATE INDEX IF NOT EXISTS idx_players_total_income ON players (total_income)",
		}},
		child("player_booths", `booth_name VARCHAR(50) NOT NULL,
				unlocked BOOLEAN DEFAULT FALSE,
				assistant_name VARCHAR(100) DEFAULT NULL,
				assistant_level INT DEFAULT 1,
				assistant_star INT DEFAULT 1,
				last_collect BIGINT DEFAULT 0`, "booth_name"),
		child("player_assistants", `assistant_name VARCHAR(100) NOT NULL,
				level INT DEFAULT 1,
				star INT DEFAULT 1`, "assistant_name"),
		child("player_fragments", `assistant_name VARCHAR(100) NOT NULL,
				count INT DEFAULT 0`, "assistant_name"),
		child("player_memory_parts", `card_part_key VARCHAR(150) NOT NULL,
				count INT DEFAULT 0`, "card_part_key"),
		child("player_memory_cards", `card_name VARCHAR(100) NOT NULL,
				count INT DEFAULT 0`, "card_name"),
		{Name: "world_ranking", Statements: []string{
			`CREATE TABLE IF NOT EXISTS world_ranking (
				id SERIAL PRIMARY KEY,
				user_id VARCHAR(128) NOT NULL UNIQUE REFERENCES players(user_id) ON DELETE CASCADE,
				name VARCHAR(100) NOT NULL,
				gold NUMERIC(30,2) DEFAULT 0,
				total_income NUMERIC(30,2) DEFAULT 0,
				updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
			)`,
			"CREATE INDEX IF NOT EXISTS idx_world_ranking_total_income ON world_ranking (total_income DESC)",
		}},
		{Name: "player_friends", Statements: []string{
			`CREATE TABLE IF NOT EXISTS player_friends (
				id SERIAL PRIMARY KEY,
				user_id VARCHAR(128) NOT NULL REFERENCES players(user_id) ON DELETE CASCADE,
				friend_user_id VARCHAR(128) NOT NULL REFERENCES players(user_id) ON DELETE CASCADE,
				friend_player_id INT NOT NULL,
				status VARCHAR(16) NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'accepted', 'blocked')),
				created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (user_id, friend_user_id)
			)`,
			"CREATE INDEX IF NOT EXISTS idx_player_friends_user_id ON player_friends (user_id)",
			"CREATE INDEX IF NOT EXISTS idx_player_friends_friend_player_id ON player_friends (friend_player_id)",
			"CREATE INDEX IF NOT EXISTS idx_player_friends_status ON player_friends (status)",
		}},
	}
}

func (Postgres) Upsert(table, key string, columns []string) string {
	return upsertOnConflict(table, key, columns)
}

func (Postgres) SessionSetup() []string {
	return []string{
		"SET SESSION CHARACTERISTICS AS TRANSACTION ISOLATION LEVEL READ COMMITTED",
		"SET lock_timeout = '30s'",
	}
}

func (Postgres) SessionRestore() []string {
	return []string{
		"RESET default_transaction_isolation",
		"RESET lock_timeout",
	}
}

func (Postgres) IsLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable
}

func (Postgres) Rebind(query string) string { return rebindDollar(query) }
