package dialect

import (
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/config"

	"github.com/go-sql-driver/mysql"
)

const mysqlLockWaitTimeout = 1205

const mysqlTableOptions = "ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci"

// MySQL is the primary engine.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) connConfig(cfg config.DatabaseConfig) *mysql.Config {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	if cfg.Charset != "" {
		mc.Params = map[string]string{"charset": cfg.Charset}
	}
	return mc
}

// DSN renders the data source name for cfg.
func (d MySQL) DSN(cfg config.DatabaseConfig) string {
	return d.connConfig(cfg).FormatDSN()
}

func (d MySQL) Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	connector, err := mysql.NewConnector(d.connConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

func (MySQL) Schema() []Table {
	child := func(name, body string) Table {
		return Table{Name: name, Statements: []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INT AUTO_INCREMENT PRIMARY KEY,
			user_id VARCHAR(128) NOT NULL,
			%s,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_user_id (user_id),
			FOREIGN KEY (user_id) REFERENCES players(user_id) ON DELETE CASCADE
		) %s`, name, body, mysqlTableOptions)}}
	}

	return []Table{
		{Name: "players", Statements: []string{`CREATE TABLE IF NOT EXISTS players (
			id INT AUTO_INCREMENT PRIMARY KEY,
			user_id VARCHAR(128) NOT NULL UNIQUE,
			player_id INT NOT NULL UNIQUE,
			name VARCHAR(100) NOT NULL,
			gold DECIMAL(30,2) DEFAULT 0,
			diamond INT DEFAULT 0,
			city_level INT DEFAULT 1,
			total_income DECIMAL(30,2) DEFAULT 0,
			tutorial_step INT DEFAULT 1,
			ticket_normal INT DEFAULT 1,
			ticket_gold INT DEFAULT 0,
			ticket_rainbow INT DEFAULT 0,
			last_checkin_date VARCHAR(10) DEFAULT NULL,
			consecutive_checkins INT DEFAULT 0,
			memory_tickets INT DEFAULT 0,
			current_event JSON DEFAULT NULL,
			event_expire_time BIGINT DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_name (name),
			INDEX idx_total_income (total_income)
		) ` + mysqlTableOptions}},
		child("player_booths", `booth_name VARCHAR(50) NOT NULL,
			unlocked BOOLEAN DEFAULT FALSE,
			assistant_name VARCHAR(100) DEFAULT NULL,
			assistant_level INT DEFAULT 1,
			assistant_star INT DEFAULT 1,
			last_collect BIGINT DEFAULT 0,
			UNIQUE KEY unique_user_booth (user_id, booth_name)`),
		child("player_assistants", `assistant_name VARCHAR(100) NOT NULL,
			level INT DEFAULT 1,
			star INT DEFAULT 1,
			UNIQUE KEY unique_user_assistant (user_id, assistant_name)`),
		child("player_fragments", `assistant_name VARCHAR(100) NOT NULL,
			count INT DEFAULT 0,
			UNIQUE KEY unique_user_fragment (user_id, assistant_name)`),
		child("player_memory_parts", `card_part_key VARCHAR(150) NOT NULL,
			count INT DEFAULT 0,
			UNIQUE KEY unique_user_memory_part (user_id, card_part_key)`),
		child("player_memory_cards", `card_name VARCHAR(100) NOT NULL,
			count INT DEFAULT 0,
			UNIQUE KEY unique_user_memory_card (user_id, card_name)`),
		{Name: "world_ranking", Statements: []string{`CREATE TABLE IF NOT EXISTS world_ranking (
			id INT AUTO_INCREMENT PRIMARY KEY,
			user_id VARCHAR(128) NOT NULL UNIQUE,
			name VARCHAR(100) NOT NULL,
			gold DECIMAL(30,2) DEFAULT 0,
			total_income DECIMAL(30,2) DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_total_income (total_income DESC),
			FOREIGN KEY (user_id) REFERENCES players(user_id) ON DELETE CASCADE
		) ` + mysqlTableOptions}},
		{Name: "player_friends", Statements: []string{`CREATE TABLE IF NOT EXISTS player_friends (
			id INT AUTO_INCREMENT PRIMARY KEY,
			user_id VARCHAR(128) NOT NULL,
			friend_user_id VARCHAR(128) NOT NULL,
			friend_player_id INT NOT NULL,
			status ENUM('pending', 'accepted', 'blocked') DEFAULT 'pending',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			UNIQUE KEY unique_friendship (user_id, friend_user_id),
			INDEX idx_user_id (user_id),
			INDEX idx_friend_player_id (friend_player_id),
			INDEX idx_status (status),
			FOREIGN KEY (user_id) REFERENCES players(user_id) ON DELETE CASCADE,
			FOREIGN KEY (friend_user_id) REFERENCES players(user_id) ON DELETE CASCADE
		) ` + mysqlTableOptions}},
	}
}

// Upsert uses ON DUPLICATE KEY UPDATE. A row matched through a different
// unique index than key is left untouched.
func (MySQL) Upsert(table, key string, columns []string) string {
	sets := make([]string, 0, len(columns))
	for _, c := range columns {
		if c == key {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = IF(%s = VALUES(%s), VALUES(%s), %s)", c, key, key, c, c))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		table, strings.Join(columns, ", "), Placeholders(len(columns)), strings.Join(sets, ", "))
}

func (MySQL) SessionSetup() []string {
	return []string{
		"SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED",
		"SET SESSION innodb_lock_wait_timeout = 30",
	}
}

func (MySQL) SessionRestore() []string {
	return []string{
		"SET SESSION TRANSACTION ISOLATION LEVEL REPEATABLE READ",
		"SET SESSION innodb_lock_wait_timeout = 50",
	}
}

func (MySQL) IsLockTimeout(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlLockWaitTimeout
}

func (MySQL) Rebind(query string) string { return query }
