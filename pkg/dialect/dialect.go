// Package dialect holds everything engine specific: how to open a database,
// the schema, upsert syntax, the per-transaction session settings used by
// saves and how the engine reports a lock wait timeout.
package dialect

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/config"
)

// Table is one schema object plus its secondary indexes, created idempotently.
type Table struct {
	Name       string
	Statements []string
}

// Dialect describes one relational engine. Queries handed to it use '?' placeholders.
type Dialect interface {
	Name() string
	Open(cfg config.DatabaseConfig) (*sql.DB, error)
	// Schema lists tables parents first.
	Schema() []Table
	// Upsert builds an insert of columns that overwrites every non-key column
	// when a row with the same key already exists.
	Upsert(table, key string, columns []string) string
	// SessionSetup switches the session to read committed with a 30s lock wait.
	SessionSetup() []string
	// SessionRestore returns the session to the engine defaults.
	SessionRestore() []string
	IsLockTimeout(err error) bool
	Rebind(query string) string
}

// For returns the dialect registered under driver.
func For(driver string) (Dialect, error) {
	switch driver {
	case "mysql":
		return MySQL{}, nil
	case "postgres":
		return Postgres{}, nil
	case "sqlite":
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Placeholders renders n comma separated '?' markers.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// rebindDollar rewrites '?' markers to $1..$n.
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// upsertOnConflict renders the INSERT ... ON CONFLICT form shared by
// PostgreSQL and SQLite.
func upsertOnConflict(table, key string, columns []string) string {
	sets := make([]string, 0, len(columns))
	for _, c := range columns {
		if c == key {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table, strings.Join(columns, ", "), Placeholders(len(columns)), key, strings.Join(sets, ", "))
}
