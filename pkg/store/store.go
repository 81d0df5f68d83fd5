// Package store persists the player aggregate and the tables around it:
// the world ranking and the friend graph.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/dbpool"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/dialect"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/logger"
)

const DefaultSlowSaveThreshold = 2 * time.Second

type Options struct {
	// SlowSaveThreshold is the save duration above which a warning is logged.
	SlowSaveThreshold time.Duration
}

// Store runs every statement on connections borrowed from pool.
type Store struct {
	pool     dbpool.Acquirer
	dialect  dialect.Dialect
	logger   *logger.Logger
	slowSave time.Duration
}

func New(pool dbpool.Acquirer, d dialect.Dialect, l *logger.Logger, opts Options) *Store {
	if opts.SlowSaveThreshold <= 0 {
		opts.SlowSaveThreshold = DefaultSlowSaveThreshold
	}
	return &Store{
		pool:     pool,
		dialect:  d,
		logger:   l.Component("store"),
		slowSave: opts.SlowSaveThreshold,
	}
}

func (s *Store) exec(ctx context.Context, q dbpool.Querier, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) query(ctx context.Context, q dbpool.Querier, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, q dbpool.Querier, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, s.dialect.Rebind(query), args...)
}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
}

// scanTime normalizes timestamp columns, which drivers hand back either as
// time.Time or as text.
func scanTime(v any) time.Time {
	var s string
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
