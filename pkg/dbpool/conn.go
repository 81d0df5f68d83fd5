package dbpool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Querier is the statement surface shared by a bare connection and an open transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Conn is one live session with the store. Statements run inside the open
// transaction when there is one, and in autocommit mode otherwise.
type Conn interface {
	Querier

	// Begin opens a transaction on this session.
	Begin(ctx context.Context) error
	// Commit commits the open transaction. It is an error to commit without one.
	Commit() error
	// Rollback discards the open transaction. Without one it does nothing.
	Rollback() error
	// Ping is a round-trip probe. It never reconnects.
	Ping(ctx context.Context) error
	Close() error
}

// Dialer opens new sessions with the store.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }

var errNoTransaction = errors.New("no transaction in progress")

// SQLDialer hands out dedicated sessions from a *sql.DB that keeps no idle
// connections of its own, so the Pool is the only place sessions are reused.
type SQLDialer struct {
	db *sql.DB
}

// NewSQLDialer wraps db. The database/sql idle cache is disabled.
func NewSQLDialer(db *sql.DB) *SQLDialer {
	db.SetMaxIdleConns(0)
	db.SetMaxOpenConns(0)
	return &SQLDialer{db: db}
}

// Dial opens one physical connection.
func (d *SQLDialer) Dial(ctx context.Context) (Conn, error) {
	c, err := d.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return WrapConn(c), nil
}

// Close closes the underlying *sql.DB.
func (d *SQLDialer) Close() error {
	return d.db.Close()
}

// WrapConn adapts a dedicated *sql.Conn to Conn.
func WrapConn(c *sql.Conn) Conn {
	return &sqlConn{conn: c}
}

type sqlConn struct {
	conn *sql.Conn
	tx   *sql.Tx
}

func (c *sqlConn) querier() Querier {
	if c.tx != nil {
		return c.tx
	}
	return c.conn
}

func (c *sqlConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.querier().ExecContext(ctx, query, args...)
}

func (c *sqlConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.querier().QueryContext(ctx, query, args...)
}

func (c *sqlConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.querier().QueryRowContext(ctx, query, args...)
}

func (c *sqlConn) Begin(ctx context.Context) error {
	if c.tx != nil {
		return errors.New("transaction already in progress")
	}
	// The transaction must outlive ctx cancellation checks of individual
	// statements; database/sql rolls back when the Begin context is done.
	tx, err := c.conn.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	c.tx = tx
	return nil
}

func (c *sqlConn) Commit() error {
	if c.tx == nil {
		return errNoTransaction
	}
	tx := c.tx
	c.tx = nil
	return tx.Commit()
}

func (c *sqlConn) Rollback() error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func (c *sqlConn) Ping(ctx context.Context) error {
	return c.conn.PingContext(ctx)
}

func (c *sqlConn) Close() error {
	_ = c.Rollback()
	return c.conn.Close()
}
