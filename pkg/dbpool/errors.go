package dbpool

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolExhausted is returned when no connection could be handed out.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrAcquireTimeout means the pool was at capacity and nothing was released in time.
	ErrAcquireTimeout = fmt.Errorf("%w: timed out waiting for a released connection", ErrPoolExhausted)

	// ErrInvalidConnection means the connection received after waiting failed its health check.
	ErrInvalidConnection = errors.New("released connection failed health check")

	// ErrConnectionCreate wraps failures to open a new session with the store.
	ErrConnectionCreate = errors.New("failed to create database connection")

	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("connection pool is closed")
)
