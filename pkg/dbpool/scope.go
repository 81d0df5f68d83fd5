package dbpool

import "context"

// Acquirer is anything connections can be borrowed from: a Pool or a Manager.
type Acquirer interface {
	Acquire(ctx context.Context) (*PooledConn, error)
	Release(pc *PooledConn)
}

// WithConn borrows a connection for the duration of fn and returns it exactly
// once, including when fn fails or panics. An acquisition failure is returned
// before fn runs.
func WithConn(ctx context.Context, src Acquirer, fn func(conn *PooledConn) error) error {
	pc, err := src.Acquire(ctx)
	if err != nil {
		return err
	}
	defer src.Release(pc)
	return fn(pc)
}
