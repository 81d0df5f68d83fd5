package dbpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/logger"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/metrics"

	"go.uber.org/zap"
)

const (
	DefaultAcquireTimeout = 30 * time.Second
	DefaultReleaseTimeout = 1 * time.Second

	healthCheckTimeout = 5 * time.Second
)

// Config sizes the pool.
type Config struct {
	PoolSize    int
	MaxOverflow int
	// Recycle is the maximum age of a connection, measured from its creation.
	Recycle        time.Duration
	AcquireTimeout time.Duration
	ReleaseTimeout time.Duration
}

func (c Config) capacity() int {
	return c.PoolSize + c.MaxOverflow
}

// Status is a read-only snapshot of the pool counters.
type Status struct {
	PoolSize             int `json:"pool_size"`
	MaxOverflow          int `json:"max_overflow"`
	CreatedConnections   int `json:"created_connections"`
	AvailableConnections int `json:"available_connections"`
}

// PooledConn is a Conn checked out of a Pool. It has exactly one holder at a time.
type PooledConn struct {
	Conn

	pool       *Pool
	createdAt  time.Time
	generation uint64
	checkedOut atomic.Bool
}

// CreatedAt reports when the underlying session was opened.
func (pc *PooledConn) CreatedAt() time.Time { return pc.createdAt }

// Unwrap returns the underlying session.
func (pc *PooledConn) Unwrap() Conn { return pc.Conn }

// Pool is a bounded set of connections: at most PoolSize+MaxOverflow exist at
// once, counted by created. Idle connections wait in a buffered channel so that
// blocking acquire and release never hold the counter lock.
type Pool struct {
	cfg    Config
	dialer Dialer
	logger *logger.Logger
	now    func() time.Time

	idle chan *PooledConn
	done chan struct{}

	mu         sync.Mutex
	created    int
	generation uint64
	closed     bool
}

// New builds a pool and eagerly opens PoolSize connections. Connections that
// cannot be opened are logged and skipped; the pool is usable regardless.
func New(ctx context.Context, cfg Config, dialer Dialer, l *logger.Logger) *Pool {
	if cfg.PoolSize < 1 {
		cfg.PoolSize = 1
	}
	if cfg.MaxOverflow < 0 {
		cfg.MaxOverflow = 0
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultAcquireTimeout
	}
	if cfg.ReleaseTimeout <= 0 {
		cfg.ReleaseTimeout = DefaultReleaseTimeout
	}

	p := &Pool{
		cfg:    cfg,
		dialer: dialer,
		logger: l.Component("dbpool"),
		now:    time.Now,
		idle:   make(chan *PooledConn, cfg.capacity()),
		done:   make(chan struct{}),
	}

	for i := 0; i < cfg.PoolSize; i++ {
		pc, err := p.create(ctx)
		if err != nil {
			continue
		}
		p.idle <- pc
	}

	status := p.Status()
	p.logger.Info("connection pool initialized",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("max_overflow", cfg.MaxOverflow),
		zap.Duration("recycle", cfg.Recycle),
		zap.Int("created_connections", status.CreatedConnections),
	)
	return p
}

var errAtCapacity = errors.New("pool at capacity")

// Acquire hands out a connection that is either freshly verified or freshly
// created. Idle connections that are too old or fail a ping are closed on the
// way. When the pool is at capacity it waits up to AcquireTimeout for a release.
func (p *Pool) Acquire(ctx context.Context) (*PooledConn, error) {
	start := time.Now()
	pc, err := p.acquire(ctx)
	if err != nil {
		metrics.PoolAcquireErrorsTotal.WithLabelValues(acquireErrorReason(err)).Inc()
		return nil, err
	}
	metrics.PoolAcquireWait.Observe(time.Since(start).Seconds())
	pc.checkedOut.Store(true)
	return pc, nil
}

func (p *Pool) acquire(ctx context.Context) (*PooledConn, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}

	for {
		pc, ok := p.takeIdle()
		if !ok {
			break
		}
		if p.usable(ctx, pc) {
			return pc, nil
		}
	}

	pc, err := p.create(ctx)
	if err == nil {
		return pc, nil
	}
	if errors.Is(err, ErrPoolClosed) {
		return nil, err
	}

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case pc := <-p.idle:
		if p.stale(pc) || p.expired(pc) {
			p.retire(pc, "expired")
			if fresh, err := p.create(ctx); err == nil {
				return fresh, nil
			}
			return nil, ErrInvalidConnection
		}
		if !p.alive(ctx, pc) {
			p.discard(pc, "dead")
			return nil, ErrInvalidConnection
		}
		return pc, nil
	case <-timer.C:
		return nil, ErrAcquireTimeout
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a connection to the idle set after a health check and a
// rollback of any open transaction. It never fails: connections that cannot be
// reused are closed and their slot is freed.
func (p *Pool) Release(pc *PooledConn) {
	if pc == nil {
		return
	}
	if pc.pool != p {
		pc.pool.Release(pc)
		return
	}
	if !pc.checkedOut.CompareAndSwap(true, false) {
		p.logger.Warn("connection released twice, ignoring")
		return
	}

	if p.stale(pc) {
		p.retire(pc, "stale")
		return
	}
	if !p.alive(context.Background(), pc) {
		p.discard(pc, "dead")
		return
	}
	if err := pc.Rollback(); err != nil {
		p.logger.Error("failed to reset connection on release", err)
		p.discard(pc, "reset_failed")
		return
	}

	timer := time.NewTimer(p.cfg.ReleaseTimeout)
	defer timer.Stop()
	select {
	case p.idle <- pc:
	case <-timer.C:
		p.discard(pc, "overflow")
	}
}

// Drain closes every idle connection and resets the counter. Checked-out
// connections are left alone; they are closed when they come back.
func (p *Pool) Drain() {
	p.mu.Lock()
	p.generation++
	p.created = 0
	p.mu.Unlock()

	closed := 0
	for {
		pc, ok := p.takeIdle()
		if !ok {
			break
		}
		p.closeQuietly(pc)
		closed++
	}
	p.logger.Info("connection pool drained", zap.Int("closed", closed))
}

// Close drains the pool and rejects further acquisitions.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.Drain()
}

// Status returns the current counters.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		PoolSize:             p.cfg.PoolSize,
		MaxOverflow:          p.cfg.MaxOverflow,
		CreatedConnections:   p.created,
		AvailableConnections: len(p.idle),
	}
}

// Ping acquires a connection, which health-checks it, and releases it again.
func (p *Pool) Ping(ctx context.Context) error {
	pc, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	p.Release(pc)
	return nil
}

// create reserves a slot under the lock, then dials outside of it.
func (p *Pool) create(ctx context.Context) (*PooledConn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if p.created >= p.cfg.capacity() {
		p.mu.Unlock()
		return nil, errAtCapacity
	}
	p.created++
	generation := p.generation
	p.mu.Unlock()

	conn, err := p.dialer.Dial(ctx)
	if err != nil {
		p.release(generation)
		metrics.PoolCreateErrorsTotal.Inc()
		p.logger.Error("failed to create database connection", err)
		return nil, fmt.Errorf("%w: %w", ErrConnectionCreate, err)
	}

	return &PooledConn{
		Conn:       conn,
		pool:       p,
		createdAt:  p.now(),
		generation: generation,
	}, nil
}

func (p *Pool) takeIdle() (*PooledConn, bool) {
	select {
	case pc := <-p.idle:
		return pc, true
	default:
		return nil, false
	}
}

func (p *Pool) usable(ctx context.Context, pc *PooledConn) bool {
	if p.stale(pc) {
		p.retire(pc, "stale")
		return false
	}
	if p.expired(pc) {
		p.discard(pc, "expired")
		return false
	}
	if !p.alive(ctx, pc) {
		p.discard(pc, "dead")
		return false
	}
	return true
}

func (p *Pool) alive(ctx context.Context, pc *PooledConn) bool {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := pc.Ping(ctx); err != nil {
		p.logger.Debug("connection failed health check", zap.Error(err))
		return false
	}
	return true
}

func (p *Pool) expired(pc *PooledConn) bool {
	return p.cfg.Recycle > 0 && p.now().Sub(pc.createdAt) > p.cfg.Recycle
}

// stale reports connections created before the last drain.
func (p *Pool) stale(pc *PooledConn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return pc.generation != p.generation
}

// discard closes pc and frees its slot.
func (p *Pool) discard(pc *PooledConn, reason string) {
	p.closeQuietly(pc)
	p.release(pc.generation)
	metrics.PoolDiscardedTotal.WithLabelValues(reason).Inc()
}

// retire closes pc without touching the counter. Used for connections whose
// slot was already reset by a drain.
func (p *Pool) retire(pc *PooledConn, reason string) {
	if !p.stale(pc) {
		p.discard(pc, reason)
		return
	}
	p.closeQuietly(pc)
	metrics.PoolDiscardedTotal.WithLabelValues("stale").Inc()
}

func (p *Pool) release(generation uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if generation == p.generation && p.created > 0 {
		p.created--
	}
}

func (p *Pool) closeQuietly(pc *PooledConn) {
	if err := pc.Close(); err != nil {
		p.logger.Debug("error closing connection", zap.Error(err))
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func acquireErrorReason(err error) string {
	switch {
	case errors.Is(err, ErrAcquireTimeout):
		return "timeout"
	case errors.Is(err, ErrInvalidConnection):
		return "invalid"
	case errors.Is(err, ErrPoolClosed):
		return "closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}
