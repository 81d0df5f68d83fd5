package dbpool

import (
	"context"
	"sync"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/logger"
)

// BootstrapFunc runs against a freshly built pool, typically to create tables.
type BootstrapFunc func(ctx context.Context, pool *Pool) error

// Manager owns the current pool and can replace it after an administrative reset.
// Connections always return to the pool that produced them.
type Manager struct {
	cfg       Config
	dialer    Dialer
	logger    *logger.Logger
	bootstrap BootstrapFunc

	mu   sync.RWMutex
	pool *Pool
}

// NewManager builds the first pool and runs bootstrap against it.
func NewManager(ctx context.Context, cfg Config, dialer Dialer, l *logger.Logger, bootstrap BootstrapFunc) *Manager {
	m := &Manager{
		cfg:       cfg,
		dialer:    dialer,
		logger:    l,
		bootstrap: bootstrap,
	}
	m.pool = m.build(ctx)
	return m
}

func (m *Manager) build(ctx context.Context) *Pool {
	p := New(ctx, m.cfg, m.dialer, m.logger)
	if m.bootstrap != nil {
		if err := m.bootstrap(ctx, p); err != nil {
			m.logger.Error("bootstrap after pool creation failed", err)
		}
	}
	return p
}

// Pool returns the current pool.
func (m *Manager) Pool() *Pool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pool
}

func (m *Manager) Acquire(ctx context.Context) (*PooledConn, error) {
	return m.Pool().Acquire(ctx)
}

func (m *Manager) Release(pc *PooledConn) {
	if pc == nil {
		return
	}
	pc.pool.Release(pc)
}

func (m *Manager) Status() Status {
	return m.Pool().Status()
}

func (m *Manager) Ping(ctx context.Context) error {
	return m.Pool().Ping(ctx)
}

// Recreate closes the current pool and swaps in a new one. Connections still
// held from the old pool are closed when released.
func (m *Manager) Recreate(ctx context.Context) {
	next := m.build(ctx)

	m.mu.Lock()
	old := m.pool
	m.pool = next
	m.mu.Unlock()

	old.Close()
	m.logger.Info("connection pool recreated")
}

// Close closes the current pool.
func (m *Manager) Close() {
	m.Pool().Close()
}
