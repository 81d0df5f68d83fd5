package dbpool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithConnReleasesOnError(t *testing.T) {
	p := newTestPool(t, Config{PoolSize: 1}, &fakeDialer{})
	boom := errors.New("boom")

	err := WithConn(context.Background(), p, func(pc *PooledConn) error {
		assert.Equal(t, 0, p.Status().AvailableConnections)
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, p.Status().AvailableConnections)
}

func TestWithConnReleasesOnPanic(t *testing.T) {
	p := newTestPool(t, Config{PoolSize: 1}, &fakeDialer{})

	assert.Panics(t, func() {
		_ = WithConn(context.Background(), p, func(*PooledConn) error {
			panic("handler crashed")
		})
	})
	assert.Equal(t, 1, p.Status().AvailableConnections)
}

func TestWithConnSurfacesAcquireFailure(t *testing.T) {
	p := newTestPool(t, Config{PoolSize: 1, AcquireTimeout: 10 * time.Millisecond}, &fakeDialer{})
	held, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(held)

	called := false
	err = WithConn(context.Background(), p, func(*PooledConn) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrAcquireTimeout)
	assert.False(t, called)
}

func TestManagerRecreate(t *testing.T) {
	d := &fakeDialer{}
	bootstraps := 0
	m := NewManager(context.Background(), Config{PoolSize: 1}, d, logger.NewNop(),
		func(ctx context.Context, p *Pool) error {
			bootstraps++
			return WithConn(ctx, p, func(*PooledConn) error { return nil })
		})
	defer m.Close()

	old, err := m.Acquire(context.Background())
	require.NoError(t, err)

	m.Recreate(context.Background())
	assert.Equal(t, 2, bootstraps)
	assert.Equal(t, 1, m.Status().CreatedConnections)

	m.Release(old)
	assert.True(t, fake(old).isClosed())
	assert.Equal(t, 1, m.Status().AvailableConnections)
}

func TestManagerBootstrapFailureIsNotFatal(t *testing.T) {
	m := NewManager(context.Background(), Config{PoolSize: 1}, &fakeDialer{}, logger.NewNop(),
		func(context.Context, *Pool) error { return errors.New("table create failed") })
	defer m.Close()

	assert.NoError(t, m.Ping(context.Background()))
}
