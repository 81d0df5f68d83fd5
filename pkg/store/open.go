package store

import (
	"context"
	"fmt"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/config"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/dbpool"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/dialect"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/logger"

	"go.uber.org/zap"
)

// Database bundles a Store with the pool manager and driver handle behind it.
type Database struct {
	Store   *Store
	Pools   *dbpool.Manager
	Dialect dialect.Dialect
	dialer  *dbpool.SQLDialer
}

// Open connects to the configured engine, builds the pool, creates the schema
// and returns a Store on top. Schema failures are logged, not returned.
func Open(ctx context.Context, cfg config.DatabaseConfig, l *logger.Logger) (*Database, error) {
	d, err := dialect.For(cfg.Driver)
	if err != nil {
		return nil, err
	}
	db, err := d.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d.Name(), err)
	}
	dialer := dbpool.NewSQLDialer(db)

	pools := dbpool.NewManager(ctx, dbpool.Config{
		PoolSize:       cfg.PoolSize,
		MaxOverflow:    cfg.MaxOverflow,
		Recycle:        cfg.Recycle,
		AcquireTimeout: cfg.AcquireTimeout,
		ReleaseTimeout: cfg.ReleaseTimeout,
	}, dialer, l, Bootstrap(d, l))

	l.Info("database ready",
		zap.String("driver", d.Name()),
		zap.String("host", cfg.Host),
		zap.String("name", cfg.Name),
	)
	return &Database{
		Store:   New(pools, d, l, Options{SlowSaveThreshold: cfg.SlowSaveThreshold}),
		Pools:   pools,
		Dialect: d,
		dialer:  dialer,
	}, nil
}

// Close closes the pool and the driver handle.
func (d *Database) Close() error {
	d.Pools.Close()
	return d.dialer.Close()
}
