package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/dbpool"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/dialect"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/logger"

	"go.uber.org/zap"
)

// CreateTables creates every table that does not exist yet, parents first.
// A failing table does not stop the others; all failures are returned
// together, wrapped in ErrTableCreate.
func (s *Store) CreateTables(ctx context.Context) error {
	var errs []error
	err := dbpool.WithConn(ctx, s.pool, func(conn *dbpool.PooledConn) error {
		for _, table := range s.dialect.Schema() {
			if err := s.createTable(ctx, conn, table.Name, table.Statements); err != nil {
				s.logger.Error("failed to create table", err, zap.String("table", table.Name))
				errs = append(errs, err)
				continue
			}
			s.logger.Debug("table ready", zap.String("table", table.Name))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTableCreate, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrTableCreate, errors.Join(errs...))
	}
	s.logger.Info("schema ready", zap.String("dialect", s.dialect.Name()))
	return nil
}

func (s *Store) createTable(ctx context.Context, conn dbpool.Querier, name string, statements []string) error {
	for _, stmt := range statements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Bootstrap creates the schema on every pool a dbpool.Manager builds.
func Bootstrap(d dialect.Dialect, l *logger.Logger) dbpool.BootstrapFunc {
	return func(ctx context.Context, pool *dbpool.Pool) error {
		return New(pool, d, l, Options{}).CreateTables(ctx)
	}
}
