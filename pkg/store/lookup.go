package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/dbpool"
)

// NextPlayerID returns one more than the highest allocated player id. Two
// callers can receive the same value; the unique index on player_id decides.
func (s *Store) NextPlayerID(ctx context.Context) (int64, error) {
	var id int64
	err := dbpool.WithConn(ctx, s.pool, func(conn *dbpool.PooledConn) error {
		var err error
		id, err = s.nextPlayerID(ctx, conn)
		return err
	})
	return id, err
}

func (s *Store) nextPlayerID(ctx context.Context, q dbpool.Querier) (int64, error) {
	var id int64
	if err := s.queryRow(ctx, q, "SELECT COALESCE(MAX(player_id), 0) + 1 FROM players").Scan(&id); err != nil {
		return 0, fmt.Errorf("next player id: %w", err)
	}
	return id, nil
}

// UserIDByPlayerID resolves a public player id to the owning user.
func (s *Store) UserIDByPlayerID(ctx context.Context, playerID int64) (string, error) {
	var userID string
	err := dbpool.WithConn(ctx, s.pool, func(conn *dbpool.PooledConn) error {
		var err error
		userID, err = s.userIDByPlayerID(ctx, conn, playerID)
		return err
	})
	return userID, err
}

func (s *Store) userIDByPlayerID(ctx context.Context, q dbpool.Querier, playerID int64) (string, error) {
	var userID string
	err := s.queryRow(ctx, q, "SELECT user_id FROM players WHERE player_id = ?", playerID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrPlayerNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup player %d: %w", playerID, err)
	}
	return userID, nil
}

func (s *Store) PlayerIDByUserID(ctx context.Context, userID string) (int64, error) {
	var playerID int64
	err := dbpool.WithConn(ctx, s.pool, func(conn *dbpool.PooledConn) error {
		var err error
		playerID, err = s.playerIDByUserID(ctx, conn, userID)
		return err
	})
	return playerID, err
}

func (s *Store) playerIDByUserID(ctx context.Context, q dbpool.Querier, userID string) (int64, error) {
	var playerID int64
	err := s.queryRow(ctx, q, "SELECT player_id FROM players WHERE user_id = ?", userID).Scan(&playerID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrPlayerNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lookup user %s: %w", userID, err)
	}
	return playerID, nil
}

// NameExists reports whether any player already uses name.
func (s *Store) NameExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := dbpool.WithConn(ctx, s.pool, func(conn *dbpool.PooledConn) error {
		return s.queryRow(ctx, conn, "SELECT COUNT(*) FROM players WHERE name = ?", name).Scan(&n)
	})
	if err != nil {
		return false, fmt.Errorf("check name: %w", err)
	}
	return n > 0, nil
}
