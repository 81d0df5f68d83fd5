package store

import (
	"context"
	"fmt"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/dbpool"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/ranking"

	"go.uber.org/zap"
)

const DefaultRankingLimit = 50

var rankingColumns = []string{"user_id", "name", "gold", "total_income"}

// UpsertRanking writes one leaderboard row in its own autocommitted statement.
func (s *Store) UpsertRanking(ctx context.Context, e ranking.Entry) error {
	err := dbpool.WithConn(ctx, s.pool, func(conn *dbpool.PooledConn) error {
		_, err := s.exec(ctx, conn, s.dialect.Upsert("world_ranking", "user_id", rankingColumns),
			e.UserID, e.Name, e.Gold, e.TotalIncome)
		return err
	})
	if err != nil {
		s.logger.Error("failed to update world ranking", err, zap.String("user_id", e.UserID))
		return fmt.Errorf("upsert world ranking: %w", err)
	}
	return nil
}

// UpsertRankings writes a batch of leaderboard rows in one transaction.
func (s *Store) UpsertRankings(ctx context.Context, entries []ranking.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	query := s.dialect.Upsert("world_ranking", "user_id", rankingColumns)
	return dbpool.WithConn(ctx, s.pool, func(conn *dbpool.PooledConn) error {
		if err := conn.Begin(ctx); err != nil {
			return err
		}
		for _, e := range entries {
			if _, err := s.exec(ctx, conn, query, e.UserID, e.Name, e.Gold, e.TotalIncome); err != nil {
				_ = conn.Rollback()
				return fmt.Errorf("upsert world ranking for %s: %w", e.UserID, err)
			}
		}
		if err := conn.Commit(); err != nil {
			return fmt.Errorf("commit world ranking batch: %w", err)
		}
		return nil
	})
}

// LoadRanking returns the top limit rows by total income, highest first.
func (s *Store) LoadRanking(ctx context.Context, limit int) ([]ranking.Entry, error) {
	if limit <= 0 {
		limit = DefaultRankingLimit
	}
	entries := []ranking.Entry{}
	err := dbpool.WithConn(ctx, s.pool, func(conn *dbpool.PooledConn) error {
		rows, err := s.query(ctx, conn, `SELECT user_id, name, gold, total_income, updated_at
			FROM world_ranking ORDER BY total_income DESC LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				e         ranking.Entry
				updatedAt any
			)
			if err := rows.Scan(&e.UserID, &e.Name, &e.Gold, &e.TotalIncome, &updatedAt); err != nil {
				return err
			}
			e.UpdatedAt = scanTime(updatedAt)
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		s.logger.Error("failed to load world ranking", err)
		return nil, fmt.Errorf("load world ranking: %w", err)
	}
	return entries, nil
}
