package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/dbpool"

	"go.uber.org/zap"
)

// AddFriend sends a friend request from userID to the player with
// targetPlayerID. Existing edges are reported with ErrAlreadyFriends,
// ErrRequestPending or ErrFriendBlocked and nothing is written.
func (s *Store) AddFriend(ctx context.Context, userID string, targetPlayerID int64) error {
	err := dbpool.WithConn(ctx, s.pool, func(conn *dbpool.PooledConn) error {
		target, err := s.userIDByPlayerID(ctx, conn, targetPlayerID)
		if err != nil {
			return err
		}
		if target == userID {
			return ErrSelfFriend
		}

		status, err := s.friendStatus(ctx, conn, userID, target)
		if err != nil {
			return err
		}
		switch status {
		case FriendAccepted:
			return ErrAlreadyFriends
		case FriendPending:
			return ErrRequestPending
		case FriendBlocked:
			return ErrFriendBlocked
		}

		_, err = s.exec(ctx, conn, `INSERT INTO player_friends (user_id, friend_user_id, friend_player_id, status)
			VALUES (?, ?, ?, ?)`, userID, target, targetPlayerID, string(FriendPending))
		if err != nil {
			return fmt.Errorf("insert friend request: %w", err)
		}
		return nil
	})
	if err != nil && !isFriendRejection(err) {
		s.logger.Error("failed to add friend", err, zap.String("user_id", userID), zap.Int64("target_player_id", targetPlayerID))
	}
	return err
}

// AcceptFriend accepts the pending request requesterPlayerID sent to userID
// and records the reverse edge, both in one transaction.
func (s *Store) AcceptFriend(ctx context.Context, userID string, requesterPlayerID int64) error {
	return dbpool.WithConn(ctx, s.pool, func(conn *dbpool.PooledConn) error {
		requester, err := s.userIDByPlayerID(ctx, conn, requesterPlayerID)
		if err != nil {
			return err
		}
		if err := conn.Begin(ctx); err != nil {
			return err
		}
		if err := s.acceptTx(ctx, conn, userID, requester, requesterPlayerID); err != nil {
			_ = conn.Rollback()
			return err
		}
		return conn.Commit()
	})
}

func (s *Store) acceptTx(ctx context.Context, conn dbpool.Querier, userID, requester string, requesterPlayerID int64) error {
	res, err := s.exec(ctx, conn, `UPDATE player_friends SET status = ?
		WHERE user_id = ? AND friend_user_id = ? AND status = ?`,
		string(FriendAccepted), requester, userID, string(FriendPending))
	if err != nil {
		return fmt.Errorf("accept friend request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRequestNotFound
	}

	if _, err := s.exec(ctx, conn, "DELETE FROM player_friends WHERE user_id = ? AND friend_user_id = ?", userID, requester); err != nil {
		return fmt.Errorf("clear reverse edge: %w", err)
	}
	if _, err := s.exec(ctx, conn, `INSERT INTO player_friends (user_id, friend_user_id, friend_player_id, status)
		VALUES (?, ?, ?, ?)`, userID, requester, requesterPlayerID, string(FriendAccepted)); err != nil {
		return fmt.Errorf("insert reverse edge: %w", err)
	}
	s.logger.Debug("friend request accepted",
		zap.String("user_id", userID), zap.Int64("requester_player_id", requesterPlayerID))
	return nil
}

func (s *Store) friendStatus(ctx context.Context, q dbpool.Querier, userID, friendUserID string) (FriendStatus, error) {
	var status string
	err := s.queryRow(ctx, q, "SELECT status FROM player_friends WHERE user_id = ? AND friend_user_id = ?",
		userID, friendUserID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("friend status: %w", err)
	}
	return FriendStatus(status), nil
}

// Friends lists accepted friends of userID, newest first.
func (s *Store) Friends(ctx context.Context, userID string) ([]Friend, error) {
	return s.listFriends(ctx, `SELECT p.player_id, p.name, p.city_level, p.total_income, pf.created_at
		FROM player_friends pf
		JOIN players p ON pf.friend_user_id = p.user_id
		WHERE pf.user_id = ? AND pf.status = ?
		ORDER BY pf.created_at DESC, pf.id DESC`, userID, string(FriendAccepted))
}

// FriendRequests lists pending requests sent to userID, newest first.
func (s *Store) FriendRequests(ctx context.Context, userID string) ([]Friend, error) {
	return s.listFriends(ctx, `SELECT p.player_id, p.name, p.city_level, p.total_income, pf.created_at
		FROM player_friends pf
		JOIN players p ON pf.user_id = p.user_id
		WHERE pf.friend_user_id = ? AND pf.status = ?
		ORDER BY pf.created_at DESC, pf.id DESC`, userID, string(FriendPending))
}

func (s *Store) listFriends(ctx context.Context, query string, args ...any) ([]Friend, error) {
	friends := []Friend{}
	err := dbpool.WithConn(ctx, s.pool, func(conn *dbpool.PooledConn) error {
		rows, err := s.query(ctx, conn, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				f     Friend
				since any
			)
			if err := rows.Scan(&f.PlayerID, &f.Name, &f.CityLevel, &f.TotalIncome, &since); err != nil {
				return err
			}
			f.Since = scanTime(since)
			friends = append(friends, f)
		}
		return rows.Err()
	})
	if err != nil {
		s.logger.Error("failed to list friends", err)
		return nil, fmt.Errorf("list friends: %w", err)
	}
	return friends, nil
}

func isFriendRejection(err error) bool {
	return errors.Is(err, ErrPlayerNotFound) ||
		errors.Is(err, ErrSelfFriend) ||
		errors.Is(err, ErrAlreadyFriends) ||
		errors.Is(err, ErrRequestPending) ||
		errors.Is(err, ErrFriendBlocked)
}
