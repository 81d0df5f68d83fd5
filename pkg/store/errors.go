package store

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSaveFailed marks any failure inside the save transaction. It has been rolled back.
	ErrSaveFailed = errors.New("player save failed")

	// ErrLockWaitTimeout is a save failure caused by the engine giving up on a row lock.
	ErrLockWaitTimeout = errors.New("lock wait timeout")

	ErrTableCreate = errors.New("table creation failed")

	// ErrPlayerIDTaken means the player id being saved belongs to another user.
	ErrPlayerIDTaken = errors.New("player id already taken")

	ErrPlayerNotFound = errors.New("player not found")

	ErrAlreadyFriends  = errors.New("already friends")
	ErrRequestPending  = errors.New("friend request already sent")
	ErrFriendBlocked   = errors.New("cannot add this player as a friend")
	ErrSelfFriend      = errors.New("cannot add yourself as a friend")
	ErrRequestNotFound = errors.New("no pending friend request from this player")
)

// SaveError describes a rolled back save. It matches ErrSaveFailed, and
// ErrLockWaitTimeout as well when the engine reported a lock timeout.
type SaveError struct {
	UserID      string
	Elapsed     time.Duration
	LockTimeout bool
	Err         error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save player %s failed after %s: %v", e.UserID, e.Elapsed.Round(time.Millisecond), e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

func (e *SaveError) Is(target error) bool {
	switch target {
	case ErrSaveFailed:
		return true
	case ErrLockWaitTimeout:
		return e.LockTimeout
	}
	return false
}
