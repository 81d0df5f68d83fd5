package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/dbpool"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/logger"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/ranking"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockSaver struct{ mock.Mock }

func (m *MockSaver) Save(ctx context.Context, userID string, p *Player) error {
	return m.Called(ctx, userID, p).Error(0)
}

type MockSink struct{ mock.Mock }

func (m *MockSink) Publish(ctx context.Context, e ranking.Entry) error {
	return m.Called(ctx, e).Error(0)
}

func newTestWriter(saver Saver, sink RankingSink) (*RetryingWriter, *[]time.Duration) {
	var sleeps []time.Duration
	w := NewRetryingWriter(saver, sink, logger.NewNop())
	w.opts.Sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return w, &sleeps
}

func lockTimeout(user string) error {
	return &SaveError{UserID: user, LockTimeout: true, Err: errors.New("Error 1205: Lock wait timeout exceeded")}
}

func TestRetryingWriterRecoversFromLockTimeouts(t *testing.T) {
	saver := new(MockSaver)
	sink := new(MockSink)
	p := NewPlayer("alice")

	saver.On("Save", mock.Anything, "u1", p).Return(lockTimeout("u1")).Twice()
	saver.On("Save", mock.Anything, "u1", p).Return(nil).Once()
	sink.On("Publish", mock.Anything, mock.MatchedBy(func(e ranking.Entry) bool {
		return e.UserID == "u1" && e.Name == "alice"
	})).Return(nil).Once()

	w, sleeps := newTestWriter(saver, sink)

	assert.True(t, w.SaveAndRank(context.Background(), "u1", p))
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, *sleeps)
	saver.AssertNumberOfCalls(t, "Save", 3)
	sink.AssertExpectations(t)
}

func TestRetryingWriterPlainFailureSchedule(t *testing.T) {
	saver := new(MockSaver)
	p := NewPlayer("bob")
	saver.On("Save", mock.Anything, "u2", p).Return(&SaveError{UserID: "u2", Err: errors.New("deadlock")})

	w, sleeps := newTestWriter(saver, nil)

	assert.False(t, w.Save(context.Background(), "u2", p))
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *sleeps)
	saver.AssertNumberOfCalls(t, "Save", 3)
}

func TestRetryingWriterScheduleFollowsLatestFailure(t *testing.T) {
	saver := new(MockSaver)
	p := NewPlayer("carol")
	saver.On("Save", mock.Anything, "u3", p).Return(&SaveError{UserID: "u3", Err: errors.New("fk")}).Once()
	saver.On("Save", mock.Anything, "u3", p).Return(lockTimeout("u3")).Once()
	saver.On("Save", mock.Anything, "u3", p).Return(nil).Once()

	w, sleeps := newTestWriter(saver, nil)

	assert.NoError(t, w.Write(context.Background(), "u3", p))
	assert.Equal(t, []time.Duration{100 * time.Millisecond, time.Second}, *sleeps)
}

func TestRetryingWriterDoesNotRetryPoolErrors(t *testing.T) {
	saver := new(MockSaver)
	p := NewPlayer("dave")
	saver.On("Save", mock.Anything, "u4", p).Return(dbpool.ErrAcquireTimeout)

	w, sleeps := newTestWriter(saver, nil)

	err := w.Write(context.Background(), "u4", p)
	assert.ErrorIs(t, err, dbpool.ErrPoolExhausted)
	assert.Empty(t, *sleeps)
	saver.AssertNumberOfCalls(t, "Save", 1)
}

func TestRetryingWriterIgnoresSinkFailure(t *testing.T) {
	saver := new(MockSaver)
	sink := new(MockSink)
	p := NewPlayer("erin")
	saver.On("Save", mock.Anything, "u5", p).Return(nil)
	sink.On("Publish", mock.Anything, mock.Anything).Return(errors.New("kafka down"))

	w, _ := newTestWriter(saver, sink)

	assert.True(t, w.SaveAndRank(context.Background(), "u5", p))
	sink.AssertNumberOfCalls(t, "Publish", 1)
}

func TestRetryingWriterSkipsSinkAfterFailure(t *testing.T) {
	saver := new(MockSaver)
	sink := new(MockSink)
	p := NewPlayer("frank")
	saver.On("Save", mock.Anything, "u6", p).Return(lockTimeout("u6"))

	w, _ := newTestWriter(saver, sink)

	assert.False(t, w.SaveAndRank(context.Background(), "u6", p))
	sink.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestSaveErrorMatching(t *testing.T) {
	plain := &SaveError{UserID: "u", Err: errors.New("boom")}
	lock := lockTimeout("u")

	assert.ErrorIs(t, plain, ErrSaveFailed)
	assert.NotErrorIs(t, plain, ErrLockWaitTimeout)
	assert.ErrorIs(t, lock, ErrSaveFailed)
	assert.ErrorIs(t, lock, ErrLockWaitTimeout)

	_, retryable := classifySaveError(errors.New("unrelated"))
	assert.False(t, retryable)
}
