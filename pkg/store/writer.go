package store

import (
	"context"
	"errors"
	"time"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/logger"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/metrics"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/ranking"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/retry"

	"go.uber.org/zap"
)

// Saver is the save half of Store.
type Saver interface {
	Save(ctx context.Context, userID string, p *Player) error
}

// RankingSink receives the leaderboard entry of every successful save.
type RankingSink interface {
	Publish(ctx context.Context, e ranking.Entry) error
}

const saveAttempts = 3

var (
	saveFailedSchedule  = retry.Schedule{InitialInterval: 100 * time.Millisecond, MaxInterval: 400 * time.Millisecond, Multiplier: 2}
	lockTimeoutSchedule = retry.Schedule{InitialInterval: 500 * time.Millisecond, MaxInterval: 2 * time.Second, Multiplier: 2}
)

// classifySaveError retries rolled back saves, waiting longer after lock
// timeouts. Pool errors and cancellations are final.
func classifySaveError(err error) (retry.Schedule, bool) {
	switch {
	case errors.Is(err, ErrLockWaitTimeout):
		return lockTimeoutSchedule, true
	case errors.Is(err, ErrSaveFailed):
		return saveFailedSchedule, true
	default:
		return retry.Schedule{}, false
	}
}

// SaveRetryOptions is the retry policy of RetryingWriter.
func SaveRetryOptions() retry.RetryOptions {
	return retry.RetryOptions{
		MaxAttempts: saveAttempts,
		Classifier:  classifySaveError,
	}
}

// RetryingWriter retries saves that were rolled back and then hands the
// leaderboard entry to a sink. Every attempt is a complete transaction, so a
// failed attempt leaves nothing behind.
type RetryingWriter struct {
	saver  Saver
	sink   RankingSink
	logger *logger.Logger
	opts   retry.RetryOptions
}

// NewRetryingWriter builds a writer. sink may be nil.
func NewRetryingWriter(saver Saver, sink RankingSink, l *logger.Logger) *RetryingWriter {
	return &RetryingWriter{
		saver:  saver,
		sink:   sink,
		logger: l.Component("writer"),
		opts:   SaveRetryOptions(),
	}
}

// Write saves p, retrying per SaveRetryOptions, and returns the last error.
func (w *RetryingWriter) Write(ctx context.Context, userID string, p *Player) error {
	opts := w.opts
	opts.OnRetry = func(attempt int, err error, backoff time.Duration) {
		class := "save_failed"
		if errors.Is(err, ErrLockWaitTimeout) {
			class = "lock_timeout"
		}
		metrics.WriterRetriesTotal.WithLabelValues(class).Inc()
		w.logger.Warn("retrying player save",
			zap.String("user_id", userID),
			zap.Int("attempt", attempt),
			zap.String("class", class),
			zap.Duration("backoff", backoff),
		)
	}

	err := retry.Do(ctx, func() error {
		return w.saver.Save(ctx, userID, p)
	}, opts)
	if err != nil {
		if errors.Is(err, ErrSaveFailed) {
			metrics.WriterExhaustedTotal.Inc()
		}
		w.logger.Error("player save gave up", err, zap.String("user_id", userID))
		return err
	}
	return nil
}

// Save is Write for callers that only need to know whether it worked.
func (w *RetryingWriter) Save(ctx context.Context, userID string, p *Player) bool {
	return w.Write(ctx, userID, p) == nil
}

// WriteAndRank saves p and then publishes its leaderboard entry. A publish
// failure is logged but does not fail the call; the save has committed.
func (w *RetryingWriter) WriteAndRank(ctx context.Context, userID string, p *Player) error {
	if err := w.Write(ctx, userID, p); err != nil {
		return err
	}
	if w.sink == nil {
		return nil
	}

	entry := ranking.Entry{
		UserID:      userID,
		Name:        p.Name,
		Gold:        p.Gold,
		TotalIncome: p.TotalIncome,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := w.sink.Publish(ctx, entry); err != nil {
		metrics.RankingPublishErrorsTotal.Inc()
		w.logger.Warn("failed to publish ranking entry", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	metrics.RankingPublishedTotal.Inc()
	return nil
}

func (w *RetryingWriter) SaveAndRank(ctx context.Context, userID string, p *Player) bool {
	return w.WriteAndRank(ctx, userID, p) == nil
}
