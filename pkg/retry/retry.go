package retry

import (
	"context"
	"math"
	"time"
)

// RetryableFunc is a function that can be retried
type RetryableFunc func() error

// Schedule is an exponential backoff curve.
type Schedule struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// ErrorClassifier picks the backoff schedule for an error. Returning false stops the loop.
type ErrorClassifier func(error) (Schedule, bool)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryOptions defines the configuration for retries
type RetryOptions struct {
	MaxAttempts int
	Classifier  ErrorClassifier
	Sleep       SleepFunc
	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, err error, backoff time.Duration)
}

// DefaultSchedule doubles from one second up to thirty.
func DefaultSchedule() Schedule {
	return Schedule{
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}
}

// DefaultOptions retries every error on the default schedule
func DefaultOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts: 5,
		Classifier:  Always(DefaultSchedule()),
	}
}

// Always classifies every error as retryable on s.
func Always(s Schedule) ErrorClassifier {
	return func(error) (Schedule, bool) { return s, true }
}

// Do executes fn until it succeeds, the classifier rejects the error or attempts run out.
// The backoff for attempt n is taken from the schedule of the error that attempt n produced.
func Do(ctx context.Context, fn RetryableFunc, opts RetryOptions) error {
	sleep := opts.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		schedule := DefaultSchedule()
		if opts.Classifier != nil {
			s, ok := opts.Classifier(err)
			if !ok {
				return err
			}
			schedule = s
		}

		// Don't wait on last attempt
		if attempt == opts.MaxAttempts {
			break
		}

		backoff := CalculateBackoff(attempt, schedule)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err, backoff)
		}
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
	}

	return lastErr
}

// Sleep waits for d or until the context is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CalculateBackoff returns the interval for a specific attempt number
func CalculateBackoff(attempt int, s Schedule) time.Duration {
	if attempt <= 1 {
		return capInterval(s.InitialInterval, s.MaxInterval)
	}

	interval := float64(s.InitialInterval) * math.Pow(s.Multiplier, float64(attempt-1))
	if s.MaxInterval > 0 && interval > float64(s.MaxInterval) {
		return s.MaxInterval
	}
	return time.Duration(interval)
}

func capInterval(d, max time.Duration) time.Duration {
	if max > 0 && d > max {
		return max
	}
	return d
}
