package producer

import (
	"context"
	"fmt"
	"time"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/logger"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/ranking"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/retry"

	"go.uber.org/zap"
)

// RankingPublisher sends leaderboard entries to the ranking topic. It is the
// Kafka implementation of the save path's ranking sink.
type RankingPublisher struct {
	producer  Producer
	logger    *logger.Logger
	retryOpts retry.RetryOptions
}

func NewRankingPublisher(p Producer, l *logger.Logger) *RankingPublisher {
	return &RankingPublisher{
		producer: p,
		logger:   l.Component("ranking-publisher"),
		retryOpts: retry.RetryOptions{
			MaxAttempts: 3,
			Classifier: retry.Always(retry.Schedule{
				InitialInterval: 100 * time.Millisecond,
				MaxInterval:     time.Second,
				Multiplier:      2,
			}),
		},
	}
}

// Publish wraps e in a fresh event keyed by user id and waits for the broker.
func (p *RankingPublisher) Publish(ctx context.Context, e ranking.Entry) error {
	event := ranking.NewEvent(e)
	data, err := event.Marshal()
	if err != nil {
		return err
	}

	err = retry.Do(ctx, func() error {
		result := <-p.producer.PublishAsync(ctx, event.Key(), data)
		return result.Error
	}, p.retryOpts)
	if err != nil {
		return fmt.Errorf("failed to publish ranking event to kafka after retries: %w", err)
	}

	p.logger.Debug("published ranking event",
		zap.String("event_id", event.ID), zap.String("user_id", e.UserID))
	return nil
}

func (p *RankingPublisher) Close() error {
	return p.producer.Close()
}
