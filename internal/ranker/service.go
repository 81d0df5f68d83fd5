package ranker

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/consumer"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/logger"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/parser"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/worker"

	"go.uber.org/zap"
)

// Pool is the part of the worker pool the service drives.
type Pool interface {
	Start(ctx context.Context)
	Submit(ctx context.Context, job worker.Job) error
	Shutdown(ctx context.Context) error
}

// Service moves leaderboard events from the ranking topic into the worker pool.
type Service struct {
	logger     *logger.Logger
	consumer   consumer.Consumer
	workerPool Pool
}

func NewService(l *logger.Logger, c consumer.Consumer, p Pool) *Service {
	return &Service{
		logger:     l.Component("ranker"),
		consumer:   c,
		workerPool: p,
	}
}

// Start consumes until ctx is cancelled or the consumer fails, then shuts the pool down.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting ranker service")

	s.workerPool.Start(ctx)
	msgChan, errChan := s.consumer.Consume(ctx)

	for {
		select {
		case msg, ok := <-msgChan:
			if !ok {
				return s.Shutdown(context.Background())
			}
			if err := s.handleMessage(ctx, msg); err != nil {
				s.logger.Error("failed to handle message", err,
					zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset))
			}

		case err := <-errChan:
			if err != nil {
				shutdownErr := s.Shutdown(context.Background())
				return errors.Join(fmt.Errorf("consumer error: %w", err), shutdownErr)
			}

		case <-ctx.Done():
			return s.Shutdown(context.Background())
		}
	}
}

// handleMessage submits the entry carried by msg. Malformed messages are
// submitted as skips so their offsets are committed in partition order.
func (s *Service) handleMessage(ctx context.Context, msg consumer.Message) error {
	event, err := parser.ParseRankingEvent(msg.Value)
	if err != nil {
		s.logger.Warn("skipping malformed message",
			zap.Error(err),
			zap.Int64("offset", msg.Offset),
			zap.ByteString("payload", msg.Value))
		return s.workerPool.Submit(ctx, worker.Job{Message: msg, Skip: true})
	}

	return s.workerPool.Submit(ctx, worker.Job{
		Entry:   event.Entry,
		Message: msg,
	})
}

// Shutdown flushes the pool and closes the consumer.
func (s *Service) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down ranker service")

	errPool := s.workerPool.Shutdown(ctx)
	errCons := s.consumer.Close()

	if errPool != nil || errCons != nil {
		return fmt.Errorf("shutdown errors: pool=%v, consumer=%v", errPool, errCons)
	}
	return nil
}
