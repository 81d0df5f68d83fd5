package tycoond

import (
	"context"
	"fmt"
	"time"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/dbpool"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/logger"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/metrics"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/ranking"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/store"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Service owns the persistence core of the game server: the pool manager,
// the aggregate store, the retrying writer and the leaderboard.
type Service struct {
	logger    *logger.Logger
	pools     *dbpool.Manager
	store     *store.Store
	writer    *store.RetryingWriter
	board     *ranking.Board
	scheduler gocron.Scheduler
	interval  time.Duration
}

func NewService(
	l *logger.Logger,
	pools *dbpool.Manager,
	st *store.Store,
	w *store.RetryingWriter,
	board *ranking.Board,
	statusInterval time.Duration,
) (*Service, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	if statusInterval <= 0 {
		statusInterval = 15 * time.Second
	}
	return &Service{
		logger:    l.Component("tycoond"),
		pools:     pools,
		store:     st,
		writer:    w,
		board:     board,
		scheduler: scheduler,
		interval:  statusInterval,
	}, nil
}

// Start schedules the pool sampler and blocks until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting tycoond service", zap.Duration("status_interval", s.interval))

	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.samplePool),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule pool sampler: %w", err)
	}
	s.scheduler.Start()

	<-ctx.Done()
	return s.Shutdown()
}

// Shutdown stops the scheduler and closes the pool.
func (s *Service) Shutdown() error {
	s.logger.Info("shutting down tycoond service")
	err := s.scheduler.Shutdown()
	s.pools.Close()
	if err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	return nil
}

func (s *Service) samplePool() {
	status := s.pools.Status()
	metrics.ObservePool(status.CreatedConnections, status.AvailableConnections)
	s.logger.Debug("pool status",
		zap.Int("created_connections", status.CreatedConnections),
		zap.Int("available_connections", status.AvailableConnections),
	)
}
