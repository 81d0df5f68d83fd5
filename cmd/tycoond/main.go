package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/internal/tycoond"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/config"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/logger"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/producer"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/ranking"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/server"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/store"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/writer"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to a config file")
	flag.Parse()

	// 1. Load config
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Printf("failed to load .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	l, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer l.Sync()

	l.Info("tycoond initializing",
		zap.String("env", cfg.Environment),
		zap.String("driver", cfg.Database.Driver),
		zap.String("ranking_mode", cfg.Ranking.Mode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Database, pool and schema
	db, err := store.Open(ctx, cfg.Database, l)
	if err != nil {
		l.Error("failed to open database", err)
		os.Exit(1)
	}
	defer db.Close()

	checks := map[string]server.Pinger{"database": db.Pools}

	// 4. Ranking cache
	var cache *ranking.Cache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		cache = ranking.NewCache(client, cfg.Redis.RankingKey)
		checks["redis"] = cache
	}

	// 5. Leaderboard sink
	var sink store.RankingSink
	switch cfg.Ranking.Mode {
	case config.RankingModeKafka:
		publisher := producer.NewRankingPublisher(producer.NewKafkaProducer(producer.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}), l)
		defer publisher.Close()
		sink = publisher
	default:
		sink = writer.NewStoreWriter(db.Store, cache, l)
	}

	board := ranking.NewBoard(cache, db.Store, cfg.Ranking.TopN, cfg.Ranking.CacheTTL, l)
	svc, err := tycoond.NewService(l, db.Pools, db.Store, store.NewRetryingWriter(db.Store, sink, l), board, cfg.StatusInterval)
	if err != nil {
		l.Error("failed to create service", err)
		os.Exit(1)
	}

	// 6. HTTP API and observability endpoints
	srv := server.New(cfg.Server.Addr, l, checks)
	svc.Routes(srv)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error { return svc.Start(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	l.Info("tycoond starting", zap.String("addr", cfg.Server.Addr))
	if err := g.Wait(); err != nil {
		l.Error("tycoond stopped with error", err)
		return
	}
	l.Info("tycoond stopped")
}
