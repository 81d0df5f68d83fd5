package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/internal/ranker"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/config"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/consumer"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/logger"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/ranking"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/server"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/store"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/worker"
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
	if cfg.Ranking.Mode != config.RankingModeKafka {
		fmt.Println("ranker only runs with ranking.mode=kafka")
		os.Exit(1)
	}

	// 2. Initialize logger
	l, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: "ranker",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer l.Sync()

	l.Info("ranker service initializing", zap.String("env", cfg.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Database
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

	// 5. Consumer and worker pool
	kafkaConsumer := consumer.NewKafkaConsumer(consumer.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		GroupID: cfg.Kafka.GroupID,
	})

	workerPool := worker.NewWorkerPool(
		l,
		writer.NewStoreWriter(db.Store, cache, l),
		kafkaConsumer,
		cfg.Ranking.WorkerCount,
		cfg.Ranking.BatchSize,
		cfg.Ranking.FlushInterval,
	)

	svc := ranker.NewService(l, kafkaConsumer, workerPool)

	// 6. Observability server
	obsServer := server.New(cfg.Server.Addr, l, checks)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(obsServer.Start)
	g.Go(func() error {
		err := svc.Start(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return obsServer.Shutdown(shutdownCtx)
	})

	l.Info("ranker service starting")
	if err := g.Wait(); err != nil {
		l.Error("ranker service failed", err)
		return
	}
	l.Info("ranker service stopped")
}
