package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/config"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/logger"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/producer"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/store"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/writer"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// syntheticPlayer builds an aggregate with a few rows in every child table.
func syntheticPlayer(name string) *store.Player {
	p := store.NewPlayer(name)
	p.Gold = float64(rand.IntN(1_000_000)) / 100
	p.Diamond = rand.IntN(500)
	p.CityLevel = 1 + rand.IntN(20)
	p.TotalIncome = float64(rand.IntN(100_000_000)) / 100
	p.TutorialStep = 1 + rand.IntN(10)
	p.LastCheckinDate = time.Now().UTC().Format(time.DateOnly)
	p.ConsecutiveCheckins = rand.IntN(30)

	for i := 0; i < 1+rand.IntN(4); i++ {
		booth := store.Booth{Unlocked: true, LastCollect: time.Now().Unix()}
		if i%2 == 0 {
			a := store.Assistant{Name: fmt.Sprintf("assistant-%d", i), Level: 1 + rand.IntN(5), Star: 1 + rand.IntN(3)}
			booth.Assistant = &a
			p.Assistants = append(p.Assistants, a)
		}
		p.Booths[fmt.Sprintf("booth-%d", i)] = booth
	}
	for i := 0; i < rand.IntN(6); i++ {
		p.Fragments[fmt.Sprintf("assistant-%d", i)] = rand.IntN(5)
		p.MemoryParts[fmt.Sprintf("card-%d_part-%d", i, i)] = rand.IntN(3)
	}
	if rand.IntN(2) == 0 {
		p.MemoryCards["card-0"] = 1
	}
	return p
}

func main() {
	configPath := flag.String("config", "", "path to a config file")
	count := flag.Int("n", 1000, "number of aggregates to save")
	concurrency := flag.Int("concurrency", 32, "maximum saves in flight")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Printf("failed to load .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	l, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: "inserter",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.Database, l)
	if err != nil {
		l.Error("failed to open database", err)
		os.Exit(1)
	}
	defer db.Close()

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
		sink = writer.NewStoreWriter(db.Store, nil, l)
	}
	w := store.NewRetryingWriter(db.Store, sink, l)

	var saved, failed atomic.Int64
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*concurrency)
	for i := 0; i < *count; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			userID := uuid.NewString()
			if w.SaveAndRank(gctx, userID, syntheticPlayer("player-"+userID[:8])) {
				saved.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	status := db.Pools.Status()
	l.Info("load run finished",
		zap.Int64("saved", saved.Load()),
		zap.Int64("failed", failed.Load()),
		zap.Duration("elapsed", elapsed),
		zap.Float64("saves_per_second", float64(saved.Load())/elapsed.Seconds()),
		zap.Int("created_connections", status.CreatedConnections),
		zap.Int("available_connections", status.AvailableConnections),
	)
	if failed.Load() > 0 {
		os.Exit(1)
	}
}
