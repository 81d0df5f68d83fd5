package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/logger"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/metrics"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/ranking"

	"go.uber.org/zap"
)

// RankingWriter applies a batch of leaderboard entries.
type RankingWriter interface {
	WriteBatch(ctx context.Context, entries []ranking.Entry) error
}

// RankingStore is the relational side of the leaderboard.
type RankingStore interface {
	UpsertRanking(ctx context.Context, e ranking.Entry) error
	UpsertRankings(ctx context.Context, entries []ranking.Entry) error
}

// StoreWriter writes leaderboard entries to the world_ranking table and then
// mirrors them into the Redis cache. The table is authoritative: a cache
// failure is logged and the cache is invalidated so the next read rebuilds it.
type StoreWriter struct {
	store  RankingStore
	cache  *ranking.Cache
	logger *logger.Logger
}

// NewStoreWriter builds a writer. cache may be nil.
func NewStoreWriter(store RankingStore, cache *ranking.Cache, l *logger.Logger) *StoreWriter {
	return &StoreWriter{
		store:  store,
		cache:  cache,
		logger: l.Component("ranking-writer"),
	}
}

// WriteBatch keeps the latest entry per user and upserts them in one transaction.
func (w *StoreWriter) WriteBatch(ctx context.Context, entries []ranking.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	latest := ranking.Latest(entries)

	start := time.Now()
	if err := w.store.UpsertRankings(ctx, latest); err != nil {
		return fmt.Errorf("failed to upsert ranking batch: %w", err)
	}
	metrics.RankerUpsertLatency.Observe(time.Since(start).Seconds())

	w.mirror(ctx, latest)
	w.logger.Debug("ranking batch written",
		zap.Int("received", len(entries)), zap.Int("written", len(latest)))
	return nil
}

// Publish writes a single entry. It is the direct ranking sink of the save path.
func (w *StoreWriter) Publish(ctx context.Context, e ranking.Entry) error {
	if err := w.store.UpsertRanking(ctx, e); err != nil {
		return err
	}
	w.mirror(ctx, []ranking.Entry{e})
	return nil
}

func (w *StoreWriter) mirror(ctx context.Context, entries []ranking.Entry) {
	if w.cache == nil {
		return
	}
	if err := w.cache.Put(ctx, entries...); err != nil {
		w.logger.Warn("failed to update ranking cache", zap.Error(err))
		if err := w.cache.Invalidate(ctx); err != nil {
			w.logger.Warn("failed to invalidate ranking cache", zap.Error(err))
		}
	}
}
