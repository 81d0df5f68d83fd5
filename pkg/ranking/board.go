package ranking

import (
	"context"
	"time"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/logger"

	"go.uber.org/zap"
)

// Source is the authoritative leaderboard, normally the world_ranking table.
type Source interface {
	LoadRanking(ctx context.Context, limit int) ([]Entry, error)
}

// Board serves the leaderboard from the cache, rebuilding it from the source
// when the warm marker has expired. If Redis is unavailable, or no cache was
// configured, it reads the source directly.
type Board struct {
	cache  *Cache
	source Source
	depth  int
	ttl    time.Duration
	logger *logger.Logger
}

// NewBoard caches the top depth entries of source for ttl at a time.
func NewBoard(cache *Cache, source Source, depth int, ttl time.Duration, l *logger.Logger) *Board {
	return &Board{
		cache:  cache,
		source: source,
		depth:  depth,
		ttl:    ttl,
		logger: l.Component("ranking"),
	}
}

func (b *Board) Top(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 || n > b.depth {
		n = b.depth
	}
	if b.cache == nil {
		return b.source.LoadRanking(ctx, n)
	}

	warm, err := b.cache.Warm(ctx)
	if err != nil {
		b.logger.Warn("ranking cache unavailable, reading database", zap.Error(err))
		return b.source.LoadRanking(ctx, n)
	}
	if warm {
		entries, err := b.cache.Top(ctx, n)
		if err == nil {
			return entries, nil
		}
		b.logger.Warn("ranking cache read failed, rebuilding", zap.Error(err))
	}

	entries, err := b.source.LoadRanking(ctx, b.depth)
	if err != nil {
		return nil, err
	}
	if err := b.cache.Replace(ctx, entries, b.ttl); err != nil {
		b.logger.Warn("failed to rebuild ranking cache", zap.Error(err))
	}
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}
