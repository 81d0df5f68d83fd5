package ranking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Cache keeps the leaderboard in Redis: a sorted set of user ids scored by
// total income, a hash of the full entries, and a marker that says the set
// was last rebuilt from the database recently enough to be trusted.
type Cache struct {
	client *redis.Client
	key    string
}

func NewCache(client *redis.Client, key string) *Cache {
	return &Cache{client: client, key: key}
}

func (c *Cache) entriesKey() string { return c.key + ":entries" }
func (c *Cache) warmKey() string    { return c.key + ":warm" }

// Put records the latest value of each entry.
func (c *Cache) Put(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return c.write(ctx, pipe, entries)
	})
	if err != nil {
		return fmt.Errorf("ranking cache put: %w", err)
	}
	return nil
}

// Replace rebuilds the cache from entries and marks it warm for ttl.
func (c *Cache) Replace(ctx context.Context, entries []Entry, ttl time.Duration) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.key, c.entriesKey())
		if err := c.write(ctx, pipe, entries); err != nil {
			return err
		}
		pipe.Set(ctx, c.warmKey(), time.Now().UTC().Format(time.RFC3339), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ranking cache replace: %w", err)
	}
	return nil
}

func (c *Cache) write(ctx context.Context, pipe redis.Pipeliner, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	members := make([]redis.Z, 0, len(entries))
	fields := make([]any, 0, len(entries)*2)
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		members = append(members, redis.Z{Score: e.TotalIncome, Member: e.UserID})
		fields = append(fields, e.UserID, string(data))
	}
	pipe.ZAdd(ctx, c.key, members...)
	pipe.HSet(ctx, c.entriesKey(), fields...)
	return nil
}

// Warm reports whether the cache was rebuilt within its ttl.
func (c *Cache) Warm(ctx context.Context) (bool, error) {
	n, err := c.client.Exists(ctx, c.warmKey()).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Top returns up to n entries by total income, highest first.
func (c *Cache) Top(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	ids, err := c.client.ZRevRange(ctx, c.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("ranking cache range: %w", err)
	}
	if len(ids) == 0 {
		return []Entry{}, nil
	}

	values, err := c.client.HMGet(ctx, c.entriesKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("ranking cache entries: %w", err)
	}

	out := make([]Entry, 0, len(ids))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("ranking cache entry for %s is missing", ids[i])
		}
		var e Entry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, fmt.Errorf("ranking cache entry for %s: %w", ids[i], err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Invalidate forces the next read to rebuild from the database.
func (c *Cache) Invalidate(ctx context.Context) error {
	err := c.client.Del(ctx, c.warmKey()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
