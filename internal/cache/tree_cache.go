// Package cache stores assembled tenant forests in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloo-solutions/knowtext/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "knowtext:tree:"
	genPrefix  = "knowtext:tree-gen:"
	DefaultTTL = 5 * time.Minute
)

// NewRedisClient connects to addr, which is either host:port or a redis:// URL,
// and pings it once.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	var opts *redis.Options
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// TreeCache is a read-through cache of tenant forests. Each tenant has a
// generation counter; forests are stored under the generation that was
// current before the database read, and Invalidate bumps the counter, so a
// forest read before a concurrent write can never be served after it.
type TreeCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewTreeCache(client redis.Cmdable, ttl time.Duration) *TreeCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TreeCache{client: client, ttl: ttl}
}

func generationKey(tenantID string) string {
	return genPrefix + tenantID
}

func treeKey(tenantID string, gen int64) string {
	return keyPrefix + tenantID + ":" + strconv.FormatInt(gen, 10)
}

func (c *TreeCache) generation(ctx context.Context, tenantID string) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(tenantID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// GetForest reports ok=false on a miss, together with the generation a
// freshly built forest must be stored under.
func (c *TreeCache) GetForest(ctx context.Context, tenantID string) ([]*domain.KnowledgeText, int64, bool, error) {
	gen, err := c.generation(ctx, tenantID)
	if err != nil {
		return nil, 0, false, fmt.Errorf("read tree generation: %w", err)
	}

	key := treeKey(tenantID, gen)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, gen, false, nil
		}
		return nil, gen, false, err
	}

	var forest []*domain.KnowledgeText
	if err := json.Unmarshal(raw, &forest); err != nil {
		// drop entries written by an incompatible version
		_ = c.client.Del(ctx, key).Err()
		return nil, gen, false, fmt.Errorf("decode cached tree: %w", err)
	}
	if forest == nil {
		forest = []*domain.KnowledgeText{}
	}
	return forest, gen, true, nil
}

func (c *TreeCache) SetForest(ctx context.Context, tenantID string, gen int64, forest []*domain.KnowledgeText) error {
	if forest == nil {
		forest = []*domain.KnowledgeText{}
	}
	raw, err := json.Marshal(forest)
	if err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}
	return c.client.Set(ctx, treeKey(tenantID, gen), raw, c.ttl).Err()
}

// Invalidate retires every forest cached for the tenant so far.
func (c *TreeCache) Invalidate(ctx context.Context, tenantID string) error {
	return c.client.Incr(ctx, generationKey(tenantID)).Err()
}
