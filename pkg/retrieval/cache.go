package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedClient is a Redis read-through cache in front of a retrieval client.
// Cache failures fall through to the inner client; retrieval still works with
// Redis down, just slower.
type CachedClient struct {
	inner Client
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCachedClient wraps inner with a Redis cache. ttl <= 0 defaults to 5m.
func NewCachedClient(inner Client, rdb *redis.Client, ttl time.Duration) *CachedClient {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedClient{inner: inner, rdb: rdb, ttl: ttl}
}

// CacheKey derives a deterministic cache key from every query field.
func CacheKey(q Query) string {
	raw := strings.Join([]string{
		q.Text, q.Window, q.Lang,
		fmt.Sprintf("%d", q.KFinal),
		fmt.Sprintf("%t", q.UseRerank),
		strings.Join(q.Sources, ","),
	}, "\x00")
	sum := sha256.Sum256([]byte(raw))
	return "retrieval:" + hex.EncodeToString(sum[:16])
}

func (c *CachedClient) Retrieve(ctx context.Context, q Query) ([]Document, error) {
	key := CacheKey(q)

	if cached, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var docs []Document
		if err := json.Unmarshal(cached, &docs); err == nil {
			return docs, nil
		}
		// Corrupt entry: drop it and fall through.
		_ = c.rdb.Del(ctx, key).Err()
	} else if err != redis.Nil {
		slog.Warn("Retrieval cache read failed, falling through", "error", err)
	}

	docs, err := c.inner.Retrieve(ctx, q)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(docs); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			slog.Warn("Retrieval cache write failed", "error", err)
		}
	}
	return docs, nil
}
