package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

// L2Cache is the shared Redis layer. Payloads are raw bytes (already
// serialized and optionally gzip-compressed by the Manager); this layer
// only deals in keys, bytes, and TTLs, mirroring the teacher's l2_cache.go
// split between transport (here) and encoding (Manager).
type L2Cache struct {
	client *redis.Client
}

func NewL2Cache(addr, password string, db, poolSize, minIdle int) (*L2Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		MinIdleConns: minIdle,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &CacheError{Message: "redis unreachable", Type: ErrTypeConnectionError, Cause: err}
	}
	return &L2Cache{client: client}, nil
}

// NewL2CacheFromClient wraps an already-constructed redis client, used by
// tests to point the layer at a miniredis instance without re-dialing.
func NewL2CacheFromClient(client *redis.Client) *L2Cache {
	return &L2Cache{client: client}
}

func (c *L2Cache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &CacheError{Message: "redis get failed", Type: ErrTypeConnectionError, Cause: err}
	}
	return data, nil
}

func (c *L2Cache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return &CacheError{Message: "redis set failed", Type: ErrTypeConnectionError, Cause: err}
	}
	return nil
}

func (c *L2Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// DeletePattern scans for keys matching a glob pattern and deletes them in
// batches, used for targeted invalidation by scope/kind/path prefix.
func (c *L2Cache) DeletePattern(ctx context.Context, pattern string) (int, error) {
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, &CacheError{Message: "redis scan failed", Type: ErrTypeConnectionError, Cause: err}
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return deleted, &CacheError{Message: "redis del failed", Type: ErrTypeConnectionError, Cause: err}
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}

func (c *L2Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *L2Cache) Close() error {
	return c.client.Close()
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
