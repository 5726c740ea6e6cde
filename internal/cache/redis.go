// Package cache keeps route snapshots in Redis so several serve instances
// can share one built index.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/redis/go-redis/v9"

	"transitcat/internal/snapshot"
)

// RedisCache is a snapshot.Store backed by Redis. Blobs are gzip-compressed
// and expire after ttl; a zero ttl keeps them forever.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	level  int
	logger *slog.Logger
}

func NewRedisCache(addr, password string, db int, ttl time.Duration, level int, logger *slog.Logger) (*RedisCache, error) {
	if _, err := gzip.NewWriterLevel(io.Discard, level); err != nil {
		return nil, fmt.Errorf("snapshot compression level: %w", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisCache{
		client: client,
		prefix: KeyPrefix,
		ttl:    ttl,
		level:  level,
		logger: logger.With("component", "redis_cache"),
	}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) key(name string) string {
	return c.prefix + KeySnapshot(name)
}

func (c *RedisCache) Save(ctx context.Context, name string, blob []byte) error {
	start := time.Now()
	compressed, err := compress(blob, c.level)
	if err != nil {
		return fmt.Errorf("compress snapshot %q: %w", name, err)
	}

	key := c.key(name)
	if err := c.client.Set(ctx, key, compressed, c.ttl).Err(); err != nil {
		c.logger.Error("snapshot save failed", "key", key, "error", err)
		return err
	}

	c.logger.Info("snapshot saved",
		"key", key,
		"size_bytes", len(blob),
		"compressed_bytes", len(compressed),
		"ttl", c.ttl,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Load returns snapshot.ErrNotFound for a missing key and
// snapshot.ErrMalformed for a value that does not decompress.
func (c *RedisCache) Load(ctx context.Context, name string) ([]byte, error) {
	start := time.Now()
	key := c.key(name)
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s: %w", key, snapshot.ErrNotFound)
	}
	if err != nil {
		c.logger.Error("snapshot load failed", "key", key, "error", err)
		return nil, err
	}

	blob, err := decompress(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", snapshot.ErrMalformed, key, err)
	}

	c.logger.Info("snapshot loaded",
		"key", key,
		"size_bytes", len(blob),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return blob, nil
}

// Delete removes the snapshot; deleting a missing one is not an error.
func (c *RedisCache) Delete(ctx context.Context, name string) error {
	return c.client.Del(ctx, c.key(name)).Err()
}

func compress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

var _ snapshot.Store = (*RedisCache)(nil)
