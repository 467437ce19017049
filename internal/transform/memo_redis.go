package transform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMemo shares change detection between plugin replicas. Entries expire
// after ttl; zero keeps them forever.
type RedisMemo struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisMemo(client *redis.Client, prefix string, ttl time.Duration) *RedisMemo {
	if prefix == "" {
		prefix = "rutkit:memo:"
	}
	return &RedisMemo{client: client, prefix: prefix, ttl: ttl}
}

// DialRedis connects to url (redis://host:port/db) and pings the server.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func (m *RedisMemo) Swap(ctx context.Context, key string, s Snapshot) (bool, error) {
	enc := encodeSnapshot(s)
	prev, err := m.client.SetArgs(ctx, m.prefix+key, enc, redis.SetArgs{Get: true, TTL: m.ttl}).Result()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("memo swap %s: %w", key, err)
	}
	return prev != enc, nil
}

func (m *RedisMemo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

func (m *RedisMemo) Close() error {
	return m.client.Close()
}

func encodeSnapshot(s Snapshot) string {
	if s.Valid {
		return "1:" + s.Cleaned
	}
	return "0:" + s.Cleaned
}
