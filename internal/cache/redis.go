package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps the shared redis client used for per-conversation locks
// and the inventory snapshot cache.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// Config holds redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

// New connects and pings the redis server.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Redis, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{client: client, logger: logger.With("component", "cache")}, nil
}

// Client exposes the underlying redis client.
func (r *Redis) Client() *redis.Client { return r.client }

// Close releases the connection pool.
func (r *Redis) Close() error { return r.client.Close() }

// AcquireLock takes a best-effort distributed lock, spinning briefly if
// another instance holds it. Redis being down never blocks message
// processing; the caller's in-process mutex still serializes locally.
func (r *Redis) AcquireLock(ctx context.Context, key string, ttl time.Duration) func() {
	deadline := time.Now().Add(2 * time.Second)
	for {
		ok, err := r.client.SetNX(ctx, key, "1", ttl).Result()
		if err != nil {
			r.logger.Warn("lock acquire failed", "error", err, "key", key)
			return func() {}
		}
		if ok {
			return func() {
				if err := r.client.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
					r.logger.Warn("lock release failed", "error", err, "key", key)
				}
			}
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return func() {}
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// GetJSON loads a cached JSON value into dest. Returns false on miss or
// decode failure.
func (r *Redis) GetJSON(ctx context.Context, key string, dest any) bool {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		r.logger.Warn("cache decode failed", "error", err, "key", key)
		return false
	}
	return true
}

// SetJSON stores a JSON value with a TTL. Failures are logged, never
// propagated; the cache is an optimization.
func (r *Redis) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		r.logger.Warn("cache encode failed", "error", err, "key", key)
		return
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		r.logger.Warn("cache set failed", "error", err, "key", key)
	}
}
