package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/kvguard/internal/kv/endpoint"
)

// RedisTransport dials Redis endpoints. One go-redis client backs each
// Conn and pools sockets internally, so a single Conn is shared safely
// by many callers.
type RedisTransport struct {
	Username string
	Password string
	DB       int
}

// NewRedisTransport creates a transport authenticating with the given
// password (empty for none).
func NewRedisTransport(password string) *RedisTransport {
	return &RedisTransport{Password: password}
}

// Dial opens a client to ep and verifies it with a ping. Internal
// go-redis retries are disabled: retry policy belongs to the caller.
func (t *RedisTransport) Dial(
	ctx context.Context,
	ep endpoint.Endpoint,
	timeout time.Duration,
) (Conn, error) {
	user, pass := t.Username, t.Password
	if ep.Password != "" {
		user, pass = ep.Username, ep.Password
	}

	opts := &redis.Options{
		Addr:        ep.Addr(),
		Username:    user,
		Password:    pass,
		DB:          t.DB,
		DialTimeout: timeout,
		MaxRetries:  -1,
	}
	if ep.TLS {
		opts.TLSConfig = &tls.Config{ServerName: ep.Host, MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)

	pingCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", ep.Addr(), err)
	}

	return &redisConn{rdb: rdb}, nil
}

type redisConn struct {
	rdb *redis.Client
}

func (c *redisConn) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("get %q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return val, nil
}

func (c *redisConn) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (c *redisConn) Do(ctx context.Context, args ...any) (any, error) {
	res, err := c.rdb.Do(ctx, args...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return res, nil
}

func (c *redisConn) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *redisConn) Close() error {
	return c.rdb.Close()
}
