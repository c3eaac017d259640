// Package transport abstracts the wire connection to the key-value
// store. The lifecycle manager dials through a Transport and hands the
// resulting Conn to callers; the reference implementation speaks the
// Redis protocol via go-redis.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/kvguard/internal/kv/endpoint"
)

// ErrNotFound is returned by Conn.Get when the key does not exist.
// It is a protocol-level outcome, never retried.
var ErrNotFound = errors.New("key not found")

// Conn is a live logical connection to the store. Implementations may
// multiplex several physical sockets behind one Conn. All methods are
// safe for concurrent use.
type Conn interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Do sends a raw command, e.g. Do(ctx, "INCR", "counter").
	Do(ctx context.Context, args ...any) (any, error)

	Ping(ctx context.Context) error
	Close() error
}

// Transport dials physical endpoints.
type Transport interface {
	// Dial opens a connection to ep, verifying liveness before
	// returning. The timeout bounds the whole dial, handshake
	// included.
	Dial(ctx context.Context, ep endpoint.Endpoint, timeout time.Duration) (Conn, error)
}
