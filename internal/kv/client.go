// Package kv is the public facade of the resilient key-value client.
// It composes endpoint resolution, the connection lifecycle manager,
// the retry executor and the event bus behind a small request API.
package kv

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/kvguard/internal/kv/conn"
	"github.com/vietddude/kvguard/internal/kv/endpoint"
	"github.com/vietddude/kvguard/internal/kv/event"
	"github.com/vietddude/kvguard/internal/kv/faults"
	"github.com/vietddude/kvguard/internal/kv/metrics"
	"github.com/vietddude/kvguard/internal/kv/retry"
	"github.com/vietddude/kvguard/internal/kv/transport"
)

// Config configures a Client. Immutable after construction.
type Config struct {
	// Endpoints are candidate store addresses, tried in priority
	// order.
	Endpoints []endpoint.Seed

	Password string
	TLS      bool

	ConnectTimeout    time.Duration
	OperationTimeout  time.Duration
	KeepAliveInterval time.Duration

	Retry retry.Policy

	// Transport overrides the default Redis transport. Used by tests
	// and alternative wire implementations.
	Transport transport.Transport

	Clock  retry.Clock
	Logger *slog.Logger
}

// Client is the shared, long-lived handle to the store. One instance
// per logical endpoint group; construct it explicitly and pass it
// where needed. Safe for concurrent use.
type Client struct {
	log   *slog.Logger
	clock retry.Clock
	bus   *event.Bus
	mgr   *conn.Manager
	exec  *retry.Executor

	opTimeout time.Duration
	keepalive time.Duration

	kaOnce    sync.Once
	kaCancel  context.CancelFunc
	closeOnce sync.Once
}

// New builds a Client from cfg. It does not dial; call Connect.
func New(cfg Config) (*Client, error) {
	seeds := make([]endpoint.Seed, len(cfg.Endpoints))
	copy(seeds, cfg.Endpoints)
	if cfg.TLS {
		for i := range seeds {
			seeds[i].TLS = true
		}
	}

	eps, err := endpoint.Resolve(seeds)
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = retry.SystemClock()
	}
	tr := cfg.Transport
	if tr == nil {
		tr = transport.NewRedisTransport(cfg.Password)
	}

	bus := event.NewBus(log)
	mgr := conn.NewManager(conn.Config{
		Endpoints:      eps,
		Transport:      tr,
		ConnectTimeout: cfg.ConnectTimeout,
		Backoff:        cfg.Retry,
		Clock:          clock,
		Publisher:      bus,
		Logger:         log,
	})
	exec := retry.NewExecutor(cfg.Retry,
		retry.WithClock(clock),
		retry.WithPublisher(bus),
		retry.WithConnFailureHook(mgr.MarkFailed),
		retry.WithLogger(log),
	)

	return &Client{
		log:       log,
		clock:     clock,
		bus:       bus,
		mgr:       mgr,
		exec:      exec,
		opTimeout: cfg.OperationTimeout,
		keepalive: cfg.KeepAliveInterval,
	}, nil
}

// Connect establishes the initial connection under the retry policy.
// Returns a NotConnectedError once the connect budget is exhausted.
func (c *Client) Connect(ctx context.Context) error {
	err := c.exec.Do(ctx, "connect", func(ctx context.Context) error {
		return c.mgr.Connect(ctx)
	})
	if err != nil {
		if errors.Is(err, conn.ErrClosed) || errors.Is(err, context.Canceled) {
			return err
		}
		return &NotConnectedError{Err: err}
	}

	c.startKeepAlive()
	return nil
}

// Get fetches the value stored under key. A missing key returns
// transport.ErrNotFound.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := c.do(ctx, "get", func(ctx context.Context, cn transport.Conn) error {
		v, err := cn.Get(ctx, key)
		if err != nil {
			return err
		}
		val = v
		return nil
	})
	if err != nil {
		return nil, c.mapErr(err)
	}
	return val, nil
}

// Set stores value under key. A ttl of zero means no expiry.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.do(ctx, "set", func(ctx context.Context, cn transport.Conn) error {
		return cn.Set(ctx, key, value, ttl)
	})
	return c.mapErr(err)
}

// Execute sends a raw command, e.g. Execute(ctx, "INCR", "counter").
func (c *Client) Execute(ctx context.Context, args ...any) (any, error) {
	var res any
	err := c.do(ctx, "execute", func(ctx context.Context, cn transport.Conn) error {
		r, err := cn.Do(ctx, args...)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, c.mapErr(err)
	}
	return res, nil
}

// Ping checks liveness of the shared connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.mapErr(c.do(ctx, "ping", func(ctx context.Context, cn transport.Conn) error {
		return cn.Ping(ctx)
	}))
}

// OnEvent subscribes handler to connection lifecycle events. Close the
// returned subscription to stop delivery.
func (c *Client) OnEvent(handler func(event.Event)) *event.Subscription {
	return c.bus.Subscribe(handler)
}

// State returns the lifecycle state of the logical connection.
func (c *Client) State() conn.State {
	return c.mgr.State()
}

// Stats returns a snapshot of the connection manager.
func (c *Client) Stats() conn.Stats {
	return c.mgr.Stats()
}

// Shutdown closes the connection and the event bus. Idempotent.
func (c *Client) Shutdown() {
	c.closeOnce.Do(func() {
		if c.kaCancel != nil {
			c.kaCancel()
		}
		c.mgr.Shutdown()
		c.bus.Close()
	})
}

// do routes one operation through the retry executor using the shared
// connection. Each attempt is separately bounded by the operation
// timeout; the retry policy's deadline bounds the whole call.
func (c *Client) do(
	ctx context.Context,
	op string,
	fn func(ctx context.Context, cn transport.Conn) error,
) error {
	start := time.Now()
	err := c.exec.Do(ctx, op, func(ctx context.Context) error {
		cn, _, err := c.mgr.Current(ctx)
		if err != nil {
			return err
		}
		attemptCtx := ctx
		if c.opTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, c.opTimeout)
			defer cancel()
		}
		return fn(attemptCtx, cn)
	})

	metrics.OperationsTotal.WithLabelValues(op, outcomeLabel(err)).Inc()
	metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	return err
}

func (c *Client) mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, conn.ErrNotConnected) {
		return &NotConnectedError{Err: err}
	}
	return err
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return "exhausted"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	return faults.Classify(err).String()
}

func (c *Client) startKeepAlive() {
	if c.keepalive <= 0 {
		return
	}
	c.kaOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		c.kaCancel = cancel
		go c.keepAliveLoop(ctx)
	})
}

// keepAliveLoop pings the shared connection so dead sockets are
// noticed between operations, not only on the next caller request.
func (c *Client) keepAliveLoop(ctx context.Context) {
	for {
		if err := c.clock.Sleep(ctx, c.keepalive); err != nil {
			return
		}

		cn, gen, err := c.mgr.Current(ctx)
		if err != nil {
			if errors.Is(err, conn.ErrClosed) || ctx.Err() != nil {
				return
			}
			continue
		}

		pingCtx := ctx
		if c.opTimeout > 0 {
			var cancel context.CancelFunc
			pingCtx, cancel = context.WithTimeout(ctx, c.opTimeout)
			err = cn.Ping(pingCtx)
			cancel()
		} else {
			err = cn.Ping(pingCtx)
		}
		if err != nil && ctx.Err() == nil && faults.ConnectionFailing(err) {
			c.log.Debug("keepalive ping failed", "generation", gen, "error", err)
			c.mgr.MarkFailed(err)
		}
	}
}
