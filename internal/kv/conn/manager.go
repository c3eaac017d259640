package conn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/kvguard/internal/kv/endpoint"
	"github.com/vietddude/kvguard/internal/kv/event"
	"github.com/vietddude/kvguard/internal/kv/retry"
	"github.com/vietddude/kvguard/internal/kv/transport"
)

var (
	// ErrClosed is returned once the manager has been shut down.
	ErrClosed = errors.New("connection manager is closed")

	// ErrNotConnected is returned when no connection has been
	// established.
	ErrNotConnected = errors.New("not connected")
)

// ConnectionError reports that no endpoint could be dialed.
type ConnectionError struct {
	Attempted int
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("could not connect to any of %d endpoints: %v", e.Attempted, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// handle is the immutable snapshot callers read. Swapped atomically on
// every (re)connect; the generation increases monotonically.
type handle struct {
	conn transport.Conn
	ep   endpoint.Endpoint
	gen  uint64
}

// Config configures a Manager.
type Config struct {
	Endpoints      []endpoint.Endpoint
	Transport      transport.Transport
	ConnectTimeout time.Duration

	// Backoff paces reconnect cycles. Only BaseDelay, MaxDelay and
	// Jitter are used; reconnection keeps trying until shutdown.
	Backoff retry.Policy

	Clock     retry.Clock
	Publisher event.Publisher
	Logger    *slog.Logger
}

// Stats is a point-in-time snapshot of the manager.
type Stats struct {
	State        string `json:"state"`
	Endpoint     string `json:"endpoint,omitempty"`
	Generation   uint64 `json:"generation"`
	Dials        uint64 `json:"dials"`
	DialFailures uint64 `json:"dial_failures"`
	Restores     uint64 `json:"restores"`
}

// Manager owns exactly one logical connection. At most one instance
// should exist per endpoint group; the connection is shared, never
// created per request. Only state transitions take the lock; the read
// path is an atomic pointer load.
type Manager struct {
	eps            []endpoint.Endpoint
	tr             transport.Transport
	connectTimeout time.Duration
	backoff        retry.Policy
	clock          retry.Clock
	pub            event.Publisher
	log            *slog.Logger

	mu           sync.Mutex
	state        State
	ready        chan struct{} // non-nil while Connecting
	reconnecting bool          // single-flight reconnect flag
	lastDialErr  error         // dial verdict shared with waiting Connect callers

	current atomic.Pointer[handle]
	nextGen atomic.Uint64

	dials        atomic.Uint64
	dialFailures atomic.Uint64
	restores     atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a manager in the Disconnected state.
func NewManager(cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = retry.SystemClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.Backoff.BaseDelay <= 0 {
		cfg.Backoff.BaseDelay = retry.DefaultPolicy.BaseDelay
	}
	if cfg.Backoff.MaxDelay <= 0 {
		cfg.Backoff.MaxDelay = retry.DefaultPolicy.MaxDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		eps:            cfg.Endpoints,
		tr:             cfg.Transport,
		connectTimeout: cfg.ConnectTimeout,
		backoff:        cfg.Backoff,
		clock:          cfg.Clock,
		pub:            cfg.Publisher,
		log:            cfg.Logger,
		state:          Disconnected,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Connect establishes the initial connection, trying endpoints in
// priority order with a per-endpoint timeout. Concurrent callers
// collapse onto one dial. On failure the state returns to Disconnected
// and a ConnectionError is returned.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case Closed:
		m.mu.Unlock()
		return ErrClosed
	case Connected, Degraded:
		m.mu.Unlock()
		return nil
	case Connecting:
		ready := m.ready
		m.mu.Unlock()
		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		}
		// Share the dialing caller's verdict so waiters see the same
		// retryable error instead of a generic ErrNotConnected.
		m.mu.Lock()
		state, dialErr := m.state, m.lastDialErr
		m.mu.Unlock()
		switch state {
		case Connected, Degraded:
			return nil
		case Closed:
			return ErrClosed
		default:
			if dialErr != nil {
				return dialErr
			}
			return ErrNotConnected
		}
	}

	// Disconnected: this caller performs the dial.
	m.toConnectingLocked()
	m.mu.Unlock()

	h, err := m.dialAny(ctx)

	m.mu.Lock()
	if m.state == Closed {
		m.mu.Unlock()
		if h != nil {
			h.conn.Close()
		}
		return ErrClosed
	}
	if err != nil {
		m.state = Disconnected
		m.lastDialErr = err
		m.closeReadyLocked()
		m.mu.Unlock()
		return err
	}
	m.installLocked(h)
	m.lastDialErr = nil
	m.mu.Unlock()

	m.publish(event.Connected(h.ep.Addr()))
	m.log.Info("connected", "endpoint", h.ep.Addr(), "generation", h.gen)
	return nil
}

// Current returns the shared connection handle and its generation.
// It blocks only while Connecting; a Degraded connection is returned
// as-is for best-effort operations.
func (m *Manager) Current(ctx context.Context) (transport.Conn, uint64, error) {
	for {
		m.mu.Lock()
		state := m.state
		ready := m.ready
		m.mu.Unlock()

		switch state {
		case Connected, Degraded:
			h := m.current.Load()
			if h == nil {
				return nil, 0, ErrNotConnected
			}
			return h.conn, h.gen, nil
		case Closed:
			return nil, 0, ErrClosed
		case Disconnected:
			return nil, 0, ErrNotConnected
		case Connecting:
			select {
			case <-ready:
				// Transition finished; re-read the state.
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			}
		}
	}
}

// MarkFailed records a connection-level failure observed on an
// operation. The first report moves Connected to Degraded, emits
// ConnectionFailed and starts the single reconnect loop; concurrent
// reports collapse into that one loop.
func (m *Manager) MarkFailed(err error) {
	m.mu.Lock()
	if m.state != Connected {
		m.mu.Unlock()
		return
	}
	m.state = Degraded
	launch := !m.reconnecting
	if launch {
		m.reconnecting = true
	}
	var addr string
	if h := m.current.Load(); h != nil {
		addr = h.ep.Addr()
	}
	m.mu.Unlock()

	m.publish(event.ConnectionFailed(addr, err))
	m.log.Warn("connection degraded", "endpoint", addr, "error", err)

	if launch {
		go m.reconnectLoop()
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Generation returns the newest connection generation handed out.
func (m *Manager) Generation() uint64 {
	return m.nextGen.Load()
}

// Stats returns a snapshot for health reporting.
func (m *Manager) Stats() Stats {
	s := Stats{
		State:        m.State().String(),
		Generation:   m.nextGen.Load(),
		Dials:        m.dials.Load(),
		DialFailures: m.dialFailures.Load(),
		Restores:     m.restores.Load(),
	}
	if h := m.current.Load(); h != nil {
		s.Endpoint = h.ep.Addr()
	}
	return s
}

// Shutdown moves the manager to Closed and releases the held
// connection. Idempotent; repeated calls are no-ops.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.state == Closed {
		m.mu.Unlock()
		return
	}
	m.state = Closed
	m.closeReadyLocked()
	m.mu.Unlock()

	m.cancel()
	if h := m.current.Load(); h != nil {
		h.conn.Close()
	}
	m.log.Info("connection manager closed")
}

// reconnectLoop runs as the single background reconnect goroutine. It
// backs off exponentially with jitter and keeps cycling until either a
// dial succeeds or the manager shuts down. A failed cycle returns the
// state to Degraded so callers keep best-effort access to the old
// handle.
func (m *Manager) reconnectLoop() {
	for attempt := 1; ; attempt++ {
		delay := m.backoff.Jittered(m.backoff.Delay(attempt))
		if err := m.clock.Sleep(m.ctx, delay); err != nil {
			return
		}

		m.mu.Lock()
		if m.state == Closed {
			m.mu.Unlock()
			return
		}
		m.toConnectingLocked()
		m.mu.Unlock()

		h, err := m.dialAny(m.ctx)

		m.mu.Lock()
		if m.state == Closed {
			m.mu.Unlock()
			if h != nil {
				h.conn.Close()
			}
			return
		}
		if err != nil {
			m.state = Degraded
			m.closeReadyLocked()
			m.mu.Unlock()
			m.log.Warn("reconnect failed", "attempt", attempt, "error", err)
			continue
		}

		old := m.current.Load()
		m.installLocked(h)
		m.reconnecting = false
		m.mu.Unlock()

		if old != nil {
			old.conn.Close()
		}
		m.restores.Add(1)
		m.publish(event.ConnectionRestored(h.ep.Addr()))
		m.log.Info("connection restored",
			"endpoint", h.ep.Addr(), "generation", h.gen, "attempt", attempt)
		return
	}
}

// dialAny tries each endpoint in priority order and returns the first
// successful handle.
func (m *Manager) dialAny(ctx context.Context) (*handle, error) {
	if len(m.eps) == 0 {
		return nil, &ConnectionError{Attempted: 0, Err: endpoint.ErrNoEndpoints}
	}

	var lastErr error
	for _, ep := range m.eps {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		m.dials.Add(1)
		c, err := m.tr.Dial(ctx, ep, m.connectTimeout)
		if err != nil {
			m.dialFailures.Add(1)
			lastErr = err
			m.log.Debug("dial failed", "endpoint", ep.Addr(), "error", err)
			continue
		}
		return &handle{conn: c, ep: ep, gen: m.nextGen.Add(1)}, nil
	}

	return nil, &ConnectionError{Attempted: len(m.eps), Err: lastErr}
}

func (m *Manager) toConnectingLocked() {
	m.state = Connecting
	m.ready = make(chan struct{})
}

func (m *Manager) closeReadyLocked() {
	if m.ready != nil {
		close(m.ready)
		m.ready = nil
	}
}

func (m *Manager) installLocked(h *handle) {
	m.current.Store(h)
	m.state = Connected
	m.closeReadyLocked()
}

func (m *Manager) publish(ev event.Event) {
	if m.pub != nil {
		m.pub.Publish(ev)
	}
}
