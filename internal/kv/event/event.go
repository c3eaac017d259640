// Package event carries connection lifecycle notifications from the
// manager and retry executor to external observers.
package event

import "time"

// Type identifies a lifecycle event.
type Type int

const (
	TypeConnected Type = iota
	TypeConnectionFailed
	TypeConnectionRestored
	TypeRetryExhausted
)

func (t Type) String() string {
	switch t {
	case TypeConnected:
		return "connected"
	case TypeConnectionFailed:
		return "connection_failed"
	case TypeConnectionRestored:
		return "connection_restored"
	case TypeRetryExhausted:
		return "retry_exhausted"
	default:
		return "unknown"
	}
}

// Event is one lifecycle notification. Delivery is fire-and-forget;
// producers never wait for consumers.
type Event struct {
	Type     Type
	At       time.Time
	Endpoint string

	// Reason is set for TypeConnectionFailed.
	Reason error

	// Op, Attempts and Err are set for TypeRetryExhausted.
	Op       string
	Attempts int
	Err      error
}

// Connected reports an established connection to addr.
func Connected(addr string) Event {
	return Event{Type: TypeConnected, At: time.Now(), Endpoint: addr}
}

// ConnectionFailed reports a connection-level failure on addr.
func ConnectionFailed(addr string, reason error) Event {
	return Event{Type: TypeConnectionFailed, At: time.Now(), Endpoint: addr, Reason: reason}
}

// ConnectionRestored reports a successful reconnect to addr.
func ConnectionRestored(addr string) Event {
	return Event{Type: TypeConnectionRestored, At: time.Now(), Endpoint: addr}
}

// RetryExhausted reports an operation that failed after exhausting its
// retry budget.
func RetryExhausted(op string, attempts int, err error) Event {
	return Event{Type: TypeRetryExhausted, At: time.Now(), Op: op, Attempts: attempts, Err: err}
}

// Publisher is the producer-side surface of the bus. Components that
// only emit events depend on this rather than the full Bus.
type Publisher interface {
	Publish(Event)
}
