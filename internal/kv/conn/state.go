// Package conn owns the single logical connection to the store: its
// state machine, the shared handle callers read, and the single-flight
// reconnect loop.
package conn

// State is the lifecycle state of the logical connection. Transitions
// are strictly sequential per manager and only the manager mutates it.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Degraded
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Degraded:
		return "degraded"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
