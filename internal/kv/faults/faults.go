// Package faults classifies operation errors into retry decisions.
package faults

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/vietddude/kvguard/internal/kv/transport"
)

// Kind is the retry decision for a failed attempt.
type Kind int

const (
	// Retryable faults are transient transport failures. They also
	// indicate the shared connection itself is failing.
	Retryable Kind = iota

	// Timeout faults exceeded a deadline. They share the retry budget
	// with Retryable but are reported distinctly.
	Timeout

	// Fatal faults are protocol rejections or unrecognized errors.
	// Never retried.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Retryable:
		return "retryable"
	case Timeout:
		return "timeout"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Redis error reply prefixes that indicate a malformed or rejected
// request rather than a broken connection.
var fatalReplyPrefixes = []string{
	"err ",
	"wrongtype",
	"noauth",
	"noperm",
	"wrongpass",
	"execabort",
	"readonly",
	"oom ",
}

// Classify labels err. Unrecognized errors are Fatal: failing closed
// beats retrying a request the server already rejected.
func Classify(err error) Kind {
	if err == nil {
		return Fatal
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	if errors.Is(err, context.Canceled) {
		return Fatal
	}
	if errors.Is(err, transport.ErrNotFound) {
		return Fatal
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return Retryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Timeout
		}
		return Retryable
	}

	return classifyMessage(err.Error())
}

func classifyMessage(msg string) Kind {
	lower := strings.ToLower(msg)

	for _, prefix := range fatalReplyPrefixes {
		if strings.Contains(lower, prefix) {
			return Fatal
		}
	}

	switch {
	case strings.Contains(lower, "i/o timeout"),
		strings.Contains(lower, "deadline exceeded"),
		strings.Contains(lower, "pool timeout"):
		return Timeout
	case strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "connection reset"),
		strings.Contains(lower, "broken pipe"),
		strings.Contains(lower, "no such host"),
		strings.Contains(lower, "use of closed network connection"),
		strings.Contains(lower, "client is closed"):
		return Retryable
	}

	return Fatal
}

// ConnectionFailing reports whether err indicates the shared connection
// is broken and a reconnect should be scheduled. Timeouts alone do not
// condemn the connection; a slow server is not a dead one.
func ConnectionFailing(err error) bool {
	return Classify(err) == Retryable
}
