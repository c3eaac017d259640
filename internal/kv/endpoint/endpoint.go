// Package endpoint resolves store configuration into an ordered list of
// physical endpoints. Resolution is a pure function of configuration:
// no I/O, no retries.
package endpoint

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// DefaultPort is used when an address carries no explicit port.
const DefaultPort = 6379

var (
	// ErrNoEndpoints is returned when configuration yields no usable endpoint.
	ErrNoEndpoints = errors.New("no endpoints configured")

	// ErrMissingCredentials is returned when an address names a user but
	// carries no password and none is configured elsewhere.
	ErrMissingCredentials = errors.New("missing credentials")
)

// Seed is a raw, unvalidated endpoint entry from configuration.
type Seed struct {
	Address  string
	Priority int
	TLS      bool
}

// Endpoint is one resolved physical endpoint. Immutable once resolved.
// Username and Password are set only when the seed URL embedded them;
// they take precedence over transport-level credentials.
type Endpoint struct {
	Host     string
	Port     int
	TLS      bool
	Priority int

	Username string
	Password string
}

// Addr returns the host:port dial address.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	scheme := "redis"
	if e.TLS {
		scheme = "rediss"
	}
	return fmt.Sprintf("%s://%s", scheme, e.Addr())
}

// Resolve parses seeds into endpoints ordered by priority ascending
// (preferred first). Seeds may be plain "host", "host:port", or
// redis:// / rediss:// URLs. The sort is stable, so seeds sharing a
// priority keep their configured order.
func Resolve(seeds []Seed) ([]Endpoint, error) {
	if len(seeds) == 0 {
		return nil, ErrNoEndpoints
	}

	eps := make([]Endpoint, 0, len(seeds))
	for _, s := range seeds {
		ep, err := parseSeed(s)
		if err != nil {
			return nil, err
		}
		eps = append(eps, ep)
	}

	sort.SliceStable(eps, func(i, j int) bool {
		return eps[i].Priority < eps[j].Priority
	})

	return eps, nil
}

func parseSeed(s Seed) (Endpoint, error) {
	addr := strings.TrimSpace(s.Address)
	if addr == "" {
		return Endpoint{}, fmt.Errorf("empty endpoint address: %w", ErrNoEndpoints)
	}

	ep := Endpoint{Port: DefaultPort, TLS: s.TLS, Priority: s.Priority}

	if strings.Contains(addr, "://") {
		u, err := url.Parse(addr)
		if err != nil {
			return Endpoint{}, fmt.Errorf("invalid endpoint URL %q: %w", s.Address, err)
		}
		switch u.Scheme {
		case "redis":
		case "rediss":
			ep.TLS = true
		default:
			return Endpoint{}, fmt.Errorf("unsupported endpoint scheme %q in %q", u.Scheme, s.Address)
		}
		if u.User != nil {
			pw, ok := u.User.Password()
			if !ok {
				return Endpoint{}, fmt.Errorf("endpoint %q names user %q: %w",
					s.Address, u.User.Username(), ErrMissingCredentials)
			}
			ep.Username = u.User.Username()
			ep.Password = pw
		}
		addr = u.Host
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		var addrErr *net.AddrError
		switch {
		case errors.As(err, &addrErr) && strings.Contains(addrErr.Err, "missing port"):
			// No port in the address; use the default.
			host = strings.Trim(addr, "[]")
		case net.ParseIP(addr) != nil:
			// Bare IPv6 literal without brackets.
			host = addr
		default:
			return Endpoint{}, fmt.Errorf("invalid endpoint address %q: %w", s.Address, err)
		}
	} else {
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return Endpoint{}, fmt.Errorf("invalid port %q in endpoint %q", portStr, s.Address)
		}
		ep.Port = port
	}

	if host == "" {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: missing host", s.Address)
	}
	ep.Host = host

	return ep, nil
}
