// Package endpoint defines the capability contract every raw port implementation
// provides to the redirect machinery. Adapters (serial, shell, stream) live in
// internal/adapters and implement these interfaces; the core never imports them.
package endpoint

import "time"

// Endpoint is the minimal raw-port capability: bounded reads and writes over a
// byte stream. Exactly one reader goroutine owns the read side of an Endpoint
// at a time; writes may come from any goroutine unless the adapter documents
// otherwise.
type Endpoint interface {
	// ReadBytes returns whatever bytes arrived within timeout. It must return
	// promptly once the timeout elapses; (nil, nil) means no data this round.
	// A non-nil error means the endpoint is unusable (device gone, process
	// exited) and the caller should stop reading.
	ReadBytes(timeout time.Duration) ([]byte, error)
	// WriteBytes writes data to the endpoint, blocking until accepted.
	WriteBytes(data []byte) error
}

// IntervalHinter lets an endpoint suggest its natural polling cadence.
// Serial ports want ~1ms, pipes a little more. The redirect loop uses the
// hint when the caller does not override it.
type IntervalHinter interface {
	ReadInterval() time.Duration
}

// Named lets an endpoint report a human-readable identity (device path base,
// command name) used for auto-naming and log banners.
type Named interface {
	EndpointName() string
}

// Kind tags the transport family behind an endpoint.
type Kind int

const (
	KindUnknown Kind = iota
	KindSerial
	KindShell
	KindStream
)

// Kinder is implemented by adapters that know their transport family.
type Kinder interface {
	Kind() Kind
}

func (k Kind) String() string {
	switch k {
	case KindSerial:
		return "serial"
	case KindShell:
		return "shell"
	case KindStream:
		return "stream"
	default:
		return "unknown"
	}
}

// KindOf reports the transport family of ep, or KindUnknown when the
// endpoint does not expose one.
func KindOf(ep Endpoint) Kind {
	if k, ok := ep.(Kinder); ok {
		return k.Kind()
	}
	return KindUnknown
}

// NameOf reports the endpoint's self-declared name, or "" when it has none.
func NameOf(ep Endpoint) string {
	if n, ok := ep.(Named); ok {
		return n.EndpointName()
	}
	return ""
}

// IntervalOf reports the endpoint's preferred read interval, falling back to
// def when the endpoint has no preference or suggests a non-positive one.
func IntervalOf(ep Endpoint, def time.Duration) time.Duration {
	if h, ok := ep.(IntervalHinter); ok {
		if d := h.ReadInterval(); d > 0 {
			return d
		}
	}
	return def
}
