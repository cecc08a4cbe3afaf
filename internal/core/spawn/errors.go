package spawn

import (
	"errors"
	"fmt"
	"time"
)

// ErrExpectTimeout is the sentinel all expect timeouts match via errors.Is,
// whether they came from a duration budget or a context deadline.
var ErrExpectTimeout = errors.New("expect timeout")

// ExpectTimeoutError is the unified failure for Expect, ExpectExact and
// context deadline expiry. It carries a copy of the unconsumed buffer so
// callers can log what actually arrived before the deadline.
type ExpectTimeoutError struct {
	Port     string
	Pattern  string
	Timeout  time.Duration
	Buffered []byte
	Cause    error
}

func (e *ExpectTimeoutError) Error() string {
	msg := fmt.Sprintf("port %s: no match for %q within %v (%d bytes buffered)",
		e.Port, e.Pattern, e.Timeout, len(e.Buffered))
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Is makes errors.Is(err, ErrExpectTimeout) hold for every expect timeout.
func (e *ExpectTimeoutError) Is(target error) bool { return target == ErrExpectTimeout }

func (e *ExpectTimeoutError) Unwrap() error { return e.Cause }

// Timeout reports true following the net.Error convention.
func (e *ExpectTimeoutError) Timeout() bool { return true }
