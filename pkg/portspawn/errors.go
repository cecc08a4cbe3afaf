package portspawn

import (
	"errors"

	"github.com/dutlab/portspawn/internal/core/spawn"
)

// Sentinel errors returned by Port operations. Match them with
// errors.Is.
var (
	// ErrExpectTimeout reports that an expect operation ran out of
	// time before its pattern appeared.
	ErrExpectTimeout = spawn.ErrExpectTimeout

	// ErrNotStarted reports an operation that needs running
	// redirection, such as Write or Expect, on a stopped port.
	ErrNotStarted = errors.New("port redirection not started")

	// ErrPortClosed reports an operation on a closed port.
	ErrPortClosed = errors.New("port closed")

	// ErrConfiguration reports invalid construction arguments.
	ErrConfiguration = errors.New("invalid port configuration")
)

// ExpectTimeoutError carries the context of a failed expect: the port,
// the pattern, the time budget, and the bytes that were buffered when
// time ran out.
type ExpectTimeoutError = spawn.ExpectTimeoutError
