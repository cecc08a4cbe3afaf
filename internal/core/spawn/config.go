package spawn

import (
	"log/slog"
	"time"
)

// Defaults applied by Start when the corresponding Config field is unset.
const (
	// DefaultReadInterval bounds each endpoint read when neither the caller
	// nor the endpoint suggests a cadence.
	DefaultReadInterval = 5 * time.Millisecond
	// DefaultExpectTimeout is the budget selected by a negative expect timeout.
	DefaultExpectTimeout = 30 * time.Second
	// DefaultStaleMultiplier scales the read interval into the partial-line
	// staleness threshold.
	DefaultStaleMultiplier = 5
)

// ReceiveCallback observes raw chunks as the reader drains them, before any
// expect consumer sees them. It runs synchronously on the reader goroutine;
// panics are recovered and logged, so a broken observer cannot kill the loop.
type ReceiveCallback func(port string, data []byte)

// Config carries the knobs for one redirect session. The zero value works;
// Start fills every unset field from defaults or endpoint hints.
type Config struct {
	// Name labels logs, metrics and callbacks. Defaults to the endpoint's
	// self-declared name.
	Name string
	// LogPath is the initial line-log file target; empty logs to debug.
	LogPath string
	// Banner, when non-empty, is appended verbatim whenever the line log is
	// pointed at a file.
	Banner string
	// ReadInterval overrides the endpoint read cadence.
	ReadInterval time.Duration
	// StaleMultiplier scales ReadInterval into the partial-line flush
	// threshold.
	StaleMultiplier int
	// DefaultTimeout is used by expects called with a negative timeout.
	DefaultTimeout time.Duration
	// Logger receives reader lifecycle and failure events.
	Logger *slog.Logger
	// Recorder accounts I/O; nil means NopRecorder.
	Recorder Recorder
	// OnReceive is the initial receive callback.
	OnReceive ReceiveCallback
}
