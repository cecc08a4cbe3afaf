package portspawn

import (
	"log/slog"
	"time"

	"github.com/dutlab/portspawn/internal/core/spawn"
	"github.com/dutlab/portspawn/internal/naming"
)

// DefaultExpectTimeout is what a negative expect timeout selects when
// WithDefaultTimeout was not given.
const DefaultExpectTimeout = spawn.DefaultExpectTimeout

// Option configures a Port during construction.
type Option func(*options)

type options struct {
	name                string
	logFile             string
	lineEnding          string
	logger              *slog.Logger
	recorder            spawn.Recorder
	onReceive           ReceiveCallback
	readInterval        time.Duration
	staleMultiplier     int
	defaultTimeout      time.Duration
	registry            *naming.Registry
	autoStart           bool
	borrowEndpoint      bool
	keepRedirectOnClose bool
}

func defaultOptions() options {
	return options{
		lineEnding: "\n",
		registry:   naming.Default,
		autoStart:  true,
	}
}

// WithName sets the port name used in logs and error messages.
// Ports without an explicit name are assigned dut_1, dut_2 and so on.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogFile appends all port output to the given file.
func WithLogFile(path string) Option {
	return func(o *options) {
		o.logFile = path
	}
}

// WithLineEnding overrides the terminator appended by WriteLine.
// The default is "\n".
func WithLineEnding(ending string) Option {
	return func(o *options) {
		o.lineEnding = ending
	}
}

// WithLogger routes diagnostic messages to the given logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRecorder installs a metrics recorder for port activity.
func WithRecorder(rec spawn.Recorder) Option {
	return func(o *options) {
		o.recorder = rec
	}
}

// WithReceiveCallback registers a callback invoked for every chunk the
// reader receives. The callback runs on the reader goroutine.
func WithReceiveCallback(cb ReceiveCallback) Option {
	return func(o *options) {
		o.onReceive = cb
	}
}

// WithReadInterval overrides how long each endpoint read may block.
func WithReadInterval(interval time.Duration) Option {
	return func(o *options) {
		o.readInterval = interval
	}
}

// WithStaleFlushMultiplier controls when an incomplete line is flushed
// to the log file. A partial line older than multiplier read intervals
// is written out without waiting for its terminator.
func WithStaleFlushMultiplier(multiplier int) Option {
	return func(o *options) {
		o.staleMultiplier = multiplier
	}
}

// WithDefaultTimeout sets the timeout used when Expect is called with a
// negative timeout value. The default is 30 seconds.
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.defaultTimeout = timeout
	}
}

// WithNamingRegistry assigns auto-generated names from the given
// registry instead of the process-wide one.
func WithNamingRegistry(reg *naming.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithoutAutoStart constructs the port without starting redirection.
// Call StartRedirect before reading or writing.
func WithoutAutoStart() Option {
	return func(o *options) {
		o.autoStart = false
	}
}

// WithBorrowedEndpoint marks the endpoint as owned by the caller.
// Close stops redirection but leaves the endpoint open.
func WithBorrowedEndpoint() Option {
	return func(o *options) {
		o.borrowEndpoint = true
	}
}

// WithKeepRedirectOnClose leaves redirection running when the port is
// closed. Useful when several facades share one long-lived session.
func WithKeepRedirectOnClose() Option {
	return func(o *options) {
		o.keepRedirectOnClose = true
	}
}
