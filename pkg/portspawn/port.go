package portspawn

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/dutlab/portspawn/internal/core/endpoint"
	"github.com/dutlab/portspawn/internal/core/spawn"
	"github.com/dutlab/portspawn/internal/naming"
)

// Port pairs an endpoint with background redirection: a reader
// goroutine continuously drains the endpoint into a data cache that
// Expect and the cache accessors consume, while every received chunk
// is appended to the optional log file.
//
// A Port is safe for concurrent use, but expect operations assume a
// single consumer. Redirection can be stopped and restarted; each
// restart begins with an empty cache.
type Port struct {
	mu        sync.Mutex
	ep        Endpoint
	sp        *spawn.Spawn
	name      string
	logFile   string
	onReceive ReceiveCallback
	closed    bool

	lineEnding          string
	logger              *slog.Logger
	readInterval        time.Duration
	staleMultiplier     int
	defaultTimeout      time.Duration
	recorder            spawn.Recorder
	borrowEndpoint      bool
	keepRedirectOnClose bool
}

// New wraps an endpoint in a Port. Redirection starts immediately
// unless WithoutAutoStart is given.
func New(ep Endpoint, opts ...Option) (*Port, error) {
	if ep == nil {
		return nil, fmt.Errorf("%w: endpoint cannot be nil", ErrConfiguration)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	name := o.name
	if name == "" {
		name = o.registry.NextName("dut")
	}

	p := &Port{
		ep:                  ep,
		name:                name,
		logFile:             o.logFile,
		onReceive:           o.onReceive,
		lineEnding:          o.lineEnding,
		logger:              o.logger,
		readInterval:        o.readInterval,
		staleMultiplier:     o.staleMultiplier,
		defaultTimeout:      o.defaultTimeout,
		recorder:            o.recorder,
		borrowEndpoint:      o.borrowEndpoint,
		keepRedirectOnClose: o.keepRedirectOnClose,
	}

	if o.autoStart {
		if err := p.StartRedirect(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// StartRedirect launches the background reader. It is a no-op when
// redirection is already running.
func (p *Port) StartRedirect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("port %s: %w", p.name, ErrPortClosed)
	}
	if p.sp != nil {
		return nil
	}

	sp, err := spawn.Start(p.ep, spawn.Config{
		Name:            p.name,
		LogPath:         p.logFile,
		Banner:          p.bannerLocked(),
		ReadInterval:    p.readInterval,
		StaleMultiplier: p.staleMultiplier,
		DefaultTimeout:  p.defaultTimeout,
		Logger:          p.logger,
		Recorder:        p.recorder,
		OnReceive:       p.onReceive,
	})
	if err != nil {
		return fmt.Errorf("start redirect for port %s: %w", p.name, err)
	}
	p.sp = sp
	return nil
}

// StopRedirect stops the background reader and discards any buffered
// data. It reports whether this call actually stopped redirection.
func (p *Port) StopRedirect() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopRedirectLocked()
}

func (p *Port) stopRedirectLocked() bool {
	if p.sp == nil {
		return false
	}
	p.sp.Stop()
	p.sp = nil
	return true
}

// PauseRedirect stops redirection, runs fn with exclusive access to
// the raw endpoint, and restarts redirection afterwards. Redirection
// is only restarted if this call stopped it, so nesting is safe. The
// restart happens even when fn fails; fn's error takes precedence.
func (p *Port) PauseRedirect(fn func() error) (err error) {
	if fn == nil {
		return fmt.Errorf("%w: pause function cannot be nil", ErrConfiguration)
	}
	if p.StopRedirect() {
		defer func() {
			if rerr := p.StartRedirect(); rerr != nil && err == nil {
				err = rerr
			}
		}()
	}
	return fn()
}

// Started reports whether redirection is currently running.
func (p *Port) Started() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sp != nil
}

// RedirectAlive reports whether the background reader goroutine is
// still draining the endpoint. It turns false once the reader exits
// after an endpoint error; StopRedirect followed by StartRedirect
// recovers, usually after reopening the endpoint.
func (p *Port) RedirectAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sp != nil && !p.sp.Done()
}

// Write sends data to the endpoint. Redirection must be running.
func (p *Port) Write(data []byte) error {
	sp, err := p.session()
	if err != nil {
		return err
	}
	return sp.Write(data)
}

// WriteLine sends line followed by the configured line ending.
func (p *Port) WriteLine(line string) error {
	return p.Write([]byte(line + p.lineEnding))
}

// Expect blocks until pattern matches the buffered output or timeout
// expires. Everything up to and including the match is consumed. A
// negative timeout selects the port default; a zero timeout tries
// exactly once without waiting. On timeout the returned error is an
// *ExpectTimeoutError matching ErrExpectTimeout.
func (p *Port) Expect(pattern *regexp.Regexp, timeout time.Duration) (*Match, error) {
	sp, err := p.session()
	if err != nil {
		return nil, err
	}
	return sp.Expect(pattern, timeout)
}

// ExpectContext is Expect bounded by a context instead of a duration.
// Context cancelation returns ctx.Err; a context deadline is reported
// as an *ExpectTimeoutError.
func (p *Port) ExpectContext(ctx context.Context, pattern *regexp.Regexp) (*Match, error) {
	sp, err := p.session()
	if err != nil {
		return nil, err
	}
	return sp.ExpectContext(ctx, pattern)
}

// ExpectExact waits for a literal byte sequence rather than a pattern.
func (p *Port) ExpectExact(literal []byte, timeout time.Duration) error {
	sp, err := p.session()
	if err != nil {
		return err
	}
	return sp.ExpectExact(literal, timeout)
}

// DataCache returns a copy of the buffered output without consuming
// it.
func (p *Port) DataCache() ([]byte, error) {
	return p.ReadAllBytes(false)
}

// FlushData returns the buffered output and clears the cache.
func (p *Port) FlushData() ([]byte, error) {
	return p.ReadAllBytes(true)
}

// ReadAllBytes returns everything buffered so far. With flush set the
// cache is cleared, so the next expect starts from empty.
func (p *Port) ReadAllBytes(flush bool) ([]byte, error) {
	sp, err := p.session()
	if err != nil {
		return nil, err
	}
	if flush {
		return sp.FlushAll(), nil
	}
	return sp.Buffered(), nil
}

// Name returns the port name.
func (p *Port) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

// SetName renames the port. The new name appears in subsequent log
// records and error messages.
func (p *Port) SetName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
	if p.sp != nil {
		p.sp.SetName(name)
	}
}

// LogFile returns the current log file path, or "" when output is not
// logged to a file.
func (p *Port) LogFile() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logFile
}

// SetLogFile re-points output logging to path. Buffered partial lines
// carry over and are written to the new file once complete. An empty
// path disables file logging.
func (p *Port) SetLogFile(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logFile = path
	if p.sp != nil {
		p.sp.SetLogTarget(path)
	}
}

// SetReceiveCallback replaces the receive callback. A nil callback
// disables delivery. The callback survives redirection restarts.
func (p *Port) SetReceiveCallback(cb ReceiveCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onReceive = cb
	if p.sp != nil {
		p.sp.SetReceiveCallback(cb)
	}
}

// Endpoint returns the underlying transport, for callers that need raw
// access during PauseRedirect.
func (p *Port) Endpoint() Endpoint {
	return p.ep
}

// Kind reports the transport kind behind this port.
func (p *Port) Kind() Kind {
	return endpoint.KindOf(p.ep)
}

// Close stops redirection and closes the endpoint. Ports built with
// WithBorrowedEndpoint leave the endpoint open; ports built with
// WithKeepRedirectOnClose leave redirection running. Close is
// idempotent.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if !p.keepRedirectOnClose {
		p.stopRedirectLocked()
	}
	if p.borrowEndpoint {
		return nil
	}
	if closer, ok := p.ep.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("close port %s: %w", p.name, err)
		}
	}
	return nil
}

func (p *Port) session() (*spawn.Spawn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("port %s: %w", p.name, ErrPortClosed)
	}
	if p.sp == nil {
		return nil, fmt.Errorf("port %s: %w", p.name, ErrNotStarted)
	}
	return p.sp, nil
}

func (p *Port) bannerLocked() string {
	label := endpoint.NameOf(p.ep)
	if label == "" {
		label = endpoint.KindOf(p.ep).String()
	}
	return fmt.Sprintf("==== %s (%s) run %s ====\n", p.name, label, naming.RunID())
}
