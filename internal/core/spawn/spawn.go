// Package spawn implements the redirect machinery behind a port: a reader
// goroutine draining a raw endpoint into an ordered byte queue, a
// line-reassembling log writer, and a deadline-bounded expect engine over the
// accumulated stream.
package spawn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/dutlab/portspawn/internal/core/endpoint"
)

// Spawn owns one redirect session over an endpoint: the reader goroutine, the
// byte queue it fills, the unread data cache and the line log. A Spawn comes
// back from Start already running and is finished after Stop; facades create
// a fresh Spawn per redirect cycle, so caches never leak across sessions.
type Spawn struct {
	ep         endpoint.Endpoint
	interval   time.Duration
	defTimeout time.Duration
	logger     *slog.Logger
	rec        Recorder
	queue      *byteQueue
	linelog    *LineLog

	mu        sync.RWMutex // guards name and onReceive
	name      string
	onReceive ReceiveCallback

	cacheMu sync.Mutex // guards cache; held across expect waits
	cache   []byte

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Start begins redirecting ep and returns the live session.
func Start(ep endpoint.Endpoint, cfg Config) (*Spawn, error) {
	if ep == nil {
		return nil, errors.New("endpoint cannot be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rec := cfg.Recorder
	if rec == nil {
		rec = NopRecorder{}
	}
	interval := cfg.ReadInterval
	if interval <= 0 {
		interval = endpoint.IntervalOf(ep, DefaultReadInterval)
	}
	multiplier := cfg.StaleMultiplier
	if multiplier <= 0 {
		multiplier = DefaultStaleMultiplier
	}
	defTimeout := cfg.DefaultTimeout
	if defTimeout <= 0 {
		defTimeout = DefaultExpectTimeout
	}
	name := cfg.Name
	if name == "" {
		name = endpoint.NameOf(ep)
	}

	s := &Spawn{
		ep:         ep,
		interval:   interval,
		defTimeout: defTimeout,
		logger:     logger,
		rec:        rec,
		queue:      newByteQueue(),
		linelog:    newLineLog(name, cfg.LogPath, cfg.Banner, interval, multiplier, logger, rec),
		name:       name,
		onReceive:  cfg.OnReceive,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	go s.runReader()
	return s, nil
}

// Stop halts the reader and waits for it to exit, then clears the queue, the
// data cache, pending partial-line log state and the receive callback. After
// Stop returns, nothing appends to the queue again. Safe to call repeatedly.
func (s *Spawn) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.done
		s.queue.reset()
		s.cacheMu.Lock()
		s.cache = nil
		s.cacheMu.Unlock()
		s.linelog.Reset()
		s.SetReceiveCallback(nil)
		s.logger.Debug("redirect stopped", "port", s.Name())
	})
}

// Done reports whether the reader goroutine has exited, via Stop or on its
// own after a read error.
func (s *Spawn) Done() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Name returns the current port label.
func (s *Spawn) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// SetName relabels the port for logs, metrics and callbacks.
func (s *Spawn) SetName(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
	s.linelog.SetName(name)
}

// SetReceiveCallback replaces the chunk observer; nil disables it.
func (s *Spawn) SetReceiveCallback(cb ReceiveCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReceive = cb
}

func (s *Spawn) receiveCallback() ReceiveCallback {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.onReceive
}

// SetLogTarget re-points the line log; empty reverts to debug logging.
// Pending partial-line data is kept and flushes to the new target on its
// normal triggers.
func (s *Spawn) SetLogTarget(path string) { s.linelog.SetTarget(path) }

// LogTarget returns the current line-log file target.
func (s *Spawn) LogTarget() string { return s.linelog.Target() }

// Write sends data to the endpoint and accounts it.
func (s *Spawn) Write(data []byte) error {
	if err := s.ep.WriteBytes(data); err != nil {
		return fmt.Errorf("write to port %s: %w", s.Name(), err)
	}
	s.rec.AddBytesWritten(s.Name(), len(data))
	return nil
}

// drainIntoCacheLocked moves everything queued into the data cache. Callers
// hold cacheMu.
func (s *Spawn) drainIntoCacheLocked() {
	for _, chunk := range s.queue.drain() {
		s.cache = append(s.cache, chunk...)
	}
}

// ReadNonblocking returns up to size bytes, consuming them. Anything already
// buffered comes back immediately; otherwise it waits up to timeout for the
// first arrival. Empty means the deadline passed with nothing available.
func (s *Spawn) ReadNonblocking(size int, timeout time.Duration) []byte {
	if size <= 0 {
		return nil
	}
	deadline := time.Now().Add(timeout)
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	for {
		s.drainIntoCacheLocked()
		if len(s.cache) > 0 {
			n := min(size, len(s.cache))
			out := append([]byte(nil), s.cache[:n]...)
			s.cache = s.cache[n:]
			return out
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		s.queue.wait(remaining)
	}
}

// Expect blocks until re matches the accumulated stream or the budget runs
// out. The budget is wall-clock from the call, not reset by arrivals. A
// negative timeout selects the configured default; zero checks what is
// already buffered without waiting. On success everything through the end of
// the match is consumed. On failure the error is always an
// *ExpectTimeoutError carrying the unconsumed buffer.
func (s *Spawn) Expect(re *regexp.Regexp, timeout time.Duration) (*Match, error) {
	if re == nil {
		return nil, errors.New("pattern cannot be nil")
	}
	if timeout < 0 {
		timeout = s.defTimeout
	}
	deadline := time.Now().Add(timeout)
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	for {
		if m := s.tryMatchLocked(re); m != nil {
			return m, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			s.rec.IncExpectTimeout(s.Name())
			return nil, s.timeoutErrLocked(re.String(), timeout, nil)
		}
		s.queue.wait(remaining)
	}
}

// ExpectContext is Expect driven by a context. Deadline expiry surfaces as
// the unified timeout error with the context error as cause; plain
// cancellation returns ctx.Err() unchanged.
func (s *Spawn) ExpectContext(ctx context.Context, re *regexp.Regexp) (*Match, error) {
	if re == nil {
		return nil, errors.New("pattern cannot be nil")
	}
	deadline, hasDeadline := ctx.Deadline()
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	for {
		if m := s.tryMatchLocked(re); m != nil {
			return m, nil
		}
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				s.rec.IncExpectTimeout(s.Name())
				return nil, s.timeoutErrLocked(re.String(), 0, err)
			}
			return nil, err
		}
		remaining := time.Hour
		if hasDeadline {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				s.rec.IncExpectTimeout(s.Name())
				return nil, s.timeoutErrLocked(re.String(), 0, context.DeadlineExceeded)
			}
		}
		s.queue.waitCancel(ctx.Done(), remaining)
	}
}

// ExpectExact waits for a literal byte sequence and consumes through its end.
// Timeout semantics match Expect.
func (s *Spawn) ExpectExact(literal []byte, timeout time.Duration) error {
	if len(literal) == 0 {
		return errors.New("literal cannot be empty")
	}
	if timeout < 0 {
		timeout = s.defTimeout
	}
	deadline := time.Now().Add(timeout)
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	for {
		s.drainIntoCacheLocked()
		if i := bytes.Index(s.cache, literal); i >= 0 {
			s.cache = append([]byte(nil), s.cache[i+len(literal):]...)
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			s.rec.IncExpectTimeout(s.Name())
			return s.timeoutErrLocked(string(literal), timeout, nil)
		}
		s.queue.wait(remaining)
	}
}

// tryMatchLocked drains the queue and attempts one leftmost match against the
// cache, consuming through the match end on success.
func (s *Spawn) tryMatchLocked(re *regexp.Regexp) *Match {
	s.drainIntoCacheLocked()
	loc := re.FindSubmatchIndex(s.cache)
	if loc == nil {
		return nil
	}
	m := matchFromIndex(re, s.cache, loc)
	s.cache = append([]byte(nil), s.cache[loc[1]:]...)
	return m
}

// Buffered drains the queue into the cache and returns a copy of the unread
// tail without consuming anything. Repeated calls with no new arrivals return
// the same bytes.
func (s *Spawn) Buffered() []byte {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.drainIntoCacheLocked()
	return append([]byte(nil), s.cache...)
}

// FlushAll consumes and returns everything buffered or queued right now.
func (s *Spawn) FlushAll() []byte {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.drainIntoCacheLocked()
	out := s.cache
	s.cache = nil
	return out
}

func (s *Spawn) timeoutErrLocked(pattern string, timeout time.Duration, cause error) error {
	return &ExpectTimeoutError{
		Port:     s.Name(),
		Pattern:  pattern,
		Timeout:  timeout,
		Buffered: append([]byte(nil), s.cache...),
		Cause:    cause,
	}
}
