// Package stream adapts an already-open io.ReadWriter to the endpoint
// contract: a process pty, a net.Conn, a chip-programming tool's port handle,
// an in-memory pipe in tests.
//
// When the wrapped value supports read deadlines (os.File, net.Conn) or
// driver read timeouts (go.bug.st/serial.Port), reads are direct and bounded,
// and pausing redirection leaves the handle completely untouched for whoever
// borrowed it. Otherwise a pump goroutine bridges the blocking Read into
// chunks; that pump keeps draining even while redirection is paused, so
// deadline-free handles should not be shared.
package stream

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dutlab/portspawn/internal/core/endpoint"
)

// ErrClosed is returned by reads and writes on a closed stream.
var ErrClosed = errors.New("stream closed")

type deadlineReader interface {
	SetReadDeadline(t time.Time) error
}

type timeoutReader interface {
	SetReadTimeout(d time.Duration) error
}

type readMode int

const (
	modeDeadline readMode = iota
	modeTimeout
	modePump
)

// Stream is an endpoint over a borrowed byte stream.
type Stream struct {
	rw   io.ReadWriter
	name string
	mode readMode

	chunks    chan []byte
	closedCh  chan struct{}
	closeOnce sync.Once

	errMu   sync.Mutex
	pumpErr error
}

// Wrap adapts rw. The read strategy is picked from the interfaces rw
// actually implements.
func Wrap(rw io.ReadWriter, name string) *Stream {
	s := &Stream{
		rw:       rw,
		name:     name,
		closedCh: make(chan struct{}),
	}
	switch rw.(type) {
	case deadlineReader:
		s.mode = modeDeadline
	case timeoutReader:
		s.mode = modeTimeout
	default:
		s.mode = modePump
		s.chunks = make(chan []byte, 64)
		go s.pump()
	}
	return s
}

// pump turns the blocking Read into chunks until the stream closes or the
// read fails.
func (s *Stream) pump() {
	defer close(s.chunks)
	buf := make([]byte, 4096)
	for {
		n, err := s.rw.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.chunks <- chunk:
			case <-s.closedCh:
				return
			}
		}
		if err != nil {
			s.errMu.Lock()
			s.pumpErr = err
			s.errMu.Unlock()
			return
		}
	}
}

// ReadBytes returns whatever arrived within timeout; (nil, nil) on a quiet
// interval.
func (s *Stream) ReadBytes(timeout time.Duration) ([]byte, error) {
	select {
	case <-s.closedCh:
		return nil, ErrClosed
	default:
	}
	switch s.mode {
	case modeDeadline:
		return s.readDeadline(timeout)
	case modeTimeout:
		return s.readTimeout(timeout)
	default:
		return s.readPump(timeout)
	}
}

func (s *Stream) readDeadline(timeout time.Duration) ([]byte, error) {
	if err := s.rw.(deadlineReader).SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("set read deadline on %s: %w", s.name, err)
	}
	buf := make([]byte, 4096)
	n, err := s.rw.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.name, err)
	}
	return nil, nil
}

func (s *Stream) readTimeout(timeout time.Duration) ([]byte, error) {
	if err := s.rw.(timeoutReader).SetReadTimeout(timeout); err != nil {
		return nil, fmt.Errorf("set read timeout on %s: %w", s.name, err)
	}
	buf := make([]byte, 4096)
	n, err := s.rw.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.name, err)
	}
	if n == 0 {
		return nil, nil
	}
	return buf[:n], nil
}

func (s *Stream) readPump(timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case chunk, ok := <-s.chunks:
		if !ok {
			return nil, s.pumpFailure()
		}
		return chunk, nil
	case <-timer.C:
		return nil, nil
	case <-s.closedCh:
		return nil, ErrClosed
	}
}

func (s *Stream) pumpFailure() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.pumpErr != nil {
		return fmt.Errorf("read %s: %w", s.name, s.pumpErr)
	}
	return ErrClosed
}

// WriteBytes writes data to the underlying stream.
func (s *Stream) WriteBytes(data []byte) error {
	select {
	case <-s.closedCh:
		return ErrClosed
	default:
	}
	if _, err := s.rw.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", s.name, err)
	}
	return nil
}

// Close shuts the adapter down and closes the underlying stream when it is a
// Closer. Safe to call repeatedly.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closedCh)
		if c, ok := s.rw.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}

// EndpointName reports the name the stream was wrapped with.
func (s *Stream) EndpointName() string { return s.name }

// Kind reports the borrowed-stream transport family.
func (s *Stream) Kind() endpoint.Kind { return endpoint.KindStream }
