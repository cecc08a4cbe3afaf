package stream

import (
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dutlab/portspawn/internal/core/endpoint"
)

// pipeRW joins the two halves of an in-memory duplex pipe into one
// ReadWriter with no deadline support, forcing the pump path.
type pipeRW struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p *pipeRW) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipeRW) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *pipeRW) Close() error {
	p.w.Close()
	return p.r.Close()
}

// newPipeEndpoint returns the wrapped stream plus the far ends the test
// drives: write feeds the stream's reads, read sees the stream's writes.
func newPipeEndpoint(name string) (*Stream, *io.PipeWriter, *io.PipeReader) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	s := Wrap(&pipeRW{r: inR, w: outW}, name)
	return s, inW, outR
}

func TestPumpPathDelivers(t *testing.T) {
	s, feed, _ := newPipeEndpoint("pty0")
	defer s.Close()

	go feed.Write([]byte("booted\n"))

	var got []byte
	require.Eventually(t, func() bool {
		data, err := s.ReadBytes(10 * time.Millisecond)
		if err != nil {
			return false
		}
		got = append(got, data...)
		return string(got) == "booted\n"
	}, 2*time.Second, time.Millisecond)
}

func TestPumpPathQuietRead(t *testing.T) {
	s, _, _ := newPipeEndpoint("pty0")
	defer s.Close()

	start := time.Now()
	data, err := s.ReadBytes(50 * time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestWritePassesThrough(t *testing.T) {
	s, _, out := newPipeEndpoint("pty0")
	defer s.Close()

	var mu sync.Mutex
	var got []byte
	go func() {
		buf := make([]byte, 16)
		n, _ := out.Read(buf)
		mu.Lock()
		got = append(got, buf[:n]...)
		mu.Unlock()
	}()

	require.NoError(t, s.WriteBytes([]byte("cmd\n")))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return string(got) == "cmd\n"
	}, 2*time.Second, time.Millisecond)
}

func TestCloseStopsReadsAndWrites(t *testing.T) {
	s, _, _ := newPipeEndpoint("pty0")

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.ReadBytes(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.WriteBytes([]byte("x")), ErrClosed)
}

func TestFarEndCloseSurfacesAsReadError(t *testing.T) {
	s, feed, _ := newPipeEndpoint("pty0")
	defer s.Close()

	feed.Close()
	var lastErr error
	require.Eventually(t, func() bool {
		_, lastErr = s.ReadBytes(10 * time.Millisecond)
		return lastErr != nil
	}, 2*time.Second, time.Millisecond)
	assert.True(t, errors.Is(lastErr, io.EOF), "got %v", lastErr)
}

// deadlineRW fakes an os.File-like stream so the deadline path is selected.
type deadlineRW struct {
	mu       sync.Mutex
	data     []byte
	deadline time.Time
	sets     int
}

func (d *deadlineRW) SetReadDeadline(t time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deadline = t
	d.sets++
	return nil
}

func (d *deadlineRW) Read(b []byte) (int, error) {
	for {
		d.mu.Lock()
		if len(d.data) > 0 {
			n := copy(b, d.data)
			d.data = d.data[n:]
			d.mu.Unlock()
			return n, nil
		}
		expired := time.Now().After(d.deadline)
		d.mu.Unlock()
		if expired {
			return 0, os.ErrDeadlineExceeded
		}
		time.Sleep(time.Millisecond)
	}
}

func (d *deadlineRW) Write(b []byte) (int, error) { return len(b), nil }

func TestDeadlinePathIsDirect(t *testing.T) {
	rw := &deadlineRW{data: []byte("hello")}
	s := Wrap(rw, "conn0")
	defer s.Close()

	data, err := s.ReadBytes(20 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	data, err = s.ReadBytes(20 * time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, data)

	rw.mu.Lock()
	defer rw.mu.Unlock()
	assert.Equal(t, 2, rw.sets, "every read pushes its deadline down")
}

// timeoutRW fakes a serial-driver-like stream with SetReadTimeout semantics.
type timeoutRW struct {
	mu      sync.Mutex
	data    []byte
	timeout time.Duration
}

func (d *timeoutRW) SetReadTimeout(t time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timeout = t
	return nil
}

func (d *timeoutRW) Read(b []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.data) == 0 {
		return 0, nil // driver timeout
	}
	n := copy(b, d.data)
	d.data = d.data[n:]
	return n, nil
}

func (d *timeoutRW) Write(b []byte) (int, error) { return len(b), nil }

func TestTimeoutPathIsDirect(t *testing.T) {
	rw := &timeoutRW{data: []byte("ser")}
	s := Wrap(rw, "ttyADOPTED")
	defer s.Close()

	data, err := s.ReadBytes(15 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []byte("ser"), data)

	data, err = s.ReadBytes(15 * time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, data)

	rw.mu.Lock()
	defer rw.mu.Unlock()
	assert.Equal(t, 15*time.Millisecond, rw.timeout)
}

func TestEndpointMetadata(t *testing.T) {
	s, _, _ := newPipeEndpoint("borrowed")
	defer s.Close()

	assert.Equal(t, "borrowed", s.EndpointName())
	assert.Equal(t, endpoint.KindStream, s.Kind())
}
