// Package serialport adapts a UART device behind go.bug.st/serial to the
// endpoint contract used by the redirect machinery.
package serialport

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/dutlab/portspawn/internal/core/endpoint"
)

// DefaultBaudRate is used when a Config does not set one.
const DefaultBaudRate = 115200

// DefaultReadInterval is the per-read timeout handed to the device driver
// when neither the Config nor the redirect loop overrides it.
const DefaultReadInterval = time.Millisecond

// ErrClosed is returned by operations on a closed port.
var ErrClosed = errors.New("serial port closed")

// ErrNotReopenable is returned by Reopen on a wrapped foreign handle, whose
// device settings this package never saw.
var ErrNotReopenable = errors.New("adopted serial handle cannot be reopened")

// Handle is the slice of go.bug.st/serial.Port this adapter needs. Any open
// serial.Port satisfies it; narrowing keeps adopted handles and test fakes
// small.
type Handle interface {
	io.ReadWriteCloser
	SetReadTimeout(timeout time.Duration) error
}

// openPort is replaced in tests to avoid touching real devices.
var openPort = func(device string, mode *serial.Mode) (Handle, error) {
	return serial.Open(device, mode)
}

// Config describes how to open a device. Zero fields fall back to 115200-8N1
// with a 1ms read interval.
type Config struct {
	Device       string
	BaudRate     int
	DataBits     int
	Parity       string // "none", "odd", "even"
	StopBits     string // "1", "1.5", "2"
	ReadInterval time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.BaudRate <= 0 {
		out.BaudRate = DefaultBaudRate
	}
	if out.DataBits <= 0 {
		out.DataBits = 8
	}
	if out.ReadInterval <= 0 {
		out.ReadInterval = DefaultReadInterval
	}
	return out
}

func (c *Config) mode() (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
	}
	switch strings.ToLower(c.Parity) {
	case "", "none":
		mode.Parity = serial.NoParity
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		return nil, fmt.Errorf("unknown parity %q", c.Parity)
	}
	switch c.StopBits {
	case "", "1":
		mode.StopBits = serial.OneStopBit
	case "1.5":
		mode.StopBits = serial.OnePointFiveStopBits
	case "2":
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unknown stop bits %q", c.StopBits)
	}
	return mode, nil
}

// Port is a serial endpoint. The read side belongs to one reader goroutine;
// writes may come from anywhere.
type Port struct {
	mu          sync.Mutex
	port        Handle
	cfg         Config
	name        string
	reopenable  bool
	lastTimeout time.Duration
}

// Open opens the configured device.
func Open(cfg Config) (*Port, error) {
	if cfg.Device == "" {
		return nil, errors.New("serial device cannot be empty")
	}
	cfg = cfg.withDefaults()
	mode, err := cfg.mode()
	if err != nil {
		return nil, fmt.Errorf("serial config for %s: %w", cfg.Device, err)
	}
	handle, err := openPort(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Device, err)
	}
	return &Port{
		port:        handle,
		cfg:         cfg,
		name:        filepath.Base(cfg.Device),
		reopenable:  true,
		lastTimeout: -1,
	}, nil
}

// Wrap adopts an already-open handle (a chip-programming tool's port, a pty)
// without reconfiguring it. The caller keeps responsibility for the device
// settings; Reopen is unavailable.
func Wrap(port Handle, name string) *Port {
	return &Port{
		port:        port,
		cfg:         (&Config{}).withDefaults(),
		name:        name,
		lastTimeout: -1,
	}
}

// ReadBytes waits up to timeout for at least one byte and returns whatever
// the driver delivered. (nil, nil) means the interval passed quietly.
func (p *Port) ReadBytes(timeout time.Duration) ([]byte, error) {
	handle, err := p.prepareRead(timeout)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 1024)
	n, err := handle.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read serial %s: %w", p.name, err)
	}
	if n == 0 {
		return nil, nil
	}
	return buf[:n], nil
}

// prepareRead fetches the live handle and pushes the read timeout down to the
// driver only when it changed since the previous read.
func (p *Port) prepareRead(timeout time.Duration) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port == nil {
		return nil, ErrClosed
	}
	if timeout != p.lastTimeout {
		if err := p.port.SetReadTimeout(timeout); err != nil {
			return nil, fmt.Errorf("set read timeout on %s: %w", p.name, err)
		}
		p.lastTimeout = timeout
	}
	return p.port, nil
}

// WriteBytes writes data to the device.
func (p *Port) WriteBytes(data []byte) error {
	p.mu.Lock()
	handle := p.port
	p.mu.Unlock()
	if handle == nil {
		return ErrClosed
	}
	if _, err := handle.Write(data); err != nil {
		return fmt.Errorf("write serial %s: %w", p.name, err)
	}
	return nil
}

// Reopen closes the device if needed and opens it again with the saved
// settings. Useful after a USB re-enumeration took the device away.
func (p *Port) Reopen() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.reopenable {
		return ErrNotReopenable
	}
	if p.port != nil {
		p.port.Close()
		p.port = nil
	}
	mode, err := p.cfg.mode()
	if err != nil {
		return fmt.Errorf("serial config for %s: %w", p.cfg.Device, err)
	}
	handle, err := openPort(p.cfg.Device, mode)
	if err != nil {
		return fmt.Errorf("reopen serial %s: %w", p.cfg.Device, err)
	}
	p.port = handle
	p.lastTimeout = -1
	return nil
}

// Close closes the device. Safe to call repeatedly.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	if err != nil {
		return fmt.Errorf("close serial %s: %w", p.name, err)
	}
	return nil
}

// Settings returns the configuration snapshot the port was opened with.
func (p *Port) Settings() Config { return p.cfg }

// ReadInterval suggests the device polling cadence to the redirect loop.
func (p *Port) ReadInterval() time.Duration { return p.cfg.ReadInterval }

// EndpointName reports the device basename ("ttyUSB0").
func (p *Port) EndpointName() string { return p.name }

// Kind reports the serial transport family.
func (p *Port) Kind() endpoint.Kind { return endpoint.KindSerial }
