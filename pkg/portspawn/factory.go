package portspawn

import (
	"io"
	"time"

	"github.com/dutlab/portspawn/internal/adapters/serialport"
	"github.com/dutlab/portspawn/internal/adapters/shell"
	"github.com/dutlab/portspawn/internal/adapters/stream"
)

// SerialConfig describes a UART device to open. Zero fields fall back
// to 115200-8N1 with a 1ms read interval.
type SerialConfig struct {
	// Device is the OS device path, such as /dev/ttyUSB0 or COM3.
	Device string

	// BaudRate defaults to 115200.
	BaudRate int

	// DataBits defaults to 8.
	DataBits int

	// Parity is "none", "odd" or "even". Empty means none.
	Parity string

	// StopBits is "1", "1.5" or "2". Empty means one.
	StopBits string

	// ReadInterval bounds each driver read.
	ReadInterval time.Duration
}

// ShellConfig describes a local process to run behind a port. Stdout
// and stderr are merged into one output stream.
type ShellConfig struct {
	// Command is run through the shell when Args is empty.
	Command string

	// Args, when set, is the full argv and Command is ignored.
	Args []string

	// Shell overrides /bin/bash for Command form.
	Shell string

	// Dir is the working directory. Empty inherits the caller's.
	Dir string

	// Env entries are appended to the inherited environment.
	Env []string
}

// SerialHandle is the slice of a go.bug.st/serial port that AdoptSerial
// needs. Any open serial.Port satisfies it.
type SerialHandle = serialport.Handle

// OpenSerial opens a serial device and wraps it in a Port. The port
// owns the device and closes it on Close.
func OpenSerial(cfg SerialConfig, opts ...Option) (*Port, error) {
	ep, err := serialport.Open(serialport.Config{
		Device:       cfg.Device,
		BaudRate:     cfg.BaudRate,
		DataBits:     cfg.DataBits,
		Parity:       cfg.Parity,
		StopBits:     cfg.StopBits,
		ReadInterval: cfg.ReadInterval,
	})
	if err != nil {
		return nil, err
	}
	p, err := New(ep, opts...)
	if err != nil {
		ep.Close()
		return nil, err
	}
	return p, nil
}

// AdoptSerial wraps an already-open serial handle, typically one left
// behind by a chip-programming tool, without touching its settings.
func AdoptSerial(h SerialHandle, name string, opts ...Option) (*Port, error) {
	return New(serialport.Wrap(h, name), opts...)
}

// StartShell launches a process and wraps its merged stdout and stderr
// in a Port. Writes go to the process stdin. Close kills the whole
// process group.
func StartShell(cfg ShellConfig, opts ...Option) (*Port, error) {
	ep, err := shell.Start(shell.Config{
		Command: cfg.Command,
		Args:    cfg.Args,
		Shell:   cfg.Shell,
		Dir:     cfg.Dir,
		Env:     cfg.Env,
	})
	if err != nil {
		return nil, err
	}
	p, err := New(ep, opts...)
	if err != nil {
		ep.Close()
		return nil, err
	}
	return p, nil
}

// WrapReadWriter adapts any byte stream, such as a net.Conn, an os.File
// or a pty, into a Port. Streams whose type supports read deadlines are
// read directly; anything else is drained by a pump goroutine, which
// makes PauseRedirect unsafe for handles shared with other readers.
func WrapReadWriter(rw io.ReadWriter, name string, opts ...Option) (*Port, error) {
	return New(stream.Wrap(rw, name), opts...)
}
