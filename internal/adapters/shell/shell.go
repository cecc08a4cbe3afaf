// Package shell adapts a subprocess to the endpoint contract. The child's
// stdout and stderr merge into a single pipe read with deadlines, writes go
// to stdin, and Close takes down the whole process group. Unix only.
package shell

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dutlab/portspawn/internal/core/endpoint"
)

// DefaultShell interprets Config.Command when Args is empty.
const DefaultShell = "/bin/bash"

// DefaultReadInterval is the pipe polling cadence suggested to the redirect
// loop.
const DefaultReadInterval = 2 * time.Millisecond

// Config describes the child process. With Args empty, Command is run through
// the shell ("bash -c command"); otherwise Command is the binary and Args its
// argv tail.
type Config struct {
	Command string
	Args    []string
	Shell   string
	Dir     string
	Env     []string // appended to the parent environment
}

// Proc is a running subprocess endpoint.
type Proc struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *os.File // read end of the merged stdout+stderr pipe
	name   string

	mu     sync.Mutex
	closed bool
}

// Start launches the child in its own process group and wires the pipes.
func Start(cfg Config) (*Proc, error) {
	if cfg.Command == "" {
		return nil, errors.New("command cannot be empty")
	}
	sh := cfg.Shell
	if sh == "" {
		sh = DefaultShell
	}
	var cmd *exec.Cmd
	if len(cfg.Args) > 0 {
		cmd = exec.Command(cfg.Command, cfg.Args...)
	} else {
		cmd = exec.Command(sh, "-c", cfg.Command)
	}
	cmd.Dir = cfg.Dir
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	// Own process group, so Close can kill the child and its descendants.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw
	stdin, err := cmd.StdinPipe()
	if err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("start %q: %w", cfg.Command, err)
	}
	// The child holds the write end now; dropping ours makes EOF observable.
	pw.Close()

	return &Proc{
		cmd:    cmd,
		stdin:  stdin,
		stdout: pr,
		name:   commandName(cfg),
	}, nil
}

func commandName(cfg Config) string {
	argv0 := cfg.Command
	if len(cfg.Args) == 0 {
		fields := strings.Fields(cfg.Command)
		if len(fields) > 0 {
			argv0 = fields[0]
		}
	}
	return filepath.Base(argv0)
}

// ReadBytes returns whatever the child wrote within timeout; (nil, nil) on a
// quiet interval. io.EOF surfaces once the child closed its output, which the
// redirect loop treats as the endpoint going away.
func (p *Proc) ReadBytes(timeout time.Duration) ([]byte, error) {
	if err := p.stdout.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("set read deadline on %s: %w", p.name, err)
	}
	buf := make([]byte, 4096)
	n, err := p.stdout.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("read from %s: %w", p.name, err)
	}
	return nil, nil
}

// WriteBytes feeds data to the child's stdin.
func (p *Proc) WriteBytes(data []byte) error {
	if _, err := p.stdin.Write(data); err != nil {
		return fmt.Errorf("write to %s: %w", p.name, err)
	}
	return nil
}

// Close signals EOF on stdin, kills the process group, reaps the child and
// closes the read pipe. The expected "signal: killed" exit is not an error.
// Safe to call repeatedly.
func (p *Proc) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	p.stdin.Close()
	if pgid, err := syscall.Getpgid(p.cmd.Process.Pid); err == nil {
		syscall.Kill(-pgid, syscall.SIGKILL)
	} else {
		p.cmd.Process.Kill()
	}
	waitErr := p.cmd.Wait()
	p.stdout.Close()

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return fmt.Errorf("wait for %s: %w", p.name, waitErr)
	}
	return nil
}

// Exited reports whether the child has been reaped.
func (p *Proc) Exited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd.ProcessState != nil
}

// Pid returns the child's process id.
func (p *Proc) Pid() int { return p.cmd.Process.Pid }

// ReadInterval suggests the pipe polling cadence.
func (p *Proc) ReadInterval() time.Duration { return DefaultReadInterval }

// EndpointName reports the command's binary basename.
func (p *Proc) EndpointName() string { return p.name }

// Kind reports the subprocess transport family.
func (p *Proc) Kind() endpoint.Kind { return endpoint.KindShell }
