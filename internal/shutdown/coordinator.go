// Package shutdown coordinates orderly teardown of monitor resources: ports
// first so devices stop producing, then bridges so queued output flushes,
// then listeners.
package shutdown

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultGracePeriod bounds each teardown phase when the Config does not set
// its own.
const DefaultGracePeriod = 10 * time.Second

// Config configures teardown behavior.
type Config struct {
	// GracePeriod is the maximum time to wait for each phase.
	GracePeriod time.Duration

	// OnShutdownStart is called when teardown begins.
	OnShutdownStart func()

	// OnShutdownComplete is called when teardown completes.
	OnShutdownComplete func(err error)
}

// DefaultConfig returns sensible teardown defaults.
func DefaultConfig() *Config {
	return &Config{GracePeriod: DefaultGracePeriod}
}

// Closer is any resource that can be released.
type Closer interface {
	Close() error
}

// Coordinator tears down registered resources in phase order. Registration
// after Shutdown has begun is ignored.
type Coordinator struct {
	config         *Config
	ports          []Closer
	bridges        []Closer
	servers        []Closer
	cleanupFuncs   []func() error
	mu             sync.Mutex
	shutdownOnce   sync.Once
	isShuttingDown bool
}

// NewCoordinator creates a new teardown coordinator.
func NewCoordinator(config *Config) *Coordinator {
	if config == nil {
		config = DefaultConfig()
	}
	if config.GracePeriod <= 0 {
		config.GracePeriod = DefaultGracePeriod
	}
	return &Coordinator{config: config}
}

// RegisterPort registers a port for the first teardown phase. Closing a port
// stops its redirection and releases the endpoint.
func (c *Coordinator) RegisterPort(port Closer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if port != nil && !c.isShuttingDown {
		c.ports = append(c.ports, port)
	}
}

// RegisterBridge registers a replication bridge for the second phase. Bridges
// close after ports so everything the readers produced can still flush.
func (c *Coordinator) RegisterBridge(bridge Closer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bridge != nil && !c.isShuttingDown {
		c.bridges = append(c.bridges, bridge)
	}
}

// RegisterServer registers a listener such as the metrics endpoint for the
// final phase.
func (c *Coordinator) RegisterServer(server Closer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if server != nil && !c.isShuttingDown {
		c.servers = append(c.servers, server)
	}
}

// RegisterCleanupFunc registers a function to run after all phases.
func (c *Coordinator) RegisterCleanupFunc(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fn != nil && !c.isShuttingDown {
		c.cleanupFuncs = append(c.cleanupFuncs, fn)
	}
}

// Shutdown runs the teardown phases. It is safe to call more than once; only
// the first call does the work.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	var finalErr error

	c.shutdownOnce.Do(func() {
		c.mu.Lock()
		c.isShuttingDown = true
		c.mu.Unlock()

		if c.config.OnShutdownStart != nil {
			c.config.OnShutdownStart()
		}

		slog.Info("Starting teardown", "grace_period", c.config.GracePeriod)

		var errs []error
		var errMu sync.Mutex
		addError := func(err error) {
			errMu.Lock()
			errs = append(errs, err)
			errMu.Unlock()
		}

		c.closePhase(ctx, "ports", c.ports, addError)
		c.closePhase(ctx, "bridges", c.bridges, addError)
		c.closePhase(ctx, "servers", c.servers, addError)
		c.runCleanupFunctions(addError)

		if len(errs) > 0 {
			for _, err := range errs {
				slog.Error("Teardown error", "error", err)
			}
			finalErr = errs[0]
		} else {
			slog.Info("Teardown completed")
		}

		if c.config.OnShutdownComplete != nil {
			c.config.OnShutdownComplete(finalErr)
		}
	})

	return finalErr
}

// closePhase closes every resource of one phase in parallel and waits up to
// the grace period before moving on.
func (c *Coordinator) closePhase(ctx context.Context, phase string, resources []Closer, addError func(error)) {
	if len(resources) == 0 {
		return
	}
	slog.Debug("Teardown phase", "phase", phase, "resources", len(resources))

	graceCtx, cancel := context.WithTimeout(ctx, c.config.GracePeriod)
	defer cancel()

	var wg sync.WaitGroup
	for _, r := range resources {
		wg.Add(1)
		go func(cl Closer) {
			defer wg.Done()
			if err := cl.Close(); err != nil {
				addError(fmt.Errorf("close %s resource: %w", phase, err))
			}
		}(r)
	}

	if !c.waitForPhase(graceCtx, &wg) {
		addError(fmt.Errorf("%s teardown exceeded grace period of %v", phase, c.config.GracePeriod))
	}
}

func (c *Coordinator) runCleanupFunctions(addError func(error)) {
	for _, fn := range c.cleanupFuncs {
		if err := fn(); err != nil {
			addError(fmt.Errorf("cleanup function: %w", err))
		}
	}
}

func (c *Coordinator) waitForPhase(ctx context.Context, wg *sync.WaitGroup) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
