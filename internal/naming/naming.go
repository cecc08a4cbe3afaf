// Package naming hands out sequential port names (dut_1, dut_2, ...) and a
// per-process run identifier used in log banners.
package naming

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Registry allocates per-owner sequence numbers. It is injectable so test
// suites can keep their numbering hermetic instead of sharing process-global
// counters.
type Registry struct {
	mu       sync.Mutex
	counters map[string]uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{counters: make(map[string]uint64)}
}

// Next returns the next 1-based index for owner.
func (r *Registry) Next(owner string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[owner]++
	return r.counters[owner]
}

// NextName returns "<owner>_<n>" with n from Next.
func (r *Registry) NextName(owner string) string {
	return fmt.Sprintf("%s_%d", owner, r.Next(owner))
}

// Reset forgets all counters.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = make(map[string]uint64)
}

// Default is the process-wide registry the public facade allocates from.
var Default = NewRegistry()

// NextName allocates from Default.
func NextName(owner string) string { return Default.NextName(owner) }

var (
	runOnce sync.Once
	runID   string
)

// RunID returns this process run's stable identifier.
func RunID() string {
	runOnce.Do(func() { runID = uuid.NewString() })
	return runID
}
