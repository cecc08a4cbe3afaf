package naming

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextIsSequentialPerOwner(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, "dut_1", r.NextName("dut"))
	assert.Equal(t, "dut_2", r.NextName("dut"))
	assert.Equal(t, "shell_1", r.NextName("shell"))
	assert.Equal(t, "dut_3", r.NextName("dut"))
}

func TestResetRestartsNumbering(t *testing.T) {
	r := NewRegistry()
	r.NextName("dut")
	r.NextName("dut")

	r.Reset()
	assert.Equal(t, "dut_1", r.NextName("dut"))
}

func TestNextIsSafeForConcurrentUse(t *testing.T) {
	r := NewRegistry()
	const workers = 16
	const perWorker = 50

	var mu sync.Mutex
	seen := make(map[uint64]bool)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				n := r.Next("dut")
				mu.Lock()
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*perWorker, "every index handed out exactly once")
	assert.True(t, seen[1])
	assert.True(t, seen[uint64(workers*perWorker)])
}

func TestRunIDIsStableAndValid(t *testing.T) {
	first := RunID()
	second := RunID()

	assert.Equal(t, first, second)
	_, err := uuid.Parse(first)
	require.NoError(t, err)
}
