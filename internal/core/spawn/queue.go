package spawn

import (
	"sync"
	"time"
)

// byteQueue is the unbounded chunk FIFO between the reader goroutine and the
// expect side. Push never blocks. Consumers take everything available with
// drain and can wait for the next arrival with a deadline.
type byteQueue struct {
	mu     sync.Mutex
	chunks [][]byte
	notify chan struct{}
}

func newByteQueue() *byteQueue {
	return &byteQueue{notify: make(chan struct{}, 1)}
}

// push appends one chunk and wakes a waiting consumer. The queue stores its
// own copy so the caller may reuse or hand off the slice afterwards.
func (q *byteQueue) push(data []byte) {
	if len(data) == 0 {
		return
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	q.mu.Lock()
	q.chunks = append(q.chunks, buf)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// drain removes and returns all queued chunks without blocking. Chunk order
// is arrival order.
func (q *byteQueue) drain() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	chunks := q.chunks
	q.chunks = nil
	return chunks
}

// wait blocks until new data may be available or the timeout elapses. A true
// result is a hint, not a guarantee; callers drain and re-check. Spurious
// wakeups can happen when a push raced an earlier drain.
func (q *byteQueue) wait(timeout time.Duration) bool {
	if timeout <= 0 {
		return false
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-q.notify:
		return true
	case <-t.C:
		return false
	}
}

// waitCancel is wait with an extra cancellation channel. The second result
// reports that cancel fired first.
func (q *byteQueue) waitCancel(cancel <-chan struct{}, timeout time.Duration) (woke, canceled bool) {
	if timeout <= 0 {
		return false, false
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-q.notify:
		return true, false
	case <-t.C:
		return false, false
	case <-cancel:
		return false, true
	}
}

// reset discards all queued chunks and any pending wakeup.
func (q *byteQueue) reset() {
	q.mu.Lock()
	q.chunks = nil
	q.mu.Unlock()
	select {
	case <-q.notify:
	default:
	}
}

// pending reports the total number of queued bytes.
func (q *byteQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, c := range q.chunks {
		n += len(c)
	}
	return n
}
