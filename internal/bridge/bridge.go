// Package bridge replicates live port output onto external transports:
// a WebSocket hub for browser dashboards and an MQTT publisher for lab
// infrastructure. Bridges consume receive callbacks, which run on port
// reader goroutines, so delivery is decoupled through a bounded queue
// that drops rather than blocks.
package bridge

import (
	"sync"
	"sync/atomic"
	"time"
)

// Message is one chunk of port output as seen by a bridge.
type Message struct {
	Port string    `json:"port"`
	Data string    `json:"data"`
	Time time.Time `json:"time"`
}

// queueSize bounds how many chunks a bridge buffers before dropping.
const queueSize = 256

// dispatch decouples reader callbacks from a bridge's sender goroutine.
type dispatch struct {
	ch       chan Message
	stopCh   chan struct{}
	stopOnce sync.Once
	dropped  atomic.Uint64
}

func newDispatch() *dispatch {
	return &dispatch{
		ch:     make(chan Message, queueSize),
		stopCh: make(chan struct{}),
	}
}

// enqueue hands a message to the sender without ever blocking the
// caller. Full queue or stopped dispatch drops the message.
func (d *dispatch) enqueue(msg Message) bool {
	select {
	case <-d.stopCh:
		return false
	default:
	}
	select {
	case d.ch <- msg:
		return true
	default:
		d.dropped.Add(1)
		return false
	}
}

func (d *dispatch) stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

// droppedCount reports how many messages were discarded on a full
// queue.
func (d *dispatch) droppedCount() uint64 {
	return d.dropped.Load()
}
