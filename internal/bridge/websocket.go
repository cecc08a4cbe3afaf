package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds each client write so one stuck browser cannot stall
// the broadcast loop.
const writeWait = 5 * time.Second

// WSBridge broadcasts port output to WebSocket clients. Clients that
// fall behind or disconnect are dropped from the hub.
type WSBridge struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	disp     *dispatch

	mu      sync.Mutex
	clients map[*websocket.Conn]bool

	server *http.Server
}

// NewWSBridge creates the hub and starts its broadcast goroutine.
func NewWSBridge(logger *slog.Logger) *WSBridge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &WSBridge{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // dashboards connect from arbitrary origins on the lab network
			},
		},
		disp:    newDispatch(),
		clients: make(map[*websocket.Conn]bool),
	}
	go b.run()
	return b
}

// Publish queues one chunk of port output for broadcast. Never blocks.
func (b *WSBridge) Publish(port string, data []byte) {
	b.disp.enqueue(Message{Port: port, Data: string(data), Time: time.Now()})
}

// Handler returns the WebSocket upgrade handler, for mounting on an
// existing mux.
func (b *WSBridge) Handler() http.Handler {
	return http.HandlerFunc(b.handleWebSocket)
}

// Serve listens on addr and serves the hub at /ws until Close. It
// returns once the listener stops; a closed server reports nil.
func (b *WSBridge) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", b.Handler())

	b.mu.Lock()
	b.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	server := b.server
	b.mu.Unlock()

	b.logger.Info("websocket bridge listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (b *WSBridge) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	b.mu.Lock()
	b.clients[conn] = true
	b.mu.Unlock()
	b.logger.Debug("websocket client connected", "remote", conn.RemoteAddr().String())

	// Reads only detect disconnects; clients do not send anything.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	b.dropClient(conn)
}

// run broadcasts queued messages to every connected client.
func (b *WSBridge) run() {
	for {
		select {
		case <-b.disp.stopCh:
			return
		case msg := <-b.disp.ch:
			b.broadcast(msg)
		}
	}
}

func (b *WSBridge) broadcast(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Warn("websocket message marshal failed", "port", msg.Port, "error", err)
		return
	}

	b.mu.Lock()
	var dead []*websocket.Conn
	for conn := range b.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			dead = append(dead, conn)
		}
	}
	for _, conn := range dead {
		delete(b.clients, conn)
		conn.Close()
	}
	b.mu.Unlock()
}

func (b *WSBridge) dropClient(conn *websocket.Conn) {
	b.mu.Lock()
	delete(b.clients, conn)
	b.mu.Unlock()
	conn.Close()
}

// ClientCount reports how many clients are connected.
func (b *WSBridge) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Dropped reports how many messages were discarded because the
// broadcast queue was full.
func (b *WSBridge) Dropped() uint64 {
	return b.disp.droppedCount()
}

// Close stops the broadcast loop, disconnects all clients and shuts
// down the listener if Serve was used.
func (b *WSBridge) Close() error {
	b.disp.stop()

	b.mu.Lock()
	for conn := range b.clients {
		conn.Close()
		delete(b.clients, conn)
	}
	server := b.server
	b.mu.Unlock()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	}
	return nil
}
