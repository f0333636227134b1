// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	applog "spectrum/internal/log"
)

const (
	broadcastQueue = 256
	writeWait      = time.Second
)

// WebSocketTransport broadcasts every frame as a JSON text message to all
// connected clients.
//
// Thread Safety:
//   - Send only enqueues; a single goroutine marshals and writes
//   - A full queue drops the frame instead of blocking the engine
//   - Slow or broken clients are disconnected after a write timeout
type WebSocketTransport struct {
	addr string
	path string

	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]struct{}
	clientsMu sync.Mutex
	closed    bool // Guarded by clientsMu.

	broadcast chan any
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	dropped   atomic.Uint64

	server   *http.Server
	listener net.Listener
}

// NewWebSocketTransport creates a transport serving path on addr. The
// broadcaster runs immediately; call Start to listen, or mount Handler on
// an existing server.
func NewWebSocketTransport(addr, path string) *WebSocketTransport {
	if path == "" {
		path = "/ws"
	}
	wst := &WebSocketTransport{
		addr: addr,
		path: path,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Visualizers are served from anywhere
			},
		},
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan any, broadcastQueue),
		done:      make(chan struct{}),
	}

	wst.wg.Add(1)
	go wst.handleBroadcasts()
	return wst
}

// Handler returns a mux serving the WebSocket endpoint.
func (wst *WebSocketTransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(wst.path, wst.handleWebSocket)
	return mux
}

// Start listens on the configured address and serves in the background.
// Listen errors are returned; later server errors are logged.
func (wst *WebSocketTransport) Start() error {
	ln, err := net.Listen("tcp", wst.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", wst.addr, err)
	}
	wst.listener = ln
	wst.server = &http.Server{
		Handler:           wst.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		applog.Infof("websocket: serving frames on ws://%s%s", ln.Addr(), wst.path)
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Errorf("websocket: server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (wst *WebSocketTransport) Addr() net.Addr {
	if wst.listener == nil {
		return nil
	}
	return wst.listener.Addr()
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("websocket: upgrade error: %v", err)
		return
	}

	if !wst.addClient(conn) {
		conn.Close()
		return
	}

	// Clients never send; reading only detects the close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.removeClient(conn)
				return
			}
		}
	}()
}

// addClient registers conn unless the transport is closed.
func (wst *WebSocketTransport) addClient(conn *websocket.Conn) bool {
	wst.clientsMu.Lock()
	if wst.closed {
		wst.clientsMu.Unlock()
		return false
	}
	wst.clients[conn] = struct{}{}
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	applog.Infof("websocket: client %s connected, total: %d", conn.RemoteAddr(), total)
	return true
}

func (wst *WebSocketTransport) removeClient(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()

	conn.Close()
	if ok {
		applog.Infof("websocket: client %s disconnected, total: %d", conn.RemoteAddr(), total)
	}
}

// ClientCount returns the number of connected clients.
func (wst *WebSocketTransport) ClientCount() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// Dropped counts frames discarded because the queue was full.
func (wst *WebSocketTransport) Dropped() uint64 { return wst.dropped.Load() }

// handleBroadcasts marshals each queued frame once and writes it to every
// client.
func (wst *WebSocketTransport) handleBroadcasts() {
	defer wst.wg.Done()
	for {
		select {
		case <-wst.done:
			return
		case data := <-wst.broadcast:
			msg, err := json.Marshal(data)
			if err != nil {
				applog.Errorf("websocket: cannot encode %T: %v", data, err)
				continue
			}
			wst.writeAll(msg)
		}
	}
}

func (wst *WebSocketTransport) writeAll(msg []byte) {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	for client := range wst.clients {
		client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
			applog.Warnf("websocket: dropping client %s: %v", client.RemoteAddr(), err)
			client.Close()
			delete(wst.clients, client)
		}
	}
}

// Send queues data for broadcast. It never blocks; when the queue is full
// the frame is dropped.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case <-wst.done:
		return ErrClosed
	default:
	}

	select {
	case wst.broadcast <- data:
	default:
		wst.dropped.Add(1)
	}
	return nil
}

// Close stops the broadcaster, disconnects every client and shuts down the
// server. It is idempotent.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		close(wst.done)
		wst.wg.Wait()

		wst.clientsMu.Lock()
		wst.closed = true
		for client := range wst.clients {
			client.Close()
		}
		wst.clients = make(map[*websocket.Conn]struct{})
		wst.clientsMu.Unlock()

		if wst.server != nil {
			err = wst.server.Close()
		}
		applog.Debugf("websocket: closed")
	})
	return err
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)
