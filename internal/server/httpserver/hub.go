package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	writeTimeout     = 5 * time.Second
	broadcastBacklog = 64
)

// Hub fans JSON messages out to websocket clients. Clients only receive;
// anything they send is discarded.
type Hub struct {
	log            *slog.Logger
	originPatterns []string

	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}

	broadcast chan []byte
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithOriginPatterns allows cross-origin clients matching the patterns.
func WithOriginPatterns(patterns ...string) HubOption {
	return func(h *Hub) { h.originPatterns = patterns }
}

// NewHub starts a hub. Call Close to stop it.
func NewHub(log *slog.Logger, opts ...HubOption) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		log:       log,
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan []byte, broadcastBacklog),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.wg.Add(1)
	go h.loop()
	return h
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues v for every connected client. It never blocks: when
// the backlog is full the message is dropped.
func (h *Hub) Broadcast(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-h.done:
		return nil
	default:
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("broadcast backlog full, dropping message", "bytes", len(data))
	}
	return nil
}

// ServeHTTP upgrades the request and holds the connection until the
// client goes away or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.log.Warn("websocket accept failed", "error", err)
		return
	}

	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	default:
	}
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("watch client connected", "remote", r.RemoteAddr, "clients", n)

	h.readLoop(r.Context(), conn)
}

func (h *Hub) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer h.remove(conn, websocket.StatusNormalClosure)
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn, code websocket.StatusCode) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		_ = conn.Close(code, "")
		h.log.Debug("watch client disconnected", "clients", n)
	}
}

func (h *Hub) loop() {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			return
		case data := <-h.broadcast:
			h.send(data)
		}
	}
}

func (h *Hub) send(data []byte) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			h.log.Debug("websocket write failed", "error", err)
			h.remove(conn, websocket.StatusGoingAway)
		}
	}
}

// Close disconnects every client and stops the hub. Messages still
// queued are discarded.
func (h *Hub) Close() error {
	h.closeOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		h.mu.Lock()
		conns := h.clients
		h.clients = make(map[*websocket.Conn]struct{})
		h.mu.Unlock()
		for conn := range conns {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
	})
	return nil
}
