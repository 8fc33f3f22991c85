// Package ws pushes item transitions and portfolio totals to
// subscribed UI clients over WebSocket. Rendering is the client's
// concern; this hub only broadcasts JSON events.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"loanperf/internal/domain"
)

const (
	writeWait     = 5 * time.Second
	clientBacklog = 32
)

type event struct {
	Type   string                    `json:"type"`
	ID     string                    `json:"id,omitempty"`
	Reason string                    `json:"reason,omitempty"`
	Result *domain.PerformanceResult `json:"result,omitempty"`
	Totals *domain.PortfolioTotals   `json:"totals,omitempty"`
	Ts     int64                     `json:"ts_ms"`
}

type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the extension UI connects from another origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// ServeHTTP upgrades the connection and keeps it subscribed until the
// client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	send := make(chan []byte, clientBacklog)
	h.mu.Lock()
	h.clients[conn] = send
	n := len(h.clients)
	h.mu.Unlock()
	log.Info().Str("remote", conn.RemoteAddr().String()).Int("clients", n).Msg("ws client subscribed")

	go h.writeLoop(conn, send)
	go h.readLoop(conn)
}

func (h *Hub) writeLoop(conn *websocket.Conn, send <-chan []byte) {
	for msg := range send {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.drop(conn)
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage, nil)
	_ = conn.Close()
}

// readLoop discards inbound frames; its job is noticing the peer
// closing the connection.
func (h *Hub) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.drop(conn)
			return
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	send, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
	}
	h.mu.Unlock()
	if ok {
		close(send)
	}
	_ = conn.Close()
}

func (h *Hub) broadcast(ev event) {
	ev.Ts = time.Now().UnixMilli()
	msg, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.Lock()
	var slow []*websocket.Conn
	for conn, send := range h.clients {
		select {
		case send <- msg:
		default:
			slow = append(slow, conn)
		}
	}
	h.mu.Unlock()

	// a client that cannot keep up is dropped, not waited for
	for _, conn := range slow {
		log.Warn().Str("remote", conn.RemoteAddr().String()).Msg("dropping slow ws client")
		h.drop(conn)
	}
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()
	for _, conn := range conns {
		h.drop(conn)
	}
}

func (h *Hub) PublishLoading(id string) {
	h.broadcast(event{Type: "loading", ID: id})
}

func (h *Hub) PublishResult(id string, res domain.PerformanceResult) {
	h.broadcast(event{Type: "result", ID: id, Result: &res})
}

func (h *Hub) PublishError(id string, reason string) {
	h.broadcast(event{Type: "error", ID: id, Reason: reason})
}

func (h *Hub) PublishThrottled(id string) {
	h.broadcast(event{Type: "throttled", ID: id})
}

func (h *Hub) PublishPortfolioTotals(t domain.PortfolioTotals) {
	h.broadcast(event{Type: "totals", Totals: &t})
}
