// Package push implements the realtime-push channel: a WebSocket hub that
// broadcasts change events to all connected UI subscribers, at most once,
// with no replay. New subscribers request a full-state resync instead of
// relying on buffered history.
package push

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/snapzone/snapzone/internal/metric"
)

const (
	sendBuffer   = 32
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// envelope is the wire frame sent to subscribers.
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
	At    int64  `json:"at"`
}

// clientRequest is the only inbound frame subscribers send.
type clientRequest struct {
	Action string `json:"action"` // "resync"
}

type subscriber struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub is the broadcast hub. SnapshotFunc supplies the full current state
// for resync requests.
type Hub struct {
	upgrader websocket.Upgrader
	snapshot func() any
	metrics  *metric.Metrics

	mu   sync.Mutex
	subs map[string]*subscriber
}

// NewHub creates a hub. snapshot may be nil if resync is not supported.
func NewHub(snapshot func() any, metrics *metric.Metrics) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The hub runs on a trusted LAN interface next to the
			// status API; the UI is served from the same origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		snapshot: snapshot,
		metrics:  metrics,
		subs:     make(map[string]*subscriber),
	}
}

// ServeHTTP upgrades the request and registers the subscriber.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("push: upgrade failed", "err", err)
		return
	}

	sub := &subscriber{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.subs[sub.id] = sub
	count := len(h.subs)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.PushSubscribers.Set(float64(count))
	}
	slog.Debug("push: subscriber connected", "id", sub.id, "total", count)

	go h.writeLoop(sub)
	h.readLoop(sub)
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[sub.id]; ok {
		delete(h.subs, sub.id)
		close(sub.send)
	}
	count := len(h.subs)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.PushSubscribers.Set(float64(count))
	}
	sub.conn.Close()
}

// readLoop consumes inbound frames until the connection drops. The only
// recognized request is an explicit full-state resync.
func (h *Hub) readLoop(sub *subscriber) {
	defer h.remove(sub)

	sub.conn.SetReadLimit(1024)
	_ = sub.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, data, err := sub.conn.ReadMessage()
		if err != nil {
			return
		}
		var req clientRequest
		if err := json.Unmarshal(data, &req); err != nil {
			slog.Debug("push: ignoring malformed frame", "id", sub.id, "err", err)
			continue
		}
		if req.Action == "resync" && h.snapshot != nil {
			h.sendTo(sub, envelope{Event: "resync", Data: h.snapshot(), At: time.Now().UnixMilli()})
		}
	}
}

func (h *Hub) writeLoop(sub *subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-sub.send:
			if !ok {
				_ = sub.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
				return
			}
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) sendTo(sub *subscriber, env envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		slog.Warn("push: marshal failed", "err", err)
		return
	}
	select {
	case sub.send <- data:
	default:
		// At-most-once: a slow subscriber loses the frame.
	}
}

// Broadcast sends the event to every connected subscriber, dropping the
// frame for subscribers whose buffers are full.
func (h *Hub) Broadcast(event string, payload any) {
	data, err := json.Marshal(envelope{Event: event, Data: payload, At: time.Now().UnixMilli()})
	if err != nil {
		slog.Warn("push: marshal failed", "event", event, "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		select {
		case sub.send <- data:
		default:
		}
	}
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects all subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()
	for _, s := range subs {
		h.remove(s)
	}
}
