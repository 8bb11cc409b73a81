package ws

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// client serializes writes; gorilla allows one concurrent writer per connection.
type client struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (c *client) write(b []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Hub keeps WebSocket connections subscribed to user ids.
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger
	token    string
	mu       sync.RWMutex
	// userID -> set of clients
	subs map[string]map[*client]struct{}
}

func NewHub(allowOrigin func(r *http.Request) bool, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		log:      log,
		subs:     make(map[string]map[*client]struct{}),
	}
}

// RequireToken makes HandleWS reject connections that do not present token in the
// X-WS-Token header or the token query parameter. An empty token leaves the socket open
// to any origin the upgrader accepts.
func (h *Hub) RequireToken(token string) *Hub {
	h.token = token
	return h
}

func (h *Hub) authorized(r *http.Request) bool {
	if h.token == "" {
		return true
	}
	got := r.Header.Get("X-WS-Token")
	if got == "" {
		got = r.URL.Query().Get("token")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

// HandleWS serves one connection until it closes.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	c := &client{conn: conn}

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			if msg.UserID == "" {
				continue
			}
			h.mu.Lock()
			if _, ok := h.subs[msg.UserID]; !ok {
				h.subs[msg.UserID] = make(map[*client]struct{})
			}
			h.subs[msg.UserID][c] = struct{}{}
			h.mu.Unlock()
			_ = c.writeJSON(map[string]string{"type": "subscribed", "userId": msg.UserID})
		case "unsubscribe":
			h.remove(msg.UserID, c)
		case "ping":
			_ = c.writeJSON(map[string]string{"type": "pong"})
		}
	}

	h.mu.Lock()
	for id, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, id)
		}
	}
	h.mu.Unlock()
}

func (c *client) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(b)
}

func (h *Hub) remove(userID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, userID)
		}
	}
}

// Broadcast sends u to every connection subscribed to its user and returns how many
// connections were written.
func (h *Hub) Broadcast(u Update) int {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.subs[u.UserID]))
	for c := range h.subs[u.UserID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	if len(clients) == 0 {
		return 0
	}

	b, err := json.Marshal(u)
	if err != nil {
		h.log.Warn("marshal ws update failed", zap.Error(err))
		return 0
	}
	sent := 0
	for _, c := range clients {
		if err := c.write(b); err != nil {
			h.log.Debug("ws write failed", zap.String("user_id", u.UserID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

// Subscribers returns how many connections follow userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
