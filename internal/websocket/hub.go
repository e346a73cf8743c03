package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"zero-entropy-be/internal/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const (
	hubModule      = "WS_HUB"
	clusterChannel = "zero-entropy:session_events"
)

// Envelope is what every listener of a session receives.
type Envelope struct {
	Type      string      `json:"type"`
	SessionId string      `json:"session_id"`
	Data      interface{} `json:"data,omitempty"`
}

type clusterMessage struct {
	Origin    string          `json:"origin"`
	SessionId string          `json:"session_id"`
	Message   json.RawMessage `json:"message"`
}

// Hub fans session events out to every websocket listening on that session,
// on this instance and, through redis pub/sub, on the others.
type Hub struct {
	// Registered clients: session id -> connections
	clients map[string][]*Client

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex

	rdb    *redis.Client
	origin string
	logger logger.ILogger
}

func NewHub(rdb *redis.Client, origin string, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[string][]*Client),
		rdb:        rdb,
		origin:     origin,
		logger:     log,
	}
}

// Run serves registrations until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.SessionId] = append(h.clients[client.SessionId], client)
			h.mu.Unlock()
			h.logger.Info(hubModule, "Client registered", map[string]interface{}{"session_id": client.SessionId})

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.clients[client.SessionId]
	for i, c := range clients {
		if c == client {
			h.clients[client.SessionId] = append(clients[:i], clients[i+1:]...)
			close(client.Send)
			break
		}
	}
	if len(h.clients[client.SessionId]) == 0 {
		delete(h.clients, client.SessionId)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, clients := range h.clients {
		for _, c := range clients {
			close(c.Send)
		}
		delete(h.clients, id)
	}
}

// Listeners returns how many local connections follow sessionId.
func (h *Hub) Listeners(sessionId string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionId])
}

// NotifySession delivers an event to every listener of sessionId.
func (h *Hub) NotifySession(sessionId, eventType string, data interface{}) {
	msg, err := json.Marshal(Envelope{Type: eventType, SessionId: sessionId, Data: data})
	if err != nil {
		h.logger.Error(hubModule, "Failed to encode session event", map[string]interface{}{
			"session_id": sessionId,
			"error":      err.Error(),
		})
		return
	}

	h.deliver(sessionId, msg)

	if h.rdb != nil {
		payload, _ := json.Marshal(clusterMessage{Origin: h.origin, SessionId: sessionId, Message: msg})
		if err := h.rdb.Publish(context.Background(), clusterChannel, payload).Err(); err != nil {
			h.logger.Warn(hubModule, "Failed to publish session event to cluster", map[string]interface{}{
				"session_id": sessionId,
				"error":      err.Error(),
			})
		}
	}
}

// SendTo delivers msg to one client only.
func (h *Hub) SendTo(client *Client, eventType string, data interface{}) {
	msg, err := json.Marshal(Envelope{Type: eventType, SessionId: client.SessionId, Data: data})
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients[client.SessionId] {
		if c == client {
			h.push(client, msg)
			return
		}
	}
}

func (h *Hub) deliver(sessionId string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients[sessionId] {
		h.push(client, msg)
	}
}

// push must be called with mu held for reading. A full buffer drops the
// client; Send is only ever closed by remove.
func (h *Hub) push(client *Client, msg []byte) {
	select {
	case client.Send <- msg:
	default:
		h.logger.Warn(hubModule, "Client send buffer full, dropping client", map[string]interface{}{
			"session_id": client.SessionId,
		})
		go h.leave(client)
	}
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	h.relay(ctx, pubsub.Channel())
}

// relay delivers cluster messages from other instances until ctx is done.
// The redis channel only closes with the subscription, so ctx is the exit.
func (h *Hub) relay(ctx context.Context, messages <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var payload clusterMessage
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				h.logger.Warn(hubModule, "Malformed cluster message", map[string]interface{}{"error": err.Error()})
				continue
			}
			if payload.Origin == h.origin {
				continue
			}
			h.deliver(payload.SessionId, payload.Message)
		}
	}
}
