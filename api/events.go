package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/DiademGraceArroz/blockchain-demo/utils"
)

// Event types pushed to websocket clients.
const (
	EventSnapshot          = "snapshot"
	EventBlockMined        = "block_mined"
	EventBlockTampered     = "block_tampered"
	EventBlockRemined      = "block_remined"
	EventDifficultyUpdated = "difficulty_updated"
	EventChainReset        = "chain_reset"
)

const wsWriteTimeout = 5 * time.Second

// upgrader is used to upgrade HTTP connections to WebSocket connections.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all connections for now
	},
}

// ChainEvent is one message on the event feed. Every event carries the
// snapshot taken right after the change so clients can re-render directly.
type ChainEvent struct {
	Type      string        `json:"type"`
	Index     int           `json:"index"` // Block concerned, -1 for chain-wide events
	Timestamp int64         `json:"timestamp"`
	Snapshot  ChainSnapshot `json:"snapshot"`
}

// EventHub tracks websocket subscribers and fans chain events out to them.
type EventHub struct {
	clients map[string]*websocket.Conn
	mutex   sync.Mutex // also serializes writes, a websocket.Conn allows one writer
}

// NewEventHub creates an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[string]*websocket.Conn)}
}

// ClientCount returns the number of connected subscribers.
func (h *EventHub) ClientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

func (h *EventHub) add(conn *websocket.Conn) string {
	id := uuid.New().String()
	h.mutex.Lock()
	h.clients[id] = conn
	h.mutex.Unlock()
	return id
}

func (h *EventHub) remove(id string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if conn, ok := h.clients[id]; ok {
		conn.Close()
		delete(h.clients, id)
	}
}

func (h *EventHub) writeLocked(id string, conn *websocket.Conn, message []byte) {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
		utils.LogError("[WS] Error writing to subscriber %s: %v", id, err)
		conn.Close()
		delete(h.clients, id)
	}
}

// Send delivers event to a single subscriber.
func (h *EventHub) Send(id string, event ChainEvent) {
	message, err := json.Marshal(event)
	if err != nil {
		utils.LogError("[WS] Failed to marshal %s event: %v", event.Type, err)
		return
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if conn, ok := h.clients[id]; ok {
		h.writeLocked(id, conn, message)
	}
}

// Broadcast sends event to all subscribers, dropping those that fail.
func (h *EventHub) Broadcast(event ChainEvent) {
	message, err := json.Marshal(event)
	if err != nil {
		utils.LogError("[WS] Failed to marshal %s event: %v", event.Type, err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	if len(h.clients) == 0 {
		return
	}
	for id, conn := range h.clients {
		h.writeLocked(id, conn, message)
	}
	utils.LogDebug("[WS] Broadcast %s event to %d subscribers", event.Type, len(h.clients))
}

// CloseAll disconnects every subscriber.
func (h *EventHub) CloseAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for id, conn := range h.clients {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		delete(h.clients, id)
	}
}

func (s *Server) newEvent(eventType string, index int) ChainEvent {
	return ChainEvent{
		Type:      eventType,
		Index:     index,
		Timestamp: time.Now().UnixMilli(),
		Snapshot:  s.snapshot(),
	}
}

// publish broadcasts a chain event when anyone is listening.
func (s *Server) publish(eventType string, index int) {
	if s.Events.ClientCount() == 0 {
		return
	}
	s.Events.Broadcast(s.newEvent(eventType, index))
}

// WebsocketHandler upgrades the connection, sends the current snapshot and
// keeps the subscriber registered until it disconnects.
func (s *Server) WebsocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		utils.LogError("[WS] Failed to upgrade connection for %s: %v", r.RemoteAddr, err)
		return
	}

	id := s.Events.add(conn)
	utils.LogInfo("[WS] Subscriber %s connected from %s", id, r.RemoteAddr)
	defer func() {
		s.Events.remove(id)
		utils.LogInfo("[WS] Subscriber %s disconnected", id)
	}()

	s.Events.Send(id, s.newEvent(EventSnapshot, -1))

	// Incoming messages are ignored; reading is what detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				utils.LogError("[WS] Error reading from subscriber %s: %v", id, err)
			}
			return
		}
	}
}
