package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

// PairKey identifies a conversation channel by its unordered user pair.
type PairKey struct {
	Low  int
	High int
}

// NewPairKey normalizes two user ids into a PairKey.
func NewPairKey(a, b int) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{Low: a, High: b}
}

type presenceEntry struct {
	displayName string
	connections int
}

// Hub maintains the active realtime channels: per-user rooms, per-pair
// conversation rooms, per-coach roster rooms, and the presence set. All
// registries support concurrent add/remove; delivery is best-effort and
// at-most-once, with dead connections evicted on write failure.
type Hub struct {
	userRooms     map[int]map[*websocket.Conn]ConnInfo
	convRooms     map[PairKey]map[*websocket.Conn]ConnInfo
	rosterRooms   map[int]map[*websocket.Conn]ConnInfo
	presenceConns map[*websocket.Conn]ConnInfo
	online        map[int]*presenceEntry
	mu            sync.RWMutex

	// writeMu serializes websocket writes across broadcasts. One writer at a
	// time keeps gorilla connections safe and publish order per channel FIFO.
	writeMu sync.Mutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		userRooms:     make(map[int]map[*websocket.Conn]ConnInfo),
		convRooms:     make(map[PairKey]map[*websocket.Conn]ConnInfo),
		rosterRooms:   make(map[int]map[*websocket.Conn]ConnInfo),
		presenceConns: make(map[*websocket.Conn]ConnInfo),
		online:        make(map[int]*presenceEntry),
	}
}

// Subscription is the handle returned by the Add* methods. Unsubscribe is
// idempotent and safe on an already-dropped connection.
type Subscription struct {
	once   sync.Once
	remove func()
}

// Unsubscribe releases the subscription's registry entry.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.remove)
}

// AddUserClient registers a connection on the user's channel and marks the
// user present.
func (h *Hub) AddUserClient(userID int, conn *websocket.Conn, info ConnInfo) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.userRooms[userID]; !ok {
		h.userRooms[userID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.userRooms[userID][conn] = info
	h.joinPresenceLocked(userID, info.DisplayName)

	return &Subscription{remove: func() { h.removeUserClient(userID, conn) }}
}

func (h *Hub) removeUserClient(userID int, conn *websocket.Conn) {
	h.mu.Lock()
	if conns, ok := h.userRooms[userID]; ok {
		if _, exists := conns[conn]; exists {
			delete(conns, conn)
			if len(conns) == 0 {
				delete(h.userRooms, userID)
			}
			h.leavePresenceLocked(userID)
		}
	}
	h.mu.Unlock()

	h.broadcastPresence()
}

// AddConversationClient registers a connection on the pair's conversation
// channel.
func (h *Hub) AddConversationClient(key PairKey, conn *websocket.Conn, info ConnInfo) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.convRooms[key]; !ok {
		h.convRooms[key] = make(map[*websocket.Conn]ConnInfo)
	}
	h.convRooms[key][conn] = info

	return &Subscription{remove: func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if conns, ok := h.convRooms[key]; ok {
			delete(conns, conn)
			if len(conns) == 0 {
				delete(h.convRooms, key)
			}
		}
	}}
}

// AddRosterClient registers a connection on a coach's roster channel.
func (h *Hub) AddRosterClient(coachID int, conn *websocket.Conn, info ConnInfo) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rosterRooms[coachID]; !ok {
		h.rosterRooms[coachID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.rosterRooms[coachID][conn] = info

	return &Subscription{remove: func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if conns, ok := h.rosterRooms[coachID]; ok {
			delete(conns, conn)
			if len(conns) == 0 {
				delete(h.rosterRooms, coachID)
			}
		}
	}}
}

// AddPresenceClient registers a presence subscriber. The current snapshot is
// delivered immediately so the subscriber does not need replay.
func (h *Hub) AddPresenceClient(conn *websocket.Conn, info ConnInfo) *Subscription {
	h.mu.Lock()
	h.presenceConns[conn] = info
	h.mu.Unlock()

	h.writeTo("presence", conn, models.PresenceEvent{Type: "presence", Online: h.OnlineUsers()})

	return &Subscription{remove: func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.presenceConns, conn)
	}}
}

// PublishMessage fans a newly appended message out to both user channels and
// the pair's conversation channel.
func (h *Hub) PublishMessage(msg models.Message) {
	event := models.MessageEvent{Type: "message", Message: &msg}

	h.broadcastUser(msg.SenderID, event)
	h.broadcastUser(msg.ReceiverID, event)
	h.broadcastConversation(NewPairKey(msg.SenderID, msg.ReceiverID), event)
}

// PublishClientAdded notifies a coach's roster subscribers of a new client.
func (h *Hub) PublishClientAdded(coachID int, client models.User) {
	h.mu.RLock()
	conns := connSnapshot(h.rosterRooms[coachID])
	h.mu.RUnlock()

	event := models.ClientAddedEvent{Type: "client_added", CoachID: coachID, Client: client}
	h.writeAll("roster", conns, event, func(conn *websocket.Conn) {
		h.mu.Lock()
		if set, ok := h.rosterRooms[coachID]; ok {
			delete(set, conn)
			if len(set) == 0 {
				delete(h.rosterRooms, coachID)
			}
		}
		h.mu.Unlock()
	})
}

// OnlineUsers returns the current presence snapshot.
func (h *Hub) OnlineUsers() []models.PresenceUser {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]models.PresenceUser, 0, len(h.online))
	for id, entry := range h.online {
		users = append(users, models.PresenceUser{UserID: id, DisplayName: entry.displayName})
	}
	return users
}

// IsOnline reports whether the user holds at least one open user-channel
// connection on this node.
func (h *Hub) IsOnline(userID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.online[userID]
	return ok
}

// BroadcastPresence pushes the current snapshot to all presence subscribers.
func (h *Hub) BroadcastPresence() {
	h.broadcastPresence()
}

func (h *Hub) broadcastUser(userID int, event models.MessageEvent) {
	h.mu.RLock()
	conns := connSnapshot(h.userRooms[userID])
	h.mu.RUnlock()

	// Eviction only prunes the registry here; the presence fanout happens
	// after writeAll releases the write lock.
	evicted := h.writeAll("user", conns, event, func(conn *websocket.Conn) {
		h.mu.Lock()
		if set, ok := h.userRooms[userID]; ok {
			if _, exists := set[conn]; exists {
				delete(set, conn)
				if len(set) == 0 {
					delete(h.userRooms, userID)
				}
				h.leavePresenceLocked(userID)
			}
		}
		h.mu.Unlock()
	})
	if evicted > 0 {
		h.broadcastPresence()
	}
}

func (h *Hub) broadcastConversation(key PairKey, event models.MessageEvent) {
	h.mu.RLock()
	conns := connSnapshot(h.convRooms[key])
	h.mu.RUnlock()

	h.writeAll("conversation", conns, event, func(conn *websocket.Conn) {
		h.mu.Lock()
		if set, ok := h.convRooms[key]; ok {
			delete(set, conn)
			if len(set) == 0 {
				delete(h.convRooms, key)
			}
		}
		h.mu.Unlock()
	})
}

func (h *Hub) broadcastPresence() {
	h.mu.RLock()
	conns := connSnapshot(h.presenceConns)
	h.mu.RUnlock()

	event := models.PresenceEvent{Type: "presence", Online: h.OnlineUsers()}
	h.writeAll("presence", conns, event, func(conn *websocket.Conn) {
		h.mu.Lock()
		delete(h.presenceConns, conn)
		h.mu.Unlock()
	})
}

// joinPresenceLocked and leavePresenceLocked maintain the refcounted online
// set; callers hold h.mu. Presence fanout happens outside the lock.
func (h *Hub) joinPresenceLocked(userID int, displayName string) {
	entry, ok := h.online[userID]
	if !ok {
		h.online[userID] = &presenceEntry{displayName: displayName, connections: 1}
		return
	}
	entry.connections++
}

func (h *Hub) leavePresenceLocked(userID int) {
	entry, ok := h.online[userID]
	if !ok {
		return
	}
	entry.connections--
	if entry.connections <= 0 {
		delete(h.online, userID)
	}
}

func (h *Hub) writeAll(kind string, conns map[*websocket.Conn]ConnInfo, event any, evict func(*websocket.Conn)) int {
	if len(conns) == 0 {
		return 0
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("hub marshal %s event: %v", kind, err)
		return 0
	}

	evicted := 0
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	for conn, info := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("websocket write error kind=%s user=%d: %v", kind, info.UserID, err)
			conn.Close()
			evict(conn)
			evicted++
			h.publishWSError(kind, info, err)
		}
	}
	return evicted
}

func (h *Hub) writeTo(kind string, conn *websocket.Conn, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("hub marshal %s event: %v", kind, err)
		return
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Printf("websocket write error kind=%s: %v", kind, err)
	}
}

func (h *Hub) publishWSError(kind string, info ConnInfo, err error) {
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), wsRoutingKey(kind), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   wsEventPayload(kind, "ws_error", info, time.Since(info.ConnectedAt), err.Error()),
	}, headers)
	observability.IncWSEvent(kind, "ws_error")
}

func connSnapshot(room map[*websocket.Conn]ConnInfo) map[*websocket.Conn]ConnInfo {
	if len(room) == 0 {
		return nil
	}
	snapshot := make(map[*websocket.Conn]ConnInfo, len(room))
	for conn, info := range room {
		snapshot[conn] = info
	}
	return snapshot
}

func wsRoutingKey(kind string) string {
	switch kind {
	case "conversation":
		return "ws_events.conversations"
	case "roster":
		return "ws_events.roster"
	case "presence":
		return "ws_events.presence"
	default:
		return "ws_events.messages"
	}
}

func wsEventPayload(kind, event string, info ConnInfo, duration time.Duration, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        kind,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": duration.Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
}
