package ws

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/directory"
	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

const (
	// pongWait is how long a connection may go silent before the server
	// reclaims it. Pings go out at pingPeriod so healthy clients never hit it.
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// ChannelHandler upgrades and registers websocket subscriptions for the user,
// conversation, roster, and presence channels.
type ChannelHandler struct {
	hub      *Hub
	resolver *directory.Resolver
	secret   string
}

// NewChannelHandler constructs a ChannelHandler.
func NewChannelHandler(hub *Hub, resolver *directory.Resolver, secret string) *ChannelHandler {
	return &ChannelHandler{hub: hub, resolver: resolver, secret: secret}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleUser subscribes the caller to their own message channel and joins the
// presence set for the lifetime of the connection.
func (h *ChannelHandler) HandleUser(c *gin.Context) {
	principal, ok := h.authenticate(c)
	if !ok {
		return
	}

	h.serve(c, "user", principal, func(conn *websocket.Conn, info ConnInfo) *Subscription {
		sub := h.hub.AddUserClient(principal.UserID, conn, info)
		h.hub.BroadcastPresence()
		return sub
	})
}

// HandleConversation subscribes the caller to the conversation channel shared
// with one counterpart. The pair is authorized the same way a send would be.
func (h *ChannelHandler) HandleConversation(c *gin.Context) {
	counterpartyID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	principal, ok := h.authenticate(c)
	if !ok {
		return
	}

	allowed, err := h.resolver.CanMessage(c.Request.Context(), principal, counterpartyID)
	if err != nil || !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "not permitted"})
		return
	}

	key := NewPairKey(principal.UserID, counterpartyID)
	h.serve(c, "conversation", principal, func(conn *websocket.Conn, info ConnInfo) *Subscription {
		return h.hub.AddConversationClient(key, conn, info)
	})
}

// HandleRoster subscribes a coach to their roster channel.
func (h *ChannelHandler) HandleRoster(c *gin.Context) {
	principal, ok := h.authenticate(c)
	if !ok {
		return
	}
	if principal.Role != models.RoleCoach {
		c.JSON(http.StatusForbidden, gin.H{"error": "not permitted"})
		return
	}

	h.serve(c, "roster", principal, func(conn *websocket.Conn, info ConnInfo) *Subscription {
		return h.hub.AddRosterClient(principal.UserID, conn, info)
	})
}

// HandlePresence subscribes the caller to presence snapshots.
func (h *ChannelHandler) HandlePresence(c *gin.Context) {
	principal, ok := h.authenticate(c)
	if !ok {
		return
	}

	h.serve(c, "presence", principal, func(conn *websocket.Conn, info ConnInfo) *Subscription {
		return h.hub.AddPresenceClient(conn, info)
	})
}

// authenticate accepts the bearer header or a token query parameter, since
// browser websocket clients cannot set headers.
func (h *ChannelHandler) authenticate(c *gin.Context) (models.Principal, bool) {
	raw := c.Query("token")
	if raw == "" {
		header := c.GetHeader("Authorization")
		if len(header) > 7 {
			raw = header[7:]
		}
	}

	principal, err := middleware.VerifyToken(h.secret, raw)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return models.Principal{}, false
	}
	return principal, true
}

func (h *ChannelHandler) serve(c *gin.Context, kind string, principal models.Principal, subscribe func(*websocket.Conn, ConnInfo) *Subscription) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      principal.UserID,
		DisplayName: principal.DisplayName,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	sub := subscribe(conn, info)

	observability.IncWSActive(kind)
	observability.IncWSEvent(kind, "ws_connect")
	h.publishLifecycleEvent(ctx, kind, "ws_connect", info, "")

	done := make(chan struct{})
	go h.readLoop(ctx, kind, conn, sub, info, done)
	go h.pingLoop(conn, done)
}

// readLoop drains inbound frames to notice disconnects and enforces the pong
// deadline so crashed clients are reclaimed without an explicit close.
func (h *ChannelHandler) readLoop(ctx context.Context, kind string, conn *websocket.Conn, sub *Subscription, info ConnInfo, done chan struct{}) {
	var closeReason string
	defer func() {
		close(done)
		sub.Unsubscribe()
		conn.Close()
		observability.DecWSActive(kind)
		observability.IncWSEvent(kind, "ws_disconnect")
		h.publishLifecycleEvent(ctx, kind, "ws_disconnect", info, closeReason)
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent(kind, "ws_error")
				h.publishLifecycleEvent(ctx, kind, "ws_error", info, closeReason)
			}
			return
		}
	}
}

// pingLoop sends control pings until the read loop exits. WriteControl is
// safe alongside the hub's data writes.
func (h *ChannelHandler) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

func (h *ChannelHandler) publishLifecycleEvent(ctx context.Context, kind, event string, info ConnInfo, reason string) {
	duration := time.Duration(0)
	if event != "ws_connect" {
		duration = time.Since(info.ConnectedAt)
	}
	_ = observability.PublishEvent(ctx, wsRoutingKey(kind), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   wsEventPayload(kind, event, info, duration, reason),
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
