package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/contacts"
	"messaging-service/internal/directory"
	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

// MessageHandler serves the direct-messaging endpoints: contact list,
// paginated history, and send.
type MessageHandler struct {
	resolver   *directory.Resolver
	aggregator *contacts.Aggregator
	messages   repositories.MessageStore
	users      repositories.UserDirectory
	hub        *ws.Hub
	audit      *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(
	resolver *directory.Resolver,
	aggregator *contacts.Aggregator,
	messages repositories.MessageStore,
	users repositories.UserDirectory,
	hub *ws.Hub,
	audit *telemetry.AuditEmitter,
) *MessageHandler {
	return &MessageHandler{
		resolver:   resolver,
		aggregator: aggregator,
		messages:   messages,
		users:      users,
		hub:        hub,
		audit:      audit,
	}
}

// ListContacts returns the principal's contact summaries, sorted by recency.
func (h *MessageHandler) ListContacts(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	summaries, err := h.aggregator.ContactSummaries(c.Request.Context(), principal)
	if err != nil {
		if errors.Is(err, directory.ErrUnknownRole) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not permitted"})
			return
		}
		log.Printf("list contacts failed principal=%d: %v", principal.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load contacts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"contacts": summaries})
}

// GetHistory returns a page of messages with one counterpart, newest first,
// and marks the counterpart's messages to the principal as read.
func (h *MessageHandler) GetHistory(c *gin.Context) {
	counterpartyID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	if !h.authorizePair(c, principal, counterpartyID) {
		return
	}

	// Flip unread first so the returned page already reflects the read state.
	if _, err := h.messages.MarkRead(c.Request.Context(), principal.UserID, counterpartyID); err != nil {
		log.Printf("mark read failed principal=%d counterpart=%d: %v", principal.UserID, counterpartyID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	msgs, err := h.messages.History(c.Request.Context(), principal.UserID, counterpartyID, limit, offset)
	if err != nil {
		log.Printf("history failed principal=%d counterpart=%d: %v", principal.UserID, counterpartyID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// SendMessage validates, authorizes, appends, and broadcasts one message.
// Each step short-circuits the rest: nothing unpersisted is published, and
// nothing unauthorized is persisted.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	var req struct {
		ReceiverID int    `json:"receiver_id" binding:"required"`
		Content    string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.authorizePair(c, principal, req.ReceiverID) {
		return
	}

	msg, err := h.messages.Append(c.Request.Context(), principal.UserID, req.ReceiverID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrEmptyContent):
			c.JSON(http.StatusBadRequest, gin.H{"error": "content is empty"})
		case errors.Is(err, repositories.ErrSelfMessage):
			c.JSON(http.StatusForbidden, gin.H{"error": "not permitted"})
		default:
			log.Printf("append failed sender=%d receiver=%d: %v", principal.UserID, req.ReceiverID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		}
		return
	}

	observability.IncMessageSent()
	h.hub.PublishMessage(msg)
	h.audit.Emit(c.Request.Context(), "INFO",
		fmt.Sprintf("message sent receiver=%d", req.ReceiverID),
		requestIDFromContext(c), &principal.UserID)

	c.JSON(http.StatusCreated, msg)
}

// authorizePair enforces the directory rule table for one counterpart and
// writes the error response itself when the pair is rejected.
func (h *MessageHandler) authorizePair(c *gin.Context, principal models.Principal, counterpartyID int) bool {
	if counterpartyID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return false
	}

	if _, err := h.users.GetUser(c.Request.Context(), counterpartyID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return false
		}
		log.Printf("lookup counterpart failed principal=%d counterpart=%d: %v", principal.UserID, counterpartyID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify contact"})
		return false
	}

	allowed, err := h.resolver.CanMessage(c.Request.Context(), principal, counterpartyID)
	if err != nil {
		if errors.Is(err, directory.ErrUnknownRole) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not permitted"})
			return false
		}
		log.Printf("authorize failed principal=%d counterpart=%d: %v", principal.UserID, counterpartyID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify contact"})
		return false
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "not permitted"})
		return false
	}
	return true
}
