package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

// AssignmentHandler serves client onboarding: admins link a client to a coach,
// which feeds the coach's roster channel.
type AssignmentHandler struct {
	users repositories.UserDirectory
	hub   *ws.Hub
	audit *telemetry.AuditEmitter
}

// NewAssignmentHandler builds an AssignmentHandler.
func NewAssignmentHandler(users repositories.UserDirectory, hub *ws.Hub, audit *telemetry.AuditEmitter) *AssignmentHandler {
	return &AssignmentHandler{users: users, hub: hub, audit: audit}
}

// CreateAssignment assigns a client to a coach and notifies the coach's
// roster subscribers.
func (h *AssignmentHandler) CreateAssignment(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	if principal.Role != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "not permitted"})
		return
	}

	var req struct {
		ClientID int `json:"client_id" binding:"required"`
		CoachID  int `json:"coach_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client, err := h.lookupActive(c, req.ClientID, models.RoleClient)
	if err != nil {
		return
	}
	if _, err := h.lookupActive(c, req.CoachID, models.RoleCoach); err != nil {
		return
	}

	if err := h.users.CreateCoachAssignment(c.Request.Context(), req.ClientID, req.CoachID); err != nil {
		log.Printf("create assignment failed client=%d coach=%d: %v", req.ClientID, req.CoachID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create assignment"})
		return
	}

	h.hub.PublishClientAdded(req.CoachID, client)
	h.audit.Emit(c.Request.Context(), "INFO",
		fmt.Sprintf("client %d assigned to coach %d", req.ClientID, req.CoachID),
		requestIDFromContext(c), &principal.UserID)

	c.JSON(http.StatusCreated, gin.H{"client_id": req.ClientID, "coach_id": req.CoachID})
}

// lookupActive fetches a user and requires the given role and active flag,
// writing the error response on failure.
func (h *AssignmentHandler) lookupActive(c *gin.Context, userID int, role models.Role) (models.User, error) {
	user, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return models.User{}, err
		}
		log.Printf("lookup user failed id=%d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return models.User{}, err
	}
	if user.Role != role || !user.IsActive {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("user %d is not an active %s", userID, role)})
		return models.User{}, errors.New("role mismatch")
	}
	return user, nil
}
