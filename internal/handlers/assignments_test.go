package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/middleware"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/ws"
)

func setupAssignmentRouter(handler *AssignmentHandler, principal models.Principal) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		middleware.SetPrincipal(c, principal)
		c.Next()
	})
	r.POST("/assignments", handler.CreateAssignment)
	return r
}

func TestCreateAssignmentSuccess(t *testing.T) {
	users := new(mocks.UserDirectoryMock)
	handler := NewAssignmentHandler(users, ws.NewHub(), nil)
	router := setupAssignmentRouter(handler, models.Principal{UserID: 1, Role: models.RoleAdmin})

	users.On("GetUser", mock.Anything, 10).Return(models.User{ID: 10, Role: models.RoleClient, IsActive: true}, nil).Once()
	users.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2, Role: models.RoleCoach, IsActive: true}, nil).Once()
	users.On("CreateCoachAssignment", mock.Anything, 10, 2).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/assignments", bytes.NewBufferString(`{"client_id":10,"coach_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	users.AssertExpectations(t)
}

func TestCreateAssignmentNonAdminForbidden(t *testing.T) {
	users := new(mocks.UserDirectoryMock)
	handler := NewAssignmentHandler(users, ws.NewHub(), nil)
	router := setupAssignmentRouter(handler, models.Principal{UserID: 2, Role: models.RoleCoach})

	req := httptest.NewRequest(http.MethodPost, "/assignments", bytes.NewBufferString(`{"client_id":10,"coach_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	users.AssertNotCalled(t, "CreateCoachAssignment", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateAssignmentRoleMismatchRejected(t *testing.T) {
	users := new(mocks.UserDirectoryMock)
	handler := NewAssignmentHandler(users, ws.NewHub(), nil)
	router := setupAssignmentRouter(handler, models.Principal{UserID: 1, Role: models.RoleAdmin})

	// client_id points at a coach account
	users.On("GetUser", mock.Anything, 3).Return(models.User{ID: 3, Role: models.RoleCoach, IsActive: true}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/assignments", bytes.NewBufferString(`{"client_id":3,"coach_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	users.AssertNotCalled(t, "CreateCoachAssignment", mock.Anything, mock.Anything, mock.Anything)
}
