package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/contacts"
	"messaging-service/internal/directory"
	"messaging-service/internal/middleware"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/ws"
)

func setupMessageRouter(handler *MessageHandler, principal models.Principal) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		middleware.SetPrincipal(c, principal)
		c.Next()
	})
	r.GET("/contacts", handler.ListContacts)
	r.GET("/contacts/:user_id/messages", handler.GetHistory)
	r.POST("/messages", handler.SendMessage)
	return r
}

func newMessageHandler(users *mocks.UserDirectoryMock, store *mocks.MessageStoreMock) *MessageHandler {
	resolver := directory.NewResolver(users)
	aggregator := contacts.NewAggregator(resolver, store)
	return NewMessageHandler(resolver, aggregator, store, users, ws.NewHub(), nil)
}

func expectClientDirectory(users *mocks.UserDirectoryMock, clientID, coachID int) {
	users.On("GetCoachAssignment", mock.Anything, clientID).Return(coachID, true, nil)
	users.On("GetUser", mock.Anything, coachID).Return(models.User{ID: coachID, Role: models.RoleCoach, IsActive: true}, nil)
}

func TestSendMessageSuccess(t *testing.T) {
	users := new(mocks.UserDirectoryMock)
	store := new(mocks.MessageStoreMock)
	handler := newMessageHandler(users, store)
	router := setupMessageRouter(handler, models.Principal{UserID: 10, Role: models.RoleClient})

	expectClientDirectory(users, 10, 2)
	store.On("Append", mock.Anything, 10, 2, "Hello").
		Return(models.Message{ID: 1, SenderID: 10, ReceiverID: 2, Content: "Hello"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(`{"receiver_id":2,"content":"Hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var msg models.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&msg))
	assert.Equal(t, "Hello", msg.Content)
	store.AssertExpectations(t)
}

func TestSendMessageToNonContactForbidden(t *testing.T) {
	users := new(mocks.UserDirectoryMock)
	store := new(mocks.MessageStoreMock)
	handler := newMessageHandler(users, store)
	router := setupMessageRouter(handler, models.Principal{UserID: 10, Role: models.RoleClient})

	// Receiver 11 exists but is another client, not the assigned coach.
	users.On("GetUser", mock.Anything, 11).Return(models.User{ID: 11, Role: models.RoleClient, IsActive: true}, nil)
	expectClientDirectory(users, 10, 2)

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(`{"receiver_id":11,"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	store.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageUnknownReceiverNotFound(t *testing.T) {
	users := new(mocks.UserDirectoryMock)
	store := new(mocks.MessageStoreMock)
	handler := newMessageHandler(users, store)
	router := setupMessageRouter(handler, models.Principal{UserID: 10, Role: models.RoleClient})

	users.On("GetUser", mock.Anything, 99).Return(models.User{}, repositories.ErrUserNotFound)

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(`{"receiver_id":99,"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendMessageWhitespaceContentRejected(t *testing.T) {
	users := new(mocks.UserDirectoryMock)
	store := new(mocks.MessageStoreMock)
	handler := newMessageHandler(users, store)
	router := setupMessageRouter(handler, models.Principal{UserID: 10, Role: models.RoleClient})

	expectClientDirectory(users, 10, 2)
	store.On("Append", mock.Anything, 10, 2, "   ").Return(models.Message{}, repositories.ErrEmptyContent).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(`{"receiver_id":2,"content":"   "}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	store.AssertExpectations(t)
}

func TestSendMessageMissingBody(t *testing.T) {
	handler := newMessageHandler(new(mocks.UserDirectoryMock), new(mocks.MessageStoreMock))
	router := setupMessageRouter(handler, models.Principal{UserID: 10, Role: models.RoleClient})

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetHistoryMarksReadBeforeFetch(t *testing.T) {
	users := new(mocks.UserDirectoryMock)
	store := new(mocks.MessageStoreMock)
	handler := newMessageHandler(users, store)
	router := setupMessageRouter(handler, models.Principal{UserID: 2, Role: models.RoleCoach})

	users.On("GetUser", mock.Anything, 10).Return(models.User{ID: 10, Role: models.RoleClient, IsActive: true}, nil)
	users.On("ListClientsOf", mock.Anything, 2).Return([]models.User{{ID: 10, Role: models.RoleClient, IsActive: true}}, nil)
	users.On("ListActiveUsersByRole", mock.Anything, models.RoleAdmin).Return([]models.User{}, nil)

	store.On("MarkRead", mock.Anything, 2, 10).Return(1, nil).Once()
	store.On("History", mock.Anything, 2, 10, 15, 0).
		Return([]models.Message{{ID: 1, SenderID: 10, ReceiverID: 2, Content: "Hello", IsRead: true}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/contacts/10/messages?limit=15&offset=0", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	store.AssertExpectations(t)
}

func TestGetHistoryOutsideDirectoryForbidden(t *testing.T) {
	users := new(mocks.UserDirectoryMock)
	store := new(mocks.MessageStoreMock)
	handler := newMessageHandler(users, store)
	router := setupMessageRouter(handler, models.Principal{UserID: 2, Role: models.RoleCoach})

	users.On("GetUser", mock.Anything, 42).Return(models.User{ID: 42, Role: models.RoleClient, IsActive: true}, nil)
	users.On("ListClientsOf", mock.Anything, 2).Return([]models.User{}, nil)
	users.On("ListActiveUsersByRole", mock.Anything, models.RoleAdmin).Return([]models.User{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/contacts/42/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	store.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetHistoryInvalidID(t *testing.T) {
	handler := newMessageHandler(new(mocks.UserDirectoryMock), new(mocks.MessageStoreMock))
	router := setupMessageRouter(handler, models.Principal{UserID: 2, Role: models.RoleCoach})

	req := httptest.NewRequest(http.MethodGet, "/contacts/abc/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListContactsSuccess(t *testing.T) {
	users := new(mocks.UserDirectoryMock)
	store := new(mocks.MessageStoreMock)
	handler := newMessageHandler(users, store)
	router := setupMessageRouter(handler, models.Principal{UserID: 1, Role: models.RoleAdmin})

	users.On("ListActiveUsersByRole", mock.Anything, models.RoleCoach).Return([]models.User{
		{ID: 2, DisplayName: "Coach K", Role: models.RoleCoach, IsActive: true},
	}, nil)
	store.On("LastMessagePerContact", mock.Anything, 1, []int{2}).Return(map[int]models.Message{}, nil)
	store.On("UnreadCounts", mock.Anything, 1, []int{2}).Return(map[int]int{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/contacts", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string][]models.ContactSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp["contacts"], 1)
	assert.Equal(t, "Coach K", resp["contacts"][0].Contact.DisplayName)
}

func TestListContactsUnknownRoleForbidden(t *testing.T) {
	handler := newMessageHandler(new(mocks.UserDirectoryMock), new(mocks.MessageStoreMock))
	router := setupMessageRouter(handler, models.Principal{UserID: 1, Role: "OWNER"})

	req := httptest.NewRequest(http.MethodGet, "/contacts", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}
