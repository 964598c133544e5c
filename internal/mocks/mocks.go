package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

type UserDirectoryMock struct {
	mock.Mock
}

func (m *UserDirectoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserDirectoryMock) GetUsers(ctx context.Context, userIDs []int) ([]models.User, error) {
	args := m.Called(ctx, userIDs)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserDirectoryMock) GetCoachAssignment(ctx context.Context, clientID int) (int, bool, error) {
	args := m.Called(ctx, clientID)
	return args.Int(0), args.Bool(1), args.Error(2)
}

func (m *UserDirectoryMock) ListClientsOf(ctx context.Context, coachID int) ([]models.User, error) {
	args := m.Called(ctx, coachID)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserDirectoryMock) ListActiveUsersByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	args := m.Called(ctx, role)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserDirectoryMock) CreateCoachAssignment(ctx context.Context, clientID, coachID int) error {
	args := m.Called(ctx, clientID, coachID)
	return args.Error(0)
}

type MessageStoreMock struct {
	mock.Mock
}

func (m *MessageStoreMock) Append(ctx context.Context, senderID, receiverID int, content string) (models.Message, error) {
	args := m.Called(ctx, senderID, receiverID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageStoreMock) History(ctx context.Context, userA, userB, limit, offset int) ([]models.Message, error) {
	args := m.Called(ctx, userA, userB, limit, offset)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageStoreMock) MarkRead(ctx context.Context, receiverID, senderID int) (int, error) {
	args := m.Called(ctx, receiverID, senderID)
	return args.Int(0), args.Error(1)
}

func (m *MessageStoreMock) LastMessagePerContact(ctx context.Context, userID int, contactIDs []int) (map[int]models.Message, error) {
	args := m.Called(ctx, userID, contactIDs)
	var result map[int]models.Message
	if val := args.Get(0); val != nil {
		result = val.(map[int]models.Message)
	}
	return result, args.Error(1)
}

func (m *MessageStoreMock) UnreadCounts(ctx context.Context, userID int, contactIDs []int) (map[int]int, error) {
	args := m.Called(ctx, userID, contactIDs)
	var result map[int]int
	if val := args.Get(0); val != nil {
		result = val.(map[int]int)
	}
	return result, args.Error(1)
}

var _ repositories.UserDirectory = (*UserDirectoryMock)(nil)
var _ repositories.MessageStore = (*MessageStoreMock)(nil)
