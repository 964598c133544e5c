package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
)

func TestClientContactsIsAssignedCoach(t *testing.T) {
	users := new(mocks.UserDirectoryMock)
	resolver := NewResolver(users)

	users.On("GetCoachAssignment", mock.Anything, 10).Return(2, true, nil)
	users.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2, Role: models.RoleCoach, IsActive: true}, nil)

	contacts, err := resolver.ContactsFor(context.Background(), models.Principal{UserID: 10, Role: models.RoleClient})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, 2, contacts[0].ID)
}

func TestClientContactsEmptyWithoutAssignment(t *testing.T) {
	users := new(mocks.UserDirectoryMock)
	resolver := NewResolver(users)

	users.On("GetCoachAssignment", mock.Anything, 10).Return(0, false, nil)

	contacts, err := resolver.ContactsFor(context.Background(), models.Principal{UserID: 10, Role: models.RoleClient})
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestClientContactsEmptyWhenCoachInactive(t *testing.T) {
	users := new(mocks.UserDirectoryMock)
	resolver := NewResolver(users)

	users.On("GetCoachAssignment", mock.Anything, 10).Return(2, true, nil)
	users.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2, Role: models.RoleCoach, IsActive: false}, nil)

	contacts, err := resolver.ContactsFor(context.Background(), models.Principal{UserID: 10, Role: models.RoleClient})
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestCoachContactsAreClientsAndAdmins(t *testing.T) {
	users := new(mocks.UserDirectoryMock)
	resolver := NewResolver(users)

	users.On("ListClientsOf", mock.Anything, 2).Return([]models.User{
		{ID: 10, Role: models.RoleClient, IsActive: true},
		{ID: 11, Role: models.RoleClient, IsActive: true},
	}, nil)
	users.On("ListActiveUsersByRole", mock.Anything, models.RoleAdmin).Return([]models.User{
		{ID: 1, Role: models.RoleAdmin, IsActive: true},
	}, nil)

	contacts, err := resolver.ContactsFor(context.Background(), models.Principal{UserID: 2, Role: models.RoleCoach})
	require.NoError(t, err)
	require.Len(t, contacts, 3)
	assert.Equal(t, 1, contacts[0].ID)
	assert.Equal(t, 10, contacts[1].ID)
	assert.Equal(t, 11, contacts[2].ID)
}

func TestAdminContactsAreActiveCoaches(t *testing.T) {
	users := new(mocks.UserDirectoryMock)
	resolver := NewResolver(users)

	users.On("ListActiveUsersByRole", mock.Anything, models.RoleCoach).Return([]models.User{
		{ID: 2, Role: models.RoleCoach, IsActive: true},
	}, nil)

	contacts, err := resolver.ContactsFor(context.Background(), models.Principal{UserID: 1, Role: models.RoleAdmin})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, 2, contacts[0].ID)
}

func TestUnknownRoleRejected(t *testing.T) {
	resolver := NewResolver(new(mocks.UserDirectoryMock))

	_, err := resolver.ContactsFor(context.Background(), models.Principal{UserID: 1, Role: "SUPERUSER"})
	assert.ErrorIs(t, err, ErrUnknownRole)

	_, err = resolver.CanMessage(context.Background(), models.Principal{UserID: 1, Role: ""}, 2)
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestCanMessageMatchesContactsFor(t *testing.T) {
	users := new(mocks.UserDirectoryMock)
	resolver := NewResolver(users)

	users.On("GetCoachAssignment", mock.Anything, 10).Return(2, true, nil)
	users.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2, Role: models.RoleCoach, IsActive: true}, nil)

	principal := models.Principal{UserID: 10, Role: models.RoleClient}

	allowed, err := resolver.CanMessage(context.Background(), principal, 2)
	require.NoError(t, err)
	assert.True(t, allowed)

	// A forged receiver outside the directory is rejected even though the
	// client UI would never offer it.
	allowed, err = resolver.CanMessage(context.Background(), principal, 11)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCanMessageRejectsSelf(t *testing.T) {
	resolver := NewResolver(new(mocks.UserDirectoryMock))

	allowed, err := resolver.CanMessage(context.Background(), models.Principal{UserID: 10, Role: models.RoleClient}, 10)
	require.NoError(t, err)
	assert.False(t, allowed)
}
