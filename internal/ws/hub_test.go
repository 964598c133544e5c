package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/models"
)

func TestPairKeyNormalizesOrder(t *testing.T) {
	assert.Equal(t, NewPairKey(2, 10), NewPairKey(10, 2))
	assert.Equal(t, PairKey{Low: 2, High: 10}, NewPairKey(10, 2))
}

func TestUserChannelAddAndUnsubscribe(t *testing.T) {
	hub := NewHub()

	sub := hub.AddUserClient(1, nil, ConnInfo{UserID: 1, DisplayName: "alice", ConnectedAt: time.Now()})
	require.Len(t, hub.userRooms, 1)
	assert.True(t, hub.IsOnline(1))

	sub.Unsubscribe()
	assert.Empty(t, hub.userRooms)
	assert.False(t, hub.IsOnline(1))

	// Unsubscribe is idempotent.
	sub.Unsubscribe()
	assert.Empty(t, hub.userRooms)
}

func TestConversationChannelKeyedByPair(t *testing.T) {
	hub := NewHub()

	sub := hub.AddConversationClient(NewPairKey(10, 2), nil, ConnInfo{UserID: 10})
	require.Len(t, hub.convRooms, 1)
	_, ok := hub.convRooms[NewPairKey(2, 10)]
	assert.True(t, ok)

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Empty(t, hub.convRooms)
}

func TestRosterChannelAddAndRemove(t *testing.T) {
	hub := NewHub()

	sub := hub.AddRosterClient(2, nil, ConnInfo{UserID: 2})
	require.Len(t, hub.rosterRooms, 1)

	sub.Unsubscribe()
	assert.Empty(t, hub.rosterRooms)
}

func TestPresenceTracksDistinctUsers(t *testing.T) {
	hub := NewHub()

	subA := hub.AddUserClient(1, nil, ConnInfo{UserID: 1, DisplayName: "alice"})
	subB := hub.AddUserClient(2, nil, ConnInfo{UserID: 2, DisplayName: "bob"})

	online := hub.OnlineUsers()
	require.Len(t, online, 2)

	names := map[int]string{}
	for _, u := range online {
		names[u.UserID] = u.DisplayName
	}
	assert.Equal(t, "alice", names[1])
	assert.Equal(t, "bob", names[2])

	subA.Unsubscribe()
	assert.False(t, hub.IsOnline(1))
	assert.True(t, hub.IsOnline(2))

	subB.Unsubscribe()
	assert.Empty(t, hub.OnlineUsers())
}

func TestPublishMessageWithoutSubscribersIsSafe(t *testing.T) {
	hub := NewHub()
	hub.PublishMessage(models.Message{ID: 1, SenderID: 10, ReceiverID: 2, Content: "hi"})
	hub.PublishClientAdded(2, models.User{ID: 10})
}
