package models

// MessageEvent is broadcast through user and conversation websocket channels.
type MessageEvent struct {
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
}

// ClientAddedEvent is broadcast through a coach's roster channel when a new
// client is assigned to them.
type ClientAddedEvent struct {
	Type    string `json:"type"`
	CoachID int    `json:"coach_id"`
	Client  User   `json:"client"`
}

// PresenceEvent carries the current set of online users. A full snapshot is
// sent on every join and leave rather than deltas, so late subscribers do not
// need replay.
type PresenceEvent struct {
	Type   string         `json:"type"`
	Online []PresenceUser `json:"online"`
}

// PresenceUser is one connected user in a presence snapshot.
type PresenceUser struct {
	UserID      int    `json:"user_id"`
	DisplayName string `json:"display_name"`
}
