package models

import "time"

// Message is a direct message between two users. Immutable once stored except
// for the one-way IsRead transition performed by the receiver.
type Message struct {
	ID         int       `db:"id" json:"id"`
	SenderID   int       `db:"sender_id" json:"sender_id"`
	ReceiverID int       `db:"receiver_id" json:"receiver_id"`
	Content    string    `db:"content" json:"content"`
	IsRead     bool      `db:"is_read" json:"is_read"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// LastMessage is the preview of the most recent message with a contact.
type LastMessage struct {
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Outgoing  bool      `json:"outgoing"`
	IsRead    bool      `json:"is_read"`
}

// ContactSummary is the per-contact view returned by the contacts listing.
// Derived on every fetch, never persisted.
type ContactSummary struct {
	Contact     User         `json:"contact"`
	LastMessage *LastMessage `json:"last_message,omitempty"`
	UnreadCount int          `json:"unread_count"`
}
