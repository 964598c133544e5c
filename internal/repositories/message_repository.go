package repositories

import (
	"context"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

var (
	ErrEmptyContent = errors.New("message content is empty")
	ErrSelfMessage  = errors.New("sender and receiver are the same user")
)

const (
	// DefaultHistoryLimit applies when the caller passes limit <= 0.
	DefaultHistoryLimit = 15
	// MaxHistoryLimit caps a single history page.
	MaxHistoryLimit = 100
)

// MessageStore is the durable, ordered log of messages between user pairs.
// Authorization is the caller's concern; the store only enforces shape
// invariants (non-empty content, no self-send).
type MessageStore interface {
	Append(ctx context.Context, senderID, receiverID int, content string) (models.Message, error)
	History(ctx context.Context, userA, userB, limit, offset int) ([]models.Message, error)
	MarkRead(ctx context.Context, receiverID, senderID int) (int, error)
	LastMessagePerContact(ctx context.Context, userID int, contactIDs []int) (map[int]models.Message, error)
	UnreadCounts(ctx context.Context, userID int, contactIDs []int) (map[int]int, error)
}

// MessageRepo is a sqlx-backed MessageStore.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Append stores one message. The timestamp is assigned by the database so
// ordering reflects commit order, not caller clocks.
func (r *MessageRepo) Append(ctx context.Context, senderID, receiverID int, content string) (models.Message, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return models.Message{}, ErrEmptyContent
	}
	if senderID == receiverID {
		return models.Message{}, ErrSelfMessage
	}

	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (sender_id, receiver_id, content) VALUES ($1, $2, $3)
         RETURNING id, sender_id, receiver_id, content, is_read, created_at`,
		senderID, receiverID, trimmed).
		Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.IsRead, &msg.CreatedAt)
	return msg, err
}

// History returns messages between the pair in either direction, newest first.
// Ties on created_at break on id so stable offsets never repeat a page.
func (r *MessageRepo) History(ctx context.Context, userA, userB, limit, offset int) ([]models.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT id, sender_id, receiver_id, content, is_read, created_at
         FROM messages
         WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
         ORDER BY created_at DESC, id DESC
         LIMIT $3 OFFSET $4`,
		userA, userB, limit, offset)
	return msgs, err
}

// MarkRead flips every unread message from sender to receiver in one
// statement and returns how many rows changed. A single UPDATE keeps the
// flip atomic against concurrent appends.
func (r *MessageRepo) MarkRead(ctx context.Context, receiverID, senderID int) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_read = TRUE
         WHERE receiver_id=$1 AND sender_id=$2 AND is_read = FALSE`,
		receiverID, senderID)
	if err != nil {
		return 0, err
	}
	count, err := res.RowsAffected()
	return int(count), err
}

// LastMessagePerContact returns the newest message exchanged with each of the
// given contacts, keyed by contact id, in one query.
func (r *MessageRepo) LastMessagePerContact(ctx context.Context, userID int, contactIDs []int) (map[int]models.Message, error) {
	result := map[int]models.Message{}
	if len(contactIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryxContext(ctx,
		`SELECT DISTINCT ON (contact_id) contact_id, id, sender_id, receiver_id, content, is_read, created_at
         FROM (
             SELECT CASE WHEN sender_id=$1 THEN receiver_id ELSE sender_id END AS contact_id,
                    id, sender_id, receiver_id, content, is_read, created_at
             FROM messages
             WHERE (sender_id=$1 AND receiver_id = ANY($2))
                OR (receiver_id=$1 AND sender_id = ANY($2))
         ) pair_messages
         ORDER BY contact_id, created_at DESC, id DESC`,
		userID, pq.Array(contactIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var contactID int
		var msg models.Message
		if err := rows.Scan(&contactID, &msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.IsRead, &msg.CreatedAt); err != nil {
			return nil, err
		}
		result[contactID] = msg
	}
	return result, rows.Err()
}

// UnreadCounts returns, per contact, how many of their messages to the user
// are still unread, in one aggregate query.
func (r *MessageRepo) UnreadCounts(ctx context.Context, userID int, contactIDs []int) (map[int]int, error) {
	result := map[int]int{}
	if len(contactIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryxContext(ctx,
		`SELECT sender_id, COUNT(*)
         FROM messages
         WHERE receiver_id=$1 AND sender_id = ANY($2) AND is_read = FALSE
         GROUP BY sender_id`,
		userID, pq.Array(contactIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var senderID, count int
		if err := rows.Scan(&senderID, &count); err != nil {
			return nil, err
		}
		result[senderID] = count
	}
	return result, rows.Err()
}
