package contacts

import (
	"context"
	"sort"

	"messaging-service/internal/directory"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

// Aggregator builds the contact list view: per contact, the most recent
// message and the unread count. The whole list costs a fixed number of
// queries regardless of message volume.
type Aggregator struct {
	resolver *directory.Resolver
	messages repositories.MessageStore
}

// NewAggregator constructs an Aggregator.
func NewAggregator(resolver *directory.Resolver, messages repositories.MessageStore) *Aggregator {
	return &Aggregator{resolver: resolver, messages: messages}
}

// ContactSummaries resolves the principal's directory and zips in last-message
// previews and unread counts, sorted by last-message recency. Contacts with no
// messages sort last, by contact id.
func (a *Aggregator) ContactSummaries(ctx context.Context, principal models.Principal) ([]models.ContactSummary, error) {
	contactUsers, err := a.resolver.ContactsFor(ctx, principal)
	if err != nil {
		return nil, err
	}

	contactIDs := make([]int, 0, len(contactUsers))
	for _, u := range contactUsers {
		contactIDs = append(contactIDs, u.ID)
	}

	lastByContact, err := a.messages.LastMessagePerContact(ctx, principal.UserID, contactIDs)
	if err != nil {
		return nil, err
	}
	unreadByContact, err := a.messages.UnreadCounts(ctx, principal.UserID, contactIDs)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.ContactSummary, 0, len(contactUsers))
	for _, u := range contactUsers {
		summary := models.ContactSummary{
			Contact:     u,
			UnreadCount: unreadByContact[u.ID],
		}
		if msg, ok := lastByContact[u.ID]; ok {
			summary.LastMessage = &models.LastMessage{
				Content:   msg.Content,
				CreatedAt: msg.CreatedAt,
				Outgoing:  msg.SenderID == principal.UserID,
				IsRead:    msg.IsRead,
			}
		}
		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		left, right := summaries[i], summaries[j]
		switch {
		case left.LastMessage == nil && right.LastMessage == nil:
			return left.Contact.ID < right.Contact.ID
		case left.LastMessage == nil:
			return false
		case right.LastMessage == nil:
			return true
		default:
			return left.LastMessage.CreatedAt.After(right.LastMessage.CreatedAt)
		}
	})

	return summaries, nil
}
