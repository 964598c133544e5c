// Package directory computes who a user is allowed to message. The rule
// table is fixed by role:
//
//	CLIENT -> their assigned coach, if active
//	COACH  -> active assigned clients + active admins
//	ADMIN  -> active coaches
//
// Authorization always re-derives the set here; relationship claims from the
// request are never trusted.
package directory

import (
	"context"
	"errors"
	"sort"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

var (
	ErrUnknownRole = errors.New("unknown principal role")
	ErrForbidden   = errors.New("messaging not permitted")
)

// Resolver resolves contact sets and authorizes sender/receiver pairs.
type Resolver struct {
	users repositories.UserDirectory
}

// NewResolver constructs a Resolver over the user directory.
func NewResolver(users repositories.UserDirectory) *Resolver {
	return &Resolver{users: users}
}

// ContactsFor returns the users the principal may message, sorted by id.
// Inactive counterparts are absent, not merely hidden.
func (r *Resolver) ContactsFor(ctx context.Context, principal models.Principal) ([]models.User, error) {
	switch principal.Role {
	case models.RoleClient:
		return r.clientContacts(ctx, principal.UserID)
	case models.RoleCoach:
		return r.coachContacts(ctx, principal.UserID)
	case models.RoleAdmin:
		return r.users.ListActiveUsersByRole(ctx, models.RoleCoach)
	default:
		return nil, ErrUnknownRole
	}
}

// CanMessage reports whether the principal may message the counterpart. It
// re-derives membership from the same rule table as ContactsFor so a forged
// receiver id is rejected even when the UI would never produce it.
func (r *Resolver) CanMessage(ctx context.Context, principal models.Principal, counterpartyID int) (bool, error) {
	if counterpartyID == principal.UserID {
		return false, nil
	}
	contacts, err := r.ContactsFor(ctx, principal)
	if err != nil {
		return false, err
	}
	for _, c := range contacts {
		if c.ID == counterpartyID {
			return true, nil
		}
	}
	return false, nil
}

func (r *Resolver) clientContacts(ctx context.Context, clientID int) ([]models.User, error) {
	coachID, found, err := r.users.GetCoachAssignment(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !found {
		return []models.User{}, nil
	}

	coach, err := r.users.GetUser(ctx, coachID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return []models.User{}, nil
	}
	if err != nil {
		return nil, err
	}
	if !coach.IsActive {
		return []models.User{}, nil
	}
	return []models.User{coach}, nil
}

func (r *Resolver) coachContacts(ctx context.Context, coachID int) ([]models.User, error) {
	clients, err := r.users.ListClientsOf(ctx, coachID)
	if err != nil {
		return nil, err
	}
	admins, err := r.users.ListActiveUsersByRole(ctx, models.RoleAdmin)
	if err != nil {
		return nil, err
	}

	contacts := append(clients, admins...)
	sort.Slice(contacts, func(i, j int) bool { return contacts[i].ID < contacts[j].ID })
	return contacts, nil
}
