package models

// Role is the closed set of account roles. The messaging rule table is keyed
// on it, so every switch over Role must handle all three values.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleCoach  Role = "COACH"
	RoleClient Role = "CLIENT"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCoach, RoleClient:
		return true
	}
	return false
}

// User is a read-only projection of an account owned by the auth service.
type User struct {
	ID          int    `db:"id" json:"id"`
	DisplayName string `db:"display_name" json:"display_name"`
	Role        Role   `db:"role" json:"role"`
	IsActive    bool   `db:"is_active" json:"is_active"`
}

// Principal is the authenticated caller extracted from the access token.
type Principal struct {
	UserID      int
	Role        Role
	DisplayName string
}

// CoachAssignment links a client to their coach.
type CoachAssignment struct {
	ClientID int `db:"client_id" json:"client_id"`
	CoachID  int `db:"coach_id" json:"coach_id"`
}
