package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserDirectory exposes the read-only view of accounts and coach assignments
// this service needs. The tables are owned by the auth/admin side of the
// platform; nothing here mutates users.
type UserDirectory interface {
	GetUser(ctx context.Context, userID int) (models.User, error)
	GetUsers(ctx context.Context, userIDs []int) ([]models.User, error)
	GetCoachAssignment(ctx context.Context, clientID int) (int, bool, error)
	ListClientsOf(ctx context.Context, coachID int) ([]models.User, error)
	ListActiveUsersByRole(ctx context.Context, role models.Role) ([]models.User, error)
	CreateCoachAssignment(ctx context.Context, clientID, coachID int) error
}

// UserRepo is a sqlx implementation of UserDirectory.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser fetches a single user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, display_name, role, is_active FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetUsers fetches multiple users in one query. Unknown ids are skipped.
func (r *UserRepo) GetUsers(ctx context.Context, userIDs []int) ([]models.User, error) {
	if len(userIDs) == 0 {
		return []models.User{}, nil
	}
	var users []models.User
	err := r.db.SelectContext(ctx, &users,
		`SELECT id, display_name, role, is_active FROM users WHERE id = ANY($1)`, pq.Array(userIDs))
	return users, err
}

// GetCoachAssignment returns the coach user id for a client, with a found flag.
func (r *UserRepo) GetCoachAssignment(ctx context.Context, clientID int) (int, bool, error) {
	var coachID int
	err := r.db.GetContext(ctx, &coachID, `SELECT coach_id FROM coach_assignments WHERE client_id=$1`, clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return coachID, true, nil
}

// ListClientsOf returns the active clients currently assigned to a coach.
func (r *UserRepo) ListClientsOf(ctx context.Context, coachID int) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users,
		`SELECT u.id, u.display_name, u.role, u.is_active
         FROM users u
         JOIN coach_assignments ca ON ca.client_id = u.id
         WHERE ca.coach_id=$1 AND u.is_active = TRUE
         ORDER BY u.id`, coachID)
	return users, err
}

// ListActiveUsersByRole returns all active users holding the given role.
func (r *UserRepo) ListActiveUsersByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users,
		`SELECT id, display_name, role, is_active FROM users WHERE role=$1 AND is_active = TRUE ORDER BY id`, role)
	return users, err
}

// CreateCoachAssignment links a client to a coach. A client has at most one
// coach; re-assignment replaces the existing edge.
func (r *UserRepo) CreateCoachAssignment(ctx context.Context, clientID, coachID int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO coach_assignments (client_id, coach_id) VALUES ($1, $2)
         ON CONFLICT (client_id) DO UPDATE SET coach_id = EXCLUDED.coach_id`, clientID, coachID)
	return err
}
