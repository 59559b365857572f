package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"famsync/internal/database"
	"famsync/internal/models"
)

var userColumns = []string{
	"remote_id", "family_id", "first_name", "last_name", "email",
	"gender", "alias", "role", "birthday", "updated_at",
}

const selectUser = `
	SELECT id, remote_id, family_id, first_name, last_name, email,
	       gender, alias, role, birthday, updated_at
	FROM users`

type userRow struct {
	LocalID   int64  `db:"id"`
	RemoteID  string `db:"remote_id"`
	FamilyID  string `db:"family_id"`
	FirstName string `db:"first_name"`
	LastName  string `db:"last_name"`
	Email     string `db:"email"`
	Gender    string `db:"gender"`
	Alias     string `db:"alias"`
	Role      string `db:"role"`
	Birthday  string `db:"birthday"`
	UpdatedAt int64  `db:"updated_at"`
}

func (row userRow) toModel() models.CachedUser {
	return models.CachedUser{
		LocalID: row.LocalID,
		User: models.User{
			ID:        row.RemoteID,
			FamilyID:  row.FamilyID,
			FirstName: row.FirstName,
			LastName:  row.LastName,
			Email:     row.Email,
			Gender:    row.Gender,
			Alias:     row.Alias,
			Role:      row.Role,
			Birthday:  row.Birthday,
		},
		UpdatedAt: time.UnixMilli(row.UpdatedAt),
	}
}

// UserRepository handles local cache operations for users
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetUser retrieves a cached user by remote id. Returns nil, nil when absent.
func (r *UserRepository) GetUser(ctx context.Context, remoteID string) (*models.CachedUser, error) {
	var row userRow
	err := r.db.Get(ctx, &row, selectUser+" WHERE remote_id = ?", remoteID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user := row.toModel()
	return &user, nil
}

// UpsertUser inserts or overwrites the cached copy of a user
func (r *UserRepository) UpsertUser(ctx context.Context, user *models.User) error {
	return upsertUser(ctx, r.db, user)
}

func upsertUser(ctx context.Context, q database.DBTX, user *models.User) error {
	if user.ID == "" {
		return fmt.Errorf("failed to cache user: remote id is blank")
	}
	query := q.GetDialect().UpsertQuery("users", "remote_id", userColumns)
	_, err := q.Exec(ctx, query,
		user.ID, user.FamilyID, user.FirstName, user.LastName, user.Email,
		user.Gender, user.Alias, user.Role, user.Birthday, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to cache user: %w", err)
	}
	return nil
}

// DeleteUser removes a cached user. Missing rows are ignored.
func (r *UserRepository) DeleteUser(ctx context.Context, remoteID string) error {
	if _, err := r.db.Exec(ctx, "DELETE FROM users WHERE remote_id = ?", remoteID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// GetFamilyMembers returns the cached users belonging to a family
func (r *UserRepository) GetFamilyMembers(ctx context.Context, familyID string) ([]models.CachedUser, error) {
	return r.selectUsers(ctx, selectUser+" WHERE family_id = ? ORDER BY first_name, id", familyID)
}

// ListUsers returns every cached user ordered by local id
func (r *UserRepository) ListUsers(ctx context.Context) ([]models.CachedUser, error) {
	return r.selectUsers(ctx, selectUser+" ORDER BY id")
}

func (r *UserRepository) selectUsers(ctx context.Context, query string, args ...any) ([]models.CachedUser, error) {
	var rows []userRow
	if err := r.db.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}

	users := make([]models.CachedUser, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toModel())
	}
	return users, nil
}
