package sqlite

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/models"
)

const userColumns = "id, username, email, password_hash, created_at"

// CreateUser inserts a new user into the database.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.q.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?)",
		user.ID, user.Username, user.Email, user.PasswordHash, toMillis(user.CreatedAt),
	)
	return wrapErr("create user", err)
}

// GetUser retrieves a user by ID, including its group memberships.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.getUserBy(ctx, "id", userID)
}

// GetUserByEmail retrieves a user by their email address.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUserBy(ctx, "email", email)
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUserBy(ctx, "username", username)
}

// getUserBy looks a user up by one of its unique columns.
// column is never user input.
func (s *SQLiteStore) getUserBy(ctx context.Context, column, value string) (*models.User, error) {
	user := &models.User{}
	var createdAt int64
	err := s.q.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE "+column+" = ?",
		value,
	).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &createdAt)
	if err != nil {
		return nil, wrapErr("get user by "+column, err)
	}
	user.CreatedAt = fromMillis(createdAt)

	user.Groups, err = queryStrings(ctx, s.q, "get user groups",
		"SELECT group_id FROM group_members WHERE user_id = ? ORDER BY joined_at, rowid",
		user.ID,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateUsername changes the username of a user.
func (s *SQLiteStore) UpdateUsername(ctx context.Context, userID, username string) error {
	res, err := s.q.ExecContext(ctx, "UPDATE users SET username = ? WHERE id = ?", username, userID)
	if err != nil {
		return wrapErr("update username", err)
	}
	return notFound(res, "update username")
}

// DeleteUser removes a user. Memberships and live allocation lines go with it
// through ON DELETE CASCADE; groups the user created block the delete.
func (s *SQLiteStore) DeleteUser(ctx context.Context, userID string) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM users WHERE id = ?", userID)
	if err != nil {
		return wrapErr("delete user", err)
	}
	return notFound(res, "delete user")
}

// CountOwnedGroups returns how many groups the user created.
func (s *SQLiteStore) CountOwnedGroups(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM groups WHERE creator_id = ?", userID).Scan(&n)
	if err != nil {
		return 0, wrapErr("count owned groups", err)
	}
	return n, nil
}
