package models

import "time"

// User represents a registered account.
type User struct {
	// ID is the unique identifier for the user (UUID format).
	ID string

	// Username is unique across all users.
	Username string

	// Email is unique across all users and used for login.
	Email string

	// PasswordHash is the bcrypt hash of the user's password.
	// Never returned by the RPC layer.
	PasswordHash string

	// Groups holds the IDs of the groups the user participates in.
	// This mirrors Group.Participants and is maintained by the store.
	Groups []string

	CreatedAt time.Time
}
