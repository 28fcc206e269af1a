// Package auth issues session tokens and hashes passwords.
package auth

import (
	"context"

	"github.com/mmynk/splitledger/internal/models"
)

// Authenticator registers and logs in users.
// service.AuthService serves Register and Login through it;
// *ledger.UserService implements it.
type Authenticator interface {
	// Register creates an account and returns it.
	Register(ctx context.Context, username, email, password string) (*models.User, error)

	// Authenticate returns the user matching email and password.
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
}
