package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// ErrInvalidCredentials is returned by Authenticate for an unknown email or a
// wrong password alike.
var ErrInvalidCredentials = errors.New("ledger: invalid email or password")

// PasswordHasher hashes and verifies passwords. auth.BcryptHasher implements it.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) error
}

// UserService manages accounts.
type UserService struct {
	*base
	hasher PasswordHasher
}

// Register creates an account. Usernames and emails are globally unique.
func (s *UserService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	username, err := validateName("username", username)
	if err != nil {
		return nil, err
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return nil, invalid("email", "must be a valid address")
	}
	if len(password) < MinPasswordLength {
		return nil, invalid("password", "must be at least %d characters", MinPasswordLength)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	user := &models.User{
		Username:     username,
		Email:        strings.ToLower(addr.Address),
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, translate("create user", err)
	}
	s.log().Info("user registered", "user_id", user.ID)
	return user, nil
}

// Authenticate returns the user whose email and password match.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, translate("get user", err)
	}
	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// GetUser returns a user with its group memberships.
func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, translate("get user", err)
	}
	return user, nil
}

// RenameUser changes a username.
func (s *UserService) RenameUser(ctx context.Context, userID, username string) (*models.User, error) {
	username, err := validateName("username", username)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	var user *models.User
	err = s.tx(ctx, func(ctx context.Context, tx storage.Store) error {
		if err := tx.UpdateUsername(ctx, userID, username); err != nil {
			return translate("update username", err)
		}
		var err error
		user, err = tx.GetUser(ctx, userID)
		return translate("get user", err)
	})
	if err != nil {
		return nil, translate("rename user", err)
	}
	return user, nil
}

// DeleteUser deletes an account and pulls it from every group. A user who
// still created groups cannot be deleted.
func (s *UserService) DeleteUser(ctx context.Context, userID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	err := s.tx(ctx, func(ctx context.Context, tx storage.Store) error {
		owned, err := tx.CountOwnedGroups(ctx, userID)
		if err != nil {
			return translate("count owned groups", err)
		}
		if owned > 0 {
			return fmt.Errorf("user %s still owns %d groups: %w", userID, owned, ErrConflict)
		}
		return translate("delete user", tx.DeleteUser(ctx, userID))
	})
	if err = translate("delete user", err); err != nil {
		return err
	}
	s.log().Info("user deleted", "user_id", userID)
	return nil
}
