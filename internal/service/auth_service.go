package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/internal/auth"
	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/middleware"
)

var _ auth.Authenticator = (*ledger.UserService)(nil)

// AuthService implements the AuthService procedures. Register and Login go
// through the authenticator; account reads and edits go to the user service.
type AuthService struct {
	authenticator auth.Authenticator
	users         *ledger.UserService
	jwtManager    *auth.JWTManager
	logger        *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(authenticator auth.Authenticator, users *ledger.UserService, jwtManager *auth.JWTManager, logger *slog.Logger) *AuthService {
	return &AuthService{
		authenticator: authenticator,
		users:         users,
		jwtManager:    jwtManager,
		logger:        logger,
	}
}

// Register creates a new user account and signs a token for it.
func (s *AuthService) Register(ctx context.Context, req *connect.Request[RegisterRequest]) (*connect.Response[SessionResponse], error) {
	s.logger.Info("Register request", "username", req.Msg.Username)

	user, err := s.authenticator.Register(ctx, req.Msg.Username, req.Msg.Email, req.Msg.Password)
	if err != nil {
		return nil, connectError(s.logger, "Register", err)
	}

	token, err := s.jwtManager.Generate(user)
	if err != nil {
		s.logger.Error("Failed to generate token", "user_id", user.ID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, errInternal)
	}

	s.logger.Info("User registered successfully", "user_id", user.ID)
	return connect.NewResponse(&SessionResponse{User: toUser(user), Token: token}), nil
}

// Login checks credentials and returns a fresh token.
func (s *AuthService) Login(ctx context.Context, req *connect.Request[LoginRequest]) (*connect.Response[SessionResponse], error) {
	user, err := s.authenticator.Authenticate(ctx, req.Msg.Email, req.Msg.Password)
	if err != nil {
		s.logger.Warn("Login failed", "error", err)
		return nil, connectError(s.logger, "Login", err)
	}

	token, err := s.jwtManager.Generate(user)
	if err != nil {
		s.logger.Error("Failed to generate token", "user_id", user.ID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, errInternal)
	}

	s.logger.Info("User logged in successfully", "user_id", user.ID)
	return connect.NewResponse(&SessionResponse{User: toUser(user), Token: token}), nil
}

// GetCurrentUser returns the caller's account.
func (s *AuthService) GetCurrentUser(ctx context.Context, _ *connect.Request[Empty]) (*connect.Response[UserResponse], error) {
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return nil, connect.NewError(connect.CodeUnauthenticated, errAuthRequired)
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, connectError(s.logger, "GetCurrentUser", err)
	}
	return connect.NewResponse(&UserResponse{User: toUser(user)}), nil
}

// RenameCurrentUser changes the caller's username.
func (s *AuthService) RenameCurrentUser(ctx context.Context, req *connect.Request[RenameUserRequest]) (*connect.Response[UserResponse], error) {
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return nil, connect.NewError(connect.CodeUnauthenticated, errAuthRequired)
	}

	user, err := s.users.RenameUser(ctx, userID, req.Msg.Username)
	if err != nil {
		return nil, connectError(s.logger, "RenameCurrentUser", err)
	}
	s.logger.Info("User renamed", "user_id", userID, "username", user.Username)
	return connect.NewResponse(&UserResponse{User: toUser(user)}), nil
}

// DeleteCurrentUser removes the caller's account. Tokens already issued stay
// valid until expiry but resolve to a missing user.
func (s *AuthService) DeleteCurrentUser(ctx context.Context, _ *connect.Request[Empty]) (*connect.Response[Empty], error) {
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return nil, connect.NewError(connect.CodeUnauthenticated, errAuthRequired)
	}

	if err := s.users.DeleteUser(ctx, userID); err != nil {
		return nil, connectError(s.logger, "DeleteCurrentUser", err)
	}
	s.logger.Info("User deleted", "user_id", userID)
	return connect.NewResponse(&Empty{}), nil
}
