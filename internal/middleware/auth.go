// Package middleware holds the Connect interceptors and HTTP wrappers of the server.
package middleware

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/internal/auth"
)

type contextKey string

const (
	// UserIDKey holds the authenticated user ID.
	UserIDKey contextKey = "user_id"
	// UsernameKey holds the authenticated username.
	UsernameKey contextKey = "username"
)

// GetUserID returns the authenticated user ID, or "" before authentication.
func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}

// GetUsername returns the authenticated username.
func GetUsername(ctx context.Context) string {
	username, _ := ctx.Value(UsernameKey).(string)
	return username
}

// WithUser returns a context carrying an authenticated identity.
func WithUser(ctx context.Context, userID, username string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, UsernameKey, username)
}

// RequireAuth rejects calls without a valid "Authorization: Bearer" token and
// puts the token's identity in the context.
func RequireAuth(jwtManager *auth.JWTManager) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			header := req.Header().Get("Authorization")
			if header == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidToken)
			}

			claims, err := jwtManager.Validate(token)
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			return next(WithUser(ctx, claims.UserID, claims.Username), req)
		}
	}
}
