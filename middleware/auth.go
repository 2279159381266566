package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"carbonledger/auth"
	"carbonledger/models"
	"carbonledger/services"

	"go.uber.org/zap"
)

type contextKey string

const UserContextKey contextKey = "user"

// UserLookup resolves the identity behind a validated token.
type UserLookup interface {
	User(ctx context.Context, id string) (*models.User, error)
}

// AuthMiddleware validates JWT tokens and injects user into context
func AuthMiddleware(jwtManager *auth.JWTManager, users UserLookup, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			// Extract token from "Bearer <token>"
			token, err := auth.ExtractToken(authHeader)
			if err != nil {
				writeError(w, "Invalid authorization header", http.StatusUnauthorized)
				return
			}

			claims, err := jwtManager.ValidateToken(token)
			if err != nil {
				writeError(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			// Fetch user to get latest role and status
			user, err := users.User(r.Context(), claims.UserID)
			if errors.Is(err, services.ErrNotFound) {
				writeError(w, "User not found", http.StatusUnauthorized)
				return
			}
			if err != nil {
				logger.Error("failed to resolve caller", zap.String("user_id", claims.UserID), zap.Error(err))
				writeError(w, "Failed to authenticate", http.StatusInternalServerError)
				return
			}
			if !user.IsActive {
				writeError(w, "User account is deactivated", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext retrieves the user from the request context
func GetUserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	return user, ok
}

// RequireRole middleware checks if the user has the required role
func RequireRole(allowedRoles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUserFromContext(r.Context())
			if !ok {
				writeError(w, "User not found in context", http.StatusUnauthorized)
				return
			}

			if !slices.Contains(allowedRoles, user.Role) {
				writeError(w, "Not authorized to access this resource", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": message,
	})
}
