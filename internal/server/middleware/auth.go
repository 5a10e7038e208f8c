// Package middleware holds the HTTP middlewares of the backend.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/clipdeck/clipdeck/internal/common"
	"github.com/clipdeck/clipdeck/internal/server/auth"
	"github.com/clipdeck/clipdeck/internal/server/response"
)

type contextKey string

const userIDKey contextKey = "userID"

// Auth validates the bearer token and stashes the user id in the request
// context. An expired token is reported with the exact sentinel message the
// client's refresh path matches on.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get(common.AccessTokenHeaderName)
			if authHeader == "" {
				response.Unauthorized(w, "missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				response.Unauthorized(w, "invalid authorization header format")
				return
			}

			userID, err := auth.GetUserIDFromToken(parts[1], []byte(jwtSecret))
			if err != nil {
				if errors.Is(err, common.ErrTokenExpired) {
					response.Unauthorized(w, common.ErrTokenExpired.Error())
					return
				}
				response.Unauthorized(w, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID returns the authenticated user id, or "" outside Auth.
func GetUserID(r *http.Request) string {
	userID, ok := r.Context().Value(userIDKey).(string)
	if !ok {
		return ""
	}
	return userID
}
